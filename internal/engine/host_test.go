package engine

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/Paintersrp/portalreset/internal/config"
	"github.com/Paintersrp/portalreset/internal/proc"
	"github.com/Paintersrp/portalreset/internal/runtime/process"
)

// forever marks a simulated process that never exits on its own.
const forever = -1

type simProc struct {
	pid      int
	name     string
	args     string
	ttl      int
	stubborn bool
	dying    bool
}

// simHost is an in-memory process table. Every sleep advances time by one
// tick: processes with a finite ttl count down and terminated processes go
// away.
type simHost struct {
	mu      sync.Mutex
	procs   []*simProc
	nextPID int

	// behaviour per daemon display name, consumed one entry per launch.
	plans    map[string][]launchPlan
	launches map[string]int
	busStart int
	signals  []string
}

type launchPlan struct {
	name string // process name that appears, empty for none
	ttl  int
}

func newSimHost() *simHost {
	return &simHost{
		nextPID:  2000,
		plans:    map[string][]launchPlan{},
		launches: map[string]int{},
	}
}

func (h *simHost) add(name, args string, ttl int) int {
	h.nextPID++
	h.procs = append(h.procs, &simProc{pid: h.nextPID, name: name, args: args, ttl: ttl})
	return h.nextPID
}

func (h *simHost) plan(daemon string, plans ...launchPlan) {
	h.plans[daemon] = append(h.plans[daemon], plans...)
}

func (h *simHost) Find(f proc.Filter) []proc.Record {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []proc.Record
	for _, p := range h.procs {
		ok := strings.Contains(p.name, f.Name)
		if f.Exact {
			ok = p.name == f.Name
		}
		if ok && f.Args != "" && !strings.Contains(p.args, f.Args) {
			ok = false
		}
		if ok {
			out = append(out, proc.Record{PID: p.pid, Name: p.name})
		}
	}
	return out
}

func (h *simHost) Terminate(records []proc.Record, force bool) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	sig := "SIGTERM"
	if force {
		sig = "SIGKILL"
	}
	n := 0
	for _, r := range records {
		for i, p := range h.procs {
			if p.pid != r.PID {
				continue
			}
			h.signals = append(h.signals, sig+" "+p.name)
			if force {
				h.procs = append(h.procs[:i], h.procs[i+1:]...)
			} else if !p.stubborn {
				p.dying = true
			}
			n++
			break
		}
	}
	return n
}

func (h *simHost) Launch(ctx context.Context, spec config.DaemonSpec) (*process.Handle, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.launches[spec.DisplayName]++
	plans := h.plans[spec.DisplayName]
	if len(plans) == 0 {
		return nil, nil
	}
	p := plans[0]
	if len(plans) > 1 {
		h.plans[spec.DisplayName] = plans[1:]
	}
	if p.name != "" {
		h.add(p.name, "-v", p.ttl)
	}
	return nil, nil
}

// EnsureFresh mirrors the bus manager: a running session bus is replaced,
// an absent one stays absent.
func (h *simHost) EnsureFresh(ctx context.Context) (int, error) {
	existing := h.Find(proc.Filter{Name: "dbus-daemon", Exact: true, Args: "--session"})
	if len(existing) == 0 {
		return 0, nil
	}
	h.Terminate(existing, true)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.busStart++
	return h.add("dbus-daemon", "--session --address=unix:runtime=yes", forever), nil
}

func (h *simHost) sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	alive := h.procs[:0]
	for _, p := range h.procs {
		if p.dying {
			continue
		}
		if p.ttl > 0 {
			p.ttl--
			if p.ttl == 0 {
				continue
			}
		}
		alive = append(alive, p)
	}
	h.procs = alive
	return nil
}

func (h *simHost) count(name string) int {
	return len(h.Find(proc.Filter{Name: name, Exact: true}))
}
