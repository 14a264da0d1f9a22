package proc

import (
	"context"
	"time"

	"golang.org/x/sys/unix"

	"github.com/Paintersrp/portalreset/internal/logging"
	"github.com/Paintersrp/portalreset/internal/metrics"
)

// Signaller delivers termination requests.
type Signaller interface {
	Terminate(records []Record, force bool) int
}

// Terminator signals processes with SIGTERM or SIGKILL.
type Terminator struct {
	log  logging.Logger
	kill func(pid int, sig unix.Signal) error
}

// NewTerminator constructs a terminator that reports every delivery to log.
func NewTerminator(log logging.Logger) *Terminator {
	if log == nil {
		log = logging.Discard{}
	}
	return &Terminator{log: log, kill: unix.Kill}
}

// Terminate sends one signal to each record and returns how many deliveries
// succeeded. Failed deliveries, usually processes that already exited, are not
// retried; escalation is up to the caller.
func (t *Terminator) Terminate(records []Record, force bool) int {
	sig := unix.SIGTERM
	if force {
		sig = unix.SIGKILL
	}
	name := unix.SignalName(sig)

	delivered := 0
	for _, rec := range records {
		t.log.Log(logging.Warning, "Sending "+name+" to "+rec.Name, "pid", rec.PID)
		if err := t.kill(rec.PID, sig); err != nil {
			continue
		}
		metrics.IncrementSignal(name)
		delivered++
	}
	return delivered
}

// Escalation bounds the wait between a graceful request and a forced kill.
type Escalation struct {
	Polls    int
	Interval time.Duration
}

// Escalate gracefully terminates records, then polls up to esc.Polls times for
// processes matching f. Whatever is still running afterwards is killed. The
// graceful delivery count is returned.
func Escalate(ctx context.Context, find Finder, sig Signaller, f Filter, records []Record, esc Escalation, sleep SleepFunc) int {
	if len(records) == 0 {
		return 0
	}
	if sleep == nil {
		sleep = Sleep
	}
	delivered := sig.Terminate(records, false)

	remaining := records
	for i := 0; i < esc.Polls; i++ {
		if err := sleep(ctx, esc.Interval); err != nil {
			return delivered
		}
		remaining = find.Find(f)
		if len(remaining) == 0 {
			return delivered
		}
	}
	if esc.Polls <= 0 {
		remaining = find.Find(f)
	}
	if len(remaining) > 0 {
		sig.Terminate(remaining, true)
	}
	return delivered
}
