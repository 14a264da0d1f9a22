// Package bus keeps the user's session message bus fresh.
package bus

import (
	"context"
	"strings"
	"time"

	"github.com/Paintersrp/portalreset/internal/config"
	"github.com/Paintersrp/portalreset/internal/logging"
	"github.com/Paintersrp/portalreset/internal/proc"
	"github.com/Paintersrp/portalreset/internal/runtime/process"
)

const displayName = "DBus"

// SpawnFunc starts command detached and returns its pid.
type SpawnFunc func(ctx context.Context, name, command string, args ...string) (int, error)

// Manager stops stale session bus instances and starts a new one.
type Manager struct {
	spec     config.BusSpec
	shutdown config.Poll
	settle   time.Duration

	find  proc.Finder
	sig   proc.Signaller
	log   logging.Logger
	spawn SpawnFunc
	sleep proc.SleepFunc
}

// NewManager wires a manager from the run configuration.
func NewManager(cfg config.Config, find proc.Finder, sig proc.Signaller, launcher *process.Launcher, log logging.Logger) *Manager {
	if log == nil {
		log = logging.Discard{}
	}
	return &Manager{
		spec:     cfg.Bus,
		shutdown: cfg.BusShutdown,
		settle:   cfg.BusSettle,
		find:     find,
		sig:      sig,
		log:      log,
		spawn:    launcherSpawn(launcher),
		sleep:    proc.Sleep,
	}
}

func launcherSpawn(l *process.Launcher) SpawnFunc {
	return func(ctx context.Context, name, command string, args ...string) (int, error) {
		h, err := l.Spawn(ctx, name, command, args...)
		if err != nil {
			return 0, err
		}
		return h.PID(), nil
	}
}

// Filter selects session bus daemons: the command name must equal the bus
// command exactly and the arguments must carry the session marker.
func (m *Manager) Filter() proc.Filter {
	return proc.Filter{Name: m.spec.Command, Exact: true, Args: m.spec.SessionArg}
}

// EnsureFresh replaces any running session bus with a new instance. When no
// bus matches, nothing is started: the session may be served by another
// implementation that owns the bus socket. Failing to start the bus is logged
// and otherwise ignored; the returned pid is zero in that case. Only context
// errors are returned.
func (m *Manager) EnsureFresh(ctx context.Context) (int, error) {
	m.log.Log(logging.Info, "Checking DBus session...")

	filter := m.Filter()
	existing := m.find.Find(filter)
	if len(existing) == 0 {
		m.log.Log(logging.Info, "No DBus session daemon found, leaving the bus alone")
		return 0, nil
	}

	m.log.Log(logging.Warning, "Restarting DBus session...")
	proc.Escalate(ctx, m.find, m.sig, filter, existing, proc.Escalation{
		Polls:    m.shutdown.Count,
		Interval: m.shutdown.Interval,
	}, m.sleep)
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.log.Log(logging.Action, strings.Join(append([]string{m.spec.Command}, m.spec.Args...), " "))
	pid, err := m.spawn(ctx, displayName, m.spec.Command, m.spec.Args...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, ctxErr
		}
		m.log.Log(logging.Error, "Failed to start new DBus session", "err", err)
		return 0, nil
	}

	if err := m.sleep(ctx, m.settle); err != nil {
		return pid, err
	}
	m.log.Log(logging.Success, "Started new DBus session", "pid", pid)
	return pid, nil
}
