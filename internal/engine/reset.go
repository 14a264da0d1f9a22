package engine

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/Paintersrp/portalreset/internal/config"
	"github.com/Paintersrp/portalreset/internal/logging"
	"github.com/Paintersrp/portalreset/internal/probe"
	"github.com/Paintersrp/portalreset/internal/proc"
)

// BusRefresher replaces the session bus.
type BusRefresher interface {
	EnsureFresh(ctx context.Context) (int, error)
}

// Outcome summarises a reset run.
type Outcome string

const (
	OutcomeCompleted         Outcome = "completed"
	OutcomeCompletedWithErrs Outcome = "completed-with-errors"
	OutcomeRetriesExhausted  Outcome = "retries-exhausted"
)

// Deps are the collaborators of a reset run.
type Deps struct {
	Finder    proc.Finder
	Signaller proc.Signaller
	Launcher  Launcher
	Bus       BusRefresher
	Log       logging.Logger
	Events    chan<- Event
}

// Reset performs one full portal reset: stale portals are stopped, the
// session bus is replaced and both portals are started and verified.
type Reset struct {
	cfg  config.Config
	find proc.Finder
	sig  proc.Signaller
	bus  BusRefresher
	log  logging.Logger
	sup  *Supervisor

	sleep  proc.SleepFunc
	exists func(path string) bool
}

// NewReset wires a reset run.
func NewReset(cfg config.Config, deps Deps) *Reset {
	log := deps.Log
	if log == nil {
		log = logging.Discard{}
	}
	r := &Reset{
		cfg:    cfg,
		find:   deps.Finder,
		sig:    deps.Signaller,
		bus:    deps.Bus,
		log:    log,
		sleep:  proc.Sleep,
		exists: fileExists,
	}
	r.sup = NewSupervisor(deps.Launcher, VerifierFunc(r.verify), log, deps.Events)
	return r
}

func (r *Reset) verify(ctx context.Context, policy probe.Policy) (probe.Result, error) {
	return probe.NewRunner(r.find, r.cfg.Verify).WithSleep(r.sleep).Run(ctx, policy)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// PortalFilter matches every portal daemon.
func (r *Reset) PortalFilter() proc.Filter {
	return proc.Filter{Name: r.cfg.PortalPattern, Deep: true}
}

// Run executes the reset. Verification failures and exhausted retries are
// reported through the outcome; an error is returned only when a process
// could not be set up or ctx ended.
func (r *Reset) Run(ctx context.Context) (Outcome, error) {
	r.log.Log(logging.Info, "Portal reset started")
	r.checkBinaries()

	if err := r.sleep(ctx, r.cfg.InitialDelay); err != nil {
		return OutcomeCompletedWithErrs, err
	}
	if n := r.stopPortals(ctx); n > 0 {
		if err := r.sleep(ctx, r.cfg.CleanupDelay); err != nil {
			return OutcomeCompletedWithErrs, err
		}
	}
	if _, err := r.bus.EnsureFresh(ctx); err != nil {
		return OutcomeCompletedWithErrs, err
	}

	primary := r.cfg.Primary
	_, err := r.sup.Start(ctx, Stage{
		Spec:        primary,
		Policy:      probe.Presence{Filter: proc.Filter{Name: primary.Match, Deep: true}},
		MaxAttempts: r.cfg.PrimaryAttempts,
		Recover:     r.recoverPrimary,
	})
	if errors.Is(err, ErrRetriesExhausted) {
		r.log.Log(logging.Error, "Failed to start "+primary.DisplayName+" after multiple attempts")
		return OutcomeRetriesExhausted, nil
	}
	if err != nil {
		return OutcomeCompletedWithErrs, err
	}

	if err := r.sleep(ctx, r.cfg.PrimarySettle); err != nil {
		return OutcomeCompletedWithErrs, err
	}

	fallback := r.cfg.Fallback
	res, err := r.sup.Start(ctx, Stage{
		Spec: fallback,
		Policy: probe.ExactName{
			Filter:       r.PortalFilter(),
			Name:         fallback.Match,
			Fallback:     r.PortalFilter(),
			FallbackName: primary.Match,
		},
		MaxAttempts: r.cfg.FallbackAttempts,
	})
	if err != nil && !errors.Is(err, ErrRetriesExhausted) {
		return OutcomeCompletedWithErrs, err
	}

	switch res.Status {
	case probe.StatusVerified:
		r.log.Log(logging.Success, "Portal reset completed successfully")
		return OutcomeCompleted, nil
	case probe.StatusDegraded:
		r.log.Log(logging.Warning, fallback.DisplayName+" failed to start, checking "+primary.DisplayName+"...")
		r.log.Log(logging.Info, primary.DisplayName+" still running, continuing...")
		r.log.Log(logging.Success, "Portal reset completed successfully")
		return OutcomeCompleted, nil
	default:
		r.log.Log(logging.Warning, fallback.DisplayName+" failed to start", "reason", res.Reason)
		r.log.Log(logging.Error, "Portal reset completed with errors")
		return OutcomeCompletedWithErrs, nil
	}
}

func (r *Reset) checkBinaries() {
	for _, spec := range r.cfg.Portals() {
		if r.exists(spec.Path) {
			r.log.Log(logging.Success, "Found "+spec.DisplayName+" at "+spec.Path)
		} else {
			r.log.Log(logging.Error, spec.DisplayName+" not found at "+spec.Path)
		}
	}
}

// stopPortals terminates every running portal, killing those that ignore
// SIGTERM, and returns the number of graceful deliveries.
func (r *Reset) stopPortals(ctx context.Context) int {
	r.log.Log(logging.Info, "Looking for portal processes...")
	filter := r.PortalFilter()
	records := r.find.Find(filter)
	if len(records) == 0 {
		r.log.Log(logging.Info, "No portal processes found")
		return 0
	}
	r.log.Log(logging.Info, fmt.Sprintf("Found %d portal process(es)", len(records)))
	for _, rec := range records {
		r.log.Log(logging.Info, "  "+rec.Name, "pid", rec.PID)
	}

	n := proc.Escalate(ctx, r.find, r.sig, filter, records, proc.Escalation{
		Polls:    1,
		Interval: r.cfg.KillGrace,
	}, r.sleep)
	if n > 0 {
		r.log.Log(logging.Success, fmt.Sprintf("Successfully terminated %d portal process(es)", n))
	}
	return n
}

func (r *Reset) recoverPrimary(ctx context.Context) error {
	if n := r.stopPortals(ctx); n > 0 {
		if err := r.sleep(ctx, r.cfg.CleanupDelay); err != nil {
			return err
		}
	}
	_, err := r.bus.EnsureFresh(ctx)
	return err
}
