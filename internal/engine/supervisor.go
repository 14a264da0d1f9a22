package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/Paintersrp/portalreset/internal/config"
	"github.com/Paintersrp/portalreset/internal/logging"
	"github.com/Paintersrp/portalreset/internal/metrics"
	"github.com/Paintersrp/portalreset/internal/probe"
	"github.com/Paintersrp/portalreset/internal/runtime/process"
)

// ErrRetriesExhausted is returned once a stage used up its launch attempts.
var ErrRetriesExhausted = errors.New("retries exhausted")

// Launcher starts a daemon. A nil handle with a nil error means nothing was
// started; verification reports the failure.
type Launcher interface {
	Launch(ctx context.Context, spec config.DaemonSpec) (*process.Handle, error)
}

// Verifier polls a policy until it settles.
type Verifier interface {
	Run(ctx context.Context, policy probe.Policy) (probe.Result, error)
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(ctx context.Context, policy probe.Policy) (probe.Result, error)

// Run implements Verifier.
func (f VerifierFunc) Run(ctx context.Context, policy probe.Policy) (probe.Result, error) {
	return f(ctx, policy)
}

// Stage describes one supervised start.
type Stage struct {
	Spec        config.DaemonSpec
	Policy      probe.Policy
	MaxAttempts int
	// Recover runs after a failed attempt when another attempt follows.
	Recover func(ctx context.Context) error
}

// RetryState tracks the attempts of a single stage.
type RetryState struct {
	Attempt     int
	MaxAttempts int
}

// Exhausted reports whether no attempt is left.
func (r RetryState) Exhausted() bool {
	return r.Attempt >= r.MaxAttempts
}

// Supervisor drives a stage through launching, polling and retrying.
type Supervisor struct {
	launcher Launcher
	verifier Verifier
	log      logging.Logger
	events   chan<- Event
}

// NewSupervisor constructs a supervisor. events may be nil.
func NewSupervisor(launcher Launcher, verifier Verifier, log logging.Logger, events chan<- Event) *Supervisor {
	if log == nil {
		log = logging.Discard{}
	}
	return &Supervisor{launcher: launcher, verifier: verifier, log: log, events: events}
}

// Start launches the stage's daemon and verifies it, relaunching after
// Recover until the policy succeeds or MaxAttempts launches have failed.
// ErrRetriesExhausted is returned in the latter case; any other error comes
// from the launcher's process setup or the context.
func (s *Supervisor) Start(ctx context.Context, stage Stage) (probe.Result, error) {
	name := stage.Spec.DisplayName
	retry := RetryState{MaxAttempts: stage.MaxAttempts}
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = 1
	}

	for {
		attempt := retry.Attempt + 1
		sendEvent(s.events, name, StateLaunching, attempt, "")
		if _, err := s.launcher.Launch(ctx, stage.Spec); err != nil {
			return probe.Result{Status: probe.StatusFailed, Reason: err.Error()}, fmt.Errorf("launch %s: %w", name, err)
		}

		s.log.Log(logging.Info, "Waiting for "+name+" to initialize...")
		sendEvent(s.events, name, StatePolling, attempt, "")
		res, err := s.verifier.Run(ctx, stage.Policy)
		if err != nil {
			return res, err
		}
		if res.Status.Succeeded() {
			metrics.ObserveVerification(name, string(res.Status))
			sendEvent(s.events, name, StateVerified, attempt, res.Reason)
			return res, nil
		}

		metrics.ObserveVerification(name, string(res.Status))
		sendEvent(s.events, name, StateFailed, attempt, res.Reason)
		retry.Attempt++
		if retry.Exhausted() {
			return res, ErrRetriesExhausted
		}

		s.log.Log(logging.Warning, fmt.Sprintf("%s failed to start, retrying (%d/%d)", name, retry.Attempt, retry.MaxAttempts))
		if stage.Recover != nil {
			if err := stage.Recover(ctx); err != nil {
				return res, err
			}
		}
	}
}
