package probe

import (
	"context"

	"github.com/Paintersrp/portalreset/internal/config"
	"github.com/Paintersrp/portalreset/internal/proc"
)

// Result summarises a verification run.
type Result struct {
	Status Status
	// Polls is the number of polls performed before the run stopped.
	Polls  int
	Reason string
}

// Runner polls a policy a fixed number of times at a fixed interval.
type Runner struct {
	find  proc.Finder
	poll  config.Poll
	sleep proc.SleepFunc
}

// NewRunner constructs a runner querying find according to poll.
func NewRunner(find proc.Finder, poll config.Poll) *Runner {
	return &Runner{find: find, poll: poll, sleep: proc.Sleep}
}

// WithSleep replaces the blocking sleep between polls.
func (r *Runner) WithSleep(sleep proc.SleepFunc) *Runner {
	if sleep != nil {
		r.sleep = sleep
	}
	return r
}

// Run sleeps for the poll interval before every evaluation. A policy that
// never stops the run yields StatusVerified after the last poll. The only
// error returned is the context's.
func (r *Runner) Run(ctx context.Context, policy Policy) (Result, error) {
	count := r.poll.Count
	if count <= 0 {
		count = 1
	}
	for i := 1; i <= count; i++ {
		if err := r.sleep(ctx, r.poll.Interval); err != nil {
			return Result{Status: StatusFailed, Polls: i - 1, Reason: err.Error()}, err
		}
		check := policy.Evaluate(r.find)
		switch check.Verdict {
		case Fail:
			return Result{Status: StatusFailed, Polls: i, Reason: check.Reason}, nil
		case Pass:
			return Result{Status: StatusDegraded, Polls: i, Reason: check.Reason}, nil
		}
	}
	return Result{Status: StatusVerified, Polls: count}, nil
}
