// Package probe decides whether a freshly launched daemon came up.
//
// The supervised daemons expose no readiness protocol and a healthy daemon
// never exits, so success is inferred from continued presence in the process
// table across a fixed number of polls.
package probe

import (
	"fmt"

	"github.com/Paintersrp/portalreset/internal/proc"
)

// Status is the outcome of a verification run.
type Status string

const (
	// StatusVerified means the daemon stayed present for every poll.
	StatusVerified Status = "verified"
	// StatusDegraded means the daemon itself was not seen but its fallback
	// was, which is accepted as success.
	StatusDegraded Status = "degraded"
	// StatusFailed means the daemon disappeared or never appeared.
	StatusFailed Status = "failed"
)

// Succeeded reports whether the status counts as a successful start.
func (s Status) Succeeded() bool {
	return s == StatusVerified || s == StatusDegraded
}

// Verdict is the decision a policy takes on a single poll.
type Verdict int

const (
	// Continue keeps polling.
	Continue Verdict = iota
	// Pass stops polling with a degraded success.
	Pass
	// Fail stops polling with a failure.
	Fail
)

// Check is a policy's evaluation of one poll.
type Check struct {
	Verdict Verdict
	Reason  string
}

// Policy evaluates a process-table snapshot for one daemon.
type Policy interface {
	Evaluate(find proc.Finder) Check
}

// Presence passes a poll while at least one process matches Filter and fails
// the moment none does.
type Presence struct {
	Filter proc.Filter
}

// Evaluate implements Policy.
func (p Presence) Evaluate(find proc.Finder) Check {
	if len(find.Find(p.Filter)) == 0 {
		return Check{Verdict: Fail, Reason: fmt.Sprintf("no process matching %q", p.Filter.Name)}
	}
	return Check{Verdict: Continue}
}

// ExactName passes a poll while a process named exactly Name matches Filter.
// At the first poll where it does not, a process named FallbackName matching
// Fallback turns the run into a degraded success; otherwise it fails.
type ExactName struct {
	Filter       proc.Filter
	Name         string
	Fallback     proc.Filter
	FallbackName string
}

// Evaluate implements Policy.
func (p ExactName) Evaluate(find proc.Finder) Check {
	if hasName(find.Find(p.Filter), p.Name) {
		return Check{Verdict: Continue}
	}
	if p.FallbackName != "" && hasName(find.Find(p.Fallback), p.FallbackName) {
		return Check{Verdict: Pass, Reason: fmt.Sprintf("%s missing, %s still running", p.Name, p.FallbackName)}
	}
	return Check{Verdict: Fail, Reason: fmt.Sprintf("%s missing", p.Name)}
}

func hasName(records []proc.Record, name string) bool {
	for _, r := range records {
		if r.Name == name {
			return true
		}
	}
	return false
}

var (
	_ Policy = Presence{}
	_ Policy = ExactName{}
)
