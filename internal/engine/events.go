package engine

import "time"

// State is a step of the per-daemon startup state machine.
type State string

const (
	StateLaunching State = "launching"
	StatePolling   State = "polling"
	StateVerified  State = "verified"
	StateFailed    State = "failed"
)

// Event records a state transition of a supervised start.
type Event struct {
	Timestamp time.Time
	Daemon    string
	State     State
	Attempt   int
	Reason    string
}

func sendEvent(events chan<- Event, daemon string, state State, attempt int, reason string) {
	if events == nil {
		return
	}
	evt := Event{
		Timestamp: time.Now(),
		Daemon:    daemon,
		State:     state,
		Attempt:   attempt,
		Reason:    reason,
	}
	select {
	case events <- evt:
	default:
	}
}
