package logging

import (
	"fmt"
	"strings"
	"sync"
)

// Entry is a single line captured by a Recorder.
type Entry struct {
	Severity Severity
	Message  string
	Keyvals  []any
}

// String renders the entry in logfmt-like form for assertions.
func (e Entry) String() string {
	var b strings.Builder
	b.WriteString(e.Message)
	for i := 0; i+1 < len(e.Keyvals); i += 2 {
		fmt.Fprintf(&b, " %v=%v", e.Keyvals[i], e.Keyvals[i+1])
	}
	return b.String()
}

// Recorder keeps every logged line in memory. It is safe for concurrent use
// since output forwarders log from their own goroutines.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
}

// Log implements Logger.
func (r *Recorder) Log(sev Severity, msg string, keyvals ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, Entry{Severity: sev, Message: msg, Keyvals: append([]any(nil), keyvals...)})
}

// Entries returns a snapshot of the recorded lines.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Entry(nil), r.entries...)
}

// Filter returns the recorded lines with the given severity.
func (r *Recorder) Filter(sev Severity) []Entry {
	var out []Entry
	for _, e := range r.Entries() {
		if e.Severity == sev {
			out = append(out, e)
		}
	}
	return out
}

// Contains reports whether any line with the given severity contains substr.
func (r *Recorder) Contains(sev Severity, substr string) bool {
	for _, e := range r.Filter(sev) {
		if strings.Contains(e.String(), substr) {
			return true
		}
	}
	return false
}

// Discard drops every line.
type Discard struct{}

// Log implements Logger.
func (Discard) Log(Severity, string, ...any) {}
