// Package logging renders the colored, leveled console lines shown to the user
// while a reset runs.
package logging

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// Severity classifies a console line.
type Severity int

const (
	Info Severity = iota
	Success
	Warning
	Error
	// Output marks a line forwarded from a supervised daemon.
	Output
	// Action marks a command the reset is about to run.
	Action
)

// Custom levels sit between info and warn so they are never filtered at the
// default level.
const (
	OutputLevel  = log.InfoLevel + 1
	ActionLevel  = log.InfoLevel + 2
	SuccessLevel = log.InfoLevel + 3
)

const timeFormat = "15:04:05.000"

func (s Severity) String() string {
	switch s {
	case Info:
		return "info"
	case Success:
		return "success"
	case Warning:
		return "warning"
	case Error:
		return "error"
	case Output:
		return "output"
	case Action:
		return "action"
	default:
		return "unknown"
	}
}

func (s Severity) level() log.Level {
	switch s {
	case Success:
		return SuccessLevel
	case Warning:
		return log.WarnLevel
	case Error:
		return log.ErrorLevel
	case Output:
		return OutputLevel
	case Action:
		return ActionLevel
	default:
		return log.InfoLevel
	}
}

// Logger is the collaborator every component writes through. Implementations
// must not block for longer than trivial I/O.
type Logger interface {
	Log(sev Severity, msg string, keyvals ...any)
}

// Console writes styled lines to a terminal or plain lines elsewhere.
type Console struct {
	l *log.Logger
}

// New constructs a console logger writing to w.
func New(w io.Writer) *Console {
	l := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      timeFormat,
		Level:           log.InfoLevel,
	})
	l.SetStyles(styles())
	if !isTerminal(w) {
		l.SetColorProfile(termenv.Ascii)
	} else {
		l.SetColorProfile(termenv.EnvColorProfile())
	}
	return &Console{l: l}
}

// Default returns a console logger bound to stderr.
func Default() *Console {
	return New(os.Stderr)
}

// Log implements Logger.
func (c *Console) Log(sev Severity, msg string, keyvals ...any) {
	if c == nil || c.l == nil {
		return
	}
	c.l.Log(sev.level(), msg, keyvals...)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

func styles() *log.Styles {
	st := log.DefaultStyles()
	st.Timestamp = lipgloss.NewStyle().Faint(true)
	st.Levels = map[log.Level]lipgloss.Style{
		log.InfoLevel:  levelStyle("ℹ INFO", "12"),
		SuccessLevel:   levelStyle("✓ OK", "10"),
		log.WarnLevel:  levelStyle("⚠ WARN", "11"),
		log.ErrorLevel: levelStyle("✗ ERROR", "9"),
		OutputLevel:    levelStyle("→ LOG", "14"),
		ActionLevel:    levelStyle("⚡ RUN", "13"),
	}
	if st.Keys == nil {
		st.Keys = map[string]lipgloss.Style{}
	}
	if st.Values == nil {
		st.Values = map[string]lipgloss.Style{}
	}
	st.Keys["pid"] = lipgloss.NewStyle().Faint(true)
	st.Values["pid"] = lipgloss.NewStyle().Bold(true)
	return st
}

func levelStyle(label, color string) lipgloss.Style {
	return lipgloss.NewStyle().
		SetString(label).
		Bold(true).
		Foreground(lipgloss.Color(color))
}
