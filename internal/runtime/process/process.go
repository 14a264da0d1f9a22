package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"github.com/Paintersrp/portalreset/internal/config"
	"github.com/Paintersrp/portalreset/internal/logging"
	"github.com/Paintersrp/portalreset/internal/metrics"
)

// Stage names the step of a spawn that failed.
type Stage string

const (
	StagePipe Stage = "pipe"
	StageFork Stage = "fork"
	StageExec Stage = "exec"
)

// StartError reports a failed spawn.
type StartError struct {
	Name  string
	Stage Stage
	Err   error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("start %s (%s): %v", e.Name, e.Stage, e.Err)
}

func (e *StartError) Unwrap() error { return e.Err }

// Fatal reports whether the failure happened in the parent, before a child
// existed. Exec failures only affect the would-be child.
func (e *StartError) Fatal() bool {
	return e.Stage != StageExec
}

// Launcher spawns detached daemons and captures their output.
type Launcher struct {
	log    logging.Logger
	exists func(path string) bool
}

// NewLauncher constructs a launcher logging through log.
func NewLauncher(log logging.Logger) *Launcher {
	if log == nil {
		log = logging.Discard{}
	}
	return &Launcher{log: log, exists: fileExists}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Launch starts the daemon described by spec. A missing binary or a binary
// that cannot be executed is logged and yields a nil handle with a nil error;
// callers notice through verification. Only failures to create the pipe or the
// process itself are returned.
func (l *Launcher) Launch(ctx context.Context, spec config.DaemonSpec) (*Handle, error) {
	if !l.exists(spec.Path) {
		l.log.Log(logging.Error, "Portal binary not found: "+spec.Path)
		return nil, nil
	}
	l.log.Log(logging.Info, "Starting "+spec.DisplayName+"...")

	h, err := l.Spawn(ctx, spec.DisplayName, spec.Path, spec.Args...)
	if err != nil {
		var startErr *StartError
		if errors.As(err, &startErr) && !startErr.Fatal() {
			l.log.Log(logging.Error, "Failed to execute "+spec.DisplayName, "err", startErr.Err)
			return nil, nil
		}
		return nil, err
	}
	l.log.Log(logging.Success, "Started "+spec.DisplayName, "pid", h.pid)
	return h, nil
}

// Spawn starts command in a new session with stdout and stderr captured. The
// command is resolved through PATH when it contains no slash.
func (l *Launcher) Spawn(ctx context.Context, name, command string, args ...string) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	metrics.IncrementLaunch(name)

	r, w, err := os.Pipe()
	if err != nil {
		return nil, &StartError{Name: name, Stage: StagePipe, Err: err}
	}

	// Not CommandContext: the daemon must outlive the reset.
	cmd := exec.Command(command, args...)
	cmd.Stdout = w
	cmd.Stderr = w
	configureCmdSysProcAttr(cmd)

	if err := cmd.Start(); err != nil {
		_ = r.Close()
		_ = w.Close()
		return nil, &StartError{Name: name, Stage: classifyStart(err), Err: err}
	}
	_ = w.Close()

	h := &Handle{
		name: name,
		pid:  cmd.Process.Pid,
		done: make(chan struct{}),
	}
	lines := newLineQueue()
	go h.read(r, cmd, lines)
	go h.forward(l.log, lines)
	return h, nil
}

// classifyStart separates resource exhaustion in the parent from exec-stage
// failures of the child.
func classifyStart(err error) Stage {
	if errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.ENOMEM) {
		return StageFork
	}
	return StageExec
}

// Handle is a spawned, detached child.
type Handle struct {
	name string
	pid  int

	done    chan struct{}
	waitErr error
}

// Name returns the display name the handle was launched with.
func (h *Handle) Name() string { return h.name }

// PID returns the child's process id.
func (h *Handle) PID() int { return h.pid }

// Done is closed once the child released its output, was reaped and every
// captured line has been forwarded.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Err returns the child's exit error. It is only meaningful after Done.
func (h *Handle) Err() error { return h.waitErr }

func (h *Handle) read(r io.ReadCloser, cmd *exec.Cmd, lines *lineQueue) {
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			lines.push(strings.TrimRight(line, "\r\n"))
		}
		if err != nil {
			break
		}
	}
	_ = r.Close()
	// Reap so an exited daemon does not linger in the process table.
	h.waitErr = cmd.Wait()
	lines.close()
}

func (h *Handle) forward(log logging.Logger, lines *lineQueue) {
	defer close(h.done)
	for {
		line, ok := lines.pop()
		if !ok {
			break
		}
		log.Log(logging.Output, "["+h.name+"] "+line)
	}
	if h.waitErr != nil {
		log.Log(logging.Warning, h.name+" exited", "pid", h.pid, "err", h.waitErr)
	}
}
