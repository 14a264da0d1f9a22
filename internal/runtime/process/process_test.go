package process

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	stdruntime "runtime"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/Paintersrp/portalreset/internal/config"
	"github.com/Paintersrp/portalreset/internal/logging"
)

func writeScript(t *testing.T, body string, mode os.FileMode) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "daemon.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), mode); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func waitDone(t *testing.T, h *Handle) {
	t.Helper()
	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s output to drain", h.Name())
	}
}

func outputLines(rec *logging.Recorder) []string {
	var out []string
	for _, e := range rec.Filter(logging.Output) {
		out = append(out, e.Message)
	}
	return out
}

func skipUnlessUnix(t *testing.T) {
	t.Helper()
	if stdruntime.GOOS == "windows" {
		t.Skip("process runtime tests skipped on windows")
	}
}

func TestLaunchForwardsCombinedOutputInOrder(t *testing.T) {
	skipUnlessUnix(t)
	script := writeScript(t, "echo \"args=$*\"\necho one\necho two >&2\necho three\n", 0o755)

	rec := &logging.Recorder{}
	l := NewLauncher(rec)
	h, err := l.Launch(context.Background(), config.DaemonSpec{Path: script, DisplayName: "Test portal", Args: []string{"-v"}})
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	if h == nil {
		t.Fatalf("expected a handle")
	}
	if h.PID() <= 0 {
		t.Fatalf("expected positive pid, got %d", h.PID())
	}

	waitDone(t, h)
	if err := h.Err(); err != nil {
		t.Fatalf("unexpected exit error: %v", err)
	}
	want := []string{
		"[Test portal] args=-v",
		"[Test portal] one",
		"[Test portal] two",
		"[Test portal] three",
	}
	got := outputLines(rec)
	if strings.Join(got, "\n") != strings.Join(want, "\n") {
		t.Fatalf("unexpected output:\nwant %q\ngot  %q", want, got)
	}
	if !rec.Contains(logging.Success, "Started Test portal pid="+strconv.Itoa(h.PID())) {
		t.Fatalf("missing start line: %v", rec.Entries())
	}
}

func TestSpawnForwardsOverlongLinesAndKeepsDraining(t *testing.T) {
	skipUnlessUnix(t)
	script := writeScript(t, "head -c 2000000 /dev/zero | tr '\\000' x\necho\necho alive\n", 0o755)

	rec := &logging.Recorder{}
	h, err := NewLauncher(rec).Spawn(context.Background(), "chatty", script)
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	waitDone(t, h)

	if err := h.Err(); err != nil {
		t.Fatalf("daemon must not die on a long line, got %v", err)
	}
	lines := outputLines(rec)
	if len(lines) != 2 {
		t.Fatalf("expected 2 output lines, got %d", len(lines))
	}
	if want := len("[chatty] ") + 2000000; len(lines[0]) != want {
		t.Fatalf("expected long line of %d bytes, got %d", want, len(lines[0]))
	}
	if lines[1] != "[chatty] alive" {
		t.Fatalf("expected trailing line to be forwarded, got %q", lines[1])
	}
}

func TestSpawnForwardsUnterminatedLastLine(t *testing.T) {
	skipUnlessUnix(t)
	script := writeScript(t, "printf 'first\\nlast'\n", 0o755)

	rec := &logging.Recorder{}
	h, err := NewLauncher(rec).Spawn(context.Background(), "partial", script)
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	waitDone(t, h)

	got := outputLines(rec)
	if len(got) != 2 || got[0] != "[partial] first" || got[1] != "[partial] last" {
		t.Fatalf("unexpected output %q", got)
	}
}

func TestSpawnStartsNewSession(t *testing.T) {
	if stdruntime.GOOS != "linux" {
		t.Skip("reads /proc")
	}
	script := writeScript(t, "set -- $(cat /proc/$$/stat)\necho \"pid=$1 sid=$6\"\n", 0o755)

	rec := &logging.Recorder{}
	h, err := NewLauncher(rec).Spawn(context.Background(), "session", script)
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	waitDone(t, h)

	lines := outputLines(rec)
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %q", lines)
	}
	pid := strconv.Itoa(h.PID())
	if want := "[session] pid=" + pid + " sid=" + pid; lines[0] != want {
		t.Fatalf("expected %q, got %q", want, lines[0])
	}
}

func TestLaunchMissingBinaryIsNoop(t *testing.T) {
	rec := &logging.Recorder{}
	h, err := NewLauncher(rec).Launch(context.Background(), config.DaemonSpec{
		Path:        filepath.Join(t.TempDir(), "absent"),
		DisplayName: "Absent portal",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h != nil {
		t.Fatalf("expected nil handle")
	}
	if !rec.Contains(logging.Error, "Portal binary not found") {
		t.Fatalf("missing error line: %v", rec.Entries())
	}
	if n := len(rec.Filter(logging.Success)); n != 0 {
		t.Fatalf("expected no success lines, got %d", n)
	}
}

func TestLaunchExecFailureIsNotFatal(t *testing.T) {
	skipUnlessUnix(t)
	script := writeScript(t, "echo never\n", 0o644)

	rec := &logging.Recorder{}
	h, err := NewLauncher(rec).Launch(context.Background(), config.DaemonSpec{Path: script, DisplayName: "Broken portal"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h != nil {
		t.Fatalf("expected nil handle")
	}
	if !rec.Contains(logging.Error, "Failed to execute Broken portal") {
		t.Fatalf("missing error line: %v", rec.Entries())
	}
}

func TestSpawnReportsExecStage(t *testing.T) {
	_, err := NewLauncher(nil).Spawn(context.Background(), "ghost", "definitely-not-a-real-command-portalreset")
	if err == nil {
		t.Fatalf("expected error")
	}

	var startErr *StartError
	if !errors.As(err, &startErr) {
		t.Fatalf("expected StartError, got %T", err)
	}
	if startErr.Stage != StageExec {
		t.Fatalf("expected exec stage, got %s", startErr.Stage)
	}
	if startErr.Fatal() {
		t.Fatalf("exec stage failures must not be fatal")
	}
	if !strings.HasPrefix(err.Error(), "start ghost (exec)") {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestSpawnHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewLauncher(nil).Spawn(ctx, "never", "/bin/true"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestExitStatusIsReported(t *testing.T) {
	skipUnlessUnix(t)
	script := writeScript(t, "echo bye\nexit 3\n", 0o755)

	rec := &logging.Recorder{}
	h, err := NewLauncher(rec).Spawn(context.Background(), "quitter", script)
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	waitDone(t, h)

	if h.Err() == nil {
		t.Fatalf("expected exit error")
	}
	if !rec.Contains(logging.Warning, "quitter exited") {
		t.Fatalf("missing exit warning: %v", rec.Entries())
	}
}

func TestLineQueuePreservesOrderAfterClose(t *testing.T) {
	q := newLineQueue()
	for i := 0; i < 1000; i++ {
		q.push(strconv.Itoa(i))
	}
	q.close()

	for i := 0; i < 1000; i++ {
		line, ok := q.pop()
		if !ok || line != strconv.Itoa(i) {
			t.Fatalf("pop %d: got %q ok=%v", i, line, ok)
		}
	}
	if _, ok := q.pop(); ok {
		t.Fatalf("expected closed queue to be empty")
	}
}

func TestLineQueueBlocksUntilPush(t *testing.T) {
	q := newLineQueue()
	got := make(chan string, 1)
	go func() {
		line, _ := q.pop()
		got <- line
	}()

	select {
	case <-got:
		t.Fatal("pop returned before push")
	case <-time.After(20 * time.Millisecond):
	}
	q.push("late")
	select {
	case line := <-got:
		if line != "late" {
			t.Fatalf("expected late, got %q", line)
		}
	case <-time.After(time.Second):
		t.Fatal("pop did not observe push")
	}
}
