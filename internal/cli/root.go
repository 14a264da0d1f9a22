package cli

import (
	stdcontext "context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Paintersrp/portalreset/internal/bus"
	"github.com/Paintersrp/portalreset/internal/config"
	"github.com/Paintersrp/portalreset/internal/engine"
	"github.com/Paintersrp/portalreset/internal/lock"
	"github.com/Paintersrp/portalreset/internal/logging"
	"github.com/Paintersrp/portalreset/internal/metrics"
	"github.com/Paintersrp/portalreset/internal/proc"
	"github.com/Paintersrp/portalreset/internal/runtime/process"
)

type runner interface {
	Run(ctx stdcontext.Context) (engine.Outcome, error)
}

func NewRootCmd() *cobra.Command {
	root, _ := newRootCommand(config.Default(), logging.Default())
	return root
}

func newRootCommand(cfg config.Config, log logging.Logger) (*cobra.Command, *context) {
	ctx := &context{cfg: cfg, log: log, newRunner: newReset}

	root := &cobra.Command{
		Use:   "portal-reset",
		Short: "Restart the desktop portal daemons of the current session",
		Long: "portal-reset stops running xdg-desktop-portal daemons, replaces the " +
			"session D-Bus daemon and starts the portals again, verifying that each one stays up.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.run(cmd.Context())
		},
	}

	root.SilenceUsage = true
	root.SilenceErrors = true

	return root, ctx
}

// Execute runs the CLI entrypoint. No signal handlers are installed; an
// interrupted reset leaves whatever it already started running.
func Execute() {
	root := NewRootCmd()
	if err := root.ExecuteContext(stdcontext.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type context struct {
	cfg       config.Config
	log       logging.Logger
	newRunner func(cfg config.Config, log logging.Logger, events chan<- engine.Event) runner
}

func (c *context) run(ctx stdcontext.Context) error {
	if ctx == nil {
		ctx = stdcontext.Background()
	}
	if err := c.cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	release, err := lock.Acquire(c.cfg.LockPath)
	switch {
	case errors.Is(err, lock.ErrLocked):
		c.log.Log(logging.Warning, "Portal reset already in progress, skipping", "lock", c.cfg.LockPath)
		return nil
	case err != nil:
		c.log.Log(logging.Warning, "Running without the single-run lock", "err", err)
	default:
		defer release()
	}

	// Every attempt emits at most launching, polling and a verdict.
	events := make(chan engine.Event, 3*(c.cfg.PrimaryAttempts+c.cfg.FallbackAttempts))
	outcome, err := c.newRunner(c.cfg, c.log, events).Run(ctx)
	close(events)

	var history []engine.Event
	for evt := range events {
		history = append(history, evt)
	}
	c.logSummary(outcome, history)
	return err
}

func (c *context) logSummary(outcome engine.Outcome, history []engine.Event) {
	if info, err := metrics.BuildInfo(); err == nil && len(info) > 0 {
		c.log.Log(logging.Info, "portal-reset build",
			"go", info["go_version"], "revision", info["vcs_revision"], "modified", info["vcs_modified"])
	}
	c.log.Log(logging.Info, "Run summary", "outcome", outcome)
	for _, evt := range history {
		if evt.State != engine.StateVerified && evt.State != engine.StateFailed {
			continue
		}
		line := fmt.Sprintf("  %s attempt %d: %s", evt.Daemon, evt.Attempt, evt.State)
		if evt.Reason != "" {
			line += " (" + evt.Reason + ")"
		}
		c.log.Log(logging.Info, line)
	}

	lines, err := metrics.Summary()
	if err != nil {
		c.log.Log(logging.Warning, "Failed to gather run metrics", "err", err)
		return
	}
	for _, line := range lines {
		c.log.Log(logging.Info, "  "+line)
	}
}

func newReset(cfg config.Config, log logging.Logger, events chan<- engine.Event) runner {
	scanner := proc.NewScanner()
	terminator := proc.NewTerminator(log)
	launcher := process.NewLauncher(log)

	return engine.NewReset(cfg, engine.Deps{
		Finder:    scanner,
		Signaller: terminator,
		Launcher:  launcher,
		Bus:       bus.NewManager(cfg, scanner, terminator, launcher, log),
		Log:       log,
		Events:    events,
	})
}
