package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const lockFileName = "portal-reset.lock"

// Validate reports every inconsistency found in the configuration.
func (c Config) Validate() error {
	var errs []error
	for _, d := range []struct {
		field string
		spec  DaemonSpec
	}{{"primary", c.Primary}, {"fallback", c.Fallback}} {
		if strings.TrimSpace(d.spec.Path) == "" {
			errs = append(errs, fmt.Errorf("%s.path must not be empty", d.field))
		} else if !filepath.IsAbs(d.spec.Path) {
			errs = append(errs, fmt.Errorf("%s.path %q must be absolute", d.field, d.spec.Path))
		}
		if strings.TrimSpace(d.spec.Match) == "" {
			errs = append(errs, fmt.Errorf("%s.match must not be empty", d.field))
		}
	}
	if strings.TrimSpace(c.PortalPattern) == "" {
		errs = append(errs, errors.New("portalPattern must not be empty"))
	}
	if strings.TrimSpace(c.Bus.Command) == "" {
		errs = append(errs, errors.New("bus.command must not be empty"))
	}
	if err := c.Verify.validate("verify"); err != nil {
		errs = append(errs, err)
	}
	if err := c.BusShutdown.validate("busShutdown"); err != nil {
		errs = append(errs, err)
	}
	if c.PrimaryAttempts <= 0 {
		errs = append(errs, fmt.Errorf("primaryAttempts must be positive, got %d", c.PrimaryAttempts))
	}
	if c.FallbackAttempts <= 0 {
		errs = append(errs, fmt.Errorf("fallbackAttempts must be positive, got %d", c.FallbackAttempts))
	}
	delays := []struct {
		field string
		value time.Duration
	}{
		{"initialDelay", c.InitialDelay},
		{"killGrace", c.KillGrace},
		{"cleanupDelay", c.CleanupDelay},
		{"busSettle", c.BusSettle},
		{"primarySettle", c.PrimarySettle},
	}
	for _, d := range delays {
		if d.value < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative", d.field))
		}
	}
	return errors.Join(errs...)
}

func (p Poll) validate(field string) error {
	if p.Count <= 0 {
		return fmt.Errorf("%s.count must be positive, got %d", field, p.Count)
	}
	if p.Interval < 0 {
		return fmt.Errorf("%s.interval must not be negative", field)
	}
	return nil
}

// DefaultLockPath places the single-run lock in the user's runtime directory,
// falling back to the temp directory when XDG_RUNTIME_DIR is unset.
func DefaultLockPath() string {
	dir := os.Getenv("XDG_RUNTIME_DIR")
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, lockFileName)
}
