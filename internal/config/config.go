// Package config holds the immutable settings for a portal reset run.
//
// There is no configuration file: Default returns the only supported
// configuration and callers pass the value explicitly into every component.
package config

import "time"

// DaemonSpec describes one supervisable daemon.
type DaemonSpec struct {
	// Path is the absolute location of the daemon binary.
	Path string
	// DisplayName tags log lines emitted for the daemon.
	DisplayName string
	// Args are passed to the binary on launch.
	Args []string
	// Match is the process name used to discover running instances.
	Match string
}

// Clone returns a deep copy.
func (d DaemonSpec) Clone() DaemonSpec {
	dup := d
	if len(d.Args) > 0 {
		dup.Args = append([]string(nil), d.Args...)
	}
	return dup
}

// BusSpec describes the session message bus. The bus is launched by command
// name rather than by a path-checked binary.
type BusSpec struct {
	Command    string
	Args       []string
	SessionArg string
}

// Poll configures a fixed-count polling loop. Total elapsed time is
// Count * Interval.
type Poll struct {
	Count    int
	Interval time.Duration
}

// Config is the full set of values consumed by a reset run.
type Config struct {
	// Primary is the desktop-environment specific portal.
	Primary DaemonSpec
	// Fallback is the generic portal frontend.
	Fallback DaemonSpec
	// PortalPattern matches every portal process during discovery.
	PortalPattern string

	Bus BusSpec

	// Verify bounds the polling performed after each portal launch.
	Verify Poll
	// BusShutdown bounds the wait for old bus instances to exit.
	BusShutdown Poll

	// PrimaryAttempts is the maximum number of launches of the primary portal.
	PrimaryAttempts int
	// FallbackAttempts is the maximum number of launches of the fallback portal.
	FallbackAttempts int

	InitialDelay  time.Duration
	KillGrace     time.Duration
	CleanupDelay  time.Duration
	BusSettle     time.Duration
	PrimarySettle time.Duration

	// LockPath is the single-run guard location. Empty disables locking.
	LockPath string
}

// Default returns the configuration used by the portal-reset binary.
func Default() Config {
	return Config{
		Primary: DaemonSpec{
			Path:        "/usr/lib/xdg-desktop-portal-hyprland",
			DisplayName: "Hyprland portal",
			Args:        []string{"-v"},
			Match:       "xdg-desktop-portal-hyprland",
		},
		Fallback: DaemonSpec{
			Path:        "/usr/lib/xdg-desktop-portal",
			DisplayName: "XDG portal",
			Args:        []string{"-v"},
			Match:       "xdg-desktop-portal",
		},
		PortalPattern: "xdg-desktop-portal",
		Bus: BusSpec{
			Command:    "dbus-daemon",
			Args:       []string{"--session", "--address=unix:runtime=yes"},
			SessionArg: "--session",
		},
		Verify:           Poll{Count: 20, Interval: 100 * time.Millisecond},
		BusShutdown:      Poll{Count: 10, Interval: 100 * time.Millisecond},
		PrimaryAttempts:  3,
		FallbackAttempts: 1,
		InitialDelay:     time.Second,
		KillGrace:        100 * time.Millisecond,
		CleanupDelay:     500 * time.Millisecond,
		BusSettle:        500 * time.Millisecond,
		PrimarySettle:    2 * time.Second,
		LockPath:         DefaultLockPath(),
	}
}

// Portals returns the portal specs in launch order.
func (c Config) Portals() []DaemonSpec {
	return []DaemonSpec{c.Primary.Clone(), c.Fallback.Clone()}
}
