// Package lock keeps two resets from running at the same time.
package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrLocked reports that another reset holds the lock.
var ErrLocked = errors.New("another portal reset is running")

// Acquire takes an exclusive, non-blocking lock on path. The returned func
// releases it. An empty path disables locking.
func Acquire(path string) (func(), error) {
	if path == "" {
		return func() {}, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}

	fileLock := flock.New(path)
	locked, err := fileLock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring lock %s: %w", path, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w (lock held: %s)", ErrLocked, path)
	}
	return func() { _ = fileLock.Unlock() }, nil
}
