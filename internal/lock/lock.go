// Package lock serializes bootstrap runs against one install directory.
//
// The lock is an advisory flock(2) on a file next to the install
// directory. It is released automatically by the kernel when the process
// exits, so a crashed run never leaves a stale lock behind.
package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/primezdev/ovnode-setup/internal/model"
)

// Lock is a held advisory lock.
type Lock struct {
	f *os.File
}

// Acquire takes an exclusive lock on path without blocking. When another
// process holds it, a CLIError with ExitLocked is returned.
func Acquire(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file %s: %w", path, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, model.NewCLIError(model.ExitLocked,
				fmt.Sprintf("another ovnode-setup run holds %s", path))
		}
		return nil, fmt.Errorf("failed to lock %s: %w", path, err)
	}

	// Record the holder for operators inspecting a stuck host.
	_ = f.Truncate(0)
	_, _ = fmt.Fprintf(f, "%d\n", os.Getpid())

	return &Lock{f: f}, nil
}

// Release drops the lock. It is safe to call more than once.
func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	err := unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	cerr := l.f.Close()
	l.f = nil
	if err != nil {
		return err
	}
	return cerr
}
