package filer

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/Aman-CERP/annodex/internal/errors"
)

// lockRetryDelay is how often a contended lock is retried.
const lockRetryDelay = 25 * time.Millisecond

// FileLock is a cross-process exclusive lock on one resource, backed by
// gofrs/flock.
type FileLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewFileLock creates an unlocked lock on the lock file at path.
func NewFileLock(path string) *FileLock {
	return &FileLock{path: path, flock: flock.New(path)}
}

// Lock acquires the lock, waiting at most timeout (forever when zero)
// and until ctx is done. The lock file and its directory are created
// as needed.
func (l *FileLock) Lock(ctx context.Context, timeout time.Duration) error {
	if l.locked {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	acquired, err := l.flock.TryLockContext(ctx, lockRetryDelay)
	if err != nil || !acquired {
		if err == nil || stderrors.Is(err, context.DeadlineExceeded) {
			return errors.New(errors.ErrCodeResourceLock,
				fmt.Sprintf("timed out waiting for lock %s", l.path), err).
				WithSuggestion("Another build may be writing the same output; retry when it finishes")
		}
		if stderrors.Is(err, context.Canceled) {
			return err
		}
		return errors.New(errors.ErrCodeResourceLock, fmt.Sprintf("failed to acquire lock %s", l.path), err)
	}

	l.locked = true
	return nil
}

// Unlock releases the lock. Unlocking an unlocked lock is a no-op.
func (l *FileLock) Unlock() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// Path returns the lock file path.
func (l *FileLock) Path() string {
	return l.path
}

// IsLocked reports whether this lock is held.
func (l *FileLock) IsLocked() bool {
	return l.locked
}
