package shared

import (
	"fmt"

	"github.com/gofrs/flock"
)

// CycleLock guards the persisted stores while a processing cycle is writing.
// It is an OS-level advisory lock, so a crashed process never leaves a stale
// lock behind.
type CycleLock struct {
	path string
	fl   *flock.Flock
}

// NewCycleLock creates a lock backed by the file at path.
func NewCycleLock(path string) *CycleLock {
	return &CycleLock{path: path, fl: flock.New(path)}
}

// Path returns the lock file location.
func (l *CycleLock) Path() string {
	return l.path
}

// Acquire takes the lock without blocking. It returns ErrLockHeld when
// another invocation is already running a cycle.
func (l *CycleLock) Acquire() error {
	ok, err := l.fl.TryLock()
	if err != nil {
		return fmt.Errorf("acquire cycle lock %s: %w", l.path, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrLockHeld, l.path)
	}
	return nil
}

// Release drops the lock. Safe to call after a failed Acquire.
func (l *CycleLock) Release() error {
	return l.fl.Unlock()
}
