package indexer

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrLocked is returned when another process holds the data directory lock.
var ErrLocked = errors.New("another indexer is running on this data directory")

const lockFileName = ".index.lock"

// DirLock is a cross-process lock on a data directory, held while writing to it.
type DirLock struct {
	flock *flock.Flock
}

// LockDir takes the lock on dir without blocking. It returns ErrLocked when the lock is held.
func LockDir(dir string) (*DirLock, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}
	l := flock.New(filepath.Join(dir, lockFileName))
	ok, err := l.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !ok {
		return nil, ErrLocked
	}
	return &DirLock{flock: l}, nil
}

// Path returns the lock file path.
func (l *DirLock) Path() string {
	return l.flock.Path()
}

// Unlock releases the lock. It is safe to call more than once.
func (l *DirLock) Unlock() error {
	if l == nil || !l.flock.Locked() {
		return nil
	}
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}
