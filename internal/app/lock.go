package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// LockFileName is the instance lock inside the base directory.
const LockFileName = "smugdups.lock"

// ErrLocked means another smugdups process holds the instance lock.
var ErrLocked = errors.New("another smugdups instance is already running")

// instanceLock keeps mutating commands and the control API from running
// in two processes at once.
type instanceLock struct {
	path string
	lock *flock.Flock
}

func acquireLock(dir string) (*instanceLock, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}
	path := filepath.Join(dir, LockFileName)
	l := &instanceLock{path: path, lock: flock.New(path)}
	ok, err := l.lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, ErrLocked)
	}
	return l, nil
}

func (l *instanceLock) release() error {
	if err := l.lock.Unlock(); err != nil {
		return fmt.Errorf("release lock %s: %w", l.path, err)
	}
	return nil
}
