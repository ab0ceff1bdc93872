package joblock

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
)

// FileLocker keeps one lock file per job id under a directory. Locks are
// held through an open file descriptor, so a crashed worker releases its
// locks when the process exits.
type FileLocker struct {
	dir string
}

// NewFileLocker creates dir when needed and returns a locker rooted there.
func NewFileLocker(dir string) (*FileLocker, error) {
	if dir == "" {
		return nil, fmt.Errorf("joblock: lock directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("joblock: create lock directory: %w", err)
	}
	return &FileLocker{dir: dir}, nil
}

// Path returns the lock file location for jobID.
func (l *FileLocker) Path(jobID string) string {
	return filepath.Join(l.dir, jobID+".lock")
}

// TryLock implements Locker.
func (l *FileLocker) TryLock(ctx context.Context, jobID string) (Lock, bool, error) {
	if err := validateJobID(jobID); err != nil {
		return nil, false, err
	}
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	lock := flock.New(l.Path(jobID))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, false, fmt.Errorf("joblock: lock %s: %w", jobID, err)
	}
	if !ok {
		return nil, false, nil
	}
	return &fileLock{lock: lock}, true, nil
}

// Close implements Locker. File locks are released individually.
func (l *FileLocker) Close() error {
	return nil
}

type fileLock struct {
	mu       sync.Mutex
	lock     *flock.Flock
	released bool
}

func (f *fileLock) Refresh(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.released || !f.lock.Locked() {
		return ErrLockLost
	}
	return nil
}

func (f *fileLock) Release(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.released {
		return nil
	}
	f.released = true
	if err := f.lock.Unlock(); err != nil {
		return fmt.Errorf("joblock: unlock %s: %w", f.lock.Path(), err)
	}
	return nil
}
