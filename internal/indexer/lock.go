package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"github.com/dl4rce/flaiwheel/pkg/types"
)

// lockRetryDelay is how often Acquire polls a held lock
const lockRetryDelay = 50 * time.Millisecond

// IndexLock provides non-blocking lock semantics using atomic operations.
// A pass that finds the lock taken is rejected instead of queued.
type IndexLock struct {
	state atomic.Int32 // 0 = unlocked, 1 = locked
}

// TryAcquire attempts to acquire the lock without blocking.
// Returns true if the lock was successfully acquired, false otherwise.
func (l *IndexLock) TryAcquire() bool {
	return l.state.CompareAndSwap(0, 1)
}

// Release releases the lock.
// Must only be called by the goroutine that successfully acquired the lock.
func (l *IndexLock) Release() {
	l.state.Store(0)
}

// Held reports whether the lock is currently taken
func (l *IndexLock) Held() bool {
	return l.state.Load() == 1
}

// FileLock provides cross-process locking with gofrs/flock, so two
// processes sharing a data directory never index the same project at once.
type FileLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewFileLock creates a lock backed by the file at path
func NewFileLock(path string) *FileLock {
	return &FileLock{
		path:  path,
		flock: flock.New(path),
	}
}

// TryLock attempts to acquire the lock without blocking.
// Returns true if the lock was acquired, false if another holder has it.
func (l *FileLock) TryLock() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, fmt.Errorf("failed to create lock directory: %w", err)
	}

	acquired, err := l.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if acquired {
		l.locked = true
	}
	return acquired, nil
}

// Unlock releases the file lock. Unlocking an unheld lock is a no-op.
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

// Path returns the path to the lock file
func (l *FileLock) Path() string {
	return l.path
}

// PassLock guards indexing passes of one project: an in-process IndexLock,
// plus a FileLock when the project lives in a shared data directory.
type PassLock struct {
	local IndexLock
	file  *FileLock
}

// NewPassLock creates a pass lock. An empty lockPath keeps it in-process.
func NewPassLock(lockPath string) *PassLock {
	l := &PassLock{}
	if lockPath != "" {
		l.file = NewFileLock(lockPath)
	}
	return l
}

// TryAcquire takes the lock or fails with types.ErrIndexInProgress
func (l *PassLock) TryAcquire() error {
	if !l.local.TryAcquire() {
		return types.ErrIndexInProgress
	}
	if l.file == nil {
		return nil
	}

	ok, err := l.file.TryLock()
	if err != nil {
		l.local.Release()
		return err
	}
	if !ok {
		l.local.Release()
		return fmt.Errorf("%w: held by another process (%s)", types.ErrIndexInProgress, l.file.Path())
	}
	return nil
}

// Acquire waits until the lock is free or ctx is done
func (l *PassLock) Acquire(ctx context.Context) error {
	ticker := time.NewTicker(lockRetryDelay)
	defer ticker.Stop()

	for {
		err := l.TryAcquire()
		if !errors.Is(err, types.ErrIndexInProgress) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Release releases both locks
func (l *PassLock) Release() error {
	var err error
	if l.file != nil {
		err = l.file.Unlock()
	}
	l.local.Release()
	return err
}

// Held reports whether a pass in this process holds the lock
func (l *PassLock) Held() bool {
	return l.local.Held()
}
