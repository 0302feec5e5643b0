package indexer

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dl4rce/flaiwheel/pkg/types"
)

func TestIndexLock(t *testing.T) {
	var l IndexLock
	assert.True(t, l.TryAcquire())
	assert.True(t, l.Held())
	assert.False(t, l.TryAcquire())

	l.Release()
	assert.False(t, l.Held())
	assert.True(t, l.TryAcquire())
}

func TestIndexLock_Concurrent(t *testing.T) {
	var (
		l        IndexLock
		wg       sync.WaitGroup
		mu       sync.Mutex
		acquired int
	)

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.TryAcquire() {
				mu.Lock()
				acquired++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, acquired)
}

func TestPassLock_InProcess(t *testing.T) {
	l := NewPassLock("")
	require.NoError(t, l.TryAcquire())
	assert.ErrorIs(t, l.TryAcquire(), types.ErrIndexInProgress)

	require.NoError(t, l.Release())
	require.NoError(t, l.TryAcquire())
	require.NoError(t, l.Release())
}

func TestPassLock_AcrossHolders(t *testing.T) {
	path := filepath.Join(t.TempDir(), "locks", "acme.lock")
	first := NewPassLock(path)
	second := NewPassLock(path)

	require.NoError(t, first.TryAcquire())
	err := second.TryAcquire()
	assert.ErrorIs(t, err, types.ErrIndexInProgress)
	assert.False(t, second.Held(), "a failed file lock releases the local lock")

	require.NoError(t, first.Release())
	require.NoError(t, second.TryAcquire())
	require.NoError(t, second.Release())
}

func TestPassLock_AcquireWaits(t *testing.T) {
	l := NewPassLock("")
	require.NoError(t, l.TryAcquire())

	go func() {
		time.Sleep(2 * lockRetryDelay)
		_ = l.Release()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, l.Acquire(ctx))
	assert.True(t, l.Held())
}

func TestPassLock_AcquireHonoursContext(t *testing.T) {
	l := NewPassLock("")
	require.NoError(t, l.TryAcquire())

	ctx, cancel := context.WithTimeout(context.Background(), 3*lockRetryDelay)
	defer cancel()
	assert.ErrorIs(t, l.Acquire(ctx), context.DeadlineExceeded)
}

func TestFileLock_UnlockWithoutLock(t *testing.T) {
	l := NewFileLock(filepath.Join(t.TempDir(), "x.lock"))
	assert.NoError(t, l.Unlock())
	assert.Equal(t, "x.lock", filepath.Base(l.Path()))
}
