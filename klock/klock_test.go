package klock

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestSpinLock_MutualExclusion(t *testing.T) {
	var lk SpinLock
	counter := 0

	var g errgroup.Group
	for it := 0; it < 8; it++ {
		g.Go(func() error {
			for it := 0; it < 1000; it++ {
				lk.Lock()
				counter++
				lk.Unlock()
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.Equal(t, 8000, counter)
}

func TestSpinLock_TryLock(t *testing.T) {
	var lk SpinLock

	require.True(t, lk.TryLock())
	require.False(t, lk.TryLock())

	lk.Unlock()
	require.True(t, lk.TryLock())
	lk.Unlock()
}

func TestSpinLock_UnlockUnheldPanics(t *testing.T) {
	var lk SpinLock
	require.Panics(t, func() { lk.Unlock() })
}

func TestSleepLock_MutualExclusion(t *testing.T) {
	lk := NewSleepLock()
	counter := 0

	var g errgroup.Group
	for it := 0; it < 8; it++ {
		g.Go(func() error {
			for it := 0; it < 1000; it++ {
				lk.Lock()
				counter++
				lk.Unlock()
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.Equal(t, 8000, counter)
}

func TestSleepLock_BlocksUntilReleased(t *testing.T) {
	lk := NewSleepLock()
	lk.Lock()

	acquired := make(chan struct{})
	go func() {
		lk.Lock()
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second Lock succeeded while lock was held")
	case <-time.After(20 * time.Millisecond):
	}

	lk.Unlock()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("waiter was not woken by Unlock")
	}
	lk.Unlock()
}

func TestSleepLock_TryLock(t *testing.T) {
	lk := NewSleepLock()

	require.True(t, lk.TryLock())
	require.False(t, lk.TryLock())
	require.True(t, lk.Held())

	lk.Unlock()
	require.False(t, lk.Held())
}

func TestSleepLock_UnlockUnheldPanics(t *testing.T) {
	lk := NewSleepLock()
	require.Panics(t, func() { lk.Unlock() })
}

func TestSleepLock_Held(t *testing.T) {
	lk := NewSleepLock()
	require.False(t, lk.Held())

	lk.Lock()
	require.True(t, lk.Held())

	lk.Unlock()
	require.False(t, lk.Held())
}

func TestSleepLock_SingleHolderUnderContention(t *testing.T) {
	lk := NewSleepLock()

	var mu sync.Mutex
	holders := 0
	maxHolders := 0

	var g errgroup.Group
	for it := 0; it < 16; it++ {
		g.Go(func() error {
			for it := 0; it < 200; it++ {
				lk.Lock()
				mu.Lock()
				holders++
				if holders > maxHolders {
					maxHolders = holders
				}
				mu.Unlock()

				mu.Lock()
				holders--
				mu.Unlock()
				lk.Unlock()
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.Equal(t, 1, maxHolders)
}
