package bufcache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// testTransport is an in-memory Transport recording call counts.
type testTransport struct {
	mu      sync.Mutex
	blocks  map[string][]byte
	reads   int
	writes  int
	readErr error
}

func newTestTransport() *testTransport {
	return &testTransport{blocks: make(map[string][]byte)}
}

func key(dev DeviceID, block BlockNum) string {
	return fmt.Sprintf("%d/%d", dev, block)
}

func (t *testTransport) ReadBlock(_ context.Context, dev DeviceID, block BlockNum, p []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.readErr != nil {
		return t.readErr
	}
	t.reads++
	if b, ok := t.blocks[key(dev, block)]; ok {
		copy(p, b)
	} else {
		clear(p)
	}
	return nil
}

func (t *testTransport) WriteBlock(_ context.Context, dev DeviceID, block BlockNum, p []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writes++
	b := make([]byte, len(p))
	copy(b, p)
	t.blocks[key(dev, block)] = b
	return nil
}

func (t *testTransport) readCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reads
}

func TestCache_ReadValidContract(t *testing.T) {
	ctx := context.Background()
	tr := newTestTransport()
	tr.blocks[key(1, 10)] = bytes.Repeat([]byte{0x7F}, DefaultBlockSize)

	c := New(tr)

	b, err := c.Read(ctx, 1, 10)
	require.NoError(t, err)
	require.True(t, b.Valid())
	require.Equal(t, DeviceID(1), b.Device())
	require.Equal(t, BlockNum(10), b.Block())
	require.Equal(t, byte(0x7F), b.Data()[0])
	c.Release(b)
}

func TestCache_SecondReadHitsCache(t *testing.T) {
	ctx := context.Background()
	tr := newTestTransport()
	c := New(tr)

	b, err := c.Read(ctx, 1, 10)
	require.NoError(t, err)
	c.Release(b)
	require.Equal(t, 1, tr.readCount())

	// Same block again: no device read, same buffer.
	b2, err := c.Read(ctx, 1, 10)
	require.NoError(t, err)
	require.Same(t, b, b2)
	require.Equal(t, 1, tr.readCount())
	c.Release(b2)

	hits, misses := c.Stats()
	require.Equal(t, int64(1), hits)
	require.Equal(t, int64(1), misses)
}

func TestCache_WriteFlushesPayload(t *testing.T) {
	ctx := context.Background()
	tr := newTestTransport()
	c := New(tr)

	b, err := c.Read(ctx, 1, 5)
	require.NoError(t, err)

	copy(b.Data(), bytes.Repeat([]byte{0xEE}, c.BlockSize()))
	require.NoError(t, c.Write(ctx, b))
	c.Release(b)

	require.Equal(t, bytes.Repeat([]byte{0xEE}, c.BlockSize()), tr.blocks[key(1, 5)])
}

func TestCache_WriteUnlockedPanics(t *testing.T) {
	ctx := context.Background()
	c := New(newTestTransport())

	b, err := c.Read(ctx, 1, 0)
	require.NoError(t, err)
	c.Release(b)

	require.Panics(t, func() { _ = c.Write(ctx, b) })
	require.Panics(t, func() { c.Release(b) })
}

func TestCache_ReadErrorReleasesBuffer(t *testing.T) {
	ctx := context.Background()
	tr := newTestTransport()
	injected := errors.New("bad sector")
	tr.readErr = injected

	c := New(tr, WithNumBufs(2), WithNumBuckets(1))

	_, err := c.Read(ctx, 1, 10)
	require.ErrorIs(t, err, injected)

	// The failed read must not leak its buffer: with the error cleared the
	// pool still has room for two distinct blocks.
	tr.mu.Lock()
	tr.readErr = nil
	tr.mu.Unlock()

	b1, err := c.Read(ctx, 1, 11)
	require.NoError(t, err)
	b2, err := c.Read(ctx, 1, 12)
	require.NoError(t, err)
	c.Release(b1)
	c.Release(b2)
}

func TestCache_ExhaustionPanics(t *testing.T) {
	ctx := context.Background()
	c := New(newTestTransport(), WithNumBufs(2), WithNumBuckets(1))

	b1, err := c.Read(ctx, 1, 1)
	require.NoError(t, err)
	b2, err := c.Read(ctx, 1, 2)
	require.NoError(t, err)

	require.Panics(t, func() { _, _ = c.Read(ctx, 1, 3) })

	c.Release(b1)
	c.Release(b2)
}

func TestCache_RecycleScenario(t *testing.T) {
	// NBUF = 2, NBUCKET = 1 walkthrough: miss, recycle, release resets the
	// tick, a new key recycles a free slot.
	ctx := context.Background()
	c := New(newTestTransport(), WithNumBufs(2), WithNumBuckets(1))

	b, err := c.Read(ctx, 1, 10)
	require.NoError(t, err)
	require.Equal(t, uint32(1), b.refcnt)
	require.NotZero(t, b.ticks)

	c.Release(b)
	require.Equal(t, uint32(0), b.refcnt)
	require.Zero(t, b.ticks)

	b2, err := c.Read(ctx, 1, 11)
	require.NoError(t, err)
	require.Equal(t, uint32(1), b2.refcnt)
	require.Equal(t, BlockNum(11), b2.Block())
	c.Release(b2)
}

func TestCache_IdentityStableWhileReferenced(t *testing.T) {
	ctx := context.Background()
	c := New(newTestTransport(), WithNumBufs(4), WithNumBuckets(2))

	held, err := c.Read(ctx, 1, 100)
	require.NoError(t, err)

	// Fill the rest of the pool with other blocks; the held buffer must
	// keep its identity.
	for i := 0; i < 3; i++ {
		b, err := c.Read(ctx, 1, BlockNum(i))
		require.NoError(t, err)
		c.Release(b)
	}

	require.Equal(t, DeviceID(1), held.Device())
	require.Equal(t, BlockNum(100), held.Block())
	c.Release(held)
}

func TestCache_ConcurrentSameBlockSameBuffer(t *testing.T) {
	ctx := context.Background()
	c := New(newTestTransport())

	var mu sync.Mutex
	seen := make(map[*Buf]struct{})
	holders := 0
	maxHolders := 0

	var g errgroup.Group
	for it := 0; it < 8; it++ {
		g.Go(func() error {
			for it := 0; it < 50; it++ {
				b, err := c.Read(ctx, 2, 7)
				if err != nil {
					return err
				}
				mu.Lock()
				seen[b] = struct{}{}
				holders++
				if holders > maxHolders {
					maxHolders = holders
				}
				mu.Unlock()

				mu.Lock()
				holders--
				mu.Unlock()
				c.Release(b)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	// Identity stability: every request for (2,7) saw the same buffer.
	require.Len(t, seen, 1)
	// Mutual exclusion: never more than one holder at once.
	require.Equal(t, 1, maxHolders)
}

func TestCache_ConcurrentDistinctBlocks(t *testing.T) {
	ctx := context.Background()
	c := New(newTestTransport(), WithNumBufs(8), WithNumBuckets(3))

	var g errgroup.Group
	for i := 0; i < 4; i++ {
		i := i
		g.Go(func() error {
			for j := 0; j < 100; j++ {
				b, err := c.Read(ctx, DeviceID(1+i%2), BlockNum(j%6))
				if err != nil {
					return err
				}
				b.Data()[0] = byte(j)
				c.Release(b)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}

func TestCache_SecondHolderBlocksUntilRelease(t *testing.T) {
	ctx := context.Background()
	c := New(newTestTransport())

	b, err := c.Read(ctx, 1, 10)
	require.NoError(t, err)

	acquired := make(chan *Buf, 1)
	go func() {
		b2, err := c.Read(ctx, 1, 10)
		if err == nil {
			acquired <- b2
		}
	}()

	select {
	case <-acquired:
		t.Fatal("second Read returned while buffer was held")
	case <-time.After(20 * time.Millisecond):
	}

	c.Release(b)

	select {
	case b2 := <-acquired:
		require.Same(t, b, b2)
		c.Release(b2)
	case <-time.After(time.Second):
		t.Fatal("waiter was not woken by Release")
	}
}

func TestCache_PinKeepsBufferResident(t *testing.T) {
	ctx := context.Background()
	c := New(newTestTransport(), WithNumBufs(2), WithNumBuckets(1))

	b, err := c.Read(ctx, 1, 10)
	require.NoError(t, err)
	c.Pin(b)
	c.Release(b)

	// refcnt is still 1: the buffer cannot be recycled, so only one free
	// slot remains and a third distinct block exhausts the pool.
	b2, err := c.Read(ctx, 1, 11)
	require.NoError(t, err)
	require.NotSame(t, b, b2)
	require.Panics(t, func() { _, _ = c.Read(ctx, 1, 12) })
	c.Release(b2)

	c.Unpin(b)

	// Now the pinned slot is free again.
	b3, err := c.Read(ctx, 1, 12)
	require.NoError(t, err)
	c.Release(b3)
}

func TestCache_NoDuplicateCaching(t *testing.T) {
	// While a buffer stays referenced (via Pin), a concurrent request for
	// its key must return that same buffer, even under recycle pressure
	// from other blocks.
	ctx := context.Background()
	c := New(newTestTransport(), WithNumBufs(16), WithNumBuckets(3))

	var g errgroup.Group
	for i := 0; i < 6; i++ {
		own := BlockNum(100 + i)
		g.Go(func() error {
			for j := 0; j < 100; j++ {
				b, err := c.Read(ctx, 1, own)
				if err != nil {
					return err
				}
				c.Pin(b)
				c.Release(b)

				// Recycle pressure from a shared key space.
				p, err := c.Read(ctx, 2, BlockNum(j%4))
				if err != nil {
					return err
				}
				c.Release(p)

				// Still pinned: the key must resolve to the same buffer.
				b2, err := c.Read(ctx, 1, own)
				if err != nil {
					return err
				}
				if b2 != b {
					return fmt.Errorf("block %d moved to a different buffer while pinned", own)
				}
				c.Release(b2)
				c.Unpin(b)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}
