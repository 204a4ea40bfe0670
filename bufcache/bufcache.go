package bufcache

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/hupe1980/diskcore/klock"
)

// Defaults for the externally configured pool geometry.
const (
	// DefaultNumBufs is the default buffer pool size (NBUF).
	DefaultNumBufs = 30
	// DefaultNumBuckets is the default shard count (NBUCKET).
	DefaultNumBuckets = 13
	// DefaultBlockSize is the default block size in bytes.
	DefaultBlockSize = 1024
)

// Transport is the external disk collaborator. It moves one block of
// payload bytes between a device and a Buf; it may block the calling
// goroutine.
type Transport interface {
	ReadBlock(ctx context.Context, dev DeviceID, block BlockNum, p []byte) error
	WriteBlock(ctx context.Context, dev DeviceID, block BlockNum, p []byte) error
}

// Clock is a monotonically non-decreasing tick source used for last-access
// bookkeeping.
type Clock func() uint64

// bucket is one single-slot shard of the fast-path index. It references at
// most one buffer; installing a new one simply overwrites the slot.
type bucket struct {
	lk  klock.SpinLock
	buf *Buf
}

// Cache is a fixed pool of Bufs with a sharded fast-path index and a
// globally locked authoritative scan.
type Cache struct {
	pool    []*Buf
	buckets []bucket
	lk      klock.SpinLock // global fallback lock

	transport Transport
	clock     Clock
	logger    *slog.Logger

	blockSize int

	hits   atomic.Int64
	misses atomic.Int64
}

// Option configures a Cache.
type Option func(*config)

type config struct {
	numBufs    int
	numBuckets int
	blockSize  int
	clock      Clock
	logger     *slog.Logger
}

// WithNumBufs sets the buffer pool size (NBUF).
func WithNumBufs(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.numBufs = n
		}
	}
}

// WithNumBuckets sets the shard count (NBUCKET).
func WithNumBuckets(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.numBuckets = n
		}
	}
}

// WithBlockSize sets the block size in bytes. It must match the block size
// of every device reached through the Transport.
func WithBlockSize(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.blockSize = n
		}
	}
}

// WithClock sets the tick source used for last-access bookkeeping.
func WithClock(clock Clock) Option {
	return func(c *config) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithLogger sets a structured logger for cache events. If unset, the
// cache does not log.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// tickCounter is the default Clock: a process-local monotonic counter.
func tickCounter() Clock {
	var ticks atomic.Uint64
	return func() uint64 {
		return ticks.Add(1)
	}
}

// New creates a Cache over the given transport. The pool and shards are
// preallocated; each shard is seeded with one of the first NBUCKET buffers,
// which is arbitrary and carries no cache state.
func New(transport Transport, opts ...Option) *Cache {
	cfg := config{
		numBufs:    DefaultNumBufs,
		numBuckets: DefaultNumBuckets,
		blockSize:  DefaultBlockSize,
		clock:      tickCounter(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.numBuckets > cfg.numBufs {
		cfg.numBuckets = cfg.numBufs
	}

	c := &Cache{
		pool:      make([]*Buf, cfg.numBufs),
		buckets:   make([]bucket, cfg.numBuckets),
		transport: transport,
		clock:     cfg.clock,
		logger:    cfg.logger,
		blockSize: cfg.blockSize,
	}

	for i := range c.pool {
		c.pool[i] = &Buf{
			data:  make([]byte, cfg.blockSize),
			lk:    klock.NewSleepLock(),
			index: i,
		}
	}
	for i := range c.buckets {
		c.buckets[i].buf = c.pool[i]
	}

	return c
}

// BlockSize returns the cache's block size in bytes.
func (c *Cache) BlockSize() int { return c.blockSize }

// Stats returns cache hit/miss counters. A hit is a lookup satisfied by a
// resident buffer (shard or full scan); a miss recycled a free buffer.
func (c *Cache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// get looks up the buffer for the block on device dev, allocating one on a
// miss. In either case the returned buffer is locked.
func (c *Cache) get(dev DeviceID, block BlockNum) *Buf {
	// Fast path: linear scan over the single-slot shards. Any shard may
	// hold the matching buffer.
	for i := range c.buckets {
		bkt := &c.buckets[i]
		bkt.lk.Lock()
		b := bkt.buf
		if b.dev == dev && b.block == block {
			b.refcnt++
			b.ticks = c.clock()
			bkt.lk.Unlock()
			c.hits.Add(1)
			b.lk.Lock()
			return b
		}
		bkt.lk.Unlock()
	}

	// Authoritative scan over the whole pool, then install the match into
	// shard (index mod NBUCKET), overwriting whatever was there.
	c.lk.Lock()
	for _, b := range c.pool {
		if b.dev == dev && b.block == block {
			b.refcnt++
			b.ticks = c.clock()
			bkt := &c.buckets[b.index%len(c.buckets)]
			bkt.lk.Lock()
			bkt.buf = b
			bkt.lk.Unlock()
			c.lk.Unlock()
			c.hits.Add(1)
			b.lk.Lock()
			return b
		}
	}

	// Not cached. Recycle the first unused buffer. The last-access tick is
	// maintained but not consulted here; recycling is first-fit.
	for _, b := range c.pool {
		if b.refcnt == 0 {
			b.dev = dev
			b.block = block
			b.valid = false
			b.refcnt = 1
			b.ticks = c.clock()
			c.lk.Unlock()
			c.misses.Add(1)
			if c.logger != nil {
				c.logger.Debug("recycled buffer",
					"index", b.index,
					"dev", dev,
					"block", block,
				)
			}
			b.lk.Lock()
			return b
		}
	}

	// Every buffer is legitimately held; there is no recovery path.
	panic(fmt.Sprintf("bufcache: no buffers (pool size %d exhausted)", len(c.pool)))
}

// Read returns a locked buffer with the contents of the indicated block.
// On a cold buffer the payload is filled from the transport first; Read
// never returns an invalid buffer. If the transport fails, the buffer is
// released and the error returned.
func (c *Cache) Read(ctx context.Context, dev DeviceID, block BlockNum) (*Buf, error) {
	b := c.get(dev, block)
	if !b.valid {
		if err := c.transport.ReadBlock(ctx, dev, block, b.data); err != nil {
			if c.logger != nil {
				c.logger.Error("block read failed",
					"dev", dev,
					"block", block,
					"error", err,
				)
			}
			c.Release(b)
			return nil, fmt.Errorf("bufcache: read dev %d block %d: %w", dev, block, err)
		}
		b.valid = true
	}
	return b, nil
}

// Write flushes the buffer's payload to the device. The caller must hold
// the buffer's lock; calling Write on an unlocked buffer panics. The lock
// and reference count are untouched.
func (c *Cache) Write(ctx context.Context, b *Buf) error {
	if !b.lk.Held() {
		panic("bufcache: Write on unlocked buffer")
	}
	if err := c.transport.WriteBlock(ctx, b.dev, b.block, b.data); err != nil {
		if c.logger != nil {
			c.logger.Error("block write failed",
				"dev", b.dev,
				"block", b.block,
				"error", err,
			)
		}
		return fmt.Errorf("bufcache: write dev %d block %d: %w", b.dev, b.block, err)
	}
	return nil
}

// Release drops the caller's hold on a locked buffer. The caller must hold
// the buffer's lock; calling Release on an unlocked buffer panics. When the
// reference count reaches zero the last-access tick is reset, marking the
// buffer eligible for recycling with no ordering preference.
func (c *Cache) Release(b *Buf) {
	if !b.lk.Held() {
		panic("bufcache: Release of unlocked buffer")
	}

	b.lk.Unlock()

	c.lk.Lock()
	b.refcnt--
	if b.refcnt == 0 {
		// No one is waiting for it.
		b.ticks = 0
	}
	c.lk.Unlock()
}

// Pin increments the buffer's reference count without touching its lock,
// keeping it resident across operations that release and reacquire the
// lock elsewhere.
func (c *Cache) Pin(b *Buf) {
	c.lk.Lock()
	b.refcnt++
	c.lk.Unlock()
}

// Unpin undoes a Pin.
func (c *Cache) Unpin(b *Buf) {
	c.lk.Lock()
	b.refcnt--
	c.lk.Unlock()
}
