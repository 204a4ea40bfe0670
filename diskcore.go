// Package diskcore provides an embedded disk-block cache and physical
// page allocator for Go.
//
// Diskcore combines two fixed-pool kernel-style resource managers behind
// one facade:
//
//   - A shared buffer cache over any number of attached block devices,
//     with a sharded fast-path index, per-buffer sleep locks and explicit
//     reference counting (see package bufcache)
//   - A per-core physical page allocator backed by an anonymous memory
//     mapping, with address-affine free lists and cross-core stealing
//     (see package pagealloc)
//
// Block devices implement the device.Device interface; in-memory, file,
// S3 and MinIO backed devices ship with the module, along with fault
// injection and rate-limit wrappers for testing.
//
// # Quick Start
//
//	ctx := context.Background()
//	core, err := diskcore.New()
//	if err != nil {
//	    panic(err)
//	}
//	defer core.Close()
//
//	dev, _ := device.OpenFileDevice("disk.img", core.BlockSize(), 1024)
//	if err := core.AttachDevice(1, dev); err != nil {
//	    panic(err)
//	}
//
//	b, err := core.ReadBlock(ctx, 1, 7)
//	if err != nil {
//	    panic(err)
//	}
//	copy(b.Data(), payload)
//	if err := core.WriteBlock(ctx, b); err != nil {
//	    panic(err)
//	}
//	core.Release(b)
//
// Buffers returned by ReadBlock are locked and owned by the caller until
// Release. Pin and Unpin keep a buffer resident across operations that
// drop and reacquire its lock.
//
// Physical pages come from a fixed arena sized at construction:
//
//	addr, ok := core.AllocPage()
//	if !ok {
//	    // arena exhausted
//	}
//	copy(core.PageBytes(addr), data)
//	core.FreePage(addr)
package diskcore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/diskcore/bufcache"
	"github.com/hupe1980/diskcore/device"
	"github.com/hupe1980/diskcore/pagealloc"
)

// DeviceID identifies an attached block device.
type DeviceID = bufcache.DeviceID

// BlockNum addresses one block on a device.
type BlockNum = bufcache.BlockNum

// Buf is a cached disk block. See bufcache.Buf.
type Buf = bufcache.Buf

// Core ties a shared buffer cache, a device table and a physical page
// allocator together.
type Core struct {
	mu      sync.RWMutex // protects devices
	devices map[DeviceID]device.Device

	cache *bufcache.Cache
	pages *pagealloc.Allocator

	metrics MetricsCollector
	logger  *Logger
}

// New creates a Core with an empty device table. Unless disabled via
// WithoutPageAllocator, a page arena is mapped immediately and held until
// Close.
func New(optFns ...Option) (*Core, error) {
	opts := applyOptions(optFns)

	c := &Core{
		devices: make(map[DeviceID]device.Device),
		metrics: opts.metricsCollector,
		logger:  opts.logger,
	}

	cacheOpts := append([]bufcache.Option{
		bufcache.WithLogger(opts.logger.Logger),
	}, opts.cacheOptions...)
	c.cache = bufcache.New(transport{core: c}, cacheOpts...)

	if opts.enablePages {
		pages, err := pagealloc.New(opts.pageCores, opts.pagesPerCore, opts.pageOptions...)
		if err != nil {
			return nil, fmt.Errorf("diskcore: map page arena: %w", err)
		}
		c.pages = pages
	}

	return c, nil
}

// BlockSize returns the cache block size in bytes. Every attached device
// must use this block size.
func (c *Core) BlockSize() int { return c.cache.BlockSize() }

// AttachDevice registers a device under the given ID. The device's block
// size must match the cache's.
func (c *Core) AttachDevice(dev DeviceID, d device.Device) error {
	if d.BlockSize() != c.cache.BlockSize() {
		return &ErrBlockSizeMismatch{Device: dev, Want: c.cache.BlockSize(), Got: d.BlockSize()}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.devices[dev]; ok {
		return fmt.Errorf("%w: device %d", ErrDeviceExists, dev)
	}
	c.devices[dev] = d

	c.logger.LogAttach(context.Background(), dev, d.NumBlocks())
	return nil
}

// DetachDevice removes a device from the table and closes it. Cached
// buffers for the device stay resident until recycled; detaching while
// buffers are held is a caller bug.
func (c *Core) DetachDevice(dev DeviceID) error {
	c.mu.Lock()
	d, ok := c.devices[dev]
	if ok {
		delete(c.devices, dev)
	}
	c.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: device %d", ErrDeviceNotFound, dev)
	}
	return d.Close()
}

func (c *Core) lookup(dev DeviceID) (device.Device, error) {
	c.mu.RLock()
	d, ok := c.devices[dev]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: device %d", ErrDeviceNotFound, dev)
	}
	return d, nil
}

// transport routes cache fills and flushes to the attached devices.
type transport struct {
	core *Core
}

func (t transport) ReadBlock(ctx context.Context, dev bufcache.DeviceID, block bufcache.BlockNum, p []byte) error {
	d, err := t.core.lookup(dev)
	if err != nil {
		return err
	}
	return d.ReadBlock(ctx, uint32(block), p)
}

func (t transport) WriteBlock(ctx context.Context, dev bufcache.DeviceID, block bufcache.BlockNum, p []byte) error {
	d, err := t.core.lookup(dev)
	if err != nil {
		return err
	}
	return d.WriteBlock(ctx, uint32(block), p)
}

// ReadBlock returns a locked buffer holding the contents of the given
// block, filling it from the device on a cold miss. The caller owns the
// buffer until Release.
func (c *Core) ReadBlock(ctx context.Context, dev DeviceID, block BlockNum) (*Buf, error) {
	start := time.Now()
	b, err := c.cache.Read(ctx, dev, block)
	c.metrics.RecordRead(time.Since(start), err)
	c.logger.LogRead(ctx, dev, block, err)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// WriteBlock flushes a locked buffer's payload to its device. The buffer
// stays locked and referenced.
func (c *Core) WriteBlock(ctx context.Context, b *Buf) error {
	start := time.Now()
	err := c.cache.Write(ctx, b)
	c.metrics.RecordWrite(time.Since(start), err)
	c.logger.LogWrite(ctx, b.Device(), b.Block(), err)
	return err
}

// Release drops the caller's hold on a locked buffer.
func (c *Core) Release(b *Buf) {
	c.cache.Release(b)
}

// Pin keeps a buffer resident without holding its lock. Every Pin must be
// balanced by an Unpin.
func (c *Core) Pin(b *Buf) { c.cache.Pin(b) }

// Unpin undoes a Pin.
func (c *Core) Unpin(b *Buf) { c.cache.Unpin(b) }

// Prefetch warms the cache with the given blocks, reading them
// concurrently and releasing each buffer immediately. It returns the
// first read error, if any; blocks that were already resident are
// counted as successes.
func (c *Core) Prefetch(ctx context.Context, dev DeviceID, blocks []BlockNum) error {
	start := time.Now()

	g, ctx := errgroup.WithContext(ctx)
	for _, block := range blocks {
		block := block
		g.Go(func() error {
			b, err := c.cache.Read(ctx, dev, block)
			if err != nil {
				return err
			}
			c.cache.Release(b)
			return nil
		})
	}

	err := g.Wait()
	c.metrics.RecordPrefetch(len(blocks), time.Since(start), err)
	c.logger.LogPrefetch(ctx, dev, len(blocks), err)
	return err
}

// Sync flushes every attached device to stable storage.
func (c *Core) Sync(ctx context.Context) error {
	c.mu.RLock()
	devs := make([]device.Device, 0, len(c.devices))
	for _, d := range c.devices {
		devs = append(devs, d)
	}
	c.mu.RUnlock()

	g, ctx := errgroup.WithContext(ctx)
	for _, d := range devs {
		d := d
		g.Go(func() error {
			return d.Sync(ctx)
		})
	}
	return g.Wait()
}

// CacheStats returns buffer cache hit/miss counters.
func (c *Core) CacheStats() (hits, misses int64) {
	return c.cache.Stats()
}

// AllocPage hands out one physical page, preferring the calling core's
// free list and stealing from other cores when it is empty. ok is false
// when the arena is exhausted or the page allocator is disabled.
func (c *Core) AllocPage() (addr pagealloc.Address, ok bool) {
	if c.pages == nil {
		return 0, false
	}
	addr, ok = c.pages.Alloc()
	c.metrics.RecordAlloc(ok)
	return addr, ok
}

// FreePage returns a page to the free list of the core that owns its
// address range. Freeing a misaligned or out-of-range address panics.
func (c *Core) FreePage(addr pagealloc.Address) {
	if c.pages == nil {
		panic("diskcore: page allocator disabled")
	}
	c.pages.Free(addr)
	c.metrics.RecordFree()
}

// PageBytes returns the page's backing bytes.
func (c *Core) PageBytes(addr pagealloc.Address) []byte {
	if c.pages == nil {
		panic("diskcore: page allocator disabled")
	}
	return c.pages.Bytes(addr)
}

// FreePageCount reports how many pages are currently free across all
// cores. It is a racy snapshot.
func (c *Core) FreePageCount() int {
	if c.pages == nil {
		return 0
	}
	return c.pages.FreePages()
}

// Close closes every attached device and unmaps the page arena. Held
// buffers and allocated pages become invalid.
func (c *Core) Close() error {
	c.mu.Lock()
	devs := c.devices
	c.devices = make(map[DeviceID]device.Device)
	c.mu.Unlock()

	var firstErr error
	for _, d := range devs {
		if err := d.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if c.pages != nil {
		if err := c.pages.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
