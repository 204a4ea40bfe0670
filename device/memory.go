package device

import (
	"context"
	"sync"
)

// MemDevice is an in-memory Device implementation for testing and
// ephemeral workloads. Blocks are allocated lazily; unwritten blocks read
// as zeroes. Thread-safe for concurrent reads and writes.
type MemDevice struct {
	mu        sync.RWMutex
	blocks    map[uint32][]byte
	blockSize int
	numBlocks uint32
	closed    bool
}

// NewMemDevice creates an in-memory device with the given geometry.
func NewMemDevice(blockSize int, numBlocks uint32) *MemDevice {
	return &MemDevice{
		blocks:    make(map[uint32][]byte),
		blockSize: blockSize,
		numBlocks: numBlocks,
	}
}

// BlockSize returns the size of one block in bytes.
func (d *MemDevice) BlockSize() int { return d.blockSize }

// NumBlocks returns the number of addressable blocks.
func (d *MemDevice) NumBlocks() uint32 { return d.numBlocks }

// ReadBlock fills p with the contents of the given block.
func (d *MemDevice) ReadBlock(_ context.Context, block uint32, p []byte) error {
	if err := check(d.blockSize, d.numBlocks, block, p); err != nil {
		return err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return ErrClosed
	}

	b, ok := d.blocks[block]
	if !ok {
		clear(p)
		return nil
	}
	copy(p, b)
	return nil
}

// WriteBlock writes p to the given block.
func (d *MemDevice) WriteBlock(_ context.Context, block uint32, p []byte) error {
	if err := check(d.blockSize, d.numBlocks, block, p); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}

	// Copy to prevent external mutation
	b, ok := d.blocks[block]
	if !ok {
		b = make([]byte, d.blockSize)
		d.blocks[block] = b
	}
	copy(b, p)
	return nil
}

// Sync is a no-op for the in-memory device.
func (d *MemDevice) Sync(context.Context) error { return nil }

// Close releases the device.
func (d *MemDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.blocks = nil
	return nil
}
