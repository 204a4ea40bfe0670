package device

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrOutOfRange is returned when a block number is beyond the device.
	ErrOutOfRange = errors.New("device: block out of range")
	// ErrClosed is returned when operating on a closed device.
	ErrClosed = errors.New("device: closed")
)

// ErrShortBuffer indicates a payload buffer whose length does not match the
// device block size.
type ErrShortBuffer struct {
	BlockSize int
	Got       int
}

func (e *ErrShortBuffer) Error() string {
	return fmt.Sprintf("device: payload size %d does not match block size %d", e.Got, e.BlockSize)
}

// Device is a fixed-block-size storage device.
//
// ReadBlock and WriteBlock may block the calling goroutine; both honor
// context cancellation where the underlying transport supports it.
// Implementations must be safe for concurrent use.
type Device interface {
	// BlockSize returns the size of one block in bytes.
	BlockSize() int
	// NumBlocks returns the number of addressable blocks.
	NumBlocks() uint32
	// ReadBlock fills p with the contents of the given block.
	// len(p) must equal BlockSize().
	ReadBlock(ctx context.Context, block uint32, p []byte) error
	// WriteBlock writes p to the given block. len(p) must equal BlockSize().
	WriteBlock(ctx context.Context, block uint32, p []byte) error
	// Sync flushes any buffered writes to stable storage.
	Sync(ctx context.Context) error
	// Close releases the device.
	Close() error
}

// check validates a block access against the device geometry.
func check(blockSize int, numBlocks, block uint32, p []byte) error {
	if block >= numBlocks {
		return fmt.Errorf("%w: block %d, device has %d", ErrOutOfRange, block, numBlocks)
	}
	if len(p) != blockSize {
		return &ErrShortBuffer{BlockSize: blockSize, Got: len(p)}
	}
	return nil
}
