package device

import (
	"context"

	"golang.org/x/time/rate"
)

// ThrottledDevice wraps a Device with byte-rate limiting. It is intended
// for background work (scrubbing, migration) that must not starve
// foreground I/O on the same device.
type ThrottledDevice struct {
	Dev     Device
	limiter *rate.Limiter
}

// NewThrottledDevice creates a ThrottledDevice limited to bytesPerSec of
// combined read+write throughput. The burst is one block so a single
// operation never deadlocks on the limiter.
func NewThrottledDevice(dev Device, bytesPerSec int64) *ThrottledDevice {
	burst := dev.BlockSize()
	if int64(burst) < bytesPerSec {
		burst = int(bytesPerSec)
	}
	return &ThrottledDevice{
		Dev:     dev,
		limiter: rate.NewLimiter(rate.Limit(bytesPerSec), burst),
	}
}

// BlockSize returns the wrapped device's block size.
func (d *ThrottledDevice) BlockSize() int { return d.Dev.BlockSize() }

// NumBlocks returns the wrapped device's block count.
func (d *ThrottledDevice) NumBlocks() uint32 { return d.Dev.NumBlocks() }

// ReadBlock waits for rate budget, then delegates.
func (d *ThrottledDevice) ReadBlock(ctx context.Context, block uint32, p []byte) error {
	if err := d.limiter.WaitN(ctx, len(p)); err != nil {
		return err
	}
	return d.Dev.ReadBlock(ctx, block, p)
}

// WriteBlock waits for rate budget, then delegates.
func (d *ThrottledDevice) WriteBlock(ctx context.Context, block uint32, p []byte) error {
	if err := d.limiter.WaitN(ctx, len(p)); err != nil {
		return err
	}
	return d.Dev.WriteBlock(ctx, block, p)
}

// Sync delegates to the wrapped device.
func (d *ThrottledDevice) Sync(ctx context.Context) error { return d.Dev.Sync(ctx) }

// Close closes the wrapped device.
func (d *ThrottledDevice) Close() error { return d.Dev.Close() }
