package device

import (
	"context"
	"errors"
	"sync"
)

// ErrInjected is the default error returned by a tripped FaultyDevice rule.
var ErrInjected = errors.New("device: injected fault")

// Fault defines specific failure behavior for a FaultyDevice.
type Fault struct {
	FailReadsAfter  int64 // Fail reads after this many successful reads. -1 to disable.
	FailWritesAfter int64 // Fail writes after this many successful writes. -1 to disable.
	FailOnSync      bool
	Err             error // Error to return; defaults to ErrInjected.
}

// FaultyDevice is a Device wrapper that can inject errors, used to test
// how callers behave when the underlying transport fails.
type FaultyDevice struct {
	Dev Device

	mu     sync.Mutex
	fault  Fault
	blocks map[uint32]error // Per-block read faults
	reads  int64
	writes int64
}

// NewFaultyDevice creates a FaultyDevice wrapping dev with no faults armed.
func NewFaultyDevice(dev Device) *FaultyDevice {
	return &FaultyDevice{
		Dev: dev,
		fault: Fault{
			FailReadsAfter:  -1,
			FailWritesAfter: -1,
		},
		blocks: make(map[uint32]error),
	}
}

// SetFault arms the global fault rule.
func (d *FaultyDevice) SetFault(fault Fault) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fault = fault
}

// FailBlock arms a read fault for one specific block.
func (d *FaultyDevice) FailBlock(block uint32, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		err = ErrInjected
	}
	d.blocks[block] = err
}

// ClearFaults disarms all fault rules.
func (d *FaultyDevice) ClearFaults() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fault = Fault{FailReadsAfter: -1, FailWritesAfter: -1}
	d.blocks = make(map[uint32]error)
}

func (d *FaultyDevice) err() error {
	if d.fault.Err != nil {
		return d.fault.Err
	}
	return ErrInjected
}

// BlockSize returns the wrapped device's block size.
func (d *FaultyDevice) BlockSize() int { return d.Dev.BlockSize() }

// NumBlocks returns the wrapped device's block count.
func (d *FaultyDevice) NumBlocks() uint32 { return d.Dev.NumBlocks() }

// ReadBlock delegates to the wrapped device unless a fault rule trips.
func (d *FaultyDevice) ReadBlock(ctx context.Context, block uint32, p []byte) error {
	d.mu.Lock()
	if err, ok := d.blocks[block]; ok {
		d.mu.Unlock()
		return err
	}
	if d.fault.FailReadsAfter >= 0 && d.reads >= d.fault.FailReadsAfter {
		err := d.err()
		d.mu.Unlock()
		return err
	}
	d.reads++
	d.mu.Unlock()

	return d.Dev.ReadBlock(ctx, block, p)
}

// WriteBlock delegates to the wrapped device unless a fault rule trips.
func (d *FaultyDevice) WriteBlock(ctx context.Context, block uint32, p []byte) error {
	d.mu.Lock()
	if d.fault.FailWritesAfter >= 0 && d.writes >= d.fault.FailWritesAfter {
		err := d.err()
		d.mu.Unlock()
		return err
	}
	d.writes++
	d.mu.Unlock()

	return d.Dev.WriteBlock(ctx, block, p)
}

// Sync delegates to the wrapped device unless FailOnSync is armed.
func (d *FaultyDevice) Sync(ctx context.Context) error {
	d.mu.Lock()
	if d.fault.FailOnSync {
		err := d.err()
		d.mu.Unlock()
		return err
	}
	d.mu.Unlock()
	return d.Dev.Sync(ctx)
}

// Close closes the wrapped device.
func (d *FaultyDevice) Close() error { return d.Dev.Close() }
