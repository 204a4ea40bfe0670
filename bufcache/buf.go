package bufcache

import (
	"github.com/hupe1980/diskcore/klock"
)

// DeviceID identifies one attached block device.
type DeviceID uint32

// BlockNum is a block number on a device.
type BlockNum uint32

// Buf is one cached device block.
//
// A Buf is owned exclusively by whoever holds its sleep lock; Data, Valid
// and Write may only be used while it is held. Bufs are preallocated when
// the cache is created and recycled in place, never freed.
type Buf struct {
	dev   DeviceID
	block BlockNum
	valid bool   // data reflects on-device contents
	ticks uint64 // last-access tick, 0 when refcnt drops to 0

	// refcnt is guarded by the cache's shard/global locks, never by lk.
	refcnt uint32

	data []byte
	lk   *klock.SleepLock

	// index of this Buf in the pool, fixed for its lifetime.
	index int
}

// Device returns the device identity of the cached block.
func (b *Buf) Device() DeviceID { return b.dev }

// Block returns the block number of the cached block.
func (b *Buf) Block() BlockNum { return b.block }

// Data returns the block payload. The caller must hold the buffer's lock;
// the slice is valid only until Release.
func (b *Buf) Data() []byte { return b.data }

// Valid reports whether the payload reflects on-device contents.
func (b *Buf) Valid() bool { return b.valid }
