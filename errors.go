package diskcore

import (
	"errors"
	"fmt"
)

var (
	// ErrDeviceNotFound is returned when no device is attached under the
	// given ID.
	ErrDeviceNotFound = errors.New("device not found")

	// ErrDeviceExists is returned when attaching over an occupied device ID.
	ErrDeviceExists = errors.New("device already attached")
)

// ErrBlockSizeMismatch indicates a device whose block size does not match
// the cache's.
type ErrBlockSizeMismatch struct {
	Device DeviceID
	Want   int
	Got    int
}

func (e *ErrBlockSizeMismatch) Error() string {
	return fmt.Sprintf("block size mismatch on device %d: cache uses %d, device uses %d", e.Device, e.Want, e.Got)
}
