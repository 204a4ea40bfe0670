// Package device abstracts fixed-block-size storage devices for the buffer
// cache.
//
// A Device exposes a flat array of equally sized blocks addressed by block
// number. The buffer cache treats block contents as opaque payload bytes;
// no on-disk format is owned here.
//
// Implementations:
//
//   - MemDevice: in-memory device for tests and ephemeral workloads
//   - FileDevice: a local file, one block per blockSize-aligned slot
//   - FaultyDevice: error-injection wrapper for fault testing
//   - ThrottledDevice: byte-rate limited wrapper
//   - CompressedDevice: per-block LZ4/ZSTD compression wrapper
//
// Cloud-backed devices live in the device/s3 and device/minio subpackages.
package device
