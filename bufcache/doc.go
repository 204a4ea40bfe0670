// Package bufcache implements a shared cache of fixed-size device blocks.
//
// The cache serializes and deduplicates access to disk blocks across
// concurrent goroutines. Caching blocks in memory reduces device reads and
// also provides a synchronization point for blocks used by multiple tasks:
// at most one holder may use a given Buf at a time.
//
// Interface:
//   - To get a buffer for a particular block, call Read.
//   - After changing buffer data, call Write to flush it to the device.
//   - When done with the buffer, call Release. Do not use it afterwards.
//   - Pin/Unpin keep a buffer resident without holding its lock.
//
// # Lookup structure
//
// The pool of NBUF buffers carries a two-tier index: a small array of
// NBUCKET single-slot shards, each guarded by its own SpinLock, plus a
// globally locked authoritative scan over the whole pool. The fast path
// scans the shards linearly; a shard holds at most one buffer, so cache
// pressure quickly evicts shard visibility and lookups fall back to the
// global scan. This two-tier shape trades perfect hashing for simplicity
// and is load-bearing behavior, not an accident; do not replace it with a
// chained hash table.
//
// Recycling picks the first buffer with a zero reference count. The
// last-access tick is maintained on every touch but deliberately not
// consulted, so recycling is first-fit, not LRU.
package bufcache
