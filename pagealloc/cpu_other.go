//go:build !linux

package pagealloc

import (
	"runtime"
	"sync/atomic"
)

// defaultCoreID spreads callers round-robin across the core count on
// platforms without a cheap current-CPU syscall. The assignment carries no
// real locality, but it keeps the lists evenly loaded.
func defaultCoreID() func() int {
	var counter atomic.Uint64
	ncpu := uint64(runtime.NumCPU())
	return func() int {
		return int(counter.Add(1) % ncpu)
	}
}
