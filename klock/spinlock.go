package klock

import (
	"runtime"
	"sync/atomic"
)

// SpinLock is a busy-waiting mutual exclusion lock.
//
// Contending goroutines yield the processor between CAS attempts instead of
// sleeping, so acquisition latency stays low for the short critical sections
// this lock is meant for (shard lookups, free-list push/pop, pool scans).
//
// The zero value is an unlocked SpinLock.
type SpinLock struct {
	state atomic.Uint32
}

// Lock acquires the lock, spinning until it is available.
func (l *SpinLock) Lock() {
	for !l.state.CompareAndSwap(0, 1) {
		runtime.Gosched()
	}
}

// TryLock acquires the lock without spinning.
// It returns false if the lock is held by someone else.
func (l *SpinLock) TryLock() bool {
	return l.state.CompareAndSwap(0, 1)
}

// Unlock releases the lock.
// Unlocking an unheld SpinLock panics.
func (l *SpinLock) Unlock() {
	if l.state.Swap(0) != 1 {
		panic("klock: unlock of unheld SpinLock")
	}
}
