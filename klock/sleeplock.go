package klock

// SleepLock is a blocking mutual exclusion lock.
//
// A goroutine that contends on Lock is parked by the runtime rather than
// busy-waiting, which makes the lock safe to hold across long-latency
// operations such as block device reads and writes.
//
// SleepLock is not reentrant: a holder that calls Lock again deadlocks.
// There is no cancellation and no fairness guarantee among waiters.
type SleepLock struct {
	ch chan struct{}
}

// NewSleepLock returns an unlocked SleepLock.
func NewSleepLock() *SleepLock {
	return &SleepLock{ch: make(chan struct{}, 1)}
}

// Lock acquires the lock, parking the calling goroutine until it is
// available. The wait is unbounded.
func (l *SleepLock) Lock() {
	l.ch <- struct{}{}
}

// TryLock acquires the lock without blocking.
// It returns false if the lock is held by someone else.
func (l *SleepLock) TryLock() bool {
	select {
	case l.ch <- struct{}{}:
		return true
	default:
		return false
	}
}

// Unlock releases the lock.
// Unlocking an unheld SleepLock panics.
func (l *SleepLock) Unlock() {
	select {
	case <-l.ch:
	default:
		panic("klock: unlock of unheld SleepLock")
	}
}

// Held reports whether the lock is currently held by some goroutine.
//
// Go does not expose goroutine identity, so Held cannot distinguish the
// caller from another holder. Callers that use Held as a misuse check rely
// on the protocol that only the lock holder reaches the checking code.
func (l *SleepLock) Held() bool {
	return len(l.ch) == 1
}
