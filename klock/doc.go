// Package klock provides the two lock primitives used by the diskcore
// subsystems: a busy-waiting SpinLock for short bounded critical sections
// and a blocking SleepLock that deschedules waiters, safe to hold across
// long-latency operations such as device I/O.
//
// The two primitives are deliberately kept separate. A SpinLock must never
// be held across an operation that can block; a SleepLock must never guard
// a section short enough that descheduling costs more than spinning.
//
// Neither lock is reentrant and neither guarantees FIFO ordering among
// waiters. Unlocking a lock that is not held is a programming bug and
// panics.
package klock
