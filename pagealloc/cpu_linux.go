//go:build linux

package pagealloc

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// defaultCoreID resolves the CPU the calling thread runs on via getcpu(2).
// The result is advisory: the goroutine may migrate before the core's list
// is locked, which only costs locality.
func defaultCoreID() func() int {
	return func() int {
		var cpu, node uint32
		_, _, errno := unix.Syscall(unix.SYS_GETCPU,
			uintptr(unsafe.Pointer(&cpu)), uintptr(unsafe.Pointer(&node)), 0)
		if errno != 0 {
			return 0
		}
		return int(cpu)
	}
}
