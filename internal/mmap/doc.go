// Package mmap provides anonymous memory mappings for the page allocator
// arena.
//
// MapAnon creates a read-write anonymous mapping outside the Go garbage
// collector's control. The allocator treats the mapping as raw physical
// memory: pages are byte ranges of the mapping and the free lists are
// threaded through the pages themselves.
//
// The package presents a unified API across platforms:
//
//   - Unix (Linux, macOS, BSD): mmap(2) with MAP_ANON
//   - Windows: VirtualAlloc with MEM_RESERVE | MEM_COMMIT
package mmap
