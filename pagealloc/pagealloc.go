package pagealloc

import (
	"encoding/binary"
	"fmt"

	"github.com/hupe1980/diskcore/internal/mmap"
	"github.com/hupe1980/diskcore/klock"
)

const (
	// DefaultPageSize is the default page size in bytes.
	DefaultPageSize = 4096

	// Junk fill patterns, distinct so a stray read tells which bug it hit.
	allocJunk = 0x05 // page handed out but never written
	freeJunk  = 0x01 // dangling access to a freed page

	// nilPage terminates a free list.
	nilPage = ^uint64(0)
)

// Address is the page-aligned byte offset of a page within the arena.
type Address uint64

// freeList is one core's stack of free pages.
type freeList struct {
	lk   klock.SpinLock
	head uint64 // arena offset of the top free page, nilPage if empty
}

// Allocator hands out fixed-size pages from a per-core partitioned arena.
type Allocator struct {
	mapping *mmap.Mapping
	arena   []byte

	pageSize  int
	coreBytes uint64 // bytes per core partition
	cores     []freeList

	coreID func() int
	poison bool
	audit  *audit
}

// Option configures an Allocator.
type Option func(*Allocator)

// WithPageSize sets the page size in bytes.
func WithPageSize(n int) Option {
	return func(a *Allocator) {
		if n > 0 {
			a.pageSize = n
		}
	}
}

// WithoutPoison disables the diagnostic junk fill on alloc and free.
func WithoutPoison() Option {
	return func(a *Allocator) {
		a.poison = false
	}
}

// WithCoreID overrides the core-id source used by the allocation fast
// path. Useful in tests to force a specific core's list.
func WithCoreID(coreID func() int) Option {
	return func(a *Allocator) {
		if coreID != nil {
			a.coreID = coreID
		}
	}
}

// WithAudit enables outstanding-page tracking. Free panics on pages that
// were never handed out, and Verify can check page conservation.
func WithAudit() Option {
	return func(a *Allocator) {
		a.audit = newAudit()
	}
}

// New creates an Allocator with numCores partitions of pagesPerCore pages
// each, backed by a fresh anonymous mapping. Every page starts on the free
// list of the core owning its address range.
func New(numCores, pagesPerCore int, opts ...Option) (*Allocator, error) {
	if numCores <= 0 {
		return nil, fmt.Errorf("pagealloc: invalid core count %d", numCores)
	}
	if pagesPerCore <= 0 {
		return nil, fmt.Errorf("pagealloc: invalid pages per core %d", pagesPerCore)
	}

	a := &Allocator{
		pageSize: DefaultPageSize,
		cores:    make([]freeList, numCores),
		coreID:   defaultCoreID(),
		poison:   true,
	}
	for _, opt := range opts {
		opt(a)
	}

	a.coreBytes = uint64(pagesPerCore) * uint64(a.pageSize)

	mapping, err := mmap.MapAnon(numCores * pagesPerCore * a.pageSize)
	if err != nil {
		return nil, fmt.Errorf("pagealloc: arena mapping failed: %w", err)
	}
	a.mapping = mapping
	a.arena = mapping.Bytes()

	for i := range a.cores {
		a.cores[i].head = nilPage
		base := uint64(i) * a.coreBytes
		// Ascending push order, so pop order is descending.
		for off := base; off < base+a.coreBytes; off += uint64(a.pageSize) {
			a.freePage(Address(off))
		}
	}

	return a, nil
}

// PageSize returns the page size in bytes.
func (a *Allocator) PageSize() int { return a.pageSize }

// NumCores returns the number of per-core partitions.
func (a *Allocator) NumCores() int { return len(a.cores) }

// TotalPages returns the number of pages in the arena.
func (a *Allocator) TotalPages() int {
	return len(a.arena) / a.pageSize
}

// Bytes returns the page at addr. The caller must own the page (allocated
// and not freed); the slice is valid until the page is freed or the
// allocator closed.
func (a *Allocator) Bytes(addr Address) []byte {
	a.checkAddr(addr)
	return a.arena[addr : uint64(addr)+uint64(a.pageSize)]
}

// Alloc takes one page, preferring the calling core's free list and
// stealing from the other lists (scanning from core 0) when it is empty.
// It returns false when every list is empty; callers must treat that as a
// recoverable out-of-memory condition, not a fatal error.
func (a *Allocator) Alloc() (Address, bool) {
	core := a.coreID() % len(a.cores)

	addr, ok := a.pop(core)
	if !ok {
		for j := range a.cores {
			if addr, ok = a.pop(j); ok {
				break
			}
		}
	}
	if !ok {
		return 0, false
	}

	if a.poison {
		fill(a.arena[addr:uint64(addr)+uint64(a.pageSize)], allocJunk)
	}
	if a.audit != nil {
		a.audit.onAlloc(a.pageIndex(addr))
	}
	return addr, true
}

// Free returns a page to the free list of the core owning its address
// range, regardless of the calling core. Freeing a misaligned or
// out-of-range address panics: that is a corruption-level bug, not a
// recoverable condition.
func (a *Allocator) Free(addr Address) {
	a.checkAddr(addr)
	if a.audit != nil && !a.audit.onFree(a.pageIndex(addr)) {
		panic(fmt.Sprintf("pagealloc: free of unallocated page %#x", uint64(addr)))
	}
	a.freePage(addr)
}

// freePage pushes addr onto its owning core's list.
func (a *Allocator) freePage(addr Address) {
	page := a.arena[addr : uint64(addr)+uint64(a.pageSize)]
	if a.poison {
		// Fill with junk to catch dangling refs. The head link below
		// overwrites the first word.
		fill(page, freeJunk)
	}

	core := int(uint64(addr) / a.coreBytes)
	fl := &a.cores[core]

	fl.lk.Lock()
	binary.LittleEndian.PutUint64(page, fl.head)
	fl.head = uint64(addr)
	fl.lk.Unlock()
}

// pop takes the top page off one core's list.
func (a *Allocator) pop(core int) (Address, bool) {
	fl := &a.cores[core]
	fl.lk.Lock()
	head := fl.head
	if head == nilPage {
		fl.lk.Unlock()
		return 0, false
	}
	fl.head = binary.LittleEndian.Uint64(a.arena[head : head+8])
	fl.lk.Unlock()
	return Address(head), true
}

// FreePages counts the pages currently on free lists. The count is exact
// only at quiescent points.
func (a *Allocator) FreePages() int {
	total := 0
	for i := range a.cores {
		fl := &a.cores[i]
		fl.lk.Lock()
		for off := fl.head; off != nilPage; off = binary.LittleEndian.Uint64(a.arena[off : off+8]) {
			total++
		}
		fl.lk.Unlock()
	}
	return total
}

// Close releases the arena. Outstanding page slices become invalid.
func (a *Allocator) Close() error {
	return a.mapping.Close()
}

func (a *Allocator) checkAddr(addr Address) {
	if uint64(addr)%uint64(a.pageSize) != 0 || uint64(addr) >= uint64(len(a.arena)) {
		panic(fmt.Sprintf("pagealloc: bad page address %#x", uint64(addr)))
	}
}

func (a *Allocator) pageIndex(addr Address) uint32 {
	return uint32(uint64(addr) / uint64(a.pageSize))
}

func fill(p []byte, b byte) {
	for i := range p {
		p[i] = b
	}
}
