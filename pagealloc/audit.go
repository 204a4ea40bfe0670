package pagealloc

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/diskcore/klock"
)

// ErrAuditDisabled is returned by Verify when the allocator was built
// without WithAudit.
var ErrAuditDisabled = errors.New("pagealloc: audit disabled")

// audit tracks pages that are handed out but not yet freed.
type audit struct {
	lk          klock.SpinLock
	outstanding *roaring.Bitmap // page indexes
}

func newAudit() *audit {
	return &audit{outstanding: roaring.New()}
}

func (au *audit) onAlloc(idx uint32) {
	au.lk.Lock()
	au.outstanding.Add(idx)
	au.lk.Unlock()
}

// onFree clears the outstanding bit and reports whether it was set.
func (au *audit) onFree(idx uint32) bool {
	au.lk.Lock()
	present := au.outstanding.CheckedRemove(idx)
	au.lk.Unlock()
	return present
}

// Outstanding returns the number of pages currently handed out. Requires
// WithAudit; returns 0 otherwise.
func (a *Allocator) Outstanding() uint64 {
	if a.audit == nil {
		return 0
	}
	a.audit.lk.Lock()
	n := a.audit.outstanding.GetCardinality()
	a.audit.lk.Unlock()
	return n
}

// Verify checks page conservation at a quiescent point: every page in the
// arena is either on exactly one free list or outstanding, never both and
// never neither. It returns nil when the invariant holds.
//
// Verify locks every core list while walking it; callers must not run it
// concurrently with Alloc or Free and expect an exact answer.
func (a *Allocator) Verify() error {
	if a.audit == nil {
		return ErrAuditDisabled
	}

	free := roaring.New()
	for i := range a.cores {
		fl := &a.cores[i]
		fl.lk.Lock()
		for off := fl.head; off != nilPage; off = binary.LittleEndian.Uint64(a.arena[off : off+8]) {
			idx := uint32(off / uint64(a.pageSize))
			if free.Contains(idx) {
				fl.lk.Unlock()
				return fmt.Errorf("pagealloc: page %d on a free list twice", idx)
			}
			free.Add(idx)
		}
		fl.lk.Unlock()
	}

	a.audit.lk.Lock()
	outstanding := a.audit.outstanding.Clone()
	a.audit.lk.Unlock()

	if both := roaring.And(free, outstanding); !both.IsEmpty() {
		return fmt.Errorf("pagealloc: %d pages both free and outstanding (first: %d)",
			both.GetCardinality(), both.Minimum())
	}

	all := roaring.Or(free, outstanding)
	total := uint64(a.TotalPages())
	if all.GetCardinality() != total {
		return fmt.Errorf("pagealloc: %d of %d pages lost", total-all.GetCardinality(), total)
	}
	return nil
}
