// Package pagealloc implements a physical-style page allocator over an
// anonymous memory arena.
//
// The arena is partitioned at construction into one contiguous region per
// core. Each core owns a free-page stack guarded by its own SpinLock, so
// the allocation fast path touches only core-local state. A core whose
// list runs dry steals from the other lists, scanning from core 0.
//
// Free routing is by address, not by freeing core: a page always returns
// to the list of the core that owns its address range. This preserves
// partition locality even under asymmetric alloc/free patterns.
//
// Free lists are threaded through the free pages themselves; the first
// eight bytes of a free page hold the arena offset of the next free page.
// Pages are junk-filled on allocation (0x05) and on free (0x01) so that
// reads of uninitialized or dangling pages are detectable; the fill can be
// disabled for non-debug use.
//
// The core id used for the fast path is advisory. Go cannot pin a
// goroutine to a core around the lookup, so the id may be stale by the
// time the list is locked; a stale id costs locality, never correctness.
package pagealloc
