package pagealloc

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// fixedCore pins the allocator's notion of the calling core for tests.
func fixedCore(core *int) Option {
	return WithCoreID(func() int { return *core })
}

func TestAllocator_New(t *testing.T) {
	a, err := New(2, 4, WithPageSize(512))
	require.NoError(t, err)
	defer a.Close()

	require.Equal(t, 512, a.PageSize())
	require.Equal(t, 2, a.NumCores())
	require.Equal(t, 8, a.TotalPages())
	require.Equal(t, 8, a.FreePages())
}

func TestAllocator_InvalidGeometry(t *testing.T) {
	_, err := New(0, 4)
	require.Error(t, err)

	_, err = New(2, 0)
	require.Error(t, err)
}

func TestAllocator_LocalPopOrderDescending(t *testing.T) {
	core := 0
	a, err := New(2, 4, WithPageSize(512), fixedCore(&core))
	require.NoError(t, err)
	defer a.Close()

	// Core 0 owns offsets 0, 512, 1024, 1536; pushes were ascending, so
	// pops come back descending.
	want := []Address{1536, 1024, 512, 0}
	for _, w := range want {
		addr, ok := a.Alloc()
		require.True(t, ok)
		require.Equal(t, w, addr)
	}
}

func TestAllocator_StealsFromCoreZeroOrder(t *testing.T) {
	// Two cores with four pages each. Core 0 drains its own list, then the
	// fifth allocation steals core 1's top page.
	core := 0
	a, err := New(2, 4, WithPageSize(512), fixedCore(&core))
	require.NoError(t, err)
	defer a.Close()

	for it := 0; it < 4; it++ {
		_, ok := a.Alloc()
		require.True(t, ok)
	}

	addr, ok := a.Alloc()
	require.True(t, ok)
	// Core 1's partition is offsets 2048..3584; its top is the highest.
	require.Equal(t, Address(3584), addr)
}

func TestAllocator_FreeRoutesByAddress(t *testing.T) {
	core := 0
	a, err := New(2, 4, WithPageSize(512), fixedCore(&core))
	require.NoError(t, err)
	defer a.Close()

	addr, ok := a.Alloc() // from core 0's partition
	require.True(t, ok)
	require.Less(t, uint64(addr), uint64(2048))

	// Free from "core 1": the page still returns to core 0's list.
	core = 1
	a.Free(addr)

	// Core 1's own list is untouched (4 pages); core 0 has its page back.
	core = 0
	got, ok := a.Alloc()
	require.True(t, ok)
	require.Equal(t, addr, got)
}

func TestAllocator_RoundTripReusesPage(t *testing.T) {
	core := 0
	a, err := New(1, 4, WithPageSize(512), fixedCore(&core))
	require.NoError(t, err)
	defer a.Close()

	addr, ok := a.Alloc()
	require.True(t, ok)
	a.Free(addr)

	again, ok := a.Alloc()
	require.True(t, ok)
	require.Equal(t, addr, again)
}

func TestAllocator_ExhaustionReturnsFalse(t *testing.T) {
	a, err := New(2, 2, WithPageSize(512))
	require.NoError(t, err)
	defer a.Close()

	for it := 0; it < 4; it++ {
		_, ok := a.Alloc()
		require.True(t, ok)
	}

	_, ok := a.Alloc()
	require.False(t, ok)
	require.Equal(t, 0, a.FreePages())
}

func TestAllocator_JunkFill(t *testing.T) {
	a, err := New(1, 2, WithPageSize(512))
	require.NoError(t, err)
	defer a.Close()

	addr, ok := a.Alloc()
	require.True(t, ok)

	page := a.Bytes(addr)
	for _, b := range page {
		require.Equal(t, byte(allocJunk), b)
	}

	a.Free(addr)
	// The first word now holds the free-list link; the rest is the free
	// pattern.
	for _, b := range page[8:] {
		require.Equal(t, byte(freeJunk), b)
	}
}

func TestAllocator_WithoutPoison(t *testing.T) {
	a, err := New(1, 2, WithPageSize(512), WithoutPoison())
	require.NoError(t, err)
	defer a.Close()

	addr, ok := a.Alloc()
	require.True(t, ok)

	page := a.Bytes(addr)
	page[100] = 0xBE
	a.Free(addr)

	again, ok := a.Alloc()
	require.True(t, ok)
	require.Equal(t, addr, again)
	// No fill: previous contents survive outside the link word.
	require.Equal(t, byte(0xBE), a.Bytes(again)[100])
}

func TestAllocator_FreeMisusePanics(t *testing.T) {
	a, err := New(1, 4, WithPageSize(512))
	require.NoError(t, err)
	defer a.Close()

	require.Panics(t, func() { a.Free(Address(100)) })        // misaligned
	require.Panics(t, func() { a.Free(Address(512 * 1000)) }) // out of range
}

func TestAllocator_AuditDoubleFreePanics(t *testing.T) {
	a, err := New(1, 4, WithPageSize(512), WithAudit())
	require.NoError(t, err)
	defer a.Close()

	addr, ok := a.Alloc()
	require.True(t, ok)
	a.Free(addr)

	require.Panics(t, func() { a.Free(addr) })
}

func TestAllocator_Verify(t *testing.T) {
	a, err := New(2, 8, WithPageSize(512), WithAudit())
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.Verify())

	var held []Address
	for it := 0; it < 5; it++ {
		addr, ok := a.Alloc()
		require.True(t, ok)
		held = append(held, addr)
	}

	require.Equal(t, uint64(5), a.Outstanding())
	require.Equal(t, 11, a.FreePages())
	require.NoError(t, a.Verify())

	for _, addr := range held {
		a.Free(addr)
	}
	require.Equal(t, uint64(0), a.Outstanding())
	require.NoError(t, a.Verify())
}

func TestAllocator_VerifyRequiresAudit(t *testing.T) {
	a, err := New(1, 2, WithPageSize(512))
	require.NoError(t, err)
	defer a.Close()

	require.ErrorIs(t, a.Verify(), ErrAuditDisabled)
}

func TestAllocator_ConcurrentConservation(t *testing.T) {
	a, err := New(4, 64, WithPageSize(512), WithAudit())
	require.NoError(t, err)
	defer a.Close()

	var g errgroup.Group
	for it := 0; it < 8; it++ {
		g.Go(func() error {
			var held []Address
			for it := 0; it < 200; it++ {
				if addr, ok := a.Alloc(); ok {
					page := a.Bytes(addr)
					page[0] = 0xFF // exercise the page while owned
					held = append(held, addr)
				}
				if len(held) > 16 {
					a.Free(held[0])
					held = held[1:]
				}
			}
			for _, addr := range held {
				a.Free(addr)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	require.NoError(t, a.Verify())
	require.Equal(t, uint64(0), a.Outstanding())
	require.Equal(t, 4*64, a.FreePages())
}

func TestAllocator_DataIntegrityAcrossCores(t *testing.T) {
	a, err := New(2, 16, WithPageSize(512), WithoutPoison())
	require.NoError(t, err)
	defer a.Close()

	var g errgroup.Group
	for w := 0; w < 4; w++ {
		w := w
		g.Go(func() error {
			for it := 0; it < 100; it++ {
				addr, ok := a.Alloc()
				if !ok {
					continue
				}
				page := a.Bytes(addr)
				for i := range page {
					page[i] = byte(w)
				}
				// Owned pages are never touched by other goroutines.
				for i := range page {
					if page[i] != byte(w) {
						panic("page mutated while owned")
					}
				}
				a.Free(addr)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}
