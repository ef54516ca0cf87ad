package pinheap_test

import (
	"sync"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"

	"pinheap"
)

// cell is a minimal cons-cell: one scalar field and one optional outgoing
// edge, standing in for what a real derivation mechanism would generate:
// a host would normally generate this, its conversion pair, and its
// trace function instead of hand-writing them.
type cell struct {
	head  int
	child unsafe.Pointer
}

func cellDescriptor(destroyed *int) *pinheap.Descriptor[cell] {
	var desc *pinheap.Descriptor[cell]
	desc = pinheap.Register[cell]("cell",
		func(c *cell, t *pinheap.Tracer) {
			pinheap.Trace(t, c.child, desc)
		},
		func(c *cell) {
			if destroyed != nil {
				*destroyed++
			}
		},
	)
	return desc
}

func TestTwoAllocationsSucceed(t *testing.T) {
	h := pinheap.New()
	defer h.Close()
	desc := cellDescriptor(nil)

	pinheap.With(h, func(s *pinheap.Session) int {
		a := pinheap.Alloc(s, desc, cell{head: 1})
		b := pinheap.Alloc(s, desc, cell{head: 2})

		require.Equal(t, 1, a.Get().head)
		require.Equal(t, 2, b.Get().head)

		a.Release()
		b.Release()
		return 0
	})
}

func TestCyclicReclamation(t *testing.T) {
	h := pinheap.New()
	defer h.Close()
	desc := cellDescriptor(nil)

	pinheap.With(h, func(s *pinheap.Session) int {
		r := pinheap.Alloc(s, desc, cell{head: 42})

		pinheap.SetField(&r.Get().child, r.Clone())
		r.Release() // drop the external handle; the clone handed to SetField still pins it
		r.Release() // and that clone's pin: now only the unpinned self-edge refers to it

		pinheap.ForceGC(s)
		require.True(t, pinheap.IsEmpty(s, desc))
		return 0
	})
}

func TestPinProtectsFromGC(t *testing.T) {
	h := pinheap.New()
	defer h.Close()
	desc := cellDescriptor(nil)

	pinheap.With(h, func(s *pinheap.Session) int {
		r := pinheap.Alloc(s, desc, cell{head: 7})

		pinheap.ForceGC(s)
		require.Equal(t, 7, r.Get().head)
		require.False(t, pinheap.IsEmpty(s, desc))

		r.Release()
		pinheap.ForceGC(s)
		require.True(t, pinheap.IsEmpty(s, desc))
		return 0
	})
}

func TestDeferredUnpinViaFrozenRef(t *testing.T) {
	h := pinheap.New()
	defer h.Close()
	desc := cellDescriptor(nil)

	pinheap.With(h, func(s *pinheap.Session) int {
		r := pinheap.Alloc(s, desc, cell{head: 99})

		fr := pinheap.Freeze(s, r)
		r.Release()

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			fr.Release()
		}()
		wg.Wait()

		pinheap.ForceGC(s)
		require.True(t, pinheap.IsEmpty(s, desc))
		return 0
	})
}

func TestPageLimitForcesAllocationFailure(t *testing.T) {
	h := pinheap.New()
	defer h.Close()
	desc := cellDescriptor(nil)

	pinheap.With(h, func(s *pinheap.Session) int {
		pinheap.SetPageLimit(s, desc, 1)

		var refs []pinheap.Ref[cell]
		var failure error
		for i := 0; i < 100000; i++ {
			r, err := pinheap.TryAlloc(s, desc, cell{head: i})
			if err != nil {
				failure = err
				break
			}
			refs = append(refs, r)
		}
		require.ErrorIs(t, failure, pinheap.ErrOutOfCapacity)

		for _, r := range refs {
			r.Release()
		}
		return 0
	})
}

// TestAllocPanicsOnOutOfCapacity covers Alloc's fatal-convenience half of
// spec.md §7 item 1: TryAlloc's recoverable ErrOutOfCapacity is the thing
// Alloc converts into a panic rather than returning, for hosts with no
// graceful degradation path for running out of heap.
func TestAllocPanicsOnOutOfCapacity(t *testing.T) {
	h := pinheap.New()
	defer h.Close()
	desc := cellDescriptor(nil)

	pinheap.With(h, func(s *pinheap.Session) int {
		pinheap.SetPageLimit(s, desc, 1)

		var refs []pinheap.Ref[cell]
		require.Panics(t, func() {
			for i := 0; i < 100000; i++ {
				refs = append(refs, pinheap.Alloc(s, desc, cell{head: i}))
			}
		})

		for _, r := range refs {
			r.Release()
		}
		return 0
	})
}

func TestCrossHeapThawAborts(t *testing.T) {
	h1 := pinheap.New()
	defer h1.Close()
	h2 := pinheap.New()
	defer h2.Close()
	desc := cellDescriptor(nil)

	var fr pinheap.FrozenRef[cell]
	pinheap.With(h1, func(s *pinheap.Session) int {
		r := pinheap.Alloc(s, desc, cell{head: 1})
		fr = pinheap.Freeze(s, r)
		r.Release()
		return 0
	})

	require.Panics(t, func() {
		pinheap.With(h2, func(s *pinheap.Session) int {
			pinheap.Thaw(s, fr)
			return 0
		})
	})

	fr.Release() // otherwise h1.Close would panic on the leaked pin
}

func TestDestructorInvokedExactlyOnceAtCollection(t *testing.T) {
	h := pinheap.New()
	defer h.Close()
	var destroyed int
	desc := cellDescriptor(&destroyed)

	pinheap.With(h, func(s *pinheap.Session) int {
		r := pinheap.Alloc(s, desc, cell{head: 1})
		r.Release()

		pinheap.ForceGC(s)
		require.Equal(t, 1, destroyed)

		pinheap.ForceGC(s)
		require.Equal(t, 1, destroyed)
		return 0
	})
}

func TestForceGCIdempotentWithNoIntermediateAllocation(t *testing.T) {
	h := pinheap.New()
	defer h.Close()
	desc := cellDescriptor(nil)

	pinheap.With(h, func(s *pinheap.Session) int {
		r := pinheap.Alloc(s, desc, cell{head: 1})

		before := pinheap.IsEmpty(s, desc)
		pinheap.ForceGC(s)
		pinheap.ForceGC(s)
		pinheap.ForceGC(s)
		after := pinheap.IsEmpty(s, desc)
		require.Equal(t, before, after)
		require.False(t, after)

		r.Release()
		return 0
	})
}

func TestThawRoundTripPreservesPinBalance(t *testing.T) {
	h := pinheap.New()
	defer h.Close()
	desc := cellDescriptor(nil)

	pinheap.With(h, func(s *pinheap.Session) int {
		r := pinheap.Alloc(s, desc, cell{head: 5})

		fr := pinheap.Freeze(s, r)
		r2 := pinheap.Thaw(s, fr)
		require.Equal(t, r.Addr(), r2.Addr())

		r.Release()
		r2.Release()

		pinheap.ForceGC(s)
		require.True(t, pinheap.IsEmpty(s, desc))
		return 0
	})
}

func TestSessionSingleExclusiveHandle(t *testing.T) {
	h := pinheap.New()
	defer h.Close()

	s := h.Enter()
	require.Panics(t, func() { h.Enter() })
	s.Close()

	s2 := h.Enter()
	s2.Close()
}

func TestHeapCloseFreesEverythingWhenNoRefLeaked(t *testing.T) {
	h := pinheap.New()
	desc := cellDescriptor(nil)

	pinheap.With(h, func(s *pinheap.Session) int {
		r := pinheap.Alloc(s, desc, cell{head: 1})
		r.Release()
		return 0
	})

	require.NotPanics(t, func() { h.Close() })
}

func TestHeapClosePanicsOnLeakedPin(t *testing.T) {
	h := pinheap.New()

	pinheap.With(h, func(s *pinheap.Session) int {
		desc := cellDescriptor(nil)
		_ = pinheap.Alloc(s, desc, cell{head: 1})
		return 0
	})

	require.Panics(t, func() { h.Close() })
}

func TestZeroSizeTypeStillAllocatesAFullSlot(t *testing.T) {
	type marker struct{}
	desc := pinheap.Register[marker]("marker", func(*marker, *pinheap.Tracer) {}, nil)

	h := pinheap.New()
	defer h.Close()

	pinheap.With(h, func(s *pinheap.Session) int {
		r := pinheap.Alloc(s, desc, marker{})
		require.NotNil(t, r.Addr())
		r.Release()
		return 0
	})
}

func TestSetPageLimitBelowCurrentCountPreventsGrowthOnly(t *testing.T) {
	h := pinheap.New()
	defer h.Close()
	desc := cellDescriptor(nil)

	pinheap.With(h, func(s *pinheap.Session) int {
		pinheap.SetPageLimit(s, desc, 2)

		var refs []pinheap.Ref[cell]
		for {
			r, err := pinheap.TryAlloc(s, desc, cell{head: len(refs)})
			if err != nil {
				require.ErrorIs(t, err, pinheap.ErrOutOfCapacity)
				break
			}
			refs = append(refs, r)
		}

		pageCountAt2 := statsFor(h, "cell").PageCount
		require.Equal(t, 2, pageCountAt2)

		pinheap.SetPageLimit(s, desc, 1) // below current count: no growth, nothing freed
		_, err := pinheap.TryAlloc(s, desc, cell{head: -1})
		require.ErrorIs(t, err, pinheap.ErrOutOfCapacity)
		require.Equal(t, pageCountAt2, statsFor(h, "cell").PageCount)

		for _, r := range refs {
			r.Release()
		}
		return 0
	})
}

func statsFor(h *pinheap.Heap, name string) pinheap.TypeStats {
	for _, st := range h.Stats() {
		if st.Name == name {
			return st
		}
	}
	return pinheap.TypeStats{}
}

func TestIdentityAliveTracksHeapLifetime(t *testing.T) {
	h := pinheap.New()
	id := h.Identity()
	require.True(t, id.Alive())
	h.Close()
	require.False(t, id.Alive())
}
