package pinheap_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"pinheap"
)

// TestOversizedTypeIsRejected exercises the boundary behaviour
// (in-heap size exceeding page_size - header_size is rejected): the
// first allocation for such a type has nowhere to land and newPage
// panics rather than silently truncating or spilling across pages.
func TestOversizedTypeIsRejected(t *testing.T) {
	type tooBig struct {
		payload [4096]byte
	}
	desc := pinheap.Register[tooBig]("too-big", func(*tooBig, *pinheap.Tracer) {}, nil)

	h := pinheap.New()
	defer h.Close()

	require.Panics(t, func() {
		pinheap.With(h, func(s *pinheap.Session) int {
			_, _ = pinheap.TryAlloc(s, desc, tooBig{})
			return 0
		})
	})
}

// TestSlotsFittingExactlyOnePerPagePlaceNewPagesOnFullList covers the
// companion boundary case: a type whose slot size leaves room for only
// one slot per page must, by the end of its very first allocation, have
// its new page on the full list, so that no other-list page is left for
// the next allocation to find.
func TestSlotsFittingExactlyOnePerPagePlaceNewPagesOnFullList(t *testing.T) {
	type almostAPage struct {
		payload [4000]byte
	}
	desc := pinheap.Register[almostAPage]("almost-a-page", func(*almostAPage, *pinheap.Tracer) {}, nil)

	h := pinheap.New()
	defer h.Close()

	pinheap.With(h, func(s *pinheap.Session) int {
		r := pinheap.Alloc(s, desc, almostAPage{})

		st := statsFor(h, "almost-a-page")
		require.Equal(t, 1, st.PageCount)
		require.Equal(t, 1, st.Capacity)
		require.Equal(t, 1, st.Live)

		// a second allocation must grow by a brand new page, since the
		// first one has no free slot to give and was moved off the
		// other list as soon as it filled
		r2 := pinheap.Alloc(s, desc, almostAPage{})

		st = statsFor(h, "almost-a-page")
		require.Equal(t, 2, st.PageCount)

		r.Release()
		r2.Release()
		return 0
	})
}
