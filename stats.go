package pinheap

import (
	"unsafe"

	"pinheap/internal/markword"
)

// TypeStats reports one registered type's current occupancy, for
// diagnostics and pprofexport. It is a point-in-time snapshot: nothing
// stops a concurrent Session (there is none, by construction) from
// invalidating it, but since at most one Session exists per Heap, a
// snapshot taken between operations is always consistent.
type TypeStats struct {
	Name      string
	PageCount int
	Capacity  int // total slots across all pages
	Live      int // allocated slots
	Pinned    int // allocated slots with a nonzero pin count
}

// Stats walks every registered type's page set and reports its current
// occupancy. Safe to call with no Session entered; it only reads.
func (h *Heap) Stats() []TypeStats {
	h.mu.Lock()
	sets := make([]*pageSet, 0, len(h.pageSets))
	for _, ps := range h.pageSets {
		sets = append(sets, ps)
	}
	h.mu.Unlock()

	out := make([]TypeStats, 0, len(sets))
	for _, ps := range sets {
		out = append(out, ps.stats())
	}
	return out
}

func (ps *pageSet) stats() TypeStats {
	st := TypeStats{Name: ps.desc.typeName(), PageCount: ps.pageCount}
	walk := func(p *page) {
		for ; p != nil; p = p.next {
			h := headerAt(p.base)
			st.Capacity += int(h.capacity)
			live := int(h.capacity) - int(p.free)
			st.Live += live
			p.forEachSlot(func(_ unsafe.Pointer, w *markword.Word) {
				if w.IsAllocated() && w.IsPinned() {
					st.Pinned++
				}
			})
		}
	}
	walk(ps.full)
	walk(ps.other)
	return st
}
