package pinheap

import "unsafe"

// pageSet holds every page allocated for one registered type, split into a
// full list (no free slots) and an other list (at least one free slot).
// There's no sweepgen-style generation bookkeeping here, since this
// collector is always fully stopped rather than concurrent.
type pageSet struct {
	desc typeDescriptor

	full  *page
	other *page

	pageCount int
	pageLimit int // 0 means unlimited
}

func newPageSet(desc typeDescriptor) *pageSet {
	return &pageSet{desc: desc}
}

func (ps *pageSet) setLimit(n int) { ps.pageLimit = n }

// tryAlloc returns a fresh slot from the other list, growing by one page
// first if the other list is empty and growth is still allowed. Returns
// nil, ErrOutOfCapacity if the other list is empty and growth isn't
// possible (limit reached, or the OS would not provide a new page).
func (ps *pageSet) tryAlloc() (unsafe.Pointer, error) {
	if ps.other == nil {
		if ps.pageLimit != 0 && ps.pageCount >= ps.pageLimit {
			return nil, ErrOutOfCapacity
		}
		p, err := newPage(ps.desc)
		if err != nil {
			return nil, ErrOutOfCapacity
		}
		ps.pageCount++
		ps.other = p
		p.next = nil
	}

	p := ps.other
	addr := p.tryAlloc()
	if addr == nil {
		panic("pinheap: page on the other list reported no free slots")
	}
	if p.full() {
		ps.other = p.next
		p.next = ps.full
		ps.full = p
	}
	return addr, nil
}

// collectRoots clears mark bits and seeds the tracer's work stack from
// pinned slots, across every page in both lists.
func (ps *pageSet) collectRoots(t *Tracer) {
	for p := ps.full; p != nil; p = p.next {
		p.collectRoots(t)
	}
	for p := ps.other; p != nil; p = p.next {
		p.collectRoots(t)
	}
}

// sweep reclaims unmarked slots across every page, then re-splits pages
// between the full and other lists according to their post-sweep
// occupancy. Fully-empty pages with nothing reclaimed-away-from are kept
// (never freed back to the OS here); see shrink for that.
func (ps *pageSet) sweep() (reclaimed int) {
	var keptFull, keptOther *page

	sweepList := func(head *page) {
		for p := head; p != nil; {
			next := p.next
			reclaimed += p.sweep()
			if p.full() {
				p.next = keptFull
				keptFull = p
			} else {
				p.next = keptOther
				keptOther = p
			}
			p = next
		}
	}
	sweepList(ps.full)
	sweepList(ps.other)

	ps.full = keptFull
	ps.other = keptOther
	return reclaimed
}

// allEmpty reports whether every page in this set is currently empty,
// i.e. this type has no live allocations at all.
func (ps *pageSet) allEmpty() bool {
	for p := ps.full; p != nil; p = p.next {
		if !p.empty() {
			return false
		}
	}
	for p := ps.other; p != nil; p = p.next {
		if !p.empty() {
			return false
		}
	}
	return true
}

// shrink returns every fully-empty page's mapping to the OS, keeping at
// most one spare empty page around for reuse (mirroring mcentral's
// reluctance to thrash mmap/munmap on an allocate/free/allocate pattern).
func (ps *pageSet) shrink() {
	shrinkList := func(head *page) *page {
		var kept *page
		var spared bool
		for p := head; p != nil; {
			next := p.next
			if p.empty() {
				if !spared {
					spared = true
					p.next = kept
					kept = p
				} else {
					p.destroy()
					ps.pageCount--
				}
			} else {
				p.next = kept
				kept = p
			}
			p = next
		}
		return kept
	}
	ps.other = shrinkList(ps.other)
	// the full list never holds empty pages by construction
}

// destroy tears down every page in this set unconditionally, for heap
// teardown.
func (ps *pageSet) destroy() {
	for p := ps.full; p != nil; {
		next := p.next
		p.destroy()
		p = next
	}
	for p := ps.other; p != nil; {
		next := p.next
		p.destroy()
		p = next
	}
	ps.full, ps.other = nil, nil
}
