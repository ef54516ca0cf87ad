package pinheap

// Session is the single exclusive handle through which a Heap is used:
// allocation, forced collection, freeze and thaw all go through one. Only
// one Session may be entered on a given Heap at a time (see Heap.Enter);
// a Session is not safe for concurrent use from multiple goroutines: the
// collector assumes a single-threaded mutator within any one session.
type Session struct {
	heap *Heap
}

// Close releases this Session's claim on its Heap, allowing a new Session
// to be entered. Using s after Close panics. Close does not run a
// collection or destroy anything still allocated; call Heap.Close
// separately once every Session has ended if the Heap itself is going
// away.
func (s *Session) Close() {
	s.requireOpen()
	s.heap.sessionActive.Store(false)
	s.heap = nil
}

func (s *Session) requireOpen() {
	if s.heap == nil {
		panic("pinheap: use of Session after Close")
	}
}

// TryAlloc copies init into a fresh slot of type H and returns a pinned Ref
// to it. If the type's page set has no free slot and cannot grow (its
// page limit, if any, has been reached), TryAlloc forces one collection and
// retries exactly once before giving up with ErrOutOfCapacity. Go has no
// affine/move semantics, so init is simply copied in again on retry; there
// is no destructor to dodge and nothing to reconstruct around the retry.
// TryAlloc is the recoverable primitive; see Alloc for the convenience that
// turns ErrOutOfCapacity into a panic instead.
func TryAlloc[H any](s *Session, desc *Descriptor[H], init H) (Ref[H], error) {
	s.requireOpen()
	ps := s.heap.getOrCreatePageSet(desc)

	addr, err := ps.tryAlloc()
	if err == ErrOutOfCapacity {
		s.heap.gcCycle(false)
		addr, err = ps.tryAlloc()
	}
	if err != nil {
		return Ref[H]{}, err
	}

	*(*H)(addr) = init
	markWord(addr).Pin()
	return Ref[H]{addr: addr, desc: desc}, nil
}

// Alloc is TryAlloc's fatal convenience: it panics instead of returning
// ErrOutOfCapacity, for the common case where a host has no graceful
// degradation path for running out of heap and would just panic on the
// error anyway. Matches malloc.go's own mallocgc, which calls
// throw("out of memory") rather than returning an error a caller might
// ignore.
func Alloc[H any](s *Session, desc *Descriptor[H], init H) Ref[H] {
	r, err := TryAlloc(s, desc, init)
	if err != nil {
		panic(err)
	}
	return r
}

// ForceGC runs one full mark-and-sweep collection cycle immediately and
// reports how many slots it reclaimed, for hosts that want deterministic
// collection points (e.g. between top-level evaluations) rather than
// relying on allocation-triggered collection alone.
func ForceGC(s *Session) int {
	s.requireOpen()
	return s.heap.gcCycle(false)
}

// SetPageLimit caps the number of OS pages desc's type may grow to; zero
// (the default) means unlimited. Lowering the limit below the page count
// already in use does not free anything immediately — it only prevents
// further growth, taking effect on the next allocation that would have
// grown the set.
func SetPageLimit[H any](s *Session, desc *Descriptor[H], n int) {
	s.requireOpen()
	ps := s.heap.getOrCreatePageSet(desc)
	ps.setLimit(n)
}

// IsEmpty reports whether desc's type currently has zero live allocations
// anywhere in the heap, useful in tests asserting a cycle was fully
// reclaimed.
func IsEmpty[H any](s *Session, desc *Descriptor[H]) bool {
	s.requireOpen()
	ps := s.heap.getOrCreatePageSet(desc)
	return ps.allEmpty()
}

// With opens a Session over h, runs fn, and closes the Session again
// before returning — the common case where a host doesn't need a Session
// to outlive one call.
func With[R any](h *Heap, fn func(*Session) R) R {
	s := h.Enter()
	defer s.Close()
	return fn(s)
}
