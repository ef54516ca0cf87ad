package pinheap

import (
	"sync"
	"sync/atomic"
	"unsafe"

	"go.uber.org/zap"

	"pinheap/internal/markword"
)

func markWord(addr unsafe.Pointer) *markword.Word { return markword.At(addr) }

// Heap owns the page sets for every type a host has registered against it,
// the deferred-unpin queue FrozenRef.Release feeds, and the single-session
// admission flag Enter checks. One Heap corresponds to one independent
// object graph; it is not safe to share a Heap's Session across goroutines
// (see Session's doc comment), though the Heap value itself may be reached
// from many goroutines serially, one Session at a time.
type Heap struct {
	cfg *heapConfig

	mu       sync.Mutex // guards pageSets
	pageSets map[unsafe.Pointer]*pageSet

	sessionActive atomic.Bool

	deferred deferredQueue

	dead atomic.Bool
}

// New creates an empty Heap. Register types against it with Register and
// the returned Descriptors before entering a Session — registering a new
// type mid-session is fine too; there's nothing retroactive about it.
func New(opts ...Option) *Heap {
	h := &Heap{
		cfg:      newHeapConfig(opts),
		pageSets: make(map[unsafe.Pointer]*pageSet),
	}
	return h
}

// Close tears down every page this heap owns and returns all OS mappings.
// It runs one final collection that clears mark bits and re-seeds roots
// from pinned slots exactly as a normal cycle does, but never runs the
// tracer — so a slot pinned only because something still reachable from a
// root holds it, but not itself directly pinned, gets swept and its
// destructor called despite remaining technically reachable. That's safe
// precisely because the heap is going away: nothing will ever dereference
// it again. A slot that is itself still pinned, though, survives this
// sweep (pinning alone marks it in collectRoots, with or without a
// tracer pass) — which means it's still allocated afterward, and Close
// panics, because that can only happen if some Ref or FrozenRef into this
// Heap was never Released. Close panics if a Session is currently
// entered; callers must Close the Session first (or let it go out of
// scope via defer in the right order).
func (h *Heap) Close() {
	if h.sessionActive.Load() {
		panic("pinheap: Close called while a Session is still entered")
	}
	h.gcCycle(true)

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ps := range h.pageSets {
		if !ps.allEmpty() {
			panic("pinheap: Heap.Close: a pinned slot was leaked (Ref or FrozenRef never Released)")
		}
	}
	for _, ps := range h.pageSets {
		ps.destroy()
	}
	h.pageSets = make(map[unsafe.Pointer]*pageSet)
	h.dead.Store(true)
}

// Enter claims the heap's single session slot and returns a Session handle
// over it. It panics if a Session is already entered — the
// single-exclusive-handle rule, enforced dynamically here since Go has no
// lifetime branding to enforce it at compile time. Pair every Enter with
// the returned Session's Close (typically via defer).
func (h *Heap) Enter() *Session {
	if !h.sessionActive.CompareAndSwap(false, true) {
		panic("pinheap: Enter called while a Session is already active on this Heap")
	}
	return &Session{heap: h}
}

func (h *Heap) logger() *zap.Logger { return h.cfg.logger }

func (h *Heap) getOrCreatePageSet(td typeDescriptor) *pageSet {
	h.mu.Lock()
	defer h.mu.Unlock()
	key := td.identity()
	ps, ok := h.pageSets[key]
	if !ok {
		ps = newPageSet(td)
		h.pageSets[key] = ps
	}
	return ps
}

// pageFor resolves an interior address back to its owning *page (which
// carries the type descriptor), via the address-masking
// find-page-from-pointer operation followed by a linear scan of every
// page set's pages. Nothing in pinheap or pprofexport calls it: every
// mark/sweep call site already knows its page statically through Go
// generics, so there is no faster index backing this lookup.
func (h *Heap) pageFor(addr unsafe.Pointer) (*page, bool) {
	base := pageBaseOf(addr)
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ps := range h.pageSets {
		for p := ps.full; p != nil; p = p.next {
			if p.base == base {
				return p, true
			}
		}
		for p := ps.other; p != nil; p = p.next {
			if p.base == base {
				return p, true
			}
		}
	}
	return nil, false
}

// gcCycle runs one full stop-the-world mark-and-sweep pass: drain deferred
// unpins, clear mark bits and reseed roots from every pinned slot, run the
// tracer to a fixpoint unless dropping is true, then sweep every page set.
// Returns the total number of slots reclaimed.
//
// When dropping, pinned slots still get pushed as roots by collectRoots
// (and thereby marked) — pinning alone is enough for that, independent of
// a tracer pass — but nothing reachable only through those roots gets
// traced into, so only directly-pinned slots survive the sweep that
// follows. See Heap.Close, the only caller that passes true.
func (h *Heap) gcCycle(dropping bool) int {
	h.drainDeferred()

	t := &Tracer{}
	h.mu.Lock()
	sets := make([]*pageSet, 0, len(h.pageSets))
	for _, ps := range h.pageSets {
		sets = append(sets, ps)
	}
	h.mu.Unlock()

	for _, ps := range sets {
		ps.collectRoots(t)
	}
	if !dropping {
		t.run()
	}

	reclaimed := 0
	for _, ps := range sets {
		reclaimed += ps.sweep()
	}
	for _, ps := range sets {
		ps.shrink()
	}

	h.logger().Debug("pinheap: gc cycle",
		zap.Bool("dropping", dropping),
		zap.Int("page_sets", len(sets)),
		zap.Int("reclaimed", reclaimed),
	)
	return reclaimed
}

// drainDeferred applies every FrozenRef.Release that arrived asynchronously
// since the last cycle, unpinning each slot exactly once.
func (h *Heap) drainDeferred() {
	h.deferred.mu.Lock()
	pending := h.deferred.items
	h.deferred.items = nil
	h.deferred.mu.Unlock()

	for _, it := range pending {
		markWord(it.addr).Unpin()
	}
}
