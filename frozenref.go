package pinheap

import (
	"sync"
	"unsafe"
)

// deferredQueue buffers FrozenRef.Release calls that arrive with no
// Session entered to apply them against immediately: Release always
// defers, so it never needs to race a concurrent collection, and the
// unpin happens at the start of the next gcCycle via drainDeferred. This
// guarantees the slot is unpinned no later than the first GC cycle after
// Release, by always taking the deferred path rather than trying to
// special-case an in-session fast path.
type deferredQueue struct {
	mu    sync.Mutex
	items []deferredItem
}

type deferredItem struct {
	addr unsafe.Pointer
}

// Identity identifies a Heap across goroutine and FrozenRef boundaries
// without itself keeping the heap's internals alive in any special way —
// Go has no stable analogue of a true weak pointer outside the
// experimental weak package, so Identity simply wraps the *Heap and
// compares by pointer identity, while Alive reports whether Close has run.
type Identity struct {
	h *Heap
}

func (h *Heap) Identity() Identity { return Identity{h: h} }

// Alive reports whether the identified heap has not yet been Closed.
func (id Identity) Alive() bool { return id.h != nil && !id.h.dead.Load() }

// Equal reports whether two Identities name the same Heap.
func (id Identity) Equal(other Identity) bool { return id.h == other.h }

// FrozenRef is the sendable, heap-identity-tagged form of a Ref: it may be
// stored or passed to another goroutine without a Session entered, at the
// cost of losing direct access to the pointee until Thaw restores it
// inside some Session over the same Heap.
type FrozenRef[H any] struct {
	id   Identity
	addr unsafe.Pointer
	desc *Descriptor[H]
}

// Freeze converts a Ref into its FrozenRef form. The original Ref remains
// valid and pinned; Freeze does not consume or unpin it, mirroring a
// cheap reference-count bump rather than a move.
func Freeze[H any](s *Session, r Ref[H]) FrozenRef[H] {
	s.requireOpen()
	r.requireValid()
	markWord(r.addr).Pin()
	return FrozenRef[H]{id: s.heap.Identity(), addr: r.addr, desc: r.desc}
}

// Thaw restores a FrozenRef into a live Ref usable within s. It panics if
// fr was frozen against a different Heap than the one s is a Session
// over: a cross-heap reference is a programming error with no recovery
// path other than a panic.
func Thaw[H any](s *Session, fr FrozenRef[H]) Ref[H] {
	if !fr.id.Equal(s.heap.Identity()) {
		panic("pinheap: Thaw: FrozenRef belongs to a different Heap")
	}
	if !fr.id.Alive() {
		panic("pinheap: Thaw: Heap has been closed")
	}
	return Ref[H]{addr: fr.addr, desc: fr.desc}
}

// Release unpins the slot a FrozenRef protected. It always defers the
// unpin onto the owning heap's deferred queue rather than trying to apply
// it immediately, since a FrozenRef may legitimately outlive every Session
// that ever existed over its Heap. Calling Release more than once on
// logically-the-same FrozenRef is the caller's bug (it would unbalance the
// pin count) and is not detected here, matching Ref.Release's own posture.
func (fr FrozenRef[H]) Release() {
	if !fr.id.Alive() {
		return
	}
	q := &fr.id.h.deferred
	q.mu.Lock()
	q.items = append(q.items, deferredItem{addr: fr.addr})
	q.mu.Unlock()
}
