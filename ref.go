package pinheap

import "unsafe"

// Ref is an external pinned reference to one slot of type H inside a Heap.
// It lives only in ordinary Go-heap host memory — a local variable, a
// field of some other Go-heap struct — and must never be copied into the
// raw bytes of an in-heap slot; a registered H that needs to refer to
// another H stores a raw unsafe.Pointer child address instead and uses
// SetField/Trace to keep pin invariants correct (see SetField and Trace).
//
// The zero Ref is invalid; use it only as a sentinel "no reference yet".
type Ref[H any] struct {
	addr unsafe.Pointer
	desc *Descriptor[H]
}

// Valid reports whether r refers to a slot at all. It says nothing about
// whether that slot is still pinned against collection by some other
// means — an invalid Ref is simply the zero value.
func (r Ref[H]) Valid() bool { return r.addr != nil }

func (r Ref[H]) requireValid() {
	if r.addr == nil {
		panic("pinheap: use of zero Ref")
	}
}

// Get returns a pointer to the referenced H's in-heap storage. The
// pointer is stable for as long as r (or any Clone of it) remains pinned;
// it must not be retained past the matching Release.
func (r Ref[H]) Get() *H {
	r.requireValid()
	return (*H)(r.addr)
}

// Addr exposes the raw in-heap address, for host code implementing a
// trace function that needs to compare a child pointer against roots or
// store it into another slot via SetField.
func (r Ref[H]) Addr() unsafe.Pointer {
	r.requireValid()
	return r.addr
}

// Clone produces a second independent Ref to the same slot, incrementing
// its pin count. Each Clone must be Released independently.
func (r Ref[H]) Clone() Ref[H] {
	r.requireValid()
	markWord(r.addr).Pin()
	return r
}

// Release unpins the slot this Ref protects. After Release, r must not be
// used again: there is no use-after-release detection.
func (r Ref[H]) Release() {
	r.requireValid()
	markWord(r.addr).Unpin()
}

// SetField stores child's address into an in-heap pointer field. Once
// stored, child's reachability is carried by tracing from roots through
// this field — not by a reference count — which is exactly what lets a
// cycle of Hs referencing each other become collectible the moment
// nothing external still pins any member of it. SetField takes a Ref[C]
// rather than a raw unsafe.Pointer only to make the caller prove child is
// currently pinned (and therefore safe to wire in without it vanishing
// mid-construction, before any trace function can find it); SetField
// itself does not touch either slot's pin count.
//
// Whatever address previously occupied *slot is simply overwritten: it is
// the caller's responsibility to have already accounted for that old edge
// (it remains reachable only if some other path still traces to it).
func SetField[C any](slot *unsafe.Pointer, child Ref[C]) {
	child.requireValid()
	*slot = child.addr
}

// ClearField clears an in-heap pointer field with no replacement, the
// SetField counterpart for removing an edge outright.
func ClearField(slot *unsafe.Pointer) {
	*slot = nil
}
