package pinheap

import (
	"unsafe"

	"pinheap/internal/markword"
)

// Descriptor registers a host representation type H with a heap: its slot
// size, how to enumerate its outgoing edges, and what to run when the
// collector reclaims one. A *Descriptor[H]'s own address is its type
// identity (see typeDescriptor's doc comment in tracer.go) — register each
// H exactly once and keep the returned pointer for the lifetime of every
// heap that allocates it.
type Descriptor[H any] struct {
	name    string
	size    uintptr
	trace   func(*H, *Tracer)
	destroy func(*H)
}

// Register builds a Descriptor for H. trace must call Trace once for every
// outgoing pointer field H holds; destroy runs once, synchronously, during
// sweep for every H the tracer didn't reach this cycle, and may be nil if H
// holds nothing that needs releasing. name is used only for diagnostics
// (page-set stats, pprofexport labels) and need not be unique, though
// collisions make those diagnostics harder to read.
func Register[H any](name string, trace func(*H, *Tracer), destroy func(*H)) *Descriptor[H] {
	if trace == nil {
		panic("pinheap: Register: trace must not be nil")
	}
	return &Descriptor[H]{
		name:    name,
		size:    slotSizeFor[H](),
		trace:   trace,
		destroy: destroy,
	}
}

func (d *Descriptor[H]) identity() unsafe.Pointer { return unsafe.Pointer(d) }

func (d *Descriptor[H]) slotSize() uintptr { return d.size }

func (d *Descriptor[H]) typeName() string { return d.name }

// markSlot is the dual-purpose dispatch the marking tracer is built
// around: called on a root (collectRoots) or a newly reached child (Trace,
// which skips already-marked children), an unmarked slot gets marked and
// pushed onto the work stack for later tracing; called again when that
// pushed item is popped off the stack, the (now marked) slot instead has
// its host trace function run to enumerate its children. One function, no
// separate "process worklist item" dispatcher.
func (d *Descriptor[H]) markSlot(addr unsafe.Pointer, t *Tracer) {
	w := markword.At(addr)
	if !w.IsMarked() {
		w.Mark()
		t.push(addr, d)
		return
	}
	h := (*H)(addr)
	d.trace(h, t)
}

func (d *Descriptor[H]) sweepSlot(addr unsafe.Pointer) {
	if d.destroy != nil {
		d.destroy((*H)(addr))
	}
}

// slotSizeFor rounds sizeof(H) up to the platform pointer alignment, so
// that the mark word immediately preceding every slot (see
// internal/markword) and every slot after it both land on an aligned
// boundary. A zero-size H (struct{}, an empty marker type) still gets a
// full pointer-sized slot: a free slot stores its freelist successor in
// its payload, and that link needs somewhere to live.
func slotSizeFor[H any]() uintptr {
	var zero H
	size := unsafe.Sizeof(zero)
	align := unsafe.Alignof(zero)
	if align < unsafe.Alignof(uintptr(0)) {
		align = unsafe.Alignof(uintptr(0))
	}
	size = roundUp(size, align)
	if size < unsafe.Sizeof(uintptr(0)) {
		size = unsafe.Sizeof(uintptr(0))
	}
	return size
}

func roundUp(n, align uintptr) uintptr {
	return (n + align - 1) &^ (align - 1)
}
