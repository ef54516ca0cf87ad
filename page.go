package pinheap

import (
	"unsafe"

	"pinheap/internal/markword"
	"pinheap/internal/osmem"
)

// pageSize is the fixed size of every OS mapping this package carves
// slots out of. One size for every type keeps the free-page math simple,
// at the cost of wasting the tail of the page for types whose slot size
// doesn't divide it evenly.
const pageSize = 4096

// rawHeader is the only thing pinheap physically stores inside the raw
// mmap'd page itself. Every field is a bare uintptr, never a Go pointer or
// interface value: Go's own garbage collector never scans memory it didn't
// allocate, so anything living in this header that the runtime treated as
// a pointer could be collected out from under us while still reachable
// through this raw memory.
//
// The header occupies the first word-aligned bytes of the page; slots
// begin immediately after it, each one prefixed by its own markword.Word.
type rawHeader struct {
	slotSize uintptr // size in bytes of one slot, payload only (mark word excluded)
	capacity uintptr // number of slots this page was carved into
	freelist uintptr // address of the first free slot's payload, or 0
}

const headerSize = unsafe.Sizeof(rawHeader{})

// page is the Go-heap-allocated companion to one rawHeader-prefixed mmap
// mapping. It holds everything that must stay visible to Go's own
// collector: the backing slice (keeping the mapping's liveness tied to
// ordinary Go reachability for bookkeeping purposes, even though the bytes
// themselves are OS memory), the type descriptor, and the intrusive
// full/other linked-list pointer pageSet threads through its pages.
//
// A page is never moved or resized after newPage returns it; every slot
// address it hands out is stable for the page's entire lifetime.
type page struct {
	base uintptr // address of rawHeader, i.e. of the mapping itself
	mem  []byte  // the full mmap'd mapping, kept to Free it later
	desc typeDescriptor
	next *page // intrusive link within a pageSet's full or other list

	free uintptr // live count of free slots, maintained alongside the freelist
}

// pageBaseOf masks an interior or slot-start address down to its
// containing page's base address, the find-page-from-pointer operation;
// its only caller is Heap.pageFor. It's never used to
// reinterpret the result as a rawHeader containing live Go pointers —
// callers that need the Go-side page struct go through Heap.pageFor
// instead.
func pageBaseOf(addr unsafe.Pointer) uintptr {
	return uintptr(addr) &^ uintptr(pageSize-1)
}

func headerAt(base uintptr) *rawHeader {
	return (*rawHeader)(unsafe.Pointer(base))
}

// newPage acquires one OS page, carves it into slots of size slotSize for
// desc, and threads an intrusive freelist through every slot's payload: a
// free slot's mark word is zeroed ("not allocated") and the first machine
// word of its payload holds the payload address of the next free slot, or
// 0 for the last one.
func newPage(desc typeDescriptor) (*page, error) {
	mem, err := osmem.Page(pageSize)
	if err != nil {
		return nil, err
	}
	base := uintptr(unsafe.Pointer(unsafe.SliceData(mem)))

	slotStride := markword.Size + desc.slotSize()
	usable := uintptr(pageSize) - headerSize
	capacity := usable / slotStride
	if capacity == 0 {
		osmem.Free(mem)
		panic("pinheap: type too large for a single page")
	}

	h := headerAt(base)
	h.slotSize = desc.slotSize()
	h.capacity = capacity

	first := base + headerSize
	var prev uintptr
	for i := uintptr(0); i < capacity; i++ {
		slotAddr := first + i*slotStride
		w := (*markword.Word)(unsafe.Pointer(slotAddr))
		w.Reset()
		payload := slotAddr + markword.Size
		freeNext := (*uintptr)(unsafe.Pointer(payload))
		*freeNext = 0
		if prev != 0 {
			*(*uintptr)(unsafe.Pointer(prev)) = payload
		} else {
			h.freelist = payload
		}
		prev = payload
	}

	return &page{
		base: base,
		mem:  mem,
		desc: desc,
		free: capacity,
	}, nil
}

// tryAlloc pops one slot off the page's freelist, marks it allocated, and
// returns its payload address. Returns nil if the page has no free slots.
func (p *page) tryAlloc() unsafe.Pointer {
	h := headerAt(p.base)
	if h.freelist == 0 {
		return nil
	}
	payload := h.freelist
	next := *(*uintptr)(unsafe.Pointer(payload))
	h.freelist = next
	p.free--

	w := markword.At(unsafe.Pointer(payload))
	w.Reset()
	w.SetAllocated()
	return unsafe.Pointer(payload)
}

func (p *page) full() bool {
	return headerAt(p.base).freelist == 0
}

func (p *page) empty() bool {
	return p.free == headerAt(p.base).capacity
}

// forEachSlot visits every slot's payload address in this page, allocated
// or not; fn receives the slot's mark word so callers can skip free slots
// cheaply.
func (p *page) forEachSlot(fn func(payload unsafe.Pointer, w *markword.Word)) {
	h := headerAt(p.base)
	slotStride := markword.Size + h.slotSize
	first := p.base + headerSize
	for i := uintptr(0); i < h.capacity; i++ {
		slotAddr := first + i*slotStride
		w := (*markword.Word)(unsafe.Pointer(slotAddr))
		payload := unsafe.Pointer(slotAddr + markword.Size)
		fn(payload, w)
	}
}

// collectRoots clears every slot's mark bit (the start of a new cycle's
// tri-color sweep: everything goes back to white) and pushes every
// currently-pinned allocated slot onto the tracer's work stack as a root,
// matching markSlot's root-visiting branch so pinned roots get marked too.
func (p *page) collectRoots(t *Tracer) {
	p.forEachSlot(func(payload unsafe.Pointer, w *markword.Word) {
		if !w.IsAllocated() {
			return
		}
		w.Unmark()
		if w.IsPinned() {
			p.desc.markSlot(payload, t)
		}
	})
}

// sweep reclaims every allocated-but-unmarked slot: runs the type's
// destructor, poisons the payload when Debug is set, resets the mark word,
// and relinks the slot onto the freelist. Returns the number of slots
// reclaimed this pass. A destructor must not touch any other heap object:
// their mark and allocated state is mid-sweep and their pointer fields may
// already name reclaimed slots. Nothing here enforces that.
func (p *page) sweep() int {
	h := headerAt(p.base)
	reclaimed := 0
	p.forEachSlot(func(payload unsafe.Pointer, w *markword.Word) {
		if !w.IsAllocated() {
			return
		}
		if w.IsMarked() {
			return
		}
		if w.IsPinned() {
			panic("pinheap: sweep found a pinned slot with no root reference to it")
		}
		p.desc.sweepSlot(payload)
		if Debug {
			poison(uintptr(payload), h.slotSize)
		}
		w.Reset()
		next := (*uintptr)(payload)
		*next = h.freelist
		h.freelist = uintptr(payload)
		p.free++
		reclaimed++
	})
	return reclaimed
}

// destroy runs every allocated slot's destructor unconditionally (heap
// teardown: nothing survives) and returns the mapping to the OS.
func (p *page) destroy() {
	p.forEachSlot(func(payload unsafe.Pointer, w *markword.Word) {
		if w.IsAllocated() {
			p.desc.sweepSlot(payload)
		}
	})
	osmem.Free(p.mem)
}
