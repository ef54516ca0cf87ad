// Package pinheap is an embeddable, precise, stop-the-world, mark-and-sweep
// garbage collector for application-defined object graphs that may contain
// cycles.
//
// It exists to be linked into a host program — typically a small
// interpreter — that wants a managed heap of its own values, with automatic
// reclamation of unreachable objects including cycles, without forcing the
// host language to model every inter-object edge through Go's own
// ownership/GC rules. It is the same problem the Go runtime's own page
// allocator solves for every Go value in the process (mheap, mcentral,
// mspan), shrunk down to one host-defined object graph.
//
// # Data structures, leaves first
//
//	internal/markword  one machine word per allocation slot: allocated bit,
//	                    marked bit, pin count.
//	page                a page-aligned 4096-byte block of equally-sized
//	                    slots for one registered type, with an intrusive
//	                    freelist threaded through free slots.
//	pageSet             all pages for one type: a full list and a non-full
//	                    list, an optional page-count cap.
//	Tracer              a work-stack-driven tri-color marker.
//	Heap                one page set per registered type and the
//	                    deferred-unpin queue; each collection builds a
//	                    fresh Tracer.
//	Session             the single exclusive handle through which
//	                    allocation, forced collection, freeze and thaw are
//	                    reached.
//	Ref / FrozenRef     the pinned external reference and its
//	                    thread-portable, heap-identity-tagged form.
//
// # Allocation and collection
//
// Allocating through a session asks the heap for the page set of the
// value's type, asks the page set for a free slot (growing by one OS page
// if needed and allowed), copies the value into the slot, pins it, and
// hands back a Ref. Forcing a collection drains the deferred-unpin queue,
// clears every mark bit while rebuilding the root set from pinned slots,
// runs the tracer to a fixpoint over those roots, then sweeps every page
// set, running destructors on anything left unmarked and returning those
// slots to their page's freelist.
//
// # What this package does not do
//
// No concurrent or incremental collection, no generations, no compaction —
// slots never move, so a Ref's address is stable for its entire pinned
// lifetime. No allocation larger than one page. No cross-heap references:
// a FrozenRef thawed into the wrong Heap panics (see Thaw).
package pinheap
