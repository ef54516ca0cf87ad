// Command pinheapdemo exercises pinheap's end-to-end scenarios against a
// small cons-cell object graph, printing what each step observed. It is a
// demonstration harness, not a test suite — see the package's _test.go
// files for the same scenarios asserted properly.
package main

import (
	"fmt"
	"os"
	"unsafe"

	"go.uber.org/zap"

	"pinheap"
)

// cell is the in-heap representation of a cons cell: a head value and an
// optional pointer to another cell. child is a raw in-heap address, never
// a pinheap.Ref, per the package's rule that Refs live only in ordinary
// Go-heap host memory.
type cell struct {
	head  int
	child unsafe.Pointer
}

var destroyed int

var cellDesc = pinheap.Register[cell]("cell",
	func(c *cell, t *pinheap.Tracer) {
		pinheap.Trace(t, c.child, cellDesc)
	},
	func(c *cell) {
		destroyed++
	},
)

func main() {
	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	h := pinheap.New(pinheap.WithLogger(logger))
	defer h.Close()

	pinheap.With(h, func(s *pinheap.Session) int {
		twoAllocationsSucceed(s)
		cyclicReclamation(s)
		pinProtectsFromGC(s)
		deferredUnpinViaFrozenRef(h, s)
		pageLimitForcesFailure(s)
		destructorInvokedExactlyOnce(s)
		return 0
	})

	crossHeapThawAborts()
}

func twoAllocationsSucceed(s *pinheap.Session) {
	a := pinheap.Alloc(s, cellDesc, cell{head: 1})
	b := pinheap.Alloc(s, cellDesc, cell{head: 2})
	fmt.Println("heads:", a.Get().head, b.Get().head)
	a.Release()
	b.Release()
}

func cyclicReclamation(s *pinheap.Session) {
	r := pinheap.Alloc(s, cellDesc, cell{head: 42})
	pinheap.SetField(&r.Get().child, r.Clone())
	r.Release() // the self-edge's clone still pins it once more
	r.Release()

	pinheap.ForceGC(s)
	fmt.Println("cyclic reclaimed:", pinheap.IsEmpty(s, cellDesc))
}

func pinProtectsFromGC(s *pinheap.Session) {
	r := pinheap.Alloc(s, cellDesc, cell{head: 7})
	pinheap.ForceGC(s)
	fmt.Println("pinned survives:", r.Get().head == 7)
	r.Release()
}

func deferredUnpinViaFrozenRef(h *pinheap.Heap, s *pinheap.Session) {
	r := pinheap.Alloc(s, cellDesc, cell{head: 99})
	fr := pinheap.Freeze(s, r)
	r.Release()

	done := make(chan struct{})
	go func() {
		fr.Release()
		close(done)
	}()
	<-done

	pinheap.ForceGC(s)
	fmt.Println("frozen ref drop reclaimed:", pinheap.IsEmpty(s, cellDesc))
	_ = h
}

// pageLimitForcesFailure is the one place this demo reaches for TryAlloc
// instead of Alloc: running out of capacity under a deliberately tight
// page limit is exactly the recoverable case TryAlloc exists for, not a
// host bug worth panicking over.
func pageLimitForcesFailure(s *pinheap.Session) {
	pinheap.SetPageLimit(s, cellDesc, 1)
	var refs []pinheap.Ref[cell]
	var failed error
	for i := 0; i < 10000; i++ {
		r, err := pinheap.TryAlloc(s, cellDesc, cell{head: i})
		if err != nil {
			failed = err
			break
		}
		refs = append(refs, r)
	}
	fmt.Println("page limit reached:", failed == pinheap.ErrOutOfCapacity)
	for _, r := range refs {
		r.Release()
	}
	pinheap.ForceGC(s)
	pinheap.SetPageLimit(s, cellDesc, 0)
}

func destructorInvokedExactlyOnce(s *pinheap.Session) {
	before := destroyed
	r := pinheap.Alloc(s, cellDesc, cell{head: 1})
	r.Release()
	pinheap.ForceGC(s)
	once := destroyed - before
	pinheap.ForceGC(s)
	again := destroyed - before - once
	fmt.Println("destructor ran once:", once == 1 && again == 0)
}

func crossHeapThawAborts() {
	h1 := pinheap.New()
	defer h1.Close()
	h2 := pinheap.New()
	defer h2.Close()

	var fr pinheap.FrozenRef[cell]
	pinheap.With(h1, func(s *pinheap.Session) int {
		r := pinheap.Alloc(s, cellDesc, cell{head: 1})
		fr = pinheap.Freeze(s, r)
		r.Release()
		return 0
	})

	defer func() {
		if recover() == nil {
			fmt.Fprintln(os.Stderr, "expected Thaw across heaps to panic")
			os.Exit(1)
		}
		fr.Release() // release the frozen pin so h1.Close finds nothing leaked
		fmt.Println("cross-heap thaw aborted as expected")
	}()
	pinheap.With(h2, func(s *pinheap.Session) int {
		pinheap.Thaw(s, fr)
		return 0
	})
}
