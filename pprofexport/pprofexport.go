// Package pprofexport renders a pinheap.Heap's per-type occupancy as a
// pprof heap profile, so pages, live slots and pinned (rooted) slots for
// every registered type can be inspected with `go tool pprof` the same
// way a process's own heap profile is. This lives outside the core
// package deliberately: profiling is a signpost consumed from the
// outside, not part of the collector itself, the same arm's-length
// relationship the standard toolchain keeps between runtime/pprof and
// cmd/pprof.
package pprofexport

import (
	"io"
	"time"

	"github.com/google/pprof/profile"

	"pinheap"
)

// Snapshot builds a pprof Profile from h's current Stats. Three sample
// types are emitted per type: pages (page count), live (allocated slots),
// and pinned (allocated slots currently rooted). Each type name becomes a
// synthetic function/location so pprof's usual "top" and "list" views
// group by type the way a real allocation profile groups by call site.
func Snapshot(h *pinheap.Heap) *profile.Profile {
	p := &profile.Profile{
		SampleType: []*profile.ValueType{
			{Type: "pages", Unit: "count"},
			{Type: "live", Unit: "count"},
			{Type: "pinned", Unit: "count"},
		},
		TimeNanos: time.Now().UnixNano(),
	}

	var nextID uint64 = 1
	for _, st := range h.Stats() {
		nextID++
		fn := &profile.Function{ID: nextID, Name: st.Name}
		p.Function = append(p.Function, fn)

		nextID++
		loc := &profile.Location{ID: nextID, Line: []profile.Line{{Function: fn}}}
		p.Location = append(p.Location, loc)

		p.Sample = append(p.Sample, &profile.Sample{
			Location: []*profile.Location{loc},
			Value:    []int64{int64(st.PageCount), int64(st.Live), int64(st.Pinned)},
			Label:    map[string][]string{"type": {st.Name}},
		})
	}
	return p
}

// Write snapshots h and writes it to w in pprof's gzipped wire format.
func Write(h *pinheap.Heap, w io.Writer) error {
	return Snapshot(h).Write(w)
}
