package pprofexport_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"pinheap"
	"pinheap/pprofexport"
)

type leaf struct {
	value int
}

func TestSnapshotReportsRegisteredTypes(t *testing.T) {
	h := pinheap.New()
	defer h.Close()

	desc := pinheap.Register[leaf]("leaf", func(*leaf, *pinheap.Tracer) {}, nil)

	pinheap.With(h, func(s *pinheap.Session) int {
		r := pinheap.Alloc(s, desc, leaf{value: 1})
		defer r.Release()

		prof := pprofexport.Snapshot(h)
		require.Len(t, prof.SampleType, 3)
		require.Len(t, prof.Sample, 1)
		require.Equal(t, []string{"leaf"}, prof.Sample[0].Label["type"])
		require.EqualValues(t, 1, prof.Sample[0].Value[1]) // live
		require.EqualValues(t, 1, prof.Sample[0].Value[2]) // pinned
		return 0
	})
}

func TestWriteProducesNonEmptyOutput(t *testing.T) {
	h := pinheap.New()
	defer h.Close()

	var buf bytes.Buffer
	require.NoError(t, pprofexport.Write(h, &buf))
	require.NotZero(t, buf.Len())
}
