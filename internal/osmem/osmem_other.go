//go:build !unix

package osmem

import "errors"

// ErrUnsupported is returned on platforms pinheap has no page-acquisition
// strategy for; only unix is implemented (see internal/osmem/osmem.go).
var ErrUnsupported = errors.New("pinheap: osmem: unsupported platform, need unix mmap")

func Page(size int) ([]byte, error) { return nil, ErrUnsupported }

func Free(b []byte) error { return ErrUnsupported }
