package pinheap

import "errors"

// ErrOutOfCapacity is the sole recoverable error this package returns: a
// page-set's cap was reached, a forced collection didn't free anything, and
// a fresh page either isn't allowed or couldn't be obtained from the OS.
// Everything else is a programming error: this package panics instead of
// returning it.
var ErrOutOfCapacity = errors.New("pinheap: out of capacity")
