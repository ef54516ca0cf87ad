package pinheap

import (
	"os"
	"unsafe"
)

// Debug gates known-bad-byte poisoning of freshly swept slots, so
// use-after-free shows up as reads of 0xf4 instead of silently succeeding.
// On by default; set PINHEAP_NO_POISON=1 before process start to turn it
// off (for instance under a fuzzer that wants to inspect raw freed bytes).
var Debug = os.Getenv("PINHEAP_NO_POISON") == ""

const poisonByte = 0xf4

func poison(payload uintptr, n uintptr) {
	if n == 0 {
		return
	}
	b := unsafe.Slice((*byte)(unsafe.Pointer(payload)), n)
	for i := range b {
		b[i] = poisonByte
	}
}
