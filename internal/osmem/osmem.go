//go:build unix

// Package osmem acquires page-aligned memory from the OS for pinheap's
// pages: one small package the main package leans on for exactly one
// concern, and nothing else touches unix.Mmap directly.
package osmem

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Page requests a single, anonymous, page-aligned mapping of size bytes
// from the OS. mmap on every supported unix already returns page-aligned
// addresses for anonymous mappings, but we assert it rather than trust it:
// a misaligned page breaks the address-masking trick every other part of
// this library depends on to find a slot's page header.
func Page(size int) ([]byte, error) {
	b, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("pinheap: mmap %d bytes: %w", size, err)
	}
	addr := uintptr(unsafe.Pointer(unsafe.SliceData(b)))
	if addr&uintptr(size-1) != 0 {
		unix.Munmap(b)
		panic(fmt.Sprintf("pinheap: OS returned a misaligned page at %#x", addr))
	}
	return b, nil
}

// Free returns a mapping obtained from Page back to the OS.
func Free(b []byte) error {
	if err := unix.Munmap(b); err != nil {
		return fmt.Errorf("pinheap: munmap: %w", err)
	}
	return nil
}
