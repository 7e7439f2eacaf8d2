//go:build linux

package x86patch

import (
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

func unixProt(p Prot) int {
	prot := unix.PROT_NONE
	if p&ProtRead != 0 {
		prot |= unix.PROT_READ
	}
	if p&ProtWrite != 0 {
		prot |= unix.PROT_WRITE
	}
	if p&ProtExec != 0 {
		prot |= unix.PROT_EXEC
	}
	return prot
}

// osSetProtect changes protection with mprotect. mprotect does not report
// the previous protection, so it is snapshotted from the memory map first.
func osSetProtect(addr, size uintptr, p Prot) (Prot, error) {
	reg, err := Query(addr)
	if err != nil {
		return 0, err
	}

	pageSize := uintptr(os.Getpagesize())

	// Round the start down and the length up to page boundaries.
	start := addr &^ (pageSize - 1)
	length := (addr + size - start + pageSize - 1) &^ (pageSize - 1)

	mem := unsafe.Slice((*byte)(unsafe.Pointer(start)), length)
	if err := unix.Mprotect(mem, unixProt(p)); err != nil {
		return 0, err
	}
	return reg.Prot, nil
}
