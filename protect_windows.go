//go:build windows

package x86patch

import (
	"golang.org/x/sys/windows"
)

func osSetProtect(addr, size uintptr, p Prot) (Prot, error) {
	var old uint32
	if err := windows.VirtualProtect(addr, size, pageFlagsFromProt(p), &old); err != nil {
		return 0, err
	}
	return protFromPageFlags(old), nil
}
