//go:build windows

package x86patch

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

// enumRegions walks the address space with VirtualQuery, one region per
// allocation granule boundary.
func enumRegions() ([]Region, error) {
	var regions []Region
	var addr uintptr

	for {
		var mbi windows.MemoryBasicInformation
		if err := windows.VirtualQuery(addr, &mbi, unsafe.Sizeof(mbi)); err != nil {
			break
		}
		if mbi.RegionSize == 0 {
			break
		}

		if mbi.State != windows.MEM_FREE {
			regions = append(regions, Region{
				Base:      mbi.BaseAddress,
				Size:      mbi.RegionSize,
				Prot:      protFromPageFlags(mbi.Protect),
				Kind:      kindFromMemType(mbi.Type),
				Committed: mbi.State == windows.MEM_COMMIT,
			})
		}

		next := mbi.BaseAddress + mbi.RegionSize
		if next <= addr {
			break
		}
		addr = next
	}

	return regions, nil
}

func protFromPageFlags(protect uint32) Prot {
	if protect&windows.PAGE_GUARD != 0 {
		return 0
	}
	switch protect & 0xff {
	case windows.PAGE_READONLY:
		return ProtRead
	case windows.PAGE_READWRITE, windows.PAGE_WRITECOPY:
		return ProtRead | ProtWrite
	case windows.PAGE_EXECUTE:
		return ProtExec
	case windows.PAGE_EXECUTE_READ:
		return ProtRead | ProtExec
	case windows.PAGE_EXECUTE_READWRITE, windows.PAGE_EXECUTE_WRITECOPY:
		return ProtRead | ProtWrite | ProtExec
	default:
		return 0
	}
}

func pageFlagsFromProt(p Prot) uint32 {
	switch p & (ProtRead | ProtWrite | ProtExec) {
	case ProtRead:
		return windows.PAGE_READONLY
	case ProtRead | ProtWrite, ProtWrite:
		return windows.PAGE_READWRITE
	case ProtExec:
		return windows.PAGE_EXECUTE
	case ProtRead | ProtExec:
		return windows.PAGE_EXECUTE_READ
	case ProtRead | ProtWrite | ProtExec, ProtWrite | ProtExec:
		return windows.PAGE_EXECUTE_READWRITE
	default:
		return windows.PAGE_NOACCESS
	}
}

func kindFromMemType(memType uint32) RegionKind {
	switch memType {
	case windows.MEM_IMAGE:
		return KindImage
	case windows.MEM_MAPPED:
		return KindShared
	case windows.MEM_PRIVATE:
		return KindPrivate
	default:
		return KindUnknown
	}
}
