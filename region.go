package x86patch

import (
	"fmt"
	"sort"
)

// Prot is a protection bitmask for a memory region.
type Prot uint8

const (
	ProtRead Prot = 1 << iota
	ProtWrite
	ProtExec
)

func (p Prot) String() string {
	b := [3]byte{'-', '-', '-'}
	if p&ProtRead != 0 {
		b[0] = 'r'
	}
	if p&ProtWrite != 0 {
		b[1] = 'w'
	}
	if p&ProtExec != 0 {
		b[2] = 'x'
	}
	return string(b[:])
}

// RegionKind classifies how a region was mapped.
type RegionKind int

const (
	KindUnknown RegionKind = iota
	KindPrivate
	KindShared
	KindImage
)

// Region is a snapshot of one span of the process's address space, as
// reported by the OS. It can go stale as soon as it is taken; re-query
// before acting on it.
type Region struct {
	Base      uintptr
	Size      uintptr
	Prot      Prot
	Kind      RegionKind
	Committed bool
	Path      string
}

func (r Region) End() uintptr { return r.Base + r.Size }

func (r Region) Contains(addr uintptr) bool {
	return addr >= r.Base && addr < r.End()
}

func (r Region) String() string {
	return fmt.Sprintf("%#x-%#x %v %s", r.Base, r.End(), r.Prot, r.Path)
}

// Regions returns a snapshot of the current memory map, sorted by base
// address.
func Regions() ([]Region, error) {
	return enumRegions()
}

// Query returns the region containing addr, or ErrUnmappedAddress if no
// region does.
func Query(addr uintptr) (Region, error) {
	regions, err := enumRegions()
	if err != nil {
		return Region{}, err
	}

	i := sort.Search(len(regions), func(i int) bool {
		return regions[i].End() > addr
	})
	if i < len(regions) && regions[i].Contains(addr) {
		return regions[i], nil
	}
	return Region{}, fmt.Errorf("%w: %#x", ErrUnmappedAddress, addr)
}
