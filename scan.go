package x86patch

import (
	"fmt"
	"iter"
	"unsafe"
)

// minScanAddr keeps scans off the null page.
const minScanAddr = 0x1000

// maxScanAddr is the top of user space: the lower half of the address space
// on every platform we run on.
func maxScanAddr() uintptr {
	return ^uintptr(0)>>1 + 1
}

type scanConfig struct {
	start, end uintptr
	preds      []func(Region) bool
}

// ScanOption narrows which regions Find and Matches consider. Options
// compose: a region matches iff it satisfies every option supplied.
type ScanOption func(*scanConfig)

// WithBounds restricts the scan to [start, end). An end of zero means the
// top of user space.
func WithBounds(start, end uintptr) ScanOption {
	return func(c *scanConfig) {
		c.start = start
		c.end = end
	}
}

// WithProtection requires every protection bit in p.
func WithProtection(p Prot) ScanOption {
	return WithPredicate(func(r Region) bool {
		return r.Prot&p == p
	})
}

// WithRegionKind requires the region to be mapped as k.
func WithRegionKind(k RegionKind) ScanOption {
	return WithPredicate(func(r Region) bool {
		return r.Kind == k
	})
}

// WithPredicate adds an arbitrary region filter.
func WithPredicate(pred func(Region) bool) ScanOption {
	return func(c *scanConfig) {
		c.preds = append(c.preds, pred)
	}
}

func newScanConfig(opts []ScanOption) (*scanConfig, error) {
	c := &scanConfig{start: minScanAddr}
	for _, opt := range opts {
		opt(c)
	}
	if c.start < minScanAddr {
		c.start = minScanAddr
	}
	if c.end == 0 {
		c.end = maxScanAddr()
	}
	if c.start >= c.end || c.end > maxScanAddr() {
		return nil, fmt.Errorf("%w: %#x..%#x", ErrInvalidRange, c.start, c.end)
	}
	return c, nil
}

func (c *scanConfig) matchRegion(r Region) bool {
	for _, pred := range c.preds {
		if !pred(r) {
			return false
		}
	}
	return true
}

// Find scans committed, readable memory for pat and yields the address of
// every match in ascending order. The sequence is lazy and restartable:
// each range over it rescans the live memory map. Regions the OS marks
// inaccessible are skipped, not errors.
func Find(pat Pattern, opts ...ScanOption) (iter.Seq[uintptr], error) {
	if pat.Len() == 0 {
		return nil, fmt.Errorf("empty pattern")
	}
	cfg, err := newScanConfig(opts)
	if err != nil {
		return nil, err
	}

	// A memory map that cannot be read at all is an error, not an empty
	// result. Each iteration still rescans the live map.
	if _, err := enumRegions(); err != nil {
		return nil, err
	}

	return func(yield func(uintptr) bool) {
		regions, err := enumRegions()
		if err != nil {
			return
		}

		for _, reg := range regions {
			if !reg.Committed || reg.Prot&ProtRead == 0 {
				continue
			}
			if !cfg.matchRegion(reg) {
				continue
			}

			lo, hi := reg.Base, reg.End()
			if lo < cfg.start {
				lo = cfg.start
			}
			if hi > cfg.end {
				hi = cfg.end
			}
			if hi <= lo || hi-lo < uintptr(pat.Len()) {
				continue
			}

			data := unsafe.Slice((*byte)(unsafe.Pointer(lo)), hi-lo)
			for off := pat.scan(data, 0); off >= 0; off = pat.scan(data, off+1) {
				if !yield(lo + uintptr(off)) {
					return
				}
			}
		}
	}, nil
}

// FindFirst returns the lowest match for pat, or an error if there is none.
func FindFirst(pat Pattern, opts ...ScanOption) (uintptr, error) {
	seq, err := Find(pat, opts...)
	if err != nil {
		return 0, err
	}
	for addr := range seq {
		return addr, nil
	}
	return 0, fmt.Errorf("pattern %v not found", pat)
}

// Matches reports whether the region containing addr satisfies every filter
// in opts. Use it to re-validate cached or externally supplied addresses
// before dereferencing or patching them. Unmapped addresses never match.
func Matches(addr uintptr, opts ...ScanOption) bool {
	cfg, err := newScanConfig(opts)
	if err != nil {
		return false
	}
	if addr < cfg.start || addr >= cfg.end {
		return false
	}

	reg, err := Query(addr)
	if err != nil {
		return false
	}
	return reg.Committed && cfg.matchRegion(reg)
}
