//go:build linux

package x86patch

import (
	"os"
	"strconv"
	"strings"
)

// enumRegions parses /proc/self/maps. Lines look like:
//
//	55e4ca9c6000-55e4ca9e7000 rw-p 00000000 00:00 0    [heap]
func enumRegions() ([]Region, error) {
	data, err := os.ReadFile("/proc/self/maps")
	if err != nil {
		return nil, err
	}

	var regions []Region
	for line := range strings.Lines(string(data)) {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}

		lo, hi, ok := strings.Cut(fields[0], "-")
		if !ok {
			continue
		}
		base, err1 := strconv.ParseUint(lo, 16, 64)
		end, err2 := strconv.ParseUint(hi, 16, 64)
		if err1 != nil || err2 != nil || end < base {
			continue
		}

		perms := fields[1]
		if len(perms) < 4 {
			continue
		}
		var prot Prot
		if perms[0] == 'r' {
			prot |= ProtRead
		}
		if perms[1] == 'w' {
			prot |= ProtWrite
		}
		if perms[2] == 'x' {
			prot |= ProtExec
		}
		kind := KindPrivate
		if perms[3] == 's' {
			kind = KindShared
		}

		var path string
		if len(fields) >= 6 {
			path = fields[5]
		}

		regions = append(regions, Region{
			Base:      uintptr(base),
			Size:      uintptr(end - base),
			Prot:      prot,
			Kind:      kind,
			Committed: true,
			Path:      path,
		})
	}
	return regions, nil
}
