package x86patch

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// Pattern is a byte signature with optional wildcard positions. A zero mask
// byte marks a wildcard that matches anything.
type Pattern struct {
	bytes []byte
	mask  []byte
}

// ParsePattern parses the usual text form of a signature: hex bytes
// separated by spaces, with "?" or "??" for wildcards, e.g. "55 8B ?? EC".
func ParsePattern(s string) (Pattern, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return Pattern{}, fmt.Errorf("empty pattern %q", s)
	}

	p := Pattern{
		bytes: make([]byte, len(fields)),
		mask:  make([]byte, len(fields)),
	}
	for i, f := range fields {
		if f == "?" || f == "??" {
			continue
		}
		b, err := strconv.ParseUint(f, 16, 8)
		if err != nil {
			return Pattern{}, fmt.Errorf("bad pattern byte %q: %v", f, err)
		}
		p.bytes[i] = byte(b)
		p.mask[i] = 0xff
	}
	return p, nil
}

// MustPattern is ParsePattern for compile-time-constant signatures; it
// panics on a malformed pattern.
func MustPattern(s string) Pattern {
	p, err := ParsePattern(s)
	if err != nil {
		panic(err)
	}
	return p
}

// Exact returns a pattern that matches b with no wildcards.
func Exact(b []byte) Pattern {
	p := Pattern{
		bytes: bytes.Clone(b),
		mask:  make([]byte, len(b)),
	}
	for i := range p.mask {
		p.mask[i] = 0xff
	}
	return p
}

func (p Pattern) Len() int { return len(p.bytes) }

func (p Pattern) String() string {
	var sb strings.Builder
	for i, b := range p.bytes {
		if i > 0 {
			sb.WriteByte(' ')
		}
		if p.mask[i] == 0 {
			sb.WriteString("??")
		} else {
			fmt.Fprintf(&sb, "%02X", b)
		}
	}
	return sb.String()
}

func (p Pattern) matchAt(window []byte) bool {
	for j, m := range p.mask {
		if m != 0 && window[j] != p.bytes[j] {
			return false
		}
	}
	return true
}

// scan returns the offset of the next match in data at or after from, or -1.
// When the first pattern byte is fixed, bytes.IndexByte skips the bulk of
// the region without a per-byte loop.
func (p Pattern) scan(data []byte, from int) int {
	n := len(p.bytes)
	if n == 0 || from < 0 {
		return -1
	}

	i := from
	for i+n <= len(data) {
		if p.mask[0] != 0 {
			k := bytes.IndexByte(data[i:len(data)-n+1], p.bytes[0])
			if k < 0 {
				return -1
			}
			i += k
		}
		if p.matchAt(data[i : i+n]) {
			return i
		}
		i++
	}
	return -1
}
