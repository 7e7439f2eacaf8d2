package x86patch

import (
	"encoding/binary"
	"fmt"
	"math"
	"unsafe"
)

// valueKind tags a Value so Bind can check it against the slot it fills.
type valueKind int

const (
	valueAddr valueKind = iota
	valueImm
)

var valueKindNames = [...]string{"address", "immediate"}

func (k valueKind) String() string {
	if k < 0 || int(k) >= len(valueKindNames) {
		return fmt.Sprintf("valueKind(%d)", int(k))
	}
	return valueKindNames[k]
}

// Value is one bind-time argument for a template slot.
type Value struct {
	kind valueKind
	addr uintptr
	imm  uint64
}

// Addr wraps an absolute address. It binds to address, branch and relative
// slots.
func Addr(a uintptr) Value {
	return Value{kind: valueAddr, addr: a}
}

// Imm wraps a literal value. It binds to immediate slots.
func Imm(v uint32) Value {
	return Value{kind: valueImm, imm: uint64(v)}
}

// Patch is a template instance living in executable memory. A patch starts
// as a copy of the template layout with its slots zeroed; Bind fills the
// slots exactly once, after which Entry is safe to branch to.
type Patch struct {
	tmpl  *Template
	buf   []byte
	bound bool
}

// NewPatch allocates an executable buffer and copies the template layout
// into it. The buffer is read-execute outside of allocator mutate scopes.
func NewPatch(t *Template) (*Patch, error) {
	if err := execAllocator.BeginMutate(); err != nil {
		return nil, fmt.Errorf("error making patch arena writable: %w", err)
	}

	buf, err := execAllocator.Allocate(t.Size())
	if err != nil {
		execAllocator.EndMutate()
		return nil, fmt.Errorf("error allocating patch buffer: %w", err)
	}
	copy(buf, t.layout)

	if err := execAllocator.EndMutate(); err != nil {
		return nil, fmt.Errorf("error sealing patch arena: %w", err)
	}

	return &Patch{tmpl: t, buf: buf}, nil
}

// Entry is the address of the first byte of the patch buffer.
func (p *Patch) Entry() uintptr {
	return uintptr(unsafe.Pointer(&p.buf[0]))
}

// Bound reports whether Bind has completed.
func (p *Patch) Bound() bool {
	return p.bound
}

// Bytes returns a copy of the current patch buffer contents.
func (p *Patch) Bytes() []byte {
	return append([]byte(nil), p.buf...)
}

// Bind fills the patch's slots, in slot order, and makes the buffer final.
// Every value is validated against its slot before any byte is written, so
// a failed Bind leaves the buffer untouched and the patch unbound. Binding
// is one-shot; a second call fails with ErrAlreadyBound.
func (p *Patch) Bind(values ...Value) (uintptr, error) {
	if p.bound {
		return 0, ErrAlreadyBound
	}

	slots := p.tmpl.slots
	if len(values) != len(slots) {
		return 0, fmt.Errorf("%w: template has %d slots, got %d values",
			ErrSlotArityMismatch, len(slots), len(values))
	}

	// Stage every slot write into a scratch copy. Nothing touches the
	// live buffer until all of them have encoded cleanly.
	staged := append([]byte(nil), p.buf...)
	base := p.Entry()

	for i, s := range slots {
		v := values[i]
		if err := fillSlot(staged, base, s, v); err != nil {
			return 0, fmt.Errorf("slot %d: %w", i, err)
		}
	}

	if err := execAllocator.BeginMutate(); err != nil {
		return 0, fmt.Errorf("error making patch arena writable: %w", err)
	}
	copy(p.buf, staged)
	if err := execAllocator.EndMutate(); err != nil {
		return 0, fmt.Errorf("error sealing patch arena: %w", err)
	}

	p.bound = true
	return base, nil
}

// fillSlot writes one bind value into buf at the slot's offset. base is the
// runtime address of buf[0], needed for displacement slots.
func fillSlot(buf []byte, base uintptr, s Slot, v Value) error {
	switch s.Kind {
	case SlotAddress:
		if v.kind != valueAddr {
			return fmt.Errorf("%w: address slot got %v value", ErrSlotTypeMismatch, v.kind)
		}
		return putUint(buf[s.Offset:], s.Len, uint64(v.addr))

	case SlotImmediate:
		if v.kind != valueImm {
			return fmt.Errorf("%w: immediate slot got %v value", ErrSlotTypeMismatch, v.kind)
		}
		return putUint(buf[s.Offset:], s.Len, v.imm)

	case SlotBranch:
		if v.kind != valueAddr {
			return fmt.Errorf("%w: branch slot got %v value", ErrSlotTypeMismatch, v.kind)
		}
		code, err := Encode(s.Branch, base+uintptr(s.instrOff), v.addr)
		if err != nil {
			return err
		}
		copy(buf[s.instrOff:], code)
		return nil

	case SlotRelative:
		if v.kind != valueAddr {
			return fmt.Errorf("%w: relative slot got %v value", ErrSlotTypeMismatch, v.kind)
		}
		disp := int64(v.addr) - int64(base) - int64(s.Offset) - int64(s.Len)
		if disp < math.MinInt32 || disp > math.MaxInt32 {
			return fmt.Errorf("%w: to %#x", ErrDisplacementOutOfRange, v.addr)
		}
		binary.LittleEndian.PutUint32(buf[s.Offset:], uint32(int32(disp)))
		return nil
	}
	return fmt.Errorf("unknown slot kind %d", int(s.Kind))
}

// putUint writes v little-endian into the slot's width, rejecting values
// that do not fit.
func putUint(b []byte, width int, v uint64) error {
	if width < 8 && v>>(8*width) != 0 {
		return fmt.Errorf("%w: %#x does not fit %d bytes", ErrValueOutOfRange, v, width)
	}
	for i := 0; i < width; i++ {
		b[i] = byte(v >> (8 * i))
	}
	return nil
}

// Release returns the patch buffer to the allocator. The patch must not be
// used afterwards; any code still branching into it will fault.
func (p *Patch) Release() error {
	if p.buf == nil {
		return nil
	}
	if err := execAllocator.BeginMutate(); err != nil {
		return fmt.Errorf("error making patch arena writable: %w", err)
	}
	execAllocator.Free(p.buf)
	p.buf = nil
	if err := execAllocator.EndMutate(); err != nil {
		return fmt.Errorf("error sealing patch arena: %w", err)
	}
	return nil
}
