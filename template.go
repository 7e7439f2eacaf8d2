package x86patch

import "bytes"

// SlotKind is the type of value a template slot accepts at bind time.
type SlotKind int

const (
	// SlotAddress is filled with an absolute address, little-endian.
	SlotAddress SlotKind = iota
	// SlotImmediate is filled with a literal value, little-endian.
	SlotImmediate
	// SlotBranch covers a whole branch instruction whose displacement is
	// computed by the branch codec at bind time.
	SlotBranch
	// SlotRelative is a bare rel32 field: the displacement from the end of
	// the field to the supplied address.
	SlotRelative
)

// Slot is one typed placeholder in a template. Offset and Len locate the
// value bytes within the buffer.
type Slot struct {
	Offset int
	Len    int
	Kind   SlotKind
	Branch BranchKind

	// instrOff is the start of the branch opcode for SlotBranch; the
	// codec needs the instruction address, not the displacement address.
	instrOff int
}

// Template is a fixed byte layout with an ordered list of typed slots.
// Templates are immutable once built; each Patch takes its own copy of the
// layout.
type Template struct {
	layout []byte
	slots  []Slot
}

func (t *Template) Size() int { return len(t.layout) }

func (t *Template) Slots() []Slot {
	return append([]Slot(nil), t.slots...)
}

// Layout returns a copy of the template bytes with all slots zeroed.
func (t *Template) Layout() []byte {
	return bytes.Clone(t.layout)
}

// TemplateBuilder assembles a Template from literal bytes and placeholder
// slots, in buffer order. The zero value is ready to use:
//
//	tmpl := x86patch.NewTemplate().
//		Bytes(0x29, 0xD8).         // sub eax, ebx
//		Branch(x86patch.Je).       // je <bound at runtime>
//		Push().                    // push <bound at runtime>
//		Ret().
//		Build()
type TemplateBuilder struct {
	buf   []byte
	slots []Slot
}

func NewTemplate() *TemplateBuilder {
	return &TemplateBuilder{}
}

// Bytes appends literal instruction bytes.
func (b *TemplateBuilder) Bytes(bs ...byte) *TemplateBuilder {
	b.buf = append(b.buf, bs...)
	return b
}

// Imm32 appends a 4-byte immediate slot.
func (b *TemplateBuilder) Imm32() *TemplateBuilder {
	b.slots = append(b.slots, Slot{Offset: len(b.buf), Len: 4, Kind: SlotImmediate})
	b.buf = append(b.buf, 0, 0, 0, 0)
	return b
}

// Addr32 appends a 4-byte absolute address slot.
func (b *TemplateBuilder) Addr32() *TemplateBuilder {
	b.slots = append(b.slots, Slot{Offset: len(b.buf), Len: 4, Kind: SlotAddress})
	b.buf = append(b.buf, 0, 0, 0, 0)
	return b
}

// Rel32 appends a bare 4-byte relative displacement slot, for instructions
// whose opcode bytes are written with Bytes.
func (b *TemplateBuilder) Rel32() *TemplateBuilder {
	b.slots = append(b.slots, Slot{Offset: len(b.buf), Len: 4, Kind: SlotRelative})
	b.buf = append(b.buf, 0, 0, 0, 0)
	return b
}

// Branch appends a complete near branch of the given kind with a 4-byte
// displacement slot. The displacement is encoded at bind time from the
// slot's own address to the bound target.
func (b *TemplateBuilder) Branch(kind BranchKind) *TemplateBuilder {
	opcode, err := nearOpcode(kind)
	if err != nil {
		panic(err) // template definitions are static; a bad kind is a bug
	}
	instrOff := len(b.buf)
	b.buf = append(b.buf, opcode...)
	b.slots = append(b.slots, Slot{
		Offset:   len(b.buf),
		Len:      4,
		Kind:     SlotBranch,
		Branch:   kind,
		instrOff: instrOff,
	})
	b.buf = append(b.buf, 0, 0, 0, 0)
	return b
}

// Push appends PUSH imm32 with an immediate slot for the pushed value.
func (b *TemplateBuilder) Push() *TemplateBuilder {
	b.buf = append(b.buf, opcodePUSHimm)
	return b.Imm32()
}

// PushAddr appends PUSH imm32 with an address slot, for pushing a runtime
// pointer.
func (b *TemplateBuilder) PushAddr() *TemplateBuilder {
	b.buf = append(b.buf, opcodePUSHimm)
	return b.Addr32()
}

func (b *TemplateBuilder) Pushad() *TemplateBuilder { return b.Bytes(opcodePUSHAD) }
func (b *TemplateBuilder) Popad() *TemplateBuilder  { return b.Bytes(opcodePOPAD) }
func (b *TemplateBuilder) Ret() *TemplateBuilder    { return b.Bytes(opcodeRET) }
func (b *TemplateBuilder) Nop() *TemplateBuilder    { return b.Bytes(opcodeNOP) }

// Build finalizes the template. The builder can be reused afterwards
// without affecting templates already built.
func (b *TemplateBuilder) Build() *Template {
	return &Template{
		layout: bytes.Clone(b.buf),
		slots:  append([]Slot(nil), b.slots...),
	}
}
