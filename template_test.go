package x86patch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTemplateBuilder(t *testing.T) {
	assert := assert.New(t)

	tmpl := NewTemplate().
		Pushad().
		Push().
		Branch(Call).
		Popad().
		Branch(Jmp).
		Build()

	assert.Equal(17, tmpl.Size())
	assert.Equal([]byte{
		0x60,
		0x68, 0x00, 0x00, 0x00, 0x00,
		0xe8, 0x00, 0x00, 0x00, 0x00,
		0x61,
		0xe9, 0x00, 0x00, 0x00, 0x00,
	}, tmpl.Layout())

	slots := tmpl.Slots()
	if assert.Len(slots, 3) {
		assert.Equal(Slot{Offset: 2, Len: 4, Kind: SlotImmediate}, slots[0])
		assert.Equal(Slot{Offset: 7, Len: 4, Kind: SlotBranch, Branch: Call, instrOff: 6}, slots[1])
		assert.Equal(Slot{Offset: 13, Len: 4, Kind: SlotBranch, Branch: Jmp, instrOff: 12}, slots[2])
	}
}

func TestTemplateBuilder_ConditionalBranch(t *testing.T) {
	assert := assert.New(t)

	tmpl := NewTemplate().
		Bytes(0x39, 0xd8). // cmp eax, ebx
		Branch(Je).
		Ret().
		Build()

	// jcc takes a two-byte opcode, so its slot sits two bytes in.
	slots := tmpl.Slots()
	if assert.Len(slots, 1) {
		assert.Equal(Slot{Offset: 4, Len: 4, Kind: SlotBranch, Branch: Je, instrOff: 2}, slots[0])
	}
	assert.Equal(9, tmpl.Size())
	assert.Equal([]byte{0x39, 0xd8, 0x0f, 0x84, 0x00, 0x00, 0x00, 0x00, 0xc3}, tmpl.Layout())
}

func TestTemplateBuilder_Slots(t *testing.T) {
	assert := assert.New(t)

	tmpl := NewTemplate().
		Addr32().
		Imm32().
		Bytes(0xe9).
		Rel32().
		Nop().
		Build()

	assert.Equal(14, tmpl.Size())
	slots := tmpl.Slots()
	if assert.Len(slots, 3) {
		assert.Equal(SlotAddress, slots[0].Kind)
		assert.Equal(SlotImmediate, slots[1].Kind)
		assert.Equal(Slot{Offset: 9, Len: 4, Kind: SlotRelative}, slots[2])
	}
}

func TestTemplateBuilder_PushAddrRet(t *testing.T) {
	assert := assert.New(t)

	// push <addr>; ret is the classic absolute jump without a register.
	tmpl := NewTemplate().
		PushAddr().
		Ret().
		Build()

	assert.Equal([]byte{0x68, 0x00, 0x00, 0x00, 0x00, 0xc3}, tmpl.Layout())
	slots := tmpl.Slots()
	if assert.Len(slots, 1) {
		assert.Equal(SlotAddress, slots[0].Kind)
	}
}

func TestTemplateBuilder_BadBranchKind(t *testing.T) {
	assert.Panics(t, func() {
		NewTemplate().Branch(BranchKind(99))
	})
}

func TestTemplate_Isolation(t *testing.T) {
	assert := assert.New(t)

	b := NewTemplate().Nop()
	first := b.Build()
	b.Ret()
	second := b.Build()

	assert.Equal(1, first.Size())
	assert.Equal(2, second.Size())

	// Mutating a returned layout does not touch the template.
	layout := first.Layout()
	layout[0] = 0xcc
	assert.Equal([]byte{opcodeNOP}, first.Layout())
}
