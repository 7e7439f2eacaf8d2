package x86patch

import (
	"encoding/binary"
	"fmt"
	"math"
	"unsafe"

	"golang.org/x/arch/x86/x86asm"
)

// BranchKind selects the instruction family produced by Encode.
type BranchKind int

const (
	Call BranchKind = iota
	Jmp
	Jo
	Jno
	Jb
	Jae
	Je
	Jne
	Jbe
	Ja
	Js
	Jns
	Jp
	Jnp
	Jl
	Jge
	Jle
	Jg
)

var branchNames = [...]string{
	"call", "jmp",
	"jo", "jno", "jb", "jae", "je", "jne", "jbe", "ja",
	"js", "jns", "jp", "jnp", "jl", "jge", "jle", "jg",
}

func (k BranchKind) String() string {
	if k < 0 || int(k) >= len(branchNames) {
		return fmt.Sprintf("BranchKind(%d)", int(k))
	}
	return branchNames[k]
}

const (
	opcodeCALL    = 0xe8 // CALL rel32
	opcodeJMP     = 0xe9 // JMP rel32
	opcodeJMPrel8 = 0xeb // JMP rel8
	opcodeLCALL   = 0x9a // far CALL ptr16:32
	opcodeLJMP    = 0xea // far JMP ptr16:32
	opcodeEscape  = 0x0f // first byte of near jcc

	opcodeNOP     = 0x90
	opcodeRET     = 0xc3
	opcodePUSHimm = 0x68 // PUSH imm32
	opcodePUSHAD  = 0x60
	opcodePOPAD   = 0x61
)

// The conditional jumps sit in a contiguous opcode block: 0x70+cc for the
// rel8 forms and 0x0F 0x80+cc for the rel32 forms, with the same condition
// code cc in both.
func conditionCode(k BranchKind) (byte, bool) {
	if k >= Jo && k <= Jg {
		return byte(k - Jo), true
	}
	return 0, false
}

func nearOpcode(k BranchKind) ([]byte, error) {
	switch k {
	case Call:
		return []byte{opcodeCALL}, nil
	case Jmp:
		return []byte{opcodeJMP}, nil
	}
	if cc, ok := conditionCode(k); ok {
		return []byte{opcodeEscape, 0x80 + cc}, nil
	}
	return nil, fmt.Errorf("unknown branch kind %d", int(k))
}

// Encode returns the near form of a branch of the given kind placed at
// source and targeting target. The displacement is computed from the end of
// the encoded instruction; if it does not fit a signed 32-bit field the
// encoding fails with ErrDisplacementOutOfRange.
func Encode(kind BranchKind, source, target uintptr) ([]byte, error) {
	opcode, err := nearOpcode(kind)
	if err != nil {
		return nil, err
	}

	size := len(opcode) + 4
	disp := int64(target) - int64(source) - int64(size)
	if disp < math.MinInt32 || disp > math.MaxInt32 {
		return nil, fmt.Errorf("%w: %v from %#x to %#x", ErrDisplacementOutOfRange, kind, source, target)
	}

	buf := make([]byte, size)
	copy(buf, opcode)
	binary.LittleEndian.PutUint32(buf[len(opcode):], uint32(int32(disp)))
	return buf, nil
}

// EncodeShort returns the rel8 form of a jump. Call has no short form.
func EncodeShort(kind BranchKind, source, target uintptr) ([]byte, error) {
	var opcode byte
	switch {
	case kind == Jmp:
		opcode = opcodeJMPrel8
	default:
		cc, ok := conditionCode(kind)
		if !ok {
			return nil, fmt.Errorf("%v has no short encoding", kind)
		}
		opcode = 0x70 + cc
	}

	const size = 2
	disp := int64(target) - int64(source) - size
	if disp < math.MinInt8 || disp > math.MaxInt8 {
		return nil, fmt.Errorf("%w: %v from %#x to %#x", ErrDisplacementOutOfRange, kind, source, target)
	}

	return []byte{opcode, byte(int8(disp))}, nil
}

// Decode reads the instruction at addr and returns the absolute address it
// branches to. Near and short call/jmp/jcc forms are recognized, as are
// JCXZ/JECXZ and the far ptr16:32 forms, which carry an absolute operand.
// Branches through a register or memory operand have no recoverable target
// and fail with ErrUnrecognizedOpcode. An unmapped or unreadable addr fails
// with ErrUnreadableMemory.
func Decode(addr uintptr) (uintptr, error) {
	code, err := readCode(addr)
	if err != nil {
		return 0, err
	}

	// Far forms store the target offset directly after the opcode.
	if code[0] == opcodeLCALL || code[0] == opcodeLJMP {
		if len(code) < 7 {
			return 0, fmt.Errorf("%w: far branch at %#x is cut off by the end of its region", ErrUnreadableMemory, addr)
		}
		return uintptr(binary.LittleEndian.Uint32(code[1:])), nil
	}

	inst, err := x86asm.Decode(code, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %#02x at %#x", ErrUnrecognizedOpcode, code[0], addr)
	}

	switch inst.Op {
	case x86asm.CALL, x86asm.JMP,
		x86asm.JO, x86asm.JNO, x86asm.JB, x86asm.JAE, x86asm.JE, x86asm.JNE,
		x86asm.JBE, x86asm.JA, x86asm.JS, x86asm.JNS, x86asm.JP, x86asm.JNP,
		x86asm.JL, x86asm.JGE, x86asm.JLE, x86asm.JG,
		x86asm.JCXZ, x86asm.JECXZ:
	default:
		return 0, fmt.Errorf("%w: %v at %#x", ErrUnrecognizedOpcode, inst.Op, addr)
	}

	rel, ok := inst.Args[0].(x86asm.Rel)
	if !ok {
		return 0, fmt.Errorf("%w: %v at %#x has an indirect operand", ErrUnrecognizedOpcode, inst.Op, addr)
	}

	return uintptr(int64(addr) + int64(inst.Len) + int64(rel)), nil
}

// maxInstrBytes is how much Decode reads ahead of addr. x86asm never needs
// more than 16 bytes for one instruction.
const maxInstrBytes = 16

// readCode returns a view of the bytes at addr, clamped to the end of the
// containing region. The region must be committed and readable.
func readCode(addr uintptr) ([]byte, error) {
	reg, err := Query(addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %#x is not mapped", ErrUnreadableMemory, addr)
	}
	if !reg.Committed || reg.Prot&ProtRead == 0 {
		return nil, fmt.Errorf("%w: %#x (%v)", ErrUnreadableMemory, addr, reg.Prot)
	}

	n := uintptr(maxInstrBytes)
	if end := reg.End(); addr+n > end || addr+n < addr {
		n = end - addr
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: %#x is at the end of its region", ErrUnreadableMemory, addr)
	}

	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), n), nil
}
