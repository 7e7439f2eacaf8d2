package x86patch

import (
	"strings"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
)

func TestNewPatch(t *testing.T) {
	assert := assert.New(t)

	tmpl := NewTemplate().Push().Ret().Build()
	p, err := NewPatch(tmpl)
	if !assert.NoError(err) {
		return
	}
	t.Cleanup(func() { p.Release() })

	assert.Equal(tmpl.Layout(), p.Bytes())
	assert.NotZero(p.Entry())
	assert.False(p.Bound())

	// The buffer must live in executable memory.
	assert.True(Matches(p.Entry(), WithProtection(ProtRead|ProtExec)))
}

func TestPatch_Bind(t *testing.T) {
	assert := assert.New(t)

	tmpl := NewTemplate().
		Pushad().
		Push().
		Branch(Call).
		Popad().
		Branch(Jmp).
		Build()

	p, err := NewPatch(tmpl)
	if !assert.NoError(err) {
		return
	}
	t.Cleanup(func() { p.Release() })

	callTarget := p.Entry() + 0x40
	jmpTarget := p.Entry() + 0x80

	entry, err := p.Bind(Imm(1234), Addr(callTarget), Addr(jmpTarget))
	if !assert.NoError(err) {
		return
	}
	assert.Equal(p.Entry(), entry)
	assert.True(p.Bound())

	// The buffer is sealed read-execute once the bind commits.
	reg, err := Query(entry)
	if assert.NoError(err) {
		assert.Equal(ProtRead|ProtExec, reg.Prot)
	}

	buf := p.Bytes()
	assert.Equal(byte(0x60), buf[0])
	assert.Equal([]byte{0x68, 0xd2, 0x04, 0x00, 0x00}, buf[1:6])
	assert.Equal(byte(0x61), buf[11])

	wantCall, err := Encode(Call, entry+6, callTarget)
	if assert.NoError(err) {
		assert.Equal(wantCall, buf[6:11])
	}
	wantJmp, err := Encode(Jmp, entry+12, jmpTarget)
	if assert.NoError(err) {
		assert.Equal(wantJmp, buf[12:17])
	}

	// The branch targets decode back out of the live buffer.
	got, err := Decode(entry + 6)
	if assert.NoError(err) {
		assert.Equal(callTarget, got)
	}
	got, err = Decode(entry + 12)
	if assert.NoError(err) {
		assert.Equal(jmpTarget, got)
	}
}

func TestPatch_BindRelative(t *testing.T) {
	assert := assert.New(t)

	// A hand-rolled jmp via Bytes+Rel32 must encode the same displacement
	// as a branch slot.
	tmpl := NewTemplate().Bytes(opcodeJMP).Rel32().Build()
	p, err := NewPatch(tmpl)
	if !assert.NoError(err) {
		return
	}
	t.Cleanup(func() { p.Release() })

	target := p.Entry() + 0x20
	entry, err := p.Bind(Addr(target))
	if !assert.NoError(err) {
		return
	}

	want, err := Encode(Jmp, entry, target)
	if assert.NoError(err) {
		assert.Equal(want, p.Bytes())
	}
}

func TestPatch_BindErrors(t *testing.T) {
	assert := assert.New(t)

	tmpl := NewTemplate().Push().Branch(Jmp).Build()
	p, err := NewPatch(tmpl)
	if !assert.NoError(err) {
		return
	}
	t.Cleanup(func() { p.Release() })

	before := p.Bytes()

	_, err = p.Bind(Imm(1))
	assert.ErrorIs(err, ErrSlotArityMismatch)

	_, err = p.Bind(Imm(1), Addr(p.Entry()), Imm(2))
	assert.ErrorIs(err, ErrSlotArityMismatch)

	_, err = p.Bind(Addr(p.Entry()), Addr(p.Entry()))
	assert.ErrorIs(err, ErrSlotTypeMismatch)

	_, err = p.Bind(Imm(1), Imm(2))
	assert.ErrorIs(err, ErrSlotTypeMismatch)

	// A failed bind leaves the buffer untouched and the patch unbound.
	assert.Equal(before, p.Bytes())
	assert.False(p.Bound())

	_, err = p.Bind(Imm(1), Addr(p.Entry()))
	assert.NoError(err)

	_, err = p.Bind(Imm(1), Addr(p.Entry()))
	assert.ErrorIs(err, ErrAlreadyBound)
}

func TestPatch_BindValueOutOfRange(t *testing.T) {
	assert := assert.New(t)

	if unsafe.Sizeof(uintptr(0)) < 8 {
		t.Skip("needs a 64-bit address to overflow a 4-byte slot")
	}

	tmpl := NewTemplate().PushAddr().Ret().Build()
	p, err := NewPatch(tmpl)
	if !assert.NoError(err) {
		return
	}
	t.Cleanup(func() { p.Release() })

	one := uintptr(1)
	_, err = p.Bind(Addr(one << 32))
	assert.ErrorIs(err, ErrValueOutOfRange)
	assert.False(p.Bound())

	_, err = p.Bind(Addr(0x401000))
	assert.NoError(err)
}

func TestPatch_BindDisplacementOutOfRange(t *testing.T) {
	assert := assert.New(t)

	if unsafe.Sizeof(uintptr(0)) < 8 {
		t.Skip("needs a 64-bit address space to exceed rel32 range")
	}

	tmpl := NewTemplate().Branch(Jmp).Build()
	p, err := NewPatch(tmpl)
	if !assert.NoError(err) {
		return
	}
	t.Cleanup(func() { p.Release() })

	far := p.Entry() + (uintptr(1) << 40)
	_, err = p.Bind(Addr(far))
	assert.ErrorIs(err, ErrDisplacementOutOfRange)
	assert.False(p.Bound())
}

func TestPatch_Release(t *testing.T) {
	assert := assert.New(t)

	tmpl := NewTemplate().Ret().Build()
	p, err := NewPatch(tmpl)
	if !assert.NoError(err) {
		return
	}

	assert.NoError(p.Release())
	assert.NoError(p.Release())
}

func TestPatch_Disassemble(t *testing.T) {
	assert := assert.New(t)

	tmpl := NewTemplate().Push().Ret().Build()
	p, err := NewPatch(tmpl)
	if !assert.NoError(err) {
		return
	}
	t.Cleanup(func() { p.Release() })

	_, err = p.Bind(Imm(42))
	if !assert.NoError(err) {
		return
	}

	text, err := Disassemble(p.Bytes(), p.Entry())
	if assert.NoError(err) {
		lower := strings.ToLower(text)
		assert.Contains(lower, "push")
		assert.Contains(lower, "ret")
	}
}
