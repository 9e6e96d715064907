package vm

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// image seals code the way the loader does.
func image(code ...byte) *Image {
	img := NewImage("test", len(code))
	copy(img.Code, code)
	img.Seal(len(code))
	return img
}

func i32(op Opcode, n int32) []byte {
	return binary.LittleEndian.AppendUint32([]byte{byte(op)}, uint32(n))
}

func cat(parts ...[]byte) (b []byte) {
	for _, p := range parts {
		b = append(b, p...)
	}
	return
}

func TestInvoke(t *testing.T) {
	m := New()
	m.Resize(1)
	img := image(cat(i32(OpConst, 6), i32(OpConst, 7), []byte{byte(OpMul)}, i32(OpSetGlobal, 0))...)
	require.Len(t, img.Code, 16+1+TrailerSize)
	v, err := m.Invoke(img)
	require.NoError(t, err)
	assert.Equal(t, Unit{}, v)
	assert.Equal(t, int64(42), m.Globals[0])

	img.Code[len(img.Code)-1] = 9
	_, err = m.Invoke(img)
	assert.ErrorIs(t, err, ErrBadTrailer)
	_, err = m.Invoke(&Image{Code: []byte{byte(OpReturn)}})
	assert.ErrorIs(t, err, ErrBadTrailer)
}

func TestResize(t *testing.T) {
	m := New()
	m.Resize(3)
	m.Globals[2] = int64(1)
	m.Resize(2)
	assert.Len(t, m.Globals, 2)
	m.Resize(3)
	assert.Nil(t, m.Globals[2])
}

func TestFaults(t *testing.T) {
	m := New()
	_, err := m.Invoke(image(cat(i32(OpConst, 1), i32(OpConst, 0), []byte{byte(OpDiv)})...))
	var f *Fault
	require.ErrorAs(t, err, &f)
	assert.Equal(t, Exception{Name: "Division_by_zero"}, f.Value)
	assert.Empty(t, f.Backtrace)
	assert.Equal(t, "Exception: Division_by_zero", f.Error())

	prev := m.SetBacktrace(true)
	assert.False(t, prev)
	img := image(cat(i32(OpConst, 3), []byte{byte(OpRaise)})...)
	img.Events = []Event{{Pos: 0, Location: "raise.ml:1"}}
	_, err = m.Invoke(img)
	require.ErrorAs(t, err, &f)
	assert.Equal(t, Exception{Name: "Failure", Arg: int64(3)}, f.Value)
	assert.Equal(t, "Called from raise.ml:1", f.Trace())

	_, err = m.Invoke(image(byte(OpGetGlobal), 9, 0, 0, 0))
	require.ErrorAs(t, err, &f)
	assert.Equal(t, "Invalid_code", f.Value.(Exception).Name)
	_, err = m.Invoke(image(0x77))
	require.ErrorAs(t, err, &f)
	assert.Equal(t, "Invalid_code", f.Value.(Exception).Name)
}

func TestApply(t *testing.T) {
	m := New()
	add := &Primitive{Name: "add", Arity: 2, Fn: func(_ *Machine, args []Value) (Value, error) {
		return args[0].(int64) + args[1].(int64), nil
	}}
	v, err := m.Apply(add, int64(1), int64(2))
	require.NoError(t, err)
	assert.Equal(t, int64(3), v)
	_, err = m.Apply(add, int64(1))
	assert.Error(t, err)
	_, err = m.Apply(int64(1))
	assert.Error(t, err)

	// closure entering at 1: ACC 0, ENVACC 0, ADD, RETURN
	img := image(byte(OpReturn), byte(OpAcc), 0, byte(OpEnvAcc), 0, byte(OpAdd), byte(OpReturn))
	c := &Closure{Code: &Bytecode{Image: img, Entry: 1, NArgs: 1}, Env: []Value{int64(10)}}
	v, err = m.Apply(c, int64(5))
	require.NoError(t, err)
	assert.Equal(t, int64(15), v)
	assert.Equal(t, "<fun>", Format(c))
}

func TestTrampoline(t *testing.T) {
	m := New()
	img := image(byte(OpReturn), byte(OpAcc), 0, byte(OpReturn))
	actual := &Bytecode{Image: img, Entry: 1, NArgs: 1}
	c := &Closure{Code: actual}
	var seen []Value
	m.SetDispatch(c, func(m *Machine, self *Closure, args []Value) (Value, error) {
		seen = append(seen, args...)
		return m.Run(actual, self, args)
	})
	c.Code = Trampoline
	v, err := m.Apply(c, "x")
	require.NoError(t, err)
	assert.Equal(t, "x", v)
	assert.Equal(t, []Value{"x"}, seen)

	m.ClearDispatch(c)
	_, err = m.Apply(c, "x")
	assert.Error(t, err)
}

func TestStackOverflow(t *testing.T) {
	m := New()
	m.Resize(1)
	// entry 1: GETGLOBAL 0, ACC 0, APPLY 1, RETURN
	img := image(cat([]byte{byte(OpReturn)}, i32(OpGetGlobal, 0), []byte{byte(OpAcc), 0, byte(OpApply), 1, byte(OpReturn)})...)
	c := &Closure{Code: &Bytecode{Image: img, Entry: 1, NArgs: 1}}
	m.Globals[0] = c
	_, err := m.Apply(c, Unit{})
	var f *Fault
	require.ErrorAs(t, err, &f)
	assert.Equal(t, "Stack_overflow", f.Value.(Exception).Name)
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "<uninitialized>", Format(nil))
	assert.Equal(t, "-3", Format(int64(-3)))
	assert.Equal(t, `"a"`, Format("a"))
	assert.Equal(t, "()", Format(Unit{}))
	assert.Equal(t, "Not_found", Format(Exception{Name: "Not_found"}))
	assert.Equal(t, "<prim p>", Format(&Primitive{Name: "p"}))
	assert.Equal(t, "GETGLOBAL", OpGetGlobal.String())
	assert.Equal(t, "OP(119)", Opcode(0x77).String())
}
