// Package vm is the execution engine loaded units run on: a stack machine over
// little endian bytecode with closures, primitives and a global data array.
package vm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

// MaxDepth bounds nested calls.
const MaxDepth = 10000

var (
	ErrBadTrailer = errors.New("image does not end with a closure trailer")
)

// Handler receives calls that reach the Trampoline for a given closure.
type Handler func(m *Machine, self *Closure, args []Value) (Value, error)

// Frame is one backtrace entry.
type Frame struct {
	Image *Image
	PC    int
}

func (f Frame) String() string {
	return "Called from " + f.Image.Location(f.PC)
}

// Fault is a runtime exception escaping bytecode.
type Fault struct {
	Value     Value
	Backtrace []Frame
}

func (f *Fault) Error() string {
	return "Exception: " + Format(f.Value)
}

// Trace renders the recorded backtrace, innermost first.
func (f *Fault) Trace() string {
	lines := make([]string, len(f.Backtrace))
	for i, fr := range f.Backtrace {
		lines[i] = fr.String()
	}
	return strings.Join(lines, "\n")
}

// Raise builds a fault carrying an exception.
func Raise(name string, arg Value) *Fault {
	return &Fault{Value: Exception{Name: name, Arg: arg}}
}

// Trampoline is the single code entry shared by every instrumented closure.
// It dispatches to the handler registered for the calling closure.
var Trampoline = &Native{Name: "trampoline", NArgs: -1, Fn: trampoline}

func trampoline(m *Machine, self *Closure, args []Value) (Value, error) {
	h, ok := m.dispatch[self]
	if !ok {
		return nil, Raise("Failure", "trampoline reached without a handler")
	}
	return h(m, self, args)
}

// Machine holds global data, primitives, the code heap and the trampoline side table.
type Machine struct {
	Globals   []Value
	Prims     []*Primitive
	images    []*Image
	dispatch  map[*Closure]Handler
	backtrace bool
	depth     int
}

func New() *Machine {
	return &Machine{dispatch: make(map[*Closure]Handler)}
}

// Resize sets the global data extent; slots past n are cleared.
func (m *Machine) Resize(n int) {
	if n <= len(m.Globals) {
		for i := n; i < len(m.Globals); i++ {
			m.Globals[i] = nil
		}
		m.Globals = m.Globals[:n]
		return
	}
	m.Globals = append(m.Globals, make([]Value, n-len(m.Globals))...)
}

// AddPrimitive appends p to the primitive table and returns its index.
func (m *Machine) AddPrimitive(p *Primitive) uint32 {
	m.Prims = append(m.Prims, p)
	return uint32(len(m.Prims) - 1)
}

// Register hands img to the code heap.
func (m *Machine) Register(img *Image) {
	m.images = append(m.images, img)
}

// Images returns the registered images in activation order.
func (m *Machine) Images() []*Image {
	return append([]*Image(nil), m.images...)
}

// SetBacktrace toggles backtrace capture and returns the previous setting.
func (m *Machine) SetBacktrace(on bool) (prev bool) {
	prev, m.backtrace = m.backtrace, on
	return
}

// SetDispatch routes Trampoline calls made through c to h.
func (m *Machine) SetDispatch(c *Closure, h Handler) {
	m.dispatch[c] = h
}

// ClearDispatch drops the handler of c.
func (m *Machine) ClearDispatch(c *Closure) {
	delete(m.dispatch, c)
}

// Invoke runs img as a zero-argument thunk.
func (m *Machine) Invoke(img *Image) (Value, error) {
	n := len(img.Code)
	if n < 1+TrailerSize || Opcode(img.Code[n-1-TrailerSize]) != OpReturn {
		return nil, ErrBadTrailer
	}
	var tr [TrailerSize]byte
	copy(tr[:], img.Code[n-TrailerSize:])
	if tr != Trailer {
		return nil, ErrBadTrailer
	}
	arity := int(binary.LittleEndian.Uint32(tr[1:5]))
	args := make([]Value, arity)
	for i := range args {
		args[i] = Unit{}
	}
	return m.Run(&Bytecode{Image: img, Entry: 0, NArgs: arity}, nil, args)
}

// Apply calls a closure or primitive.
func (m *Machine) Apply(fn Value, args ...Value) (Value, error) {
	switch f := fn.(type) {
	case *Closure:
		return m.Run(f.Code, f, args)
	case *Primitive:
		if f.Arity >= 0 && len(args) != f.Arity {
			return nil, Raise("Invalid_argument", fmt.Sprintf("%s expects %d arguments, got %d", f.Name, f.Arity, len(args)))
		}
		return f.Fn(m, args)
	default:
		return nil, Raise("Invalid_argument", "apply: "+Format(fn)+" is not a function")
	}
}

// Run executes code on behalf of self, which may be nil for thunks.
func (m *Machine) Run(code Code, self *Closure, args []Value) (Value, error) {
	if m.depth >= MaxDepth {
		return nil, Raise("Stack_overflow", nil)
	}
	m.depth++
	defer func() { m.depth-- }()
	if code.Arity() >= 0 && len(args) != code.Arity() {
		return nil, Raise("Invalid_argument", fmt.Sprintf("%s expects %d arguments, got %d", code, code.Arity(), len(args)))
	}
	switch c := code.(type) {
	case *Bytecode:
		return m.exec(c.Image, c.Entry, self, args)
	case *Native:
		return c.Fn(m, self, args)
	default:
		return nil, fmt.Errorf("unknown code %T", code)
	}
}

// unwind converts err into a fault and records the frame when capture is on.
func (m *Machine) unwind(err error, img *Image, pc int) error {
	var f *Fault
	if !errors.As(err, &f) {
		f = Raise("Failure", err.Error())
	}
	if m.backtrace {
		f.Backtrace = append(f.Backtrace, Frame{Image: img, PC: pc})
	}
	return f
}

func (m *Machine) exec(img *Image, pc int, self *Closure, args []Value) (Value, error) {
	code := img.Code
	var env []Value
	if self != nil {
		env = self.Env
	}
	stack := make([]Value, 0, 16)
	pop := func() Value {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return v
	}
	for {
		if pc < 0 || pc >= len(code) {
			return nil, m.unwind(Raise("Invalid_code", fmt.Sprintf("pc %d outside image", pc)), img, pc)
		}
		at := pc
		op := Opcode(code[pc])
		pc++
		if !op.Valid() || pc+op.Width() > len(code) {
			return nil, m.unwind(Raise("Invalid_code", fmt.Sprintf("bad instruction %s at %d", op, at)), img, at)
		}
		operand := code[pc : pc+op.Width()]
		pc += op.Width()
		switch op {
		case OpConst:
			stack = append(stack, int64(int32(binary.LittleEndian.Uint32(operand))))
		case OpUnit:
			stack = append(stack, Unit{})
		case OpGetGlobal:
			slot := binary.LittleEndian.Uint32(operand)
			if int(slot) >= len(m.Globals) {
				return nil, m.unwind(Raise("Invalid_code", fmt.Sprintf("global slot %d out of range", slot)), img, at)
			}
			stack = append(stack, m.Globals[slot])
		case OpSetGlobal:
			slot := binary.LittleEndian.Uint32(operand)
			if int(slot) >= len(m.Globals) || len(stack) < 1 {
				return nil, m.unwind(Raise("Invalid_code", fmt.Sprintf("bad global store at %d", at)), img, at)
			}
			m.Globals[slot] = pop()
		case OpAcc:
			n := int(operand[0])
			if n >= len(args) {
				return nil, m.unwind(Raise("Invalid_code", fmt.Sprintf("argument %d out of range", n)), img, at)
			}
			stack = append(stack, args[n])
		case OpEnvAcc:
			n := int(operand[0])
			if n >= len(env) {
				return nil, m.unwind(Raise("Invalid_code", fmt.Sprintf("captured value %d out of range", n)), img, at)
			}
			stack = append(stack, env[n])
		case OpAdd, OpSub, OpMul, OpDiv:
			if len(stack) < 2 {
				return nil, m.unwind(Raise("Invalid_code", "stack underflow"), img, at)
			}
			b, ok1 := pop().(int64)
			a, ok2 := pop().(int64)
			if !ok1 || !ok2 {
				return nil, m.unwind(Raise("Invalid_argument", op.String()+" on non integers"), img, at)
			}
			var r int64
			switch op {
			case OpAdd:
				r = a + b
			case OpSub:
				r = a - b
			case OpMul:
				r = a * b
			case OpDiv:
				if b == 0 {
					return nil, m.unwind(Raise("Division_by_zero", nil), img, at)
				}
				r = a / b
			}
			stack = append(stack, r)
		case OpPop:
			if len(stack) < 1 {
				return nil, m.unwind(Raise("Invalid_code", "stack underflow"), img, at)
			}
			pop()
		case OpClosure:
			entry := int(int32(binary.LittleEndian.Uint32(operand)))
			arity, captured := int(operand[4]), int(operand[5])
			if len(stack) < captured {
				return nil, m.unwind(Raise("Invalid_code", "stack underflow"), img, at)
			}
			cenv := append([]Value(nil), stack[len(stack)-captured:]...)
			stack = stack[:len(stack)-captured]
			stack = append(stack, &Closure{Code: &Bytecode{Image: img, Entry: entry, NArgs: arity}, Env: cenv})
		case OpApply:
			argc := int(operand[0])
			if len(stack) < argc+1 {
				return nil, m.unwind(Raise("Invalid_code", "stack underflow"), img, at)
			}
			fn := stack[len(stack)-argc-1]
			cargs := append([]Value(nil), stack[len(stack)-argc:]...)
			stack = stack[:len(stack)-argc-1]
			v, err := m.Apply(fn, cargs...)
			if err != nil {
				return nil, m.unwind(err, img, at)
			}
			stack = append(stack, v)
		case OpPrim:
			idx := binary.LittleEndian.Uint32(operand)
			argc := int(operand[4])
			if int(idx) >= len(m.Prims) {
				return nil, m.unwind(Raise("Invalid_code", fmt.Sprintf("primitive %d out of range", idx)), img, at)
			}
			if len(stack) < argc {
				return nil, m.unwind(Raise("Invalid_code", "stack underflow"), img, at)
			}
			cargs := append([]Value(nil), stack[len(stack)-argc:]...)
			stack = stack[:len(stack)-argc]
			v, err := m.Apply(m.Prims[idx], cargs...)
			if err != nil {
				return nil, m.unwind(err, img, at)
			}
			stack = append(stack, v)
		case OpRaise:
			if len(stack) < 1 {
				return nil, m.unwind(Raise("Invalid_code", "stack underflow"), img, at)
			}
			v := pop()
			if _, ok := v.(Exception); !ok {
				v = Exception{Name: "Failure", Arg: v}
			}
			return nil, m.unwind(&Fault{Value: v}, img, at)
		case OpReturn:
			if len(stack) == 0 {
				return Unit{}, nil
			}
			return stack[len(stack)-1], nil
		case OpTrailer:
			return nil, m.unwind(Raise("Invalid_code", "executed closure trailer"), img, at)
		}
	}
}
