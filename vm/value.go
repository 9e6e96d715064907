package vm

import (
	"fmt"
	"io"
	"strconv"

	"github.com/google/uuid"
)

// Value is any runtime value: int64, string, Unit, *Closure, *Primitive, *Formatter or Exception.
type Value any

// Unit is the only value of the unit type.
type Unit struct{}

// Formatter is the output sink handed to printer functions.
type Formatter struct {
	W io.Writer
}

// Exception is a raised value.
type Exception struct {
	Name string
	Arg  Value
}

func (e Exception) String() string {
	if e.Arg == nil {
		return e.Name
	}
	return fmt.Sprintf("%s(%s)", e.Name, Format(e.Arg))
}

// Code is what a closure runs. The closure's Code field is the one mutable
// indirection cell a tracer rewrites.
type Code interface {
	Arity() int
	String() string
}

// Bytecode is an entry point inside a loaded image.
type Bytecode struct {
	Image *Image
	Entry int
	NArgs int
}

func (c *Bytecode) Arity() int { return c.NArgs }
func (c *Bytecode) String() string {
	return fmt.Sprintf("%s+%d", c.Image.Name, c.Entry)
}

// Native is Go code standing in for bytecode. NArgs < 0 accepts any argument count.
type Native struct {
	Name  string
	NArgs int
	Fn    func(m *Machine, self *Closure, args []Value) (Value, error)
}

func (c *Native) Arity() int     { return c.NArgs }
func (c *Native) String() string { return "<native " + c.Name + ">" }

// Closure is a code reference plus captured values.
type Closure struct {
	Code Code
	Env  []Value
}

// Primitive is an external function bound through a primitive relocation.
type Primitive struct {
	Name  string
	Arity int
	Fn    func(m *Machine, args []Value) (Value, error)
}

// Event is a debug event recorded at a code position.
type Event struct {
	Pos      int
	Location string
}

// Image is an activated code buffer, owned by the machine once registered.
type Image struct {
	ID     uuid.UUID
	Name   string
	Code   []byte
	Events []Event
}

// NewImage allocates an image of codeSize bytes plus the return instruction and trailer.
func NewImage(name string, codeSize int) *Image {
	return &Image{
		ID:   uuid.New(),
		Name: name,
		Code: make([]byte, codeSize+1+TrailerSize),
	}
}

// Seal writes the final OpReturn and the trailer behind codeSize bytes of code.
func (img *Image) Seal(codeSize int) {
	img.Code[codeSize] = byte(OpReturn)
	copy(img.Code[codeSize+1:], Trailer[:])
}

// Location maps a code position to the closest preceding debug event.
func (img *Image) Location(pc int) string {
	best := -1
	for i, e := range img.Events {
		if e.Pos <= pc && (best < 0 || e.Pos >= img.Events[best].Pos) {
			best = i
		}
	}
	if best < 0 {
		return fmt.Sprintf("%s+%d", img.Name, pc)
	}
	return img.Events[best].Location
}

// Format renders a value without type information.
func Format(v Value) string {
	switch x := v.(type) {
	case nil:
		return "<uninitialized>"
	case int64:
		return strconv.FormatInt(x, 10)
	case string:
		return strconv.Quote(x)
	case bool:
		return strconv.FormatBool(x)
	case Unit:
		return "()"
	case *Closure:
		return "<fun>"
	case *Primitive:
		return "<prim " + x.Name + ">"
	case *Formatter:
		return "<formatter>"
	case Exception:
		return x.String()
	default:
		return fmt.Sprintf("%v", x)
	}
}
