package dynlink

import (
	"encoding/binary"
	"fmt"

	"github.com/ZenLiuCN/dynlink/vm"
)

// Label is a code position bound later with [Assembler.Bind].
type Label int

// Assembler writes bytecode and records the relocations and debug events it needs.
type Assembler struct {
	code   []byte
	relocs []Relocation
	events []vm.Event
	labels []int
	fixups map[Label][]int
}

// NewAssembler create an empty assembler.
func NewAssembler() *Assembler {
	return &Assembler{fixups: make(map[Label][]int)}
}

// Pos is the current code offset.
func (a *Assembler) Pos() int {
	return len(a.code)
}

func (a *Assembler) op(op vm.Opcode) *Assembler {
	a.code = append(a.code, byte(op))
	return a
}

func (a *Assembler) u32(v uint32) *Assembler {
	a.code = binary.LittleEndian.AppendUint32(a.code, v)
	return a
}

func (a *Assembler) reloc(k RelocKind, name string) *Assembler {
	a.relocs = append(a.relocs, Relocation{Kind: k, Pos: len(a.code), Name: name})
	return a.u32(0)
}

// Const pushes an integer.
func (a *Assembler) Const(n int32) *Assembler {
	return a.op(vm.OpConst).u32(uint32(n))
}

// Unit pushes ().
func (a *Assembler) Unit() *Assembler {
	return a.op(vm.OpUnit)
}

// GetGlobal pushes the global bound to name at link time.
func (a *Assembler) GetGlobal(name string) *Assembler {
	return a.op(vm.OpGetGlobal).reloc(RelocGetGlobal, name)
}

// SetGlobal defines name and stores the top of stack into it.
func (a *Assembler) SetGlobal(name string) *Assembler {
	return a.op(vm.OpSetGlobal).reloc(RelocSetGlobal, name)
}

// Acc pushes argument n.
func (a *Assembler) Acc(n uint8) *Assembler {
	a.op(vm.OpAcc)
	a.code = append(a.code, n)
	return a
}

// EnvAcc pushes captured value n.
func (a *Assembler) EnvAcc(n uint8) *Assembler {
	a.op(vm.OpEnvAcc)
	a.code = append(a.code, n)
	return a
}

// Op emits an instruction without operands.
func (a *Assembler) Op(op vm.Opcode) *Assembler {
	return a.op(op)
}

// Apply calls with argc arguments.
func (a *Assembler) Apply(argc uint8) *Assembler {
	a.op(vm.OpApply)
	a.code = append(a.code, argc)
	return a
}

// Prim calls the primitive name with argc arguments.
func (a *Assembler) Prim(name string, argc uint8) *Assembler {
	a.op(vm.OpPrim).reloc(RelocPrimitive, name)
	a.code = append(a.code, argc)
	return a
}

// Return emits a return.
func (a *Assembler) Return() *Assembler {
	return a.op(vm.OpReturn)
}

// NewLabel allocates an unbound label.
func (a *Assembler) NewLabel() Label {
	a.labels = append(a.labels, -1)
	return Label(len(a.labels) - 1)
}

// Bind sets l to the current position.
func (a *Assembler) Bind(l Label) *Assembler {
	a.labels[l] = len(a.code)
	return a
}

// Closure builds a closure entering at l, capturing the top captured stack values.
func (a *Assembler) Closure(l Label, arity, captured uint8) *Assembler {
	a.op(vm.OpClosure)
	a.fixups[l] = append(a.fixups[l], len(a.code))
	a.u32(0)
	a.code = append(a.code, arity, captured)
	return a
}

// Event records a debug event at the current position.
func (a *Assembler) Event(location string) *Assembler {
	a.events = append(a.events, vm.Event{Pos: len(a.code), Location: location})
	return a
}

// Assemble resolves labels and returns the unit descriptor, code and debug events.
func (a *Assembler) Assemble(name string, imports ...Import) (u CompiledUnit, code []byte, events []vm.Event, err error) {
	code = append([]byte(nil), a.code...)
	for l, sites := range a.fixups {
		at := a.labels[l]
		if at < 0 {
			err = fmt.Errorf("label %d of %s is never bound", l, name)
			return
		}
		for _, s := range sites {
			binary.LittleEndian.PutUint32(code[s:], uint32(at))
		}
	}
	u = CompiledUnit{
		Name:     name,
		Imports:  imports,
		Relocs:   append([]Relocation(nil), a.relocs...),
		CodeSize: len(code),
	}
	events = append([]vm.Event(nil), a.events...)
	return
}

// Member assembles into an archive member.
func (a *Assembler) Member(name string, imports ...Import) (m Member, err error) {
	m.Unit, m.Code, m.Events, err = a.Assemble(name, imports...)
	return
}

// Build assembles into a unit container.
func (a *Assembler) Build(name string, imports ...Import) ([]byte, error) {
	u, code, events, err := a.Assemble(name, imports...)
	if err != nil {
		return nil, err
	}
	return BuildUnit(u, code, events)
}
