package dynlink

import (
	"fmt"
	"log"

	"github.com/ZenLiuCN/dynlink/vm"
)

// RegisterPrimitive makes p resolvable by primitive relocations.
func (s *Session) RegisterPrimitive(p *vm.Primitive) {
	if _, ok := s.Symbols.Primitive(p.Name); ok && s.debug {
		log.Printf("primitive %s redefined", p.Name)
	}
	s.Symbols.DefinePrimitive(p.Name, s.Machine.AddPrimitive(p))
}

func (s *Session) registerBuiltins() {
	for _, p := range []*vm.Primitive{
		{Name: "format_int", Arity: 2, Fn: formatInt},
		{Name: "format_string", Arity: 2, Fn: formatString},
		{Name: "print_int", Arity: 1, Fn: func(m *vm.Machine, args []vm.Value) (vm.Value, error) {
			s.Reporter.Printf("%s", vm.Format(args[0]))
			return vm.Unit{}, nil
		}},
		{Name: "failwith", Arity: 1, Fn: func(m *vm.Machine, args []vm.Value) (vm.Value, error) {
			return nil, vm.Raise("Failure", args[0])
		}},
	} {
		s.RegisterPrimitive(p)
	}
}

func formatter(v vm.Value) (*vm.Formatter, error) {
	f, ok := v.(*vm.Formatter)
	if !ok {
		return nil, vm.Raise("Invalid_argument", "not a formatter: "+vm.Format(v))
	}
	return f, nil
}

func formatInt(m *vm.Machine, args []vm.Value) (vm.Value, error) {
	f, err := formatter(args[0])
	if err != nil {
		return nil, err
	}
	n, ok := args[1].(int64)
	if !ok {
		return nil, vm.Raise("Invalid_argument", "format_int: "+vm.Format(args[1]))
	}
	_, _ = fmt.Fprint(f.W, n)
	return vm.Unit{}, nil
}

func formatString(m *vm.Machine, args []vm.Value) (vm.Value, error) {
	f, err := formatter(args[0])
	if err != nil {
		return nil, err
	}
	_, _ = fmt.Fprint(f.W, vm.Format(args[1]))
	return vm.Unit{}, nil
}

// OnReset registers f to run, in registration order, at the start of Reset.
func (s *Session) OnReset(f func()) {
	s.resets = append(s.resets, f)
}

// Reset forgets every loaded unit, binding and consistency record, then reload builtin primitives.
// Registered hooks run first so instrumentation is removed while closures are still reachable.
func (s *Session) Reset() {
	for _, f := range s.resets {
		f()
	}
	if s.debug {
		log.Printf("reset session with %d loaded images", len(s.loaded))
	}
	s.loaded = nil
	s.Symbols = NewSymbolTable()
	s.Consistency.Clear()
	s.Env.clear()
	s.Machine = vm.New()
	s.registerBuiltins()
}
