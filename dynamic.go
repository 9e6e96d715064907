package dynlink

import (
	"fmt"
	"io"
	"log"

	"github.com/ZenLiuCN/dynlink/types"
	"github.com/ZenLiuCN/dynlink/vm"
)

type (
	// Session is the state one interactive session links into.
	//
	// Lifecycle:
	//
	//	1. NewSession or NewSessionFromConfig at session start.
	//	2. LoadUnit / LoadFile (or a [pool.Pool] on top) to link units into the machine.
	//	3. Fetch globals, bind their types in Env for printers and tracers.
	//	4. Reset at teardown, which also runs the hooks registered with OnReset.
	//
	// Note: a Session is not safe for concurrent use.
	Session struct {
		Symbols     *SymbolTable
		Consistency *Consistency
		Machine     *vm.Machine
		Env         *Environment
		Reporter    *Reporter
		loaded      []*vm.Image
		resets      []func()
		debug       bool
	}
	// Binding is the static view of a name: the link path of its value and its type.
	Binding struct {
		Path string
		Type types.Type
	}
	// Environment maps names to bindings, several names may share a path.
	Environment struct {
		values map[string]Binding
	}
)

// NewSession create a session reporting to out, an optional debug parameter will enable debug logging.
func NewSession(out io.Writer, debug ...bool) *Session {
	s := &Session{
		Symbols:     NewSymbolTable(),
		Consistency: NewConsistency(),
		Machine:     vm.New(),
		Env:         NewEnvironment(),
		Reporter:    NewReporter(out, ColorAuto),
		debug:       len(debug) > 0 && debug[0],
	}
	s.registerBuiltins()
	return s
}

// NewSessionFromConfig create a session with the debug and color settings of c.
func NewSessionFromConfig(c *Config, out io.Writer) *Session {
	s := NewSession(out, c.Debug)
	s.Reporter = NewReporter(out, c.Color)
	return s
}

// Debug reports whether debug logging is on.
func (s *Session) Debug() bool {
	return s.debug
}

// Loaded returns the images activated so far, in order.
func (s *Session) Loaded() []*vm.Image {
	return append([]*vm.Image(nil), s.loaded...)
}

// Fetch the value of a global.
func (s *Session) Fetch(name string) (v vm.Value, ok bool) {
	var slot Sym
	if slot, ok = s.Symbols.Lookup(name); !ok || int(slot) >= len(s.Machine.Globals) {
		return nil, false
	}
	v = s.Machine.Globals[slot]
	if s.debug {
		log.Printf("found global %s at slot %d: %s", name, slot, vm.Format(v))
	}
	return
}

// MustFetch the value of a global, throws ErrMissingSymbol.
func (s *Session) MustFetch(name string) vm.Value {
	v, ok := s.Fetch(name)
	if !ok {
		panic(fmt.Errorf("%w: %s", ErrMissingSymbol, name))
	}
	return v
}

// Resolve a name through the environment to its binding and runtime value.
func (s *Session) Resolve(name string) (b Binding, v vm.Value, err error) {
	var ok bool
	if b, ok = s.Env.Lookup(name); !ok {
		err = &UnboundName{Name: name}
		return
	}
	if v, ok = s.Fetch(b.Path); !ok {
		err = &UnboundName{Name: name}
	}
	return
}

// Use create a function to fetch and use a global on the fly.
func Use[T any](s *Session, name string) func(func(t T, err error)) {
	return func(f func(t T, err error)) {
		var x T
		defer func() {
			switch y := recover().(type) {
			case nil:
				if s.debug {
					log.Printf("use %s as %T", name, x)
				}
				f(x, nil)
			case error:
				if s.debug {
					log.Printf("use %s failed: %v", name, y)
				}
				f(x, y)
			default:
				f(x, fmt.Errorf("%v", y))
			}
		}()
		x = As[T](s.MustFetch(name))
	}
}

// As convert a fetched value to the desired Go type, panics on mismatch.
func As[T any](v vm.Value) T {
	x, ok := v.(T)
	if !ok {
		panic(fmt.Errorf("value %s is %T, not %T", vm.Format(v), v, x))
	}
	return x
}

// NewEnvironment create an empty environment.
func NewEnvironment() *Environment {
	return &Environment{values: make(map[string]Binding)}
}

// Bind name to the global of the same name with type t.
func (e *Environment) Bind(name string, t types.Type) {
	e.values[name] = Binding{Path: name, Type: t}
}

// Alias makes alias resolve to the binding of name.
func (e *Environment) Alias(alias, name string) error {
	b, ok := e.values[name]
	if !ok {
		return &UnboundName{Name: name}
	}
	e.values[alias] = b
	return nil
}

// Lookup a name.
func (e *Environment) Lookup(name string) (b Binding, ok bool) {
	b, ok = e.values[name]
	return
}

func (e *Environment) clear() {
	clear(e.values)
}
