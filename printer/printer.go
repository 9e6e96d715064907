// Package printer installs loaded functions as value printers.
//
// A function is recognized by its type as a new style printer (Formatter, T) -> Unit,
// an old style printer T -> Unit, or a generic printer taking one printer per type
// argument of a constructor, e.g.
//
//	((Formatter, a) -> Unit) -> (Formatter, List<a>) -> Unit
//
// Whatever the shape, an installed printer is called as func(io.Writer, vm.Value).
package printer

import (
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/ZenLiuCN/dynlink"
	"github.com/ZenLiuCN/dynlink/types"
	"github.com/ZenLiuCN/dynlink/vm"
)

type (
	// Printer is the uniform calling convention of an installed printer.
	Printer func(w io.Writer, v vm.Value) error
	// Key identifies an installed printer. Arg is the printed type of a simple printer,
	// Ctor and Arity the constructor of a generic one.
	Key struct {
		Path  string
		Arg   string
		Ctor  string
		Arity int
	}
	// Entry is one installed printer.
	Entry struct {
		Key   Key
		Match Match
		Fn    vm.Value
		r     *Registry
	}
	// Registry holds the printers of a session, newest last.
	Registry struct {
		s       *dynlink.Session
		entries []*Entry
	}
)

// New create a registry bound to s. It is cleared when s is reset.
func New(s *dynlink.Session) *Registry {
	r := &Registry{s: s}
	s.OnReset(r.Clear)
	return r
}

func keyOf(path string, m Match) Key {
	if m.Kind == Generic {
		return Key{Path: path, Ctor: m.Ctor, Arity: m.Arity()}
	}
	return Key{Path: path, Arg: m.Arg.String()}
}

func (r *Registry) find(name string) (b dynlink.Binding, m Match, err error) {
	var ok bool
	if b, ok = r.s.Env.Lookup(name); !ok {
		err = &dynlink.UnboundName{Name: name}
		return
	}
	if m, err = MatchType(b.Type); err != nil {
		err = &dynlink.WrongPrinterType{Name: name, Type: b.Type}
	}
	return
}

func (r *Registry) index(k Key) int {
	for i, e := range r.entries {
		if e.Key == k {
			return i
		}
	}
	return -1
}

// Install the function bound to name as a printer. Installing under the same key replaces.
func (r *Registry) Install(name string) error {
	b, m, err := r.find(name)
	if err != nil {
		return err
	}
	_, v, err := r.s.Resolve(name)
	if err != nil {
		return err
	}
	e := &Entry{Key: keyOf(b.Path, m), Match: m, Fn: v, r: r}
	if i := r.index(e.Key); i >= 0 {
		r.entries = append(r.entries[:i], r.entries[i+1:]...)
	}
	r.entries = append(r.entries, e)
	if r.s.Debug() {
		log.Printf("install %s printer %s as %+v", m.Kind, name, e.Key)
	}
	return nil
}

// Remove the printer installed from name.
func (r *Registry) Remove(name string) error {
	b, m, err := r.find(name)
	if err != nil {
		return err
	}
	i := r.index(keyOf(b.Path, m))
	if i < 0 {
		return &dynlink.NoSuchPrinter{Name: name}
	}
	r.entries = append(r.entries[:i], r.entries[i+1:]...)
	return nil
}

// Entries installed, oldest first.
func (r *Registry) Entries() []*Entry {
	return append([]*Entry(nil), r.entries...)
}

// Clear drops every printer.
func (r *Registry) Clear() {
	r.entries = nil
}

// Lookup the newest printer for t. Type applications use a generic printer for their
// constructor, instantiated with printers looked up for each argument.
func (r *Registry) Lookup(t types.Type) (Printer, bool) {
	arg := t.String()
	for i := len(r.entries) - 1; i >= 0; i-- {
		if e := r.entries[i]; e.Match.Kind == Simple && e.Key.Arg == arg {
			return e.Printer(), true
		}
	}
	app, ok := t.(types.TApp)
	if !ok {
		return nil, false
	}
	for i := len(r.entries) - 1; i >= 0; i-- {
		e := r.entries[i]
		if e.Match.Kind != Generic || e.Key.Ctor != app.Constructor.Name || e.Key.Arity != len(app.Args) {
			continue
		}
		params := make([]Printer, len(app.Args))
		for n, a := range app.Args {
			if params[n], ok = r.Lookup(a); !ok {
				params[n] = formatPrinter
			}
		}
		return e.Printer(params...), true
	}
	return nil, false
}

// Print v of type t with the newest matching printer, or the default rendering.
func (r *Registry) Print(w io.Writer, t types.Type, v vm.Value) error {
	if p, ok := r.Lookup(t); ok {
		return p(w, v)
	}
	return formatPrinter(w, v)
}

// Sprint is Print into a string.
func (r *Registry) Sprint(t types.Type, v vm.Value) string {
	var b strings.Builder
	if err := r.Print(&b, t, v); err != nil {
		return vm.Format(v)
	}
	return b.String()
}

func formatPrinter(w io.Writer, v vm.Value) error {
	_, err := io.WriteString(w, vm.Format(v))
	return err
}

// Printer wraps the entry into the uniform convention. A generic entry takes one printer
// per type parameter.
func (e *Entry) Printer(params ...Printer) Printer {
	return func(w io.Writer, v vm.Value) error {
		m := e.r.s.Machine
		fn := e.Fn
		if e.Match.Kind == Generic {
			if len(params) != e.Match.Arity() {
				return fmt.Errorf("printer %s expects %d argument printers, got %d", e.Key.Path, e.Match.Arity(), len(params))
			}
			for _, p := range params {
				var err error
				if fn, err = m.Apply(fn, e.Match.Style.primitive(w, p)); err != nil {
					return err
				}
			}
		}
		var err error
		if e.Match.Style == OldStyle {
			_, err = m.Apply(fn, v)
		} else {
			_, err = m.Apply(fn, &vm.Formatter{W: w}, v)
		}
		return err
	}
}

// primitive exposes p to bytecode in the calling convention of the style.
func (s Style) primitive(w io.Writer, p Printer) *vm.Primitive {
	if s == OldStyle {
		return &vm.Primitive{Name: "printer", Arity: 1, Fn: func(_ *vm.Machine, args []vm.Value) (vm.Value, error) {
			return vm.Unit{}, p(w, args[0])
		}}
	}
	return &vm.Primitive{Name: "printer", Arity: 2, Fn: func(_ *vm.Machine, args []vm.Value) (vm.Value, error) {
		f, ok := args[0].(*vm.Formatter)
		if !ok {
			return nil, vm.Raise("Invalid_argument", "printer: not a formatter")
		}
		return vm.Unit{}, p(f.W, args[1])
	}}
}

// InstallPrinter is the #install_printer directive.
func (r *Registry) InstallPrinter(name string) bool {
	if err := r.Install(name); err != nil {
		r.s.Reporter.Fail(err)
		return false
	}
	return true
}

// RemovePrinter is the #remove_printer directive.
func (r *Registry) RemovePrinter(name string) bool {
	if err := r.Remove(name); err != nil {
		r.s.Reporter.Fail(err)
		return false
	}
	return true
}
