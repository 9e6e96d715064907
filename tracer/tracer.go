// Package tracer instruments loaded closures so every call prints its arguments and
// its result or exception.
//
// A traced closure has its code replaced by [vm.Trampoline], shared by all traced closures.
// The trampoline finds the instrumented handler of the calling closure in the machine's
// dispatch table, the handler runs the original code.
package tracer

import (
	"errors"
	"log"
	"slices"
	"strings"

	"github.com/ZenLiuCN/dynlink"
	"github.com/ZenLiuCN/dynlink/printer"
	"github.com/ZenLiuCN/dynlink/types"
	"github.com/ZenLiuCN/dynlink/vm"
)

type (
	// Record is one traced closure.
	Record struct {
		Path       string
		Closure    *vm.Closure
		ActualCode vm.Code
		Handler    vm.Handler
	}
	// Tracer holds the trace records of a session.
	Tracer struct {
		s        *dynlink.Session
		printers *printer.Registry
		records  []*Record
	}
)

// New create a tracer bound to s, printers may be nil. Everything is untraced when s is reset.
func New(s *dynlink.Session, printers *printer.Registry) *Tracer {
	t := &Tracer{s: s, printers: printers}
	s.OnReset(t.UntraceAll)
	return t
}

// Trace instruments the closure bound to name.
func (t *Tracer) Trace(name string) error {
	b, v, err := t.s.Resolve(name)
	if err != nil {
		return err
	}
	c, ok := v.(*vm.Closure)
	if !ok {
		if _, ok = v.(*vm.Primitive); ok {
			return &dynlink.NotTraceable{Name: name, Reason: "is an external function and cannot be traced"}
		}
		return &dynlink.NotTraceable{Name: name, Reason: "is not a function"}
	}
	ft, ok := b.Type.(types.TFunc)
	if !ok {
		return &dynlink.NotTraceable{Name: name, Reason: "is not a function"}
	}
	for _, r := range t.records {
		if r.Closure == c {
			return &dynlink.AlreadyTraced{Name: name, Registered: r.Path}
		}
	}
	if _, ok = c.Code.(*vm.Bytecode); !ok {
		return &dynlink.NotTraceable{Name: name, Reason: "is an external function and cannot be traced"}
	}
	// the path was rebound since it was traced
	if i := slices.IndexFunc(t.records, func(r *Record) bool { return r.Path == b.Path }); i >= 0 {
		if t.s.Debug() {
			log.Printf("drop stale trace of %s", b.Path)
		}
		t.restore(t.records[i])
		t.records = slices.Delete(t.records, i, i+1)
	}
	r := &Record{Path: b.Path, Closure: c, ActualCode: c.Code}
	r.Handler = t.instrument(name, ft, r.ActualCode)
	t.records = append(t.records, r)
	t.s.Machine.SetDispatch(c, r.Handler)
	c.Code = vm.Trampoline
	if t.s.Debug() {
		log.Printf("trace %s at %s", b.Path, r.ActualCode)
	}
	return nil
}

func (t *Tracer) show(ty types.Type, v vm.Value) string {
	if t.printers == nil {
		return vm.Format(v)
	}
	return t.printers.Sprint(ty, v)
}

func (t *Tracer) showArgs(params []types.Type, args []vm.Value) string {
	s := make([]string, len(args))
	for i, a := range args {
		var ty types.Type = types.Var("_")
		if i < len(params) {
			ty = params[i]
		}
		s[i] = t.show(ty, a)
	}
	return strings.Join(s, ", ")
}

func (t *Tracer) instrument(name string, ft types.TFunc, actual vm.Code) vm.Handler {
	return func(m *vm.Machine, self *vm.Closure, args []vm.Value) (vm.Value, error) {
		t.s.Reporter.Printf("%s <-- %s", name, t.showArgs(ft.Params, args))
		v, err := m.Run(actual, self, args)
		if err != nil {
			var f *vm.Fault
			if errors.As(err, &f) {
				t.s.Reporter.Printf("%s raises %s", name, vm.Format(f.Value))
			} else {
				t.s.Reporter.Printf("%s raises %s", name, err)
			}
			return nil, err
		}
		t.s.Reporter.Printf("%s --> %s", name, t.show(ft.ReturnType, v))
		return v, nil
	}
}

func (t *Tracer) restore(r *Record) {
	r.Closure.Code = r.ActualCode
	t.s.Machine.ClearDispatch(r.Closure)
}

// Untrace restores the closure bound to name.
func (t *Tracer) Untrace(name string) error {
	b, ok := t.s.Env.Lookup(name)
	if !ok {
		return &dynlink.UnboundName{Name: name}
	}
	i := slices.IndexFunc(t.records, func(r *Record) bool { return r.Path == b.Path })
	if i < 0 {
		return &dynlink.NotCurrentlyTraced{Name: name}
	}
	t.restore(t.records[i])
	t.records = slices.Delete(t.records, i, i+1)
	return nil
}

// UntraceAll restores every traced closure.
func (t *Tracer) UntraceAll() {
	for _, r := range t.records {
		t.restore(r)
	}
	if t.s.Debug() && len(t.records) > 0 {
		log.Printf("untraced %d closures", len(t.records))
	}
	t.records = nil
}

// Traced paths, in trace order.
func (t *Tracer) Traced() []string {
	v := make([]string, len(t.records))
	for i, r := range t.records {
		v[i] = r.Path
	}
	return v
}

// TraceDirective is the #trace directive.
func (t *Tracer) TraceDirective(name string) bool {
	if err := t.Trace(name); err != nil {
		t.s.Reporter.Fail(err)
		return false
	}
	t.s.Reporter.Printf("%s is now traced.", name)
	return true
}

// UntraceDirective is the #untrace directive.
func (t *Tracer) UntraceDirective(name string) bool {
	if err := t.Untrace(name); err != nil {
		t.s.Reporter.Fail(err)
		return false
	}
	t.s.Reporter.Printf("%s is no longer traced.", name)
	return true
}
