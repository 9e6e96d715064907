// Package types is the small structural type language the session environment
// carries for loaded values. It is enough to unify printer and tracer shapes,
// it is not a type checker.
package types

import (
	"fmt"
	"strings"
)

// Type is the interface for all types.
type Type interface {
	String() string
	Apply(Subst) Type
	FreeTypeVariables() []TVar
}

// Subst maps type variable names to types.
type Subst map[string]Type

// TVar is a type variable.
type TVar struct {
	Name string
}

// TCon is a nullary type constant, or the head of a type application.
type TCon struct {
	Name string
}

// TApp applies a constructor to arguments, e.g. List<a>.
type TApp struct {
	Constructor TCon
	Args        []Type
}

// TFunc is a function over one or more parameters.
type TFunc struct {
	Params     []Type
	ReturnType Type
}

// TTuple is a product type.
type TTuple struct {
	Elements []Type
}

var (
	Int       = TCon{Name: "Int"}
	Bool      = TCon{Name: "Bool"}
	String    = TCon{Name: "String"}
	Unit      = TCon{Name: "Unit"}
	Formatter = TCon{Name: "Formatter"}
)

// Func builds a function type.
func Func(ret Type, params ...Type) TFunc {
	return TFunc{Params: params, ReturnType: ret}
}

// App builds a type application.
func App(ctor string, args ...Type) TApp {
	return TApp{Constructor: TCon{Name: ctor}, Args: args}
}

// Var builds a type variable.
func Var(name string) TVar {
	return TVar{Name: name}
}

func (t TVar) String() string { return t.Name }
func (t TVar) Apply(s Subst) Type {
	if r, ok := s[t.Name]; ok {
		if v, ok := r.(TVar); ok && v.Name == t.Name {
			return t
		}
		return r.Apply(s)
	}
	return t
}
func (t TVar) FreeTypeVariables() []TVar { return []TVar{t} }

func (t TCon) String() string            { return t.Name }
func (t TCon) Apply(Subst) Type          { return t }
func (t TCon) FreeTypeVariables() []TVar { return nil }

func (t TApp) String() string {
	args := make([]string, len(t.Args))
	for i, a := range t.Args {
		args[i] = a.String()
	}
	return fmt.Sprintf("%s<%s>", t.Constructor.Name, strings.Join(args, ", "))
}
func (t TApp) Apply(s Subst) Type {
	args := make([]Type, len(t.Args))
	for i, a := range t.Args {
		args[i] = a.Apply(s)
	}
	return TApp{Constructor: t.Constructor, Args: args}
}
func (t TApp) FreeTypeVariables() []TVar {
	return freeOf(t.Args...)
}

func (t TFunc) String() string {
	var b strings.Builder
	if len(t.Params) == 1 {
		p := t.Params[0].String()
		if _, ok := t.Params[0].(TFunc); ok {
			p = "(" + p + ")"
		}
		b.WriteString(p)
	} else {
		ps := make([]string, len(t.Params))
		for i, p := range t.Params {
			ps[i] = p.String()
		}
		b.WriteString("(" + strings.Join(ps, ", ") + ")")
	}
	b.WriteString(" -> ")
	b.WriteString(t.ReturnType.String())
	return b.String()
}
func (t TFunc) Apply(s Subst) Type {
	ps := make([]Type, len(t.Params))
	for i, p := range t.Params {
		ps[i] = p.Apply(s)
	}
	return TFunc{Params: ps, ReturnType: t.ReturnType.Apply(s)}
}
func (t TFunc) FreeTypeVariables() []TVar {
	return freeOf(append(append([]Type{}, t.Params...), t.ReturnType)...)
}

func (t TTuple) String() string {
	es := make([]string, len(t.Elements))
	for i, e := range t.Elements {
		es[i] = e.String()
	}
	return "(" + strings.Join(es, ", ") + ")"
}
func (t TTuple) Apply(s Subst) Type {
	es := make([]Type, len(t.Elements))
	for i, e := range t.Elements {
		es[i] = e.Apply(s)
	}
	return TTuple{Elements: es}
}
func (t TTuple) FreeTypeVariables() []TVar {
	return freeOf(t.Elements...)
}

func freeOf(ts ...Type) (vs []TVar) {
	seen := make(map[string]bool)
	for _, t := range ts {
		for _, v := range t.FreeTypeVariables() {
			if !seen[v.Name] {
				seen[v.Name] = true
				vs = append(vs, v)
			}
		}
	}
	return
}

// Equal reports structural equality.
func Equal(a, b Type) bool {
	switch x := a.(type) {
	case TVar:
		y, ok := b.(TVar)
		return ok && x.Name == y.Name
	case TCon:
		y, ok := b.(TCon)
		return ok && x.Name == y.Name
	case TApp:
		y, ok := b.(TApp)
		return ok && x.Constructor.Name == y.Constructor.Name && equalAll(x.Args, y.Args)
	case TFunc:
		y, ok := b.(TFunc)
		return ok && equalAll(x.Params, y.Params) && Equal(x.ReturnType, y.ReturnType)
	case TTuple:
		y, ok := b.(TTuple)
		return ok && equalAll(x.Elements, y.Elements)
	}
	return false
}

func equalAll(a, b []Type) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

// Supply hands out type variables that never clash with user written ones.
type Supply struct {
	n int
}

// Fresh returns a new type variable.
func (s *Supply) Fresh() TVar {
	s.n++
	return TVar{Name: fmt.Sprintf("_t%d", s.n)}
}
