package types

import "fmt"

// UnifyError reports two types that cannot be made equal.
type UnifyError struct {
	Left, Right Type
	Note        string
}

func (e *UnifyError) Error() string {
	if e.Note != "" {
		return fmt.Sprintf("cannot unify %s with %s: %s", e.Left, e.Right, e.Note)
	}
	return fmt.Sprintf("cannot unify %s with %s", e.Left, e.Right)
}

// Unify finds a substitution that makes t1 and t2 equal.
func Unify(t1, t2 Type) (Subst, error) {
	s := make(Subst)
	if err := s.unify(t1, t2); err != nil {
		return nil, err
	}
	return s, nil
}

func (s Subst) unify(a, b Type) error {
	a, b = a.Apply(s), b.Apply(s)
	if v, ok := a.(TVar); ok {
		return s.bind(v, b)
	}
	if v, ok := b.(TVar); ok {
		return s.bind(v, a)
	}
	switch x := a.(type) {
	case TCon:
		if y, ok := b.(TCon); ok && x.Name == y.Name {
			return nil
		}
	case TApp:
		y, ok := b.(TApp)
		if !ok || x.Constructor.Name != y.Constructor.Name || len(x.Args) != len(y.Args) {
			break
		}
		for i := range x.Args {
			if err := s.unify(x.Args[i], y.Args[i]); err != nil {
				return err
			}
		}
		return nil
	case TFunc:
		y, ok := b.(TFunc)
		if !ok || len(x.Params) != len(y.Params) {
			break
		}
		for i := range x.Params {
			if err := s.unify(x.Params[i], y.Params[i]); err != nil {
				return err
			}
		}
		return s.unify(x.ReturnType, y.ReturnType)
	case TTuple:
		y, ok := b.(TTuple)
		if !ok || len(x.Elements) != len(y.Elements) {
			break
		}
		for i := range x.Elements {
			if err := s.unify(x.Elements[i], y.Elements[i]); err != nil {
				return err
			}
		}
		return nil
	}
	return &UnifyError{Left: a, Right: b}
}

// bind keeps s idempotent: every existing binding is rewritten with the new one.
func (s Subst) bind(v TVar, t Type) error {
	if w, ok := t.(TVar); ok && w.Name == v.Name {
		return nil
	}
	for _, f := range t.FreeTypeVariables() {
		if f.Name == v.Name {
			return &UnifyError{Left: v, Right: t, Note: "occurs check"}
		}
	}
	one := Subst{v.Name: t}
	for k, u := range s {
		s[k] = u.Apply(one)
	}
	s[v.Name] = t
	return nil
}
