package printer

import (
	"errors"

	"github.com/ZenLiuCN/dynlink/types"
)

// Style of the calling convention of a printer function.
type Style int

const (
	NewStyle Style = iota // (Formatter, T) -> Unit
	OldStyle              // T -> Unit, writes on its own
)

func (s Style) String() string {
	if s == OldStyle {
		return "old"
	}
	return "new"
}

// Kind tells simple printers from printers parameterized by printers of type arguments.
type Kind int

const (
	Simple Kind = iota
	Generic
)

func (k Kind) String() string {
	if k == Generic {
		return "generic"
	}
	return "simple"
}

// Match is the shape a printer function was recognized as.
type Match struct {
	Kind  Kind
	Style Style
	// Arg is the printed type of a simple printer.
	Arg types.Type
	// Ctor and Params describe the printed type C<Params...> of a generic printer.
	Ctor   string
	Params []types.TVar
}

// Arity is the number of argument printers a generic printer takes.
func (m Match) Arity() int {
	return len(m.Params)
}

var errNoShape = errors.New("no printer shape")

type matcher func(t types.Type, sp *types.Supply) (Match, error)

// matchers are tried in order, the first success wins.
var matchers = []matcher{matchNew, matchOld, matchGeneric}

// MatchType recognizes t as one of the printer shapes.
func MatchType(t types.Type) (Match, error) {
	sp := new(types.Supply)
	for _, m := range matchers {
		if r, err := m(t, sp); err == nil {
			return r, nil
		}
	}
	return Match{}, errNoShape
}

func matchNew(t types.Type, sp *types.Supply) (Match, error) {
	a := sp.Fresh()
	s, err := types.Unify(types.Func(types.Unit, types.Formatter, a), t)
	if err != nil {
		return Match{}, err
	}
	return Match{Kind: Simple, Style: NewStyle, Arg: a.Apply(s)}, nil
}

func matchOld(t types.Type, sp *types.Supply) (Match, error) {
	a := sp.Fresh()
	s, err := types.Unify(types.Func(types.Unit, a), t)
	if err != nil {
		return Match{}, err
	}
	return Match{Kind: Simple, Style: OldStyle, Arg: a.Apply(s)}, nil
}

// printerOf is the type of a printer for t in the given style.
func printerOf(style Style, t types.Type) types.TFunc {
	if style == OldStyle {
		return types.Func(types.Unit, t)
	}
	return types.Func(types.Unit, types.Formatter, t)
}

// matchGeneric recognizes
//
//	printer(a1) -> ... -> printer(an) -> printer(C<a1, ..., an>)
//
// with a1...an pairwise distinct type variables.
func matchGeneric(t types.Type, _ *types.Supply) (Match, error) {
	final := t
	for {
		f, ok := final.(types.TFunc)
		if !ok || len(f.Params) != 1 {
			break
		}
		if _, ok = f.ReturnType.(types.TFunc); !ok {
			break
		}
		final = f.ReturnType
	}
	f, ok := final.(types.TFunc)
	if !ok || !types.Equal(f.ReturnType, types.Unit) {
		return Match{}, errNoShape
	}
	var style Style
	var arg types.Type
	switch {
	case len(f.Params) == 2 && types.Equal(f.Params[0], types.Formatter):
		style, arg = NewStyle, f.Params[1]
	case len(f.Params) == 1:
		style, arg = OldStyle, f.Params[0]
	default:
		return Match{}, errNoShape
	}
	app, ok := arg.(types.TApp)
	if !ok || len(app.Args) == 0 {
		return Match{}, errNoShape
	}
	params := make([]types.TVar, len(app.Args))
	seen := make(map[string]bool)
	for i, x := range app.Args {
		v, ok := x.(types.TVar)
		if !ok || seen[v.Name] {
			return Match{}, errNoShape
		}
		seen[v.Name] = true
		params[i] = v
	}
	var want types.Type = printerOf(style, app)
	for i := len(params) - 1; i >= 0; i-- {
		want = types.Func(want, printerOf(style, params[i]))
	}
	if !types.Equal(want, t) {
		return Match{}, errNoShape
	}
	return Match{Kind: Generic, Style: style, Ctor: app.Constructor.Name, Params: params}, nil
}
