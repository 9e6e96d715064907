package printer

import (
	"bytes"
	"strings"
	"testing"

	"github.com/ZenLiuCN/dynlink"
	"github.com/ZenLiuCN/dynlink/types"
	"github.com/ZenLiuCN/dynlink/vm"
	"github.com/ZenLiuCN/fn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	intPrinter  = types.Func(types.Unit, types.Formatter, types.Int)
	listPrinter = types.Func(
		types.Func(types.Unit, types.Formatter, types.App("List", types.Var("a"))),
		types.Func(types.Unit, types.Formatter, types.Var("a")),
	)
)

func TestMatchType(t *testing.T) {
	m, err := MatchType(intPrinter)
	require.NoError(t, err)
	assert.Equal(t, Simple, m.Kind)
	assert.Equal(t, NewStyle, m.Style)
	assert.True(t, types.Equal(types.Int, m.Arg))

	m, err = MatchType(types.Func(types.Unit, types.Int))
	require.NoError(t, err)
	assert.Equal(t, Simple, m.Kind)
	assert.Equal(t, OldStyle, m.Style)
	assert.True(t, types.Equal(types.Int, m.Arg))

	_, err = MatchType(types.Func(types.Int, types.Int))
	assert.Error(t, err)

	m, err = MatchType(listPrinter)
	require.NoError(t, err)
	assert.Equal(t, Generic, m.Kind)
	assert.Equal(t, NewStyle, m.Style)
	assert.Equal(t, "List", m.Ctor)
	assert.Equal(t, []types.TVar{types.Var("a")}, m.Params)
}

func TestMatchGenericShapes(t *testing.T) {
	a, b := types.Var("a"), types.Var("b")
	pair := types.App("Pair", a, b)
	oldPair := types.Func(types.Func(types.Func(types.Unit, pair), types.Func(types.Unit, b)), types.Func(types.Unit, a))
	m, err := MatchType(oldPair)
	require.NoError(t, err)
	assert.Equal(t, Generic, m.Kind)
	assert.Equal(t, OldStyle, m.Style)
	assert.Equal(t, 2, m.Arity())

	// type arguments must be distinct variables
	same := types.App("Pair", a, a)
	_, err = MatchType(types.Func(types.Func(types.Func(types.Unit, same), types.Func(types.Unit, a)), types.Func(types.Unit, a)))
	assert.Error(t, err)
	_, err = MatchType(types.Func(types.Func(types.Unit, types.Formatter, types.App("List", types.Int)), types.Func(types.Unit, types.Formatter, types.Int)))
	assert.Error(t, err)
	// argument printers must be in parameter order
	swapped := types.Func(types.Func(types.Func(types.Unit, pair), types.Func(types.Unit, a)), types.Func(types.Unit, b))
	_, err = MatchType(swapped)
	assert.Error(t, err)
}

// defineClosure assembles a unit that stores a closure built by body under name.
func defineClosure(t *testing.T, s *dynlink.Session, name string, arity uint8, body func(a *dynlink.Assembler)) {
	a := dynlink.NewAssembler()
	l := a.NewLabel()
	a.Closure(l, arity, 0).SetGlobal(name).Return()
	a.Bind(l)
	body(a)
	b := fn.Panic1(a.Build(name))
	require.NoError(t, s.Load(bytes.NewReader(b), name+dynlink.UnitSuffix))
}

func setup(t *testing.T) (*dynlink.Session, *bytes.Buffer, *Registry) {
	out := new(bytes.Buffer)
	s := dynlink.NewSession(out)
	// new style: prints ten times the integer
	defineClosure(t, s, "pp_int", 2, func(a *dynlink.Assembler) {
		a.Acc(0).Acc(1).Const(10).Op(vm.OpMul).Prim("format_int", 2).Return()
	})
	s.Env.Bind("pp_int", intPrinter)
	// old style
	defineClosure(t, s, "show_int", 1, func(a *dynlink.Assembler) {
		a.Acc(0).Prim("print_int", 1).Return()
	})
	s.Env.Bind("show_int", types.Func(types.Unit, types.Int))
	// generic: a box prints its content with the argument printer
	defineClosure(t, s, "pp_box", 1, func(a *dynlink.Assembler) {
		inner := a.NewLabel()
		a.Acc(0).Closure(inner, 2, 1).Return()
		a.Bind(inner)
		a.EnvAcc(0).Acc(0).Acc(1).Apply(2).Return()
	})
	s.Env.Bind("pp_box", types.Func(
		types.Func(types.Unit, types.Formatter, types.App("Box", types.Var("a"))),
		types.Func(types.Unit, types.Formatter, types.Var("a")),
	))
	defineClosure(t, s, "succ", 1, func(a *dynlink.Assembler) {
		a.Acc(0).Const(1).Op(vm.OpAdd).Return()
	})
	s.Env.Bind("succ", types.Func(types.Int, types.Int))
	return s, out, New(s)
}

func TestInstall(t *testing.T) {
	_, out, r := setup(t)
	require.NoError(t, r.Install("pp_int"))
	assert.Equal(t, "420", r.Sprint(types.Int, int64(42)))
	assert.Equal(t, `"x"`, r.Sprint(types.String, "x"))

	require.NoError(t, r.Install("show_int"))
	require.Len(t, r.Entries(), 2)
	// newest printer for Int wins
	p, ok := r.Lookup(types.Int)
	require.True(t, ok)
	require.NoError(t, p(out, int64(7)))
	assert.Equal(t, "7\n", out.String())

	var wrong *dynlink.WrongPrinterType
	require.ErrorAs(t, r.Install("succ"), &wrong)
	assert.Equal(t, "succ", wrong.Name)
	var unbound *dynlink.UnboundName
	require.ErrorAs(t, r.Install("nothing"), &unbound)

	assert.False(t, r.InstallPrinter("succ"))
	assert.Contains(t, out.String(), "succ has a wrong type for a printing function.\nIts type is: Int -> Int")
}

func TestReinstallReplaces(t *testing.T) {
	_, _, r := setup(t)
	require.NoError(t, r.Install("pp_int"))
	require.NoError(t, r.Install("show_int"))
	require.NoError(t, r.Install("pp_int"))
	e := r.Entries()
	require.Len(t, e, 2)
	assert.Equal(t, Key{Path: "pp_int", Arg: "Int"}, e[1].Key)
	assert.Equal(t, "420", r.Sprint(types.Int, int64(42)))
}

func TestGeneric(t *testing.T) {
	_, _, r := setup(t)
	require.NoError(t, r.Install("pp_box"))
	e := r.Entries()
	require.Len(t, e, 1)
	assert.Equal(t, Key{Path: "pp_box", Ctor: "Box", Arity: 1}, e[0].Key)

	// argument without printer uses the default rendering
	assert.Equal(t, "4", r.Sprint(types.App("Box", types.Int), int64(4)))
	require.NoError(t, r.Install("pp_int"))
	assert.Equal(t, "40", r.Sprint(types.App("Box", types.Int), int64(4)))
	// constructor arity must agree
	_, ok := r.Lookup(types.App("Box", types.Int, types.Int))
	assert.False(t, ok)
}

func TestRemove(t *testing.T) {
	s, out, r := setup(t)
	require.NoError(t, r.Install("pp_int"))
	require.NoError(t, s.Env.Alias("pp", "pp_int"))
	require.NoError(t, r.Remove("pp"))
	assert.Empty(t, r.Entries())

	var none *dynlink.NoSuchPrinter
	require.ErrorAs(t, r.Remove("pp_int"), &none)
	assert.False(t, r.RemovePrinter("pp_int"))
	assert.Equal(t, "No printer named pp_int.", strings.TrimSpace(out.String()))
}

func TestClearedOnReset(t *testing.T) {
	s, _, r := setup(t)
	require.NoError(t, r.Install("pp_int"))
	s.Reset()
	assert.Empty(t, r.Entries())
}
