package dynlink

import (
	"testing"

	"github.com/ZenLiuCN/dynlink/types"
	"github.com/ZenLiuCN/dynlink/vm"
	"github.com/ZenLiuCN/fn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetch(t *testing.T) {
	s := NewSession(nil, debugging)
	fn.Panic(load(s, "X", constant("x", 7)))

	v, ok := s.Fetch("x")
	require.True(t, ok)
	assert.Equal(t, int64(7), v)
	_, ok = s.Fetch("y")
	assert.False(t, ok)
	assert.PanicsWithError(t, "missing symbol: y", func() { s.MustFetch("y") })

	assert.Equal(t, int64(7), As[int64](s.MustFetch("x")))
	assert.Panics(t, func() { As[*vm.Closure](s.MustFetch("x")) })
}

func TestUse(t *testing.T) {
	s := NewSession(nil, debugging)
	fn.Panic(load(s, "X", constant("x", 7)))

	called := 0
	Use[int64](s, "x")(func(v int64, err error) {
		called++
		require.NoError(t, err)
		assert.Equal(t, int64(7), v)
	})
	Use[string](s, "x")(func(v string, err error) {
		called++
		assert.Error(t, err)
		assert.Empty(t, v)
	})
	Use[int64](s, "y")(func(v int64, err error) {
		called++
		assert.ErrorIs(t, err, ErrMissingSymbol)
	})
	assert.Equal(t, 3, called)
}

func TestResolve(t *testing.T) {
	s := NewSession(nil, debugging)
	fn.Panic(load(s, "X", constant("x", 7)))
	s.Env.Bind("x", types.Int)
	require.NoError(t, s.Env.Alias("y", "x"))

	b, v, err := s.Resolve("y")
	require.NoError(t, err)
	assert.Equal(t, "x", b.Path)
	assert.True(t, types.Equal(types.Int, b.Type))
	assert.Equal(t, int64(7), v)

	var ub *UnboundName
	require.ErrorAs(t, s.Env.Alias("z", "nothing"), &ub)
	// bound in the environment, but never loaded
	s.Env.Bind("w", types.Int)
	_, _, err = s.Resolve("w")
	require.ErrorAs(t, err, &ub)
	assert.Equal(t, "Unbound value w.", err.Error())
}
