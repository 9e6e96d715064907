package native

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ZenLiuCN/dynlink"
	"github.com/ZenLiuCN/dynlink/pool"
	"github.com/ZenLiuCN/dynlink/vm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "libfmt.so"), []byte{0}, 0o644))
	o := NewOpener([]string{t.TempDir(), dir})

	p, err := o.Resolve("libfmt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "libfmt.so"), p)

	p, err = o.Resolve("libfmt.so")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "libfmt.so"), p)

	_, err = o.Resolve("libnone")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMissingLibraryFailsArchive(t *testing.T) {
	o := NewOpener([]string{t.TempDir()})
	o.Bind("fmt_pad", &vm.Primitive{Name: "pad", Arity: 1})
	require.Len(t, o.Bindings(), 1)

	s := dynlink.NewSession(nil)
	p := pool.NewPool(s, o)
	err := p.OpenLibrary("libpad")
	var ms *dynlink.MissingSharedLibrary
	require.ErrorAs(t, err, &ms)
	assert.Equal(t, "libpad", ms.Name)
	assert.Contains(t, ms.Reason, ErrNotFound.Error())
	_, ok := s.Symbols.Primitive("pad")
	assert.False(t, ok)

	_, ok = o.Symbol("libpad", "fmt_pad")
	assert.False(t, ok)
}
