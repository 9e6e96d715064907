package dynlink

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/ZenLiuCN/dynlink/vm"
	"github.com/ZenLiuCN/fn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssembleClosure(t *testing.T) {
	a := NewAssembler()
	l := a.NewLabel()
	a.Event("main").Closure(l, 1, 0).SetGlobal("id").Return()
	entry := a.Pos()
	a.Bind(l).Event("id").Acc(0).Return()
	u, code, events, err := a.Assemble("Id", Import{Name: "Base"})
	require.NoError(t, err)

	assert.Equal(t, vm.OpClosure, vm.Opcode(code[0]))
	assert.Equal(t, uint32(entry), binary.LittleEndian.Uint32(code[1:]))
	assert.Equal(t, []vm.Event{{Pos: 0, Location: "main"}, {Pos: entry, Location: "id"}}, events)
	assert.Equal(t, []Relocation{{Kind: RelocSetGlobal, Pos: 8, Name: "id"}}, u.Relocs)
	assert.Equal(t, []string{"id"}, u.Defines())
	assert.Equal(t, len(code), u.CodeSize)

	b := NewAssembler()
	b.Closure(b.NewLabel(), 0, 0)
	_, _, _, err = b.Assemble("Bad")
	assert.ErrorContains(t, err, "never bound")
	_, err = b.Build("Bad")
	assert.Error(t, err)
}

func TestContainer(t *testing.T) {
	a := NewAssembler()
	a.Event("x").Const(1).SetGlobal("x").Return()
	b := fn.Panic1(a.Build("X"))
	r := bytes.NewReader(b)

	k := fn.Panic1(ReadMagic(r))
	assert.Equal(t, KindUnit, k)
	assert.Equal(t, "unit", k.String())
	u := fn.Panic1(ReadUnit(r))
	assert.Equal(t, "X", u.Name)
	assert.EqualValues(t, MagicSize, u.CodeOffset)
	code := fn.Panic1(ReadCode(r, u))
	assert.Equal(t, vm.OpConst, vm.Opcode(code[0]))
	ev := fn.Panic1(ReadEvents(r, u))
	assert.Equal(t, []vm.Event{{Pos: 0, Location: "x"}}, ev)

	// no debug events
	a = NewAssembler()
	a.Unit().Return()
	r = bytes.NewReader(fn.Panic1(a.Build("U")))
	u = fn.Panic1(ReadUnit(r))
	assert.Zero(t, u.DebugOffset)
	assert.Empty(t, fn.Panic1(ReadEvents(r, u)))

	assert.Equal(t, KindUnknown, fn.Panic1(ReadMagic(bytes.NewReader([]byte("DLNK")))))
	assert.Equal(t, "archive", KindArchive.String())
	assert.Equal(t, "getglobal", RelocGetGlobal.String())
	assert.Equal(t, "reloc(9)", RelocKind(9).String())
}

func TestArchiveName(t *testing.T) {
	assert.Equal(t, "libs"+ArchiveSuffix, ArchiveName("libs"))
	assert.Equal(t, "out/libs.dla", ArchiveName("out/libs.dla"))
	assert.Equal(t, "libs.bin", ArchiveName("libs.bin"))
}
