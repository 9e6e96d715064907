package dynlink

import (
	"maps"
	"slices"

	"github.com/ZenLiuCN/fn"
)

type (
	// Sym is a slot in the global data of the machine.
	Sym uint32
	// SymbolTable maps link names to global slots and primitive names to primitive indices.
	//
	// A name defined twice is rebound to a fresh slot, the previous slot keeps its value
	// so a Restore can bring the old binding back.
	SymbolTable struct {
		globals map[string]Sym
		prims   map[string]uint32
		next    Sym
	}
	// Snapshot captures the extent of a SymbolTable.
	Snapshot struct {
		globals map[string]Sym
		prims   map[string]uint32
		next    Sym
	}
)

// NewSymbolTable create an empty table.
func NewSymbolTable() *SymbolTable {
	return &SymbolTable{
		globals: make(map[string]Sym),
		prims:   make(map[string]uint32),
	}
}

// Define binds name to a fresh slot.
func (s *SymbolTable) Define(name string) Sym {
	slot := s.next
	s.next++
	s.globals[name] = slot
	return slot
}

// Lookup resolves a global name.
func (s *SymbolTable) Lookup(name string) (u Sym, ok bool) {
	u, ok = s.globals[name]
	return
}

// IsDefined reports whether name has a slot.
func (s *SymbolTable) IsDefined(name string) bool {
	_, ok := s.globals[name]
	return ok
}

// Extent is the number of slots handed out.
func (s *SymbolTable) Extent() int {
	return int(s.next)
}

// DefinePrimitive binds a primitive name to its index in the machine.
func (s *SymbolTable) DefinePrimitive(name string, index uint32) {
	s.prims[name] = index
}

// Primitive resolves a primitive name.
func (s *SymbolTable) Primitive(name string) (i uint32, ok bool) {
	i, ok = s.prims[name]
	return
}

// Symbols dump the sorted global names.
func (s *SymbolTable) Symbols() []string {
	v := fn.MapKeys(s.globals)
	slices.Sort(v)
	return v
}

// Primitives dump the sorted primitive names.
func (s *SymbolTable) Primitives() []string {
	v := fn.MapKeys(s.prims)
	slices.Sort(v)
	return v
}

// Snapshot captures the current extent.
func (s *SymbolTable) Snapshot() Snapshot {
	return Snapshot{
		globals: maps.Clone(s.globals),
		prims:   maps.Clone(s.prims),
		next:    s.next,
	}
}

// Restore returns the table to a captured extent.
func (s *SymbolTable) Restore(snap Snapshot) {
	s.globals = maps.Clone(snap.globals)
	s.prims = maps.Clone(snap.prims)
	s.next = snap.next
}
