// Package native opens real shared objects for archives that require them.
//
// A shared object can not hand Go functions to the machine by itself, so the host binds
// each primitive to the symbol the object must export: opening the object registers its
// symbols with [goloader] and supplies every bound primitive whose symbol was found.
package native

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/ZenLiuCN/dynlink/vm"
	"github.com/pkujhd/goloader"
)

var (
	ErrNotFound     = errors.New("no such file in library path")
	ErrNoPrimitives = errors.New("library exports none of the bound symbols")
)

// SoSuffix is appended to library names given without an extension.
const SoSuffix = ".so"

// Binding ties a primitive to the symbol a shared object exports for it.
type Binding struct {
	Symbol string
	Prim   *vm.Primitive
}

// Opener implements the pool's library opener over shared objects on disk.
type Opener struct {
	Dirs     []string
	bindings []Binding
	symbols  map[string]map[string]uintptr // library path => symbol => address
	debug    bool
}

// NewOpener create an opener searching dirs, an optional debug parameter will enable debug logging.
func NewOpener(dirs []string, debug ...bool) *Opener {
	return &Opener{
		Dirs:    dirs,
		symbols: make(map[string]map[string]uintptr),
		debug:   len(debug) > 0 && debug[0],
	}
}

// Bind makes p available from every library that exports symbol.
func (o *Opener) Bind(symbol string, p *vm.Primitive) {
	o.bindings = append(o.bindings, Binding{Symbol: symbol, Prim: p})
}

// Bindings registered so far.
func (o *Opener) Bindings() []Binding {
	return append([]Binding(nil), o.bindings...)
}

// Resolve a library name against the search directories.
func (o *Opener) Resolve(name string) (string, error) {
	cand := []string{name}
	if filepath.Ext(name) == "" {
		cand = append(cand, name+SoSuffix)
	}
	if filepath.IsAbs(name) || strings.ContainsRune(name, filepath.Separator) {
		for _, c := range cand {
			if st, err := os.Stat(c); err == nil && !st.IsDir() {
				return c, nil
			}
		}
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	for _, d := range o.Dirs {
		for _, c := range cand {
			p := filepath.Join(d, c)
			if st, err := os.Stat(p); err == nil && !st.IsDir() {
				return p, nil
			}
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, name)
}

// Open registers the symbols of the named shared object and returns the primitives bound to them.
// An object is read once, later opens reuse its symbols.
func (o *Opener) Open(name string) (prims []*vm.Primitive, err error) {
	var path string
	if path, err = o.Resolve(name); err != nil {
		return
	}
	syms, ok := o.symbols[path]
	if !ok {
		syms = make(map[string]uintptr)
		if err = goloader.RegSymbolWithSo(syms, path); err != nil {
			return nil, err
		}
		o.symbols[path] = syms
		if o.debug {
			log.Printf("read %d symbols from %s", len(syms), path)
		}
	}
	for _, b := range o.bindings {
		if _, ok = syms[b.Symbol]; ok {
			prims = append(prims, b.Prim)
		}
	}
	if len(prims) == 0 && len(o.bindings) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoPrimitives, path)
	}
	return
}

// Symbol returns the address of symbol in an opened library.
func (o *Opener) Symbol(name, symbol string) (uintptr, bool) {
	path, err := o.Resolve(name)
	if err != nil {
		return 0, false
	}
	addr, ok := o.symbols[path][symbol]
	return addr, ok
}
