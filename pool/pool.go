// Package pool resolves load requests against a search path, loads archives and
// pulls in the units a requested unit depends on.
package pool

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/ZenLiuCN/dynlink"
	"github.com/ZenLiuCN/dynlink/vm"
	"github.com/ZenLiuCN/fn"
	"github.com/oleiade/lane"
)

type (
	// Libraries opens the shared libraries an archive requires and returns the primitives they supply.
	Libraries interface {
		Open(name string) ([]*vm.Primitive, error)
	}
	// StaticLibraries serves libraries compiled into the host.
	StaticLibraries map[string][]*vm.Primitive
	// Pool loads containers by name into a Session.
	Pool struct {
		Session   *dynlink.Session
		Path      []string
		Libraries Libraries
		loaded    []string
		debug     bool
		sync.Mutex
	}
)

var (
	ErrNoSuchLibrary = errors.New("no such library")
	ErrNoLibraries   = errors.New("no shared library support")
)

func (l StaticLibraries) Open(name string) ([]*vm.Primitive, error) {
	p, ok := l[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchLibrary, name)
	}
	return p, nil
}

// NewPool create new pool over s. An empty search path means the working directory.
func NewPool(s *dynlink.Session, libs Libraries, path ...string) *Pool {
	p := new(Pool)
	p.Session = s
	p.Libraries = libs
	p.debug = s.Debug()
	if len(path) == 0 {
		path = []string{"."}
	}
	p.Path = append(p.Path, path...)
	return p
}

// FromConfig create a pool with the search path of c and open the libraries it lists.
func FromConfig(c *dynlink.Config, s *dynlink.Session, libs Libraries) (p *Pool, err error) {
	p = NewPool(s, libs, c.SearchPath...)
	for _, l := range c.Libraries {
		if err = p.OpenLibrary(l); err != nil {
			return nil, err
		}
	}
	return
}

// AddDirectory puts dir in front of the search path.
func (p *Pool) AddDirectory(dir string) {
	p.Lock()
	defer p.Unlock()
	p.Path = slices.DeleteFunc(p.Path, func(d string) bool { return d == dir })
	p.Path = append([]string{dir}, p.Path...)
}

// RemoveDirectory drops dir from the search path.
func (p *Pool) RemoveDirectory(dir string) {
	p.Lock()
	defer p.Unlock()
	p.Path = slices.DeleteFunc(p.Path, func(d string) bool { return d == dir })
}

// Files loaded by this pool, in order.
func (p *Pool) Files() []string {
	p.Lock()
	defer p.Unlock()
	return append([]string(nil), p.loaded...)
}

// fileKey identifies a file independent of how its path was spelled.
func fileKey(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

func isFile(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}

// Find resolves name against the search path. Names with a directory part are used as is.
func (p *Pool) Find(name string) (string, error) {
	if filepath.IsAbs(name) || filepath.Base(name) != name {
		if isFile(name) {
			return filepath.Clean(name), nil
		}
		return "", &dynlink.ContainerNotFound{Name: name}
	}
	for _, dir := range p.Path {
		f := filepath.Join(dir, name)
		if isFile(f) {
			return f, nil
		}
	}
	return "", &dynlink.ContainerNotFound{Name: name}
}

// findFold is Find, falling back to a case-insensitive match of the base name in every directory.
func (p *Pool) findFold(name string) (string, error) {
	if f, err := p.Find(name); err == nil {
		return f, nil
	}
	for _, dir := range p.Path {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if !e.IsDir() && strings.EqualFold(e.Name(), name) {
				return filepath.Join(dir, e.Name()), nil
			}
		}
	}
	return "", &dynlink.ContainerNotFound{Name: name}
}

// OpenLibrary opens a shared library and registers the primitives it supplies.
func (p *Pool) OpenLibrary(name string) error {
	if p.Libraries == nil {
		return &dynlink.MissingSharedLibrary{Name: name, Reason: ErrNoLibraries.Error()}
	}
	prims, err := p.Libraries.Open(name)
	if err != nil {
		return &dynlink.MissingSharedLibrary{Name: name, Reason: err.Error()}
	}
	for _, prim := range prims {
		p.Session.RegisterPrimitive(prim)
	}
	if p.debug {
		log.Printf("opened %s with %d primitives", name, len(prims))
	}
	return nil
}

// LoadByName is the #load directive: resolve name, load it and report any failure.
// With recursive set, undefined globals the unit references are loaded first from
// files named after them.
func (p *Pool) LoadByName(name string, recursive bool) bool {
	if err := p.Load(name, recursive); err != nil {
		p.Session.Reporter.Fail(err)
		return false
	}
	return true
}

// Load is LoadByName returning the failure instead of reporting it.
func (p *Pool) Load(name string, recursive bool) error {
	p.Lock()
	defer p.Unlock()
	file, err := p.Find(name)
	if err != nil {
		return err
	}
	return p.loadFile(file, recursive, make(map[string]bool))
}

func (p *Pool) loadFile(file string, recursive bool, visiting map[string]bool) (err error) {
	var f *os.File
	if f, err = os.Open(file); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &dynlink.ContainerNotFound{Name: file}
		}
		return
	}
	defer fn.IgnoreClose(f)
	var k dynlink.Kind
	if k, err = dynlink.ReadMagic(f); err != nil {
		return
	}
	switch k {
	case dynlink.KindUnit:
		var u *dynlink.CompiledUnit
		if u, err = dynlink.ReadUnit(f); err != nil {
			return
		}
		if recursive {
			visiting[fileKey(file)] = true
			if err = p.loadDependencies(u, visiting); err != nil {
				return
			}
		}
		if err = p.Session.LoadUnit(f, file, u); err != nil {
			return
		}
	case dynlink.KindArchive:
		var a *dynlink.Archive
		if a, err = dynlink.ReadArchive(f); err != nil {
			return
		}
		for _, lib := range a.Libraries {
			if err = p.OpenLibrary(lib); err != nil {
				return
			}
		}
		for n := range a.Units {
			if err = p.Session.LoadUnit(f, file, &a.Units[n]); err != nil {
				return
			}
		}
	default:
		return &dynlink.NotAnObjectContainer{File: file}
	}
	p.loaded = append(p.loaded, file)
	if p.debug {
		log.Printf("loaded %s", file)
	}
	return
}

// loadDependencies loads, in reference order, the files named after globals u references
// that neither the symbol table nor u itself defines.
func (p *Pool) loadDependencies(u *dynlink.CompiledUnit, visiting map[string]bool) error {
	own := make(map[string]bool)
	for _, n := range u.Defines() {
		own[n] = true
	}
	seen := make(map[string]bool)
	q := lane.NewQueue()
	for _, r := range u.Relocs {
		if r.Kind != dynlink.RelocGetGlobal || own[r.Name] || seen[r.Name] || p.Session.Symbols.IsDefined(r.Name) {
			continue
		}
		seen[r.Name] = true
		q.Enqueue(r.Name)
	}
	for !q.Empty() {
		name := q.Dequeue().(string)
		if p.Session.Symbols.IsDefined(name) {
			continue
		}
		file, err := p.findFold(name + dynlink.UnitSuffix)
		if err != nil {
			return err
		}
		if visiting[fileKey(file)] {
			continue
		}
		if p.debug {
			log.Printf("%s needs %s from %s", u.Name, name, file)
		}
		if err = p.loadFile(file, true, visiting); err != nil {
			return err
		}
	}
	return nil
}
