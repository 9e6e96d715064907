package dynlink

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"

	"github.com/ZenLiuCN/dynlink/vm"
	"github.com/ZenLiuCN/fn"
	"github.com/davecgh/go-spew/spew"
)

// LoadUnit links one unit read from container r into the session and runs its initialization code.
//
// Consistency is checked before anything is bound. When a relocation fails or the code raises,
// the symbol table is restored to its state before the call; consistency records are kept.
func (s *Session) LoadUnit(r io.ReadSeeker, path string, u *CompiledUnit) (err error) {
	if s.debug {
		log.Printf("load unit %s from %s: %s", u.Name, path, spew.Sdump(u))
	}
	for _, imp := range u.Imports {
		s.Consistency.Use(imp.Name)
		if imp.Fingerprint == "" {
			continue
		}
		if err = s.Consistency.Check(imp.Name, imp.Fingerprint, path); err != nil {
			return
		}
	}
	if err = within(r, u.CodeOffset, int64(u.CodeSize)); err != nil {
		return fmt.Errorf("%w: code of %s", err, u.Name)
	}
	img := vm.NewImage(u.Name, u.CodeSize)
	if _, err = io.ReadFull(r, img.Code[:u.CodeSize]); err != nil {
		return fmt.Errorf("%w: code of %s", ErrTruncated, u.Name)
	}
	img.Seal(u.CodeSize)
	if img.Events, err = ReadEvents(r, u); err != nil {
		return
	}

	snap := s.Symbols.Snapshot()
	if err = s.relocate(img, u); err != nil {
		s.rollback(snap, u)
		return
	}
	s.Machine.Resize(s.Symbols.Extent())

	prev := s.Machine.SetBacktrace(true)
	_, err = s.Machine.Invoke(img)
	s.Machine.SetBacktrace(prev)
	if err != nil {
		s.rollback(snap, u)
		ef := &ExecutionFault{Unit: u.Name, Description: err.Error(), Cause: err}
		var f *vm.Fault
		if errors.As(err, &f) {
			ef.Description = vm.Format(f.Value)
			ef.Backtrace = f.Trace()
		}
		return ef
	}
	s.Machine.Register(img)
	s.loaded = append(s.loaded, img)
	if s.debug {
		log.Printf("activated %s as image %s", u.Name, img.ID)
	}
	return
}

func (s *Session) relocate(img *vm.Image, u *CompiledUnit) error {
	for _, r := range u.Relocs {
		if r.Pos < 0 || r.Pos > u.CodeSize-4 {
			return fmt.Errorf("%w: %s %s at %d in %s", ErrBadRelocation, r.Kind, r.Name, r.Pos, u.Name)
		}
		var v uint32
		switch r.Kind {
		case RelocSetGlobal:
			v = uint32(s.Symbols.Define(r.Name))
		case RelocGetGlobal:
			slot, ok := s.Symbols.Lookup(r.Name)
			if !ok {
				return &UndefinedGlobal{Name: r.Name, Unit: u.Name}
			}
			v = uint32(slot)
		case RelocPrimitive:
			i, ok := s.Symbols.Primitive(r.Name)
			if !ok {
				return &UnavailablePrimitive{Name: r.Name}
			}
			v = i
		default:
			return fmt.Errorf("%w: unknown kind %s in %s", ErrBadRelocation, r.Kind, u.Name)
		}
		if s.debug {
			log.Printf("reloc %s %s at %d => %d", r.Kind, r.Name, r.Pos, v)
		}
		binary.LittleEndian.PutUint32(img.Code[r.Pos:], v)
	}
	return nil
}

func (s *Session) rollback(snap Snapshot, u *CompiledUnit) {
	if s.debug {
		log.Printf("rollback %s", u.Name)
	}
	s.Symbols.Restore(snap)
	s.Machine.Resize(s.Symbols.Extent())
}

// LoadFile loads a single unit container, reporting any failure. It is the #load directive
// for a path that needs no search.
func (s *Session) LoadFile(path string) bool {
	if err := s.loadFile(path); err != nil {
		s.Reporter.Fail(err)
		return false
	}
	return true
}

func (s *Session) loadFile(path string) (err error) {
	var f *os.File
	if f, err = os.Open(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &ContainerNotFound{Name: path}
		}
		return
	}
	defer fn.IgnoreClose(f)
	return s.Load(f, path)
}

// Load links the unit container r, path names it in reports.
func (s *Session) Load(r io.ReadSeeker, path string) (err error) {
	var k Kind
	if k, err = ReadMagic(r); err != nil {
		return
	}
	if k != KindUnit {
		return &NotAnObjectContainer{File: path}
	}
	var u *CompiledUnit
	if u, err = ReadUnit(r); err != nil {
		return
	}
	return s.LoadUnit(r, path, u)
}
