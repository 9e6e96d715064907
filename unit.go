package dynlink

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/ZenLiuCN/dynlink/vm"
)

// Container layout:
//
//	[magic 8 bytes][code and debug payloads ...][gob descriptor][descriptor offset, uint32 big endian]
//
// A unit container's descriptor is a CompiledUnit, an archive's is an Archive. All offsets are
// absolute file offsets.
const (
	MagicSize     = 8
	MagicUnit     = "DLNKU001"
	MagicArchive  = "DLNKA001"
	UnitSuffix    = ".dlo"
	ArchiveSuffix = ".dla"
)

// ArchiveName gives name the archive suffix when it has no extension.
func ArchiveName(name string) string {
	if filepath.Ext(name) == "" {
		return name + ArchiveSuffix
	}
	return name
}

// Kind of container, read from its magic number.
type Kind int

const (
	KindUnknown Kind = iota
	KindUnit
	KindArchive
)

func (k Kind) String() string {
	switch k {
	case KindUnit:
		return "unit"
	case KindArchive:
		return "archive"
	default:
		return "unknown"
	}
}

// RelocKind tells what a relocation binds.
type RelocKind uint8

const (
	RelocGetGlobal RelocKind = iota + 1 // bind a global name defined by some loaded unit
	RelocSetGlobal                      // define a global name
	RelocPrimitive                      // bind a primitive
)

func (k RelocKind) String() string {
	switch k {
	case RelocGetGlobal:
		return "getglobal"
	case RelocSetGlobal:
		return "setglobal"
	case RelocPrimitive:
		return "primitive"
	default:
		return fmt.Sprintf("reloc(%d)", uint8(k))
	}
}

type (
	// Import is an interface a unit was compiled against. An empty Fingerprint means unknown.
	Import struct {
		Name        string
		Fingerprint string
	}
	// Relocation patches a 4 byte little endian index at Pos.
	Relocation struct {
		Kind RelocKind
		Pos  int
		Name string
	}
	// CompiledUnit is the descriptor of one linkable unit.
	CompiledUnit struct {
		Name        string
		Imports     []Import
		Relocs      []Relocation
		CodeOffset  int64
		CodeSize    int
		DebugOffset int64 // 0 when the unit carries no debug events
		DebugSize   int
	}
	// Archive is the descriptor of a multi-unit container.
	Archive struct {
		Libraries []string
		Units     []CompiledUnit
	}
	// Member is one unit to be written into a container.
	Member struct {
		Unit   CompiledUnit
		Code   []byte
		Events []vm.Event
	}
)

// Defines lists the globals the unit defines.
func (u *CompiledUnit) Defines() (v []string) {
	for _, r := range u.Relocs {
		if r.Kind == RelocSetGlobal {
			v = append(v, r.Name)
		}
	}
	return
}

// ReadMagic classifies a container.
func ReadMagic(r io.ReadSeeker) (k Kind, err error) {
	if _, err = r.Seek(0, io.SeekStart); err != nil {
		return
	}
	var m [MagicSize]byte
	if _, err = io.ReadFull(r, m[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return KindUnknown, nil
		}
		return
	}
	switch string(m[:]) {
	case MagicUnit:
		return KindUnit, nil
	case MagicArchive:
		return KindArchive, nil
	default:
		return KindUnknown, nil
	}
}

func seekDescriptor(r io.ReadSeeker) (err error) {
	var end int64
	if end, err = r.Seek(-4, io.SeekEnd); err != nil {
		return fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	var b [4]byte
	if _, err = io.ReadFull(r, b[:]); err != nil {
		return fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	off := int64(binary.BigEndian.Uint32(b[:]))
	if off < MagicSize || off >= end {
		return fmt.Errorf("%w: descriptor offset %d", ErrTruncated, off)
	}
	_, err = r.Seek(off, io.SeekStart)
	return
}

// ReadUnit decodes the descriptor of a unit container.
func ReadUnit(r io.ReadSeeker) (u *CompiledUnit, err error) {
	if err = seekDescriptor(r); err != nil {
		return
	}
	u = new(CompiledUnit)
	if err = gob.NewDecoder(r).Decode(u); err != nil {
		return nil, fmt.Errorf("decode unit descriptor: %w", err)
	}
	return
}

// ReadArchive decodes the table of contents of an archive container.
func ReadArchive(r io.ReadSeeker) (a *Archive, err error) {
	if err = seekDescriptor(r); err != nil {
		return
	}
	a = new(Archive)
	if err = gob.NewDecoder(r).Decode(a); err != nil {
		return nil, fmt.Errorf("decode archive descriptor: %w", err)
	}
	return
}

// within checks that size bytes at off lie inside r and leaves r positioned at off.
func within(r io.ReadSeeker, off, size int64) error {
	end, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return err
	}
	if off < 0 || size < 0 || off > end || size > end-off {
		return fmt.Errorf("%w: %d bytes at %d past %d", ErrTruncated, size, off, end)
	}
	_, err = r.Seek(off, io.SeekStart)
	return err
}

// ReadEvents reads the debug events of u, empty when it has none.
func ReadEvents(r io.ReadSeeker, u *CompiledUnit) (ev []vm.Event, err error) {
	if u.DebugOffset == 0 {
		return nil, nil
	}
	if err = within(r, u.DebugOffset, int64(u.DebugSize)); err != nil {
		return nil, fmt.Errorf("%w: debug events of %s", err, u.Name)
	}
	b := make([]byte, u.DebugSize)
	if _, err = io.ReadFull(r, b); err != nil {
		return nil, fmt.Errorf("%w: debug events of %s", ErrTruncated, u.Name)
	}
	if err = gob.NewDecoder(bytes.NewReader(b)).Decode(&ev); err != nil {
		return nil, fmt.Errorf("decode debug events of %s: %w", u.Name, err)
	}
	return
}

// ReadCode copies the code of u out of a container.
func ReadCode(r io.ReadSeeker, u *CompiledUnit) (code []byte, err error) {
	if err = within(r, u.CodeOffset, int64(u.CodeSize)); err != nil {
		return nil, fmt.Errorf("%w: code of %s", err, u.Name)
	}
	code = make([]byte, u.CodeSize)
	if _, err = io.ReadFull(r, code); err != nil {
		return nil, fmt.Errorf("%w: code of %s", ErrTruncated, u.Name)
	}
	return
}

func writeMember(buf *bytes.Buffer, m Member) (u CompiledUnit, err error) {
	u = m.Unit
	u.CodeOffset = int64(buf.Len())
	u.CodeSize = len(m.Code)
	buf.Write(m.Code)
	u.DebugOffset, u.DebugSize = 0, 0
	if len(m.Events) > 0 {
		var ev bytes.Buffer
		if err = gob.NewEncoder(&ev).Encode(m.Events); err != nil {
			return
		}
		u.DebugOffset = int64(buf.Len())
		u.DebugSize = ev.Len()
		buf.Write(ev.Bytes())
	}
	return
}

func finish(buf *bytes.Buffer, descriptor any) ([]byte, error) {
	off := buf.Len()
	if err := gob.NewEncoder(buf).Encode(descriptor); err != nil {
		return nil, fmt.Errorf("encode descriptor: %w", err)
	}
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(off))
	buf.Write(b[:])
	return buf.Bytes(), nil
}

// BuildUnit writes a unit container. Offsets and sizes of u are filled in.
func BuildUnit(u CompiledUnit, code []byte, events []vm.Event) ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.WriteString(MagicUnit)
	w, err := writeMember(buf, Member{Unit: u, Code: code, Events: events})
	if err != nil {
		return nil, err
	}
	return finish(buf, &w)
}

// BuildArchive writes an archive of members preceded by the shared libraries they require.
func BuildArchive(libs []string, members []Member) ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.WriteString(MagicArchive)
	a := &Archive{Libraries: libs}
	for _, m := range members {
		u, err := writeMember(buf, m)
		if err != nil {
			return nil, err
		}
		a.Units = append(a.Units, u)
	}
	return finish(buf, a)
}
