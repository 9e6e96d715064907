package dynlink

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/ZenLiuCN/fn"
)

// Infos is a stringer slice of Info
type Infos []*Info

func (i Infos) String() string {
	s := strings.Builder{}
	for _, v := range i {
		s.WriteString(v.String())
	}
	return s.String()
}

// Info contains the link information of one unit inside a container
type Info struct {
	File    string
	Unit    string
	Imports map[string]string // with pairs of interface name and fingerprint
	Defines []string
	Relocs  []Relocation
}

func (i Info) String() string {
	s := strings.Builder{}
	s.WriteString(fmt.Sprintf("%s (%s)\n", i.Unit, i.File))
	for p, v := range i.Imports {
		if v != "" {
			s.WriteString(fmt.Sprintf("\t%s@%s\n", p, v))
		} else {
			s.WriteString(fmt.Sprintf("\t%s\n", p))
		}
	}
	for _, r := range i.Relocs {
		s.WriteString(fmt.Sprintf("\t%-9s %-20s @%d\n", r.Kind, r.Name, r.Pos))
	}
	return s.String()
}

func parseInfo(file string, u *CompiledUnit) (i *Info) {
	i = new(Info)
	i.File = file
	i.Unit = u.Name
	i.Imports = make(map[string]string)
	for _, imp := range u.Imports {
		i.Imports[imp.Name] = imp.Fingerprint
	}
	i.Defines = u.Defines()
	i.Relocs = append(i.Relocs, u.Relocs...)
	return
}

// Inspect resolve the units of a container and what they import, define and reference.
func Inspect(file string) (libs []string, infos Infos, err error) {
	var f *os.File
	if f, err = os.Open(file); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			err = &ContainerNotFound{Name: file}
		}
		return
	}
	defer fn.IgnoreClose(f)
	var k Kind
	if k, err = ReadMagic(f); err != nil {
		return
	}
	switch k {
	case KindUnit:
		var u *CompiledUnit
		if u, err = ReadUnit(f); err != nil {
			return
		}
		infos = append(infos, parseInfo(file, u))
	case KindArchive:
		var a *Archive
		if a, err = ReadArchive(f); err != nil {
			return
		}
		libs = a.Libraries
		for n := range a.Units {
			infos = append(infos, parseInfo(file, &a.Units[n]))
		}
	default:
		err = &NotAnObjectContainer{File: file}
	}
	return
}
