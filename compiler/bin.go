package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	. "github.com/ZenLiuCN/dynlink"
	"github.com/ZenLiuCN/dynlink/native"
	"github.com/ZenLiuCN/dynlink/pool"
	"github.com/ZenLiuCN/dynlink/vm"
	"github.com/ZenLiuCN/fn"
	"github.com/urfave/cli/v2"
)

func main() {
	app := cli.NewApp()
	app.Usage = "bytecode unit linker"
	app.Name = "Compiler"
	app.Description = "inspect, pack and load bytecode unit containers"
	app.Flags = []cli.Flag{
		&cli.BoolFlag{
			Name:    "debug",
			Aliases: []string{"d"},
		},
	}
	app.Args = true
	app.Commands = []*cli.Command{
		{
			Name:   "imports",
			Action: imports,
			Usage:  "display imports, definitions and relocations of unit or archive files",
			Args:   true,
		},
		{
			Name:   "archive",
			Action: archive,
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "archive file to write, '" + ArchiveSuffix + "' is appended when it has no extension", Required: true},
				&cli.StringSliceFlag{Name: "lib", Aliases: []string{"l"}, Usage: "shared library the units require"},
			},
			Args:  true,
			Usage: "pack unit files into an archive. the arguments can be list of units or '.' for lookup at working directory.",
		},
		{
			Name:   "load",
			Action: load,
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "session configuration file"},
				&cli.StringSliceFlag{Name: "include", Aliases: []string{"I"}, Usage: "add directory to the search path"},
				&cli.BoolFlag{Name: "recursive", Aliases: []string{"r"}, Usage: "load missing dependencies first"},
			},
			Args:  true,
			Usage: "load files into a fresh session and display the defined globals",
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatalf("failure %s", err)
	}
}

func imports(ctx *cli.Context) (err error) {
	for _, s := range ctx.Args().Slice() {
		var libs []string
		var v Infos
		if libs, v, err = Inspect(s); err != nil {
			return
		}
		if len(libs) > 0 {
			log.Printf("%s requires %s", s, strings.Join(libs, ", "))
		}
		log.Printf("\n%s", v.String())
	}
	return
}

func member(file string) (m Member, err error) {
	var f *os.File
	if f, err = os.Open(file); err != nil {
		return
	}
	defer fn.IgnoreClose(f)
	var k Kind
	if k, err = ReadMagic(f); err != nil {
		return
	}
	if k != KindUnit {
		err = &NotAnObjectContainer{File: file}
		return
	}
	var u *CompiledUnit
	if u, err = ReadUnit(f); err != nil {
		return
	}
	m.Unit = *u
	if m.Code, err = ReadCode(f, u); err != nil {
		return
	}
	m.Events, err = ReadEvents(f, u)
	return
}

func archive(ctx *cli.Context) (err error) {
	d := ctx.Bool("debug")
	o := ctx.Args().Slice()
	if len(o) == 0 {
		return fmt.Errorf("missing unit files list")
	}
	if len(o) == 1 && o[0] == "." {
		if d {
			log.Printf("will use all %s files as members", UnitSuffix)
		}
		if o, err = lookup(); err != nil {
			return
		}
		log.Printf("found units at working directory: %v", o)
	}
	var members []Member
	for _, s := range o {
		var m Member
		if m, err = member(s); err != nil {
			return
		}
		members = append(members, m)
	}
	var b []byte
	if b, err = BuildArchive(ctx.StringSlice("lib"), members); err != nil {
		return
	}
	out := ArchiveName(ctx.String("out"))
	if err = os.WriteFile(out, b, 0o644); err != nil {
		return
	}
	if d {
		log.Printf("wrote %d units into %s", len(members), out)
	}
	return
}

var errLoad = errors.New("some files failed to load")

func load(ctx *cli.Context) (err error) {
	d := ctx.Bool("debug")
	c := &Config{Debug: d, Color: ColorAuto}
	if f := ctx.String("config"); f != "" {
		if c, err = LoadConfig(f); err != nil {
			return
		}
		c.Debug = c.Debug || d
	}
	s := NewSessionFromConfig(c, os.Stdout)
	opener := native.NewOpener(c.SearchPath, c.Debug)
	var p *pool.Pool
	if p, err = pool.FromConfig(c, s, opener); err != nil {
		return
	}
	for _, dir := range ctx.StringSlice("include") {
		p.AddDirectory(dir)
		opener.Dirs = append([]string{dir}, opener.Dirs...)
	}
	failed := false
	for _, f := range ctx.Args().Slice() {
		if !p.LoadByName(f, ctx.Bool("recursive")) {
			failed = true
		}
	}
	for _, name := range s.Symbols.Symbols() {
		log.Printf("%s = %s", name, vm.Format(s.MustFetch(name)))
	}
	if failed {
		return errLoad
	}
	return
}

func lookup() (v []string, err error) {
	var wd string
	wd, err = os.Getwd()
	if err != nil {
		return
	}
	var e []os.DirEntry
	e, err = os.ReadDir(wd)
	if err != nil {
		return
	}
	for _, entry := range e {
		if entry.IsDir() {
			continue
		}
		n := entry.Name()
		if strings.HasSuffix(n, UnitSuffix) {
			v = append(v, n)
		}
	}
	return
}
