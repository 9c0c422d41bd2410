// Command scriptdump prints what the compiler sees and produces: the
// preprocessed lines and tokens of a script, or the tables and listing of
// a compiled artifact. With -asm it assembles a listing back into code
// words.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cscript/pkg/asm"
	"cscript/pkg/bytecode"
	"cscript/pkg/compiler"
	"cscript/pkg/scriptfile"
	"cscript/pkg/vfs"
)

const testSource = `int x = 10;
int y = 20;
int sum() {
  return x + y;
}
`

func main() {
	tokens := flag.Bool("tokens", false, "print the preprocessed lines and token stream")
	assemble := flag.Bool("asm", false, "assemble a listing file and print the code words")
	flag.Parse()

	if *assemble {
		if flag.NArg() != 1 {
			fmt.Fprintln(os.Stderr, "usage: scriptdump -asm file.lst")
			os.Exit(2)
		}
		if err := dumpAssembly(flag.Arg(0)); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	src := testSource
	name := "test.asc"
	includeDir := "."
	if flag.NArg() > 0 {
		path := flag.Arg(0)
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read error:", err)
			os.Exit(1)
		}
		if filepath.Ext(path) == scriptfile.Ext {
			if err := dumpArtifact(data); err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			return
		}
		src, name, includeDir = string(data), filepath.Base(path), filepath.Dir(path)
	}

	p := compiler.NewPipeline(compiler.Options{Resolver: vfs.DirResolver{Dirs: []string{includeDir}}})
	unit := compiler.Unit{Name: name, Source: src}

	if *tokens {
		lines, results := p.Preprocess(unit)
		fmt.Printf("Preprocessed (%d lines)\n", len(lines))
		for _, l := range lines {
			fmt.Printf("  %s:%d: %s\n", l.Unit, l.Line, l.Text)
		}
		fmt.Println()

		ns := compiler.NewNamespace(compiler.NewSeed())
		stream := compiler.Tokenize(ns, lines, results)
		fmt.Printf("Tokens (%d)\n", len(stream))
		for _, id := range stream {
			fmt.Println(" ", ns.Get(id))
		}
		fmt.Println()
		printMessages(results)
	}

	cs, results := p.Compile(unit)
	printMessages(results)
	if cs == nil {
		os.Exit(1)
	}
	a := scriptfile.FromScript(cs, scriptfile.Digest(src))
	if err := printArtifact(a); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func printMessages(r *compiler.Results) {
	for _, m := range r.Messages {
		fmt.Fprintln(os.Stderr, m.Error())
	}
}

func dumpAssembly(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	code, lines, err := asm.Assemble(string(data))
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	fmt.Printf("Code (%d words)\n", len(code))
	for i, w := range code {
		if line, ok := lines[i]; ok {
			fmt.Printf("  %04d %08x  ; line %d\n", i, uint32(w), line)
			continue
		}
		fmt.Printf("  %04d %08x\n", i, uint32(w))
	}
	return nil
}

func dumpArtifact(data []byte) error {
	a, err := scriptfile.Unmarshal(data)
	if err != nil {
		return err
	}
	return printArtifact(a)
}

func printArtifact(a *scriptfile.Artifact) error {
	fmt.Printf("Script %s (format %d, digest %x)\n\n", a.Name, a.Version, a.SourceDigest[:8])

	fmt.Printf("Functions (%d)\n", len(a.Functions))
	for _, f := range a.Functions {
		variadic := ""
		if f.Variadic {
			variadic = ", ..."
		}
		fmt.Printf("  %04d %s(%d%s)\n", f.Offset, f.Name, f.NumParams, variadic)
	}
	fmt.Printf("\nGlobals (%d bytes)\n", len(a.GlobalData))
	for _, g := range a.Globals {
		fmt.Printf("  %04d %-20s %d%s\n", g.Offset, g.Name, g.Size, flags(g))
	}
	fmt.Printf("\nStructs (%d)\n", len(a.Structs))
	for _, s := range a.Structs {
		head := s.Name
		if s.Parent != "" {
			head += " extends " + s.Parent
		}
		if s.Managed {
			head = "managed " + head
		}
		fmt.Printf("  %s (%d bytes)\n", head, s.Size)
		for _, m := range s.Members {
			fmt.Printf("    %04d %-18s %d%s\n", m.Offset, m.Name, m.Size, flags(m))
		}
	}
	fmt.Printf("\nImports (%d)\n", len(a.Imports))
	for i, name := range a.Imports {
		fmt.Printf("  %3d %s\n", i, name)
	}
	fmt.Printf("\nExports (%d)\n", len(a.Exports))
	for _, e := range a.Exports {
		kind := "data"
		if e.Function {
			kind = fmt.Sprintf("func/%d", e.NumParams)
		}
		fmt.Printf("  %04d %s %s\n", e.Offset, e.Name, kind)
	}
	fmt.Printf("\nStrings (%d bytes)\n", len(a.Strings))
	for i, s := range strings.Split(strings.TrimSuffix(string(a.Strings), "\x00"), "\x00") {
		if s != "" || i == 0 && len(a.Strings) > 0 {
			fmt.Printf("  %q\n", s)
		}
	}
	fmt.Printf("\nFixups (%d)\n", len(a.Fixups))
	for _, f := range a.Fixups {
		fmt.Printf("  %04d %s\n", f.Offset, bytecode.FixupType(f.Type))
	}

	text, err := asm.Disassemble(a.Code)
	if err != nil {
		return err
	}
	fmt.Printf("\nCode (%d words)\n%s", len(a.Code), text)
	return nil
}

func flags(m scriptfile.Member) string {
	var parts []string
	if m.IsPointer {
		parts = append(parts, "pointer")
	}
	if m.IsImport {
		parts = append(parts, "import")
	}
	if len(parts) == 0 {
		return ""
	}
	return " (" + strings.Join(parts, ", ") + ")"
}
