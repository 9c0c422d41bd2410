package compiler

import (
	"encoding/binary"

	"cscript/pkg/bytecode"
)

// Fixup marks a code word the loader must relocate.
type Fixup struct {
	Offset int
	Type   bytecode.FixupType
}

// FunctionEntry is one row of the function table.
type FunctionEntry struct {
	Name      string
	Offset    int
	NumParams int
	Variadic  bool
}

// Export names a function or global variable visible to other scripts.
type Export struct {
	Name     string
	Offset   int
	Function bool
	// NumParams is only set for functions.
	NumParams int
}

// CompiledScript is the output of compiling one unit.
type CompiledScript struct {
	Name       string
	Code       []int32
	Strings    []byte
	Fixups     []Fixup
	Structs    []*ScriptStruct
	GlobalData DataGroup
	Functions  []*ScriptFunction
	Imports    []string
	Exports    []Export
}

func NewCompiledScript(name string) *CompiledScript {
	return &CompiledScript{Name: name}
}

// CodeSize is the number of words written so far.
func (cs *CompiledScript) CodeSize() int {
	return len(cs.Code)
}

// WriteCmd appends op and its operands. The operand count must match the
// instruction set exactly.
func (cs *CompiledScript) WriteCmd(op bytecode.Opcode, args ...int32) error {
	if !op.Valid() {
		return internalError("invalid opcode %d", int32(op))
	}
	if len(args) != op.ArgCount() {
		return internalError("opcode %s takes %d operands, got %d", op, op.ArgCount(), len(args))
	}
	cs.Code = append(cs.Code, int32(op))
	cs.Code = append(cs.Code, args...)
	return nil
}

// AddFixup records that the word at offset needs relocation.
func (cs *CompiledScript) AddFixup(offset int, t bytecode.FixupType) {
	cs.Fixups = append(cs.Fixups, Fixup{Offset: offset, Type: t})
}

// AddString stores s null-terminated in the string table and returns its
// offset. Identical strings share storage.
func (cs *CompiledScript) AddString(s string) int {
	needle := append([]byte(s), 0)
	for i := 0; i+len(needle) <= len(cs.Strings); i++ {
		if (i == 0 || cs.Strings[i-1] == 0) && string(cs.Strings[i:i+len(needle)]) == string(needle) {
			return i
		}
	}
	off := len(cs.Strings)
	cs.Strings = append(cs.Strings, needle...)
	return off
}

// AddImport returns the index of name in the import table, adding it once.
func (cs *CompiledScript) AddImport(name string) int {
	for i, n := range cs.Imports {
		if n == name {
			return i
		}
	}
	cs.Imports = append(cs.Imports, name)
	return len(cs.Imports) - 1
}

// AddExport appends an export entry unless the name is already exported.
func (cs *CompiledScript) AddExport(e Export) {
	for _, x := range cs.Exports {
		if x.Name == e.Name {
			return
		}
	}
	cs.Exports = append(cs.Exports, e)
}

// FunctionTable lists every function with a body, in declaration order.
func (cs *CompiledScript) FunctionTable() []FunctionEntry {
	out := make([]FunctionEntry, 0, len(cs.Functions))
	for _, f := range cs.Functions {
		out = append(out, FunctionEntry{
			Name:      f.FullName(),
			Offset:    f.CodeOffset,
			NumParams: len(f.Parameters),
			Variadic:  f.VariableArguments,
		})
	}
	return out
}

// GlobalDataBytes renders the initial contents of global storage, little
// endian, with each variable's default value in its first element.
func (cs *CompiledScript) GlobalDataBytes() []byte {
	data := make([]byte, cs.GlobalData.SizeInBytes)
	for _, v := range cs.GlobalData.Members {
		if v.IsImported || v.DefaultValue == 0 || v.IsPointer {
			continue
		}
		switch v.ElementSize {
		case 1:
			data[v.Offset] = byte(v.DefaultValue)
		case 2:
			binary.LittleEndian.PutUint16(data[v.Offset:], uint16(v.DefaultValue))
		case 4:
			binary.LittleEndian.PutUint32(data[v.Offset:], uint32(v.DefaultValue))
		}
	}
	return data
}

// MemberLayout describes one struct member or global variable.
type MemberLayout struct {
	Name      string
	Offset    int
	Size      int
	IsPointer bool
	IsImport  bool
}

// StructLayout describes one struct type.
type StructLayout struct {
	Name    string
	Size    int
	Managed bool
	Parent  string
	Members []MemberLayout
}

func layoutOf(g *DataGroup) []MemberLayout {
	out := make([]MemberLayout, 0, len(g.Members))
	for _, m := range g.Members {
		out = append(out, MemberLayout{
			Name: m.Name, Offset: m.Offset, Size: m.Size,
			IsPointer: m.IsPointer, IsImport: m.IsImported,
		})
	}
	return out
}

// StructTable lists the layout of every struct declared in the unit.
func (cs *CompiledScript) StructTable() []StructLayout {
	out := make([]StructLayout, 0, len(cs.Structs))
	for _, s := range cs.Structs {
		l := StructLayout{Name: s.Name, Size: s.SizeInBytes, Managed: s.IsManaged, Members: layoutOf(&s.DataGroup)}
		if s.Extends != nil {
			l.Parent = s.Extends.Name
		}
		out = append(out, l)
	}
	return out
}

// GlobalLayout lists every global variable.
func (cs *CompiledScript) GlobalLayout() []MemberLayout {
	return layoutOf(&cs.GlobalData)
}
