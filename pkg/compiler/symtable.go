package compiler

import (
	"fmt"
	"sort"
	"strings"
)

const (
	// PointerSize is the storage taken by a managed pointer or dynamic array.
	PointerSize = 4
	// EnumSize is the storage taken by an enum value.
	EnumSize = 4
)

var modifierSymbols = map[string]PredefinedSymbol{
	"import":         SymImport,
	"_tryimport":     SymImport,
	"managed":        SymManaged,
	"attribute":      SymAttribute,
	"readonly":       SymReadOnly,
	"static":         SymStatic,
	"protected":      SymProtected,
	"internalstring": SymInternalString,
	"autoptr":        SymAutoPtr,
	"noloopcheck":    SymNoLoopCheck,
	"const":          SymConst,
	"builtin":        SymBuiltin,
}

// Modifiers is the set of modifier keywords attached to a declaration.
type Modifiers struct {
	syms []PredefinedSymbol
}

// Add inserts sym, reporting false when it was already present.
func (m *Modifiers) Add(sym PredefinedSymbol) bool {
	if m.Has(sym) {
		return false
	}
	m.syms = append(m.syms, sym)
	return true
}

func (m Modifiers) Has(sym PredefinedSymbol) bool {
	for _, s := range m.syms {
		if s == sym {
			return true
		}
	}
	return false
}

// HasModifier tests membership by keyword text, e.g. "managed".
func (m Modifiers) HasModifier(name string) bool {
	sym, ok := modifierSymbols[name]
	return ok && m.Has(sym)
}

// HasSameModifiers reports whether m and other hold the same set.
func (m Modifiers) HasSameModifiers(other Modifiers) bool {
	if len(m.syms) != len(other.syms) {
		return false
	}
	for _, s := range m.syms {
		if !other.Has(s) {
			return false
		}
	}
	return true
}

// Without returns a copy of m with sym removed.
func (m Modifiers) Without(sym PredefinedSymbol) Modifiers {
	var out Modifiers
	for _, s := range m.syms {
		if s != sym {
			out.syms = append(out.syms, s)
		}
	}
	return out
}

func (m Modifiers) Len() int { return len(m.syms) }

func (m *Modifiers) Clear() { m.syms = m.syms[:0] }

// Clone returns an independent copy.
func (m Modifiers) Clone() Modifiers {
	return Modifiers{syms: append([]PredefinedSymbol(nil), m.syms...)}
}

// ScriptVariable is storage with a type. Size covers every array element.
type ScriptVariable struct {
	Name           string
	Type           TokenID
	Size           int
	ElementSize    int
	IsPointer      bool
	ArraySize      int
	IsDynamicArray bool
	Offset         int
	Modifiers      Modifiers
}

// IsArray reports whether the variable is a fixed or dynamic array.
func (v *ScriptVariable) IsArray() bool {
	return v.ArraySize > 0 || v.IsDynamicArray
}

// FixedOffsetVariable is a global variable or struct member.
type FixedOffsetVariable struct {
	ScriptVariable
	IsAttributeProperty bool
	IsImported          bool
	IsExported          bool
	IsAccessed          bool
	DefaultValue        int32
	ImportIndex         int
}

// Equal compares type, attribute flag, pointer flag and size. Name and
// offset do not take part.
func (v *FixedOffsetVariable) Equal(o *FixedOffsetVariable) bool {
	return v.Type == o.Type &&
		v.IsAttributeProperty == o.IsAttributeProperty &&
		v.IsPointer == o.IsPointer &&
		v.ArraySize == o.ArraySize &&
		v.IsDynamicArray == o.IsDynamicArray &&
		v.ElementSize == o.ElementSize
}

// DataGroup is a tightly packed list of members: each member starts at the
// running byte offset, with no alignment padding.
type DataGroup struct {
	Members     []*FixedOffsetVariable
	SizeInBytes int
}

// Add places v at the end of the group. Imported members take no space.
func (g *DataGroup) Add(v *FixedOffsetVariable) {
	if v.IsImported {
		v.Offset = 0
		v.Size = 0
	} else {
		v.Offset = g.SizeInBytes
		g.SizeInBytes += v.Size
	}
	g.Members = append(g.Members, v)
}

// Member finds a member by name.
func (g *DataGroup) Member(name string) *FixedOffsetVariable {
	for _, m := range g.Members {
		if m.Name == name {
			return m
		}
	}
	return nil
}

// HasNonImportedMemberOfType reports whether some real member has type t.
func (g *DataGroup) HasNonImportedMemberOfType(t TokenID) bool {
	for _, m := range g.Members {
		if !m.IsImported && m.Type == t {
			return true
		}
	}
	return false
}

// ScriptStruct is a user-defined struct type.
type ScriptStruct struct {
	DataGroup
	Name          string
	Token         TokenID
	IsManaged     bool
	Extends       *ScriptStruct
	Modifiers     Modifiers
	PrototypeOnly bool
	Functions     []*ScriptFunction
}

// Function finds a member function, searching parent structs too.
func (s *ScriptStruct) Function(name string) *ScriptFunction {
	for st := s; st != nil; st = st.Extends {
		for _, f := range st.Functions {
			if f.Name == name {
				return f
			}
		}
	}
	return nil
}

// ExtendsChainContains reports whether target is s or one of its ancestors.
func (s *ScriptStruct) ExtendsChainContains(target *ScriptStruct) bool {
	seen := make(map[*ScriptStruct]bool)
	for st := s; st != nil && !seen[st]; st = st.Extends {
		if st == target {
			return true
		}
		seen[st] = true
	}
	return false
}

func (s *ScriptStruct) String() string {
	var sb strings.Builder
	if s.IsManaged {
		sb.WriteString("managed ")
	}
	fmt.Fprintf(&sb, "struct %s", s.Name)
	if s.Extends != nil {
		fmt.Fprintf(&sb, " extends %s", s.Extends.Name)
	}
	fmt.Fprintf(&sb, " (%d bytes)", s.SizeInBytes)
	for _, m := range s.Members {
		fmt.Fprintf(&sb, "\n  %-16s off=%-4d size=%d", m.Name, m.Offset, m.Size)
		if m.IsPointer {
			sb.WriteString(" ptr")
		}
		if m.IsAttributeProperty {
			sb.WriteString(" attribute")
		}
	}
	names := make([]string, 0, len(s.Functions))
	for _, f := range s.Functions {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Fprintf(&sb, "\n  %s()", n)
	}
	return sb.String()
}

// PrototypeState records whether a function has been given a body.
type PrototypeState uint8

const (
	PrototypeUnknown PrototypeState = iota
	PrototypeOnly
	PrototypeDefined
)

// FunctionParameter is one formal parameter. Name is empty for anonymous
// parameters in prototypes.
type FunctionParameter struct {
	Name       string
	Type       TokenID
	IsPointer  bool
	IsArray    bool
	HasDefault bool
	Default    int32
	Modifiers  Modifiers
}

// ScriptFunction is a global or member function.
type ScriptFunction struct {
	Name              string
	Token             TokenID
	ReturnType        TokenID
	ReturnsPointer    bool
	Parameters        []*FunctionParameter
	VariableArguments bool
	Modifiers         Modifiers
	Prototype         PrototypeState
	Owner             *ScriptStruct
	IsImported        bool
	CodeOffset        int
	ImportIndex       int
	Line              int
}

// IsPrototypeOnly reports whether the function has been declared but has
// no body yet.
func (f *ScriptFunction) IsPrototypeOnly() bool {
	return f.Prototype == PrototypeOnly
}

// FullName includes the owning struct, e.g. "Foo::bar".
func (f *ScriptFunction) FullName() string {
	if f.Owner != nil {
		return f.Owner.Name + "::" + f.Name
	}
	return f.Name
}

// SameSignature compares return type, parameter types and the variadic
// flag. Parameter names and default values do not take part.
func (f *ScriptFunction) SameSignature(o *ScriptFunction) bool {
	if f.ReturnType != o.ReturnType || f.ReturnsPointer != o.ReturnsPointer ||
		f.VariableArguments != o.VariableArguments || len(f.Parameters) != len(o.Parameters) {
		return false
	}
	for i, p := range f.Parameters {
		q := o.Parameters[i]
		if p.Type != q.Type || p.IsPointer != q.IsPointer || p.IsArray != q.IsArray {
			return false
		}
	}
	return true
}

// RequiredArgs is the number of leading parameters without a default.
func (f *ScriptFunction) RequiredArgs() int {
	n := len(f.Parameters)
	for n > 0 && f.Parameters[n-1].HasDefault {
		n--
	}
	return n
}

// EnumValue is one named entry of an enum.
type EnumValue struct {
	Name  string
	Value int
}

// ScriptEnum is a named set of integer constants.
type ScriptEnum struct {
	Name   string
	Token  TokenID
	Values []EnumValue
}

// Value looks up an entry by name.
func (e *ScriptEnum) Value(name string) (int, bool) {
	for _, v := range e.Values {
		if v.Name == name {
			return v.Value, true
		}
	}
	return 0, false
}

// LocalVariable lives on the stack. StackOffset is the value of the stack
// pointer, relative to function entry, at which its storage begins;
// parameters have negative offsets.
type LocalVariable struct {
	ScriptVariable
	Token       TokenID
	StackOffset int
	IsParameter bool
}
