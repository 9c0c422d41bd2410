package compiler

import (
	"fmt"
	"strconv"
	"strings"

	"cscript/pkg/bytecode"
)

// TokenID is a handle into a Namespace arena. Two handles are equal exactly
// when they name the same token record.
type TokenID int32

// EndOfStream is the reserved handle that terminates every token stream.
const EndOfStream TokenID = 0

// TokenKind tags the variant payload a Token carries.
type TokenKind uint8

const (
	KindPlain TokenKind = iota // identifier, meaning comes from its binding
	KindLiteral
	KindKeyword
	KindOperator
	KindModifier
	KindScalarType
	KindLineNumber
	KindEndOfStream
)

var kindNames = [...]string{"plain", "literal", "keyword", "operator", "modifier", "scalar", "line", "eos"}

func (k TokenKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("TokenKind(%d)", uint8(k))
}

// BoundType is the semantic kind a token has been bound to by Define.
type BoundType uint8

const (
	Unbound BoundType = iota
	BoundConstant
	BoundEnumType
	BoundStructType
	BoundGlobalVariable
	BoundLocalVariable
	BoundFunction
)

var boundNames = [...]string{"unbound", "constant", "enum", "struct", "global", "local", "function"}

func (b BoundType) String() string {
	if int(b) < len(boundNames) {
		return boundNames[b]
	}
	return fmt.Sprintf("BoundType(%d)", uint8(b))
}

// RequiredState says whether an operator takes a left-hand operand.
type RequiredState uint8

const (
	Required RequiredState = iota
	Optional
	NotAllowed
)

// PredefinedSymbol names the keywords and modifiers of the language.
type PredefinedSymbol int

const (
	SymNone PredefinedSymbol = iota

	SymOpenBrace
	SymCloseBrace
	SymOpenParenthesis
	SymCloseParenthesis
	SymOpenSquareBracket
	SymCloseSquareBracket
	SymSemicolon
	SymComma
	SymDot
	SymMemberOf
	SymVariableArguments

	SymSetEqual
	SymPlusEqual
	SymMinusEqual
	SymMultiplyEqual
	SymDivideEqual
	SymAndEqual
	SymOrEqual
	SymXorEqual
	SymShiftLeftEqual
	SymShiftRightEqual
	SymPlusPlus
	SymMinusMinus

	SymIf
	SymElse
	SymWhile
	SymDo
	SymFor
	SymBreak
	SymContinue
	SymReturn

	SymStruct
	SymEnum
	SymExport
	SymExtends
	SymNew
	SymNull
	SymThis

	SymImport
	SymManaged
	SymAttribute
	SymReadOnly
	SymStatic
	SymProtected
	SymInternalString
	SymAutoPtr
	SymNoLoopCheck
	SymConst
	SymBuiltin
)

// ModifierTargets is a bitmask of the declaration kinds a modifier may
// decorate.
type ModifierTargets uint16

const (
	TargetGlobalVariable ModifierTargets = 1 << iota
	TargetMemberVariable
	TargetLocalVariable
	TargetGlobalFunction
	TargetMemberFunction
	TargetStruct
	TargetParameter
)

// ModificationOperatorPrecedence ranks assignment-like keywords above every
// ordinary operator, so they are always chosen as the split point.
const ModificationOperatorPrecedence = 100

// Token is one record of the namespace arena. The fields after the common
// block are only meaningful for the matching Kind.
type Token struct {
	Name           string
	Kind           TokenKind
	Defined        bool
	Type           BoundType
	IsVariableType bool
	ArraySize      int
	IsDynamicArray bool

	// keyword, modifier
	Symbol PredefinedSymbol
	// keyword (modification operators) and operator
	Precedence   int
	Opcode       bytecode.Opcode
	LeftHandSide RequiredState
	// modifier
	Targets ModifierTargets
	// scalar type
	SizeInBytes int
	IsOldString bool
	IsFloat     bool
	// line number marker
	Line int
	Unit string

	constant   int
	enumType   *ScriptEnum
	structType *ScriptStruct
	variable   *FixedOffsetVariable
	local      *LocalVariable
	function   *ScriptFunction
}

func (t *Token) String() string {
	switch t.Kind {
	case KindLineNumber:
		return fmt.Sprintf("<line %d>", t.Line)
	case KindEndOfStream:
		return "<end>"
	}
	return t.Name
}

// IsModificationOperator reports whether t is an assignment-like keyword.
func (t *Token) IsModificationOperator() bool {
	return t.Kind == KindKeyword && t.Symbol >= SymSetEqual && t.Symbol <= SymMinusMinus
}

// IsOperator reports whether t can be chosen as an expression split point.
func (t *Token) IsOperator() bool {
	return t.Kind == KindOperator || t.IsModificationOperator()
}

// IsKeyword reports whether t is the keyword sym.
func (t *Token) IsKeyword(sym PredefinedSymbol) bool {
	return t.Kind == KindKeyword && t.Symbol == sym
}

// IsArray reports whether the token was declared with an array suffix.
func (t *Token) IsArray() bool {
	return t.ArraySize > 0 || t.IsDynamicArray
}

// IsStringLiteral reports whether t is a double-quoted literal.
func (t *Token) IsStringLiteral() bool {
	return t.Kind == KindLiteral && strings.HasPrefix(t.Name, "\"")
}

// StringValue returns the unquoted content of a string literal.
func (t *Token) StringValue() (string, error) {
	if !t.IsStringLiteral() {
		return "", internalError("token %q is not a string literal", t.Name)
	}
	s, err := strconv.Unquote(t.Name)
	if err != nil {
		return strings.Trim(t.Name, "\""), nil
	}
	return s, nil
}

// IntValue parses a decimal or hexadecimal integer literal.
func (t *Token) IntValue() (int, bool) {
	if t.Kind != KindLiteral {
		return 0, false
	}
	s, base := t.Name, 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s, base = s[2:], 16
	}
	v, err := strconv.ParseInt(s, base, 64)
	if err != nil {
		return 0, false
	}
	return int(int32(v)), true
}

// FloatValue parses a floating point literal such as 1.5.
func (t *Token) FloatValue() (float32, bool) {
	if t.Kind != KindLiteral || !strings.Contains(t.Name, ".") {
		return 0, false
	}
	v, err := strconv.ParseFloat(t.Name, 32)
	if err != nil {
		return 0, false
	}
	return float32(v), true
}

func (t *Token) bind(b BoundType) {
	t.Defined = true
	t.Type = b
	t.constant = 0
	t.enumType = nil
	t.structType = nil
	t.variable = nil
	t.local = nil
	t.function = nil
}

// DefineConstant binds t to an integer constant, such as an enum entry.
func (t *Token) DefineConstant(v int) {
	t.bind(BoundConstant)
	t.constant = v
}

// DefineEnum binds t to an enum type.
func (t *Token) DefineEnum(e *ScriptEnum) {
	t.bind(BoundEnumType)
	t.enumType = e
	t.IsVariableType = true
}

// DefineStruct binds t to a struct type.
func (t *Token) DefineStruct(s *ScriptStruct) {
	t.bind(BoundStructType)
	t.structType = s
	t.IsVariableType = true
}

// DefineGlobal binds t to a fixed-offset global variable.
func (t *Token) DefineGlobal(v *FixedOffsetVariable) {
	t.bind(BoundGlobalVariable)
	t.variable = v
}

// DefineLocal binds t to a stack variable.
func (t *Token) DefineLocal(v *LocalVariable) {
	t.bind(BoundLocalVariable)
	t.local = v
}

// DefineFunction binds t to a function.
func (t *Token) DefineFunction(f *ScriptFunction) {
	t.bind(BoundFunction)
	t.function = f
}

// Undefine clears the binding, returning t to a plain identifier.
func (t *Token) Undefine() {
	t.bind(Unbound)
	t.Defined = false
	t.IsVariableType = false
	t.ArraySize = 0
	t.IsDynamicArray = false
}

func (t *Token) wrongBinding(want BoundType) error {
	return internalError("token %q is bound as %s, not %s", t.Name, t.Type, want)
}

// Constant returns the integer a BoundConstant token stands for.
func (t *Token) Constant() (int, error) {
	if t.Type != BoundConstant {
		return 0, t.wrongBinding(BoundConstant)
	}
	return t.constant, nil
}

// Enum returns the enum a BoundEnumType token stands for.
func (t *Token) Enum() (*ScriptEnum, error) {
	if t.Type != BoundEnumType {
		return nil, t.wrongBinding(BoundEnumType)
	}
	return t.enumType, nil
}

// Struct returns the struct a BoundStructType token stands for.
func (t *Token) Struct() (*ScriptStruct, error) {
	if t.Type != BoundStructType {
		return nil, t.wrongBinding(BoundStructType)
	}
	return t.structType, nil
}

// Global returns the variable a BoundGlobalVariable token stands for.
func (t *Token) Global() (*FixedOffsetVariable, error) {
	if t.Type != BoundGlobalVariable {
		return nil, t.wrongBinding(BoundGlobalVariable)
	}
	return t.variable, nil
}

// Local returns the variable a BoundLocalVariable token stands for.
func (t *Token) Local() (*LocalVariable, error) {
	if t.Type != BoundLocalVariable {
		return nil, t.wrongBinding(BoundLocalVariable)
	}
	return t.local, nil
}

// Function returns the function a BoundFunction token stands for.
func (t *Token) Function() (*ScriptFunction, error) {
	if t.Type != BoundFunction {
		return nil, t.wrongBinding(BoundFunction)
	}
	return t.function, nil
}
