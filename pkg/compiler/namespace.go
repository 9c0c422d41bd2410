package compiler

import (
	"fmt"
	"sort"
	"strings"

	"cscript/pkg/bytecode"
)

// Seed is the immutable table of predefined tokens. Build it once with
// NewSeed and hand it to every Namespace; it is never modified afterwards,
// so one Seed can be shared by concurrent compilations.
type Seed struct {
	tokens []Token
}

// NewSeed builds the default token table: punctuation, keywords, operators,
// modifiers and scalar types.
func NewSeed() *Seed {
	s := &Seed{}
	s.tokens = append(s.tokens, Token{Name: "", Kind: KindEndOfStream})

	keyword := func(name string, sym PredefinedSymbol) {
		s.tokens = append(s.tokens, Token{Name: name, Kind: KindKeyword, Symbol: sym})
	}
	modify := func(name string, sym PredefinedSymbol, op bytecode.Opcode) {
		s.tokens = append(s.tokens, Token{
			Name: name, Kind: KindKeyword, Symbol: sym,
			Precedence: ModificationOperatorPrecedence, Opcode: op,
		})
	}
	operator := func(name string, prec int, op bytecode.Opcode, lhs RequiredState) {
		s.tokens = append(s.tokens, Token{
			Name: name, Kind: KindOperator, Precedence: prec, Opcode: op, LeftHandSide: lhs,
		})
	}
	modifier := func(name string, sym PredefinedSymbol, targets ModifierTargets) {
		s.tokens = append(s.tokens, Token{Name: name, Kind: KindModifier, Symbol: sym, Targets: targets})
	}
	scalar := func(name string, size int) *Token {
		s.tokens = append(s.tokens, Token{Name: name, Kind: KindScalarType, SizeInBytes: size, IsVariableType: true})
		return &s.tokens[len(s.tokens)-1]
	}

	keyword("{", SymOpenBrace)
	keyword("}", SymCloseBrace)
	keyword("(", SymOpenParenthesis)
	keyword(")", SymCloseParenthesis)
	keyword("[", SymOpenSquareBracket)
	keyword("]", SymCloseSquareBracket)
	keyword(";", SymSemicolon)
	keyword(",", SymComma)
	keyword(".", SymDot)
	keyword("::", SymMemberOf)
	keyword("...", SymVariableArguments)

	modify("=", SymSetEqual, 0)
	modify("+=", SymPlusEqual, bytecode.OpAddReg)
	modify("-=", SymMinusEqual, bytecode.OpSubReg)
	modify("*=", SymMultiplyEqual, bytecode.OpMulReg)
	modify("/=", SymDivideEqual, bytecode.OpDivReg)
	modify("&=", SymAndEqual, bytecode.OpBitAnd)
	modify("|=", SymOrEqual, bytecode.OpBitOr)
	modify("^=", SymXorEqual, bytecode.OpXorReg)
	modify("<<=", SymShiftLeftEqual, bytecode.OpShiftLeft)
	modify(">>=", SymShiftRightEqual, bytecode.OpShiftRight)
	modify("++", SymPlusPlus, bytecode.OpAdd)
	modify("--", SymMinusMinus, bytecode.OpSub)

	keyword("if", SymIf)
	keyword("else", SymElse)
	keyword("while", SymWhile)
	keyword("do", SymDo)
	keyword("for", SymFor)
	keyword("break", SymBreak)
	keyword("continue", SymContinue)
	keyword("return", SymReturn)
	keyword("struct", SymStruct)
	keyword("enum", SymEnum)
	keyword("export", SymExport)
	keyword("extends", SymExtends)
	keyword("new", SymNew)
	keyword("null", SymNull)
	keyword("this", SymThis)

	operator("!", 1, bytecode.OpNotReg, NotAllowed)
	operator("*", 3, bytecode.OpMulReg, Required)
	operator("/", 3, bytecode.OpDivReg, Required)
	operator("%", 3, bytecode.OpModReg, Required)
	operator("+", 5, bytecode.OpAddReg, Required)
	operator("-", 5, bytecode.OpSubReg, Optional)
	operator("<<", 7, bytecode.OpShiftLeft, Required)
	operator(">>", 7, bytecode.OpShiftRight, Required)
	operator("&", 9, bytecode.OpBitAnd, Required)
	operator("|", 10, bytecode.OpBitOr, Required)
	operator("^", 10, bytecode.OpXorReg, Required)
	operator("==", 12, bytecode.OpIsEqual, Required)
	operator("!=", 12, bytecode.OpNotEqual, Required)
	operator(">", 12, bytecode.OpGreater, Required)
	operator("<", 12, bytecode.OpLessThan, Required)
	operator(">=", 12, bytecode.OpGTE, Required)
	operator("<=", 12, bytecode.OpLTE, Required)
	operator("&&", 18, bytecode.OpAnd, Required)
	operator("||", 19, bytecode.OpOr, Required)

	variables := TargetGlobalVariable | TargetMemberVariable
	functions := TargetGlobalFunction | TargetMemberFunction
	modifier("import", SymImport, variables|functions)
	modifier("_tryimport", SymImport, variables|functions)
	modifier("managed", SymManaged, TargetStruct)
	modifier("attribute", SymAttribute, TargetMemberVariable)
	modifier("readonly", SymReadOnly, variables|TargetLocalVariable)
	modifier("static", SymStatic, TargetMemberVariable|TargetMemberFunction)
	modifier("protected", SymProtected, TargetMemberVariable|TargetMemberFunction)
	modifier("internalstring", SymInternalString, TargetStruct)
	modifier("autoptr", SymAutoPtr, TargetStruct)
	modifier("noloopcheck", SymNoLoopCheck, functions)
	modifier("const", SymConst, TargetParameter)
	modifier("builtin", SymBuiltin, TargetStruct)

	scalar("int", 4)
	scalar("long", 4)
	scalar("function", 4)
	scalar("char", 1)
	scalar("short", 2)
	scalar("float", 4).IsFloat = true
	scalar("string", 4).IsOldString = true
	scalar("void", 0)
	return s
}

// Namespace is the per-unit token arena. Token identity is the handle, and a
// binding made through Define is visible to every holder of that handle.
type Namespace struct {
	tokens []*Token
	byName map[string]TokenID
}

// NewNamespace copies the seed into a fresh arena.
func NewNamespace(seed *Seed) *Namespace {
	ns := &Namespace{
		tokens: make([]*Token, 0, len(seed.tokens)+256),
		byName: make(map[string]TokenID, len(seed.tokens)+256),
	}
	for i := range seed.tokens {
		t := seed.tokens[i]
		id := TokenID(len(ns.tokens))
		ns.tokens = append(ns.tokens, &t)
		if t.Kind != KindEndOfStream {
			ns.byName[t.Name] = id
		}
	}
	return ns
}

// Get returns the record for id. Unknown handles resolve to the end of stream
// record.
func (ns *Namespace) Get(id TokenID) *Token {
	if id < 0 || int(id) >= len(ns.tokens) {
		return ns.tokens[EndOfStream]
	}
	return ns.tokens[id]
}

// Lookup finds a token by name without creating it.
func (ns *Namespace) Lookup(name string) (TokenID, bool) {
	id, ok := ns.byName[name]
	return id, ok
}

// MustLookup finds a predefined token by name.
func (ns *Namespace) MustLookup(name string) TokenID {
	id, ok := ns.byName[name]
	if !ok {
		panic(fmt.Sprintf("compiler: predefined token %q missing", name))
	}
	return id
}

// Intern returns the handle for name, creating a new plain or literal token
// the first time a name is seen.
func (ns *Namespace) Intern(name string) TokenID {
	if id, ok := ns.byName[name]; ok {
		return id
	}
	kind := KindLiteral
	if name != "" && isIdentStart(rune(name[0])) {
		kind = KindPlain
	}
	id := TokenID(len(ns.tokens))
	ns.tokens = append(ns.tokens, &Token{Name: name, Kind: kind})
	ns.byName[name] = id
	return id
}

// newLineMarker allocates an anonymous line number record.
func (ns *Namespace) newLineMarker(unit string, line int) TokenID {
	id := TokenID(len(ns.tokens))
	ns.tokens = append(ns.tokens, &Token{Kind: KindLineNumber, Line: line, Unit: unit})
	return id
}

// Names returns every interned name, sorted, for debugging dumps.
func (ns *Namespace) Names() []string {
	names := make([]string, 0, len(ns.byName))
	for n := range ns.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Text joins the names of ids with single spaces.
func (ns *Namespace) Text(ids []TokenID) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, ns.Get(id).String())
	}
	return strings.Join(parts, " ")
}
