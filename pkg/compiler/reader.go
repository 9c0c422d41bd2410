package compiler

import "strings"

type readerLocation struct {
	pos, line, depth int
	unit             string
	last             TokenID
}

// ScriptReader is a cursor over a token stream. Line number markers are
// consumed transparently and update Line and Unit.
type ScriptReader struct {
	ns     *Namespace
	stream []TokenID
	pos    int
	line   int
	unit   string
	depth  int // brace nesting of the tokens read so far
	last   TokenID
	saved  []readerLocation
}

func NewScriptReader(ns *Namespace, stream []TokenID) *ScriptReader {
	return &ScriptReader{ns: ns, stream: stream}
}

// newExpressionReader reads a sub-range of tokens, reporting line for every
// position.
func newExpressionReader(ns *Namespace, tokens []TokenID, line int, unit string) *ScriptReader {
	return &ScriptReader{ns: ns, stream: tokens, line: line, unit: unit}
}

func (r *ScriptReader) Line() int    { return r.line }
func (r *ScriptReader) Unit() string { return r.unit }
func (r *ScriptReader) Depth() int   { return r.depth }

// Last returns the most recently read token.
func (r *ScriptReader) Last() TokenID { return r.last }

// peek returns the next non-marker token plus the position and line it
// would leave the reader at.
func (r *ScriptReader) peek() (TokenID, int, int, string) {
	pos, line, unit := r.pos, r.line, r.unit
	for pos < len(r.stream) {
		id := r.stream[pos]
		t := r.ns.Get(id)
		if t.Kind != KindLineNumber {
			return id, pos + 1, line, unit
		}
		line, unit = t.Line, t.Unit
		pos++
	}
	return EndOfStream, pos, line, unit
}

// PeekNext returns the next token without consuming it.
func (r *ScriptReader) PeekNext() TokenID {
	id, _, _, _ := r.peek()
	return id
}

// Peek returns the record of the next token without consuming it.
func (r *ScriptReader) Peek() *Token {
	return r.ns.Get(r.PeekNext())
}

// ReadNext consumes and returns the next token. At the end of the stream it
// keeps returning EndOfStream.
func (r *ScriptReader) ReadNext() TokenID {
	id, pos, line, unit := r.peek()
	if id == EndOfStream {
		r.pos, r.line, r.unit = pos, line, unit
		return EndOfStream
	}
	r.pos, r.line, r.unit = pos, line, unit
	t := r.ns.Get(id)
	switch {
	case t.IsKeyword(SymOpenBrace):
		r.depth++
	case t.IsKeyword(SymCloseBrace):
		r.depth--
	}
	r.last = id
	return id
}

// Read consumes the next token and returns its record.
func (r *ScriptReader) Read() *Token {
	return r.ns.Get(r.ReadNext())
}

// AtEnd reports whether only markers remain.
func (r *ScriptReader) AtEnd() bool {
	return r.PeekNext() == EndOfStream
}

func (r *ScriptReader) PushLocation() {
	r.saved = append(r.saved, readerLocation{r.pos, r.line, r.depth, r.unit, r.last})
}

func (r *ScriptReader) PopLocation() {
	n := len(r.saved) - 1
	loc := r.saved[n]
	r.saved = r.saved[:n]
	r.pos, r.line, r.depth, r.unit, r.last = loc.pos, loc.line, loc.depth, loc.unit, loc.last
}

func (r *ScriptReader) DeletePushedLocation() {
	r.saved = r.saved[:len(r.saved)-1]
}

// NextIsKeyword consumes the next token if it is the keyword sym.
func (r *ScriptReader) NextIsKeyword(sym PredefinedSymbol) bool {
	if r.Peek().IsKeyword(sym) {
		r.ReadNext()
		return true
	}
	return false
}

// PeekIsKeyword reports whether the next token is the keyword sym.
func (r *ScriptReader) PeekIsKeyword(sym PredefinedSymbol) bool {
	return r.Peek().IsKeyword(sym)
}

func (r *ScriptReader) unexpected(t *Token) *Message {
	if t.Kind == KindEndOfStream {
		return newError(EndOfInputReached, "Unexpected end of script")
	}
	return newError(UnexpectedToken, "Unexpected '%s'", t.Name)
}

// ExpectKeyword consumes the next token, which must be one of syms.
func (r *ScriptReader) ExpectKeyword(syms ...PredefinedSymbol) error {
	t := r.Peek()
	for _, s := range syms {
		if t.IsKeyword(s) {
			r.ReadNext()
			return nil
		}
	}
	if t.Kind == KindEndOfStream {
		return newError(EndOfInputReached, "Unexpected end of script")
	}
	names := make([]string, 0, len(syms))
	for _, s := range syms {
		names = append(names, "'"+symbolText(s)+"'")
	}
	return newError(UnexpectedToken, "Unexpected '%s'; was expecting %s", t.Name, strings.Join(names, " or "))
}

// ReadNextAsVariableType consumes a type name.
func (r *ScriptReader) ReadNextAsVariableType() (TokenID, error) {
	id := r.ReadNext()
	t := r.ns.Get(id)
	if !t.IsVariableType {
		if t.Kind == KindEndOfStream {
			return id, r.unexpected(t)
		}
		return id, newError(VariableTypeExpected, "Variable type expected at '%s'", t.Name)
	}
	return id, nil
}

// ReadNextAsGlobalVariable consumes the name of an already defined global.
func (r *ScriptReader) ReadNextAsGlobalVariable() (TokenID, error) {
	id := r.ReadNext()
	t := r.ns.Get(id)
	if t.Type != BoundGlobalVariable {
		return id, newError(GlobalVariableExpected, "Global variable expected at '%s'; it must be defined first", t.Name)
	}
	return id, nil
}

// ReadNextAsConstInt consumes an integer literal, optionally negated, or a
// constant such as an enum entry.
func (r *ScriptReader) ReadNextAsConstInt() (int, error) {
	negative := false
	t := r.Read()
	if t.Kind == KindOperator && t.Name == "-" {
		negative = true
		t = r.Read()
	}
	v, ok := 0, false
	if t.Type == BoundConstant {
		v, _ = t.Constant()
		ok = true
	} else {
		v, ok = t.IntValue()
	}
	if !ok {
		if t.Kind == KindEndOfStream {
			return 0, r.unexpected(t)
		}
		return 0, newError(ConstIntExpected, "A constant integer was expected at '%s'", t.Name)
	}
	if negative {
		v = -v
	}
	return v, nil
}

// ReadNextUndefined consumes a name that must not be bound yet.
func (r *ScriptReader) ReadNextUndefined() (TokenID, error) {
	id := r.ReadNext()
	t := r.ns.Get(id)
	if t.Kind != KindPlain {
		return id, r.unexpected(t)
	}
	if t.Defined {
		return id, newError(TokenAlreadyDefined, "Token '%s' is already defined", t.Name)
	}
	return id, nil
}

// IgnoreAsteriskIfPresent consumes a '*' pointer marker and reports whether
// there was one.
func (r *ScriptReader) IgnoreAsteriskIfPresent() bool {
	t := r.Peek()
	if t.Kind == KindOperator && t.Name == "*" {
		r.ReadNext()
		return true
	}
	return false
}

// ReadExpression collects tokens up to, but not including, the first
// token at bracket level zero that is one of stops. It fails on a
// premature end of input or an unbalanced closing bracket.
func (r *ScriptReader) ReadExpression(stops ...PredefinedSymbol) ([]TokenID, error) {
	return r.readExpression(nil, 0, stops)
}

// ContinueExpression is ReadExpression for an expression whose first token
// has already been read. The result starts with first.
func (r *ScriptReader) ContinueExpression(first TokenID, stops ...PredefinedSymbol) ([]TokenID, error) {
	level := 0
	if isOpenBracket(r.ns.Get(first)) {
		level = 1
	}
	return r.readExpression([]TokenID{first}, level, stops)
}

func (r *ScriptReader) readExpression(out []TokenID, level int, stops []PredefinedSymbol) ([]TokenID, error) {
	for {
		t := r.Peek()
		if t.Kind == KindEndOfStream {
			return out, newError(EndOfInputReached, "End of input reached in middle of expression")
		}
		if level == 0 {
			for _, s := range stops {
				if t.IsKeyword(s) {
					return out, nil
				}
			}
		}
		switch {
		case isOpenBracket(t):
			level++
		case isCloseBracket(t):
			level--
			if level < 0 {
				return out, newError(MismatchedBracket, "Unexpected '%s'", t.Name)
			}
		case t.IsKeyword(SymOpenBrace), t.IsKeyword(SymCloseBrace), t.IsKeyword(SymSemicolon):
			return out, r.unexpected(t)
		}
		out = append(out, r.ReadNext())
	}
}

func symbolText(s PredefinedSymbol) string {
	switch s {
	case SymOpenBrace:
		return "{"
	case SymCloseBrace:
		return "}"
	case SymOpenParenthesis:
		return "("
	case SymCloseParenthesis:
		return ")"
	case SymOpenSquareBracket:
		return "["
	case SymCloseSquareBracket:
		return "]"
	case SymSemicolon:
		return ";"
	case SymComma:
		return ","
	case SymDot:
		return "."
	case SymSetEqual:
		return "="
	}
	return "symbol"
}
