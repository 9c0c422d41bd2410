package compiler

import (
	"errors"
	"strings"
	"testing"
)

func newTestReader(lines ...string) (*Namespace, *ScriptReader) {
	ns := NewNamespace(NewSeed())
	src := make([]SourceLine, len(lines))
	for i, l := range lines {
		src[i] = SourceLine{Unit: "test", Line: i + 1, Text: l}
	}
	return ns, NewScriptReader(ns, Tokenize(ns, src, nil))
}

func TestScriptReaderLinesAndDepth(t *testing.T) {
	_, r := newTestReader("void f() {", "", "  int a;", "}")

	var names []string
	var lines []int
	for !r.AtEnd() {
		tok := r.Read()
		names = append(names, tok.Name)
		lines = append(lines, r.Line())
		if tok.Name == "int" && r.Depth() != 1 {
			t.Errorf("depth inside body = %d, want 1", r.Depth())
		}
	}
	if got := strings.Join(names, " "); got != "void f ( ) { int a ; }" {
		t.Errorf("tokens = %q", got)
	}
	if lines[5] != 3 || lines[len(lines)-1] != 4 {
		t.Errorf("lines = %v", lines)
	}
	if r.Depth() != 0 {
		t.Errorf("final depth = %d", r.Depth())
	}
	if r.ReadNext() != EndOfStream || r.ReadNext() != EndOfStream {
		t.Errorf("reading past the end does not keep returning EndOfStream")
	}
}

func TestScriptReaderLocations(t *testing.T) {
	ns, r := newTestReader("a b", "{ c")
	r.ReadNext()
	r.PushLocation()
	r.ReadNext()
	r.ReadNext()
	if r.Depth() != 1 || r.Line() != 2 {
		t.Fatalf("before pop: depth %d line %d", r.Depth(), r.Line())
	}
	r.PopLocation()
	if r.Depth() != 0 || r.Line() != 1 || ns.Get(r.Last()).Name != "a" {
		t.Errorf("after pop: depth %d line %d last %q", r.Depth(), r.Line(), ns.Get(r.Last()).Name)
	}
	if r.Read().Name != "b" {
		t.Errorf("reader did not resume after 'a'")
	}

	r.PushLocation()
	r.ReadNext()
	r.DeletePushedLocation()
	if r.Read().Name != "c" {
		t.Errorf("DeletePushedLocation moved the reader")
	}
}

func TestScriptReaderExpect(t *testing.T) {
	_, r := newTestReader("( x")
	if err := r.ExpectKeyword(SymOpenParenthesis); err != nil {
		t.Fatalf("ExpectKeyword: %v", err)
	}
	err := r.ExpectKeyword(SymSemicolon, SymComma)
	var m *Message
	if !errors.As(err, &m) || m.Code != UnexpectedToken {
		t.Fatalf("ExpectKeyword mismatch = %v", err)
	}
	if !strings.Contains(m.Text, "';' or ','") {
		t.Errorf("message %q does not list the expected symbols", m.Text)
	}
	r.ReadNext()
	if err := r.ExpectKeyword(SymSemicolon); !errors.As(err, &m) || m.Code != EndOfInputReached {
		t.Errorf("ExpectKeyword at end = %v", err)
	}
}

func TestScriptReaderTypedReads(t *testing.T) {
	ns, r := newTestReader("int 5 -3 K x x g")
	ns.Get(ns.MustLookup("K")).DefineConstant(9)
	g := ns.Get(ns.MustLookup("g"))
	g.DefineGlobal(&FixedOffsetVariable{})

	if _, err := r.ReadNextAsVariableType(); err != nil {
		t.Errorf("ReadNextAsVariableType: %v", err)
	}
	for _, want := range []int{5, -3, 9} {
		v, err := r.ReadNextAsConstInt()
		if err != nil || v != want {
			t.Errorf("ReadNextAsConstInt = %d, %v; want %d", v, err, want)
		}
	}
	if _, err := r.ReadNextAsConstInt(); err == nil {
		t.Errorf("ReadNextAsConstInt accepted an identifier")
	}
	ns.Get(ns.MustLookup("x")).DefineConstant(1)
	if _, err := r.ReadNextUndefined(); err == nil {
		t.Errorf("ReadNextUndefined accepted a defined name")
	}
	if _, err := r.ReadNextAsGlobalVariable(); err != nil {
		t.Errorf("ReadNextAsGlobalVariable: %v", err)
	}
}

func TestScriptReaderReadExpression(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		stops []PredefinedSymbol
		want  string
		code  ErrorCode
	}{
		{"to semicolon", "a + f(b, c); d", []PredefinedSymbol{SymSemicolon}, "a + f ( b , c )", ErrNone},
		{"to comma outside brackets", "x[1, 2], y", []PredefinedSymbol{SymComma}, "x [ 1 , 2 ]", ErrNone},
		{"to closing paren", "a * (b) ) z", []PredefinedSymbol{SymCloseParenthesis}, "a * ( b )", ErrNone},
		{"end of input", "a + b", []PredefinedSymbol{SymSemicolon}, "", EndOfInputReached},
		{"unbalanced", "a ) ;", []PredefinedSymbol{SymSemicolon}, "", MismatchedBracket},
		{"brace", "a { ;", []PredefinedSymbol{SymSemicolon}, "", UnexpectedToken},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ns, r := newTestReader(tc.text)
			toks, err := r.ReadExpression(tc.stops...)
			if tc.code != ErrNone {
				var m *Message
				if !errors.As(err, &m) || m.Code != tc.code {
					t.Errorf("error = %v, want %s", err, tc.code)
				}
				return
			}
			if err != nil {
				t.Fatalf("ReadExpression: %v", err)
			}
			if got := ns.Text(toks); got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
			if !r.Peek().IsKeyword(tc.stops[0]) {
				t.Errorf("stop token %q was consumed", r.Peek().Name)
			}
		})
	}
}

func TestScriptReaderContinueExpression(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
		code ErrorCode
	}{
		{"plain first token", "a = 2 ; b", "a = 2", ErrNone},
		{"parenthesised first token", "( a ) = 2 ;", "( a ) = 2", ErrNone},
		{"bracket closed later", "( a + 1 ) * 2 ;", "( a + 1 ) * 2", ErrNone},
		{"stray close", "a ) ;", "", MismatchedBracket},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ns, r := newTestReader(tc.text)
			toks, err := r.ContinueExpression(r.ReadNext(), SymSemicolon)
			if tc.code != ErrNone {
				var m *Message
				if !errors.As(err, &m) || m.Code != tc.code {
					t.Errorf("error = %v, want %s", err, tc.code)
				}
				return
			}
			if err != nil {
				t.Fatalf("ContinueExpression: %v", err)
			}
			if got := ns.Text(toks); got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
			if !r.Peek().IsKeyword(SymSemicolon) {
				t.Errorf("stop token %q was consumed", r.Peek().Name)
			}
		})
	}
}

func TestScopeStack(t *testing.T) {
	var s ScopeStack
	if s.Current() != nil {
		t.Errorf("empty stack has a current scope")
	}
	a := &LocalVariable{ScriptVariable: ScriptVariable{Name: "a"}}
	b := &LocalVariable{ScriptVariable: ScriptVariable{Name: "b"}}
	outer := s.Push()
	outer.Members = append(outer.Members, a)
	inner := s.Push()
	inner.Members = append(inner.Members, b)

	if s.Depth() != 2 {
		t.Errorf("Depth = %d", s.Depth())
	}
	if all := s.All(); len(all) != 2 || all[0] != a || all[1] != b {
		t.Errorf("All = %v", all)
	}
	if above := s.Above(1); len(above) != 1 || above[0].Members[0] != b {
		t.Errorf("Above(1) = %v", above)
	}
	if s.Above(2) != nil {
		t.Errorf("Above(depth) should be empty")
	}
	if _, err := s.Pop(); err != nil {
		t.Errorf("Pop: %v", err)
	}
	s.Reset()
	if _, err := s.Pop(); err == nil {
		t.Errorf("Pop on empty stack succeeded")
	}
}

func TestCompilerStateModifiers(t *testing.T) {
	var st CompilerState
	if !st.NextTokenModifiers.Add(SymManaged) || st.NextTokenModifiers.Add(SymManaged) {
		t.Errorf("Add did not report duplicates")
	}
	st.NextTokenModifiers.Add(SymImport)
	if !st.IsModifierPresent(SymImport) {
		t.Errorf("import not present")
	}
	m := st.TakeModifiers()
	if st.NextTokenModifiers.Len() != 0 {
		t.Errorf("TakeModifiers did not clear")
	}
	if !m.HasModifier("managed") || m.HasModifier("static") {
		t.Errorf("taken modifiers = %v", m)
	}
	other := Modifiers{}
	other.Add(SymImport)
	other.Add(SymManaged)
	if !m.HasSameModifiers(other) {
		t.Errorf("same sets in different order compare unequal")
	}
	if m.Without(SymImport).HasSameModifiers(other) {
		t.Errorf("Without did not remove the modifier")
	}
}
