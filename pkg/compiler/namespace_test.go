package compiler

import (
	"testing"
)

func TestNamespaceSeed(t *testing.T) {
	ns := NewNamespace(NewSeed())

	tests := []struct {
		name string
		kind TokenKind
	}{
		{"if", KindKeyword},
		{"+", KindOperator},
		{"=", KindKeyword},
		{"managed", KindModifier},
		{"int", KindScalarType},
		{"float", KindScalarType},
	}
	for _, tc := range tests {
		id, ok := ns.Lookup(tc.name)
		if !ok {
			t.Errorf("%q not predefined", tc.name)
			continue
		}
		if k := ns.Get(id).Kind; k != tc.kind {
			t.Errorf("%q kind = %s, want %s", tc.name, k, tc.kind)
		}
	}

	if !ns.Get(ns.MustLookup("=")).IsModificationOperator() {
		t.Errorf("'=' is not a modification operator")
	}
	if ns.Get(ns.MustLookup("+")).IsModificationOperator() {
		t.Errorf("'+' is a modification operator")
	}
	if !ns.Get(ns.MustLookup("float")).IsFloat {
		t.Errorf("float scalar is not flagged as float")
	}
	if ns.Get(ns.MustLookup("char")).SizeInBytes != 1 {
		t.Errorf("char size = %d", ns.Get(ns.MustLookup("char")).SizeInBytes)
	}
	if ns.Get(ns.MustLookup("&&")).Precedence <= ns.Get(ns.MustLookup("==")).Precedence {
		t.Errorf("&& binds tighter than ==")
	}
}

func TestNamespaceIsolation(t *testing.T) {
	seed := NewSeed()
	a := NewNamespace(seed)
	b := NewNamespace(seed)

	idA := a.Intern("counter")
	a.Get(idA).DefineConstant(3)
	a.Get(a.MustLookup("int")).ArraySize = 5

	if _, ok := b.Lookup("counter"); ok {
		t.Errorf("name interned in one namespace is visible in another")
	}
	if b.Get(b.MustLookup("int")).ArraySize != 0 {
		t.Errorf("seed token modified through a namespace")
	}
	if NewNamespace(seed).Get(NewNamespace(seed).MustLookup("int")).ArraySize != 0 {
		t.Errorf("seed modified")
	}
}

func TestNamespaceIntern(t *testing.T) {
	ns := NewNamespace(NewSeed())
	id := ns.Intern("value")
	if again := ns.Intern("value"); again != id {
		t.Errorf("Intern returned %d then %d", id, again)
	}
	if ns.Get(id).Kind != KindPlain {
		t.Errorf("identifier kind = %s", ns.Get(id).Kind)
	}
	if ns.Get(ns.Intern("42")).Kind != KindLiteral {
		t.Errorf("number is not a literal")
	}
	if ns.Get(9999).Kind != KindEndOfStream {
		t.Errorf("unknown handle does not resolve to end of stream")
	}
	if got := ns.Text([]TokenID{ns.MustLookup("int"), id, ns.MustLookup(";")}); got != "int value ;" {
		t.Errorf("Text = %q", got)
	}
}

func TestTokenBinding(t *testing.T) {
	ns := NewNamespace(NewSeed())
	tok := ns.Get(ns.Intern("thing"))

	tok.DefineConstant(7)
	if v, err := tok.Constant(); err != nil || v != 7 {
		t.Errorf("Constant() = %d, %v", v, err)
	}
	if _, err := tok.Global(); err == nil {
		t.Errorf("Global() on a constant should fail")
	}

	s := &ScriptStruct{Name: "thing"}
	tok.DefineStruct(s)
	if got, err := tok.Struct(); err != nil || got != s {
		t.Errorf("Struct() = %v, %v", got, err)
	}
	if !tok.IsVariableType {
		t.Errorf("struct token is not a variable type")
	}
	if _, err := tok.Constant(); err == nil {
		t.Errorf("old binding survived rebinding")
	}

	tok.Undefine()
	if tok.Defined || tok.IsVariableType || tok.Type != Unbound {
		t.Errorf("Undefine left %+v", tok)
	}
}

func TestTokenLiteralValues(t *testing.T) {
	ns := NewNamespace(NewSeed())
	tests := []struct {
		name    string
		intVal  int
		intOK   bool
		floatOK bool
	}{
		{"42", 42, true, false},
		{"0x10", 16, true, false},
		{"1.5", 0, false, true},
		{"abc", 0, false, false},
	}
	for _, tc := range tests {
		tok := ns.Get(ns.Intern(tc.name))
		v, ok := tok.IntValue()
		if ok != tc.intOK || (ok && v != tc.intVal) {
			t.Errorf("%q IntValue = %d, %v", tc.name, v, ok)
		}
		if _, ok := tok.FloatValue(); ok != tc.floatOK {
			t.Errorf("%q FloatValue ok = %v", tc.name, ok)
		}
	}

	str := ns.Get(ns.Intern(`"a\tb"`))
	if s, err := str.StringValue(); err != nil || s != "a\tb" {
		t.Errorf("StringValue = %q, %v", s, err)
	}
}
