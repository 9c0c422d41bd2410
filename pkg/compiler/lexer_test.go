package compiler

import (
	"reflect"
	"testing"
)

func tokenizeLine(text string) ([]string, *Results) {
	ns := NewNamespace(NewSeed())
	results := &Results{}
	stream := Tokenize(ns, []SourceLine{{Unit: "test", Line: 1, Text: text}}, results)
	var out []string
	for _, id := range stream {
		t := ns.Get(id)
		if t.Kind == KindLineNumber || t.Kind == KindEndOfStream {
			continue
		}
		out = append(out, t.Name)
	}
	return out, results
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"declaration", "int x = 0x1F + 'a';", []string{"int", "x", "=", "0x1F", "+", "97", ";"}},
		{"longest punctuator", "a<<=b>>c", []string{"a", "<<=", "b", ">>", "c"}},
		{"float and string", `f(1.5, "hi\n")`, []string{"f", "(", "1.5", ",", `"hi\n"`, ")"}},
		{"member access", "a.b[2]", []string{"a", ".", "b", "[", "2", "]"}},
		{"number then dot", "1.x", []string{"1", ".", "x"}},
		{"scope", "S::f()", []string{"S", "::", "f", "(", ")"}},
		{"variadic", "f(int a, ...)", []string{"f", "(", "int", "a", ",", "...", ")"}},
		{"escaped char", `'\n'`, []string{"10"}},
		{"logic", "!a&&b||c!=d", []string{"!", "a", "&&", "b", "||", "c", "!=", "d"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, results := tokenizeLine(tc.text)
			if results.HasErrors() {
				t.Fatalf("unexpected errors: %v", results.Err())
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestTokenizeErrors(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"stray character", "a @ b", []string{"a", "b"}},
		{"unterminated string", `x = "abc`, []string{"x", "="}},
		{"bad escape", `'\q'`, nil},
		{"empty char", "''", nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, results := tokenizeLine(tc.text)
			if !hasCode(results, UnexpectedToken) {
				t.Errorf("expected UnexpectedToken, got %v", results.Messages)
			}
			if len(tc.want) > 0 && !reflect.DeepEqual(got[:len(tc.want)], tc.want) {
				t.Errorf("tokens before error = %q, want %q", got, tc.want)
			}
			if errs := results.Errors(); len(errs) > 0 && errs[0].Line != 1 {
				t.Errorf("error on line %d, want 1", errs[0].Line)
			}
		})
	}
}

func TestTokenizeLineMarkers(t *testing.T) {
	ns := NewNamespace(NewSeed())
	lines := []SourceLine{
		{Unit: "u", Line: 1, Text: "a;"},
		{Unit: "u", Line: 2, Text: ""},
		{Unit: "u", Line: 3, Text: "b;"},
	}
	stream := Tokenize(ns, lines, nil)
	if len(stream) != 7 {
		t.Fatalf("stream has %d tokens, want 7: %s", len(stream), ns.Text(stream))
	}
	if stream[len(stream)-1] != EndOfStream {
		t.Errorf("stream does not end with EndOfStream")
	}
	var markers []int
	for _, id := range stream {
		if tok := ns.Get(id); tok.Kind == KindLineNumber {
			markers = append(markers, tok.Line)
		}
	}
	if !reflect.DeepEqual(markers, []int{1, 3}) {
		t.Errorf("line markers = %v, want [1 3]", markers)
	}
}

func TestTokenizeInternsOnce(t *testing.T) {
	ns := NewNamespace(NewSeed())
	stream := Tokenize(ns, []SourceLine{{Line: 1, Text: "foo = foo + 1;"}}, nil)
	if stream[1] != stream[3] {
		t.Errorf("identical names interned to different handles")
	}
	if ns.Get(stream[1]).Kind != KindPlain {
		t.Errorf("identifier kind = %s", ns.Get(stream[1]).Kind)
	}
	if ns.Get(stream[5]).Kind != KindLiteral {
		t.Errorf("number kind = %s", ns.Get(stream[5]).Kind)
	}
}
