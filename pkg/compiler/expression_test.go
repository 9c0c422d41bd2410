package compiler

import (
	"reflect"
	"testing"
)

// exprTokens tokenizes text and drops the line marker and end of stream.
func exprTokens(ns *Namespace, text string) []TokenID {
	stream := Tokenize(ns, []SourceLine{{Line: 1, Text: text}}, nil)
	return stream[1 : len(stream)-1]
}

func TestSplitExpression(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"a", "a"},
		{"a + b * c", "(a + (b * c))"},
		{"a * b + c", "((a * b) + c)"},
		{"a - b - c", "((a - b) - c)"},
		{"a = b + c", "(a = (b + c))"},
		{"a += b * 2", "(a += (b * 2))"},
		{"-a * b", "((- a) * b)"},
		{"a * -b", "(a * (- b))"},
		{"- - a", "(- (- a))"},
		{"!a && b", "((! a) && b)"},
		{"a || b && c", "(a || (b && c))"},
		{"a == b && c < d", "((a == b) && (c < d))"},
		{"(a + b) * c", "(( a + b ) * c)"},
		{"f(a, b + c) - 1", "(f ( a , b + c ) - 1)"},
		{"x[i + 1] = 2", "(x [ i + 1 ] = 2)"},
		{"a++", "(a ++)"},
		{"++a", "(++ a)"},
		{"a << 2 | b", "((a << 2) | b)"},
	}
	for _, tc := range tests {
		t.Run(tc.text, func(t *testing.T) {
			ns := NewNamespace(NewSeed())
			e, err := SplitExpression(ns, exprTokens(ns, tc.text))
			if err != nil {
				t.Fatalf("SplitExpression(%q): %v", tc.text, err)
			}
			if got := FormatExpr(ns, e); got != tc.want {
				t.Errorf("FormatExpr = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestSplitExpressionErrors(t *testing.T) {
	tests := []struct {
		text string
		code ErrorCode
	}{
		{"a +", OperatorExpectsRightHandSide},
		{"* a", OperatorExpectsLeftHandSide},
		{"+ a", OperatorExpectsLeftHandSide},
		{"a ! b", OperatorDoesNotExpectLeftHandSide},
		{"= 5", OperatorExpectsLeftHandSide},
		{"a =", OperatorExpectsRightHandSide},
		{"++", OperatorExpectsLeftHandSide},
		{"a ++ b", UnexpectedToken},
		{"(a + b", MismatchedBracket},
		{"a + b)", MismatchedBracket},
	}
	for _, tc := range tests {
		t.Run(tc.text, func(t *testing.T) {
			ns := NewNamespace(NewSeed())
			_, err := SplitExpression(ns, exprTokens(ns, tc.text))
			m, ok := err.(*Message)
			if !ok {
				t.Fatalf("SplitExpression(%q) error = %v, want a *Message", tc.text, err)
			}
			if m.Code != tc.code {
				t.Errorf("code = %s, want %s (%s)", m.Code, tc.code, m.Text)
			}
		})
	}
}

// Splitting never loses, duplicates or reorders tokens, and no terminal
// holds an operator outside brackets.
func TestSplitExpressionLaws(t *testing.T) {
	inputs := []string{
		"a + b * c - d / e",
		"x = y += z",
		"-a - -b",
		"f(g(1, 2), h[3]) && !k || m",
		"s.arr[i * 2].v <<= 1 + n",
		"(((a)))",
	}
	for _, text := range inputs {
		t.Run(text, func(t *testing.T) {
			ns := NewNamespace(NewSeed())
			toks := exprTokens(ns, text)
			e, err := SplitExpression(ns, toks)
			if err != nil {
				t.Fatalf("SplitExpression: %v", err)
			}
			if got := e.Tokens(); !reflect.DeepEqual(got, toks) {
				t.Errorf("reconstructed %q, want %q", ns.Text(got), ns.Text(toks))
			}
			var walk func(Expr)
			walk = func(e Expr) {
				switch n := e.(type) {
				case *Terminal:
					depth := 0
					for _, id := range n.Toks {
						tok := ns.Get(id)
						switch {
						case isOpenBracket(tok):
							depth++
						case isCloseBracket(tok):
							depth--
						case depth == 0 && tok.IsOperator():
							t.Errorf("terminal %q holds operator %q at level zero", ns.Text(n.Toks), tok.Name)
						}
					}
				case *SplitExpr:
					walk(n.Left)
					walk(n.Right)
				}
			}
			walk(e)
		})
	}
}

func TestSplitExpressionEmpty(t *testing.T) {
	ns := NewNamespace(NewSeed())
	e, err := SplitExpression(ns, nil)
	if err != nil {
		t.Fatalf("SplitExpression(nil): %v", err)
	}
	term, ok := e.(*Terminal)
	if !ok || !term.IsEmpty() {
		t.Errorf("empty input gave %#v", e)
	}
}
