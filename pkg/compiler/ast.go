package compiler

import "strings"

// Expr is the result of splitting a token range: either a Terminal that
// contains no operator at bracket level zero, or a SplitExpr around the
// weakest-binding operator.
type Expr interface {
	exprNode()
	// Tokens returns the token range the node covers, in source order.
	Tokens() []TokenID
}

// Terminal is an operand: a literal, a name, a call, an indexed or member
// access, or a fully parenthesised sub-expression. It may be empty when an
// operator has no operand on that side.
type Terminal struct {
	Toks []TokenID
}

func (*Terminal) exprNode() {}

func (t *Terminal) Tokens() []TokenID { return t.Toks }

// IsEmpty reports whether the terminal covers no tokens.
func (t *Terminal) IsEmpty() bool { return len(t.Toks) == 0 }

// SplitExpr applies Operator to Left and Right. Left is empty for a prefix
// operator, Right is empty for a postfix ++ or --.
type SplitExpr struct {
	Operator TokenID
	Left     Expr
	Right    Expr
}

func (*SplitExpr) exprNode() {}

func (s *SplitExpr) Tokens() []TokenID {
	left, right := s.Left.Tokens(), s.Right.Tokens()
	out := make([]TokenID, 0, len(left)+1+len(right))
	out = append(out, left...)
	out = append(out, s.Operator)
	return append(out, right...)
}

// FormatExpr renders e with every split parenthesised, e.g. "(a + (b * c))".
func FormatExpr(ns *Namespace, e Expr) string {
	var sb strings.Builder
	formatExpr(&sb, ns, e)
	return sb.String()
}

func formatExpr(sb *strings.Builder, ns *Namespace, e Expr) {
	switch n := e.(type) {
	case *Terminal:
		sb.WriteString(ns.Text(n.Toks))
	case *SplitExpr:
		sb.WriteByte('(')
		if l, ok := n.Left.(*Terminal); !ok || !l.IsEmpty() {
			formatExpr(sb, ns, n.Left)
			sb.WriteByte(' ')
		}
		sb.WriteString(ns.Get(n.Operator).Name)
		if r, ok := n.Right.(*Terminal); !ok || !r.IsEmpty() {
			sb.WriteByte(' ')
			formatExpr(sb, ns, n.Right)
		}
		sb.WriteByte(')')
	}
}
