package compiler

// unaryPrecedence is the binding strength of an operator used in prefix
// position, such as the '-' in "a * -b".
const unaryPrecedence = 1

func isOpenBracket(t *Token) bool {
	return t.IsKeyword(SymOpenParenthesis) || t.IsKeyword(SymOpenSquareBracket)
}

func isCloseBracket(t *Token) bool {
	return t.IsKeyword(SymCloseParenthesis) || t.IsKeyword(SymCloseSquareBracket)
}

// SplitExpression builds the expression tree for tokens. At bracket level
// zero it picks the operator with the largest precedence value, i.e. the
// weakest binding; later operators win ties so chains associate to the left.
// An Optional or NotAllowed operator that starts the range or follows
// another operator is a prefix operator: it binds tightest and the earliest
// one wins ties. Modification operators outrank every ordinary operator.
func SplitExpression(ns *Namespace, tokens []TokenID) (Expr, error) {
	best := -1
	bestPrec := 0
	depth := 0
	for i, id := range tokens {
		t := ns.Get(id)
		switch {
		case isOpenBracket(t):
			depth++
			continue
		case isCloseBracket(t):
			depth--
			if depth < 0 {
				return nil, newError(MismatchedBracket, "Unexpected '%s'", t.Name)
			}
			continue
		}
		if depth > 0 || !t.IsOperator() {
			continue
		}

		prec := t.Precedence
		unary := false
		if t.Kind == KindOperator && t.LeftHandSide != Required {
			if i == 0 || ns.Get(tokens[i-1]).IsOperator() {
				unary = true
				prec = unaryPrecedence
			}
		}
		switch {
		case best < 0:
		case unary && prec > bestPrec:
		case !unary && prec >= bestPrec:
		default:
			continue
		}
		best, bestPrec = i, prec
	}
	if depth != 0 {
		return nil, newError(MismatchedBracket, "Missing closing bracket")
	}
	if best < 0 {
		return &Terminal{Toks: tokens}, nil
	}

	op := ns.Get(tokens[best])
	left, right := tokens[:best], tokens[best+1:]
	if err := checkOperands(op, len(left) > 0, len(right) > 0); err != nil {
		return nil, err
	}

	l, err := SplitExpression(ns, left)
	if err != nil {
		return nil, err
	}
	r, err := SplitExpression(ns, right)
	if err != nil {
		return nil, err
	}
	return &SplitExpr{Operator: tokens[best], Left: l, Right: r}, nil
}

func checkOperands(op *Token, hasLeft, hasRight bool) error {
	if op.IsModificationOperator() {
		if op.Symbol == SymPlusPlus || op.Symbol == SymMinusMinus {
			switch {
			case !hasLeft && !hasRight:
				return newError(OperatorExpectsLeftHandSide, "Operator '%s' expects a variable", op.Name)
			case hasLeft && hasRight:
				return newError(UnexpectedToken, "Operator '%s' cannot be used between two operands", op.Name)
			}
			return nil
		}
		if !hasLeft {
			return newError(OperatorExpectsLeftHandSide, "Operator '%s' expects a left-hand side", op.Name)
		}
		if !hasRight {
			return newError(OperatorExpectsRightHandSide, "Operator '%s' expects a right-hand side", op.Name)
		}
		return nil
	}

	switch {
	case !hasLeft && op.LeftHandSide == Required:
		return newError(OperatorExpectsLeftHandSide, "Operator '%s' expects a left-hand side", op.Name)
	case hasLeft && op.LeftHandSide == NotAllowed:
		return newError(OperatorDoesNotExpectLeftHandSide, "Operator '%s' does not expect a left-hand side", op.Name)
	case !hasRight:
		return newError(OperatorExpectsRightHandSide, "Operator '%s' expects a right-hand side", op.Name)
	}
	return nil
}
