package compiler

import "cscript/pkg/bytecode"

type loopContext struct {
	continueAt int // -1 until the continue target has been emitted
	continues  []int
	breaks     []int
	depth      int // scope depth outside the loop body
}

type functionContext struct {
	f         *ScriptFunction
	owner     *ScriptStruct
	baseDepth int
	loops     []*loopContext
}

// functionBody compiles the block of f. Parameters are bound as locals
// below the return address: the first one at -8, the next at -12 and so
// on.
func (c *Compiler) functionBody(f *ScriptFunction) error {
	c.gen.SetLine(c.src.Line())
	c.gen.sp = 0
	f.CodeOffset = c.gen.here()
	c.fn = &functionContext{f: f, owner: f.Owner}
	c.gen.emit(bytecode.OpThisBase, int32(f.CodeOffset))
	if f.Modifiers.Has(SymNoLoopCheck) {
		c.gen.emit(bytecode.OpLoopCheckOff)
	}

	params := c.state.Scopes.Push()
	for i, p := range f.Parameters {
		id := c.ns.Intern(p.Name)
		tok := c.ns.Get(id)
		if tok.Defined {
			return newError(TokenAlreadyDefined, "Token '%s' is already defined", p.Name)
		}
		lv := &LocalVariable{
			ScriptVariable: ScriptVariable{
				Name: p.Name, Type: p.Type, Size: 4, ElementSize: 4,
				IsPointer: p.IsPointer, IsDynamicArray: p.IsArray, Modifiers: p.Modifiers,
			},
			Token:       id,
			StackOffset: -(8 + 4*i),
			IsParameter: true,
		}
		tok.DefineLocal(lv)
		params.Members = append(params.Members, lv)
	}
	c.fn.baseDepth = c.state.Scopes.Depth()

	if err := c.src.ExpectKeyword(SymOpenBrace); err != nil {
		return err
	}
	if err := c.block(); err != nil {
		return err
	}
	c.gen.literal(bytecode.RegAX, 0)
	c.gen.emit(bytecode.OpRet)

	if _, err := c.state.Scopes.Pop(); err != nil {
		return err
	}
	for _, v := range params.Members {
		c.ns.Get(v.Token).Undefine()
	}
	if c.gen.sp != 0 {
		return internalError("stack not balanced at end of '%s' (%d bytes)", f.FullName(), c.gen.sp)
	}
	c.fn = nil
	return c.gen.Err()
}

// block compiles statements up to the closing brace; the opening one has
// been consumed.
func (c *Compiler) block() error {
	c.state.Scopes.Push()
	for !c.src.NextIsKeyword(SymCloseBrace) {
		if c.src.AtEnd() {
			return newError(EndOfInputReached, "Unexpected end of script; a '}' is missing")
		}
		if err := c.statement(true); err != nil {
			return err
		}
	}
	return c.closeScope()
}

func (c *Compiler) closeScope() error {
	sc, err := c.state.Scopes.Pop()
	if err != nil {
		return err
	}
	c.releasePointers(sc, bytecode.OpMemZeroPtr)
	c.gen.shrinkStack(sc.SizeInBytes)
	for _, v := range sc.Members {
		c.ns.Get(v.Token).Undefine()
	}
	return nil
}

// releasePointers zeroes every managed pointer slot held by the scope.
func (c *Compiler) releasePointers(sc *LocalScope, op bytecode.Opcode) {
	for i := len(sc.Members) - 1; i >= 0; i-- {
		v := sc.Members[i]
		for _, off := range c.pointerSlots(&v.ScriptVariable) {
			c.gen.stackAddress(v.StackOffset + off)
			c.gen.emit(op)
		}
	}
}

// pointerSlots lists the offsets within v that hold managed pointers.
func (c *Compiler) pointerSlots(v *ScriptVariable) []int {
	if v.IsDynamicArray {
		return []int{0}
	}
	count := v.ArraySize
	if count == 0 {
		count = 1
	}
	var inner []int
	switch {
	case v.IsPointer:
		inner = []int{0}
	case c.structOf(v.Type) != nil:
		for _, m := range c.structOf(v.Type).Members {
			if m.IsImported {
				continue
			}
			for _, off := range c.pointerSlots(&m.ScriptVariable) {
				inner = append(inner, m.Offset+off)
			}
		}
	}
	if len(inner) == 0 {
		return nil
	}
	out := make([]int, 0, count*len(inner))
	for i := 0; i < count; i++ {
		for _, off := range inner {
			out = append(out, i*v.ElementSize+off)
		}
	}
	return out
}

// unwind releases the scopes opened after depth without closing them, for
// break, continue and return.
func (c *Compiler) unwind(depth int, op bytecode.Opcode) {
	saved := c.gen.sp
	scopes := c.state.Scopes.Above(depth)
	for i := len(scopes) - 1; i >= 0; i-- {
		c.releasePointers(scopes[i], op)
		c.gen.shrinkStack(scopes[i].SizeInBytes)
	}
	c.gen.sp = saved
}

func (c *Compiler) statement(allowDeclaration bool) error {
	id := c.src.ReadNext()
	t := c.ns.Get(id)
	c.gen.SetLine(c.src.Line())

	switch {
	case t.Kind == KindEndOfStream:
		return c.src.unexpected(t)
	case t.Kind == KindModifier:
		if !c.state.NextTokenModifiers.Add(t.Symbol) {
			return newError(InvalidModifier, "Modifier '%s' specified more than once", t.Name)
		}
		return c.statement(allowDeclaration)
	case t.IsKeyword(SymStruct), t.IsVariableType && !c.src.PeekIsKeyword(SymDot):
		if !allowDeclaration {
			return newError(VariableDeclarationNotAllowedHere, "A variable cannot be declared here; put the statement in braces")
		}
		if t.IsKeyword(SymStruct) {
			id = c.src.ReadNext()
			if st := c.structOf(id); st == nil {
				return newError(StructNameExpected, "Struct name expected at '%s'", c.ns.Get(id).Name)
			}
		}
		return c.localDeclaration(id)
	}
	if c.state.NextTokenModifiers.Len() > 0 {
		return newError(InvalidModifier, "Modifiers are not allowed before '%s'", t.Name)
	}

	switch {
	case t.IsKeyword(SymOpenBrace):
		return c.block()
	case t.IsKeyword(SymSemicolon):
		return nil
	case t.IsKeyword(SymIf):
		return c.ifStatement()
	case t.IsKeyword(SymWhile):
		return c.whileStatement()
	case t.IsKeyword(SymDo):
		return c.doStatement()
	case t.IsKeyword(SymFor):
		return c.forStatement()
	case t.IsKeyword(SymBreak), t.IsKeyword(SymContinue):
		return c.loopControl(t)
	case t.IsKeyword(SymReturn):
		return c.returnStatement()
	case t.IsKeyword(SymElse):
		return newError(InvalidUseOfKeyword, "'else' without 'if'")
	case t.Kind == KindKeyword && !t.IsKeyword(SymThis) && !t.IsKeyword(SymNew) &&
		!t.IsKeyword(SymNull) && !t.IsKeyword(SymOpenParenthesis) && !t.IsModificationOperator():
		return newError(InvalidUseOfKeyword, "Invalid use of '%s'", t.Name)
	}
	return c.expressionStatement(id)
}

func (c *Compiler) expressionStatement(first TokenID) error {
	toks, err := c.src.ContinueExpression(first, SymSemicolon)
	if err != nil {
		return err
	}
	if err := c.src.ExpectKeyword(SymSemicolon); err != nil {
		return err
	}
	e, err := SplitExpression(c.ns, toks)
	if err != nil {
		return err
	}
	if !c.hasEffect(e) {
		c.warn(ExpressionHasNoEffect, "The expression '%s' has no effect", c.ns.Text(toks))
	}
	if _, err := c.genExpr(e); err != nil {
		return err
	}
	return c.gen.Err()
}

// hasEffect reports whether evaluating e can change state: an assignment
// at the root or a call anywhere.
func (c *Compiler) hasEffect(e Expr) bool {
	if s, ok := e.(*SplitExpr); ok && c.ns.Get(s.Operator).IsModificationOperator() {
		return true
	}
	toks := e.Tokens()
	for i := 1; i < len(toks); i++ {
		if c.ns.Get(toks[i]).IsKeyword(SymOpenParenthesis) && c.ns.Get(toks[i-1]).Kind == KindPlain {
			return true
		}
	}
	return false
}

// localDeclaration declares one or more stack variables of typeID.
func (c *Compiler) localDeclaration(typeID TokenID) error {
	mods := c.state.TakeModifiers()
	if err := c.verifyModifiers(TargetLocalVariable, mods); err != nil {
		return err
	}
	for {
		isPointer := c.src.IgnoreAsteriskIfPresent()
		nameID, err := c.src.ReadNextUndefined()
		if err != nil {
			return err
		}
		size, dynamic, err := c.readArraySuffix()
		if err != nil {
			return err
		}
		sv, err := c.buildVariable(typeID, isPointer, size, dynamic, nil)
		if err != nil {
			return err
		}
		name := c.ns.Get(nameID)
		sv.Name = name.Name
		sv.Modifiers = mods
		lv := &LocalVariable{ScriptVariable: sv, Token: nameID, StackOffset: c.gen.sp}

		var init []TokenID
		if c.src.NextIsKeyword(SymSetEqual) {
			if init, err = c.src.ReadExpression(SymComma, SymSemicolon); err != nil {
				return err
			}
			if len(init) == 0 {
				return newError(UnexpectedToken, "Initial value expected for '%s'", sv.Name)
			}
		}
		if err := c.allocateLocal(lv, init); err != nil {
			return err
		}

		name.DefineLocal(lv)
		name.ArraySize, name.IsDynamicArray = size, dynamic
		sc := c.state.Scopes.Current()
		sc.Members = append(sc.Members, lv)
		sc.SizeInBytes += sv.Size

		if !c.src.NextIsKeyword(SymComma) {
			return c.src.ExpectKeyword(SymSemicolon)
		}
	}
}

// allocateLocal reserves zeroed stack space for lv and stores its initial
// value. The variable is not yet visible to its own initialiser.
func (c *Compiler) allocateLocal(lv *LocalVariable, init []TokenID) error {
	v := &lv.ScriptVariable
	slot := exprValue{typ: v.Type, pointer: v.IsPointer, dynArray: v.IsDynamicArray}
	if init != nil {
		if v.ArraySize > 0 || (!v.IsPointer && !v.IsDynamicArray && c.structOf(v.Type) != nil) {
			return newError(UnexpectedToken, "'%s' cannot have an initial value", v.Name)
		}
		val, err := c.genExpression(init)
		if err != nil {
			return err
		}
		if err := c.checkAssignable(slot, val); err != nil {
			return err
		}
	}

	isWord := v.Size == 4 && v.ArraySize == 0
	switch {
	case isWord && (v.IsPointer || v.IsDynamicArray):
		if init == nil {
			c.gen.literal(bytecode.RegAX, 0)
		}
		c.gen.move(bytecode.RegSP, bytecode.RegMAR)
		c.gen.growStack(4)
		c.gen.emit(bytecode.OpMemInitPtr, bytecode.RegAX)
	case isWord:
		if init == nil {
			c.gen.literal(bytecode.RegAX, 0)
		}
		c.gen.push(bytecode.RegAX)
	default:
		c.gen.move(bytecode.RegSP, bytecode.RegMAR)
		c.gen.emit(bytecode.OpZeroMemory, int32(v.Size))
		c.gen.growStack(v.Size)
		if init != nil {
			c.gen.stackAddress(lv.StackOffset)
			if v.ElementSize == 1 {
				c.gen.emit(bytecode.OpMemWriteB, bytecode.RegAX)
			} else {
				c.gen.emit(bytecode.OpMemWriteW, bytecode.RegAX)
			}
		}
	}
	return c.gen.Err()
}

func (c *Compiler) condition() error {
	if err := c.src.ExpectKeyword(SymOpenParenthesis); err != nil {
		return err
	}
	toks, err := c.src.ReadExpression(SymCloseParenthesis)
	if err != nil {
		return err
	}
	if err := c.src.ExpectKeyword(SymCloseParenthesis); err != nil {
		return err
	}
	return c.genCondition(toks)
}

func (c *Compiler) genCondition(toks []TokenID) error {
	if len(toks) == 0 {
		return newError(UnexpectedToken, "Condition expected")
	}
	v, err := c.genExpression(toks)
	if err != nil {
		return err
	}
	if v.void || (!v.pointer && !v.dynArray && c.structOf(v.typ) != nil) {
		return newError(TypeMismatch, "Cannot use '%s' as a condition", c.typeName(v))
	}
	return nil
}

func (c *Compiler) ifStatement() error {
	if err := c.condition(); err != nil {
		return err
	}
	skip := c.gen.jumpForward(bytecode.OpJZ)
	if err := c.statement(false); err != nil {
		return err
	}
	if !c.src.NextIsKeyword(SymElse) {
		c.gen.patch(skip)
		return c.gen.Err()
	}
	end := c.gen.jumpForward(bytecode.OpJmp)
	c.gen.patch(skip)
	if err := c.statement(false); err != nil {
		return err
	}
	c.gen.patch(end)
	return c.gen.Err()
}

func (c *Compiler) pushLoop(continueAt int) *loopContext {
	l := &loopContext{continueAt: continueAt, depth: c.state.Scopes.Depth()}
	c.fn.loops = append(c.fn.loops, l)
	return l
}

func (c *Compiler) popLoop(l *loopContext) {
	c.fn.loops = c.fn.loops[:len(c.fn.loops)-1]
	for _, at := range l.breaks {
		c.gen.patch(at)
	}
}

func (c *Compiler) whileStatement() error {
	start := c.gen.here()
	if err := c.condition(); err != nil {
		return err
	}
	exit := c.gen.jumpForward(bytecode.OpJZ)
	l := c.pushLoop(start)
	if err := c.statement(false); err != nil {
		return err
	}
	c.gen.jumpTo(bytecode.OpJmp, start)
	c.gen.patch(exit)
	c.popLoop(l)
	return c.gen.Err()
}

func (c *Compiler) doStatement() error {
	start := c.gen.here()
	l := c.pushLoop(-1)
	if err := c.statement(false); err != nil {
		return err
	}
	if err := c.src.ExpectKeyword(SymWhile); err != nil {
		return err
	}
	for _, at := range l.continues {
		c.gen.patch(at)
	}
	if err := c.condition(); err != nil {
		return err
	}
	c.gen.jumpTo(bytecode.OpJNZ, start)
	c.popLoop(l)
	if err := c.src.ExpectKeyword(SymSemicolon); err != nil {
		return err
	}
	return c.gen.Err()
}

// forStatement lays the loop out as
//
//	init; cond: test; jz end; jmp body; incr: step; jmp cond; body: ...; jmp incr; end:
//
// so the step expression is compiled in source order.
func (c *Compiler) forStatement() error {
	if err := c.src.ExpectKeyword(SymOpenParenthesis); err != nil {
		return err
	}
	c.state.Scopes.Push()

	switch {
	case c.src.NextIsKeyword(SymSemicolon):
	case c.src.Peek().IsVariableType:
		if err := c.localDeclaration(c.src.ReadNext()); err != nil {
			return err
		}
	default:
		toks, err := c.src.ReadExpression(SymSemicolon)
		if err != nil {
			return err
		}
		if err := c.src.ExpectKeyword(SymSemicolon); err != nil {
			return err
		}
		if _, err := c.genExpression(toks); err != nil {
			return err
		}
	}

	condStart := c.gen.here()
	exit := -1
	cond, err := c.src.ReadExpression(SymSemicolon)
	if err != nil {
		return err
	}
	if err := c.src.ExpectKeyword(SymSemicolon); err != nil {
		return err
	}
	if len(cond) > 0 {
		if err := c.genCondition(cond); err != nil {
			return err
		}
		exit = c.gen.jumpForward(bytecode.OpJZ)
	}

	step, err := c.src.ReadExpression(SymCloseParenthesis)
	if err != nil {
		return err
	}
	if err := c.src.ExpectKeyword(SymCloseParenthesis); err != nil {
		return err
	}
	toBody := c.gen.jumpForward(bytecode.OpJmp)
	stepStart := c.gen.here()
	if len(step) > 0 {
		if _, err := c.genExpression(step); err != nil {
			return err
		}
	}
	c.gen.jumpTo(bytecode.OpJmp, condStart)
	c.gen.patch(toBody)

	l := c.pushLoop(stepStart)
	if err := c.statement(false); err != nil {
		return err
	}
	c.gen.jumpTo(bytecode.OpJmp, stepStart)
	if exit >= 0 {
		c.gen.patch(exit)
	}
	c.popLoop(l)
	if err := c.closeScope(); err != nil {
		return err
	}
	return c.gen.Err()
}

func (c *Compiler) loopControl(t *Token) error {
	if c.fn == nil || len(c.fn.loops) == 0 {
		return newError(LoopControlOutsideLoop, "'%s' is only valid inside a loop", t.Name)
	}
	if err := c.src.ExpectKeyword(SymSemicolon); err != nil {
		return err
	}
	l := c.fn.loops[len(c.fn.loops)-1]
	c.unwind(l.depth, bytecode.OpMemZeroPtr)
	switch {
	case t.IsKeyword(SymBreak):
		l.breaks = append(l.breaks, c.gen.jumpForward(bytecode.OpJmp))
	case l.continueAt >= 0:
		c.gen.jumpTo(bytecode.OpJmp, l.continueAt)
	default:
		l.continues = append(l.continues, c.gen.jumpForward(bytecode.OpJmp))
	}
	return c.gen.Err()
}

func (c *Compiler) returnStatement() error {
	f := c.fn.f
	void := f.ReturnType == c.types.voidT
	if c.src.NextIsKeyword(SymSemicolon) {
		if !void {
			return newError(ReturnValueMismatch, "Function '%s' must return a value", f.FullName())
		}
		c.gen.literal(bytecode.RegAX, 0)
	} else {
		if void {
			return newError(ReturnValueMismatch, "Function '%s' cannot return a value", f.FullName())
		}
		toks, err := c.src.ReadExpression(SymSemicolon)
		if err != nil {
			return err
		}
		if err := c.src.ExpectKeyword(SymSemicolon); err != nil {
			return err
		}
		v, err := c.genExpression(toks)
		if err != nil {
			return err
		}
		want := exprValue{typ: f.ReturnType, pointer: f.ReturnsPointer}
		if c.checkAssignable(want, v) != nil {
			return newError(ReturnValueMismatch, "Function '%s' returns '%s', not '%s'", f.FullName(), c.typeName(want), c.typeName(v))
		}
	}
	for _, sc := range c.state.Scopes.Above(c.fn.baseDepth) {
		c.releasePointers(sc, bytecode.OpMemZeroPtrND)
	}
	if c.gen.sp > 0 {
		c.gen.emit(bytecode.OpSub, bytecode.RegSP, int32(c.gen.sp))
	}
	c.gen.emit(bytecode.OpRet)
	return c.gen.Err()
}
