package compiler

import (
	"math"

	"cscript/pkg/bytecode"
)

// CodeGen appends instructions to a CompiledScript and tracks how far the
// stack pointer has moved since function entry. The first failed write is
// kept and reported by Err; later writes are dropped.
type CodeGen struct {
	out         *CompiledScript
	sp          int
	lineNumbers bool
	line        int
	lastLine    int
	err         error
}

func newCodeGen(out *CompiledScript, lineNumbers bool) *CodeGen {
	return &CodeGen{out: out, lineNumbers: lineNumbers}
}

func (g *CodeGen) Err() error { return g.err }

// SetLine sets the source line for the instructions that follow.
func (g *CodeGen) SetLine(line int) { g.line = line }

func (g *CodeGen) reset() {
	g.sp = 0
	g.err = nil
}

func (g *CodeGen) emit(op bytecode.Opcode, args ...int32) {
	if g.err != nil {
		return
	}
	if g.lineNumbers && g.line > 0 && g.line != g.lastLine {
		g.lastLine = g.line
		if g.err = g.out.WriteCmd(bytecode.OpLineNum, int32(g.line)); g.err != nil {
			return
		}
	}
	g.err = g.out.WriteCmd(op, args...)
}

// here is the code index the next instruction will start at.
func (g *CodeGen) here() int { return len(g.out.Code) }

// lastOperand is the code index of the final operand just written.
func (g *CodeGen) lastOperand() int { return len(g.out.Code) - 1 }

func (g *CodeGen) push(reg int32) {
	g.emit(bytecode.OpPushReg, reg)
	g.sp += 4
}

func (g *CodeGen) pop(reg int32) {
	g.emit(bytecode.OpPopReg, reg)
	g.sp -= 4
}

func (g *CodeGen) literal(reg, v int32) { g.emit(bytecode.OpLitToReg, reg, v) }

func (g *CodeGen) move(from, to int32) { g.emit(bytecode.OpRegToReg, from, to) }

// stackAddress points MAR at the stack slot starting at offset, relative
// to function entry.
func (g *CodeGen) stackAddress(offset int) {
	g.emit(bytecode.OpLoadSPOffs, int32(g.sp-offset))
}

func (g *CodeGen) growStack(n int) {
	if n > 0 {
		g.emit(bytecode.OpAdd, bytecode.RegSP, int32(n))
		g.sp += n
	}
}

func (g *CodeGen) shrinkStack(n int) {
	if n > 0 {
		g.emit(bytecode.OpSub, bytecode.RegSP, int32(n))
		g.sp -= n
	}
}

// jumpForward emits a jump with a placeholder target and returns the code
// index of its operand, to be resolved with patch.
func (g *CodeGen) jumpForward(op bytecode.Opcode) int {
	g.emit(op, 0)
	return g.lastOperand()
}

// patch points the jump operand at index at to the current position.
// Offsets count from the word after the operand.
func (g *CodeGen) patch(at int) {
	if g.err == nil {
		g.out.Code[at] = int32(g.here() - (at + 1))
	}
}

func (g *CodeGen) jumpTo(op bytecode.Opcode, target int) {
	g.emit(op, 0)
	if g.err == nil {
		at := g.lastOperand()
		g.out.Code[at] = int32(target - (at + 1))
	}
}

// exprValue describes what an expression left in AX.
type exprValue struct {
	typ      TokenID
	pointer  bool // managed pointer, or array of them
	dynArray bool
	isNull   bool
	literal  bool // string literal
	void     bool
}

// location describes storage whose address is in MAR.
type location struct {
	name      string
	typ       TokenID
	pointer   bool
	arraySize int
	dynamic   bool // unindexed dynamic array slot
	elemSize  int
	object    bool // MAR addresses a struct object, as for this or a call result
	readonly  bool
	attribute *FixedOffsetVariable
	owner     *ScriptStruct
}

func variableLocation(v *ScriptVariable) location {
	return location{
		name: v.Name, typ: v.Type, pointer: v.IsPointer,
		arraySize: v.ArraySize, dynamic: v.IsDynamicArray, elemSize: v.ElementSize,
		readonly: v.Modifiers.Has(SymReadOnly),
	}
}

var floatOps = map[bytecode.Opcode]bytecode.Opcode{
	bytecode.OpAddReg:   bytecode.OpFAddReg,
	bytecode.OpSubReg:   bytecode.OpFSubReg,
	bytecode.OpMulReg:   bytecode.OpFMulReg,
	bytecode.OpDivReg:   bytecode.OpFDivReg,
	bytecode.OpGreater:  bytecode.OpFGreater,
	bytecode.OpLessThan: bytecode.OpFLessThan,
	bytecode.OpGTE:      bytecode.OpFGTE,
	bytecode.OpLTE:      bytecode.OpFLTE,
	bytecode.OpIsEqual:  bytecode.OpIsEqual,
	bytecode.OpNotEqual: bytecode.OpNotEqual,
}

func isComparison(op bytecode.Opcode) bool {
	switch op {
	case bytecode.OpIsEqual, bytecode.OpNotEqual, bytecode.OpGreater, bytecode.OpLessThan,
		bytecode.OpGTE, bytecode.OpLTE:
		return true
	}
	return false
}

func (c *Compiler) isFloat(v exprValue) bool {
	return v.typ == c.types.floatT && !v.pointer && !v.dynArray
}

func (c *Compiler) isString(v exprValue) bool {
	return v.literal || (v.typ == c.types.stringT && !v.dynArray)
}

func (c *Compiler) structOf(typ TokenID) *ScriptStruct {
	t := c.ns.Get(typ)
	if t.Type != BoundStructType {
		return nil
	}
	st, _ := t.Struct()
	return st
}

func (c *Compiler) typeName(v exprValue) string {
	switch {
	case v.void:
		return "void"
	case v.isNull:
		return "null"
	case v.literal:
		return "const string"
	}
	name := c.ns.Get(v.typ).Name
	if v.pointer {
		name += "*"
	}
	if v.dynArray {
		name += "[]"
	}
	return name
}

// checkAssignable verifies that a value of type from may be stored into a
// slot of type to.
func (c *Compiler) checkAssignable(to, from exprValue) error {
	mismatch := func() error {
		return newError(TypeMismatch, "Type mismatch: cannot convert '%s' to '%s'", c.typeName(from), c.typeName(to))
	}
	if from.void {
		return mismatch()
	}
	if to.pointer || to.dynArray {
		if from.isNull {
			return nil
		}
		if from.pointer != to.pointer || from.dynArray != to.dynArray {
			return mismatch()
		}
		if from.typ == to.typ {
			return nil
		}
		if src, dst := c.structOf(from.typ), c.structOf(to.typ); src != nil && dst != nil && src.ExtendsChainContains(dst) {
			return nil
		}
		return mismatch()
	}
	if from.pointer || from.dynArray || from.isNull {
		return mismatch()
	}
	if c.isString(to) {
		if c.isString(from) {
			return nil
		}
		return mismatch()
	}
	if c.isString(from) || c.isFloat(to) != c.isFloat(from) {
		return mismatch()
	}
	return nil
}

func (c *Compiler) genExpression(tokens []TokenID) (exprValue, error) {
	e, err := SplitExpression(c.ns, tokens)
	if err != nil {
		return exprValue{}, err
	}
	return c.genExpr(e)
}

func (c *Compiler) genExpr(e Expr) (exprValue, error) {
	switch n := e.(type) {
	case *Terminal:
		return c.genTerminal(n.Toks)
	case *SplitExpr:
		op := c.ns.Get(n.Operator)
		if op.IsModificationOperator() {
			return c.genAssignment(op, n)
		}
		if l, ok := n.Left.(*Terminal); ok && l.IsEmpty() {
			return c.genUnary(op, n.Right)
		}
		return c.genBinary(op, n)
	}
	return exprValue{}, internalError("unknown expression node %T", e)
}

func (c *Compiler) genUnary(op *Token, operand Expr) (exprValue, error) {
	v, err := c.genExpr(operand)
	if err != nil {
		return v, err
	}
	if v.void {
		return v, newError(TypeMismatch, "Cannot apply '%s' to a void value", op.Name)
	}
	if op.Opcode == bytecode.OpNotReg {
		c.gen.emit(bytecode.OpNotReg, bytecode.RegAX)
		return exprValue{typ: c.types.intT}, nil
	}
	if v.pointer || v.dynArray || v.isNull || c.isString(v) {
		return v, newError(TypeMismatch, "Cannot apply '%s' to '%s'", op.Name, c.typeName(v))
	}
	sub := bytecode.OpSubReg
	if c.isFloat(v) {
		sub = bytecode.OpFSubReg
	}
	c.gen.move(bytecode.RegAX, bytecode.RegBX)
	c.gen.literal(bytecode.RegAX, 0)
	c.gen.emit(sub, bytecode.RegAX, bytecode.RegBX)
	return v, nil
}

func (c *Compiler) genBinary(op *Token, n *SplitExpr) (exprValue, error) {
	lv, err := c.genExpr(n.Left)
	if err != nil {
		return lv, err
	}
	if lv.void {
		return lv, newError(TypeMismatch, "Cannot use a void value with '%s'", op.Name)
	}

	if op.Opcode == bytecode.OpAnd || op.Opcode == bytecode.OpOr {
		jump, set, combine := bytecode.OpJZ, int32(1), bytecode.OpAnd
		if op.Opcode == bytecode.OpOr {
			jump, set, combine = bytecode.OpJNZ, 0, bytecode.OpOr
		}
		skip := c.gen.jumpForward(jump)
		rv, err := c.genExpr(n.Right)
		if err != nil {
			return rv, err
		}
		if rv.void {
			return rv, newError(TypeMismatch, "Cannot use a void value with '%s'", op.Name)
		}
		c.gen.patch(skip)
		c.gen.move(bytecode.RegAX, bytecode.RegBX)
		c.gen.literal(bytecode.RegAX, set)
		c.gen.emit(combine, bytecode.RegAX, bytecode.RegBX)
		return exprValue{typ: c.types.intT}, nil
	}

	c.gen.push(bytecode.RegAX)
	rv, err := c.genExpr(n.Right)
	if err != nil {
		return rv, err
	}
	if rv.void {
		return rv, newError(TypeMismatch, "Cannot use a void value with '%s'", op.Name)
	}
	c.gen.move(bytecode.RegAX, bytecode.RegBX)
	c.gen.pop(bytecode.RegAX)

	opcode := op.Opcode
	result := lv
	switch {
	case c.isString(lv) && c.isString(rv):
		switch opcode {
		case bytecode.OpIsEqual:
			opcode = bytecode.OpStringsEqual
		case bytecode.OpNotEqual:
			opcode = bytecode.OpStringsNotEq
		default:
			return lv, newError(TypeMismatch, "Operator '%s' cannot be applied to strings", op.Name)
		}
	case lv.pointer || lv.dynArray || rv.pointer || rv.dynArray || lv.isNull || rv.isNull:
		if opcode != bytecode.OpIsEqual && opcode != bytecode.OpNotEqual {
			return lv, newError(TypeMismatch, "Operator '%s' cannot be applied to pointers", op.Name)
		}
		if !lv.isNull && !rv.isNull && c.checkAssignable(lv, rv) != nil && c.checkAssignable(rv, lv) != nil {
			return lv, newError(TypeMismatch, "Type mismatch: cannot compare '%s' and '%s'", c.typeName(lv), c.typeName(rv))
		}
	case c.isString(lv) || c.isString(rv):
		return lv, newError(TypeMismatch, "Type mismatch: cannot convert '%s' to '%s'", c.typeName(rv), c.typeName(lv))
	case c.isFloat(lv) != c.isFloat(rv):
		return lv, newError(TypeMismatch, "Type mismatch: cannot convert '%s' to '%s'", c.typeName(rv), c.typeName(lv))
	case c.isFloat(lv):
		fop, ok := floatOps[opcode]
		if !ok {
			return lv, newError(TypeMismatch, "Operator '%s' cannot be applied to float values", op.Name)
		}
		opcode = fop
	}
	if isComparison(opcode) || opcode == bytecode.OpStringsEqual || opcode == bytecode.OpStringsNotEq ||
		opcode == bytecode.OpFGreater || opcode == bytecode.OpFLessThan || opcode == bytecode.OpFGTE || opcode == bytecode.OpFLTE {
		result = exprValue{typ: c.types.intT}
	}
	c.gen.emit(opcode, bytecode.RegAX, bytecode.RegBX)
	return result, nil
}

func (c *Compiler) genAssignment(op *Token, n *SplitExpr) (exprValue, error) {
	if op.Symbol == SymPlusPlus || op.Symbol == SymMinusMinus {
		target := n.Left
		if l, ok := target.(*Terminal); ok && l.IsEmpty() {
			target = n.Right
		}
		loc, err := c.genTargetLocation(target)
		if err != nil {
			return exprValue{}, err
		}
		v, err := c.checkWritable(loc, op)
		if err != nil {
			return v, err
		}
		if v.pointer || v.dynArray || c.isString(v) || c.structOf(v.typ) != nil && !v.pointer {
			return v, newError(TypeMismatch, "Operator '%s' cannot be applied to '%s'", op.Name, c.typeName(v))
		}
		c.load(loc)
		opcode := op.Opcode
		if c.isFloat(v) {
			opcode = bytecode.OpFAdd
			if op.Symbol == SymMinusMinus {
				opcode = bytecode.OpFSub
			}
		}
		c.gen.emit(opcode, bytecode.RegAX, 1)
		return v, c.store(loc)
	}

	rv, err := c.genExpr(n.Right)
	if err != nil {
		return rv, err
	}
	c.gen.push(bytecode.RegAX)
	loc, err := c.genTargetLocation(n.Left)
	if err != nil {
		return rv, err
	}
	v, err := c.checkWritable(loc, op)
	if err != nil {
		return v, err
	}

	if op.Symbol == SymSetEqual {
		if err := c.checkAssignable(v, rv); err != nil {
			return v, err
		}
		c.gen.pop(bytecode.RegAX)
		return v, c.store(loc)
	}

	if v.pointer || v.dynArray || c.isString(v) || c.isString(rv) || rv.pointer || rv.void {
		return v, newError(TypeMismatch, "Operator '%s' cannot be applied to '%s'", op.Name, c.typeName(v))
	}
	if c.isFloat(v) != c.isFloat(rv) {
		return v, newError(TypeMismatch, "Type mismatch: cannot convert '%s' to '%s'", c.typeName(rv), c.typeName(v))
	}
	opcode := op.Opcode
	if c.isFloat(v) {
		fop, ok := floatOps[opcode]
		if !ok {
			return v, newError(TypeMismatch, "Operator '%s' cannot be applied to float values", op.Name)
		}
		opcode = fop
	}
	c.load(loc)
	c.gen.pop(bytecode.RegBX)
	c.gen.emit(opcode, bytecode.RegAX, bytecode.RegBX)
	return v, c.store(loc)
}

// genTargetLocation computes the address of the left side of an
// assignment.
func (c *Compiler) genTargetLocation(e Expr) (location, error) {
	t, ok := e.(*Terminal)
	if !ok {
		return location{}, newError(InvalidUseOfStruct, "Cannot assign to an expression")
	}
	toks := unwrapParens(c.ns, t.Toks)
	r := newExpressionReader(c.ns, toks, c.src.Line(), c.src.Unit())
	loc, _, isValue, err := c.genChain(r)
	if err != nil {
		return loc, err
	}
	if !r.AtEnd() {
		return loc, r.unexpected(r.Peek())
	}
	if isValue {
		return loc, newError(InvalidUseOfStruct, "Cannot assign to the result of a function call")
	}
	return loc, nil
}

// checkWritable reports the value type held at loc, failing if it cannot
// be assigned.
func (c *Compiler) checkWritable(loc location, op *Token) (exprValue, error) {
	v := c.locationValue(loc)
	switch {
	case loc.attribute != nil:
		if loc.readonly {
			return v, newError(InvalidUseOfKeyword, "Attribute '%s' is read-only", loc.name)
		}
		if op.Symbol != SymSetEqual {
			return v, newError(InvalidUseOfKeyword, "Operator '%s' cannot be applied to attribute '%s'", op.Name, loc.name)
		}
	case loc.readonly && !c.insideMemberOf(loc.owner):
		return v, newError(InvalidUseOfKeyword, "Variable '%s' is read-only", loc.name)
	case loc.object, loc.arraySize > 0:
		return v, newError(InvalidUseOfStruct, "Cannot assign to '%s'", loc.name)
	case !loc.pointer && !loc.dynamic && c.structOf(loc.typ) != nil:
		return v, newError(InvalidUseOfStruct, "Cannot assign to struct '%s'", loc.name)
	}
	return v, nil
}

func (c *Compiler) insideMemberOf(st *ScriptStruct) bool {
	if c.fn == nil || c.fn.owner == nil || st == nil {
		return false
	}
	return c.fn.owner.ExtendsChainContains(st)
}

func (c *Compiler) locationValue(loc location) exprValue {
	return exprValue{typ: loc.typ, pointer: loc.pointer, dynArray: loc.dynamic}
}

// load reads the value at loc into AX.
func (c *Compiler) load(loc location) {
	switch {
	case loc.pointer || loc.dynamic:
		c.gen.emit(bytecode.OpMemReadPtr, bytecode.RegAX)
	case loc.elemSize == 1:
		c.gen.emit(bytecode.OpMemReadB, bytecode.RegAX)
	case loc.elemSize == 2:
		c.gen.emit(bytecode.OpMemReadW, bytecode.RegAX)
	default:
		c.gen.emit(bytecode.OpMemRead, bytecode.RegAX)
	}
}

// store writes AX to loc.
func (c *Compiler) store(loc location) error {
	if loc.attribute != nil {
		return c.genAttributeCall(loc, true)
	}
	switch {
	case loc.pointer || loc.dynamic:
		c.gen.emit(bytecode.OpMemWritePtr, bytecode.RegAX)
	case loc.elemSize == 1:
		c.gen.emit(bytecode.OpMemWriteB, bytecode.RegAX)
	case loc.elemSize == 2:
		c.gen.emit(bytecode.OpMemWriteW, bytecode.RegAX)
	default:
		c.gen.emit(bytecode.OpMemWrite, bytecode.RegAX)
	}
	return nil
}

// loadValue turns a location into a value in AX.
func (c *Compiler) loadValue(loc location) (exprValue, error) {
	if loc.attribute != nil {
		return c.locationValue(loc), c.genAttributeCall(loc, false)
	}
	if loc.arraySize > 0 {
		return exprValue{}, newError(InvalidUseOfStruct, "Cannot use array '%s' without an index", loc.name)
	}
	if loc.object || (!loc.pointer && !loc.dynamic && c.structOf(loc.typ) != nil) {
		return exprValue{}, newError(InvalidUseOfStruct, "Cannot use struct '%s' as a value", loc.name)
	}
	c.load(loc)
	return c.locationValue(loc), nil
}

// unwrapParens strips brackets that enclose the whole range.
func unwrapParens(ns *Namespace, toks []TokenID) []TokenID {
	for len(toks) >= 2 && ns.Get(toks[0]).IsKeyword(SymOpenParenthesis) && matchingClose(ns, toks, 0) == len(toks)-1 {
		toks = toks[1 : len(toks)-1]
	}
	return toks
}

func matchingClose(ns *Namespace, toks []TokenID, open int) int {
	depth := 0
	for i := open; i < len(toks); i++ {
		t := ns.Get(toks[i])
		switch {
		case isOpenBracket(t):
			depth++
		case isCloseBracket(t):
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func (c *Compiler) genTerminal(toks []TokenID) (exprValue, error) {
	if len(toks) == 0 {
		return exprValue{}, newError(UnexpectedToken, "Expression expected")
	}
	if inner := unwrapParens(c.ns, toks); len(inner) != len(toks) {
		if len(inner) == 0 {
			return exprValue{}, newError(UnexpectedToken, "Expression expected")
		}
		return c.genExpression(inner)
	}

	first := c.ns.Get(toks[0])
	if len(toks) == 1 {
		switch {
		case first.IsStringLiteral():
			s, err := first.StringValue()
			if err != nil {
				return exprValue{}, err
			}
			c.gen.literal(bytecode.RegAX, int32(c.out.AddString(s)))
			c.out.AddFixup(c.gen.lastOperand(), bytecode.FixupString)
			return exprValue{typ: c.types.stringT, literal: true}, nil
		case first.Kind == KindLiteral:
			if f, ok := first.FloatValue(); ok {
				c.gen.literal(bytecode.RegAX, int32(math.Float32bits(f)))
				return exprValue{typ: c.types.floatT}, nil
			}
			n, ok := first.IntValue()
			if !ok {
				return exprValue{}, newError(UnexpectedToken, "Invalid literal '%s'", first.Name)
			}
			c.gen.literal(bytecode.RegAX, int32(n))
			return exprValue{typ: c.types.intT}, nil
		case first.IsKeyword(SymNull):
			c.gen.literal(bytecode.RegAX, 0)
			return exprValue{isNull: true}, nil
		case first.Type == BoundConstant:
			n, _ := first.Constant()
			c.gen.literal(bytecode.RegAX, int32(n))
			return exprValue{typ: c.types.intT}, nil
		}
	}
	if first.IsKeyword(SymNew) {
		return c.genNew(toks)
	}

	r := newExpressionReader(c.ns, toks, c.src.Line(), c.src.Unit())
	loc, val, isValue, err := c.genChain(r)
	if err != nil {
		return val, err
	}
	if !r.AtEnd() {
		return val, r.unexpected(r.Peek())
	}
	if isValue {
		return val, nil
	}
	return c.loadValue(loc)
}

// genNew compiles "new Type[size]".
func (c *Compiler) genNew(toks []TokenID) (exprValue, error) {
	r := newExpressionReader(c.ns, toks, c.src.Line(), c.src.Unit())
	r.ReadNext()
	typeID, err := r.ReadNextAsVariableType()
	if err != nil {
		return exprValue{}, err
	}
	if err := r.ExpectKeyword(SymOpenSquareBracket); err != nil {
		return exprValue{}, err
	}
	size, err := r.ReadExpression(SymCloseSquareBracket)
	if err != nil {
		return exprValue{}, err
	}
	if err := r.ExpectKeyword(SymCloseSquareBracket); err != nil {
		return exprValue{}, err
	}
	if !r.AtEnd() {
		return exprValue{}, r.unexpected(r.Peek())
	}
	sv, err := c.buildVariable(typeID, false, 0, false, nil)
	if err != nil {
		return exprValue{}, err
	}
	v, err := c.genExpression(size)
	if err != nil {
		return v, err
	}
	if err := c.checkAssignable(exprValue{typ: c.types.intT}, v); err != nil {
		return v, err
	}
	managed := int32(0)
	if sv.IsPointer {
		managed = 1
	}
	c.gen.emit(bytecode.OpNewArray, bytecode.RegAX, int32(sv.ElementSize), managed)
	return exprValue{typ: typeID, pointer: sv.IsPointer, dynArray: true}, nil
}

// genChain compiles a name followed by any number of index, member and
// call suffixes. It returns either a location with its address in MAR or,
// when the chain ends in a call, a value in AX.
func (c *Compiler) genChain(r *ScriptReader) (loc location, val exprValue, isValue bool, err error) {
	id := r.ReadNext()
	t := c.ns.Get(id)
	switch {
	case t.IsKeyword(SymThis):
		if c.fn == nil || c.fn.owner == nil {
			return loc, val, false, newError(InvalidUseOfKeyword, "'this' can only be used in a member function")
		}
		c.gen.move(bytecode.RegOP, bytecode.RegMAR)
		loc = location{name: "this", typ: c.fn.owner.Token, object: true, elemSize: c.fn.owner.SizeInBytes}
	case t.Type == BoundLocalVariable:
		lv, _ := t.Local()
		c.gen.stackAddress(lv.StackOffset)
		loc = variableLocation(&lv.ScriptVariable)
	case t.Type == BoundGlobalVariable:
		gv, _ := t.Global()
		if gv.IsImported {
			gv.IsAccessed = true
			if gv.ImportIndex < 0 {
				gv.ImportIndex = c.out.AddImport(gv.Name)
			}
			c.gen.literal(bytecode.RegMAR, int32(gv.ImportIndex))
			c.out.AddFixup(c.gen.lastOperand(), bytecode.FixupImport)
		} else {
			c.gen.literal(bytecode.RegMAR, int32(gv.Offset))
			c.out.AddFixup(c.gen.lastOperand(), bytecode.FixupGlobalData)
		}
		loc = variableLocation(&gv.ScriptVariable)
		if !gv.IsImported {
			loc.readonly = false
		}
	case t.Type == BoundFunction:
		f, _ := t.Function()
		if err := r.ExpectKeyword(SymOpenParenthesis); err != nil {
			return loc, val, false, err
		}
		if val, err = c.genCall(r, f, false); err != nil {
			return loc, val, true, err
		}
		isValue = true
	case t.Type == BoundStructType:
		st, _ := t.Struct()
		if err := r.ExpectKeyword(SymDot); err != nil {
			return loc, val, false, err
		}
		name := r.Read()
		f := st.Function(name.Name)
		if f == nil || !f.Modifiers.Has(SymStatic) {
			return loc, val, false, newError(InvalidUseOfStruct, "'%s' is not a static member function of '%s'", name.Name, st.Name)
		}
		if err := r.ExpectKeyword(SymOpenParenthesis); err != nil {
			return loc, val, false, err
		}
		if val, err = c.genCall(r, f, false); err != nil {
			return loc, val, true, err
		}
		isValue = true
	case t.Kind == KindPlain && !t.Defined:
		return loc, val, false, newError(UndefinedToken, "Undefined token '%s'", t.Name)
	default:
		return loc, val, false, r.unexpected(t)
	}

	for {
		switch {
		case r.PeekIsKeyword(SymOpenSquareBracket):
			if isValue {
				return loc, val, isValue, r.unexpected(r.Peek())
			}
			r.ReadNext()
			if loc, err = c.genIndex(r, loc); err != nil {
				return loc, val, false, err
			}
		case r.PeekIsKeyword(SymDot):
			r.ReadNext()
			if isValue {
				if !val.pointer || val.dynArray || c.structOf(val.typ) == nil {
					return loc, val, isValue, newError(InvalidUseOfStruct, "Cannot use '.' on '%s'", c.typeName(val))
				}
				c.gen.emit(bytecode.OpCheckNullReg, bytecode.RegAX)
				c.gen.move(bytecode.RegAX, bytecode.RegMAR)
				st := c.structOf(val.typ)
				loc = location{name: st.Name, typ: val.typ, object: true, elemSize: st.SizeInBytes}
				isValue = false
			}
			if loc, val, isValue, err = c.genMember(r, loc); err != nil {
				return loc, val, isValue, err
			}
		default:
			return loc, val, isValue, nil
		}
	}
}

func (c *Compiler) genIndex(r *ScriptReader, loc location) (location, error) {
	if loc.arraySize == 0 && !loc.dynamic {
		return loc, newError(UnexpectedToken, "'%s' is not an array", loc.name)
	}
	index, err := r.ReadExpression(SymCloseSquareBracket)
	if err != nil {
		return loc, err
	}
	if err := r.ExpectKeyword(SymCloseSquareBracket); err != nil {
		return loc, err
	}
	if loc.dynamic {
		c.gen.emit(bytecode.OpMemReadPtr, bytecode.RegMAR)
		c.gen.emit(bytecode.OpCheckNull)
	}
	c.gen.push(bytecode.RegMAR)
	v, err := c.genExpression(index)
	if err != nil {
		return loc, err
	}
	if err := c.checkAssignable(exprValue{typ: c.types.intT}, v); err != nil {
		return loc, newError(TypeMismatch, "Array index must be an integer")
	}
	c.gen.pop(bytecode.RegMAR)
	if loc.dynamic {
		c.gen.emit(bytecode.OpDynamicBounds, bytecode.RegAX)
	} else {
		c.gen.emit(bytecode.OpCheckBounds, bytecode.RegAX, int32(loc.arraySize))
	}
	if loc.elemSize != 1 {
		c.gen.emit(bytecode.OpMul, bytecode.RegAX, int32(loc.elemSize))
	}
	c.gen.emit(bytecode.OpAddReg, bytecode.RegMAR, bytecode.RegAX)
	loc.arraySize, loc.dynamic = 0, false
	return loc, nil
}

// genMember compiles ".name" or ".name(...)" applied to loc.
func (c *Compiler) genMember(r *ScriptReader, loc location) (location, exprValue, bool, error) {
	if loc.arraySize > 0 || loc.dynamic {
		return loc, exprValue{}, false, newError(InvalidUseOfStruct, "Cannot use '.' on array '%s'", loc.name)
	}
	st := c.structOf(loc.typ)
	if st == nil {
		return loc, exprValue{}, false, newError(InvalidUseOfStruct, "'%s' is not a struct", loc.name)
	}
	if loc.pointer {
		c.gen.emit(bytecode.OpMemReadPtr, bytecode.RegMAR)
		c.gen.emit(bytecode.OpCheckNull)
	}
	name := r.Read()
	if name.Kind == KindEndOfStream {
		return loc, exprValue{}, false, r.unexpected(name)
	}

	if r.NextIsKeyword(SymOpenParenthesis) {
		f := st.Function(name.Name)
		if f == nil {
			return loc, exprValue{}, false, newError(UndefinedToken, "'%s' is not a member of '%s'", name.Name, st.Name)
		}
		if err := c.checkProtected(f.Modifiers, f.Owner, name.Name); err != nil {
			return loc, exprValue{}, false, err
		}
		v, err := c.genCall(r, f, !f.Modifiers.Has(SymStatic))
		return loc, v, true, err
	}

	m := st.Member(name.Name)
	if m == nil {
		if st.Function(name.Name) != nil {
			return loc, exprValue{}, false, newError(UnexpectedToken, "Member function '%s' must be called", name.Name)
		}
		return loc, exprValue{}, false, newError(UndefinedToken, "'%s' is not a member of '%s'", name.Name, st.Name)
	}
	if err := c.checkProtected(m.Modifiers, st, name.Name); err != nil {
		return loc, exprValue{}, false, err
	}
	next := variableLocation(&m.ScriptVariable)
	next.owner = st
	if m.IsAttributeProperty {
		next.attribute = m
		return next, exprValue{}, false, nil
	}
	if m.Offset != 0 {
		c.gen.emit(bytecode.OpAdd, bytecode.RegMAR, int32(m.Offset))
	}
	return next, exprValue{}, false, nil
}

func (c *Compiler) checkProtected(mods Modifiers, owner *ScriptStruct, name string) error {
	if mods.Has(SymProtected) && !c.insideMemberOf(owner) {
		return newError(InvalidUseOfKeyword, "'%s' is protected and cannot be accessed from here", name)
	}
	return nil
}

// genAttributeCall calls the accessor of an attribute for the object in
// MAR. A setter takes the value from AX.
func (c *Compiler) genAttributeCall(loc location, set bool) error {
	prefix := "::get_"
	if set {
		prefix = "::set_"
	}
	idx := c.out.AddImport(loc.owner.Name + prefix + loc.name)
	if set {
		c.gen.emit(bytecode.OpPushReal, bytecode.RegAX)
	}
	c.gen.emit(bytecode.OpCallObj, bytecode.RegMAR)
	n := int32(0)
	if set {
		n = 1
	}
	c.gen.emit(bytecode.OpNumFuncArgs, n)
	c.gen.literal(bytecode.RegAX, int32(idx))
	c.out.AddFixup(c.gen.lastOperand(), bytecode.FixupImport)
	c.gen.emit(bytecode.OpCallExt, bytecode.RegAX)
	if set {
		c.gen.emit(bytecode.OpSubRealStack, 1)
	}
	return nil
}

// genCall compiles the argument list of a call to f; the '(' has been
// consumed. For a member call the object address is in MAR.
func (c *Compiler) genCall(r *ScriptReader, f *ScriptFunction, member bool) (exprValue, error) {
	var args [][]TokenID
	if !r.NextIsKeyword(SymCloseParenthesis) {
		for {
			arg, err := r.ReadExpression(SymComma, SymCloseParenthesis)
			if err != nil {
				return exprValue{}, err
			}
			if len(arg) == 0 {
				return exprValue{}, newError(UnexpectedToken, "Argument expected in call to '%s'", f.FullName())
			}
			args = append(args, arg)
			if r.NextIsKeyword(SymCloseParenthesis) {
				break
			}
			if err := r.ExpectKeyword(SymComma); err != nil {
				return exprValue{}, err
			}
		}
	}
	if len(args) < f.RequiredArgs() || (len(args) > len(f.Parameters) && !f.VariableArguments) {
		return exprValue{}, newError(WrongNumberOfArguments, "Wrong number of arguments in call to '%s'", f.FullName())
	}

	external := f.IsImported && f.Prototype != PrototypeDefined
	objectAt := 0
	if member {
		objectAt = c.gen.sp
		c.gen.push(bytecode.RegMAR)
	}

	n := len(args)
	if n < len(f.Parameters) {
		n = len(f.Parameters)
	}
	for i := n - 1; i >= 0; i-- {
		if i < len(args) {
			v, err := c.genExpression(args[i])
			if err != nil {
				return v, err
			}
			if i < len(f.Parameters) {
				p := f.Parameters[i]
				want := exprValue{typ: p.Type, pointer: p.IsPointer, dynArray: p.IsArray}
				if err := c.checkAssignable(want, v); err != nil {
					return v, err
				}
			} else if v.void {
				return v, newError(TypeMismatch, "Cannot pass a void value to '%s'", f.FullName())
			}
		} else {
			c.gen.literal(bytecode.RegAX, f.Parameters[i].Default)
		}
		if external {
			c.gen.emit(bytecode.OpPushReal, bytecode.RegAX)
		} else {
			c.gen.push(bytecode.RegAX)
		}
	}

	if member {
		c.gen.stackAddress(objectAt)
		c.gen.emit(bytecode.OpMemRead, bytecode.RegMAR)
		c.gen.emit(bytecode.OpCallObj, bytecode.RegMAR)
	}
	if external {
		if f.ImportIndex < 0 {
			f.ImportIndex = c.out.AddImport(f.FullName())
		}
		c.gen.emit(bytecode.OpNumFuncArgs, int32(n))
		c.gen.literal(bytecode.RegAX, int32(f.ImportIndex))
		c.out.AddFixup(c.gen.lastOperand(), bytecode.FixupImport)
		c.gen.emit(bytecode.OpCallExt, bytecode.RegAX)
		if n > 0 {
			c.gen.emit(bytecode.OpSubRealStack, int32(n))
		}
	} else {
		c.gen.literal(bytecode.RegAX, 0)
		at := c.gen.lastOperand()
		c.out.AddFixup(at, bytecode.FixupFunction)
		c.calls = append(c.calls, pendingCall{at: at, fn: f, line: c.src.Line(), unit: c.src.Unit()})
		c.gen.emit(bytecode.OpCall, bytecode.RegAX)
		c.gen.shrinkStack(4 * n)
	}
	if member {
		c.gen.shrinkStack(4)
	}

	if f.ReturnType == c.types.voidT {
		return exprValue{void: true}, nil
	}
	return exprValue{typ: f.ReturnType, pointer: f.ReturnsPointer}, nil
}
