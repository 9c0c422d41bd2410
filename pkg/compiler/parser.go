package compiler

import (
	"errors"
	"math"
)

type builtinTypes struct {
	intT, floatT, stringT, voidT, charT, shortT TokenID
}

type pendingCall struct {
	at   int // code index of the operand holding the function address
	fn   *ScriptFunction
	line int
	unit string
}

// Compiler turns the token stream of one unit into a CompiledScript. It
// parses declarations at the top level and hands function bodies to the
// statement compiler in block.go.
type Compiler struct {
	ns      *Namespace
	src     *ScriptReader
	state   *CompilerState
	out     *CompiledScript
	gen     *CodeGen
	results *Results
	opts    Options
	types   builtinTypes

	modifiers map[PredefinedSymbol]*Token

	fn        *functionContext
	functions []*ScriptFunction // functions in declaration order
	calls     []pendingCall
	exported  []TokenID
}

func newCompiler(ns *Namespace, stream []TokenID, out *CompiledScript, results *Results, opts Options) *Compiler {
	c := &Compiler{
		ns:      ns,
		src:     NewScriptReader(ns, stream),
		state:   &CompilerState{},
		out:     out,
		gen:     newCodeGen(out, opts.LineNumbers),
		results: results,
		opts:    opts,
	}
	c.types = builtinTypes{
		intT:    ns.MustLookup("int"),
		floatT:  ns.MustLookup("float"),
		stringT: ns.MustLookup("string"),
		voidT:   ns.MustLookup("void"),
		charT:   ns.MustLookup("char"),
		shortT:  ns.MustLookup("short"),
	}
	c.modifiers = make(map[PredefinedSymbol]*Token)
	for name, sym := range modifierSymbols {
		if id, ok := ns.Lookup(name); ok {
			c.modifiers[sym] = ns.Get(id)
		}
	}
	return c
}

// Run compiles the whole stream. After a user error the reader skips to the
// end of the current top-level declaration and carries on; an internal
// error stops the unit.
func (c *Compiler) Run() {
	for !c.src.AtEnd() {
		if err := c.topLevel(); err != nil {
			if !c.record(err) {
				return
			}
			c.recover()
		}
	}
	if err := c.finish(); err != nil {
		c.record(err)
	}
}

// record adds err to the results and reports whether compilation may go on.
func (c *Compiler) record(err error) bool {
	var m *Message
	if !errors.As(err, &m) {
		m = internalError("%v", err)
	}
	if m.Line == 0 {
		m.Line = c.src.Line()
	}
	if m.Unit == "" {
		m.Unit = c.src.Unit()
	}
	c.results.Add(m)
	return !m.IsInternal()
}

func (c *Compiler) warn(code ErrorCode, format string, args ...any) {
	m := newWarning(code, format, args...)
	m.Line, m.Unit = c.src.Line(), c.src.Unit()
	c.results.Add(m)
}

// recover discards the rest of the failed declaration: everything up to a
// ';' or a closing '}' at brace depth zero.
func (c *Compiler) recover() {
	c.state.NextTokenModifiers = Modifiers{}
	for _, v := range c.state.Scopes.All() {
		c.ns.Get(v.Token).Undefine()
	}
	c.state.Scopes.Reset()
	c.fn = nil
	c.gen.reset()

	last := c.ns.Get(c.src.Last())
	for {
		if c.src.Depth() <= 0 {
			if last.IsKeyword(SymSemicolon) {
				break
			}
			if last.IsKeyword(SymCloseBrace) {
				c.src.NextIsKeyword(SymSemicolon)
				break
			}
		}
		if c.src.AtEnd() {
			break
		}
		last = c.src.Read()
	}
	c.src.depth = 0
}

func (c *Compiler) topLevel() error {
	id := c.src.ReadNext()
	t := c.ns.Get(id)
	switch {
	case t.Kind == KindModifier:
		if !c.state.NextTokenModifiers.Add(t.Symbol) {
			return newError(InvalidModifier, "Modifier '%s' specified more than once", t.Name)
		}
		return nil
	case t.IsKeyword(SymStruct):
		if typeID, ok := c.structTypeReference(); ok {
			return c.declaration(typeID)
		}
		return c.structDeclaration()
	case t.IsKeyword(SymEnum):
		return c.enumDeclaration()
	case t.IsKeyword(SymExport):
		return c.exportDeclaration()
	case t.IsVariableType:
		return c.declaration(id)
	case t.Kind == KindKeyword:
		return newError(InvalidUseOfKeyword, "Invalid use of '%s'", t.Name)
	}
	return c.src.unexpected(t)
}

// structTypeReference handles the C-style "struct Name var" form: after
// the struct keyword, a complete struct followed by a variable name is a
// type reference, not a declaration. On a match the name is consumed.
func (c *Compiler) structTypeReference() (TokenID, bool) {
	c.src.PushLocation()
	id := c.src.ReadNext()
	t := c.ns.Get(id)
	if t.Type == BoundStructType {
		st, _ := t.Struct()
		next := c.src.Peek()
		if !st.PrototypeOnly && (next.Kind == KindPlain || (next.Kind == KindOperator && next.Name == "*")) {
			c.src.DeletePushedLocation()
			return id, true
		}
	}
	c.src.PopLocation()
	return 0, false
}

func (c *Compiler) verifyModifiers(target ModifierTargets, mods Modifiers) error {
	for _, sym := range mods.syms {
		if t := c.modifiers[sym]; t != nil && t.Targets&target == 0 {
			return newError(InvalidModifier, "'%s' is not valid in this context", t.Name)
		}
	}
	return nil
}

// declaration parses a global variable list or a function after its type.
func (c *Compiler) declaration(typeID TokenID) error {
	mods := c.state.TakeModifiers()
	for {
		isPointer := c.src.IgnoreAsteriskIfPresent()
		nameID := c.src.ReadNext()
		name := c.ns.Get(nameID)

		if name.Type == BoundStructType && c.src.NextIsKeyword(SymMemberOf) {
			return c.memberFunctionBody(typeID, isPointer, mods, nameID)
		}
		if c.src.NextIsKeyword(SymOpenParenthesis) {
			return c.functionDeclaration(typeID, isPointer, mods, nameID)
		}
		if err := c.globalVariable(typeID, isPointer, mods, nameID); err != nil {
			return err
		}
		if !c.src.NextIsKeyword(SymComma) {
			return c.src.ExpectKeyword(SymSemicolon)
		}
	}
}

// readArraySuffix parses "[N]" or "[]" after a variable name.
func (c *Compiler) readArraySuffix() (size int, dynamic bool, err error) {
	if !c.src.NextIsKeyword(SymOpenSquareBracket) {
		return 0, false, nil
	}
	if c.src.NextIsKeyword(SymCloseSquareBracket) {
		return 0, true, nil
	}
	size, err = c.src.ReadNextAsConstInt()
	if err != nil {
		return 0, false, err
	}
	if size <= 0 {
		return 0, false, newError(ConstIntExpected, "Array size must be a positive integer")
	}
	return size, false, c.src.ExpectKeyword(SymCloseSquareBracket)
}

// buildVariable works out storage for a variable of typeID. container is
// the struct being declared when the variable is one of its members.
func (c *Compiler) buildVariable(typeID TokenID, explicitPointer bool, arraySize int, dynamic bool, container *ScriptStruct) (ScriptVariable, error) {
	t := c.ns.Get(typeID)
	v := ScriptVariable{Type: typeID, ArraySize: arraySize, IsDynamicArray: dynamic}
	switch {
	case t.Type == BoundStructType:
		st, err := t.Struct()
		if err != nil {
			return v, err
		}
		switch {
		case st.IsManaged:
			v.IsPointer = true
			v.ElementSize = PointerSize
			if container != nil && st != container && st.HasNonImportedMemberOfType(container.Token) {
				return v, newError(CircularReference, "The type '%s' has a reference to this struct, so you cannot also have a reference this way round", st.Name)
			}
		case st == container:
			return v, newError(StructInsideItself, "A struct cannot be contained within itself")
		case st.PrototypeOnly:
			return v, newError(CannotUseTypeInStruct, "Struct '%s' has only been declared as a prototype", st.Name)
		case explicitPointer:
			return v, newError(InvalidUseOfStruct, "Cannot declare a pointer to non-managed struct '%s'", st.Name)
		default:
			v.ElementSize = st.SizeInBytes
		}
	case t.Kind == KindScalarType:
		if t.SizeInBytes == 0 {
			return v, newError(CannotUseTypeInStruct, "Cannot declare a variable of type '%s'", t.Name)
		}
		if explicitPointer {
			return v, newError(UnexpectedToken, "Cannot declare a pointer to '%s'", t.Name)
		}
		v.ElementSize = t.SizeInBytes
	case t.Type == BoundEnumType:
		v.ElementSize = EnumSize
	default:
		return v, newError(CannotUseTypeInStruct, "Cannot add variable of type '%s' to struct", t.Name)
	}
	switch {
	case dynamic:
		v.Size = PointerSize
	case arraySize > 0:
		v.Size = v.ElementSize * arraySize
	default:
		v.Size = v.ElementSize
	}
	return v, nil
}

func (c *Compiler) checkVariableName(t *Token) error {
	if t.Kind != KindPlain {
		if t.Kind == KindEndOfStream {
			return c.src.unexpected(t)
		}
		return newError(TokenAlreadyDefined, "Cannot use '%s' as variable name since it has another meaning", t.Name)
	}
	return nil
}

func (c *Compiler) globalVariable(typeID TokenID, isPointer bool, mods Modifiers, nameID TokenID) error {
	name := c.ns.Get(nameID)
	if err := c.checkVariableName(name); err != nil {
		return err
	}
	var importedVersion *FixedOffsetVariable
	if name.Defined {
		if name.Type == BoundGlobalVariable {
			if prev, _ := name.Global(); prev.IsImported && !prev.IsAccessed && !mods.Has(SymImport) {
				importedVersion = prev
			}
		}
		if importedVersion == nil {
			return newError(TokenAlreadyDefined, "Token '%s' is already defined", name.Name)
		}
	}
	if err := c.verifyModifiers(TargetGlobalVariable, mods); err != nil {
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
	sv.Name = name.Name
	sv.Modifiers = mods
	v := &FixedOffsetVariable{ScriptVariable: sv, IsImported: mods.Has(SymImport), ImportIndex: -1}

	if c.src.NextIsKeyword(SymSetEqual) {
		if v.IsImported {
			return newError(UnexpectedToken, "Imported variable '%s' cannot have a default value", v.Name)
		}
		if v.DefaultValue, err = c.readDefault(sv); err != nil {
			return err
		}
	}
	if importedVersion != nil {
		if !importedVersion.Equal(v) {
			return newError(NewDefinitionIsDifferent, "New definition of '%s' does not match previous one", name.Name)
		}
		c.removeGlobal(importedVersion)
	}

	c.out.GlobalData.Add(v)
	name.DefineGlobal(v)
	name.ArraySize, name.IsDynamicArray = size, dynamic
	return nil
}

func (c *Compiler) removeGlobal(v *FixedOffsetVariable) {
	members := c.out.GlobalData.Members
	for i, m := range members {
		if m == v {
			c.out.GlobalData.Members = append(members[:i], members[i+1:]...)
			return
		}
	}
}

// readDefault reads the constant initialiser of a global variable.
func (c *Compiler) readDefault(v ScriptVariable) (int32, error) {
	if v.IsPointer || v.IsDynamicArray {
		if c.src.NextIsKeyword(SymNull) {
			return 0, nil
		}
		return 0, newError(TypeMismatch, "Only null can initialise a pointer")
	}
	if v.IsArray() {
		return 0, newError(UnexpectedToken, "Arrays cannot have a default value")
	}
	if v.Type != c.types.floatT {
		n, err := c.src.ReadNextAsConstInt()
		return int32(n), err
	}
	negative := false
	t := c.src.Read()
	if t.Kind == KindOperator && t.Name == "-" {
		negative = true
		t = c.src.Read()
	}
	f, ok := t.FloatValue()
	if !ok {
		n, isInt := t.IntValue()
		if !isInt {
			return 0, newError(ConstIntExpected, "A constant number was expected at '%s'", t.Name)
		}
		f = float32(n)
	}
	if negative {
		f = -f
	}
	return int32(math.Float32bits(f)), nil
}

func (c *Compiler) verifyReturnType(typeID TokenID) error {
	t := c.ns.Get(typeID)
	if t.Type == BoundStructType {
		if st, _ := t.Struct(); !st.IsManaged {
			return newError(CannotReturnStructFromFunction, "Cannot return a non-managed struct from a function")
		}
	}
	return nil
}

// parameterList parses the parameters after '(' up to and including ')'.
func (c *Compiler) parameterList(f *ScriptFunction) (anonymous bool, err error) {
	if c.src.NextIsKeyword(SymCloseParenthesis) {
		return false, nil
	}
	for {
		var mods Modifiers
		for c.src.Peek().Kind == KindModifier {
			mods.Add(c.src.Read().Symbol)
		}
		if c.src.NextIsKeyword(SymVariableArguments) {
			f.VariableArguments = true
			if !c.src.NextIsKeyword(SymCloseParenthesis) {
				return anonymous, newError(UnexpectedToken, "Variable arguments must be the last parameter")
			}
			return anonymous, nil
		}
		typeID, err := c.src.ReadNextAsVariableType()
		if err != nil {
			return anonymous, err
		}
		explicitPointer := c.src.IgnoreAsteriskIfPresent()
		if err := c.verifyModifiers(TargetParameter, mods); err != nil {
			return anonymous, err
		}
		p := &FunctionParameter{Type: typeID, Modifiers: mods, IsPointer: explicitPointer}
		pt := c.ns.Get(typeID)
		if pt.Type == BoundStructType {
			st, _ := pt.Struct()
			if !st.IsManaged {
				return anonymous, newError(CannotPassStructToFunction, "Cannot pass a non-managed struct to a function")
			}
			p.IsPointer = true
		} else if pt.Kind == KindScalarType && pt.SizeInBytes == 0 {
			return anonymous, newError(VariableTypeExpected, "Parameters cannot be of type '%s'", pt.Name)
		}

		next := c.src.Peek()
		if next.Kind == KindPlain && !next.Defined {
			p.Name = c.src.Read().Name
		} else if next.Kind == KindPlain {
			return anonymous, newError(TokenAlreadyDefined, "Token '%s' is already defined", next.Name)
		} else {
			anonymous = true
		}
		if c.src.NextIsKeyword(SymOpenSquareBracket) {
			if err := c.src.ExpectKeyword(SymCloseSquareBracket); err != nil {
				return anonymous, err
			}
			p.IsArray = true
		}
		if c.src.NextIsKeyword(SymSetEqual) {
			if c.src.NextIsKeyword(SymNull) {
				p.Default = 0
			} else {
				n, err := c.src.ReadNextAsConstInt()
				if err != nil {
					return anonymous, err
				}
				p.Default = int32(n)
			}
			p.HasDefault = true
		}
		f.Parameters = append(f.Parameters, p)
		if c.src.NextIsKeyword(SymCloseParenthesis) {
			return anonymous, nil
		}
		if err := c.src.ExpectKeyword(SymComma, SymCloseParenthesis); err != nil {
			return anonymous, err
		}
	}
}

func (c *Compiler) newFunction(returnType TokenID, returnsPointer bool, mods Modifiers, nameID TokenID) *ScriptFunction {
	rt := c.ns.Get(returnType)
	if rt.Type == BoundStructType {
		returnsPointer = true
	}
	return &ScriptFunction{
		Name:           c.ns.Get(nameID).Name,
		Token:          nameID,
		ReturnType:     returnType,
		ReturnsPointer: returnsPointer,
		Modifiers:      mods,
		ImportIndex:    -1,
		Line:           c.src.Line(),
	}
}

// functionDeclaration parses a global function prototype or definition;
// the '(' has been consumed.
func (c *Compiler) functionDeclaration(returnType TokenID, returnsPointer bool, mods Modifiers, nameID TokenID) error {
	name := c.ns.Get(nameID)
	var existing *ScriptFunction
	if err := c.checkVariableName(name); err != nil {
		return err
	}
	if name.Defined {
		if name.Type == BoundFunction {
			existing, _ = name.Function()
		}
		if existing == nil || existing.Prototype == PrototypeDefined {
			return newError(TokenAlreadyDefined, "Token '%s' is already defined", name.Name)
		}
	}
	if err := c.verifyModifiers(TargetGlobalFunction, mods); err != nil {
		return err
	}
	if err := c.verifyReturnType(returnType); err != nil {
		return err
	}
	f := c.newFunction(returnType, returnsPointer, mods, nameID)
	anonymous, err := c.parameterList(f)
	if err != nil {
		return err
	}

	if c.src.NextIsKeyword(SymSemicolon) {
		f.Prototype = PrototypeOnly
		f.IsImported = mods.Has(SymImport)
		if existing != nil {
			return c.mergePrototype(existing, f, false)
		}
		name.DefineFunction(f)
		c.functions = append(c.functions, f)
		return nil
	}

	if !c.src.PeekIsKeyword(SymOpenBrace) {
		return c.src.ExpectKeyword(SymSemicolon, SymOpenBrace)
	}
	if anonymous {
		return newError(AnonymousParameterInFunctionBody, "One or more parameters did not have a name")
	}
	if mods.Has(SymImport) {
		return newError(InvalidUseOfKeyword, "Imported function '%s' cannot have a body", f.Name)
	}
	if existing != nil {
		if err := c.mergePrototype(existing, f, true); err != nil {
			return err
		}
		f = existing
	} else {
		name.DefineFunction(f)
		c.functions = append(c.functions, f)
	}
	f.Prototype = PrototypeDefined
	f.IsImported = false
	return c.functionBody(f)
}

// mergePrototype folds a later declaration of the same function into the
// earlier one. The import modifier does not take part in the comparison.
func (c *Compiler) mergePrototype(existing, f *ScriptFunction, withBody bool) error {
	if !existing.SameSignature(f) {
		return newError(NewDefinitionIsDifferent, "New definition of '%s' does not match previous one", f.FullName())
	}
	if !existing.Modifiers.Without(SymImport).HasSameModifiers(f.Modifiers.Without(SymImport)) {
		return newError(DifferentModifierInPrototype, "This function has different modifiers to the prototype")
	}
	for i, p := range f.Parameters {
		q := existing.Parameters[i]
		if withBody {
			q.Name = p.Name
		}
		if p.HasDefault && !q.HasDefault {
			q.HasDefault, q.Default = true, p.Default
		}
	}
	return nil
}

// memberFunctionBody parses "Type Struct::name(...) { ... }"; the "::"
// has been consumed.
func (c *Compiler) memberFunctionBody(returnType TokenID, returnsPointer bool, mods Modifiers, structID TokenID) error {
	st, err := c.ns.Get(structID).Struct()
	if err != nil {
		return err
	}
	memberName := c.src.Read()
	existing := st.Function(memberName.Name)
	if existing == nil || existing.Owner != st {
		return newError(MemberFunctionNotDefined, "Struct '%s' has no member function '%s'", st.Name, memberName.Name)
	}
	if existing.Prototype == PrototypeDefined {
		return newError(TokenAlreadyDefined, "Function '%s' is already defined", existing.FullName())
	}
	if err := c.verifyModifiers(TargetMemberFunction, mods); err != nil {
		return err
	}
	if err := c.src.ExpectKeyword(SymOpenParenthesis); err != nil {
		return err
	}
	f := c.newFunction(returnType, returnsPointer, mods, structID)
	f.Name = existing.Name
	anonymous, err := c.parameterList(f)
	if err != nil {
		return err
	}
	if !existing.SameSignature(f) {
		return newError(NewDefinitionIsDifferent, "New definition of '%s' does not match previous one", existing.FullName())
	}
	if anonymous {
		return newError(AnonymousParameterInFunctionBody, "One or more parameters did not have a name")
	}
	if !c.src.PeekIsKeyword(SymOpenBrace) {
		return c.src.ExpectKeyword(SymOpenBrace)
	}
	if err := c.mergePrototype(existing, f, true); err != nil {
		return err
	}
	existing.Prototype = PrototypeDefined
	existing.IsImported = false
	c.functions = append(c.functions, existing)
	return c.functionBody(existing)
}

func (c *Compiler) structDeclaration() error {
	mods := c.state.TakeModifiers()
	if err := c.verifyModifiers(TargetStruct, mods); err != nil {
		return err
	}
	nameID := c.src.ReadNext()
	name := c.ns.Get(nameID)
	if err := c.checkVariableName(name); err != nil {
		return err
	}

	var st *ScriptStruct
	var prototypeMods *Modifiers
	if name.Defined {
		if name.Type == BoundStructType {
			if prev, _ := name.Struct(); prev.PrototypeOnly {
				st = prev
				pm := prev.Modifiers
				prototypeMods = &pm
			}
		}
		if st == nil {
			return newError(TokenAlreadyDefined, "Token '%s' is already defined", name.Name)
		}
	} else {
		st = &ScriptStruct{Name: name.Name, Token: nameID}
		name.DefineStruct(st)
	}
	if prototypeMods != nil && !mods.HasSameModifiers(*prototypeMods) {
		return newError(DifferentModifierInPrototype, "This struct has different modifiers to the prototype")
	}
	st.Modifiers = mods
	st.IsManaged = mods.Has(SymManaged)

	if c.src.NextIsKeyword(SymSemicolon) {
		st.PrototypeOnly = true
		return nil
	}
	st.PrototypeOnly = false

	if c.src.NextIsKeyword(SymExtends) {
		baseID, err := c.src.ReadNextAsVariableType()
		if err != nil {
			return newError(StructNameExpected, "Struct name expected at '%s'", c.ns.Get(baseID).Name)
		}
		bt := c.ns.Get(baseID)
		if bt.Type != BoundStructType {
			return newError(ParentIsNotAStruct, "Parent type '%s' is not a struct", bt.Name)
		}
		base, _ := bt.Struct()
		if base.ExtendsChainContains(st) {
			return newError(CircularReference, "Struct '%s' cannot extend '%s' because it would extend itself", st.Name, base.Name)
		}
		if base.PrototypeOnly {
			return newError(CannotExtendPrototypeStruct, "Cannot extend struct '%s' because it is only a prototype", base.Name)
		}
		if !mods.HasSameModifiers(base.Modifiers) {
			return newError(DifferentModifierInPrototype, "This struct has different modifiers to the base type")
		}
		st.Extends = base
		st.SizeInBytes = base.SizeInBytes
		st.Members = append(st.Members[:0:0], base.Members...)
	}

	if err := c.src.ExpectKeyword(SymOpenBrace); err != nil {
		return err
	}
	for !c.src.NextIsKeyword(SymCloseBrace) {
		id := c.src.ReadNext()
		t := c.ns.Get(id)
		switch {
		case t.Kind == KindModifier:
			if !c.state.NextTokenModifiers.Add(t.Symbol) {
				return newError(InvalidModifier, "Modifier '%s' specified more than once", t.Name)
			}
			continue
		case t.IsKeyword(SymStruct):
			id = c.src.ReadNext()
			if t = c.ns.Get(id); t.Type != BoundStructType {
				return newError(StructNameExpected, "Struct name expected at '%s'", t.Name)
			}
		case !t.IsVariableType:
			return c.src.unexpected(t)
		}
		memberMods := c.state.TakeModifiers()
		for {
			if err := c.structMember(id, st, memberMods); err != nil {
				return err
			}
			if !c.src.NextIsKeyword(SymComma) {
				break
			}
		}
		if err := c.src.ExpectKeyword(SymSemicolon); err != nil {
			return err
		}
	}
	if err := c.src.ExpectKeyword(SymSemicolon); err != nil {
		return err
	}
	c.out.Structs = append(c.out.Structs, st)
	return nil
}

func (c *Compiler) structMember(typeID TokenID, st *ScriptStruct, mods Modifiers) error {
	isPointer := c.src.IgnoreAsteriskIfPresent()
	member := c.src.Read()
	if err := c.checkVariableName(member); err != nil {
		return err
	}
	if st.Member(member.Name) != nil || st.Function(member.Name) != nil {
		return newError(TokenAlreadyDefined, "Member '%s::%s' already exists", st.Name, member.Name)
	}
	size, dynamic, err := c.readArraySuffix()
	if err != nil {
		return err
	}

	if c.src.NextIsKeyword(SymOpenParenthesis) {
		if err := c.verifyModifiers(TargetMemberFunction, mods); err != nil {
			return err
		}
		if err := c.verifyReturnType(typeID); err != nil {
			return err
		}
		f := c.newFunction(typeID, isPointer, mods, st.Token)
		f.Name = member.Name
		f.Owner = st
		if _, err := c.parameterList(f); err != nil {
			return err
		}
		f.Prototype = PrototypeOnly
		f.IsImported = mods.Has(SymImport)
		st.Functions = append(st.Functions, f)
		return nil
	}

	if err := c.verifyModifiers(TargetMemberVariable, mods); err != nil {
		return err
	}
	sv, err := c.buildVariable(typeID, isPointer, size, dynamic, st)
	if err != nil {
		return err
	}
	sv.Name = member.Name
	sv.Modifiers = mods
	v := &FixedOffsetVariable{
		ScriptVariable:      sv,
		IsAttributeProperty: mods.Has(SymAttribute),
		IsImported:          mods.Has(SymImport),
		ImportIndex:         -1,
	}
	if v.IsAttributeProperty && !v.IsImported {
		return newError(AttributesMustBeImported, "Attribute types must be imported")
	}
	if v.IsAttributeProperty && v.IsArray() {
		return newError(InvalidUseOfKeyword, "Attribute '%s' cannot be an array", v.Name)
	}
	if v.IsImported && !v.IsAttributeProperty {
		return newError(InvalidUseOfKeyword, "'import' is invalid in this context")
	}
	st.Add(v)
	return nil
}

func (c *Compiler) enumDeclaration() error {
	c.state.NextTokenModifiers = Modifiers{}
	nameID, err := c.src.ReadNextUndefined()
	if err != nil {
		return err
	}
	e := &ScriptEnum{Name: c.ns.Get(nameID).Name, Token: nameID}
	c.ns.Get(nameID).DefineEnum(e)

	if err := c.src.ExpectKeyword(SymOpenBrace); err != nil {
		return err
	}
	next := 0
	for !c.src.NextIsKeyword(SymCloseBrace) {
		entryID, err := c.src.ReadNextUndefined()
		if err != nil {
			return err
		}
		if c.src.NextIsKeyword(SymSetEqual) {
			if next, err = c.src.ReadNextAsConstInt(); err != nil {
				return err
			}
		}
		entry := c.ns.Get(entryID)
		e.Values = append(e.Values, EnumValue{Name: entry.Name, Value: next})
		entry.DefineConstant(next)
		next++

		if c.src.NextIsKeyword(SymCloseBrace) {
			break
		}
		if !c.src.NextIsKeyword(SymComma) {
			return newError(UnexpectedToken, "Expected comma at '%s'", c.src.Peek().Name)
		}
	}
	return c.src.ExpectKeyword(SymSemicolon)
}

func (c *Compiler) exportDeclaration() error {
	c.state.NextTokenModifiers = Modifiers{}
	for {
		id := c.src.ReadNext()
		t := c.ns.Get(id)
		switch t.Type {
		case BoundGlobalVariable:
			v, _ := t.Global()
			if v.IsImported {
				return newError(VariableAlreadyImported, "The variable '%s' has already been imported", t.Name)
			}
			v.IsExported = true
		case BoundFunction:
			f, _ := t.Function()
			if f.IsImported {
				return newError(VariableAlreadyImported, "The function '%s' has already been imported", t.Name)
			}
		default:
			return newError(GlobalVariableExpected, "Global variable expected at '%s'; it must be defined first", t.Name)
		}
		c.exported = append(c.exported, id)
		if !c.src.NextIsKeyword(SymComma) {
			break
		}
	}
	return c.src.ExpectKeyword(SymSemicolon)
}

// finish resolves calls to functions defined after their use and builds
// the function and export tables.
func (c *Compiler) finish() error {
	for _, call := range c.calls {
		if call.fn.Prototype != PrototypeDefined {
			m := newError(FunctionNotDefined, "Function '%s' is called but never defined", call.fn.FullName())
			m.Line, m.Unit = call.line, call.unit
			c.results.Add(m)
			continue
		}
		c.out.Code[call.at] = int32(call.fn.CodeOffset)
	}

	for _, f := range c.functions {
		if f.Prototype == PrototypeDefined {
			c.out.Functions = append(c.out.Functions, f)
		}
	}
	for _, id := range c.exported {
		t := c.ns.Get(id)
		switch t.Type {
		case BoundGlobalVariable:
			v, _ := t.Global()
			c.out.AddExport(Export{Name: v.Name, Offset: v.Offset})
		case BoundFunction:
			f, _ := t.Function()
			if f.Prototype != PrototypeDefined {
				m := newError(FunctionNotDefined, "Exported function '%s' is never defined", f.Name)
				m.Unit = c.src.Unit()
				c.results.Add(m)
				continue
			}
			c.out.AddExport(Export{Name: f.Name, Offset: f.CodeOffset, Function: true, NumParams: len(f.Parameters)})
		}
	}
	if c.opts.ExportAll {
		for _, f := range c.out.Functions {
			c.out.AddExport(Export{Name: f.FullName(), Offset: f.CodeOffset, Function: true, NumParams: len(f.Parameters)})
		}
	}
	return c.gen.Err()
}
