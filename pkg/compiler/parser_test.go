package compiler

import (
	"testing"
)

func TestDeclarationErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		code ErrorCode
	}{
		{"duplicate global", "int a; int a;", TokenAlreadyDefined},
		{"keyword as name", "int if;", TokenAlreadyDefined},
		{"imported default", "import int a = 1;", UnexpectedToken},
		{"import redefinition differs", "import int a; short a;", NewDefinitionIsDifferent},
		{"pointer default", "managed struct M { int x; }; M *p = 5;", TypeMismatch},
		{"pointer to plain struct", "struct S { int x; }; S *p;", InvalidUseOfStruct},
		{"void variable", "void v;", CannotUseTypeInStruct},
		{"zero array size", "int a[0];", ConstIntExpected},
		{"array default", "int a[2] = 1;", UnexpectedToken},
		{"managed on variable", "managed int x;", InvalidModifier},
		{"repeated modifier", "import import int x;", InvalidModifier},
		{"keyword at top level", "if (x) { }", InvalidUseOfKeyword},
		{"stray token", "x = 1;", UnexpectedToken},

		{"anonymous parameter in body", "void f(int) { }", AnonymousParameterInFunctionBody},
		{"void parameter", "void f(void x);", VariableTypeExpected},
		{"different definition", "void f(int a); void f(float a) { }", NewDefinitionIsDifferent},
		{"different return type", "int f(); void f() { }", NewDefinitionIsDifferent},
		{"different modifiers", "noloopcheck void f(); void f() { }", DifferentModifierInPrototype},
		{"function redefined", "void f() { } void f() { }", TokenAlreadyDefined},
		{"imported body", "import void f() { }", InvalidUseOfKeyword},
		{"struct parameter", "struct S { int x; }; void f(S s);", CannotPassStructToFunction},
		{"struct return", "struct S { int x; }; S f();", CannotReturnStructFromFunction},
		{"missing brace", "void f() { int a;", EndOfInputReached},
		{"never defined", "void g();\nvoid f() { g(); }", FunctionNotDefined},

		{"struct inside itself", "struct Foo { struct Foo b; };", StructInsideItself},
		{"duplicate member", "struct S { int x; int x; };", TokenAlreadyDefined},
		{"member clashes with function", "struct S { void x(); int x; };", TokenAlreadyDefined},
		{"prototype member", "struct P; struct S { P p; };", CannotUseTypeInStruct},
		{"attribute not imported", "managed struct M { attribute int x; };", AttributesMustBeImported},
		{"attribute array", "managed struct M { import attribute int x[3]; };", InvalidUseOfKeyword},
		{"import member", "struct S { import int x; };", InvalidUseOfKeyword},
		{"parent not struct", "struct A extends int { int x; };", ParentIsNotAStruct},
		{"parent unknown", "struct A extends nothing { int x; };", StructNameExpected},
		{"extends prototype", "struct B; struct A extends B { int x; };", CannotExtendPrototypeStruct},
		{"extends itself", "struct A extends A { int x; };", CircularReference},
		{"extends with different modifiers", "managed struct A { int x; }; struct B extends A { int y; };", DifferentModifierInPrototype},
		{"struct prototype modifiers", "managed struct A; struct A { int x; };", DifferentModifierInPrototype},
		{"managed reference cycle", "managed struct B; managed struct A { B *b; }; managed struct B { A *a; };", CircularReference},
		{"struct redefined", "struct A { int x; }; struct A { int x; };", TokenAlreadyDefined},
		{"member function not declared", "struct S { int x; }; void S::g() { }", MemberFunctionNotDefined},
		{"member function differs", "struct S { void g(int a); }; void S::g(float a) { }", NewDefinitionIsDifferent},
		{"member function twice", "struct S { void g(); }; void S::g() { } void S::g() { }", TokenAlreadyDefined},

		{"enum missing comma", "enum E { A B };", UnexpectedToken},
		{"enum duplicate", "enum E { A, A };", TokenAlreadyDefined},
		{"export undefined", "export foo;", GlobalVariableExpected},
		{"export imported", "import int a; export a;", VariableAlreadyImported},
		{"export prototype", "void f(); export f;", FunctionNotDefined},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cs, results := Compile("test", tc.src, Options{})
			if !hasCode(results, tc.code) {
				t.Errorf("expected %s, got %v", tc.code, results.Messages)
			}
			if cs != nil {
				t.Errorf("script returned despite errors")
			}
		})
	}
}

func TestDeclarationsAccepted(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"anonymous prototype", "void f(int, float);"},
		{"variadic import", "import void Display(string text, ...);"},
		{"default parameters", "int f(int a, int b = 4) { return a + b; }"},
		{"null pointer parameter default", "managed struct M { int v; }; void f(M *m = null) { }"},
		{"struct prototypes", "managed struct A; managed struct A { int x; };"},
		{"c style struct reference", "struct S { int x; }; struct S g;"},
		{"pointer default null", "managed struct M { int x; }; M *p = null;"},
		{"managed references", "managed struct B; managed struct A { B *b; }; managed struct B { int x; };"},
		{"imported attribute", "managed struct O { import attribute int Width; readonly import attribute int Height; };"},
		{"member prototypes", "struct S { int x; import void Reset(); static import int Count(); protected void Hidden(); };"},
		{"import then define", "import int a; int a = 3;"},
		{"import function then define", "import int f(int a); int f(int a) { return a; }"},
		{"noloopcheck function", "noloopcheck void f() { while (1) { } }"},
		{"prototype default merged", "int f(int a, int b = 3); int f(int a, int b) { return b; } int g() { return f(1); }"},
		{"enum variables", "enum Dir { North, South }; Dir d = South; void f(Dir x) { }"},
		{"multiple globals", "int a, b = 2, c[3];"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, results := Compile("test", tc.src, Options{})
			if results.HasErrors() {
				t.Errorf("unexpected errors: %v", results.Err())
			}
		})
	}
}

func TestPrototypeMerging(t *testing.T) {
	cs := mustCompile(t, "int f(int, int b = 3);\nint f(int a, int b) { return a + b; }")
	if len(cs.Functions) != 1 {
		t.Fatalf("functions = %d", len(cs.Functions))
	}
	f := cs.Functions[0]
	if f.Parameters[0].Name != "a" || f.Parameters[1].Name != "b" {
		t.Errorf("names not taken from the definition: %q %q", f.Parameters[0].Name, f.Parameters[1].Name)
	}
	if !f.Parameters[1].HasDefault || f.Parameters[1].Default != 3 {
		t.Errorf("default lost: %+v", f.Parameters[1])
	}
	if f.RequiredArgs() != 1 {
		t.Errorf("RequiredArgs = %d", f.RequiredArgs())
	}
	if f.Line != 1 {
		t.Errorf("function line = %d, want the prototype's", f.Line)
	}
}

func TestMemberFunctions(t *testing.T) {
	src := `
struct Counter {
  int count;
  protected int secret;
  import void Reset();
  void Add(int n);
};
void Counter::Add(int n) {
  this.count += n;
  this.secret = 1;
}
`
	cs := mustCompile(t, src)
	if len(cs.Functions) != 1 || cs.Functions[0].FullName() != "Counter::Add" {
		t.Fatalf("functions = %v", cs.Functions)
	}
	table := cs.FunctionTable()
	if table[0].Name != "Counter::Add" || table[0].NumParams != 1 {
		t.Errorf("function table = %+v", table)
	}
	st := cs.StructTable()
	if len(st) != 1 || st[0].Size != 8 {
		t.Errorf("struct table = %+v", st)
	}
}

func TestStructMemberCycleAllowedOneWay(t *testing.T) {
	cs := mustCompile(t, "managed struct Node;\nmanaged struct Node { int v; Node *next; };")
	layout := cs.StructTable()[0]
	if len(layout.Members) != 2 || !layout.Members[1].IsPointer || layout.Size != 8 {
		t.Errorf("Node layout = %+v", layout)
	}
}
