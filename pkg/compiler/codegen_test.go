package compiler

import (
	"reflect"
	"strings"
	"testing"

	"cscript/pkg/bytecode"
)

func listingLines(lines ...string) string {
	return strings.Join(lines, "\n") + "\n"
}

func TestGenerateExactListings(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "return literal",
			src:  "int f() { return 3; }",
			want: listingLines(
				"0000: thisaddr 0",
				"0002: $mov ax, 3",
				"0005: ret",
				"0006: $mov ax, 0",
				"0009: ret",
			),
		},
		{
			name: "local and compound assignment",
			src:  "void f() { int a = 2; a += 5; }",
			want: listingLines(
				"0000: thisaddr 0",
				"0002: $mov ax, 2",
				"0005: $push ax",
				"0007: $mov ax, 5",
				"0010: $push ax",
				"0012: load.sp.offs 8",
				"0014: $memread ax",
				"0016: $pop bx",
				"0018: $$add ax, bx",
				"0021: $memwrite ax",
				"0023: $sub sp, 4",
				"0026: $mov ax, 0",
				"0029: ret",
			),
		},
		{
			name: "imported call with string",
			src:  "import void Display(string text);\nvoid f() { Display(\"hi\"); }",
			want: listingLines(
				"0000: thisaddr 0",
				"0002: $mov ax, 0",
				"0005: $farpush ax",
				"0007: setfuncargs 1",
				"0009: $mov ax, 0",
				"0012: $farcall ax",
				"0014: farsubsp 1",
				"0016: $mov ax, 0",
				"0019: ret",
			),
		},
		{
			name: "if else",
			src:  "void f(int x) { if (x) x = 1; else x = 2; }",
			want: listingLines(
				"0000: thisaddr 0",
				"0002: load.sp.offs 8",
				"0004: $memread ax",
				"0006: jz @0021",
				"0008: $mov ax, 1",
				"0011: $push ax",
				"0013: load.sp.offs 12",
				"0015: $pop ax",
				"0017: $memwrite ax",
				"0019: jmp @0032",
				"0021: $mov ax, 2",
				"0024: $push ax",
				"0026: load.sp.offs 12",
				"0028: $pop ax",
				"0030: $memwrite ax",
				"0032: $mov ax, 0",
				"0035: ret",
			),
		},
		{
			name: "logical and",
			src:  "int f(int a, int b) { return a && b; }",
			want: listingLines(
				"0000: thisaddr 0",
				"0002: load.sp.offs 8",
				"0004: $memread ax",
				"0006: jz @0012",
				"0008: load.sp.offs 12",
				"0010: $memread ax",
				"0012: $$mov ax, bx",
				"0015: $mov ax, 1",
				"0018: $$and ax, bx",
				"0021: ret",
				"0022: $mov ax, 0",
				"0025: ret",
			),
		},
		{
			name: "managed local released",
			src:  "managed struct M { int v; };\nvoid f() { M *p; p = null; }",
			want: listingLines(
				"0000: thisaddr 0",
				"0002: $mov ax, 0",
				"0005: $$mov sp, mar",
				"0008: $add sp, 4",
				"0011: $meminit.ptr ax",
				"0013: $mov ax, 0",
				"0016: $push ax",
				"0018: load.sp.offs 8",
				"0020: $pop ax",
				"0022: $memwrite.ptr ax",
				"0024: load.sp.offs 4",
				"0026: memwrite.ptr.0",
				"0027: $sub sp, 4",
				"0030: $mov ax, 0",
				"0033: ret",
			),
		},
		{
			name: "noloopcheck",
			src:  "noloopcheck void f() { }",
			want: listingLines(
				"0000: thisaddr 0",
				"0002: loopcheckoff",
				"0003: $mov ax, 0",
				"0006: ret",
			),
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cs := mustCompile(t, tc.src)
			if got := listing(t, cs); got != tc.want {
				t.Errorf("listing:\n%s\nwant:\n%s", got, tc.want)
			}
		})
	}
}

func TestGenerateStringsAndFixups(t *testing.T) {
	cs := mustCompile(t, "import void Display(string text);\nint g;\nvoid f() { Display(\"hi\"); Display(\"hi\"); g = 7; }")
	if string(cs.Strings) != "hi\x00" {
		t.Errorf("strings = %q", cs.Strings)
	}
	if !reflect.DeepEqual(cs.Imports, []string{"Display"}) {
		t.Errorf("imports = %v", cs.Imports)
	}
	counts := map[bytecode.FixupType]int{}
	for _, f := range cs.Fixups {
		counts[f.Type]++
		if f.Offset <= 0 || f.Offset >= len(cs.Code) {
			t.Errorf("fixup %+v outside the code", f)
		}
	}
	want := map[bytecode.FixupType]int{bytecode.FixupString: 2, bytecode.FixupImport: 2, bytecode.FixupGlobalData: 1}
	if !reflect.DeepEqual(counts, want) {
		t.Errorf("fixup counts = %v, want %v", counts, want)
	}
	for _, f := range cs.Fixups {
		if f.Type == bytecode.FixupString && cs.Code[f.Offset] != 0 {
			t.Errorf("string operand at %d = %d", f.Offset, cs.Code[f.Offset])
		}
	}
}

func TestGenerateForwardCall(t *testing.T) {
	src := "int add(int a, int b);\nint main() { return add(1, 2); }\nint add(int a, int b) { return a + b; }"
	cs := mustCompile(t, src)
	text := listing(t, cs)
	for _, want := range []string{
		"0002: $mov ax, 2",
		"0007: $mov ax, 1",
		"0012: $mov ax, 25",
		"0015: $call ax",
		"0017: $sub sp, 8",
		"0025: thisaddr 25",
		"0027: load.sp.offs 8",
		"0033: load.sp.offs 16",
		"0042: $$add ax, bx",
	} {
		if !strings.Contains(text, want+"\n") {
			t.Errorf("listing lacks %q:\n%s", want, text)
		}
	}

	offsets := map[string]int{}
	for _, e := range cs.FunctionTable() {
		offsets[e.Name] = e.Offset
	}
	if offsets["main"] != 0 || offsets["add"] != 25 {
		t.Errorf("function offsets = %v", offsets)
	}
	var fn int
	for _, f := range cs.Fixups {
		if f.Type == bytecode.FixupFunction {
			fn++
			if f.Offset != 14 {
				t.Errorf("function fixup at %d", f.Offset)
			}
		}
	}
	if fn != 1 {
		t.Errorf("%d function fixups", fn)
	}
}

func TestGenerateContains(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []string
	}{
		{
			name: "struct array member",
			src:  "struct P { int x; short y; };\nP pts[4];\nvoid f() { pts[2].y = 3; }",
			want: []string{"0007: $mov mar, 0", "$checkbounds ax, 4", "$mul ax, 6", "$$add mar, ax", "$add mar, 4", "$memwrite.w ax"},
		},
		{
			name: "char read",
			src:  "char c;\nint f() { return c; }",
			want: []string{"$memread.b ax"},
		},
		{
			name: "dynamic array",
			src:  "int arr[];\nvoid f() { arr = new int[5]; arr[1] = 2; }",
			want: []string{"$newarray ax, 4, 0", "$memwrite.ptr ax", "$memread.ptr mar", "checknull.ptr", "$dynamicbounds ax"},
		},
		{
			name: "managed dynamic array",
			src:  "managed struct M { int v; };\nM *list[];\nvoid f() { list = new M[3]; }",
			want: []string{"$newarray ax, 4, 1"},
		},
		{
			name: "float arithmetic",
			src:  "float a;\nfloat b;\nvoid f() { a = a * b + 1.5; }\nint g() { return a < b; }\nvoid h() { a = -b; }",
			want: []string{"$$f.mul ax, bx", "$$f.add ax, bx", "$$f.lt ax, bx", "$$f.sub ax, bx"},
		},
		{
			name: "float increment",
			src:  "float a;\nvoid f() { a++; }",
			want: []string{"$f.add ax, 1"},
		},
		{
			name: "string compare",
			src:  "string s;\nint f() { return s == \"x\"; }\nint g() { return s != \"y\"; }",
			want: []string{"$$strcmp ax, bx", "$$strnotcmp ax, bx"},
		},
		{
			name: "operators",
			src:  "int f(int a, int b) { return (a % b) ^ (a << 1) | !b; }",
			want: []string{"$$mod ax, bx", "$$shl ax, bx", "$$xor ax, bx", "$$bit_or ax, bx", "$not ax"},
		},
		{
			name: "logical or",
			src:  "int f(int a, int b) { return a || b; }",
			want: []string{"jnz @", "$mov ax, 0", "$$or ax, bx"},
		},
		{
			name: "default argument",
			src:  "int g(int a, int b = 4) { return a; }\nvoid f() { g(1); }",
			want: []string{"$mov ax, 4", "$sub sp, 8"},
		},
		{
			name: "variadic import",
			src:  "import void Display(string text, ...);\nvoid f() { Display(\"%d %d\", 1, 2); }",
			want: []string{"setfuncargs 3", "farsubsp 3"},
		},
		{
			name: "return releases pointer",
			src:  "managed struct M { int v; };\nint f() { M *p; return 1; }",
			want: []string{"0016: load.sp.offs 4", "0018: memwrite.ptr.0.nd", "0019: $sub sp, 4", "0022: ret"},
		},
		{
			name: "struct local zeroed",
			src:  "struct P { int x; int y; };\nvoid f() { P p; p.y = 1; }",
			want: []string{"$$mov sp, mar", "zeromem 8", "$add sp, 8", "$add mar, 4", "$sub sp, 8"},
		},
		{
			name: "short local initialised",
			src:  "void f() { short s = 3; }",
			want: []string{"zeromem 2", "$add sp, 2", "load.sp.offs 2", "$memwrite.w ax", "$sub sp, 2"},
		},
		{
			name: "enum constant",
			src:  "enum E { A = 7 };\nint f() { return A; }",
			want: []string{"$mov ax, 7"},
		},
		{
			name: "imported global",
			src:  "import int counter;\nint f() { return counter; }",
			want: []string{"$mov mar, 0", "$memread ax"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			text := listing(t, mustCompile(t, tc.src))
			for _, want := range tc.want {
				if !strings.Contains(text, want) {
					t.Errorf("listing lacks %q:\n%s", want, text)
				}
			}
		})
	}
}

func TestGenerateObjects(t *testing.T) {
	src := `
struct Counter {
  int count;
  protected int secret;
  import void Reset();
  void Add(int n);
};
void Counter::Add(int n) { this.count += n; }
Counter c;
managed struct Obj { import attribute int Width; };
Obj *o;
struct Maths { import static int Abs(int v); };
void f() {
  c.Add(2);
  c.Reset();
  o.Width = o.Width + 1;
}
int g() { return Maths.Abs(-3); }
`
	cs := mustCompile(t, src)
	text := listing(t, cs)
	for _, want := range []string{"$$mov op, mar", "$memread mar", "$callobj mar", "$call ax", "$farcall ax", "$memread.ptr mar", "checknull.ptr"} {
		if !strings.Contains(text, want) {
			t.Errorf("listing lacks %q:\n%s", want, text)
		}
	}
	want := []string{"Counter::Reset", "Obj::get_Width", "Obj::set_Width", "Maths::Abs"}
	if !reflect.DeepEqual(cs.Imports, want) {
		t.Errorf("imports = %v, want %v", cs.Imports, want)
	}
}

func TestGenerateLineNumbers(t *testing.T) {
	cs, results := Compile("test", "void f() {\n  int a = 1;\n  a = 2;\n}", Options{LineNumbers: true})
	if results.HasErrors() {
		t.Fatalf("errors: %v", results.Err())
	}
	text := listing(t, cs)
	if !strings.HasPrefix(text, "0000: sourceline 1\n0002: thisaddr 0\n0004: sourceline 2\n") {
		t.Errorf("listing:\n%s", text)
	}
	if n := strings.Count(text, "sourceline"); n != 3 {
		t.Errorf("%d sourceline instructions, want 3", n)
	}
}

func TestGenerateErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		code ErrorCode
	}{
		{"undefined", "void f() { x = 1; }", UndefinedToken},
		{"float from int", "float a;\nvoid f() { a = 1; }", TypeMismatch},
		{"mixed arithmetic", "float a;\nint f() { return a + 1; }", TypeMismatch},
		{"string from int", "string s;\nvoid f() { s = 1; }", TypeMismatch},
		{"string ordering", "string s;\nint f() { return s < \"x\"; }", TypeMismatch},
		{"pointer from int", "managed struct M { int v; };\nM *p;\nvoid f() { p = 5; }", TypeMismatch},
		{"pointer arithmetic", "managed struct M { int v; };\nM *p;\nvoid f() { p = p + 1; }", TypeMismatch},
		{"base to derived", "managed struct A { int x; };\nmanaged struct B extends A { int y; };\nA *a;\nB *b;\nvoid f() { b = a; }", TypeMismatch},
		{"void initialiser", "void g() { }\nvoid f() { int a = g(); }", TypeMismatch},
		{"float index", "int a[3];\nvoid f() { a[1.5] = 1; }", TypeMismatch},
		{"too few arguments", "int g(int a) { return a; }\nvoid f() { g(); }", WrongNumberOfArguments},
		{"too many arguments", "int g(int a) { return a; }\nvoid f() { g(1, 2); }", WrongNumberOfArguments},
		{"assign to array", "int a[3];\nvoid f() { a = 1; }", InvalidUseOfStruct},
		{"array without index", "int a[3];\nint f() { return a; }", InvalidUseOfStruct},
		{"assign to call", "int g() { return 1; }\nvoid f() { g() = 2; }", InvalidUseOfStruct},
		{"member of int", "int a;\nvoid f() { a.x = 1; }", InvalidUseOfStruct},
		{"struct as condition", "struct S { int x; };\nS s;\nvoid f() { if (s) { } }", InvalidUseOfStruct},
		{"index of scalar", "int a;\nvoid f() { a[1] = 2; }", UnexpectedToken},
		{"unknown member", "struct S { int x; };\nS s;\nvoid f() { s.y = 1; }", UndefinedToken},
		{"this outside member", "void f() { this.x = 1; }", InvalidUseOfKeyword},
		{"protected member", "struct S { protected int x; };\nS s;\nvoid f() { s.x = 1; }", InvalidUseOfKeyword},
		{"readonly import", "readonly import int r;\nvoid f() { r = 1; }", InvalidUseOfKeyword},
		{"readonly attribute", "managed struct O { readonly import attribute int H; };\nO *o;\nvoid f() { o.H = 1; }", InvalidUseOfKeyword},
		{"compound attribute", "managed struct O { import attribute int W; };\nO *o;\nvoid f() { o.W += 1; }", InvalidUseOfKeyword},
		{"not static", "struct S { import int Get(); };\nint f() { return S.Get(); }", InvalidUseOfStruct},
		{"modifier on statement", "void f() { int a; readonly a = 1; }", InvalidModifier},
		{"local redefined", "void f() { int a; int a; }", TokenAlreadyDefined},
		{"parameter shadows global", "int a;\nvoid f(int a) { }", TokenAlreadyDefined},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, results := Compile("test", tc.src, Options{})
			if !hasCode(results, tc.code) {
				t.Errorf("expected %s, got %v", tc.code, results.Messages)
			}
		})
	}
}

func TestGenerateAccepted(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"derived to base", "managed struct A { int x; };\nmanaged struct B extends A { int y; };\nA *a;\nB *b;\nvoid f() { a = b; }"},
		{"null compare", "managed struct M { int v; };\nM *p;\nint f() { return p == null; }"},
		{"string assignment", "string s;\nvoid f() { s = \"x\"; }"},
		{"scoped locals", "void f() { { int a; } int a; }"},
		{"char and short mixing", "char c;\nshort s;\nvoid f() { c = s + 1; }"},
		{"parenthesised target", "int a;\nvoid f() { (a) = 2; }"},
		{"protected from member", "struct S { protected int x; void Set(); };\nvoid S::Set() { this.x = 1; }"},
		{"pointer member chain", "managed struct N { int v; N *next; };\nN *head;\nint f() { return head.next.v; }"},
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
