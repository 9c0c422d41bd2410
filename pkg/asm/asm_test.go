package asm

import (
	"reflect"
	"strings"
	"testing"

	"cscript/pkg/bytecode"
)

func words(ops ...any) []int32 {
	out := make([]int32, 0, len(ops))
	for _, o := range ops {
		switch v := o.(type) {
		case bytecode.Opcode:
			out = append(out, int32(v))
		case int32:
			out = append(out, v)
		case int:
			out = append(out, int32(v))
		}
	}
	return out
}

func TestHelperFunctions(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"abc", true},
		{"_abc", true},
		{"abc1", true},
		{"1abc", false},
		{"", false},
		{"ab-c", false},
	}
	for _, tc := range tests {
		if got := isIdentifier(tc.input); got != tc.want {
			t.Errorf("isIdentifier(%q) = %v; want %v", tc.input, got, tc.want)
		}
	}

	if got := normalizeLabel("label"); got != "LABEL" {
		t.Errorf("normalizeLabel(\"label\") = %q; want \"LABEL\"", got)
	}

	if !isAddress("0012") || isAddress("12a") || isAddress("") {
		t.Errorf("isAddress misclassified listing offsets")
	}

	lenTests := []struct {
		op   bytecode.Opcode
		want int
	}{
		{bytecode.OpRet, 1},
		{bytecode.OpJZ, 2},
		{bytecode.OpLitToReg, 3},
		{bytecode.OpNewArray, 4},
	}
	for _, tc := range lenTests {
		if got := instructionLength(tc.op); got != tc.want {
			t.Errorf("instructionLength(%s) = %d; want %d", tc.op, got, tc.want)
		}
	}
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		line    string
		want    parsedLine
		wantErr bool
	}{
		{
			"mov ax, 5",
			parsedLine{lineNo: 1, mnemonic: "mov", operands: []string{"ax", "5"}},
			false,
		},
		{
			"  $$mov ax, bx  ; comment",
			parsedLine{lineNo: 1, mnemonic: "$$mov", operands: []string{"ax", "bx"}},
			false,
		},
		{
			"start: ret",
			parsedLine{lineNo: 1, labels: []string{"start"}, mnemonic: "ret"},
			false,
		},
		{
			"a: b: ret",
			parsedLine{lineNo: 1, labels: []string{"a", "b"}, mnemonic: "ret"},
			false,
		},
		{
			"0012: $push ax",
			parsedLine{lineNo: 1, mnemonic: "$push", operands: []string{"ax"}},
			false,
		},
		{
			".WORD 1, 2",
			parsedLine{lineNo: 1, mnemonic: ".word", operands: []string{"1", "2"}},
			false,
		},
		{
			"// nothing here",
			parsedLine{lineNo: 1},
			false,
		},
		{
			"1label: ret",
			parsedLine{lineNo: 1},
			true,
		},
	}

	for _, tc := range tests {
		got, err := parseLine(tc.line, 1)
		if (err != nil) != tc.wantErr {
			t.Errorf("parseLine(%q) error = %v, wantErr %v", tc.line, err, tc.wantErr)
			continue
		}
		if tc.wantErr {
			continue
		}
		if got.mnemonic != tc.want.mnemonic {
			t.Errorf("parseLine(%q) mnemonic = %q, want %q", tc.line, got.mnemonic, tc.want.mnemonic)
		}
		if !reflect.DeepEqual(got.labels, tc.want.labels) && !(len(got.labels) == 0 && len(tc.want.labels) == 0) {
			t.Errorf("parseLine(%q) labels = %v, want %v", tc.line, got.labels, tc.want.labels)
		}
		if !reflect.DeepEqual(got.operands, tc.want.operands) && !(len(got.operands) == 0 && len(tc.want.operands) == 0) {
			t.Errorf("parseLine(%q) operands = %v, want %v", tc.line, got.operands, tc.want.operands)
		}
	}
}

func TestAssemble(t *testing.T) {
	ax, bx := bytecode.RegAX, bytecode.RegBX
	tests := []struct {
		name    string
		code    string
		want    []int32
		wantErr bool
	}{
		{
			"inferred register forms",
			`
			mov ax, 10
			add ax, 1
			mov ax, bx
			ret
			`,
			words(bytecode.OpLitToReg, ax, 10, bytecode.OpAdd, ax, 1, bytecode.OpRegToReg, ax, bx, bytecode.OpRet),
			false,
		},
		{
			"explicit mnemonics",
			"$$add ax, bx\n$push ax\nthisaddr 0",
			words(bytecode.OpAddReg, ax, bx, bytecode.OpPushReg, ax, bytecode.OpThisBase, 0),
			false,
		},
		{
			"backward jump",
			// loop is at 3, the jnz operand is at 7
			`
			mov ax, 5
			loop:
			sub ax, 1
			jnz loop
			ret
			`,
			words(bytecode.OpLitToReg, ax, 5, bytecode.OpSub, ax, 1, bytecode.OpJNZ, -5, bytecode.OpRet),
			false,
		},
		{
			"forward jump",
			`
			jz end
			mov ax, 1
			end: ret
			`,
			words(bytecode.OpJZ, 3, bytecode.OpLitToReg, ax, 1, bytecode.OpRet),
			false,
		},
		{
			"absolute target",
			"jmp @0000",
			words(bytecode.OpJmp, -2),
			false,
		},
		{
			"raw words",
			".word 1, 0x10, -3",
			words(1, 16, -3),
			false,
		},
		{"unknown instruction", "frobnicate ax", nil, true},
		{"wrong operand count", "ret ax", nil, true},
		{"no matching form", "mov 5, ax", nil, true},
		{"bad register", "$push zz", nil, true},
		{"undefined label", "jmp nowhere", nil, true},
		{"duplicate label", "a: ret\na: ret", nil, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, _, err := Assemble(tc.code)
			if (err != nil) != tc.wantErr {
				t.Errorf("Assemble() error = %v, wantErr %v", err, tc.wantErr)
				return
			}
			if !tc.wantErr && !reflect.DeepEqual(got, tc.want) {
				t.Errorf("Assemble() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestDisassemble(t *testing.T) {
	ax := bytecode.RegAX
	code := words(
		bytecode.OpThisBase, 0,
		bytecode.OpLitToReg, ax, 5,
		bytecode.OpJZ, 3,
		bytecode.OpPushReg, ax,
		bytecode.OpRet,
	)
	got, err := Disassemble(code)
	if err != nil {
		t.Fatalf("Disassemble failed: %v", err)
	}
	for _, want := range []string{
		"0000: thisaddr 0\n",
		"0002: $mov ax, 5\n",
		"0005: jz @0010\n",
		"0007: $push ax\n",
		"0009: ret\n",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("listing missing %q:\n%s", want, got)
		}
	}

	back, _, err := Assemble(got)
	if err != nil {
		t.Fatalf("reassembling listing failed: %v", err)
	}
	if !reflect.DeepEqual(back, code) {
		t.Errorf("round trip = %v, want %v", back, code)
	}
}

func TestDecodeErrors(t *testing.T) {
	if _, err := Decode([]int32{99}); err == nil {
		t.Error("expected error for invalid opcode")
	}
	ins, err := Decode(words(bytecode.OpRet, bytecode.OpLitToReg, bytecode.RegAX))
	if err == nil {
		t.Error("expected error for truncated instruction")
	}
	if len(ins) != 1 || ins[0].Op != bytecode.OpRet {
		t.Errorf("decoded prefix = %v, want the ret", ins)
	}
}

func TestStripComments(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"mov ax, 1", "mov ax, 1"},
		{"mov ax, 1 ; comment", "mov ax, 1 "},
		{"mov ax, 1 // comment", "mov ax, 1 "},
		{"// comment", ""},
		{"; comment", ""},
		{"mov ax, 1 ; first // second", "mov ax, 1 "},
	}
	for _, tc := range tests {
		if got := stripComments(tc.input); got != tc.want {
			t.Errorf("stripComments(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}
