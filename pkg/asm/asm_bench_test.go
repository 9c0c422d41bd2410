package asm

import (
	"strconv"
	"strings"
	"testing"
)

// smallProgram is a counter loop.
const smallProgram = `
    thisaddr 0
    mov ax, 10
    mov bx, 0
loop:
    $$add bx, ax
    sub ax, 1
    jnz loop
    mov ax, 0
    ret
`

// mediumProgram mirrors a compiled function with a local, a call and a
// bounds checked array access.
const mediumProgram = `
    thisaddr 0
    loopcheckoff
    mov ax, 0
    push ax
next:
    load.sp.offs 4
    memread ax
    $$mov ax, bx
    mov ax, 8
    $$lt ax, bx
    jz done
    load.sp.offs 4
    memread ax
    checkbounds ax, 8
    mul ax, 4
    $$add mar, ax
    mov ax, 0
    memwrite ax
    load.sp.offs 4
    memread ax
    add ax, 1
    memwrite ax
    jmp next
done:
    sub sp, 4
    mov ax, 0
    ret
`

// largeProgram repeats mediumProgram with renamed labels.
var largeProgram = func() string {
	var b strings.Builder
	for i := 0; i < 50; i++ {
		r := strings.NewReplacer("next", "next"+strconv.Itoa(i), "done", "done"+strconv.Itoa(i))
		b.WriteString(r.Replace(mediumProgram))
	}
	return b.String()
}()

func TestBenchProgramsAssemble(t *testing.T) {
	for name, src := range map[string]string{"small": smallProgram, "medium": mediumProgram, "large": largeProgram} {
		code, _, err := Assemble(src)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if _, err := Disassemble(code); err != nil {
			t.Errorf("%s: disassemble: %v", name, err)
		}
	}
}

func BenchmarkAssemble_Small(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, _, err := Assemble(smallProgram); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkAssemble_Medium(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, _, err := Assemble(mediumProgram); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkAssemble_Large(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, _, err := Assemble(largeProgram); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkDisassemble_Large(b *testing.B) {
	code, _, err := Assemble(largeProgram)
	if err != nil {
		b.Fatal(err)
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Disassemble(code); err != nil {
			b.Fatal(err)
		}
	}
}
