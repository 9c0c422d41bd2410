package asm

import (
	"testing"
)

func TestAssembleSourceMap(t *testing.T) {
	code := `
; Line 2: Comment
mov ax, 10      ; Line 3: 3 words at 0
                ; Line 4: Empty
label:          ; Line 5: Label
add ax, bx      ; Line 6: 3 words at 3
.word 7         ; Line 7: 1 word at 6
ret             ; Line 8: 1 word at 7
`
	_, sourceMap, err := Assemble(code)
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}

	tests := []struct {
		addr int
		line int
	}{
		{0, 3},
		{3, 6},
		{6, 7},
		{7, 8},
	}

	for _, tc := range tests {
		if got := sourceMap[tc.addr]; got != tc.line {
			t.Errorf("sourceMap[%04d] = %d; want %d", tc.addr, got, tc.line)
		}
	}
	if len(sourceMap) != len(tests) {
		t.Errorf("sourceMap has %d entries, want %d", len(sourceMap), len(tests))
	}
}
