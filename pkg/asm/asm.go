// Package asm converts between script bytecode and a line oriented text
// form. Disassemble renders compiled code for listings and tests; Assemble
// reads the same form back, with labels for hand written fragments.
package asm

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"cscript/pkg/bytecode"
)

// Instruction is one decoded opcode and its operand words.
type Instruction struct {
	Offset int
	Op     bytecode.Opcode
	Args   []int32
}

// Target returns the absolute code offset a jump lands on.
func (in Instruction) Target() int {
	return in.Offset + 2 + int(in.Args[0])
}

func (in Instruction) String() string {
	var b strings.Builder
	b.WriteString(in.Op.Mnemonic())
	regs := in.Op.RegisterOperands()
	for i, arg := range in.Args {
		if i == 0 {
			b.WriteByte(' ')
		} else {
			b.WriteString(", ")
		}
		switch {
		case i < regs:
			b.WriteString(bytecode.RegisterName(arg))
		case in.Op.IsJump():
			fmt.Fprintf(&b, "@%04d", in.Target())
		default:
			b.WriteString(strconv.Itoa(int(arg)))
		}
	}
	return b.String()
}

// Decode splits code into instructions.
func Decode(code []int32) ([]Instruction, error) {
	var out []Instruction
	for pc := 0; pc < len(code); {
		op := bytecode.Opcode(code[pc])
		if !op.Valid() {
			return out, fmt.Errorf("invalid opcode %d at %04d", code[pc], pc)
		}
		n := op.ArgCount()
		if pc+1+n > len(code) {
			return out, fmt.Errorf("%s at %04d is truncated", op, pc)
		}
		args := make([]int32, n)
		copy(args, code[pc+1:pc+1+n])
		out = append(out, Instruction{Offset: pc, Op: op, Args: args})
		pc += 1 + n
	}
	return out, nil
}

// Disassemble renders code one instruction per line, each prefixed with
// its offset. Jump operands are shown as absolute "@offset" targets.
func Disassemble(code []int32) (string, error) {
	ins, err := Decode(code)
	var b strings.Builder
	for _, in := range ins {
		fmt.Fprintf(&b, "%04d: %s\n", in.Offset, in)
	}
	return b.String(), err
}

type Assembler struct {
	labels map[string]int
}

type parsedLine struct {
	lineNo   int
	labels   []string
	mnemonic string
	operands []string
}

func NewAssembler() *Assembler {
	return &Assembler{
		labels: make(map[string]int),
	}
}

// Assemble translates text into code words and a map from code offset to
// the source line that produced it.
func Assemble(text string) ([]int32, map[int]int, error) {
	return NewAssembler().Assemble(text)
}

func (a *Assembler) Assemble(text string) ([]int32, map[int]int, error) {
	lines := strings.Split(text, "\n")

	if err := a.pass1(lines); err != nil {
		return nil, nil, err
	}

	return a.pass2(lines)
}

func (a *Assembler) pass1(lines []string) error {
	address := 0

	for i, raw := range lines {
		lineNo := i + 1
		p, err := parseLine(raw, lineNo)
		if err != nil {
			return err
		}

		for _, lbl := range p.labels {
			key := normalizeLabel(lbl)
			if _, exists := a.labels[key]; exists {
				return fmt.Errorf("duplicate label '%s' on line %d", lbl, lineNo)
			}
			a.labels[key] = address
		}

		if p.mnemonic == "" {
			continue
		}

		if p.mnemonic == ".word" {
			address += len(p.operands)
			continue
		}

		op, err := resolveOpcode(p)
		if err != nil {
			return err
		}
		address += instructionLength(op)
	}

	return nil
}

func (a *Assembler) pass2(lines []string) ([]int32, map[int]int, error) {
	var code []int32
	sourceMap := make(map[int]int)

	for i, raw := range lines {
		lineNo := i + 1
		p, err := parseLine(raw, lineNo)
		if err != nil {
			return nil, nil, err
		}
		if p.mnemonic == "" {
			continue
		}
		sourceMap[len(code)] = lineNo

		if p.mnemonic == ".word" {
			if len(p.operands) == 0 {
				return nil, nil, fmt.Errorf(".word expects at least one operand on line %d", lineNo)
			}
			for _, tok := range p.operands {
				v, err := a.parseImmediate(tok, lineNo)
				if err != nil {
					return nil, nil, err
				}
				code = append(code, v)
			}
			continue
		}

		op, err := resolveOpcode(p)
		if err != nil {
			return nil, nil, err
		}
		at := len(code)
		code = append(code, int32(op))
		regs := op.RegisterOperands()
		for j, tok := range p.operands {
			var v int32
			switch {
			case j < regs:
				v, err = parseRegister(tok, lineNo)
			case op.IsJump():
				v, err = a.parseJump(tok, at, lineNo)
			default:
				v, err = a.parseImmediate(tok, lineNo)
			}
			if err != nil {
				return nil, nil, err
			}
			code = append(code, v)
		}
	}

	return code, sourceMap, nil
}

func parseLine(raw string, lineNo int) (parsedLine, error) {
	p := parsedLine{lineNo: lineNo}

	line := strings.TrimSpace(stripComments(raw))
	if line == "" {
		return p, nil
	}

	for {
		colon := strings.IndexByte(line, ':')
		if colon <= 0 {
			break
		}

		beforeColon := strings.TrimSpace(line[:colon])
		if beforeColon == "" {
			return p, fmt.Errorf("invalid label on line %d", lineNo)
		}

		if strings.ContainsAny(beforeColon, " \t") {
			break
		}

		// Listing offsets ("0012:") are accepted and ignored.
		if !isAddress(beforeColon) {
			if !isIdentifier(beforeColon) {
				return p, fmt.Errorf("invalid label '%s' on line %d", beforeColon, lineNo)
			}
			p.labels = append(p.labels, beforeColon)
		}
		line = strings.TrimSpace(line[colon+1:])
		if line == "" {
			return p, nil
		}
	}

	fields := strings.Fields(normalizeInstructionText(line))
	if len(fields) == 0 {
		return p, nil
	}

	p.mnemonic = strings.ToLower(fields[0])
	if len(fields) > 1 {
		p.operands = fields[1:]
	}

	return p, nil
}

func stripComments(line string) string {
	semicolon := strings.Index(line, ";")
	doubleSlash := strings.Index(line, "//")

	cut := -1
	if semicolon >= 0 {
		cut = semicolon
	}
	if doubleSlash >= 0 && (cut == -1 || doubleSlash < cut) {
		cut = doubleSlash
	}
	if cut >= 0 {
		return line[:cut]
	}
	return line
}

func normalizeInstructionText(line string) string {
	return strings.ReplaceAll(line, ",", " ")
}

// resolveOpcode finds the instruction for a mnemonic. The register markers
// may be left off, in which case they are inferred from how many leading
// operands are register names: "mov ax, 5" is $mov and "mov ax, bx" is $$mov.
func resolveOpcode(p parsedLine) (bytecode.Opcode, error) {
	if op, ok := bytecode.Lookup(p.mnemonic); ok {
		if len(p.operands) != op.ArgCount() {
			return 0, fmt.Errorf("%s expects %d operands on line %d", op, op.ArgCount(), p.lineNo)
		}
		return op, nil
	}

	leading := 0
	for _, tok := range p.operands {
		if _, ok := bytecode.LookupRegister(strings.ToLower(tok)); !ok {
			break
		}
		leading++
	}

	bare := strings.TrimLeft(p.mnemonic, "$")
	known := false
	for _, name := range []string{bare, "$" + bare, "$$" + bare} {
		op, ok := bytecode.Lookup(name)
		if !ok {
			continue
		}
		known = true
		if op.ArgCount() == len(p.operands) && op.RegisterOperands() == leading {
			return op, nil
		}
	}
	if known {
		return 0, fmt.Errorf("no form of '%s' takes operands %v on line %d", bare, p.operands, p.lineNo)
	}
	return 0, fmt.Errorf("unknown instruction '%s' on line %d", p.mnemonic, p.lineNo)
}

func parseRegister(token string, lineNo int) (int32, error) {
	if r, ok := bytecode.LookupRegister(strings.ToLower(token)); ok {
		return r, nil
	}
	return 0, fmt.Errorf("invalid register '%s' on line %d", token, lineNo)
}

func (a *Assembler) parseImmediate(token string, lineNo int) (int32, error) {
	if value, err := strconv.ParseInt(token, 0, 32); err == nil {
		return int32(value), nil
	}

	if addr, ok := a.labels[normalizeLabel(token)]; ok {
		return int32(addr), nil
	}

	if isIdentifier(token) {
		return 0, fmt.Errorf("undefined label '%s' on line %d", token, lineNo)
	}

	return 0, fmt.Errorf("invalid immediate '%s' on line %d", token, lineNo)
}

// parseJump accepts a label, an absolute "@offset" or a raw relative offset,
// and returns the value to store in the operand of the jump at offset at.
func (a *Assembler) parseJump(token string, at, lineNo int) (int32, error) {
	target := -1
	if strings.HasPrefix(token, "@") {
		v, err := strconv.Atoi(token[1:])
		if err != nil {
			return 0, fmt.Errorf("invalid jump target '%s' on line %d", token, lineNo)
		}
		target = v
	} else if addr, ok := a.labels[normalizeLabel(token)]; ok {
		target = addr
	}
	if target >= 0 {
		return int32(target - (at + 2)), nil
	}
	return a.parseImmediate(token, lineNo)
}

// instructionLength is the number of code words op occupies.
func instructionLength(op bytecode.Opcode) int {
	return 1 + op.ArgCount()
}

func isAddress(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return s != ""
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}

	for i, r := range s {
		if i == 0 {
			if !unicode.IsLetter(r) && r != '_' {
				return false
			}
			continue
		}

		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			return false
		}
	}

	return true
}

func normalizeLabel(label string) string {
	return strings.ToUpper(label)
}
