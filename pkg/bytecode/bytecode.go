// Package bytecode defines the fixed instruction set emitted by the script
// compiler: 72 opcodes, their operand counts, the register file and the
// fixup kinds a loader applies to the code stream.
package bytecode

import "fmt"

// Opcode is a single instruction code. Every instruction is written as the
// opcode word followed by exactly ArgCount() operand words.
type Opcode int32

const (
	OpAdd           Opcode = 1  // reg += arg
	OpSub           Opcode = 2  // reg -= arg
	OpRegToReg      Opcode = 3  // reg2 = reg1
	OpWriteLit      Opcode = 4  // m[MAR] = arg2 (copy arg1 bytes)
	OpRet           Opcode = 5  // return from subroutine
	OpLitToReg      Opcode = 6  // set reg1 to literal value arg2
	OpMemRead       Opcode = 7  // reg1 = m[MAR]
	OpMemWrite      Opcode = 8  // m[MAR] = reg1
	OpMulReg        Opcode = 9  // reg1 *= reg2
	OpDivReg        Opcode = 10 // reg1 /= reg2
	OpAddReg        Opcode = 11 // reg1 += reg2
	OpSubReg        Opcode = 12 // reg1 -= reg2
	OpBitAnd        Opcode = 13 // bitwise reg1 & reg2
	OpBitOr         Opcode = 14 // bitwise reg1 | reg2
	OpIsEqual       Opcode = 15 // reg1 == reg2
	OpNotEqual      Opcode = 16 // reg1 != reg2
	OpGreater       Opcode = 17 // reg1 > reg2
	OpLessThan      Opcode = 18 // reg1 < reg2
	OpGTE           Opcode = 19 // reg1 >= reg2
	OpLTE           Opcode = 20 // reg1 <= reg2
	OpAnd           Opcode = 21 // (reg1!=0) && (reg2!=0) -> reg1
	OpOr            Opcode = 22 // (reg1!=0) || (reg2!=0) -> reg1
	OpCall          Opcode = 23 // jump to subroutine at reg1
	OpMemReadB      Opcode = 24 // reg1 = m[MAR] (1 byte)
	OpMemReadW      Opcode = 25 // reg1 = m[MAR] (2 bytes)
	OpMemWriteB     Opcode = 26 // m[MAR] = reg1 (1 byte)
	OpMemWriteW     Opcode = 27 // m[MAR] = reg1 (2 bytes)
	OpJZ            Opcode = 28 // jump if ax == 0
	OpPushReg       Opcode = 29 // m[sp] = reg1; sp += 4
	OpPopReg        Opcode = 30 // sp -= 4; reg1 = m[sp]
	OpJmp           Opcode = 31 // jump by arg1
	OpMul           Opcode = 32 // reg1 *= arg2
	OpCallExt       Opcode = 33 // call external (imported) function reg1
	OpPushReal      Opcode = 34 // push reg1 onto the real stack
	OpSubRealStack  Opcode = 35 // pop arg1 entries from the real stack
	OpLineNum       Opcode = 36 // debug info: source code line number
	OpCallAs        Opcode = 37 // call external script function
	OpThisBase      Opcode = 38 // current relative address
	OpNumFuncArgs   Opcode = 39 // number of arguments for external function
	OpModReg        Opcode = 40 // reg1 %= reg2
	OpXorReg        Opcode = 41 // reg1 ^= reg2
	OpNotReg        Opcode = 42 // reg1 = !reg1
	OpShiftLeft     Opcode = 43 // reg1 = reg1 << reg2
	OpShiftRight    Opcode = 44 // reg1 = reg1 >> reg2
	OpCallObj       Opcode = 45 // next call is member function of reg1
	OpCheckBounds   Opcode = 46 // check reg1 is between 0 and arg2
	OpMemWritePtr   Opcode = 47 // m[MAR] = reg1 (managed pointer)
	OpMemReadPtr    Opcode = 48 // reg1 = m[MAR] (managed pointer)
	OpMemZeroPtr    Opcode = 49 // m[MAR] = 0 (release pointer)
	OpMemInitPtr    Opcode = 50 // m[MAR] = reg1 (pointer, no release of old value)
	OpLoadSPOffs    Opcode = 51 // MAR = sp - arg1
	OpCheckNull     Opcode = 52 // error if MAR == 0
	OpFAdd          Opcode = 53 // reg1 += arg2 (float, int)
	OpFSub          Opcode = 54 // reg1 -= arg2 (float, int)
	OpFMulReg       Opcode = 55 // reg1 *= reg2 (float)
	OpFDivReg       Opcode = 56 // reg1 /= reg2 (float)
	OpFAddReg       Opcode = 57 // reg1 += reg2 (float)
	OpFSubReg       Opcode = 58 // reg1 -= reg2 (float)
	OpFGreater      Opcode = 59 // reg1 > reg2 (float)
	OpFLessThan     Opcode = 60 // reg1 < reg2 (float)
	OpFGTE          Opcode = 61 // reg1 >= reg2 (float)
	OpFLTE          Opcode = 62 // reg1 <= reg2 (float)
	OpZeroMemory    Opcode = 63 // m[MAR] .. m[MAR+arg1-1] = 0
	OpCreateString  Opcode = 64 // reg1 = new String(reg1)
	OpStringsEqual  Opcode = 65 // reg1 = (string)reg1 == (string)reg2
	OpStringsNotEq  Opcode = 66 // reg1 = (string)reg1 != (string)reg2
	OpCheckNullReg  Opcode = 67 // error if reg1 == 0
	OpLoopCheckOff  Opcode = 68 // no loop checking in this function
	OpMemZeroPtrND  Opcode = 69 // m[MAR] = 0 without disposing the object
	OpJNZ           Opcode = 70 // jump if ax != 0
	OpDynamicBounds Opcode = 71 // check reg1 is within the dynamic array at MAR
	OpNewArray      Opcode = 72 // reg1 = new array of reg1 elements, each arg2 bytes, managed if arg3
)

// NumOpcodes is the highest valid opcode value.
const NumOpcodes = 72

// opInfo holds the mnemonic and operand count of every opcode. Index 0 is
// the null entry. A leading '$' marks operand 1 as a register, '$$' marks
// operands 1 and 2 as registers.
var opInfo = [NumOpcodes + 1]struct {
	Name string
	Args int
}{
	{"NULL", 0},
	{"$add", 2}, {"$sub", 2}, {"$$mov", 2}, {"memwritelit", 2}, {"ret", 0}, {"$mov", 2},
	{"$memread", 1}, {"$memwrite", 1}, {"$$mul", 2}, {"$$div", 2}, {"$$add", 2}, {"$$sub", 2},
	{"$$bit_and", 2}, {"$$bit_or", 2}, {"$$cmp", 2}, {"$$ncmp", 2}, {"$$gt", 2}, {"$$lt", 2},
	{"$$gte", 2}, {"$$lte", 2}, {"$$and", 2}, {"$$or", 2}, {"$call", 1}, {"$memread.b", 1},
	{"$memread.w", 1}, {"$memwrite.b", 1}, {"$memwrite.w", 1}, {"jz", 1}, {"$push", 1},
	{"$pop", 1}, {"jmp", 1}, {"$mul", 2}, {"$farcall", 1}, {"$farpush", 1}, {"farsubsp", 1},
	{"sourceline", 1}, {"$callscr", 1}, {"thisaddr", 1}, {"setfuncargs", 1}, {"$$mod", 2},
	{"$$xor", 2}, {"$not", 1}, {"$$shl", 2}, {"$$shr", 2}, {"$callobj", 1}, {"$checkbounds", 2},
	{"$memwrite.ptr", 1}, {"$memread.ptr", 1}, {"memwrite.ptr.0", 0}, {"$meminit.ptr", 1},
	{"load.sp.offs", 1}, {"checknull.ptr", 0}, {"$f.add", 2}, {"$f.sub", 2}, {"$$f.mul", 2},
	{"$$f.div", 2}, {"$$f.add", 2}, {"$$f.sub", 2}, {"$$f.gt", 2}, {"$$f.lt", 2}, {"$$f.gte", 2},
	{"$$f.lte", 2}, {"zeromem", 1}, {"$newstring", 1}, {"$$strcmp", 2}, {"$$strnotcmp", 2},
	{"$checknull", 1}, {"loopcheckoff", 0}, {"memwrite.ptr.0.nd", 0}, {"jnz", 1},
	{"$dynamicbounds", 1}, {"$newarray", 3},
}

// Valid reports whether op is one of the 72 defined opcodes.
func (op Opcode) Valid() bool {
	return op >= 1 && op <= NumOpcodes
}

// ArgCount returns the number of operand words that follow op.
func (op Opcode) ArgCount() int {
	if !op.Valid() {
		return 0
	}
	return opInfo[op].Args
}

// Mnemonic returns the instruction name used in listings. The register
// markers are part of the name, so "$add" (register, literal) and "$$add"
// (register, register) stay distinct.
func (op Opcode) Mnemonic() string {
	if op < 0 || op > NumOpcodes {
		return ""
	}
	return opInfo[op].Name
}

// RegisterOperands returns how many leading operands name registers.
func (op Opcode) RegisterOperands() int {
	if !op.Valid() {
		return 0
	}
	n := opInfo[op].Name
	count := 0
	for count < len(n) && n[count] == '$' {
		count++
	}
	return count
}

// IsJump reports whether the single operand of op is a relative jump offset.
func (op Opcode) IsJump() bool {
	return op == OpJmp || op == OpJZ || op == OpJNZ
}

func (op Opcode) String() string {
	if !op.Valid() {
		return fmt.Sprintf("Opcode(%d)", int32(op))
	}
	return op.Mnemonic()
}

// Lookup finds an opcode by mnemonic.
func Lookup(mnemonic string) (Opcode, bool) {
	for i := 1; i <= NumOpcodes; i++ {
		if Opcode(i).Mnemonic() == mnemonic {
			return Opcode(i), true
		}
	}
	return 0, false
}

// Register numbers used as operands.
const (
	RegNull int32 = 0
	RegSP   int32 = 1 // stack pointer
	RegMAR  int32 = 2 // memory address register
	RegAX   int32 = 3 // general purpose
	RegBX   int32 = 4
	RegCX   int32 = 5
	RegOP   int32 = 6 // object pointer for member calls
	RegDX   int32 = 7
)

var regNames = [...]string{"null", "sp", "mar", "ax", "bx", "cx", "op", "dx"}

// RegisterName returns the assembler name of register r.
func RegisterName(r int32) string {
	if r < 0 || int(r) >= len(regNames) {
		return fmt.Sprintf("r%d", r)
	}
	return regNames[r]
}

// LookupRegister finds a register by its assembler name.
func LookupRegister(name string) (int32, bool) {
	for i, n := range regNames {
		if n == name {
			return int32(i), true
		}
	}
	return 0, false
}

// FixupType tells a loader how to relocate the code word at a fixup offset.
type FixupType uint8

const (
	FixupGlobalData FixupType = 1 // code[fixup] += &globaldata[0]
	FixupFunction   FixupType = 2 // code[fixup] += &code[0]
	FixupString     FixupType = 3 // code[fixup] += &strings[0]
	FixupImport     FixupType = 4 // code[fixup] = &imported_thing[code[fixup]]
	FixupDataData   FixupType = 5 // globaldata[fixup] += &globaldata[0]
	FixupStack      FixupType = 6 // code[fixup] += &stack[0]
)

var fixupNames = map[FixupType]string{
	FixupGlobalData: "globaldata",
	FixupFunction:   "function",
	FixupString:     "string",
	FixupImport:     "import",
	FixupDataData:   "datadata",
	FixupStack:      "stack",
}

func (f FixupType) String() string {
	if n, ok := fixupNames[f]; ok {
		return n
	}
	return fmt.Sprintf("FixupType(%d)", uint8(f))
}

func (f FixupType) Valid() bool {
	_, ok := fixupNames[f]
	return ok
}
