package bytecode

import "fmt"

// Opcode identifies one virtual machine instruction.
// Opcodes are organized into ranges by category for easy identification.
type Opcode byte

const (
	// ========================================================================
	// Miscellaneous (0x00-0x0F)
	// ========================================================================

	OpNop Opcode = 0x00 // No operation

	// ========================================================================
	// Arithmetic (0x10-0x1F) - unsigned 64-bit
	// ========================================================================

	OpAdd Opcode = 0x10 // dest = src1 + src2
	OpSub Opcode = 0x11 // dest = src1 - src2
	OpMul Opcode = 0x12 // dest = src1 * src2
	OpDiv Opcode = 0x13 // dest = src1 / src2; src2 == 0 faults, dest untouched
	OpMod Opcode = 0x14 // dest = src1 % src2; src2 == 0 faults, dest untouched

	// ========================================================================
	// Bitwise (0x20-0x2F)
	// ========================================================================

	OpAnd Opcode = 0x20 // dest = src1 & src2
	OpOr  Opcode = 0x21 // dest = src1 | src2
	OpXor Opcode = 0x22 // dest = src1 ^ src2
	OpShl Opcode = 0x23 // dest = src1 << (src2 & 63)
	OpShr Opcode = 0x24 // dest = src1 >> (src2 & 63)

	// ========================================================================
	// Memory (0x30-0x3F)
	// ========================================================================

	OpLoad      Opcode = 0x30 // dest = heap[src1], 8-byte read, address truncated to 32 bits
	OpStore     Opcode = 0x31 // heap[src1] = src2, 8-byte write
	OpLoadImm   Opcode = 0x32 // dest = immediate
	OpLoadConst Opcode = 0x33 // dest = constant pool value at index immediate

	// ========================================================================
	// Operand stack (0x40-0x4F) - 8-byte width
	// ========================================================================

	OpPush Opcode = 0x40 // push src1
	OpPop  Opcode = 0x41 // dest = pop

	// ========================================================================
	// Control flow (0x50-0x5F)
	// All jumps set pc = target-1 so the post-instruction increment lands
	// exactly on target. Targets are absolute instruction offsets after
	// finalization; during emission they are pending label ids.
	// ========================================================================

	OpJmp Opcode = 0x50 // jump to immediate
	OpJz  Opcode = 0x51 // jump if src1 == 0
	OpJnz Opcode = 0x52 // jump if src1 != 0
	OpJlt Opcode = 0x53 // jump if src1 < src2 (signed)
	OpJle Opcode = 0x54 // jump if src1 <= src2 (signed)
	OpJgt Opcode = 0x55 // jump if src1 > src2 (signed)
	OpJge Opcode = 0x56 // jump if src1 >= src2 (signed)

	// ========================================================================
	// Comparison (0x60-0x6F)
	// ========================================================================

	OpCmp Opcode = 0x60 // flag register = 0 (equal), 1 (less), 2 (greater), signed

	// ========================================================================
	// Call/return (0x70-0x7F)
	// ========================================================================

	OpCall Opcode = 0x70 // push pc on call stack, jump to immediate
	OpRet  Opcode = 0x71 // pop pc from call stack; empty call stack faults

	// ========================================================================
	// Halt (0xFF)
	// ========================================================================

	OpHalt Opcode = 0xFF // set halted flag, end execution
)

// OpcodeInfo provides metadata about each opcode for debugging, the
// disassembler, and validation. The boolean fields record which
// instruction fields the opcode reads or writes.
type OpcodeInfo struct {
	Name string // Human-readable name
	Dest bool   // Uses the dest register field
	Src1 bool   // Uses the operand1 register field
	Src2 bool   // Uses the operand2 register field
	Imm  bool   // Uses the immediate field
}

// opcodeInfoTable maps opcodes to their metadata.
var opcodeInfoTable = map[Opcode]OpcodeInfo{
	OpNop: {"NOP", false, false, false, false},

	OpAdd: {"ADD", true, true, true, false},
	OpSub: {"SUB", true, true, true, false},
	OpMul: {"MUL", true, true, true, false},
	OpDiv: {"DIV", true, true, true, false},
	OpMod: {"MOD", true, true, true, false},

	OpAnd: {"AND", true, true, true, false},
	OpOr:  {"OR", true, true, true, false},
	OpXor: {"XOR", true, true, true, false},
	OpShl: {"SHL", true, true, true, false},
	OpShr: {"SHR", true, true, true, false},

	OpLoad:      {"LOAD", true, true, false, false},
	OpStore:     {"STORE", false, true, true, false},
	OpLoadImm:   {"LOADIMM", true, false, false, true},
	OpLoadConst: {"LOADCONST", true, false, false, true},

	OpPush: {"PUSH", false, true, false, false},
	OpPop:  {"POP", true, false, false, false},

	OpJmp: {"JMP", false, false, false, true},
	OpJz:  {"JZ", false, true, false, true},
	OpJnz: {"JNZ", false, true, false, true},
	OpJlt: {"JLT", false, true, true, true},
	OpJle: {"JLE", false, true, true, true},
	OpJgt: {"JGT", false, true, true, true},
	OpJge: {"JGE", false, true, true, true},

	OpCmp: {"CMP", false, true, true, false},

	OpCall: {"CALL", false, false, false, true},
	OpRet:  {"RET", false, false, false, false},

	OpHalt: {"HALT", false, false, false, false},
}

// GetOpcodeInfo returns metadata for an opcode.
// Returns a zero OpcodeInfo with an UNKNOWN name if the opcode is not defined.
func GetOpcodeInfo(op Opcode) OpcodeInfo {
	if info, ok := opcodeInfoTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN(0x%02X)", byte(op))}
}

// Valid reports whether the opcode is part of the instruction set.
func (op Opcode) Valid() bool {
	_, ok := opcodeInfoTable[op]
	return ok
}

// String returns the human-readable name of an opcode.
func (op Opcode) String() string {
	return GetOpcodeInfo(op).Name
}

// IsJump reports whether this opcode rewrites the program counter to an
// absolute target (the jump family plus CALL). These are the opcodes
// whose immediate field is subject to label backpatching.
func (op Opcode) IsJump() bool {
	return (op >= OpJmp && op <= OpJge) || op == OpCall
}

// AllOpcodes returns a slice of all defined opcodes.
// Useful for testing that all opcodes have metadata.
func AllOpcodes() []Opcode {
	opcodes := make([]Opcode, 0, len(opcodeInfoTable))
	for op := range opcodeInfoTable {
		opcodes = append(opcodes, op)
	}
	return opcodes
}

// OpcodeCount returns the number of defined opcodes.
func OpcodeCount() int {
	return len(opcodeInfoTable)
}
