package bytecode

import "fmt"

// Instruction is a single decoded machine instruction. On the wire each
// instruction is a fixed 12-byte record; see wire.go.
type Instruction struct {
	Op   Opcode
	Src1 uint8
	Src2 uint8
	Dest uint8
	Imm  uint64
}

// String formats an instruction for error messages and dumps. The full
// listing format lives in disasm.go.
func (ins Instruction) String() string {
	info := GetOpcodeInfo(ins.Op)
	s := info.Name
	if info.Dest {
		s += fmt.Sprintf(" r%d", ins.Dest)
	}
	if info.Src1 {
		s += fmt.Sprintf(" r%d", ins.Src1)
	}
	if info.Src2 {
		s += fmt.Sprintf(" r%d", ins.Src2)
	}
	if info.Imm {
		s += fmt.Sprintf(" %d", ins.Imm)
	}
	return s
}

// Function is one compiled function body. Jump immediates inside Code
// are function-relative offsets and CALL immediates are function
// indices until the owning module is finalized.
type Function struct {
	Name      string
	NumParams int
	Code      []Instruction
	Entry     int // absolute entry offset, set by Finalize
}

// Module is a compiled program: a flat instruction sequence, a constant
// pool, and the function table that produced it. DataSize is the number
// of heap bytes reserved at the bottom of the address space for global
// and local variable cells; the machine's allocator starts past it.
type Module struct {
	Code      []Instruction
	Constants []Value
	Functions []Function
	DataSize  uint64

	finalized bool
}

// NewModule creates an empty module.
func NewModule() *Module {
	return &Module{}
}

// AddConstant appends a value to the constant pool and returns its
// index. Identical values share one slot.
func (m *Module) AddConstant(v Value) int {
	for i, existing := range m.Constants {
		if existing.Equal(v) {
			return i
		}
	}
	m.Constants = append(m.Constants, v)
	return len(m.Constants) - 1
}

// AddFunction appends a function body and returns its index. Index 0 is
// the program entry point.
func (m *Module) AddFunction(fn Function) int {
	m.Functions = append(m.Functions, fn)
	return len(m.Functions) - 1
}

// FunctionIndex returns the index of the named function, or -1.
func (m *Module) FunctionIndex(name string) int {
	for i, fn := range m.Functions {
		if fn.Name == name {
			return i
		}
	}
	return -1
}

// Finalized reports whether Finalize has laid out the module.
func (m *Module) Finalized() bool {
	return m.finalized
}

// Finalize lays the function bodies out into one flat code sequence and
// rewrites targets to absolute instruction offsets: jump immediates get
// the owning function's base offset added, and CALL immediates are
// translated from function index to entry offset. Function 0 is placed
// first so execution starts at offset 0. Finalize is idempotent.
func (m *Module) Finalize() error {
	if m.finalized {
		return nil
	}
	if len(m.Functions) == 0 {
		return fmt.Errorf("module has no functions")
	}

	bases := make([]int, len(m.Functions))
	offset := 0
	for i, fn := range m.Functions {
		bases[i] = offset
		m.Functions[i].Entry = offset
		offset += len(fn.Code)
	}

	code := make([]Instruction, 0, offset)
	for i, fn := range m.Functions {
		base := bases[i]
		for _, ins := range fn.Code {
			switch {
			case ins.Op == OpCall:
				idx := int(ins.Imm)
				if idx < 0 || idx >= len(m.Functions) {
					return fmt.Errorf("function %q: CALL to undefined function index %d", fn.Name, idx)
				}
				ins.Imm = uint64(bases[idx])
			case ins.Op.IsJump():
				target := base + int(ins.Imm)
				if target < 0 || target > offset {
					return fmt.Errorf("function %q: jump target %d out of range", fn.Name, target)
				}
				ins.Imm = uint64(target)
			}
			code = append(code, ins)
		}
	}

	m.Code = code
	m.finalized = true
	return nil
}
