package vm

import (
	"fmt"
	"os"

	"github.com/rplus-lang/rplus/bytecode"
)

const (
	// NumRegisters is the number of general purpose registers.
	NumRegisters = 16

	// FlagRegister is the register CMP writes its result into.
	FlagRegister = 15

	// CMP results.
	FlagEqual   = 0
	FlagLess    = 1
	FlagGreater = 2

	// DefaultHeapSize is the heap size in bytes when none is configured.
	DefaultHeapSize = 64 * 1024

	// DefaultStackSize is the operand stack size in bytes.
	DefaultStackSize = 4 * 1024

	// DefaultMaxCallDepth bounds the call stack.
	DefaultMaxCallDepth = 1024
)

// Status describes where the machine is in its lifecycle.
type Status int

const (
	StatusReady   Status = iota // Module loaded, nothing executed yet
	StatusRunning               // At least one instruction executed
	StatusHalted                // HALT executed or pc ran past the last instruction
	StatusFaulted               // Execution stopped on a fault
)

// String returns the name of the status.
func (s Status) String() string {
	switch s {
	case StatusReady:
		return "ready"
	case StatusRunning:
		return "running"
	case StatusHalted:
		return "halted"
	case StatusFaulted:
		return "faulted"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Config sizes a machine's memory regions.
type Config struct {
	HeapSize     uint64
	StackSize    uint64
	MaxCallDepth int
}

// DefaultConfig returns the default machine sizing.
func DefaultConfig() Config {
	return Config{
		HeapSize:     DefaultHeapSize,
		StackSize:    DefaultStackSize,
		MaxCallDepth: DefaultMaxCallDepth,
	}
}

// Machine executes one module at a time. It is not safe for concurrent
// use; see Worker for serializing access from multiple goroutines.
type Machine struct {
	regs      [NumRegisters]uint64
	pc        int
	heap      *Heap
	stack     *Stack
	callStack []int

	module     *bytecode.Module
	constAddrs []uint32 // heap address per string constant, 0 otherwise

	config Config
	status Status
	fault  *Fault

	// Trace enables per-instruction logging to stderr.
	Trace bool
}

// New creates a machine with default memory sizes.
func New() *Machine {
	return NewWithConfig(DefaultConfig())
}

// NewWithConfig creates a machine with explicit memory sizes.
func NewWithConfig(cfg Config) *Machine {
	if cfg.HeapSize == 0 {
		cfg.HeapSize = DefaultHeapSize
	}
	if cfg.StackSize == 0 {
		cfg.StackSize = DefaultStackSize
	}
	if cfg.MaxCallDepth == 0 {
		cfg.MaxCallDepth = DefaultMaxCallDepth
	}
	return &Machine{
		heap:   NewHeap(cfg.HeapSize),
		stack:  NewStack(cfg.StackSize),
		config: cfg,
		status: StatusHalted,
	}
}

// LoadModule resets the machine and prepares a module for execution.
// The module is finalized if it is not already. The module's data
// region is reserved at the bottom of the heap and string constants
// are copied into freshly allocated cells so LOADCONST can yield their
// addresses.
func (m *Machine) LoadModule(mod *bytecode.Module) error {
	if err := mod.Finalize(); err != nil {
		return fmt.Errorf("loading module: %w", err)
	}

	m.regs = [NumRegisters]uint64{}
	m.pc = 0
	m.heap = NewHeap(m.config.HeapSize)
	m.stack = NewStack(m.config.StackSize)
	m.callStack = m.callStack[:0]
	m.fault = nil

	if mod.DataSize > 0 {
		if _, err := m.heap.Allocate(mod.DataSize); err != nil {
			return fmt.Errorf("reserving %d byte data region: %w", mod.DataSize, err)
		}
	}

	m.constAddrs = make([]uint32, len(mod.Constants))
	for i, c := range mod.Constants {
		if c.Type != bytecode.ValueString {
			continue
		}
		// Trailing zero byte terminates the string in memory
		addr, err := m.heap.Allocate(uint64(len(c.Str)) + 1)
		if err != nil {
			return fmt.Errorf("allocating string constant %d: %w", i, err)
		}
		if err := m.heap.WriteBytes(addr, []byte(c.Str)); err != nil {
			return err
		}
		m.constAddrs[i] = addr
	}

	m.module = mod
	m.status = StatusReady
	return nil
}

// Module returns the currently loaded module, or nil.
func (m *Machine) Module() *bytecode.Module {
	return m.module
}

// Status returns the machine's lifecycle status.
func (m *Machine) Status() Status {
	return m.status
}

// Fault returns the fault that stopped execution, or nil.
func (m *Machine) Fault() *Fault {
	return m.fault
}

// PC returns the current program counter.
func (m *Machine) PC() int {
	return m.pc
}

// Heap exposes the machine's heap for inspection and embedding.
func (m *Machine) Heap() *Heap {
	return m.heap
}

// Stack exposes the machine's operand stack.
func (m *Machine) Stack() *Stack {
	return m.stack
}

// CallDepth returns the number of saved return addresses.
func (m *Machine) CallDepth() int {
	return len(m.callStack)
}

// Register returns the value of register reg.
func (m *Machine) Register(reg uint8) (uint64, error) {
	if reg >= NumRegisters {
		return 0, newFault(FaultInvalidRegister, "register r%d out of range", reg)
	}
	return m.regs[reg], nil
}

// SetRegister writes a register. Used by embedders between steps.
func (m *Machine) SetRegister(reg uint8, value uint64) error {
	if reg >= NumRegisters {
		return newFault(FaultInvalidRegister, "register r%d out of range", reg)
	}
	m.regs[reg] = value
	return nil
}

// Result returns the program result: the 8 bytes on top of the operand
// stack after a halt.
func (m *Machine) Result() (uint64, error) {
	if m.status != StatusHalted {
		return 0, fmt.Errorf("machine is %s, not halted", m.status)
	}
	return m.stack.Peek(0, 8)
}

// Run executes the loaded module until it halts, runs past the last
// instruction, or faults. On a fault the returned error is a *Fault
// and the machine state is preserved for inspection.
func (m *Machine) Run() error {
	for {
		done, err := m.Step()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

// Step executes a single instruction. It returns true when the machine
// is no longer runnable: after HALT, after the pc passes the last
// instruction, or on a fault. A fault also sets the machine status and
// is returned as a *Fault.
func (m *Machine) Step() (bool, error) {
	switch m.status {
	case StatusHalted:
		if m.module == nil {
			return true, fmt.Errorf("no module loaded")
		}
		return true, nil
	case StatusFaulted:
		return true, m.fault
	}

	if m.pc < 0 || m.pc >= len(m.module.Code) {
		m.status = StatusHalted
		return true, nil
	}

	ins := m.module.Code[m.pc]
	if m.Trace {
		fmt.Fprintf(os.Stderr, "[%04x] %-24s flag=%d\n", m.pc, m.module.DisassembleInstruction(ins), m.regs[FlagRegister])
	}

	if err := m.execute(ins); err != nil {
		f, ok := err.(*Fault)
		if !ok {
			f = newFault(FaultInvalidOpcode, "%v", err)
		}
		f.PC = m.pc
		m.fault = f
		m.status = StatusFaulted
		return true, f
	}

	m.pc++
	if m.status == StatusHalted {
		return true, nil
	}
	m.status = StatusRunning
	return false, nil
}

// checkRegisters validates every register field the opcode uses before
// the instruction touches any state.
func checkRegisters(ins bytecode.Instruction) error {
	info := bytecode.GetOpcodeInfo(ins.Op)
	if info.Dest && ins.Dest >= NumRegisters {
		return newFault(FaultInvalidRegister, "dest register r%d out of range", ins.Dest)
	}
	if info.Src1 && ins.Src1 >= NumRegisters {
		return newFault(FaultInvalidRegister, "operand register r%d out of range", ins.Src1)
	}
	if info.Src2 && ins.Src2 >= NumRegisters {
		return newFault(FaultInvalidRegister, "operand register r%d out of range", ins.Src2)
	}
	return nil
}

func (m *Machine) execute(ins bytecode.Instruction) error {
	if !ins.Op.Valid() {
		return newFault(FaultInvalidOpcode, "opcode 0x%02X", byte(ins.Op))
	}
	if err := checkRegisters(ins); err != nil {
		return err
	}

	switch ins.Op {
	case bytecode.OpNop:
		// Do nothing

	case bytecode.OpAdd:
		m.regs[ins.Dest] = m.regs[ins.Src1] + m.regs[ins.Src2]
	case bytecode.OpSub:
		m.regs[ins.Dest] = m.regs[ins.Src1] - m.regs[ins.Src2]
	case bytecode.OpMul:
		m.regs[ins.Dest] = m.regs[ins.Src1] * m.regs[ins.Src2]
	case bytecode.OpDiv:
		if m.regs[ins.Src2] == 0 {
			return newFault(FaultDivisionByZero, "division by zero")
		}
		m.regs[ins.Dest] = m.regs[ins.Src1] / m.regs[ins.Src2]
	case bytecode.OpMod:
		if m.regs[ins.Src2] == 0 {
			return newFault(FaultDivisionByZero, "modulo by zero")
		}
		m.regs[ins.Dest] = m.regs[ins.Src1] % m.regs[ins.Src2]

	case bytecode.OpAnd:
		m.regs[ins.Dest] = m.regs[ins.Src1] & m.regs[ins.Src2]
	case bytecode.OpOr:
		m.regs[ins.Dest] = m.regs[ins.Src1] | m.regs[ins.Src2]
	case bytecode.OpXor:
		m.regs[ins.Dest] = m.regs[ins.Src1] ^ m.regs[ins.Src2]
	case bytecode.OpShl:
		m.regs[ins.Dest] = m.regs[ins.Src1] << (m.regs[ins.Src2] & 63)
	case bytecode.OpShr:
		m.regs[ins.Dest] = m.regs[ins.Src1] >> (m.regs[ins.Src2] & 63)

	case bytecode.OpLoad:
		addr := uint32(m.regs[ins.Src1])
		value, err := m.heap.Read(addr, 8)
		if err != nil {
			return err
		}
		m.regs[ins.Dest] = value
	case bytecode.OpStore:
		addr := uint32(m.regs[ins.Src1])
		if err := m.heap.Write(addr, m.regs[ins.Src2], 8); err != nil {
			return err
		}
	case bytecode.OpLoadImm:
		m.regs[ins.Dest] = ins.Imm
	case bytecode.OpLoadConst:
		idx := int(ins.Imm)
		if idx >= len(m.module.Constants) {
			return newFault(FaultMemory, "constant index %d out of range", idx)
		}
		c := m.module.Constants[idx]
		if c.Type == bytecode.ValueString {
			m.regs[ins.Dest] = uint64(m.constAddrs[idx])
		} else {
			m.regs[ins.Dest] = c.Num
		}

	case bytecode.OpPush:
		return m.stack.Push(m.regs[ins.Src1], 8)
	case bytecode.OpPop:
		value, err := m.stack.Pop(8)
		if err != nil {
			return err
		}
		m.regs[ins.Dest] = value

	case bytecode.OpJmp:
		m.pc = int(ins.Imm) - 1 // pc is incremented after the instruction
	case bytecode.OpJz:
		if m.regs[ins.Src1] == 0 {
			m.pc = int(ins.Imm) - 1
		}
	case bytecode.OpJnz:
		if m.regs[ins.Src1] != 0 {
			m.pc = int(ins.Imm) - 1
		}
	case bytecode.OpJlt:
		if int64(m.regs[ins.Src1]) < int64(m.regs[ins.Src2]) {
			m.pc = int(ins.Imm) - 1
		}
	case bytecode.OpJle:
		if int64(m.regs[ins.Src1]) <= int64(m.regs[ins.Src2]) {
			m.pc = int(ins.Imm) - 1
		}
	case bytecode.OpJgt:
		if int64(m.regs[ins.Src1]) > int64(m.regs[ins.Src2]) {
			m.pc = int(ins.Imm) - 1
		}
	case bytecode.OpJge:
		if int64(m.regs[ins.Src1]) >= int64(m.regs[ins.Src2]) {
			m.pc = int(ins.Imm) - 1
		}

	case bytecode.OpCmp:
		a := int64(m.regs[ins.Src1])
		b := int64(m.regs[ins.Src2])
		switch {
		case a == b:
			m.regs[FlagRegister] = FlagEqual
		case a < b:
			m.regs[FlagRegister] = FlagLess
		default:
			m.regs[FlagRegister] = FlagGreater
		}

	case bytecode.OpCall:
		if len(m.callStack) >= m.config.MaxCallDepth {
			return newFault(FaultStackOverflow, "call depth exceeds %d", m.config.MaxCallDepth)
		}
		m.callStack = append(m.callStack, m.pc)
		m.pc = int(ins.Imm) - 1
	case bytecode.OpRet:
		if len(m.callStack) == 0 {
			return newFault(FaultBrokenCallStack, "return with empty call stack")
		}
		m.pc = m.callStack[len(m.callStack)-1]
		m.callStack = m.callStack[:len(m.callStack)-1]

	case bytecode.OpHalt:
		m.status = StatusHalted

	default:
		return newFault(FaultInvalidOpcode, "opcode 0x%02X", byte(ins.Op))
	}

	return nil
}
