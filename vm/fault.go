// Package vm implements the register machine that executes compiled
// bytecode modules.
//
// The machine has sixteen 64-bit general purpose registers (r15 doubles
// as the comparison flag register), a bump-allocated byte-addressed
// heap, an operand stack of raw bytes, and a call stack of saved
// program counters. Execution faults are reported as *Fault values
// rather than panics so embedders can inspect the machine after a
// failure.
package vm

import "fmt"

// FaultKind classifies an execution fault.
type FaultKind int

const (
	FaultDivisionByZero FaultKind = iota
	FaultMemory
	FaultStackOverflow
	FaultStackUnderflow
	FaultOutOfMemory
	FaultInvalidRegister
	FaultBrokenCallStack
	FaultInvalidOpcode
)

// String returns the name of the fault kind.
func (k FaultKind) String() string {
	switch k {
	case FaultDivisionByZero:
		return "DivisionByZero"
	case FaultMemory:
		return "MemoryFault"
	case FaultStackOverflow:
		return "StackOverflow"
	case FaultStackUnderflow:
		return "StackUnderflow"
	case FaultOutOfMemory:
		return "OutOfMemory"
	case FaultInvalidRegister:
		return "InvalidRegister"
	case FaultBrokenCallStack:
		return "BrokenCallStack"
	case FaultInvalidOpcode:
		return "InvalidOpcode"
	default:
		return fmt.Sprintf("FaultKind(%d)", int(k))
	}
}

// Fault is a machine execution error. PC is the offset of the faulting
// instruction, or -1 when the fault happened outside instruction
// execution.
type Fault struct {
	Kind FaultKind
	PC   int
	Msg  string
}

func (f *Fault) Error() string {
	if f.PC >= 0 {
		return fmt.Sprintf("%s at pc %d: %s", f.Kind, f.PC, f.Msg)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Msg)
}

func newFault(kind FaultKind, format string, args ...any) *Fault {
	return &Fault{Kind: kind, PC: -1, Msg: fmt.Sprintf(format, args...)}
}

// FaultKindOf returns the kind of a fault error.
// The second return is false if err is not a *Fault.
func FaultKindOf(err error) (FaultKind, bool) {
	if f, ok := err.(*Fault); ok {
		return f.Kind, true
	}
	return 0, false
}
