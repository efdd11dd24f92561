package vm

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// cborEncMode uses canonical encoding so identical states always
// produce identical bytes.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("vm: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// State is a complete snapshot of a machine: registers, program
// counter, call stack, and deep copies of the heap and operand stack.
// It carries no pointer into the live machine, so mutating one side
// never affects the other.
type State struct {
	PC        int                  `cbor:"pc"`
	Registers [NumRegisters]uint64 `cbor:"registers"`
	CallStack []int                `cbor:"call_stack"`
	Heap      []byte               `cbor:"heap"`
	AllocPtr  uint64               `cbor:"alloc_ptr"`
	Stack     []byte               `cbor:"stack"`
	StackSize uint64               `cbor:"stack_size"`
	SP        uint64               `cbor:"sp"`
	Status    Status               `cbor:"status"`
}

// Snapshot captures the machine's current state.
func (m *Machine) Snapshot() *State {
	s := &State{
		PC:        m.pc,
		Registers: m.regs,
		CallStack: append([]int(nil), m.callStack...),
		Heap:      append([]byte(nil), m.heap.data...),
		AllocPtr:  m.heap.allocPtr,
		Stack:     append([]byte(nil), m.stack.data...),
		StackSize: m.stack.Size(),
		SP:        m.stack.sp,
		Status:    m.status,
	}
	return s
}

// Restore replaces the machine's state with a snapshot. The loaded
// module is left alone; restoring a snapshot taken against a different
// module gives undefined execution, so embedders are expected to pair
// snapshots with their module.
func (m *Machine) Restore(s *State) error {
	if s.SP > uint64(len(s.Stack)) {
		return fmt.Errorf("restore: sp %d exceeds stack of %d bytes", s.SP, len(s.Stack))
	}
	if s.AllocPtr > uint64(len(s.Heap)) {
		return fmt.Errorf("restore: alloc pointer %d exceeds heap of %d bytes", s.AllocPtr, len(s.Heap))
	}

	m.pc = s.PC
	m.regs = s.Registers
	m.callStack = append(m.callStack[:0], s.CallStack...)
	m.heap = &Heap{
		data:     append([]byte(nil), s.Heap...),
		allocPtr: s.AllocPtr,
	}
	m.stack = &Stack{
		data: append([]byte(nil), s.Stack...),
		sp:   s.SP,
	}
	m.status = s.Status
	if m.status != StatusFaulted {
		m.fault = nil
	}
	return nil
}

// MarshalState serializes a snapshot to canonical CBOR bytes.
func MarshalState(s *State) ([]byte, error) {
	return cborEncMode.Marshal(s)
}

// UnmarshalState deserializes a snapshot from CBOR bytes.
func UnmarshalState(data []byte) (*State, error) {
	var s State
	if err := cbor.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("vm: unmarshal state: %w", err)
	}
	return &s, nil
}
