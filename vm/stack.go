package vm

import "encoding/binary"

// Stack is the machine's operand stack: a fixed byte buffer addressed
// by a byte stack pointer. Values are pushed and popped in widths of
// 1, 2, 4 or 8 bytes, little-endian; a pop is the inverse of a push of
// the same width.
type Stack struct {
	data []byte
	sp   uint64
}

// NewStack creates an empty operand stack of the given size in bytes.
func NewStack(size uint64) *Stack {
	return &Stack{data: make([]byte, size)}
}

// Size returns the total stack capacity in bytes.
func (s *Stack) Size() uint64 {
	return uint64(len(s.data))
}

// SP returns the current byte stack pointer.
func (s *Stack) SP() uint64 {
	return s.sp
}

func validWidth(size uint64) bool {
	return size == 1 || size == 2 || size == 4 || size == 8
}

// Push stores the low size bytes of value on top of the stack.
func (s *Stack) Push(value uint64, size uint64) error {
	if !validWidth(size) {
		return newFault(FaultMemory, "invalid stack operand width %d", size)
	}
	if s.sp+size > uint64(len(s.data)) {
		return newFault(FaultStackOverflow, "push of %d bytes at sp %d exceeds stack of %d", size, s.sp, len(s.data))
	}

	var word [8]byte
	binary.LittleEndian.PutUint64(word[:], value)
	copy(s.data[s.sp:], word[:size])
	s.sp += size
	return nil
}

// Pop removes size bytes from the top of the stack and returns them
// zero-extended to 64 bits.
func (s *Stack) Pop(size uint64) (uint64, error) {
	if !validWidth(size) {
		return 0, newFault(FaultMemory, "invalid stack operand width %d", size)
	}
	if s.sp < size {
		return 0, newFault(FaultStackUnderflow, "pop of %d bytes with sp %d", size, s.sp)
	}

	s.sp -= size
	var word [8]byte
	copy(word[:], s.data[s.sp:s.sp+size])
	return binary.LittleEndian.Uint64(word[:]), nil
}

// Peek reads size bytes at offset bytes below the top without popping.
func (s *Stack) Peek(offset, size uint64) (uint64, error) {
	if !validWidth(size) {
		return 0, newFault(FaultMemory, "invalid stack operand width %d", size)
	}
	if s.sp < offset+size {
		return 0, newFault(FaultStackUnderflow, "peek of %d bytes at offset %d with sp %d", size, offset, s.sp)
	}

	var word [8]byte
	copy(word[:], s.data[s.sp-offset-size:s.sp-offset])
	return binary.LittleEndian.Uint64(word[:]), nil
}
