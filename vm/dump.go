package vm

import (
	"fmt"
	"strings"
)

// DumpRegisters returns a listing of all register values plus the
// program counter and stack pointers.
func (m *Machine) DumpRegisters() string {
	var sb strings.Builder
	sb.WriteString("=== Register State ===\n")
	for i, v := range m.regs {
		sb.WriteString(fmt.Sprintf("R%-2d: 0x%016X\n", i, v))
	}
	sb.WriteString(fmt.Sprintf("PC: %d, SP: %d, CallDepth: %d\n", m.pc, m.stack.sp, len(m.callStack)))
	return sb.String()
}

// DumpHeap returns a hex dump of heap memory in the range
// [start, start+size).
func (m *Machine) DumpHeap(start uint32, size uint64) (string, error) {
	region, err := m.heap.ReadBytes(start, size)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("=== Heap Memory [%d-%d] ===\n", start, uint64(start)+size-1))
	hexDump(&sb, region, uint64(start))
	return sb.String(), nil
}

// DumpStack returns a hex dump of up to size bytes from the top of the
// operand stack.
func (m *Machine) DumpStack(size uint64) string {
	if size > m.stack.sp {
		size = m.stack.sp
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("=== Stack Memory (top %d bytes) ===\n", size))
	base := m.stack.sp - size
	hexDump(&sb, m.stack.data[base:m.stack.sp], base)
	return sb.String()
}

// hexDump writes bytes in 16-column rows with address prefixes.
func hexDump(sb *strings.Builder, data []byte, base uint64) {
	for i, b := range data {
		if i%16 == 0 {
			sb.WriteString(fmt.Sprintf("0x%08X: ", base+uint64(i)))
		}
		sb.WriteString(fmt.Sprintf("%02X ", b))
		if (i+1)%16 == 0 || i == len(data)-1 {
			sb.WriteString("\n")
		}
	}
}
