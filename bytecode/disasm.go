package bytecode

import (
	"fmt"
	"strings"
)

// Disassemble returns a human-readable listing of a finalized module.
func (m *Module) Disassemble() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("; R+ Bytecode v%d\n", WireVersion))
	sb.WriteString(fmt.Sprintf("; Data region: %d bytes\n", m.DataSize))
	sb.WriteString("\n")

	// Constants
	if len(m.Constants) > 0 {
		sb.WriteString("; Constants:\n")
		for i, v := range m.Constants {
			display := v.String()
			if len(display) > 40 {
				display = display[:37] + "..."
			}
			sb.WriteString(fmt.Sprintf(";   [%3d] %s\n", i, display))
		}
		sb.WriteString("\n")
	}

	// Function entry points, so the listing can be read top to bottom
	entries := make(map[int]string, len(m.Functions))
	for _, fn := range m.Functions {
		entries[fn.Entry] = fmt.Sprintf("%s/%d", fn.Name, fn.NumParams)
	}

	sb.WriteString("; Code:\n")
	for offset, ins := range m.Code {
		if name, ok := entries[offset]; ok {
			sb.WriteString(fmt.Sprintf("; === %s ===\n", name))
		}
		sb.WriteString(fmt.Sprintf("%04X  %s\n", offset, m.DisassembleInstruction(ins)))
	}

	return sb.String()
}

// DisassembleInstruction returns a human-readable representation of a
// single instruction, annotating jump targets and constant values.
func (m *Module) DisassembleInstruction(ins Instruction) string {
	switch {
	case ins.Op == OpLoadConst:
		if int(ins.Imm) < len(m.Constants) {
			display := m.Constants[ins.Imm].String()
			if len(display) > 20 {
				display = display[:17] + "..."
			}
			return fmt.Sprintf("%s ; %s", ins.String(), display)
		}
		return ins.String()

	case ins.Op == OpCall:
		for _, fn := range m.Functions {
			if uint64(fn.Entry) == ins.Imm {
				return fmt.Sprintf("%s ; %s", ins.String(), fn.Name)
			}
		}
		return ins.String()

	case ins.Op.IsJump():
		return fmt.Sprintf("%s (-> %04X)", ins.String(), ins.Imm)

	default:
		return ins.String()
	}
}

// DisassembleToLines returns the disassembly as a slice of lines,
// without the header or constant pool sections.
func (m *Module) DisassembleToLines() []string {
	lines := make([]string, len(m.Code))
	for offset, ins := range m.Code {
		lines[offset] = fmt.Sprintf("%04X  %s", offset, m.DisassembleInstruction(ins))
	}
	return lines
}
