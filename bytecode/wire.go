package bytecode

import (
	"encoding/binary"
	"fmt"
)

// WireVersion is the current binary module format version.
// Increment when making incompatible changes to the format.
const WireVersion uint16 = 1

// WireMagic identifies binary module files: "RPBC" (R+ ByteCode)
var WireMagic = []byte{'R', 'P', 'B', 'C'}

// InstructionSize is the fixed on-wire size of one instruction:
// opcode, operand1, operand2, dest registers one byte each, then an
// 8-byte big-endian immediate.
const InstructionSize = 12

// Serialize encodes a finalized module to bytes for storage/transport.
// Format:
//
//	[magic:4] [version:2]
//	[data_size:8]
//	[code_count:4] [instructions: code_count * 12]
//	[const_count:2] [constants:...]
//	[func_count:2] [functions:...]
//
// Each instruction is {opcode:1, operand1:1, operand2:1, dest:1,
// immediate:8}. Serializing is deterministic: the same module always
// produces the same bytes.
func (m *Module) Serialize() ([]byte, error) {
	if !m.finalized {
		return nil, fmt.Errorf("cannot serialize unfinalized module")
	}

	estimatedSize := 16 + len(m.Code)*InstructionSize + len(m.Constants)*16 + len(m.Functions)*24
	buf := make([]byte, 0, estimatedSize)

	// Magic number: "RPBC"
	buf = append(buf, WireMagic...)
	buf = binary.BigEndian.AppendUint16(buf, WireVersion)

	// Reserved data region
	buf = binary.BigEndian.AppendUint64(buf, m.DataSize)

	// Code section
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(m.Code)))
	for _, ins := range m.Code {
		buf = append(buf, byte(ins.Op), ins.Src1, ins.Src2, ins.Dest)
		buf = binary.BigEndian.AppendUint64(buf, ins.Imm)
	}

	// Constants
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(m.Constants)))
	for _, v := range m.Constants {
		buf = append(buf, byte(v.Type))
		switch v.Type {
		case ValueString:
			buf = binary.BigEndian.AppendUint32(buf, uint32(len(v.Str)))
			buf = append(buf, v.Str...)
		default:
			buf = binary.BigEndian.AppendUint64(buf, v.Num)
		}
	}

	// Function table
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(m.Functions)))
	for _, fn := range m.Functions {
		if len(fn.Name) > 255 {
			return nil, fmt.Errorf("function name %q too long", fn.Name)
		}
		buf = append(buf, byte(len(fn.Name)))
		buf = append(buf, fn.Name...)
		buf = append(buf, byte(fn.NumParams))
		buf = binary.BigEndian.AppendUint32(buf, uint32(fn.Entry))
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(fn.Code)))
	}

	return buf, nil
}

// Deserialize decodes a module from bytes. The result is finalized:
// code is flat and all targets are absolute. Deserialize(Serialize(m))
// re-serializes to the identical byte sequence.
func Deserialize(data []byte) (*Module, error) {
	if len(data) < 14 {
		return nil, fmt.Errorf("module too short: need at least 14 bytes, got %d", len(data))
	}

	// Check magic
	if string(data[0:4]) != string(WireMagic) {
		return nil, fmt.Errorf("invalid module magic: expected %q, got %q", WireMagic, data[0:4])
	}

	version := binary.BigEndian.Uint16(data[4:6])
	if version > WireVersion {
		return nil, fmt.Errorf("module version %d is newer than supported version %d", version, WireVersion)
	}

	m := &Module{finalized: true}
	m.DataSize = binary.BigEndian.Uint64(data[6:14])
	pos := 14

	// Code section
	if pos+4 > len(data) {
		return nil, fmt.Errorf("unexpected end of module reading code count at pos %d", pos)
	}
	codeCount := binary.BigEndian.Uint32(data[pos:])
	pos += 4

	if pos+int(codeCount)*InstructionSize > len(data) {
		return nil, fmt.Errorf("unexpected end of module reading code section: need %d instructions at pos %d", codeCount, pos)
	}
	m.Code = make([]Instruction, codeCount)
	for i := range m.Code {
		m.Code[i] = Instruction{
			Op:   Opcode(data[pos]),
			Src1: data[pos+1],
			Src2: data[pos+2],
			Dest: data[pos+3],
			Imm:  binary.BigEndian.Uint64(data[pos+4:]),
		}
		pos += InstructionSize
	}

	// Constants
	if pos+2 > len(data) {
		return nil, fmt.Errorf("unexpected end of module reading constant count")
	}
	constCount := binary.BigEndian.Uint16(data[pos:])
	pos += 2

	m.Constants = make([]Value, constCount)
	for i := range m.Constants {
		if pos >= len(data) {
			return nil, fmt.Errorf("unexpected end of module reading constant %d type", i)
		}
		typ := ValueType(data[pos])
		pos++

		switch typ {
		case ValueString:
			if pos+4 > len(data) {
				return nil, fmt.Errorf("unexpected end of module reading constant %d length", i)
			}
			strLen := binary.BigEndian.Uint32(data[pos:])
			pos += 4

			if pos+int(strLen) > len(data) {
				return nil, fmt.Errorf("unexpected end of module reading constant %d", i)
			}
			m.Constants[i] = StringValue(string(data[pos : pos+int(strLen)]))
			pos += int(strLen)
		case ValueNil, ValueBool, ValueNumber:
			if pos+8 > len(data) {
				return nil, fmt.Errorf("unexpected end of module reading constant %d", i)
			}
			m.Constants[i] = Value{Type: typ, Num: binary.BigEndian.Uint64(data[pos:])}
			pos += 8
		default:
			return nil, fmt.Errorf("constant %d has unknown type %d", i, typ)
		}
	}

	// Function table
	if pos+2 > len(data) {
		return nil, fmt.Errorf("unexpected end of module reading function count")
	}
	funcCount := binary.BigEndian.Uint16(data[pos:])
	pos += 2

	m.Functions = make([]Function, funcCount)
	for i := range m.Functions {
		if pos >= len(data) {
			return nil, fmt.Errorf("unexpected end of module reading function %d name length", i)
		}
		nameLen := data[pos]
		pos++

		if pos+int(nameLen)+9 > len(data) {
			return nil, fmt.Errorf("unexpected end of module reading function %d", i)
		}
		m.Functions[i].Name = string(data[pos : pos+int(nameLen)])
		pos += int(nameLen)

		m.Functions[i].NumParams = int(data[pos])
		pos++

		entry := int(binary.BigEndian.Uint32(data[pos:]))
		pos += 4
		codeLen := int(binary.BigEndian.Uint32(data[pos:]))
		pos += 4

		if entry < 0 || entry+codeLen > len(m.Code) {
			return nil, fmt.Errorf("function %d body [%d, %d) out of code range", i, entry, entry+codeLen)
		}
		m.Functions[i].Entry = entry
		m.Functions[i].Code = m.Code[entry : entry+codeLen]
	}

	return m, nil
}
