package bytecode

import (
	"fmt"
	"strconv"
)

// ValueType identifies the type of a constant pool value.
type ValueType byte

const (
	ValueNil ValueType = iota
	ValueBool
	ValueNumber
	ValueString
)

// String returns the name of the value type.
func (t ValueType) String() string {
	switch t {
	case ValueNil:
		return "nil"
	case ValueBool:
		return "bool"
	case ValueNumber:
		return "number"
	case ValueString:
		return "string"
	default:
		return fmt.Sprintf("type(%d)", byte(t))
	}
}

// Value is an entry in a module's constant pool. Numbers are stored as
// raw 64-bit words since the machine is untyped; the type tag survives
// serialization so the disassembler and string loading can tell
// constants apart.
type Value struct {
	Type ValueType
	Num  uint64 // ValueNumber, ValueBool (0 or 1)
	Str  string // ValueString
}

// NilValue returns the nil constant.
func NilValue() Value {
	return Value{Type: ValueNil}
}

// BoolValue wraps a bool as a constant pool value.
func BoolValue(b bool) Value {
	v := Value{Type: ValueBool}
	if b {
		v.Num = 1
	}
	return v
}

// NumberValue wraps a 64-bit word as a constant pool value.
func NumberValue(n uint64) Value {
	return Value{Type: ValueNumber, Num: n}
}

// StringValue wraps a string as a constant pool value.
func StringValue(s string) Value {
	return Value{Type: ValueString, Str: s}
}

// Equal reports whether two values are identical in type and content.
func (v Value) Equal(other Value) bool {
	if v.Type != other.Type {
		return false
	}
	if v.Type == ValueString {
		return v.Str == other.Str
	}
	return v.Num == other.Num
}

// String returns a printable representation used by the disassembler.
func (v Value) String() string {
	switch v.Type {
	case ValueNil:
		return "nil"
	case ValueBool:
		if v.Num != 0 {
			return "true"
		}
		return "false"
	case ValueNumber:
		return strconv.FormatUint(v.Num, 10)
	case ValueString:
		return strconv.Quote(v.Str)
	default:
		return fmt.Sprintf("value(%d)", byte(v.Type))
	}
}
