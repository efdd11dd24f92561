// Package bytecode defines the data model shared between the R+ compiler
// and virtual machine: the instruction set, functions, modules, and the
// binary wire format.
//
// The format is designed for:
//   - Compact representation (12 bytes per instruction, fixed width)
//   - Fast decoding (no variable-length operands)
//   - Easy serialization (modules can be written to disk, cached in
//     SQLite, or passed between processes)
//
// # Architecture Overview
//
//   - Opcodes: a closed set of register-machine instructions covering
//     arithmetic, bitwise operations, memory access, the operand stack,
//     control flow, comparison, and call/return.
//
//   - Instruction: one opcode plus up to three register operands and a
//     64-bit immediate. Which fields are meaningful depends on the opcode;
//     the metadata table records this per opcode.
//
//   - Module: the unit of compilation and execution. It owns an ordered
//     list of functions and a constant pool of tagged literal values.
//     A module is not executable until Finalize has laid its functions
//     out into one linear program and every jump and call target has
//     been resolved to an absolute instruction offset.
//
// The compiler produces modules; the VM consumes them. Neither side
// depends on the other, only on this package.
package bytecode
