// Package compiler turns R+ source text into executable bytecode
// modules.
//
// The pipeline is Lexer -> Parser -> Compiler. The lexer and parser
// accept the full R+ grammar, including constructs like classes and
// object literals that the code generator rejects with
// UnsupportedConstruct, so tooling can still inspect such programs.
//
// Code generation is deliberately simple: variables live in fixed
// 8-byte cells of the module data region, expression temporaries take
// the next unused register and never give it back, and jump targets
// stay symbolic labels until a backpatch pass resolves all of them.
package compiler
