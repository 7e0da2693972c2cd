// Package vm implements the Lox virtual machine.
//
// This package contains:
//   - The tagged value representation
//   - Heap objects (strings, functions, closures, upvalues, natives) and
//     the owning heap that interns strings
//   - The open-addressing hash table used for interning and globals
//   - Chunks, opcodes and the disassembler
//   - The stack-based bytecode interpreter
//
// The compiler lives in a separate package and is installed with
// UseCompiler, so this package never imports it.
package vm
