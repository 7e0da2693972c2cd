package vm

import (
	"fmt"
)

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode represents a single bytecode instruction.
type Opcode byte

// Literals and stack
const (
	OpConstant Opcode = 0x00 // push constant (8-bit index)
	OpNil      Opcode = 0x01 // push nil
	OpTrue     Opcode = 0x02 // push true
	OpFalse    Opcode = 0x03 // push false
	OpPop      Opcode = 0x04 // discard top of stack
)

// Variables
const (
	OpGetLocal     Opcode = 0x10 // push frame slot (8-bit slot)
	OpSetLocal     Opcode = 0x11 // store top into frame slot, keep it (8-bit slot)
	OpGetGlobal    Opcode = 0x12 // push global (8-bit name constant)
	OpDefineGlobal Opcode = 0x13 // pop into new global (8-bit name constant)
	OpSetGlobal    Opcode = 0x14 // store top into existing global (8-bit name constant)
	OpGetUpvalue   Opcode = 0x15 // push captured variable (8-bit upvalue index)
	OpSetUpvalue   Opcode = 0x16 // store top into captured variable (8-bit upvalue index)
)

// Operators
const (
	OpEqual    Opcode = 0x20
	OpGreater  Opcode = 0x21
	OpLess     Opcode = 0x22
	OpAdd      Opcode = 0x23 // numbers or strings
	OpSubtract Opcode = 0x24
	OpMultiply Opcode = 0x25
	OpDivide   Opcode = 0x26
	OpNot      Opcode = 0x27
	OpNegate   Opcode = 0x28
)

// Statements and control flow
const (
	OpPrint        Opcode = 0x30 // pop and print
	OpJump         Opcode = 0x31 // forward jump (16-bit offset)
	OpJumpIfFalse  Opcode = 0x32 // forward jump if top is falsey, no pop (16-bit offset)
	OpLoop         Opcode = 0x33 // backward jump (16-bit offset)
	OpCall         Opcode = 0x34 // call callee below args (8-bit argc)
	OpClosure      Opcode = 0x35 // build closure (8-bit function constant, then isLocal/index pairs)
	OpCloseUpvalue Opcode = 0x36 // close upvalue for top slot and pop
	OpReturn       Opcode = 0x37 // return top from current frame
)

// OpcodeInfo describes an opcode's encoding.
type OpcodeInfo struct {
	Name         string
	OperandBytes int // fixed operand bytes; CLOSURE adds two per upvalue
	StackIn      int // values read from the top of the stack
	StackEffect  int // net stack change; CALL depends on its operand
}

// opcodeTable maps opcodes to their metadata.
var opcodeTable = map[Opcode]OpcodeInfo{
	OpConstant: {"CONSTANT", 1, 0, 1},
	OpNil:      {"NIL", 0, 0, 1},
	OpTrue:     {"TRUE", 0, 0, 1},
	OpFalse:    {"FALSE", 0, 0, 1},
	OpPop:      {"POP", 0, 1, -1},

	OpGetLocal:     {"GET_LOCAL", 1, 0, 1},
	OpSetLocal:     {"SET_LOCAL", 1, 1, 0},
	OpGetGlobal:    {"GET_GLOBAL", 1, 0, 1},
	OpDefineGlobal: {"DEFINE_GLOBAL", 1, 1, -1},
	OpSetGlobal:    {"SET_GLOBAL", 1, 1, 0},
	OpGetUpvalue:   {"GET_UPVALUE", 1, 0, 1},
	OpSetUpvalue:   {"SET_UPVALUE", 1, 1, 0},

	OpEqual:    {"EQUAL", 0, 2, -1},
	OpGreater:  {"GREATER", 0, 2, -1},
	OpLess:     {"LESS", 0, 2, -1},
	OpAdd:      {"ADD", 0, 2, -1},
	OpSubtract: {"SUBTRACT", 0, 2, -1},
	OpMultiply: {"MULTIPLY", 0, 2, -1},
	OpDivide:   {"DIVIDE", 0, 2, -1},
	OpNot:      {"NOT", 0, 1, 0},
	OpNegate:   {"NEGATE", 0, 1, 0},

	OpPrint:        {"PRINT", 0, 1, -1},
	OpJump:         {"JUMP", 2, 0, 0},
	OpJumpIfFalse:  {"JUMP_IF_FALSE", 2, 1, 0},
	OpLoop:         {"LOOP", 2, 0, 0},
	OpCall:         {"CALL", 1, 1, 0},
	OpClosure:      {"CLOSURE", 1, 0, 1},
	OpCloseUpvalue: {"CLOSE_UPVALUE", 0, 1, -1},
	OpReturn:       {"RETURN", 0, 1, -1},
}

// Info returns metadata for an opcode.
func (op Opcode) Info() OpcodeInfo {
	if info, ok := opcodeTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN_%02X", byte(op))}
}

// IsValid reports whether op is a known opcode.
func (op Opcode) IsValid() bool {
	_, ok := opcodeTable[op]
	return ok
}

// Name returns the human-readable name for an opcode.
func (op Opcode) Name() string {
	return op.Info().Name
}

// OperandBytes returns the number of fixed operand bytes for an opcode.
func (op Opcode) OperandBytes() int {
	return op.Info().OperandBytes
}

// StackUse returns how many values op reads from the top of the stack and
// its net effect on the stack height. operand is CALL's argument count; other
// opcodes ignore it.
func (op Opcode) StackUse(operand int) (in, effect int) {
	if op == OpCall {
		return operand + 1, -operand
	}
	info := op.Info()
	return info.StackIn, info.StackEffect
}

// String implements the Stringer interface.
func (op Opcode) String() string {
	return op.Name()
}
