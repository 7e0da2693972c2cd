package vm

import "errors"

// MaxConstants is the number of constants addressable by a one-byte operand.
const MaxConstants = 256

// MaxJump is the largest forward or backward distance a 16-bit jump operand
// can encode.
const MaxJump = 0xFFFF

var (
	// ErrJumpTooLarge is returned by PatchJump when the target is out of range.
	ErrJumpTooLarge = errors.New("too much code to jump over")

	// ErrLoopTooLarge is returned by EmitLoop when the loop start is out of range.
	ErrLoopTooLarge = errors.New("loop body too large")
)

// Chunk is a unit of bytecode: the instruction stream, the source line of
// every byte, and the constant pool.
type Chunk struct {
	Code      []byte
	Lines     []int // parallel to Code
	Constants []Value
}

// NewChunk creates an empty chunk.
func NewChunk() *Chunk {
	return &Chunk{
		Code:  make([]byte, 0, 64),
		Lines: make([]int, 0, 64),
	}
}

// Len returns the number of code bytes.
func (c *Chunk) Len() int {
	return len(c.Code)
}

// Write appends a byte produced by source line line.
func (c *Chunk) Write(b byte, line int) {
	c.Code = append(c.Code, b)
	c.Lines = append(c.Lines, line)
}

// WriteOp appends an opcode.
func (c *Chunk) WriteOp(op Opcode, line int) {
	c.Write(byte(op), line)
}

// LineAt returns the source line of the byte at offset, or 0 if the offset
// is out of range.
func (c *Chunk) LineAt(offset int) int {
	if offset < 0 || offset >= len(c.Lines) {
		return 0
	}
	return c.Lines[offset]
}

// AddConstant adds v to the pool and returns its index. A string already in
// the pool is reused; interning makes identity comparison sufficient.
func (c *Chunk) AddConstant(v Value) int {
	if v.IsString() {
		for i, existing := range c.Constants {
			if existing.IsObject() && existing.AsObject() == v.AsObject() {
				return i
			}
		}
	}
	c.Constants = append(c.Constants, v)
	return len(c.Constants) - 1
}

// EmitJump writes a jump with a placeholder operand and returns the offset
// of the operand for PatchJump.
func (c *Chunk) EmitJump(op Opcode, line int) int {
	c.WriteOp(op, line)
	c.Write(0xFF, line)
	c.Write(0xFF, line)
	return len(c.Code) - 2
}

// PatchJump makes the jump whose operand is at offset land on the current
// end of the code.
func (c *Chunk) PatchJump(offset int) error {
	jump := len(c.Code) - offset - 2
	if jump > MaxJump {
		return ErrJumpTooLarge
	}
	c.Code[offset] = byte(jump >> 8)
	c.Code[offset+1] = byte(jump)
	return nil
}

// EmitLoop writes a backward jump to loopStart.
func (c *Chunk) EmitLoop(loopStart int, line int) error {
	c.WriteOp(OpLoop, line)
	offset := len(c.Code) - loopStart + 2
	if offset > MaxJump {
		c.Write(0, line)
		c.Write(0, line)
		return ErrLoopTooLarge
	}
	c.Write(byte(offset>>8), line)
	c.Write(byte(offset), line)
	return nil
}

// ReadShort decodes the big-endian 16-bit operand at offset.
func (c *Chunk) ReadShort(offset int) int {
	return int(c.Code[offset])<<8 | int(c.Code[offset+1])
}
