package vm

import (
	"fmt"
	"io"
	"strings"
)

// ---------------------------------------------------------------------------
// Disassembler
// ---------------------------------------------------------------------------

// DisassembleChunk writes a listing of every instruction in chunk under a
// "== name ==" header.
func DisassembleChunk(w io.Writer, chunk *Chunk, name string) {
	fmt.Fprintf(w, "== %s ==\n", name)
	for offset := 0; offset < len(chunk.Code); {
		offset = DisassembleInstruction(w, chunk, offset)
	}
}

// DisassembleFunction lists fn and then, recursively, every function in its
// constant pool.
func DisassembleFunction(w io.Writer, fn *ObjFunction) {
	DisassembleChunk(w, fn.Chunk, fn.DisplayName())
	for _, c := range fn.Chunk.Constants {
		if inner := c.AsFunction(); inner != nil {
			DisassembleFunction(w, inner)
		}
	}
}

// DisassembleInstruction writes the instruction at offset and returns the
// offset of the next one.
func DisassembleInstruction(w io.Writer, chunk *Chunk, offset int) int {
	fmt.Fprintf(w, "%04d ", offset)
	if offset > 0 && chunk.Lines[offset] == chunk.Lines[offset-1] {
		fmt.Fprint(w, "   | ")
	} else {
		fmt.Fprintf(w, "%4d ", chunk.Lines[offset])
	}

	op := Opcode(chunk.Code[offset])
	switch op {
	case OpConstant, OpGetGlobal, OpDefineGlobal, OpSetGlobal:
		return constantInstruction(w, op, chunk, offset)
	case OpGetLocal, OpSetLocal, OpGetUpvalue, OpSetUpvalue, OpCall:
		return byteInstruction(w, op, chunk, offset)
	case OpJump, OpJumpIfFalse:
		return jumpInstruction(w, op, 1, chunk, offset)
	case OpLoop:
		return jumpInstruction(w, op, -1, chunk, offset)
	case OpClosure:
		return closureInstruction(w, chunk, offset)
	default:
		if !op.IsValid() {
			fmt.Fprintf(w, "Unknown opcode %d\n", byte(op))
			return offset + 1
		}
		fmt.Fprintln(w, op.Name())
		return offset + 1
	}
}

func constantInstruction(w io.Writer, op Opcode, chunk *Chunk, offset int) int {
	idx := chunk.Code[offset+1]
	fmt.Fprintf(w, "%-16s %4d '%s'\n", op.Name(), idx, FormatValue(chunk.Constants[idx]))
	return offset + 2
}

func byteInstruction(w io.Writer, op Opcode, chunk *Chunk, offset int) int {
	fmt.Fprintf(w, "%-16s %4d\n", op.Name(), chunk.Code[offset+1])
	return offset + 2
}

func jumpInstruction(w io.Writer, op Opcode, sign int, chunk *Chunk, offset int) int {
	jump := chunk.ReadShort(offset + 1)
	fmt.Fprintf(w, "%-16s %4d -> %d\n", op.Name(), offset, offset+3+sign*jump)
	return offset + 3
}

func closureInstruction(w io.Writer, chunk *Chunk, offset int) int {
	offset++
	idx := chunk.Code[offset]
	offset++
	fn := chunk.Constants[idx].AsFunction()
	fmt.Fprintf(w, "%-16s %4d %s\n", OpClosure.Name(), idx, FormatValue(chunk.Constants[idx]))
	if fn == nil {
		return offset
	}
	for i := 0; i < fn.UpvalueCount; i++ {
		isLocal := chunk.Code[offset]
		index := chunk.Code[offset+1]
		kind := "upvalue"
		if isLocal == 1 {
			kind = "local"
		}
		fmt.Fprintf(w, "%04d    |                     %s %d\n", offset, kind, index)
		offset += 2
	}
	return offset
}

// FormatStack renders stack slots the way the tracer prints them.
func FormatStack(slots []Value) string {
	var sb strings.Builder
	sb.WriteString("          ")
	for _, v := range slots {
		sb.WriteString("[ ")
		sb.WriteString(FormatValue(v))
		sb.WriteString(" ]")
	}
	return sb.String()
}
