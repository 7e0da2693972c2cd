package image

import (
	"fmt"

	"github.com/chazu/glox/vm"
)

// VerifyError reports malformed bytecode in a decoded function.
type VerifyError struct {
	Function string
	Offset   int
	Reason   string
}

func (e *VerifyError) Error() string {
	name := e.Function
	if name == "" {
		name = "script"
	}
	return fmt.Sprintf("image: invalid bytecode in %s at %04d: %s", name, e.Offset, e.Reason)
}

// Verify checks that script is a well-formed top-level function and that
// every instruction in it and its nested functions is well formed: known
// opcodes, operands inside the code, constant and upvalue indices in range,
// jump targets on instruction boundaries, and a stack that never underflows
// the frame. The VM does no such checks at run time, so images from
// untrusted sources must pass Verify before they execute.
func Verify(script *Function) error {
	if script.Arity != 0 || script.UpvalueCount != 0 {
		return &VerifyError{
			Function: script.Name,
			Reason:   fmt.Sprintf("top-level script has arity %d and %d upvalues", script.Arity, script.UpvalueCount),
		}
	}
	return verifyFunction(script)
}

type failFunc func(offset int, format string, args ...any) error

func verifyFunction(fn *Function) error {
	fail := func(offset int, format string, args ...any) error {
		return &VerifyError{Function: fn.Name, Offset: offset, Reason: fmt.Sprintf(format, args...)}
	}

	if len(fn.Lines) != len(fn.Code) {
		return fail(0, "line table has %d entries for %d code bytes", len(fn.Lines), len(fn.Code))
	}
	if len(fn.Code) == 0 {
		return fail(0, "empty code")
	}
	if fn.Arity < 0 || fn.Arity > 255 || fn.UpvalueCount < 0 || fn.UpvalueCount > 256 {
		return fail(0, "bad arity %d or upvalue count %d", fn.Arity, fn.UpvalueCount)
	}
	for i, c := range fn.Constants {
		switch c.Kind {
		case ConstNil, ConstBool, ConstNumber, ConstString:
		case ConstFunction:
			if c.Function == nil {
				return fail(0, "constant %d: missing function", i)
			}
			if err := verifyFunction(c.Function); err != nil {
				return err
			}
		default:
			return fail(0, "constant %d: unknown kind %d", i, c.Kind)
		}
	}

	code := fn.Code
	starts := make([]bool, len(code))
	last, lastOp := 0, vm.Opcode(0)
	for offset := 0; offset < len(code); {
		op := vm.Opcode(code[offset])
		starts[offset] = true
		last, lastOp = offset, op
		if !op.IsValid() {
			return fail(offset, "unknown opcode %#02x", byte(op))
		}
		next := offset + 1 + op.OperandBytes()
		if next > len(code) {
			return fail(offset, "%s: truncated operand", op)
		}

		switch op {
		case vm.OpConstant:
			if int(code[offset+1]) >= len(fn.Constants) {
				return fail(offset, "%s: constant %d out of range", op, code[offset+1])
			}
		case vm.OpGetGlobal, vm.OpDefineGlobal, vm.OpSetGlobal:
			idx := int(code[offset+1])
			if idx >= len(fn.Constants) || fn.Constants[idx].Kind != ConstString {
				return fail(offset, "%s: constant %d is not a name", op, idx)
			}
		case vm.OpGetUpvalue, vm.OpSetUpvalue:
			if int(code[offset+1]) >= fn.UpvalueCount {
				return fail(offset, "%s: upvalue %d out of range", op, code[offset+1])
			}
		case vm.OpJump, vm.OpJumpIfFalse:
			target := next + jumpOffset(code, offset)
			if target > len(code) {
				return fail(offset, "%s: target %d outside chunk", op, target)
			}
		case vm.OpLoop:
			target := next - jumpOffset(code, offset)
			if target < 0 {
				return fail(offset, "%s: target %d outside chunk", op, target)
			}
		case vm.OpClosure:
			idx := int(code[offset+1])
			if idx >= len(fn.Constants) || fn.Constants[idx].Kind != ConstFunction {
				return fail(offset, "%s: constant %d is not a function", op, idx)
			}
			pairs := next
			next += 2 * fn.Constants[idx].Function.UpvalueCount
			if next > len(code) {
				return fail(offset, "%s: truncated upvalue list", op)
			}
			for p := pairs; p < next; p += 2 {
				isLocal, index := code[p], int(code[p+1])
				if isLocal > 1 {
					return fail(offset, "%s: capture flag %d is not 0 or 1", op, isLocal)
				}
				if isLocal == 0 && index >= fn.UpvalueCount {
					return fail(offset, "%s: enclosing upvalue %d out of range", op, index)
				}
			}
		}
		offset = next
	}

	if lastOp != vm.OpReturn {
		return fail(last, "function does not end in %s", vm.OpReturn)
	}
	return checkStack(fn, starts, fail)
}

// checkStack follows every path through fn's code tracking the stack height
// relative to the frame base. Slot 0 holds the callee and the parameters
// follow it, so the height starts at 1+Arity and no instruction may read
// below slot 1. Paths that meet must agree on the height.
func checkStack(fn *Function, starts []bool, fail failFunc) error {
	code := fn.Code
	heights := make([]int, len(code))
	for i := range heights {
		heights[i] = -1
	}
	heights[0] = 1 + fn.Arity
	work := []int{0}

	reach := func(from, target, height int) error {
		if target < 0 || target >= len(code) || !starts[target] {
			return fail(from, "%s: target %d is not an instruction", vm.Opcode(code[from]), target)
		}
		switch heights[target] {
		case -1:
			heights[target] = height
			work = append(work, target)
		case height:
		default:
			return fail(target, "stack height %d on one path and %d on another", heights[target], height)
		}
		return nil
	}

	for len(work) > 0 {
		offset := work[len(work)-1]
		work = work[:len(work)-1]

		op := vm.Opcode(code[offset])
		height := heights[offset]
		next := offset + 1 + op.OperandBytes()
		operand := 0
		if op.OperandBytes() > 0 {
			operand = int(code[offset+1])
		}

		in, effect := op.StackUse(operand)
		if height-in < 1 {
			return fail(offset, "%s: stack underflow (reads %d of %d)", op, in, height-1)
		}

		switch op {
		case vm.OpGetLocal, vm.OpSetLocal:
			if operand >= height {
				return fail(offset, "%s: slot %d above stack height %d", op, operand, height)
			}
		case vm.OpClosure:
			// The new closure is pushed before it captures, so a local
			// function may capture its own slot.
			count := fn.Constants[operand].Function.UpvalueCount
			for p := next; p < next+2*count; p += 2 {
				if code[p] == 1 && int(code[p+1]) > height {
					return fail(offset, "%s: captures slot %d above stack height %d", op, code[p+1], height+1)
				}
			}
			next += 2 * count
		}
		height += effect

		var err error
		switch op {
		case vm.OpReturn:
			continue
		case vm.OpJump:
			err = reach(offset, next+jumpOffset(code, offset), height)
		case vm.OpLoop:
			err = reach(offset, next-jumpOffset(code, offset), height)
		case vm.OpJumpIfFalse:
			err = reach(offset, next+jumpOffset(code, offset), height)
			if err == nil {
				err = reach(offset, next, height)
			}
		default:
			err = reach(offset, next, height)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func jumpOffset(code []byte, offset int) int {
	return int(code[offset+1])<<8 | int(code[offset+2])
}
