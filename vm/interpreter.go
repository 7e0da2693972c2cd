package vm

import (
	"fmt"
)

// ---------------------------------------------------------------------------
// CallFrame
// ---------------------------------------------------------------------------

// CallFrame is one active function invocation. base is the stack index of
// slot 0, which holds the callee itself; arguments follow it.
type CallFrame struct {
	closure *ObjClosure
	ip      int
	base    int
}

func (f *CallFrame) chunk() *Chunk {
	return f.closure.Function.Chunk
}

func (f *CallFrame) readByte() byte {
	b := f.closure.Function.Chunk.Code[f.ip]
	f.ip++
	return b
}

func (f *CallFrame) readShort() int {
	code := f.closure.Function.Chunk.Code
	v := int(code[f.ip])<<8 | int(code[f.ip+1])
	f.ip += 2
	return v
}

func (f *CallFrame) readConstant() Value {
	return f.closure.Function.Chunk.Constants[f.readByte()]
}

func (f *CallFrame) readString() *ObjString {
	return f.readConstant().AsString()
}

// ---------------------------------------------------------------------------
// Calls
// ---------------------------------------------------------------------------

func (vm *VM) call(closure *ObjClosure, argCount int) error {
	if argCount != closure.Function.Arity {
		return vm.runtimeError("Expected %d arguments but got %d.", closure.Function.Arity, argCount)
	}
	if vm.fp == len(vm.frames) {
		log.Debugf("call depth limit %d reached", len(vm.frames))
		return vm.runtimeError("Stack overflow.")
	}
	frame := &vm.frames[vm.fp]
	vm.fp++
	frame.closure = closure
	frame.ip = 0
	frame.base = vm.sp - argCount - 1
	return nil
}

func (vm *VM) callValue(callee Value, argCount int) error {
	if callee.IsObject() {
		switch obj := callee.AsObject().(type) {
		case *ObjClosure:
			return vm.call(obj, argCount)
		case *ObjNative:
			result := obj.Fn(argCount, vm.stack[vm.sp-argCount:vm.sp])
			vm.sp -= argCount + 1
			vm.push(result)
			return nil
		}
	}
	return vm.runtimeError("Can only call functions and classes.")
}

// ---------------------------------------------------------------------------
// Upvalues
// ---------------------------------------------------------------------------

// captureUpvalue returns the open upvalue for a stack slot, creating it if
// no closure has captured that slot yet.
func (vm *VM) captureUpvalue(slot int) *ObjUpvalue {
	var prev *ObjUpvalue
	up := vm.openUpvalues
	for up != nil && up.Slot > slot {
		prev = up
		up = up.Next
	}
	if up != nil && up.Slot == slot {
		return up
	}
	created := vm.heap.NewUpvalue(&vm.stack[slot], slot)
	created.Next = up
	if prev == nil {
		vm.openUpvalues = created
	} else {
		prev.Next = created
	}
	return created
}

// closeUpvalues closes every open upvalue at or above stack index last.
func (vm *VM) closeUpvalues(last int) {
	for vm.openUpvalues != nil && vm.openUpvalues.Slot >= last {
		up := vm.openUpvalues
		up.Close()
		vm.openUpvalues = up.Next
		up.Next = nil
	}
}

// ---------------------------------------------------------------------------
// Dispatch loop
// ---------------------------------------------------------------------------

// execute runs until the outermost frame returns. A value stack overflow
// raised by push becomes an ordinary runtime error.
func (vm *VM) execute() (err error) {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(stackOverflow); !ok {
				panic(r)
			}
			err = vm.runtimeError("Stack overflow.")
		}
	}()
	return vm.run()
}

func (vm *VM) run() error {
	frame := &vm.frames[vm.fp-1]

	for {
		if vm.Trace {
			fmt.Fprintln(vm.out, FormatStack(vm.stack[:vm.sp]))
			DisassembleInstruction(vm.out, frame.chunk(), frame.ip)
		}

		op := Opcode(frame.readByte())
		switch op {
		case OpConstant:
			vm.push(frame.readConstant())

		case OpNil:
			vm.push(NilValue())

		case OpTrue:
			vm.push(BoolValue(true))

		case OpFalse:
			vm.push(BoolValue(false))

		case OpPop:
			vm.pop()

		case OpGetLocal:
			slot := int(frame.readByte())
			vm.push(vm.stack[frame.base+slot])

		case OpSetLocal:
			slot := int(frame.readByte())
			vm.stack[frame.base+slot] = vm.peek(0)

		case OpGetGlobal:
			name := frame.readString()
			value, ok := vm.globals.Get(name)
			if !ok {
				return vm.runtimeError("Undefined variable '%s'.", name.Chars)
			}
			vm.push(value)

		case OpDefineGlobal:
			name := frame.readString()
			vm.globals.Set(name, vm.peek(0))
			vm.pop()

		case OpSetGlobal:
			name := frame.readString()
			if vm.globals.Set(name, vm.peek(0)) {
				vm.globals.Delete(name)
				return vm.runtimeError("Undefined variable '%s'.", name.Chars)
			}

		case OpGetUpvalue:
			slot := frame.readByte()
			vm.push(frame.closure.Upvalues[slot].Get())

		case OpSetUpvalue:
			slot := frame.readByte()
			frame.closure.Upvalues[slot].Set(vm.peek(0))

		case OpEqual:
			b := vm.pop()
			a := vm.pop()
			vm.push(BoolValue(ValuesEqual(a, b)))

		case OpGreater, OpLess, OpSubtract, OpMultiply, OpDivide:
			if !vm.peek(0).IsNumber() || !vm.peek(1).IsNumber() {
				return vm.runtimeError("Operands must be numbers.")
			}
			b := vm.pop().AsNumber()
			a := vm.pop().AsNumber()
			vm.push(binaryNumber(op, a, b))

		case OpAdd:
			switch {
			case vm.peek(0).IsString() && vm.peek(1).IsString():
				b := vm.pop().AsString()
				a := vm.pop().AsString()
				vm.push(ObjectValue(vm.heap.TakeString(a.Chars + b.Chars)))
			case vm.peek(0).IsNumber() && vm.peek(1).IsNumber():
				b := vm.pop().AsNumber()
				a := vm.pop().AsNumber()
				vm.push(NumberValue(a + b))
			default:
				return vm.runtimeError("Operands must be two numbers or two strings.")
			}

		case OpNot:
			vm.push(BoolValue(IsFalsey(vm.pop())))

		case OpNegate:
			if !vm.peek(0).IsNumber() {
				return vm.runtimeError("Operand must be a number.")
			}
			vm.push(NumberValue(-vm.pop().AsNumber()))

		case OpPrint:
			fmt.Fprintln(vm.out, FormatValue(vm.pop()))

		case OpJump:
			offset := frame.readShort()
			frame.ip += offset

		case OpJumpIfFalse:
			offset := frame.readShort()
			if IsFalsey(vm.peek(0)) {
				frame.ip += offset
			}

		case OpLoop:
			offset := frame.readShort()
			frame.ip -= offset

		case OpCall:
			argCount := int(frame.readByte())
			if err := vm.callValue(vm.peek(argCount), argCount); err != nil {
				return err
			}
			frame = &vm.frames[vm.fp-1]

		case OpClosure:
			fn := frame.readConstant().AsFunction()
			closure := vm.heap.NewClosure(fn)
			vm.push(ObjectValue(closure))
			for i := range closure.Upvalues {
				isLocal := frame.readByte()
				index := int(frame.readByte())
				if isLocal == 1 {
					closure.Upvalues[i] = vm.captureUpvalue(frame.base + index)
				} else {
					closure.Upvalues[i] = frame.closure.Upvalues[index]
				}
			}

		case OpCloseUpvalue:
			vm.closeUpvalues(vm.sp - 1)
			vm.pop()

		case OpReturn:
			result := vm.pop()
			vm.closeUpvalues(frame.base)
			vm.fp--
			if vm.fp == 0 {
				vm.pop()
				return nil
			}
			vm.sp = frame.base
			vm.push(result)
			frame = &vm.frames[vm.fp-1]

		default:
			return vm.runtimeError("Unknown opcode %d.", byte(op))
		}
	}
}

func binaryNumber(op Opcode, a, b float64) Value {
	switch op {
	case OpGreater:
		return BoolValue(a > b)
	case OpLess:
		return BoolValue(a < b)
	case OpSubtract:
		return NumberValue(a - b)
	case OpMultiply:
		return NumberValue(a * b)
	default:
		return NumberValue(a / b)
	}
}
