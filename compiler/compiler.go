package compiler

import (
	"io"

	"github.com/chazu/glox/vm"
)

// Limits imposed by one-byte operands.
const (
	MaxLocals   = 256
	MaxUpvalues = 256
	MaxArgs     = 255
)

// FunctionType distinguishes the top-level script from declared functions.
type FunctionType int

const (
	TypeFunction FunctionType = iota
	TypeScript
)

// Options control optional compiler output.
type Options struct {
	// Disassemble, when set, receives a listing of every function's chunk
	// as it is finished.
	Disassemble io.Writer
}

// Local is a local variable slot. depth is -1 between declaration and the
// end of the variable's initializer.
type Local struct {
	name       string
	depth      int
	isCaptured bool
}

// Upvalue describes where a closure finds a captured variable: a local
// slot of the enclosing function, or an upvalue of it.
type Upvalue struct {
	index   uint8
	isLocal bool
}

// funcState is the per-function compilation state. Nested function
// declarations push a new state linked to the enclosing one.
type funcState struct {
	enclosing  *funcState
	function   *vm.ObjFunction
	kind       FunctionType
	locals     []Local
	upvalues   []Upvalue
	scopeDepth int
}

// Compiler is a single-pass compiler: it parses Lox source and emits
// bytecode as each construct is recognized, with no intermediate tree.
type Compiler struct {
	*Parser
	heap  *vm.Heap
	state *funcState
	opts  Options
}

// Compile compiles source into a top-level script function allocated in
// heap. On failure it returns an *Errors listing every diagnostic.
func Compile(source string, heap *vm.Heap) (*vm.ObjFunction, error) {
	return CompileWithOptions(source, heap, Options{})
}

// CompileWithOptions is Compile with optional output.
func CompileWithOptions(source string, heap *vm.Heap, opts Options) (*vm.ObjFunction, error) {
	c := &Compiler{
		Parser: NewParser(source),
		heap:   heap,
		opts:   opts,
	}
	c.beginFunction(TypeScript)
	c.advance()
	for !c.match(TokenEOF) {
		c.declaration()
	}
	fn, _ := c.endFunction()

	if c.HadError() {
		return nil, &Errors{List: c.Errors()}
	}
	return fn, nil
}

// ---------------------------------------------------------------------------
// Function state
// ---------------------------------------------------------------------------

func (c *Compiler) beginFunction(kind FunctionType) {
	state := &funcState{
		enclosing: c.state,
		function:  c.heap.NewFunction(),
		kind:      kind,
		locals:    make([]Local, 0, 8),
	}
	if kind != TypeScript {
		state.function.Name = c.heap.CopyString(c.previous.Literal)
	}
	// Slot 0 holds the callee and cannot be named.
	state.locals = append(state.locals, Local{depth: 0})
	c.state = state
}

func (c *Compiler) endFunction() (*vm.ObjFunction, []Upvalue) {
	c.emitReturn()
	state := c.state
	fn := state.function
	if c.opts.Disassemble != nil && !c.HadError() {
		vm.DisassembleChunk(c.opts.Disassemble, fn.Chunk, fn.DisplayName())
	}
	c.state = state.enclosing
	return fn, state.upvalues
}

func (c *Compiler) currentChunk() *vm.Chunk {
	return c.state.function.Chunk
}

// ---------------------------------------------------------------------------
// Scopes and variable resolution
// ---------------------------------------------------------------------------

func (c *Compiler) beginScope() {
	c.state.scopeDepth++
}

// endScope discards the locals of the innermost block, closing any that a
// closure captured.
func (c *Compiler) endScope() {
	s := c.state
	s.scopeDepth--
	for len(s.locals) > 0 && s.locals[len(s.locals)-1].depth > s.scopeDepth {
		if s.locals[len(s.locals)-1].isCaptured {
			c.emitOp(vm.OpCloseUpvalue)
		} else {
			c.emitOp(vm.OpPop)
		}
		s.locals = s.locals[:len(s.locals)-1]
	}
}

func (c *Compiler) addLocal(name string) {
	if len(c.state.locals) == MaxLocals {
		c.errorAtPrevious("Too many local variables in function.")
		return
	}
	c.state.locals = append(c.state.locals, Local{name: name, depth: -1})
}

// declareVariable records a local in the current scope. Globals are late
// bound and need no declaration.
func (c *Compiler) declareVariable() {
	s := c.state
	if s.scopeDepth == 0 {
		return
	}
	name := c.previous.Literal
	for i := len(s.locals) - 1; i >= 0; i-- {
		local := s.locals[i]
		if local.depth != -1 && local.depth < s.scopeDepth {
			break
		}
		if local.name == name {
			c.errorAtPrevious("Already a variable with this name in this scope.")
		}
	}
	c.addLocal(name)
}

func (c *Compiler) markInitialized() {
	s := c.state
	if s.scopeDepth == 0 {
		return
	}
	s.locals[len(s.locals)-1].depth = s.scopeDepth
}

// parseVariable consumes a variable name and returns its name constant for
// globals, or 0 for locals.
func (c *Compiler) parseVariable(msg string) byte {
	c.consume(TokenIdentifier, msg)
	c.declareVariable()
	if c.state.scopeDepth > 0 {
		return 0
	}
	return c.identifierConstant(c.previous.Literal)
}

func (c *Compiler) defineVariable(global byte) {
	if c.state.scopeDepth > 0 {
		c.markInitialized()
		return
	}
	c.emitBytes(byte(vm.OpDefineGlobal), global)
}

func (c *Compiler) identifierConstant(name string) byte {
	return c.makeConstant(vm.ObjectValue(c.heap.CopyString(name)))
}

func (c *Compiler) resolveLocal(s *funcState, name string) int {
	for i := len(s.locals) - 1; i >= 0; i-- {
		if s.locals[i].name == name {
			if s.locals[i].depth == -1 {
				c.errorAtPrevious("Can't read local variable in its own initializer.")
			}
			return i
		}
	}
	return -1
}

// resolveUpvalue finds name in an enclosing function, threading the capture
// through every intermediate function.
func (c *Compiler) resolveUpvalue(s *funcState, name string) int {
	if s.enclosing == nil {
		return -1
	}
	if local := c.resolveLocal(s.enclosing, name); local != -1 {
		s.enclosing.locals[local].isCaptured = true
		return c.addUpvalue(s, uint8(local), true)
	}
	if upvalue := c.resolveUpvalue(s.enclosing, name); upvalue != -1 {
		return c.addUpvalue(s, uint8(upvalue), false)
	}
	return -1
}

func (c *Compiler) addUpvalue(s *funcState, index uint8, isLocal bool) int {
	for i, uv := range s.upvalues {
		if uv.index == index && uv.isLocal == isLocal {
			return i
		}
	}
	if len(s.upvalues) == MaxUpvalues {
		c.errorAtPrevious("Too many closure variables in function.")
		return 0
	}
	s.upvalues = append(s.upvalues, Upvalue{index: index, isLocal: isLocal})
	s.function.UpvalueCount = len(s.upvalues)
	return len(s.upvalues) - 1
}

// ---------------------------------------------------------------------------
// Emission
// ---------------------------------------------------------------------------

func (c *Compiler) emitByte(b byte) {
	c.currentChunk().Write(b, c.previous.Pos.Line)
}

func (c *Compiler) emitOp(op vm.Opcode) {
	c.emitByte(byte(op))
}

func (c *Compiler) emitBytes(a, b byte) {
	c.emitByte(a)
	c.emitByte(b)
}

func (c *Compiler) emitReturn() {
	c.emitOp(vm.OpNil)
	c.emitOp(vm.OpReturn)
}

func (c *Compiler) makeConstant(v vm.Value) byte {
	idx := c.currentChunk().AddConstant(v)
	if idx >= vm.MaxConstants {
		c.errorAtPrevious("Too many constants in one chunk.")
		return 0
	}
	return byte(idx)
}

func (c *Compiler) emitConstant(v vm.Value) {
	c.emitBytes(byte(vm.OpConstant), c.makeConstant(v))
}

func (c *Compiler) emitJump(op vm.Opcode) int {
	return c.currentChunk().EmitJump(op, c.previous.Pos.Line)
}

func (c *Compiler) patchJump(offset int) {
	if err := c.currentChunk().PatchJump(offset); err != nil {
		c.errorAtPrevious("Too much code to jump over.")
	}
}

func (c *Compiler) emitLoop(loopStart int) {
	if err := c.currentChunk().EmitLoop(loopStart, c.previous.Pos.Line); err != nil {
		c.errorAtPrevious("Loop body too large.")
	}
}
