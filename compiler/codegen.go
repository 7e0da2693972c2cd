package compiler

import (
	"strconv"

	"github.com/chazu/glox/vm"
)

// ---------------------------------------------------------------------------
// Declarations
// ---------------------------------------------------------------------------

func (c *Compiler) declaration() {
	switch {
	case c.match(TokenFun):
		c.funDeclaration()
	case c.match(TokenVar):
		c.varDeclaration()
	case c.match(TokenClass):
		c.classDeclaration()
	default:
		c.statement()
	}
	if c.panicMode {
		c.synchronize()
	}
}

func (c *Compiler) funDeclaration() {
	global := c.parseVariable("Expect function name.")
	// A function may refer to itself, so it is initialized before its body.
	c.markInitialized()
	c.function(TypeFunction)
	c.defineVariable(global)
}

func (c *Compiler) varDeclaration() {
	global := c.parseVariable("Expect variable name.")
	if c.match(TokenEqual) {
		c.expression()
	} else {
		c.emitOp(vm.OpNil)
	}
	c.consume(TokenSemicolon, "Expect ';' after variable declaration.")
	c.defineVariable(global)
}

// classDeclaration reports the unsupported construct once and skips the
// class body so its members do not produce further errors.
func (c *Compiler) classDeclaration() {
	c.errorAtPrevious("Classes are not supported.")
	if c.match(TokenIdentifier) && c.match(TokenLeftBrace) {
		depth := 1
		for depth > 0 && !c.check(TokenEOF) {
			switch c.current.Type {
			case TokenLeftBrace:
				depth++
			case TokenRightBrace:
				depth--
			}
			c.advance()
		}
		c.panicMode = false
	}
}

// function compiles a parameter list and body into a new function and
// emits the CLOSURE instruction that builds it at runtime.
func (c *Compiler) function(kind FunctionType) {
	c.beginFunction(kind)
	c.beginScope()

	c.consume(TokenLeftParen, "Expect '(' after function name.")
	if !c.check(TokenRightParen) {
		for {
			c.state.function.Arity++
			if c.state.function.Arity > MaxArgs {
				c.errorAtCurrent("Can't have more than 255 parameters.")
			}
			constant := c.parseVariable("Expect parameter name.")
			c.defineVariable(constant)
			if !c.match(TokenComma) {
				break
			}
		}
	}
	c.consume(TokenRightParen, "Expect ')' after parameters.")
	c.consume(TokenLeftBrace, "Expect '{' before function body.")
	c.block()

	// No endScope: the frame's slots are discarded wholesale on return.
	fn, upvalues := c.endFunction()
	c.emitBytes(byte(vm.OpClosure), c.makeConstant(vm.ObjectValue(fn)))
	for _, uv := range upvalues {
		isLocal := byte(0)
		if uv.isLocal {
			isLocal = 1
		}
		c.emitBytes(isLocal, uv.index)
	}
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (c *Compiler) statement() {
	switch {
	case c.match(TokenPrint):
		c.printStatement()
	case c.match(TokenIf):
		c.ifStatement()
	case c.match(TokenReturn):
		c.returnStatement()
	case c.match(TokenWhile):
		c.whileStatement()
	case c.match(TokenFor):
		c.forStatement()
	case c.match(TokenLeftBrace):
		c.beginScope()
		c.block()
		c.endScope()
	default:
		c.expressionStatement()
	}
}

func (c *Compiler) block() {
	for !c.check(TokenRightBrace) && !c.check(TokenEOF) {
		c.declaration()
	}
	c.consume(TokenRightBrace, "Expect '}' after block.")
}

func (c *Compiler) printStatement() {
	c.expression()
	c.consume(TokenSemicolon, "Expect ';' after value.")
	c.emitOp(vm.OpPrint)
}

func (c *Compiler) expressionStatement() {
	c.expression()
	c.consume(TokenSemicolon, "Expect ';' after expression.")
	c.emitOp(vm.OpPop)
}

func (c *Compiler) returnStatement() {
	if c.state.kind == TypeScript {
		c.errorAtPrevious("Can't return from top-level code.")
	}
	if c.match(TokenSemicolon) {
		c.emitReturn()
		return
	}
	c.expression()
	c.consume(TokenSemicolon, "Expect ';' after return value.")
	c.emitOp(vm.OpReturn)
}

func (c *Compiler) ifStatement() {
	c.consume(TokenLeftParen, "Expect '(' after 'if'.")
	c.expression()
	c.consume(TokenRightParen, "Expect ')' after condition.")

	thenJump := c.emitJump(vm.OpJumpIfFalse)
	c.emitOp(vm.OpPop)
	c.statement()

	elseJump := c.emitJump(vm.OpJump)
	c.patchJump(thenJump)
	c.emitOp(vm.OpPop)

	if c.match(TokenElse) {
		c.statement()
	}
	c.patchJump(elseJump)
}

func (c *Compiler) whileStatement() {
	loopStart := c.currentChunk().Len()
	c.consume(TokenLeftParen, "Expect '(' after 'while'.")
	c.expression()
	c.consume(TokenRightParen, "Expect ')' after condition.")

	exitJump := c.emitJump(vm.OpJumpIfFalse)
	c.emitOp(vm.OpPop)
	c.statement()
	c.emitLoop(loopStart)

	c.patchJump(exitJump)
	c.emitOp(vm.OpPop)
}

// forStatement compiles for (init; cond; incr) body. The increment is
// emitted before the body, so the body jumps over it on entry and loops
// back to it after each iteration.
func (c *Compiler) forStatement() {
	c.beginScope()
	c.consume(TokenLeftParen, "Expect '(' after 'for'.")
	switch {
	case c.match(TokenSemicolon):
	case c.match(TokenVar):
		c.varDeclaration()
	default:
		c.expressionStatement()
	}

	loopStart := c.currentChunk().Len()
	exitJump := -1
	if !c.match(TokenSemicolon) {
		c.expression()
		c.consume(TokenSemicolon, "Expect ';' after loop condition.")
		exitJump = c.emitJump(vm.OpJumpIfFalse)
		c.emitOp(vm.OpPop)
	}

	if !c.match(TokenRightParen) {
		bodyJump := c.emitJump(vm.OpJump)
		incrementStart := c.currentChunk().Len()
		c.expression()
		c.emitOp(vm.OpPop)
		c.consume(TokenRightParen, "Expect ')' after for clauses.")

		c.emitLoop(loopStart)
		loopStart = incrementStart
		c.patchJump(bodyJump)
	}

	c.statement()
	c.emitLoop(loopStart)

	if exitJump != -1 {
		c.patchJump(exitJump)
		c.emitOp(vm.OpPop)
	}
	c.endScope()
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

func (c *Compiler) expression() {
	c.parsePrecedence(PrecAssignment)
}

func (c *Compiler) grouping() {
	c.expression()
	c.consume(TokenRightParen, "Expect ')' after expression.")
}

func (c *Compiler) number() {
	n, err := strconv.ParseFloat(c.previous.Literal, 64)
	if err != nil {
		c.errorAtPrevious("Invalid number literal.")
		return
	}
	c.emitConstant(vm.NumberValue(n))
}

func (c *Compiler) string() {
	lit := c.previous.Literal
	c.emitConstant(vm.ObjectValue(c.heap.CopyString(lit[1 : len(lit)-1])))
}

func (c *Compiler) literal() {
	switch c.previous.Type {
	case TokenFalse:
		c.emitOp(vm.OpFalse)
	case TokenNil:
		c.emitOp(vm.OpNil)
	case TokenTrue:
		c.emitOp(vm.OpTrue)
	}
}

func (c *Compiler) unary() {
	operator := c.previous.Type
	c.parsePrecedence(PrecUnary)
	switch operator {
	case TokenBang:
		c.emitOp(vm.OpNot)
	case TokenMinus:
		c.emitOp(vm.OpNegate)
	}
}

func (c *Compiler) binary() {
	operator := c.previous.Type
	c.parsePrecedence(getRule(operator).precedence + 1)

	switch operator {
	case TokenBangEqual:
		c.emitBytes(byte(vm.OpEqual), byte(vm.OpNot))
	case TokenEqualEqual:
		c.emitOp(vm.OpEqual)
	case TokenGreater:
		c.emitOp(vm.OpGreater)
	case TokenGreaterEqual:
		c.emitBytes(byte(vm.OpLess), byte(vm.OpNot))
	case TokenLess:
		c.emitOp(vm.OpLess)
	case TokenLessEqual:
		c.emitBytes(byte(vm.OpGreater), byte(vm.OpNot))
	case TokenPlus:
		c.emitOp(vm.OpAdd)
	case TokenMinus:
		c.emitOp(vm.OpSubtract)
	case TokenStar:
		c.emitOp(vm.OpMultiply)
	case TokenSlash:
		c.emitOp(vm.OpDivide)
	}
}

func (c *Compiler) call() {
	argCount := c.argumentList()
	c.emitBytes(byte(vm.OpCall), argCount)
}

func (c *Compiler) argumentList() byte {
	argCount := 0
	if !c.check(TokenRightParen) {
		for {
			c.expression()
			if argCount == MaxArgs {
				c.errorAtPrevious("Can't have more than 255 arguments.")
			}
			argCount++
			if !c.match(TokenComma) {
				break
			}
		}
	}
	c.consume(TokenRightParen, "Expect ')' after arguments.")
	return byte(argCount)
}

// and short-circuits: if the left operand is falsey it is the result.
func (c *Compiler) and() {
	endJump := c.emitJump(vm.OpJumpIfFalse)
	c.emitOp(vm.OpPop)
	c.parsePrecedence(PrecAnd)
	c.patchJump(endJump)
}

// or short-circuits: if the left operand is truthy it is the result.
func (c *Compiler) or() {
	elseJump := c.emitJump(vm.OpJumpIfFalse)
	endJump := c.emitJump(vm.OpJump)

	c.patchJump(elseJump)
	c.emitOp(vm.OpPop)

	c.parsePrecedence(PrecOr)
	c.patchJump(endJump)
}

func (c *Compiler) variable(canAssign bool) {
	c.namedVariable(c.previous.Literal, canAssign)
}

// namedVariable emits a load or store for name, resolving it as a local,
// then an upvalue, then a global.
func (c *Compiler) namedVariable(name string, canAssign bool) {
	var getOp, setOp vm.Opcode
	var arg int
	if arg = c.resolveLocal(c.state, name); arg != -1 {
		getOp, setOp = vm.OpGetLocal, vm.OpSetLocal
	} else if arg = c.resolveUpvalue(c.state, name); arg != -1 {
		getOp, setOp = vm.OpGetUpvalue, vm.OpSetUpvalue
	} else {
		arg = int(c.identifierConstant(name))
		getOp, setOp = vm.OpGetGlobal, vm.OpSetGlobal
	}

	if canAssign && c.match(TokenEqual) {
		c.expression()
		c.emitBytes(byte(setOp), byte(arg))
	} else {
		c.emitBytes(byte(getOp), byte(arg))
	}
}
