package compiler

// ---------------------------------------------------------------------------
// Parser: token cursor and error reporting
// ---------------------------------------------------------------------------

// Parser holds the one-token lookahead over the lexer and the accumulated
// diagnostics. After the first error it enters panic mode and suppresses
// further reports until synchronize finds a statement boundary.
type Parser struct {
	lexer     *Lexer
	previous  Token
	current   Token
	errors    []*CompileError
	panicMode bool
}

// NewParser creates a parser for the given input. Call advance once to load
// the first token.
func NewParser(input string) *Parser {
	return &Parser{lexer: NewLexer(input)}
}

// advance moves to the next non-error token, reporting any lexical errors
// passed along the way.
func (p *Parser) advance() {
	p.previous = p.current
	for {
		p.current = p.lexer.NextToken()
		if p.current.Type != TokenError {
			return
		}
		p.errorAtCurrent(p.current.Literal)
	}
}

// check reports whether the current token has type t.
func (p *Parser) check(t TokenType) bool {
	return p.current.Type == t
}

// match consumes the current token if it has type t.
func (p *Parser) match(t TokenType) bool {
	if !p.check(t) {
		return false
	}
	p.advance()
	return true
}

// consume advances past a token of type t or reports msg.
func (p *Parser) consume(t TokenType, msg string) {
	if p.check(t) {
		p.advance()
		return
	}
	p.errorAtCurrent(msg)
}

func (p *Parser) errorAtPrevious(msg string) {
	p.errorAt(p.previous, msg)
}

func (p *Parser) errorAtCurrent(msg string) {
	p.errorAt(p.current, msg)
}

func (p *Parser) errorAt(tok Token, msg string) {
	if p.panicMode {
		return
	}
	p.panicMode = true

	ce := &CompileError{Pos: tok.Pos, Length: len(tok.Literal), Message: msg}
	switch tok.Type {
	case TokenEOF:
		ce.Where = " at end"
	case TokenError:
		ce.Length = 1
	default:
		ce.Where = " at '" + tok.Literal + "'"
	}
	p.errors = append(p.errors, ce)
}

// synchronize skips tokens until a likely statement boundary.
func (p *Parser) synchronize() {
	p.panicMode = false
	for p.current.Type != TokenEOF {
		if p.previous.Type == TokenSemicolon {
			return
		}
		switch p.current.Type {
		case TokenClass, TokenFun, TokenVar, TokenFor, TokenIf,
			TokenWhile, TokenPrint, TokenReturn:
			return
		}
		p.advance()
	}
}

// Errors returns accumulated diagnostics.
func (p *Parser) Errors() []*CompileError {
	return p.errors
}

// HadError reports whether any diagnostic was recorded.
func (p *Parser) HadError() bool {
	return len(p.errors) > 0
}
