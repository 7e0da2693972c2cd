package compiler

import (
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Lexer: Tokenizer for Lox source
// ---------------------------------------------------------------------------

// Lexer tokenizes Lox source code on demand. It never fails: malformed input
// produces TokenError tokens and scanning continues after them.
type Lexer struct {
	input     string
	pos       int  // current position in input
	readPos   int  // reading position (after current char)
	ch        rune // current character
	line      int  // current line (1-based)
	lineStart int  // offset of current line start
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	l := &Lexer{
		input: input,
		line:  1,
	}
	l.readChar()
	return l
}

// readChar reads the next character.
func (l *Lexer) readChar() {
	if l.readPos >= len(l.input) {
		l.ch = 0 // EOF
		l.pos = len(l.input)
		return
	}
	r, size := utf8.DecodeRuneInString(l.input[l.readPos:])
	l.ch = r
	l.pos = l.readPos
	l.readPos += size
}

// advance consumes the current character, tracking line starts.
func (l *Lexer) advance() {
	if l.ch == '\n' {
		l.line++
		l.lineStart = l.readPos
	}
	l.readChar()
}

// peekChar returns the next character without consuming it.
func (l *Lexer) peekChar() rune {
	if l.readPos >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.readPos:])
	return r
}

func (l *Lexer) atEnd() bool {
	return l.pos >= len(l.input)
}

// position returns the current position.
func (l *Lexer) position() Position {
	return Position{
		Offset: l.pos,
		Line:   l.line,
		Column: l.pos - l.lineStart + 1,
	}
}

func (l *Lexer) token(t TokenType, start Position) Token {
	return Token{Type: t, Literal: l.input[start.Offset:l.pos], Pos: start}
}

func (l *Lexer) errorToken(msg string, start Position) Token {
	return Token{Type: TokenError, Literal: msg, Pos: start}
}

// match consumes the current character if it is expected.
func (l *Lexer) match(expected rune) bool {
	if l.atEnd() || l.ch != expected {
		return false
	}
	l.advance()
	return true
}

// NextToken returns the next token. After the end of input it keeps
// returning TokenEOF.
func (l *Lexer) NextToken() Token {
	l.skipWhitespaceAndComments()

	start := l.position()
	if l.atEnd() {
		return Token{Type: TokenEOF, Pos: start}
	}

	ch := l.ch
	switch {
	case isAlpha(ch):
		return l.readIdentifier(start)
	case isDigit(ch):
		return l.readNumber(start)
	}

	l.advance()
	switch ch {
	case '(':
		return l.token(TokenLeftParen, start)
	case ')':
		return l.token(TokenRightParen, start)
	case '{':
		return l.token(TokenLeftBrace, start)
	case '}':
		return l.token(TokenRightBrace, start)
	case ';':
		return l.token(TokenSemicolon, start)
	case ',':
		return l.token(TokenComma, start)
	case '.':
		return l.token(TokenDot, start)
	case '-':
		return l.token(TokenMinus, start)
	case '+':
		return l.token(TokenPlus, start)
	case '/':
		return l.token(TokenSlash, start)
	case '*':
		return l.token(TokenStar, start)
	case '!':
		if l.match('=') {
			return l.token(TokenBangEqual, start)
		}
		return l.token(TokenBang, start)
	case '=':
		if l.match('=') {
			return l.token(TokenEqualEqual, start)
		}
		return l.token(TokenEqual, start)
	case '<':
		if l.match('=') {
			return l.token(TokenLessEqual, start)
		}
		return l.token(TokenLess, start)
	case '>':
		if l.match('=') {
			return l.token(TokenGreaterEqual, start)
		}
		return l.token(TokenGreater, start)
	case '"':
		return l.readString(start)
	}

	return l.errorToken("Unexpected character.", start)
}

// skipWhitespaceAndComments skips blanks, newlines and // line comments.
func (l *Lexer) skipWhitespaceAndComments() {
	for !l.atEnd() {
		switch l.ch {
		case ' ', '\r', '\t', '\n':
			l.advance()
		case '/':
			if l.peekChar() != '/' {
				return
			}
			for !l.atEnd() && l.ch != '\n' {
				l.advance()
			}
		default:
			return
		}
	}
}

func (l *Lexer) readString(start Position) Token {
	for !l.atEnd() && l.ch != '"' {
		l.advance()
	}
	if l.atEnd() {
		return l.errorToken("Unterminated string.", start)
	}
	l.advance() // closing quote
	return l.token(TokenString, start)
}

func (l *Lexer) readNumber(start Position) Token {
	for isDigit(l.ch) {
		l.advance()
	}
	if l.ch == '.' && isDigit(l.peekChar()) {
		l.advance()
		for isDigit(l.ch) {
			l.advance()
		}
	}
	return l.token(TokenNumber, start)
}

func (l *Lexer) readIdentifier(start Position) Token {
	for isAlpha(l.ch) || isDigit(l.ch) {
		l.advance()
	}
	tok := l.token(TokenIdentifier, start)
	tok.Type = LookupIdent(tok.Literal)
	return tok
}

// Tokenize scans the whole input, including the trailing TokenEOF.
func Tokenize(input string) []Token {
	l := NewLexer(input)
	var tokens []Token
	for {
		tok := l.NextToken()
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF {
			return tokens
		}
	}
}

func isAlpha(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '_'
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}
