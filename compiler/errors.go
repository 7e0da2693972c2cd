package compiler

import (
	"fmt"
	"strings"
)

// CompileError is a single diagnostic. Where describes the offending token:
// " at 'lexeme'", " at end", or empty for lexical errors.
type CompileError struct {
	Pos     Position
	Length  int // length in bytes of the offending token
	Where   string
	Message string
}

// Error formats the diagnostic as "[line N] Error at 'x': message".
func (e *CompileError) Error() string {
	return fmt.Sprintf("[line %d] Error%s: %s", e.Pos.Line, e.Where, e.Message)
}

// Errors is the error returned by Compile when the source has errors.
// It lists every diagnostic in source order.
type Errors struct {
	List []*CompileError
}

// Error joins the diagnostics one per line.
func (e *Errors) Error() string {
	lines := make([]string, len(e.List))
	for i, ce := range e.List {
		lines[i] = ce.Error()
	}
	return strings.Join(lines, "\n")
}

// Unwrap exposes the individual diagnostics to errors.Is and errors.As.
func (e *Errors) Unwrap() []error {
	errs := make([]error, len(e.List))
	for i, ce := range e.List {
		errs[i] = ce
	}
	return errs
}

// Len returns the number of diagnostics.
func (e *Errors) Len() int {
	return len(e.List)
}
