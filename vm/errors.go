package vm

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoCompiler is returned when source is run on a VM without a compiler.
var ErrNoCompiler = errors.New("vm: no compiler installed")

// InterpretResult is the coarse outcome of running a program.
type InterpretResult int

const (
	InterpretOK InterpretResult = iota
	InterpretCompileError
	InterpretRuntimeError
)

func (r InterpretResult) String() string {
	switch r {
	case InterpretOK:
		return "ok"
	case InterpretCompileError:
		return "compile error"
	case InterpretRuntimeError:
		return "runtime error"
	default:
		return fmt.Sprintf("InterpretResult(%d)", int(r))
	}
}

// ExitCode maps a result to the conventional process exit status.
func (r InterpretResult) ExitCode() int {
	switch r {
	case InterpretCompileError:
		return 65
	case InterpretRuntimeError:
		return 70
	default:
		return 0
	}
}

// ResultOf classifies an error returned by VM.Run.
func ResultOf(err error) InterpretResult {
	if err == nil {
		return InterpretOK
	}
	var rerr *RuntimeError
	if errors.As(err, &rerr) {
		return InterpretRuntimeError
	}
	return InterpretCompileError
}

// TraceFrame is one line of a runtime stack trace.
type TraceFrame struct {
	Line     int
	Function string // empty for the top-level script
}

func (f TraceFrame) String() string {
	if f.Function == "" {
		return fmt.Sprintf("[line %d] in script", f.Line)
	}
	return fmt.Sprintf("[line %d] in %s()", f.Line, f.Function)
}

// RuntimeError is a Lox runtime error together with the call stack at the
// point of failure, innermost frame first.
type RuntimeError struct {
	Message string
	Trace   []TraceFrame
}

// Error returns the message followed by one trace line per frame.
func (e *RuntimeError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Message)
	for _, f := range e.Trace {
		sb.WriteByte('\n')
		sb.WriteString(f.String())
	}
	return sb.String()
}
