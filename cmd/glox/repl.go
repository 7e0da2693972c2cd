package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/chazu/glox/vm"
)

// runREPL reads Lox from in and runs each complete entry on machine.
// Globals persist between entries. An entry with unclosed braces or
// parentheses continues on the next line. The banner and prompts are shown
// only when in is a terminal.
func runREPL(machine *vm.VM, in io.Reader, out io.Writer) {
	prompt := isTerminal(in)
	if prompt {
		fmt.Fprintln(out, "glox REPL (type 'exit' to quit, ':help' for commands)")
	}

	scanner := bufio.NewScanner(in)
	var buf strings.Builder

	for {
		if prompt {
			if buf.Len() == 0 {
				fmt.Fprint(out, ">> ")
			} else {
				fmt.Fprint(out, ".. ")
			}
		}
		if !scanner.Scan() {
			break
		}
		line := scanner.Text()

		if buf.Len() == 0 {
			trimmed := strings.TrimSpace(line)
			if trimmed == "exit" || trimmed == "quit" {
				break
			}
			if strings.HasPrefix(trimmed, ":") {
				handleREPLCommand(machine, trimmed, out)
				continue
			}
		}

		if buf.Len() > 0 {
			buf.WriteString("\n")
		}
		buf.WriteString(line)

		if unbalanced(buf.String()) > 0 {
			continue
		}
		input := buf.String()
		buf.Reset()
		if strings.TrimSpace(input) != "" {
			// Errors are reported by the VM; the session goes on.
			_ = machine.Run(input)
		}
	}

	if prompt {
		fmt.Fprintln(out)
	}
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func handleREPLCommand(machine *vm.VM, cmd string, out io.Writer) {
	switch cmd {
	case ":help", ":h", ":?":
		fmt.Fprintln(out, "REPL Commands:")
		fmt.Fprintln(out, "  :help, :h, :?     Show this help")
		fmt.Fprintln(out, "  :globals          List global variables")
		fmt.Fprintln(out, "  :trace            Toggle instruction tracing")
		fmt.Fprintln(out, "  exit, quit        Exit REPL")
	case ":globals":
		for _, name := range machine.GlobalNames() {
			v, _ := machine.Global(name)
			fmt.Fprintf(out, "  %s = %s\n", name, vm.FormatValue(v))
		}
	case ":trace":
		machine.Trace = !machine.Trace
		if machine.Trace {
			fmt.Fprintln(out, "Tracing on")
		} else {
			fmt.Fprintln(out, "Tracing off")
		}
	default:
		fmt.Fprintf(out, "Unknown command: %s (type :help for commands)\n", cmd)
	}
}

// unbalanced returns how many braces and parentheses are still open in
// source, ignoring those inside strings and comments.
func unbalanced(source string) int {
	depth := 0
	inString := false
	for i := 0; i < len(source); i++ {
		c := source[i]
		switch {
		case inString:
			if c == '"' {
				inString = false
			}
		case c == '"':
			inString = true
		case c == '/' && i+1 < len(source) && source[i+1] == '/':
			for i < len(source) && source[i] != '\n' {
				i++
			}
		case c == '{' || c == '(':
			depth++
		case c == '}' || c == ')':
			depth--
		}
	}
	if inString {
		// Lox strings may span lines.
		depth++
	}
	return depth
}
