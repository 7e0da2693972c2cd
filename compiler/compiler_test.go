package compiler

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/chazu/glox/vm"
)

// compileErrors compiles source and returns its diagnostics, failing the
// test if compilation succeeds.
func compileErrors(t *testing.T, source string) []*CompileError {
	t.Helper()
	_, err := Compile(source, vm.NewHeap())
	if err == nil {
		t.Fatalf("Compile(%q) succeeded, want error", source)
	}
	var errs *Errors
	if !errors.As(err, &errs) {
		t.Fatalf("error %T is not *Errors", err)
	}
	return errs.List
}

// findFunction returns the function constant of fn named name.
func findFunction(fn *vm.ObjFunction, name string) *vm.ObjFunction {
	for _, c := range fn.Chunk.Constants {
		if f := c.AsFunction(); f != nil && f.Name != nil && f.Name.Chars == name {
			return f
		}
	}
	return nil
}

func mustCompile(t *testing.T, source string) *vm.ObjFunction {
	t.Helper()
	fn, err := Compile(source, vm.NewHeap())
	if err != nil {
		t.Fatalf("Compile(%q): %v", source, err)
	}
	return fn
}

// ---------------------------------------------------------------------------
// Code generation
// ---------------------------------------------------------------------------

func TestCompileExpressionStatement(t *testing.T) {
	fn := mustCompile(t, "print 1 + 2;")

	want := []byte{
		byte(vm.OpConstant), 0,
		byte(vm.OpConstant), 1,
		byte(vm.OpAdd),
		byte(vm.OpPrint),
		byte(vm.OpNil),
		byte(vm.OpReturn),
	}
	if !bytes.Equal(fn.Chunk.Code, want) {
		t.Errorf("code = % x, want % x", fn.Chunk.Code, want)
	}
	if fn.Name != nil || fn.Arity != 0 {
		t.Errorf("script function = %v arity %d", fn, fn.Arity)
	}
}

func TestCompileDesugaredComparisons(t *testing.T) {
	tests := []struct {
		source string
		ops    []vm.Opcode
	}{
		{"1 != 2;", []vm.Opcode{vm.OpEqual, vm.OpNot}},
		{"1 >= 2;", []vm.Opcode{vm.OpLess, vm.OpNot}},
		{"1 <= 2;", []vm.Opcode{vm.OpGreater, vm.OpNot}},
	}

	for _, tt := range tests {
		fn := mustCompile(t, tt.source)
		// CONSTANT a, CONSTANT b, then the operator bytes.
		got := fn.Chunk.Code[4 : 4+len(tt.ops)]
		for i, op := range tt.ops {
			if vm.Opcode(got[i]) != op {
				t.Errorf("%s: op[%d] = %s, want %s", tt.source, i, vm.Opcode(got[i]), op)
			}
		}
	}
}

func TestCompileLocalsUseSlots(t *testing.T) {
	fn := mustCompile(t, "{ var a = 1; print a; }")
	code := fn.Chunk.Code

	// CONSTANT 0, GET_LOCAL 1, PRINT, POP, NIL, RETURN
	want := []byte{
		byte(vm.OpConstant), 0,
		byte(vm.OpGetLocal), 1,
		byte(vm.OpPrint),
		byte(vm.OpPop),
		byte(vm.OpNil),
		byte(vm.OpReturn),
	}
	if !bytes.Equal(code, want) {
		t.Errorf("code = % x, want % x", code, want)
	}
}

func TestCompileClosureCapturesLocal(t *testing.T) {
	fn := mustCompile(t, `
fun outer() {
  var x = 1;
  fun inner() { return x; }
  return inner;
}`)

	outer := findFunction(fn, "outer")
	if outer == nil {
		t.Fatalf("outer function not found in %v", fn.Chunk.Constants)
	}
	inner := findFunction(outer, "inner")
	if inner == nil {
		t.Fatal("inner function not found")
	}
	if inner.UpvalueCount != 1 {
		t.Errorf("inner upvalue count = %d, want 1", inner.UpvalueCount)
	}

	// CLOSURE idx isLocal=1 index=1 (x is slot 1 of outer)
	code := outer.Chunk.Code
	i := bytes.IndexByte(code, byte(vm.OpClosure))
	if i < 0 || i+3 >= len(code) {
		t.Fatalf("no CLOSURE in % x", code)
	}
	if code[i+2] != 1 || code[i+3] != 1 {
		t.Errorf("upvalue operands = %d %d, want 1 1", code[i+2], code[i+3])
	}
}

func TestCompileCapturedLocalIsClosed(t *testing.T) {
	fn := mustCompile(t, `
{
  var a = 1;
  fun f() { return a; }
}`)
	code := fn.Chunk.Code
	if !bytes.Contains(code, []byte{byte(vm.OpCloseUpvalue)}) {
		t.Errorf("captured block local should be closed: % x", code)
	}
}

func TestCompileParameters(t *testing.T) {
	f := findFunction(mustCompile(t, "fun add(a, b, c) { return a + b + c; }"), "add")
	if f == nil {
		t.Fatal("function constant not found")
	}
	if f.Arity != 3 {
		t.Errorf("arity = %d, want 3", f.Arity)
	}
	if f.String() != "<fn add>" {
		t.Errorf("function = %s", f)
	}
}

func TestCompileDisassembleOption(t *testing.T) {
	var buf bytes.Buffer
	_, err := CompileWithOptions(`
fun outer() {
  fun inner() {}
}`, vm.NewHeap(), Options{Disassemble: &buf})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	out := buf.String()
	innerAt := strings.Index(out, "== inner ==")
	outerAt := strings.Index(out, "== outer ==")
	scriptAt := strings.Index(out, "== script ==")
	if innerAt < 0 || outerAt < 0 || scriptAt < 0 {
		t.Fatalf("missing listings:\n%s", out)
	}
	if !(innerAt < outerAt && outerAt < scriptAt) {
		t.Errorf("functions should be listed as they finish:\n%s", out)
	}
}

func TestCompileDisassembleSkippedOnError(t *testing.T) {
	var buf bytes.Buffer
	_, err := CompileWithOptions("print ;", vm.NewHeap(), Options{Disassemble: &buf})
	if err == nil {
		t.Fatal("expected error")
	}
	if buf.Len() != 0 {
		t.Errorf("disassembly written for failed compile:\n%s", buf.String())
	}
}

func TestCompileInternsIdentifiers(t *testing.T) {
	heap := vm.NewHeap()
	fn, err := Compile(`var greeting = "hi"; print greeting;`, heap)
	if err != nil {
		t.Fatal(err)
	}
	// "greeting" is added once and reused.
	names := 0
	for _, c := range fn.Chunk.Constants {
		if c.IsString() && c.AsString().Chars == "greeting" {
			names++
		}
	}
	if names != 1 {
		t.Errorf("greeting appears %d times in the pool, want 1", names)
	}
	if heap.CopyString("hi") != fn.Chunk.Constants[1].AsString() {
		t.Error("string literal should be interned in the heap")
	}
}

// ---------------------------------------------------------------------------
// Diagnostics
// ---------------------------------------------------------------------------

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   string
	}{
		{"missing semicolon", "print 1", "[line 1] Error at end: Expect ';' after value."},
		{"missing expression", "1 +;", "[line 1] Error at ';': Expect expression."},
		{"unclosed group", "print (1;", "[line 1] Error at ';': Expect ')' after expression."},
		{"invalid target", "var a; var b; a + b = 1;", "[line 1] Error at '=': Invalid assignment target."},
		{"top level return", "return 1;", "[line 1] Error at 'return': Can't return from top-level code."},
		{"duplicate local", "{ var a = 1; var a = 2; }", "[line 1] Error at 'a': Already a variable with this name in this scope."},
		{"own initializer", "{ var a = a; }", "[line 1] Error at 'a': Can't read local variable in its own initializer."},
		{"class", "class Foo {}", "[line 1] Error at 'class': Classes are not supported."},
		{"this", "print this;", "[line 1] Error at 'this': Classes are not supported."},
		{"super", "super.x;", "[line 1] Error at 'super': Classes are not supported."},
		{"unterminated string", "print \"abc;", "[line 1] Error: Unterminated string."},
		{"unexpected character", "print @;", "[line 1] Error: Unexpected character."},
		{"missing var name", "var = 1;", "[line 1] Error at '=': Expect variable name."},
		{"missing fun paren", "fun f {}", "[line 1] Error at '{': Expect '(' after function name."},
		{"unclosed block", "{ print 1;", "[line 1] Error at end: Expect '}' after block."},
		{"line number", "\n\nprint ;", "[line 3] Error at ';': Expect expression."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := compileErrors(t, tt.source)
			if got := errs[0].Error(); got != tt.want {
				t.Errorf("first error = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCompileErrorsPanicModeRecovery(t *testing.T) {
	errs := compileErrors(t, "print ;\nprint ;\nvar = 1;\nprint 1;")
	if len(errs) != 3 {
		t.Fatalf("got %d errors, want 3: %v", len(errs), errs)
	}
	for i, ce := range errs {
		if ce.Pos.Line != i+1 {
			t.Errorf("error %d on line %d, want %d", i, ce.Pos.Line, i+1)
		}
	}

	// One bad expression reports once, not once per following token.
	errs = compileErrors(t, "print + + + ;")
	if len(errs) != 1 {
		t.Errorf("got %d errors, want 1: %v", len(errs), errs)
	}
}

func TestCompileClassBodySkipped(t *testing.T) {
	errs := compileErrors(t, "class Foo {\n  bar() { return this; }\n}\nprint 1;")
	if len(errs) != 1 {
		t.Errorf("got %d errors, want 1: %v", len(errs), errs)
	}
}

func TestCompileErrorsJoined(t *testing.T) {
	_, err := Compile("print ;\nvar = 1;", vm.NewHeap())
	if err == nil {
		t.Fatal("expected error")
	}
	want := "[line 1] Error at ';': Expect expression.\n[line 2] Error at '=': Expect variable name."
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	var ce *CompileError
	if !errors.As(err, &ce) {
		t.Fatal("errors.As should find a *CompileError")
	}
	if ce.Pos.Line != 1 {
		t.Errorf("first diagnostic line = %d", ce.Pos.Line)
	}
}

func TestCompileShadowingAllowed(t *testing.T) {
	mustCompile(t, "var a = 1; var a = 2;")
	mustCompile(t, "{ var a = 1; { var a = 2; } }")
	mustCompile(t, "fun f(a) { { var a = 2; } }")
}

func TestCompileDuplicateParameter(t *testing.T) {
	errs := compileErrors(t, "fun f(a, a) {}")
	if !strings.Contains(errs[0].Message, "Already a variable") {
		t.Errorf("error = %v", errs[0])
	}
}

// ---------------------------------------------------------------------------
// Limits
// ---------------------------------------------------------------------------

func TestCompileTooManyLocals(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("{\n")
	for i := 0; i < MaxLocals; i++ {
		fmt.Fprintf(&sb, "var v%d;\n", i)
	}
	sb.WriteString("}\n")

	errs := compileErrors(t, sb.String())
	if errs[0].Message != "Too many local variables in function." {
		t.Errorf("error = %v", errs[0])
	}

	// One fewer fits: slot 0 is reserved.
	sb.Reset()
	sb.WriteString("{\n")
	for i := 0; i < MaxLocals-1; i++ {
		fmt.Fprintf(&sb, "var v%d;\n", i)
	}
	sb.WriteString("}\n")
	mustCompile(t, sb.String())
}

func TestCompileTooManyConstants(t *testing.T) {
	var sb strings.Builder
	for i := 0; i <= vm.MaxConstants; i++ {
		fmt.Fprintf(&sb, "print %d;\n", i)
	}
	errs := compileErrors(t, sb.String())
	if errs[0].Message != "Too many constants in one chunk." {
		t.Errorf("error = %v", errs[0])
	}
}

func TestCompileTooManyArguments(t *testing.T) {
	args := make([]string, MaxArgs+1)
	for i := range args {
		args[i] = "a"
	}
	errs := compileErrors(t, "var a; fun f() {} f("+strings.Join(args, ", ")+");")
	if errs[0].Message != "Can't have more than 255 arguments." {
		t.Errorf("error = %v", errs[0])
	}

	mustCompile(t, "var a; fun f() {} f("+strings.Join(args[:MaxArgs], ", ")+");")
}

func TestCompileTooManyParameters(t *testing.T) {
	params := make([]string, MaxArgs+1)
	for i := range params {
		params[i] = fmt.Sprintf("p%d", i)
	}
	errs := compileErrors(t, "fun f("+strings.Join(params, ", ")+") {}")
	if errs[0].Message != "Can't have more than 255 parameters." {
		t.Errorf("error = %v", errs[0])
	}
}

func TestCompileJumpTooLarge(t *testing.T) {
	// Each "a;" statement is GET_GLOBAL a, POP: three bytes.
	var sb strings.Builder
	sb.WriteString("var a; if (true) {\n")
	for i := 0; i < vm.MaxJump/3+1; i++ {
		sb.WriteString("a;")
	}
	sb.WriteString("\n}")

	errs := compileErrors(t, sb.String())
	if errs[0].Message != "Too much code to jump over." {
		t.Errorf("error = %v", errs[0])
	}
}

func TestCompileLoopTooLarge(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("var a; while (false) {\n")
	for i := 0; i < vm.MaxJump/3+1; i++ {
		sb.WriteString("a;")
	}
	sb.WriteString("\n}")

	errs := compileErrors(t, sb.String())
	if errs[0].Message != "Loop body too large." {
		t.Errorf("error = %v", errs[0])
	}
}
