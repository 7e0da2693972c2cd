package compiler

import (
	"bytes"
	"strings"
	"testing"

	"github.com/chazu/glox/vm"
)

// Integration tests: compile and execute real Lox programs

type runResult struct {
	stdout string
	stderr string
	result vm.InterpretResult
}

func newMachine(t *testing.T) (*vm.VM, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	var out, errOut bytes.Buffer
	machine, err := vm.NewVMWithConfig(vm.Config{Stdout: &out, Stderr: &errOut})
	if err != nil {
		t.Fatalf("NewVMWithConfig: %v", err)
	}
	machine.UseCompiler(Compile)
	t.Cleanup(machine.Free)
	return machine, &out, &errOut
}

func interpret(t *testing.T, source string) runResult {
	t.Helper()
	machine, out, errOut := newMachine(t)
	result := machine.Interpret(source)
	return runResult{stdout: out.String(), stderr: errOut.String(), result: result}
}

func expectOutput(t *testing.T, source, want string) {
	t.Helper()
	r := interpret(t, source)
	if r.result != vm.InterpretOK {
		t.Fatalf("result = %v, stderr:\n%s", r.result, r.stderr)
	}
	if r.stdout != want {
		t.Errorf("output:\n%s\nwant:\n%s", r.stdout, want)
	}
}

func TestIntegrationExpressions(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   string
	}{
		{"arithmetic", "print -(1.2 + 3.4) / 5.6;", "-0.8214285714285714\n"},
		{"precedence", "print 1 + 2 * 3 - 4 / 2;", "5\n"},
		{"grouping", "print (1 + 2) * 3;", "9\n"},
		{"division", "print 10 / 4;", "2.5\n"},
		{"divide by zero", "print 1 / 0;", "inf\n"},
		{"negative zero", "print -0;", "-0\n"},
		{"concatenation", `print "foo" + "bar";`, "foobar\n"},
		{"comparison", "print 1 < 2; print 2 <= 1; print 3 > 3; print 3 >= 3;", "true\nfalse\nfalse\ntrue\n"},
		{"equality", `print 1 == 1; print "a" == "a"; print nil == false; print 1 != 2;`, "true\ntrue\nfalse\ntrue\n"},
		{"nan", "var n = 0 / 0; print n == n; print n;", "false\nnan\n"},
		{"not", "print !nil; print !0; print !true;", "true\nfalse\nfalse\n"},
		{"and", "print false and 1; print true and 2; print nil and x;", "false\n2\nnil\n"},
		{"or", `print nil or "x"; print 1 or y; print false or false;`, "x\n1\nfalse\n"},
		{"assignment value", "var a; print a = 3; print a;", "3\n3\n"},
		{"chained assignment", "var a; var b; a = b = 5; print a + b;", "10\n"},
		{"nil", "print nil;", "nil\n"},
		{"large number", "print 1000000 * 1000000;", "1000000000000\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectOutput(t, tt.source, tt.want)
		})
	}
}

func TestIntegrationVariablesAndScope(t *testing.T) {
	expectOutput(t, `
var a = "global";
{
  var a = "outer";
  {
    var a = "inner";
    print a;
  }
  print a;
}
print a;
`, "inner\nouter\nglobal\n")

	expectOutput(t, "var a = 1; var a = 2; print a;", "2\n")
	expectOutput(t, "var a; print a;", "nil\n")
	expectOutput(t, "var a = 1; { var b = a + 1; a = b; } print a;", "2\n")
}

func TestIntegrationControlFlow(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   string
	}{
		{"if", `if (true) print "yes"; else print "no";`, "yes\n"},
		{"else", `if (nil) print "yes"; else print "no";`, "no\n"},
		{"if without else", `if (false) print "yes"; print "after";`, "after\n"},
		{"while", "var i = 0; while (i < 3) { print i; i = i + 1; }", "0\n1\n2\n"},
		{"for", "for (var i = 0; i < 3; i = i + 1) print i;", "0\n1\n2\n"},
		{"for without clauses", `fun f() { var i = 0; for (;;) { if (i == 2) return i; i = i + 1; } } print f();`, "2\n"},
		{"for without increment", "for (var i = 0; i < 2;) { print i; i = i + 1; }", "0\n1\n"},
		{"for existing var", "var i; for (i = 5; i < 7; i = i + 1) {} print i;", "7\n"},
		{"nested loops", `
for (var i = 0; i < 2; i = i + 1)
  for (var j = 0; j < 2; j = j + 1)
    print i * 10 + j;
`, "0\n1\n10\n11\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectOutput(t, tt.source, tt.want)
		})
	}
}

func TestIntegrationFunctions(t *testing.T) {
	expectOutput(t, `
fun fib(n) {
  if (n < 2) return n;
  return fib(n - 2) + fib(n - 1);
}
print fib(15);
`, "610\n")

	expectOutput(t, `
fun sum(a, b, c) { return a + b + c; }
print sum(1, 2, 3);
`, "6\n")

	expectOutput(t, "fun f() {} print f();", "nil\n")
	expectOutput(t, "fun f() { return; } print f();", "nil\n")
	expectOutput(t, "fun f() {} print f;", "<fn f>\n")
	expectOutput(t, "print clock;", "<native fn>\n")
	expectOutput(t, "fun f() { fun g() {} return g; } print f();", "<fn g>\n")
	expectOutput(t, "var t = clock(); print t >= 0;", "true\n")
}

// ---------------------------------------------------------------------------
// Closures
// ---------------------------------------------------------------------------

func TestIntegrationCounterClosure(t *testing.T) {
	expectOutput(t, `
fun makeCounter() {
  var count = 0;
  fun counter() {
    count = count + 1;
    return count;
  }
  return counter;
}
var c = makeCounter();
print c();
print c();
var d = makeCounter();
print d();
`, "1\n2\n1\n")
}

func TestIntegrationClosureSharesVariable(t *testing.T) {
	expectOutput(t, `
var get;
var set;
fun make() {
  var a = 1;
  fun g() { return a; }
  fun s(v) { a = v; }
  get = g;
  set = s;
}
make();
set(5);
print get();
`, "5\n")
}

func TestIntegrationClosureSeesLaterAssignment(t *testing.T) {
	expectOutput(t, `
fun outer() {
  var x = "before";
  fun inner() { x = "after"; }
  inner();
  print x;
}
outer();
`, "after\n")
}

func TestIntegrationNestedUpvalues(t *testing.T) {
	expectOutput(t, `
fun outer() {
  var x = "outside";
  fun middle() {
    fun inner() { print x; }
    return inner;
  }
  return middle;
}
var mid = outer();
var in = mid();
in();
`, "outside\n")
}

func TestIntegrationBlockClosureClosed(t *testing.T) {
	expectOutput(t, `
var f;
{
  var local = "captured";
  fun g() { print local; }
  f = g;
}
f();
`, "captured\n")
}

func TestIntegrationClosureInLoop(t *testing.T) {
	expectOutput(t, `
var g1; var g2;
for (var i = 1; i <= 2; i = i + 1) {
  var j = i;
  fun show() { print j; }
  if (i == 1) g1 = show; else g2 = show;
}
g1();
g2();
`, "1\n2\n")
}

// ---------------------------------------------------------------------------
// Runtime errors
// ---------------------------------------------------------------------------

func expectRuntimeError(t *testing.T, source, wantStderr string) {
	t.Helper()
	r := interpret(t, source)
	if r.result != vm.InterpretRuntimeError {
		t.Fatalf("result = %v, want runtime error (stdout %q)", r.result, r.stdout)
	}
	if r.stderr != wantStderr {
		t.Errorf("stderr:\n%s\nwant:\n%s", r.stderr, wantStderr)
	}
	if r.result.ExitCode() != 70 {
		t.Errorf("exit code = %d, want 70", r.result.ExitCode())
	}
}

func TestIntegrationRuntimeErrors(t *testing.T) {
	expectRuntimeError(t, `print "foo" + 1;`,
		"Operands must be two numbers or two strings.\n[line 1] in script\n")
	expectRuntimeError(t, "print -\"x\";",
		"Operand must be a number.\n[line 1] in script\n")
	expectRuntimeError(t, "print 1 < nil;",
		"Operands must be numbers.\n[line 1] in script\n")
	expectRuntimeError(t, "print undefined;",
		"Undefined variable 'undefined'.\n[line 1] in script\n")
	expectRuntimeError(t, "missing = 1;",
		"Undefined variable 'missing'.\n[line 1] in script\n")
	expectRuntimeError(t, `"not a function"();`,
		"Can only call functions and classes.\n[line 1] in script\n")
	expectRuntimeError(t, "fun add(a, b) { return a + b; }\nadd(1);",
		"Expected 2 arguments but got 1.\n[line 2] in script\n")
}

func TestIntegrationRuntimeErrorTrace(t *testing.T) {
	expectRuntimeError(t, `fun a() { b(); }
fun b() { c(); }
fun c() {
  c("too", "many");
}
a();
`, "Expected 0 arguments but got 2.\n[line 4] in c()\n[line 2] in b()\n[line 1] in a()\n[line 6] in script\n")
}

func TestIntegrationStackOverflow(t *testing.T) {
	r := interpret(t, "fun f() { f(); }\nf();")
	if r.result != vm.InterpretRuntimeError {
		t.Fatalf("result = %v, want runtime error", r.result)
	}
	lines := strings.Split(strings.TrimSuffix(r.stderr, "\n"), "\n")
	if lines[0] != "Stack overflow." {
		t.Errorf("first line = %q", lines[0])
	}
	if len(lines) != 1+vm.DefaultMaxFrames {
		t.Errorf("trace has %d lines, want %d", len(lines)-1, vm.DefaultMaxFrames)
	}
	if lines[len(lines)-1] != "[line 2] in script" {
		t.Errorf("last line = %q", lines[len(lines)-1])
	}
}

func TestIntegrationOutputBeforeError(t *testing.T) {
	r := interpret(t, "print 1;\nprint nope;\nprint 2;")
	if r.stdout != "1\n" {
		t.Errorf("stdout = %q, want output up to the error", r.stdout)
	}
	if r.result != vm.InterpretRuntimeError {
		t.Errorf("result = %v", r.result)
	}
}

// ---------------------------------------------------------------------------
// Compile errors through the VM
// ---------------------------------------------------------------------------

func TestIntegrationCompileError(t *testing.T) {
	r := interpret(t, "print 1;\nprint ;")
	if r.result != vm.InterpretCompileError {
		t.Fatalf("result = %v, want compile error", r.result)
	}
	if r.result.ExitCode() != 65 {
		t.Errorf("exit code = %d, want 65", r.result.ExitCode())
	}
	if r.stdout != "" {
		t.Errorf("nothing should run after a compile error, got %q", r.stdout)
	}
	if r.stderr != "[line 2] Error at ';': Expect expression.\n" {
		t.Errorf("stderr = %q", r.stderr)
	}
}

// ---------------------------------------------------------------------------
// REPL-style sessions
// ---------------------------------------------------------------------------

func TestIntegrationGlobalsPersistAcrossRuns(t *testing.T) {
	machine, out, _ := newMachine(t)

	steps := []string{
		"var a = 1;",
		"fun inc() { a = a + 1; }",
		"inc();",
		"print a;",
		"print nope;", // runtime error; the session continues
		"inc(); print a;",
	}
	for _, src := range steps {
		machine.Interpret(src)
	}

	if out.String() != "2\n3\n" {
		t.Errorf("output = %q, want %q", out.String(), "2\n3\n")
	}
	names := strings.Join(machine.GlobalNames(), ",")
	if names != "a,clock,inc" {
		t.Errorf("globals = %s", names)
	}
}

func TestIntegrationStringsInternedAcrossRuns(t *testing.T) {
	machine, out, _ := newMachine(t)
	machine.Interpret(`var s = "ab";`)
	machine.Interpret(`print s == "a" + "b";`)
	if out.String() != "true\n" {
		t.Errorf("output = %q", out.String())
	}
}
