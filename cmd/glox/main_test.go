package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeScript(t *testing.T, dir, name, source string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(source), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func runCLI(t *testing.T, stdin string, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	args = append([]string{"-no-manifest"}, args...)
	code := run(args, strings.NewReader(stdin), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

// ---------------------------------------------------------------------------
// Scripts
// ---------------------------------------------------------------------------

func TestRunScript(t *testing.T) {
	path := writeScript(t, t.TempDir(), "fib.lox", `
fun fib(n) { if (n < 2) return n; return fib(n - 2) + fib(n - 1); }
print fib(10);
`)
	code, out, errOut := runCLI(t, "", path)
	if code != exitOK {
		t.Fatalf("exit = %d, stderr = %q", code, errOut)
	}
	if out != "55\n" {
		t.Errorf("stdout = %q, want %q", out, "55\n")
	}
}

func TestExitCodes(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name   string
		args   []string
		code   int
		stderr string
	}{
		{"compile error", []string{writeScript(t, dir, "bad.lox", "print ;")}, exitData, "[line 1] Error at ';': Expect expression."},
		{"runtime error", []string{writeScript(t, dir, "neg.lox", `print -"x";`)}, exitSoftware, "Operand must be a number.\n[line 1] in script"},
		{"missing file", []string{filepath.Join(dir, "missing.lox")}, exitIO, "Could not open file"},
		{"too many args", []string{"a.lox", "b.lox"}, exitUsage, "Usage: glox"},
		{"unknown flag", []string{"-bogus"}, exitUsage, "flag provided but not defined"},
		{"missing image", []string{filepath.Join(dir, "missing.gloxc")}, exitIO, "cannot read"},
		{"corrupt image", []string{writeScript(t, dir, "bad.gloxc", "junk")}, exitData, "image:"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, errOut := runCLI(t, "", tt.args...)
			if code != tt.code {
				t.Errorf("exit = %d, want %d (stderr %q)", code, tt.code, errOut)
			}
			if !strings.Contains(errOut, tt.stderr) {
				t.Errorf("stderr = %q, want it to contain %q", errOut, tt.stderr)
			}
		})
	}
}

func TestVersion(t *testing.T) {
	code, out, _ := runCLI(t, "", "-version")
	if code != exitOK || out != "glox dev\n" {
		t.Errorf("-version = %d, %q", code, out)
	}
}

func TestCompileToImageAndRun(t *testing.T) {
	dir := t.TempDir()
	src := writeScript(t, dir, "hello.lox", `var who = "world"; print "hello " + who;`)
	img := filepath.Join(dir, "hello"+ImageExt)

	code, out, errOut := runCLI(t, "", "-o", img, src)
	if code != exitOK {
		t.Fatalf("-o exit = %d, stderr = %q", code, errOut)
	}
	if out != "" {
		t.Errorf("-o should not run the script, stdout = %q", out)
	}

	code, out, errOut = runCLI(t, "", img)
	if code != exitOK {
		t.Fatalf("image exit = %d, stderr = %q", code, errOut)
	}
	if out != "hello world\n" {
		t.Errorf("stdout = %q", out)
	}
}

func TestDisasmFlag(t *testing.T) {
	path := writeScript(t, t.TempDir(), "one.lox", "print 1;")
	code, out, _ := runCLI(t, "", "-disasm", path)
	if code != exitOK {
		t.Fatalf("exit = %d", code)
	}
	if !strings.Contains(out, "== script ==") || !strings.Contains(out, "PRINT") {
		t.Errorf("listing missing from stdout:\n%s", out)
	}
	if !strings.HasSuffix(out, "1\n") {
		t.Errorf("script output should follow the listing:\n%s", out)
	}
}

func TestCacheFlag(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	path := writeScript(t, dir, "c.lox", "print 1 + 2;")

	for i := 0; i < 2; i++ {
		code, out, errOut := runCLI(t, "", "-cache", path)
		if code != exitOK || out != "3\n" {
			t.Fatalf("run %d: exit = %d, stdout = %q, stderr = %q", i, code, out, errOut)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, ".glox", "cache.db")); err != nil {
		t.Errorf("cache database not created: %v", err)
	}
}

func TestDisasmBypassesCache(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	path := writeScript(t, dir, "d.lox", "print 4;")

	if code, out, errOut := runCLI(t, "", "-cache", path); code != exitOK || out != "4\n" {
		t.Fatalf("warm cache: exit = %d, stdout = %q, stderr = %q", code, out, errOut)
	}
	code, out, errOut := runCLI(t, "", "-cache", "-disasm", path)
	if code != exitOK {
		t.Fatalf("exit = %d, stderr = %q", code, errOut)
	}
	if !strings.Contains(out, "== script ==") {
		t.Errorf("listing missing on a cached script:\n%s", out)
	}
	if !strings.HasSuffix(out, "4\n") {
		t.Errorf("script output should follow the listing:\n%s", out)
	}
}

// ---------------------------------------------------------------------------
// Check
// ---------------------------------------------------------------------------

func TestCheck(t *testing.T) {
	dir := t.TempDir()
	good := writeScript(t, dir, "good.lox", "print 1;")
	bad := writeScript(t, dir, "bad.lox", "var = 1;\nprint ;")

	code, out, _ := runCLI(t, "", "-check", good, good)
	if code != exitOK || out != "2 files ok\n" {
		t.Errorf("-check good = %d, %q", code, out)
	}

	code, out, errOut := runCLI(t, "", "-check", good, bad)
	if code != exitData {
		t.Errorf("-check bad exit = %d, want %d", code, exitData)
	}
	if out != "1 of 2 files failed to compile\n" {
		t.Errorf("stdout = %q", out)
	}
	want := bad + ": [line 1] Error at '=': Expect variable name.\n" +
		bad + ": [line 2] Error at ';': Expect expression.\n"
	if errOut != want {
		t.Errorf("stderr = %q, want %q", errOut, want)
	}
}

func TestCheckWithoutFiles(t *testing.T) {
	code, _, errOut := runCLI(t, "", "-check")
	if code != exitUsage || !strings.Contains(errOut, "-check needs files") {
		t.Errorf("-check = %d, %q", code, errOut)
	}
}

// ---------------------------------------------------------------------------
// Manifest
// ---------------------------------------------------------------------------

func TestManifestEntry(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	if err := os.Mkdir(filepath.Join(dir, "src"), 0o755); err != nil {
		t.Fatal(err)
	}
	writeScript(t, filepath.Join(dir, "src"), "main.lox", "print clock() >= 0;")
	writeScript(t, dir, "glox.toml", `
[project]
name = "demo"

[source]
dirs = ["src"]
entry = "main.lox"
`)

	var stdout, stderr bytes.Buffer
	code := run(nil, strings.NewReader(""), &stdout, &stderr)
	if code != exitOK {
		t.Fatalf("exit = %d, stderr = %q", code, stderr.String())
	}
	if stdout.String() != "true\n" {
		t.Errorf("stdout = %q", stdout.String())
	}

	stdout.Reset()
	code = run([]string{"-check"}, strings.NewReader(""), &stdout, &stderr)
	if code != exitOK || stdout.String() != "1 files ok\n" {
		t.Errorf("-check from manifest = %d, %q", code, stdout.String())
	}
}

// ---------------------------------------------------------------------------
// REPL
// ---------------------------------------------------------------------------

func TestREPL(t *testing.T) {
	input := strings.Join([]string{
		"var a = 1;",
		"fun inc() {",
		"  a = a + 1;",
		"}",
		"inc();",
		"print a;",
		"print nope;",
		"print a;",
		":globals",
		":nope",
		"exit",
		"print 99;",
	}, "\n")

	code, out, errOut := runCLI(t, input)
	if code != exitOK {
		t.Fatalf("exit = %d", code)
	}
	if !strings.Contains(out, "2\n") {
		t.Errorf("REPL output missing a = 2:\n%s", out)
	}
	if !strings.Contains(errOut, "Undefined variable 'nope'.") {
		t.Errorf("stderr = %q", errOut)
	}
	if !strings.Contains(out, "  a = 2\n") || !strings.Contains(out, "  inc = <fn inc>\n") {
		t.Errorf(":globals output missing:\n%s", out)
	}
	if !strings.Contains(out, "Unknown command: :nope") {
		t.Errorf("unknown command not reported:\n%s", out)
	}
	if strings.Contains(out, "99") {
		t.Error("input after exit should not run")
	}
	if strings.Contains(out, ">> ") || strings.Contains(out, "glox REPL") {
		t.Errorf("prompts should be off when stdin is not a terminal:\n%s", out)
	}
}

func TestUnbalanced(t *testing.T) {
	tests := []struct {
		src  string
		want int
	}{
		{"print 1;", 0},
		{"fun f() {", 1},
		{"fun f() {\n}", 0},
		{`print "{";`, 0},
		{"// {\nprint 1;", 0},
		{`print "multi`, 1},
		{"f(g(", 2},
	}
	for _, tt := range tests {
		if got := unbalanced(tt.src); got != tt.want {
			t.Errorf("unbalanced(%q) = %d, want %d", tt.src, got, tt.want)
		}
	}
}

// chdir changes the working directory for the duration of the test,
// like testing.T.Chdir (Go 1.24+).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Fatal(err)
		}
	})
}
