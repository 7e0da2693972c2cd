// glox CLI - runs Lox scripts and compiled images, or starts a REPL
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/tliron/commonlog"
	"golang.org/x/sync/errgroup"

	"github.com/chazu/glox/cache"
	"github.com/chazu/glox/compiler"
	"github.com/chazu/glox/manifest"
	"github.com/chazu/glox/server"
	"github.com/chazu/glox/vm"
	"github.com/chazu/glox/vm/image"

	_ "github.com/tliron/commonlog/simple"
)

var version = "dev"

var log = commonlog.GetLogger("glox.cli")

// Process exit statuses, following sysexits.h.
const (
	exitOK       = 0
	exitUsage    = 64
	exitData     = 65
	exitSoftware = 70
	exitIO       = 74
)

// ImageExt is the extension of compiled images.
const ImageExt = ".gloxc"

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

type options struct {
	interactive bool
	disasm      bool
	trace       bool
	check       bool
	output      string
	useCache    bool
	noCache     bool
	noManifest  bool
	maxFrames   int
	verbosity   int
	logFile     string
	lsp         bool
	lspAddr     string
	showVersion bool
}

// run is main without the process: it parses args, does the work and
// returns the exit status.
func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var opts options
	fs := flag.NewFlagSet("glox", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.BoolVar(&opts.interactive, "i", false, "Start interactive REPL")
	fs.BoolVar(&opts.disasm, "disasm", false, "Print bytecode listings as functions compile")
	fs.BoolVar(&opts.trace, "trace", false, "Trace the stack and each instruction as it executes")
	fs.BoolVar(&opts.check, "check", false, "Compile the given files (or the project's sources) without running them")
	fs.StringVar(&opts.output, "o", "", "Compile the script to an image at this path instead of running it")
	fs.BoolVar(&opts.useCache, "cache", false, "Cache compiled images (default from glox.toml)")
	fs.BoolVar(&opts.noCache, "no-cache", false, "Disable the image cache")
	fs.BoolVar(&opts.noManifest, "no-manifest", false, "Ignore glox.toml")
	fs.IntVar(&opts.maxFrames, "max-frames", 0, "Call depth limit (default from glox.toml, else 64)")
	fs.IntVar(&opts.verbosity, "v", 0, "Log verbosity (0 = errors only)")
	fs.StringVar(&opts.logFile, "log", "", "Write logs to this file instead of stderr")
	fs.BoolVar(&opts.lsp, "lsp", false, "Start the language server on stdio")
	fs.StringVar(&opts.lspAddr, "lsp-tcp", "", "Start the language server on a TCP address")
	fs.BoolVar(&opts.showVersion, "version", false, "Print version and exit")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: glox [options] [script.lox | image%s]\n\n", ImageExt)
		fmt.Fprintf(stderr, "Runs a Lox script or compiled image. With no script, runs the glox.toml\n")
		fmt.Fprintf(stderr, "entry point if there is one, otherwise starts the REPL.\n\n")
		fmt.Fprintf(stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  glox                          # Start REPL\n")
		fmt.Fprintf(stderr, "  glox fib.lox                  # Run a script\n")
		fmt.Fprintf(stderr, "  glox -o fib%s fib.lox      # Compile to an image\n", ImageExt)
		fmt.Fprintf(stderr, "  glox fib%s                 # Run an image\n", ImageExt)
		fmt.Fprintf(stderr, "  glox -disasm fib.lox          # Show bytecode, then run\n")
		fmt.Fprintf(stderr, "  glox -check src/*.lox         # Compile only, report errors\n")
		fmt.Fprintf(stderr, "  glox -lsp                     # Language server on stdio\n")
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	if opts.showVersion {
		fmt.Fprintf(stdout, "glox %s\n", version)
		return exitOK
	}

	var m *manifest.Manifest
	if !opts.noManifest {
		var err error
		m, err = manifest.FindAndLoad(".")
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitData
		}
	}

	configureLogging(m, opts)

	if opts.lsp || opts.lspAddr != "" {
		return runLSP(opts, stderr)
	}

	paths := fs.Args()
	if opts.check {
		return runCheck(m, paths, stdout, stderr)
	}
	if len(paths) > 1 {
		fs.Usage()
		return exitUsage
	}

	cfg := vm.Config{}
	if m != nil {
		cfg = m.VMOptions()
	}
	if opts.maxFrames > 0 {
		cfg.MaxFrames = opts.maxFrames
	}
	cfg.Trace = cfg.Trace || opts.trace
	cfg.Stdout = stdout
	cfg.Stderr = stderr

	machine, err := vm.NewVMWithConfig(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}
	defer machine.Free()
	if opts.disasm {
		machine.UseCompiler(func(source string, heap *vm.Heap) (*vm.ObjFunction, error) {
			return compiler.CompileWithOptions(source, heap, compiler.Options{Disassemble: stdout})
		})
	} else {
		machine.UseCompiler(compiler.Compile)
	}

	script := ""
	if len(paths) == 1 {
		script = paths[0]
	} else if m != nil && !opts.interactive {
		script = m.EntryPath()
	}

	if script == "" {
		if opts.output != "" {
			fmt.Fprintln(stderr, "Error: -o requires a script")
			return exitUsage
		}
		runREPL(machine, stdin, stdout)
		return exitOK
	}

	// A cache hit skips the compiler, and with it any -disasm listing.
	var store *cache.Store
	if wantCache(m, opts) && opts.output == "" && !opts.disasm && filepath.Ext(script) != ImageExt {
		path := filepath.Join(".glox", "cache.db")
		if m != nil {
			path = m.CachePath()
		}
		store, err = cache.Open(path)
		if err != nil {
			// A broken cache only costs a compile.
			fmt.Fprintf(stderr, "Warning: image cache disabled: %v\n", err)
		} else {
			defer store.Close()
		}
	}

	status := runFile(machine, script, store, opts.output, stderr)
	if status == exitOK && opts.interactive {
		runREPL(machine, stdin, stdout)
	}
	return status
}

func wantCache(m *manifest.Manifest, opts options) bool {
	if opts.noCache {
		return false
	}
	return opts.useCache || (m != nil && m.Cache.Enabled)
}

// configureLogging applies -v and -log over the manifest's [log] table.
func configureLogging(m *manifest.Manifest, opts options) {
	verbosity := opts.verbosity
	var path string
	if m != nil {
		if verbosity == 0 {
			verbosity = m.Log.Verbosity
		}
		path = m.LogFilePath()
	}
	if opts.logFile != "" {
		path = opts.logFile
	}
	if path == "" {
		commonlog.Configure(verbosity, nil)
	} else {
		commonlog.Configure(verbosity, &path)
	}
}

func runLSP(opts options, stderr io.Writer) int {
	lsp := server.NewLSP(version)
	var err error
	if opts.lspAddr != "" {
		err = lsp.RunTCP(opts.lspAddr)
	} else {
		err = lsp.Run()
	}
	if err != nil {
		fmt.Fprintf(stderr, "Language server error: %v\n", err)
		return exitSoftware
	}
	return exitOK
}

// runFile loads a script or image and either runs it or, when output is
// set, writes its compiled image.
func runFile(machine *vm.VM, path string, store *cache.Store, output string, stderr io.Writer) int {
	var fn *vm.ObjFunction

	if filepath.Ext(path) == ImageExt {
		var err error
		fn, err = image.ReadFile(path, machine.Heap())
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			if errors.Is(err, os.ErrNotExist) || errors.Is(err, os.ErrPermission) {
				return exitIO
			}
			return exitData
		}
	} else {
		source, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(stderr, "Could not open file %q: %v\n", path, err)
			return exitIO
		}
		if store != nil {
			var hit bool
			fn, hit, err = store.Load(machine, string(source))
			if err == nil {
				log.Debugf("%s: cache hit=%t", path, hit)
			}
		} else {
			fn, err = machine.Compile(string(source))
		}
		if err != nil {
			fmt.Fprintln(stderr, err)
			var cerr *compiler.Errors
			if errors.As(err, &cerr) {
				return exitData
			}
			return exitSoftware
		}
	}

	if output != "" {
		if err := image.WriteFile(output, fn); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitIO
		}
		return exitOK
	}

	// Runtime errors are reported by the VM itself.
	return vm.ResultOf(machine.RunFunction(fn)).ExitCode()
}

// runCheck compiles every file concurrently, each on its own heap, and
// reports the errors in file order.
func runCheck(m *manifest.Manifest, paths []string, stdout, stderr io.Writer) int {
	if len(paths) == 0 && m != nil {
		files, err := m.SourceFiles()
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitIO
		}
		paths = files
	}
	if len(paths) == 0 {
		fmt.Fprintln(stderr, "Error: -check needs files or a glox.toml")
		return exitUsage
	}

	results := make([]error, len(paths))
	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			source, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			_, results[i] = compiler.Compile(string(source), vm.NewHeap())
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitIO
	}

	failed := 0
	for i, err := range results {
		if err == nil {
			continue
		}
		failed++
		for _, line := range strings.Split(err.Error(), "\n") {
			fmt.Fprintf(stderr, "%s: %s\n", paths[i], line)
		}
	}
	if failed > 0 {
		fmt.Fprintf(stdout, "%d of %d files failed to compile\n", failed, len(paths))
		return exitData
	}
	fmt.Fprintf(stdout, "%d files ok\n", len(paths))
	return exitOK
}
