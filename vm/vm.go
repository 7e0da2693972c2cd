package vm

import (
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("glox.vm")

// DefaultMaxFrames is the default call depth limit.
const DefaultMaxFrames = 64

// slotsPerFrame bounds the stack slots one frame can use: 256 locals plus
// temporaries fit comfortably.
const slotsPerFrame = 256

// ---------------------------------------------------------------------------
// VM: The Lox virtual machine
// ---------------------------------------------------------------------------

// Config holds construction options for a VM. Zero fields take defaults.
type Config struct {
	// MaxFrames limits call depth. Default DefaultMaxFrames.
	MaxFrames int

	// Natives lists the built-ins to install. Nil installs all of them;
	// an empty non-nil slice installs none.
	Natives []string

	// Trace prints the stack and each instruction as it executes.
	Trace bool

	// Stdout receives print output. Default os.Stdout.
	Stdout io.Writer

	// Stderr receives compile and runtime error reports. Default os.Stderr.
	Stderr io.Writer
}

// VM executes compiled Lox functions. A VM is a self-contained context: its
// heap, stacks and globals are private, so separate VMs may run on separate
// goroutines. A single VM must not be used concurrently.
type VM struct {
	heap    *Heap
	globals Table

	stack []Value // fixed size; upvalues hold pointers into it
	sp    int

	frames []CallFrame // fixed size
	fp     int         // number of active frames

	openUpvalues *ObjUpvalue // sorted by descending Slot

	out    io.Writer
	errOut io.Writer

	// Trace enables instruction tracing on the output writer.
	Trace bool

	compileFunc CompileFunc
	started     time.Time
}

// NewVM creates a VM with default settings and all built-in natives.
func NewVM() *VM {
	vm, err := NewVMWithConfig(Config{})
	if err != nil {
		panic(err)
	}
	return vm
}

// NewVMWithConfig creates a VM from cfg. It fails only if cfg names an
// unknown native.
func NewVMWithConfig(cfg Config) (*VM, error) {
	maxFrames := cfg.MaxFrames
	if maxFrames <= 0 {
		maxFrames = DefaultMaxFrames
	}
	vm := &VM{
		heap:    NewHeap(),
		stack:   make([]Value, maxFrames*slotsPerFrame),
		frames:  make([]CallFrame, maxFrames),
		out:     cfg.Stdout,
		errOut:  cfg.Stderr,
		Trace:   cfg.Trace,
		started: time.Now(),
	}
	if vm.out == nil {
		vm.out = os.Stdout
	}
	if vm.errOut == nil {
		vm.errOut = os.Stderr
	}
	if cfg.Natives == nil || len(cfg.Natives) > 0 {
		if err := vm.RegisterBuiltins(cfg.Natives...); err != nil {
			return nil, err
		}
	}
	return vm, nil
}

// SetOutput redirects print output.
func (vm *VM) SetOutput(w io.Writer) { vm.out = w }

// SetErrorOutput redirects error reports.
func (vm *VM) SetErrorOutput(w io.Writer) { vm.errOut = w }

// Heap returns the heap owned by this VM.
func (vm *VM) Heap() *Heap { return vm.heap }

// MaxFrames returns the call depth limit.
func (vm *VM) MaxFrames() int { return len(vm.frames) }

// Global returns the value of a global variable.
func (vm *VM) Global(name string) (Value, bool) {
	key := vm.heap.strings.FindString(name, HashString(name))
	if key == nil {
		return NilValue(), false
	}
	return vm.globals.Get(key)
}

// SetGlobal defines or overwrites a global variable.
func (vm *VM) SetGlobal(name string, v Value) {
	vm.globals.Set(vm.heap.CopyString(name), v)
}

// GlobalNames returns the names of all defined globals, sorted.
func (vm *VM) GlobalNames() []string {
	keys := vm.globals.Keys()
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = k.Chars
	}
	sort.Strings(names)
	return names
}

// ---------------------------------------------------------------------------
// Entry points
// ---------------------------------------------------------------------------

// Interpret compiles and runs source, reporting errors on the error writer.
func (vm *VM) Interpret(source string) InterpretResult {
	return ResultOf(vm.Run(source))
}

// Run compiles and runs source. Compile errors and runtime errors are
// written to the error writer and also returned; a runtime error is a
// *RuntimeError.
func (vm *VM) Run(source string) error {
	fn, err := vm.Compile(source)
	if err != nil {
		fmt.Fprintln(vm.errOut, err)
		return err
	}
	return vm.RunFunction(fn)
}

// RunFunction executes a compiled top-level function as a zero-argument
// call. fn must have been allocated in this VM's heap.
func (vm *VM) RunFunction(fn *ObjFunction) error {
	closure := vm.heap.NewClosure(fn)
	vm.push(ObjectValue(closure))
	if err := vm.call(closure, 0); err != nil {
		return err
	}
	return vm.execute()
}

// Free releases every object owned by the VM and clears its globals.
func (vm *VM) Free() {
	log.Debugf("freeing heap: %d objects, %d strings", vm.heap.Len(), vm.heap.Strings())
	vm.resetStack()
	vm.globals = Table{}
	vm.heap.Free()
}

// ---------------------------------------------------------------------------
// Stack helpers
// ---------------------------------------------------------------------------

// stackOverflow is panicked by push when the value stack is exhausted and
// recovered by execute.
type stackOverflow struct{}

func (vm *VM) push(v Value) {
	if vm.sp == len(vm.stack) {
		panic(stackOverflow{})
	}
	vm.stack[vm.sp] = v
	vm.sp++
}

func (vm *VM) pop() Value {
	vm.sp--
	return vm.stack[vm.sp]
}

func (vm *VM) peek(distance int) Value {
	return vm.stack[vm.sp-1-distance]
}

func (vm *VM) resetStack() {
	clear(vm.stack[:vm.sp])
	vm.sp = 0
	vm.fp = 0
	vm.openUpvalues = nil
}

// runtimeError reports a runtime error with a stack trace, unwinds the VM
// and returns the error.
func (vm *VM) runtimeError(format string, args ...any) *RuntimeError {
	err := &RuntimeError{Message: fmt.Sprintf(format, args...)}
	for i := vm.fp - 1; i >= 0; i-- {
		frame := &vm.frames[i]
		fn := frame.closure.Function
		tf := TraceFrame{Line: fn.Chunk.LineAt(frame.ip - 1)}
		if fn.Name != nil {
			tf.Function = fn.Name.Chars
		}
		err.Trace = append(err.Trace, tf)
	}
	fmt.Fprintln(vm.errOut, err.Error())
	log.Debugf("runtime error: %s", err.Message)
	vm.resetStack()
	return err
}
