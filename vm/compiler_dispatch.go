package vm

import (
	"time"
)

// ---------------------------------------------------------------------------
// Compiler injection
// ---------------------------------------------------------------------------

// CompileFunc is the signature for compilation functions.
// This is used to inject the compiler package without creating import cycles.
// The returned function is the top-level script, allocated in heap.
type CompileFunc func(source string, heap *Heap) (*ObjFunction, error)

// UseCompiler installs the compiler used by Interpret and Run.
// The compileFunc is typically compiler.Compile.
func (vm *VM) UseCompiler(compileFunc CompileFunc) {
	vm.compileFunc = compileFunc
}

// HasCompiler reports whether a compiler is installed.
func (vm *VM) HasCompiler() bool {
	return vm.compileFunc != nil
}

// Compile compiles source into this VM's heap without running it.
func (vm *VM) Compile(source string) (*ObjFunction, error) {
	if vm.compileFunc == nil {
		return nil, ErrNoCompiler
	}
	start := time.Now()
	fn, err := vm.compileFunc(source, vm.heap)
	if err != nil {
		log.Debugf("compile failed after %s", time.Since(start))
		return nil, err
	}
	log.Debugf("compiled %d bytes of source in %s", len(source), time.Since(start))
	return fn, nil
}
