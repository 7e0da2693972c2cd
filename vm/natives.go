package vm

import (
	"fmt"
	"time"
)

// Builtin describes a native function the VM can install as a global.
type Builtin struct {
	Name      string
	Signature string
	Doc       string
	build     func(vm *VM) NativeFn
}

var builtins = []Builtin{
	{
		Name:      "clock",
		Signature: "clock()",
		Doc:       "Returns the number of seconds elapsed since the VM was created.",
		build: func(vm *VM) NativeFn {
			return func(argCount int, args []Value) Value {
				return NumberValue(time.Since(vm.started).Seconds())
			}
		},
	},
}

// Builtins returns the native functions available to RegisterBuiltins.
func Builtins() []Builtin {
	out := make([]Builtin, len(builtins))
	copy(out, builtins)
	return out
}

// LookupBuiltin finds a built-in native by name.
func LookupBuiltin(name string) (Builtin, bool) {
	for _, b := range builtins {
		if b.Name == name {
			return b, true
		}
	}
	return Builtin{}, false
}

// DefineNative installs fn as a global named name.
func (vm *VM) DefineNative(name string, fn NativeFn) {
	key := vm.heap.CopyString(name)
	vm.globals.Set(key, ObjectValue(vm.heap.NewNative(name, fn)))
}

// RegisterBuiltins installs the named built-ins, or all of them when no
// names are given.
func (vm *VM) RegisterBuiltins(names ...string) error {
	if len(names) == 0 {
		for _, b := range builtins {
			vm.DefineNative(b.Name, b.build(vm))
		}
		return nil
	}
	for _, name := range names {
		b, ok := LookupBuiltin(name)
		if !ok {
			return fmt.Errorf("unknown native %q", name)
		}
		vm.DefineNative(b.Name, b.build(vm))
	}
	return nil
}
