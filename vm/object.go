package vm

import (
	"fmt"

	"github.com/zeebo/xxh3"
)

// ObjType identifies the concrete type of a heap object.
type ObjType byte

const (
	ObjTypeString ObjType = iota
	ObjTypeFunction
	ObjTypeClosure
	ObjTypeUpvalue
	ObjTypeNative
)

var objTypeNames = map[ObjType]string{
	ObjTypeString:   "string",
	ObjTypeFunction: "function",
	ObjTypeClosure:  "closure",
	ObjTypeUpvalue:  "upvalue",
	ObjTypeNative:   "native",
}

func (t ObjType) String() string {
	if name, ok := objTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("ObjType(%d)", byte(t))
}

// Object is implemented by every heap-allocated value. Objects are only
// created through a Heap, which owns them until Heap.Free.
type Object interface {
	Type() ObjType
	String() string
}

// HashString is the hash used for string interning and table lookup.
func HashString(s string) uint32 {
	return uint32(xxh3.HashString(s))
}

// ---------------------------------------------------------------------------
// ObjString
// ---------------------------------------------------------------------------

// ObjString is an immutable interned string with a cached hash.
// Two ObjStrings from the same heap with equal contents are the same pointer.
type ObjString struct {
	Chars string
	Hash  uint32
}

func (s *ObjString) Type() ObjType  { return ObjTypeString }
func (s *ObjString) String() string { return s.Chars }

// ---------------------------------------------------------------------------
// ObjFunction
// ---------------------------------------------------------------------------

// ObjFunction is a compiled function. A nil Name marks the top-level script.
type ObjFunction struct {
	Arity        int
	UpvalueCount int
	Chunk        *Chunk
	Name         *ObjString
}

func (f *ObjFunction) Type() ObjType { return ObjTypeFunction }

func (f *ObjFunction) String() string {
	if f.Name == nil {
		return "<script>"
	}
	return "<fn " + f.Name.Chars + ">"
}

// DisplayName is the name used in stack traces and disassembly.
func (f *ObjFunction) DisplayName() string {
	if f.Name == nil {
		return "script"
	}
	return f.Name.Chars
}

// ---------------------------------------------------------------------------
// ObjClosure
// ---------------------------------------------------------------------------

// ObjClosure pairs a function with the upvalues it captured.
type ObjClosure struct {
	Function *ObjFunction
	Upvalues []*ObjUpvalue
}

func (c *ObjClosure) Type() ObjType  { return ObjTypeClosure }
func (c *ObjClosure) String() string { return c.Function.String() }

// ---------------------------------------------------------------------------
// ObjUpvalue
// ---------------------------------------------------------------------------

// ObjUpvalue is a captured variable. While open, Location points at a slot
// of the VM value stack; after Close it points at the upvalue's own Closed
// field.
type ObjUpvalue struct {
	Location *Value
	Closed   Value
	Slot     int
	Next     *ObjUpvalue
}

func (u *ObjUpvalue) Type() ObjType  { return ObjTypeUpvalue }
func (u *ObjUpvalue) String() string { return "upvalue" }

// Get returns the current value of the captured variable.
func (u *ObjUpvalue) Get() Value { return *u.Location }

// Set updates the captured variable.
func (u *ObjUpvalue) Set(v Value) { *u.Location = v }

// IsOpen reports whether the upvalue still refers to a stack slot.
func (u *ObjUpvalue) IsOpen() bool { return u.Location != &u.Closed }

// Close moves the variable off the stack into the upvalue.
func (u *ObjUpvalue) Close() {
	u.Closed = *u.Location
	u.Location = &u.Closed
}

// ---------------------------------------------------------------------------
// ObjNative
// ---------------------------------------------------------------------------

// NativeFn is a host function callable from Lox. args holds exactly argCount
// values; the function must not retain the slice.
type NativeFn func(argCount int, args []Value) Value

// ObjNative wraps a host function.
type ObjNative struct {
	Name string
	Fn   NativeFn
}

func (n *ObjNative) Type() ObjType  { return ObjTypeNative }
func (n *ObjNative) String() string { return "<native fn>" }
