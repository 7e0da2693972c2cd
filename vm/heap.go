package vm

// Heap owns every object allocated while compiling and running a program.
// Objects are never freed individually; Free releases them all at once.
//
// The heap also holds the string intern set, so every ObjString it returns
// for a given content is the same pointer.
type Heap struct {
	objects []Object
	strings Table
}

// NewHeap creates an empty heap.
func NewHeap() *Heap {
	return &Heap{}
}

func (h *Heap) track(o Object) {
	h.objects = append(h.objects, o)
}

// CopyString returns the interned string with the given contents,
// allocating it on first use.
func (h *Heap) CopyString(s string) *ObjString {
	hash := HashString(s)
	if interned := h.strings.FindString(s, hash); interned != nil {
		return interned
	}
	return h.allocateString(s, hash)
}

// TakeString interns a string the caller just built, such as the result of
// a concatenation. If an equal string is already interned the new contents
// are dropped and the existing object is returned.
func (h *Heap) TakeString(s string) *ObjString {
	return h.CopyString(s)
}

func (h *Heap) allocateString(s string, hash uint32) *ObjString {
	str := &ObjString{Chars: s, Hash: hash}
	h.track(str)
	h.strings.Set(str, NilValue())
	return str
}

// NewFunction allocates an empty function with a fresh chunk.
func (h *Heap) NewFunction() *ObjFunction {
	fn := &ObjFunction{Chunk: NewChunk()}
	h.track(fn)
	return fn
}

// NewClosure allocates a closure over fn with room for its upvalues.
func (h *Heap) NewClosure(fn *ObjFunction) *ObjClosure {
	c := &ObjClosure{
		Function: fn,
		Upvalues: make([]*ObjUpvalue, fn.UpvalueCount),
	}
	h.track(c)
	return c
}

// NewUpvalue allocates an open upvalue for the stack slot at index.
func (h *Heap) NewUpvalue(slot *Value, index int) *ObjUpvalue {
	u := &ObjUpvalue{Location: slot, Slot: index}
	h.track(u)
	return u
}

// NewNative allocates a native function object.
func (h *Heap) NewNative(name string, fn NativeFn) *ObjNative {
	n := &ObjNative{Name: name, Fn: fn}
	h.track(n)
	return n
}

// Len returns the number of live objects.
func (h *Heap) Len() int {
	return len(h.objects)
}

// Strings returns the number of interned strings.
func (h *Heap) Strings() int {
	return h.strings.Len()
}

// Free releases every object. The heap is empty and usable afterwards.
func (h *Heap) Free() {
	clear(h.objects)
	h.objects = nil
	h.strings = Table{}
}
