package vm

import (
	"math"
	"strconv"
)

// ValueType discriminates the variants of a Value.
type ValueType byte

const (
	ValNil ValueType = iota
	ValBool
	ValNumber
	ValObject
)

var valueTypeNames = map[ValueType]string{
	ValNil:    "nil",
	ValBool:   "bool",
	ValNumber: "number",
	ValObject: "object",
}

// String returns the name of the value type.
func (t ValueType) String() string {
	if name, ok := valueTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// Value is a Lox value: nil, a boolean, a double precision number or a
// reference to a heap object.
//
// Values are small and copied freely. Object values compare by identity, so
// two Values referring to the same interned string are equal.
type Value struct {
	typ ValueType
	b   bool
	num float64
	obj Object
}

// ---------------------------------------------------------------------------
// Constructors
// ---------------------------------------------------------------------------

// NilValue returns the nil value.
func NilValue() Value {
	return Value{typ: ValNil}
}

// BoolValue wraps a Go bool.
func BoolValue(b bool) Value {
	return Value{typ: ValBool, b: b}
}

// NumberValue wraps a float64.
func NumberValue(n float64) Value {
	return Value{typ: ValNumber, num: n}
}

// ObjectValue wraps a heap object.
func ObjectValue(o Object) Value {
	return Value{typ: ValObject, obj: o}
}

// ---------------------------------------------------------------------------
// Type checking
// ---------------------------------------------------------------------------

// Type returns the variant tag of v.
func (v Value) Type() ValueType { return v.typ }

func (v Value) IsNil() bool    { return v.typ == ValNil }
func (v Value) IsBool() bool   { return v.typ == ValBool }
func (v Value) IsNumber() bool { return v.typ == ValNumber }
func (v Value) IsObject() bool { return v.typ == ValObject }

// IsObjType reports whether v holds an object of the given type.
func (v Value) IsObjType(t ObjType) bool {
	return v.typ == ValObject && v.obj.Type() == t
}

func (v Value) IsString() bool   { return v.IsObjType(ObjTypeString) }
func (v Value) IsFunction() bool { return v.IsObjType(ObjTypeFunction) }
func (v Value) IsClosure() bool  { return v.IsObjType(ObjTypeClosure) }
func (v Value) IsNative() bool   { return v.IsObjType(ObjTypeNative) }

// ---------------------------------------------------------------------------
// Accessors
// ---------------------------------------------------------------------------

// AsBool returns the boolean payload. It is false for non-bool values.
func (v Value) AsBool() bool { return v.b }

// AsNumber returns the numeric payload. It is zero for non-number values.
func (v Value) AsNumber() float64 { return v.num }

// AsObject returns the object payload or nil.
func (v Value) AsObject() Object { return v.obj }

// AsString returns the string object, or nil if v is not a string.
func (v Value) AsString() *ObjString {
	s, _ := v.obj.(*ObjString)
	return s
}

// AsFunction returns the function object, or nil if v is not a function.
func (v Value) AsFunction() *ObjFunction {
	f, _ := v.obj.(*ObjFunction)
	return f
}

// AsClosure returns the closure object, or nil if v is not a closure.
func (v Value) AsClosure() *ObjClosure {
	c, _ := v.obj.(*ObjClosure)
	return c
}

// AsNative returns the native object, or nil if v is not a native.
func (v Value) AsNative() *ObjNative {
	n, _ := v.obj.(*ObjNative)
	return n
}

// ---------------------------------------------------------------------------
// Semantics
// ---------------------------------------------------------------------------

// IsFalsey reports whether v is treated as false in a condition.
// Only nil and false are falsey.
func IsFalsey(v Value) bool {
	return v.typ == ValNil || (v.typ == ValBool && !v.b)
}

// ValuesEqual implements the == operator. Values of different types are
// never equal. Numbers use IEEE comparison, so NaN is not equal to itself.
func ValuesEqual(a, b Value) bool {
	if a.typ != b.typ {
		return false
	}
	switch a.typ {
	case ValNil:
		return true
	case ValBool:
		return a.b == b.b
	case ValNumber:
		return a.num == b.num
	case ValObject:
		return a.obj == b.obj
	}
	return false
}

// String implements fmt.Stringer using the print representation.
func (v Value) String() string {
	return FormatValue(v)
}

// FormatValue returns the text the print statement writes for v.
func FormatValue(v Value) string {
	switch v.typ {
	case ValNil:
		return "nil"
	case ValBool:
		if v.b {
			return "true"
		}
		return "false"
	case ValNumber:
		return FormatNumber(v.num)
	case ValObject:
		return v.obj.String()
	}
	return "<unknown>"
}

// FormatNumber renders a number as the shortest decimal that round-trips.
// Integral values print without a fraction. Magnitudes outside
// [1e-7, 1e21) switch to exponent form.
func FormatNumber(n float64) string {
	switch {
	case math.IsNaN(n):
		return "nan"
	case math.IsInf(n, 1):
		return "inf"
	case math.IsInf(n, -1):
		return "-inf"
	case n == 0:
		if math.Signbit(n) {
			return "-0"
		}
		return "0"
	}
	abs := math.Abs(n)
	if abs >= 1e-7 && abs < 1e21 {
		return strconv.FormatFloat(n, 'f', -1, 64)
	}
	return strconv.FormatFloat(n, 'e', -1, 64)
}
