// Package image serializes compiled Lox programs. An image is a canonical
// CBOR encoding of the top-level function and every function nested in its
// constant pool, stamped with a content hash so equal programs produce equal
// images and corruption is detected on load.
package image

import (
	"errors"
	"fmt"
)

// Magic identifies a glox image.
const Magic = "GLOX"

// Version is the current image format version.
// Increment when making incompatible changes to the format.
const Version uint16 = 1

var (
	// ErrBadMagic is returned when the data is not a glox image.
	ErrBadMagic = errors.New("image: bad magic")

	// ErrVersion is returned for images written by an incompatible version.
	ErrVersion = errors.New("image: unsupported version")

	// ErrChecksum is returned when the stored hash does not match the code.
	ErrChecksum = errors.New("image: checksum mismatch")
)

// ConstKind identifies the kind of a constant pool entry.
type ConstKind uint8

const (
	ConstNil      ConstKind = 0
	ConstBool     ConstKind = 1
	ConstNumber   ConstKind = 2
	ConstString   ConstKind = 3
	ConstFunction ConstKind = 4
)

func (k ConstKind) String() string {
	switch k {
	case ConstNil:
		return "nil"
	case ConstBool:
		return "bool"
	case ConstNumber:
		return "number"
	case ConstString:
		return "string"
	case ConstFunction:
		return "function"
	default:
		return fmt.Sprintf("ConstKind(%d)", k)
	}
}

// Constant is one constant pool entry. Only the field matching Kind is set.
type Constant struct {
	Kind     ConstKind `cbor:"1,keyasint"`
	Bool     bool      `cbor:"2,keyasint,omitempty"`
	Number   float64   `cbor:"3,keyasint,omitempty"`
	String   string    `cbor:"4,keyasint,omitempty"`
	Function *Function `cbor:"5,keyasint,omitempty"`
}

// Function is the serialized form of a compiled function. An empty Name
// marks the top-level script.
type Function struct {
	Name         string     `cbor:"1,keyasint,omitempty"`
	Arity        int        `cbor:"2,keyasint"`
	UpvalueCount int        `cbor:"3,keyasint"`
	Code         []byte     `cbor:"4,keyasint"`
	Lines        []int      `cbor:"5,keyasint"`
	Constants    []Constant `cbor:"6,keyasint,omitempty"`
}

// Image is the top-level envelope.
type Image struct {
	Magic   string   `cbor:"1,keyasint"`
	Version uint16   `cbor:"2,keyasint"`
	Hash    [32]byte `cbor:"3,keyasint"` // sha256 of the encoded Script
	Script  Function `cbor:"4,keyasint"`
}
