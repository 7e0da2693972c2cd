package image

import (
	"crypto/sha256"
	"fmt"
	"os"

	"github.com/chazu/glox/vm"
	"github.com/fxamacker/cbor/v2"
)

// cborEncMode uses canonical mode for deterministic encoding.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("image: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// ---------------------------------------------------------------------------
// Encoding
// ---------------------------------------------------------------------------

// Encode serializes a compiled top-level function.
func Encode(script *vm.ObjFunction) ([]byte, error) {
	img, err := Build(script)
	if err != nil {
		return nil, err
	}
	data, err := cborEncMode.Marshal(img)
	if err != nil {
		return nil, fmt.Errorf("image: marshal: %w", err)
	}
	return data, nil
}

// Build converts a compiled function into its serializable form and stamps
// the content hash.
func Build(script *vm.ObjFunction) (*Image, error) {
	fn, err := fromFunction(script)
	if err != nil {
		return nil, err
	}
	hash, err := hashFunction(fn)
	if err != nil {
		return nil, err
	}
	return &Image{
		Magic:   Magic,
		Version: Version,
		Hash:    hash,
		Script:  *fn,
	}, nil
}

// Hash returns the content hash of a compiled function.
func Hash(script *vm.ObjFunction) ([32]byte, error) {
	fn, err := fromFunction(script)
	if err != nil {
		return [32]byte{}, err
	}
	return hashFunction(fn)
}

func hashFunction(fn *Function) ([32]byte, error) {
	data, err := cborEncMode.Marshal(fn)
	if err != nil {
		return [32]byte{}, fmt.Errorf("image: marshal function: %w", err)
	}
	return sha256.Sum256(data), nil
}

func fromFunction(f *vm.ObjFunction) (*Function, error) {
	out := &Function{
		Arity:        f.Arity,
		UpvalueCount: f.UpvalueCount,
		Code:         f.Chunk.Code,
		Lines:        f.Chunk.Lines,
	}
	if f.Name != nil {
		out.Name = f.Name.Chars
	}
	for i, v := range f.Chunk.Constants {
		c, err := fromValue(v)
		if err != nil {
			return nil, fmt.Errorf("image: %s constant %d: %w", f.DisplayName(), i, err)
		}
		out.Constants = append(out.Constants, c)
	}
	return out, nil
}

func fromValue(v vm.Value) (Constant, error) {
	switch {
	case v.IsNil():
		return Constant{Kind: ConstNil}, nil
	case v.IsBool():
		return Constant{Kind: ConstBool, Bool: v.AsBool()}, nil
	case v.IsNumber():
		return Constant{Kind: ConstNumber, Number: v.AsNumber()}, nil
	case v.IsString():
		return Constant{Kind: ConstString, String: v.AsString().Chars}, nil
	case v.IsFunction():
		fn, err := fromFunction(v.AsFunction())
		if err != nil {
			return Constant{}, err
		}
		return Constant{Kind: ConstFunction, Function: fn}, nil
	}
	return Constant{}, fmt.Errorf("cannot serialize %s value", v.Type())
}

// ---------------------------------------------------------------------------
// Decoding
// ---------------------------------------------------------------------------

// Decode deserializes an image, verifies it and rebuilds the top-level
// function in heap. Strings are interned into heap.
func Decode(data []byte, heap *vm.Heap) (*vm.ObjFunction, error) {
	var img Image
	if err := cbor.Unmarshal(data, &img); err != nil {
		return nil, fmt.Errorf("image: unmarshal: %w", err)
	}
	if img.Magic != Magic {
		return nil, ErrBadMagic
	}
	if img.Version != Version {
		return nil, fmt.Errorf("%w: %d", ErrVersion, img.Version)
	}
	hash, err := hashFunction(&img.Script)
	if err != nil {
		return nil, err
	}
	if hash != img.Hash {
		return nil, ErrChecksum
	}
	if err := Verify(&img.Script); err != nil {
		return nil, err
	}
	return toFunction(&img.Script, heap), nil
}

func toFunction(f *Function, heap *vm.Heap) *vm.ObjFunction {
	fn := heap.NewFunction()
	fn.Arity = f.Arity
	fn.UpvalueCount = f.UpvalueCount
	if f.Name != "" {
		fn.Name = heap.CopyString(f.Name)
	}
	fn.Chunk.Code = append(fn.Chunk.Code, f.Code...)
	fn.Chunk.Lines = append(fn.Chunk.Lines, f.Lines...)
	for _, c := range f.Constants {
		fn.Chunk.Constants = append(fn.Chunk.Constants, toValue(c, heap))
	}
	return fn
}

func toValue(c Constant, heap *vm.Heap) vm.Value {
	switch c.Kind {
	case ConstBool:
		return vm.BoolValue(c.Bool)
	case ConstNumber:
		return vm.NumberValue(c.Number)
	case ConstString:
		return vm.ObjectValue(heap.CopyString(c.String))
	case ConstFunction:
		return vm.ObjectValue(toFunction(c.Function, heap))
	default:
		return vm.NilValue()
	}
}

// ---------------------------------------------------------------------------
// Files
// ---------------------------------------------------------------------------

// WriteFile encodes script and writes it to path.
func WriteFile(path string, script *vm.ObjFunction) error {
	data, err := Encode(script)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("cannot write %s: %w", path, err)
	}
	return nil
}

// ReadFile loads an image from path into heap.
func ReadFile(path string, heap *vm.Heap) (*vm.ObjFunction, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	fn, err := Decode(data, heap)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return fn, nil
}
