// Package ndarray is a small dense n-dimensional array used for the array
// leaves of a store. It holds one flat, row-major buffer of a single dtype
// plus a shape, and knows how to coerce Go values into that form and how to
// move the buffer to and from raw little-endian bytes.
package ndarray

import (
	"errors"
	"fmt"
	"math"
	"slices"
)

var (
	// ErrUnsupported is returned when a value has no array representation.
	ErrUnsupported = errors.New("unsupported array element")

	// ErrRagged is returned for nested slices whose lengths disagree.
	ErrRagged = errors.New("ragged nested sequence")

	// ErrShape is returned when a buffer does not match the declared shape.
	ErrShape = errors.New("shape mismatch")
)

// DType is the element type of an Array.
type DType uint8

const (
	Bool DType = iota
	Int64
	Float64
	Complex128
	String
)

func (d DType) String() string {
	switch d {
	case Bool:
		return "bool"
	case Int64:
		return "int64"
	case Float64:
		return "float64"
	case Complex128:
		return "complex128"
	case String:
		return "string"
	default:
		return fmt.Sprintf("dtype(%d)", uint8(d))
	}
}

// ParseDType is the inverse of DType.String.
func ParseDType(s string) (DType, error) {
	switch s {
	case "bool":
		return Bool, nil
	case "int64":
		return Int64, nil
	case "float64":
		return Float64, nil
	case "complex128":
		return Complex128, nil
	case "string":
		return String, nil
	}
	return 0, fmt.Errorf("%w: dtype %q", ErrUnsupported, s)
}

// Array is a dense row-major array. Exactly one of the typed buffers is
// populated, selected by dtype.
type Array struct {
	dtype DType
	shape []int
	b     []bool
	i     []int64
	f     []float64
	c     []complex128
	s     []string
}

// Float64s builds an array over data with the given shape. A nil shape
// means a one-dimensional array of len(data).
func Float64s(shape []int, data []float64) (*Array, error) {
	a := &Array{dtype: Float64, f: data}
	return a.withShape(shape, len(data))
}

// Int64s builds an int64 array; see Float64s.
func Int64s(shape []int, data []int64) (*Array, error) {
	a := &Array{dtype: Int64, i: data}
	return a.withShape(shape, len(data))
}

// Complex128s builds a complex array; see Float64s.
func Complex128s(shape []int, data []complex128) (*Array, error) {
	a := &Array{dtype: Complex128, c: data}
	return a.withShape(shape, len(data))
}

// Bools builds a bool array; see Float64s.
func Bools(shape []int, data []bool) (*Array, error) {
	a := &Array{dtype: Bool, b: data}
	return a.withShape(shape, len(data))
}

// Strings builds a string array; see Float64s.
func Strings(shape []int, data []string) (*Array, error) {
	a := &Array{dtype: String, s: data}
	return a.withShape(shape, len(data))
}

func (a *Array) withShape(shape []int, n int) (*Array, error) {
	if shape == nil {
		shape = []int{n}
	}
	if product(shape) != n {
		return nil, fmt.Errorf("%w: shape %v holds %d elements, got %d", ErrShape, shape, product(shape), n)
	}
	a.shape = slices.Clone(shape)
	return a, nil
}

// Scalar returns a zero-dimensional array holding v.
func Scalar(v any) (*Array, error) {
	a, err := FromValue(v)
	if err != nil {
		return nil, err
	}
	if a.Ndim() != 0 {
		return nil, fmt.Errorf("%w: %T is not a scalar", ErrUnsupported, v)
	}
	return a, nil
}

func (a *Array) DType() DType { return a.dtype }

// Shape returns a copy of the array's dimensions.
func (a *Array) Shape() []int { return slices.Clone(a.shape) }

func (a *Array) Ndim() int { return len(a.shape) }

// Size is the total number of elements.
func (a *Array) Size() int { return product(a.shape) }

// Typed views onto the flat buffer. Each returns nil unless the array has
// the matching dtype. The returned slice aliases the array.
func (a *Array) Float64Data() []float64       { return a.f }
func (a *Array) Int64Data() []int64           { return a.i }
func (a *Array) Complex128Data() []complex128 { return a.c }
func (a *Array) BoolData() []bool             { return a.b }
func (a *Array) StringData() []string         { return a.s }

// At returns the element at flat index idx as a Go value.
func (a *Array) At(idx int) any {
	switch a.dtype {
	case Bool:
		return a.b[idx]
	case Int64:
		return a.i[idx]
	case Float64:
		return a.f[idx]
	case Complex128:
		return a.c[idx]
	default:
		return a.s[idx]
	}
}

// Item returns the only element of a zero-dimensional or single-element
// array.
func (a *Array) Item() (any, bool) {
	if a.Size() != 1 {
		return nil, false
	}
	return a.At(0), true
}

// ToList converts the array into nested []any slices (or a bare element for
// zero-dimensional arrays).
func (a *Array) ToList() any {
	if a.Ndim() == 0 {
		return a.At(0)
	}
	idx := 0
	var build func(dim int) []any
	build = func(dim int) []any {
		out := make([]any, a.shape[dim])
		for j := range out {
			if dim == len(a.shape)-1 {
				out[j] = a.At(idx)
				idx++
			} else {
				out[j] = build(dim + 1)
			}
		}
		return out
	}
	return build(0)
}

// Clone returns a deep copy.
func (a *Array) Clone() *Array {
	return &Array{
		dtype: a.dtype,
		shape: slices.Clone(a.shape),
		b:     slices.Clone(a.b),
		i:     slices.Clone(a.i),
		f:     slices.Clone(a.f),
		c:     slices.Clone(a.c),
		s:     slices.Clone(a.s),
	}
}

// Equal reports whether a and o share dtype, shape and elements. NaNs in
// matching positions compare equal.
func (a *Array) Equal(o *Array) bool {
	if a == nil || o == nil {
		return a == o
	}
	if a.dtype != o.dtype || !slices.Equal(a.shape, o.shape) {
		return false
	}
	switch a.dtype {
	case Bool:
		return slices.Equal(a.b, o.b)
	case Int64:
		return slices.Equal(a.i, o.i)
	case Float64:
		return slices.EqualFunc(a.f, o.f, floatEq)
	case Complex128:
		return slices.EqualFunc(a.c, o.c, func(x, y complex128) bool {
			return floatEq(real(x), real(y)) && floatEq(imag(x), imag(y))
		})
	default:
		return slices.Equal(a.s, o.s)
	}
}

func (a *Array) String() string {
	return fmt.Sprintf("array(%v, dtype=%s)", a.ToList(), a.dtype)
}

func floatEq(x, y float64) bool {
	return x == y || (math.IsNaN(x) && math.IsNaN(y))
}

func product(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}
