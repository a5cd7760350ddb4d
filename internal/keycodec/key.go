package keycodec

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

// ErrInvalidKey is returned by KeyOf for Go values that cannot name a node.
var ErrInvalidKey = errors.New("invalid key type")

// Kind identifies which member of the key union a Key holds.
type Kind uint8

const (
	KindString Kind = iota
	KindInt
	KindFloat
	KindComplex
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindComplex:
		return "complex"
	default:
		return "unknown"
	}
}

// Key is a node name: a string, an integer, a float or a complex number.
// Keys are comparable and can be used directly as map keys.
type Key struct {
	kind Kind
	s    string
	i    int64
	c    complex128 // float keys use the real part only
}

func String(s string) Key      { return Key{kind: KindString, s: s} }
func Int(i int64) Key          { return Key{kind: KindInt, i: i} }
func Float(f float64) Key      { return Key{kind: KindFloat, c: complex(f, 0)} }
func Complex(c complex128) Key { return Key{kind: KindComplex, c: c} }

// KeyOf converts a Go value into a Key.
func KeyOf(v any) (Key, error) {
	switch x := v.(type) {
	case Key:
		return x, nil
	case string:
		return String(x), nil
	case int:
		return Int(int64(x)), nil
	case int8:
		return Int(int64(x)), nil
	case int16:
		return Int(int64(x)), nil
	case int32:
		return Int(int64(x)), nil
	case int64:
		return Int(x), nil
	case uint:
		return uintKey(uint64(x))
	case uint8:
		return Int(int64(x)), nil
	case uint16:
		return Int(int64(x)), nil
	case uint32:
		return Int(int64(x)), nil
	case uint64:
		return uintKey(x)
	case float32:
		return Float(float64(x)), nil
	case float64:
		return Float(x), nil
	case complex64:
		return Complex(complex128(x)), nil
	case complex128:
		return Complex(x), nil
	}
	return Key{}, fmt.Errorf("%w: %T", ErrInvalidKey, v)
}

func uintKey(u uint64) (Key, error) {
	if u > math.MaxInt64 {
		return Key{}, fmt.Errorf("%w: %d overflows int64", ErrInvalidKey, u)
	}
	return Int(int64(u)), nil
}

func (k Key) Kind() Kind { return k.kind }

// IsString reports whether the key is a string key.
func (k Key) IsString() bool { return k.kind == KindString }

// Str returns the string payload; empty for non-string keys.
func (k Key) Str() string { return k.s }

// IntValue returns the integer payload.
func (k Key) IntValue() int64 { return k.i }

// FloatValue returns the float payload.
func (k Key) FloatValue() float64 { return real(k.c) }

// ComplexValue returns the complex payload.
func (k Key) ComplexValue() complex128 { return k.c }

// Value returns the key as a plain Go value.
func (k Key) Value() any {
	switch k.kind {
	case KindInt:
		return k.i
	case KindFloat:
		return real(k.c)
	case KindComplex:
		return k.c
	default:
		return k.s
	}
}

// IsZero reports whether k is the empty string key.
func (k Key) IsZero() bool { return k == Key{} }

// String renders the key for display. Numeric keys use their shortest
// decimal form; use Encode for the lossless on-disk form.
func (k Key) String() string {
	switch k.kind {
	case KindInt:
		return strconv.FormatInt(k.i, 10)
	case KindFloat:
		return strconv.FormatFloat(real(k.c), 'g', -1, 64)
	case KindComplex:
		return strconv.FormatComplex(k.c, 'g', -1, 128)
	default:
		return k.s
	}
}
