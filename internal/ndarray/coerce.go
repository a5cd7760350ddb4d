package ndarray

import (
	"fmt"
	"reflect"
)

// FromValue coerces v into an Array. Scalars become zero-dimensional
// arrays; slices and Go arrays (nested to any depth) become n-dimensional
// arrays provided every level is rectangular. Mixed numeric elements are
// promoted along bool < int64 < float64 < complex128. Strings cannot be
// mixed with numbers.
func FromValue(v any) (*Array, error) {
	switch x := v.(type) {
	case *Array:
		if x == nil {
			return nil, fmt.Errorf("%w: nil array", ErrUnsupported)
		}
		return x.Clone(), nil
	case Array:
		return x.Clone(), nil
	}

	var (
		shape  []int
		leaves []reflect.Value
	)
	if err := walk(reflect.ValueOf(v), 0, &shape, &leaves); err != nil {
		return nil, err
	}

	dtype := Float64 // empty input defaults to float64
	for n, lv := range leaves {
		d, ok := kindDType(lv.Kind())
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnsupported, lv.Type())
		}
		if n == 0 {
			dtype = d
			continue
		}
		if (d == String) != (dtype == String) {
			return nil, fmt.Errorf("%w: strings mixed with numbers", ErrUnsupported)
		}
		if d > dtype {
			dtype = d
		}
	}

	a := &Array{dtype: dtype, shape: shape}
	if a.shape == nil {
		a.shape = []int{}
	}
	switch dtype {
	case Bool:
		a.b = make([]bool, len(leaves))
	case Int64:
		a.i = make([]int64, len(leaves))
	case Float64:
		a.f = make([]float64, len(leaves))
	case Complex128:
		a.c = make([]complex128, len(leaves))
	case String:
		a.s = make([]string, len(leaves))
	}
	for n, lv := range leaves {
		a.set(n, lv)
	}
	return a, nil
}

// walk flattens v into leaves, recording the shape seen at each depth.
func walk(v reflect.Value, depth int, shape *[]int, leaves *[]reflect.Value) error {
	for v.Kind() == reflect.Interface || v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return fmt.Errorf("%w: nil", ErrUnsupported)
		}
		v = v.Elem()
	}
	if !v.IsValid() {
		return fmt.Errorf("%w: nil", ErrUnsupported)
	}

	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		n := v.Len()
		switch {
		case depth == len(*shape):
			if depth > 0 && len(*leaves) > 0 {
				// A sibling already ended in a scalar at this depth.
				return ErrRagged
			}
			*shape = append(*shape, n)
		case (*shape)[depth] != n:
			return ErrRagged
		}
		for j := 0; j < n; j++ {
			if err := walk(v.Index(j), depth+1, shape, leaves); err != nil {
				return err
			}
		}
		return nil
	}

	if depth != len(*shape) {
		return ErrRagged
	}
	*leaves = append(*leaves, v)
	return nil
}

func kindDType(k reflect.Kind) (DType, bool) {
	switch k {
	case reflect.Bool:
		return Bool, true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return Int64, true
	case reflect.Float32, reflect.Float64:
		return Float64, true
	case reflect.Complex64, reflect.Complex128:
		return Complex128, true
	case reflect.String:
		return String, true
	}
	return 0, false
}

func (a *Array) set(n int, v reflect.Value) {
	switch a.dtype {
	case Bool:
		a.b[n] = v.Bool()
	case Int64:
		a.i[n] = toInt(v)
	case Float64:
		a.f[n] = toFloat(v)
	case Complex128:
		switch v.Kind() {
		case reflect.Complex64, reflect.Complex128:
			a.c[n] = v.Complex()
		default:
			a.c[n] = complex(toFloat(v), 0)
		}
	case String:
		a.s[n] = v.String()
	}
}

func toInt(v reflect.Value) int64 {
	switch v.Kind() {
	case reflect.Bool:
		if v.Bool() {
			return 1
		}
		return 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return int64(v.Uint())
	}
	return v.Int()
}

func toFloat(v reflect.Value) float64 {
	switch v.Kind() {
	case reflect.Float32, reflect.Float64:
		return v.Float()
	}
	return float64(toInt(v))
}

// IsArrayLike reports whether v is an Array or a (nested) typed Go slice
// whose elements are numbers or bools. []any and string slices are not
// array-like; they are ordinary sequences.
func IsArrayLike(v any) bool {
	switch v.(type) {
	case *Array, Array:
		return true
	}
	t := reflect.TypeOf(v)
	if t == nil {
		return false
	}
	depth := 0
	for t.Kind() == reflect.Slice || t.Kind() == reflect.Array {
		t = t.Elem()
		depth++
	}
	if depth == 0 {
		return false
	}
	d, ok := kindDType(t.Kind())
	return ok && d != String
}
