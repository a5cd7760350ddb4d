package ndarray

import (
	"encoding/binary"
	"fmt"
	"math"
)

// MarshalBinary encodes the flat buffer as little-endian bytes. Bools take
// one byte each and strings are written as a uint32 length followed by the
// bytes. Shape and dtype are not part of the buffer; callers store them
// alongside it.
func (a *Array) MarshalBinary() ([]byte, error) {
	n := a.Size()
	switch a.dtype {
	case Bool:
		buf := make([]byte, n)
		for j, v := range a.b {
			if v {
				buf[j] = 1
			}
		}
		return buf, nil
	case Int64:
		buf := make([]byte, 8*n)
		for j, v := range a.i {
			binary.LittleEndian.PutUint64(buf[8*j:], uint64(v))
		}
		return buf, nil
	case Float64:
		buf := make([]byte, 8*n)
		for j, v := range a.f {
			binary.LittleEndian.PutUint64(buf[8*j:], math.Float64bits(v))
		}
		return buf, nil
	case Complex128:
		buf := make([]byte, 16*n)
		for j, v := range a.c {
			binary.LittleEndian.PutUint64(buf[16*j:], math.Float64bits(real(v)))
			binary.LittleEndian.PutUint64(buf[16*j+8:], math.Float64bits(imag(v)))
		}
		return buf, nil
	case String:
		var buf []byte
		for _, v := range a.s {
			buf = binary.LittleEndian.AppendUint32(buf, uint32(len(v)))
			buf = append(buf, v...)
		}
		return buf, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupported, a.dtype)
}

// UnmarshalArray rebuilds an array from the output of MarshalBinary.
func UnmarshalArray(dtype DType, shape []int, buf []byte) (*Array, error) {
	if shape == nil {
		shape = []int{}
	}
	n := product(shape)
	width := map[DType]int{Bool: 1, Int64: 8, Float64: 8, Complex128: 16}
	if w, ok := width[dtype]; ok && len(buf) != w*n {
		return nil, fmt.Errorf("%w: %d bytes for %d %s elements", ErrShape, len(buf), n, dtype)
	}

	switch dtype {
	case Bool:
		data := make([]bool, n)
		for j := range data {
			data[j] = buf[j] != 0
		}
		return Bools(shape, data)
	case Int64:
		data := make([]int64, n)
		for j := range data {
			data[j] = int64(binary.LittleEndian.Uint64(buf[8*j:]))
		}
		return Int64s(shape, data)
	case Float64:
		data := make([]float64, n)
		for j := range data {
			data[j] = math.Float64frombits(binary.LittleEndian.Uint64(buf[8*j:]))
		}
		return Float64s(shape, data)
	case Complex128:
		data := make([]complex128, n)
		for j := range data {
			re := math.Float64frombits(binary.LittleEndian.Uint64(buf[16*j:]))
			im := math.Float64frombits(binary.LittleEndian.Uint64(buf[16*j+8:]))
			data[j] = complex(re, im)
		}
		return Complex128s(shape, data)
	case String:
		data := make([]string, 0, n)
		for len(buf) > 0 {
			if len(buf) < 4 {
				return nil, fmt.Errorf("%w: truncated string length", ErrShape)
			}
			l := int(binary.LittleEndian.Uint32(buf))
			buf = buf[4:]
			if len(buf) < l {
				return nil, fmt.Errorf("%w: truncated string", ErrShape)
			}
			data = append(data, string(buf[:l]))
			buf = buf[l:]
		}
		return Strings(shape, data)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupported, dtype)
}
