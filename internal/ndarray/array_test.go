package ndarray

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromValue_Scalars(t *testing.T) {
	cases := []struct {
		in    any
		dtype DType
		item  any
	}{
		{true, Bool, true},
		{7, Int64, int64(7)},
		{uint16(7), Int64, int64(7)},
		{2.5, Float64, 2.5},
		{float32(0.5), Float64, 0.5},
		{complex(1, 2), Complex128, complex(1, 2)},
		{"tet", String, "tet"},
	}
	for _, c := range cases {
		a, err := FromValue(c.in)
		require.NoError(t, err)
		assert.Equal(t, c.dtype, a.DType())
		assert.Equal(t, 0, a.Ndim())
		item, ok := a.Item()
		require.True(t, ok)
		assert.Equal(t, c.item, item)
	}
}

func TestFromValue_Nested(t *testing.T) {
	a, err := FromValue([][]int{{1, 2, 3}, {4, 5, 6}})
	require.NoError(t, err)
	assert.Equal(t, Int64, a.DType())
	assert.Equal(t, []int{2, 3}, a.Shape())
	assert.Equal(t, []int64{1, 2, 3, 4, 5, 6}, a.Int64Data())
	assert.Equal(t, []any{[]any{int64(1), int64(2), int64(3)}, []any{int64(4), int64(5), int64(6)}}, a.ToList())
}

func TestFromValue_Promotion(t *testing.T) {
	a, err := FromValue([]any{1, 2.5, true})
	require.NoError(t, err)
	assert.Equal(t, Float64, a.DType())
	assert.Equal(t, []float64{1, 2.5, 1}, a.Float64Data())

	a, err = FromValue([]any{1, complex(0, 1)})
	require.NoError(t, err)
	assert.Equal(t, []complex128{1, complex(0, 1)}, a.Complex128Data())
}

func TestFromValue_Errors(t *testing.T) {
	_, err := FromValue([][]int{{1, 2}, {3}})
	assert.ErrorIs(t, err, ErrRagged)

	_, err = FromValue([]any{1, []int{2}})
	assert.ErrorIs(t, err, ErrRagged)

	_, err = FromValue([]any{1, "a"})
	assert.ErrorIs(t, err, ErrUnsupported)

	_, err = FromValue(struct{ X int }{1})
	assert.ErrorIs(t, err, ErrUnsupported)

	_, err = FromValue(nil)
	assert.ErrorIs(t, err, ErrUnsupported)

	_, err = FromValue(map[string]int{"a": 1})
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestFromValue_Empty(t *testing.T) {
	a, err := FromValue([]int{})
	require.NoError(t, err)
	assert.Equal(t, []int{0}, a.Shape())
	assert.Equal(t, 0, a.Size())
}

func TestIsArrayLike(t *testing.T) {
	assert.True(t, IsArrayLike([]float64{1}))
	assert.True(t, IsArrayLike([][]int{{1}}))
	assert.True(t, IsArrayLike([3]bool{}))
	assert.True(t, IsArrayLike(&Array{}))
	assert.False(t, IsArrayLike([]any{1, 2}))
	assert.False(t, IsArrayLike([]string{"a"}))
	assert.False(t, IsArrayLike(1.5))
	assert.False(t, IsArrayLike(nil))
}

func TestBinary_RoundTrip(t *testing.T) {
	inputs := []any{
		[][]float64{{1.5, math.Inf(-1)}, {math.NaN(), -0.0}},
		[]int64{math.MaxInt64, -3, 0},
		[]complex128{complex(1, -1), complex(math.Pi, 0)},
		[]bool{true, false, true},
		[]string{"", "dog", "ünïcode"},
		42,
	}
	for _, in := range inputs {
		a, err := FromValue(in)
		require.NoError(t, err)
		buf, err := a.MarshalBinary()
		require.NoError(t, err)
		b, err := UnmarshalArray(a.DType(), a.Shape(), buf)
		require.NoError(t, err)
		assert.True(t, a.Equal(b), "%v != %v", a, b)
	}
}

func TestUnmarshalArray_ShapeMismatch(t *testing.T) {
	_, err := UnmarshalArray(Float64, []int{3}, make([]byte, 16))
	assert.ErrorIs(t, err, ErrShape)

	_, err = UnmarshalArray(String, []int{2}, []byte{1, 0, 0, 0, 'a'})
	assert.ErrorIs(t, err, ErrShape)
}

func TestClone_Independent(t *testing.T) {
	a, err := Float64s(nil, []float64{1, 2})
	require.NoError(t, err)
	b := a.Clone()
	b.Float64Data()[0] = 99
	assert.Equal(t, 1.0, a.Float64Data()[0])
	assert.False(t, a.Equal(b))
}

func TestDType_Parse(t *testing.T) {
	for _, d := range []DType{Bool, Int64, Float64, Complex128, String} {
		got, err := ParseDType(d.String())
		require.NoError(t, err)
		assert.Equal(t, d, got)
	}
	_, err := ParseDType("float16")
	assert.ErrorIs(t, err, ErrUnsupported)
}
