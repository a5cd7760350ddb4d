package storage

import (
	"math"
	"testing"

	"github.com/agentic-research/hstore/internal/keycodec"
	"github.com/agentic-research/hstore/internal/ndarray"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, attrs Attrs) *Group {
	t.Helper()
	d, err := New("Test", attrs)
	require.NoError(t, err)
	return d
}

func TestGroup_SetGet(t *testing.T) {
	d := newTestStore(t, nil)
	require.NoError(t, d.Set("cat", 1))
	require.NoError(t, d.Set("dog", "test"))
	require.NoError(t, d.Set(2.5, 3.6))

	v, err := d.Get("cat")
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	v, err = d.Get("dog")
	require.NoError(t, err)
	assert.Equal(t, "test", v)

	v, err = d.Get(2.5)
	require.NoError(t, err)
	assert.Equal(t, 3.6, v)

	_, err = d.Get("2.5")
	assert.ErrorIs(t, err, ErrNoSuchLeaf)
}

func TestGroup_ArrayValue(t *testing.T) {
	d := newTestStore(t, nil)
	require.NoError(t, d.Set("test", []int{1, 2, 3}))

	v, err := d.Get("test")
	require.NoError(t, err)
	arr, ok := v.(*ndarray.Array)
	require.True(t, ok)
	assert.Equal(t, []any{int64(1), int64(2), int64(3)}, arr.ToList())

	// The returned array is a copy.
	arr.Int64Data()[0] = 100
	v, _ = d.Get("test")
	assert.Equal(t, int64(1), v.(*ndarray.Array).Int64Data()[0])
}

func TestGroup_DictSurfaceLeavesOnly(t *testing.T) {
	d := newTestStore(t, nil)
	require.NoError(t, d.Set("x", 1))
	require.NoError(t, d.Set("u", 2))
	_, err := d.Group("sub", WithCreate(true))
	require.NoError(t, err)

	assert.Equal(t, 2, d.Len())
	assert.ElementsMatch(t, []keycodec.Key{keycodec.String("x"), keycodec.String("u")}, d.Keys())
	assert.True(t, d.Has("x"))
	assert.False(t, d.Has("sub"))

	var seen []keycodec.Key
	for k := range d.All() {
		seen = append(seen, k)
	}
	assert.Equal(t, []keycodec.Key{keycodec.String("x"), keycodec.String("u")}, seen)

	_, err = d.Get("sub")
	assert.ErrorIs(t, err, ErrNoSuchLeaf)
}

func TestGroup_Pop(t *testing.T) {
	d := newTestStore(t, nil)
	require.NoError(t, d.Set("x", 1))
	require.NoError(t, d.Set("y", 2))

	v, err := d.Pop("x")
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
	assert.Equal(t, 1, d.Len())
	assert.NotContains(t, d.Leaves(), keycodec.String("x"))

	_, err = d.Pop("x")
	assert.ErrorIs(t, err, ErrNoSuchLeaf)
}

func TestGroup_EncodedNumericNames(t *testing.T) {
	d := newTestStore(t, nil)
	floatName := keycodec.Encode(keycodec.Float(2.5))
	require.NoError(t, d.Set(floatName, 1))
	require.NoError(t, d.SetLeaf("long(7)", 2, true))

	v, err := d.Get(2.5)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	v, err = d.Get(floatName)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	v, err = d.Get("long(7)")
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)
	assert.True(t, d.Has(7))
	assert.Equal(t, []keycodec.Key{keycodec.Float(2.5), keycodec.Int(7)}, d.Keys())

	_, err = d.RemoveChild("long(7)")
	require.NoError(t, err)
	assert.False(t, d.Has(7))

	v, err = d.Pop(floatName)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
	assert.Zero(t, d.Len())

	err = d.Set("long(x)", 1)
	assert.ErrorIs(t, err, ErrInvalidNodeName)
	assert.ErrorIs(t, err, keycodec.ErrUnrecognizedKeyEncoding)
}

func TestGroup_InvalidNames(t *testing.T) {
	d := newTestStore(t, nil)
	for _, name := range []string{"", "1abc", "has space", "dash-ed", "_lead"} {
		err := d.AddChild(name, 1)
		if name == "" {
			// Empty names only merge groups; for plain values they are invalid.
			assert.ErrorIs(t, err, ErrInvalidNodeName)
			continue
		}
		assert.ErrorIs(t, err, ErrInvalidNodeName, name)
	}
	assert.NoError(t, d.AddChild(12, 1))
	assert.NoError(t, d.AddChild(complex(1, 2), 1))
	assert.Error(t, d.AddChild(struct{}{}, 1))
}

func TestGroup_AttrsReservedType(t *testing.T) {
	d := newTestStore(t, nil)
	require.NoError(t, d.SetAttrs(Attrs{"cat": "cat"}))
	assert.Equal(t, "cat", d.Attrs()["cat"])

	err := d.SetAttrs(Attrs{"type": "data_array"})
	assert.ErrorIs(t, err, ErrReservedAttribute)
	assert.NotContains(t, d.Attrs(), "type")

	err = d.SetAttrs(Attrs{"bad": []int{1}})
	assert.ErrorIs(t, err, ErrInvalidAttribute)

	// Returned attrs are a copy.
	a := d.Attrs()
	a["cat"] = "dog"
	assert.Equal(t, "cat", d.Attrs()["cat"])
}

func TestGroup_AttrsNormalized(t *testing.T) {
	d := newTestStore(t, Attrs{"n": 3, "f": float32(0.5), "u": uint64(9)})
	assert.Equal(t, int64(3), d.Attrs()["n"])
	assert.Equal(t, 0.5, d.Attrs()["f"])
	assert.Equal(t, int64(9), d.Attrs()["u"])

	err := d.SetAttrs(Attrs{"big": uint64(math.MaxUint64)})
	assert.ErrorIs(t, err, ErrInvalidAttribute)
	assert.NotContains(t, d.Attrs(), "big")
}

func TestGroup_MergeEmptyName(t *testing.T) {
	src := newTestStore(t, nil)
	require.NoError(t, src.Set("a", 1))
	require.NoError(t, src.SetLeaf("g/b", 2, true))

	d := newTestStore(t, nil)
	require.NoError(t, d.Set("c", 3))
	require.NoError(t, d.AddChild("", src))

	assert.ElementsMatch(t, []keycodec.Key{keycodec.String("c"), keycodec.String("a")}, d.Leaves())
	assert.Equal(t, []keycodec.Key{keycodec.String("g")}, d.Groups())

	// Deep copy: mutating the source does not reach the merged tree.
	require.NoError(t, src.SetLeaf("g/b", 20, true))
	v, err := d.Leaf("g/b")
	require.NoError(t, err)
	assert.Equal(t, int64(2), unwrap(v))
}

func TestGroup_AssignGroupValueCopies(t *testing.T) {
	src := newTestStore(t, Attrs{"origin": "src"})
	require.NoError(t, src.Set("a", 1))

	d := newTestStore(t, nil)
	require.NoError(t, d.Set("copy", src))
	sub, err := d.Group("copy")
	require.NoError(t, err)
	assert.Equal(t, keycodec.String("copy"), sub.Name())
	assert.Equal(t, "src", sub.Attrs()["origin"])

	require.NoError(t, src.Set("a", 5))
	v, err := sub.Get("a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
}

func TestGroup_ReservedAccessorWarning(t *testing.T) {
	var warnings []error
	orig := WarningHandler
	WarningHandler = func(err error) { warnings = append(warnings, err) }
	t.Cleanup(func() { WarningHandler = orig })

	d := newTestStore(t, nil)
	_, err := d.Group("leaves", WithCreate(true))
	require.NoError(t, err)
	require.NoError(t, d.Set("keys", 1)) // leaves never warn

	require.Len(t, warnings, 1)
	var w *InaccessibleGroupNodeWarning
	require.ErrorAs(t, warnings[0], &w)
	assert.Equal(t, "leaves", w.Name)

	// Still reachable by path.
	_, err = d.Group("leaves")
	assert.NoError(t, err)
}

func TestGroup_String(t *testing.T) {
	d := newTestStore(t, Attrs{AutoNodesAttr: true})
	require.NoError(t, d.Set("blast", "tet"))
	x, err := d.Child("x")
	require.NoError(t, err)
	require.NoError(t, x.Set("cat", 1))
	y, err := d.Child("y")
	require.NoError(t, err)
	require.NoError(t, y.Set("dog", 2))
	z, err := x.Child("z")
	require.NoError(t, err)
	require.NoError(t, z.Set("asd", 1))

	want := "Storage:Test\n|+x\n||+z\n|||-asd\n||-cat\n|+y\n||-dog\n|-blast"
	assert.Equal(t, want, d.String())
}

func TestGroup_CloneIndependent(t *testing.T) {
	d := newTestStore(t, nil)
	require.NoError(t, d.SetLeaf("a/b", []float64{1, 2}, true))
	c := d.Clone()
	require.NoError(t, c.SetLeaf("a/b", []float64{9}, true))
	require.NoError(t, c.SetAttrs(Attrs{"k": 1}))

	v, err := d.Leaf("a/b")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, v.Value().(*ndarray.Array).Float64Data())
	assert.NotContains(t, d.Attrs(), "k")
}
