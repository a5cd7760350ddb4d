package storage

import (
	"math"
	"testing"

	"github.com/agentic-research/hstore/internal/keycodec"
	"github.com/agentic-research/hstore/internal/ndarray"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDictLeaf_MixedKeys(t *testing.T) {
	d := newTestStore(t, nil)
	require.NoError(t, d.Set("test", map[any]any{"dog": 3.2, 2.3: 1.5}))

	v, err := d.Get("test")
	require.NoError(t, err)
	want := map[keycodec.Key]float64{
		keycodec.String("dog"): 3.2,
		keycodec.Float(2.3):    1.5,
	}
	assert.Equal(t, want, v)
}

func TestDictLeaf_Rejects(t *testing.T) {
	d := newTestStore(t, nil)
	cases := map[string]any{
		"string value": map[string]any{"a": "b"},
		"int key":      map[int]float64{1: 1},
		"bool value":   map[string]bool{"a": true},
		"nil value":    map[string]any{"a": nil},
		"complex key":  map[complex128]float64{1: 1},
		"nan value":    map[string]float64{"a": math.NaN()},
		"nan key":      map[float64]float64{math.NaN(): 1},
		"typed nan":    map[keycodec.Key]float64{keycodec.String("a"): math.NaN()},
	}
	for name, m := range cases {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, d.Set("bad", m), ErrUnsupportedDictEntry)
		})
	}
	assert.False(t, d.Has("bad"))
}

func TestDictLeaf_IntValuesCoerced(t *testing.T) {
	l, err := NewDictLeaf(keycodec.String("d"), map[string]int{"a": 2}, nil)
	require.NoError(t, err)
	assert.Equal(t, map[keycodec.Key]float64{keycodec.String("a"): 2}, l.Value())
}

func TestDictLeaf_Rows(t *testing.T) {
	l, err := NewDictLeaf(keycodec.String("d"), map[any]float64{"b": 1, "a": 2, 3.5: 3, -1.0: 4}, nil)
	require.NoError(t, err)
	rows := l.Rows()
	require.Len(t, rows, 4)
	assert.Equal(t, keycodec.String("a"), rows[0].Key)
	assert.Equal(t, keycodec.String("b"), rows[1].Key)
	assert.Equal(t, keycodec.Float(-1), rows[2].Key)
	assert.Equal(t, keycodec.Float(3.5), rows[3].Key)
}

func TestListLeaf_Value(t *testing.T) {
	d := newTestStore(t, nil)
	require.NoError(t, d.Set("test", []any{1, 2, 3}))
	v, err := d.Get("test")
	require.NoError(t, err)
	assert.Equal(t, []any{int64(1), int64(2), int64(3)}, v)
}

func TestListLeaf_Heterogeneous(t *testing.T) {
	sub := newTestStore(t, nil)
	require.NoError(t, sub.Set("k", 1))

	l, err := NewListLeaf(keycodec.String("l"), []any{
		"s",
		[]float64{1, 2},
		map[string]float64{"a": 1},
		[]any{true},
		sub,
	}, nil)
	require.NoError(t, err)
	require.Equal(t, 5, l.Len())

	vals := l.Value().([]any)
	assert.Equal(t, "s", vals[0])
	assert.Equal(t, []float64{1, 2}, vals[1].(*ndarray.Array).Float64Data())
	assert.Equal(t, map[keycodec.Key]float64{keycodec.String("a"): 1}, vals[2])
	assert.Equal(t, []any{true}, vals[3])
	g, ok := vals[4].(*Group)
	require.True(t, ok)
	assert.Equal(t, ListIndexName(4), g.Name())

	for i, n := range l.Items() {
		assert.Equal(t, ListIndexName(i), n.Name())
	}
}

func TestListLeaf_Append(t *testing.T) {
	l, err := NewListLeaf(keycodec.String("l"), nil, nil)
	require.NoError(t, err)
	require.NoError(t, l.Append(1.5))
	require.NoError(t, l.Append([]int{1}, WithAttrs(Attrs{"x": true})))
	assert.Equal(t, 2, l.Len())

	n, err := l.Item(1)
	require.NoError(t, err)
	assert.Equal(t, ListIndexName(1), n.Name())
	assert.Equal(t, true, n.Attrs()["x"])

	_, err = l.Item(2)
	assert.ErrorIs(t, err, ErrNoSuchNode)
}

func TestListLeaf_SetValueNotSequence(t *testing.T) {
	l, err := NewListLeaf(keycodec.String("l"), nil, nil)
	require.NoError(t, err)
	assert.ErrorIs(t, l.SetValue(3), ErrUnknownDataType)
}

func TestParseListIndex(t *testing.T) {
	i, ok := ParseListIndex(keycodec.String("index_12"))
	assert.True(t, ok)
	assert.Equal(t, 12, i)

	for _, k := range []keycodec.Key{keycodec.String("index_"), keycodec.String("idx_1"), keycodec.Int(1), keycodec.String("index_-1")} {
		_, ok := ParseListIndex(k)
		assert.False(t, ok, k.String())
	}
}

func TestArrayLeaf_SetValue(t *testing.T) {
	arr, err := ndarray.FromValue(1)
	require.NoError(t, err)
	l, err := NewArrayLeaf(keycodec.String("a"), arr, nil)
	require.NoError(t, err)
	require.NoError(t, l.SetValue([][]float64{{1, 2}, {3, 4}}))
	assert.Equal(t, []int{2, 2}, l.Array().Shape())

	assert.ErrorIs(t, l.SetValue(struct{}{}), ErrUnknownDataType)
}
