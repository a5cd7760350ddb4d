package export

import (
	"testing"

	"github.com/agentic-research/hstore/internal/keycodec"
	"github.com/agentic-research/hstore/internal/ndarray"
	"github.com/agentic-research/hstore/internal/storage"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/goccy/go-yaml"
	"github.com/ohler55/ojg/oj"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTree(t *testing.T) *storage.Group {
	t.Helper()
	root, err := storage.New("root", nil)
	require.NoError(t, err)
	require.NoError(t, root.Set("a", 1))
	require.NoError(t, root.Set("v", []float64{1.5, 2.5}))
	require.NoError(t, root.SetLeaf("g/d", map[any]float64{"x": 1.5, 2.5: 2.25}, true))
	require.NoError(t, root.SetLeaf("g/h/l", []any{"s", 1}, true))
	_, err = root.Group("empty", storage.WithCreate(true))
	require.NoError(t, err)
	return root
}

func TestFlatten(t *testing.T) {
	root := sampleTree(t)
	tables := Flatten(root, "out")

	var names []string
	for _, tb := range tables {
		names = append(names, tb.Name)
	}
	assert.Equal(t, []string{"out.root", "out.root.g", "out.root.g.h", "out.root.empty"}, names)

	require.Len(t, tables[0].Entries, 2)
	assert.Equal(t, keycodec.String("a"), tables[0].Entries[0].Key)
	assert.Equal(t, int64(1), tables[0].Entries[0].Value)
	assert.IsType(t, &ndarray.Array{}, tables[0].Entries[1].Value)
	assert.Empty(t, tables[3].Entries)
}

func TestFlatten_SkipsEmptySegments(t *testing.T) {
	root, err := storage.New("", nil)
	require.NoError(t, err)
	require.NoError(t, root.SetLeaf("g/a", 1, true))

	tables := Flatten(root, "")
	require.Len(t, tables, 2)
	assert.Equal(t, "", tables[0].Name)
	assert.Equal(t, "g", tables[1].Name)
}

func TestFlatten_DoesNotMutate(t *testing.T) {
	root := sampleTree(t)
	before := root.String()
	_ = Flatten(root, "x")
	assert.Equal(t, before, root.String())
}

func TestPlain(t *testing.T) {
	arr, err := ndarray.FromValue([][]complex128{{1 + 2i}})
	require.NoError(t, err)

	sub, err := storage.New("", nil)
	require.NoError(t, err)
	require.NoError(t, sub.Set("k", 2.0))

	assert.Equal(t, []any{[]any{keycodec.Encode(keycodec.Complex(1 + 2i))}}, Plain(arr))
	assert.Equal(t, map[string]any{"x": 1.0, keycodec.Encode(keycodec.Float(2.5)): 3.0},
		Plain(map[keycodec.Key]float64{keycodec.String("x"): 1, keycodec.Float(2.5): 3}))
	assert.Equal(t, []any{"s", int64(1)}, Plain([]any{"s", int64(1)}))
	assert.Equal(t, map[string]any{"k": 2.0}, Plain(sub))
	assert.Equal(t, "plain", Plain("plain"))
}

func TestWrite_JSON(t *testing.T) {
	fs := memfs.New()
	written, err := Write(fs, sampleTree(t), "dump/out.json", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"dump/out.root.json",
		"dump/out.root.g.json",
		"dump/out.root.g.h.json",
		"dump/out.root.empty.json",
	}, written)

	data, err := util.ReadFile(fs, "dump/out.root.g.json")
	require.NoError(t, err)
	v, err := oj.Parse(data)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"d": map[string]any{"x": 1.5, keycodec.Encode(keycodec.Float(2.5)): 2.25},
	}, v)

	data, err = util.ReadFile(fs, "dump/out.root.json")
	require.NoError(t, err)
	v, err = oj.Parse(data)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": int64(1), "v": []any{1.5, 2.5}}, v)
}

func TestWrite_YAML(t *testing.T) {
	fs := memfs.New()
	_, err := Write(fs, sampleTree(t), "out.yml", 0)
	require.NoError(t, err)

	data, err := util.ReadFile(fs, "out.root.g.h.yml")
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, yaml.Unmarshal(data, &doc))
	l, ok := doc["l"].([]any)
	require.True(t, ok)
	require.Len(t, l, 2)
	assert.Equal(t, "s", l[0])
}

func TestWrite_UnknownFormat(t *testing.T) {
	_, err := Write(memfs.New(), sampleTree(t), "out.csv", 0)
	assert.ErrorIs(t, err, ErrUnknownFormat)
	assert.False(t, IsFormat("x.hst"))
	assert.True(t, IsFormat("x.YAML"))
}
