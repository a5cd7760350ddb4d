package archive

import (
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/agentic-research/hstore/internal/container"
	"github.com/agentic-research/hstore/internal/keycodec"
	"github.com/agentic-research/hstore/internal/ndarray"
	"github.com/agentic-research/hstore/internal/storage"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var treeOpts = cmp.Options{
	cmp.Exporter(func(reflect.Type) bool { return true }),
	cmp.Comparer(func(a, b *ndarray.Array) bool { return a.Equal(b) }),
	cmpopts.EquateEmpty(),
}

func newRoot(t *testing.T) *storage.Group {
	t.Helper()
	g, err := storage.New("root", nil)
	require.NoError(t, err)
	return g
}

func roundTrip(t *testing.T, root *storage.Group, name string) *storage.Group {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, Store(root, path))
	loaded, err := Load(path)
	require.NoError(t, err)
	return loaded
}

func TestRoundTrip_MixedDict(t *testing.T) {
	d := newRoot(t)
	require.NoError(t, d.Set("test", map[any]any{"dog": 3.2, 2.3: 1.5}))

	loaded := roundTrip(t, d, "d.hst")
	v, err := loaded.Get("test")
	require.NoError(t, err)
	assert.Equal(t, map[keycodec.Key]float64{
		keycodec.String("dog"): 3.2,
		keycodec.Float(2.3):    1.5,
	}, v)
}

func TestRoundTrip_List(t *testing.T) {
	d := newRoot(t)
	require.NoError(t, d.Set("test", []any{1, 2, 3}))

	loaded := roundTrip(t, d, "d.hst")
	v, err := loaded.Get("test")
	require.NoError(t, err)
	assert.Equal(t, []any{int64(1), int64(2), int64(3)}, v)
}

func TestRoundTrip_NodeAttrsOnNumericPath(t *testing.T) {
	d := newRoot(t)
	require.NoError(t, d.SetNodeAttrs("x/y/0", storage.Attrs{"tag": 1}))
	got, err := d.NodeAttrs("x/y/0")
	require.NoError(t, err)
	assert.Equal(t, storage.Attrs{"tag": int64(1)}, got)

	loaded := roundTrip(t, d, "d.hst")
	got, err = loaded.NodeAttrs("x/y/0")
	require.NoError(t, err)
	assert.Equal(t, storage.Attrs{"tag": int64(1)}, got)

	n, err := loaded.Resolve("x/y")
	require.NoError(t, err)
	_, ok := n.(*storage.Group).ChildNode(keycodec.Int(0))
	assert.True(t, ok, "key 0 should stay an integer")
}

func TestRoundTrip_FloatKey(t *testing.T) {
	d := newRoot(t)
	require.NoError(t, d.Set(2.5, 3.6))
	v, err := d.Get(2.5)
	require.NoError(t, err)
	assert.Equal(t, 3.6, v)

	loaded := roundTrip(t, d, "d.hst")
	assert.Equal(t, []keycodec.Key{keycodec.Float(2.5)}, loaded.Keys())
	v, err = loaded.Get(2.5)
	require.NoError(t, err)
	assert.Equal(t, 3.6, v)
	assert.False(t, loaded.Has("2.5"))
}

func TestRoundTrip_DictNaNRejected(t *testing.T) {
	d := newRoot(t)
	err := d.Set("d", map[string]float64{"a": math.NaN()})
	assert.ErrorIs(t, err, storage.ErrUnsupportedDictEntry)
	err = d.Set("k", map[float64]float64{math.NaN(): 1})
	assert.ErrorIs(t, err, storage.ErrUnsupportedDictEntry)

	require.NoError(t, d.Set("inf", map[any]any{"hi": math.Inf(1), math.Inf(-1): 2.0}))
	loaded := roundTrip(t, d, "d.hst")
	assert.Equal(t, []keycodec.Key{keycodec.String("inf")}, loaded.Keys())
	v, err := loaded.Get("inf")
	require.NoError(t, err)
	assert.Equal(t, map[keycodec.Key]float64{
		keycodec.String("hi"):        math.Inf(1),
		keycodec.Float(math.Inf(-1)): 2,
	}, v)
}

func TestRoundTrip_AfterPop(t *testing.T) {
	d := newRoot(t)
	require.NoError(t, d.Set("x", 1))
	require.NoError(t, d.Set("y", 2))
	_, err := d.Pop("x")
	require.NoError(t, err)
	assert.Equal(t, 1, d.Len())

	loaded := roundTrip(t, d, "d.hst")
	assert.Equal(t, []keycodec.Key{keycodec.String("y")}, loaded.Keys())
}

func buildTree(t *testing.T) *storage.Group {
	t.Helper()
	root, err := storage.New("experiment", storage.Attrs{"owner": "lab", "runs": 3, "scale": 0.5, storage.AutoNodesAttr: true})
	require.NoError(t, err)

	require.NoError(t, root.Set("matrix", [][]float64{{1, 2}, {3, 4}}, storage.WithAttrs(storage.Attrs{"units": "m"})))
	require.NoError(t, root.Set("counts", []int64{4, 5, 6}))
	require.NoError(t, root.Set("flags", []bool{true, false}))
	require.NoError(t, root.Set("labels", []string{"a", "bc", ""}))
	require.NoError(t, root.Set("phase", []complex128{1 + 2i, -0.5i}))
	require.NoError(t, root.Set("scalar", 7.25))
	require.NoError(t, root.Set("weights", map[string]float64{"alpha": 1, "beta": -2.5}))
	require.NoError(t, root.Set("empty_dict", map[string]float64{}))
	require.NoError(t, root.Set(int64(42), "answer"))
	require.NoError(t, root.Set(1+1i, 2.0))

	sub, err := storage.New("", nil)
	require.NoError(t, err)
	require.NoError(t, sub.Set("inner", 1))
	require.NoError(t, root.Set("mixed", []any{"s", []float64{1.5, 2.5}, map[string]float64{"k": 1}, []any{true, 2}, sub}))

	require.NoError(t, root.SetLeaf("raw/nested/deep", []int{9, 8}, true))
	require.NoError(t, root.SetNodeAttrs("raw/nested", storage.Attrs{"note": "n", "ok": false}))

	_, err = root.Group("auto/created")
	require.NoError(t, err)
	return root
}

func TestRoundTrip_Tree(t *testing.T) {
	for _, name := range []string{"tree.hst", "tree.arena"} {
		t.Run(name, func(t *testing.T) {
			root := buildTree(t)
			loaded := roundTrip(t, root, name)
			if diff := cmp.Diff(root, loaded, treeOpts); diff != "" {
				t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
			}
			assert.Equal(t, root.String(), loaded.String())
		})
	}
}

func TestRoundTrip_ArenaRewrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.arena")
	root := newRoot(t)
	require.NoError(t, root.Set("a", 1))
	require.NoError(t, Store(root, path))

	require.NoError(t, root.Set("b", []float64{1, 2}))
	require.NoError(t, Store(root, path))

	f, err := os.Open(path)
	require.NoError(t, err)
	h, err := container.ReadArenaHeader(f)
	require.NoError(t, err)
	_ = f.Close()
	assert.Equal(t, uint64(2), h.Sequence)

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []keycodec.Key{keycodec.String("a"), keycodec.String("b")}, loaded.Keys())
}

func TestStore_ExportExtensions(t *testing.T) {
	dir := t.TempDir()
	root := newRoot(t)
	require.NoError(t, root.Set("a", 1))
	require.NoError(t, root.SetLeaf("g/b", []int{1, 2}, true))

	require.NoError(t, Store(root, filepath.Join(dir, "out.json")))
	assert.FileExists(t, filepath.Join(dir, "out.root.json"))
	assert.FileExists(t, filepath.Join(dir, "out.root.g.json"))

	require.NoError(t, Store(root, filepath.Join(dir, "out.yaml")))
	assert.FileExists(t, filepath.Join(dir, "out.root.g.yaml"))

	_, err := Load(filepath.Join(dir, "out.json"))
	assert.ErrorIs(t, err, ErrExportOnly)
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.hst"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

// writeRaw builds a container by hand for read-side error cases.
func writeRaw(t *testing.T, fn func(w *container.File)) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "raw.hst")
	w, err := container.Create(path)
	require.NoError(t, err)
	require.NoError(t, w.SetAttr(w.Root(), storage.TypeAttr, storage.TagGroup))
	fn(w)
	require.NoError(t, w.Close())
	return path
}

func TestLoad_UnknownStoredType(t *testing.T) {
	path := writeRaw(t, func(w *container.File) {
		id, err := w.CreateGroup(w.Root(), "odd")
		require.NoError(t, err)
		require.NoError(t, w.SetAttr(id, storage.TypeAttr, "data_frame"))
	})
	_, err := Load(path)
	require.ErrorIs(t, err, ErrUnknownStoredType)
	var ust *UnknownStoredTypeError
	require.ErrorAs(t, err, &ust)
	assert.Equal(t, "data_frame", ust.Tag)
	assert.Equal(t, "/odd", ust.Path)
}

func TestLoad_MalformedDictRow(t *testing.T) {
	for name, row := range map[string][]any{
		"both keys":    {"a", 1.0, 2.0},
		"neither key":  {nil, nil, 2.0},
		"null value":   {"a", nil, nil},
		"string value": {"a", nil, "x"},
	} {
		t.Run(name, func(t *testing.T) {
			path := writeRaw(t, func(w *container.File) {
				id, err := w.CreateTable(w.Root(), "d", dictColumns)
				require.NoError(t, err)
				require.NoError(t, w.AppendRows(id, [][]any{row}))
				require.NoError(t, w.SetAttr(id, storage.TypeAttr, storage.TagDict))
			})
			_, err := Load(path)
			assert.ErrorIs(t, err, ErrMalformedRow)
		})
	}
}

func TestLoad_MalformedList(t *testing.T) {
	path := writeRaw(t, func(w *container.File) {
		id, err := w.CreateGroup(w.Root(), "l")
		require.NoError(t, err)
		require.NoError(t, w.SetAttr(id, storage.TypeAttr, storage.TagList))
		arr, err := ndarray.Scalar(1.0)
		require.NoError(t, err)
		e, err := w.CreateArray(id, "index_1", arr)
		require.NoError(t, err)
		require.NoError(t, w.SetAttr(e, storage.TypeAttr, storage.TagArray))
	})
	_, err := Load(path)
	assert.ErrorIs(t, err, ErrMalformedList)
}

func TestLoad_KindMismatch(t *testing.T) {
	path := writeRaw(t, func(w *container.File) {
		id, err := w.CreateGroup(w.Root(), "a")
		require.NoError(t, err)
		require.NoError(t, w.SetAttr(id, storage.TypeAttr, storage.TagArray))
	})
	_, err := Load(path)
	assert.ErrorIs(t, err, container.ErrWrongKind)
}

func TestLoad_UntaggedGroupsAreWalked(t *testing.T) {
	path := writeRaw(t, func(w *container.File) {
		require.NoError(t, w.SetAttr(w.Root(), storage.AutoNodesAttr, true))
		plain, err := w.CreateGroup(w.Root(), "plain")
		require.NoError(t, err)
		inner, err := w.CreateGroup(plain, "inner")
		require.NoError(t, err)
		arr, err := ndarray.Float64s(nil, []float64{1, 2})
		require.NoError(t, err)
		a, err := w.CreateArray(inner, "a", arr)
		require.NoError(t, err)
		require.NoError(t, w.SetAttr(a, storage.TypeAttr, storage.TagArray))
		require.NoError(t, w.SetAttr(a, "units", "s"))

		_, err = w.CreateGroup(w.Root(), "hollow")
		require.NoError(t, err)
	})
	loaded, err := Load(path)
	require.NoError(t, err)

	l, err := loaded.Leaf("plain/inner/a")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, l.Value().(*ndarray.Array).Float64Data())
	assert.Equal(t, storage.Attrs{"units": "s"}, l.Attrs())

	_, err = loaded.Resolve("hollow", storage.WithCreate(false))
	assert.ErrorIs(t, err, storage.ErrNoSuchNode)

	assert.Equal(t, storage.Attrs{storage.AutoNodesAttr: true}, loaded.Attrs())
	for _, p := range []string{"plain", "plain/inner"} {
		g, err := loaded.Group(p)
		require.NoError(t, err)
		assert.Empty(t, g.Attrs(), p)
	}
}
