package storage

import (
	"cmp"
	"fmt"
	"maps"
	"math"
	"reflect"
	"slices"
	"strconv"
	"strings"

	"github.com/agentic-research/hstore/internal/keycodec"
	"github.com/agentic-research/hstore/internal/ndarray"
)

// ArrayLeaf wraps a dense n-dimensional array.
type ArrayLeaf struct {
	attrsHolder
	arr *ndarray.Array
}

// NewArrayLeaf wraps arr (which is copied) under name.
func NewArrayLeaf(name keycodec.Key, arr *ndarray.Array, attrs Attrs) (*ArrayLeaf, error) {
	a, err := newAttrs(attrs)
	if err != nil {
		return nil, err
	}
	if arr == nil {
		return nil, fmt.Errorf("%w: nil array", ErrInvalidNode)
	}
	return &ArrayLeaf{attrsHolder: attrsHolder{name: name, attrs: a}, arr: arr.Clone()}, nil
}

func (l *ArrayLeaf) Variant() Variant { return VariantArray }

// Value returns a copy of the array as *ndarray.Array.
func (l *ArrayLeaf) Value() any { return l.arr.Clone() }

// Array is Value with a concrete type.
func (l *ArrayLeaf) Array() *ndarray.Array { return l.arr.Clone() }

func (l *ArrayLeaf) SetValue(v any) error {
	arr, err := ndarray.FromValue(v)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnknownDataType, err)
	}
	l.arr = arr
	return nil
}

func (l *ArrayLeaf) cloneAs(name keycodec.Key) Node {
	return &ArrayLeaf{attrsHolder: l.copyAs(name), arr: l.arr.Clone()}
}

// DictLeaf wraps a mapping from string or float keys to float values.
type DictLeaf struct {
	attrsHolder
	m map[keycodec.Key]float64
}

// DictRow is one entry of a DictLeaf in table form.
type DictRow struct {
	Key   keycodec.Key
	Value float64
}

// NewDictLeaf validates and copies m, which may be any Go map whose keys
// are strings or floats and whose values are numbers.
func NewDictLeaf(name keycodec.Key, m any, attrs Attrs) (*DictLeaf, error) {
	a, err := newAttrs(attrs)
	if err != nil {
		return nil, err
	}
	entries, err := toDict(m)
	if err != nil {
		return nil, err
	}
	return &DictLeaf{attrsHolder: attrsHolder{name: name, attrs: a}, m: entries}, nil
}

func (l *DictLeaf) Variant() Variant { return VariantDict }

// Value returns a copy of the mapping as map[keycodec.Key]float64.
func (l *DictLeaf) Value() any { return maps.Clone(l.m) }

func (l *DictLeaf) SetValue(v any) error {
	entries, err := toDict(v)
	if err != nil {
		return err
	}
	l.m = entries
	return nil
}

// Len is the number of entries.
func (l *DictLeaf) Len() int { return len(l.m) }

// Rows returns the entries ordered with string keys first (lexically),
// then float keys (ascending).
func (l *DictLeaf) Rows() []DictRow {
	rows := make([]DictRow, 0, len(l.m))
	for k, v := range l.m {
		rows = append(rows, DictRow{Key: k, Value: v})
	}
	slices.SortFunc(rows, func(a, b DictRow) int {
		as, bs := a.Key.IsString(), b.Key.IsString()
		switch {
		case as && bs:
			return strings.Compare(a.Key.Str(), b.Key.Str())
		case as:
			return -1
		case bs:
			return 1
		}
		return cmp.Compare(a.Key.FloatValue(), b.Key.FloatValue())
	})
	return rows
}

func (l *DictLeaf) cloneAs(name keycodec.Key) Node {
	return &DictLeaf{attrsHolder: l.copyAs(name), m: maps.Clone(l.m)}
}

func toDict(v any) (map[keycodec.Key]float64, error) {
	if m, ok := v.(map[keycodec.Key]float64); ok {
		for k, f := range m {
			if k.Kind() != keycodec.KindString && k.Kind() != keycodec.KindFloat {
				return nil, fmt.Errorf("%w: key %v of kind %s", ErrUnsupportedDictEntry, k, k.Kind())
			}
			if err := checkDictEntry(k, f); err != nil {
				return nil, err
			}
		}
		return maps.Clone(m), nil
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map {
		return nil, fmt.Errorf("%w: %T is not a mapping", ErrUnsupportedDictEntry, v)
	}
	out := make(map[keycodec.Key]float64, rv.Len())
	it := rv.MapRange()
	for it.Next() {
		k, err := dictKey(it.Key())
		if err != nil {
			return nil, err
		}
		f, err := dictValue(it.Value())
		if err != nil {
			return nil, fmt.Errorf("%w (key %v)", err, k)
		}
		if err := checkDictEntry(k, f); err != nil {
			return nil, err
		}
		out[k] = f
	}
	return out, nil
}

// checkDictEntry rejects NaN keys and values. Dict tables store floats in
// REAL columns, where NaN reads back as NULL.
func checkDictEntry(k keycodec.Key, v float64) error {
	if k.Kind() == keycodec.KindFloat && math.IsNaN(k.FloatValue()) {
		return fmt.Errorf("%w: NaN key", ErrUnsupportedDictEntry)
	}
	if math.IsNaN(v) {
		return fmt.Errorf("%w: NaN value (key %v)", ErrUnsupportedDictEntry, k)
	}
	return nil
}

func dictKey(v reflect.Value) (keycodec.Key, error) {
	v = unwrapInterface(v)
	switch v.Kind() {
	case reflect.String:
		return keycodec.String(v.String()), nil
	case reflect.Float32, reflect.Float64:
		return keycodec.Float(v.Float()), nil
	}
	if v.IsValid() && v.CanInterface() {
		if k, ok := v.Interface().(keycodec.Key); ok && (k.IsString() || k.Kind() == keycodec.KindFloat) {
			return k, nil
		}
	}
	return keycodec.Key{}, fmt.Errorf("%w: key %s must be a string or a float", ErrUnsupportedDictEntry, describe(v))
}

func dictValue(v reflect.Value) (float64, error) {
	v = unwrapInterface(v)
	switch v.Kind() {
	case reflect.Float32, reflect.Float64:
		return v.Float(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(v.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(v.Uint()), nil
	}
	return 0, fmt.Errorf("%w: value %s is not a number", ErrUnsupportedDictEntry, describe(v))
}

func unwrapInterface(v reflect.Value) reflect.Value {
	for v.Kind() == reflect.Interface && !v.IsNil() {
		v = v.Elem()
	}
	return v
}

func describe(v reflect.Value) string {
	if !v.IsValid() || (v.Kind() == reflect.Interface && v.IsNil()) {
		return "<nil>"
	}
	return fmt.Sprintf("%v (%s)", v.Interface(), v.Type())
}

// ListLeaf is an ordered sequence of independently dispatched values. Its
// elements are nodes named index_0, index_1, ...
type ListLeaf struct {
	attrsHolder
	items []Node
}

const listPrefix = "index_"

// ListIndexName is the element name used for position i.
func ListIndexName(i int) keycodec.Key {
	return keycodec.String(listPrefix + strconv.Itoa(i))
}

// ParseListIndex is the inverse of ListIndexName.
func ParseListIndex(k keycodec.Key) (int, bool) {
	if !k.IsString() || !strings.HasPrefix(k.Str(), listPrefix) {
		return 0, false
	}
	i, err := strconv.Atoi(strings.TrimPrefix(k.Str(), listPrefix))
	if err != nil || i < 0 {
		return 0, false
	}
	return i, true
}

// NewListLeaf dispatches every element of seq, which must be a slice or an
// array.
func NewListLeaf(name keycodec.Key, seq any, attrs Attrs) (*ListLeaf, error) {
	a, err := newAttrs(attrs)
	if err != nil {
		return nil, err
	}
	l := &ListLeaf{attrsHolder: attrsHolder{name: name, attrs: a}}
	if seq != nil {
		if err := l.SetValue(seq); err != nil {
			return nil, err
		}
	}
	return l, nil
}

func (l *ListLeaf) Variant() Variant { return VariantList }

// Value materialises the list as []any. Zero-dimensional arrays become
// their Go scalar, nested lists become []any, dicts become their map and
// groups are returned as copies.
func (l *ListLeaf) Value() any {
	out := make([]any, len(l.items))
	for i, n := range l.items {
		out[i] = unwrap(n)
	}
	return out
}

func (l *ListLeaf) SetValue(v any) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return unknownDataType(v)
	}
	items := make([]Node, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		n, err := build(ListIndexName(i), rv.Index(i).Interface(), VariantNone, nil)
		if err != nil {
			return fmt.Errorf("list element %d: %w", i, err)
		}
		items = append(items, n)
	}
	l.items = items
	return nil
}

// Append dispatches value and adds it at the end of the list.
func (l *ListLeaf) Append(value any, opts ...AddOption) error {
	o := addOptions(opts)
	n, err := build(ListIndexName(len(l.items)), value, o.hint, o.attrs)
	if err != nil {
		return err
	}
	l.items = append(l.items, n)
	return nil
}

// AppendNode adds n, renamed to its list position. n is adopted, not copied.
func (l *ListLeaf) AppendNode(n Node) {
	l.items = append(l.items, rename(n, ListIndexName(len(l.items))))
}

// Len is the number of elements.
func (l *ListLeaf) Len() int { return len(l.items) }

// Item returns the element node at position i.
func (l *ListLeaf) Item(i int) (Node, error) {
	if i < 0 || i >= len(l.items) {
		return nil, fmt.Errorf("%w: index %d of list %v (len %d)", ErrNoSuchNode, i, l.name, len(l.items))
	}
	return l.items[i], nil
}

// Items returns the element nodes in order.
func (l *ListLeaf) Items() []Node { return slices.Clone(l.items) }

func (l *ListLeaf) lookup(k keycodec.Key) (Node, bool) {
	i, ok := ParseListIndex(k)
	if !ok {
		if k.Kind() != keycodec.KindInt {
			return nil, false
		}
		i = int(k.IntValue())
	}
	if i < 0 || i >= len(l.items) {
		return nil, false
	}
	return l.items[i], true
}

func (l *ListLeaf) cloneAs(name keycodec.Key) Node {
	items := make([]Node, len(l.items))
	for i, n := range l.items {
		items[i] = n.cloneAs(n.Name())
	}
	return &ListLeaf{attrsHolder: l.copyAs(name), items: items}
}

// unwrap converts a node into the plain value seen through the dictionary
// surface: zero-dimensional arrays collapse to their element.
func unwrap(n Node) any {
	switch x := n.(type) {
	case *ArrayLeaf:
		if x.arr.Ndim() == 0 {
			v, _ := x.arr.Item()
			return v
		}
		return x.arr.Clone()
	case Leaf:
		return x.Value()
	case *Group:
		return x.Clone()
	}
	return nil
}

// rename swaps n's name in place. Only used on nodes the caller owns.
func rename(n Node, name keycodec.Key) Node {
	switch x := n.(type) {
	case *Group:
		x.name = name
	case *ArrayLeaf:
		x.name = name
	case *DictLeaf:
		x.name = name
	case *ListLeaf:
		x.name = name
	}
	return n
}
