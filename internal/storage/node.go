package storage

import (
	"fmt"
	"maps"
	"math"
	"regexp"

	"github.com/agentic-research/hstore/internal/keycodec"
)

// Variant identifies the concrete kind of a node.
type Variant uint8

const (
	// VariantNone is the zero value. As a dispatch hint it means "infer
	// from the value".
	VariantNone Variant = iota
	VariantArray
	VariantDict
	VariantList
	VariantGroup
)

// Type tags persisted in the "type" attribute of every stored node.
const (
	TagGroup = "storage"
	TagDict  = "data_dict"
	TagArray = "data_array"
	TagList  = "data_list"
)

// Reserved and well-known attribute names.
const (
	TypeAttr      = "type"
	AutoNodesAttr = "auto_nodes"
)

func (v Variant) String() string {
	switch v {
	case VariantArray:
		return "array"
	case VariantDict:
		return "dict"
	case VariantList:
		return "list"
	case VariantGroup:
		return "storage"
	default:
		return "none"
	}
}

// Tag returns the persisted type tag for v.
func (v Variant) Tag() string {
	switch v {
	case VariantArray:
		return TagArray
	case VariantDict:
		return TagDict
	case VariantList:
		return TagList
	case VariantGroup:
		return TagGroup
	default:
		return ""
	}
}

// VariantForTag maps a persisted type tag back to its variant.
func VariantForTag(tag string) (Variant, bool) {
	switch tag {
	case TagArray:
		return VariantArray, true
	case TagDict:
		return VariantDict, true
	case TagList:
		return VariantList, true
	case TagGroup:
		return VariantGroup, true
	}
	return VariantNone, false
}

// Node is implemented by every entity in a store tree: *Group, *ArrayLeaf,
// *DictLeaf and *ListLeaf. The set is closed.
type Node interface {
	Name() keycodec.Key
	Variant() Variant
	// Attrs returns a copy of the user attributes. The type tag is not
	// included; see Variant().Tag().
	Attrs() Attrs
	SetAttrs(Attrs) error

	cloneAs(name keycodec.Key) Node
}

// Leaf is a node that carries a value instead of named children.
type Leaf interface {
	Node
	Value() any
	SetValue(any) error
}

// Attrs maps attribute names to primitive values: string, int64, float64
// or bool.
type Attrs map[string]any

// Clone returns an independent copy.
func (a Attrs) Clone() Attrs {
	if a == nil {
		return Attrs{}
	}
	return maps.Clone(a)
}

// Bool reports the attribute as a bool, false when absent or not a bool.
func (a Attrs) Bool(key string) bool {
	b, ok := a[key].(bool)
	return ok && b
}

// mergeAttrs copies src into dst after normalising values. The type tag is
// rejected.
func mergeAttrs(dst, src Attrs) error {
	for k, v := range src {
		if k == TypeAttr {
			return fmt.Errorf("%w: %q", ErrReservedAttribute, k)
		}
		nv, err := normalizeAttr(v)
		if err != nil {
			return fmt.Errorf("attribute %q: %w", k, err)
		}
		dst[k] = nv
	}
	return nil
}

func normalizeAttr(v any) (any, error) {
	switch x := v.(type) {
	case string, bool, int64, float64:
		return x, nil
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case uint:
		return uintAttr(uint64(x))
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint64:
		return uintAttr(x)
	case float32:
		return float64(x), nil
	}
	return nil, fmt.Errorf("%w: %T", ErrInvalidAttribute, v)
}

func uintAttr(u uint64) (any, error) {
	if u > math.MaxInt64 {
		return nil, fmt.Errorf("%w: %d overflows int64", ErrInvalidAttribute, u)
	}
	return int64(u), nil
}

func newAttrs(src Attrs) (Attrs, error) {
	a := Attrs{}
	if err := mergeAttrs(a, src); err != nil {
		return nil, err
	}
	return a, nil
}

var validName = regexp.MustCompile(`^[a-zA-Z][a-zA-Z_]*$`)

// ValidateName checks a child name. Numeric keys are always accepted; they
// are encoded at serialization time.
func ValidateName(k keycodec.Key) error {
	if !k.IsString() {
		return nil
	}
	if !validName.MatchString(k.Str()) {
		return fmt.Errorf("%w: names must start with a letter and contain only letters and underscores, got %q", ErrInvalidNodeName, k.Str())
	}
	return nil
}

// attrsHolder is embedded by every node type.
type attrsHolder struct {
	name  keycodec.Key
	attrs Attrs
}

func (h *attrsHolder) Name() keycodec.Key { return h.name }

func (h *attrsHolder) Attrs() Attrs { return h.attrs.Clone() }

func (h *attrsHolder) SetAttrs(a Attrs) error {
	if h.attrs == nil {
		h.attrs = Attrs{}
	}
	staged := h.attrs.Clone()
	if err := mergeAttrs(staged, a); err != nil {
		return err
	}
	h.attrs = staged
	return nil
}

func (h attrsHolder) copyAs(name keycodec.Key) attrsHolder {
	return attrsHolder{name: name, attrs: h.attrs.Clone()}
}
