package storage

import (
	"fmt"
	"reflect"

	"github.com/agentic-research/hstore/internal/keycodec"
	"github.com/agentic-research/hstore/internal/ndarray"
)

// Classify picks the variant a value is stored as.
//
// Existing nodes keep their own variant (they are deep-copied on insert).
// Otherwise, in order: an array hint or an array-like value (an
// *ndarray.Array or a typed numeric slice) is an array; a group hint or a
// *Group is a group; a dict hint or any Go map is a dict; a list hint or
// any other slice is a list. Anything else gets one coercion attempt into
// an array (scalars become zero-dimensional arrays) before failing with
// ErrUnknownDataType.
func Classify(value any, hint Variant) (Variant, error) {
	v, _, err := classify(value, hint)
	return v, err
}

func classify(value any, hint Variant) (Variant, any, error) {
	if isNilNode(value) {
		return VariantNone, nil, unknownDataType(value)
	}
	if n, ok := value.(Node); ok && hint == VariantNone {
		return n.Variant(), value, nil
	}

	inferring := hint == VariantNone
	switch {
	case hint == VariantArray || inferring && ndarray.IsArrayLike(value):
		return VariantArray, value, nil
	case hint == VariantGroup || inferring && isGroup(value):
		return VariantGroup, value, nil
	case hint == VariantDict || inferring && isKind(value, reflect.Map):
		return VariantDict, value, nil
	case hint == VariantList || inferring && (isKind(value, reflect.Slice) || isKind(value, reflect.Array)):
		return VariantList, value, nil
	}

	// One bounded retry: coerce into an array and classify again.
	arr, err := ndarray.FromValue(value)
	if err != nil {
		return VariantNone, nil, unknownDataType(value)
	}
	return VariantArray, arr, nil
}

// build constructs the node stored under name for value.
func build(name keycodec.Key, value any, hint Variant, attrs Attrs) (Node, error) {
	if isNilNode(value) {
		return nil, unknownDataType(value)
	}
	if n, ok := value.(Node); ok && (hint == VariantNone || hint == n.Variant()) {
		c := n.cloneAs(name)
		if err := c.SetAttrs(attrs); err != nil {
			return nil, err
		}
		return c, nil
	}

	variant, value, err := classify(value, hint)
	if err != nil {
		return nil, err
	}
	switch variant {
	case VariantArray:
		arr, err := ndarray.FromValue(value)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", unknownDataType(value), err)
		}
		return node(NewArrayLeaf(name, arr, attrs))
	case VariantGroup:
		g, ok := value.(*Group)
		if !ok {
			return nil, unknownDataType(value)
		}
		c := g.cloneAs(name)
		if err := c.SetAttrs(attrs); err != nil {
			return nil, err
		}
		return c, nil
	case VariantDict:
		return node(NewDictLeaf(name, value, attrs))
	case VariantList:
		if !isKind(value, reflect.Slice) && !isKind(value, reflect.Array) {
			return nil, unknownDataType(value)
		}
		return node(NewListLeaf(name, value, attrs))
	}
	return nil, unknownDataType(value)
}

// node drops the typed nil a failed constructor returns.
func node[N Node](n N, err error) (Node, error) {
	if err != nil {
		return nil, err
	}
	return n, nil
}

// isNilNode reports whether v is a nil Node, typed or not.
func isNilNode(v any) bool {
	n, ok := v.(Node)
	return ok && reflect.ValueOf(n).IsNil()
}

func isGroup(v any) bool {
	_, ok := v.(*Group)
	return ok
}

func isKind(v any, k reflect.Kind) bool {
	return v != nil && reflect.TypeOf(v).Kind() == k
}
