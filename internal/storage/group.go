package storage

import (
	"fmt"
	"iter"
	"slices"
	"strings"

	"github.com/agentic-research/hstore/internal/keycodec"
)

// Group is a dictionary-like node that owns named children. Children keep
// their insertion order.
//
// The dictionary surface (Set, Get, Pop, Has, Len, Keys, All) only sees
// leaves; groups are reached through Group, Node, Child and Resolve.
type Group struct {
	attrsHolder
	order    []keycodec.Key
	children map[keycodec.Key]Node
}

// New creates an empty root group.
func New(name string, attrs Attrs) (*Group, error) {
	a, err := newAttrs(attrs)
	if err != nil {
		return nil, err
	}
	return &Group{
		attrsHolder: attrsHolder{name: keycodec.String(name), attrs: a},
		children:    make(map[keycodec.Key]Node),
	}, nil
}

// NewGroup creates an empty group named by an arbitrary key.
func NewGroup(name keycodec.Key, attrs Attrs) (*Group, error) {
	a, err := newAttrs(attrs)
	if err != nil {
		return nil, err
	}
	return &Group{
		attrsHolder: attrsHolder{name: name, attrs: a},
		children:    make(map[keycodec.Key]Node),
	}, nil
}

func (g *Group) Variant() Variant { return VariantGroup }

// AutoNodes reports whether missing path segments below g are created on
// access.
func (g *Group) AutoNodes() bool { return g.attrs.Bool(AutoNodesAttr) }

// AddOption configures AddChild, SetLeaf and ListLeaf.Append.
type AddOption func(*addOpts)

type addOpts struct {
	hint  Variant
	attrs Attrs
}

// WithHint forces the variant instead of inferring it from the value.
func WithHint(v Variant) AddOption {
	return func(o *addOpts) { o.hint = v }
}

// WithAttrs sets attributes on the inserted node.
func WithAttrs(a Attrs) AddOption {
	return func(o *addOpts) { o.attrs = a }
}

func addOptions(opts []AddOption) addOpts {
	var o addOpts
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// AddChild dispatches value through Classify and stores the result under
// name, replacing any existing child. A *Group value with a nil or empty
// name is merged instead: deep copies of its children are added to g.
func (g *Group) AddChild(name any, value any, opts ...AddOption) error {
	if src, ok := value.(*Group); ok && src != nil && (name == nil || name == "") {
		for _, k := range src.order {
			c := src.children[k]
			g.put(c.cloneAs(k))
		}
		return nil
	}

	k, err := childKey(name)
	if err != nil {
		return err
	}
	if err := ValidateName(k); err != nil {
		return err
	}
	o := addOptions(opts)
	n, err := build(k, value, o.hint, o.attrs)
	if err != nil {
		return fmt.Errorf("node %v: %w", k, err)
	}
	g.put(n)
	return nil
}

// Insert adopts n as a child under its own name, replacing any existing
// child. n is not copied.
func (g *Group) Insert(n Node) error {
	if isNilNode(n) {
		return fmt.Errorf("%w: nil node", ErrInvalidNode)
	}
	if err := ValidateName(n.Name()); err != nil {
		return err
	}
	g.put(n)
	return nil
}

// RemoveChild deletes and returns the named child.
func (g *Group) RemoveChild(name any) (Node, error) {
	k, err := childKey(name)
	if err != nil {
		return nil, err
	}
	n, ok := g.children[k]
	if !ok {
		return nil, fmt.Errorf("%w: %v in group %v", ErrNoSuchLeaf, k, g.name)
	}
	g.remove(k)
	return n, nil
}

// childKey converts a caller-supplied name into a key. String names in an
// encoded numeric form, such as "float(2.5...)", name the numeric key.
func childKey(name any) (keycodec.Key, error) {
	k, err := keycodec.KeyOf(name)
	if err != nil {
		return keycodec.Key{}, fmt.Errorf("%w: %w", ErrInvalidNodeName, err)
	}
	if !k.IsString() {
		return k, nil
	}
	dk, err := keycodec.Decode(k.Str())
	if err != nil {
		return keycodec.Key{}, fmt.Errorf("%w: %w", ErrInvalidNodeName, err)
	}
	return dk, nil
}

// ChildNode returns the direct child named k.
func (g *Group) ChildNode(k keycodec.Key) (Node, bool) {
	n, ok := g.children[k]
	return n, ok
}

func (g *Group) put(n Node) {
	if g.children == nil {
		g.children = make(map[keycodec.Key]Node)
	}
	k := n.Name()
	if _, exists := g.children[k]; !exists {
		g.order = append(g.order, k)
	}
	g.children[k] = n
	if _, isGroup := n.(*Group); isGroup && k.IsString() && reservedAccessors[strings.ToLower(k.Str())] {
		WarningHandler(&InaccessibleGroupNodeWarning{Name: k.Str()})
	}
}

func (g *Group) remove(k keycodec.Key) {
	delete(g.children, k)
	g.order = slices.DeleteFunc(g.order, func(o keycodec.Key) bool { return o == k })
}

func (g *Group) lookup(k keycodec.Key) (Node, bool) {
	n, ok := g.children[k]
	return n, ok
}

// generate builds the group auto-created for a missing segment. It inherits
// g's auto_nodes setting.
func (g *Group) generate(k keycodec.Key) Node {
	child := &Group{attrsHolder: attrsHolder{name: k, attrs: Attrs{}}, children: make(map[keycodec.Key]Node)}
	if v, ok := g.attrs[AutoNodesAttr]; ok {
		child.attrs[AutoNodesAttr] = v
	}
	return child
}

// ---------------------------------------------------------------------------
// Dictionary surface (leaves only)
// ---------------------------------------------------------------------------

// Set stores value as a leaf under key. Equivalent to AddChild.
func (g *Group) Set(key, value any, opts ...AddOption) error {
	return g.AddChild(key, value, opts...)
}

// Get returns the unwrapped value of the leaf under key. Zero-dimensional
// arrays are returned as their Go scalar.
func (g *Group) Get(key any) (any, error) {
	l, err := g.leafAt(key)
	if err != nil {
		return nil, err
	}
	return unwrap(l), nil
}

// Pop removes the leaf under key and returns its unwrapped value.
func (g *Group) Pop(key any) (any, error) {
	l, err := g.leafAt(key)
	if err != nil {
		return nil, err
	}
	g.remove(l.Name())
	return unwrap(l), nil
}

// Has reports whether key names a leaf.
func (g *Group) Has(key any) bool {
	_, err := g.leafAt(key)
	return err == nil
}

// Len counts leaves only.
func (g *Group) Len() int {
	n := 0
	for _, c := range g.children {
		if _, ok := c.(Leaf); ok {
			n++
		}
	}
	return n
}

// Keys returns the leaf names in insertion order.
func (g *Group) Keys() []keycodec.Key { return g.Leaves() }

// All iterates over leaf names and unwrapped values in insertion order.
func (g *Group) All() iter.Seq2[keycodec.Key, any] {
	return func(yield func(keycodec.Key, any) bool) {
		for _, k := range g.Leaves() {
			if !yield(k, unwrap(g.children[k])) {
				return
			}
		}
	}
}

func (g *Group) leafAt(key any) (Leaf, error) {
	k, err := childKey(key)
	if err != nil {
		return nil, err
	}
	n, ok := g.children[k]
	if !ok {
		return nil, fmt.Errorf("%w: %v in group %v", ErrNoSuchLeaf, k, g.name)
	}
	l, ok := n.(Leaf)
	if !ok {
		return nil, fmt.Errorf("%w: %v in group %v is a group", ErrNoSuchLeaf, k, g.name)
	}
	return l, nil
}

// ---------------------------------------------------------------------------
// Snapshots
// ---------------------------------------------------------------------------

// Nodes returns all child names in insertion order.
func (g *Group) Nodes() []keycodec.Key { return slices.Clone(g.order) }

// Groups returns the names of child groups in insertion order.
func (g *Group) Groups() []keycodec.Key {
	var out []keycodec.Key
	for _, k := range g.order {
		if _, ok := g.children[k].(*Group); ok {
			out = append(out, k)
		}
	}
	return out
}

// Leaves returns the names of child leaves in insertion order.
func (g *Group) Leaves() []keycodec.Key {
	var out []keycodec.Key
	for _, k := range g.order {
		if _, ok := g.children[k].(Leaf); ok {
			out = append(out, k)
		}
	}
	return out
}

// Children returns the child nodes in insertion order.
func (g *Group) Children() []Node {
	out := make([]Node, 0, len(g.order))
	for _, k := range g.order {
		out = append(out, g.children[k])
	}
	return out
}

// Clone returns a deep copy of g and its subtree.
func (g *Group) Clone() *Group {
	return g.cloneAs(g.name).(*Group)
}

func (g *Group) cloneAs(name keycodec.Key) Node {
	c := &Group{
		attrsHolder: g.copyAs(name),
		order:       slices.Clone(g.order),
		children:    make(map[keycodec.Key]Node, len(g.children)),
	}
	for k, n := range g.children {
		c.children[k] = n.cloneAs(k)
	}
	return c
}

// reservedAccessors are names that would shadow Group accessors in an
// attribute-style API.
var reservedAccessors = map[string]bool{
	"add_child": true, "addchild": true, "all": true, "attrs": true,
	"child": true, "children": true, "clone": true, "get": true,
	"group": true, "groups": true, "has": true, "insert": true,
	"keys": true, "leaf": true, "leaves": true, "len": true,
	"name": true, "node": true, "node_attrs": true, "nodeattrs": true,
	"nodes": true, "pop": true, "remove_child": true, "removechild": true,
	"resolve": true, "set": true, "set_attrs": true, "setattrs": true,
	"set_leaf": true, "setleaf": true, "string": true, "variant": true,
}
