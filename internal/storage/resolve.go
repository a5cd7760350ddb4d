package storage

import (
	"errors"
	"fmt"
	"strings"

	"github.com/agentic-research/hstore/internal/keycodec"
)

// ResolveOption configures path resolution.
type ResolveOption func(*resolveOpts)

type resolveOpts struct {
	create    *bool
	generator func(keycodec.Key) Node
}

// WithCreate overrides the auto_nodes setting: missing segments are created
// when create is true and fail with ErrNoSuchNode when false.
func WithCreate(create bool) ResolveOption {
	return func(o *resolveOpts) { o.create = &create }
}

// WithGenerator supplies the constructor for auto-created nodes. The
// default creates an empty group inheriting auto_nodes from its parent.
func WithGenerator(fn func(keycodec.Key) Node) ResolveOption {
	return func(o *resolveOpts) { o.generator = fn }
}

// container is a node whose children can be looked up by key.
type container interface {
	Node
	lookup(keycodec.Key) (Node, bool)
}

// SplitPath splits a slash-delimited path into keys. Empty segments are
// dropped, so "", "/" and "//" all address the node itself.
func SplitPath(path string) ([]keycodec.Key, error) {
	var keys []keycodec.Key
	for _, seg := range strings.Split(path, "/") {
		if seg == "" {
			continue
		}
		k, err := keycodec.ParseSegment(seg)
		if err != nil {
			return nil, fmt.Errorf("%w: segment %q: %w", ErrInvalidNode, seg, err)
		}
		keys = append(keys, k)
	}
	return keys, nil
}

// Resolve walks path from g and returns the node it names. An empty path
// returns g itself.
func (g *Group) Resolve(path string, opts ...ResolveOption) (Node, error) {
	keys, err := SplitPath(path)
	if err != nil {
		return nil, err
	}
	return g.ResolveKeys(keys, opts...)
}

// ResolveKeys is Resolve over already-decoded path segments.
func (g *Group) ResolveKeys(keys []keycodec.Key, opts ...ResolveOption) (Node, error) {
	var o resolveOpts
	for _, opt := range opts {
		opt(&o)
	}

	var cur Node = g
	for i, k := range keys {
		parent, ok := cur.(container)
		if !ok {
			return nil, fmt.Errorf("%w: %v is a %s leaf, not a group (path %s)", ErrNoSuchGroup, cur.Name(), cur.Variant(), joinKeys(keys[:i+1]))
		}
		if child, found := parent.lookup(k); found {
			cur = child
			continue
		}

		pg, isGroup := parent.(*Group)
		create := isGroup && pg.AutoNodes()
		if o.create != nil {
			create = *o.create
		}
		if !create || !isGroup {
			return nil, fmt.Errorf("%w: %s", ErrNoSuchNode, joinKeys(keys[:i+1]))
		}
		if err := ValidateName(k); err != nil {
			return nil, err
		}
		var child Node
		if o.generator != nil {
			gen := o.generator(k)
			if gen == nil || isNilNode(gen) {
				return nil, fmt.Errorf("%w: generator returned nil for %s", ErrInvalidNode, joinKeys(keys[:i+1]))
			}
			child = rename(gen, k)
		} else {
			child = pg.generate(k)
		}
		pg.put(child)
		cur = child
	}
	return cur, nil
}

// Node resolves path and returns whatever node it names.
func (g *Group) Node(path string, opts ...ResolveOption) (Node, error) {
	return g.Resolve(path, opts...)
}

// Group resolves path and returns the group it names.
func (g *Group) Group(path string, opts ...ResolveOption) (*Group, error) {
	n, err := g.Resolve(path, opts...)
	if err != nil {
		return nil, err
	}
	sub, ok := n.(*Group)
	if !ok {
		return nil, fmt.Errorf("%w: %q is a %s leaf", ErrNoSuchGroup, path, n.Variant())
	}
	return sub, nil
}

// Child returns the direct child group called name, creating it when g has
// auto_nodes set. It is the explicit form of attribute-style access.
func (g *Group) Child(name string) (*Group, error) {
	k := keycodec.String(name)
	if err := ValidateName(k); err != nil {
		return nil, err
	}
	return g.Group(keycodec.Encode(k))
}

// Leaf returns the leaf at path.
func (g *Group) Leaf(path string) (Leaf, error) {
	keys, err := SplitPath(path)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: empty leaf path", ErrInvalidNode)
	}
	parent, err := g.ResolveKeys(keys[:len(keys)-1], WithCreate(false))
	if err != nil {
		return nil, err
	}
	c, ok := parent.(container)
	if !ok {
		return nil, fmt.Errorf("%w: parent of %q is a leaf", ErrNoSuchGroup, path)
	}
	n, found := c.lookup(keys[len(keys)-1])
	if !found {
		return nil, fmt.Errorf("%w: %q", ErrNoSuchLeaf, path)
	}
	l, ok := n.(Leaf)
	if !ok {
		return nil, fmt.Errorf("%w: %q is a group", ErrNoSuchLeaf, path)
	}
	return l, nil
}

// SetLeaf stores value at path. With makeParents, missing intermediate
// groups are created; otherwise a missing parent fails with ErrNoSuchGroup.
func (g *Group) SetLeaf(path string, value any, makeParents bool, opts ...AddOption) error {
	keys, err := SplitPath(path)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return fmt.Errorf("%w: empty leaf path", ErrInvalidNode)
	}
	parent, err := g.ResolveKeys(keys[:len(keys)-1], WithCreate(makeParents))
	if errors.Is(err, ErrNoSuchNode) {
		return fmt.Errorf("%w: %w", ErrNoSuchGroup, err)
	}
	if err != nil {
		return err
	}
	pg, ok := parent.(*Group)
	if !ok {
		return fmt.Errorf("%w: parent of %q is a %s leaf", ErrNoSuchGroup, path, parent.Variant())
	}
	return pg.AddChild(keys[len(keys)-1], value, opts...)
}

// NodeAttrs returns the attributes of the node at path.
func (g *Group) NodeAttrs(path string) (Attrs, error) {
	n, err := g.Resolve(path)
	if err != nil {
		return nil, err
	}
	return n.Attrs(), nil
}

// SetNodeAttrs merges attrs into the node at path. Missing segments are
// created as groups.
func (g *Group) SetNodeAttrs(path string, attrs Attrs) error {
	n, err := g.Resolve(path, WithCreate(true))
	if err != nil {
		return err
	}
	return n.SetAttrs(attrs)
}

func joinKeys(keys []keycodec.Key) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = keycodec.Encode(k)
	}
	return "/" + strings.Join(parts, "/")
}
