package archive

import (
	"fmt"
	"slices"

	"github.com/agentic-research/hstore/internal/container"
	"github.com/agentic-research/hstore/internal/keycodec"
	"github.com/agentic-research/hstore/internal/storage"
)

// Columns of the table backing a dict leaf. Exactly one of the key columns
// is set per row.
const (
	colKeyString  = "key_string"
	colKeyFloat   = "key_float"
	colValueFloat = "value_float"
)

var dictColumns = []container.Column{
	{Name: colKeyString, Type: container.ColText},
	{Name: colKeyFloat, Type: container.ColReal},
	{Name: colValueFloat, Type: container.ColReal},
}

// Write serializes root into w with a pre-order traversal. The root name
// becomes the container title. w is not closed.
func Write(root *storage.Group, w container.Writer) error {
	if err := w.SetTitle(keycodec.Encode(root.Name())); err != nil {
		return err
	}
	return writeGroup(w, w.Root(), root)
}

func writeGroup(w container.Writer, id container.NodeID, g *storage.Group) error {
	if err := writeAttrs(w, id, g); err != nil {
		return err
	}
	for _, child := range g.Children() {
		if err := writeNode(w, id, child); err != nil {
			return err
		}
	}
	return nil
}

func writeNode(w container.Writer, parent container.NodeID, n storage.Node) error {
	name := keycodec.Encode(n.Name())
	switch x := n.(type) {
	case *storage.Group:
		id, err := w.CreateGroup(parent, name)
		if err != nil {
			return err
		}
		return writeGroup(w, id, x)

	case *storage.ArrayLeaf:
		id, err := w.CreateArray(parent, name, x.Array())
		if err != nil {
			return err
		}
		return writeAttrs(w, id, x)

	case *storage.DictLeaf:
		id, err := w.CreateTable(parent, name, dictColumns)
		if err != nil {
			return err
		}
		rows := make([][]any, 0, x.Len())
		for _, r := range x.Rows() {
			if r.Key.IsString() {
				rows = append(rows, []any{r.Key.Str(), nil, r.Value})
			} else {
				rows = append(rows, []any{nil, r.Key.FloatValue(), r.Value})
			}
		}
		if err := w.AppendRows(id, rows); err != nil {
			return fmt.Errorf("dict %s: %w", name, err)
		}
		return writeAttrs(w, id, x)

	case *storage.ListLeaf:
		id, err := w.CreateGroup(parent, name)
		if err != nil {
			return err
		}
		if err := writeAttrs(w, id, x); err != nil {
			return err
		}
		for _, item := range x.Items() {
			if err := writeNode(w, id, item); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("%w: %T", storage.ErrInvalidNode, n)
}

// writeAttrs stores the user attributes of n plus its type tag.
func writeAttrs(w container.Writer, id container.NodeID, n storage.Node) error {
	attrs := n.Attrs()
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		if err := w.SetAttr(id, k, attrs[k]); err != nil {
			return err
		}
	}
	return w.SetAttr(id, storage.TypeAttr, n.Variant().Tag())
}
