package archive

import (
	"fmt"
	"log"
	"slices"

	"github.com/agentic-research/hstore/internal/container"
	"github.com/agentic-research/hstore/internal/keycodec"
	"github.com/agentic-research/hstore/internal/storage"
)

// Read rebuilds a tree from r. The tree is assembled in isolation and only
// returned once fully populated. r is not closed.
func Read(r container.Reader) (*storage.Group, error) {
	name, err := keycodec.Decode(r.Title())
	if err != nil {
		return nil, fmt.Errorf("title: %w", err)
	}
	attrs, err := r.Attrs(r.Root())
	if err != nil {
		return nil, err
	}
	delete(attrs, storage.TypeAttr)
	root, err := storage.NewGroup(name, attrs)
	if err != nil {
		return nil, fmt.Errorf("root attributes: %w", err)
	}
	if err := readChildren(r, r.Root(), "", root, nil); err != nil {
		return nil, err
	}
	return root, nil
}

// readChildren inserts the tagged descendants of id into dst. Untagged
// groups are walked through; their names accumulate in prefix and become
// the insertion path below dst.
func readChildren(r container.Reader, id container.NodeID, path string, dst *storage.Group, prefix []keycodec.Key) error {
	kids, err := r.Children(id)
	if err != nil {
		return err
	}
	for _, c := range kids {
		cpath := path + "/" + c.Name
		attrs, err := r.Attrs(c.ID)
		if err != nil {
			return err
		}
		key, err := keycodec.Decode(c.Name)
		if err != nil {
			return fmt.Errorf("%s: %w", cpath, err)
		}

		if _, tagged := attrs[storage.TypeAttr]; !tagged {
			if c.Kind != container.KindGroup {
				log.Printf("archive: skipping untagged %s %s", c.Kind, cpath)
				continue
			}
			if err := readChildren(r, c.ID, cpath, dst, append(slices.Clone(prefix), key)); err != nil {
				return err
			}
			continue
		}

		n, err := readNode(r, c, cpath, key, attrs)
		if err != nil {
			return err
		}
		parent := dst
		if len(prefix) > 0 {
			pn, err := dst.ResolveKeys(prefix, storage.WithCreate(true), storage.WithGenerator(plainGroup))
			if err != nil {
				return fmt.Errorf("%s: %w", cpath, err)
			}
			g, ok := pn.(*storage.Group)
			if !ok {
				return fmt.Errorf("%s: %w: parent is a %s leaf", cpath, storage.ErrNoSuchGroup, pn.Variant())
			}
			parent = g
		}
		if err := parent.Insert(n); err != nil {
			return fmt.Errorf("%s: %w", cpath, err)
		}
	}
	return nil
}

// plainGroup builds the groups standing in for untagged container groups.
// They carry no attributes of their own.
func plainGroup(k keycodec.Key) storage.Node {
	g, _ := storage.NewGroup(k, nil)
	return g
}

// readNode reconstructs one tagged node. attrs still holds the type tag.
func readNode(r container.Reader, c container.Child, path string, key keycodec.Key, attrs map[string]any) (storage.Node, error) {
	tag, _ := attrs[storage.TypeAttr].(string)
	variant, ok := storage.VariantForTag(tag)
	if !ok {
		return nil, &UnknownStoredTypeError{Path: path, Tag: attrs[storage.TypeAttr]}
	}
	delete(attrs, storage.TypeAttr)
	user := storage.Attrs(attrs)

	want := container.KindGroup
	switch variant {
	case storage.VariantDict:
		want = container.KindTable
	case storage.VariantArray:
		want = container.KindArray
	}
	if c.Kind != want {
		return nil, fmt.Errorf("%s: %s tag on a %s node: %w", path, tag, c.Kind, container.ErrWrongKind)
	}

	switch variant {
	case storage.VariantGroup:
		g, err := storage.NewGroup(key, user)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if err := readChildren(r, c.ID, path, g, nil); err != nil {
			return nil, err
		}
		return g, nil

	case storage.VariantArray:
		arr, err := r.ReadArray(c.ID)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		l, err := storage.NewArrayLeaf(key, arr, user)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return l, nil

	case storage.VariantDict:
		m, err := readDict(r, c.ID, path)
		if err != nil {
			return nil, err
		}
		l, err := storage.NewDictLeaf(key, m, user)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return l, nil

	default:
		l, err := readList(r, c.ID, path, key, user)
		if err != nil {
			return nil, err
		}
		return l, nil
	}
}

func readDict(r container.Reader, id container.NodeID, path string) (map[keycodec.Key]float64, error) {
	cols, rows, err := r.ReadTable(id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	ks, kf, vf := -1, -1, -1
	for i, col := range cols {
		switch col.Name {
		case colKeyString:
			ks = i
		case colKeyFloat:
			kf = i
		case colValueFloat:
			vf = i
		}
	}
	if ks < 0 || kf < 0 || vf < 0 {
		return nil, fmt.Errorf("%s: %w: missing dict columns", path, ErrMalformedRow)
	}

	m := make(map[keycodec.Key]float64, len(rows))
	for i, row := range rows {
		value, ok := asFloat(row[vf])
		if !ok {
			return nil, fmt.Errorf("%s row %d: %w: value %v", path, i, ErrMalformedRow, row[vf])
		}
		s, hasString := row[ks].(string)
		f, hasFloat := asFloat(row[kf])
		switch {
		case hasString && row[kf] == nil:
			m[keycodec.String(s)] = value
		case hasFloat && row[ks] == nil:
			m[keycodec.Float(f)] = value
		default:
			return nil, fmt.Errorf("%s row %d: %w: key_string=%v key_float=%v", path, i, ErrMalformedRow, row[ks], row[kf])
		}
	}
	return m, nil
}

func asFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int64:
		return float64(x), true
	}
	return 0, false
}

func readList(r container.Reader, id container.NodeID, path string, key keycodec.Key, attrs storage.Attrs) (*storage.ListLeaf, error) {
	kids, err := r.Children(id)
	if err != nil {
		return nil, err
	}
	items := make([]storage.Node, len(kids))
	for _, c := range kids {
		cpath := path + "/" + c.Name
		i, ok := storage.ParseListIndex(keycodec.String(c.Name))
		if !ok || i >= len(items) || items[i] != nil {
			return nil, fmt.Errorf("%s: %w: unexpected element %q", path, ErrMalformedList, c.Name)
		}
		cattrs, err := r.Attrs(c.ID)
		if err != nil {
			return nil, err
		}
		if _, tagged := cattrs[storage.TypeAttr]; !tagged {
			return nil, fmt.Errorf("%s: %w: untagged element", cpath, ErrMalformedList)
		}
		n, err := readNode(r, c, cpath, keycodec.String(c.Name), cattrs)
		if err != nil {
			return nil, err
		}
		items[i] = n
	}

	l, err := storage.NewListLeaf(key, nil, attrs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	for _, n := range items {
		l.AppendNode(n)
	}
	return l, nil
}
