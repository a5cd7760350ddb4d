// Package export projects a store tree into flat per-group tables and
// writes them as JSON or YAML documents. The projection is one-way.
package export

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/agentic-research/hstore/internal/keycodec"
	"github.com/agentic-research/hstore/internal/ndarray"
	"github.com/agentic-research/hstore/internal/storage"
	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/goccy/go-yaml"
	"github.com/ohler55/ojg"
	"github.com/ohler55/ojg/oj"
)

var ErrUnknownFormat = errors.New("unknown export format")

// Entry is one leaf of a table.
type Entry struct {
	Key   keycodec.Key
	Value any
}

// Table holds the direct leaves of one group.
type Table struct {
	Name    string
	Entries []Entry
}

// Flatten returns one table per group in pre-order, root first. Tables are
// named base.<root>.<group>... with empty segments left out. Leaf values
// are passed through as returned by Group.All.
func Flatten(root *storage.Group, base string) []Table {
	var out []Table
	var walk func(g *storage.Group, segs []string)
	walk = func(g *storage.Group, segs []string) {
		t := Table{Name: joinName(segs)}
		for k, v := range g.All() {
			t.Entries = append(t.Entries, Entry{Key: k, Value: v})
		}
		out = append(out, t)
		for _, k := range g.Groups() {
			n, _ := g.ChildNode(k)
			walk(n.(*storage.Group), append(segs[:len(segs):len(segs)], Segment(k)))
		}
	}
	walk(root, []string{base, Segment(root.Name())})
	return out
}

func joinName(segs []string) string {
	parts := make([]string, 0, len(segs))
	for _, s := range segs {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ".")
}

// Segment renders a key for use in a table name or document field.
func Segment(k keycodec.Key) string {
	if k.IsString() {
		return k.Str()
	}
	return keycodec.Encode(k)
}

// Doc returns the table as a document keyed by leaf name.
func (t Table) Doc() map[string]any {
	doc := make(map[string]any, len(t.Entries))
	for _, e := range t.Entries {
		doc[Segment(e.Key)] = Plain(e.Value)
	}
	return doc
}

// Plain converts a leaf value into plain Go data that JSON and YAML
// encoders accept. Arrays become nested lists, complex numbers and
// non-string dict keys become their codec strings, and groups become
// nested maps.
func Plain(v any) any {
	switch x := v.(type) {
	case *ndarray.Array:
		return Plain(x.ToList())
	case complex128:
		return keycodec.Encode(keycodec.Complex(x))
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = Plain(e)
		}
		return out
	case map[keycodec.Key]float64:
		out := make(map[string]any, len(x))
		for k, f := range x {
			out[Segment(k)] = f
		}
		return out
	case *storage.Group:
		out := make(map[string]any)
		for k, lv := range x.All() {
			out[Segment(k)] = Plain(lv)
		}
		for _, k := range x.Groups() {
			n, _ := x.ChildNode(k)
			out[Segment(k)] = Plain(n)
		}
		return out
	}
	return v
}

// Encode renders doc in the format named by ext (".json", ".yaml" or
// ".yml").
func Encode(doc any, ext string, indent int) ([]byte, error) {
	switch strings.ToLower(ext) {
	case ".json":
		return []byte(oj.JSON(doc, &ojg.Options{Indent: indent, Sort: true}) + "\n"), nil
	case ".yaml", ".yml":
		if indent <= 0 {
			indent = 2
		}
		return yaml.MarshalWithOptions(doc, yaml.Indent(indent))
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, ext)
}

// IsFormat reports whether name ends in an export extension.
func IsFormat(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}

// Write flattens root and writes one file per table into fs. dest selects
// the format by extension and, without it, is the base of every table
// name. It returns the written file names.
func Write(fs billy.Filesystem, root *storage.Group, dest string, indent int) ([]string, error) {
	ext := path.Ext(dest)
	if !IsFormat(dest) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, ext)
	}
	dir, file := path.Split(strings.TrimSuffix(dest, ext))

	var written []string
	for _, t := range Flatten(root, file) {
		data, err := Encode(t.Doc(), ext, indent)
		if err != nil {
			return written, fmt.Errorf("encode %s: %w", t.Name, err)
		}
		name := path.Join(dir, t.Name+ext)
		if err := util.WriteFile(fs, name, data, 0o644); err != nil {
			return written, fmt.Errorf("write %s: %w", name, err)
		}
		written = append(written, name)
	}
	return written, nil
}
