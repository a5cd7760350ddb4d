package cmd

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/agentic-research/hstore/internal/export"
	"github.com/agentic-research/hstore/internal/storage"
	"github.com/ohler55/ojg/oj"
	"github.com/spf13/cobra"
)

var (
	getYAML  bool
	setArray bool
	setNoMk  bool
)

func init() {
	getCmd.Flags().BoolVar(&getYAML, "yaml", false, "Print YAML instead of JSON")
	setCmd.Flags().BoolVar(&setArray, "array", false, "Store the value as a dense array")
	setCmd.Flags().BoolVar(&setNoMk, "no-parents", false, "Fail instead of creating missing groups")
	rootCmd.AddCommand(getCmd, setCmd, rmCmd, attrsCmd)
}

var getCmd = &cobra.Command{
	Use:   "get [store] [path]",
	Short: "Print the value at a path as JSON",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := loadStore(args[0])
		if err != nil {
			return err
		}
		n, err := root.Resolve(args[1], storage.WithCreate(false))
		if err != nil {
			return err
		}
		ext := ".json"
		if getYAML {
			ext = ".yaml"
		}
		return printDoc(cmd.OutOrStdout(), nodeValue(n), ext)
	},
}

// nodeValue is the plain form of a node as seen through the dictionary
// surface.
func nodeValue(n storage.Node) any {
	switch x := n.(type) {
	case *storage.ArrayLeaf:
		arr := x.Array()
		if v, ok := arr.Item(); ok && arr.Ndim() == 0 {
			return export.Plain(v)
		}
		return export.Plain(arr)
	case storage.Leaf:
		return export.Plain(x.Value())
	}
	return export.Plain(n)
}

func printDoc(w io.Writer, doc any, ext string) error {
	data, err := export.Encode(doc, ext, cfg.Indent)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

var setCmd = &cobra.Command{
	Use:   "set [store] [path] [value]",
	Short: "Store a JSON value at a path",
	Long: `Store a JSON value at a path, creating the store if needed.

Numbers become zero-dimensional arrays, JSON objects become dicts and
JSON lists become lists. Use --array to store a (nested) numeric list as
one dense array instead. A value that is not valid JSON is stored as a
string.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := openOrCreate(args[0])
		if err != nil {
			return err
		}
		var opts []storage.AddOption
		if setArray {
			opts = append(opts, storage.WithHint(storage.VariantArray))
		}
		if err := root.SetLeaf(args[1], parseValue(args[2]), !setNoMk, opts...); err != nil {
			return err
		}
		return saveStore(root, args[0])
	},
}

// parseValue reads s as JSON, falling back to the literal string.
func parseValue(s string) any {
	v, err := oj.ParseString(s)
	if err != nil {
		return s
	}
	return v
}

var rmCmd = &cobra.Command{
	Use:   "rm [store] [path]",
	Short: "Remove the node at a path",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := loadStore(args[0])
		if err != nil {
			return err
		}
		keys, err := storage.SplitPath(args[1])
		if err != nil {
			return err
		}
		if len(keys) == 0 {
			return fmt.Errorf("%w: cannot remove the root", storage.ErrInvalidNode)
		}
		parent, err := root.ResolveKeys(keys[:len(keys)-1], storage.WithCreate(false))
		if err != nil {
			return err
		}
		g, ok := parent.(*storage.Group)
		if !ok {
			return fmt.Errorf("%w: parent of %s is a %s leaf", storage.ErrNoSuchGroup, args[1], parent.Variant())
		}
		if _, err := g.RemoveChild(keys[len(keys)-1]); err != nil {
			return err
		}
		return saveStore(root, args[0])
	},
}

var attrsCmd = &cobra.Command{
	Use:   "attrs [store] [path] [key=value...]",
	Short: "Show or set node attributes",
	Long: `Without assignments, print the attributes of the node at path. With
key=value assignments, merge them into the node (creating missing groups)
and save. Values are read as JSON scalars, falling back to strings.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ""
		if len(args) > 1 {
			path = args[1]
		}
		if len(args) <= 2 {
			root, err := loadStore(args[0])
			if err != nil {
				return err
			}
			attrs, err := root.NodeAttrs(path)
			if err != nil {
				return err
			}
			return printDoc(cmd.OutOrStdout(), map[string]any(attrs), ".json")
		}

		attrs, err := parseAssignments(args[2:])
		if err != nil {
			return err
		}
		root, err := openOrCreate(args[0])
		if err != nil {
			return err
		}
		if err := root.SetNodeAttrs(path, attrs); err != nil {
			return err
		}
		return saveStore(root, args[0])
	},
}

func parseAssignments(args []string) (storage.Attrs, error) {
	attrs := storage.Attrs{}
	for _, a := range args {
		k, v, ok := strings.Cut(a, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("expected key=value, got %q", a)
		}
		val := parseValue(v)
		switch val.(type) {
		case []any, map[string]any, nil:
			val = v
		}
		attrs[k] = val
	}
	return attrs, nil
}

// sortedKeys returns the keys of m in order.
func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
