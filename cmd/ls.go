package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/agentic-research/hstore/internal/export"
	"github.com/agentic-research/hstore/internal/keycodec"
	"github.com/agentic-research/hstore/internal/storage"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var lsWhere string

func init() {
	lsCmd.Flags().StringVarP(&lsWhere, "where", "w", "", "Only list leaves matching an expression over name, path, variant, size, attrs and value")
	rootCmd.AddCommand(lsCmd)
}

var lsCmd = &cobra.Command{
	Use:   "ls [store] [path]",
	Short: "Show the tree of a store",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := loadStore(args[0])
		if err != nil {
			return err
		}
		g := root
		if len(args) == 2 {
			if g, err = root.Group(args[1], storage.WithCreate(false)); err != nil {
				return err
			}
		}
		out := cmd.OutOrStdout()
		if lsWhere == "" {
			return renderTree(out, g, "")
		}
		prog, err := compileFilter(lsWhere)
		if err != nil {
			return err
		}
		return listMatches(out, g, "", prog)
	},
}

var (
	groupColor = color.New(color.FgBlue, color.Bold)
	leafColor  = color.New(color.FgGreen)
	metaColor  = color.New(color.FgHiBlack)
)

// renderTree prints groups before leaves at every level, the same order
// Group.String uses.
func renderTree(w io.Writer, g *storage.Group, indent string) error {
	for _, k := range g.Groups() {
		n, _ := g.ChildNode(k)
		if _, err := fmt.Fprintf(w, "%s%s\n", indent, groupColor.Sprint("+"+export.Segment(k))); err != nil {
			return err
		}
		if err := renderTree(w, n.(*storage.Group), indent+"| "); err != nil {
			return err
		}
	}
	for _, k := range g.Leaves() {
		n, _ := g.ChildNode(k)
		if _, err := fmt.Fprintf(w, "%s%s %s\n", indent, leafColor.Sprint("-"+export.Segment(k)), metaColor.Sprint(describeLeaf(n))); err != nil {
			return err
		}
	}
	return nil
}

func describeLeaf(n storage.Node) string {
	switch x := n.(type) {
	case *storage.ArrayLeaf:
		arr := x.Array()
		return fmt.Sprintf("array %s%v", arr.DType(), arr.Shape())
	case *storage.DictLeaf:
		return fmt.Sprintf("dict [%d]", x.Len())
	case *storage.ListLeaf:
		return fmt.Sprintf("list [%d]", x.Len())
	}
	return n.Variant().String()
}

// leafEnv is the environment of a --where expression.
type leafEnv struct {
	Name    string         `expr:"name"`
	Path    string         `expr:"path"`
	Variant string         `expr:"variant"`
	Size    int            `expr:"size"`
	Attrs   map[string]any `expr:"attrs"`
	Value   any            `expr:"value"`
}

func filterEnv(path string, l storage.Leaf) leafEnv {
	env := leafEnv{
		Name:    export.Segment(l.Name()),
		Path:    path,
		Variant: l.Variant().String(),
		Attrs:   l.Attrs(),
	}
	switch x := l.(type) {
	case *storage.ArrayLeaf:
		arr := x.Array()
		env.Size = arr.Size()
		if v, ok := arr.Item(); ok && arr.Ndim() == 0 {
			env.Value = export.Plain(v)
		} else {
			env.Value = export.Plain(arr)
		}
	case *storage.DictLeaf:
		env.Size = x.Len()
		env.Value = export.Plain(x.Value())
	case *storage.ListLeaf:
		env.Size = x.Len()
		env.Value = export.Plain(x.Value())
	}
	return env
}

func compileFilter(src string) (*vm.Program, error) {
	prog, err := expr.Compile(src, expr.Env(leafEnv{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("--where: %w", err)
	}
	return prog, nil
}

// listMatches prints the path of every leaf below g for which prog holds.
func listMatches(w io.Writer, g *storage.Group, prefix string, prog *vm.Program) error {
	for _, n := range g.Children() {
		path := prefix + "/" + keycodec.Encode(n.Name())
		if sub, ok := n.(*storage.Group); ok {
			if err := listMatches(w, sub, path, prog); err != nil {
				return err
			}
			continue
		}
		res, err := expr.Run(prog, filterEnv(path, n.(storage.Leaf)))
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if match, _ := res.(bool); match {
			if _, err := fmt.Fprintf(w, "%s %s\n", strings.TrimPrefix(path, "/"), metaColor.Sprint(describeLeaf(n))); err != nil {
				return err
			}
		}
	}
	return nil
}
