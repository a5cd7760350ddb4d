package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/agentic-research/hstore/internal/keycodec"
	"github.com/agentic-research/hstore/internal/storage"
	"github.com/fatih/color"
	"github.com/ohler55/ojg"
	"github.com/ohler55/ojg/oj"
	diffpatch "github.com/sergi/go-diff/diffmatchpatch"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(diffCmd)
}

var diffCmd = &cobra.Command{
	Use:   "diff [a] [b]",
	Short: "Show node, value and attribute differences between two stores",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadStore(args[0])
		if err != nil {
			return err
		}
		b, err := loadStore(args[1])
		if err != nil {
			return err
		}
		return writeDiff(cmd.OutOrStdout(), dumpLines(a), dumpLines(b))
	},
}

// dumpLines renders every node as one line: its path, variant, compact
// JSON value (leaves only) and attributes.
func dumpLines(root *storage.Group) string {
	var b strings.Builder
	var walk func(g *storage.Group, prefix string)
	walk = func(g *storage.Group, prefix string) {
		for _, n := range g.Children() {
			path := prefix + "/" + keycodec.Encode(n.Name())
			fmt.Fprintf(&b, "%s %s", path, n.Variant())
			if _, isLeaf := n.(storage.Leaf); isLeaf {
				b.WriteString(" = ")
				b.WriteString(oj.JSON(nodeValue(n), &ojg.Options{Sort: true}))
			}
			attrs := n.Attrs()
			for _, k := range sortedKeys(attrs) {
				fmt.Fprintf(&b, " @%s=%v", k, attrs[k])
			}
			b.WriteByte('\n')
			if sub, ok := n.(*storage.Group); ok {
				walk(sub, path)
			}
		}
	}
	attrs := root.Attrs()
	b.WriteString("/")
	for _, k := range sortedKeys(attrs) {
		fmt.Fprintf(&b, " @%s=%v", k, attrs[k])
	}
	b.WriteByte('\n')
	walk(root, "")
	return b.String()
}

// writeDiff prints a line diff of two dumps. Unchanged lines are omitted.
func writeDiff(w io.Writer, from, to string) error {
	dmp := diffpatch.New()
	a, b, lines := dmp.DiffLinesToChars(from, to)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	add := color.New(color.FgGreen)
	del := color.New(color.FgRed)
	changed := 0
	for _, d := range diffs {
		var prefix string
		var c *color.Color
		switch d.Type {
		case diffpatch.DiffInsert:
			prefix, c = "+", add
		case diffpatch.DiffDelete:
			prefix, c = "-", del
		default:
			continue
		}
		for _, line := range strings.SplitAfter(d.Text, "\n") {
			if line == "" {
				continue
			}
			changed++
			if _, err := c.Fprint(w, prefix+line); err != nil {
				return err
			}
		}
	}
	if changed == 0 {
		_, err := fmt.Fprintln(w, "no differences")
		return err
	}
	return nil
}
