package storage

import "strings"

// String renders the tree with groups first (prefixed "+", their contents
// indented by "|") followed by leaves (prefixed "-"):
//
//	Storage:Test
//	|+x
//	||+z
//	|||-asd
//	||-cat
//	|-blast
func (g *Group) String() string {
	var b strings.Builder
	b.WriteString("Storage:")
	b.WriteString(g.name.String())
	for _, line := range g.renderLines() {
		b.WriteString("\n|")
		b.WriteString(line)
	}
	return b.String()
}

func (g *Group) renderLines() []string {
	var groups, leaves []string
	for _, k := range g.order {
		switch n := g.children[k].(type) {
		case *Group:
			groups = append(groups, "+"+k.String())
			for _, line := range n.renderLines() {
				groups = append(groups, "|"+line)
			}
		default:
			leaves = append(leaves, "-"+k.String())
		}
	}
	return append(groups, leaves...)
}
