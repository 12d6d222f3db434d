package tree

import "strings"

const outlineIndent = "  "

// Outline renders the full tree as indented text, one entry per line with
// directories suffixed by a slash. Expansion state is ignored so the outline
// always reflects the complete scanned structure.
func (t *Tree) Outline() string {
	var builder strings.Builder
	rootNode := t.nodes[t.root]
	for _, childID := range rootNode.Children {
		t.writeOutline(childID, 0, &builder)
	}
	return builder.String()
}

func (t *Tree) writeOutline(id NodeID, depth int, builder *strings.Builder) {
	node := t.nodes[id]
	builder.WriteString(strings.Repeat(outlineIndent, depth))
	builder.WriteString(node.Name)
	if node.Kind == KindDirectory {
		builder.WriteString("/")
	}
	builder.WriteString("\n")
	for _, childID := range node.Children {
		t.writeOutline(childID, depth+1, builder)
	}
}
