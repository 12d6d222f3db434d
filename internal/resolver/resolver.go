// Package resolver turns the current tree selection into the literal
// include/exclude path lists handed to a backend.
package resolver

import (
	"strings"

	"github.com/arvinmi/sif/internal/tree"
	"github.com/arvinmi/sif/internal/utils"
)

// SelectionSet is the canonical instruction set for a backend run: literal
// root-relative file paths, no globs or patterns. Include lists every file
// whose derived selection is Selected; Exclude is the complementary set of
// discovered files, so a backend can be driven from either direction. Both
// lists follow the tree's pre-order, making the output stable for a given
// tree state.
type SelectionSet struct {
	Root    string
	Include []string
	Exclude []string
}

// Empty reports whether nothing is selected.
func (s SelectionSet) Empty() bool {
	return len(s.Include) == 0
}

// Resolve walks the tree in pre-order and produces the selection set. An
// empty selection resolves to an explicit empty include list, never an
// error. Serializer output artifacts left behind by a previous run are kept
// out of both lists so a run can never ingest its own output.
func Resolve(selectionTree *tree.Tree) SelectionSet {
	rootPath := selectionTree.Node(selectionTree.Root()).Path
	resolved := SelectionSet{
		Root:    rootPath,
		Include: []string{},
		Exclude: []string{},
	}
	seen := make(map[string]struct{})
	selectionTree.Walk(func(node *tree.Node) {
		if node.Kind != tree.KindFile {
			return
		}
		relativePath := utils.RelativePathOrSelf(node.Path, rootPath)
		if _, duplicate := seen[relativePath]; duplicate {
			return
		}
		seen[relativePath] = struct{}{}
		if isSerializerArtifact(node.Name) {
			return
		}
		if node.Selection() == tree.Selected {
			resolved.Include = append(resolved.Include, relativePath)
		} else {
			resolved.Exclude = append(resolved.Exclude, relativePath)
		}
	})
	return resolved
}

// isSerializerArtifact recognizes output files produced by the serialization
// backends themselves.
func isSerializerArtifact(name string) bool {
	if strings.HasPrefix(name, "repomix-output") {
		return true
	}
	for _, suffix := range []string{"-repomix.txt", "-repomix.md", "-repomix.xml"} {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}
