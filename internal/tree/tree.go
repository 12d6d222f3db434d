// Package tree maintains the in-memory file tree with tri-state selection
// and per-node token accounting.
package tree

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// NodeID identifies a node inside a Tree's arena. IDs are stable for the
// lifetime of the tree.
type NodeID int

// InvalidNode marks the absence of a node reference.
const InvalidNode NodeID = -1

// Kind distinguishes files from directories.
type Kind int

const (
	// KindFile marks a regular file node.
	KindFile Kind = iota
	// KindDirectory marks a directory node.
	KindDirectory
)

// Selection is the tri-state inclusion status of a node. Files hold only
// Unselected or Selected; a directory's value is always derived from its
// descendant files.
type Selection int

const (
	// Unselected means the node contributes nothing to the selection.
	Unselected Selection = iota
	// Selected means the node and, for directories, every descendant file is included.
	Selected
	// PartiallySelected means some but not all descendant files are included.
	PartiallySelected
)

// CountState reports the lifecycle of a file's token count.
type CountState int

const (
	// CountPending means no count has been produced yet.
	CountPending CountState = iota
	// Counted means a token count is available.
	Counted
	// CountFailed means counting failed for this file and the error is recorded.
	CountFailed
)

// IgnorePredicate reports whether a path must be hidden from the tree. It is
// evaluated once per path during Build; a rejected directory is never
// descended into.
type IgnorePredicate func(path string, isDir bool) bool

// Node is one filesystem entry in the arena. Selection is authoritative only
// for files; directories derive it from descendant counters maintained by the
// tree's mutation operations.
type Node struct {
	ID     NodeID
	Path   string
	Name   string
	Kind   Kind
	Depth  int
	Parent NodeID

	// Children holds directory children ordered directories-first then
	// lexicographic, for reproducible traversal.
	Children []NodeID

	// Expanded controls visibility of children in VisibleSequence only.
	Expanded bool

	// ReadError records a failed directory listing; the node then has no
	// children but the rest of the tree stays usable.
	ReadError error

	selected bool

	countState CountState
	tokens     int
	countErr   error

	// Directory counters over descendant files, kept consistent by every
	// mutation so derived state is O(1) to read.
	totalFiles    int
	selectedFiles int
	countedFiles  int
	failedFiles   int
	countedTokens int
}

// Tree is the arena of nodes plus a path index. It is owned by a single
// goroutine; background workers never touch it directly.
type Tree struct {
	root       NodeID
	nodes      []*Node
	index      map[string]NodeID
	generation uint64
}

// Build walks the filesystem from rootPath, skipping every path the ignore
// predicate rejects. Symbolic links are not followed; a symlink entry is
// skipped entirely. Unreadable subdirectories are recorded per node via
// ReadError instead of aborting the build. The returned tree starts at
// generation 1 with the root expanded.
func Build(rootPath string, ignore IgnorePredicate) (*Tree, error) {
	absoluteRootPath, absolutePathError := filepath.Abs(rootPath)
	if absolutePathError != nil {
		return nil, fmt.Errorf("resolving absolute path for %s: %w", rootPath, absolutePathError)
	}
	rootInfo, rootStatError := os.Stat(absoluteRootPath)
	if rootStatError != nil {
		return nil, fmt.Errorf("reading root %s: %w", absoluteRootPath, rootStatError)
	}
	if !rootInfo.IsDir() {
		return nil, fmt.Errorf("root %s is not a directory", absoluteRootPath)
	}

	builtTree := &Tree{
		index:      make(map[string]NodeID),
		generation: 1,
	}
	rootNode := builtTree.addNode(absoluteRootPath, filepath.Base(absoluteRootPath), KindDirectory, 0, InvalidNode)
	rootNode.Expanded = true
	builtTree.root = rootNode.ID

	builtTree.populateChildren(rootNode, ignore)
	builtTree.recomputeAggregates()
	return builtTree, nil
}

func (t *Tree) addNode(path, name string, kind Kind, depth int, parent NodeID) *Node {
	node := &Node{
		ID:     NodeID(len(t.nodes)),
		Path:   path,
		Name:   name,
		Kind:   kind,
		Depth:  depth,
		Parent: parent,
	}
	t.nodes = append(t.nodes, node)
	t.index[path] = node.ID
	return node
}

func (t *Tree) populateChildren(directory *Node, ignore IgnorePredicate) {
	entries, readDirectoryError := os.ReadDir(directory.Path)
	if readDirectoryError != nil {
		directory.ReadError = readDirectoryError
		return
	}

	sort.SliceStable(entries, func(firstIndex, secondIndex int) bool {
		first, second := entries[firstIndex], entries[secondIndex]
		if first.IsDir() != second.IsDir() {
			return first.IsDir()
		}
		return first.Name() < second.Name()
	})

	for _, entry := range entries {
		if entry.Type()&fs.ModeSymlink != 0 {
			continue
		}
		childPath := filepath.Join(directory.Path, entry.Name())
		if ignore != nil && ignore(childPath, entry.IsDir()) {
			continue
		}
		childKind := KindFile
		if entry.IsDir() {
			childKind = KindDirectory
		}
		childNode := t.addNode(childPath, entry.Name(), childKind, directory.Depth+1, directory.ID)
		directory.Children = append(directory.Children, childNode.ID)
		if childKind == KindDirectory {
			t.populateChildren(childNode, ignore)
		}
	}
}

// Root returns the root node's identifier.
func (t *Tree) Root() NodeID { return t.root }

// Len returns the number of nodes in the arena.
func (t *Tree) Len() int { return len(t.nodes) }

// Node returns the node for id, or nil if id is out of range.
func (t *Tree) Node(id NodeID) *Node {
	if id < 0 || int(id) >= len(t.nodes) {
		return nil
	}
	return t.nodes[id]
}

// Lookup resolves a path to its node identifier.
func (t *Tree) Lookup(path string) (NodeID, bool) {
	id, found := t.index[path]
	return id, found
}

// Generation returns the current tree generation. Background work stamped
// with an older generation must be discarded on completion.
func (t *Tree) Generation() uint64 { return t.generation }

// Invalidate advances the generation, logically cancelling every in-flight
// background computation issued against the previous state.
func (t *Tree) Invalidate() { t.generation++ }

// Selection returns the derived tri-state selection of a node.
func (n *Node) Selection() Selection {
	if n.Kind == KindFile {
		if n.selected {
			return Selected
		}
		return Unselected
	}
	switch {
	case n.totalFiles == 0 || n.selectedFiles == 0:
		return Unselected
	case n.selectedFiles == n.totalFiles:
		return Selected
	default:
		return PartiallySelected
	}
}

// TokenCount returns the node's token count. For a file the count is final
// once its state is Counted. For a directory the boolean is true only when
// every descendant file counted successfully; partial sums are never
// reported as final.
func (n *Node) TokenCount() (int, bool) {
	if n.Kind == KindFile {
		return n.tokens, n.countState == Counted
	}
	return n.countedTokens, n.failedFiles == 0 && n.countedFiles == n.totalFiles
}

// CountState reports the counting lifecycle for a file node. Directories
// report Counted when complete, CountFailed when any descendant failed, and
// CountPending otherwise.
func (n *Node) CountState() CountState {
	if n.Kind == KindFile {
		return n.countState
	}
	switch {
	case n.failedFiles > 0:
		return CountFailed
	case n.countedFiles == n.totalFiles:
		return Counted
	default:
		return CountPending
	}
}

// CountError returns the recorded counting failure for a file, if any.
func (n *Node) CountError() error { return n.countErr }

// ToggleSelection flips a node's selection. A file alternates between
// Unselected and Selected. A directory whose derived state is Selected
// deselects every descendant file; any other derived state selects every
// descendant file. Ancestor aggregates are updated before returning.
func (t *Tree) ToggleSelection(id NodeID) {
	node := t.Node(id)
	if node == nil {
		return
	}
	if node.Kind == KindFile {
		t.setFileSelected(node, !node.selected)
		return
	}
	target := node.Selection() != Selected
	t.setSubtreeSelected(node, target)
}

func (t *Tree) setFileSelected(file *Node, selected bool) {
	if file.selected == selected {
		return
	}
	file.selected = selected
	delta := 1
	if !selected {
		delta = -1
	}
	for ancestor := t.Node(file.Parent); ancestor != nil; ancestor = t.Node(ancestor.Parent) {
		ancestor.selectedFiles += delta
	}
}

func (t *Tree) setSubtreeSelected(root *Node, selected bool) {
	previousSelected := root.selectedFilesUnder()
	t.forEachFileUnder(root, func(file *Node) {
		file.selected = selected
	})
	t.recomputeSubtreeSelection(root)
	delta := root.selectedFilesUnder() - previousSelected
	if delta == 0 {
		return
	}
	for ancestor := t.Node(root.Parent); ancestor != nil; ancestor = t.Node(ancestor.Parent) {
		ancestor.selectedFiles += delta
	}
}

func (n *Node) selectedFilesUnder() int {
	if n.Kind == KindFile {
		if n.selected {
			return 1
		}
		return 0
	}
	return n.selectedFiles
}

func (t *Tree) forEachFileUnder(node *Node, visit func(*Node)) {
	if node.Kind == KindFile {
		visit(node)
		return
	}
	for _, childID := range node.Children {
		t.forEachFileUnder(t.nodes[childID], visit)
	}
}

func (t *Tree) recomputeSubtreeSelection(node *Node) int {
	if node.Kind == KindFile {
		return node.selectedFilesUnder()
	}
	selected := 0
	for _, childID := range node.Children {
		selected += t.recomputeSubtreeSelection(t.nodes[childID])
	}
	node.selectedFiles = selected
	return selected
}

// SelectAll marks every file Selected and recomputes aggregates once.
func (t *Tree) SelectAll() { t.setAllSelected(true) }

// UnselectAll clears every file's selection and recomputes aggregates once.
func (t *Tree) UnselectAll() { t.setAllSelected(false) }

func (t *Tree) setAllSelected(selected bool) {
	for _, node := range t.nodes {
		if node.Kind == KindFile {
			node.selected = selected
		}
	}
	t.recomputeSubtreeSelection(t.nodes[t.root])
}

// SetExpanded sets a directory's expansion flag. Files are unaffected, as is
// selection and token state.
func (t *Tree) SetExpanded(id NodeID, expanded bool) {
	node := t.Node(id)
	if node == nil || node.Kind != KindDirectory {
		return
	}
	node.Expanded = expanded
}

// ExpandAll expands every directory.
func (t *Tree) ExpandAll() {
	for _, node := range t.nodes {
		if node.Kind == KindDirectory {
			node.Expanded = true
		}
	}
}

// CollapseAll collapses every directory except the root, which stays
// expanded so the top level remains visible.
func (t *Tree) CollapseAll() {
	for _, node := range t.nodes {
		if node.Kind == KindDirectory {
			node.Expanded = node.ID == t.root
		}
	}
}

// VisibleSequence returns the depth-first pre-order traversal of nodes whose
// ancestors are all expanded. The root itself is omitted, matching the
// rootless display the interface renders. The sequence is recomputed from
// current state on every call.
func (t *Tree) VisibleSequence() []NodeID {
	visible := make([]NodeID, 0, len(t.nodes))
	rootNode := t.nodes[t.root]
	if !rootNode.Expanded {
		return visible
	}
	for _, childID := range rootNode.Children {
		t.appendVisible(childID, &visible)
	}
	return visible
}

func (t *Tree) appendVisible(id NodeID, visible *[]NodeID) {
	node := t.nodes[id]
	*visible = append(*visible, id)
	if node.Kind == KindDirectory && node.Expanded {
		for _, childID := range node.Children {
			t.appendVisible(childID, visible)
		}
	}
}

// Walk visits every node in pre-order, independent of expansion state.
// Child order is the deterministic build order, so repeated walks over the
// same tree state visit nodes identically.
func (t *Tree) Walk(visit func(*Node)) {
	t.walkFrom(t.root, visit)
}

func (t *Tree) walkFrom(id NodeID, visit func(*Node)) {
	node := t.nodes[id]
	visit(node)
	for _, childID := range node.Children {
		t.walkFrom(childID, visit)
	}
}

// FileRef pairs a file node with its path for handing to background workers
// without sharing the tree itself.
type FileRef struct {
	ID   NodeID
	Path string
}

// PendingFiles returns every file node that has no count yet. Failed files
// are not re-issued automatically; a rescan resets them.
func (t *Tree) PendingFiles() []FileRef {
	var pending []FileRef
	t.Walk(func(node *Node) {
		if node.Kind == KindFile && node.countState == CountPending {
			pending = append(pending, FileRef{ID: node.ID, Path: node.Path})
		}
	})
	return pending
}

// ApplyCount records a completed token count for a file and propagates the
// aggregate to every ancestor. Calling it for a directory or an already
// counted file is a no-op.
func (t *Tree) ApplyCount(id NodeID, tokens int) {
	node := t.Node(id)
	if node == nil || node.Kind != KindFile || node.countState == Counted {
		return
	}
	previousFailed := node.countState == CountFailed
	node.countState = Counted
	node.tokens = tokens
	node.countErr = nil
	for ancestor := t.Node(node.Parent); ancestor != nil; ancestor = t.Node(ancestor.Parent) {
		ancestor.countedFiles++
		ancestor.countedTokens += tokens
		if previousFailed {
			ancestor.failedFiles--
		}
	}
}

// ApplyCountError records a counting failure for a file. The error is local:
// ancestors keep an unresolved token count but sibling files are unaffected.
func (t *Tree) ApplyCountError(id NodeID, countError error) {
	node := t.Node(id)
	if node == nil || node.Kind != KindFile || node.countState != CountPending {
		return
	}
	node.countState = CountFailed
	node.countErr = countError
	for ancestor := t.Node(node.Parent); ancestor != nil; ancestor = t.Node(ancestor.Parent) {
		ancestor.failedFiles++
	}
}

// SelectedTokens sums the counts of selected files. The boolean reports
// whether the sum is final, i.e. every selected file has a successful count.
func (t *Tree) SelectedTokens() (int, bool) {
	total := 0
	complete := true
	t.Walk(func(node *Node) {
		if node.Kind != KindFile || !node.selected {
			return
		}
		if node.countState == Counted {
			total += node.tokens
		} else {
			complete = false
		}
	})
	return total, complete
}

func (t *Tree) recomputeAggregates() {
	var recompute func(node *Node) (files, selected, counted, failed, tokens int)
	recompute = func(node *Node) (int, int, int, int, int) {
		if node.Kind == KindFile {
			selected := 0
			if node.selected {
				selected = 1
			}
			counted, failed, tokens := 0, 0, 0
			switch node.countState {
			case Counted:
				counted, tokens = 1, node.tokens
			case CountFailed:
				failed = 1
			}
			return 1, selected, counted, failed, tokens
		}
		totalFiles, selectedFiles, countedFiles, failedFiles, countedTokens := 0, 0, 0, 0, 0
		for _, childID := range node.Children {
			files, selected, counted, failed, tokens := recompute(t.nodes[childID])
			totalFiles += files
			selectedFiles += selected
			countedFiles += counted
			failedFiles += failed
			countedTokens += tokens
		}
		node.totalFiles = totalFiles
		node.selectedFiles = selectedFiles
		node.countedFiles = countedFiles
		node.failedFiles = failedFiles
		node.countedTokens = countedTokens
		return totalFiles, selectedFiles, countedFiles, failedFiles, countedTokens
	}
	recompute(t.nodes[t.root])
}
