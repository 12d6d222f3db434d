package resolver_test

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/arvinmi/sif/internal/resolver"
	"github.com/arvinmi/sif/internal/tree"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func buildFixture(t *testing.T) (*tree.Tree, string) {
	t.Helper()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.py"), "print('a')")
	writeFile(t, filepath.Join(root, "b.py"), "print('b')")
	writeFile(t, filepath.Join(root, "tests", "c.py"), "print('c')")
	builtTree, err := tree.Build(root, nil)
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	return builtTree, root
}

func toggle(t *testing.T, builtTree *tree.Tree, path string) {
	t.Helper()
	id, found := builtTree.Lookup(path)
	if !found {
		t.Fatalf("path %s missing from tree", path)
	}
	builtTree.ToggleSelection(id)
}

func TestResolvePartialSelection(t *testing.T) {
	builtTree, root := buildFixture(t)
	toggle(t, builtTree, filepath.Join(root, "a.py"))
	toggle(t, builtTree, filepath.Join(root, "b.py"))

	resolved := resolver.Resolve(builtTree)
	expectedInclude := []string{"a.py", "b.py"}
	if !reflect.DeepEqual(resolved.Include, expectedInclude) {
		t.Fatalf("expected include %v, got %v", expectedInclude, resolved.Include)
	}
	expectedExclude := []string{"tests/c.py"}
	if !reflect.DeepEqual(resolved.Exclude, expectedExclude) {
		t.Fatalf("expected exclude %v, got %v", expectedExclude, resolved.Exclude)
	}
	if builtTree.Node(builtTree.Root()).Selection() != tree.PartiallySelected {
		t.Fatalf("expected PartiallySelected root")
	}
}

func TestResolveSelectAllPreOrder(t *testing.T) {
	builtTree, _ := buildFixture(t)
	builtTree.SelectAll()

	resolved := resolver.Resolve(builtTree)
	// Pre-order with directories first: tests/c.py precedes the root files.
	expected := []string{"tests/c.py", "a.py", "b.py"}
	if !reflect.DeepEqual(resolved.Include, expected) {
		t.Fatalf("expected include %v, got %v", expected, resolved.Include)
	}
	if len(resolved.Exclude) != 0 {
		t.Fatalf("expected empty exclude, got %v", resolved.Exclude)
	}
	if builtTree.Node(builtTree.Root()).Selection() != tree.Selected {
		t.Fatalf("expected Selected root")
	}
}

func TestResolveEmptySelection(t *testing.T) {
	builtTree, _ := buildFixture(t)
	resolved := resolver.Resolve(builtTree)
	if !resolved.Empty() {
		t.Fatalf("expected empty selection set")
	}
	if resolved.Include == nil {
		t.Fatalf("empty selection must still be an explicit empty list")
	}
	if len(resolved.Exclude) != 3 {
		t.Fatalf("expected all files in exclude, got %v", resolved.Exclude)
	}
}

func TestResolveDeterminism(t *testing.T) {
	first, firstRoot := buildFixture(t)
	toggle(t, first, filepath.Join(firstRoot, "a.py"))
	toggle(t, first, filepath.Join(firstRoot, "tests", "c.py"))

	second, secondRoot := buildFixture(t)
	toggle(t, second, filepath.Join(secondRoot, "a.py"))
	toggle(t, second, filepath.Join(secondRoot, "tests", "c.py"))

	firstResolved := resolver.Resolve(first)
	secondResolved := resolver.Resolve(second)
	if !reflect.DeepEqual(firstResolved.Include, secondResolved.Include) {
		t.Fatalf("structurally identical trees resolved differently: %v vs %v", firstResolved.Include, secondResolved.Include)
	}
	if !reflect.DeepEqual(firstResolved.Exclude, secondResolved.Exclude) {
		t.Fatalf("exclude lists differ: %v vs %v", firstResolved.Exclude, secondResolved.Exclude)
	}

	repeated := resolver.Resolve(first)
	if !reflect.DeepEqual(firstResolved, repeated) {
		t.Fatalf("repeated resolve on unchanged tree differed")
	}
}

func TestResolveSkipsSerializerArtifacts(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "kept.go"), "package kept")
	writeFile(t, filepath.Join(root, "repomix-output.md"), "stale output")
	writeFile(t, filepath.Join(root, "project-repomix.xml"), "stale output")
	builtTree, err := tree.Build(root, nil)
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	builtTree.SelectAll()

	resolved := resolver.Resolve(builtTree)
	expected := []string{"kept.go"}
	if !reflect.DeepEqual(resolved.Include, expected) {
		t.Fatalf("expected include %v, got %v", expected, resolved.Include)
	}
}
