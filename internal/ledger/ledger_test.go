package ledger_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/arvinmi/sif/internal/ledger"
	"github.com/arvinmi/sif/internal/tree"
)

type runeCounter struct {
	calls atomic.Int64
}

func (c *runeCounter) Name() string { return "stub" }

func (c *runeCounter) CountString(input string) (int, error) {
	c.calls.Add(1)
	return len([]rune(input)), nil
}

// gatedCounter blocks each count until the gate for its exact input is
// closed, letting tests force completion order.
type gatedCounter struct {
	entered chan string
	gates   map[string]chan struct{}
}

func (c *gatedCounter) Name() string { return "gated" }

func (c *gatedCounter) CountString(input string) (int, error) {
	c.entered <- input
	<-c.gates[input]
	return len([]rune(input)), nil
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func buildTree(t *testing.T, root string) *tree.Tree {
	t.Helper()
	builtTree, err := tree.Build(root, nil)
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	return builtTree
}

func receiveResult(t *testing.T, results <-chan ledger.Result) ledger.Result {
	t.Helper()
	select {
	case result := <-results:
		return result
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for a counting result")
		return ledger.Result{}
	}
}

func TestLedgerCountsEveryFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "alpha")
	writeFile(t, filepath.Join(root, "b.txt"), "be")
	writeFile(t, filepath.Join(root, "sub", "c.txt"), "sea")
	builtTree := buildTree(t, root)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	counter := &runeCounter{}
	countLedger := ledger.New(counter, 4)
	countLedger.Start(ctx)
	countLedger.Schedule(builtTree.Generation(), builtTree.PendingFiles())

	for applied := 0; applied < 3; {
		result := receiveResult(t, countLedger.Results())
		if result.Err != nil {
			t.Fatalf("unexpected counting error: %v", result.Err)
		}
		if countLedger.Apply(builtTree, result) {
			applied++
		}
	}

	total, final := builtTree.Node(builtTree.Root()).TokenCount()
	if !final {
		t.Fatalf("expected final root count")
	}
	if expected := len("alpha") + len("be") + len("sea"); total != expected {
		t.Fatalf("expected root total %d, got %d", expected, total)
	}
}

func TestApplyRejectsStaleGeneration(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "alpha")
	builtTree := buildTree(t, root)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	countLedger := ledger.New(&runeCounter{}, 2)
	countLedger.Start(ctx)
	countLedger.Schedule(builtTree.Generation(), builtTree.PendingFiles())

	result := receiveResult(t, countLedger.Results())
	builtTree.Invalidate()
	if countLedger.Apply(builtTree, result) {
		t.Fatalf("stale result must not be applied")
	}
	fileID, _ := builtTree.Lookup(filepath.Join(root, "a.txt"))
	if builtTree.Node(fileID).CountState() != tree.CountPending {
		t.Fatalf("stale result leaked into the tree")
	}
}

// TestOutOfOrderCompletionDiscarded forces a superseded count to finish
// after its replacement and checks the late result is rejected.
func TestOutOfOrderCompletionDiscarded(t *testing.T) {
	root := t.TempDir()
	filePath := filepath.Join(root, "a.txt")
	writeFile(t, filePath, "aa")
	builtTree := buildTree(t, root)
	fileID, _ := builtTree.Lookup(filePath)

	counter := &gatedCounter{
		entered: make(chan string, 2),
		gates: map[string]chan struct{}{
			"aa":   make(chan struct{}),
			"aaaa": make(chan struct{}),
		},
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	countLedger := ledger.New(counter, 2)
	countLedger.Start(ctx)

	firstGeneration := builtTree.Generation()
	countLedger.Schedule(firstGeneration, builtTree.PendingFiles())
	if entered := <-counter.entered; entered != "aa" {
		t.Fatalf("expected first count to read old content, got %q", entered)
	}

	// The file changes and the tree is invalidated while the first count is
	// still in flight.
	writeFile(t, filePath, "aaaa")
	builtTree.Invalidate()
	countLedger.Schedule(builtTree.Generation(), []tree.FileRef{{ID: fileID, Path: filePath}})
	if entered := <-counter.entered; entered != "aaaa" {
		t.Fatalf("expected second count to read new content, got %q", entered)
	}

	// Release the fresh count first, then the superseded one.
	close(counter.gates["aaaa"])
	freshResult := receiveResult(t, countLedger.Results())
	if freshResult.Generation != builtTree.Generation() {
		t.Fatalf("expected fresh result first, got generation %d", freshResult.Generation)
	}
	if !countLedger.Apply(builtTree, freshResult) {
		t.Fatalf("fresh result must be applied")
	}

	close(counter.gates["aa"])
	staleResult := receiveResult(t, countLedger.Results())
	if staleResult.Generation != firstGeneration {
		t.Fatalf("expected stale result second, got generation %d", staleResult.Generation)
	}
	if countLedger.Apply(builtTree, staleResult) {
		t.Fatalf("late result from generation %d must be discarded", firstGeneration)
	}

	tokens, final := builtTree.Node(fileID).TokenCount()
	if !final || tokens != len("aaaa") {
		t.Fatalf("expected count %d from the fresh generation, got %d (%v)", len("aaaa"), tokens, final)
	}
}

func TestCountErrorStaysLocal(t *testing.T) {
	root := t.TempDir()
	goodPath := filepath.Join(root, "good.txt")
	missingPath := filepath.Join(root, "missing.txt")
	writeFile(t, goodPath, "fine")
	writeFile(t, missingPath, "gone soon")
	builtTree := buildTree(t, root)
	if err := os.Remove(missingPath); err != nil {
		t.Fatalf("remove: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	countLedger := ledger.New(&runeCounter{}, 2)
	countLedger.Start(ctx)
	countLedger.Schedule(builtTree.Generation(), builtTree.PendingFiles())

	for applied := 0; applied < 2; {
		if countLedger.Apply(builtTree, receiveResult(t, countLedger.Results())) {
			applied++
		}
	}

	missingID, _ := builtTree.Lookup(missingPath)
	if builtTree.Node(missingID).CountState() != tree.CountFailed {
		t.Fatalf("expected recorded failure for unreadable file")
	}
	goodID, _ := builtTree.Lookup(goodPath)
	if tokens, final := builtTree.Node(goodID).TokenCount(); !final || tokens != len("fine") {
		t.Fatalf("sibling file should still complete, got %d (%v)", tokens, final)
	}
	if _, final := builtTree.Node(builtTree.Root()).TokenCount(); final {
		t.Fatalf("root aggregate must stay unresolved while a file failed")
	}
}

func TestBinaryContentYieldsCountError(t *testing.T) {
	root := t.TempDir()
	binaryPath := filepath.Join(root, "blob.bin")
	if err := os.WriteFile(binaryPath, []byte{0x00, 0xFF, 0x00}, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	builtTree := buildTree(t, root)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	countLedger := ledger.New(&runeCounter{}, 1)
	countLedger.Start(ctx)
	countLedger.Schedule(builtTree.Generation(), builtTree.PendingFiles())

	result := receiveResult(t, countLedger.Results())
	if !errors.Is(result.Err, ledger.ErrBinaryContent) {
		t.Fatalf("expected binary content error, got %v", result.Err)
	}
}

func TestFingerprintCacheAvoidsRecount(t *testing.T) {
	root := t.TempDir()
	filePath := filepath.Join(root, "a.txt")
	writeFile(t, filePath, "cached")
	builtTree := buildTree(t, root)
	fileID, _ := builtTree.Lookup(filePath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	counter := &runeCounter{}
	countLedger := ledger.New(counter, 1)
	countLedger.Start(ctx)

	countLedger.Schedule(builtTree.Generation(), builtTree.PendingFiles())
	first := receiveResult(t, countLedger.Results())

	builtTree.Invalidate()
	countLedger.Schedule(builtTree.Generation(), []tree.FileRef{{ID: fileID, Path: filePath}})
	second := receiveResult(t, countLedger.Results())

	if first.Tokens != second.Tokens {
		t.Fatalf("cache returned a different count: %d vs %d", first.Tokens, second.Tokens)
	}
	if calls := counter.calls.Load(); calls != 1 {
		t.Fatalf("expected one tokenization for unchanged content, got %d", calls)
	}
}
