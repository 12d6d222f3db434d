package tui

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gdamore/tcell/v2"
	"go.uber.org/zap"

	"github.com/arvinmi/sif/internal/config"
	"github.com/arvinmi/sif/internal/tree"
)

func buildTestApp(t *testing.T) *App {
	t.Helper()
	rootDirectory := t.TempDir()
	for _, relativePath := range []string{"a.py", "b.py", "lib/c.py"} {
		fullPath := filepath.Join(rootDirectory, relativePath)
		if mkdirError := os.MkdirAll(filepath.Dir(fullPath), 0o755); mkdirError != nil {
			t.Fatalf("mkdir: %v", mkdirError)
		}
		if writeError := os.WriteFile(fullPath, []byte("print()\n"), 0o644); writeError != nil {
			t.Fatalf("write: %v", writeError)
		}
	}
	selectionTree, buildError := tree.Build(rootDirectory, nil)
	if buildError != nil {
		t.Fatalf("Build: %v", buildError)
	}
	application, newError := New(selectionTree, nil, nil, nil, config.DefaultOptions(), zap.NewNop())
	if newError != nil {
		t.Fatalf("New: %v", newError)
	}
	application.refreshVisible()
	return application
}

func (a *App) lookupNode(t *testing.T, name string) tree.NodeID {
	t.Helper()
	rootPath := a.selectionTree.Node(a.selectionTree.Root()).Path
	id, found := a.selectionTree.Lookup(filepath.Join(rootPath, name))
	if !found {
		t.Fatalf("%s not found in tree", name)
	}
	return id
}

func keyEvent(r rune) *tcell.EventKey {
	return tcell.NewEventKey(tcell.KeyRune, r, tcell.ModNone)
}

func TestNodeLineGlyphs(t *testing.T) {
	application := buildTestApp(t)
	selectionTree := application.selectionTree

	libID := application.lookupNode(t, "lib")
	libLine := application.nodeLine(selectionTree.Node(libID))
	if !strings.Contains(libLine, glyphCollapsed) || !strings.Contains(libLine, "lib/") {
		t.Fatalf("collapsed directory line = %q", libLine)
	}

	selectionTree.SetExpanded(libID, true)
	libLine = application.nodeLine(selectionTree.Node(libID))
	if !strings.Contains(libLine, glyphExpanded) {
		t.Fatalf("expanded directory line = %q", libLine)
	}

	fileID := application.lookupNode(t, "a.py")
	fileLine := application.nodeLine(selectionTree.Node(fileID))
	if !strings.Contains(fileLine, glyphUnselected) || !strings.Contains(fileLine, tokenPending) {
		t.Fatalf("pending file line = %q", fileLine)
	}

	selectionTree.ToggleSelection(fileID)
	selectionTree.ApplyCount(fileID, 1500)
	fileLine = application.nodeLine(selectionTree.Node(fileID))
	if !strings.Contains(fileLine, glyphSelected) || !strings.Contains(fileLine, "1.5K") {
		t.Fatalf("counted selected file line = %q", fileLine)
	}

	rootNode := selectionTree.Node(selectionTree.Root())
	if rootNode.Selection() != tree.PartiallySelected {
		t.Fatalf("root selection = %v, want PartiallySelected", rootNode.Selection())
	}
	rootLine := application.nodeLine(selectionTree.Node(libID))
	if strings.Contains(rootLine, glyphSelected) {
		t.Fatalf("unselected directory must not render as selected: %q", rootLine)
	}
}

func TestHeaderLineSummarizesSession(t *testing.T) {
	application := buildTestApp(t)
	header := application.headerLine()
	if !strings.Contains(header, "backend:repomix") {
		t.Fatalf("header = %q, want repomix backend", header)
	}
	if !strings.Contains(header, "format:xml") {
		t.Fatalf("header = %q, want xml format", header)
	}

	application.handleKey(tcell.NewEventKey(tcell.KeyTab, 0, tcell.ModNone))
	header = application.headerLine()
	if !strings.Contains(header, "backend:yek") || strings.Contains(header, "format:") {
		t.Fatalf("header after backend switch = %q", header)
	}
}

func TestHandleKeyNavigationAndToggle(t *testing.T) {
	application := buildTestApp(t)
	if application.cursor != 0 {
		t.Fatalf("initial cursor = %d", application.cursor)
	}

	application.handleKey(keyEvent('j'))
	application.handleKey(keyEvent('j'))
	if application.cursor != 2 {
		t.Fatalf("cursor after two moves = %d", application.cursor)
	}
	application.handleKey(keyEvent('j'))
	if application.cursor != len(application.visibleNodes)-1 {
		t.Fatalf("cursor must clamp at the last row, got %d", application.cursor)
	}

	application.cursor = 0
	application.handleKey(keyEvent(' '))
	if current := application.nodeAtCursor(); current.Selection() == tree.Unselected {
		t.Fatal("space must toggle selection at the cursor")
	}

	application.handleKey(keyEvent('a'))
	rootNode := application.selectionTree.Node(application.selectionTree.Root())
	if rootNode.Selection() != tree.Selected {
		t.Fatal("a must select everything")
	}
	application.handleKey(keyEvent('n'))
	if rootNode.Selection() != tree.Unselected {
		t.Fatal("n must clear the selection")
	}

	if quit := application.handleKey(keyEvent('q')); !quit {
		t.Fatal("q must quit")
	}
}

func TestHandleKeyFolding(t *testing.T) {
	application := buildTestApp(t)
	collapsedRows := len(application.visibleNodes)

	application.handleKey(keyEvent('e'))
	expandedRows := len(application.visibleNodes)
	if expandedRows <= collapsedRows {
		t.Fatalf("expand all shows %d rows, want more than %d", expandedRows, collapsedRows)
	}

	application.handleKey(keyEvent('E'))
	if got := len(application.visibleNodes); got != collapsedRows {
		t.Fatalf("collapse all shows %d rows, want %d", got, collapsedRows)
	}
}

func TestRunWithoutSelectionSetsStatus(t *testing.T) {
	application := buildTestApp(t)
	application.handleKey(keyEvent('r'))
	if application.statusMessage != statusNoSelection {
		t.Fatalf("status = %q, want %q", application.statusMessage, statusNoSelection)
	}
	if application.dispatchInFlight {
		t.Fatal("an empty selection must not start a run")
	}
}
