package tui

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"

	"github.com/arvinmi/sif/internal/backend"
	"github.com/arvinmi/sif/internal/tree"
	"github.com/arvinmi/sif/internal/utils"
)

const (
	headerRows = 1
	footerRows = 2

	glyphUnselected = "[ ]"
	glyphSelected   = "[x]"
	glyphPartial    = "[~]"
	glyphCollapsed  = "▸ "
	glyphExpanded   = "▾ "
	glyphFile       = "  "

	tokenPending = "..."
	tokenFailed  = "error"

	keyHints = "space select | a all | n none | h/l fold | tab backend | f format | c compress | m comments | t tree | r run | q quit"
)

// draw repaints the whole screen from current state. The tree is small
// enough that partial repaint is not worth the bookkeeping.
func (a *App) draw() {
	if a.screen == nil {
		return
	}
	a.screen.Clear()
	width, height := a.screen.Size()
	listRows := height - headerRows - footerRows
	if listRows < 1 {
		listRows = 1
	}
	a.clampScroll(listRows)

	a.drawText(0, 0, width, a.headerLine(), tcell.StyleDefault.Bold(true))

	for rowIndex := 0; rowIndex < listRows; rowIndex++ {
		visibleIndex := a.scrollOffset + rowIndex
		if visibleIndex >= len(a.visibleNodes) {
			break
		}
		rowStyle := tcell.StyleDefault
		if visibleIndex == a.cursor {
			rowStyle = rowStyle.Reverse(true)
		}
		node := a.selectionTree.Node(a.visibleNodes[visibleIndex])
		a.drawText(0, headerRows+rowIndex, width, a.nodeLine(node), rowStyle)
	}

	a.drawText(0, height-2, width, a.statusMessage, tcell.StyleDefault)
	a.drawText(0, height-1, width, keyHints, tcell.StyleDefault.Dim(true))
	a.screen.Show()
}

// clampScroll keeps the cursor row inside the viewport.
func (a *App) clampScroll(listRows int) {
	if a.cursor < a.scrollOffset {
		a.scrollOffset = a.cursor
	}
	if a.cursor >= a.scrollOffset+listRows {
		a.scrollOffset = a.cursor - listRows + 1
	}
	if a.scrollOffset < 0 {
		a.scrollOffset = 0
	}
}

// headerLine summarizes the session: root, backend, repomix options, and the
// running token total of the current selection.
func (a *App) headerLine() string {
	rootNode := a.selectionTree.Node(a.selectionTree.Root())
	parts := []string{rootNode.Path, "backend:" + a.backendChoice.String()}
	if a.backendChoice == backend.Repomix {
		parts = append(parts, "format:"+string(a.style))
		if a.options.Compress {
			parts = append(parts, "compress")
		}
		if a.options.RemoveComments {
			parts = append(parts, "no-comments")
		}
		if a.options.IncludeTree {
			parts = append(parts, "tree")
		}
	}
	selectedTokens, final := a.selectionTree.SelectedTokens()
	tokenText := utils.FormatTokenCount(selectedTokens)
	if !final {
		tokenText += "+"
	}
	parts = append(parts, "selected:"+tokenText+" tokens")
	return strings.Join(parts, "  ")
}

// nodeLine renders one tree row: indent, fold marker, selection glyph, name,
// and the token badge.
func (a *App) nodeLine(node *tree.Node) string {
	indent := strings.Repeat("  ", node.Depth-1)

	foldMarker := glyphFile
	if node.Kind == tree.KindDirectory {
		if node.Expanded {
			foldMarker = glyphExpanded
		} else {
			foldMarker = glyphCollapsed
		}
	}

	selectionGlyph := glyphUnselected
	switch node.Selection() {
	case tree.Selected:
		selectionGlyph = glyphSelected
	case tree.PartiallySelected:
		selectionGlyph = glyphPartial
	}

	name := node.Name
	if node.Kind == tree.KindDirectory {
		name += "/"
	}

	return fmt.Sprintf("%s%s%s %s  %s", indent, foldMarker, selectionGlyph, name, a.tokenBadge(node))
}

// tokenBadge shows the node's counting state: a final count, a partial count
// still settling, a pending marker, or an error marker.
func (a *App) tokenBadge(node *tree.Node) string {
	if node.ReadError != nil {
		return tokenFailed
	}
	switch node.CountState() {
	case tree.CountFailed:
		return tokenFailed
	case tree.Counted:
		tokens, final := node.TokenCount()
		badge := utils.FormatTokenCount(tokens)
		if !final {
			badge += "+"
		}
		return badge
	default:
		if node.Kind == tree.KindDirectory {
			tokens, final := node.TokenCount()
			if final {
				return utils.FormatTokenCount(tokens)
			}
			if tokens > 0 {
				return utils.FormatTokenCount(tokens) + "+"
			}
		}
		return tokenPending
	}
}

// drawText writes a single clipped line of text.
func (a *App) drawText(x, y, maxWidth int, text string, style tcell.Style) {
	column := x
	for _, character := range text {
		if column >= maxWidth {
			return
		}
		a.screen.SetContent(column, y, character, nil, style)
		column++
	}
}
