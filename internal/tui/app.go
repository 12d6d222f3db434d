// Package tui renders the interactive file tree and drives selection,
// counting, and backend runs from keyboard input.
package tui

import (
	"context"
	"fmt"

	"github.com/gdamore/tcell/v2"
	"go.uber.org/zap"

	"github.com/arvinmi/sif/internal/backend"
	"github.com/arvinmi/sif/internal/config"
	"github.com/arvinmi/sif/internal/ledger"
	"github.com/arvinmi/sif/internal/resolver"
	"github.com/arvinmi/sif/internal/services/clipboard"
	"github.com/arvinmi/sif/internal/tree"
)

const (
	statusNoSelection   = "no files selected"
	statusRunInFlight   = "a run is already in progress"
	statusRunningFormat = "running %s..."
	statusDoneFormat    = "%d files processed and copied to clipboard"
	statusCopyFormat    = "serialized %d files but clipboard copy failed: %v"
)

// dispatchOutcome is the completion notification of a background run.
type dispatchOutcome struct {
	output *backend.Output
	err    error
}

// App owns all mutable interface state. The tree is mutated only from the
// event loop goroutine; background work communicates through channels.
type App struct {
	screen        tcell.Screen
	logger        *zap.Logger
	selectionTree *tree.Tree
	tokenLedger   *ledger.Ledger
	dispatcher    *backend.Dispatcher
	copier        clipboard.Copier
	options       config.Options

	backendChoice backend.Backend
	style         backend.Style

	cursor        int
	scrollOffset  int
	visibleNodes  []tree.NodeID
	statusMessage string

	dispatchInFlight bool
	dispatchDone     chan dispatchOutcome
}

// New assembles the interface around an already built tree and a started
// ledger. Preferences select the initial backend and repomix options.
func New(selectionTree *tree.Tree, tokenLedger *ledger.Ledger, dispatcher *backend.Dispatcher, copier clipboard.Copier, options config.Options, logger *zap.Logger) (*App, error) {
	backendChoice, parseError := backend.ParseBackend(options.DefaultBackend)
	if parseError != nil {
		return nil, parseError
	}
	return &App{
		logger:        logger,
		selectionTree: selectionTree,
		tokenLedger:   tokenLedger,
		dispatcher:    dispatcher,
		copier:        copier,
		options:       options,
		backendChoice: backendChoice,
		style:         backend.ParseStyle(options.OutputFormat),
		dispatchDone:  make(chan dispatchOutcome, 1),
	}, nil
}

// Run enters the terminal event loop and blocks until the user quits or the
// context is cancelled. Preferences are persisted on exit.
func (a *App) Run(ctx context.Context) error {
	screen, screenError := tcell.NewScreen()
	if screenError != nil {
		return fmt.Errorf("creating terminal screen: %w", screenError)
	}
	if initError := screen.Init(); initError != nil {
		return fmt.Errorf("initializing terminal screen: %w", initError)
	}
	a.screen = screen
	defer screen.Fini()
	screen.SetStyle(tcell.StyleDefault)

	a.tokenLedger.Schedule(a.selectionTree.Generation(), a.selectionTree.PendingFiles())

	eventChannel := make(chan tcell.Event, 16)
	quitChannel := make(chan struct{})
	go screen.ChannelEvents(eventChannel, quitChannel)
	defer close(quitChannel)

	a.refreshVisible()
	a.draw()

	for {
		select {
		case <-ctx.Done():
			a.persistOptions()
			return ctx.Err()
		case event := <-eventChannel:
			switch typedEvent := event.(type) {
			case *tcell.EventResize:
				screen.Sync()
				a.draw()
			case *tcell.EventKey:
				if quit := a.handleKey(typedEvent); quit {
					a.persistOptions()
					return nil
				}
				a.draw()
			}
		case countResult := <-a.tokenLedger.Results():
			a.tokenLedger.Apply(a.selectionTree, countResult)
			a.draw()
		case outcome := <-a.dispatchDone:
			a.dispatchInFlight = false
			a.finishRun(outcome)
			a.draw()
		}
	}
}

// handleKey mutates interface state for one key press and reports whether
// the user asked to quit.
func (a *App) handleKey(event *tcell.EventKey) bool {
	switch event.Key() {
	case tcell.KeyEscape, tcell.KeyCtrlC:
		return true
	case tcell.KeyUp:
		a.moveCursor(-1)
	case tcell.KeyDown:
		a.moveCursor(1)
	case tcell.KeyLeft:
		a.collapseAtCursor()
	case tcell.KeyRight:
		a.expandAtCursor()
	case tcell.KeyEnter:
		a.startRun()
	case tcell.KeyTab:
		a.switchBackend()
	case tcell.KeyRune:
		switch event.Rune() {
		case 'q':
			return true
		case 'k':
			a.moveCursor(-1)
		case 'j':
			a.moveCursor(1)
		case 'h':
			a.collapseAtCursor()
		case 'l':
			a.expandAtCursor()
		case ' ':
			a.toggleAtCursor()
		case 'a':
			a.selectionTree.SelectAll()
		case 'n':
			a.selectionTree.UnselectAll()
		case 'e':
			a.selectionTree.ExpandAll()
			a.refreshVisible()
		case 'E':
			a.selectionTree.CollapseAll()
			a.refreshVisible()
		case 'f':
			a.style = a.style.Next()
		case 'c':
			a.options.Compress = !a.options.Compress
		case 'm':
			a.options.RemoveComments = !a.options.RemoveComments
		case 't':
			a.options.IncludeTree = !a.options.IncludeTree
		case 'r':
			a.startRun()
		}
	}
	return false
}

func (a *App) moveCursor(delta int) {
	if len(a.visibleNodes) == 0 {
		return
	}
	a.cursor += delta
	if a.cursor < 0 {
		a.cursor = 0
	}
	if a.cursor >= len(a.visibleNodes) {
		a.cursor = len(a.visibleNodes) - 1
	}
}

func (a *App) nodeAtCursor() *tree.Node {
	if a.cursor < 0 || a.cursor >= len(a.visibleNodes) {
		return nil
	}
	return a.selectionTree.Node(a.visibleNodes[a.cursor])
}

func (a *App) toggleAtCursor() {
	current := a.nodeAtCursor()
	if current == nil {
		return
	}
	a.selectionTree.ToggleSelection(current.ID)
}

// collapseAtCursor collapses an expanded directory; on a file or an already
// collapsed directory the cursor jumps to the parent instead.
func (a *App) collapseAtCursor() {
	current := a.nodeAtCursor()
	if current == nil {
		return
	}
	if current.Kind == tree.KindDirectory && current.Expanded {
		a.selectionTree.SetExpanded(current.ID, false)
		a.refreshVisible()
		return
	}
	if current.Parent != a.selectionTree.Root() {
		a.moveCursorToNode(current.Parent)
	}
}

func (a *App) expandAtCursor() {
	current := a.nodeAtCursor()
	if current == nil || current.Kind != tree.KindDirectory {
		return
	}
	a.selectionTree.SetExpanded(current.ID, true)
	a.refreshVisible()
}

func (a *App) moveCursorToNode(target tree.NodeID) {
	for visibleIndex, visibleID := range a.visibleNodes {
		if visibleID == target {
			a.cursor = visibleIndex
			return
		}
	}
}

// refreshVisible recomputes the flattened row list after any expansion
// change and clamps the cursor to it.
func (a *App) refreshVisible() {
	previous := tree.NodeID(-1)
	if current := a.nodeAtCursor(); current != nil {
		previous = current.ID
	}
	a.visibleNodes = a.selectionTree.VisibleSequence()
	if previous >= 0 {
		a.moveCursorToNode(previous)
	}
	if a.cursor >= len(a.visibleNodes) {
		a.cursor = len(a.visibleNodes) - 1
	}
	if a.cursor < 0 {
		a.cursor = 0
	}
}

func (a *App) switchBackend() {
	if a.backendChoice == backend.Repomix {
		a.backendChoice = backend.Yek
	} else {
		a.backendChoice = backend.Repomix
	}
}

// startRun resolves the current selection and dispatches the backend in the
// background. Tree and selection state stay untouched so a failed run can be
// retried as-is.
func (a *App) startRun() {
	if a.dispatchInFlight {
		a.statusMessage = statusRunInFlight
		return
	}
	selection := resolver.Resolve(a.selectionTree)
	if selection.Empty() {
		a.statusMessage = statusNoSelection
		return
	}

	runOptions := backend.Options{
		Style:          a.style,
		RemoveComments: a.options.RemoveComments,
		Compress:       a.options.Compress,
		IncludeTree:    a.options.IncludeTree,
	}
	if runOptions.IncludeTree {
		runOptions.DirectoryTree = a.selectionTree.Outline()
	}

	chosen := a.backendChoice
	a.dispatchInFlight = true
	a.statusMessage = fmt.Sprintf(statusRunningFormat, chosen)
	go func() {
		output, dispatchError := a.dispatcher.Dispatch(context.Background(), chosen, selection, runOptions)
		a.dispatchDone <- dispatchOutcome{output: output, err: dispatchError}
	}()
}

// finishRun copies successful output to the clipboard and folds any failure
// into the status line. Nothing here is fatal to the event loop.
func (a *App) finishRun(outcome dispatchOutcome) {
	if outcome.err != nil {
		a.statusMessage = outcome.err.Error()
		a.logger.Warn("backend run failed", zap.Error(outcome.err))
		return
	}
	if copyError := a.copier.Copy(outcome.output.Content); copyError != nil {
		a.statusMessage = fmt.Sprintf(statusCopyFormat, outcome.output.Files, copyError)
		a.logger.Warn("clipboard copy failed", zap.Error(copyError))
		return
	}
	a.statusMessage = fmt.Sprintf(statusDoneFormat, outcome.output.Files)
	a.logger.Info("backend run complete",
		zap.Int("files", outcome.output.Files),
		zap.Int("bytes", outcome.output.Bytes))
}

// persistOptions saves the session's backend and repomix settings so the
// next start resumes with them.
func (a *App) persistOptions() {
	a.options.DefaultBackend = a.backendChoice.String()
	a.options.OutputFormat = string(a.style)
	if saveError := config.SaveOptions(a.options); saveError != nil {
		a.logger.Warn("saving preferences failed", zap.Error(saveError))
	}
}
