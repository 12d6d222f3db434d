// Package ledger computes per-file token counts concurrently and keeps them
// consistent with the tree state they were issued against.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/arvinmi/sif/internal/tokenizer"
	"github.com/arvinmi/sif/internal/tree"
)

// ErrBinaryContent marks files whose content was rejected by the tokenizer
// as binary or non-UTF8.
var ErrBinaryContent = errors.New("binary content")

// maxWorkers caps the pool so very wide machines do not exhaust file
// descriptors on large trees.
const maxWorkers = 16

// queueCapacity bounds the backlog of scheduled files. Scheduling beyond it
// queues behind the feeder goroutine instead of spawning unbounded work.
const queueCapacity = 1024

// resultCapacity buffers completed counts until the owner drains them.
const resultCapacity = 256

type task struct {
	node       tree.NodeID
	path       string
	generation uint64
}

// Result is one completed counting attempt, stamped with the tree generation
// it was issued under. A non-nil Err records a per-file counting failure.
type Result struct {
	Node       tree.NodeID
	Generation uint64
	Tokens     int
	Err        error
}

// Ledger owns the counting worker pool and the fingerprint cache. It never
// mutates the tree; completed results are handed back through Results and
// applied by the tree's owner via Apply.
type Ledger struct {
	counter          tokenizer.Counter
	pool             *semaphore.Weighted
	tasks            chan task
	results          chan Result
	cache            *fingerprintCache
	latestGeneration atomic.Uint64
}

// New constructs a ledger around counter with a worker pool sized to the
// available parallelism, capped at maxWorkers. A non-positive workers value
// selects the default size.
func New(counter tokenizer.Counter, workers int) *Ledger {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0) * 2
	}
	if workers > maxWorkers {
		workers = maxWorkers
	}
	return &Ledger{
		counter: counter,
		pool:    semaphore.NewWeighted(int64(workers)),
		tasks:   make(chan task, queueCapacity),
		results: make(chan Result, resultCapacity),
		cache:   newFingerprintCache(),
	}
}

// Start launches the dispatcher until ctx is cancelled. Each task acquires a
// pool slot before its counting goroutine runs, so at most the pool size of
// reads and tokenizations are in flight at once.
func (l *Ledger) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case pending := <-l.tasks:
				if pending.generation < l.latestGeneration.Load() {
					// Stale before dispatch, skip the work entirely.
					continue
				}
				if acquireError := l.pool.Acquire(ctx, 1); acquireError != nil {
					return
				}
				go func(pending task) {
					defer l.pool.Release(1)
					l.deliver(ctx, l.countFile(pending))
				}(pending)
			}
		}
	}()
}

// Results exposes completed counts for the owner to drain and Apply.
func (l *Ledger) Results() <-chan Result {
	return l.results
}

// Schedule stamps every file reference with generation and feeds them to the
// worker pool without blocking the caller. The references must be snapshotted
// by the tree's owner; the ledger never reads the tree itself.
func (l *Ledger) Schedule(generation uint64, files []tree.FileRef) {
	for {
		current := l.latestGeneration.Load()
		if generation <= current {
			break
		}
		if l.latestGeneration.CompareAndSwap(current, generation) {
			break
		}
	}
	snapshot := make([]tree.FileRef, len(files))
	copy(snapshot, files)
	go func() {
		for _, file := range snapshot {
			l.tasks <- task{node: file.ID, path: file.Path, generation: generation}
		}
	}()
}

// Apply admits a completed result into the tree only if the tree's
// generation still matches the result's stamp. Superseded results are
// discarded and false is returned.
func (l *Ledger) Apply(target *tree.Tree, result Result) bool {
	if result.Generation != target.Generation() {
		return false
	}
	if result.Err != nil {
		target.ApplyCountError(result.Node, result.Err)
	} else {
		target.ApplyCount(result.Node, result.Tokens)
	}
	return true
}

func (l *Ledger) deliver(ctx context.Context, result Result) {
	select {
	case <-ctx.Done():
	case l.results <- result:
	}
}

func (l *Ledger) countFile(pending task) Result {
	result := Result{Node: pending.node, Generation: pending.generation}

	info, statError := os.Stat(pending.path)
	if statError != nil {
		result.Err = fmt.Errorf("stat %s: %w", pending.path, statError)
		return result
	}
	data, readError := os.ReadFile(pending.path)
	if readError != nil {
		result.Err = fmt.Errorf("read %s: %w", pending.path, readError)
		return result
	}

	key := fingerprint(info, data)
	if cachedTokens, cached := l.cache.lookup(key); cached {
		result.Tokens = cachedTokens
		return result
	}

	countResult, countError := tokenizer.CountBytes(l.counter, data)
	if countError != nil {
		result.Err = fmt.Errorf("count %s: %w", pending.path, countError)
		return result
	}
	if !countResult.Counted {
		result.Err = fmt.Errorf("%s: %w", pending.path, ErrBinaryContent)
		return result
	}
	l.cache.store(key, countResult.Tokens)
	result.Tokens = countResult.Tokens
	return result
}
