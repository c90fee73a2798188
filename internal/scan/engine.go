// Package scan implements the asynchronous, cancellable, incremental
// directory scan engine. Each scan owns a breadth-first queue that a
// dedicated goroutine drains in bounded time slices, streaming batched
// node deltas and progress to the event bus.
package scan

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/arlens/burrow/internal/event"
	"github.com/arlens/burrow/internal/node"
	"github.com/arlens/burrow/internal/pathguard"
)

// Start precondition failures.
var (
	ErrInvalidRoot   = errors.New("invalid scan root")
	ErrNotADirectory = errors.New("scan root is not a directory")
	ErrUnknownScan   = errors.New("unknown scan id")
)

// Summary describes a scan that reached a terminal state.
type Summary struct {
	ScanID     string
	Root       string
	StartedAt  time.Time
	FinishedAt time.Time
	Dirs       int
	Files      int
	Errors     int
	Status     string
}

// Engine registers scans and runs their processing loops. The engine
// itself permits concurrent scans; the single-active policy lives in
// the dispatcher.
type Engine struct {
	mu     sync.Mutex
	scans  map[string]*scanState
	bus    *event.Bus
	log    zerolog.Logger
	record func(Summary)
}

// New creates an engine publishing to bus.
func New(bus *event.Bus, logger zerolog.Logger) *Engine {
	return &Engine{
		scans: make(map[string]*scanState),
		bus:   bus,
		log:   logger,
	}
}

// SetRecorder installs a callback invoked once per terminal scan.
func (e *Engine) SetRecorder(fn func(Summary)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record = fn
}

// StartResult is returned by Start on success.
type StartResult struct {
	ScanID    string    `json:"scanId"`
	StartedAt time.Time `json:"startedAt"`
	Options   Options   `json:"options"`
}

// Start validates the root, registers a new scan, emits the depth-0
// root node, and launches the processing loop.
func (e *Engine) Start(root string, opts *Options) (StartResult, error) {
	if strings.TrimSpace(root) == "" {
		return StartResult{}, ErrInvalidRoot
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return StartResult{}, fmt.Errorf("%w: %s", ErrInvalidRoot, root)
	}
	abs = pathguard.Normalize(abs)

	info, err := os.Stat(abs)
	if err != nil {
		return StartResult{}, fmt.Errorf("%w: %s", ErrInvalidRoot, abs)
	}
	if !info.IsDir() {
		return StartResult{}, fmt.Errorf("%w: %s", ErrNotADirectory, abs)
	}

	if opts == nil {
		opts = DefaultOptions()
	}
	o := opts.normalized()

	st := newScanState(newScanID(), abs, o, e)

	rootNode := node.Node{
		Path:  abs,
		Name:  filepath.Base(abs),
		Depth: 0,
		Kind:  node.KindDir,
	}
	if o.IncludeMetadata {
		rootNode.Meta = collectMetadata(abs, info)
	}
	st.appendNodeLocked(rootNode)
	st.enqueueLocked(queueItem{path: abs, depth: 0})

	e.mu.Lock()
	e.scans[st.id] = st
	e.mu.Unlock()

	e.log.Info().Str("scanId", st.id).Str("root", abs).Msg("scan registered")
	e.bus.Publish(event.Event{Channel: EventStarted, Payload: StartedPayload{
		ScanID:   st.id,
		RootPath: abs,
	}})

	go e.run(st)

	return StartResult{ScanID: st.id, StartedAt: st.startedAt, Options: o}, nil
}

// Cancel requests cooperative cancellation. It returns true for any
// known scan regardless of its state; cancelling a finished scan is a
// no-op.
func (e *Engine) Cancel(id string) bool {
	e.mu.Lock()
	st, ok := e.scans[id]
	e.mu.Unlock()
	if !ok {
		return false
	}

	st.cancelFlag.Store(true)

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.done {
		return true
	}
	st.cancelled = true
	if !st.loopStarted || len(st.queue) == 0 {
		st.finalizeLocked(StatusCancelled)
	}
	return true
}

// Snapshot is the externally visible state of one scan.
type Snapshot struct {
	ScanID         string    `json:"scanId"`
	Root           string    `json:"root"`
	Options        Options   `json:"options"`
	StartedAt      time.Time `json:"startedAt"`
	DirsProcessed  int       `json:"dirsProcessed"`
	FilesProcessed int       `json:"filesProcessed"`
	Errors         int       `json:"errors"`
	QueueLength    int       `json:"queueLength"`
	ElapsedMs      int64     `json:"elapsedMs"`
	Cancelled      bool      `json:"cancelled"`
	Done           bool      `json:"done"`
	Truncated      bool      `json:"truncated"`
}

// StateOf returns a shallow snapshot of counters and queue length.
func (e *Engine) StateOf(id string) (Snapshot, bool) {
	e.mu.Lock()
	st, ok := e.scans[id]
	e.mu.Unlock()
	if !ok {
		return Snapshot{}, false
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	return Snapshot{
		ScanID:         st.id,
		Root:           st.root,
		Options:        st.opts,
		StartedAt:      st.startedAt,
		DirsProcessed:  st.dirs,
		FilesProcessed: st.files,
		Errors:         st.errs,
		QueueLength:    len(st.queue),
		ElapsedMs:      time.Since(st.startMono).Milliseconds(),
		Cancelled:      st.cancelled,
		Done:           st.done,
		Truncated:      st.truncated,
	}, true
}

// ListActive returns the ids of scans that have not reached a terminal
// state.
func (e *Engine) ListActive() []string {
	e.mu.Lock()
	states := make([]*scanState, 0, len(e.scans))
	for _, st := range e.scans {
		states = append(states, st)
	}
	e.mu.Unlock()

	var ids []string
	for _, st := range states {
		st.mu.Lock()
		if !st.done {
			ids = append(ids, st.id)
		}
		st.mu.Unlock()
	}
	sort.Strings(ids)
	return ids
}

// newScanID returns a random 96-bit identifier in hex.
func newScanID() string {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms; fall back to
		// a time-derived id rather than aborting the scan.
		return fmt.Sprintf("%024x", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}
