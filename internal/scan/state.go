package scan

import (
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arlens/burrow/internal/event"
	"github.com/arlens/burrow/internal/node"
)

// queueItem is one breadth-first work unit.
type queueItem struct {
	path   string
	depth  int
	parent string
}

// scanState holds everything mutable about one scan. All fields below
// mu are guarded by it; cancelFlag is additionally readable without the
// lock so a running slice observes cancellation mid-iteration.
type scanState struct {
	id        string
	root      string
	opts      Options
	startedAt time.Time
	startMono time.Time
	engine    *Engine

	cancelFlag atomic.Bool

	mu          sync.Mutex
	queue       []queueItem
	pending     []node.Node
	emitted     map[string]struct{}
	enqueued    map[string]struct{}
	dirs        int
	files       int
	errs        int
	cancelled   bool
	done        bool
	truncated   bool
	loopStarted bool
}

func newScanState(id, root string, opts Options, e *Engine) *scanState {
	return &scanState{
		id:        id,
		root:      root,
		opts:      opts,
		startedAt: time.Now(),
		startMono: time.Now(),
		engine:    e,
		emitted:   make(map[string]struct{}),
		enqueued:  make(map[string]struct{}),
	}
}

// run drives the scan to a terminal state, yielding between slices.
func (e *Engine) run(st *scanState) {
	st.mu.Lock()
	if st.done {
		st.mu.Unlock()
		return
	}
	st.loopStarted = true
	st.mu.Unlock()

	for {
		if e.runSlice(st) {
			return
		}
		runtime.Gosched()
	}
}

// runSlice executes one bounded burst of work. It returns true once the
// scan has reached a terminal state. A slice holds the state lock for
// its whole duration; cancellation and state reads wait at most one
// slice.
func (e *Engine) runSlice(st *scanState) bool {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.done {
		return true
	}
	if st.cancelled || st.cancelFlag.Load() {
		st.cancelled = true
		st.finalizeLocked(StatusCancelled)
		return true
	}

	sliceStart := time.Now()
	budget := time.Duration(st.opts.TimeSliceMs) * time.Millisecond

	for len(st.queue) > 0 && time.Since(sliceStart) < budget {
		if st.cancelFlag.Load() {
			st.cancelled = true
			break
		}
		if st.capReachedLocked() {
			st.truncated = true
			break
		}

		item := st.queue[0]
		st.queue = st.queue[1:]
		e.processDirLocked(st, item)
	}

	if len(st.pending) > 0 && (st.cancelled || len(st.queue) == 0 || st.truncated) {
		st.flushLocked()
	}

	switch {
	case st.cancelled:
		st.finalizeLocked(StatusCancelled)
		return true
	case len(st.queue) == 0 || st.truncated:
		st.finalizeLocked(StatusDone)
		return true
	default:
		return false
	}
}

// processDirLocked handles one dequeued directory: stat, enumerate,
// emit children, update counters. Per-entry failures synthesise error
// nodes; nothing here aborts the scan.
func (e *Engine) processDirLocked(st *scanState, item queueItem) {
	defer func() {
		if r := recover(); r != nil {
			// An unexpected failure drops the entry and the scan moves on.
			st.errs++
			e.log.Error().Str("scanId", st.id).Str("path", item.path).
				Any("panic", r).Msg("entry processing failed")
		}
	}()

	info, err := os.Lstat(item.path)
	if err != nil {
		st.appendErrorNodeLocked(item.path, item.depth, node.KindDir, err)
		st.dirs++
		st.emitProgressLocked()
		return
	}

	// A dequeued path is only ever a symlink when it is the root or the
	// scan follows links; in both cases the target decides directory-ness.
	// The lstat result is kept for metadata so the link itself stays
	// visible on the emitted node.
	lstatInfo := info
	if info.Mode()&os.ModeSymlink != 0 && (item.depth == 0 || st.opts.FollowSymlinks) {
		if resolved, err := os.Stat(item.path); err == nil {
			info = resolved
		}
	}

	if !info.IsDir() {
		// The entry changed under us since it was enqueued.
		n := node.Node{
			Path:  item.path,
			Name:  filepath.Base(item.path),
			Depth: item.depth,
			Kind:  node.KindFile,
		}
		if st.opts.IncludeMetadata {
			n.Meta = collectMetadata(item.path, info)
		}
		st.appendNodeLocked(n)
		st.files++
		st.emitProgressLocked()
		return
	}

	if st.opts.depthBounded() && item.depth > st.opts.MaxDepth {
		st.appendNodeLocked(node.Node{
			Path:         item.path,
			Name:         filepath.Base(item.path),
			Depth:        item.depth,
			Kind:         node.KindDir,
			DepthLimited: true,
		})
		st.dirs++
		st.emitProgressLocked()
		return
	}

	entries, err := os.ReadDir(item.path)
	if err != nil {
		st.appendErrorNodeLocked(item.path, item.depth, node.KindDir, err)
		st.dirs++
		st.emitProgressLocked()
		return
	}

	st.ensureDirNodeLocked(item.path, item.depth, lstatInfo)

	for _, de := range entries {
		if st.cancelFlag.Load() {
			st.cancelled = true
			break
		}
		if st.capReachedLocked() {
			st.truncated = true
			break
		}

		childPath := filepath.Join(item.path, de.Name())
		childInfo, err := os.Lstat(childPath)
		if err != nil {
			st.appendErrorNodeLocked(childPath, item.depth+1, node.KindFile, err)
			st.files++
			continue
		}

		isLink := childInfo.Mode()&os.ModeSymlink != 0
		isDir := childInfo.IsDir()
		if isLink {
			// A symlink is a leaf unless the scan follows links, in
			// which case the target decides.
			isDir = false
			if st.opts.FollowSymlinks {
				if target, err := os.Stat(childPath); err == nil {
					isDir = target.IsDir()
				}
			}
		}

		switch {
		case isDir && st.opts.depthBounded() && item.depth+1 > st.opts.MaxDepth:
			st.appendNodeLocked(node.Node{
				Path:         childPath,
				Name:         de.Name(),
				Depth:        item.depth + 1,
				Kind:         node.KindDir,
				DepthLimited: true,
			})
		case isDir:
			// Enqueue only. The directory node is emitted when it is
			// dequeued, so a later stat or read failure is still that
			// path's first emission and carries the error code.
			st.enqueueLocked(queueItem{
				path:   childPath,
				depth:  item.depth + 1,
				parent: item.path,
			})
		default:
			child := node.Node{
				Path:  childPath,
				Name:  de.Name(),
				Depth: item.depth + 1,
				Kind:  node.KindFile,
			}
			if st.opts.IncludeMetadata {
				child.Meta = collectMetadata(childPath, childInfo)
			}
			st.appendNodeLocked(child)
			st.files++
		}

		if len(st.pending) >= st.opts.BatchSize {
			st.flushLocked()
		}
	}

	if !st.truncated {
		st.dirs++
	}
	st.emitProgressLocked()
}

// enqueueLocked adds a directory work unit unless its path was already
// queued during this scan, so symlink re-entries never enqueue twice.
func (st *scanState) enqueueLocked(item queueItem) bool {
	if _, seen := st.enqueued[item.path]; seen {
		return false
	}
	st.enqueued[item.path] = struct{}{}
	st.queue = append(st.queue, item)
	return true
}

// capReachedLocked reports whether the emitted set has hit MaxEntries.
func (st *scanState) capReachedLocked() bool {
	return st.opts.entriesBounded() && len(st.emitted) >= st.opts.MaxEntries
}

// appendNodeLocked adds n to the pending buffer unless its path was
// already emitted for this scan. Re-entries, symlink cycles included,
// are silently deduplicated.
func (st *scanState) appendNodeLocked(n node.Node) bool {
	if _, seen := st.emitted[n.Path]; seen {
		return false
	}
	st.emitted[n.Path] = struct{}{}
	st.pending = append(st.pending, n)
	return true
}

func (st *scanState) appendErrorNodeLocked(path string, depth int, kind node.Kind, err error) {
	st.appendNodeLocked(node.Node{
		Path:      path,
		Name:      filepath.Base(path),
		Depth:     depth,
		Kind:      kind,
		Error:     err.Error(),
		ErrorCode: Classify(err),
	})
	st.errs++
}

// ensureDirNodeLocked emits the directory node itself if a child or an
// earlier pass has not already done so.
func (st *scanState) ensureDirNodeLocked(path string, depth int, info os.FileInfo) {
	n := node.Node{
		Path:  path,
		Name:  filepath.Base(path),
		Depth: depth,
		Kind:  node.KindDir,
	}
	if st.opts.IncludeMetadata {
		n.Meta = collectMetadata(path, info)
	}
	st.appendNodeLocked(n)
}

// flushLocked publishes the pending buffer as one scan:partial event.
func (st *scanState) flushLocked() {
	if len(st.pending) == 0 {
		return
	}
	nodes := st.pending
	st.pending = nil
	st.engine.bus.Publish(event.Event{Channel: EventPartial, Payload: PartialPayload{
		ScanID:    st.id,
		Nodes:     nodes,
		Truncated: st.truncated,
	}})
}

func (st *scanState) emitProgressLocked() {
	var completion *float64
	if st.opts.entriesBounded() {
		c := float64(st.dirs+st.files) / float64(st.opts.MaxEntries)
		if c > 1 {
			c = 1
		}
		completion = &c
	}
	st.engine.bus.Publish(event.Event{Channel: EventProgress, Payload: ProgressPayload{
		ScanID:               st.id,
		DirsProcessed:        st.dirs,
		FilesProcessed:       st.files,
		QueueLengthRemaining: len(st.queue),
		ElapsedMs:            time.Since(st.startMono).Milliseconds(),
		ApproxCompletion:     completion,
	}})
}

// finalizeLocked flushes any stragglers, emits the single scan:done
// event, and hands the summary to the recorder. It is idempotent.
func (st *scanState) finalizeLocked(status string) {
	if st.done {
		return
	}
	st.flushLocked()
	st.done = true
	st.queue = nil

	st.engine.bus.Publish(event.Event{Channel: EventDone, Payload: DonePayload{
		ScanID:    st.id,
		Status:    status,
		Cancelled: status == StatusCancelled,
	}})
	st.engine.log.Info().Str("scanId", st.id).Str("status", status).
		Int("dirs", st.dirs).Int("files", st.files).Int("errors", st.errs).
		Msg("scan finished")

	if st.engine.record != nil {
		st.engine.record(Summary{
			ScanID:     st.id,
			Root:       st.root,
			StartedAt:  st.startedAt,
			FinishedAt: time.Now(),
			Dirs:       st.dirs,
			Files:      st.files,
			Errors:     st.errs,
			Status:     status,
		})
	}
}
