package scan

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/arlens/burrow/internal/event"
	"github.com/arlens/burrow/internal/node"
)

// sink records every published event and signals terminal states.
type sink struct {
	mu      sync.Mutex
	events  []event.Event
	partial chan PartialPayload
	done    chan DonePayload
}

func newSink() *sink {
	return &sink{
		partial: make(chan PartialPayload, 1),
		done:    make(chan DonePayload, 4),
	}
}

func (s *sink) handle(ev event.Event) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()

	switch p := ev.Payload.(type) {
	case PartialPayload:
		select {
		case s.partial <- p:
		default:
		}
	case DonePayload:
		s.done <- p
	}
}

func (s *sink) nodes(scanID string) []node.Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []node.Node
	for _, ev := range s.events {
		if p, ok := ev.Payload.(PartialPayload); ok && p.ScanID == scanID {
			out = append(out, p.Nodes...)
		}
	}
	return out
}

func (s *sink) eventsFor(scanID string) []event.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []event.Event
	for _, ev := range s.events {
		switch p := ev.Payload.(type) {
		case StartedPayload:
			if p.ScanID == scanID {
				out = append(out, ev)
			}
		case ProgressPayload:
			if p.ScanID == scanID {
				out = append(out, ev)
			}
		case PartialPayload:
			if p.ScanID == scanID {
				out = append(out, ev)
			}
		case DonePayload:
			if p.ScanID == scanID {
				out = append(out, ev)
			}
		}
	}
	return out
}

func newTestEngine(t *testing.T) (*Engine, *sink) {
	t.Helper()
	s := newSink()
	bus := event.NewBus()
	bus.Attach(s.handle)
	return New(bus, zerolog.Nop()), s
}

func waitDone(t *testing.T, s *sink) DonePayload {
	t.Helper()
	select {
	case p := <-s.done:
		return p
	case <-time.After(5 * time.Second):
		t.Fatalf("scan did not finish")
		return DonePayload{}
	}
}

// smallTree builds root containing a/ (empty) and b/ with c.txt.
func smallTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, "a"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(root, "b"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "b", "c.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	return root
}

func TestScanSmallTreeOrderAndCounters(t *testing.T) {
	eng, s := newTestEngine(t)
	root := smallTree(t)

	res, err := eng.Start(root, nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	done := waitDone(t, s)
	if done.Status != StatusDone || done.Cancelled {
		t.Fatalf("unexpected terminal payload: %+v", done)
	}

	nodes := s.nodes(res.ScanID)
	want := []string{
		root,
		filepath.Join(root, "a"),
		filepath.Join(root, "b"),
		filepath.Join(root, "b", "c.txt"),
	}
	if len(nodes) != len(want) {
		t.Fatalf("expected %d nodes, got %d: %+v", len(want), len(nodes), nodes)
	}
	for i, n := range nodes {
		if n.Path != want[i] {
			t.Errorf("node %d: got %s, want %s", i, n.Path, want[i])
		}
	}
	if nodes[0].Depth != 0 || nodes[3].Depth != 2 {
		t.Errorf("unexpected depths: %+v", nodes)
	}

	snap, ok := eng.StateOf(res.ScanID)
	if !ok {
		t.Fatalf("state not found")
	}
	if snap.DirsProcessed != 3 || snap.FilesProcessed != 1 {
		t.Errorf("counters: dirs=%d files=%d", snap.DirsProcessed, snap.FilesProcessed)
	}
	if !snap.Done || snap.Truncated {
		t.Errorf("unexpected terminal state: %+v", snap)
	}
}

func TestScanMaxEntriesTruncates(t *testing.T) {
	eng, s := newTestEngine(t)
	root := smallTree(t)

	res, err := eng.Start(root, DefaultOptions().WithMaxEntries(2))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	done := waitDone(t, s)
	if done.Status != StatusDone {
		t.Fatalf("expected done status, got %+v", done)
	}

	nodes := s.nodes(res.ScanID)
	if len(nodes) > 2 {
		t.Errorf("cap exceeded: %d nodes emitted", len(nodes))
	}
	snap, _ := eng.StateOf(res.ScanID)
	if !snap.Truncated {
		t.Errorf("expected truncated scan, got %+v", snap)
	}
	if snap.DirsProcessed+snap.FilesProcessed > 2 {
		t.Errorf("counters exceed cap: %+v", snap)
	}
}

func TestScanMaxDepthLimits(t *testing.T) {
	eng, s := newTestEngine(t)
	root := smallTree(t)

	res, err := eng.Start(root, DefaultOptions().WithMaxDepth(0))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitDone(t, s)

	nodes := s.nodes(res.ScanID)
	byPath := make(map[string]node.Node, len(nodes))
	for _, n := range nodes {
		byPath[n.Path] = n
	}

	if _, found := byPath[filepath.Join(root, "b", "c.txt")]; found {
		t.Errorf("c.txt should not be emitted below the depth cap")
	}
	for _, name := range []string{"a", "b"} {
		n, found := byPath[filepath.Join(root, name)]
		if !found {
			t.Fatalf("missing depth-limited node %s", name)
		}
		if !n.DepthLimited || n.Kind != node.KindDir {
			t.Errorf("node %s should be a depth-limited dir: %+v", name, n)
		}
		if n.Depth != 1 {
			t.Errorf("node %s depth = %d, want 1", name, n.Depth)
		}
	}
}

func TestScanCancelAfterFirstPartial(t *testing.T) {
	eng, s := newTestEngine(t)

	root := t.TempDir()
	for d := 0; d < 40; d++ {
		dir := filepath.Join(root, fmt.Sprintf("dir-%02d", d))
		if err := os.Mkdir(dir, 0o755); err != nil {
			t.Fatal(err)
		}
		for f := 0; f < 50; f++ {
			p := filepath.Join(dir, fmt.Sprintf("f-%02d", f))
			if err := os.WriteFile(p, nil, 0o644); err != nil {
				t.Fatal(err)
			}
		}
	}

	res, err := eng.Start(root, DefaultOptions().WithBatchSize(10).WithTimeSlice(1))
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	select {
	case <-s.partial:
	case <-time.After(5 * time.Second):
		t.Fatalf("no partial emission")
	}
	if !eng.Cancel(res.ScanID) {
		t.Fatalf("cancel returned false for active scan")
	}

	done := waitDone(t, s)
	if done.Status != StatusCancelled || !done.Cancelled {
		t.Fatalf("expected cancelled terminal payload, got %+v", done)
	}

	// Nothing may follow the terminal event.
	events := s.eventsFor(res.ScanID)
	if _, ok := events[len(events)-1].Payload.(DonePayload); !ok {
		t.Errorf("events emitted after scan:done: %+v", events[len(events)-1])
	}

	// Cancellation stays idempotent after the scan is gone.
	if !eng.Cancel(res.ScanID) {
		t.Errorf("cancel after done should still return true")
	}
}

func TestScanPermissionErrorContinues(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}

	eng, s := newTestEngine(t)
	root := smallTree(t)
	locked := filepath.Join(root, "locked")
	if err := os.Mkdir(locked, 0o000); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chmod(locked, 0o755) })

	res, err := eng.Start(root, nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	done := waitDone(t, s)
	if done.Status != StatusDone {
		t.Fatalf("scan should finish despite entry errors: %+v", done)
	}

	nodes := s.nodes(res.ScanID)
	var lockedNode *node.Node
	sawSiblings := false
	for i := range nodes {
		if nodes[i].Path == locked {
			lockedNode = &nodes[i]
		}
		if nodes[i].Path == filepath.Join(root, "b", "c.txt") {
			sawSiblings = true
		}
	}
	if lockedNode == nil {
		t.Fatalf("locked directory missing from emission")
	}
	if lockedNode.ErrorCode != CodeAccess || lockedNode.Kind != node.KindDir {
		t.Errorf("unexpected locked node: %+v", lockedNode)
	}
	if !sawSiblings {
		t.Errorf("siblings should still be scanned")
	}

	snap, _ := eng.StateOf(res.ScanID)
	if snap.Errors < 1 {
		t.Errorf("expected at least one counted error, got %d", snap.Errors)
	}
}

func TestScanEmitsEachPathOnce(t *testing.T) {
	eng, s := newTestEngine(t)
	root := smallTree(t)

	res, err := eng.Start(root, DefaultOptions().WithBatchSize(1))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitDone(t, s)

	seen := make(map[string]int)
	for _, n := range s.nodes(res.ScanID) {
		seen[n.Path]++
	}
	for p, count := range seen {
		if count > 1 {
			t.Errorf("path %s emitted %d times", p, count)
		}
	}
}

func TestScanExactlyOneDone(t *testing.T) {
	eng, s := newTestEngine(t)
	root := smallTree(t)

	res, err := eng.Start(root, nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitDone(t, s)

	// Cancel after completion must not produce a second terminal event.
	eng.Cancel(res.ScanID)
	time.Sleep(50 * time.Millisecond)

	count := 0
	for _, ev := range s.eventsFor(res.ScanID) {
		if _, ok := ev.Payload.(DonePayload); ok {
			count++
		}
	}
	if count != 1 {
		t.Errorf("expected exactly one scan:done, got %d", count)
	}
}

func TestScanSymlinkIsLeafByDefault(t *testing.T) {
	eng, s := newTestEngine(t)
	root := smallTree(t)
	link := filepath.Join(root, "loop")
	if err := os.Symlink(root, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	res, err := eng.Start(root, nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitDone(t, s)

	for _, n := range s.nodes(res.ScanID) {
		if n.Path == link && n.Kind != node.KindFile {
			t.Errorf("unfollowed symlink should be a file leaf: %+v", n)
		}
	}
}

func TestScanMetadataAttached(t *testing.T) {
	eng, s := newTestEngine(t)
	root := smallTree(t)

	res, err := eng.Start(root, DefaultOptions().WithMetadata(true))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitDone(t, s)

	for _, n := range s.nodes(res.ScanID) {
		if n.Error != "" {
			continue
		}
		if n.Meta == nil {
			t.Fatalf("metadata missing on %s", n.Path)
		}
		if n.Meta.MTime.IsZero() {
			t.Errorf("mtime missing on %s", n.Path)
		}
	}
}

func TestStartRejectsBadRoots(t *testing.T) {
	eng, _ := newTestEngine(t)

	if _, err := eng.Start("", nil); !errors.Is(err, ErrInvalidRoot) {
		t.Errorf("empty root: got %v", err)
	}
	if _, err := eng.Start(filepath.Join(t.TempDir(), "missing"), nil); !errors.Is(err, ErrInvalidRoot) {
		t.Errorf("missing root: got %v", err)
	}

	file := filepath.Join(t.TempDir(), "plain.txt")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.Start(file, nil); !errors.Is(err, ErrNotADirectory) {
		t.Errorf("file root: got %v", err)
	}
}

func TestCancelUnknownScan(t *testing.T) {
	eng, _ := newTestEngine(t)
	if eng.Cancel("does-not-exist") {
		t.Errorf("cancel of unknown id should return false")
	}
}

func TestListActiveExcludesFinishedScans(t *testing.T) {
	eng, s := newTestEngine(t)
	root := smallTree(t)

	res, err := eng.Start(root, nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitDone(t, s)

	for _, id := range eng.ListActive() {
		if id == res.ScanID {
			t.Errorf("finished scan still listed as active")
		}
	}
}

func TestRecorderReceivesTerminalSummary(t *testing.T) {
	s := newSink()
	bus := event.NewBus()
	bus.Attach(s.handle)
	eng := New(bus, zerolog.Nop())

	summaries := make(chan Summary, 1)
	eng.SetRecorder(func(sum Summary) { summaries <- sum })

	root := smallTree(t)
	res, err := eng.Start(root, nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitDone(t, s)

	select {
	case sum := <-summaries:
		if sum.ScanID != res.ScanID || sum.Status != StatusDone {
			t.Errorf("unexpected summary: %+v", sum)
		}
		if sum.Dirs != 3 || sum.Files != 1 {
			t.Errorf("summary counters: %+v", sum)
		}
	case <-time.After(time.Second):
		t.Fatalf("recorder not invoked")
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{&fs.PathError{Op: "open", Path: "/x", Err: syscall.EACCES}, CodeAccess},
		{&fs.PathError{Op: "open", Path: "/x", Err: syscall.ENOENT}, CodeNotExist},
		{&fs.PathError{Op: "open", Path: "/x", Err: syscall.ENOTDIR}, CodeNotDir},
		{&fs.PathError{Op: "mkdir", Path: "/x", Err: syscall.EEXIST}, CodeExist},
		{&fs.PathError{Op: "open", Path: "/x", Err: syscall.EINVAL}, CodeInvalid},
		{&fs.PathError{Op: "write", Path: "/x", Err: syscall.ENOSPC}, CodeNoSpace},
		{&fs.PathError{Op: "open", Path: "/x", Err: syscall.EMFILE}, CodeTooManyOpen},
		{errors.New("open /x: permission denied"), CodeAccess},
		{errors.New("readdir: not a directory"), CodeNotDir},
		{errors.New("something else entirely"), CodeUnknown},
	}
	for _, c := range cases {
		if got := Classify(c.err); got != c.want {
			t.Errorf("Classify(%v) = %s, want %s", c.err, got, c.want)
		}
	}
}
