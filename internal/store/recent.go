package store

import (
	"os"
	"sync"
)

// DefaultRecentMax caps the recent-roots list when no explicit maximum
// is configured.
const DefaultRecentMax = 5

// ExistsFunc reports whether a recorded path still exists. The default
// asks the filesystem; tests inject their own.
type ExistsFunc func(path string) bool

type recentBlob struct {
	Max   int      `json:"max"`
	Items []string `json:"items"`
}

// Recent is the persisted most-recently-used list of scan roots.
type Recent struct {
	mu     sync.Mutex
	file   file
	max    int
	items  []string
	exists ExistsFunc
	ready  bool
}

// NewRecent binds a recent-roots store to its backing file.
func NewRecent(pathFn PathFunc, max int) *Recent {
	if max <= 0 {
		max = DefaultRecentMax
	}
	return &Recent{
		file: file{pathFn: pathFn},
		max:  max,
		exists: func(p string) bool {
			_, err := os.Stat(p)
			return err == nil
		},
	}
}

// SetExistsFunc replaces the existence probe used by List pruning.
func (r *Recent) SetExistsFunc(fn ExistsFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if fn != nil {
		r.exists = fn
	}
}

func (r *Recent) ensureLoaded() {
	if r.ready {
		return
	}
	var blob recentBlob
	if found, _ := r.file.load(&blob); found {
		if blob.Max > 0 {
			r.max = blob.Max
		}
		r.items = blob.Items
	}
	r.ready = true
}

// Max returns the configured list cap.
func (r *Recent) Max() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ensureLoaded()
	return r.max
}

// Touch records path as the most recent root: any prior occurrence is
// removed, the path is prepended, and the tail is trimmed to the cap.
func (r *Recent) Touch(path string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ensureLoaded()

	kept := make([]string, 0, len(r.items)+1)
	kept = append(kept, path)
	for _, p := range r.items {
		if p != path {
			kept = append(kept, p)
		}
	}
	if len(kept) > r.max {
		kept = kept[:r.max]
	}
	r.items = kept
	if err := r.persist(); err != nil {
		return nil, err
	}
	return r.snapshot(), nil
}

// List returns the list newest-first, lazily pruning roots that no
// longer exist. When pruning shrinks the list the file is rewritten.
func (r *Recent) List() ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ensureLoaded()

	kept := r.items[:0]
	for _, p := range r.items {
		if r.exists(p) {
			kept = append(kept, p)
		}
	}
	pruned := len(kept) < len(r.items)
	r.items = kept
	if pruned {
		if err := r.persist(); err != nil {
			return nil, err
		}
	}
	return r.snapshot(), nil
}

// Clear empties the list and persists the empty shape.
func (r *Recent) Clear() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ensureLoaded()
	r.items = nil
	return r.persist()
}

func (r *Recent) persist() error {
	return r.file.save(recentBlob{Max: r.max, Items: r.items})
}

func (r *Recent) snapshot() []string {
	out := make([]string, len(r.items))
	copy(out, r.items)
	return out
}
