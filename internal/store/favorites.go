package store

import (
	"fmt"
	"strings"
	"sync"
)

// Favorites is the persisted set of favourite paths. Insertion order is
// preserved for external display; duplicates collapse on add.
type Favorites struct {
	mu    sync.Mutex
	file  file
	items []string
	ready bool
}

// NewFavorites binds a favourites store to its backing file.
func NewFavorites(pathFn PathFunc) *Favorites {
	return &Favorites{file: file{pathFn: pathFn}}
}

func (f *Favorites) ensureLoaded() {
	if f.ready {
		return
	}
	var items []string
	f.file.load(&items)
	f.items = items
	f.ready = true
}

// List returns the favourites in first-insertion order.
func (f *Favorites) List() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensureLoaded()
	out := make([]string, len(f.items))
	copy(out, f.items)
	return out
}

// Add appends a path unless already present and persists the set.
func (f *Favorites) Add(path string) ([]string, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: favourite path must be a non-empty string", ErrValidation)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensureLoaded()

	for _, p := range f.items {
		if p == path {
			return f.snapshot(), nil
		}
	}
	f.items = append(f.items, path)
	if err := f.file.save(f.items); err != nil {
		return nil, err
	}
	return f.snapshot(), nil
}

// Remove drops a path from the set and persists the result.
func (f *Favorites) Remove(path string) ([]string, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: favourite path must be a non-empty string", ErrValidation)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensureLoaded()

	kept := f.items[:0]
	removed := false
	for _, p := range f.items {
		if p == path {
			removed = true
			continue
		}
		kept = append(kept, p)
	}
	f.items = kept
	if removed {
		if err := f.file.save(f.items); err != nil {
			return nil, err
		}
	}
	return f.snapshot(), nil
}

func (f *Favorites) snapshot() []string {
	out := make([]string, len(f.items))
	copy(out, f.items)
	return out
}
