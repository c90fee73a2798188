package store

import (
	"fmt"
	"sync"
)

// Settings is the persisted user-settings record. Recognised keys have
// defaults; unknown keys survive a load/save round-trip untouched.
type Settings struct {
	mu        sync.Mutex
	file      file
	values    map[string]any
	observers []func(map[string]any)
	ready     bool
}

// NewSettings binds a settings store to its backing file.
func NewSettings(pathFn PathFunc) *Settings {
	return &Settings{file: file{pathFn: pathFn}}
}

// DefaultSettings returns the recognised keys with their defaults.
func DefaultSettings() map[string]any {
	return map[string]any{
		"version": 1,
		"theme":   "light",
		"defaultScan": map[string]any{
			"maxEntries":           1000,
			"aggregationThreshold": 10,
		},
	}
}

func (s *Settings) ensureLoaded() {
	if s.ready {
		return
	}
	values := DefaultSettings()
	var onDisk map[string]any
	if found, _ := s.file.load(&onDisk); found {
		for k, v := range onDisk {
			values[k] = v
		}
	}
	s.values = values
	s.ready = true
}

// File returns the backing file path.
func (s *Settings) File() string {
	return s.file.pathFn()
}

// Subscribe registers a callback invoked with the full record after
// every accepted update.
func (s *Settings) Subscribe(fn func(map[string]any)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

// Get returns the full settings record.
func (s *Settings) Get() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded()
	return cloneRecord(s.values)
}

// Update shallow-merges patch at the top level, persists, and notifies
// subscribers with the merged record.
func (s *Settings) Update(patch map[string]any) (map[string]any, error) {
	if patch == nil {
		return nil, fmt.Errorf("%w: settings patch must be a record", ErrValidation)
	}
	s.mu.Lock()
	s.ensureLoaded()
	for k, v := range patch {
		s.values[k] = v
	}
	if err := s.file.save(s.values); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	merged := cloneRecord(s.values)
	observers := make([]func(map[string]any), len(s.observers))
	copy(observers, s.observers)
	s.mu.Unlock()

	for _, fn := range observers {
		fn(cloneRecord(merged))
	}
	return merged, nil
}

func cloneRecord(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
