// Package store persists the small auxiliary datasets (favourites,
// recent roots, user settings) as single JSON files with atomic rewrite
// and corruption quarantine.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrValidation rejects malformed input at a store boundary.
var ErrValidation = errors.New("validation failed")

// PathFunc lazily resolves the backing file, so stores can be declared
// before the user-data directory is known.
type PathFunc func() string

// FixedPath adapts a known location into a PathFunc.
func FixedPath(p string) PathFunc {
	return func() string { return p }
}

// file manages one JSON blob on disk. Mutations rewrite the whole file
// via a temporary sibling and rename, so a crash mid-write never leaves
// a half-written blob behind.
type file struct {
	pathFn PathFunc
}

// load decodes the blob into v. A missing file leaves v untouched and
// reports found=false. Any other failure, parse errors included, counts
// as corruption: the file is quarantined and the store restarts empty.
func (f *file) load(v any) (found bool, err error) {
	p := f.pathFn()
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		f.quarantine(p)
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		f.quarantine(p)
		return false, nil
	}
	return true, nil
}

// save serialises v and atomically replaces the blob.
func (f *file) save(v any) error {
	p := f.pathFn()
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode store: %w", err)
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write store: %w", err)
	}
	if err := os.Rename(tmp, p); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace store: %w", err)
	}
	return nil
}

// quarantine moves an unreadable blob aside so the next save starts
// clean while the evidence survives for inspection.
func (f *file) quarantine(p string) {
	bak := fmt.Sprintf("%s.corrupt-%d.bak", p, time.Now().UnixMilli())
	_ = os.Rename(p, bak)
}
