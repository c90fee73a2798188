package store

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func tempPath(t *testing.T, name string) PathFunc {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	return FixedPath(p)
}

func TestFavoritesAddPreservesOrderAndDeduplicates(t *testing.T) {
	fav := NewFavorites(tempPath(t, "favorites.json"))

	for _, p := range []string{"/home/a", "/home/b", "/home/a"} {
		if _, err := fav.Add(p); err != nil {
			t.Fatalf("add %q: %v", p, err)
		}
	}

	got := fav.List()
	if len(got) != 2 || got[0] != "/home/a" || got[1] != "/home/b" {
		t.Fatalf("unexpected favourites: %v", got)
	}
}

func TestFavoritesRejectsEmptyInput(t *testing.T) {
	fav := NewFavorites(tempPath(t, "favorites.json"))

	if _, err := fav.Add("   "); !errors.Is(err, ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
	if _, err := fav.Remove(""); !errors.Is(err, ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestFavoritesRoundTrip(t *testing.T) {
	pathFn := tempPath(t, "favorites.json")

	first := NewFavorites(pathFn)
	first.Add("/srv/media")
	first.Add("/srv/docs")
	first.Remove("/srv/media")

	second := NewFavorites(pathFn)
	got := second.List()
	if len(got) != 1 || got[0] != "/srv/docs" {
		t.Fatalf("unexpected favourites after reload: %v", got)
	}
}

func TestRecentTouchIsMRUWithCap(t *testing.T) {
	rec := NewRecent(tempPath(t, "recent-scans.json"), 2)
	rec.SetExistsFunc(func(string) bool { return true })

	rec.Touch("A")
	rec.Touch("B")
	got, err := rec.Touch("A")
	if err != nil {
		t.Fatalf("touch: %v", err)
	}
	if len(got) != 2 || got[0] != "A" || got[1] != "B" {
		t.Fatalf("unexpected MRU order: %v", got)
	}

	rec.Touch("C")
	got, _ = rec.List()
	if len(got) != 2 || got[0] != "C" || got[1] != "A" {
		t.Fatalf("cap not enforced: %v", got)
	}
}

func TestRecentListPrunesMissingRoots(t *testing.T) {
	pathFn := tempPath(t, "recent-scans.json")
	rec := NewRecent(pathFn, 5)
	alive := map[string]bool{"A": true, "B": false, "C": true}
	rec.SetExistsFunc(func(p string) bool { return alive[p] })

	rec.Touch("C")
	rec.Touch("B")
	rec.Touch("A")

	got, err := rec.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0] != "A" || got[1] != "C" {
		t.Fatalf("expected pruned list [A C], got %v", got)
	}

	// Pruning rewrote the file, so a fresh store agrees.
	again := NewRecent(pathFn, 5)
	again.SetExistsFunc(func(string) bool { return true })
	got, _ = again.List()
	if len(got) != 2 || got[0] != "A" || got[1] != "C" {
		t.Fatalf("pruned list not persisted: %v", got)
	}
}

func TestRecentClear(t *testing.T) {
	rec := NewRecent(tempPath(t, "recent-scans.json"), 5)
	rec.SetExistsFunc(func(string) bool { return true })
	rec.Touch("A")
	if err := rec.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	got, _ := rec.List()
	if len(got) != 0 {
		t.Fatalf("expected empty list, got %v", got)
	}
}

func TestSettingsDefaultsAndShallowMerge(t *testing.T) {
	s := NewSettings(tempPath(t, "user-settings.json"))

	got := s.Get()
	if got["theme"] != "light" {
		t.Fatalf("default theme missing: %v", got)
	}

	var notified map[string]any
	s.Subscribe(func(rec map[string]any) { notified = rec })

	merged, err := s.Update(map[string]any{"theme": "dark", "custom": "kept"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if merged["theme"] != "dark" || merged["custom"] != "kept" {
		t.Fatalf("merge failed: %v", merged)
	}
	if merged["version"] != 1 {
		t.Fatalf("unrelated keys must survive: %v", merged)
	}
	if notified == nil || notified["theme"] != "dark" {
		t.Fatalf("subscriber not notified: %v", notified)
	}
}

func TestSettingsUnknownKeysRoundTrip(t *testing.T) {
	pathFn := tempPath(t, "user-settings.json")
	first := NewSettings(pathFn)
	if _, err := first.Update(map[string]any{"experimental": true}); err != nil {
		t.Fatalf("update: %v", err)
	}

	second := NewSettings(pathFn)
	got := second.Get()
	if got["experimental"] != true {
		t.Fatalf("unknown key lost on round-trip: %v", got)
	}
}

func TestCorruptFileIsQuarantined(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "favorites.json")
	if err := os.WriteFile(p, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("seed corrupt file: %v", err)
	}

	fav := NewFavorites(FixedPath(p))
	if got := fav.List(); len(got) != 0 {
		t.Fatalf("expected empty shape after corruption, got %v", got)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	found := false
	for _, e := range entries {
		if strings.Contains(e.Name(), ".corrupt-") && strings.HasSuffix(e.Name(), ".bak") {
			found = true
		}
	}
	if !found {
		t.Fatalf("quarantine file missing, dir has %v", entries)
	}
}
