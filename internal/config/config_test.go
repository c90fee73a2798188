package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Listen != "127.0.0.1:7133" || cfg.DataDir != "./data" {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if cfg.Scan.MaxDepth != -1 {
		t.Errorf("default max-depth should be unbounded, got %d", cfg.Scan.MaxDepth)
	}
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	p := filepath.Join(t.TempDir(), "burrow.toml")
	body := `
listen = "127.0.0.1:9000"

[log]
level = "debug"

[scan]
max-entries = 5000
`
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Listen != "127.0.0.1:9000" {
		t.Errorf("listen not merged: %s", cfg.Listen)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log level not merged: %s", cfg.Log.Level)
	}
	if cfg.Scan.MaxEntries != 5000 {
		t.Errorf("scan max-entries not merged: %d", cfg.Scan.MaxEntries)
	}
	if cfg.DataDir != "./data" {
		t.Errorf("unset keys should keep defaults: %s", cfg.DataDir)
	}
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "burrow.toml")
	if err := os.WriteFile(p, []byte("listen = ["), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(p); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	p := filepath.Join(t.TempDir(), "burrow.toml")
	if err := os.WriteFile(p, []byte(`listen = ""`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(p); err == nil {
		t.Fatalf("expected validation error")
	}
}
