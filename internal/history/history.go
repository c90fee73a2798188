// Package history records completed scans in a small sqlite database
// so the front-end can show past activity across restarts.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/arlens/burrow/internal/scan"

	_ "modernc.org/sqlite"
)

// Retention caps the number of rows kept; older rows are pruned on
// insert.
const Retention = 100

const scansTableDDL = `
CREATE TABLE IF NOT EXISTS scans (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    scan_id TEXT UNIQUE NOT NULL,
    root_path TEXT NOT NULL,
    start_time INTEGER NOT NULL,
    end_time INTEGER NOT NULL,
    dir_count INTEGER NOT NULL,
    file_count INTEGER NOT NULL,
    error_count INTEGER NOT NULL,
    status TEXT NOT NULL
);
`

const scansTimeIndexDDL = `CREATE INDEX IF NOT EXISTS idx_scans_end ON scans(end_time DESC);`

// Entry is one recorded scan.
type Entry struct {
	ScanID     string    `json:"scanId"`
	Root       string    `json:"root"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	Dirs       int       `json:"dirs"`
	Files      int       `json:"files"`
	Errors     int       `json:"errors"`
	Status     string    `json:"status"`
}

// Store persists scan summaries. Writes are serialised through the
// store's own mutex; sqlite handles durability.
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

// Open creates or opens the history database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	for _, ddl := range []string{scansTableDDL, scansTimeIndexDDL} {
		if _, err := db.Exec(ddl); err != nil {
			db.Close()
			return nil, fmt.Errorf("init history schema: %w", err)
		}
	}
	return &Store{db: db}, nil
}

// OpenInMemory opens a throwaway store, used by tests.
func OpenInMemory() (*Store, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, err
	}
	for _, ddl := range []string{scansTableDDL, scansTimeIndexDDL} {
		if _, err := db.Exec(ddl); err != nil {
			db.Close()
			return nil, err
		}
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record inserts one terminal scan summary and prunes beyond retention.
func (s *Store) Record(sum scan.Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO scans (scan_id, root_path, start_time, end_time, dir_count, file_count, error_count, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sum.ScanID, sum.Root, sum.StartedAt.Unix(), sum.FinishedAt.Unix(),
		sum.Dirs, sum.Files, sum.Errors, sum.Status,
	)
	if err != nil {
		return fmt.Errorf("record scan: %w", err)
	}

	_, err = s.db.Exec(
		`DELETE FROM scans WHERE id NOT IN (SELECT id FROM scans ORDER BY id DESC LIMIT ?)`,
		Retention,
	)
	if err != nil {
		return fmt.Errorf("prune history: %w", err)
	}
	return nil
}

// List returns up to limit entries, most recent first. A limit outside
// 1..Retention falls back to 20.
func (s *Store) List(limit int) ([]Entry, error) {
	if limit <= 0 || limit > Retention {
		limit = 20
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		`SELECT scan_id, root_path, start_time, end_time, dir_count, file_count, error_count, status
		 FROM scans ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var start, end int64
		if err := rows.Scan(&e.ScanID, &e.Root, &start, &end, &e.Dirs, &e.Files, &e.Errors, &e.Status); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		e.StartedAt = time.Unix(start, 0)
		e.FinishedAt = time.Unix(end, 0)
		out = append(out, e)
	}
	return out, rows.Err()
}
