// Package logging wires zerolog into the process: leveled component
// loggers, a bounded in-memory ring of recent records, and an optional
// size-rotated ndjson file sink.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// RingCapacity bounds the in-memory record buffer.
const RingCapacity = 500

// Options configures the process logger.
type Options struct {
	// Level is the minimum emitted level: debug|info|warn|error.
	// Empty falls back to the LOG_LEVEL environment variable, then "info".
	Level string

	// Dir and File enable the ndjson file sink when both are set.
	Dir  string
	File string

	// MaxSizeMB rotates the file sink once it grows past this size.
	MaxSizeMB int

	// Console receives human-oriented output. Nil disables it.
	Console io.Writer
}

// New builds the process logger and its ring buffer.
func New(opts Options) (zerolog.Logger, *Ring, error) {
	zerolog.TimeFieldFormat = time.RFC3339

	ring := NewRing(RingCapacity)
	writers := []io.Writer{ring}

	if opts.Console != nil {
		writers = append(writers, zerolog.ConsoleWriter{Out: opts.Console, TimeFormat: time.TimeOnly})
	}

	if opts.Dir != "" && opts.File != "" {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("create log directory: %w", err)
		}
		maxSize := opts.MaxSizeMB
		if maxSize <= 0 {
			maxSize = 10
		}
		sink := &lumberjack.Logger{
			Filename: filepath.Join(opts.Dir, opts.File),
			MaxSize:  maxSize,
		}
		writers = append(writers, &failsafeWriter{w: sink})
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(parseLevel(opts.Level)).
		With().Timestamp().Logger()
	return logger, ring, nil
}

// Component returns a sub-logger tagged with a component name.
func Component(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}

func parseLevel(s string) zerolog.Level {
	if s == "" {
		s = os.Getenv("LOG_LEVEL")
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// failsafeWriter absorbs sink failures. A broken log file must never take
// down the process; the failure is reported on stderr once per streak.
type failsafeWriter struct {
	w      io.Writer
	failed bool
}

func (f *failsafeWriter) Write(p []byte) (int, error) {
	if _, err := f.w.Write(p); err != nil {
		if !f.failed {
			fmt.Fprintf(os.Stderr, "warning: log sink write failed: %v\n", err)
			f.failed = true
		}
		return len(p), nil
	}
	f.failed = false
	return len(p), nil
}
