package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/arlens/burrow/internal/event"
	"github.com/arlens/burrow/internal/history"
	"github.com/arlens/burrow/internal/logging"
	"github.com/arlens/burrow/internal/scan"
	"github.com/arlens/burrow/internal/store"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan a directory tree once and print a summary",
	RunE:  runScan,
}

var (
	scanRoot           string
	scanMaxDepth       int
	scanMaxEntries     int
	scanFollowSymlinks bool
	scanMetadata       bool
	scanBatchSize      int
	scanTimeSlice      int
	scanDataDir        string
)

func init() {
	scanCmd.Flags().StringVarP(&scanRoot, "root", "r", ".", "Root directory to scan")
	scanCmd.Flags().IntVar(&scanMaxDepth, "max-depth", -1, "Maximum depth below the root (-1 = unbounded)")
	scanCmd.Flags().IntVar(&scanMaxEntries, "max-entries", 0, "Maximum entries to process (0 = unbounded)")
	scanCmd.Flags().BoolVar(&scanFollowSymlinks, "follow-symlinks", false, "Descend into symlinked directories")
	scanCmd.Flags().BoolVar(&scanMetadata, "metadata", false, "Collect per-entry metadata")
	scanCmd.Flags().IntVar(&scanBatchSize, "batch-size", 250, "Nodes per partial emission")
	scanCmd.Flags().IntVar(&scanTimeSlice, "time-slice-ms", 12, "Slice budget in milliseconds")
	scanCmd.Flags().StringVar(&scanDataDir, "data-dir", "./data", "Directory for history and recent roots")
}

type scanStats struct {
	dirs    atomic.Int64
	files   atomic.Int64
	queued  atomic.Int64
	started time.Time
}

func (s *scanStats) String() string {
	return fmt.Sprintf("Scanned %s dirs, %s files (%d queued) in %.1fs",
		humanize.Comma(s.dirs.Load()), humanize.Comma(s.files.Load()),
		s.queued.Load(), time.Since(s.started).Seconds())
}

func runScan(cmd *cobra.Command, args []string) error {
	root, err := filepath.Abs(scanRoot)
	if err != nil {
		return fmt.Errorf("resolve root path: %w", err)
	}

	logger, _, err := logging.New(logging.Options{})
	if err != nil {
		return err
	}

	dataDir, err := filepath.Abs(scanDataDir)
	if err != nil {
		return fmt.Errorf("resolve data dir: %w", err)
	}
	hist, err := history.Open(filepath.Join(dataDir, "history.db"))
	if err != nil {
		return err
	}
	defer hist.Close()

	stats := &scanStats{started: time.Now()}
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionThrottle(50*time.Millisecond),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetElapsedTime(false),
	)

	done := make(chan scan.DonePayload, 1)
	bus := event.NewBus()
	bus.Attach(func(ev event.Event) {
		switch p := ev.Payload.(type) {
		case scan.ProgressPayload:
			stats.dirs.Store(int64(p.DirsProcessed))
			stats.files.Store(int64(p.FilesProcessed))
			stats.queued.Store(int64(p.QueueLengthRemaining))
			bar.Describe(stats.String())
		case scan.DonePayload:
			done <- p
		}
	})

	engine := scan.New(bus, logging.Component(logger, "scan"))
	engine.SetRecorder(func(sum scan.Summary) {
		if err := hist.Record(sum); err != nil {
			fmt.Fprintf(os.Stderr, "warning: scan history not recorded: %v\n", err)
		}
	})

	opts := scan.DefaultOptions().
		WithBatchSize(scanBatchSize).
		WithTimeSlice(scanTimeSlice).
		WithFollowSymlinks(scanFollowSymlinks).
		WithMaxDepth(scanMaxDepth).
		WithMaxEntries(scanMaxEntries).
		WithMetadata(scanMetadata)

	res, err := engine.Start(root, opts)
	if err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nCancelling...")
		engine.Cancel(res.ScanID)
		<-sigCh
		os.Exit(130)
	}()

	terminal := <-done
	bar.Finish()

	recent := store.NewRecent(store.FixedPath(filepath.Join(dataDir, "recent-scans.json")), 0)
	if _, err := recent.Touch(root); err != nil {
		fmt.Fprintf(os.Stderr, "warning: recent roots not persisted: %v\n", err)
	}

	snap, _ := engine.StateOf(res.ScanID)
	fmt.Printf("%s: %s dirs, %s files, %d errors in %.1fs",
		root, humanize.Comma(int64(snap.DirsProcessed)), humanize.Comma(int64(snap.FilesProcessed)),
		snap.Errors, time.Since(stats.started).Seconds())
	if snap.Truncated {
		fmt.Printf(" (truncated at %d entries)", snap.Options.MaxEntries)
	}
	if terminal.Cancelled {
		fmt.Printf(" (cancelled)")
	}
	fmt.Println()
	return nil
}
