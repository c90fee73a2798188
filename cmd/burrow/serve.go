package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/arlens/burrow/internal/config"
	"github.com/arlens/burrow/internal/dispatch"
	"github.com/arlens/burrow/internal/event"
	"github.com/arlens/burrow/internal/history"
	"github.com/arlens/burrow/internal/logging"
	"github.com/arlens/burrow/internal/scan"
	"github.com/arlens/burrow/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the scan backend over HTTP",
	Long: `Start the backend: the request surface as POST /api/{channel} and
the event surface as a server-sent-events stream on GET /api/events.`,
	RunE: runServe,
}

var serveConfigPath string

func init() {
	serveCmd.Flags().StringVarP(&serveConfigPath, "config", "c", "burrow.toml", "Path to the TOML configuration file")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(serveConfigPath)
	if err != nil {
		return err
	}

	logger, ring, err := logging.New(logging.Options{
		Level:     cfg.Log.Level,
		Dir:       cfg.Log.Dir,
		File:      cfg.Log.File,
		MaxSizeMB: cfg.Log.MaxSizeMB,
		Console:   os.Stderr,
	})
	if err != nil {
		return err
	}
	log := logging.Component(logger, "serve")

	// Uncaught failures become error records before the process dies.
	defer func() {
		if r := recover(); r != nil {
			log.Error().Any("panic", r).Msg("unhandled failure")
			panic(r)
		}
	}()

	dataDir, err := filepath.Abs(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("resolve data dir: %w", err)
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	bus := event.NewBus()
	engine := scan.New(bus, logging.Component(logger, "scan"))

	hist, err := history.Open(filepath.Join(dataDir, "history.db"))
	if err != nil {
		return err
	}
	defer hist.Close()
	engine.SetRecorder(func(sum scan.Summary) {
		if err := hist.Record(sum); err != nil {
			log.Warn().Err(err).Str("scanId", sum.ScanID).Msg("scan history not recorded")
		}
	})

	disp := dispatch.New(dispatch.Deps{
		Engine:    engine,
		Favorites: store.NewFavorites(store.FixedPath(filepath.Join(dataDir, "favorites.json"))),
		Recent:    store.NewRecent(store.FixedPath(filepath.Join(dataDir, "recent-scans.json")), 0),
		Settings:  store.NewSettings(store.FixedPath(filepath.Join(dataDir, "user-settings.json"))),
		Ring:      ring,
		History:   hist,
		Bus:       bus,
		Logger:    logging.Component(logger, "dispatch"),
		ScanCfg:   cfg.Scan,
	})

	server := &http.Server{
		Addr:    cfg.Listen,
		Handler: dispatch.NewServer(disp, bus, logging.Component(logger, "http")).Router(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("listen", cfg.Listen).Str("dataDir", dataDir).Msg("backend listening")
		disp.AnnounceSettings()
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
