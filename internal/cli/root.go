// Package cli wires configuration, storage and sync into the planner's
// cobra commands.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/nhle/weekly-planner/internal/credential"
	"github.com/nhle/weekly-planner/internal/logger"
	"github.com/nhle/weekly-planner/internal/metrics"
	"github.com/nhle/weekly-planner/internal/model"
	"github.com/nhle/weekly-planner/internal/remote"
	"github.com/nhle/weekly-planner/internal/store"
	plannersync "github.com/nhle/weekly-planner/internal/sync"
)

// App carries the global flags and the resources opened for a command.
type App struct {
	ConfigPath string
	LogLevel   string

	cfg    *model.AppConfig
	logger *slog.Logger
	store  *store.SQLiteStore

	closers []func() error
}

// NewRootCmd builds the planner command tree.
func NewRootCmd() *cobra.Command {
	app := &App{}

	cmd := &cobra.Command{
		Use:          "planner",
		Short:        "Local-first weekly planner",
		SilenceUsage: true,
		Example: strings.TrimSpace(`
  # Open the planner
  planner

  # Run one sync cycle
  planner sync

  # Renumber the weekly ordering of a week
  planner repair --week 2026-10-12
`),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return cmd.Help()
			}
			return runTUI(cmd.Context(), app)
		},
	}

	cmd.PersistentFlags().StringVar(&app.ConfigPath, "config", envOr("PLANNER_CONFIG", model.DefaultConfigPath()), "Path to the YAML config file")
	cmd.PersistentFlags().StringVar(&app.LogLevel, "log-level", "", "Override the configured log level (debug|info|warn|error)")

	cmd.AddCommand(newSyncCmd(app))
	cmd.AddCommand(newRepairCmd(app))
	cmd.AddCommand(newCountCmd(app))
	cmd.AddCommand(newPurgeCmd(app))
	cmd.AddCommand(newLoginCmd(app))
	cmd.AddCommand(newLogoutCmd(app))

	return cmd
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// load reads the config, assigning and saving a device id on first run,
// and sets up logging to w.
func (a *App) load(w io.Writer) error {
	cfg, err := model.LoadConfig(a.ConfigPath)
	if err != nil {
		return err
	}
	if cfg.Device.ID == "" {
		cfg.Device.ID = uuid.NewString()
		if err := model.SaveConfig(a.ConfigPath, cfg); err != nil {
			return err
		}
	}
	if a.LogLevel != "" {
		cfg.Log.Level = a.LogLevel
	}

	a.cfg = cfg
	a.logger = logger.SetupDefault(w, cfg.Log.Level, cfg.Log.Format)
	return nil
}

// openStore opens the local database named in the config.
func (a *App) openStore() (*store.SQLiteStore, error) {
	if a.store != nil {
		return a.store, nil
	}

	path := a.cfg.Database.Path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	s, err := store.NewSQLiteStore(path,
		store.WithDeviceID(a.cfg.Device.ID),
		store.WithLogger(a.logger),
	)
	if err != nil {
		return nil, err
	}
	a.store = s
	a.closers = append(a.closers, s.Close)
	return s, nil
}

var errSyncDisabled = errors.New("sync backend is not configured")

// openBackend builds the remote backend selected in the config.
func (a *App) openBackend(ctx context.Context) (remote.Backend, error) {
	sc := a.cfg.Sync
	switch sc.Backend {
	case model.BackendHTTP:
		token, err := credential.Token()
		if err != nil {
			return nil, err
		}
		return remote.NewHTTPClient(sc.URL, token,
			remote.WithTimeout(sc.Timeout()),
			remote.WithRate(sc.RatePerSec),
		), nil
	case model.BackendPostgres:
		p, err := remote.NewPostgres(ctx, sc.DSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, p.Close)
		return p, nil
	case model.BackendMemory:
		return remote.NewMemory(), nil
	}
	return nil, errSyncDisabled
}

// newEngine builds the sync engine, or returns errSyncDisabled.
func (a *App) newEngine(ctx context.Context, s store.SyncStore) (*plannersync.Engine, error) {
	backend, err := a.openBackend(ctx)
	if err != nil {
		return nil, err
	}

	rec := a.startMetrics()
	userID := a.cfg.Sync.UserID
	return plannersync.New(s, backend, func() string { return userID },
		plannersync.WithLogger(a.logger),
		plannersync.WithMetrics(rec),
		plannersync.WithInterval(a.cfg.Sync.Interval()),
		plannersync.WithTimeout(a.cfg.Sync.Timeout()),
	), nil
}

// startMetrics serves /metrics when an address is configured.
func (a *App) startMetrics() metrics.Recorder {
	addr := a.cfg.Metrics.Addr
	if addr == "" {
		return metrics.Nop{}
	}

	reg := prometheus.NewRegistry()
	rec := metrics.NewCollector(reg)

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server stopped", slog.String("error", err.Error()))
		}
	}()
	a.logger.Info("metrics listening", slog.String("addr", addr))
	a.closers = append(a.closers, func() error {
		return srv.Shutdown(context.Background())
	})
	return rec
}

// Close releases everything opened by the command, newest first.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	a.store = nil
	return errors.Join(errs...)
}
