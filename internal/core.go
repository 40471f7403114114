package internal

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/starford/linkmend/internal/index"
	"github.com/starford/linkmend/internal/linkservice"
	"github.com/starford/linkmend/internal/metrics"
	"github.com/starford/linkmend/internal/repair"
	"github.com/starford/linkmend/internal/storage"
)

// core holds the components shared by every command.
type core struct {
	cfg      *Config
	logger   *slog.Logger
	store    *storage.FS
	db       *index.DB
	registry *prometheus.Registry
	svc      *linkservice.Service
}

func newCore(app *application) (*core, error) {
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("workspace_path", cfg.Workspace.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.Bool("watch", cfg.Watch.Enabled),
		slog.Duration("scan_interval", cfg.Scan.Interval),
		slog.String("log_level", cfg.App.LogLevel.String()))

	if err := os.MkdirAll(cfg.Workspace.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace dir: %w", err)
	}

	store, err := storage.NewFS(cfg.Workspace.Path, cfg.Workspace.Exclude...)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	reg := prometheus.NewRegistry()
	searcher := repair.NewSearcher(
		repair.NewWalkFinder(store.Root(), cfg.Workspace.Exclude),
		cfg.Search.FormatMap(),
		cfg.Search.MaxResults,
		logger,
	)
	svc := linkservice.NewService(store, db, searcher, metrics.NewPrometheusRecorder(reg), logger)

	return &core{cfg: cfg, logger: logger, store: store, db: db, registry: reg, svc: svc}, nil
}

func (c *core) Close() {
	if err := c.db.Close(); err != nil {
		c.logger.Error("close index failed", slog.String("error", err.Error()))
	}
}
