// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/linkmend/internal/api"
	"github.com/starford/linkmend/internal/index"
	"github.com/starford/linkmend/internal/metrics"
	"github.com/starford/linkmend/internal/scheduler"
	"github.com/starford/linkmend/internal/sse"
)

// Run starts the server with the given options: HTTP API, watcher and
// periodic scan.
func Run(ctx context.Context, opts ...Option) error {
	app := newApplication(opts)
	c, err := newCore(app)
	if err != nil {
		return err
	}
	defer c.Close()

	cfg, logger, svc := c.cfg, c.logger, c.svc

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	// Run initial scan.
	if report, err := svc.Scan(ctx); err != nil {
		logger.Warn("initial scan failed", slog.String("error", err.Error()))
	} else {
		logger.Info("initial scan finished",
			slog.Int("indexed", report.Sync.Indexed),
			slog.Int("removed", report.Sync.Removed),
			slog.Int("broken", len(report.Broken)))
	}

	apiRouter := api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := c.db.Ping(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", metrics.HTTPHandler(c.registry))

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	var sched *scheduler.Scheduler
	if cfg.Scan.Interval > 0 {
		sched, err = scheduler.New(svc, logger, broker.PublishBroken)
		if err != nil {
			return err
		}
		if _, err := sched.ScheduleScan(ctx, cfg.Scan.Interval); err != nil {
			return err
		}
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	if cfg.Watch.Enabled {
		g.Go(func() error {
			return index.Watch(gCtx, c.db, c.store, logger,
				index.WatchOptions{Debounce: cfg.Watch.Debounce, Exclude: cfg.Workspace.Exclude},
				func(ev index.Event) {
					broker.PublishDocumentEvent(string(ev.Kind), ev.Path, ev.OldPath)
					if ev.Kind != index.EventMoved || !cfg.Watch.UpdateLinksOnMove {
						return
					}
					report, err := svc.ApplyMove(gCtx, ev.OldPath, ev.Path)
					if err != nil {
						logger.Error("update links after move failed",
							slog.String("from", ev.OldPath),
							slog.String("to", ev.Path),
							slog.String("error", err.Error()))
						return
					}
					if len(report.NotApplied) > 0 {
						logger.Warn("some references were not updated",
							slog.String("to", ev.Path),
							slog.Any("documents", report.NotApplied))
					}
				})
		})
	}

	if sched != nil {
		sched.Start()
	}

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		if sched != nil {
			if err := sched.Stop(); err != nil {
				logger.Error("scheduler shutdown error", slog.String("error", err.Error()))
			}
		}
		cancel()

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}
