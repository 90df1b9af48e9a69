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
	"path"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/makepost/corenote/internal/api"
	"github.com/makepost/corenote/internal/index"
	"github.com/makepost/corenote/internal/noteservice"
	"github.com/makepost/corenote/internal/sse"
	"github.com/makepost/corenote/internal/storage"
	"github.com/makepost/corenote/internal/watcher"
)

const shutdownTimeout = 10 * time.Second

func newApplication(opts []Option) (*application, error) {
	app := &application{out: os.Stdout, errOut: os.Stderr}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// openStore creates the configured storage provider. root is the watched
// directory of the fs driver and empty for s3.
func openStore(ctx context.Context, cfg StoreConfig) (store storage.Provider, root string, err error) {
	switch cfg.Driver {
	case StoreDriverS3:
		s3Store, err := storage.NewS3(ctx, cfg.S3.Storage())
		if err != nil {
			return nil, "", fmt.Errorf("init s3 storage: %w", err)
		}
		return s3Store, "", nil
	default:
		if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
			return nil, "", fmt.Errorf("create store dir: %w", err)
		}
		fsStore, err := storage.NewFS(cfg.Path)
		if err != nil {
			return nil, "", fmt.Errorf("init storage: %w", err)
		}
		return fsStore, fsStore.Root(), nil
	}
}

// openService opens the store and, when enabled, the search index, and
// builds the note service on them. cleanup releases the index.
func openService(ctx context.Context, cfg *Config, pub noteservice.Publisher) (svc *noteservice.Service, root string, cleanup func(), err error) {
	store, root, err := openStore(ctx, cfg.Store)
	if err != nil {
		return nil, "", nil, err
	}

	cleanup = func() {}
	var opts []noteservice.Option
	if cfg.Index.Enabled() {
		if dir := filepath.Dir(cfg.Index.Path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, "", nil, fmt.Errorf("create index dir: %w", err)
			}
		}
		db, err := index.Open(cfg.Index.Path)
		if err != nil {
			return nil, "", nil, fmt.Errorf("init index: %w", err)
		}
		opts = append(opts, noteservice.WithIndex(db))
		cleanup = func() { _ = db.Close() }
	}
	return noteservice.NewService(store, pub, opts...), root, cleanup, nil
}

// newHandler builds the HTTP handler of the server. The notes API is mounted
// at the root and under /api.
func newHandler(cfg *Config, svc *noteservice.Service, broker *sse.Broker, limiter *api.RateLimiter) http.Handler {
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
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if _, err := svc.List(req.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	var sseHandler http.Handler
	if broker != nil {
		sseHandler = broker
	}
	apiRouter := api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, sseHandler, limiter)

	r.Mount("/api", apiRouter)
	r.Mount("/", apiRouter)

	return r
}

func isTempFile(rel string) bool {
	return strings.HasPrefix(path.Base(rel), ".corenote-tmp-")
}

// Run starts the note server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	// Initialize structured JSON logger.
	logger, logCloser := newLogger(cfg.App, app.out)
	defer logCloser.Close()
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("store_driver", cfg.Store.Driver),
		slog.String("store_path", cfg.Store.Path),
		slog.String("index_path", cfg.Index.Path),
		slog.String("auth_mode", cfg.Auth.Mode),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// SSE broker.
	broker := sse.NewBroker(500 * time.Millisecond)
	defer broker.Close()

	svc, root, closeService, err := openService(ctx, cfg, broker)
	if err != nil {
		return err
	}
	defer closeService()

	// The first listing also fills the search index.
	if _, err := svc.List(ctx); err != nil {
		logger.Warn("initial listing failed", slog.String("error", err.Error()))
	}

	var limiter *api.RateLimiter
	if cfg.RateLimit.Enabled() {
		limiter = api.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
		defer limiter.Stop()
	}

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           newHandler(cfg, svc, broker, limiter),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Announce external edits of the store directory.
	if root != "" && cfg.Store.Watch {
		g.Go(func() error {
			wopts := watcher.Options{
				Recursive: true,
				Filter:    func(rel string) bool { return !isTempFile(rel) },
			}
			return watcher.Watch(gCtx, root, wopts, logger, func([]watcher.Event) {
				if _, err := svc.Rescan(gCtx); err != nil {
					logger.Warn("rescan failed", slog.String("error", err.Error()))
				}
			})
		})
	}

	// Start HTTP server.
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

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown stops the rest of the group once a shutdown was requested.
var errShutdown = errors.New("shutdown requested")
