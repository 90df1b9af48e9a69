package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/makepost/corenote/internal/apperr"
	"github.com/makepost/corenote/internal/localcache"
	"github.com/makepost/corenote/internal/models"
	"github.com/makepost/corenote/internal/syncengine"
	"github.com/makepost/corenote/internal/transport"
	"github.com/makepost/corenote/internal/watcher"
)

// clientToken returns the bearer token of the sync client.
func (c *Config) clientToken() string {
	if c.Client.Token != "" {
		return c.Client.Token
	}
	return c.Auth.Token
}

// newNotesClient builds the retrying notes client. Terminal failures are
// printed to errOut and logged, at most once per alert window.
func newNotesClient(app *application, logger *slog.Logger, session string) *transport.NotesClient {
	cfg := app.config
	alerter := transport.NewAlerter(transport.NotifierFunc(func(msg string) {
		_, _ = fmt.Fprintf(app.errOut, "corenote: sync failed: %s\n", msg)
		logger.Error("sync failed", slog.String("error", msg))
	}), cfg.Client.AlertWindow)

	tr := transport.New(&http.Client{}, cfg.Client.Retry.Transport(), alerter, logger)
	return transport.NewNotesClient(tr, cfg.Client.ServerURL, cfg.clientToken(), session)
}

// engineRun is a started sync engine together with its cache.
type engineRun struct {
	engine *syncengine.Engine
	cache  *localcache.Cache
	cancel context.CancelFunc
	done   chan error
}

// startEngine opens the cache and starts an engine on it. The engine runs
// on its own context so that pending input can be flushed after ctx is done.
func startEngine(ctx context.Context, app *application, logger *slog.Logger) (*engineRun, error) {
	cfg := app.config
	cache, err := openCache(cfg.Client)
	if err != nil {
		return nil, err
	}

	session := uuid.NewString()
	e := syncengine.New(syncengine.Config{
		Debounce:  cfg.Client.Debounce,
		Retention: cfg.Client.Retention(),
		SessionID: session,
	}, cache, newNotesClient(app, logger, session), logger)

	engineCtx, cancel := context.WithCancel(context.Background())
	run := &engineRun{engine: e, cache: cache, cancel: cancel, done: make(chan error, 1)}
	go func() { run.done <- e.Start(engineCtx) }()

	select {
	case <-e.Ready():
		return run, nil
	case <-ctx.Done():
		cancel()
		<-run.done
		_ = cache.Close()
		return nil, ctx.Err()
	}
}

func openCache(cfg ClientConfig) (*localcache.Cache, error) {
	if dir := filepath.Dir(cfg.CachePath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
	}
	cache, err := localcache.Open(cfg.CachePath)
	if err != nil {
		return nil, fmt.Errorf("init cache: %w", err)
	}
	return cache, nil
}

// stop flushes pending input, stops the engine and closes the cache.
func (r *engineRun) stop(logger *slog.Logger) {
	flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := r.engine.Flush(flushCtx); err != nil && !errors.Is(err, syncengine.ErrStopped) {
		logger.Warn("flush on shutdown failed", slog.String("error", err.Error()))
	}
	r.cancel()
	<-r.done
	if err := r.cache.Close(); err != nil {
		logger.Warn("close cache failed", slog.String("error", err.Error()))
	}
}

// RunClient runs the sync client. It watches the draft file and saves every
// change of its content as a new version.
func RunClient(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	logger, logCloser := newLogger(cfg.App, app.errOut)
	defer logCloser.Close()
	slog.SetDefault(logger)

	draft, err := filepath.Abs(cfg.Client.DraftPath)
	if err != nil {
		return fmt.Errorf("resolve draft path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(draft), 0o755); err != nil {
		return fmt.Errorf("create draft dir: %w", err)
	}

	logger.Info("Configuration loaded",
		slog.String("server_url", cfg.Client.ServerURL),
		slog.String("cache_path", cfg.Client.CachePath),
		slog.String("draft_path", draft),
		slog.Duration("debounce", cfg.Client.Debounce))

	run, err := startEngine(ctx, app, logger)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
	defer run.stop(logger)
	e := run.engine

	if err := seedDraft(draft, e); err != nil {
		return err
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		wopts := watcher.Options{
			Filter: func(rel string) bool { return rel == filepath.Base(draft) },
		}
		return watcher.Watch(gCtx, filepath.Dir(draft), wopts, logger, func([]watcher.Event) {
			data, err := os.ReadFile(draft)
			if err != nil {
				logger.Debug("draft unreadable", slog.String("error", err.Error()))
				return
			}
			e.Input(string(data))
		})
	})

	g.Go(func() error {
		updates := e.Subscribe()
		for {
			select {
			case <-gCtx.Done():
				return nil
			case s := <-updates:
				logger.Debug("session updated",
					slog.String("state", s.State.String()),
					slog.String("dir", s.Dir),
					slog.Int64("created_at", s.CreatedAt),
					slog.Int("notes", len(s.Notes)))
			}
		}
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
		}
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Client error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Client stopped")
	return nil
}

// seedDraft feeds an existing draft to the engine, or creates the draft
// from the current note.
func seedDraft(draft string, e *syncengine.Engine) error {
	data, err := os.ReadFile(draft)
	switch {
	case err == nil:
		e.Input(string(data))
		return nil
	case errors.Is(err, os.ErrNotExist):
		if err := os.WriteFile(draft, []byte(e.Current().Value), 0o644); err != nil {
			return fmt.Errorf("create draft: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("read draft: %w", err)
	}
}

// withEngine hydrates an engine, runs fn on it and shuts it down.
func withEngine(ctx context.Context, opts []Option, fn func(app *application, e *syncengine.Engine) error) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	logger, logCloser := newLogger(app.config.App, app.errOut)
	defer logCloser.Close()

	run, err := startEngine(ctx, app, logger)
	if err != nil {
		return err
	}
	defer run.stop(logger)
	return fn(app, run.engine)
}

// listNotes fetches the canonical collection without posting the backlog.
// When the server cannot be reached the cached versions are listed instead.
func listNotes(ctx context.Context, app *application, logger *slog.Logger) ([]models.Note, error) {
	notes, err := newNotesClient(app, logger, uuid.NewString()).List(ctx)
	if err == nil {
		return notes, nil
	}
	logger.Warn("listing cached versions", slog.String("error", err.Error()))

	cache, cerr := openCache(app.config.Client)
	if cerr != nil {
		return nil, cerr
	}
	defer cache.Close()
	notes, cerr = cache.LoadAll(ctx)
	if cerr != nil {
		return nil, cerr
	}
	models.SortNewestFirst(notes)
	return notes, nil
}

// RunVersions prints every dir, or the versions of dir when it is set.
// The list comes from the server when it is reachable, else from the cache.
func RunVersions(ctx context.Context, dir string, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	logger, logCloser := newLogger(app.config.App, app.errOut)
	defer logCloser.Close()

	notes, err := listNotes(ctx, app, logger)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(app.out, 0, 4, 2, ' ', 0)

	if dir == "" {
		for _, d := range models.Dirs(notes) {
			versions := models.InDir(notes, d)
			_, _ = fmt.Fprintf(tw, "%s\t%d\t%s\n", d, len(versions), formatMillis(versions[0].CreatedAt))
		}
		return tw.Flush()
	}

	versions := models.InDir(notes, dir)
	if len(versions) == 0 {
		return fmt.Errorf("%s: %w", dir, apperr.ErrNotFound)
	}
	for _, n := range versions {
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%d bytes\n", n.CreatedAt, formatMillis(n.CreatedAt), len(n.Value))
	}
	return tw.Flush()
}

// RunShow prints one version of dir. createdAt 0 selects the newest.
func RunShow(ctx context.Context, dir string, createdAt int64, opts ...Option) error {
	return withEngine(ctx, opts, func(app *application, e *syncengine.Engine) error {
		var n models.Note
		if createdAt == 0 {
			n = e.SelectDir(dir)
		} else {
			n = e.SelectVersion(dir, createdAt)
		}
		if n.Dir != dir || (createdAt != 0 && n.CreatedAt != createdAt) {
			return fmt.Errorf("%s: %w", models.Key(dir, createdAt), apperr.ErrNotFound)
		}
		_, err := io.WriteString(app.out, n.Value)
		return err
	})
}

// RunDelete deletes one version through the sync engine.
func RunDelete(ctx context.Context, dir string, createdAt int64, opts ...Option) error {
	return withEngine(ctx, opts, func(app *application, e *syncengine.Engine) error {
		if err := e.DeleteVersion(ctx, dir, createdAt); err != nil {
			return err
		}
		_, err := fmt.Fprintf(app.out, "deleted: %s\n", models.Key(dir, createdAt))
		return err
	})
}

func formatMillis(ms int64) string {
	return time.UnixMilli(ms).Format(time.RFC3339)
}
