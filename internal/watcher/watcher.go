// Package watcher turns fsnotify events under a directory into debounced
// batches.
package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Event is a single file system change. Path is relative to the watched
// root and uses forward slashes.
type Event struct {
	Path string
	Op   fsnotify.Op
}

// Options configures Watch.
type Options struct {
	// Debounce is the quiet period after the last event before a batch is
	// delivered. Defaults to 200ms.
	Debounce time.Duration
	// Recursive watches every subdirectory, including ones created later.
	Recursive bool
	// Filter, if set, drops events whose relative path it rejects.
	Filter func(rel string) bool
}

// Callback receives one batch of events, in arrival order.
type Callback func(events []Event)

// Watch watches root until ctx is cancelled, delivering debounced batches
// to cb. It blocks and returns nil on cancellation.
func Watch(ctx context.Context, root string, opts Options, logger *slog.Logger, cb Callback) error {
	if opts.Debounce <= 0 {
		opts.Debounce = 200 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if opts.Recursive {
		err = addDirsRecursive(w, root)
	} else {
		err = w.Add(root)
	}
	if err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", root), slog.Bool("recursive", opts.Recursive))

	var pending []Event
	timer := time.NewTimer(opts.Debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("watcher: stopped", slog.String("root", root))
			return nil

		case <-timer.C:
			if len(pending) > 0 {
				batch := pending
				pending = nil
				cb(batch)
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			if opts.Recursive && ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					} else {
						logger.Debug("watcher: watching new dir", slog.String("path", ev.Name))
					}
				}
			}

			rel, relErr := filepath.Rel(root, ev.Name)
			if relErr != nil {
				continue
			}
			rel = filepath.ToSlash(rel)
			if opts.Filter != nil && !opts.Filter(rel) {
				continue
			}

			pending = append(pending, Event{Path: rel, Op: ev.Op})
			timer.Reset(opts.Debounce)

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
