// Package syncengine keeps a client's notes in sync with the server.
//
// Edits are debounced, written to the local cache first, then posted
// together with any backlog the server has not confirmed. The server's
// answer replaces the local collection, retention prunes the active dir and
// the cache converges to whatever the server holds.
package syncengine

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/makepost/corenote/internal/models"
	"github.com/makepost/corenote/internal/retention"
)

var (
	// ErrDeleteInFlight is returned by DeleteVersion while another explicit
	// delete is running.
	ErrDeleteInFlight = errors.New("syncengine: delete already in flight")
	// ErrStopped is returned once Start has returned.
	ErrStopped = errors.New("syncengine: stopped")
)

// Cache is the durable local mirror of notes.
type Cache interface {
	Put(ctx context.Context, n models.Note) error
	Remove(ctx context.Context, dir string, createdAt int64) error
	LoadAll(ctx context.Context) ([]models.Note, error)
	Replace(ctx context.Context, notes []models.Note) error
}

// Remote is the server. Both calls answer with the canonical collection.
type Remote interface {
	Post(ctx context.Context, notes []models.Note) ([]models.Note, error)
	Delete(ctx context.Context, notes []models.Note) ([]models.Note, error)
}

// Config tunes the engine. Zero fields take the defaults.
type Config struct {
	// Debounce is the quiet period after the last input. Default 5s.
	Debounce time.Duration
	// Retention selects versions to prune after each save.
	Retention retention.Policy
	// SessionID is sent to the server; a random UUID when empty.
	SessionID string
	// Now is the clock. Default time.Now.
	Now func() time.Time
}

type deleteReq struct {
	dir       string
	createdAt int64
	done      chan error
}

// Engine is a single actor goroutine, started by Start, that owns the save
// cycle. Reads of the session are safe from any goroutine.
type Engine struct {
	cfg    Config
	cache  Cache
	remote Remote
	logger *slog.Logger

	mu      sync.RWMutex
	sess    Session
	synced  map[string]struct{}
	applied uint64
	seq     uint64

	pendingMu sync.Mutex
	pending   *string
	signal    chan struct{}

	flushCh  chan chan struct{}
	deleteCh chan deleteReq
	deleting atomic.Bool

	ready   chan struct{}
	stopped chan struct{}

	subsMu sync.Mutex
	subs   []chan Session
}

// New creates an engine. Call Start to run it.
func New(cfg Config, cache Cache, remote Remote, logger *slog.Logger) *Engine {
	if cfg.Debounce <= 0 {
		cfg.Debounce = 5 * time.Second
	}
	if cfg.Retention.Undos == 0 && cfg.Retention.UndoAge == 0 {
		cfg.Retention = retention.DefaultPolicy()
	}
	if cfg.SessionID == "" {
		cfg.SessionID = uuid.NewString()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg:      cfg,
		cache:    cache,
		remote:   remote,
		logger:   logger.With(slog.String("session", cfg.SessionID)),
		sess:     Session{ID: cfg.SessionID, Notes: []models.Note{}},
		synced:   map[string]struct{}{},
		signal:   make(chan struct{}, 1),
		flushCh:  make(chan chan struct{}),
		deleteCh: make(chan deleteReq),
		ready:    make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// Ready is closed once hydration has finished.
func (e *Engine) Ready() <-chan struct{} { return e.ready }

// Start hydrates from the cache, then runs the actor loop until ctx is
// done. Failed cycles are logged and never stop the loop.
func (e *Engine) Start(ctx context.Context) error {
	defer close(e.stopped)

	e.hydrate(ctx)
	close(e.ready)

	timer := time.NewTimer(e.cfg.Debounce)
	timer.Stop()
	defer timer.Stop()

	var (
		value string
		armed bool
	)

	for {
		select {
		case <-ctx.Done():
			if armed {
				e.logger.Warn("unsaved input dropped on shutdown")
			}
			return nil

		case <-e.signal:
			if v, ok := e.takePending(); ok {
				value, armed = v, true
				e.setState(Debouncing)
				timer.Reset(e.cfg.Debounce)
			}

		case <-timer.C:
			if armed {
				armed = false
				e.cycle(ctx, value)
			}

		case done := <-e.flushCh:
			if v, ok := e.takePending(); ok {
				value, armed = v, true
			}
			if armed {
				timer.Stop()
				armed = false
				e.cycle(ctx, value)
			}
			close(done)

		case req := <-e.deleteCh:
			req.done <- e.deleteCycle(ctx, req.dir, req.createdAt)
		}
	}
}

// Input records a new value of the editor. It never blocks; a newer value
// supersedes one that has not been saved yet and restarts the quiet period.
func (e *Engine) Input(value string) {
	e.pendingMu.Lock()
	e.pending = &value
	e.pendingMu.Unlock()

	select {
	case e.signal <- struct{}{}:
	default:
	}
}

func (e *Engine) takePending() (string, bool) {
	e.pendingMu.Lock()
	defer e.pendingMu.Unlock()
	if e.pending == nil {
		return "", false
	}
	v := *e.pending
	e.pending = nil
	return v, true
}

// Flush saves pending input immediately and waits for the cycle to finish.
func (e *Engine) Flush(ctx context.Context) error {
	done := make(chan struct{})
	select {
	case e.flushCh <- done:
	case <-e.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// DeleteVersion deletes one version now, bypassing the debounce. Only one
// explicit delete runs at a time; a second call gets ErrDeleteInFlight.
func (e *Engine) DeleteVersion(ctx context.Context, dir string, createdAt int64) error {
	if !e.deleting.CompareAndSwap(false, true) {
		return ErrDeleteInFlight
	}
	defer e.deleting.Store(false)

	req := deleteReq{dir: dir, createdAt: createdAt, done: make(chan error, 1)}
	select {
	case e.deleteCh <- req:
	case <-e.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SelectVersion makes (dir, createdAt) the current note, falling back as
// Current does when it does not exist.
func (e *Engine) SelectVersion(dir string, createdAt int64) models.Note {
	e.mu.Lock()
	e.sess.Dir, e.sess.CreatedAt = dir, createdAt
	cur := e.selectCurrentLocked()
	e.mu.Unlock()
	e.render()
	return cur
}

// SelectDir makes the newest version of dir the current note.
func (e *Engine) SelectDir(dir string) models.Note {
	e.mu.RLock()
	newest, ok := models.Newest(e.sess.Notes, dir)
	e.mu.RUnlock()
	if !ok {
		return e.SelectVersion(dir, 0)
	}
	return e.SelectVersion(dir, newest.CreatedAt)
}

// selectCurrentLocked resolves the current note, pins the selection to it
// and treats its value as saved so showing it does not create a version.
func (e *Engine) selectCurrentLocked() models.Note {
	cur := e.sess.Current()
	if cur.Dir != "" {
		e.sess.Dir, e.sess.CreatedAt = cur.Dir, cur.CreatedAt
	}
	e.sess.LastSaved = cur.Value
	return cur
}

// Snapshot returns a copy of the session.
func (e *Engine) Snapshot() Session {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.sess.clone()
}

// Current returns the current note.
func (e *Engine) Current() models.Note {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.sess.Current()
}

// Subscribe returns a channel that receives the latest session after every
// change. Slow readers only see the newest snapshot.
func (e *Engine) Subscribe() <-chan Session {
	ch := make(chan Session, 1)
	e.subsMu.Lock()
	e.subs = append(e.subs, ch)
	e.subsMu.Unlock()
	return ch
}

func (e *Engine) render() {
	snap := e.Snapshot()
	e.subsMu.Lock()
	defer e.subsMu.Unlock()
	for _, ch := range e.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	changed := e.sess.State != s
	e.sess.State = s
	e.mu.Unlock()
	if changed {
		e.render()
	}
}

func (e *Engine) nextSeq() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seq++
	return e.seq
}

// applyCanonical installs a server collection unless a newer cycle already
// applied one. It reports whether the collection was applied.
func (e *Engine) applyCanonical(seq uint64, notes []models.Note) bool {
	e.mu.Lock()
	if seq < e.applied {
		e.mu.Unlock()
		e.logger.Debug("stale response discarded", slog.Uint64("seq", seq), slog.Uint64("applied", e.applied))
		return false
	}
	e.applied = seq
	e.sess.Notes = slices.Clone(notes)
	e.synced = make(map[string]struct{}, len(notes))
	for _, n := range notes {
		e.synced[n.Key()] = struct{}{}
	}
	if p := e.sess.Pending; p != nil {
		if _, ok := e.synced[p.Key()]; ok {
			e.sess.Pending = nil
		}
	}
	e.mu.Unlock()
	return true
}

func (e *Engine) hydrate(ctx context.Context) {
	seq := e.nextSeq()
	notes, err := e.loadCache(ctx)
	if err != nil {
		e.logger.Error("hydrate: load cache failed", slog.String("error", err.Error()))
		return
	}
	models.SortNewestFirst(notes)

	e.mu.Lock()
	e.sess.Notes = notes
	e.selectCurrentLocked()
	e.mu.Unlock()
	e.render()

	e.setState(AwaitingPostAck)
	canonical, err := e.remote.Post(ctx, notes)
	if err != nil {
		e.logger.Error("hydrate: post failed", slog.String("error", err.Error()))
		e.setState(Idle)
		return
	}
	if e.applyCanonical(seq, canonical) {
		e.mu.Lock()
		e.selectCurrentLocked()
		e.mu.Unlock()
		if err := e.cache.Replace(ctx, canonical); err != nil {
			e.logger.Error("hydrate: converge cache failed", slog.String("error", err.Error()))
		}
	}
	e.mu.Lock()
	e.sess.State = Idle
	e.mu.Unlock()
	e.render()
	e.logger.Info("hydrated", slog.Int("cached", len(notes)), slog.Int("canonical", len(canonical)))
}

// loadCache returns the cached versions that pass validation. One invalid
// entry would otherwise fail every POST it rides along with.
func (e *Engine) loadCache(ctx context.Context) ([]models.Note, error) {
	cached, err := e.cache.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.Note, 0, len(cached))
	for _, n := range cached {
		if err := n.Validate(); err != nil {
			e.logger.Warn("skipping invalid cached version", slog.String("key", n.Key()), slog.String("error", err.Error()))
			continue
		}
		out = append(out, n)
	}
	return out, nil
}
