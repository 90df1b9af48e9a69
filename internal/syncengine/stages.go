package syncengine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/makepost/corenote/internal/models"
)

// prepared is the output of the prepare stage.
type prepared struct {
	note models.Note
}

// reconciled is the output of the reconcile stage.
type reconciled struct {
	canonical []models.Note
	pruned    []models.Note
}

// cycle runs one autosave. Every stage failure is logged and ends the
// cycle; the optimistic cache write survives.
func (e *Engine) cycle(ctx context.Context, value string) {
	seq := e.nextSeq()
	defer e.setState(Idle)

	p, ok := e.prepare(value)
	if !ok {
		return
	}
	log := e.logger.With(slog.String("key", p.note.Key()), slog.Uint64("seq", seq))

	if err := e.optimisticWrite(ctx, p); err != nil {
		log.Error("optimistic write failed", slog.String("error", err.Error()))
		return
	}
	canonical, err := e.post(ctx, p)
	if err != nil {
		log.Error("post failed", slog.String("error", err.Error()))
		return
	}
	r, ok := e.reconcile(ctx, seq, p, canonical)
	if !ok {
		return
	}
	if err := e.prune(ctx, seq, r); err != nil {
		log.Error("prune failed", slog.String("error", err.Error()))
		return
	}
	log.Info("saved", slog.Int("pruned", len(r.pruned)))
}

// prepare turns a value into a new version, or reports false when the value
// equals the last saved one or is blank. A cleared draft keeps its history;
// versions are only removed by retention or DeleteVersion.
func (e *Engine) prepare(value string) (prepared, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if value == e.sess.LastSaved || strings.TrimSpace(value) == "" {
		return prepared{}, false
	}

	dir := models.DeriveDir(value)
	createdAt := e.cfg.Now().UnixMilli()
	if newest, ok := models.Newest(e.sess.Notes, dir); ok && createdAt <= newest.CreatedAt {
		createdAt = newest.CreatedAt + 1
	}
	if p := e.sess.Pending; p != nil && p.Dir == dir && createdAt <= p.CreatedAt {
		createdAt = p.CreatedAt + 1
	}
	return prepared{note: models.Note{CreatedAt: createdAt, Dir: dir, Value: value}}, true
}

// optimisticWrite validates the version, stores it in the cache and makes
// it the current note.
func (e *Engine) optimisticWrite(ctx context.Context, p prepared) error {
	e.setState(OptimisticWrite)
	if err := p.note.Validate(); err != nil {
		return err
	}
	if err := e.cache.Put(ctx, p.note); err != nil {
		return err
	}

	e.mu.Lock()
	n := p.note
	e.sess.Pending = &n
	e.sess.Dir, e.sess.CreatedAt = n.Dir, n.CreatedAt
	e.sess.LastSaved = n.Value
	e.mu.Unlock()
	e.render()
	return nil
}

// post sends the new version together with every cached version the server
// has not confirmed yet.
func (e *Engine) post(ctx context.Context, p prepared) ([]models.Note, error) {
	e.setState(AwaitingPostAck)
	batch := []models.Note{p.note}
	backlog, err := e.backlog(ctx, p.note)
	if err != nil {
		e.logger.Warn("backlog unavailable", slog.String("error", err.Error()))
	}
	batch = append(batch, backlog...)
	return e.remote.Post(ctx, batch)
}

func (e *Engine) backlog(ctx context.Context, skip models.Note) ([]models.Note, error) {
	cached, err := e.loadCache(ctx)
	if err != nil {
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	var out []models.Note
	for _, n := range cached {
		if n.Dir == skip.Dir && n.CreatedAt == skip.CreatedAt {
			continue
		}
		if _, ok := e.synced[n.Key()]; !ok {
			out = append(out, n)
		}
	}
	models.SortNewestFirst(out)
	return out, nil
}

// reconcile installs the server collection and picks the versions of the
// active dir to prune. Pruned versions leave the cache before the DELETE.
func (e *Engine) reconcile(ctx context.Context, seq uint64, p prepared, canonical []models.Note) (reconciled, bool) {
	e.setState(Reconciling)
	if !e.applyCanonical(seq, canonical) {
		return reconciled{}, false
	}
	e.mu.Lock()
	e.sess.Dir, e.sess.CreatedAt = p.note.Dir, p.note.CreatedAt
	e.mu.Unlock()
	e.render()

	pruned := e.cfg.Retention.SelectForDeletion(canonical, p.note.Dir)
	for _, n := range pruned {
		if err := e.cache.Remove(ctx, n.Dir, n.CreatedAt); err != nil {
			e.logger.Warn("cache remove failed", slog.String("key", n.Key()), slog.String("error", err.Error()))
		}
	}
	return reconciled{canonical: canonical, pruned: pruned}, true
}

// prune deletes the selected versions on the server and converges the cache
// to the resulting collection.
func (e *Engine) prune(ctx context.Context, seq uint64, r reconciled) error {
	if len(r.pruned) == 0 {
		return e.cache.Replace(ctx, r.canonical)
	}

	e.setState(AwaitingPruneAck)
	after, err := e.remote.Delete(ctx, r.pruned)
	if err != nil {
		if rerr := e.cache.Replace(ctx, without(r.canonical, r.pruned)); rerr != nil {
			e.logger.Error("converge cache failed", slog.String("error", rerr.Error()))
		}
		return fmt.Errorf("delete %d pruned versions: %w", len(r.pruned), err)
	}
	if !e.applyCanonical(seq, after) {
		return nil
	}
	e.render()
	return e.cache.Replace(ctx, after)
}

// deleteCycle runs an explicit deletion of one version.
func (e *Engine) deleteCycle(ctx context.Context, dir string, createdAt int64) error {
	seq := e.nextSeq()
	defer e.setState(Idle)

	e.mu.RLock()
	target := models.Note{CreatedAt: createdAt, Dir: dir}
	for _, n := range e.sess.Notes {
		if n.Dir == dir && n.CreatedAt == createdAt {
			target = n
			break
		}
	}
	e.mu.RUnlock()

	if err := target.Validate(); err != nil {
		return err
	}

	e.setState(AwaitingDeleteAck)
	if err := e.cache.Remove(ctx, dir, createdAt); err != nil {
		return err
	}
	after, err := e.remote.Delete(ctx, []models.Note{target})
	if err != nil {
		e.logger.Error("delete failed", slog.String("key", target.Key()), slog.String("error", err.Error()))
		return err
	}

	if e.applyCanonical(seq, after) {
		e.mu.Lock()
		if p := e.sess.Pending; p != nil && p.Dir == dir && p.CreatedAt == createdAt {
			e.sess.Pending = nil
		}
		e.selectCurrentLocked()
		e.mu.Unlock()
		e.render()
	}
	e.logger.Info("deleted", slog.String("key", target.Key()))
	return e.cache.Replace(ctx, after)
}

func without(notes, drop []models.Note) []models.Note {
	skip := make(map[string]struct{}, len(drop))
	for _, n := range drop {
		skip[n.Key()] = struct{}{}
	}
	out := make([]models.Note, 0, len(notes))
	for _, n := range notes {
		if _, ok := skip[n.Key()]; !ok {
			out = append(out, n)
		}
	}
	return out
}
