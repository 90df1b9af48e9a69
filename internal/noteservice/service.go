// Package noteservice coordinates validation, storage and change events for
// note versions. It is shared by the HTTP API and the MCP server.
package noteservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/makepost/corenote/internal/apperr"
	"github.com/makepost/corenote/internal/checksum"
	"github.com/makepost/corenote/internal/index"
	"github.com/makepost/corenote/internal/models"
	"github.com/makepost/corenote/internal/storage"
)

// Change reasons published to subscribers.
const (
	ReasonPost     = "post"
	ReasonDelete   = "delete"
	ReasonExternal = "external"
)

// Publisher receives a notification after every mutation of the store.
type Publisher interface {
	PublishChange(reason string, dirs []string)
}

// ErrSearchDisabled is returned by Search when no index is configured.
var ErrSearchDisabled = errors.New("noteservice: search index disabled")

type nopPublisher struct{}

func (nopPublisher) PublishChange(string, []string) {}

// Service serialises mutations of a storage.Provider and returns the
// canonical collection after each of them.
type Service struct {
	mu      sync.Mutex
	store   storage.Provider
	pub     Publisher
	index   index.NoteIndex
	logger  *slog.Logger
	lastSum string
}

// Option configures a Service.
type Option func(*Service)

// WithIndex keeps ix in sync with every listing that changed.
func WithIndex(ix index.NoteIndex) Option {
	return func(s *Service) {
		s.index = ix
	}
}

// NewService creates a new note service. pub may be nil.
func NewService(store storage.Provider, pub Publisher, opts ...Option) *Service {
	if pub == nil {
		pub = nopPublisher{}
	}
	s := &Service{store: store, pub: pub, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns the canonical collection, newest first. Never nil.
func (s *Service) List(ctx context.Context) ([]models.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listLocked(ctx)
}

func (s *Service) listLocked(ctx context.Context) ([]models.Note, error) {
	notes, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	notes = s.validOnly(notes)
	models.SortNewestFirst(notes)

	sum := Sum(notes)
	if sum != s.lastSum && s.index != nil {
		if st, err := s.index.Sync(ctx, notes); err != nil {
			s.logger.Warn("index sync failed", slog.String("error", err.Error()))
		} else {
			s.logger.Debug("index synced", slog.Int("indexed", st.Indexed), slog.Int("removed", st.Removed))
		}
	}
	s.lastSum = sum
	return notes, nil
}

// validOnly drops versions the store holds but no client could post back,
// such as files placed by hand under a dot directory. Never nil.
func (s *Service) validOnly(notes []models.Note) []models.Note {
	out := make([]models.Note, 0, len(notes))
	for _, n := range notes {
		if err := n.Validate(); err != nil {
			s.logger.Warn("skipping invalid version", slog.String("key", n.Key()), slog.String("error", err.Error()))
			continue
		}
		out = append(out, n)
	}
	return out
}

// Post validates every note, then writes each one. Nothing is written when
// any note is invalid.
func (s *Service) Post(ctx context.Context, notes []models.Note) ([]models.Note, error) {
	if err := models.ValidateAll(notes); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, n := range notes {
		if err := s.store.Write(ctx, n); err != nil {
			return nil, fmt.Errorf("noteservice: write %s: %w", n.Key(), err)
		}
	}
	out, err := s.listLocked(ctx)
	if err != nil {
		return nil, err
	}
	if len(notes) > 0 {
		s.pub.PublishChange(ReasonPost, models.Dirs(notes))
	}
	return out, nil
}

// Delete validates every note, then removes each one. Missing versions are
// ignored.
func (s *Service) Delete(ctx context.Context, notes []models.Note) ([]models.Note, error) {
	if err := models.ValidateAll(notes); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, n := range notes {
		if err := s.store.Delete(ctx, n); err != nil {
			return nil, fmt.Errorf("noteservice: delete %s: %w", n.Key(), err)
		}
	}
	out, err := s.listLocked(ctx)
	if err != nil {
		return nil, err
	}
	if len(notes) > 0 {
		s.pub.PublishChange(ReasonDelete, models.Dirs(notes))
	}
	return out, nil
}

// Rescan re-reads the store and publishes an external change when its
// content differs from the last listing this service produced.
// It reports whether a change was published.
func (s *Service) Rescan(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.lastSum
	notes, err := s.listLocked(ctx)
	if err != nil {
		return false, err
	}
	if s.lastSum == prev {
		return false, nil
	}
	s.logger.Info("store changed externally", slog.Int("notes", len(notes)))
	s.pub.PublishChange(ReasonExternal, models.Dirs(notes))
	return true, nil
}

// Dirs returns every dir that holds at least one version, newest first.
func (s *Service) Dirs(ctx context.Context) ([]string, error) {
	notes, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	return models.Dirs(notes), nil
}

// Versions returns the versions stored under dir, newest first.
func (s *Service) Versions(ctx context.Context, dir string) ([]models.Note, error) {
	notes, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	return models.InDir(notes, dir), nil
}

// Get returns a single version.
func (s *Service) Get(ctx context.Context, dir string, createdAt int64) (models.Note, error) {
	versions, err := s.Versions(ctx, dir)
	if err != nil {
		return models.Note{}, err
	}
	i := slices.IndexFunc(versions, func(n models.Note) bool { return n.CreatedAt == createdAt })
	if i < 0 {
		return models.Note{}, apperr.ErrNotFound
	}
	return versions[i], nil
}

// Latest returns the newest version stored under dir.
func (s *Service) Latest(ctx context.Context, dir string) (models.Note, error) {
	versions, err := s.Versions(ctx, dir)
	if err != nil {
		return models.Note{}, err
	}
	if len(versions) == 0 {
		return models.Note{}, apperr.ErrNotFound
	}
	return versions[0], nil
}

// Search looks up the newest version of every dir in the index.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]index.SearchResult, error) {
	if s.index == nil {
		return nil, ErrSearchDisabled
	}
	// Refresh first so edits the watcher has not reported yet are found.
	if _, err := s.List(ctx); err != nil {
		return nil, err
	}
	return s.index.Search(ctx, query, limit)
}

// Sum returns the checksum of the JSON encoding of notes. The HTTP layer
// uses it as the ETag of a canonical list.
func Sum(notes []models.Note) string {
	sum, err := checksum.SumJSON(notes)
	if err != nil {
		return ""
	}
	return sum
}
