package index

import (
	"context"

	"github.com/makepost/corenote/internal/models"
)

// DefaultLimit caps search results when no limit is given.
const DefaultLimit = 20

// NoteIndex defines the interface for note indexing operations.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with mocks.
type NoteIndex interface {
	Sync(ctx context.Context, notes []models.Note) (Stats, error)
	Search(ctx context.Context, query string, limit int) ([]SearchResult, error)
	Close() error
}

// Verify *DB satisfies NoteIndex at compile time.
var _ NoteIndex = (*DB)(nil)
