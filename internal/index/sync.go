package index

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/makepost/corenote/internal/checksum"
	"github.com/makepost/corenote/internal/models"
)

// Stats counts the rows touched by Sync.
type Stats struct {
	Indexed int
	Removed int
}

// Sync brings the index up to date with a collection:
//   - the newest version of every dir is upserted when its checksum changed
//   - dirs that no longer hold any version are deleted from the index
func (db *DB) Sync(ctx context.Context, notes []models.Note) (Stats, error) {
	var st Stats

	checksums, err := db.AllChecksums(ctx)
	if err != nil {
		return st, err
	}

	live := make(map[string]struct{})
	for _, dir := range models.Dirs(notes) {
		live[dir] = struct{}{}
		newest, _ := models.Newest(notes, dir)

		cs := sumOf(newest)
		if checksums[dir] == cs {
			continue
		}
		if err := db.Upsert(ctx, newest, cs); err != nil {
			return st, err
		}
		st.Indexed++
		slog.Debug("index: indexed", slog.String("dir", dir))
	}

	// Remove stale entries.
	for dir := range checksums {
		if _, ok := live[dir]; ok {
			continue
		}
		if err := db.Delete(ctx, dir); err != nil {
			return st, err
		}
		st.Removed++
		slog.Debug("index: removed stale", slog.String("dir", dir))
	}

	return st, nil
}

func sumOf(n models.Note) string {
	return checksum.Sum([]byte(strconv.FormatInt(n.CreatedAt, 10) + "\x00" + n.Value))
}
