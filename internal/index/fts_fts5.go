//go:build sqlite_fts5

package index

import (
	"context"
	"database/sql"
	"fmt"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS notes_fts USING fts5(
			dir UNINDEXED,
			title,
			body,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsUpsert(tx *sql.Tx, dir, title, body string) error {
	_, _ = tx.Exec(`DELETE FROM notes_fts WHERE dir = ?`, dir)
	_, err := tx.Exec(`INSERT INTO notes_fts (dir, title, body) VALUES (?, ?, ?)`, dir, title, body)
	if err != nil {
		return fmt.Errorf("index: upsert fts: %w", err)
	}
	return nil
}

func ftsDelete(tx *sql.Tx, dir string) {
	_, _ = tx.Exec(`DELETE FROM notes_fts WHERE dir = ?`, dir)
}

// Search performs an FTS5 full-text search and returns matching results with snippets.
func (db *DB) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	rows, err := db.conn.QueryContext(ctx, `
		SELECT f.dir,
		       n.created_at,
		       f.title,
		       snippet(notes_fts, 2, '<b>', '</b>', '...', 64)
		FROM notes_fts f
		JOIN notes n ON n.dir = f.dir
		WHERE notes_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	defer rows.Close()

	out := []SearchResult{}
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.Dir, &r.CreatedAt, &r.Title, &r.Snippet); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
