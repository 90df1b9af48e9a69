package index

import (
	"context"
	"fmt"
	"strings"

	"github.com/makepost/corenote/internal/models"
)

// SearchResult represents one search hit.
type SearchResult struct {
	Dir       string `json:"dir"`
	CreatedAt int64  `json:"createdAt"`
	Title     string `json:"title"`
	Snippet   string `json:"snippet"`
}

// titleOf returns the first line of a value, the text the dir was derived from.
func titleOf(value string) string {
	line, _, _ := strings.Cut(value, "\n")
	return strings.TrimRight(line, "\r")
}

// Upsert inserts or replaces the indexed version of n.Dir and its FTS entry
// within a transaction.
func (db *DB) Upsert(ctx context.Context, n models.Note, checksum string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	title := titleOf(n.Value)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO notes (dir, created_at, checksum, title, body)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(dir) DO UPDATE SET
			created_at = excluded.created_at,
			checksum   = excluded.checksum,
			title      = excluded.title,
			body       = excluded.body
	`, n.Dir, n.CreatedAt, checksum, title, n.Value)
	if err != nil {
		return fmt.Errorf("index: upsert note: %w", err)
	}

	// FTS upsert (no-op when FTS5 tag is absent).
	if err := ftsUpsert(tx, n.Dir, title, n.Value); err != nil {
		return err
	}
	return tx.Commit()
}

// Delete removes a dir and its FTS entry.
func (db *DB) Delete(ctx context.Context, dir string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ftsDelete(tx, dir)
	if _, err := tx.ExecContext(ctx, `DELETE FROM notes WHERE dir = ?`, dir); err != nil {
		return fmt.Errorf("index: delete note: %w", err)
	}
	return tx.Commit()
}

// AllChecksums returns dir → checksum for every indexed dir.
func (db *DB) AllChecksums(ctx context.Context) (map[string]string, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT dir, checksum FROM notes`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var dir, cs string
		if err := rows.Scan(&dir, &cs); err != nil {
			return nil, err
		}
		out[dir] = cs
	}
	return out, rows.Err()
}
