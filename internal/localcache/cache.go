package localcache

import (
	"context"
	"fmt"

	"github.com/makepost/corenote/internal/models"
)

// Put stores the note under its key, replacing any previous value.
func (c *Cache) Put(ctx context.Context, n models.Note) error {
	_, err := c.conn.ExecContext(ctx, `
		INSERT INTO entries (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, n.Key(), n.Value)
	if err != nil {
		return fmt.Errorf("localcache: put %s: %w", n.Key(), err)
	}
	return nil
}

// Remove deletes the entry of one version. Removing a missing entry is a no-op.
func (c *Cache) Remove(ctx context.Context, dir string, createdAt int64) error {
	key := models.Key(dir, createdAt)
	if _, err := c.conn.ExecContext(ctx, `DELETE FROM entries WHERE key = ?`, key); err != nil {
		return fmt.Errorf("localcache: remove %s: %w", key, err)
	}
	return nil
}

// LoadAll returns every entry whose key names a valid note version. Other
// keys and versions failing models.Note.Validate are skipped, so a bad
// entry never reaches the server. Order is undefined.
func (c *Cache) LoadAll(ctx context.Context) ([]models.Note, error) {
	rows, err := c.conn.QueryContext(ctx, `SELECT key, value FROM entries`)
	if err != nil {
		return nil, fmt.Errorf("localcache: load: %w", err)
	}
	defer rows.Close()

	var out []models.Note
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("localcache: scan: %w", err)
		}
		dir, createdAt, ok := models.ParseKey(key)
		if !ok {
			continue
		}
		n := models.Note{CreatedAt: createdAt, Dir: dir, Value: value}
		if n.Validate() != nil {
			continue
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// Replace converges the cache to exactly notes in one transaction: every
// note is upserted and every other note entry is deleted. Keys that do not
// name a version are left alone.
func (c *Cache) Replace(ctx context.Context, notes []models.Note) error {
	tx, err := c.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("localcache: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	keep := make(map[string]struct{}, len(notes))
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO entries (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`)
	if err != nil {
		return fmt.Errorf("localcache: prepare upsert: %w", err)
	}
	defer stmt.Close()
	for _, n := range notes {
		key := n.Key()
		keep[key] = struct{}{}
		if _, err := stmt.ExecContext(ctx, key, n.Value); err != nil {
			return fmt.Errorf("localcache: upsert %s: %w", key, err)
		}
	}

	rows, err := tx.QueryContext(ctx, `SELECT key FROM entries`)
	if err != nil {
		return fmt.Errorf("localcache: list keys: %w", err)
	}
	var stale []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			rows.Close()
			return fmt.Errorf("localcache: scan key: %w", err)
		}
		if _, ok := keep[key]; ok {
			continue
		}
		if _, _, ok := models.ParseKey(key); ok {
			stale = append(stale, key)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("localcache: list keys: %w", err)
	}

	for _, key := range stale {
		if _, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE key = ?`, key); err != nil {
			return fmt.Errorf("localcache: delete %s: %w", key, err)
		}
	}
	return tx.Commit()
}
