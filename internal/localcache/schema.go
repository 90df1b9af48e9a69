// Package localcache is the client's durable mirror of every known note
// version, keyed by "{dir}/{createdAt}.txt".
package localcache

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS entries (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// Cache wraps a sql.DB holding the key-value entries.
type Cache struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*Cache, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("localcache: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("localcache: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("localcache: apply schema: %w", err)
	}
	return &Cache{conn: conn}, nil
}

// Close closes the underlying database connection.
func (c *Cache) Close() error {
	return c.conn.Close()
}
