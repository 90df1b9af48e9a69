// Package testutil provides shared test helpers for setting up stores and caches.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/makepost/corenote/internal/localcache"
	"github.com/makepost/corenote/internal/storage"
)

// TestCache creates a SQLite cache in a temporary directory that is
// automatically closed.
func TestCache(t *testing.T) *localcache.Cache {
	t.Helper()
	cache, err := localcache.Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { cache.Close() })
	return cache
}

// TestStore creates a temporary notes directory with an FS provider.
func TestStore(t *testing.T) (string, *storage.FS) {
	t.Helper()
	root := t.TempDir()
	store, err := storage.NewFS(root)
	if err != nil {
		t.Fatal(err)
	}
	return root, store
}
