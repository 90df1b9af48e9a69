package index

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/makepost/corenote/internal/models"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM notes`).Scan(&count); err != nil {
		t.Fatalf("notes table missing: %v", err)
	}
}

func TestSync_IndexesNewestVersionPerDir(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	st, err := db.Sync(ctx, []models.Note{
		{CreatedAt: 3, Dir: "a", Value: "a\nnewest"},
		{CreatedAt: 2, Dir: "b", Value: "b\nonly"},
		{CreatedAt: 1, Dir: "a", Value: "a\noldest"},
	})
	require.NoError(t, err)
	require.Equal(t, Stats{Indexed: 2}, st)

	cs, err := db.AllChecksums(ctx)
	require.NoError(t, err)
	require.Len(t, cs, 2)
	require.Equal(t, sumOf(models.Note{CreatedAt: 3, Dir: "a", Value: "a\nnewest"}), cs["a"])

	hits, err := db.Search(ctx, "newest", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, int64(3), hits[0].CreatedAt)
	require.Equal(t, "a", hits[0].Title)
}

func TestSync_SkipsUnchanged(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	notes := []models.Note{{CreatedAt: 1, Dir: "a", Value: "a"}}

	_, err := db.Sync(ctx, notes)
	require.NoError(t, err)
	st, err := db.Sync(ctx, notes)
	require.NoError(t, err)
	require.Equal(t, Stats{}, st)
}

func TestSync_RemovesVanishedDirs(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	_, err := db.Sync(ctx, []models.Note{
		{CreatedAt: 1, Dir: "a", Value: "a"},
		{CreatedAt: 2, Dir: "b", Value: "b"},
	})
	require.NoError(t, err)

	st, err := db.Sync(ctx, []models.Note{{CreatedAt: 2, Dir: "b", Value: "b"}})
	require.NoError(t, err)
	require.Equal(t, Stats{Removed: 1}, st)

	cs, err := db.AllChecksums(ctx)
	require.NoError(t, err)
	require.NotContains(t, cs, "a")
	require.Contains(t, cs, "b")
}

func TestUpsertReplacesExisting(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	require.NoError(t, db.Upsert(ctx, models.Note{CreatedAt: 1, Dir: "up", Value: "Old"}, "1"))
	require.NoError(t, db.Upsert(ctx, models.Note{CreatedAt: 2, Dir: "up", Value: "New"}, "2"))

	cs, err := db.AllChecksums(ctx)
	require.NoError(t, err)
	require.Equal(t, map[string]string{"up": "2"}, cs)
}

func TestSearch_Basic(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	_, err := db.Sync(ctx, []models.Note{
		{CreatedAt: 5, Dir: "s", Value: "Search Me\nuniqueword appears here"},
		{CreatedAt: 4, Dir: "other", Value: "other\nnothing to see"},
	})
	require.NoError(t, err)

	results, err := db.Search(ctx, "uniqueword", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "s", results[0].Dir)
	require.Equal(t, int64(5), results[0].CreatedAt)
	require.Equal(t, "Search Me", results[0].Title)
}

func TestSearch_NoHitsIsEmpty(t *testing.T) {
	db := testDB(t)
	results, err := db.Search(context.Background(), "absent", 0)
	require.NoError(t, err)
	require.NotNil(t, results)
	require.Empty(t, results)
}
