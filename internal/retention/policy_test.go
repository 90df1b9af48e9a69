package retention

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/makepost/corenote/internal/models"
)

func newestFirst(dir string, createdAt ...int64) []models.Note {
	out := make([]models.Note, len(createdAt))
	for i, ts := range createdAt {
		out[i] = models.Note{CreatedAt: ts, Dir: dir}
	}
	models.SortNewestFirst(out)
	return out
}

func TestSparseHistorySurvives(t *testing.T) {
	notes := newestFirst("d", 0, 100, 200, 1000000, 2000000, 3000000, 4000000, 5000000, 6000000)
	got := DefaultPolicy().SelectForDeletion(notes, "d")
	require.Empty(t, got)
}

func TestBurstBeyondBudget(t *testing.T) {
	minute := time.Minute.Milliseconds()
	var ts []int64
	for i := int64(0); i < 8; i++ {
		ts = append(ts, i*minute)
	}
	notes := newestFirst("d", ts...)

	got := DefaultPolicy().SelectForDeletion(notes, "d")
	require.Equal(t, []models.Note{notes[6], notes[7]}, got)
	require.Equal(t, int64(minute), got[0].CreatedAt)
	require.Equal(t, int64(0), got[1].CreatedAt)
}

func TestGapAtBoundaryCounts(t *testing.T) {
	age := DefaultUndoAge.Milliseconds()
	p := Policy{Undos: 1, UndoAge: DefaultUndoAge}
	notes := newestFirst("d", 0, age, 2*age+1, 3*age+2)

	// index 2 (createdAt age) has gap age+1, index 3 has gap exactly age.
	got := p.SelectForDeletion(notes, "d")
	require.Equal(t, []models.Note{{CreatedAt: 0, Dir: "d"}}, got)
}

func TestOtherDirsIgnored(t *testing.T) {
	notes := append(newestFirst("a", 1, 2, 3, 4, 5, 6, 7, 8), newestFirst("b", 10, 11)...)
	models.SortNewestFirst(notes)

	require.Empty(t, DefaultPolicy().SelectForDeletion(notes, "b"))
	got := DefaultPolicy().SelectForDeletion(notes, "a")
	require.Len(t, got, 2)
	for _, n := range got {
		require.Equal(t, "a", n.Dir)
	}
}

func TestFewerThanThree(t *testing.T) {
	p := Policy{Undos: 0, UndoAge: time.Hour}
	require.Empty(t, p.SelectForDeletion(newestFirst("d", 1, 2), "d"))
	require.Empty(t, p.SelectForDeletion(nil, "d"))
}

func TestSelectionProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		p := Policy{
			Undos:   rapid.IntRange(0, 8).Draw(t, "undos"),
			UndoAge: time.Duration(rapid.Int64Range(0, 1000).Draw(t, "undoAgeMs")) * time.Millisecond,
		}
		gaps := rapid.SliceOfN(rapid.Int64Range(1, 2000), 0, 30).Draw(t, "gaps")

		ts := []int64{1 << 40}
		for _, g := range gaps {
			ts = append(ts, ts[len(ts)-1]-g)
		}
		notes := newestFirst("d", ts...)
		got := p.SelectForDeletion(notes, "d")

		if len(notes) > 0 {
			for _, n := range got {
				require.NotEqual(t, notes[0].CreatedAt, n.CreatedAt, "newest version selected")
				if len(notes) > 1 {
					require.NotEqual(t, notes[1].CreatedAt, n.CreatedAt, "second newest selected")
				}
			}
		}

		// Every selected version is close to its successor.
		idx := make(map[int64]int, len(notes))
		for i, n := range notes {
			idx[n.CreatedAt] = i
		}
		for _, n := range got {
			i := idx[n.CreatedAt]
			require.LessOrEqual(t, notes[i-1].CreatedAt-n.CreatedAt, p.UndoAge.Milliseconds())
		}

		// Growing the budget never selects more.
		bigger := Policy{Undos: p.Undos + 1, UndoAge: p.UndoAge}
		require.LessOrEqual(t, len(bigger.SelectForDeletion(notes, "d")), len(got))
	})
}
