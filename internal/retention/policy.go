// Package retention decides which older versions of a note are pruned.
//
// Versions saved within UndoAge of their successor belong to one edit burst.
// The two newest versions always survive. Past them, each close pair spends
// one unit of the Undos budget, and once the budget is spent every further
// close version is selected for deletion.
package retention

import (
	"time"

	"github.com/makepost/corenote/internal/models"
)

const (
	DefaultUndos   = 5
	DefaultUndoAge = 15 * time.Minute
)

// Policy holds the retention budget.
type Policy struct {
	Undos   int
	UndoAge time.Duration
}

// DefaultPolicy returns the policy with 5 undos and a 15 minute window.
func DefaultPolicy() Policy {
	return Policy{Undos: DefaultUndos, UndoAge: DefaultUndoAge}
}

// SelectForDeletion returns the versions of dir that should be deleted.
// notes must be ordered newest first; the result keeps that order.
func (p Policy) SelectForDeletion(notes []models.Note, dir string) []models.Note {
	w := models.InDir(notes, dir)
	undoAge := p.UndoAge.Milliseconds()
	undos := p.Undos

	var out []models.Note
	for i := 2; i < len(w); i++ {
		if w[i-1].CreatedAt-w[i].CreatedAt > undoAge {
			continue
		}
		undos--
		if undos <= 0 {
			out = append(out, w[i])
		}
	}
	return out
}
