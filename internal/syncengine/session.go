package syncengine

import (
	"slices"

	"github.com/makepost/corenote/internal/models"
)

// State is the position of the engine in its save cycle.
type State int

const (
	Idle State = iota
	Debouncing
	OptimisticWrite
	AwaitingPostAck
	Reconciling
	AwaitingPruneAck
	AwaitingDeleteAck
)

var stateNames = [...]string{
	Idle:              "idle",
	Debouncing:        "debouncing",
	OptimisticWrite:   "optimistic_write",
	AwaitingPostAck:   "awaiting_post_ack",
	Reconciling:       "reconciling",
	AwaitingPruneAck:  "awaiting_prune_ack",
	AwaitingDeleteAck: "awaiting_delete_ack",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Session is a copy of the engine state for rendering.
type Session struct {
	// ID identifies this client to the server.
	ID string
	// Dir and CreatedAt select the current note.
	Dir       string
	CreatedAt int64
	// Notes is the last collection confirmed by the server, or the cached
	// collection before the first round trip. Newest first.
	Notes     []models.Note
	State     State
	LastSaved string
	// Pending is the newest optimistic write not yet confirmed.
	Pending *models.Note
}

// Current resolves the current note: an exact match, else the version of
// the current dir nearest in time, else the newest note, else a zero Note.
func (s Session) Current() models.Note {
	if s.Pending != nil && s.Pending.Dir == s.Dir && s.Pending.CreatedAt == s.CreatedAt {
		return *s.Pending
	}
	return resolveCurrent(s.Notes, s.Dir, s.CreatedAt)
}

func resolveCurrent(notes []models.Note, dir string, createdAt int64) models.Note {
	var (
		best  models.Note
		found bool
	)
	for _, n := range notes {
		if n.Dir != dir {
			continue
		}
		if n.CreatedAt == createdAt {
			return n
		}
		if !found || absDiff(n.CreatedAt, createdAt) < absDiff(best.CreatedAt, createdAt) {
			best, found = n, true
		}
	}
	if found {
		return best
	}
	if len(notes) > 0 {
		return notes[0]
	}
	return models.Note{}
}

func absDiff(a, b int64) int64 {
	if a > b {
		return a - b
	}
	return b - a
}

func (s Session) clone() Session {
	s.Notes = slices.Clone(s.Notes)
	if s.Pending != nil {
		p := *s.Pending
		s.Pending = &p
	}
	return s
}
