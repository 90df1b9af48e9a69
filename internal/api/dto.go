package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/makepost/corenote/internal/models"
)

// maxBodyBytes bounds a POST or DELETE payload.
const maxBodyBytes = 10 << 20

// NoteList is the request and response body of every /notes route: a JSON
// array of versions, newest first in responses.
type NoteList = []models.Note

// decodeNotes reads a JSON array of notes. Unknown fields are ignored.
func decodeNotes(w http.ResponseWriter, r *http.Request) (NoteList, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var notes NoteList
	if err := json.NewDecoder(r.Body).Decode(&notes); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty body")
		}
		return nil, fmt.Errorf("invalid JSON body: %w", err)
	}
	if notes == nil {
		notes = NoteList{}
	}
	return notes, nil
}
