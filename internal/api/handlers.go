package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/makepost/corenote/internal/apperr"
	"github.com/makepost/corenote/internal/noteservice"
)

// SessionHeader identifies the client sync session that sent a request.
const SessionHeader = "X-Corenote-Session"

// Handler holds API route handlers.
type Handler struct {
	svc *noteservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *noteservice.Service) *Handler {
	return &Handler{svc: svc}
}

// ListNotes handles GET /notes.
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	notes, err := h.svc.List(r.Context())
	if err != nil {
		slog.Error("list notes failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeNotes(w, r, notes)
}

// PostNotes handles POST /notes: validate the batch, write every version and
// answer with the canonical list.
func (h *Handler) PostNotes(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, "post", h.svc.Post)
}

// DeleteNotes handles DELETE /notes. Missing versions are ignored.
func (h *Handler) DeleteNotes(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, "delete", h.svc.Delete)
}

func (h *Handler) mutate(w http.ResponseWriter, r *http.Request, op string, fn func(context.Context, NoteList) (NoteList, error)) {
	notes, err := decodeNotes(w, r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	out, err := fn(r.Context(), notes)
	if err != nil {
		if errors.Is(err, apperr.ErrInvalidNote) {
			writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
			return
		}
		slog.Error(op+" notes failed",
			slog.String("session", r.Header.Get(SessionHeader)),
			slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}

	slog.Info(op+" notes",
		slog.String("session", r.Header.Get(SessionHeader)),
		slog.Int("count", len(notes)),
		slog.Int("total", len(out)))
	writeNotes(w, r, out)
}

// writeNotes sends the canonical list with its checksum as ETag and honours
// If-None-Match on reads.
func writeNotes(w http.ResponseWriter, r *http.Request, notes NoteList) {
	etag := `"` + noteservice.Sum(notes) + `"`
	w.Header().Set("ETag", etag)
	if r.Method == http.MethodGet && r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	writeJSON(w, http.StatusOK, notes)
}

// Search handles GET /search?q=...&limit=...
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("missing query parameter q"))
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, errorBody("invalid limit"))
			return
		}
		limit = n
	}

	hits, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		if errors.Is(err, noteservice.ErrSearchDisabled) {
			writeJSON(w, http.StatusNotFound, errorBody("search is disabled"))
			return
		}
		slog.Error("search failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, hits)
}
