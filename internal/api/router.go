package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/makepost/corenote/internal/noteservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
// limiter, if non-nil, throttles every route per client IP.
func NewRouter(svc *noteservice.Service, authEnabled bool, token string, sseHandler http.Handler, limiter *RateLimiter) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	if limiter != nil {
		r.Use(limiter.Middleware)
	}
	r.Use(AuthMiddleware(authEnabled, token))

	r.Get("/notes", h.ListNotes)
	r.Post("/notes", h.PostNotes)
	r.Delete("/notes", h.DeleteNotes)
	r.Get("/search", h.Search)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
