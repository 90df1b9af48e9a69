package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/makepost/corenote/internal/models"
)

// SessionHeader carries the client session ID on every request.
const SessionHeader = "X-Corenote-Session"

// NotesClient calls the /notes endpoint. Every method returns the canonical
// collection the server answered with.
type NotesClient struct {
	t       *Transport
	baseURL string
	token   string
	session string
}

// NewNotesClient creates a client for the server at baseURL. token, when
// non-empty, is sent as a bearer token.
func NewNotesClient(t *Transport, baseURL, token, session string) *NotesClient {
	return &NotesClient{
		t:       t,
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		session: session,
	}
}

// List fetches the canonical collection.
func (c *NotesClient) List(ctx context.Context) ([]models.Note, error) {
	return c.call(ctx, http.MethodGet, nil)
}

// Post stores notes and returns the canonical collection.
func (c *NotesClient) Post(ctx context.Context, notes []models.Note) ([]models.Note, error) {
	return c.call(ctx, http.MethodPost, notes)
}

// Delete removes notes and returns the canonical collection.
func (c *NotesClient) Delete(ctx context.Context, notes []models.Note) ([]models.Note, error) {
	return c.call(ctx, http.MethodDelete, notes)
}

func (c *NotesClient) call(ctx context.Context, method string, notes []models.Note) ([]models.Note, error) {
	var payload []byte
	if method != http.MethodGet {
		if notes == nil {
			notes = []models.Note{}
		}
		var err error
		if payload, err = json.Marshal(notes); err != nil {
			return nil, fmt.Errorf("transport: encode notes: %w", err)
		}
	}

	res, err := c.t.Send(ctx, func(ctx context.Context) (*http.Request, error) {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/notes", body)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.session != "" {
			req.Header.Set(SessionHeader, c.session)
		}
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	var out []models.Note
	if err := json.Unmarshal(res.Body, &out); err != nil {
		return nil, fmt.Errorf("transport: decode notes: %w", err)
	}
	if out == nil {
		out = []models.Note{}
	}
	models.SortNewestFirst(out)
	return out, nil
}
