// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes corenote tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/makepost/corenote/internal/apperr"
	"github.com/makepost/corenote/internal/models"
	"github.com/makepost/corenote/internal/noteservice"
	"github.com/makepost/corenote/internal/retention"
)

const noteFormatURI = "corenote://note-format"

// Server wraps the MCP server with corenote tools.
type Server struct {
	mcp    *server.MCPServer
	svc    *noteservice.Service
	policy retention.Policy
	now    func() time.Time
}

// New creates a new MCP server with all corenote tools registered.
// Saves through save_note are pruned with policy, like client saves.
func New(svc *noteservice.Service, policy retention.Policy) *Server {
	s := &Server{svc: svc, policy: policy, now: time.Now}

	s.mcp = server.NewMCPServer(
		"corenote",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Full-text search through the newest version of every note."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchNotes)

	s.mcp.AddTool(mcp.NewTool("list_dirs",
		mcp.WithDescription("List every note directory, most recently edited first."),
	), s.listDirs)

	s.mcp.AddTool(mcp.NewTool("list_versions",
		mcp.WithDescription("List the versions of a note directory, newest first. "+
			"Each line is the createdAt timestamp followed by the first line of the value."),
		mcp.WithString("dir", mcp.Required(), mcp.Description("Note directory (e.g. work/plan)")),
	), s.listVersions)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read the full value of a note version. Without created_at the newest version is returned."),
		mcp.WithString("dir", mcp.Required(), mcp.Description("Note directory")),
		mcp.WithString("created_at", mcp.Description("Optional version timestamp in Unix milliseconds")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("save_note",
		mcp.WithDescription("Save a new version of a note. The first line of the value selects the "+
			"directory; read the corenote://note-format resource or call get_note_contract first."),
		mcp.WithString("value", mcp.Required(), mcp.Description("Full plain-text value of the note")),
	), s.saveNote)

	s.mcp.AddTool(mcp.NewTool("delete_version",
		mcp.WithDescription("Delete one version of a note."),
		mcp.WithString("dir", mcp.Required(), mcp.Description("Note directory")),
		mcp.WithString("created_at", mcp.Required(), mcp.Description("Version timestamp in Unix milliseconds")),
	), s.deleteVersion)

	s.mcp.AddTool(mcp.NewTool("get_note_contract",
		mcp.WithDescription("Returns the corenote note format. "+
			"Call this before saving notes to understand how directories and versions work."),
	), s.getNoteContract)

	// Resource: note format contract.
	s.mcp.AddResource(
		mcp.NewResource(noteFormatURI, "Note Format",
			mcp.WithResourceDescription("How corenote derives directories and stores versions."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readNoteFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) searchNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(ctx, query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(results, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listDirs(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dirs, err := s.svc.Dirs(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(dirs) == 0 {
		return mcp.NewToolResultText("no notes found"), nil
	}
	return mcp.NewToolResultText(strings.Join(dirs, "\n")), nil
}

func (s *Server) listVersions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dir, err := req.RequireString("dir")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	versions, err := s.svc.Versions(ctx, dir)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(versions) == 0 {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", dir)), nil
	}

	lines := make([]string, 0, len(versions))
	for _, n := range versions {
		first, _, _ := strings.Cut(n.Value, "\n")
		lines = append(lines, strconv.FormatInt(n.CreatedAt, 10)+"\t"+first)
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dir, err := req.RequireString("dir")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var n models.Note
	if raw, rerr := req.RequireString("created_at"); rerr == nil && raw != "" {
		createdAt, perr := strconv.ParseInt(raw, 10, 64)
		if perr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid created_at: %s", raw)), nil
		}
		n, err = s.svc.Get(ctx, dir, createdAt)
	} else {
		n, err = s.svc.Latest(ctx, dir)
	}
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", dir)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(n.Value), nil
}

// savedResult is the JSON answer of save_note.
type savedResult struct {
	Dir       string `json:"dir"`
	CreatedAt int64  `json:"createdAt"`
	Pruned    int    `json:"pruned"`
}

func (s *Server) saveNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	value, err := req.RequireString("value")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if strings.TrimSpace(value) == "" {
		return mcp.NewToolResultError("value is empty"), nil
	}

	n := models.Note{CreatedAt: s.now().UnixMilli(), Dir: models.DeriveDir(value), Value: value}
	latest, err := s.svc.Latest(ctx, n.Dir)
	switch {
	case err == nil:
		if latest.Value == value {
			return s.savedText(savedResult{Dir: latest.Dir, CreatedAt: latest.CreatedAt}), nil
		}
		if n.CreatedAt <= latest.CreatedAt {
			n.CreatedAt = latest.CreatedAt + 1
		}
	case !errors.Is(err, apperr.ErrNotFound):
		return mcp.NewToolResultError(err.Error()), nil
	}

	canonical, err := s.svc.Post(ctx, []models.Note{n})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	res := savedResult{Dir: n.Dir, CreatedAt: n.CreatedAt}
	if pruned := s.policy.SelectForDeletion(canonical, n.Dir); len(pruned) > 0 {
		if _, err := s.svc.Delete(ctx, pruned); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("saved %s but prune failed: %v", n.Key(), err)), nil
		}
		res.Pruned = len(pruned)
	}
	return s.savedText(res), nil
}

func (s *Server) savedText(res savedResult) *mcp.CallToolResult {
	out, _ := json.Marshal(res)
	return mcp.NewToolResultText(string(out))
}

func (s *Server) deleteVersion(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dir, err := req.RequireString("dir")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	raw, err := req.RequireString("created_at")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	createdAt, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid created_at: %s", raw)), nil
	}

	n, err := s.svc.Get(ctx, dir, createdAt)
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", models.Key(dir, createdAt))), nil
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if _, err := s.svc.Delete(ctx, []models.Note{n}); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("deleted: %s", n.Key())), nil
}

func (s *Server) getNoteContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(NoteFormatContract), nil
}

func (s *Server) readNoteFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      noteFormatURI,
			MIMEType: "text/markdown",
			Text:     NoteFormatContract,
		},
	}, nil
}
