package mcpserver

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/makepost/corenote/internal/index"
	"github.com/makepost/corenote/internal/models"
	"github.com/makepost/corenote/internal/noteservice"
	"github.com/makepost/corenote/internal/retention"
	"github.com/makepost/corenote/internal/testutil"
)

func testServer(t *testing.T) (*Server, *noteservice.Service) {
	t.Helper()

	_, store := testutil.TestStore(t)
	ix, err := index.Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ix.Close() })

	svc := noteservice.NewService(store, nil, noteservice.WithIndex(ix))
	srv := New(svc, retention.DefaultPolicy())
	srv.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return srv, svc
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	var result *mcp.CallToolResult
	var err error

	switch name {
	case "search_notes":
		result, err = srv.searchNotes(ctx, req)
	case "list_dirs":
		result, err = srv.listDirs(ctx, req)
	case "list_versions":
		result, err = srv.listVersions(ctx, req)
	case "read_note":
		result, err = srv.readNote(ctx, req)
	case "save_note":
		result, err = srv.saveNote(ctx, req)
	case "delete_version":
		result, err = srv.deleteVersion(ctx, req)
	case "get_note_contract":
		result, err = srv.getNoteContract(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func saved(t *testing.T, r *mcp.CallToolResult) savedResult {
	t.Helper()
	if r.IsError {
		t.Fatalf("save failed: %s", resultText(r))
	}
	var res savedResult
	if err := json.Unmarshal([]byte(resultText(r)), &res); err != nil {
		t.Fatalf("decode %q: %v", resultText(r), err)
	}
	return res
}

func TestSaveAndReadNote(t *testing.T) {
	srv, _ := testServer(t)

	res := saved(t, callTool(t, srv, "save_note", map[string]interface{}{
		"value": "Groceries\nmilk",
	}))
	if res.Dir != "Groceries" || res.CreatedAt != 1700000000000 {
		t.Errorf("save result = %+v", res)
	}

	r := callTool(t, srv, "read_note", map[string]interface{}{"dir": "Groceries"})
	if text := resultText(r); text != "Groceries\nmilk" {
		t.Errorf("read result = %q", text)
	}
}

func TestSaveBumpsCreatedAt(t *testing.T) {
	srv, _ := testServer(t)

	first := saved(t, callTool(t, srv, "save_note", map[string]interface{}{"value": "a\n1"}))
	second := saved(t, callTool(t, srv, "save_note", map[string]interface{}{"value": "a\n2"}))
	if second.CreatedAt != first.CreatedAt+1 {
		t.Errorf("second createdAt = %d, want %d", second.CreatedAt, first.CreatedAt+1)
	}

	r := callTool(t, srv, "read_note", map[string]interface{}{
		"dir":        "a",
		"created_at": "1700000000000",
	})
	if text := resultText(r); text != "a\n1" {
		t.Errorf("read old version = %q", text)
	}
}

func TestSaveBlankValueRejected(t *testing.T) {
	srv, svc := testServer(t)

	for _, v := range []string{"", " \n "} {
		r := callTool(t, srv, "save_note", map[string]interface{}{"value": v})
		if !r.IsError {
			t.Errorf("save %q: expected error, got %s", v, resultText(r))
		}
	}
	dirs, err := svc.Dirs(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(dirs) != 0 {
		t.Errorf("dirs = %v, want none", dirs)
	}
}

func TestSaveSameValueIsNoop(t *testing.T) {
	srv, svc := testServer(t)

	saved(t, callTool(t, srv, "save_note", map[string]interface{}{"value": "same"}))
	saved(t, callTool(t, srv, "save_note", map[string]interface{}{"value": "same"}))

	versions, err := svc.Versions(context.Background(), "same")
	if err != nil {
		t.Fatal(err)
	}
	if len(versions) != 1 {
		t.Errorf("versions = %d, want 1", len(versions))
	}
}

func TestSavePrunesBurst(t *testing.T) {
	srv, svc := testServer(t)

	var pruned int
	for i := 0; i < 8; i++ {
		res := saved(t, callTool(t, srv, "save_note", map[string]interface{}{
			"value": "burst\n" + strings.Repeat("x", i+1),
		}))
		pruned += res.Pruned
	}
	versions, err := svc.Versions(context.Background(), "burst")
	if err != nil {
		t.Fatal(err)
	}
	if len(versions)+pruned != 8 || pruned == 0 {
		t.Errorf("kept %d, pruned %d", len(versions), pruned)
	}
}

func TestListDirsAndVersions(t *testing.T) {
	srv, svc := testServer(t)
	_, err := svc.Post(context.Background(), []models.Note{
		{CreatedAt: 1, Dir: "a", Value: "a\none"},
		{CreatedAt: 2, Dir: "b", Value: "b"},
		{CreatedAt: 3, Dir: "a", Value: "a\ntwo"},
	})
	if err != nil {
		t.Fatal(err)
	}

	if text := resultText(callTool(t, srv, "list_dirs", map[string]interface{}{})); text != "a\nb" {
		t.Errorf("dirs = %q", text)
	}

	text := resultText(callTool(t, srv, "list_versions", map[string]interface{}{"dir": "a"}))
	if text != "3\ta\n1\ta" {
		t.Errorf("versions = %q", text)
	}
}

func TestListDirsEmpty(t *testing.T) {
	srv, _ := testServer(t)
	if text := resultText(callTool(t, srv, "list_dirs", map[string]interface{}{})); text != "no notes found" {
		t.Errorf("dirs = %q", text)
	}
}

func TestReadNoteMissing(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "read_note", map[string]interface{}{"dir": "nope"})
	if !r.IsError {
		t.Error("expected error for missing note")
	}
}

func TestReadNoteBadTimestamp(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "read_note", map[string]interface{}{"dir": "a", "created_at": "soon"})
	if !r.IsError {
		t.Error("expected error for invalid created_at")
	}
}

func TestDeleteVersion(t *testing.T) {
	srv, svc := testServer(t)
	saved(t, callTool(t, srv, "save_note", map[string]interface{}{"value": "gone"}))

	r := callTool(t, srv, "delete_version", map[string]interface{}{
		"dir":        "gone",
		"created_at": "1700000000000",
	})
	if text := resultText(r); text != "deleted: gone/1700000000000.txt" {
		t.Errorf("delete result = %q", text)
	}

	notes, err := svc.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(notes) != 0 {
		t.Errorf("notes left: %+v", notes)
	}

	r = callTool(t, srv, "delete_version", map[string]interface{}{
		"dir":        "gone",
		"created_at": "1700000000000",
	})
	if !r.IsError {
		t.Error("expected error deleting a missing version")
	}
}

func TestGetNoteContract(t *testing.T) {
	srv, _ := testServer(t)
	text := resultText(callTool(t, srv, "get_note_contract", map[string]interface{}{}))
	if !strings.Contains(text, "{dir}/{createdAt}.txt") {
		t.Error("contract does not describe the storage key")
	}
}

func TestSearchNotes(t *testing.T) {
	srv, _ := testServer(t)
	saved(t, callTool(t, srv, "save_note", map[string]interface{}{"value": "Trip\npack the lanterns"}))

	text := resultText(callTool(t, srv, "search_notes", map[string]interface{}{"query": "lanterns"}))
	var hits []index.SearchResult
	if err := json.Unmarshal([]byte(text), &hits); err != nil {
		t.Fatalf("decode %q: %v", text, err)
	}
	if len(hits) != 1 || hits[0].Dir != "Trip" {
		t.Errorf("hits = %+v", hits)
	}
}
