package mcpserver

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/linkmend/internal/linkservice"
	"github.com/starford/linkmend/internal/repair"
	"github.com/starford/linkmend/internal/testutil"
)

func testServer(t *testing.T, files map[string]string) (*Server, string) {
	t.Helper()

	root, store := testutil.TestWorkspace(t, files)
	db := testutil.TestDB(t)
	searcher := repair.NewSearcher(repair.NewWalkFinder(root, nil), repair.DefaultFormats(), 0, testutil.Logger())
	svc := linkservice.NewService(store, db, searcher, nil, testutil.Logger())
	if _, err := svc.Scan(context.Background()); err != nil {
		t.Fatal(err)
	}
	return New(svc, "test"), root
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
	case "list_documents":
		result, err = srv.listDocuments(ctx, req)
	case "list_links":
		result, err = srv.listLinks(ctx, req)
	case "find_broken_links":
		result, err = srv.findBrokenLinks(ctx, req)
	case "find_candidates":
		result, err = srv.findCandidates(ctx, req)
	case "repair_link":
		result, err = srv.repairLink(ctx, req)
	case "auto_repair":
		result, err = srv.autoRepair(ctx, req)
	case "move_document":
		result, err = srv.moveDocument(ctx, req)
	case "get_link_rules":
		result, err = srv.getLinkRules(ctx, req)
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

var workspace = map[string]string{
	"index.md":            "See [n](old/name.md) and [a](docs/a.md).\n",
	"docs/a.md":           "[up](../index.md)",
	"archive/old/name.md": "# moved",
}

func TestListDocuments(t *testing.T) {
	srv, root := testServer(t, workspace)

	text := resultText(callTool(t, srv, "list_documents", map[string]interface{}{}))
	if !strings.Contains(text, filepath.Join(root, "docs", "a.md")) {
		t.Errorf("list = %q", text)
	}
	if n := len(strings.Split(text, "\n")); n != 3 {
		t.Errorf("listed %d documents, want 3", n)
	}
}

func TestListLinks(t *testing.T) {
	srv, root := testServer(t, workspace)

	r := callTool(t, srv, "list_links", map[string]interface{}{"path": "docs/a.md"})
	if r.IsError {
		t.Fatalf("error: %s", resultText(r))
	}
	var got struct {
		Links     []struct{ Target string } `json:"links"`
		Backlinks []string                  `json:"backlinks"`
	}
	if err := json.Unmarshal([]byte(resultText(r)), &got); err != nil {
		t.Fatal(err)
	}
	if len(got.Links) != 1 || got.Links[0].Target != filepath.Join(root, "index.md") {
		t.Errorf("links = %+v", got.Links)
	}
	if len(got.Backlinks) != 1 {
		t.Errorf("backlinks = %v", got.Backlinks)
	}
}

func TestListLinks_Missing(t *testing.T) {
	srv, _ := testServer(t, nil)
	r := callTool(t, srv, "list_links", map[string]interface{}{"path": "nope.md"})
	if !r.IsError {
		t.Error("expected error for unindexed document")
	}
}

func TestFindBrokenAndCandidates(t *testing.T) {
	srv, root := testServer(t, workspace)

	text := resultText(callTool(t, srv, "find_broken_links", map[string]interface{}{"rescan": true}))
	if !strings.Contains(text, filepath.Join(root, "old", "name.md")) {
		t.Fatalf("broken = %q", text)
	}

	r := callTool(t, srv, "find_candidates", map[string]interface{}{"path": "old/name.md"})
	var set struct {
		Exact    []string `json:"exact"`
		Selected string   `json:"selected"`
	}
	if err := json.Unmarshal([]byte(resultText(r)), &set); err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(root, "archive", "old", "name.md"); set.Selected != want || len(set.Exact) != 1 {
		t.Errorf("candidates = %+v", set)
	}
}

func TestRepairLink(t *testing.T) {
	srv, root := testServer(t, workspace)

	r := callTool(t, srv, "repair_link", map[string]interface{}{"document": "index.md", "target": "old/name.md"})
	if r.IsError {
		t.Fatalf("error: %s", resultText(r))
	}
	if got := testutil.ReadFile(t, root, "index.md"); got != "See [n](archive/old/name.md) and [a](docs/a.md).\n" {
		t.Errorf("index.md = %q", got)
	}

	text := resultText(callTool(t, srv, "find_broken_links", map[string]interface{}{}))
	if text != "no broken links" {
		t.Errorf("broken after repair = %q", text)
	}
}

func TestAutoRepair_DryRun(t *testing.T) {
	srv, root := testServer(t, workspace)

	r := callTool(t, srv, "auto_repair", map[string]interface{}{"dry_run": true})
	if r.IsError {
		t.Fatalf("error: %s", resultText(r))
	}
	if !strings.Contains(resultText(r), `"dry_run": true`) {
		t.Errorf("report = %s", resultText(r))
	}
	if got := testutil.ReadFile(t, root, "index.md"); got != workspace["index.md"] {
		t.Errorf("dry run wrote index.md: %q", got)
	}
}

func TestMoveDocument(t *testing.T) {
	srv, root := testServer(t, workspace)

	r := callTool(t, srv, "move_document", map[string]interface{}{"from": "docs/a.md", "to": "guide/a.md"})
	if r.IsError {
		t.Fatalf("error: %s", resultText(r))
	}
	if got := testutil.ReadFile(t, root, "index.md"); !strings.Contains(got, "[a](guide/a.md)") {
		t.Errorf("index.md = %q", got)
	}

	r = callTool(t, srv, "move_document", map[string]interface{}{"from": "docs/a.md"})
	if !r.IsError {
		t.Error("expected error for missing destination argument")
	}
}

func TestGetLinkRules(t *testing.T) {
	srv, _ := testServer(t, nil)
	if text := resultText(callTool(t, srv, "get_link_rules", nil)); text != LinkRules {
		t.Error("rules text mismatch")
	}
}
