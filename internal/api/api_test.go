package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/linkmend/internal/linkservice"
	"github.com/starford/linkmend/internal/repair"
	"github.com/starford/linkmend/internal/testutil"
)

// testEnv sets up a temp workspace, SQLite DB, service, and router for testing.
// An empty authToken means disabled mode.
func testEnv(t *testing.T, authToken string, files map[string]string) (string, http.Handler) {
	t.Helper()
	return testEnvWithSSE(t, authToken != "", authToken, nil, files)
}

func testEnvWithSSE(t *testing.T, authEnabled bool, token string, sseHandler http.Handler, files map[string]string) (string, http.Handler) {
	t.Helper()

	root, store := testutil.TestWorkspace(t, files)
	db := testutil.TestDB(t)
	searcher := repair.NewSearcher(repair.NewWalkFinder(root, nil), repair.DefaultFormats(), 0, testutil.Logger())
	svc := linkservice.NewService(store, db, searcher, nil, testutil.Logger())
	if _, err := svc.Scan(context.Background()); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	return root, NewRouter(svc, authEnabled, token, sseHandler)
}

func do(t *testing.T, router http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return v
}

var brokenWorkspace = map[string]string{
	"index.md":            "See [n](old/name.md) and [a](docs/a.md).\n",
	"docs/a.md":           "[up](../index.md)",
	"archive/old/name.md": "# moved",
}

func TestListDocuments(t *testing.T) {
	_, router := testEnv(t, "", brokenWorkspace)

	w := do(t, router, http.MethodGet, "/documents", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	resp := decode[DocumentListResponse](t, w)
	if resp.Total != 3 || len(resp.Documents) != 3 {
		t.Errorf("documents = %+v", resp)
	}
}

func TestGetDocumentLinks(t *testing.T) {
	root, router := testEnv(t, "", brokenWorkspace)

	w := do(t, router, http.MethodGet, "/links/docs%2Fa.md", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	resp := decode[DocumentLinksResponse](t, w)
	if resp.Path != filepath.Join(root, "docs", "a.md") {
		t.Errorf("path = %q", resp.Path)
	}
	if len(resp.Links) != 1 || resp.Links[0].Target != filepath.Join(root, "index.md") {
		t.Errorf("links = %+v", resp.Links)
	}
	if len(resp.Backlinks) != 1 || resp.Backlinks[0] != filepath.Join(root, "index.md") {
		t.Errorf("backlinks = %v", resp.Backlinks)
	}
}

func TestGetDocumentLinks_NotFound(t *testing.T) {
	_, router := testEnv(t, "", nil)

	w := do(t, router, http.MethodGet, "/links/nope.md", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestGetDocumentLinks_OutsideRoot(t *testing.T) {
	_, router := testEnv(t, "", nil)

	w := do(t, router, http.MethodGet, "/links/..%2F..%2Fetc%2Fpasswd", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestReindexDocument(t *testing.T) {
	root, router := testEnv(t, "", brokenWorkspace)
	testutil.WriteFiles(t, root, map[string]string{"docs/a.md": "[x](x.md) [y](y.md)"})

	w := do(t, router, http.MethodPost, "/documents/docs/a.md", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if resp := decode[DocumentLinksResponse](t, w); len(resp.Links) != 2 {
		t.Errorf("links = %+v, want 2", resp.Links)
	}
}

func TestBrokenAndCandidates(t *testing.T) {
	root, router := testEnv(t, "", brokenWorkspace)

	w := do(t, router, http.MethodGet, "/broken", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("broken status = %d", w.Code)
	}
	broken := decode[BrokenResponse](t, w)
	if broken.Total != 1 || broken.Broken[0].Target != filepath.Join(root, "old", "name.md") {
		t.Fatalf("broken = %+v", broken)
	}

	w = do(t, router, http.MethodGet, "/candidates?path=old/name.md", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("candidates status = %d, body = %s", w.Code, w.Body.String())
	}
	cands := decode[CandidatesResponse](t, w)
	want := filepath.Join(root, "archive", "old", "name.md")
	if len(cands.Exact) != 1 || cands.Exact[0] != want || cands.Selected != want {
		t.Errorf("candidates = %+v", cands)
	}
}

func TestCandidates_MissingPath(t *testing.T) {
	_, router := testEnv(t, "", nil)

	w := do(t, router, http.MethodGet, "/candidates", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestRepair(t *testing.T) {
	root, router := testEnv(t, "", brokenWorkspace)

	w := do(t, router, http.MethodPost, "/repair", RepairRequest{Document: "index.md", Target: "old/name.md"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if out := decode[RepairOutcome](t, w); !out.Applied {
		t.Errorf("outcome = %+v", out)
	}
	if got := testutil.ReadFile(t, root, "index.md"); got != "See [n](archive/old/name.md) and [a](docs/a.md).\n" {
		t.Errorf("index.md = %q", got)
	}
}

func TestRepair_Errors(t *testing.T) {
	_, router := testEnv(t, "", map[string]string{
		"index.md": "[x](gone/x.md)",
		"a/x.md":   "a",
		"b/x.md":   "b",
	})

	cases := []struct {
		name string
		body any
		want int
	}{
		{"missing fields", RepairRequest{Document: "index.md"}, http.StatusBadRequest},
		{"ambiguous", RepairRequest{Document: "index.md", Target: "gone/x.md"}, http.StatusConflict},
		{"not applied", RepairRequest{Document: "index.md", Target: "other.md", Replacement: "a/x.md"}, http.StatusUnprocessableEntity},
		{"missing replacement", RepairRequest{Document: "index.md", Target: "gone/x.md", Replacement: "c/x.md"}, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := do(t, router, http.MethodPost, "/repair", tc.body)
			if w.Code != tc.want {
				t.Errorf("status = %d, want %d, body = %s", w.Code, tc.want, w.Body.String())
			}
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/repair", bytes.NewReader([]byte("{")))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid JSON = %d, want 400", w.Code)
	}
}

func TestAutoRepair_DryRun(t *testing.T) {
	root, router := testEnv(t, "", brokenWorkspace)

	w := do(t, router, http.MethodPost, "/repair/auto?dry_run=true", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	report := decode[AutoRepairReport](t, w)
	if !report.DryRun || len(report.Repairs) != 1 || report.Repairs[0].Applied {
		t.Errorf("report = %+v", report)
	}
	if got := testutil.ReadFile(t, root, "index.md"); got != brokenWorkspace["index.md"] {
		t.Errorf("dry run wrote index.md: %q", got)
	}

	w = do(t, router, http.MethodPost, "/repair/auto", AutoRepairRequest{})
	report = decode[AutoRepairReport](t, w)
	if report.DryRun || len(report.Repairs) != 1 || !report.Repairs[0].Applied {
		t.Errorf("report = %+v", report)
	}
}

func TestMove(t *testing.T) {
	root, router := testEnv(t, "", brokenWorkspace)

	w := do(t, router, http.MethodPost, "/move", MoveRequest{From: "docs/a.md", To: "guide/a.md"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	report := decode[MoveReport](t, w)
	if report.To != filepath.Join(root, "guide", "a.md") || len(report.Updated) != 1 {
		t.Errorf("report = %+v", report)
	}
	if got := testutil.ReadFile(t, root, "index.md"); got != "See [n](old/name.md) and [a](guide/a.md).\n" {
		t.Errorf("index.md = %q", got)
	}
}

func TestMove_Errors(t *testing.T) {
	_, router := testEnv(t, "", brokenWorkspace)

	cases := []struct {
		name string
		body MoveRequest
		want int
	}{
		{"same path", MoveRequest{From: "docs/a.md", To: "docs/a.md"}, http.StatusBadRequest},
		{"missing source", MoveRequest{From: "nope.md", To: "x.md"}, http.StatusNotFound},
		{"existing destination", MoveRequest{From: "docs/a.md", To: "index.md"}, http.StatusConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := do(t, router, http.MethodPost, "/move", tc.body)
			if w.Code != tc.want {
				t.Errorf("status = %d, want %d, body = %s", w.Code, tc.want, w.Body.String())
			}
		})
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	_, router := testEnv(t, "secret123", nil)
	req := httptest.NewRequest(http.MethodGet, "/documents", nil)
	req.Header.Set("Authorization", "Bearer secret123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("authed list = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	_, router := testEnv(t, "secret123", nil)
	w := do(t, router, http.MethodGet, "/broken", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	_, router := testEnv(t, "secret123", nil)
	req := httptest.NewRequest(http.MethodPost, "/repair/auto", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

// SSE endpoint auth tests.

func sseStub() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-r.Context().Done()
	})
}

func TestSSEEvents_AuthProtected(t *testing.T) {
	_, router := testEnvWithSSE(t, true, "tok", sseStub(), nil)

	w := do(t, router, http.MethodGet, "/events", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	_, router := testEnvWithSSE(t, true, "tok", sseStub(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE with valid token should not 401")
	}
}
