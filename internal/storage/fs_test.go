package storage

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/linkmend/internal/models"
)

func tempWorkspace(t *testing.T, exclude ...string) *FS {
	t.Helper()
	dir := t.TempDir()
	s, err := NewFS(dir, exclude...)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return s
}

func TestWriteAndRead(t *testing.T) {
	s := tempWorkspace(t)
	content := []byte("# Hello\n[next](next.md)\n")
	if err := s.Write("doc.md", content); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read("doc.md")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("content mismatch: got %q", got)
	}
}

func TestWriteCreatesSubdirs(t *testing.T) {
	s := tempWorkspace(t)
	if err := s.Write("a/b/c.md", []byte("deep")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read("a/b/c.md")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "deep" {
		t.Errorf("content = %q", got)
	}
}

func TestWriteKeepsMode(t *testing.T) {
	s := tempWorkspace(t)
	p := filepath.Join(s.Root(), "ro.md")
	if err := os.WriteFile(p, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := s.Write("ro.md", []byte("y")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	info, err := os.Stat(p)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("mode = %v, want 0600", info.Mode().Perm())
	}
}

func TestMove(t *testing.T) {
	s := tempWorkspace(t)
	_ = s.Write("old.md", []byte("data"))
	if err := s.Move("old.md", "sub/new.md"); err != nil {
		t.Fatalf("Move: %v", err)
	}
	got, err := s.Read("sub/new.md")
	if err != nil {
		t.Fatalf("Read after move: %v", err)
	}
	if string(got) != "data" {
		t.Errorf("content = %q", got)
	}
	if _, err := s.Read("old.md"); err == nil {
		t.Error("old path should not exist")
	}
}

func TestMove_DestinationExists(t *testing.T) {
	s := tempWorkspace(t)
	_ = s.Write("a.md", []byte("a"))
	_ = s.Write("b.md", []byte("b"))
	err := s.Move("a.md", "b.md")
	if !errors.Is(err, fs.ErrExist) {
		t.Fatalf("Move err = %v, want ErrExist", err)
	}
	got, _ := s.Read("b.md")
	if string(got) != "b" {
		t.Errorf("destination overwritten: %q", got)
	}
}

func TestList(t *testing.T) {
	s := tempWorkspace(t, "node_modules")
	_ = s.Write("a.md", []byte("a"))
	_ = s.Write("sub/b.ipynb", []byte(`{"cells":[]}`))
	_ = s.Write("readme.txt", []byte("not a document"))
	_ = s.Write("node_modules/pkg/readme.md", []byte("skipped"))

	items, err := s.List("")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("len = %d, want 2: %+v", len(items), items)
	}
	kinds := map[string]models.DocumentKind{}
	for _, it := range items {
		kinds[it.Path] = it.Kind
		if it.Checksum == "" {
			t.Errorf("%s: empty checksum", it.Path)
		}
	}
	if kinds["a.md"] != models.DocumentMarkdown {
		t.Errorf("a.md kind = %q", kinds["a.md"])
	}
	if kinds[filepath.Join("sub", "b.ipynb")] != models.DocumentNotebook {
		t.Errorf("sub/b.ipynb kind = %q", kinds[filepath.Join("sub", "b.ipynb")])
	}
}

func TestAbsAndRel(t *testing.T) {
	s := tempWorkspace(t)
	abs, err := s.Abs("x/y.md")
	if err != nil {
		t.Fatalf("Abs: %v", err)
	}
	if abs != filepath.Join(s.Root(), "x", "y.md") {
		t.Errorf("Abs = %q", abs)
	}
	rel, err := s.Rel(abs)
	if err != nil {
		t.Fatalf("Rel: %v", err)
	}
	if rel != filepath.Join("x", "y.md") {
		t.Errorf("Rel = %q", rel)
	}
	if _, err := s.Rel("/definitely/elsewhere.md"); err == nil {
		t.Error("expected error for path outside root")
	}
}

func TestTraversalBlocked(t *testing.T) {
	s := tempWorkspace(t)

	cases := []string{
		"../../etc/passwd",
		"../outside.md",
		"/etc/shadow",
	}
	for _, p := range cases {
		if _, err := s.Read(p); err == nil {
			t.Errorf("expected error for path %q", p)
		}
		if err := s.Write(p, []byte("x")); err == nil {
			t.Errorf("expected error for write to %q", p)
		}
	}
}

func TestAtomicWriteNoLeftovers(t *testing.T) {
	s := tempWorkspace(t)
	_ = s.Write("atomic.md", []byte("original content"))

	updated := []byte("updated content")
	if err := s.Write("atomic.md", updated); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, _ := s.Read("atomic.md")
	if string(got) != string(updated) {
		t.Errorf("expected updated content, got %q", got)
	}

	matches, _ := filepath.Glob(filepath.Join(s.root, ".linkmend-tmp-*"))
	if len(matches) != 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
}

func TestNewFS_NonExistentDir(t *testing.T) {
	_, err := NewFS(filepath.Join(t.TempDir(), "missing"))
	if err == nil {
		t.Error("expected error for non-existent dir")
	}
}

func TestNewFS_FileNotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file")
	_ = os.WriteFile(f, nil, 0o644)
	_, err := NewFS(f)
	if err == nil {
		t.Error("expected error when root is a file")
	}
}
