package repair

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/starford/linkmend/internal/models"
)

// DefaultMaxResults bounds each finder query when no limit is configured.
const DefaultMaxResults = 50

// DefaultFormats maps a document extension to its equivalent formats.
func DefaultFormats() map[string][]string {
	return map[string][]string{
		".ipynb": {".md"},
		".md":    {".ipynb"},
	}
}

// Finder locates files whose path ends with suffix, a slash-separated run of
// whole path segments. At most limit paths are returned.
type Finder interface {
	Find(ctx context.Context, suffix string, limit int) ([]string, error)
}

// WalkFinder searches the workspace by walking it on every query.
type WalkFinder struct {
	root    string
	exclude map[string]struct{}
}

// NewWalkFinder creates a finder rooted at root. Directories whose name is
// in exclude are not descended into.
func NewWalkFinder(root string, exclude []string) *WalkFinder {
	ex := make(map[string]struct{}, len(exclude))
	for _, d := range exclude {
		ex[d] = struct{}{}
	}
	return &WalkFinder{root: root, exclude: ex}
}

var errLimit = errors.New("limit reached")

// Find implements Finder. Results are absolute paths in walk order,
// truncated at limit.
func (w *WalkFinder) Find(ctx context.Context, suffix string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = DefaultMaxResults
	}
	want := nfcSlash(suffix)
	var out []string
	err := filepath.WalkDir(w.root, func(p string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			if d != nil && d.IsDir() && p != w.root {
				return fs.SkipDir
			}
			return walkErr
		}
		if d.IsDir() {
			if _, skip := w.exclude[d.Name()]; skip && p != w.root {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !hasSegmentSuffix(nfcSlash(p), want) {
			return nil
		}
		out = append(out, p)
		if len(out) >= limit {
			return errLimit
		}
		return nil
	})
	if err != nil && !errors.Is(err, errLimit) {
		return out, fmt.Errorf("repair: walk %s: %w", w.root, err)
	}
	return out, nil
}

func hasSegmentSuffix(path, suffix string) bool {
	if suffix == "" {
		return false
	}
	return path == suffix || strings.HasSuffix(path, "/"+suffix)
}

// SamePath reports whether a and b name the same path once cleaned,
// slash-separated and NFC-normalized.
func SamePath(a, b string) bool {
	return nfcSlash(a) == nfcSlash(b)
}

func nfcSlash(p string) string {
	return norm.NFC.String(filepath.ToSlash(filepath.Clean(p)))
}

// Searcher ranks replacement candidates for broken paths.
type Searcher struct {
	finder  Finder
	formats map[string][]string
	limit   int
	logger  *slog.Logger
}

// NewSearcher creates a Searcher. A nil formats map disables cross-format
// search; a non-positive limit means DefaultMaxResults.
func NewSearcher(finder Finder, formats map[string][]string, limit int, logger *slog.Logger) *Searcher {
	if limit <= 0 {
		limit = DefaultMaxResults
	}
	if logger == nil {
		logger = slog.Default()
	}
	fm := make(map[string][]string, len(formats))
	for ext, alts := range formats {
		fm[strings.ToLower(ext)] = alts
	}
	return &Searcher{finder: finder, formats: fm, limit: limit, logger: logger}
}

// FindCandidates searches for files that could replace brokenPath. The exact
// tier holds files ending in <parent>/<file>, the loose tier files ending in
// <file> only. Alternate formats of the file name feed the same tiers.
func (s *Searcher) FindCandidates(ctx context.Context, brokenPath string) models.CandidateSet {
	set := models.CandidateSet{Broken: brokenPath, Exact: []string{}, Loose: []string{}}

	file := filepath.Base(brokenPath)
	if file == "." || file == string(filepath.Separator) {
		return set
	}
	parent := ""
	if dir := filepath.Dir(brokenPath); dir != "." && dir != filepath.Dir(dir) {
		parent = filepath.Base(dir)
	}
	names := s.fileNames(file)

	seen := []string{brokenPath}
	add := func(tier []string, paths []string) []string {
		for _, p := range paths {
			if containsPath(seen, p) {
				continue
			}
			seen = append(seen, p)
			tier = append(tier, p)
		}
		return tier
	}

	if parent != "" {
		for _, name := range names {
			set.Exact = add(set.Exact, s.find(ctx, parent+"/"+name))
		}
	}
	for _, name := range names {
		set.Loose = add(set.Loose, s.find(ctx, name))
	}
	return set
}

// fileNames returns file followed by its alternate-format spellings.
func (s *Searcher) fileNames(file string) []string {
	names := []string{file}
	ext := filepath.Ext(file)
	if ext == "" {
		return names
	}
	stem := strings.TrimSuffix(file, ext)
	for _, alt := range s.formats[strings.ToLower(ext)] {
		if !strings.HasPrefix(alt, ".") {
			alt = "." + alt
		}
		if name := stem + alt; name != file {
			names = append(names, name)
		}
	}
	return names
}

func (s *Searcher) find(ctx context.Context, suffix string) []string {
	paths, err := s.finder.Find(ctx, suffix, s.limit)
	if err != nil {
		s.logger.Warn("repair: candidate search failed",
			slog.String("suffix", suffix), slog.String("error", err.Error()))
		return nil
	}
	return paths
}

func containsPath(paths []string, p string) bool {
	for _, q := range paths {
		if SamePath(p, q) {
			return true
		}
	}
	return false
}

// Select applies the automatic selection policy: a single exact match wins,
// otherwise a single loose match when there is no exact one. Any other
// combination needs a human.
func Select(set models.CandidateSet) (string, bool) {
	switch {
	case len(set.Exact) == 1:
		return set.Exact[0], true
	case len(set.Exact) == 0 && len(set.Loose) == 1:
		return set.Loose[0], true
	}
	return "", false
}
