// Package linkservice coordinates storage, the link index, extraction and
// repair. Paths handed to it may be absolute (inside the workspace) or
// relative to the workspace root; paths it returns are absolute.
package linkservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/starford/linkmend/internal/apperr"
	"github.com/starford/linkmend/internal/index"
	"github.com/starford/linkmend/internal/metrics"
	"github.com/starford/linkmend/internal/models"
	"github.com/starford/linkmend/internal/parser"
	"github.com/starford/linkmend/internal/repair"
	"github.com/starford/linkmend/internal/storage"
)

// ScanReport is the result of a full sync followed by a broken-link probe.
type ScanReport struct {
	Sync     index.SyncStats     `json:"sync"`
	Broken   []models.BrokenLink `json:"broken"`
	Duration time.Duration       `json:"duration"`
}

// RepairRequest asks for one broken link to be replaced. An empty
// Replacement lets the selection policy choose.
type RepairRequest struct {
	Document    string `json:"document"`
	Target      string `json:"target"`
	Replacement string `json:"replacement,omitempty"`
}

// RepairOutcome records what happened to one document.
type RepairOutcome struct {
	Document    string `json:"document"`
	Target      string `json:"target"`
	Replacement string `json:"replacement"`
	Applied     bool   `json:"applied"`
	Error       string `json:"error,omitempty"`
}

// AutoRepairReport summarises an AutoRepair pass.
type AutoRepairReport struct {
	DryRun     bool                  `json:"dry_run"`
	Repairs    []RepairOutcome       `json:"repairs"`
	Unresolved []models.CandidateSet `json:"unresolved"`
}

// MoveReport summarises a document move.
type MoveReport struct {
	From       string   `json:"from"`
	To         string   `json:"to"`
	Rewritten  bool     `json:"rewritten"`
	Updated    []string `json:"updated"`
	NotApplied []string `json:"not_applied"`
	// AlreadyApplied is set when the move was made by Move and its links
	// were fixed then; nothing was rewritten a second time.
	AlreadyApplied bool `json:"already_applied,omitempty"`
}

// ownMoveTTL bounds how long a move made by Move is remembered. The watcher
// reports it within a few debounce windows; an entry it never consumes must
// not swallow a later external move between the same paths.
const ownMoveTTL = time.Minute

type ownMove struct {
	to string
	at time.Time
}

// Service coordinates storage and index operations.
type Service struct {
	store    storage.Provider
	db       index.LinkStore
	searcher *repair.Searcher
	metrics  metrics.Recorder
	logger   *slog.Logger

	// mu serialises operations that write documents, so one broken path and
	// all its documents finish before the next starts.
	mu sync.Mutex
	// moves made by Move, keyed by old absolute path. Guarded by mu.
	moves map[string]ownMove
}

// NewService creates a new link service. A nil recorder disables metrics.
func NewService(store storage.Provider, db index.LinkStore, searcher *repair.Searcher, rec metrics.Recorder, logger *slog.Logger) *Service {
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, db: db, searcher: searcher, metrics: rec, logger: logger, moves: make(map[string]ownMove)}
}

// IndexDocument re-extracts one document and replaces its link set.
func (s *Service) IndexDocument(_ context.Context, path string) ([]models.LinkReference, error) {
	abs, rel, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.read(rel)
	if err != nil {
		return nil, err
	}
	refs, err := index.IndexFile(s.db, abs, data)
	if err != nil {
		return nil, err
	}
	return nonNilSlice(refs), nil
}

// RemoveDocument drops a document from the index. The file is not touched.
func (s *Service) RemoveDocument(_ context.Context, path string) error {
	abs, _, err := s.resolve(path)
	if err != nil {
		return err
	}
	return s.db.RemoveDocument(abs)
}

// Documents lists the indexed documents.
func (s *Service) Documents(_ context.Context) ([]models.DocumentMetadata, error) {
	docs, err := s.db.ListDocuments()
	if err != nil {
		return nil, err
	}
	s.metrics.SetIndexedDocuments(len(docs))
	return docs, nil
}

// Links returns the stored links of one document.
func (s *Service) Links(_ context.Context, path string) ([]models.LinkReference, error) {
	abs, _, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	if _, err := s.db.GetDocument(abs); err != nil {
		return nil, err
	}
	return s.db.Links(abs)
}

// Backlinks returns the documents linking to path.
func (s *Service) Backlinks(_ context.Context, path string) ([]string, error) {
	abs, _, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	bl, err := s.db.Backlinks(abs)
	return nonNilSlice(bl), err
}

// Broken probes every indexed link and returns the ones that do not resolve.
func (s *Service) Broken(_ context.Context) ([]models.BrokenLink, error) {
	start := time.Now()
	idx, err := s.db.Snapshot()
	if err != nil {
		return nil, err
	}
	broken := nonNilSlice(repair.FindBroken(idx))
	s.metrics.ObserveScan(time.Since(start), len(broken))
	s.metrics.SetIndexedDocuments(len(idx))
	return broken, nil
}

// Scan syncs the index with the workspace, then probes for broken links.
func (s *Service) Scan(ctx context.Context) (ScanReport, error) {
	start := time.Now()
	stats, err := index.Sync(s.db, s.store, s.logger)
	if err != nil {
		return ScanReport{}, fmt.Errorf("linkservice: sync: %w", err)
	}
	broken, err := s.Broken(ctx)
	if err != nil {
		return ScanReport{}, err
	}
	return ScanReport{Sync: stats, Broken: broken, Duration: time.Since(start)}, nil
}

// Candidates searches the workspace for replacements of a broken path.
func (s *Service) Candidates(ctx context.Context, brokenPath string) (models.CandidateSet, error) {
	abs, err := s.absolute(brokenPath)
	if err != nil {
		return models.CandidateSet{}, err
	}
	set := s.searcher.FindCandidates(ctx, abs)
	switch _, ok := repair.Select(set); {
	case ok:
		s.metrics.IncCandidateSearch(metrics.SearchAutoSelect)
	case set.Total() == 0:
		s.metrics.IncCandidateSearch(metrics.SearchNone)
	default:
		s.metrics.IncCandidateSearch(metrics.SearchAmbiguous)
	}
	return set, nil
}

// Repair replaces one broken link in one document. Without a replacement
// the selection policy picks one, failing with apperr.ErrAmbiguous when it
// cannot.
func (s *Service) Repair(ctx context.Context, req RepairRequest) (RepairOutcome, error) {
	target, err := s.absolute(req.Target)
	if err != nil {
		return RepairOutcome{}, err
	}
	replacement := req.Replacement
	if replacement == "" {
		set, err := s.Candidates(ctx, target)
		if err != nil {
			return RepairOutcome{}, err
		}
		choice, ok := repair.Select(set)
		if !ok {
			return RepairOutcome{}, fmt.Errorf("linkservice: %s has %d candidates: %w", target, set.Total(), apperr.ErrAmbiguous)
		}
		replacement = choice
	}
	if replacement, err = s.absolute(replacement); err != nil {
		return RepairOutcome{}, err
	}
	if !repair.Exists(replacement) {
		return RepairOutcome{}, fmt.Errorf("linkservice: replacement %s: %w", replacement, apperr.ErrNotFound)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyRepair(req.Document, target, replacement)
}

// AutoRepair walks every broken target and applies the selection policy.
// Each target and all documents referencing it are finished before the next
// target. With dryRun nothing is written.
func (s *Service) AutoRepair(ctx context.Context, dryRun bool) (AutoRepairReport, error) {
	report := AutoRepairReport{DryRun: dryRun, Repairs: []RepairOutcome{}, Unresolved: []models.CandidateSet{}}

	broken, err := s.Broken(ctx)
	if err != nil {
		return report, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	order, groups := repair.GroupByTarget(broken)
	for _, target := range order {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		set, err := s.Candidates(ctx, target)
		if err != nil {
			return report, err
		}
		choice, ok := repair.Select(set)
		if !ok {
			report.Unresolved = append(report.Unresolved, set)
			continue
		}
		seen := make(map[string]struct{})
		for _, b := range groups[target] {
			if _, dup := seen[b.Document]; dup {
				continue
			}
			seen[b.Document] = struct{}{}
			if dryRun {
				s.metrics.IncRepair(metrics.RepairDryRun)
				report.Repairs = append(report.Repairs, RepairOutcome{Document: b.Document, Target: target, Replacement: choice})
				continue
			}
			out, _ := s.applyRepair(b.Document, target, choice)
			report.Repairs = append(report.Repairs, out)
		}
	}
	return report, nil
}

// applyRepair edits one document. Failures are also recorded in the
// outcome's Error field. Callers hold s.mu.
func (s *Service) applyRepair(document, target, replacement string) (RepairOutcome, error) {
	out := RepairOutcome{Document: document, Target: target, Replacement: replacement}
	fail := func(err error) (RepairOutcome, error) {
		out.Error = err.Error()
		s.metrics.IncRepair(metrics.RepairFailed)
		s.logger.Warn("repair: failed", slog.String("document", document), slog.String("error", err.Error()))
		return out, err
	}

	abs, rel, err := s.resolve(document)
	if err != nil {
		return fail(err)
	}
	out.Document = abs
	data, err := s.read(rel)
	if err != nil {
		return fail(err)
	}

	next, applied := parser.ApplyDocumentRepair(abs, string(data), target, replacement)
	if !applied {
		err := fmt.Errorf("linkservice: link to %s not found in %s: %w", target, abs, apperr.ErrNotApplied)
		out.Error = err.Error()
		s.metrics.IncRepair(metrics.RepairNotApplied)
		s.logger.Info("repair: link text not found",
			slog.String("document", abs), slog.String("target", target))
		return out, err
	}
	if err := s.store.Write(rel, []byte(next)); err != nil {
		return fail(err)
	}
	if _, err := index.IndexFile(s.db, abs, []byte(next)); err != nil {
		return fail(err)
	}
	out.Applied = true
	s.metrics.IncRepair(metrics.RepairApplied)
	s.logger.Info("repair: applied",
		slog.String("document", abs), slog.String("target", target), slog.String("replacement", replacement))
	return out, nil
}

// Move renames a document inside the workspace and fixes links on both
// sides. The destination must not exist.
func (s *Service) Move(_ context.Context, from, to string) (MoveReport, error) {
	oldAbs, oldRel, err := s.resolve(from)
	if err != nil {
		return MoveReport{}, err
	}
	newAbs, newRel, err := s.resolve(to)
	if err != nil {
		return MoveReport{}, err
	}
	if !parser.IsDocument(oldRel) || !parser.IsDocument(newRel) {
		return MoveReport{}, fmt.Errorf("linkservice: move %s: %w", oldRel, apperr.ErrUnsupported)
	}

	// The lock covers the rename so a watcher reporting this move blocks in
	// ApplyMove until the links are fixed and the move is recorded.
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Move(oldRel, newRel); err != nil {
		switch {
		case errors.Is(err, os.ErrNotExist):
			return MoveReport{}, fmt.Errorf("linkservice: move %s: %w", oldRel, apperr.ErrNotFound)
		case errors.Is(err, os.ErrExist):
			return MoveReport{}, fmt.Errorf("linkservice: move to %s: %w", newRel, apperr.ErrAlreadyExists)
		}
		return MoveReport{}, err
	}
	s.rememberMove(oldAbs, newAbs, time.Now())
	return s.applyMove(oldAbs, newAbs, newRel)
}

// ApplyMove fixes links after a document has already moved on disk: the
// moved document's own relative links are recomputed for its new directory
// and every document that linked to the old path is repaired. A move made
// by Move is recognised and left alone, so reporting it again is harmless.
func (s *Service) ApplyMove(_ context.Context, from, to string) (MoveReport, error) {
	oldAbs, _, err := s.resolve(from)
	if err != nil {
		return MoveReport{}, err
	}
	newAbs, newRel, err := s.resolve(to)
	if err != nil {
		return MoveReport{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.consumeMove(oldAbs, newAbs, time.Now()) {
		s.logger.Debug("move: already applied", slog.String("from", oldAbs), slog.String("to", newAbs))
		return MoveReport{From: oldAbs, To: newAbs, Updated: []string{}, NotApplied: []string{}, AlreadyApplied: true}, nil
	}
	return s.applyMove(oldAbs, newAbs, newRel)
}

// rememberMove records a move made by Move and drops expired entries.
// Callers hold s.mu.
func (s *Service) rememberMove(oldAbs, newAbs string, now time.Time) {
	for from, m := range s.moves {
		if now.Sub(m.at) > ownMoveTTL {
			delete(s.moves, from)
		}
	}
	s.moves[oldAbs] = ownMove{to: newAbs, at: now}
}

// consumeMove reports whether oldAbs -> newAbs was made by Move recently and
// forgets it. Callers hold s.mu.
func (s *Service) consumeMove(oldAbs, newAbs string, now time.Time) bool {
	m, ok := s.moves[oldAbs]
	if !ok {
		return false
	}
	delete(s.moves, oldAbs)
	return m.to == newAbs && now.Sub(m.at) <= ownMoveTTL
}

// applyMove does the work of ApplyMove. Callers hold s.mu.
func (s *Service) applyMove(oldAbs, newAbs, newRel string) (MoveReport, error) {
	report := MoveReport{From: oldAbs, To: newAbs, Updated: []string{}, NotApplied: []string{}}

	data, err := s.read(newRel)
	if err != nil {
		return report, err
	}
	next := parser.RewriteDocument(newAbs, string(data), filepath.Dir(oldAbs), filepath.Dir(newAbs))
	if next != string(data) {
		if err := s.store.Write(newRel, []byte(next)); err != nil {
			return report, err
		}
		report.Rewritten = true
	}
	if _, err := index.IndexFile(s.db, newAbs, []byte(next)); err != nil {
		return report, err
	}
	if err := s.db.RemoveDocument(oldAbs); err != nil {
		return report, err
	}

	referrers, err := s.db.Backlinks(oldAbs)
	if err != nil {
		return report, err
	}
	for _, doc := range referrers {
		if doc == newAbs {
			continue
		}
		if out, _ := s.applyRepair(doc, oldAbs, newAbs); out.Applied {
			report.Updated = append(report.Updated, doc)
		} else {
			report.NotApplied = append(report.NotApplied, doc)
		}
	}
	s.logger.Info("move: applied",
		slog.String("from", oldAbs), slog.String("to", newAbs),
		slog.Bool("rewritten", report.Rewritten), slog.Int("updated", len(report.Updated)))
	return report, nil
}

// AbsPath resolves path against the workspace root.
func (s *Service) AbsPath(path string) (string, error) {
	abs, _, err := s.resolve(path)
	return abs, err
}

// resolve returns the absolute and workspace-relative forms of path.
func (s *Service) resolve(path string) (abs, rel string, err error) {
	if path == "" {
		return "", "", fmt.Errorf("linkservice: empty path: %w", apperr.ErrInvalidPath)
	}
	if filepath.IsAbs(path) {
		rel, err = s.store.Rel(path)
		if err != nil {
			return "", "", err
		}
		return filepath.Clean(path), rel, nil
	}
	abs, err = s.store.Abs(path)
	if err != nil {
		return "", "", err
	}
	rel, err = s.store.Rel(abs)
	return abs, rel, err
}

// absolute resolves path without requiring it to be inside the workspace.
// Broken targets may point anywhere.
func (s *Service) absolute(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("linkservice: empty path: %w", apperr.ErrInvalidPath)
	}
	if filepath.IsAbs(path) {
		return filepath.Clean(path), nil
	}
	return filepath.Join(s.store.Root(), filepath.FromSlash(path)), nil
}

func (s *Service) read(rel string) ([]byte, error) {
	data, err := s.store.Read(rel)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("linkservice: %s: %w", rel, apperr.ErrNotFound)
		}
		return nil, err
	}
	return data, nil
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
