package index

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/starford/linkmend/internal/checksum"
	"github.com/starford/linkmend/internal/models"
	"github.com/starford/linkmend/internal/parser"
	"github.com/starford/linkmend/internal/storage"
)

// SyncStats counts what a Sync pass changed.
type SyncStats struct {
	Indexed   int `json:"indexed"`
	Removed   int `json:"removed"`
	Unchanged int `json:"unchanged"`
	Failed    int `json:"failed"`
}

// Sync walks the workspace and brings the index up to date:
//   - new/changed documents are re-extracted and their link sets replaced
//   - documents removed from disk are deleted from the index
//
// A document that cannot be read or stored is logged and skipped.
func Sync(db LinkStore, store storage.Provider, logger *slog.Logger) (SyncStats, error) {
	var stats SyncStats

	metas, err := store.List("")
	if err != nil {
		return stats, err
	}
	checksums, err := db.AllChecksums()
	if err != nil {
		return stats, err
	}

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		abs, err := store.Abs(m.Path)
		if err != nil {
			stats.Failed++
			continue
		}
		disk[abs] = struct{}{}

		if checksums[abs] == m.Checksum {
			stats.Unchanged++
			continue
		}

		data, err := store.Read(m.Path)
		if err != nil {
			stats.Failed++
			logger.Warn("sync: read failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		if _, err := IndexFile(db, abs, data); err != nil {
			stats.Failed++
			logger.Warn("sync: index failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		stats.Indexed++
		logger.Debug("sync: indexed", slog.String("path", m.Path))
	}

	for p := range checksums {
		if _, ok := disk[p]; ok {
			continue
		}
		if err := db.RemoveDocument(p); err != nil {
			stats.Failed++
			logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			continue
		}
		stats.Removed++
		logger.Debug("sync: removed stale", slog.String("path", p))
	}

	return stats, nil
}

// IndexFile extracts the file links of the document at abs from data and
// replaces its entry in db.
func IndexFile(db LinkStore, abs string, data []byte) ([]models.LinkReference, error) {
	refs := parser.ExtractDocument(abs, string(data))
	doc := models.DocumentMetadata{
		Path:      abs,
		Kind:      parser.KindOf(abs),
		Checksum:  checksum.Sum(data),
		UpdatedAt: time.Now().UTC(),
	}
	if err := db.SetLinks(doc, refs); err != nil {
		return nil, fmt.Errorf("index: store %s: %w", abs, err)
	}
	return refs, nil
}
