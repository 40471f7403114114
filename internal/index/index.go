package index

import "github.com/starford/linkmend/internal/models"

// LinkStore is the persistent link registry. Documents are keyed by absolute
// path. Consumers depend on this interface rather than *DB.
type LinkStore interface {
	SetLinks(doc models.DocumentMetadata, refs []models.LinkReference) error
	RemoveDocument(path string) error
	Links(path string) ([]models.LinkReference, error)
	Snapshot() (models.LinkIndex, error)
	Backlinks(target string) ([]string, error)
	GetDocument(path string) (*models.DocumentMetadata, error)
	ListDocuments() ([]models.DocumentMetadata, error)
	GetChecksum(path string) (string, error)
	AllChecksums() (map[string]string, error)
	Close() error
}

// Verify *DB satisfies LinkStore at compile time.
var _ LinkStore = (*DB)(nil)
