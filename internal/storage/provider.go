// Package storage defines the workspace file-system abstraction.
package storage

import "github.com/starford/linkmend/internal/models"

// Provider is the interface for workspace document operations. Paths are
// relative to the workspace root unless stated otherwise.
type Provider interface {
	// Root returns the absolute workspace root.
	Root() string
	// List returns metadata for every .md and .ipynb file under dir.
	List(dir string) ([]models.DocumentMetadata, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path.
	Write(path string, content []byte) error
	// Move renames oldPath to newPath.
	Move(oldPath, newPath string) error
	// Abs resolves path against the root, rejecting escapes.
	Abs(path string) (string, error)
	// Rel converts an absolute path under the root to a relative one.
	Rel(abs string) (string, error)
}

var _ Provider = (*FS)(nil)
