package index

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/starford/linkmend/internal/apperr"
	"github.com/starford/linkmend/internal/models"
)

// SetLinks records a document and replaces its whole link set in one
// transaction. Link order is kept through the ordinal column.
func (db *DB) SetLinks(doc models.DocumentMetadata, refs []models.LinkReference) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	_, err = tx.Exec(`
		INSERT INTO documents (path, kind, checksum, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			kind       = excluded.kind,
			checksum   = excluded.checksum,
			updated_at = excluded.updated_at
	`, doc.Path, string(doc.Kind), doc.Checksum, doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: upsert document: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM links WHERE document = ?`, doc.Path); err != nil {
		return fmt.Errorf("index: clear links: %w", err)
	}
	if len(refs) > 0 {
		stmt, err := tx.Prepare(`INSERT INTO links (document, ordinal, raw, kind, target) VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("index: prepare link insert: %w", err)
		}
		defer stmt.Close()
		for i, r := range refs {
			if _, err := stmt.Exec(doc.Path, i, r.Raw, string(r.Kind), r.Target); err != nil {
				return fmt.Errorf("index: insert link: %w", err)
			}
		}
	}

	return tx.Commit()
}

// RemoveDocument removes a document and its outgoing links.
func (db *DB) RemoveDocument(path string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`DELETE FROM links WHERE document = ?`, path); err != nil {
		return fmt.Errorf("index: delete links: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM documents WHERE path = ?`, path); err != nil {
		return fmt.Errorf("index: delete document: %w", err)
	}
	return tx.Commit()
}

// Links returns the ordered links of one document.
func (db *DB) Links(path string) ([]models.LinkReference, error) {
	rows, err := db.conn.Query(`
		SELECT document, raw, kind, target FROM links
		WHERE document = ? ORDER BY ordinal
	`, path)
	if err != nil {
		return nil, fmt.Errorf("index: links: %w", err)
	}
	defer rows.Close()

	out := []models.LinkReference{}
	for rows.Next() {
		r, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Snapshot returns every indexed document with its ordered links. Documents
// without links map to an empty slice.
func (db *DB) Snapshot() (models.LinkIndex, error) {
	idx := models.LinkIndex{}

	docs, err := db.conn.Query(`SELECT path FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("index: snapshot documents: %w", err)
	}
	for docs.Next() {
		var p string
		if err := docs.Scan(&p); err != nil {
			docs.Close()
			return nil, err
		}
		idx[p] = []models.LinkReference{}
	}
	if err := docs.Err(); err != nil {
		docs.Close()
		return nil, err
	}
	docs.Close()

	rows, err := db.conn.Query(`SELECT document, raw, kind, target FROM links ORDER BY document, ordinal`)
	if err != nil {
		return nil, fmt.Errorf("index: snapshot links: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		r, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		idx[r.Document] = append(idx[r.Document], r)
	}
	return idx, rows.Err()
}

// Backlinks returns the documents that link to target, in path order.
func (db *DB) Backlinks(target string) ([]string, error) {
	rows, err := db.conn.Query(`SELECT DISTINCT document FROM links WHERE target = ? ORDER BY document`, target)
	if err != nil {
		return nil, fmt.Errorf("index: backlinks: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetDocument returns one document's metadata or apperr.ErrNotFound.
func (db *DB) GetDocument(path string) (*models.DocumentMetadata, error) {
	var (
		d    models.DocumentMetadata
		kind string
	)
	err := db.conn.QueryRow(`SELECT path, kind, checksum, updated_at FROM documents WHERE path = ?`, path).
		Scan(&d.Path, &kind, &d.Checksum, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: document %s: %w", path, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("index: get document: %w", err)
	}
	d.Kind = models.DocumentKind(kind)
	return &d, nil
}

// ListDocuments returns all indexed documents ordered by path.
func (db *DB) ListDocuments() ([]models.DocumentMetadata, error) {
	rows, err := db.conn.Query(`SELECT path, kind, checksum, updated_at FROM documents ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("index: list documents: %w", err)
	}
	defer rows.Close()

	out := []models.DocumentMetadata{}
	for rows.Next() {
		var (
			d    models.DocumentMetadata
			kind string
		)
		if err := rows.Scan(&d.Path, &kind, &d.Checksum, &d.UpdatedAt); err != nil {
			return nil, err
		}
		d.Kind = models.DocumentKind(kind)
		out = append(out, d)
	}
	return out, rows.Err()
}

// GetChecksum returns the stored checksum for a document, or empty string if
// not found.
func (db *DB) GetChecksum(path string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM documents WHERE path = ?`, path).Scan(&cs)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("index: get checksum: %w", err)
	}
	return cs, nil
}

// AllChecksums returns path → checksum for every indexed document.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}

func scanLink(rows *sql.Rows) (models.LinkReference, error) {
	var (
		r    models.LinkReference
		kind string
	)
	if err := rows.Scan(&r.Document, &r.Raw, &kind, &r.Target); err != nil {
		return r, fmt.Errorf("index: scan link: %w", err)
	}
	r.Kind = models.LinkKind(kind)
	return r, nil
}
