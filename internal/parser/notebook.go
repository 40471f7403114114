package parser

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/buger/jsonparser"

	"github.com/starford/linkmend/internal/models"
)

const markdownCell = "markdown"

// notebookCell is the part of a notebook cell the link engine cares about.
type notebookCell struct {
	index int
	kind  string
	lines []string
	// singleSource is set when source is one string instead of a list.
	singleSource bool
}

// ExtractNotebook returns the normalized file links of every markdown cell
// in a notebook, in cell order. Malformed notebooks yield an empty result.
func ExtractNotebook(content, baseDir string) []string {
	return targets(ExtractNotebookReferences(content, baseDir, ""))
}

// ExtractNotebookReferences is ExtractNotebook returning full references.
func ExtractNotebookReferences(content, baseDir, document string) []models.LinkReference {
	cells, ok := notebookCells([]byte(content))
	if !ok {
		return nil
	}
	var out []models.LinkReference
	for _, c := range cells {
		if c.kind != markdownCell {
			continue
		}
		out = append(out, ExtractReferences(strings.Join(c.lines, ""), baseDir, document)...)
	}
	return out
}

// RewriteNotebookLinks applies RewriteLinks to the markdown cells of a
// notebook line by line. Only changed source lines are spliced back into the
// original bytes, so the line list and the file's formatting are preserved.
// Content that cannot be parsed is returned unchanged.
func RewriteNotebookLinks(content, oldBaseDir, newBaseDir string) string {
	if sameDir(oldBaseDir, newBaseDir) {
		return content
	}
	out, _ := editMarkdownCells(content, func(lines []string) []string {
		return rewriteLines(lines, oldBaseDir, newBaseDir)
	})
	return out
}

// ApplyNotebookRepair is ApplyRepair for notebooks, applied to each markdown
// cell source line.
func ApplyNotebookRepair(content, document, brokenPath, replacement string) (string, bool) {
	applied := false
	out, _ := editMarkdownCells(content, func(lines []string) []string {
		next := make([]string, len(lines))
		for i, line := range lines {
			var ok bool
			next[i], ok = ApplyRepair(line, document, brokenPath, replacement)
			applied = applied || ok
		}
		return next
	})
	if !applied {
		return content, false
	}
	return out, out != content
}

// RewriteDocument rewrites the links of a Markdown or notebook document
// that moved from oldBaseDir to newBaseDir.
func RewriteDocument(path, content, oldBaseDir, newBaseDir string) string {
	if KindOf(path) == models.DocumentNotebook {
		return RewriteNotebookLinks(content, oldBaseDir, newBaseDir)
	}
	return RewriteLinks(content, oldBaseDir, newBaseDir)
}

// ApplyDocumentRepair dispatches ApplyRepair on the document kind.
func ApplyDocumentRepair(path, content, brokenPath, replacement string) (string, bool) {
	if KindOf(path) == models.DocumentNotebook {
		return ApplyNotebookRepair(content, path, brokenPath, replacement)
	}
	return ApplyRepair(content, path, brokenPath, replacement)
}

// editMarkdownCells passes the source lines of each markdown cell through
// edit and splices changed lines back into the original bytes. ok is false,
// and content is returned unchanged, when the notebook cannot be parsed or
// patched.
func editMarkdownCells(content string, edit func([]string) []string) (string, bool) {
	data := []byte(content)
	cells, ok := notebookCells(data)
	if !ok {
		return content, false
	}

	out := append([]byte(nil), data...)
	for _, c := range cells {
		if c.kind != markdownCell {
			continue
		}
		edited := edit(c.lines)
		for j, line := range edited {
			if line == c.lines[j] {
				continue
			}
			encoded, err := encodeJSONString(line)
			if err != nil {
				return content, false
			}
			keys := []string{"cells", fmt.Sprintf("[%d]", c.index), "source"}
			if !c.singleSource {
				keys = append(keys, fmt.Sprintf("[%d]", j))
			}
			if out, err = jsonparser.Set(out, encoded, keys...); err != nil {
				return content, false
			}
		}
	}
	return string(out), true
}

// notebookCells reads the cells list. ok is false when data is not a JSON
// object with a "cells" array.
func notebookCells(data []byte) ([]notebookCell, bool) {
	if !json.Valid(data) {
		return nil, false
	}
	raw, typ, _, err := jsonparser.Get(data, "cells")
	if err != nil || typ != jsonparser.Array {
		return nil, false
	}

	var cells []notebookCell
	idx := 0
	_, err = jsonparser.ArrayEach(raw, func(value []byte, dataType jsonparser.ValueType, _ int, _ error) {
		c := notebookCell{index: idx}
		idx++
		if dataType != jsonparser.Object {
			cells = append(cells, c)
			return
		}
		c.kind, _ = jsonparser.GetString(value, "cell_type")
		c.lines, c.singleSource = cellSource(value)
		cells = append(cells, c)
	})
	if err != nil {
		return nil, false
	}
	return cells, true
}

func cellSource(cell []byte) ([]string, bool) {
	src, typ, _, err := jsonparser.Get(cell, "source")
	if err != nil {
		return nil, false
	}
	switch typ {
	case jsonparser.String:
		s, err := jsonparser.ParseString(src)
		if err != nil {
			return nil, false
		}
		return []string{s}, true
	case jsonparser.Array:
		var lines []string
		_, _ = jsonparser.ArrayEach(src, func(v []byte, t jsonparser.ValueType, _ int, _ error) {
			// Keep one entry per element so indexes line up with the file.
			var s string
			if t == jsonparser.String {
				s, _ = jsonparser.ParseString(v)
			}
			lines = append(lines, s)
		})
		return lines, false
	}
	return nil, false
}

// encodeJSONString encodes s as a JSON string literal without HTML escaping,
// matching how notebook files are usually written.
func encodeJSONString(s string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
