// Package parser extracts file links from Markdown and notebook documents and
// rewrites them when documents or their targets move.
package parser

import (
	"net/url"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/starford/linkmend/internal/models"
)

// NotebookExt is the file extension of notebook documents.
const NotebookExt = ".ipynb"

// protocolRe matches a URI scheme. Two or more characters, so Windows drive
// letters ("C:") are not taken for schemes. Such targets are still file
// links, but they are never decoded or resolved.
var protocolRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9+.\-]+:`)

// Extract returns the normalized absolute paths of every file link in a
// Markdown document, in encounter order, duplicates included.
func Extract(content, baseDir string) []string {
	return targets(ExtractReferences(content, baseDir, ""))
}

// ExtractReferences returns the file link references of a Markdown document.
// document is recorded on each reference and may be empty.
func ExtractReferences(content, baseDir, document string) []models.LinkReference {
	var out []models.LinkReference
	for _, raw := range linkTargets(Tokenize([]byte(content))) {
		target := stripAngleBrackets(raw)
		kind := Classify(target)
		if kind != models.KindFile {
			continue
		}
		out = append(out, models.LinkReference{
			Document: document,
			Raw:      raw,
			Kind:     kind,
			Target:   Normalize(target, baseDir),
		})
	}
	return out
}

// ExtractDocument extracts file links from a document, choosing the notebook
// adapter for .ipynb files. Links resolve against the document's directory.
func ExtractDocument(path, content string) []models.LinkReference {
	baseDir := filepath.Dir(path)
	if KindOf(path) == models.DocumentNotebook {
		return ExtractNotebookReferences(content, baseDir, path)
	}
	return ExtractReferences(content, baseDir, path)
}

// IsDocument reports whether path names a Markdown or notebook document.
func IsDocument(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".md" || ext == NotebookExt
}

// KindOf reports the document kind for a path.
func KindOf(path string) models.DocumentKind {
	if strings.EqualFold(filepath.Ext(path), NotebookExt) {
		return models.DocumentNotebook
	}
	return models.DocumentMarkdown
}

// Classify tags a link target (angle brackets already stripped).
func Classify(target string) models.LinkKind {
	lower := strings.ToLower(target)
	switch {
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		return models.KindURL
	case strings.HasPrefix(target, "#"):
		return models.KindAnchor
	case strings.HasPrefix(lower, "mailto:"):
		return models.KindMailto
	case strings.HasPrefix(lower, "javascript:"):
		return models.KindProtocol
	}
	return models.KindFile
}

// Normalize turns a file target into an absolute path. Absolute targets lose
// their fragment but are otherwise returned as written, and scheme-prefixed
// targets are returned untouched. Relative targets are percent-decoded and
// resolved against baseDir; the result may lie outside baseDir's tree.
func Normalize(target, baseDir string) string {
	if hasScheme(target) {
		return target
	}
	target, _ = splitFragment(target)
	if filepath.IsAbs(target) {
		return target
	}
	decoded, err := url.PathUnescape(target)
	if err != nil {
		decoded = target
	}
	resolved := filepath.Join(baseDir, filepath.FromSlash(decoded))
	if abs, err := filepath.Abs(resolved); err == nil {
		return abs
	}
	return resolved
}

func hasScheme(target string) bool {
	return !filepath.IsAbs(target) && protocolRe.MatchString(target)
}

// keepAsWritten reports whether a file target is never recomputed relative
// to its document.
func keepAsWritten(target string) bool {
	return filepath.IsAbs(target) || hasScheme(target)
}

func stripAngleBrackets(s string) string {
	if len(s) >= 2 && s[0] == '<' && s[len(s)-1] == '>' {
		return s[1 : len(s)-1]
	}
	return s
}

func targets(refs []models.LinkReference) []string {
	out := make([]string, 0, len(refs))
	for _, r := range refs {
		out = append(out, r.Target)
	}
	return out
}
