package parser

import (
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	gmast "github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/starford/linkmend/internal/models"
)

// refDefRe matches a link reference definition and captures its destination.
var refDefRe = regexp.MustCompile(`(?m)^ {0,3}\[[^\]\n]+\]:[ \t]*(<[^>\n]*>|\S+)`)

// edit replaces src[start:end] with repl.
type edit struct {
	start, end int
	repl       string
}

// RelativePath returns the path of toTarget relative to the directory that
// contains fromDocument, with forward slashes and no leading "./".
func RelativePath(fromDocument, toTarget string) string {
	return relativeFromDir(filepath.Dir(fromDocument), toTarget)
}

func relativeFromDir(dir, target string) string {
	rel, err := filepath.Rel(dir, target)
	if err != nil {
		return filepath.ToSlash(target)
	}
	return filepath.ToSlash(rel)
}

// RewriteLinks recomputes every relative file link in a Markdown document as
// if the document had moved from oldBaseDir to newBaseDir. Targets that end
// up containing a space are wrapped in angle brackets.
func RewriteLinks(content, oldBaseDir, newBaseDir string) string {
	if sameDir(oldBaseDir, newBaseDir) {
		return content
	}
	edits := linkEdits(content, oldBaseDir, newBaseDir)
	if len(edits) == 0 {
		return content
	}
	var b strings.Builder
	pos := 0
	for _, e := range edits {
		b.WriteString(content[pos:e.start])
		b.WriteString(e.repl)
		pos = e.end
	}
	b.WriteString(content[pos:])
	return b.String()
}

// rewriteLines rewrites a document given as a list of lines, each keeping its
// own line ending. The result has exactly one entry per input line.
func rewriteLines(lines []string, oldBaseDir, newBaseDir string) []string {
	out := make([]string, len(lines))
	copy(out, lines)
	if sameDir(oldBaseDir, newBaseDir) {
		return out
	}
	joined := strings.Join(lines, "")
	edits := linkEdits(joined, oldBaseDir, newBaseDir)

	offset, k := 0, 0
	for i, line := range lines {
		lineEnd := offset + len(line)
		var b strings.Builder
		pos := offset
		for k < len(edits) && edits[k].start < lineEnd {
			e := edits[k]
			k++
			if e.end > lineEnd {
				continue
			}
			b.WriteString(joined[pos:e.start])
			b.WriteString(e.repl)
			pos = e.end
		}
		b.WriteString(joined[pos:lineEnd])
		out[i] = b.String()
		offset = lineEnd
	}
	return out
}

// linkEdits finds inline link, image and reference definition destinations
// outside code and computes their replacements, sorted by position.
func linkEdits(src, oldBaseDir, newBaseDir string) []edit {
	skip := codeRanges([]byte(src))
	var edits []edit

	for i := 0; i < len(src); {
		j := strings.Index(src[i:], "](")
		if j < 0 {
			break
		}
		start := i + j + 2
		for start < len(src) && (src[start] == ' ' || src[start] == '\t') {
			start++
		}
		end := destinationEnd(src, start)
		i = start
		if end <= start || inRanges(skip, start) {
			continue
		}
		if repl, ok := movedDestination(src[start:end], oldBaseDir, newBaseDir); ok {
			edits = append(edits, edit{start: start, end: end, repl: repl})
		}
		i = end
	}

	for _, m := range refDefRe.FindAllStringSubmatchIndex(src, -1) {
		start, end := m[2], m[3]
		if inRanges(skip, start) {
			continue
		}
		if repl, ok := movedDestination(src[start:end], oldBaseDir, newBaseDir); ok {
			edits = append(edits, edit{start: start, end: end, repl: repl})
		}
	}

	sort.Slice(edits, func(a, b int) bool { return edits[a].start < edits[b].start })
	out := edits[:0]
	for _, e := range edits {
		if len(out) > 0 && e.start < out[len(out)-1].end {
			continue
		}
		out = append(out, e)
	}
	return out
}

// destinationEnd returns the end offset of a link destination starting at
// start: an angle-bracketed run, or a run without whitespace where
// parentheses must balance.
func destinationEnd(src string, start int) int {
	if start >= len(src) {
		return start
	}
	if src[start] == '<' {
		for k := start + 1; k < len(src); k++ {
			switch src[k] {
			case '>':
				return k + 1
			case '\n':
				return start
			}
		}
		return start
	}
	depth := 0
	for k := start; k < len(src); k++ {
		switch c := src[k]; c {
		case ' ', '\t', '\n', '\r':
			return k
		case '(':
			depth++
		case ')':
			if depth == 0 {
				return k
			}
			depth--
		}
	}
	return len(src)
}

// movedDestination recomputes one destination for a document moving from
// oldBaseDir to newBaseDir. ok is false when the destination is left alone.
func movedDestination(dest, oldBaseDir, newBaseDir string) (string, bool) {
	inner := stripAngleBrackets(dest)
	wrapped := inner != dest
	if inner == "" || Classify(inner) != models.KindFile || keepAsWritten(inner) {
		return "", false
	}
	path, frag := splitFragment(inner)
	if path == "" {
		return "", false
	}
	abs := filepath.Join(oldBaseDir, filepath.FromSlash(path))
	next := relativeFromDir(newBaseDir, abs) + frag
	if next == inner {
		return "", false
	}
	if wrapped || strings.Contains(next, " ") {
		next = "<" + next + ">"
	}
	return next, true
}

func splitFragment(target string) (string, string) {
	if i := strings.IndexAny(target, "#?"); i >= 0 {
		return target[:i], target[i:]
	}
	return target, ""
}

func sameDir(a, b string) bool {
	return filepath.Clean(a) == filepath.Clean(b)
}

// codeRanges returns the byte ranges of code blocks, code spans and HTML
// blocks, which never carry links.
func codeRanges(source []byte) [][2]int {
	root := goldmark.New().Parser().Parse(text.NewReader(source))
	var out [][2]int
	_ = gmast.Walk(root, func(n gmast.Node, entering bool) (gmast.WalkStatus, error) {
		if !entering {
			return gmast.WalkContinue, nil
		}
		switch n.Kind() {
		case gmast.KindCodeBlock, gmast.KindFencedCodeBlock, gmast.KindHTMLBlock:
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				out = append(out, [2]int{seg.Start, seg.Stop})
			}
			return gmast.WalkSkipChildren, nil
		case gmast.KindCodeSpan:
			for c := n.FirstChild(); c != nil; c = c.NextSibling() {
				if t, ok := c.(*gmast.Text); ok {
					out = append(out, [2]int{t.Segment.Start, t.Segment.Stop})
				}
			}
			return gmast.WalkSkipChildren, nil
		}
		return gmast.WalkContinue, nil
	})
	return out
}

func inRanges(ranges [][2]int, pos int) bool {
	for _, r := range ranges {
		if pos >= r[0] && pos < r[1] {
			return true
		}
	}
	return false
}

// ApplyRepair replaces the broken path's relative form, as seen from
// document, with the relative path of replacement. When the relative form is
// not present the forward-slash form of brokenPath is tried. ok is false when
// neither occurs in content.
func ApplyRepair(content, document, brokenPath, replacement string) (string, bool) {
	next := RelativePath(document, replacement)
	for _, old := range []string{RelativePath(document, brokenPath), filepath.ToSlash(brokenPath)} {
		if out, n := replacePath(content, old, next); n > 0 {
			return out, true
		}
	}
	return content, false
}

// replacePath replaces occurrences of old that stand as a whole path: not
// glued to other path characters on either side. A leading "./" is consumed.
func replacePath(content, old, next string) (string, int) {
	if old == "" {
		return content, 0
	}
	var b strings.Builder
	n, pos := 0, 0
	for i := 0; i < len(content); {
		j := strings.Index(content[i:], old)
		if j < 0 {
			break
		}
		start, end := i+j, i+j+len(old)
		i = start + 1
		if end < len(content) && isPathByte(content[end]) {
			continue
		}
		if start >= 2 && content[start-2:start] == "./" && (start == 2 || !isPathByte(content[start-3])) {
			start -= 2
		} else if start > 0 && isPathByte(content[start-1]) {
			continue
		}
		repl := next
		if strings.Contains(next, " ") && start > 0 && content[start-1] == '(' && end < len(content) && content[end] == ')' {
			repl = "<" + next + ">"
		}
		b.WriteString(content[pos:start])
		b.WriteString(repl)
		pos = end
		i = end
		n++
	}
	if n == 0 {
		return content, 0
	}
	b.WriteString(content[pos:])
	return b.String(), n
}

func isPathByte(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '.', c == '_', c == '-', c == '/', c == '%', c == '\\':
		return true
	case c >= 0x80:
		return true
	}
	return false
}
