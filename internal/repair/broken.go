// Package repair detects file links that no longer resolve and searches the
// workspace for files that could replace them.
package repair

import (
	"os"
	"sort"

	"github.com/starford/linkmend/internal/models"
)

// FindBroken probes every file target in idx and returns the ones that do not
// stat as a regular file or a directory. Documents are visited in path order
// and links in their stored order, so an unchanged tree yields the same list.
func FindBroken(idx models.LinkIndex) []models.BrokenLink {
	docs := make([]string, 0, len(idx))
	for doc := range idx {
		docs = append(docs, doc)
	}
	sort.Strings(docs)

	var out []models.BrokenLink
	for _, doc := range docs {
		for _, ref := range idx[doc] {
			if ref.Kind != "" && ref.Kind != models.KindFile {
				continue
			}
			if Exists(ref.Target) {
				continue
			}
			out = append(out, models.BrokenLink{Document: doc, Target: ref.Target, Raw: ref.Raw})
		}
	}
	return out
}

// Exists reports whether path stats as a regular file or a directory.
func Exists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() || info.IsDir()
}

// GroupByTarget groups broken records by their target path, keeping the
// order in which targets first appear.
func GroupByTarget(broken []models.BrokenLink) ([]string, map[string][]models.BrokenLink) {
	var order []string
	groups := make(map[string][]models.BrokenLink)
	for _, b := range broken {
		if _, ok := groups[b.Target]; !ok {
			order = append(order, b.Target)
		}
		groups[b.Target] = append(groups[b.Target], b)
	}
	return order, groups
}
