// Package models defines the domain types for linkmend.
package models

import "time"

// LinkKind classifies a raw link target.
type LinkKind string

// Link kinds. Only KindFile targets are normalized into filesystem paths.
const (
	KindFile                LinkKind = "file"
	KindURL                 LinkKind = "url"
	KindAnchor              LinkKind = "anchor"
	KindMailto              LinkKind = "mailto"
	KindProtocol            LinkKind = "protocol"
	KindUnresolvedReference LinkKind = "unresolved-reference"
)

// DocumentKind tells the markdown and notebook formats apart.
type DocumentKind string

// Document kinds.
const (
	DocumentMarkdown DocumentKind = "markdown"
	DocumentNotebook DocumentKind = "notebook"
)

// LinkReference is one extracted link occurrence.
type LinkReference struct {
	Document string   `json:"document"`
	Raw      string   `json:"raw"`
	Kind     LinkKind `json:"kind"`
	// Target is the absolute, decoded path. Empty unless Kind is KindFile.
	Target string `json:"target,omitempty"`
}

// LinkIndex maps a document path to its ordered file links. Duplicates are
// kept: a document linking the same path twice has two entries.
type LinkIndex map[string][]LinkReference

// BrokenLink is a file link whose target does not resolve on disk.
type BrokenLink struct {
	Document string `json:"document"`
	Target   string `json:"target"`
	Raw      string `json:"raw"`
}

// CandidateSet holds replacement candidates for one broken path.
// Exact and Loose never share a path.
type CandidateSet struct {
	Broken string   `json:"broken"`
	Exact  []string `json:"exact"`
	Loose  []string `json:"loose"`
}

// Total returns the number of candidates across both tiers.
func (c CandidateSet) Total() int {
	return len(c.Exact) + len(c.Loose)
}

// DocumentMetadata is a lightweight representation returned by list operations.
type DocumentMetadata struct {
	Path      string       `json:"path"`
	Kind      DocumentKind `json:"kind"`
	Checksum  string       `json:"checksum"`
	UpdatedAt time.Time    `json:"updated_at"`
}
