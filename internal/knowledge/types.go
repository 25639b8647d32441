// Package knowledge defines the knowledge-document domain model: documents,
// truth levels, content fingerprints, and the Postgres-backed document store.
package knowledge

import (
	"regexp"
	"strings"
	"time"
)

// TruthLevel is the authoritativeness tier of a document. L1 is the most
// authoritative, L4 the least (draft).
type TruthLevel string

const (
	TruthL1 TruthLevel = "L1"
	TruthL2 TruthLevel = "L2"
	TruthL3 TruthLevel = "L3"
	TruthL4 TruthLevel = "L4"
)

// Valid reports whether l is one of the four known truth levels.
func (l TruthLevel) Valid() bool {
	switch l {
	case TruthL1, TruthL2, TruthL3, TruthL4:
		return true
	}
	return false
}

// Category is the content category of a knowledge document.
type Category string

const (
	CategoryCatalog    Category = "catalog"
	CategoryGuide      Category = "guide"
	CategoryKnowledge  Category = "knowledge"
	CategoryDiagnostic Category = "diagnostic"
	CategoryPolicy     Category = "policy"
	CategoryPricing    Category = "pricing"
)

// DocumentStatus is the lifecycle state of a stored document.
type DocumentStatus string

const (
	StatusActive      DocumentStatus = "active"
	StatusArchived    DocumentStatus = "archived"
	StatusQuarantined DocumentStatus = "quarantined"
)

// IngestDocument is the immutable input to the ingestion decision pipeline.
type IngestDocument struct {
	Title      string     `json:"title"`
	Content    string     `json:"content"`
	Source     string     `json:"source"`
	TruthLevel TruthLevel `json:"truth_level"`
	Domain     string     `json:"domain"`
	Category   Category   `json:"category"`
}

// Document is a knowledge document as persisted in the corpus.
type Document struct {
	ID               string         `json:"id"`
	Title            string         `json:"title"`
	Content          string         `json:"content"`
	Source           string         `json:"source"`
	ParentSource     string         `json:"parent_source"`
	Fingerprint      string         `json:"fingerprint"`
	Domain           string         `json:"domain"`
	Category         Category       `json:"category"`
	TruthLevel       TruthLevel     `json:"truth_level"`
	Status           DocumentStatus `json:"status"`
	Retrievable      bool           `json:"retrievable"`
	QuarantineReason string         `json:"quarantine_reason,omitempty"`
	DuplicateOf      string         `json:"duplicate_of,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// SourcePrefix returns the text before the first '.' or '/' of a source
// path. The prefix keys the ingestion compatibility matrix.
func SourcePrefix(source string) string {
	if i := strings.IndexAny(source, "./"); i >= 0 {
		return source[:i]
	}
	return source
}

// sectionSuffix matches section-numbered source stems, e.g. "foo-section",
// "foo-section-2" or "foo_part3".
var sectionSuffix = regexp.MustCompile(`(?i)[-_](?:section|part)[-_]?\d*$`)

// ParentSource collapses section-numbered sources to one logical source so
// that re-ingesting a section of the same document updates rather than
// duplicates. Non-sectioned sources map to themselves.
func ParentSource(source string) string {
	dir := ""
	rest := source
	if i := strings.LastIndex(source, "/"); i >= 0 {
		dir = source[:i+1]
		rest = source[i+1:]
	}
	ext := ""
	if i := strings.LastIndex(rest, "."); i > 0 {
		ext = rest[i:]
		rest = rest[:i]
	}
	rest = sectionSuffix.ReplaceAllString(rest, "")
	return dir + rest + ext
}
