// Package types defines the shared data model for the fieldaid knowledge base.
// These types cross package boundaries: KnowledgeEntry is the persisted unit of
// retrievable knowledge, DocumentMetadata describes an ingestion source, and
// SearchMatch is the ephemeral per-query result wrapper.
package types

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// DocumentFormat identifies how a raw source document is parsed.
type DocumentFormat string

const (
	// FormatJSON is a structured-record payload: a list root yields one
	// candidate entry per element, an object root yields a single chunk.
	FormatJSON DocumentFormat = "json"

	// FormatCSV is a delimited table with a header row. A "text" column is
	// mandatory; "title", "category" and "priority" columns are optional.
	FormatCSV DocumentFormat = "csv"

	// FormatMarkdown is sectioned markup. Only "# " and "## " headings start
	// new sections; deeper levels are treated as body text.
	FormatMarkdown DocumentFormat = "markdown"

	// FormatXMLTag is inline tag markup, parsed best-effort by matching
	// <entry> fragments containing <title> and <content> tags.
	FormatXMLTag DocumentFormat = "xmltag"

	// FormatPagedText is page-oriented text as produced by an upstream
	// extractor, with pages separated by form-feed (\f) characters.
	FormatPagedText DocumentFormat = "pagedtext"

	// FormatPlainText is free text chunked per the metadata's strategy.
	FormatPlainText DocumentFormat = "text"
)

// ChunkingStrategy selects how plain text is split into retrievable chunks.
type ChunkingStrategy string

const (
	// ChunkFixed splits into 500-character chunks. Every chunk after the
	// first starts 50 characters before its nominal offset so adjacent
	// chunks overlap. Chunks may split mid-word; that is intentional.
	ChunkFixed ChunkingStrategy = "fixed"

	// ChunkSentence groups five sentences per chunk, rejoined with ". ".
	ChunkSentence ChunkingStrategy = "sentence"

	// ChunkParagraph splits on runs of blank lines.
	ChunkParagraph ChunkingStrategy = "paragraph"
)

// KnowledgeEntry is a single unit of retrievable knowledge.
type KnowledgeEntry struct {
	// ID is the store-assigned identifier, immutable once assigned.
	ID string `json:"id"`

	// Title is a short human-readable heading for the entry.
	Title string `json:"title"`

	// Text is the searched and embedded content. Blank text is invalid.
	Text string `json:"text"`

	// Embedding is the semantic vector for Text. It is either empty (not
	// yet embedded) or exactly the embedder's declared dimension.
	Embedding []float64 `json:"embedding,omitempty"`

	// Category is a free-form string used as an exact-match filter.
	Category string `json:"category,omitempty"`

	// Priority is a small integer; lower values mean higher urgency
	// (1 = critical). Used both as a hard ceiling filter and as a soft
	// scoring signal.
	Priority int `json:"priority"`

	// Keywords is a derived, comma-joined term list. Informational only;
	// never used for scoring.
	Keywords string `json:"keywords,omitempty"`

	// Source names the document or subsystem the entry came from.
	Source string `json:"source,omitempty"`

	// LanguageCode is the BCP-47 language tag of the text.
	LanguageCode string `json:"language_code,omitempty"`

	// FieldSuitable marks entries written for non-expert field use.
	FieldSuitable bool `json:"field_suitable"`

	// LastUpdated is set on every successful write.
	LastUpdated time.Time `json:"last_updated"`
}

// Validate checks the persisted-entry invariant: non-blank text and an
// embedding that is non-empty, of exactly the given dimension, and fully
// finite. Entries failing Validate must never be written to the store.
func (e *KnowledgeEntry) Validate(dimension int) error {
	if strings.TrimSpace(e.Text) == "" {
		return fmt.Errorf("entry %q: text is blank", e.Title)
	}
	if len(e.Embedding) == 0 {
		return fmt.Errorf("entry %q: embedding is empty", e.Title)
	}
	if dimension > 0 && len(e.Embedding) != dimension {
		return fmt.Errorf("entry %q: embedding dimension %d, want %d", e.Title, len(e.Embedding), dimension)
	}
	for i, v := range e.Embedding {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("entry %q: embedding[%d] is not finite", e.Title, i)
		}
	}
	return nil
}

// DocumentMetadata describes one ingestion source. It is an input to the
// parser and orchestrator and is never persisted.
type DocumentMetadata struct {
	// Source is the logical name of the document (file name, feed id).
	Source string `yaml:"source" json:"source"`

	// Format selects the parser for the raw bytes.
	Format DocumentFormat `yaml:"format" json:"format"`

	// Category is inherited by every entry produced from this source.
	Category string `yaml:"category" json:"category"`

	// Priority is the default priority for produced entries.
	Priority int `yaml:"priority" json:"priority"`

	// LanguageCode is inherited by every produced entry.
	LanguageCode string `yaml:"language" json:"language"`

	// Chunking selects the plain-text chunking strategy. Formats that
	// produce their own sections (json, csv, markdown, xmltag) ignore it.
	Chunking ChunkingStrategy `yaml:"chunking" json:"chunking"`

	// FieldSuitable marks produced entries as written for field use.
	FieldSuitable bool `yaml:"field_suitable" json:"field_suitable"`
}

// SearchMatch pairs an entry with its per-query scores. Derived at query
// time and never persisted.
type SearchMatch struct {
	// Entry is the matched knowledge entry.
	Entry KnowledgeEntry `json:"entry"`

	// Similarity is the cosine similarity between the query embedding and
	// the entry embedding, in [-1, 1].
	Similarity float64 `json:"similarity"`

	// Relevance is the composite ranking score combining similarity,
	// priority weight, and field suitability.
	Relevance float64 `json:"relevance"`
}

// KnowledgeBaseStats is a derived view over the full entry set. It is
// recomputed on demand, never incrementally maintained.
type KnowledgeBaseStats struct {
	TotalEntries   int            `json:"total_entries"`
	CategoryCounts map[string]int `json:"category_counts"`
	PriorityCounts map[int]int    `json:"priority_counts"`
	LanguageCounts map[string]int `json:"language_counts"`
}

// VersionState tracks the knowledge base schema version and the time of the
// last successful initialization. Created on first boot and mutated only by
// the version manager.
type VersionState struct {
	// SchemaVersion is the persisted knowledge base schema version.
	SchemaVersion int `json:"schema_version"`

	// LastInitialized is when ingestion last completed successfully.
	// Zero means the knowledge base has never been initialized.
	LastInitialized time.Time `json:"last_initialized"`
}
