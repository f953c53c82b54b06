// Package parser turns raw document bytes plus format metadata into an
// ordered sequence of text chunks with provenance.
//
// Parsing is deliberately tolerant: a malformed record inside a document is
// recorded and skipped without failing its siblings, and only a document
// from which nothing at all can be extracted is rejected outright.
package parser

import (
	"fmt"
	"strings"

	"github.com/fieldaid/fieldaid/pkg/types"
)

// Chunk is one contiguous span of source text treated as a retrievable unit.
type Chunk struct {
	// Title is the format-provided or synthesized chunk heading.
	Title string

	// Text is the chunk body.
	Text string

	// Category overrides the metadata default when non-empty (CSV rows and
	// JSON records can carry their own category).
	Category string

	// Priority overrides the metadata default when positive.
	Priority int
}

// Result is the outcome of parsing one document.
type Result struct {
	// Chunks are the extracted chunks in document order.
	Chunks []Chunk

	// RecordErrors holds per-record failures (a malformed JSON list
	// element, say) that did not prevent sibling records from parsing.
	RecordErrors []error
}

// Parse extracts chunks from the document according to its format. It
// returns an error only when nothing is extractable from the source; partial
// failures are reported through Result.RecordErrors.
func Parse(data []byte, meta types.DocumentMetadata) (*Result, error) {
	switch meta.Format {
	case types.FormatJSON:
		return parseJSON(data, meta)
	case types.FormatCSV:
		return parseCSV(data, meta)
	case types.FormatMarkdown:
		return parseMarkdown(data, meta)
	case types.FormatXMLTag:
		return parseXMLTag(data, meta)
	case types.FormatPagedText:
		return parsePagedText(data, meta)
	case types.FormatPlainText:
		return parsePlainText(data, meta)
	default:
		return nil, fmt.Errorf("parser: unsupported format %q for source %q", meta.Format, meta.Source)
	}
}

// parsePlainText chunks free text per the metadata's chunking strategy.
func parsePlainText(data []byte, meta types.DocumentMetadata) (*Result, error) {
	text := strings.TrimSpace(string(data))
	if text == "" {
		return nil, fmt.Errorf("parser: source %q is empty", meta.Source)
	}

	var (
		texts []string
		label string
	)
	switch meta.Chunking {
	case types.ChunkSentence:
		texts = chunkSentences(text)
		label = "Section"
	case types.ChunkParagraph:
		texts = chunkParagraphs(text)
		label = "Paragraph"
	case types.ChunkFixed, "":
		texts = chunkFixed(text)
		label = "Chunk"
	default:
		return nil, fmt.Errorf("parser: unsupported chunking strategy %q for source %q", meta.Chunking, meta.Source)
	}

	if len(texts) == 0 {
		return nil, fmt.Errorf("parser: source %q produced no chunks", meta.Source)
	}

	result := &Result{Chunks: make([]Chunk, 0, len(texts))}
	for i, t := range texts {
		result.Chunks = append(result.Chunks, Chunk{
			Title: fmt.Sprintf("%s - %s %d", meta.Source, label, i+1),
			Text:  t,
		})
	}
	return result, nil
}
