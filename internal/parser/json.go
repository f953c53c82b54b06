package parser

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fieldaid/fieldaid/pkg/types"
)

// jsonRecord is the accepted shape of a structured-record element. "content"
// is honored as an alias for "text" since both appear in the wild.
type jsonRecord struct {
	Title    string `json:"title"`
	Text     string `json:"text"`
	Content  string `json:"content"`
	Category string `json:"category"`
	Priority int    `json:"priority"`
}

func (r *jsonRecord) body() string {
	if strings.TrimSpace(r.Text) != "" {
		return r.Text
	}
	return r.Content
}

// parseJSON handles structured-record payloads. A list root yields one
// candidate chunk per element with per-element error recording; an object
// root yields a single chunk.
func parseJSON(data []byte, meta types.DocumentMetadata) (*Result, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil, fmt.Errorf("parser: source %q is empty", meta.Source)
	}

	if strings.HasPrefix(trimmed, "[") {
		return parseJSONList([]byte(trimmed), meta)
	}
	return parseJSONObject([]byte(trimmed), meta)
}

func parseJSONList(data []byte, meta types.DocumentMetadata) (*Result, error) {
	var elements []json.RawMessage
	if err := json.Unmarshal(data, &elements); err != nil {
		return nil, fmt.Errorf("parser: source %q: malformed record list: %w", meta.Source, err)
	}

	result := &Result{}
	for i, raw := range elements {
		var record jsonRecord
		if err := json.Unmarshal(raw, &record); err != nil {
			result.RecordErrors = append(result.RecordErrors,
				fmt.Errorf("parser: source %q: record %d: %w", meta.Source, i, err))
			continue
		}
		if strings.TrimSpace(record.body()) == "" {
			result.RecordErrors = append(result.RecordErrors,
				fmt.Errorf("parser: source %q: record %d has no text", meta.Source, i))
			continue
		}

		title := record.Title
		if title == "" {
			title = fmt.Sprintf("%s - Entry %d", meta.Source, i+1)
		}
		result.Chunks = append(result.Chunks, Chunk{
			Title:    title,
			Text:     record.body(),
			Category: record.Category,
			Priority: record.Priority,
		})
	}

	if len(result.Chunks) == 0 && len(result.RecordErrors) == 0 {
		return nil, fmt.Errorf("parser: source %q contains no records", meta.Source)
	}
	return result, nil
}

func parseJSONObject(data []byte, meta types.DocumentMetadata) (*Result, error) {
	var record jsonRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("parser: source %q: malformed record: %w", meta.Source, err)
	}

	// A single object is one chunk: its text field when present, the whole
	// payload otherwise.
	text := record.body()
	if strings.TrimSpace(text) == "" {
		text = string(data)
	}
	title := record.Title
	if title == "" {
		title = meta.Source
	}

	return &Result{Chunks: []Chunk{{
		Title:    title,
		Text:     text,
		Category: record.Category,
		Priority: record.Priority,
	}}}, nil
}
