package parser

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fieldaid/fieldaid/pkg/types"
)

// parseCSV handles delimited tables. The first line is a header and a "text"
// column is mandatory; its absence rejects the whole source. "title",
// "category" and "priority" columns are optional with per-row fallbacks.
// Rows too short to reach the text column are skipped silently.
func parseCSV(data []byte, meta types.DocumentMetadata) (*Result, error) {
	reader := csv.NewReader(strings.NewReader(string(data)))
	reader.FieldsPerRecord = -1 // rows may be ragged; handled per row

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("parser: source %q: failed to read header: %w", meta.Source, err)
	}

	textCol, titleCol, categoryCol, priorityCol := -1, -1, -1, -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "text":
			textCol = i
		case "title":
			titleCol = i
		case "category":
			categoryCol = i
		case "priority":
			priorityCol = i
		}
	}
	if textCol < 0 {
		return nil, fmt.Errorf("parser: source %q: missing mandatory \"text\" column", meta.Source)
	}

	result := &Result{}
	rowNum := 0
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			result.RecordErrors = append(result.RecordErrors,
				fmt.Errorf("parser: source %q: row %d: %w", meta.Source, rowNum+1, err))
			rowNum++
			continue
		}
		rowNum++

		if len(row) <= textCol {
			continue // row too short to carry text
		}
		text := strings.TrimSpace(row[textCol])
		if text == "" {
			continue
		}

		chunk := Chunk{Text: text, Title: fmt.Sprintf("Entry %d", rowNum)}
		if titleCol >= 0 && titleCol < len(row) && strings.TrimSpace(row[titleCol]) != "" {
			chunk.Title = strings.TrimSpace(row[titleCol])
		}
		if categoryCol >= 0 && categoryCol < len(row) {
			chunk.Category = strings.TrimSpace(row[categoryCol])
		}
		if priorityCol >= 0 && priorityCol < len(row) {
			if p, convErr := strconv.Atoi(strings.TrimSpace(row[priorityCol])); convErr == nil && p > 0 {
				chunk.Priority = p
			}
		}
		result.Chunks = append(result.Chunks, chunk)
	}

	if len(result.Chunks) == 0 && len(result.RecordErrors) == 0 {
		return nil, fmt.Errorf("parser: source %q contains no rows", meta.Source)
	}
	return result, nil
}
