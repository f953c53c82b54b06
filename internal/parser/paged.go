package parser

import (
	"fmt"
	"log"
	"strings"

	"github.com/fieldaid/fieldaid/pkg/types"
)

// parsePagedText handles page-oriented text as produced by an upstream
// extractor, with pages separated by form-feed characters. Pages yielding no
// text are skipped with a logged warning; a source whose pages are all blank
// is rejected. The concatenated text then flows through the same plain-text
// chunking strategies as any other free text.
func parsePagedText(data []byte, meta types.DocumentMetadata) (*Result, error) {
	pages := strings.Split(string(data), "\f")

	var kept []string
	for i, page := range pages {
		text := strings.TrimSpace(page)
		if text == "" {
			log.Printf("parser: source %q: page %d yielded no text, skipping", meta.Source, i+1)
			continue
		}
		kept = append(kept, text)
	}

	if len(kept) == 0 {
		return nil, fmt.Errorf("parser: source %q: no text on any page", meta.Source)
	}

	return parsePlainText([]byte(strings.Join(kept, "\n\n")), meta)
}
