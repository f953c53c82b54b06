package parser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/fieldaid/fieldaid/pkg/types"
)

var (
	entryTagRe   = regexp.MustCompile(`(?s)<entry>(.*?)</entry>`)
	titleTagRe   = regexp.MustCompile(`(?s)<title>(.*?)</title>`)
	contentTagRe = regexp.MustCompile(`(?s)<content>(.*?)</content>`)
)

// parseXMLTag handles inline tag markup by matching <entry> fragments that
// contain <title> and <content> tags. This is best-effort tag matching, not
// a full XML parser: fragments with malformed or missing tags yield no
// chunk. That limitation is accepted; these documents are produced by the
// same toolchain that reads them.
func parseXMLTag(data []byte, meta types.DocumentMetadata) (*Result, error) {
	text := string(data)
	fragments := entryTagRe.FindAllStringSubmatch(text, -1)
	if len(fragments) == 0 {
		return nil, fmt.Errorf("parser: source %q contains no entry fragments", meta.Source)
	}

	result := &Result{}
	for i, fragment := range fragments {
		inner := fragment[1]

		contentMatch := contentTagRe.FindStringSubmatch(inner)
		if contentMatch == nil || strings.TrimSpace(contentMatch[1]) == "" {
			result.RecordErrors = append(result.RecordErrors,
				fmt.Errorf("parser: source %q: fragment %d has no content", meta.Source, i+1))
			continue
		}

		title := ""
		if titleMatch := titleTagRe.FindStringSubmatch(inner); titleMatch != nil {
			title = strings.TrimSpace(titleMatch[1])
		}
		if title == "" {
			title = fmt.Sprintf("%s - Entry %d", meta.Source, i+1)
		}

		result.Chunks = append(result.Chunks, Chunk{
			Title: title,
			Text:  strings.TrimSpace(contentMatch[1]),
		})
	}

	if len(result.Chunks) == 0 && len(result.RecordErrors) == 0 {
		return nil, fmt.Errorf("parser: source %q contains no usable entry fragments", meta.Source)
	}
	return result, nil
}
