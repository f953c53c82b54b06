package parser

import (
	"regexp"
	"sort"
	"strings"
)

const maxKeywords = 10

var keywordTokenRe = regexp.MustCompile(`[a-z0-9]+`)

// ExtractKeywords derives a comma-joined keyword list from text by simple
// term frequency: lowercase alphanumeric tokens longer than three
// characters, top ten by frequency. The result is informational provenance
// only and never participates in scoring.
func ExtractKeywords(text string) string {
	counts := make(map[string]int)
	for _, tok := range keywordTokenRe.FindAllString(strings.ToLower(text), -1) {
		if len(tok) > 3 {
			counts[tok]++
		}
	}
	if len(counts) == 0 {
		return ""
	}

	terms := make([]string, 0, len(counts))
	for term := range counts {
		terms = append(terms, term)
	}
	// Frequency descending, then alphabetical so output is deterministic.
	sort.Slice(terms, func(i, j int) bool {
		if counts[terms[i]] != counts[terms[j]] {
			return counts[terms[i]] > counts[terms[j]]
		}
		return terms[i] < terms[j]
	})

	if len(terms) > maxKeywords {
		terms = terms[:maxKeywords]
	}
	return strings.Join(terms, ",")
}
