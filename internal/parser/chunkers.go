package parser

import (
	"regexp"
	"strings"
)

const (
	// fixedChunkSize is the fixed-size chunk length in characters.
	fixedChunkSize = 500

	// fixedChunkOverlap is how many characters each chunk after the first
	// reaches back before its nominal offset.
	fixedChunkOverlap = 50

	// sentencesPerChunk is the group size for sentence chunking.
	sentencesPerChunk = 5
)

// chunkFixed splits text into fixedChunkSize-character chunks. Chunk k>0
// starts fixedChunkOverlap characters before its nominal offset k*size, so
// adjacent chunks share a 50-character seam. Chunks split mid-word; the
// overlap, not word awareness, preserves context across the boundary.
func chunkFixed(text string) []string {
	runes := []rune(text)
	var chunks []string
	for k := 0; ; k++ {
		from := k * fixedChunkSize
		if k > 0 {
			from -= fixedChunkOverlap
		}
		if from >= len(runes) {
			break
		}
		to := from + fixedChunkSize
		if to > len(runes) {
			to = len(runes)
		}
		chunks = append(chunks, string(runes[from:to]))
		if to == len(runes) {
			break
		}
	}
	return chunks
}

var sentenceSplitRe = regexp.MustCompile(`[.!?]+`)

// chunkSentences splits on sentence terminator runs, drops empty fragments,
// and groups five sentences per chunk rejoined with ". " and a trailing
// period. A sentence that already carried trailing punctuation may end up
// double-punctuated; that is accepted, not corrected.
func chunkSentences(text string) []string {
	var sentences []string
	for _, fragment := range sentenceSplitRe.Split(text, -1) {
		if s := strings.TrimSpace(fragment); s != "" {
			sentences = append(sentences, s)
		}
	}

	var chunks []string
	for i := 0; i < len(sentences); i += sentencesPerChunk {
		end := i + sentencesPerChunk
		if end > len(sentences) {
			end = len(sentences)
		}
		chunks = append(chunks, strings.Join(sentences[i:end], ". ")+".")
	}
	return chunks
}

var paragraphSplitRe = regexp.MustCompile(`\n\s*\n`)

// chunkParagraphs splits on runs of blank lines; each non-blank paragraph
// becomes one chunk.
func chunkParagraphs(text string) []string {
	var chunks []string
	for _, fragment := range paragraphSplitRe.Split(text, -1) {
		if p := strings.TrimSpace(fragment); p != "" {
			chunks = append(chunks, p)
		}
	}
	return chunks
}
