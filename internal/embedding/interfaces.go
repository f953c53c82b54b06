// Package embedding provides text-to-vector embedders for the knowledge
// base: a local Ollama HTTP client for model-backed embeddings and a
// corpus-prepared TF-IDF vectorizer that needs no model runtime at all.
package embedding

import "context"

// Embedder maps text to a fixed-length numeric vector. Implementations may
// be slow (model inference) and may fail; callers treat an error or an empty
// vector as "no embedding" and drop or skip the affected entry.
type Embedder interface {
	// Embed returns the embedding vector for the given text.
	Embed(ctx context.Context, text string) ([]float64, error)

	// Dimension returns the declared dimensionality of produced vectors,
	// or 0 when it is not yet known (before first use).
	Dimension() int

	// Model returns the identifier of the underlying model or algorithm.
	Model() string
}

// CorpusPreparer is an optional Embedder capability for vectorizers that
// must see a corpus before they can embed (TF-IDF). Callers discover it by
// type assertion and prepare it once before first use.
type CorpusPreparer interface {
	// Prepare builds internal state (vocabulary, document frequencies)
	// from the corpus. Calling Prepare again replaces the previous state.
	Prepare(corpus []string) error

	// Prepared reports whether Prepare has completed successfully.
	Prepared() bool
}
