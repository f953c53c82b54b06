// Package retrieval answers semantic queries against the knowledge store.
// Queries are embedded with the same embedder used at ingestion time, scored
// against candidate entries by cosine similarity, gated by a relevance
// cutoff, and ranked by a composite of similarity, priority, and field
// suitability.
package retrieval

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/fieldaid/fieldaid/internal/embedding"
	"github.com/fieldaid/fieldaid/internal/storage"
	"github.com/fieldaid/fieldaid/pkg/types"
)

const (
	// DefaultLimit is the number of matches returned when the caller does
	// not ask for a specific count.
	DefaultLimit = 5

	// DefaultMaxPriority admits all priority tiers.
	DefaultMaxPriority = 5

	// similarityCutoff is the minimum cosine similarity for an entry to be
	// considered relevant at all. Inclusive: a match at exactly the cutoff
	// is kept.
	similarityCutoff = 0.6

	// Composite score weights. Similarity dominates; priority and field
	// suitability break near-ties between comparable matches.
	weightSimilarity = 0.7
	weightPriority   = 0.2
	weightField      = 0.1

	// queryCacheSize bounds the query embedding cache. Field queries repeat
	// heavily (the same few emergencies recur), so even a small cache
	// avoids most re-embedding.
	queryCacheSize = 256
)

// ErrBlankQuery rejects queries with no searchable content.
var ErrBlankQuery = fmt.Errorf("retrieval: query is blank")

// Options narrows and sizes a search.
type Options struct {
	// Limit caps the number of matches returned. Zero or negative means
	// DefaultLimit.
	Limit int

	// MaxPriority admits only entries with priority at or below this
	// ceiling. Zero or negative means DefaultMaxPriority.
	MaxPriority int

	// Category restricts matches to one category when non-empty.
	Category string
}

// Engine executes searches against a knowledge store.
type Engine struct {
	store    storage.KnowledgeStore
	embedder embedding.Embedder
	cache    *lru.Cache[string, []float64]
}

// NewEngine creates a retrieval engine over the given store and embedder.
func NewEngine(store storage.KnowledgeStore, embedder embedding.Embedder) (*Engine, error) {
	cache, err := lru.New[string, []float64](queryCacheSize)
	if err != nil {
		return nil, fmt.Errorf("retrieval: failed to create query cache: %w", err)
	}
	return &Engine{store: store, embedder: embedder, cache: cache}, nil
}

// Search finds entries relevant to the query, ranked by composite score.
// An empty result slice means nothing cleared the relevance cutoff, which
// is a normal outcome and not an error.
func (e *Engine) Search(ctx context.Context, query string, opts Options) ([]types.SearchMatch, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrBlankQuery
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	maxPriority := opts.MaxPriority
	if maxPriority <= 0 {
		maxPriority = DefaultMaxPriority
	}

	queryVec, err := e.embedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("retrieval: failed to embed query: %w", err)
	}

	filter := storage.QueryFilter{MaxPriority: maxPriority, Category: opts.Category}

	matches, err := e.candidates(ctx, queryVec, filter, limit)
	if err != nil {
		return nil, err
	}

	// Highest relevance first; entry ID breaks exact ties so repeated
	// searches return a stable order.
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Relevance != matches[j].Relevance {
			return matches[i].Relevance > matches[j].Relevance
		}
		return matches[i].Entry.ID < matches[j].Entry.ID
	})

	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// candidates scores every entry passing the filter. When the store can rank
// by vector distance itself, it pre-narrows the candidate set; the composite
// scoring and cutoff still happen here so both paths behave identically.
func (e *Engine) candidates(ctx context.Context, queryVec []float64, filter storage.QueryFilter, limit int) ([]types.SearchMatch, error) {
	var (
		entries []types.KnowledgeEntry
		err     error
	)
	if vs, ok := e.store.(storage.VectorSearcher); ok {
		// Overfetch so the cutoff and composite re-ranking have room to
		// reorder without losing matches.
		entries, err = vs.Nearest(ctx, queryVec, filter, limit*4)
		if err != nil {
			// The fast path is an optimization, never a requirement.
			log.Printf("retrieval: vector search unavailable, scanning: %v", err)
			entries, err = e.store.Query(ctx, filter)
		}
	} else {
		entries, err = e.store.Query(ctx, filter)
	}
	if err != nil {
		return nil, fmt.Errorf("retrieval: failed to load candidates: %w", err)
	}

	var matches []types.SearchMatch
	for i := range entries {
		sim := cosineSimilarity(queryVec, entries[i].Embedding)
		if sim < similarityCutoff {
			continue
		}
		matches = append(matches, types.SearchMatch{
			Entry:      entries[i],
			Similarity: sim,
			Relevance:  compositeScore(sim, &entries[i]),
		})
	}
	return matches, nil
}

// embedQuery returns the query embedding, served from cache when the same
// query text was embedded before.
func (e *Engine) embedQuery(ctx context.Context, query string) ([]float64, error) {
	if vec, ok := e.cache.Get(query); ok {
		return vec, nil
	}

	// A corpus-prepared embedder that was constructed fresh for this
	// process has no vocabulary yet. Rebuild it from the stored entries so
	// queries embed in the same space the corpus was embedded in.
	if preparer, ok := e.embedder.(embedding.CorpusPreparer); ok && !preparer.Prepared() {
		if err := e.prepareFromStore(ctx, preparer); err != nil {
			return nil, err
		}
	}

	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	// An empty vector cannot be scored against anything; reporting it as
	// no-results would hide an embedder fault, so it is an error like any
	// other embedding failure.
	if len(vec) == 0 {
		return nil, fmt.Errorf("embedder returned empty vector")
	}
	e.cache.Add(query, vec)
	return vec, nil
}

func (e *Engine) prepareFromStore(ctx context.Context, preparer embedding.CorpusPreparer) error {
	entries, err := e.store.All(ctx)
	if err != nil {
		return fmt.Errorf("failed to load corpus: %w", err)
	}
	corpus := make([]string, 0, len(entries))
	for i := range entries {
		corpus = append(corpus, entries[i].Text)
	}
	log.Printf("retrieval: preparing embedder from %d stored entries", len(corpus))
	return preparer.Prepare(corpus)
}

// compositeScore blends similarity with entry attributes. Priority maps
// linearly so tier 1 contributes full weight and tier 5 none; entries not
// suitable for field use score slightly lower than equivalent field-ready
// ones rather than being excluded.
func compositeScore(similarity float64, entry *types.KnowledgeEntry) float64 {
	p := entry.Priority
	if p < 1 {
		p = 1
	}
	if p > 5 {
		p = 5
	}
	priorityWeight := 1.0 - float64(p-1)/4.0

	fieldWeight := 0.8
	if entry.FieldSuitable {
		fieldWeight = 1.0
	}

	return weightSimilarity*similarity + weightPriority*priorityWeight + weightField*fieldWeight
}

// cosineSimilarity computes the cosine of the angle between two vectors.
// Mismatched lengths and zero vectors score 0 rather than erroring, so a
// single degenerate embedding cannot break a search.
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
