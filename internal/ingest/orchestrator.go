// Package ingest drives the document ingestion pipeline: it enumerates
// configured sources in priority order, parses each into candidate entries,
// generates missing embeddings through a bounded worker pool, validates, and
// writes one batch through the knowledge store.
//
// The pipeline never aborts on partial failure. Unreadable optional sources
// are skipped silently, malformed records and failed embeddings drop only
// the affected entry, and per-entry store failures accumulate into the
// result. Only total inability to reach the store surfaces as an error.
package ingest

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/fieldaid/fieldaid/internal/embedding"
	"github.com/fieldaid/fieldaid/internal/parser"
	"github.com/fieldaid/fieldaid/internal/storage"
	"github.com/fieldaid/fieldaid/pkg/types"
)

// Source is one ingestible document: a name, its parse metadata, and a
// provider for its raw bytes. Sources are processed in slice order, so
// callers list the most important documents first.
type Source struct {
	// Name identifies the source in diagnostics.
	Name string

	// Meta describes how to parse the document and what the produced
	// entries inherit.
	Meta types.DocumentMetadata

	// Open returns a reader for the raw document. An Open failure marks
	// the source as unavailable, which is not an error: optional documents
	// are expected to be absent on some installs.
	Open func() (io.ReadCloser, error)
}

// Result aggregates the outcome of one ingestion run.
type Result struct {
	// Added is the number of entries successfully persisted.
	Added int

	// SourcesProcessed counts sources that parsed successfully, including
	// the synthetic built-in source when the seed fallback was used.
	SourcesProcessed int

	// Skipped counts candidate entries dropped for failed embeddings or
	// invariant violations.
	Skipped int

	// Elapsed is the wall-clock duration of the run.
	Elapsed time.Duration

	// Errors holds every non-fatal problem encountered: parse failures,
	// malformed records, dropped entries, per-entry store failures.
	Errors []string
}

// AddResult is the outcome of ingesting a single ad-hoc document.
type AddResult struct {
	// EntriesAdded is the number of entries persisted from the document.
	EntriesAdded int

	// Source is the logical name of the ingested document.
	Source string
}

// Orchestrator coordinates parsing, embedding, validation and batch
// persistence for ingestion runs.
type Orchestrator struct {
	store    storage.KnowledgeStore
	embedder embedding.Embedder
	workers  int
}

// NewOrchestrator creates an ingestion orchestrator. workers bounds the
// embedding concurrency; values below 1 fall back to sequential embedding.
func NewOrchestrator(store storage.KnowledgeStore, embedder embedding.Embedder, workers int) *Orchestrator {
	if workers < 1 {
		workers = 1
	}
	return &Orchestrator{store: store, embedder: embedder, workers: workers}
}

// Run ingests the given sources in order. It returns an error only when the
// run as a whole could not produce a usable knowledge base; everything
// recoverable lands in Result.Errors instead.
func (o *Orchestrator) Run(ctx context.Context, sources []Source) (*Result, error) {
	start := time.Now()
	result := &Result{}

	var candidates []*types.KnowledgeEntry
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		entries, errs, ok := o.parseSource(src)
		result.Errors = append(result.Errors, errs...)
		if !ok {
			continue
		}
		candidates = append(candidates, entries...)
		result.SourcesProcessed++
	}

	// The knowledge base must never come up empty: with no usable sources,
	// fall back to the built-in critical-care seed set.
	if len(candidates) == 0 {
		log.Printf("ingest: no entries from %d configured sources, using built-in seed set", len(sources))
		candidates = seedEntries()
		result.SourcesProcessed++
	}

	added, skipped, errs, err := o.embedAndStore(ctx, candidates)
	if err != nil {
		return nil, err
	}
	result.Added = added
	result.Skipped = skipped
	result.Errors = append(result.Errors, errs...)
	result.Elapsed = time.Since(start)

	log.Printf("ingest: run complete: %d added, %d skipped, %d sources, %d errors in %s",
		result.Added, result.Skipped, result.SourcesProcessed, len(result.Errors), result.Elapsed)
	return result, nil
}

// AddDocument ingests a single document outside the bootstrap flow, reusing
// the embed-validate-store stages of the pipeline.
func (o *Orchestrator) AddDocument(ctx context.Context, r io.Reader, meta types.DocumentMetadata) (*AddResult, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("ingest: failed to read document %q: %w", meta.Source, err)
	}

	parsed, err := parser.Parse(data, meta)
	if err != nil {
		return nil, err
	}
	if len(parsed.RecordErrors) > 0 {
		log.Printf("ingest: document %q: %d records skipped during parse", meta.Source, len(parsed.RecordErrors))
	}

	candidates := o.entriesFromChunks(parsed.Chunks, meta)
	added, _, errs, err := o.embedAndStore(ctx, candidates)
	if err != nil {
		return nil, err
	}
	if added == 0 {
		return nil, fmt.Errorf("ingest: document %q produced no storable entries (%s)",
			meta.Source, strings.Join(errs, "; "))
	}

	return &AddResult{EntriesAdded: added, Source: meta.Source}, nil
}

// parseSource opens and parses one source. ok is false when the source
// contributed nothing (unavailable or unparseable).
func (o *Orchestrator) parseSource(src Source) (entries []*types.KnowledgeEntry, errs []string, ok bool) {
	r, err := src.Open()
	if err != nil {
		// Optional source absent: skipped without error.
		log.Printf("ingest: source %q unavailable, skipping: %v", src.Name, err)
		return nil, nil, false
	}
	data, readErr := io.ReadAll(r)
	r.Close()
	if readErr != nil {
		return nil, []string{fmt.Sprintf("source %q: read failed: %v", src.Name, readErr)}, false
	}

	parsed, err := parser.Parse(data, src.Meta)
	if err != nil {
		return nil, []string{err.Error()}, false
	}
	for _, recordErr := range parsed.RecordErrors {
		errs = append(errs, recordErr.Error())
	}

	return o.entriesFromChunks(parsed.Chunks, src.Meta), errs, true
}

// entriesFromChunks builds candidate entries, applying chunk-level category
// and priority overrides over the metadata defaults.
func (o *Orchestrator) entriesFromChunks(chunks []parser.Chunk, meta types.DocumentMetadata) []*types.KnowledgeEntry {
	entries := make([]*types.KnowledgeEntry, 0, len(chunks))
	for _, chunk := range chunks {
		category := meta.Category
		if chunk.Category != "" {
			category = chunk.Category
		}
		priority := meta.Priority
		if chunk.Priority > 0 {
			priority = chunk.Priority
		}
		if priority <= 0 {
			priority = 3
		}

		entries = append(entries, &types.KnowledgeEntry{
			Title:         chunk.Title,
			Text:          chunk.Text,
			Category:      category,
			Priority:      priority,
			Keywords:      parser.ExtractKeywords(chunk.Text),
			Source:        meta.Source,
			LanguageCode:  meta.LanguageCode,
			FieldSuitable: meta.FieldSuitable,
		})
	}
	return entries
}

// embedAndStore runs the embed, validate and batch-persist stages over the
// candidates. Per-entry problems drop the entry and are reported in errs;
// only a store-level failure is returned as err.
func (o *Orchestrator) embedAndStore(ctx context.Context, candidates []*types.KnowledgeEntry) (added, skipped int, errs []string, err error) {
	// A corpus-prepared embedder (TF-IDF) needs the vocabulary before it
	// can produce vectors. Prepare it once over the stored corpus plus the
	// incoming texts, so all vectors produced in this process share one
	// space.
	if preparer, ok := o.embedder.(embedding.CorpusPreparer); ok && !preparer.Prepared() {
		existing, allErr := o.store.All(ctx)
		if allErr != nil {
			return 0, 0, nil, fmt.Errorf("ingest: failed to load corpus: %w", allErr)
		}
		corpus := make([]string, 0, len(existing)+len(candidates))
		for i := range existing {
			corpus = append(corpus, existing[i].Text)
		}
		for _, c := range candidates {
			corpus = append(corpus, c.Text)
		}
		if prepErr := preparer.Prepare(corpus); prepErr != nil {
			return 0, 0, nil, fmt.Errorf("ingest: failed to prepare embedder: %w", prepErr)
		}
	}

	embedErrs := o.embedAll(ctx, candidates)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return 0, 0, nil, ctxErr
	}

	var valid []*types.KnowledgeEntry
	for i, entry := range candidates {
		if embedErrs[i] != nil {
			errs = append(errs, fmt.Sprintf("entry %q: embedding failed, skipped: %v", entry.Title, embedErrs[i]))
			skipped++
			continue
		}
		if validErr := entry.Validate(o.embedder.Dimension()); validErr != nil {
			errs = append(errs, fmt.Sprintf("entry skipped: %v", validErr))
			skipped++
			continue
		}
		valid = append(valid, entry)
	}

	if len(valid) == 0 {
		return 0, skipped, errs, nil
	}

	batch, err := o.store.InsertBatch(ctx, valid)
	if err != nil {
		return 0, skipped, errs, fmt.Errorf("ingest: batch insert failed: %w", err)
	}
	for _, failure := range batch.Failures {
		errs = append(errs, fmt.Sprintf("entry %q: store rejected: %v", failure.Title, failure.Err))
	}

	return len(batch.IDs), skipped, errs, nil
}

// embedAll fills in missing embeddings with bounded concurrency. The
// returned slice is index-aligned with the candidates: a nil element means
// the entry has a usable embedding, non-nil records why it does not.
// Output order is positional, so diagnostics stay attributable even though
// completion order is not the input order.
func (o *Orchestrator) embedAll(ctx context.Context, candidates []*types.KnowledgeEntry) []error {
	results := make([]error, len(candidates))

	var wg sync.WaitGroup
	sem := make(chan struct{}, o.workers)

	for i, entry := range candidates {
		if len(entry.Embedding) > 0 {
			continue
		}
		if strings.TrimSpace(entry.Text) == "" {
			results[i] = fmt.Errorf("blank text")
			continue
		}
		if ctx.Err() != nil {
			results[i] = ctx.Err()
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(i int, entry *types.KnowledgeEntry) {
			defer func() { <-sem; wg.Done() }()

			vector, err := o.embedder.Embed(ctx, entry.Text)
			if err != nil {
				results[i] = err
				return
			}
			if len(vector) == 0 {
				results[i] = fmt.Errorf("embedder returned empty vector")
				return
			}
			entry.Embedding = vector
		}(i, entry)
	}

	wg.Wait()
	return results
}
