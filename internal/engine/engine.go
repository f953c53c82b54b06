// Package engine exposes the knowledge engine facade: bootstrap, search,
// and entry management over one wired set of store, embedder, ingestion
// pipeline and retrieval engine.
package engine

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/fieldaid/fieldaid/internal/embedding"
	"github.com/fieldaid/fieldaid/internal/ingest"
	"github.com/fieldaid/fieldaid/internal/retrieval"
	"github.com/fieldaid/fieldaid/internal/storage"
	"github.com/fieldaid/fieldaid/internal/version"
	"github.com/fieldaid/fieldaid/pkg/types"
)

// SearchKind distinguishes the possible outcomes of a completed search.
// Failures are reported through the error return instead.
type SearchKind string

const (
	// SearchFound means at least one entry cleared the relevance cutoff.
	SearchFound SearchKind = "found"

	// SearchNoResults means the search ran fine but nothing was relevant
	// enough. Callers should surface this distinctly from an error: the
	// engine is healthy, the corpus just has no answer.
	SearchNoResults SearchKind = "no-results"
)

// SearchOutcome is the result of one search.
type SearchOutcome struct {
	Kind    SearchKind
	Matches []types.SearchMatch
}

// Config carries the engine-level knobs not owned by a subsystem.
type Config struct {
	// SourcesDir is the directory holding the ingestion manifest and its
	// documents.
	SourcesDir string

	// EmbedWorkers bounds embedding concurrency during ingestion.
	EmbedWorkers int
}

// KnowledgeEngine is the top-level entry point for the reference engine.
type KnowledgeEngine struct {
	store        storage.KnowledgeStore
	embedder     embedding.Embedder
	orchestrator *ingest.Orchestrator
	retriever    *retrieval.Engine
	versions     *version.Manager
	sourcesDir   string
}

// New wires a knowledge engine from its storage and embedding backends.
func New(store storage.KnowledgeStore, versions storage.VersionStore, embedder embedding.Embedder, cfg Config) (*KnowledgeEngine, error) {
	orchestrator := ingest.NewOrchestrator(store, embedder, cfg.EmbedWorkers)

	retriever, err := retrieval.NewEngine(store, embedder)
	if err != nil {
		return nil, err
	}

	e := &KnowledgeEngine{
		store:        store,
		embedder:     embedder,
		orchestrator: orchestrator,
		retriever:    retriever,
		sourcesDir:   cfg.SourcesDir,
	}
	e.versions = version.NewManager(store, versions, e.runIngestion)
	return e, nil
}

// runIngestion loads the manifest and runs one full ingestion pass. The
// manifest is re-read on every run so document changes on disk are picked up
// by refreshes and forced reinitialization.
func (e *KnowledgeEngine) runIngestion(ctx context.Context) (*ingest.Result, error) {
	sources, err := ingest.LoadManifest(e.sourcesDir)
	if err != nil {
		return nil, err
	}
	return e.orchestrator.Run(ctx, sources)
}

// InitializeIfNeeded populates the knowledge base when it is empty, behind
// a schema bump, or stale. Safe to call on every startup.
func (e *KnowledgeEngine) InitializeIfNeeded(ctx context.Context) (*version.Result, error) {
	return e.versions.CheckAndInitialize(ctx)
}

// ForceReinitialize wipes and rebuilds the knowledge base unconditionally.
func (e *KnowledgeEngine) ForceReinitialize(ctx context.Context) (*version.Result, error) {
	return e.versions.ForceReinitialize(ctx)
}

// Search runs a semantic query. A healthy search with no relevant entries
// returns SearchNoResults, not an error.
func (e *KnowledgeEngine) Search(ctx context.Context, query string, opts retrieval.Options) (*SearchOutcome, error) {
	matches, err := e.retriever.Search(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return &SearchOutcome{Kind: SearchNoResults}, nil
	}
	return &SearchOutcome{Kind: SearchFound, Matches: matches}, nil
}

// AddEntry persists a single entry, embedding its text first when the
// caller did not supply a vector.
func (e *KnowledgeEngine) AddEntry(ctx context.Context, entry *types.KnowledgeEntry) (string, error) {
	if strings.TrimSpace(entry.Text) == "" {
		return "", fmt.Errorf("engine: entry %q has no text", entry.Title)
	}
	if len(entry.Embedding) == 0 {
		vec, err := e.embedder.Embed(ctx, entry.Text)
		if err != nil {
			return "", fmt.Errorf("engine: failed to embed entry %q: %w", entry.Title, err)
		}
		entry.Embedding = vec
	}
	if err := entry.Validate(e.embedder.Dimension()); err != nil {
		return "", err
	}
	return e.store.Insert(ctx, entry)
}

// AddEntryBatch persists multiple entries in one batch, embedding any that
// lack vectors. Per-entry failures are collected in the result rather than
// aborting the batch.
func (e *KnowledgeEngine) AddEntryBatch(ctx context.Context, entries []*types.KnowledgeEntry) (*storage.BatchResult, error) {
	result := &storage.BatchResult{}

	var ready []*types.KnowledgeEntry
	for _, entry := range entries {
		if strings.TrimSpace(entry.Text) == "" {
			result.Failures = append(result.Failures, storage.EntryFailure{
				Title: entry.Title,
				Err:   fmt.Errorf("entry has no text"),
			})
			continue
		}
		if len(entry.Embedding) == 0 {
			vec, err := e.embedder.Embed(ctx, entry.Text)
			if err != nil {
				result.Failures = append(result.Failures, storage.EntryFailure{Title: entry.Title, Err: err})
				continue
			}
			entry.Embedding = vec
		}
		if err := entry.Validate(e.embedder.Dimension()); err != nil {
			result.Failures = append(result.Failures, storage.EntryFailure{Title: entry.Title, Err: err})
			continue
		}
		ready = append(ready, entry)
	}

	if len(ready) > 0 {
		stored, err := e.store.InsertBatch(ctx, ready)
		if err != nil {
			return nil, fmt.Errorf("engine: batch insert failed: %w", err)
		}
		result.IDs = stored.IDs
		result.Failures = append(result.Failures, stored.Failures...)
	}
	return result, nil
}

// AddDocument parses and ingests one document at runtime.
func (e *KnowledgeEngine) AddDocument(ctx context.Context, r io.Reader, meta types.DocumentMetadata) (*ingest.AddResult, error) {
	return e.orchestrator.AddDocument(ctx, r, meta)
}

// Statistics summarizes the stored corpus. Counts are recomputed from the
// store on every call rather than maintained incrementally, so they are
// always consistent with what search sees.
func (e *KnowledgeEngine) Statistics(ctx context.Context) (*types.KnowledgeBaseStats, error) {
	entries, err := e.store.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine: failed to load entries: %w", err)
	}

	stats := &types.KnowledgeBaseStats{
		TotalEntries:   len(entries),
		CategoryCounts: make(map[string]int),
		PriorityCounts: make(map[int]int),
		LanguageCounts: make(map[string]int),
	}
	for i := range entries {
		stats.CategoryCounts[entries[i].Category]++
		stats.PriorityCounts[entries[i].Priority]++
		stats.LanguageCounts[entries[i].LanguageCode]++
	}
	return stats, nil
}

// Close releases the underlying store.
func (e *KnowledgeEngine) Close() error {
	return e.store.Close()
}
