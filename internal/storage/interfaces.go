// Package storage provides the persistence interfaces for the fieldaid
// knowledge base.
//
// The layer is deliberately thin: a KnowledgeStore with insert, predicate
// query, count and clear, plus a VersionStore holding two scalars. Backends
// implement both so the rest of the system never touches SQL directly.
package storage

import (
	"context"

	"github.com/fieldaid/fieldaid/pkg/types"
)

// KnowledgeStore is durable storage for knowledge entries.
//
// Reads during a concurrent write must see either the pre-write or
// post-write state of each entry, never a partially written entry. Both
// bundled backends (SQLite in WAL mode, Postgres) provide this natively.
type KnowledgeStore interface {
	// Insert writes one entry and returns its store-assigned ID.
	// The entry must already satisfy the persisted-entry invariant.
	Insert(ctx context.Context, entry *types.KnowledgeEntry) (string, error)

	// InsertBatch writes entries in one call with per-entry outcomes.
	// A failing entry never rejects its co-submitted entries; failures are
	// reported in the result, and len(IDs)+len(Failures) == len(entries).
	InsertBatch(ctx context.Context, entries []*types.KnowledgeEntry) (*BatchResult, error)

	// Query returns entries matching the filter. Filters are hard: a
	// returned entry always has Priority <= MaxPriority and, when Category
	// is non-empty, an exactly equal category.
	Query(ctx context.Context, filter QueryFilter) ([]types.KnowledgeEntry, error)

	// Count returns the number of stored entries.
	Count(ctx context.Context) (int64, error)

	// All returns every stored entry. Used for statistics and for corpus
	// preparation; corpora are expected to stay in the low thousands.
	All(ctx context.Context) ([]types.KnowledgeEntry, error)

	// Clear deletes all entries.
	Clear(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}

// VersionStore persists the knowledge base version state in a small durable
// key-value facility. It is read at every bootstrap check and written only
// by the version manager.
type VersionStore interface {
	// LoadVersion returns the persisted version state. A store that has
	// never been initialized returns the zero VersionState, not an error.
	LoadVersion(ctx context.Context) (types.VersionState, error)

	// SaveVersion persists the version state with upsert semantics.
	SaveVersion(ctx context.Context, state types.VersionState) error
}

// VectorSearcher is an optional KnowledgeStore capability: backends with a
// native vector index (Postgres with pgvector) can pre-rank candidates by
// embedding distance instead of returning the full filtered set. Callers
// discover it by type assertion and fall back to Query when absent.
type VectorSearcher interface {
	// Nearest returns up to limit entries matching the filter, ordered by
	// ascending distance to the given embedding.
	Nearest(ctx context.Context, embedding []float64, filter QueryFilter, limit int) ([]types.KnowledgeEntry, error)
}

// QueryFilter narrows a KnowledgeStore query.
type QueryFilter struct {
	// MaxPriority is the inclusive priority ceiling. Zero or negative
	// means no ceiling.
	MaxPriority int

	// Category, when non-empty, requires an exact category match.
	Category string
}

// EntryFailure records why a single entry in a batch could not be written.
type EntryFailure struct {
	// Title identifies the failed entry (entries have no ID before insert).
	Title string

	// Err is the per-entry failure cause.
	Err error
}

// BatchResult reports per-entry outcomes of an InsertBatch call.
type BatchResult struct {
	// IDs are the store-assigned IDs of successfully written entries.
	IDs []string

	// Failures holds one record per entry that could not be written.
	Failures []EntryFailure
}
