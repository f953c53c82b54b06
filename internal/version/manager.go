// Package version guards knowledge base bootstrap: it decides whether
// ingestion needs to run, runs it at most once at a time, and records the
// schema version and initialization timestamp that future decisions read.
package version

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/fieldaid/fieldaid/internal/ingest"
	"github.com/fieldaid/fieldaid/internal/storage"
	"github.com/fieldaid/fieldaid/pkg/types"
)

// CurrentSchemaVersion is bumped whenever the entry layout or the chunking
// rules change incompatibly. A stored version behind this one forces a wipe
// and full re-ingestion.
const CurrentSchemaVersion = 1

// StaleAfter is how long an initialized knowledge base stays fresh before a
// refresh ingestion runs on the next check.
const StaleAfter = 30 * 24 * time.Hour

// Outcome says what an initialization check did.
type Outcome string

const (
	// OutcomeAlreadyInitialized means the knowledge base was current and
	// nothing ran.
	OutcomeAlreadyInitialized Outcome = "already-initialized"

	// OutcomeInitialized means an empty knowledge base was populated.
	OutcomeInitialized Outcome = "initialized"

	// OutcomeUpgraded means a schema version bump wiped and repopulated
	// the knowledge base.
	OutcomeUpgraded Outcome = "upgraded"

	// OutcomeRefreshed means a stale knowledge base re-ran ingestion
	// without wiping existing entries.
	OutcomeRefreshed Outcome = "refreshed"
)

// Result describes one initialization check.
type Result struct {
	Outcome Outcome

	// Ingest is the ingestion outcome when one ran, nil otherwise.
	Ingest *ingest.Result
}

// Runner executes one ingestion pass.
type Runner func(ctx context.Context) (*ingest.Result, error)

// Manager serializes initialization decisions over one knowledge store.
type Manager struct {
	mu       sync.Mutex
	store    storage.KnowledgeStore
	versions storage.VersionStore
	run      Runner

	// schemaVersion is the version this manager initializes to. It is
	// CurrentSchemaVersion in production and overridable in tests, like now.
	schemaVersion int
	now           func() time.Time
}

// NewManager creates an initialization manager. run is invoked whenever the
// manager decides ingestion is needed.
func NewManager(store storage.KnowledgeStore, versions storage.VersionStore, run Runner) *Manager {
	return &Manager{
		store:         store,
		versions:      versions,
		run:           run,
		schemaVersion: CurrentSchemaVersion,
		now:           time.Now,
	}
}

// CheckAndInitialize brings the knowledge base up to date if needed. The
// whole read-decide-ingest-record sequence holds one lock, so concurrent
// callers cannot both trigger ingestion; the loser of the race observes the
// winner's result as already-initialized.
func (m *Manager) CheckAndInitialize(ctx context.Context) (*Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, err := m.versions.LoadVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("version: failed to load state: %w", err)
	}

	if state.SchemaVersion < m.schemaVersion {
		// An upgrade from a populated older schema wipes first; a fresh
		// install (version zero, nothing stored) has nothing to wipe.
		if state.SchemaVersion >= 1 {
			log.Printf("version: schema %d -> %d, clearing knowledge base", state.SchemaVersion, m.schemaVersion)
			if err := m.store.Clear(ctx); err != nil {
				return nil, fmt.Errorf("version: failed to clear for upgrade: %w", err)
			}
			return m.ingestAndRecord(ctx, OutcomeUpgraded)
		}
		return m.ingestAndRecord(ctx, OutcomeInitialized)
	}

	count, err := m.store.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("version: failed to count entries: %w", err)
	}
	if count == 0 {
		log.Printf("version: knowledge base is empty, initializing")
		return m.ingestAndRecord(ctx, OutcomeInitialized)
	}

	if m.now().Sub(state.LastInitialized) > StaleAfter {
		// Refresh keeps existing entries and re-ingests on top. Duplicate
		// entries from re-ingested sources are accepted; retrieval ranking
		// makes duplicates harmless and a wipe here would risk an outage
		// if the refresh fails partway.
		log.Printf("version: last initialized %s, refreshing", state.LastInitialized.Format(time.RFC3339))
		return m.ingestAndRecord(ctx, OutcomeRefreshed)
	}

	return &Result{Outcome: OutcomeAlreadyInitialized}, nil
}

// ForceReinitialize wipes the knowledge base and rebuilds it from scratch
// regardless of its current state.
func (m *Manager) ForceReinitialize(ctx context.Context) (*Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	log.Printf("version: forced reinitialization, clearing knowledge base")
	if err := m.store.Clear(ctx); err != nil {
		return nil, fmt.Errorf("version: failed to clear: %w", err)
	}
	if err := m.versions.SaveVersion(ctx, types.VersionState{}); err != nil {
		return nil, fmt.Errorf("version: failed to reset state: %w", err)
	}

	return m.ingestAndRecord(ctx, OutcomeInitialized)
}

func (m *Manager) ingestAndRecord(ctx context.Context, outcome Outcome) (*Result, error) {
	ingestResult, err := m.run(ctx)
	if err != nil {
		return nil, fmt.Errorf("version: ingestion failed: %w", err)
	}

	state := types.VersionState{
		SchemaVersion:   m.schemaVersion,
		LastInitialized: m.now().UTC(),
	}
	if err := m.versions.SaveVersion(ctx, state); err != nil {
		return nil, fmt.Errorf("version: failed to record state: %w", err)
	}

	return &Result{Outcome: outcome, Ingest: ingestResult}, nil
}
