package version

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fieldaid/fieldaid/internal/ingest"
	"github.com/fieldaid/fieldaid/internal/storage/sqlite"
	"github.com/fieldaid/fieldaid/pkg/types"
)

func openStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// countingRunner inserts n entries per run and counts invocations.
type countingRunner struct {
	store *sqlite.Store
	n     int
	runs  int
	err   error
}

func (r *countingRunner) run(ctx context.Context) (*ingest.Result, error) {
	r.runs++
	if r.err != nil {
		return nil, r.err
	}
	for i := 0; i < r.n; i++ {
		entry := &types.KnowledgeEntry{
			Title:     "entry",
			Text:      "text",
			Embedding: []float64{1, 0},
			Priority:  1,
		}
		if _, err := r.store.Insert(ctx, entry); err != nil {
			return nil, err
		}
	}
	return &ingest.Result{Added: r.n}, nil
}

func TestCheckAndInitializeFreshStore(t *testing.T) {
	store := openStore(t)
	runner := &countingRunner{store: store, n: 3}
	m := NewManager(store, store, runner.run)
	ctx := context.Background()

	result, err := m.CheckAndInitialize(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if result.Outcome != OutcomeInitialized {
		t.Errorf("outcome = %q", result.Outcome)
	}
	if result.Ingest == nil || result.Ingest.Added != 3 {
		t.Errorf("ingest result = %+v", result.Ingest)
	}

	state, err := store.LoadVersion(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if state.SchemaVersion != CurrentSchemaVersion {
		t.Errorf("schema version = %d", state.SchemaVersion)
	}
	if state.LastInitialized.IsZero() {
		t.Error("LastInitialized not recorded")
	}
}

func TestCheckAndInitializeIsIdempotent(t *testing.T) {
	store := openStore(t)
	runner := &countingRunner{store: store, n: 2}
	m := NewManager(store, store, runner.run)
	ctx := context.Background()

	if _, err := m.CheckAndInitialize(ctx); err != nil {
		t.Fatal(err)
	}
	result, err := m.CheckAndInitialize(ctx)
	if err != nil {
		t.Fatal(err)
	}

	if result.Outcome != OutcomeAlreadyInitialized {
		t.Errorf("second check outcome = %q", result.Outcome)
	}
	if runner.runs != 1 {
		t.Errorf("ingestion ran %d times, want 1", runner.runs)
	}
	count, _ := store.Count(ctx)
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
}

func TestCheckAndInitializeEmptyButVersioned(t *testing.T) {
	store := openStore(t)
	runner := &countingRunner{store: store, n: 2}
	m := NewManager(store, store, runner.run)
	ctx := context.Background()

	// Version recorded but every entry gone: re-ingest.
	if err := store.SaveVersion(ctx, types.VersionState{
		SchemaVersion:   CurrentSchemaVersion,
		LastInitialized: time.Now().UTC(),
	}); err != nil {
		t.Fatal(err)
	}

	result, err := m.CheckAndInitialize(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if result.Outcome != OutcomeInitialized {
		t.Errorf("outcome = %q", result.Outcome)
	}
	if runner.runs != 1 {
		t.Errorf("ingestion ran %d times", runner.runs)
	}
}

func TestCheckAndInitializeRefreshesStaleBase(t *testing.T) {
	store := openStore(t)
	runner := &countingRunner{store: store, n: 2}
	m := NewManager(store, store, runner.run)
	ctx := context.Background()

	if _, err := m.CheckAndInitialize(ctx); err != nil {
		t.Fatal(err)
	}

	// Jump past the staleness horizon.
	m.now = func() time.Time { return time.Now().Add(StaleAfter + time.Hour) }

	result, err := m.CheckAndInitialize(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if result.Outcome != OutcomeRefreshed {
		t.Errorf("outcome = %q", result.Outcome)
	}

	// Refresh re-ingests on top of existing entries without wiping.
	count, _ := store.Count(ctx)
	if count != 4 {
		t.Errorf("count after refresh = %d, want 4", count)
	}

	// The refreshed timestamp makes the next check a no-op.
	result, err = m.CheckAndInitialize(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if result.Outcome != OutcomeAlreadyInitialized {
		t.Errorf("post-refresh outcome = %q", result.Outcome)
	}
}

func TestCheckAndInitializeUpgradeClearsOldEntries(t *testing.T) {
	store := openStore(t)
	runner := &countingRunner{store: store, n: 2}
	m := NewManager(store, store, runner.run)
	ctx := context.Background()

	// A populated base recorded at the current schema version.
	if _, err := m.CheckAndInitialize(ctx); err != nil {
		t.Fatal(err)
	}

	// A schema bump must wipe the old entries before re-ingesting.
	m.schemaVersion = CurrentSchemaVersion + 1

	result, err := m.CheckAndInitialize(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if result.Outcome != OutcomeUpgraded {
		t.Errorf("outcome = %q", result.Outcome)
	}

	count, _ := store.Count(ctx)
	if int(count) != runner.n {
		t.Errorf("count = %d, want only the %d re-ingested entries", count, runner.n)
	}

	state, err := store.LoadVersion(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if state.SchemaVersion != CurrentSchemaVersion+1 {
		t.Errorf("recorded schema version = %d, want %d", state.SchemaVersion, CurrentSchemaVersion+1)
	}

	// A fresh install below version 1 has nothing to wipe and initializes
	// rather than upgrades.
	fresh := openStore(t)
	freshRunner := &countingRunner{store: fresh, n: 1}
	fm := NewManager(fresh, fresh, freshRunner.run)
	fm.schemaVersion = CurrentSchemaVersion + 1

	result, err = fm.CheckAndInitialize(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if result.Outcome != OutcomeInitialized {
		t.Errorf("fresh store outcome = %q", result.Outcome)
	}
}

func TestForceReinitialize(t *testing.T) {
	store := openStore(t)
	runner := &countingRunner{store: store, n: 3}
	m := NewManager(store, store, runner.run)
	ctx := context.Background()

	if _, err := m.CheckAndInitialize(ctx); err != nil {
		t.Fatal(err)
	}
	// Extra entry that a forced rebuild must wipe.
	if _, err := store.Insert(ctx, &types.KnowledgeEntry{
		Title: "stray", Text: "x", Embedding: []float64{1}, Priority: 3,
	}); err != nil {
		t.Fatal(err)
	}

	result, err := m.ForceReinitialize(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if result.Outcome != OutcomeInitialized {
		t.Errorf("outcome = %q", result.Outcome)
	}

	count, _ := store.Count(ctx)
	if int(count) != runner.n {
		t.Errorf("count = %d, want exactly the reingested %d", count, runner.n)
	}
}

func TestIngestionFailureLeavesStateUnrecorded(t *testing.T) {
	store := openStore(t)
	runner := &countingRunner{store: store, err: errors.New("sources unreadable")}
	m := NewManager(store, store, runner.run)
	ctx := context.Background()

	if _, err := m.CheckAndInitialize(ctx); err == nil {
		t.Fatal("expected ingestion error to propagate")
	}

	state, err := store.LoadVersion(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if state.SchemaVersion != 0 {
		t.Errorf("failed run must not record a version, got %d", state.SchemaVersion)
	}

	// The next check retries.
	runner.err = nil
	runner.n = 1
	result, err := m.CheckAndInitialize(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if result.Outcome != OutcomeInitialized {
		t.Errorf("retry outcome = %q", result.Outcome)
	}
}
