package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldaid/fieldaid/internal/retrieval"
	"github.com/fieldaid/fieldaid/internal/storage/sqlite"
	"github.com/fieldaid/fieldaid/internal/version"
	"github.com/fieldaid/fieldaid/pkg/types"
)

// vecEmbedder maps known texts to canned vectors and everything else to a
// default, so tests control similarity precisely.
type vecEmbedder struct {
	vectors map[string][]float64
	def     []float64
	fail    bool
}

func (v *vecEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	if v.fail {
		return nil, errors.New("embedder down")
	}
	if vec, ok := v.vectors[text]; ok {
		return vec, nil
	}
	return v.def, nil
}
func (v *vecEmbedder) Dimension() int { return 3 }
func (v *vecEmbedder) Model() string  { return "vec" }

func newTestEngine(t *testing.T, embedder *vecEmbedder, sourcesDir string) *KnowledgeEngine {
	t.Helper()
	store, err := sqlite.Open(":memory:")
	require.NoError(t, err)

	eng, err := New(store, store, embedder, Config{SourcesDir: sourcesDir, EmbedWorkers: 2})
	require.NoError(t, err)
	t.Cleanup(func() { eng.Close() })
	return eng
}

func writeSources(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	manifest := "sources:\n  - file: guide.json\n    format: json\n    category: first-aid\n    priority: 1\n    field_suitable: true\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sources.yaml"), []byte(manifest), 0o644))

	doc := `[{"title": "Bleeding", "text": "Apply direct pressure."}, {"title": "Burns", "text": "Cool with running water."}]`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "guide.json"), []byte(doc), 0o644))
	return dir
}

func TestInitializeIfNeeded(t *testing.T) {
	embedder := &vecEmbedder{def: []float64{1, 0, 0}}
	eng := newTestEngine(t, embedder, writeSources(t))
	ctx := context.Background()

	result, err := eng.InitializeIfNeeded(ctx)
	require.NoError(t, err)
	assert.Equal(t, version.OutcomeInitialized, result.Outcome)
	require.NotNil(t, result.Ingest)
	assert.Equal(t, 2, result.Ingest.Added)

	// Second call is a no-op.
	result, err = eng.InitializeIfNeeded(ctx)
	require.NoError(t, err)
	assert.Equal(t, version.OutcomeAlreadyInitialized, result.Outcome)
}

func TestInitializeSeedsWhenNoManifest(t *testing.T) {
	embedder := &vecEmbedder{def: []float64{1, 0, 0}}
	eng := newTestEngine(t, embedder, t.TempDir())
	ctx := context.Background()

	result, err := eng.InitializeIfNeeded(ctx)
	require.NoError(t, err)
	require.NotNil(t, result.Ingest)
	assert.Greater(t, result.Ingest.Added, 0, "seed fallback must populate the base")

	stats, err := eng.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, result.Ingest.Added, stats.TotalEntries)
}

func TestForceReinitialize(t *testing.T) {
	embedder := &vecEmbedder{def: []float64{1, 0, 0}}
	eng := newTestEngine(t, embedder, writeSources(t))
	ctx := context.Background()

	_, err := eng.InitializeIfNeeded(ctx)
	require.NoError(t, err)

	_, err = eng.AddEntry(ctx, &types.KnowledgeEntry{Title: "Extra", Text: "extra text", Priority: 3})
	require.NoError(t, err)

	result, err := eng.ForceReinitialize(ctx)
	require.NoError(t, err)
	assert.Equal(t, version.OutcomeInitialized, result.Outcome)

	stats, err := eng.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalEntries, "rebuild contains only manifest entries")
}

func TestSearchOutcomes(t *testing.T) {
	embedder := &vecEmbedder{
		def: []float64{1, 0, 0},
		vectors: map[string][]float64{
			"how to stop bleeding": {1, 0, 0},
			"unrelated topic":      {0, 0, 1},
		},
	}
	eng := newTestEngine(t, embedder, writeSources(t))
	ctx := context.Background()

	_, err := eng.InitializeIfNeeded(ctx)
	require.NoError(t, err)

	found, err := eng.Search(ctx, "how to stop bleeding", retrieval.Options{})
	require.NoError(t, err)
	assert.Equal(t, SearchFound, found.Kind)
	assert.NotEmpty(t, found.Matches)

	none, err := eng.Search(ctx, "unrelated topic", retrieval.Options{})
	require.NoError(t, err)
	assert.Equal(t, SearchNoResults, none.Kind)
	assert.Empty(t, none.Matches)

	_, err = eng.Search(ctx, "", retrieval.Options{})
	assert.ErrorIs(t, err, retrieval.ErrBlankQuery)
}

func TestAddEntryEmbedsWhenMissing(t *testing.T) {
	embedder := &vecEmbedder{def: []float64{0, 1, 0}}
	eng := newTestEngine(t, embedder, t.TempDir())
	ctx := context.Background()

	entry := &types.KnowledgeEntry{Title: "Snakebite", Text: "Keep the limb still.", Priority: 1}
	id, err := eng.AddEntry(ctx, entry)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, []float64{0, 1, 0}, entry.Embedding)

	_, err = eng.AddEntry(ctx, &types.KnowledgeEntry{Title: "Blank", Text: "   "})
	assert.Error(t, err)
}

func TestAddEntryBatchPartialFailure(t *testing.T) {
	embedder := &vecEmbedder{def: []float64{1, 0, 0}}
	eng := newTestEngine(t, embedder, t.TempDir())
	ctx := context.Background()

	entries := []*types.KnowledgeEntry{
		{Title: "Good", Text: "usable text", Priority: 2},
		{Title: "Blank", Text: "  ", Priority: 2},
		{Title: "AlsoGood", Text: "more usable text", Priority: 2},
	}

	result, err := eng.AddEntryBatch(ctx, entries)
	require.NoError(t, err)
	assert.Len(t, result.IDs, 2)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "Blank", result.Failures[0].Title)
	assert.Len(t, result.IDs, len(entries)-len(result.Failures))
}

func TestStatistics(t *testing.T) {
	embedder := &vecEmbedder{def: []float64{1, 0, 0}}
	eng := newTestEngine(t, embedder, t.TempDir())
	ctx := context.Background()

	for _, e := range []*types.KnowledgeEntry{
		{Title: "A", Text: "a", Category: "first-aid", Priority: 1, LanguageCode: "en"},
		{Title: "B", Text: "b", Category: "first-aid", Priority: 2, LanguageCode: "en"},
		{Title: "C", Text: "c", Category: "survival", Priority: 1, LanguageCode: "es"},
	} {
		_, err := eng.AddEntry(ctx, e)
		require.NoError(t, err)
	}

	stats, err := eng.Statistics(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.TotalEntries)
	assert.Equal(t, 2, stats.CategoryCounts["first-aid"])
	assert.Equal(t, 1, stats.CategoryCounts["survival"])
	assert.Equal(t, 2, stats.PriorityCounts[1])
	assert.Equal(t, 1, stats.PriorityCounts[2])
	assert.Equal(t, 2, stats.LanguageCounts["en"])
	assert.Equal(t, 1, stats.LanguageCounts["es"])

	total := 0
	for _, n := range stats.CategoryCounts {
		total += n
	}
	assert.Equal(t, stats.TotalEntries, total, "category counts sum to the total")
}

func TestAddDocument(t *testing.T) {
	embedder := &vecEmbedder{def: []float64{1, 0, 0}}
	eng := newTestEngine(t, embedder, t.TempDir())
	ctx := context.Background()

	doc := "# Frostbite\nRewarm gently in lukewarm water.\n"
	result, err := eng.AddDocument(ctx, strings.NewReader(doc), types.DocumentMetadata{
		Source: "frostbite.md", Format: types.FormatMarkdown, Category: "first-aid", Priority: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.EntriesAdded)

	stats, err := eng.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalEntries)
}
