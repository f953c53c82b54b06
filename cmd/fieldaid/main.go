// Command fieldaid manages and queries the offline emergency reference
// knowledge base.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/fieldaid/fieldaid/internal/config"
	"github.com/fieldaid/fieldaid/internal/embedding"
	"github.com/fieldaid/fieldaid/internal/engine"
	"github.com/fieldaid/fieldaid/internal/ingest"
	"github.com/fieldaid/fieldaid/internal/notify"
	"github.com/fieldaid/fieldaid/internal/retrieval"
	"github.com/fieldaid/fieldaid/internal/storage"
	"github.com/fieldaid/fieldaid/internal/storage/postgres"
	"github.com/fieldaid/fieldaid/internal/storage/sqlite"
	"github.com/fieldaid/fieldaid/internal/version"
	"github.com/fieldaid/fieldaid/pkg/types"
)

func main() {
	log.SetFlags(log.LstdFlags)
	log.SetOutput(os.Stderr)

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1], os.Args[2:]); err != nil {
		log.Fatalf("fieldaid: %v", err)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `usage: fieldaid <command> [flags]

commands:
  init     initialize the knowledge base if needed
  reinit   wipe and rebuild the knowledge base
  search   query the knowledge base
  add      add a single entry from flags
  import   ingest one document file
  stats    print corpus statistics
  watch    ingest documents dropped into a directory
`)
}

func run(ctx context.Context, command string, args []string) error {
	cfg := config.Load()

	eng, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	switch command {
	case "init":
		return cmdInit(ctx, eng)
	case "reinit":
		return cmdReinit(ctx, eng)
	case "search":
		return cmdSearch(ctx, eng, args)
	case "add":
		return cmdAdd(ctx, eng, args)
	case "import":
		return cmdImport(ctx, eng, args)
	case "stats":
		return cmdStats(ctx, eng)
	case "watch":
		return cmdWatch(ctx, eng, cfg)
	default:
		usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func buildEngine(cfg *config.Config) (*engine.KnowledgeEngine, error) {
	var (
		store    storage.KnowledgeStore
		versions storage.VersionStore
	)
	switch cfg.Storage.Engine {
	case "postgres":
		pg, err := postgres.Open(cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, err
		}
		store, versions = pg, pg
	default:
		if err := os.MkdirAll(cfg.Storage.DataPath, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		sq, err := sqlite.Open(filepath.Join(cfg.Storage.DataPath, "fieldaid.db"))
		if err != nil {
			return nil, err
		}
		store, versions = sq, sq
	}

	embedder, err := embedding.New(embedding.FactoryConfig{
		Provider:          cfg.Embedder.Provider,
		OllamaURL:         cfg.Embedder.OllamaURL,
		OllamaModel:       cfg.Embedder.OllamaModel,
		OllamaTimeout:     cfg.Embedder.OllamaTimeout,
		RequestsPerSecond: cfg.Embedder.RequestsPerSecond,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	return engine.New(store, versions, embedder, engine.Config{
		SourcesDir:   cfg.Ingest.SourcesDir,
		EmbedWorkers: cfg.Ingest.EmbedWorkers,
	})
}

func cmdInit(ctx context.Context, eng *engine.KnowledgeEngine) error {
	result, err := eng.InitializeIfNeeded(ctx)
	if err != nil {
		return err
	}
	printInitResult(result.Outcome, result.Ingest)
	return nil
}

func cmdReinit(ctx context.Context, eng *engine.KnowledgeEngine) error {
	result, err := eng.ForceReinitialize(ctx)
	if err != nil {
		return err
	}
	printInitResult(result.Outcome, result.Ingest)
	return nil
}

func printInitResult(outcome version.Outcome, ing *ingest.Result) {
	fmt.Printf("outcome: %s\n", outcome)
	if ing == nil {
		return
	}
	fmt.Printf("added %d entries from %d sources in %s\n", ing.Added, ing.SourcesProcessed, ing.Elapsed)
	for _, msg := range ing.Errors {
		fmt.Printf("  warning: %s\n", msg)
	}
}

func cmdSearch(ctx context.Context, eng *engine.KnowledgeEngine, args []string) error {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	limit := fs.Int("limit", retrieval.DefaultLimit, "maximum matches to return")
	maxPriority := fs.Int("max-priority", retrieval.DefaultMaxPriority, "admit entries up to this priority tier")
	category := fs.String("category", "", "restrict to one category")
	fs.Parse(args)

	if fs.NArg() == 0 {
		return fmt.Errorf("search: missing query")
	}
	query := fs.Arg(0)

	outcome, err := eng.Search(ctx, query, retrieval.Options{
		Limit:       *limit,
		MaxPriority: *maxPriority,
		Category:    *category,
	})
	if err != nil {
		return err
	}

	if outcome.Kind == engine.SearchNoResults {
		fmt.Println("no relevant entries found")
		return nil
	}
	for i, match := range outcome.Matches {
		fmt.Printf("%d. %s (relevance %.3f, similarity %.3f, priority %d)\n",
			i+1, match.Entry.Title, match.Relevance, match.Similarity, match.Entry.Priority)
		fmt.Printf("   %s\n", match.Entry.Text)
	}
	return nil
}

func cmdAdd(ctx context.Context, eng *engine.KnowledgeEngine, args []string) error {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	title := fs.String("title", "", "entry title")
	text := fs.String("text", "", "entry text")
	category := fs.String("category", "general", "entry category")
	priority := fs.Int("priority", 3, "entry priority, 1 highest to 5 lowest")
	language := fs.String("language", "en", "entry language code")
	field := fs.Bool("field", true, "entry is usable in field conditions")
	fs.Parse(args)

	id, err := eng.AddEntry(ctx, &types.KnowledgeEntry{
		Title:         *title,
		Text:          *text,
		Category:      *category,
		Priority:      *priority,
		LanguageCode:  *language,
		FieldSuitable: *field,
	})
	if err != nil {
		return err
	}
	fmt.Printf("added entry %s\n", id)
	return nil
}

func cmdImport(ctx context.Context, eng *engine.KnowledgeEngine, args []string) error {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	format := fs.String("format", "", "document format, inferred from the extension when empty")
	category := fs.String("category", "general", "category for produced entries")
	priority := fs.Int("priority", 3, "priority for produced entries")
	language := fs.String("language", "en", "language code for produced entries")
	chunking := fs.String("chunking", "", "chunking strategy for text formats")
	field := fs.Bool("field", true, "entries are usable in field conditions")
	fs.Parse(args)

	if fs.NArg() == 0 {
		return fmt.Errorf("import: missing file")
	}
	path := fs.Arg(0)

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	name := filepath.Base(path)
	docFormat := types.DocumentFormat(*format)
	if docFormat == "" {
		docFormat = ingest.InferFormat(name)
	}

	result, err := eng.AddDocument(ctx, f, types.DocumentMetadata{
		Source:        name,
		Format:        docFormat,
		Category:      *category,
		Priority:      *priority,
		LanguageCode:  *language,
		Chunking:      types.ChunkingStrategy(*chunking),
		FieldSuitable: *field,
	})
	if err != nil {
		return err
	}
	fmt.Printf("imported %s: %d entries\n", result.Source, result.EntriesAdded)
	return nil
}

func cmdStats(ctx context.Context, eng *engine.KnowledgeEngine) error {
	stats, err := eng.Statistics(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("total entries: %d\n", stats.TotalEntries)

	fmt.Println("by category:")
	for _, category := range sortedKeys(stats.CategoryCounts) {
		fmt.Printf("  %-20s %d\n", category, stats.CategoryCounts[category])
	}

	fmt.Println("by priority:")
	for p := 1; p <= 5; p++ {
		if n, ok := stats.PriorityCounts[p]; ok {
			fmt.Printf("  %-20d %d\n", p, n)
		}
	}

	fmt.Println("by language:")
	for _, lang := range sortedKeys(stats.LanguageCounts) {
		fmt.Printf("  %-20s %d\n", lang, stats.LanguageCounts[lang])
	}
	return nil
}

func cmdWatch(ctx context.Context, eng *engine.KnowledgeEngine, cfg *config.Config) error {
	dir := cfg.Ingest.WatchDir
	if dir == "" {
		return fmt.Errorf("watch: FIELDAID_WATCH_DIR is not set")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("watch: failed to create %q: %w", dir, err)
	}

	watcher, err := notify.New(dir, func(ctx context.Context, f *os.File, meta types.DocumentMetadata) (*ingest.AddResult, error) {
		return eng.AddDocument(ctx, f, meta)
	})
	if err != nil {
		return err
	}

	log.Printf("watching %q for documents", dir)
	if err := watcher.Run(ctx); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
