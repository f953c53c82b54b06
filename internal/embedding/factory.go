package embedding

import (
	"context"
	"fmt"
	"time"
)

// FactoryConfig selects and configures an embedding provider. It mirrors
// the fields of config.EmbedderConfig without importing it, so the package
// stays usable from tests with hand-built configs.
type FactoryConfig struct {
	Provider          string
	OllamaURL         string
	OllamaModel       string
	OllamaTimeout     time.Duration
	RequestsPerSecond float64
}

// New creates the embedder for the configured provider.
//
// The ollama embedder comes wrapped in a Lazy guard so the model runtime is
// probed on first embed rather than at startup; commands that never embed
// (stats, search against a warm cache) work with Ollama down. The tfidf
// embedder is returned unprepared; callers that can supply a corpus (the
// ingestion orchestrator, the retrieval engine) prepare it via the
// CorpusPreparer capability before first use.
func New(cfg FactoryConfig) (Embedder, error) {
	switch cfg.Provider {
	case "ollama":
		ollamaCfg := OllamaConfig{
			BaseURL:           cfg.OllamaURL,
			Model:             cfg.OllamaModel,
			Timeout:           cfg.OllamaTimeout,
			RequestsPerSecond: cfg.RequestsPerSecond,
		}
		return NewLazy(func(ctx context.Context) (Embedder, error) {
			client := NewOllamaClient(ollamaCfg)
			if err := client.HealthCheck(ctx); err != nil {
				return nil, err
			}
			return client, nil
		}), nil
	case "tfidf", "":
		return NewTFIDF(), nil
	default:
		return nil, fmt.Errorf("embedding: unsupported provider %q", cfg.Provider)
	}
}
