// Package config provides configuration management for fieldaid.
// Settings load from environment variables with the FIELDAID_ prefix and
// every option has a sensible offline-first default.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the fieldaid knowledge base.
type Config struct {
	Storage  StorageConfig
	Embedder EmbedderConfig
	Ingest   IngestConfig
}

// StorageConfig selects and configures the persistence backend.
type StorageConfig struct {
	// Engine is the storage backend: sqlite or postgres (default: sqlite).
	Engine string

	// DataPath is the directory holding the SQLite database (default: ./data).
	DataPath string

	// PostgresDSN is the connection string when Engine is postgres.
	PostgresDSN string
}

// EmbedderConfig selects and configures the embedding provider.
type EmbedderConfig struct {
	// Provider is the embedding backend: ollama or tfidf (default: tfidf,
	// so a fresh install works with no model runtime present).
	Provider string

	// OllamaURL is the Ollama API base URL (default: http://localhost:11434).
	OllamaURL string

	// OllamaModel is the embedding model name (default: nomic-embed-text).
	OllamaModel string

	// OllamaTimeout is the per-request timeout (default: 10s).
	OllamaTimeout time.Duration

	// RequestsPerSecond caps embedding request rate (default: 10).
	RequestsPerSecond float64
}

// IngestConfig tunes the ingestion pipeline.
type IngestConfig struct {
	// SourcesDir is the directory holding source documents and the
	// sources.yaml manifest (default: ./sources).
	SourcesDir string

	// WatchDir, when non-empty, is a drop-in directory watched for new
	// documents to ingest at runtime (default: disabled).
	WatchDir string

	// EmbedWorkers is the number of concurrent embedding workers during
	// ingestion (default: 4).
	EmbedWorkers int
}

// Load builds a Config from environment variables and defaults.
func Load() *Config {
	return &Config{
		Storage: StorageConfig{
			Engine:      getEnv("FIELDAID_STORAGE_ENGINE", "sqlite"),
			DataPath:    getEnv("FIELDAID_DATA_PATH", "./data"),
			PostgresDSN: getEnv("FIELDAID_POSTGRES_DSN", ""),
		},
		Embedder: EmbedderConfig{
			Provider:          getEnv("FIELDAID_EMBEDDER", "tfidf"),
			OllamaURL:         getEnv("FIELDAID_OLLAMA_URL", "http://localhost:11434"),
			OllamaModel:       getEnv("FIELDAID_EMBEDDING_MODEL", "nomic-embed-text"),
			OllamaTimeout:     getEnvDuration("FIELDAID_OLLAMA_TIMEOUT", 10*time.Second),
			RequestsPerSecond: getEnvFloat("FIELDAID_EMBED_RPS", 10),
		},
		Ingest: IngestConfig{
			SourcesDir:   getEnv("FIELDAID_SOURCES_DIR", "./sources"),
			WatchDir:     getEnv("FIELDAID_WATCH_DIR", ""),
			EmbedWorkers: getEnvInt("FIELDAID_EMBED_WORKERS", 4),
		},
	}
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default
// value, also when the variable cannot be parsed.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns a default
// value, also when the variable cannot be parsed.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration retrieves a duration environment variable ("10s", "2m") or
// returns a default value, also when the variable cannot be parsed.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
