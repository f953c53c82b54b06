// Package postgres implements the knowledge store on PostgreSQL for
// deployments where several workstations share one knowledge base. When the
// pgvector extension is installed, embeddings are mirrored into a vector
// column so candidate retrieval can use the native distance operator.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/fieldaid/fieldaid/internal/storage"
	"github.com/fieldaid/fieldaid/pkg/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS entries (
    id             TEXT PRIMARY KEY,
    title          TEXT NOT NULL,
    text           TEXT NOT NULL,
    embedding      DOUBLE PRECISION[] NOT NULL,
    category       TEXT NOT NULL DEFAULT '',
    priority       INTEGER NOT NULL DEFAULT 3,
    keywords       TEXT NOT NULL DEFAULT '',
    source         TEXT NOT NULL DEFAULT '',
    language_code  TEXT NOT NULL DEFAULT '',
    field_suitable BOOLEAN NOT NULL DEFAULT FALSE,
    last_updated   TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_entries_priority ON entries(priority);
CREATE INDEX IF NOT EXISTS idx_entries_category ON entries(category);

CREATE TABLE IF NOT EXISTS settings (
    key        TEXT PRIMARY KEY,
    value      TEXT NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// Store implements storage.KnowledgeStore and storage.VersionStore on
// PostgreSQL, with optional pgvector acceleration.
type Store struct {
	db                *sql.DB
	pgvectorAvailable bool
}

// Open connects to PostgreSQL, creates the schema, and probes for the
// pgvector extension. The extension is optional: without it the store is
// fully functional and candidate scoring happens in process.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to open connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: failed to ping: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: failed to create schema: %w", err)
	}

	s := &Store{db: db}

	var available bool
	err = db.QueryRow("SELECT EXISTS (SELECT 1 FROM pg_extension WHERE extname = 'vector')").Scan(&available)
	if err == nil && available {
		// The vector column is typed without a dimension so one schema
		// serves embedders of any declared dimensionality.
		if _, err := db.Exec("ALTER TABLE entries ADD COLUMN IF NOT EXISTS embedding_vec vector"); err == nil {
			s.pgvectorAvailable = true
		}
	}

	return s, nil
}

// PgvectorAvailable reports whether the pgvector fast path is active.
func (s *Store) PgvectorAvailable() bool {
	return s.pgvectorAvailable
}

// Insert writes one entry and returns its store-assigned ID.
func (s *Store) Insert(ctx context.Context, entry *types.KnowledgeEntry) (string, error) {
	if entry == nil {
		return "", fmt.Errorf("%w: entry is nil", storage.ErrInvalidInput)
	}
	if len(entry.Embedding) == 0 {
		return "", fmt.Errorf("%w: entry %q has no embedding", storage.ErrInvalidInput, entry.Title)
	}

	id := entry.ID
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now().UTC()

	if s.pgvectorAvailable {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO entries (id, title, text, embedding, embedding_vec, category,
				priority, keywords, source, language_code, field_suitable, last_updated)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		`, id, entry.Title, entry.Text, pq.Array(entry.Embedding), toVector(entry.Embedding),
			entry.Category, entry.Priority, entry.Keywords, entry.Source, entry.LanguageCode,
			entry.FieldSuitable, now)
		if err != nil {
			return "", fmt.Errorf("postgres: failed to insert entry %q: %w", entry.Title, err)
		}
	} else {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO entries (id, title, text, embedding, category,
				priority, keywords, source, language_code, field_suitable, last_updated)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`, id, entry.Title, entry.Text, pq.Array(entry.Embedding),
			entry.Category, entry.Priority, entry.Keywords, entry.Source, entry.LanguageCode,
			entry.FieldSuitable, now)
		if err != nil {
			return "", fmt.Errorf("postgres: failed to insert entry %q: %w", entry.Title, err)
		}
	}

	entry.ID = id
	entry.LastUpdated = now
	return id, nil
}

// InsertBatch writes entries with per-entry outcomes.
func (s *Store) InsertBatch(ctx context.Context, entries []*types.KnowledgeEntry) (*storage.BatchResult, error) {
	result := &storage.BatchResult{}
	for _, entry := range entries {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		id, err := s.Insert(ctx, entry)
		if err != nil {
			title := ""
			if entry != nil {
				title = entry.Title
			}
			result.Failures = append(result.Failures, storage.EntryFailure{Title: title, Err: err})
			continue
		}
		result.IDs = append(result.IDs, id)
	}
	return result, nil
}

// Query returns entries matching the filter, ordered by ID.
func (s *Store) Query(ctx context.Context, filter storage.QueryFilter) ([]types.KnowledgeEntry, error) {
	query := selectColumns + " FROM entries WHERE 1=1"
	var args []any

	if filter.MaxPriority > 0 {
		args = append(args, filter.MaxPriority)
		query += " AND priority <= $" + strconv.Itoa(len(args))
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		query += " AND category = $" + strconv.Itoa(len(args))
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// Nearest returns up to limit filtered entries ordered by ascending cosine
// distance to the given embedding, using the pgvector <=> operator. It
// implements storage.VectorSearcher only when pgvector is active; callers
// must check PgvectorAvailable or fall back on error.
func (s *Store) Nearest(ctx context.Context, embedding []float64, filter storage.QueryFilter, limit int) ([]types.KnowledgeEntry, error) {
	if !s.pgvectorAvailable {
		return nil, fmt.Errorf("postgres: pgvector extension not available")
	}
	if limit <= 0 {
		limit = 50
	}

	args := []any{toVector(embedding)}
	query := selectColumns + " FROM entries WHERE embedding_vec IS NOT NULL"

	if filter.MaxPriority > 0 {
		args = append(args, filter.MaxPriority)
		query += " AND priority <= $" + strconv.Itoa(len(args))
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		query += " AND category = $" + strconv.Itoa(len(args))
	}
	args = append(args, limit)
	query += " ORDER BY embedding_vec <=> $1 LIMIT $" + strconv.Itoa(len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed vector search: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// Count returns the number of stored entries.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM entries").Scan(&count); err != nil {
		return 0, fmt.Errorf("postgres: failed to count entries: %w", err)
	}
	return count, nil
}

// All returns every stored entry.
func (s *Store) All(ctx context.Context) ([]types.KnowledgeEntry, error) {
	return s.Query(ctx, storage.QueryFilter{})
}

// Clear deletes all entries.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM entries"); err != nil {
		return fmt.Errorf("postgres: failed to clear entries: %w", err)
	}
	return nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// LoadVersion reads the persisted version state from the settings table.
func (s *Store) LoadVersion(ctx context.Context) (types.VersionState, error) {
	var state types.VersionState

	rows, err := s.db.QueryContext(ctx,
		"SELECT key, value FROM settings WHERE key IN ('schema_version', 'last_initialized_ms')")
	if err != nil {
		return state, fmt.Errorf("postgres: failed to read version state: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return state, fmt.Errorf("postgres: failed to scan setting: %w", err)
		}
		switch key {
		case "schema_version":
			v, convErr := strconv.Atoi(value)
			if convErr != nil {
				return state, fmt.Errorf("postgres: malformed schema_version %q: %w", value, convErr)
			}
			state.SchemaVersion = v
		case "last_initialized_ms":
			ms, convErr := strconv.ParseInt(value, 10, 64)
			if convErr != nil {
				return state, fmt.Errorf("postgres: malformed last_initialized_ms %q: %w", value, convErr)
			}
			if ms > 0 {
				state.LastInitialized = time.UnixMilli(ms).UTC()
			}
		}
	}
	return state, rows.Err()
}

// SaveVersion persists the version state with upsert semantics.
func (s *Store) SaveVersion(ctx context.Context, state types.VersionState) error {
	ms := int64(0)
	if !state.LastInitialized.IsZero() {
		ms = state.LastInitialized.UnixMilli()
	}
	for key, value := range map[string]string{
		"schema_version":      strconv.Itoa(state.SchemaVersion),
		"last_initialized_ms": strconv.FormatInt(ms, 10),
	} {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO settings (key, value)
			VALUES ($1, $2)
			ON CONFLICT (key) DO UPDATE SET
				value = EXCLUDED.value,
				updated_at = NOW()
		`, key, value)
		if err != nil {
			return fmt.Errorf("postgres: failed to write setting %q: %w", key, err)
		}
	}
	return nil
}

const selectColumns = `SELECT id, title, text, embedding, category, priority,
	keywords, source, language_code, field_suitable, last_updated`

// scanEntries reads entry rows from either Query or Nearest.
func scanEntries(rows *sql.Rows) ([]types.KnowledgeEntry, error) {
	var entries []types.KnowledgeEntry
	for rows.Next() {
		var entry types.KnowledgeEntry
		var embedding pq.Float64Array
		if err := rows.Scan(&entry.ID, &entry.Title, &entry.Text, &embedding,
			&entry.Category, &entry.Priority, &entry.Keywords, &entry.Source,
			&entry.LanguageCode, &entry.FieldSuitable, &entry.LastUpdated); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan entry: %w", err)
		}
		entry.Embedding = []float64(embedding)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: failed to iterate entries: %w", err)
	}
	return entries, nil
}

// toVector converts a float64 embedding to the float32 pgvector wire type.
func toVector(embedding []float64) pgvector.Vector {
	values := make([]float32, len(embedding))
	for i, v := range embedding {
		values[i] = float32(v)
	}
	return pgvector.NewVector(values)
}

// Compile-time assertions for the storage interfaces.
var _ storage.KnowledgeStore = (*Store)(nil)
var _ storage.VersionStore = (*Store)(nil)
var _ storage.VectorSearcher = (*Store)(nil)
