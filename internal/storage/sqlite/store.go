// Package sqlite implements the knowledge store on an embedded, CGO-free
// SQLite database (modernc.org/sqlite). This is the default backend: it
// works fully offline and needs no external process.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/fieldaid/fieldaid/internal/storage"
	"github.com/fieldaid/fieldaid/pkg/types"
)

// Settings keys used by the version store.
const (
	keySchemaVersion   = "schema_version"
	keyLastInitialized = "last_initialized_ms"
)

// Store implements storage.KnowledgeStore and storage.VersionStore on SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) a SQLite knowledge store at the given
// DSN. Use ":memory:" for an ephemeral store in tests.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open database: %w", err)
	}

	// SQLite only supports one concurrent writer. A single open connection
	// serialises writes and avoids SQLITE_BUSY under concurrent load; WAL
	// mode lets readers proceed without blocking the writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: failed to apply %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to create schema: %w", err)
	}

	return &Store{db: db}, nil
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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO entries (id, title, text, embedding, dimension, category,
			priority, keywords, source, language_code, field_suitable, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, entry.Title, entry.Text, encodeEmbedding(entry.Embedding), len(entry.Embedding),
		entry.Category, entry.Priority, entry.Keywords, entry.Source, entry.LanguageCode,
		boolToInt(entry.FieldSuitable), now)
	if err != nil {
		return "", fmt.Errorf("sqlite: failed to insert entry %q: %w", entry.Title, err)
	}

	entry.ID = id
	entry.LastUpdated = now
	return id, nil
}

// InsertBatch writes entries with per-entry outcomes. A failing entry is
// recorded in the result and never rejects its co-submitted entries.
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

// Query returns entries with priority <= MaxPriority and, when set, an
// exactly matching category.
func (s *Store) Query(ctx context.Context, filter storage.QueryFilter) ([]types.KnowledgeEntry, error) {
	query := `
		SELECT id, title, text, embedding, dimension, category, priority,
			keywords, source, language_code, field_suitable, last_updated
		FROM entries WHERE 1=1`
	var args []any

	if filter.MaxPriority > 0 {
		query += " AND priority <= ?"
		args = append(args, filter.MaxPriority)
	}
	if filter.Category != "" {
		query += " AND category = ?"
		args = append(args, filter.Category)
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// Count returns the number of stored entries.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM entries").Scan(&count); err != nil {
		return 0, fmt.Errorf("sqlite: failed to count entries: %w", err)
	}
	return count, nil
}

// All returns every stored entry ordered by ID.
func (s *Store) All(ctx context.Context) ([]types.KnowledgeEntry, error) {
	return s.Query(ctx, storage.QueryFilter{})
}

// Clear deletes all entries.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM entries"); err != nil {
		return fmt.Errorf("sqlite: failed to clear entries: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// LoadVersion reads the persisted version state from the settings table.
// Returns the zero state when the store has never been initialized.
func (s *Store) LoadVersion(ctx context.Context) (types.VersionState, error) {
	var state types.VersionState

	raw, err := s.getSetting(ctx, keySchemaVersion)
	if err != nil {
		return state, err
	}
	if raw != "" {
		v, convErr := strconv.Atoi(raw)
		if convErr != nil {
			return state, fmt.Errorf("sqlite: malformed %s value %q: %w", keySchemaVersion, raw, convErr)
		}
		state.SchemaVersion = v
	}

	raw, err = s.getSetting(ctx, keyLastInitialized)
	if err != nil {
		return state, err
	}
	if raw != "" {
		ms, convErr := strconv.ParseInt(raw, 10, 64)
		if convErr != nil {
			return state, fmt.Errorf("sqlite: malformed %s value %q: %w", keyLastInitialized, raw, convErr)
		}
		state.LastInitialized = time.UnixMilli(ms).UTC()
	}

	return state, nil
}

// SaveVersion persists the version state with upsert semantics.
func (s *Store) SaveVersion(ctx context.Context, state types.VersionState) error {
	if err := s.setSetting(ctx, keySchemaVersion, strconv.Itoa(state.SchemaVersion)); err != nil {
		return err
	}
	ms := int64(0)
	if !state.LastInitialized.IsZero() {
		ms = state.LastInitialized.UnixMilli()
	}
	return s.setSetting(ctx, keyLastInitialized, strconv.FormatInt(ms, 10))
}

// getSetting retrieves a settings value by key, empty string when absent.
func (s *Store) getSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("sqlite: failed to read setting %q: %w", key, err)
	}
	return value, nil
}

// setSetting writes a settings key-value pair with upsert semantics.
func (s *Store) setSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value)
		VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = CURRENT_TIMESTAMP
	`, key, value)
	if err != nil {
		return fmt.Errorf("sqlite: failed to write setting %q: %w", key, err)
	}
	return nil
}

// scanEntries reads entry rows, decoding the embedding BLOB per row.
func scanEntries(rows *sql.Rows) ([]types.KnowledgeEntry, error) {
	var entries []types.KnowledgeEntry
	for rows.Next() {
		var (
			entry         types.KnowledgeEntry
			blob          []byte
			dimension     int
			fieldSuitable int
		)
		if err := rows.Scan(&entry.ID, &entry.Title, &entry.Text, &blob, &dimension,
			&entry.Category, &entry.Priority, &entry.Keywords, &entry.Source,
			&entry.LanguageCode, &fieldSuitable, &entry.LastUpdated); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan entry: %w", err)
		}

		embedding, err := decodeEmbedding(blob, dimension)
		if err != nil {
			return nil, fmt.Errorf("sqlite: entry %s: %w", entry.ID, err)
		}
		entry.Embedding = embedding
		entry.FieldSuitable = fieldSuitable != 0
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: failed to iterate entries: %w", err)
	}
	return entries, nil
}

// encodeEmbedding serialises a vector as little-endian float64 bytes.
func encodeEmbedding(embedding []float64) []byte {
	buf := make([]byte, len(embedding)*8)
	for i, v := range embedding {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

// decodeEmbedding deserialises a vector, validating against its dimension.
func decodeEmbedding(buf []byte, dimension int) ([]float64, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("invalid embedding dimension %d", dimension)
	}
	if len(buf) != dimension*8 {
		return nil, fmt.Errorf("embedding blob size %d, want %d", len(buf), dimension*8)
	}
	embedding := make([]float64, dimension)
	for i := range embedding {
		embedding[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return embedding, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Compile-time assertions that Store satisfies both storage interfaces.
var _ storage.KnowledgeStore = (*Store)(nil)
var _ storage.VersionStore = (*Store)(nil)
