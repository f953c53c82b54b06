package sqlite

// Schema is the complete SQLite schema for the knowledge base. It is applied
// idempotently on every open.
//
// Embeddings live inline on the entries table as little-endian float64 BLOBs;
// at on-device corpus sizes (hundreds to low thousands of entries) a separate
// embeddings table buys nothing and costs a join.
const Schema = `
CREATE TABLE IF NOT EXISTS entries (
    id             TEXT PRIMARY KEY,
    title          TEXT NOT NULL,
    text           TEXT NOT NULL,
    embedding      BLOB NOT NULL,
    dimension      INTEGER NOT NULL,
    category       TEXT NOT NULL DEFAULT '',
    priority       INTEGER NOT NULL DEFAULT 3,
    keywords       TEXT NOT NULL DEFAULT '',
    source         TEXT NOT NULL DEFAULT '',
    language_code  TEXT NOT NULL DEFAULT '',
    field_suitable INTEGER NOT NULL DEFAULT 0,
    last_updated   TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_entries_priority ON entries(priority);
CREATE INDEX IF NOT EXISTS idx_entries_category ON entries(category);
CREATE INDEX IF NOT EXISTS idx_entries_language ON entries(language_code);

CREATE TABLE IF NOT EXISTS settings (
    key        TEXT PRIMARY KEY,
    value      TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`
