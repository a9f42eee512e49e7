package store

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

// Schema creates the history tables. seq records insertion order and breaks
// ties between items that share a timestamp.
const Schema = `
CREATE TABLE IF NOT EXISTS items (
    seq        INTEGER PRIMARY KEY AUTOINCREMENT,
    id         TEXT NOT NULL UNIQUE,
    created_at INTEGER NOT NULL, -- unix nanoseconds
    kind       TEXT NOT NULL,
    content    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_items_created ON items (created_at DESC, seq DESC);

CREATE TABLE IF NOT EXISTS schema_version (
    version    INTEGER PRIMARY KEY,
    applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`

const (
	insertSchemaVersion = `INSERT OR IGNORE INTO schema_version (version) VALUES (?)`
	getSchemaVersion    = `SELECT MAX(version) FROM schema_version`

	insertItem   = `INSERT INTO items (id, created_at, kind, content) VALUES (?, ?, ?, ?)`
	selectRecent = `SELECT id, created_at, kind, content FROM items ORDER BY created_at DESC, seq DESC LIMIT ?`
	selectAll    = `SELECT id, created_at, kind, content FROM items ORDER BY created_at DESC, seq DESC`
	selectByID   = `SELECT id, created_at, kind, content FROM items WHERE id = ?`
	deleteBefore = `DELETE FROM items WHERE created_at < ?`
	deleteAll    = `DELETE FROM items`
	deleteByID   = `DELETE FROM items WHERE id = ?`
	countItems   = `SELECT COUNT(*) FROM items`
)
