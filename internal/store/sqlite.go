// Package store provides history.Store implementations: a SQLite database for
// the daemon and an in-memory store for tests and ephemeral runs.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"go.klb.dev/clipvault/internal/history"
	"go.klb.dev/clipvault/internal/logging"
)

const backendSQLite = "sqlite"

// SQLiteConfig configures the SQLite store.
type SQLiteConfig struct {
	// Path is the database file path. Parent directories are created.
	Path string

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// SQLite implements history.Store on a single SQLite file in WAL mode.
type SQLite struct {
	db        *sql.DB
	path      string
	mu        sync.RWMutex
	closeOnce sync.Once
	logger    *slog.Logger
}

// OpenSQLite opens (creating if needed) the database at cfg.Path and applies
// the schema.
func OpenSQLite(cfg SQLiteConfig) (*SQLite, error) {
	if cfg.Path == "" {
		return nil, history.NewStorageError(backendSQLite, "open", errors.New("db path cannot be empty"))
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}
	if dir := filepath.Dir(cfg.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, history.NewStorageError(backendSQLite, "mkdir", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(FULL)",
		cfg.Path, cfg.BusyTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, history.NewStorageError(backendSQLite, "open", err)
	}
	// One connection keeps every statement on the same session and makes
	// write ordering trivially serial.
	db.SetMaxOpenConns(1)

	s := &SQLite{
		db:     db,
		path:   cfg.Path,
		logger: logging.Component("store.sqlite"),
	}
	if err := s.initialize(); err != nil {
		_ = db.Close()
		return nil, err
	}

	s.logger.Info("history database opened", "path", cfg.Path)
	return s, nil
}

func (s *SQLite) initialize() error {
	if _, err := s.db.Exec(Schema); err != nil {
		return history.NewStorageError(backendSQLite, "create_schema", err)
	}
	if _, err := s.db.Exec(insertSchemaVersion, SchemaVersion); err != nil {
		return history.NewStorageError(backendSQLite, "insert_schema_version", err)
	}

	var version sql.NullInt64
	if err := s.db.QueryRow(getSchemaVersion).Scan(&version); err != nil {
		return history.NewStorageError(backendSQLite, "get_schema_version", err)
	}
	if version.Int64 != SchemaVersion {
		return history.NewStorageError(backendSQLite, "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version.Int64))
	}
	s.logger.Debug("schema version verified", "version", version.Int64)
	return nil
}

// Path returns the database file path.
func (s *SQLite) Path() string { return s.path }

// Insert stores item.
func (s *SQLite) Insert(ctx context.Context, item history.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, insertItem,
		item.ID, item.CreatedAt.UnixNano(), item.RawKind, item.Content)
	if err != nil {
		return history.NewStorageError(backendSQLite, "insert", err)
	}
	return nil
}

// Recent returns at most limit items, newest first.
func (s *SQLite) Recent(ctx context.Context, limit int) ([]history.Item, error) {
	if limit <= 0 {
		return []history.Item{}, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, selectRecent, limit)
	if err != nil {
		return nil, history.NewStorageError(backendSQLite, "recent", err)
	}
	return scanItems(rows, "recent")
}

// All returns every item, newest first.
func (s *SQLite) All(ctx context.Context) ([]history.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, selectAll)
	if err != nil {
		return nil, history.NewStorageError(backendSQLite, "all", err)
	}
	return scanItems(rows, "all")
}

// Get returns a single item.
func (s *SQLite) Get(ctx context.Context, id string) (history.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		it history.Item
		ts int64
	)
	err := s.db.QueryRowContext(ctx, selectByID, id).Scan(&it.ID, &ts, &it.RawKind, &it.Content)
	if errors.Is(err, sql.ErrNoRows) {
		return history.Item{}, history.ErrNotFound
	}
	if err != nil {
		return history.Item{}, history.NewStorageError(backendSQLite, "get", err)
	}
	it.CreatedAt = time.Unix(0, ts)
	return it, nil
}

// DeleteBefore removes items created strictly before cutoff.
func (s *SQLite) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, deleteBefore, cutoff.UnixNano())
	if err != nil {
		return 0, history.NewStorageError(backendSQLite, "delete_before", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, history.NewStorageError(backendSQLite, "delete_before", err)
	}
	return n, nil
}

// DeleteAll empties the items table.
func (s *SQLite) DeleteAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, deleteAll); err != nil {
		return history.NewStorageError(backendSQLite, "delete_all", err)
	}
	return nil
}

// Delete removes one item by id.
func (s *SQLite) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, deleteByID, id); err != nil {
		return history.NewStorageError(backendSQLite, "delete", err)
	}
	return nil
}

// Count returns the number of stored items.
func (s *SQLite) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	if err := s.db.QueryRowContext(ctx, countItems).Scan(&n); err != nil {
		return 0, history.NewStorageError(backendSQLite, "count", err)
	}
	return n, nil
}

// Close closes the database. Safe to call more than once.
func (s *SQLite) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		err = s.db.Close()
	})
	return err
}

func scanItems(rows *sql.Rows, op string) ([]history.Item, error) {
	defer rows.Close()

	items := []history.Item{}
	for rows.Next() {
		var (
			it history.Item
			ts int64
		)
		if err := rows.Scan(&it.ID, &ts, &it.RawKind, &it.Content); err != nil {
			return nil, history.NewStorageError(backendSQLite, op, err)
		}
		it.CreatedAt = time.Unix(0, ts)
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, history.NewStorageError(backendSQLite, op, err)
	}
	return items, nil
}
