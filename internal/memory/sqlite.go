package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS memory_items (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	category TEXT NOT NULL,
	key TEXT NOT NULL,
	value TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	UNIQUE(category, key)
)`

// SQLite persists entries in a local database file.
type SQLite struct {
	conn   *sql.DB
	path   string
	logger *zap.Logger
}

// OpenSQLite opens or creates the database at path. Parent directories are
// created and WAL mode is enabled.
func OpenSQLite(ctx context.Context, path string, logger *zap.Logger) (*SQLite, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if _, err := conn.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := conn.ExecContext(ctx, sqliteSchema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("create memory_items table: %w", err)
	}

	logger.Info("sqlite memory opened", zap.String("path", path))
	return &SQLite{conn: conn, path: path, logger: logger}, nil
}

// Path returns the database file path.
func (s *SQLite) Path() string { return s.path }

func (s *SQLite) Add(ctx context.Context, category, key, value string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO memory_items (category, key, value, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(category, key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at`,
		category, key, value, now, now)
	if err != nil {
		return fmt.Errorf("store %s/%s: %w", category, key, err)
	}
	return nil
}

func (s *SQLite) Get(ctx context.Context, category, key string) (Item, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT category, key, value, created_at, updated_at
		FROM memory_items WHERE category = ? AND key = ?`, category, key)

	it, err := scanSQLiteItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Item{}, fmt.Errorf("%w: %s/%s", ErrNotFound, category, key)
	}
	if err != nil {
		return Item{}, fmt.Errorf("get %s/%s: %w", category, key, err)
	}
	return it, nil
}

func (s *SQLite) List(ctx context.Context, category string) ([]Item, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT category, key, value, created_at, updated_at
		FROM memory_items WHERE category = ?
		ORDER BY key`, category)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", category, err)
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		it, err := scanSQLiteItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", category, err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (s *SQLite) Close() error { return s.conn.Close() }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteItem(r rowScanner) (Item, error) {
	var it Item
	var created, updated string
	if err := r.Scan(&it.Category, &it.Key, &it.Value, &created, &updated); err != nil {
		return Item{}, err
	}
	it.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	it.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return it, nil
}
