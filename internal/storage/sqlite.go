package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const createKVTable = `
CREATE TABLE IF NOT EXISTS kv (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	created_at DATETIME NOT NULL
);
`

// SQLiteStore keeps key-value pairs in a single sqlite table. Keys
// enumerate in insertion (rowid) order.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (or creates) a sqlite database at the given path,
// ensuring its directory and the kv table exist.
func OpenSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	// sqlite serialises writers anyway; conns borrow per statement so Ping
	// never waits on a held conn
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.ExecContext(ctx, createKVTable); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create kv table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Acquire(ctx context.Context) (Conn, error) {
	if err := s.db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("sqlite acquire: %w", err)
	}
	return &sqliteConn{db: s.db}, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// sqliteConn runs each statement on the shared pool.
type sqliteConn struct {
	db *sql.DB
}

func (c *sqliteConn) Set(ctx context.Context, key, value string) error {
	_, err := c.db.ExecContext(ctx, `
INSERT INTO kv (key, value, created_at)
VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key,
		value,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert key: %w", err)
	}
	return nil
}

func (c *sqliteConn) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := c.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrKeyNotFound
	}
	if err != nil {
		return "", fmt.Errorf("select key: %w", err)
	}
	return value, nil
}

func (c *sqliteConn) Keys(ctx context.Context, limit int) ([]string, error) {
	keys := keyBuf(limit)
	if limit <= 0 {
		return keys, nil
	}
	rows, err := c.db.QueryContext(ctx, `SELECT key FROM kv ORDER BY rowid LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (c *sqliteConn) Close() error {
	return nil
}

var _ Store = (*SQLiteStore)(nil)
