// Package database provides SQLite storage for posts.
package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteStore wraps the SQLite connection.
type SQLiteStore struct {
	postQueries
}

// Ensure SQLiteStore implements Store interface.
var _ Store = (*SQLiteStore)(nil)

// New opens or creates an SQLite database at the given path.
func New(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// A single connection serialises writers and keeps :memory: databases shared.
	conn.SetMaxOpenConns(1)
	// Enable WAL mode for better concurrency.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set wal mode: %w", err)
	}
	db := &SQLiteStore{postQueries{conn: conn, dialect: sqliteDialect}}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Close closes the database connection.
func (db *SQLiteStore) Close() error {
	return db.conn.Close()
}

// DatabaseType returns the database backend name.
func (db *SQLiteStore) DatabaseType() string {
	return "SQLite"
}

// SupportsHighConcurrency returns false for SQLite.
func (db *SQLiteStore) SupportsHighConcurrency() bool {
	return false
}

func (db *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS posts (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		posted_at DATETIME NOT NULL,
		content TEXT NOT NULL,
		author_username TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_posts_posted_at ON posts(posted_at DESC);
	CREATE INDEX IF NOT EXISTS idx_posts_author ON posts(author_username);
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	-- Default syndication interval (15 minutes minimum).
	INSERT OR IGNORE INTO settings (key, value) VALUES ('syndication_interval_minutes', '15');
	`
	_, err := db.conn.Exec(schema)
	return err
}
