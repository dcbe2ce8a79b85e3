// Package storage is the sqlite layer: a persistent response-cache tier
// that survives daemon restarts, and the metrics journal.
package storage

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure Go sqlite driver
)

// DB wraps the daemon's sqlite connection.
type DB struct {
	conn *sql.DB
	log  *slog.Logger
	path string
}

// Open opens or creates the database at <workspaceRoot>/.wisp/wisp.db.
func Open(workspaceRoot string, log *slog.Logger) (*DB, error) {
	dir := filepath.Join(workspaceRoot, ".wisp")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", dir, err)
	}
	dbPath := filepath.Join(dir, "wisp.db")

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		if _, err := conn.Exec(p); err != nil {
			conn.Close()
			return nil, fmt.Errorf("setting pragma: %w", err)
		}
	}

	db := &DB{conn: conn, log: log, path: dbPath}
	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, err
	}

	log.Debug("database open", "path", dbPath)
	return db, nil
}

// Close closes the connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Conn exposes the raw connection for components that own their own tables.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

func (db *DB) initSchema() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS response_cache (
			key TEXT NOT NULL,
			version INTEGER NOT NULL,
			value BLOB NOT NULL,
			expires_at TEXT NOT NULL,
			created_at TEXT NOT NULL,
			PRIMARY KEY (key, version)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_response_cache_expires
			ON response_cache (expires_at)`,
		`CREATE TABLE IF NOT EXISTS metrics (
			name TEXT PRIMARY KEY,
			value INTEGER NOT NULL,
			updated_at TEXT NOT NULL
		)`,
	}
	for _, stmt := range schema {
		if _, err := db.conn.Exec(stmt); err != nil {
			return fmt.Errorf("initializing schema: %w", err)
		}
	}
	return nil
}
