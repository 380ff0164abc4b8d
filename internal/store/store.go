// Package store persists actions and profiles in SQLite and sweeps
// expired actions on a schedule.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Options configures the SQLite store.
type Options struct {
	Path        string
	BusyTimeout time.Duration
	WALMode     bool
}

// DefaultOptions returns the settings used when a field is zero.
func DefaultOptions(path string) Options {
	return Options{
		Path:        path,
		BusyTimeout: 5 * time.Second,
		WALMode:     true,
	}
}

// Store wraps the SQLite handle shared by the action and profile stores.
type Store struct {
	db *sql.DB
}

// Open creates the database file if needed, applies pragmas, and ensures
// the schema exists.
func Open(opts Options) (*Store, error) {
	if opts.BusyTimeout == 0 {
		opts.BusyTimeout = 5 * time.Second
	}
	if err := ensureDir(opts.Path); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", opts.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", opts.BusyTimeout.Milliseconds()),
		"PRAGMA foreign_keys = ON",
	}
	if opts.WALMode {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL", "PRAGMA synchronous = NORMAL")
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Actions returns the SQLite-backed action store.
func (s *Store) Actions() *ActionStore {
	return &ActionStore{db: s.db}
}

// Profiles returns the SQLite-backed profile store.
func (s *Store) Profiles() *ProfileStore {
	return &ProfileStore{db: s.db}
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

const schema = `
CREATE TABLE IF NOT EXISTS actions (
	action_id   TEXT PRIMARY KEY,
	action_key  TEXT NOT NULL DEFAULT '',
	type        TEXT NOT NULL,
	subtype     TEXT NOT NULL DEFAULT '',
	issuer      TEXT NOT NULL,
	audience    TEXT NOT NULL DEFAULT '',
	parent      TEXT NOT NULL DEFAULT '',
	subject     TEXT NOT NULL DEFAULT '',
	content     TEXT NOT NULL DEFAULT 'null',
	attachments TEXT NOT NULL DEFAULT '[]',
	status      TEXT NOT NULL DEFAULT 'active',
	flags       TEXT NOT NULL DEFAULT '',
	stats       TEXT NOT NULL DEFAULT '{}',
	created_at  INTEGER NOT NULL,
	expires_at  INTEGER
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_actions_key
	ON actions(action_key) WHERE action_key != '';
CREATE INDEX IF NOT EXISTS idx_actions_expires
	ON actions(expires_at) WHERE expires_at IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_actions_type ON actions(type);

CREATE TABLE IF NOT EXISTS profiles (
	id_tag     TEXT PRIMARY KEY,
	attrs      TEXT NOT NULL DEFAULT '{}',
	updated_at INTEGER NOT NULL
);
`
