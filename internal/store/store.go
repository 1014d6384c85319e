// Package store implements the SQLite persistence layer for the Engram
// governance kernel: the base memory/scene tables, the governance schema
// extension with its migration ledger, and session persistence.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/Ashish-dwi99/Engram-sub002/internal/logging"
)

// Store wraps a single SQLite database holding memories, episodic scenes,
// and the governance tables created by Extend.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// Open initializes the SQLite database at the given path. The parent
// directory is created if missing. ":memory:" is accepted for tests.
func Open(path string) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Open")
	defer timer.Stop()

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Single writer: SQLite serializes writes anyway, and a single
	// connection keeps the migration ledger race-free in-process.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.L(logging.CategoryStore).Debugw("failed to set busy_timeout", "err", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.L(logging.CategoryStore).Debugw("failed to set journal_mode=WAL", "err", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.L(logging.CategoryStore).Debugw("failed to set synchronous=NORMAL", "err", err)
	}

	return &Store{db: db, dbPath: path}, nil
}

// Bootstrap creates the base entity tables (memories, scenes) that the
// governance extension builds on. Production deployments inherit these from
// the core memory service; the CLI and tests create them here.
func (s *Store) Bootstrap() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ddl := `
	CREATE TABLE IF NOT EXISTS memories (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		agent_id TEXT,
		memory TEXT NOT NULL,
		score REAL DEFAULT 0.0,
		confidentiality_scope TEXT DEFAULT 'work',
		namespace TEXT DEFAULT 'default',
		metadata TEXT DEFAULT '{}',
		created_at TEXT DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_memories_user ON memories(user_id);

	CREATE TABLE IF NOT EXISTS scenes (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		title TEXT,
		topic TEXT,
		summary TEXT,
		location TEXT,
		participants TEXT DEFAULT '[]',
		memory_ids TEXT DEFAULT '[]',
		namespace TEXT DEFAULT 'default',
		start_time TEXT,
		end_time TEXT,
		created_at TEXT DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_scenes_user ON scenes(user_id);
	`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("failed to bootstrap base tables: %w", err)
	}
	return nil
}

// DB exposes the underlying database handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// TableNames returns the set of user tables, used by tests and diagnostics.
func (s *Store) TableNames() (map[string]bool, error) {
	rows, err := s.db.Query(
		"SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%'")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	names := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names[name] = true
	}
	return names, rows.Err()
}
