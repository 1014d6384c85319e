package store

import (
	"fmt"
	"time"

	"github.com/Ashish-dwi99/Engram-sub002/internal/logging"
	"github.com/Ashish-dwi99/Engram-sub002/internal/observability"
)

// Migration is one versioned governance schema change. Versions are
// lexicographically ordered and the catalog is append-only: a shape change
// to an existing object must ship as a new version, never by editing an
// applied one.
type Migration struct {
	// Version is the unique ledger key, e.g. "gov_001".
	Version string

	// Requires lists base tables the DDL depends on. A missing requirement
	// is a structural error, not a retryable one.
	Requires []string

	// DDL holds guarded (IF NOT EXISTS) creation statements, so re-running
	// a migration whose ledger entry was lost is still safe.
	DDL string
}

// governanceMigrations is the fixed ordered catalog applied by Extend.
// Slice order is ascending version order.
var governanceMigrations = []Migration{
	{
		Version:  "gov_001",
		Requires: []string{"memories"},
		DDL: `
		CREATE TABLE IF NOT EXISTS views (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			agent_id TEXT,
			timestamp TEXT NOT NULL,
			place_type TEXT,
			place_value TEXT,
			topic_label TEXT,
			topic_embedding_ref TEXT,
			characters TEXT DEFAULT '[]',
			raw_text TEXT,
			signals TEXT DEFAULT '{}',
			scene_id TEXT,
			created_at TEXT DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_views_user_time ON views(user_id, timestamp DESC);
		CREATE INDEX IF NOT EXISTS idx_views_scene ON views(scene_id);
		`,
	},
	{
		Version: "gov_002",
		DDL: `
		CREATE TABLE IF NOT EXISTS proposal_commits (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			agent_id TEXT,
			scope TEXT,
			status TEXT NOT NULL DEFAULT 'PENDING',
			checks TEXT DEFAULT '{}',
			preview TEXT DEFAULT '{}',
			provenance TEXT DEFAULT '{}',
			created_at TEXT DEFAULT CURRENT_TIMESTAMP,
			updated_at TEXT DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_proposal_commits_user ON proposal_commits(user_id);
		CREATE INDEX IF NOT EXISTS idx_proposal_commits_status ON proposal_commits(status);

		CREATE TABLE IF NOT EXISTS proposal_changes (
			id TEXT PRIMARY KEY,
			commit_id TEXT NOT NULL,
			op TEXT NOT NULL,
			target TEXT NOT NULL,
			target_id TEXT,
			patch TEXT DEFAULT '{}',
			created_at TEXT DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (commit_id) REFERENCES proposal_commits(id)
		);
		CREATE INDEX IF NOT EXISTS idx_proposal_changes_commit ON proposal_changes(commit_id);
		`,
	},
	{
		Version: "gov_003",
		DDL: `
		CREATE TABLE IF NOT EXISTS conflict_stash (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			conflict_key TEXT NOT NULL,
			existing TEXT DEFAULT '{}',
			proposed TEXT DEFAULT '{}',
			resolution TEXT NOT NULL DEFAULT 'UNRESOLVED',
			source_commit_id TEXT,
			created_at TEXT DEFAULT CURRENT_TIMESTAMP,
			resolved_at TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_conflict_stash_user ON conflict_stash(user_id);
		CREATE INDEX IF NOT EXISTS idx_conflict_stash_resolution ON conflict_stash(resolution);
		`,
	},
	{
		Version: "gov_004",
		DDL: `
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			token_hash TEXT NOT NULL UNIQUE,
			user_id TEXT NOT NULL,
			agent_id TEXT,
			allowed_confidentiality_scopes TEXT DEFAULT '[]',
			capabilities TEXT DEFAULT '[]',
			namespaces TEXT DEFAULT '[]',
			expires_at TEXT NOT NULL,
			created_at TEXT DEFAULT CURRENT_TIMESTAMP,
			revoked_at TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id);
		CREATE INDEX IF NOT EXISTS idx_sessions_expires ON sessions(expires_at);
		`,
	},
	{
		Version:  "gov_005",
		Requires: []string{"memories"},
		DDL: `
		CREATE TABLE IF NOT EXISTS memory_refcounts (
			memory_id TEXT PRIMARY KEY,
			strong_count INTEGER DEFAULT 0,
			weak_count INTEGER DEFAULT 0,
			updated_at TEXT DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (memory_id) REFERENCES memories(id)
		);

		CREATE TABLE IF NOT EXISTS memory_subscribers (
			id TEXT PRIMARY KEY,
			memory_id TEXT NOT NULL,
			subscriber TEXT NOT NULL,
			ref_type TEXT NOT NULL CHECK(ref_type IN ('strong','weak')),
			created_at TEXT DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(memory_id, subscriber, ref_type),
			FOREIGN KEY (memory_id) REFERENCES memories(id)
		);
		CREATE INDEX IF NOT EXISTS idx_memory_subscribers_memory ON memory_subscribers(memory_id);
		`,
	},
	{
		Version: "gov_006",
		DDL: `
		CREATE TABLE IF NOT EXISTS daily_digests (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			digest_date TEXT NOT NULL,
			payload TEXT DEFAULT '{}',
			generated_at TEXT DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(user_id, digest_date)
		);
		CREATE INDEX IF NOT EXISTS idx_daily_digests_user_date ON daily_digests(user_id, digest_date);
		`,
	},
	{
		Version: "gov_007",
		DDL: `
		CREATE TABLE IF NOT EXISTS invariants (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			invariant_key TEXT NOT NULL,
			invariant_value TEXT NOT NULL,
			category TEXT DEFAULT 'identity',
			confidence REAL DEFAULT 0.0,
			source_memory_id TEXT,
			created_at TEXT DEFAULT CURRENT_TIMESTAMP,
			updated_at TEXT DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(user_id, invariant_key)
		);
		CREATE INDEX IF NOT EXISTS idx_invariants_user ON invariants(user_id);
		`,
	},
	{
		Version: "gov_008",
		DDL: `
		CREATE TABLE IF NOT EXISTS agent_trust (
			user_id TEXT NOT NULL,
			agent_id TEXT NOT NULL,
			total_proposals INTEGER DEFAULT 0,
			approved_proposals INTEGER DEFAULT 0,
			rejected_proposals INTEGER DEFAULT 0,
			auto_stashed_proposals INTEGER DEFAULT 0,
			last_proposed_at TEXT,
			last_approved_at TEXT,
			trust_score REAL DEFAULT 0.0,
			updated_at TEXT DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (user_id, agent_id)
		);
		CREATE INDEX IF NOT EXISTS idx_agent_trust_user ON agent_trust(user_id);
		CREATE INDEX IF NOT EXISTS idx_agent_trust_score ON agent_trust(trust_score DESC);
		`,
	},
	{
		Version: "gov_009",
		DDL: `
		CREATE TABLE IF NOT EXISTS namespaces (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			name TEXT NOT NULL,
			description TEXT,
			created_at TEXT DEFAULT CURRENT_TIMESTAMP,
			updated_at TEXT DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(user_id, name)
		);
		CREATE INDEX IF NOT EXISTS idx_namespaces_user ON namespaces(user_id);

		CREATE TABLE IF NOT EXISTS namespace_permissions (
			id TEXT PRIMARY KEY,
			namespace_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			agent_id TEXT NOT NULL,
			capability TEXT NOT NULL,
			granted_at TEXT DEFAULT CURRENT_TIMESTAMP,
			expires_at TEXT,
			FOREIGN KEY (namespace_id) REFERENCES namespaces(id),
			UNIQUE(namespace_id, user_id, agent_id, capability)
		);
		CREATE INDEX IF NOT EXISTS idx_ns_permissions_agent ON namespace_permissions(user_id, agent_id);
		CREATE INDEX IF NOT EXISTS idx_ns_permissions_namespace ON namespace_permissions(namespace_id);
		`,
	},
	{
		Version: "gov_010",
		DDL: `
		CREATE TABLE IF NOT EXISTS agent_policies (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			agent_id TEXT NOT NULL,
			allowed_confidentiality_scopes TEXT DEFAULT '[]',
			allowed_capabilities TEXT DEFAULT '[]',
			allowed_namespaces TEXT DEFAULT '[]',
			created_at TEXT DEFAULT CURRENT_TIMESTAMP,
			updated_at TEXT DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(user_id, agent_id)
		);
		CREATE INDEX IF NOT EXISTS idx_agent_policies_user ON agent_policies(user_id);
		CREATE INDEX IF NOT EXISTS idx_agent_policies_agent ON agent_policies(agent_id);
		`,
	},
}

// ExtendResult reports what a schema extension run did.
type ExtendResult struct {
	Applied  []string
	Skipped  int
	Duration time.Duration
}

// Extend opens the store at path and applies the governance schema
// extension. Convenience wrapper for CLI and startup paths.
func Extend(path string) (*ExtendResult, error) {
	s, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer s.Close()
	return s.Extend()
}

// Extend applies every catalog migration whose version is not yet present in
// the schema_migrations ledger, in ascending version order. Each migration's
// DDL and its ledger row commit in one transaction, so a partially applied
// migration never gets recorded as done. Safe to call repeatedly.
func (s *Store) Extend() (*ExtendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	log := logging.L(logging.CategoryStore)

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TEXT DEFAULT CURRENT_TIMESTAMP
		)`); err != nil {
		return nil, fmt.Errorf("failed to ensure migration ledger: %w", err)
	}

	applied, err := s.appliedVersions()
	if err != nil {
		return nil, err
	}

	result := &ExtendResult{}
	for _, m := range governanceMigrations {
		if applied[m.Version] {
			result.Skipped++
			continue
		}
		for _, table := range m.Requires {
			ok, err := s.tableExists(table)
			if err != nil {
				return nil, fmt.Errorf("migration %s: %w", m.Version, err)
			}
			if !ok {
				return nil, structuralErr(m.Version, table)
			}
		}
		if err := s.applyMigration(m); err != nil {
			return nil, err
		}
		observability.MigrationsApplied.Inc()
		log.Infow("migration applied", "version", m.Version)
		result.Applied = append(result.Applied, m.Version)
	}

	result.Duration = time.Since(start)
	log.Infow("schema extension complete",
		"applied", len(result.Applied), "skipped", result.Skipped)
	return result, nil
}

// applyMigration runs one migration transactionally, retrying once on lock
// contention. Structural failures surface immediately.
func (s *Store) applyMigration(m Migration) error {
	err := s.applyMigrationOnce(m)
	if err != nil && isTransientErr(err) {
		logging.L(logging.CategoryStore).Warnw("transient store error, retrying once",
			"version", m.Version, "err", err)
		err = s.applyMigrationOnce(m)
	}
	if err != nil {
		return fmt.Errorf("migration %s failed: %w", m.Version, err)
	}
	return nil
}

func (s *Store) applyMigrationOnce(m Migration) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(m.DDL); err != nil {
		tx.Rollback()
		return err
	}
	if _, err := tx.Exec(
		"INSERT OR IGNORE INTO schema_migrations (version) VALUES (?)", m.Version); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// AppliedVersions returns the ledger contents in version order.
func (s *Store) AppliedVersions() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query("SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

func (s *Store) appliedVersions() (map[string]bool, error) {
	applied := make(map[string]bool)
	rows, err := s.db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to read migration ledger: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

// tableExists checks whether a table exists in the database.
func (s *Store) tableExists(table string) (bool, error) {
	var count int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
