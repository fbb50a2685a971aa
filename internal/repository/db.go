package repository

import (
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// InitDB opens (or creates) a SQLite database at the given path and
// ensures all required tables exist. Pass ":memory:" for an in-memory
// database.
func InitDB(dsn string) (*sql.DB, error) {
	// The PRAGMAs below are also passed via the DSN so they apply to
	// every connection in the database/sql pool, not just the one that
	// happens to execute them.
	if dsn == ":memory:" {
		dsn = "file::memory:"
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	dsn += sep + "_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set wal mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	// Writers queue behind the lock instead of failing fast.
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return db, nil
}

func createTables(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS cycles (
			id TEXT PRIMARY KEY,
			started_at DATETIME NOT NULL,
			origin_rows INTEGER NOT NULL,
			counterparty_rows INTEGER NOT NULL,
			row_errors INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS records (
			cycle_id TEXT NOT NULL,
			record_id TEXT NOT NULL,
			source TEXT NOT NULL,
			fields TEXT NOT NULL,
			PRIMARY KEY (cycle_id, record_id, source),
			FOREIGN KEY (cycle_id) REFERENCES cycles(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_records_record ON records(record_id)`,

		`CREATE TABLE IF NOT EXISTS pairs (
			cycle_id TEXT NOT NULL,
			record_id TEXT NOT NULL,
			severity TEXT NOT NULL,
			signature TEXT NOT NULL,
			deltas TEXT NOT NULL,
			has_origin INTEGER NOT NULL,
			has_counterparty INTEGER NOT NULL,
			diagnosed_at DATETIME NOT NULL,
			PRIMARY KEY (cycle_id, record_id),
			FOREIGN KEY (cycle_id) REFERENCES cycles(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pairs_severity ON pairs(severity)`,
		`CREATE INDEX IF NOT EXISTS idx_pairs_record ON pairs(record_id, signature)`,

		`CREATE TABLE IF NOT EXISTS knowledge_entries (
			entry_id TEXT PRIMARY KEY,
			signature TEXT NOT NULL,
			presence INTEGER NOT NULL,
			buckets TEXT NOT NULL,
			resolution TEXT NOT NULL,
			outcome TEXT NOT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_knowledge_signature ON knowledge_entries(signature)`,

		`CREATE TABLE IF NOT EXISTS candidates (
			candidate_id TEXT PRIMARY KEY,
			cycle_id TEXT NOT NULL,
			discrepancy_ref TEXT NOT NULL,
			scope TEXT NOT NULL,
			changes TEXT NOT NULL,
			supporting TEXT NOT NULL,
			confidence REAL NOT NULL,
			description TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (cycle_id) REFERENCES cycles(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_candidates_ref ON candidates(discrepancy_ref)`,

		`CREATE TABLE IF NOT EXISTS decisions (
			discrepancy_ref TEXT PRIMARY KEY,
			decision TEXT NOT NULL,
			approver TEXT NOT NULL,
			decided_at DATETIME NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS approvals (
			discrepancy_ref TEXT PRIMARY KEY,
			scope TEXT NOT NULL,
			changes TEXT NOT NULL,
			approver TEXT NOT NULL,
			approved_at DATETIME NOT NULL,
			supersedes TEXT
		)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:60], err)
		}
	}

	return nil
}
