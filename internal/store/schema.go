package store

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"holograph/internal/logging"
)

// initialize creates the required tables and indexes.
func (s *Store) initialize() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS memories (
			id TEXT PRIMARY KEY,
			text TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			type TEXT NOT NULL DEFAULT 'chunk',
			role_view_level INTEGER NOT NULL DEFAULT 0,
			provenance TEXT NOT NULL DEFAULT '{}',
			contradictions TEXT NOT NULL DEFAULT '[]',
			embedding TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS entities (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			type TEXT NOT NULL,
			role_view_level INTEGER NOT NULL DEFAULT 0,
			metadata TEXT NOT NULL DEFAULT '{}',
			embedding TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_entities_name_type ON entities(name, type)`,
		`CREATE TABLE IF NOT EXISTS entity_edges (
			id TEXT PRIMARY KEY,
			from_id TEXT NOT NULL,
			to_id TEXT NOT NULL,
			relation TEXT NOT NULL,
			weight REAL NOT NULL DEFAULT 0,
			metadata TEXT NOT NULL DEFAULT '{}',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_edges_triple ON entity_edges(from_id, to_id, relation)`,
		`CREATE INDEX IF NOT EXISTS idx_edges_from ON entity_edges(from_id)`,
		`CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			payload TEXT NOT NULL DEFAULT '[]',
			status TEXT NOT NULL DEFAULT 'pending',
			error TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			started_at DATETIME,
			finished_at DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_status_kind ON jobs(status, kind)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}
	return nil
}

// migration adds a column to an existing table when missing.
type migration struct {
	Table  string
	Column string
	Def    string
}

// pendingMigrations upgrades databases created before newer columns existed.
var pendingMigrations = []migration{
	{"entities", "embedding", "TEXT"},
	{"memories", "title", "TEXT NOT NULL DEFAULT ''"},
	{"jobs", "error", "TEXT NOT NULL DEFAULT ''"},
}

// runMigrations applies column migrations for existing databases.
func (s *Store) runMigrations() error {
	log := logging.L(logging.CategoryStore)

	for _, m := range pendingMigrations {
		if !tableExists(s.db, m.Table) {
			continue
		}
		if columnExists(s.db, m.Table, m.Column) {
			continue
		}
		query := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", m.Table, m.Column, m.Def)
		if _, err := s.db.Exec(query); err != nil {
			// The column may exist in a different form; don't fail startup.
			log.Warn("migration skipped", zap.String("table", m.Table),
				zap.String("column", m.Column), zap.Error(err))
			continue
		}
		log.Info("migration applied", zap.String("table", m.Table), zap.String("column", m.Column))
	}
	return nil
}

func tableExists(db *sql.DB, table string) bool {
	var name string
	err := db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
	).Scan(&name)
	return err == nil
}

func columnExists(db *sql.DB, table, column string) bool {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			continue
		}
		if name == column {
			return true
		}
	}
	return false
}
