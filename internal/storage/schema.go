package storage

import (
	"fmt"
	"log"
	"time"
)

// currentSchemaVersion is the current database schema version.
// Increment this when making schema changes and add migration logic.
const currentSchemaVersion = 2

// initSchema brings the database up to currentSchemaVersion.
func (s *SQLiteStore) initSchema() error {
	const schemaVersionTable = `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL
		);
	`
	if _, err := s.db.Exec(schemaVersionTable); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var version int
	err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		return fmt.Errorf("check schema version: %w", err)
	}

	if version < 1 {
		if err := s.migrateToV1(); err != nil {
			return fmt.Errorf("migrate to v1: %w", err)
		}
	}

	if version < 2 {
		if err := s.migrateToV2(); err != nil {
			return fmt.Errorf("migrate to v2: %w", err)
		}
	}

	return nil
}

// migrateToV1 creates the trace_sessions and frames tables.
func (s *SQLiteStore) migrateToV1() error {
	log.Printf("storage: applying migration to schema version 1")

	// Timestamps are RFC3339Nano strings.
	const tables = `
		CREATE TABLE IF NOT EXISTS trace_sessions (
			id TEXT PRIMARY KEY,
			addr TEXT NOT NULL,
			started_at TEXT NOT NULL,
			ended_at TEXT,
			status TEXT NOT NULL DEFAULT 'open'
		);

		CREATE TABLE IF NOT EXISTS frames (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			direction TEXT NOT NULL,
			method TEXT NOT NULL DEFAULT '',
			payload TEXT NOT NULL,
			recorded_at TEXT NOT NULL,
			FOREIGN KEY (session_id) REFERENCES trace_sessions(id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_frames_session ON frames(session_id, id);
	`
	if _, err := s.db.Exec(tables); err != nil {
		return fmt.Errorf("create trace tables: %w", err)
	}

	return s.recordMigration(1)
}

// migrateToV2 adds the decode error column so rejected frames can be told
// apart from applied ones.
func (s *SQLiteStore) migrateToV2() error {
	log.Printf("storage: applying migration to schema version 2")

	if _, err := s.db.Exec(`ALTER TABLE frames ADD COLUMN error_code TEXT NOT NULL DEFAULT ''`); err != nil {
		return fmt.Errorf("add frames.error_code: %w", err)
	}

	return s.recordMigration(2)
}

func (s *SQLiteStore) recordMigration(version int) error {
	_, err := s.db.Exec(
		"INSERT INTO schema_version (version, applied_at) VALUES (?, ?)",
		version,
		time.Now().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("record migration: %w", err)
	}
	return nil
}
