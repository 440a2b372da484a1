// Package storage journals protocol traffic to SQLite so a session can be
// inspected after the fact.
package storage

import (
	"database/sql"
	"errors"
	"log"
	"sync"

	apperrors "github.com/bazed/frontend/internal/errors"

	// Pure-Go SQLite driver, registered as "sqlite".
	_ "modernc.org/sqlite"
)

// ErrSessionNotFound is returned when a trace session lookup fails.
var ErrSessionNotFound = errors.New("trace session not found")

// SQLiteStore is the trace journal. It is safe for concurrent use.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore opens or creates the journal at path and applies any
// pending migrations. Use ":memory:" in tests.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	log.Printf("storage: opening trace journal at %s", path)

	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorageOpenFailed, "open trace journal", err)
	}

	// An in-memory database exists per connection; pin the pool to one.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, apperrors.Wrap(apperrors.CodeStorageOpenFailed, "ping trace journal", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, apperrors.Wrap(apperrors.CodeStorageOpenFailed, "init schema", err)
	}

	log.Printf("storage: trace journal ready (schema version %d)", currentSchemaVersion)
	return store, nil
}

// Close releases the database connection.
func (s *SQLiteStore) Close() error {
	log.Printf("storage: closing trace journal")
	return s.db.Close()
}
