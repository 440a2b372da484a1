package storage

// sessions.go holds the trace session records. Every frame journaled
// belongs to exactly one session.

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	apperrors "github.com/bazed/frontend/internal/errors"
)

// maxSessions is the number of trace sessions retained. Older sessions
// and their frames are deleted when a new one is saved.
const maxSessions = 20

// SessionStatus is the lifecycle state of a trace session.
type SessionStatus string

const (
	SessionOpen   SessionStatus = "open"
	SessionClosed SessionStatus = "closed"
	SessionFailed SessionStatus = "failed"
)

// Session is one connection to a backend.
type Session struct {
	ID        string
	Addr      string
	StartedAt time.Time
	EndedAt   time.Time // zero while open
	Status    SessionStatus
}

// SaveSession inserts or replaces a session and enforces retention.
func (s *SQLiteStore) SaveSession(session *Session) error {
	if session == nil {
		return errors.New("session cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	log.Printf("storage: saving trace session %s (addr=%s, status=%s)", session.ID, session.Addr, session.Status)

	var endedAt sql.NullString
	if !session.EndedAt.IsZero() {
		endedAt = sql.NullString{String: session.EndedAt.Format(time.RFC3339Nano), Valid: true}
	}

	const query = `
		INSERT OR REPLACE INTO trace_sessions (id, addr, started_at, ended_at, status)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := s.db.Exec(query,
		session.ID,
		session.Addr,
		session.StartedAt.Format(time.RFC3339Nano),
		endedAt,
		string(session.Status),
	)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeStorageSaveFailed, "save trace session", err)
	}

	const cleanupQuery = `
		DELETE FROM trace_sessions WHERE id IN (
			SELECT id FROM trace_sessions ORDER BY started_at DESC LIMIT -1 OFFSET ?
		)
	`
	if _, err := s.db.Exec(cleanupQuery, maxSessions); err != nil {
		return fmt.Errorf("enforce session retention: %w", err)
	}

	return nil
}

// EndSession marks a session finished with the given status.
func (s *SQLiteStore) EndSession(id string, status SessionStatus, endedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(
		"UPDATE trace_sessions SET status = ?, ended_at = ? WHERE id = ?",
		string(status), endedAt.Format(time.RFC3339Nano), id,
	)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeStorageSaveFailed, "end trace session", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// GetSession returns a session by ID, or ErrSessionNotFound.
func (s *SQLiteStore) GetSession(id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(
		"SELECT id, addr, started_at, ended_at, status FROM trace_sessions WHERE id = ?", id)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorageQueryFailed, "get trace session", err)
	}
	return session, nil
}

// ListSessions returns retained sessions, most recent first.
func (s *SQLiteStore) ListSessions() ([]*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		"SELECT id, addr, started_at, ended_at, status FROM trace_sessions ORDER BY started_at DESC")
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorageQueryFailed, "list trace sessions", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeStorageQueryFailed, "scan trace session", err)
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row scanner) (*Session, error) {
	var (
		session   Session
		startedAt string
		endedAt   sql.NullString
		status    string
	)
	if err := row.Scan(&session.ID, &session.Addr, &startedAt, &endedAt, &status); err != nil {
		return nil, err
	}

	var err error
	session.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt)
	if err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	if endedAt.Valid {
		session.EndedAt, err = time.Parse(time.RFC3339Nano, endedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse ended_at: %w", err)
		}
	}
	session.Status = SessionStatus(status)
	return &session, nil
}
