package storage

import (
	"fmt"
	"time"

	apperrors "github.com/bazed/frontend/internal/errors"
)

// Direction says which way a frame travelled.
type Direction string

const (
	Inbound  Direction = "in"
	Outbound Direction = "out"
)

// Frame is one journaled protocol message.
type Frame struct {
	ID         int64
	SessionID  string
	Direction  Direction
	Method     string // empty when the frame could not be parsed
	Payload    string
	ErrorCode  string // decode failure code for rejected inbound frames
	RecordedAt time.Time
}

// SaveFrame appends a frame to its session. The frame's ID is set on return.
func (s *SQLiteStore) SaveFrame(frame *Frame) error {
	if frame == nil {
		return fmt.Errorf("frame cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	const query = `
		INSERT INTO frames (session_id, direction, method, payload, error_code, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	res, err := s.db.Exec(query,
		frame.SessionID,
		string(frame.Direction),
		frame.Method,
		frame.Payload,
		frame.ErrorCode,
		frame.RecordedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeStorageSaveFailed, "save frame", err)
	}

	frame.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("read frame id: %w", err)
	}
	return nil
}

// ListFrames returns a session's frames in journal order. A positive limit
// keeps only the most recent limit frames.
func (s *SQLiteStore) ListFrames(sessionID string, limit int) ([]*Frame, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = -1
	}

	const query = `
		SELECT id, session_id, direction, method, payload, error_code, recorded_at FROM (
			SELECT * FROM frames WHERE session_id = ? ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC
	`
	rows, err := s.db.Query(query, sessionID, limit)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorageQueryFailed, "list frames", err)
	}
	defer rows.Close()

	var frames []*Frame
	for rows.Next() {
		var (
			f          Frame
			direction  string
			recordedAt string
		)
		if err := rows.Scan(&f.ID, &f.SessionID, &direction, &f.Method, &f.Payload, &f.ErrorCode, &recordedAt); err != nil {
			return nil, apperrors.Wrap(apperrors.CodeStorageQueryFailed, "scan frame", err)
		}
		f.Direction = Direction(direction)
		f.RecordedAt, err = time.Parse(time.RFC3339Nano, recordedAt)
		if err != nil {
			return nil, fmt.Errorf("parse recorded_at: %w", err)
		}
		frames = append(frames, &f)
	}
	return frames, rows.Err()
}

// CountFrames returns how many frames a session has.
func (s *SQLiteStore) CountFrames(sessionID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM frames WHERE session_id = ?", sessionID).Scan(&n)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.CodeStorageQueryFailed, "count frames", err)
	}
	return n, nil
}
