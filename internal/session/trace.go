package session

import (
	"log"
	"time"

	apperrors "github.com/bazed/frontend/internal/errors"
	"github.com/bazed/frontend/internal/protocol"
	"github.com/bazed/frontend/internal/storage"
)

// Recorder receives every frame the session sends or receives.
// Inbound frames that failed to decode carry decodeErr.
type Recorder interface {
	RecordFrame(dir storage.Direction, method protocol.Method, payload []byte, decodeErr error)
}

func (s *Session) record(dir storage.Direction, method protocol.Method, payload []byte, decodeErr error) {
	s.mu.Lock()
	r := s.recorder
	s.mu.Unlock()

	if r != nil {
		r.RecordFrame(dir, method, payload, decodeErr)
	}
}

// Journal records frames to the SQLite trace journal under one trace session.
type Journal struct {
	store     *storage.SQLiteStore
	sessionID string
	now       func() time.Time
}

// NewJournal starts a trace session for addr and returns its recorder.
func NewJournal(store *storage.SQLiteStore, sessionID, addr string) (*Journal, error) {
	j := &Journal{store: store, sessionID: sessionID, now: time.Now}
	err := store.SaveSession(&storage.Session{
		ID:        sessionID,
		Addr:      addr,
		StartedAt: j.now(),
		Status:    storage.SessionOpen,
	})
	if err != nil {
		return nil, err
	}
	return j, nil
}

// SessionID returns the trace session frames are recorded under.
func (j *Journal) SessionID() string {
	return j.sessionID
}

// RecordFrame implements Recorder. Journal failures are logged, never
// returned, so tracing cannot break the session.
func (j *Journal) RecordFrame(dir storage.Direction, method protocol.Method, payload []byte, decodeErr error) {
	frame := &storage.Frame{
		SessionID:  j.sessionID,
		Direction:  dir,
		Method:     string(method),
		Payload:    string(payload),
		RecordedAt: j.now(),
	}
	if decodeErr != nil {
		frame.ErrorCode = apperrors.GetCode(decodeErr)
	}
	if err := j.store.SaveFrame(frame); err != nil {
		log.Printf("session: trace frame not saved: %v", err)
	}
}

// End marks the trace session finished. A session that ended in failure
// is recorded as failed.
func (j *Journal) End(status Status) error {
	st := storage.SessionClosed
	if status == StatusFailed {
		st = storage.SessionFailed
	}
	return j.store.EndSession(j.sessionID, st, j.now())
}
