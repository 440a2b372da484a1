package session

import (
	"context"
	"log"
	"sort"
	"strings"

	"github.com/bazed/frontend/internal/correlator"
	apperrors "github.com/bazed/frontend/internal/errors"
	"github.com/bazed/frontend/internal/transport"
	"github.com/bazed/frontend/internal/viewstate"
)

// Dialer opens connections to the backend. *transport.Manager implements it.
type Dialer interface {
	Connect(ctx context.Context) (*transport.Conn, error)
	Reconnect(ctx context.Context, cause error) (*transport.Conn, error)
}

// NewClient creates an unconnected session that dials through d.
func NewClient(d Dialer, store *viewstate.Store, corr *correlator.Correlator) *Session {
	s := newSession(store, corr)
	s.dialer = d
	return s
}

// Connect opens the connection and blocks until it is open. On failure the
// status becomes failed with the error, which is also returned.
func (s *Session) Connect(ctx context.Context) error {
	if s.dialer == nil {
		return apperrors.New(apperrors.CodeInternal, "session has no dialer")
	}

	s.setStatus(StatusConnecting, nil)
	conn, err := s.dialer.Connect(ctx)
	if err != nil {
		log.Printf("session: failed to establish session: %v", err)
		s.setStatus(StatusFailed, err)
		return err
	}
	s.attach(conn)
	s.setStatus(StatusOpen, nil)
	return nil
}

// Serve dispatches frames from the open connection until ctx is done, the
// session is closed, or the connection drops and cannot be re-established.
// Requests pending when the connection drops fail with the drop cause.
func (s *Session) Serve(ctx context.Context) error {
	for {
		conn := s.currentConn()
		if conn == nil {
			return apperrors.ConnectionClosed()
		}

		s.Run(ctx, conn.Inbound())
		if ctx.Err() != nil {
			return ctx.Err()
		}

		cause := conn.Err()
		if cause == nil || apperrors.IsCode(cause, apperrors.CodeConnectionClosed) {
			return nil
		}

		log.Printf("session: connection lost: %v", cause)
		s.detach(conn)
		s.abandonPending(cause)

		s.setStatus(StatusConnecting, cause)
		next, err := s.dialer.Reconnect(ctx, cause)
		if err != nil {
			s.setStatus(StatusFailed, err)
			return err
		}
		s.attach(next)
		s.reportCachedViews()
		s.setStatus(StatusOpen, nil)
	}
}

// reportCachedViews logs the views kept from the previous connection. The
// new connection may not know their ids, so intents on them can go unanswered.
func (s *Session) reportCachedViews() {
	views := s.store.Snapshot().Views
	if len(views) == 0 {
		return
	}
	ids := make([]string, 0, len(views))
	for id := range views {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	log.Printf("session: reconnected with views from the previous connection: %s", strings.Join(ids, ", "))
}

func (s *Session) attach(conn *transport.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn = conn
	s.sender = conn
}

func (s *Session) detach(conn *transport.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == conn {
		s.conn = nil
		s.sender = nil
	}
}

func (s *Session) currentConn() *transport.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}
