// Package session ties the wire codec, the request correlator and the view
// state store together. It turns UI intents into outbound messages and
// inbound messages into store mutations.
package session

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/bazed/frontend/internal/correlator"
	apperrors "github.com/bazed/frontend/internal/errors"
	"github.com/bazed/frontend/internal/protocol"
	"github.com/bazed/frontend/internal/storage"
	"github.com/bazed/frontend/internal/transport"
	"github.com/bazed/frontend/internal/viewstate"
)

// Sender writes one encoded frame to the backend. *transport.Conn
// implements it.
type Sender interface {
	Send(data []byte) error
}

// Status is the connection state shown to the UI.
type Status int

const (
	StatusIdle Status = iota
	StatusConnecting
	StatusOpen
	StatusFailed
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusConnecting:
		return "connecting"
	case StatusOpen:
		return "open"
	case StatusFailed:
		return "failed"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// DefaultViewport is the size requested for a view when the UI has not
// measured one yet.
var DefaultViewport = Viewport{Height: 200, Width: 40}

// openRequest is the correlator tag for a pending view open.
type openRequest struct {
	DocumentID string
	Viewport   Viewport
}

// Session is one client session against the backend.
//
// Inbound frames must be dispatched from a single goroutine (Run or Serve).
// Intents may be called from any goroutine.
type Session struct {
	store  *viewstate.Store
	corr   *correlator.Correlator
	warn   *throttledLogger
	dialer Dialer

	// mu protects the fields below.
	mu       sync.Mutex
	sender   Sender
	conn     *transport.Conn
	status   Status
	err      error
	recorder Recorder
	onStatus func(Status, error)
	viewport Viewport
}

// New creates a session that is already connected through sender.
func New(sender Sender, store *viewstate.Store, corr *correlator.Correlator) *Session {
	s := newSession(store, corr)
	s.sender = sender
	s.status = StatusOpen
	return s
}

func newSession(store *viewstate.Store, corr *correlator.Correlator) *Session {
	return &Session{
		store:    store,
		corr:     corr,
		warn:     newThrottledLogger(100*time.Millisecond, 20),
		viewport: DefaultViewport,
	}
}

// Store returns the view state store the session writes to.
func (s *Session) Store() *viewstate.Store {
	return s.store
}

// SetRecorder journals every frame to r. Nil disables recording.
func (s *Session) SetRecorder(r Recorder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recorder = r
}

// SetStatusHandler registers fn to be called on every status change.
func (s *Session) SetStatusHandler(fn func(Status, error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onStatus = fn
}

// SetDefaultViewport sets the size used for views pushed by the backend
// and for OpenView calls with a zero viewport.
func (s *Session) SetDefaultViewport(vp Viewport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.viewport = vp
}

// Status returns the connection state and, when failed, the cause.
func (s *Session) Status() (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status, s.err
}

func (s *Session) setStatus(status Status, err error) {
	s.mu.Lock()
	s.status = status
	s.err = err
	fn := s.onStatus
	s.mu.Unlock()

	log.Printf("session: status %s", status)
	if fn != nil {
		fn(status, err)
	}
}

// Run dispatches inbound frames in arrival order until inbound is closed or
// ctx is done.
func (s *Session) Run(ctx context.Context, inbound <-chan []byte) {
	for {
		select {
		case frame, ok := <-inbound:
			if !ok {
				return
			}
			s.Dispatch(frame)
		case <-ctx.Done():
			return
		}
	}
}

// Dispatch applies one inbound frame. Errors are logged and the frame is
// dropped; nothing is returned to the caller.
func (s *Session) Dispatch(frame []byte) {
	msg, err := protocol.Decode(frame)
	s.record(storage.Inbound, protocol.PeekMethod(frame), frame, err)
	if err != nil {
		if apperrors.IsCode(err, apperrors.CodeProtocolUnknownMethod) {
			s.warn.Printf("session: ignoring message: %v", err)
		} else {
			s.warn.Printf("session: dropping malformed frame: %v", err)
		}
		return
	}

	switch p := msg.Params.(type) {
	case protocol.OpenDocumentParams:
		s.store.ApplyDocumentOpened(viewstate.DocumentOpened{
			DocumentID: p.DocumentID,
			Path:       p.Path,
			Text:       p.Text,
		})

	case protocol.OpenViewParams:
		documentID := p.DocumentID
		if documentID == "" {
			documentID = p.ViewID
		}
		vp := s.defaultViewport()
		s.store.ApplyViewPushed(viewstate.ViewOpened{
			ViewID:     p.ViewID,
			DocumentID: documentID,
			Height:     vp.Height,
			Width:      vp.Width,
			Data:       p.ViewData,
		}, p.Path)

	case protocol.UpdateViewParams:
		err := s.store.ApplyViewUpdate(viewstate.ViewUpdate{
			ViewID:    p.ViewID,
			FirstLine: p.FirstLine,
			Lines:     p.Text,
			Carets:    p.Carets,
		})
		if err != nil {
			s.warn.Printf("session: dropping update_view: %v", err)
		}

	case protocol.ViewOpenedResponseParams:
		s.completeViewOpen(p)
	}
}

// completeViewOpen records the view before waking the OpenView caller, so
// an update_view right behind the response finds the view in the store.
func (s *Session) completeViewOpen(p protocol.ViewOpenedResponseParams) {
	pending, err := s.corr.Take(p.RequestID)
	if err != nil {
		s.warn.Printf("session: dropping view_opened_response: %v", err)
		return
	}

	req, ok := pending.Tag.(openRequest)
	if !ok {
		pending.Fail(apperrors.New(apperrors.CodeInternal, "view open request lost its tag"))
		return
	}

	err = s.store.ApplyViewOpened(viewstate.ViewOpened{
		ViewID:     p.ViewID,
		DocumentID: req.DocumentID,
		Height:     req.Viewport.Height,
		Width:      req.Viewport.Width,
	})
	if err != nil {
		log.Printf("session: view %s for request %s not recorded: %v", p.ViewID, p.RequestID, err)
		pending.Fail(err)
		return
	}
	log.Printf("session: opened view %s on document %s in %s",
		p.ViewID, req.DocumentID, time.Since(pending.IssuedAt).Round(time.Millisecond))
	pending.Fulfill(p.ViewID)
}

// OpenView asks the backend for a view of documentID and blocks until the
// backend confirms it. When it returns without error the view is already
// in the store. A zero viewport uses the default size.
func (s *Session) OpenView(ctx context.Context, documentID string, vp Viewport) (string, error) {
	if _, ok := s.store.Document(documentID); !ok {
		return "", apperrors.UnknownDocument(documentID)
	}
	if vp == (Viewport{}) {
		vp = s.defaultViewport()
	}

	tag := openRequest{DocumentID: documentID, Viewport: vp}
	resp, err := s.corr.Issue(ctx, tag, func(requestID string) error {
		return s.send(protocol.NewViewOpenedMessage(requestID, documentID, vp.Height, vp.Width))
	})
	if err != nil {
		return "", err
	}

	viewID, _ := resp.(string)
	return viewID, nil
}

// CloseView drops a view from the store when its UI element goes away,
// along with its document once no other view shows it. The backend is not
// told.
func (s *Session) CloseView(viewID string) {
	s.store.RemoveView(viewID)
}

// HandleKeyPressed forwards a translated key press.
func (s *Session) HandleKeyPressed(viewID string, input protocol.KeyInput) {
	if !s.knownView(viewID) {
		return
	}
	s.fireAndForget(protocol.NewKeyPressedMessage(viewID, input))
}

// HandleMouseClicked forwards a click resolved to a text position.
func (s *Session) HandleMouseClicked(viewID string, pos protocol.Coordinate) {
	if !s.knownView(viewID) {
		return
	}
	s.fireAndForget(protocol.NewMouseInputMessage(viewID, pos))
}

// HandleMouseWheel forwards a scroll of delta lines (typically 1 or -1).
func (s *Session) HandleMouseWheel(viewID string, delta int) {
	if !s.knownView(viewID) {
		return
	}
	s.fireAndForget(protocol.NewMouseScrollMessage(viewID, delta))
}

// HandleWheelEvent forwards a raw wheel event as a one-line scroll in the
// direction of DeltaY. Events without vertical movement are ignored.
func (s *Session) HandleWheelEvent(viewID string, ev WheelEvent) {
	delta := ev.LineDelta()
	if delta == 0 {
		return
	}
	s.HandleMouseWheel(viewID, delta)
}

// HandleUpdateView tells the backend the view's visible size changed and
// records the new size locally.
func (s *Session) HandleUpdateView(viewID string, vp Viewport) {
	if !s.knownView(viewID) {
		return
	}
	if err := s.store.ApplyViewportChanged(viewID, vp.Height, vp.Width); err != nil {
		s.warn.Printf("session: viewport change: %v", err)
	}
	s.fireAndForget(protocol.NewViewportChangedMessage(viewID, vp.Height, vp.Width))
}

// SaveDocument asks the backend to write documentID to disk.
func (s *Session) SaveDocument(documentID string) {
	if documentID == "" {
		return
	}
	if _, ok := s.store.Document(documentID); !ok {
		return
	}
	s.fireAndForget(protocol.NewSaveDocumentMessage(documentID))
}

// Close abandons pending requests with connection.closed and marks the
// session closed. A connection opened by Connect is closed too; a Sender
// passed to New belongs to the caller.
func (s *Session) Close() {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.sender = nil
	s.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	s.abandonPending(apperrors.ConnectionClosed())
	s.setStatus(StatusClosed, nil)
}

// abandonPending fails every pending request with cause.
func (s *Session) abandonPending(cause error) {
	if ids := s.corr.PendingIDs(); len(ids) > 0 {
		log.Printf("session: abandoning requests %s", strings.Join(ids, ", "))
	}
	s.corr.CancelAll(cause)
}

func (s *Session) knownView(viewID string) bool {
	if viewID == "" {
		return false
	}
	_, ok := s.store.View(viewID)
	return ok
}

func (s *Session) defaultViewport() Viewport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewport
}

func (s *Session) fireAndForget(msg protocol.Message) {
	if err := s.send(msg); err != nil {
		s.warn.Printf("session: %s not sent: %v", msg.Method, err)
	}
}

func (s *Session) send(msg protocol.Message) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}

	s.mu.Lock()
	sender := s.sender
	s.mu.Unlock()

	if sender == nil {
		return apperrors.ConnectionClosed()
	}
	// Recorded first so the journal never shows a response before its request.
	s.record(storage.Outbound, msg.Method, data, nil)
	return sender.Send(data)
}
