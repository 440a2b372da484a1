package session

import (
	"context"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bazed/frontend/internal/correlator"
	apperrors "github.com/bazed/frontend/internal/errors"
	"github.com/bazed/frontend/internal/protocol"
	"github.com/bazed/frontend/internal/transport"
	"github.com/bazed/frontend/internal/viewstate"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// fakeBackend announces one document on connect and answers view_opened
// requests with view "v1" followed by an update_view.
func fakeBackend(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer ws.Close()

		ws.WriteMessage(websocket.TextMessage,
			[]byte(`{"method":"open_document","params":{"document_id":"d1","path":"/tmp/a.txt"}}`))

		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			msg, err := protocol.DecodeAny(data)
			if err != nil || msg.Method != protocol.MethodViewOpened {
				continue
			}
			p := msg.Params.(protocol.ViewOpenedParams)
			ws.WriteMessage(websocket.TextMessage,
				[]byte(`{"method":"view_opened_response","params":{"request_id":"`+p.RequestID+`","view_id":"v1"}}`))
			ws.WriteMessage(websocket.TextMessage,
				[]byte(`{"method":"update_view","params":{"view_id":"v1","first_line":0,"text":["hello"],"carets":[]}}`))
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestClientEndToEnd(t *testing.T) {
	url := fakeBackend(t)
	s := NewClient(transport.NewManager(transport.Options{URL: url}), viewstate.NewStore(), correlator.New(time.Second))

	var mu sync.Mutex
	var statuses []Status
	s.SetStatusHandler(func(st Status, _ error) {
		mu.Lock()
		statuses = append(statuses, st)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := s.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	served := make(chan error, 1)
	go func() { served <- s.Serve(ctx) }()

	waitFor(t, "document d1", func() bool {
		_, ok := s.Store().Document("d1")
		return ok
	})

	viewID, err := s.OpenView(ctx, "d1", Viewport{})
	if err != nil {
		t.Fatalf("OpenView failed: %v", err)
	}
	if viewID != "v1" {
		t.Errorf("OpenView = %q, want v1", viewID)
	}

	waitFor(t, "update_view", func() bool {
		v, _ := s.Store().View("v1")
		return len(v.Lines) == 1 && v.Lines[0] == "hello"
	})

	s.Close()
	select {
	case err := <-served:
		if err != nil {
			t.Errorf("Serve = %v, want nil after Close", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after Close")
	}

	mu.Lock()
	defer mu.Unlock()
	want := []Status{StatusConnecting, StatusOpen, StatusClosed}
	if len(statuses) != len(want) {
		t.Fatalf("statuses = %v, want %v", statuses, want)
	}
	for i := range want {
		if statuses[i] != want[i] {
			t.Errorf("statuses = %v, want %v", statuses, want)
			break
		}
	}
}

func TestClientConnectFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	s := NewClient(transport.NewManager(transport.Options{URL: url}), viewstate.NewStore(), correlator.New(0))

	err := s.Connect(context.Background())
	if !apperrors.IsCode(err, apperrors.CodeConnectionFailed) {
		t.Fatalf("Connect = %v, want connection.failed", err)
	}
	st, stErr := s.Status()
	if st != StatusFailed {
		t.Errorf("Status = %s, want failed", st)
	}
	if stErr != err {
		t.Errorf("status error = %v, want %v", stErr, err)
	}
}

func TestServeWithoutConnection(t *testing.T) {
	s := NewClient(transport.NewManager(transport.Options{URL: "ws://127.0.0.1:1/"}), viewstate.NewStore(), correlator.New(0))

	if err := s.Serve(context.Background()); !apperrors.IsCode(err, apperrors.CodeConnectionClosed) {
		t.Errorf("Serve = %v, want connection.closed", err)
	}
}

func TestConnectWithoutDialer(t *testing.T) {
	s, _ := newTestSession(t)
	if err := s.Connect(context.Background()); !apperrors.IsCode(err, apperrors.CodeInternal) {
		t.Errorf("Connect = %v, want error.internal", err)
	}
}

// TestServeConnectionDropped verifies a drop without reconnect fails the
// session and any pending request.
func TestServeConnectionDropped(t *testing.T) {
	drop := make(chan struct{})
	gotRequest := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ws.WriteMessage(websocket.TextMessage,
			[]byte(`{"method":"open_document","params":{"document_id":"d1"}}`))
		go func() {
			for {
				if _, _, err := ws.ReadMessage(); err != nil {
					return
				}
				gotRequest <- struct{}{}
			}
		}()
		<-drop
		ws.UnderlyingConn().Close()
	}))
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	s := NewClient(transport.NewManager(transport.Options{URL: url}), viewstate.NewStore(), correlator.New(0))
	ctx := context.Background()
	if err := s.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	served := make(chan error, 1)
	go func() { served <- s.Serve(ctx) }()

	waitFor(t, "document d1", func() bool {
		_, ok := s.Store().Document("d1")
		return ok
	})

	opened := make(chan error, 1)
	go func() {
		_, err := s.OpenView(ctx, "d1", Viewport{})
		opened <- err
	}()
	<-gotRequest
	close(drop)

	select {
	case err := <-served:
		if !apperrors.IsCode(err, apperrors.CodeConnectionLost) {
			t.Errorf("Serve = %v, want connection.lost", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after drop")
	}
	select {
	case err := <-opened:
		if !apperrors.IsCode(err, apperrors.CodeRequestCancelled) {
			t.Errorf("OpenView = %v, want request.cancelled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("OpenView did not return after drop")
	}

	if st, _ := s.Status(); st != StatusFailed {
		t.Errorf("Status = %s, want failed", st)
	}
}

// syncBuffer collects log output written from several goroutines.
type syncBuffer struct {
	mu sync.Mutex
	b  strings.Builder
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// TestServeReconnectKeepsCachedViews verifies a reconnect keeps the views of
// the previous connection and names them in the log.
func TestServeReconnectKeepsCachedViews(t *testing.T) {
	var logs syncBuffer
	log.SetOutput(&logs)
	defer log.SetOutput(os.Stderr)

	var mu sync.Mutex
	conns := 0
	drop := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()

		mu.Lock()
		conns++
		first := conns == 1
		mu.Unlock()
		if !first {
			for {
				if _, _, err := ws.ReadMessage(); err != nil {
					return
				}
			}
		}

		ws.WriteMessage(websocket.TextMessage,
			[]byte(`{"method":"open_document","params":{"document_id":"d1"}}`))
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		msg, err := protocol.DecodeAny(data)
		if err != nil || msg.Method != protocol.MethodViewOpened {
			return
		}
		p := msg.Params.(protocol.ViewOpenedParams)
		ws.WriteMessage(websocket.TextMessage,
			[]byte(`{"method":"view_opened_response","params":{"request_id":"`+p.RequestID+`","view_id":"v1"}}`))
		<-drop
		ws.UnderlyingConn().Close()
	}))
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	policy := transport.NewExponentialReconnect(5*time.Millisecond, 20*time.Millisecond, 2*time.Second)
	s := NewClient(transport.NewManager(transport.Options{URL: url, Reconnect: policy}),
		viewstate.NewStore(), correlator.New(time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	served := make(chan error, 1)
	go func() { served <- s.Serve(ctx) }()

	waitFor(t, "document d1", func() bool {
		_, ok := s.Store().Document("d1")
		return ok
	})
	if _, err := s.OpenView(ctx, "d1", Viewport{}); err != nil {
		t.Fatalf("OpenView failed: %v", err)
	}
	close(drop)

	waitFor(t, "second connection", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return conns == 2
	})
	waitFor(t, "reconnect log", func() bool {
		return strings.Contains(logs.String(), "views from the previous connection: v1")
	})
	waitFor(t, "status open", func() bool {
		st, _ := s.Status()
		return st == StatusOpen
	})
	if _, ok := s.Store().View("v1"); !ok {
		t.Error("cached view v1 should survive the reconnect")
	}

	s.Close()
	select {
	case <-served:
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after Close")
	}
}
