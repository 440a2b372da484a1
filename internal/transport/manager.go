// Package transport owns the connection to the editing backend: dialing,
// the read/write pumps, keep-alive, and the reconnect policy.
package transport

import (
	"context"
	"log"
	"net/http"
	"time"

	apperrors "github.com/bazed/frontend/internal/errors"
	"github.com/gorilla/websocket"
)

// Options configures a Manager. Zero durations take the defaults below.
type Options struct {
	// URL is the backend endpoint, e.g. ws://127.0.0.1:6969/.
	URL string

	// Header is sent with the opening handshake.
	Header http.Header

	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration

	// PongWait is how long the connection may stay silent before it is
	// considered dead. PingPeriod must be shorter.
	PongWait   time.Duration
	PingPeriod time.Duration

	// MaxMessageSize caps inbound frames in bytes.
	MaxMessageSize int64

	// Reconnect governs dial retries. Nil means NoReconnect.
	Reconnect ReconnectPolicy
}

const (
	defaultHandshakeTimeout = 5 * time.Second
	defaultWriteTimeout     = 10 * time.Second
	defaultPongWait         = 60 * time.Second
	defaultMaxMessageSize   = 4 << 20
)

func (o Options) withDefaults() Options {
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = defaultHandshakeTimeout
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = defaultWriteTimeout
	}
	if o.PongWait <= 0 {
		o.PongWait = defaultPongWait
	}
	if o.PingPeriod <= 0 || o.PingPeriod >= o.PongWait {
		o.PingPeriod = o.PongWait * 9 / 10
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = defaultMaxMessageSize
	}
	if o.Reconnect == nil {
		o.Reconnect = NoReconnect{}
	}
	return o
}

// Manager dials connections to one fixed endpoint.
type Manager struct {
	opts   Options
	dialer *websocket.Dialer
}

// NewManager creates a manager for opts.URL.
func NewManager(opts Options) *Manager {
	opts = opts.withDefaults()
	return &Manager{
		opts: opts,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: opts.HandshakeTimeout,
		},
	}
}

// URL returns the endpoint this manager dials.
func (m *Manager) URL() string {
	return m.opts.URL
}

// Connect dials the backend and blocks until the connection is open.
// Failed dials are retried as the reconnect policy allows; when it gives up,
// Connect returns connection.failed wrapping the last dial error.
func (m *Manager) Connect(ctx context.Context) (*Conn, error) {
	for {
		ws, _, err := m.dialer.DialContext(ctx, m.opts.URL, m.opts.Header)
		if err == nil {
			m.opts.Reconnect.Reset()
			log.Printf("transport: connected to %s", m.opts.URL)
			return newConn(ws, m.opts), nil
		}

		if ctx.Err() != nil {
			return nil, apperrors.ConnectionFailed(m.opts.URL, ctx.Err())
		}

		delay, ok := m.opts.Reconnect.NextDelay()
		if !ok {
			log.Printf("transport: dial %s failed: %v", m.opts.URL, err)
			return nil, apperrors.ConnectionFailed(m.opts.URL, err)
		}
		log.Printf("transport: dial %s failed, retrying in %s: %v", m.opts.URL, delay, err)

		if err := sleep(ctx, delay); err != nil {
			return nil, apperrors.ConnectionFailed(m.opts.URL, err)
		}
	}
}

// Reconnect is called after a connection dropped with cause. It waits as
// the policy directs and dials again; with NoReconnect it returns cause.
func (m *Manager) Reconnect(ctx context.Context, cause error) (*Conn, error) {
	delay, ok := m.opts.Reconnect.NextDelay()
	if !ok {
		return nil, cause
	}
	log.Printf("transport: connection dropped, reconnecting in %s", delay)
	if err := sleep(ctx, delay); err != nil {
		return nil, apperrors.ConnectionFailed(m.opts.URL, err)
	}
	return m.Connect(ctx)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
