package transport

import (
	"log"
	"sync"
	"time"

	apperrors "github.com/bazed/frontend/internal/errors"
	"github.com/gorilla/websocket"
)

// inboundBufferSize is the buffer of the received-frame channel. When the
// consumer falls behind this far, the read pump stops reading and the
// socket applies backpressure to the backend.
const inboundBufferSize = 256

// Conn is one open connection to the backend.
// Frames are delivered on Inbound in the order the transport received them.
type Conn struct {
	ws   *websocket.Conn
	opts Options

	// outMu protects outbox and closed. The outbox is unbounded: Send
	// never blocks and never drops.
	outMu  sync.Mutex
	outbox [][]byte
	closed bool

	// wake is signalled (non-blocking, size 1) when outbox gains frames.
	wake chan struct{}

	inbound chan []byte

	// done is closed once the connection is finished, locally or remotely.
	done      chan struct{}
	closeOnce sync.Once

	errMu sync.Mutex
	err   error

	// pumps counts running pumps; Close waits for them.
	pumps sync.WaitGroup
}

func newConn(ws *websocket.Conn, opts Options) *Conn {
	c := &Conn{
		ws:      ws,
		opts:    opts,
		wake:    make(chan struct{}, 1),
		inbound: make(chan []byte, inboundBufferSize),
		done:    make(chan struct{}),
	}
	c.pumps.Add(2)
	go c.writePump()
	go c.readPump()
	return c
}

// Send queues a frame for writing. It fails only once the connection is
// finished.
func (c *Conn) Send(data []byte) error {
	c.outMu.Lock()
	if c.closed {
		c.outMu.Unlock()
		if err := c.Err(); err != nil {
			return err
		}
		return apperrors.ConnectionClosed()
	}
	c.outbox = append(c.outbox, data)
	c.outMu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
	return nil
}

// Inbound returns received frames. It is closed when the connection ends.
func (c *Conn) Inbound() <-chan []byte {
	return c.inbound
}

// Done is closed when the connection ends.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Err reports why the connection ended: connection.closed after Close,
// connection.lost otherwise. It is nil while the connection is open.
func (c *Conn) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// Close sends a close frame and waits for both pumps to exit.
// It is safe to call more than once.
func (c *Conn) Close() error {
	c.finish(apperrors.ConnectionClosed())
	c.pumps.Wait()
	return nil
}

// finish records the first cause and signals shutdown exactly once.
func (c *Conn) finish(cause error) {
	c.closeOnce.Do(func() {
		c.errMu.Lock()
		c.err = cause
		c.errMu.Unlock()

		c.outMu.Lock()
		c.closed = true
		c.outMu.Unlock()

		close(c.done)
	})
}

// writePump drains the outbox to the socket and sends periodic pings.
func (c *Conn) writePump() {
	defer c.pumps.Done()

	ticker := time.NewTicker(c.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case <-c.done:
			c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			c.ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case <-c.wake:
			for _, frame := range c.takeOutbox() {
				c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
				if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
					log.Printf("transport: write error: %v", err)
					c.finish(apperrors.ConnectionLost(err))
					return
				}
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.finish(apperrors.ConnectionLost(err))
				return
			}
		}
	}
}

func (c *Conn) takeOutbox() [][]byte {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	frames := c.outbox
	c.outbox = nil
	return frames
}

// readPump forwards received frames to Inbound until the socket fails.
func (c *Conn) readPump() {
	defer func() {
		close(c.inbound)
		c.pumps.Done()
	}()

	c.ws.SetReadLimit(c.opts.MaxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(c.opts.PongWait))
		return nil
	})

	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				// Closed locally; the read error is the socket teardown.
			default:
				if websocket.IsUnexpectedCloseError(err,
					websocket.CloseGoingAway,
					websocket.CloseNormalClosure) {
					log.Printf("transport: read error: %v", err)
				}
				c.finish(apperrors.ConnectionLost(err))
			}
			return
		}

		// Any frame proves the peer is alive.
		c.ws.SetReadDeadline(time.Now().Add(c.opts.PongWait))

		if kind != websocket.TextMessage {
			log.Printf("transport: ignoring non-text frame (type %d, %d bytes)", kind, len(data))
			continue
		}

		select {
		case c.inbound <- data:
		case <-c.done:
			return
		}
	}
}
