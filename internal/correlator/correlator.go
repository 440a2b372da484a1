// Package correlator matches outbound requests to their asynchronous responses.
// A request registers a pending slot under a fresh 128-bit random id before it
// is sent; the dispatch side later takes the slot by the id echoed back in the
// response and fulfills it, waking the caller.
package correlator

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	apperrors "github.com/bazed/frontend/internal/errors"
	"github.com/google/uuid"
)

// Response is whatever the dispatch side decoded for a request.
type Response interface{}

// Result is what a pending request resolves to.
type Result struct {
	Response Response
	Err      error
}

// Pending tracks an in-flight request.
// It is removed from the correlator exactly once (by Take, timeout,
// cancellation or CancelAll) and may be fulfilled at most once.
type Pending struct {
	// RequestID is the id sent with the request.
	RequestID string

	// Tag is caller-supplied context, e.g. the document a view is opened on.
	// The dispatch side reads it to finish the state transition.
	Tag interface{}

	// IssuedAt is when the request was registered.
	IssuedAt time.Time

	// resultCh receives the result. Buffered (size 1) so Fulfill never blocks.
	resultCh chan Result
	once     sync.Once
}

// Fulfill delivers the response to the waiting caller.
// Later calls are ignored.
func (p *Pending) Fulfill(resp Response) {
	p.finish(Result{Response: resp})
}

// Fail delivers an error to the waiting caller.
func (p *Pending) Fail(err error) {
	p.finish(Result{Err: err})
}

func (p *Pending) finish(r Result) {
	p.once.Do(func() {
		p.resultCh <- r
	})
}

// SendFunc transmits a request carrying requestID.
type SendFunc func(requestID string) error

// Correlator manages pending requests.
//
// Thread safety: All exported methods are safe for concurrent use.
type Correlator struct {
	// mu protects the pending map.
	mu sync.Mutex

	// pending maps request IDs to in-flight requests.
	pending map[string]*Pending

	// ttl is how long Issue waits for a response. Zero waits forever.
	ttl time.Duration

	// newID generates request ids; replaced in tests.
	newID func() string
}

// New creates a correlator. A ttl of zero disables the request timeout,
// leaving callers suspended until a response, cancellation or CancelAll.
func New(ttl time.Duration) *Correlator {
	return &Correlator{
		pending: make(map[string]*Pending),
		ttl:     ttl,
		newID:   func() string { return uuid.New().String() },
	}
}

// Issue registers a pending request, sends it, and blocks until the
// matching response is fulfilled. It returns an error if:
// - send fails (the slot is removed again)
// - the request times out (request.timed_out)
// - the context is cancelled (request.cancelled wrapping ctx.Err())
// - the request is abandoned by CancelAll
func (c *Correlator) Issue(ctx context.Context, tag interface{}, send SendFunc) (Response, error) {
	p, err := c.register(tag)
	if err != nil {
		return nil, err
	}

	if err := send(p.RequestID); err != nil {
		c.remove(p.RequestID)
		return nil, err
	}

	var timeout <-chan time.Time
	if c.ttl > 0 {
		timer := time.NewTimer(c.ttl)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case r := <-p.resultCh:
		return r.Response, r.Err

	case <-timeout:
		if c.remove(p.RequestID) {
			log.Printf("correlator: request %s timed out after %s", p.RequestID, c.ttl)
			return nil, apperrors.RequestTimedOut(p.RequestID)
		}
		// Taken concurrently; the result is on its way.
		r := <-p.resultCh
		return r.Response, r.Err

	case <-ctx.Done():
		if c.remove(p.RequestID) {
			log.Printf("correlator: request %s cancelled", p.RequestID)
			return nil, apperrors.RequestCancelled(p.RequestID, ctx.Err())
		}
		r := <-p.resultCh
		return r.Response, r.Err
	}
}

// Take removes and returns the pending request for requestID.
// It returns request.stale_response if no such request is pending
// (duplicate response, response after timeout, or never requested).
// The caller must Fulfill or Fail the returned request.
func (c *Correlator) Take(requestID string) (*Pending, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.pending[requestID]
	if !ok {
		return nil, apperrors.StaleResponse(requestID)
	}
	delete(c.pending, requestID)
	return p, nil
}

// CancelAll fails every pending request with a request.cancelled error
// wrapping cause. Used when the session or its connection goes away.
func (c *Correlator) CancelAll(cause error) int {
	c.mu.Lock()
	abandoned := make([]*Pending, 0, len(c.pending))
	for id, p := range c.pending {
		abandoned = append(abandoned, p)
		delete(c.pending, id)
	}
	c.mu.Unlock()

	for _, p := range abandoned {
		p.Fail(apperrors.RequestCancelled(p.RequestID, cause))
	}
	if len(abandoned) > 0 {
		log.Printf("correlator: abandoned %d pending request(s): %v", len(abandoned), cause)
	}
	return len(abandoned)
}

// PendingIDs returns the ids of all pending requests, sorted.
func (c *Correlator) PendingIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := make([]string, 0, len(c.pending))
	for id := range c.pending {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (c *Correlator) register(tag interface{}) (*Pending, error) {
	p := &Pending{
		RequestID: c.newID(),
		Tag:       tag,
		IssuedAt:  time.Now(),
		resultCh:  make(chan Result, 1),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.pending[p.RequestID]; exists {
		return nil, apperrors.RequestDuplicate(p.RequestID)
	}
	c.pending[p.RequestID] = p
	return p, nil
}

// remove deletes requestID and reports whether it was still pending.
func (c *Correlator) remove(requestID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.pending[requestID]; !ok {
		return false
	}
	delete(c.pending, requestID)
	return true
}
