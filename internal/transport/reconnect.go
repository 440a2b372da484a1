package transport

import (
	"time"

	"github.com/cenkalti/backoff"
)

// ReconnectPolicy decides whether and when to dial again after a failed
// dial or a dropped connection.
type ReconnectPolicy interface {
	// NextDelay returns how long to wait before the next attempt.
	// ok is false when no further attempt should be made.
	NextDelay() (delay time.Duration, ok bool)

	// Reset is called after a connection opens successfully.
	Reset()
}

// NoReconnect never retries: a failed dial or a dropped connection is
// terminal for the session.
type NoReconnect struct{}

// NextDelay implements ReconnectPolicy.
func (NoReconnect) NextDelay() (time.Duration, bool) { return 0, false }

// Reset implements ReconnectPolicy.
func (NoReconnect) Reset() {}

// ExponentialReconnect retries with exponentially growing, jittered delays
// until MaxElapsed has passed since the first failure.
type ExponentialReconnect struct {
	b *backoff.ExponentialBackOff
}

// NewExponentialReconnect creates a policy starting at initial, capped at
// max per attempt, giving up after maxElapsed (zero retries forever).
func NewExponentialReconnect(initial, max, maxElapsed time.Duration) *ExponentialReconnect {
	b := backoff.NewExponentialBackOff()
	if initial > 0 {
		b.InitialInterval = initial
	}
	if max > 0 {
		b.MaxInterval = max
	}
	b.MaxElapsedTime = maxElapsed
	b.Reset()
	return &ExponentialReconnect{b: b}
}

// NextDelay implements ReconnectPolicy.
func (p *ExponentialReconnect) NextDelay() (time.Duration, bool) {
	d := p.b.NextBackOff()
	if d == backoff.Stop {
		return 0, false
	}
	return d, true
}

// Reset implements ReconnectPolicy.
func (p *ExponentialReconnect) Reset() {
	p.b.Reset()
}
