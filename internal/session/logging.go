package session

import (
	"log"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// throttledLogger rate-limits repetitive diagnostics (a misbehaving backend
// can send thousands of bad frames a second). Suppressed lines are counted
// and reported with the next line that gets through.
type throttledLogger struct {
	limiter *rate.Limiter

	mu         sync.Mutex
	suppressed int
}

func newThrottledLogger(every time.Duration, burst int) *throttledLogger {
	return &throttledLogger{limiter: rate.NewLimiter(rate.Every(every), burst)}
}

func (l *throttledLogger) Printf(format string, args ...interface{}) {
	if !l.limiter.Allow() {
		l.mu.Lock()
		l.suppressed++
		l.mu.Unlock()
		return
	}

	l.mu.Lock()
	n := l.suppressed
	l.suppressed = 0
	l.mu.Unlock()

	if n > 0 {
		log.Printf("session: %d similar messages suppressed", n)
	}
	log.Printf(format, args...)
}

// Suppressed returns how many lines are waiting to be reported.
func (l *throttledLogger) Suppressed() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.suppressed
}
