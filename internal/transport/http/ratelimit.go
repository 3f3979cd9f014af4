package http

import (
	"sync"
	"time"
)

// connLimiter caps websocket upgrades per minute to keep reconnect
// storms from piling sessions onto the backend.
type connLimiter struct {
	limit   int
	mu      sync.Mutex
	counter int
	reset   *time.Ticker
}

func newConnLimiter(limit int) *connLimiter {
	if limit <= 0 {
		return &connLimiter{limit: 0}
	}
	return &connLimiter{
		limit: limit,
		reset: time.NewTicker(time.Minute),
	}
}

func (l *connLimiter) allow() bool {
	if l == nil || l.limit <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.counter++
	return l.counter <= l.limit
}

func (l *connLimiter) startReset(stop <-chan struct{}) {
	if l == nil || l.reset == nil {
		return
	}
	go func() {
		for {
			select {
			case <-l.reset.C:
				l.mu.Lock()
				l.counter = 0
				l.mu.Unlock()
			case <-stop:
				l.reset.Stop()
				return
			}
		}
	}()
}
