package http

import (
	"sync"
	"sync/atomic"
	"time"
)

const defaultRateLimitPerMinute = 60

// rateLimiter caps mutating requests per client IP over fixed one-minute
// windows. State is in-memory only; a restart resets every window.
type rateLimiter struct {
	mu      sync.Mutex
	limit   int
	windows map[string]*requestWindow

	stopCleanup  chan struct{}
	shutdownOnce sync.Once
}

// requestWindow counts requests since the window opened.
type requestWindow struct {
	openedAt time.Time
	count    int
}

func newRateLimiter(perMinute int) *rateLimiter {
	if perMinute < 1 {
		perMinute = defaultRateLimitPerMinute
	}
	rl := &rateLimiter{
		limit:       perMinute,
		windows:     make(map[string]*requestWindow),
		stopCleanup: make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

// allow records one request for the client and reports whether it fits the
// current window. A window expires one minute after it opened.
func (rl *rateLimiter) allow(clientIP string, metrics *securityMetrics) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	w, ok := rl.windows[clientIP]
	if !ok || now.Sub(w.openedAt) > time.Minute {
		rl.windows[clientIP] = &requestWindow{openedAt: now, count: 1}
		return true
	}

	w.count++
	if w.count > rl.limit {
		if metrics != nil {
			atomic.AddInt64(&metrics.rateLimitHits, 1)
		}
		return false
	}
	return true
}

func (rl *rateLimiter) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.dropExpiredWindows()
		case <-rl.stopCleanup:
			return
		}
	}
}

// dropExpiredWindows forgets clients whose window closed long ago, keeping
// the map bounded by recent traffic rather than total traffic.
func (rl *rateLimiter) dropExpiredWindows() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-10 * time.Minute)
	for ip, w := range rl.windows {
		if w.openedAt.Before(cutoff) {
			delete(rl.windows, ip)
		}
	}
}

// stop shuts down the cleanup goroutine. Safe to call more than once.
func (rl *rateLimiter) stop() {
	rl.shutdownOnce.Do(func() {
		close(rl.stopCleanup)
	})
}
