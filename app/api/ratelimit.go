package api

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// rateLimiter tracks a token bucket per client IP for the public validate
// endpoint. Entries idle for an hour are evicted on the next lookup pass.
type rateLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientEntry
	limit   rate.Limit
	burst   int
}

type clientEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newRateLimiter(perMinute int) *rateLimiter {
	if perMinute <= 0 {
		perMinute = 10
	}
	return &rateLimiter{
		clients: make(map[string]*clientEntry),
		limit:   rate.Limit(float64(perMinute) / 60.0),
		burst:   perMinute,
	}
}

func (l *rateLimiter) Allow(clientIP string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()

	if len(l.clients) > 1000 {
		for ip, entry := range l.clients {
			if now.Sub(entry.lastSeen) > time.Hour {
				delete(l.clients, ip)
			}
		}
	}

	entry, ok := l.clients[clientIP]
	if !ok {
		entry = &clientEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[clientIP] = entry
	}
	entry.lastSeen = now

	return entry.limiter.Allow()
}
