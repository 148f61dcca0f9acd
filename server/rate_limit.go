package server

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const limiterIdleTTL = 10 * time.Minute

// signInLimiter keeps one token bucket per client.
type signInLimiter struct {
	rate  rate.Limit
	burst int
	now   func() time.Time

	mu         sync.Mutex
	limiters   map[string]*rate.Limiter
	lastAccess map[string]time.Time
	lastSweep  time.Time
}

func newSignInLimiter(perSecond float64, burst int) *signInLimiter {
	return &signInLimiter{
		rate:       rate.Limit(perSecond),
		burst:      burst,
		now:        time.Now,
		limiters:   make(map[string]*rate.Limiter),
		lastAccess: make(map[string]time.Time),
	}
}

func (l *signInLimiter) Allow(client string) bool {
	l.mu.Lock()
	now := l.now()
	limiter, ok := l.limiters[client]
	if !ok {
		limiter = rate.NewLimiter(l.rate, l.burst)
		l.limiters[client] = limiter
	}
	l.lastAccess[client] = now
	if now.Sub(l.lastSweep) > limiterIdleTTL {
		l.sweepLocked(now)
	}
	l.mu.Unlock()

	return limiter.AllowN(now, 1)
}

// sweepLocked drops limiters for clients not seen for limiterIdleTTL.
func (l *signInLimiter) sweepLocked(now time.Time) {
	for client, seen := range l.lastAccess {
		if now.Sub(seen) > limiterIdleTTL {
			delete(l.lastAccess, client)
			delete(l.limiters, client)
		}
	}
	l.lastSweep = now
}

// clientIP prefers the first X-Forwarded-For hop, then RemoteAddr.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
