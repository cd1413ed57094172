package httpmcp

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// clientLimiter pairs a token bucket with the last time it was touched, so
// the sweeper can evict entries for clients that stopped sending requests.
type clientLimiter struct {
	limiter *rate.Limiter
	seenAt  time.Time
}

// perClientLimiter rate-limits requests per client key (session id, else a
// forwarded-for address, else "unknown"), mirroring the dispatcher's own
// rateLimitMiddleware but keyed at the HTTP layer where a request can be
// rejected before a session or envelope is even parsed.
type perClientLimiter struct {
	mu       sync.Mutex
	limiters map[string]*clientLimiter
	limit    rate.Limit
	burst    int
}

func newPerClientLimiter(eventsPerSecond float64, burst int) *perClientLimiter {
	return &perClientLimiter{
		limiters: make(map[string]*clientLimiter),
		limit:    rate.Limit(eventsPerSecond),
		burst:    burst,
	}
}

func (p *perClientLimiter) allow(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	cl, ok := p.limiters[key]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(p.limit, p.burst)}
		p.limiters[key] = cl
	}
	cl.seenAt = time.Now()
	return cl.limiter.Allow()
}

// sweep evicts limiters untouched for longer than ttl, run periodically by
// the Transport's background goroutine.
func (p *perClientLimiter) sweep(ttl time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for key, cl := range p.limiters {
		if time.Since(cl.seenAt) > ttl {
			delete(p.limiters, key)
		}
	}
}

// clientKey derives the rate-limit bucket for a request: the session id
// when known, otherwise a forwarded client address, otherwise "unknown".
func clientKey(r *http.Request, sessionID string) string {
	if sessionID != "" {
		return sessionID
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	if real := r.Header.Get("X-Real-IP"); real != "" {
		return real
	}
	return "unknown"
}
