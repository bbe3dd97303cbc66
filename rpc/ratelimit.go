package rpc

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig bounds one client's request rate against this surface.
// Zero values disable limiting entirely (Middleware becomes a no-op),
// matching a dev run with no configured limits.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

func (c RateLimitConfig) enabled() bool {
	return c.RequestsPerSecond > 0 && c.Burst > 0
}

type rateEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter throttles per-client traffic against the read and admin
// routes alike, keyed by the caller's resolved address rather than by
// route, since every route here reads from or mutates shared hub state.
type RateLimiter struct {
	cfg      RateLimitConfig
	mu       sync.Mutex
	visitors map[string]*rateEntry
	nowFn    func() time.Time
}

// NewRateLimiter constructs a RateLimiter. A zero-value cfg disables
// limiting; Middleware then passes every request through unchanged.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		cfg:      cfg,
		visitors: make(map[string]*rateEntry),
		nowFn:    time.Now,
	}
}

// Middleware rejects a request with 429 once its client has exhausted its
// token bucket; otherwise it passes through untouched.
func (r *RateLimiter) Middleware(next http.Handler) http.Handler {
	if !r.cfg.enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		limiter := r.obtain(clientID(req))
		if !limiter.AllowN(r.nowFn(), 1) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, req)
	})
}

func (r *RateLimiter) obtain(id string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.nowFn()
	if entry, ok := r.visitors[id]; ok {
		entry.lastSeen = now
		return entry.limiter
	}
	limiter := rate.NewLimiter(rate.Limit(r.cfg.RequestsPerSecond), r.cfg.Burst)
	r.visitors[id] = &rateEntry{limiter: limiter, lastSeen: now}
	r.evictStaleLocked(now)
	return limiter
}

// evictStaleLocked drops visitors idle for more than ten minutes, bounding
// the map's size under a long-lived process with many distinct callers.
// Called with r.mu held.
func (r *RateLimiter) evictStaleLocked(now time.Time) {
	for id, entry := range r.visitors {
		if now.Sub(entry.lastSeen) > 10*time.Minute {
			delete(r.visitors, id)
		}
	}
}

// clientID resolves the caller identity a bucket is keyed on: a reverse
// proxy's X-Real-IP or X-Forwarded-For header if present, else the TCP
// peer address.
func clientID(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if comma := strings.IndexByte(fwd, ','); comma > 0 {
			fwd = fwd[:comma]
		}
		if ip := net.ParseIP(strings.TrimSpace(fwd)); ip != nil {
			return ip.String()
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
