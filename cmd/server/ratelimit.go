package main

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/brunobiangulo/logsight"
)

// rateLimiter applies a per-client-IP token bucket to a route class.
// A nil *rateLimiter passes every request, so a route class can be disabled
// by configuring an empty limit string.
type rateLimiter struct {
	limit rate.Limit
	burst int

	mu      sync.Mutex
	clients map[string]*rateClient
	lastGC  time.Time
}

type rateClient struct {
	lim  *rate.Limiter
	seen time.Time
}

// clientIdleTTL is how long an idle client entry survives before pruning.
const clientIdleTTL = 10 * time.Minute

// newRateLimiter builds a limiter from a "<count>/<window>" spec. An empty
// spec yields nil, meaning unlimited.
func newRateLimiter(spec string) (*rateLimiter, error) {
	if spec == "" {
		return nil, nil
	}
	count, window, err := logsight.ParseRate(spec)
	if err != nil {
		return nil, err
	}
	return &rateLimiter{
		limit:   rate.Limit(float64(count) / window.Seconds()),
		burst:   count,
		clients: make(map[string]*rateClient),
		lastGC:  time.Now(),
	}, nil
}

// wrap enforces the limit before next runs. Exceeding clients get 429 with
// a Retry-After hint.
func (rl *rateLimiter) wrap(next http.HandlerFunc) http.HandlerFunc {
	if rl == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if !rl.allow(clientIP(r)) {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next(w, r)
	}
}

func (rl *rateLimiter) allow(ip string) bool {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.lastGC) > clientIdleTTL {
		for ip, c := range rl.clients {
			if now.Sub(c.seen) > clientIdleTTL {
				delete(rl.clients, ip)
			}
		}
		rl.lastGC = now
	}

	c, ok := rl.clients[ip]
	if !ok {
		c = &rateClient{lim: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[ip] = c
	}
	c.seen = now
	return c.lim.Allow()
}

// clientIP extracts the caller's address, preferring the first hop recorded
// by a trusted reverse proxy.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
