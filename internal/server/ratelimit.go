package server

import (
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/caselight/cqa-go/internal/logging"
)

const (
	// defaultRateLimit is the sustained per-IP request rate (requests/second)
	// when no explicit limit is configured.
	defaultRateLimit = 10

	// defaultRateBurst allows short request spikes per IP before 429s start.
	defaultRateBurst = 20

	// evictInterval is how often stale per-IP buckets are swept.
	evictInterval = time.Minute

	// staleAfter is how long an IP may be idle before its bucket is dropped.
	staleAfter = 5 * time.Minute
)

// bucket pairs a token bucket with the time its IP was last seen, so idle
// entries can be swept and the map stays bounded.
type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter enforces a per-client-IP token-bucket limit across the API.
// One instance is shared by all routes; a background sweeper drops idle IPs.
type rateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rps     rate.Limit
	burst   int
	log     *slog.Logger
}

// newRateLimiter constructs a rateLimiter and starts its sweeper goroutine.
// The returned stop function ends the sweeper; the server calls it during
// shutdown.
func newRateLimiter(rps float64, burst int, log *slog.Logger) (*rateLimiter, func()) {
	rl := &rateLimiter{
		buckets: make(map[string]*bucket),
		rps:     rate.Limit(rps),
		burst:   burst,
		log:     log,
	}

	stopCh := make(chan struct{})
	go func() {
		ticker := time.NewTicker(evictInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				rl.sweep()
			}
		}
	}()

	return rl, func() { close(stopCh) }
}

// allow reports whether a request from ip may proceed, creating the IP's
// bucket on first sight.
func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	b, ok := rl.buckets[ip]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.buckets[ip] = b
	}
	b.lastSeen = time.Now()
	rl.mu.Unlock()

	return b.limiter.Allow()
}

// sweep drops buckets idle for longer than staleAfter.
func (rl *rateLimiter) sweep() {
	cutoff := time.Now().Add(-staleAfter)

	rl.mu.Lock()
	defer rl.mu.Unlock()
	for ip, b := range rl.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(rl.buckets, ip)
		}
	}
}

// middleware rejects over-limit requests with 429 and a Retry-After header
// before they reach the handlers.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !rl.allow(ip) {
			logging.FromContext(r.Context()).Warn("rate limit exceeded",
				slog.String("ip", ip),
				slog.String("path", r.URL.Path),
			)
			w.Header().Set("Retry-After", "1")
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP returns the request's remote IP without the port. X-Forwarded-For
// is deliberately ignored: the server binds to localhost and forwarded
// headers are trivially spoofable.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
