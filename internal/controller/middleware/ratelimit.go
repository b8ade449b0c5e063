package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// IntakeLimit configures the per-client rate limit on store intake.
// Provisioning is expensive, so intake is throttled well below what
// the API could otherwise absorb.
type IntakeLimit struct {
	RequestsPerMinute float64
	Burst             int
}

type cachedLimiter struct {
	limiter   *rate.Limiter
	expiresAt time.Time
}

// RateLimit throttles requests per client IP. Limiters are cached with
// a TTL so the map does not grow without bound.
func RateLimit(limit IntakeLimit) func(http.Handler) http.Handler {
	limiters := sync.Map{} // client IP -> *cachedLimiter

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client := clientIP(r)

			limiter := getOrCreateLimiter(&limiters, client, limit, 10*time.Minute)
			if !limiter.Allow() {
				w.Header().Set("Retry-After", "1")
				http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func getOrCreateLimiter(limiters *sync.Map, key string, limit IntakeLimit, ttl time.Duration) *rate.Limiter {
	if v, ok := limiters.Load(key); ok {
		cached := v.(*cachedLimiter)
		if time.Now().Before(cached.expiresAt) {
			return cached.limiter
		}
		// expired, need to create new
	}

	limiter := rate.NewLimiter(rate.Limit(limit.RequestsPerMinute/60), limit.Burst)
	limiters.Store(key, &cachedLimiter{
		limiter:   limiter,
		expiresAt: time.Now().Add(ttl),
	})
	return limiter
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
