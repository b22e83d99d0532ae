package transporthttp

import (
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// BodyLimit limits request bodies to maxBytes.
func BodyLimit(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if maxBytes > 0 {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// APIKeyAuth allows an optional list of API keys; if the list is empty, auth is bypassed.
// Keys are expected in header: X-API-Key.
func APIKeyAuth(allowed map[string]struct{}) func(http.Handler) http.Handler {
	if len(allowed) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if _, ok := allowed[key]; !ok {
				WriteProblem(w, http.StatusUnauthorized, "unauthorized", "invalid or missing API key", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// tokenBucket is shared by every request passing through one limiter.
type tokenBucket struct {
	mu             sync.Mutex
	tokens         float64
	lastRefillNano int64
}

// RateLimitPerMinute applies one global token bucket refilled at
// limitPerMin per minute. limitPerMin <= 0 disables it.
func RateLimitPerMinute(limitPerMin int, clock func() time.Time) func(http.Handler) http.Handler {
	if limitPerMin <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	state := &tokenBucket{tokens: float64(limitPerMin), lastRefillNano: clock().UnixNano()}
	capacity := float64(limitPerMin)
	refillPerSec := float64(limitPerMin) / 60.0
	retryAfter := strconv.Itoa(int(60/limitPerMin) + 1)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			now := clock()

			state.mu.Lock()
			elapsed := float64(now.UnixNano()-state.lastRefillNano) / 1e9
			state.lastRefillNano = now.UnixNano()
			state.tokens += elapsed * refillPerSec
			if state.tokens > capacity {
				state.tokens = capacity
			}
			allowed := state.tokens >= 1.0
			if allowed {
				state.tokens -= 1.0
			}
			state.mu.Unlock()

			if !allowed {
				w.Header().Set("Retry-After", retryAfter)
				WriteProblem(w, http.StatusTooManyRequests, "rate limit exceeded", "try again later", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// DrainBody fully reads and closes request bodies (handler helper).
func DrainBody(r *http.Request) {
	if r.Body != nil {
		_, _ = io.Copy(io.Discard, r.Body)
		_ = r.Body.Close()
	}
}
