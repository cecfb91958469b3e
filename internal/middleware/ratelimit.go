package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// Counter is the fixed-window counter behind RateLimiter; cache.RedisCache
// and cache.Memory implement it.
type Counter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

// RateLimiter applies a fixed-window rate limit per user, or per client IP
// for anonymous requests.
type RateLimiter struct {
	store  Counter
	limit  int
	window time.Duration
	scope  string
}

func NewRateLimiter(store Counter, limit int, window time.Duration, scope string) *RateLimiter {
	return &RateLimiter{
		store:  store,
		limit:  limit,
		window: window,
		scope:  scope,
	}
}

func (rl *RateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := fmt.Sprintf("ratelimit:%s:ip:%s", rl.scope, ClientIP(r))
		if userID, ok := UserIDFromContext(r.Context()); ok {
			key = fmt.Sprintf("ratelimit:%s:user:%d", rl.scope, userID)
		}

		count, err := rl.store.Incr(r.Context(), key, rl.window)
		if err != nil {
			jsonError(w, http.StatusInternalServerError, "Internal server error")
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.limit))
		if count > int64(rl.limit) {
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.Header().Set("Retry-After", strconv.Itoa(int(rl.window.Seconds())))
			rateLimitExceeded.WithLabelValues(rl.scope).Inc()
			jsonError(w, http.StatusTooManyRequests, "Rate limit exceeded")
			return
		}
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(rl.limit-int(count)))

		next.ServeHTTP(w, r)
	})
}
