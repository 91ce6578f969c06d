package middleware

import (
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

// PerUserRateLimit returns middleware that rate-limits requests per user.
// The userID function extracts the limiting key from the request; requests
// with an empty key are rejected as unauthorized. Requests over the limit
// get a 429.
func PerUserRateLimit(perSecond float64, burst int, userID func(r *http.Request) string) func(http.Handler) http.Handler {
	var mu sync.Mutex
	limiters := make(map[string]*rate.Limiter)

	limiterFor := func(key string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()
		l, ok := limiters[key]
		if !ok {
			l = rate.NewLimiter(rate.Limit(perSecond), burst)
			limiters[key] = l
		}
		return l
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := userID(r)
			if key == "" {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			if !limiterFor(key).Allow() {
				http.Error(w, `{"error":"rate limit exceeded"}`, http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
