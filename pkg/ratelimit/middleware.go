package ratelimit

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
)

// Response headers set by Middleware.
const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderRetryAfter = "Retry-After"
)

// ThrottledMessage is the error message of a rejected request.
const ThrottledMessage = "Too many requests. Please try again later."

// Middleware gates every request through the limiter.
//
// Admitted requests carry X-RateLimit-Limit and X-RateLimit-Remaining.
// Rejected requests get 429 with a JSON error body and a Retry-After of the
// full window length; the wrapped handler is not called.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	retryAfter := strconv.Itoa(int(math.Ceil(l.window.Seconds())))
	limit := strconv.Itoa(l.max)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		decision := l.Check(ClientIP(r))

		w.Header().Set(HeaderLimit, limit)
		w.Header().Set(HeaderRemaining, strconv.Itoa(decision.Remaining))

		if !decision.Allowed {
			w.Header().Set(HeaderRetryAfter, retryAfter)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": ThrottledMessage})
			return
		}

		next.ServeHTTP(w, r)
	})
}
