package middleware

import (
	"net/http"

	"github.com/goclaw/manifest/pkg/api/response"
)

// Limiter decides whether a caller may proceed.
type Limiter interface {
	Allow(key string) bool
}

// RateLimitRecorder observes rejected requests.
type RateLimitRecorder interface {
	RecordRateLimited()
}

// RateLimit returns a middleware that rejects requests over the per-agent
// rate with 429. It must run after Auth; requests without an identity are
// keyed by remote address.
func RateLimit(limiter Limiter, recorder RateLimitRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.RemoteAddr
			if identity := IdentityFromContext(r.Context()); identity != nil {
				key = identity.AgentID
			}

			if !limiter.Allow(key) {
				if recorder != nil {
					recorder.RecordRateLimited()
				}
				w.Header().Set("Retry-After", "1")
				response.RateLimited(w, "Too many requests. Please slow down.", GetRequestID(r.Context()))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
