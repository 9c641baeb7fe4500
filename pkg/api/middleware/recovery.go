package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/goclaw/manifest/pkg/api/response"
	"github.com/goclaw/manifest/pkg/logger"
)

// Recovery returns a middleware that recovers from panics. The panic value
// is logged but never written to the client.
func Recovery(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}

					requestID := GetRequestID(r.Context())
					if requestID == "" {
						requestID = r.Header.Get(RequestIDHeader)
					}
					if requestID == "" {
						requestID = "unknown"
					}

					log.ErrorContext(r.Context(), "Panic recovered",
						"error", err,
						"path", r.URL.Path,
						"method", r.Method,
						"request_id", requestID,
						"stack", string(debug.Stack()),
					)

					response.Error(w,
						http.StatusInternalServerError,
						response.ErrCodeInternalServer,
						"Internal server error",
						requestID,
					)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
