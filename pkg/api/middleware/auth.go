package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/goclaw/manifest/pkg/api/response"
	"github.com/goclaw/manifest/pkg/auth"
	"github.com/goclaw/manifest/pkg/logger"
)

// Authenticator resolves the caller of a request.
type Authenticator interface {
	Authenticate(ctx context.Context, authorization, remoteAddr string) (*auth.Identity, error)
}

// Auth returns a middleware that rejects unauthenticated requests with 401
// and stores the caller identity in the request context.
func Auth(authn Authenticator, log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := authn.Authenticate(r.Context(), r.Header.Get("Authorization"), r.RemoteAddr)
			if err != nil {
				requestID := GetRequestID(r.Context())
				var authErr *auth.Error
				if errors.As(err, &authErr) {
					response.TypedError(w, authErr.StatusCode(), response.ErrCodeUnauthorized,
						response.TypeAuthentication, authErr.Message, requestID)
					return
				}
				log.ErrorContext(r.Context(), "Authentication backend failed", "error", err, "request_id", requestID)
				response.Error(w, http.StatusInternalServerError, response.ErrCodeInternalServer,
					"Authentication unavailable", requestID)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// WithIdentity returns a copy of ctx carrying identity.
func WithIdentity(ctx context.Context, identity *auth.Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// IdentityFromContext returns the identity stored by Auth, or nil.
func IdentityFromContext(ctx context.Context) *auth.Identity {
	identity, _ := ctx.Value(identityKey).(*auth.Identity)
	return identity
}
