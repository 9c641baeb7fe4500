package interceptors

import "context"

type contextKey string

const requestIDContextKey contextKey = "request_id"

func withRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDContextKey, requestID)
}

func requestIDFromContext(ctx context.Context) (string, bool) {
	requestID, ok := ctx.Value(requestIDContextKey).(string)
	return requestID, ok
}

// RequestIDFromContext returns the request ID set by the request ID interceptor.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := requestIDFromContext(ctx)
	return id
}
