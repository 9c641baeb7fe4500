package interceptors

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/goclaw/manifest/pkg/logger"
)

// LoggingUnaryInterceptor logs every unary RPC once it completes.
func LoggingUnaryInterceptor(log logger.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()

		resp, err := handler(ctx, req)

		logCall(ctx, log, info.FullMethod, false, err, time.Since(start))
		return resp, err
	}
}

// LoggingStreamInterceptor logs every streaming RPC once it completes.
func LoggingStreamInterceptor(log logger.Logger) grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()

		err := handler(srv, ss)

		logCall(ss.Context(), log, info.FullMethod, true, err, time.Since(start))
		return err
	}
}

func logCall(ctx context.Context, log logger.Logger, method string, stream bool, err error, duration time.Duration) {
	requestID, ok := requestIDFromContext(ctx)
	if !ok {
		requestID = "unknown"
	}
	code := codes.OK
	if err != nil {
		code = status.Code(err)
	}
	args := []any{
		"request_id", requestID,
		"method", method,
		"stream", stream,
		"code", code.String(),
		"duration_ms", duration.Milliseconds(),
	}
	if code == codes.Internal || code == codes.Unknown {
		log.ErrorContext(ctx, "gRPC request", append(args, "error", err)...)
		return
	}
	log.DebugContext(ctx, "gRPC request", args...)
}
