package interceptors

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// RequestIDKey is the metadata key for the request ID, matching the
// X-Request-ID header of the HTTP surface.
const RequestIDKey = "x-request-id"

// maxRequestIDLength matches the HTTP middleware; longer inbound IDs are replaced.
const maxRequestIDLength = 128

// RequestIDUnaryInterceptor accepts or mints a request ID, stores it in the
// context, echoes it in the response header and forwards it on outgoing calls.
func RequestIDUnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		ctx, requestID := attachRequestID(ctx)
		// No transport stream outside a real server call; nothing to echo then.
		_ = grpc.SetHeader(ctx, metadata.Pairs(RequestIDKey, requestID))
		return handler(ctx, req)
	}
}

// RequestIDStreamInterceptor is the streaming counterpart of RequestIDUnaryInterceptor.
func RequestIDStreamInterceptor() grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, requestID := attachRequestID(ss.Context())
		_ = ss.SetHeader(metadata.Pairs(RequestIDKey, requestID))
		return handler(srv, &wrappedStream{ServerStream: ss, ctx: ctx})
	}
}

func attachRequestID(ctx context.Context) (context.Context, string) {
	requestID := inboundRequestID(ctx)
	if requestID == "" {
		requestID = uuid.New().String()
	}
	ctx = withRequestID(ctx, requestID)
	return metadata.AppendToOutgoingContext(ctx, RequestIDKey, requestID), requestID
}

func inboundRequestID(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	for _, id := range md.Get(RequestIDKey) {
		id = strings.TrimSpace(id)
		if id != "" && len(id) <= maxRequestIDLength {
			return id
		}
	}
	return ""
}

type wrappedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (w *wrappedStream) Context() context.Context {
	return w.ctx
}
