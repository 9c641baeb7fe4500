package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/goclaw/manifest/pkg/api/middleware"
	"github.com/goclaw/manifest/pkg/api/response"
	"github.com/goclaw/manifest/pkg/logger"
	"github.com/goclaw/manifest/pkg/metrics"
	"github.com/goclaw/manifest/pkg/provider"
	"github.com/goclaw/manifest/pkg/proxy"
)

// SessionKeyHeader selects the momentum session of a request.
const SessionKeyHeader = "X-Session-Key"

// ChatProxy routes and forwards chat completions.
type ChatProxy interface {
	Handle(ctx context.Context, req proxy.Request) (*proxy.Result, error)
	RecordUsage(ctx context.Context, req proxy.Request, meta proxy.Meta, usage provider.TokenUsage)
}

// ChatHandler serves the OpenAI-compatible chat completions endpoint.
type ChatHandler struct {
	proxy        ChatProxy
	logger       logger.Logger
	metrics      *metrics.Manager
	maxBodyBytes int64
}

// NewChatHandler creates a chat handler. A nil metrics manager disables
// stream chunk counting.
func NewChatHandler(p ChatProxy, log logger.Logger, m *metrics.Manager, maxBodyBytes int64) *ChatHandler {
	if m == nil {
		m = metrics.NoOpManager()
	}
	return &ChatHandler{
		proxy:        p,
		logger:       log,
		metrics:      m,
		maxBodyBytes: maxBodyBytes,
	}
}

// Completions handles POST /v1/chat/completions.
func (h *ChatHandler) Completions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := getRequestID(ctx)

	body, err := readBody(w, r, h.maxBodyBytes)
	if err != nil {
		if errors.Is(err, errBodyTooLarge) {
			response.TypedError(w, http.StatusRequestEntityTooLarge, proxy.CodeInvalidRequest,
				proxy.TypeInvalidRequest, "Request body too large", requestID)
			return
		}
		response.TypedError(w, http.StatusBadRequest, proxy.CodeInvalidRequest,
			proxy.TypeInvalidRequest, "Invalid request body", requestID)
		return
	}

	req := proxy.Request{
		SessionKey: strings.TrimSpace(r.Header.Get(SessionKeyHeader)),
		Body:       body,
	}
	if identity := middleware.IdentityFromContext(ctx); identity != nil {
		req.TenantID = identity.TenantID
		req.AgentID = identity.AgentID
	}

	result, err := h.proxy.Handle(ctx, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	fwd := result.Forward
	if result.Stream && fwd.OK() {
		h.stream(w, r, req, result)
		return
	}

	payload, err := fwd.ReadBody()
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	for k, v := range result.Meta.Headers() {
		w.Header().Set(k, v)
	}
	contentType := fwd.Response.Header.Get("Content-Type")
	if contentType == "" || (fwd.IsGoogle() && fwd.OK()) {
		contentType = "application/json"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(fwd.Response.StatusCode)
	_, _ = w.Write(payload)

	if usage, ok := provider.ExtractUsage(payload); ok {
		h.proxy.RecordUsage(ctx, req, result.Meta, usage)
	}
}

func (h *ChatHandler) stream(w http.ResponseWriter, r *http.Request, req proxy.Request, result *proxy.Result) {
	ctx := r.Context()
	fwd := result.Forward

	if err := provider.WriteSSEHeaders(w, result.Meta.Headers()); err != nil {
		_ = fwd.Response.Body.Close()
		h.logger.WarnContext(ctx, "stream headers failed", "error", err)
		return
	}

	opts := provider.StreamOptions{
		OnChunk: func() { h.metrics.RecordStreamChunk(result.Meta.Provider) },
	}
	if fwd.IsGoogle() {
		opts.Google = provider.NewGoogleStreamConverter(fwd.Model)
	}

	res, err := provider.PipeStream(ctx, w, fwd.Response.Body, opts)
	if err != nil && !errors.Is(err, context.Canceled) {
		h.logger.WarnContext(ctx, "stream ended early",
			"provider", result.Meta.Provider,
			"chunks", res.Chunks,
			"error", err,
		)
	}
	if res.UsageFound {
		h.proxy.RecordUsage(ctx, req, result.Meta, res.Usage)
	}
}

// writeError maps proxy failures to responses. Internal detail is logged,
// never returned.
func (h *ChatHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	requestID := getRequestID(ctx)

	var perr *proxy.Error
	if errors.As(err, &perr) && perr.Status < http.StatusInternalServerError {
		if perr.Status == http.StatusTooManyRequests {
			response.RateLimited(w, perr.Message, requestID)
			return
		}
		response.TypedError(w, perr.Status, perr.Code, perr.Type, perr.Message, requestID)
		return
	}

	var tooLarge *provider.ResponseTooLargeError
	if errors.As(err, &tooLarge) {
		h.logger.WarnContext(ctx, "Upstream response too large", "request_id", requestID,
			"provider", tooLarge.Provider, "limit", tooLarge.Limit)
		response.TypedError(w, http.StatusBadGateway, proxy.CodeUpstreamTooLarge, proxy.TypeServer,
			"Upstream response too large", requestID)
		return
	}

	h.logger.ErrorContext(ctx, "Proxy request failed", "request_id", requestID, "error", err)
	response.TypedError(w, http.StatusInternalServerError, proxy.CodeInternal, proxy.TypeServer,
		proxy.InternalErrorMessage, requestID)
}
