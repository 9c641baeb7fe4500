package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/tidwall/sjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/goclaw/manifest/pkg/logger"
	"github.com/goclaw/manifest/pkg/metrics"
	"github.com/goclaw/manifest/pkg/version"
)

const providerTracerName = "manifest.provider"

const (
	// DefaultUpstreamTimeout bounds one upstream call including streaming.
	DefaultUpstreamTimeout = 180 * time.Second

	// MaxResponseSize caps buffered (non-streaming) upstream bodies.
	MaxResponseSize = 32 << 20
)

// ForwardRequest is one upstream call.
type ForwardRequest struct {
	Provider string
	Model    string
	// APIKey may be empty for self-hosted providers.
	APIKey string
	// Body is the caller's original JSON body.
	Body   []byte
	Stream bool
}

// ForwardResult holds the upstream response. The caller must close
// Response.Body, which also releases the upstream deadline.
type ForwardResult struct {
	Response *http.Response
	Endpoint Endpoint
	Model    string
	Stream   bool

	// MaxBodySize caps ReadBody. Zero means MaxResponseSize.
	MaxBodySize int64
}

// ResponseTooLargeError reports a buffered upstream body over the limit.
type ResponseTooLargeError struct {
	Provider string
	Limit    int64
}

func (e *ResponseTooLargeError) Error() string {
	return fmt.Sprintf("%s response exceeds %d bytes", e.Provider, e.Limit)
}

// IsGoogle reports whether the response is in Gemini format.
func (r *ForwardResult) IsGoogle() bool {
	return r.Endpoint.Format == FormatGoogle
}

// OK reports a 2xx upstream status.
func (r *ForwardResult) OK() bool {
	return r.Response.StatusCode >= 200 && r.Response.StatusCode < 300
}

// ReadBody reads and closes a buffered response. Successful Gemini bodies
// are converted to chat.completion; error bodies pass through untouched.
func (r *ForwardResult) ReadBody() ([]byte, error) {
	defer r.Response.Body.Close()

	limit := r.MaxBodySize
	if limit <= 0 {
		limit = MaxResponseSize
	}
	body, err := io.ReadAll(io.LimitReader(r.Response.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", r.Endpoint.Key, err)
	}
	if int64(len(body)) > limit {
		return nil, &ResponseTooLargeError{Provider: r.Endpoint.Key, Limit: limit}
	}
	if r.IsGoogle() && r.OK() {
		return ConvertGoogleResponse(body, r.Model)
	}
	return body, nil
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the upstream timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithMaxResponseSize caps buffered upstream bodies.
func WithMaxResponseSize(n int64) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.maxResponseSize = n
		}
	}
}

// WithClientMetrics records upstream calls.
func WithClientMetrics(m *metrics.Manager) ClientOption {
	return func(c *Client) { c.metrics = m }
}

// Client forwards requests to upstream providers.
type Client struct {
	registry        *Registry
	http            *http.Client
	timeout         time.Duration
	maxResponseSize int64
	logger          logger.Logger
	metrics         *metrics.Manager
}

// NewClient creates a provider client.
func NewClient(registry *Registry, log logger.Logger, opts ...ClientOption) *Client {
	c := &Client{
		registry: registry,
		http: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		timeout:         DefaultUpstreamTimeout,
		maxResponseSize: MaxResponseSize,
		logger:          log,
		metrics:         metrics.NoOpManager(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Forward sends req upstream. The upstream deadline combines the client
// timeout with ctx, so a caller disconnect tears the call down. Non-2xx
// responses are returned, not treated as errors.
func (c *Client) Forward(ctx context.Context, req ForwardRequest) (*ForwardResult, error) {
	ep, err := c.registry.Lookup(req.Provider)
	if err != nil {
		return nil, err
	}
	body, err := buildBody(ep, req)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	ctx, span := otel.Tracer(providerTracerName).Start(ctx, "provider.forward", trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.String("llm.provider", ep.Key),
		attribute.String("llm.model", req.Model),
		attribute.Bool("llm.stream", req.Stream),
	)
	release := func() {
		span.End()
		cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL(req.Model, req.APIKey, req.Stream), bytes.NewReader(body))
	if err != nil {
		release()
		return nil, fmt.Errorf("build %s request: %w", ep.Key, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", version.UserAgent())
	if req.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}
	if ep.Format == FormatOpenAI && !ep.NoAuth && req.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.APIKey)
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		c.metrics.RecordProviderRequest(ctx, ep.Key, "error", time.Since(start))
		release()
		return nil, fmt.Errorf("forward to %s: %w", ep.Key, err)
	}

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	if resp.StatusCode >= 400 {
		span.SetStatus(otelcodes.Error, resp.Status)
		c.logger.WarnContext(ctx, "upstream returned error status",
			"provider", ep.Key,
			"model", req.Model,
			"status", resp.StatusCode,
		)
	}
	c.metrics.RecordProviderRequest(ctx, ep.Key, strconv.Itoa(resp.StatusCode), time.Since(start))

	resp.Body = &releasingBody{ReadCloser: resp.Body, release: release}
	return &ForwardResult{
		Response:    resp,
		Endpoint:    ep,
		Model:       req.Model,
		Stream:      req.Stream,
		MaxBodySize: c.maxResponseSize,
	}, nil
}

func buildBody(ep Endpoint, req ForwardRequest) ([]byte, error) {
	if ep.Format == FormatGoogle {
		var body map[string]any
		if err := json.Unmarshal(req.Body, &body); err != nil {
			return nil, fmt.Errorf("decode request body: %w", err)
		}
		out, err := json.Marshal(ToGoogleRequest(body))
		if err != nil {
			return nil, fmt.Errorf("encode google request: %w", err)
		}
		return out, nil
	}

	out, err := sjson.SetBytes(req.Body, "model", req.Model)
	if err != nil {
		return nil, fmt.Errorf("set model: %w", err)
	}
	out, err = sjson.SetBytes(out, "stream", req.Stream)
	if err != nil {
		return nil, fmt.Errorf("set stream: %w", err)
	}
	return out, nil
}

// releasingBody ends the span and cancels the upstream context on the
// first Close.
type releasingBody struct {
	io.ReadCloser
	release func()
	once    sync.Once
}

func (b *releasingBody) Close() error {
	err := b.ReadCloser.Close()
	b.once.Do(b.release)
	return err
}
