// Package proxy orchestrates one routed chat-completion request: admission,
// scoring, resolution, and forwarding to the chosen provider.
package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/goclaw/manifest/pkg/api/events"
	"github.com/goclaw/manifest/pkg/lane"
	"github.com/goclaw/manifest/pkg/limits"
	"github.com/goclaw/manifest/pkg/logger"
	"github.com/goclaw/manifest/pkg/metrics"
	"github.com/goclaw/manifest/pkg/provider"
	"github.com/goclaw/manifest/pkg/routing"
	"github.com/goclaw/manifest/pkg/scoring"
	"github.com/goclaw/manifest/pkg/session"
	"github.com/goclaw/manifest/pkg/storage"
)

const (
	// DefaultHeartbeatSentinel marks agent keep-alive turns.
	DefaultHeartbeatSentinel = "HEARTBEAT_OK"

	// DefaultScoringWindow is how many non-system messages are scored.
	DefaultScoringWindow = 10

	// DefaultSessionKey is used when the caller names no session.
	DefaultSessionKey = "default"

	sideEffectTimeout = 5 * time.Second
)

// Response headers carrying Meta.
const (
	HeaderTier       = "X-Manifest-Tier"
	HeaderModel      = "X-Manifest-Model"
	HeaderProvider   = "X-Manifest-Provider"
	HeaderConfidence = "X-Manifest-Confidence"
	HeaderReason     = "X-Manifest-Reason"
)

// Config configures a Proxy.
type Config struct {
	HeartbeatSentinel string
	ScoringWindow     int
}

// Forwarder sends a request upstream.
type Forwarder interface {
	Forward(ctx context.Context, req provider.ForwardRequest) (*provider.ForwardResult, error)
}

// Request is one inbound chat-completion call.
type Request struct {
	TenantID   string
	AgentID    string
	SessionKey string
	// Body is the caller's JSON body, forwarded unmodified apart from model
	// and stream.
	Body []byte
}

// Meta is what the caller learns about the routing decision.
type Meta struct {
	Tier       scoring.Tier   `json:"tier"`
	Model      string         `json:"model"`
	Provider   string         `json:"provider"`
	Confidence float64        `json:"confidence"`
	Reason     scoring.Reason `json:"reason"`
}

// Headers returns Meta as response headers.
func (m Meta) Headers() map[string]string {
	return map[string]string{
		HeaderTier:       string(m.Tier),
		HeaderModel:      m.Model,
		HeaderProvider:   m.Provider,
		HeaderConfidence: strconv.FormatFloat(m.Confidence, 'f', 4, 64),
		HeaderReason:     string(m.Reason),
	}
}

// Result is a forwarded request. The caller owns Forward.Response.Body.
type Result struct {
	Forward *provider.ForwardResult
	Meta    Meta
	Stream  bool
}

type chatRequest struct {
	Messages   []scoring.Message `json:"messages"`
	Tools      []any             `json:"tools"`
	ToolChoice any               `json:"tool_choice"`
	MaxTokens  float64           `json:"max_tokens"`
	Stream     bool              `json:"stream"`
}

// Option configures a Proxy.
type Option func(*Proxy)

// WithLimits enables the admission check.
func WithLimits(c limits.Checker) Option {
	return func(p *Proxy) { p.limits = c }
}

// WithUsageRecorder records usage after each request.
func WithUsageRecorder(r limits.Recorder) Option {
	return func(p *Proxy) { p.usage = r }
}

// WithSideEffectLane runs usage recording on l instead of a goroutine per
// request.
func WithSideEffectLane(l SideEffectLane) Option {
	return func(p *Proxy) { p.sideEffects = l }
}

// WithEvents publishes routing decisions.
func WithEvents(b *events.Broadcaster) Option {
	return func(p *Proxy) { p.events = b }
}

// WithMetrics records limit violations.
func WithMetrics(m *metrics.Manager) Option {
	return func(p *Proxy) { p.metrics = m }
}

// SideEffectLane accepts background work.
type SideEffectLane interface {
	Submit(task lane.Task) error
}

// Proxy routes and forwards chat-completion requests.
type Proxy struct {
	cfg         Config
	routing     *routing.Service
	momentum    *session.MomentumCache
	keys        storage.ProviderKeyStore
	client      Forwarder
	limits      limits.Checker
	usage       limits.Recorder
	sideEffects SideEffectLane
	events      *events.Broadcaster
	logger      logger.Logger
	metrics     *metrics.Manager
}

// New creates a Proxy.
func New(cfg Config, rs *routing.Service, momentum *session.MomentumCache, keys storage.ProviderKeyStore, client Forwarder, log logger.Logger, opts ...Option) *Proxy {
	if cfg.HeartbeatSentinel == "" {
		cfg.HeartbeatSentinel = DefaultHeartbeatSentinel
	}
	if cfg.ScoringWindow <= 0 {
		cfg.ScoringWindow = DefaultScoringWindow
	}
	p := &Proxy{
		cfg:      cfg,
		routing:  rs,
		momentum: momentum,
		keys:     keys,
		client:   client,
		logger:   log,
		metrics:  metrics.NoOpManager(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Handle routes and forwards req. Failures are returned as *Error.
func (p *Proxy) Handle(ctx context.Context, req Request) (*Result, error) {
	if req.SessionKey == "" {
		req.SessionKey = DefaultSessionKey
	}

	body, perr := parseBody(req.Body)
	if perr != nil {
		return nil, perr
	}

	if p.limits != nil && req.TenantID != "" && req.AgentID != "" {
		v, err := p.limits.Check(ctx, req.TenantID, req.AgentID)
		if err != nil {
			// Admission fails open when the counters are unreachable.
			p.logger.WarnContext(ctx, "limit check failed", "tenant_id", req.TenantID, "agent_id", req.AgentID, "error", err)
		} else if v != nil {
			p.metrics.RecordLimitViolation(v.Metric, v.Period)
			e := limitError(v)
			if p.events != nil {
				p.events.BroadcastLimitExceeded(req.TenantID, req.AgentID, v.RuleID, e.Message)
			}
			return nil, e
		}
	}

	window := ScoringWindow(body.Messages, p.cfg.ScoringWindow)

	var (
		res *routing.Resolution
		err error
	)
	if ContainsHeartbeat(window, p.cfg.HeartbeatSentinel) {
		res, err = p.routing.ResolveTier(ctx, req.AgentID, scoring.TierSimple, scoring.ReasonHeartbeat)
	} else {
		in := scoring.Input{
			Messages:    window,
			MaxTokens:   int(body.MaxTokens),
			RecentTiers: p.momentum.RecentTiers(req.SessionKey),
		}
		floors := scoring.FloorInput{Messages: body.Messages, Tools: body.Tools, ToolChoice: body.ToolChoice}
		res, err = p.routing.Resolve(ctx, req.AgentID, in, &floors)
	}
	if err != nil {
		return nil, internalError(err)
	}

	if !res.Resolved() {
		return nil, resolutionError(CodeNoProvider,
			"No model available for the %s tier. Connect a provider and assign a model to this tier in the dashboard.", res.Tier)
	}

	key, err := p.keys.GetProviderKey(ctx, req.TenantID, res.Provider)
	if err != nil {
		return nil, internalError(err)
	}
	if key == nil {
		return nil, resolutionError(CodeNoAPIKey,
			"No API key found for provider %s. Connect %s in the dashboard to route requests to it.", res.Provider, res.Provider)
	}

	fwd, err := p.client.Forward(ctx, provider.ForwardRequest{
		Provider: res.Provider,
		Model:    res.Model,
		APIKey:   *key,
		Body:     req.Body,
		Stream:   body.Stream,
	})
	if err != nil {
		var unknown *provider.UnknownProviderError
		if errors.As(err, &unknown) {
			return nil, resolutionError(CodeUnsupportedProvider, "Provider %s is not supported.", res.Provider)
		}
		return nil, internalError(err)
	}

	p.momentum.RecordTier(req.SessionKey, res.Tier)

	meta := Meta{
		Tier:       res.Tier,
		Model:      res.Model,
		Provider:   res.Provider,
		Confidence: res.Confidence,
		Reason:     res.Reason,
	}
	if p.events != nil {
		p.events.BroadcastRoutingDecision(events.RoutingDecision{
			TenantID:   req.TenantID,
			AgentID:    req.AgentID,
			SessionKey: req.SessionKey,
			Tier:       string(meta.Tier),
			Model:      meta.Model,
			Provider:   meta.Provider,
			Reason:     string(meta.Reason),
			Confidence: meta.Confidence,
			Stream:     body.Stream,
		})
	}

	return &Result{Forward: fwd, Meta: meta, Stream: body.Stream}, nil
}

// RecordUsage records what a request consumed in the background. It never
// blocks the caller and its failures are only logged.
func (p *Proxy) RecordUsage(ctx context.Context, req Request, meta Meta, usage provider.TokenUsage) {
	if p.usage == nil || req.TenantID == "" || req.AgentID == "" {
		return
	}
	record := func(ctx context.Context) error {
		err := p.usage.Record(ctx, limits.Usage{
			TenantID:     req.TenantID,
			AgentID:      req.AgentID,
			Model:        meta.Model,
			InputTokens:  usage.InputTokens,
			OutputTokens: usage.OutputTokens,
		})
		if err != nil {
			p.logger.WarnContext(ctx, "usage recording failed",
				"tenant_id", req.TenantID,
				"agent_id", req.AgentID,
				"error", err,
			)
		}
		return err
	}

	if p.sideEffects != nil {
		task := lane.NewTaskFunc("usage:"+req.AgentID, func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, sideEffectTimeout)
			defer cancel()
			return record(ctx)
		})
		if err := p.sideEffects.Submit(task); err != nil {
			p.logger.WarnContext(ctx, "usage recording skipped",
				"tenant_id", req.TenantID,
				"agent_id", req.AgentID,
				"error", err,
			)
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	go func() {
		defer cancel()
		_ = record(ctx)
	}()
}

func parseBody(raw []byte) (*chatRequest, *Error) {
	var probe struct {
		Messages json.RawMessage `json:"messages"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, validationError("Invalid JSON body")
	}
	trimmed := strings.TrimSpace(string(probe.Messages))
	if trimmed == "" || trimmed == "null" || !strings.HasPrefix(trimmed, "[") {
		return nil, validationError("messages must be a non-empty array")
	}

	var body chatRequest
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, validationError("Invalid request body: %v", err)
	}
	if len(body.Messages) == 0 {
		return nil, validationError("messages must be a non-empty array")
	}
	return &body, nil
}

// ScoringWindow drops system and developer messages and keeps the newest
// size of the rest, in their original order.
func ScoringWindow(messages []scoring.Message, size int) []scoring.Message {
	out := make([]scoring.Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == "system" || m.Role == "developer" {
			continue
		}
		out = append(out, m)
	}
	if size > 0 && len(out) > size {
		out = out[len(out)-size:]
	}
	return out
}

// ContainsHeartbeat reports whether any user message carries sentinel.
func ContainsHeartbeat(messages []scoring.Message, sentinel string) bool {
	if sentinel == "" {
		return false
	}
	for _, t := range scoring.ExtractUserTexts(messages) {
		if strings.Contains(t.Text, sentinel) {
			return true
		}
	}
	return false
}
