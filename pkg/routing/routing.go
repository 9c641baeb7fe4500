// Package routing turns a scoring result into a concrete model and provider.
package routing

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/goclaw/manifest/pkg/logger"
	"github.com/goclaw/manifest/pkg/metrics"
	"github.com/goclaw/manifest/pkg/scoring"
	"github.com/goclaw/manifest/pkg/storage"
)

// Resolution is a routing decision. Model and Provider are empty when the
// agent has nothing configured for the tier.
type Resolution struct {
	Tier       scoring.Tier   `json:"tier"`
	Model      string         `json:"model"`
	Provider   string         `json:"provider"`
	Confidence float64        `json:"confidence"`
	Score      float64        `json:"score"`
	Reason     scoring.Reason `json:"reason"`

	Result *scoring.Result `json:"-"`
}

// Resolved reports whether both model and provider are known.
func (r *Resolution) Resolved() bool {
	return r.Model != "" && r.Provider != ""
}

// Option configures a Service.
type Option func(*Service)

// WithMetrics records routing decisions.
func WithMetrics(m *metrics.Manager) Option {
	return func(s *Service) { s.metrics = m }
}

// Service scores requests and looks up the target for the tier.
type Service struct {
	scorer  atomic.Pointer[scoring.Scorer]
	tiers   storage.TierStore
	pricing storage.PricingStore
	logger  logger.Logger
	metrics *metrics.Manager
}

// NewService creates a routing service.
func NewService(scorer *scoring.Scorer, tiers storage.TierStore, pricing storage.PricingStore, log logger.Logger, opts ...Option) *Service {
	s := &Service{
		tiers:   tiers,
		pricing: pricing,
		logger:  log,
		metrics: metrics.NoOpManager(),
	}
	s.scorer.Store(scorer)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scorer returns the active scorer.
func (s *Service) Scorer() *scoring.Scorer {
	return s.scorer.Load()
}

// SetScorer swaps the active scorer. In-flight requests finish on the old one.
func (s *Service) SetScorer(scorer *scoring.Scorer) {
	if scorer != nil {
		s.scorer.Store(scorer)
	}
}

// Score runs the active scorer and times it. A nil floors reads the floors
// from in itself.
func (s *Service) Score(in scoring.Input, floors *scoring.FloorInput) *scoring.Result {
	start := time.Now()
	scorer := s.scorer.Load()
	var result *scoring.Result
	if floors != nil {
		result = scorer.ScoreWithFloors(in, *floors)
	} else {
		result = scorer.Score(in)
	}
	s.metrics.RecordScoringDuration(time.Since(start))
	return result
}

// Resolve scores in and resolves the tier for agentID. When floors is set
// the floors read that view, which lets callers score a reduced input while
// flooring on the full request.
func (s *Service) Resolve(ctx context.Context, agentID string, in scoring.Input, floors *scoring.FloorInput) (*Resolution, error) {
	result := s.Score(in, floors)

	res, err := s.lookup(ctx, agentID, result.Tier)
	if err != nil {
		return nil, err
	}
	res.Confidence = result.Confidence
	res.Score = result.Score
	res.Reason = result.Reason
	res.Result = result

	s.metrics.RecordRoutingDecision(string(res.Tier), string(res.Reason), res.Confidence)
	s.logger.DebugContext(ctx, "request routed",
		"agent_id", agentID,
		"tier", res.Tier,
		"reason", res.Reason,
		"score", res.Score,
		"confidence", res.Confidence,
		"model", res.Model,
	)
	return res, nil
}

// ResolveTier resolves a fixed tier without scoring.
func (s *Service) ResolveTier(ctx context.Context, agentID string, tier scoring.Tier, reason scoring.Reason) (*Resolution, error) {
	if !tier.Valid() {
		return nil, fmt.Errorf("unknown tier %q", tier)
	}
	res, err := s.lookup(ctx, agentID, tier)
	if err != nil {
		return nil, err
	}
	res.Confidence = 1
	res.Reason = reason

	s.metrics.RecordRoutingDecision(string(res.Tier), string(res.Reason), res.Confidence)
	return res, nil
}

// lookup reads the tier assignment. A missing provider is taken from the
// model's pricing entry.
func (s *Service) lookup(ctx context.Context, agentID string, tier scoring.Tier) (*Resolution, error) {
	res := &Resolution{Tier: tier}

	assignment, err := s.tiers.GetTierAssignment(ctx, agentID, tier)
	if err != nil {
		return nil, fmt.Errorf("get tier assignment: %w", err)
	}
	if assignment == nil || assignment.Model == "" {
		return res, nil
	}
	res.Model = assignment.Model
	res.Provider = assignment.Provider

	if res.Provider == "" && s.pricing != nil {
		pricing, err := s.pricing.GetModelPricing(ctx, res.Model)
		if err != nil {
			return nil, fmt.Errorf("get model pricing: %w", err)
		}
		if pricing != nil {
			res.Provider = pricing.Provider
		}
	}
	return res, nil
}
