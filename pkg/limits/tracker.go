// Package limits enforces per-tenant and per-agent usage limits.
package limits

import (
	"context"
	"fmt"
	"time"

	"github.com/goclaw/manifest/pkg/logger"
	"github.com/goclaw/manifest/pkg/storage"
)

// Checker reports whether an agent is over any of its limits.
type Checker interface {
	Check(ctx context.Context, tenantID, agentID string) (*Violation, error)
}

// Recorder accumulates usage.
type Recorder interface {
	Record(ctx context.Context, u Usage) error
}

// Usage is what one proxied request consumed.
type Usage struct {
	TenantID     string
	AgentID      string
	Model        string
	InputTokens  int
	OutputTokens int
	// Cost in USD. When zero it is derived from the model pricing.
	Cost float64
	At   time.Time
}

// Violation describes a limit that has been reached.
type Violation struct {
	RuleID    string  `json:"rule_id"`
	Metric    string  `json:"metric"`
	Period    string  `json:"period"`
	Threshold float64 `json:"threshold"`
	Current   float64 `json:"current"`
}

// ExceededError is returned when a request is rejected by a limit.
type ExceededError struct {
	Violation Violation
}

func (e *ExceededError) Error() string {
	return FormatViolation(e.Violation)
}

const tenantScope = "*"

// Tracker checks limit rules against usage counters.
type Tracker struct {
	rules   storage.LimitStore
	pricing storage.PricingStore
	usage   UsageStore
	logger  logger.Logger
	now     func() time.Time
}

// NewTracker creates a Tracker. pricing may be nil, in which case costs are
// only counted when supplied by the caller.
func NewTracker(rules storage.LimitStore, pricing storage.PricingStore, usage UsageStore, log logger.Logger) *Tracker {
	if log == nil {
		log = logger.Global()
	}
	return &Tracker{
		rules:   rules,
		pricing: pricing,
		usage:   usage,
		logger:  log.With("component", "limits"),
		now:     time.Now,
	}
}

// SetClock replaces time.Now, for tests.
func (t *Tracker) SetClock(now func() time.Time) {
	t.now = now
}

// Check returns the first violated rule, or nil.
func (t *Tracker) Check(ctx context.Context, tenantID, agentID string) (*Violation, error) {
	rules, err := t.rules.ListLimitRules(ctx, tenantID, agentID)
	if err != nil {
		return nil, fmt.Errorf("list limit rules: %w", err)
	}

	now := t.now()
	for _, r := range rules {
		scope := agentID
		if r.AgentID == "" {
			scope = tenantScope
		}
		current, err := t.usage.Value(ctx, bucketKey(tenantID, scope, r.Metric, r.Period, now))
		if err != nil {
			return nil, fmt.Errorf("read usage for rule %s: %w", r.ID, err)
		}
		if current >= r.Threshold {
			return &Violation{
				RuleID:    r.ID,
				Metric:    r.Metric,
				Period:    r.Period,
				Threshold: r.Threshold,
				Current:   current,
			}, nil
		}
	}
	return nil, nil
}

// Record adds u to every period bucket at agent and tenant scope.
func (t *Tracker) Record(ctx context.Context, u Usage) error {
	if u.At.IsZero() {
		u.At = t.now()
	}
	if u.Cost == 0 && u.Model != "" && t.pricing != nil && (u.InputTokens > 0 || u.OutputTokens > 0) {
		p, err := t.pricing.GetModelPricing(ctx, u.Model)
		if err != nil {
			t.logger.WarnContext(ctx, "pricing lookup failed, cost not recorded", "model", u.Model, "error", err)
		} else if p != nil {
			u.Cost = p.Cost(u.InputTokens, u.OutputTokens)
		}
	}

	deltas := map[string]float64{
		storage.MetricRequests: 1,
		storage.MetricTokens:   float64(u.InputTokens + u.OutputTokens),
		storage.MetricCost:     u.Cost,
	}
	for metric, delta := range deltas {
		if delta == 0 {
			continue
		}
		for _, period := range []string{storage.PeriodHour, storage.PeriodDay, storage.PeriodMonth} {
			for _, scope := range []string{u.AgentID, tenantScope} {
				key := bucketKey(u.TenantID, scope, metric, period, u.At)
				if err := t.usage.Increment(ctx, key, delta, periodTTL(period)); err != nil {
					return fmt.Errorf("record %s usage: %w", metric, err)
				}
			}
		}
	}
	return nil
}

func bucketKey(tenantID, scope, metric, period string, at time.Time) string {
	return fmt.Sprintf("usage:%s:%s:%s:%s:%s", tenantID, scope, metric, period, bucket(period, at))
}

func bucket(period string, at time.Time) string {
	at = at.UTC()
	switch period {
	case storage.PeriodHour:
		return at.Format("2006010215")
	case storage.PeriodDay:
		return at.Format("20060102")
	default:
		return at.Format("200601")
	}
}

// periodTTL keeps a bucket a little longer than its period.
func periodTTL(period string) time.Duration {
	switch period {
	case storage.PeriodHour:
		return 2 * time.Hour
	case storage.PeriodDay:
		return 48 * time.Hour
	default:
		return 32 * 24 * time.Hour
	}
}
