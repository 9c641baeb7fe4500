// Package storage provides the persistence abstraction for API keys, tier
// assignments, model pricing, provider credentials and usage limits.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/goclaw/manifest/pkg/scoring"
)

// KeyStore resolves hashed agent API keys.
type KeyStore interface {
	LookupAPIKey(ctx context.Context, hash string) (*APIKey, error)
	TouchAPIKey(ctx context.Context, hash string, at time.Time) error
}

// TierStore resolves the model configured for an agent's tier.
type TierStore interface {
	GetTierAssignment(ctx context.Context, agentID string, tier scoring.Tier) (*TierAssignment, error)
}

// PricingStore resolves model metadata, including its provider.
type PricingStore interface {
	GetModelPricing(ctx context.Context, model string) (*ModelPricing, error)
}

// ProviderKeyStore resolves a tenant's upstream credential. A nil key means
// no credential is stored; an empty string is a valid credential.
type ProviderKeyStore interface {
	GetProviderKey(ctx context.Context, tenantID, provider string) (*string, error)
}

// LimitStore lists the usage limits that apply to an agent, including
// tenant-wide rules.
type LimitStore interface {
	ListLimitRules(ctx context.Context, tenantID, agentID string) ([]LimitRule, error)
}

// Store is the full backend used by the server.
//
// Lookups of absent records return (nil, nil). Backend failures return a
// *StorageUnavailableError.
type Store interface {
	KeyStore
	TierStore
	PricingStore
	ProviderKeyStore
	LimitStore

	PutAPIKey(ctx context.Context, key *APIKey) error
	DeleteAPIKey(ctx context.Context, hash string) error
	PutTierAssignment(ctx context.Context, a *TierAssignment) error
	PutModelPricing(ctx context.Context, p *ModelPricing) error
	PutProviderKey(ctx context.Context, tenantID, provider, key string) error
	PutLimitRule(ctx context.Context, rule *LimitRule) error

	// Lifecycle
	Ping(ctx context.Context) error
	Close() error
}

// APIKey is a stored agent key. Only the hash of the token is kept.
type APIKey struct {
	Hash       string     `json:"hash"`
	TenantID   string     `json:"tenant_id"`
	AgentID    string     `json:"agent_id"`
	AgentName  string     `json:"agent_name"`
	UserID     string     `json:"user_id"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Expired reports whether the key has an expiry at or before now.
func (k *APIKey) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && !now.Before(*k.ExpiresAt)
}

// TierAssignment maps an agent's tier to a model. Provider is optional and
// falls back to the model's pricing record.
type TierAssignment struct {
	AgentID   string       `json:"agent_id"`
	Tier      scoring.Tier `json:"tier"`
	Model     string       `json:"model"`
	Provider  string       `json:"provider,omitempty"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// ModelPricing describes a model and its per-million-token prices in USD.
type ModelPricing struct {
	Model            string  `json:"model"`
	Provider         string  `json:"provider"`
	InputPerMillion  float64 `json:"input_per_million"`
	OutputPerMillion float64 `json:"output_per_million"`
}

// Cost returns the USD cost of a request with the given token counts.
func (p *ModelPricing) Cost(inputTokens, outputTokens int) float64 {
	return (float64(inputTokens)*p.InputPerMillion + float64(outputTokens)*p.OutputPerMillion) / 1_000_000
}

// Limit metrics.
const (
	MetricCost     = "cost"
	MetricTokens   = "tokens"
	MetricRequests = "requests"
)

// Limit periods.
const (
	PeriodHour  = "hour"
	PeriodDay   = "day"
	PeriodMonth = "month"
)

// LimitRule caps one usage metric per period. An empty AgentID applies the
// rule to every agent of the tenant.
type LimitRule struct {
	ID        string  `json:"id"`
	TenantID  string  `json:"tenant_id"`
	AgentID   string  `json:"agent_id,omitempty"`
	Metric    string  `json:"metric"`
	Period    string  `json:"period"`
	Threshold float64 `json:"threshold"`
}

// Validate checks the rule fields.
func (r *LimitRule) Validate() error {
	if r.ID == "" || r.TenantID == "" {
		return fmt.Errorf("limit rule requires id and tenant_id")
	}
	switch r.Metric {
	case MetricCost, MetricTokens, MetricRequests:
	default:
		return fmt.Errorf("limit rule %s: unknown metric %q", r.ID, r.Metric)
	}
	switch r.Period {
	case PeriodHour, PeriodDay, PeriodMonth:
	default:
		return fmt.Errorf("limit rule %s: unknown period %q", r.ID, r.Period)
	}
	if r.Threshold <= 0 {
		return fmt.Errorf("limit rule %s: threshold must be positive", r.ID)
	}
	return nil
}

// Applies reports whether the rule covers the given agent.
func (r *LimitRule) Applies(tenantID, agentID string) bool {
	return r.TenantID == tenantID && (r.AgentID == "" || r.AgentID == agentID)
}

// HashAPIKey returns the hex sha256 of a raw token, the form keys are
// stored under.
func HashAPIKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// NotFoundError indicates that the requested entity was not found.
type NotFoundError struct {
	EntityType string
	ID         string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.EntityType, e.ID)
}

// StorageUnavailableError indicates that the storage backend is unavailable.
type StorageUnavailableError struct {
	Cause error
}

func (e *StorageUnavailableError) Error() string {
	return fmt.Sprintf("storage unavailable: %v", e.Cause)
}

func (e *StorageUnavailableError) Unwrap() error {
	return e.Cause
}

// SerializationError indicates a failure in data serialization/deserialization.
type SerializationError struct {
	Operation string
	Cause     error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("serialization error during %s: %v", e.Operation, e.Cause)
}

func (e *SerializationError) Unwrap() error {
	return e.Cause
}
