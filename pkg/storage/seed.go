package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/goclaw/manifest/pkg/scoring"
)

// SeedData is static data written into a store at startup.
type SeedData struct {
	APIKeys      []SeedAPIKey       `mapstructure:"api_keys" validate:"dive"`
	Tiers        []SeedTier         `mapstructure:"tiers" validate:"dive"`
	Pricing      []ModelPricingSeed `mapstructure:"pricing" validate:"dive"`
	ProviderKeys []SeedProviderKey  `mapstructure:"provider_keys" validate:"dive"`
	Limits       []SeedLimitRule    `mapstructure:"limits" validate:"dive"`
}

// SeedAPIKey is an agent key. Token is hashed before storage; Hash may be
// given instead when the raw token should not live in config. ExpiresAt is
// RFC 3339.
type SeedAPIKey struct {
	Token     string `mapstructure:"token"`
	Hash      string `mapstructure:"hash"`
	TenantID  string `mapstructure:"tenant_id" validate:"required"`
	AgentID   string `mapstructure:"agent_id" validate:"required"`
	AgentName string `mapstructure:"agent_name"`
	UserID    string `mapstructure:"user_id"`
	ExpiresAt string `mapstructure:"expires_at" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}

// SeedTier assigns a model to an agent tier.
type SeedTier struct {
	AgentID  string `mapstructure:"agent_id" validate:"required"`
	Tier     string `mapstructure:"tier" validate:"required,oneof=simple standard complex reasoning"`
	Model    string `mapstructure:"model" validate:"required"`
	Provider string `mapstructure:"provider"`
}

// ModelPricingSeed describes a model.
type ModelPricingSeed struct {
	Model            string  `mapstructure:"model" validate:"required"`
	Provider         string  `mapstructure:"provider" validate:"required"`
	InputPerMillion  float64 `mapstructure:"input_per_million" validate:"gte=0"`
	OutputPerMillion float64 `mapstructure:"output_per_million" validate:"gte=0"`
}

// SeedProviderKey is a tenant's upstream credential.
type SeedProviderKey struct {
	TenantID string `mapstructure:"tenant_id" validate:"required"`
	Provider string `mapstructure:"provider" validate:"required"`
	Key      string `mapstructure:"key"`
}

// SeedLimitRule is a usage limit.
type SeedLimitRule struct {
	ID        string  `mapstructure:"id" validate:"required"`
	TenantID  string  `mapstructure:"tenant_id" validate:"required"`
	AgentID   string  `mapstructure:"agent_id"`
	Metric    string  `mapstructure:"metric" validate:"required,oneof=cost tokens requests"`
	Period    string  `mapstructure:"period" validate:"required,oneof=hour day month"`
	Threshold float64 `mapstructure:"threshold" validate:"gt=0"`
}

// Seed writes data into s. Existing records with the same keys are replaced.
func Seed(ctx context.Context, s Store, data SeedData) error {
	now := time.Now().UTC()

	for _, k := range data.APIKeys {
		hash := k.Hash
		if k.Token != "" {
			hash = HashAPIKey(k.Token)
		}
		if hash == "" {
			return fmt.Errorf("seed api key for agent %s: token or hash required", k.AgentID)
		}
		var expires *time.Time
		if k.ExpiresAt != "" {
			at, err := time.Parse(time.RFC3339, k.ExpiresAt)
			if err != nil {
				return fmt.Errorf("seed api key for agent %s: expires_at: %w", k.AgentID, err)
			}
			expires = &at
		}
		key := &APIKey{
			Hash:      hash,
			TenantID:  k.TenantID,
			AgentID:   k.AgentID,
			AgentName: k.AgentName,
			UserID:    k.UserID,
			ExpiresAt: expires,
			CreatedAt: now,
		}
		if err := s.PutAPIKey(ctx, key); err != nil {
			return fmt.Errorf("seed api key for agent %s: %w", k.AgentID, err)
		}
	}

	for _, t := range data.Tiers {
		tier, err := scoring.ParseTier(t.Tier)
		if err != nil {
			return fmt.Errorf("seed tier for agent %s: %w", t.AgentID, err)
		}
		a := &TierAssignment{AgentID: t.AgentID, Tier: tier, Model: t.Model, Provider: t.Provider, UpdatedAt: now}
		if err := s.PutTierAssignment(ctx, a); err != nil {
			return fmt.Errorf("seed tier for agent %s: %w", t.AgentID, err)
		}
	}

	for _, p := range data.Pricing {
		mp := &ModelPricing{
			Model:            p.Model,
			Provider:         p.Provider,
			InputPerMillion:  p.InputPerMillion,
			OutputPerMillion: p.OutputPerMillion,
		}
		if err := s.PutModelPricing(ctx, mp); err != nil {
			return fmt.Errorf("seed pricing for model %s: %w", p.Model, err)
		}
	}

	for _, pk := range data.ProviderKeys {
		if err := s.PutProviderKey(ctx, pk.TenantID, pk.Provider, pk.Key); err != nil {
			return fmt.Errorf("seed provider key %s/%s: %w", pk.TenantID, pk.Provider, err)
		}
	}

	for _, l := range data.Limits {
		rule := &LimitRule{
			ID:        l.ID,
			TenantID:  l.TenantID,
			AgentID:   l.AgentID,
			Metric:    l.Metric,
			Period:    l.Period,
			Threshold: l.Threshold,
		}
		if err := rule.Validate(); err != nil {
			return err
		}
		if err := s.PutLimitRule(ctx, rule); err != nil {
			return fmt.Errorf("seed limit %s: %w", l.ID, err)
		}
	}
	return nil
}
