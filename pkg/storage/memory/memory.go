// Package memory provides an in-memory implementation of the storage interface.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/goclaw/manifest/pkg/scoring"
	"github.com/goclaw/manifest/pkg/storage"
)

type tierKey struct {
	agentID string
	tier    scoring.Tier
}

type providerKey struct {
	tenantID string
	provider string
}

// MemoryStorage implements the Store interface using in-memory maps.
type MemoryStorage struct {
	mu           sync.RWMutex
	apiKeys      map[string]*storage.APIKey
	tiers        map[tierKey]*storage.TierAssignment
	pricing      map[string]*storage.ModelPricing
	providerKeys map[providerKey]string
	limits       map[string]*storage.LimitRule
}

// NewMemoryStorage creates a new in-memory storage instance.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		apiKeys:      make(map[string]*storage.APIKey),
		tiers:        make(map[tierKey]*storage.TierAssignment),
		pricing:      make(map[string]*storage.ModelPricing),
		providerKeys: make(map[providerKey]string),
		limits:       make(map[string]*storage.LimitRule),
	}
}

// LookupAPIKey returns a copy of the key stored under hash.
func (m *MemoryStorage) LookupAPIKey(ctx context.Context, hash string) (*storage.APIKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	k, ok := m.apiKeys[hash]
	if !ok {
		return nil, nil
	}
	copied := *k
	return &copied, nil
}

// TouchAPIKey records the last use of a key.
func (m *MemoryStorage) TouchAPIKey(ctx context.Context, hash string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k, ok := m.apiKeys[hash]
	if !ok {
		return &storage.NotFoundError{EntityType: "api_key", ID: hash}
	}
	used := at
	k.LastUsedAt = &used
	return nil
}

// PutAPIKey stores a key under its hash.
func (m *MemoryStorage) PutAPIKey(ctx context.Context, key *storage.APIKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := *key
	m.apiKeys[key.Hash] = &copied
	return nil
}

// DeleteAPIKey removes a key. Deleting an unknown key is not an error.
func (m *MemoryStorage) DeleteAPIKey(ctx context.Context, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.apiKeys, hash)
	return nil
}

// GetTierAssignment returns the model assigned to an agent tier.
func (m *MemoryStorage) GetTierAssignment(ctx context.Context, agentID string, tier scoring.Tier) (*storage.TierAssignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.tiers[tierKey{agentID, tier}]
	if !ok {
		return nil, nil
	}
	copied := *a
	return &copied, nil
}

// PutTierAssignment stores an agent tier assignment.
func (m *MemoryStorage) PutTierAssignment(ctx context.Context, a *storage.TierAssignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := *a
	m.tiers[tierKey{a.AgentID, a.Tier}] = &copied
	return nil
}

// GetModelPricing returns the pricing record of a model.
func (m *MemoryStorage) GetModelPricing(ctx context.Context, model string) (*storage.ModelPricing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.pricing[model]
	if !ok {
		return nil, nil
	}
	copied := *p
	return &copied, nil
}

// PutModelPricing stores a pricing record.
func (m *MemoryStorage) PutModelPricing(ctx context.Context, p *storage.ModelPricing) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := *p
	m.pricing[p.Model] = &copied
	return nil
}

// GetProviderKey returns a tenant's credential for provider, or nil.
func (m *MemoryStorage) GetProviderKey(ctx context.Context, tenantID, provider string) (*string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	key, ok := m.providerKeys[providerKey{tenantID, provider}]
	if !ok {
		return nil, nil
	}
	return &key, nil
}

// PutProviderKey stores a tenant's credential. Empty keys are kept.
func (m *MemoryStorage) PutProviderKey(ctx context.Context, tenantID, provider, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.providerKeys[providerKey{tenantID, provider}] = key
	return nil
}

// ListLimitRules returns the rules covering an agent, ordered by ID.
func (m *MemoryStorage) ListLimitRules(ctx context.Context, tenantID, agentID string) ([]storage.LimitRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var rules []storage.LimitRule
	for _, r := range m.limits {
		if r.Applies(tenantID, agentID) {
			rules = append(rules, *r)
		}
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })
	return rules, nil
}

// PutLimitRule stores a rule under its ID.
func (m *MemoryStorage) PutLimitRule(ctx context.Context, rule *storage.LimitRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := *rule
	m.limits[rule.ID] = &copied
	return nil
}

// Ping always succeeds.
func (m *MemoryStorage) Ping(ctx context.Context) error {
	return nil
}

// Close closes the storage (no-op for memory storage).
func (m *MemoryStorage) Close() error {
	return nil
}
