package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/goclaw/manifest/pkg/scoring"
)

// StoreTestSuite defines a test suite that can be run against any Store implementation.
type StoreTestSuite struct {
	NewStore func(t *testing.T) Store
}

// RunAllTests runs all storage tests against the provided store implementation.
func (s *StoreTestSuite) RunAllTests(t *testing.T) {
	t.Run("APIKeyLifecycle", s.TestAPIKeyLifecycle)
	t.Run("APIKeyNotFound", s.TestAPIKeyNotFound)
	t.Run("TierAssignments", s.TestTierAssignments)
	t.Run("ModelPricing", s.TestModelPricing)
	t.Run("ProviderKeys", s.TestProviderKeys)
	t.Run("LimitRules", s.TestLimitRules)
	t.Run("Seed", s.TestSeed)
	t.Run("ConcurrentAccess", s.TestConcurrentAccess)
	t.Run("Ping", s.TestPing)
}

// TestPing checks that an open store is reachable.
func (s *StoreTestSuite) TestPing(t *testing.T) {
	store := s.NewStore(t)
	if err := store.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
}

// TestAPIKeyLifecycle tests put, lookup, touch and delete of API keys.
func (s *StoreTestSuite) TestAPIKeyLifecycle(t *testing.T) {
	store := s.NewStore(t)
	defer store.Close()

	ctx := context.Background()
	expires := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	key := &APIKey{
		Hash:      HashAPIKey("mnfst_test"),
		TenantID:  "tenant-1",
		AgentID:   "agent-1",
		AgentName: "Agent One",
		UserID:    "user-1",
		ExpiresAt: &expires,
		CreatedAt: time.Now().UTC(),
	}
	if err := store.PutAPIKey(ctx, key); err != nil {
		t.Fatalf("PutAPIKey failed: %v", err)
	}

	got, err := store.LookupAPIKey(ctx, key.Hash)
	if err != nil {
		t.Fatalf("LookupAPIKey failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected key, got nil")
	}
	if got.TenantID != "tenant-1" || got.AgentID != "agent-1" || got.AgentName != "Agent One" {
		t.Errorf("unexpected key identity: %+v", got)
	}
	if got.ExpiresAt == nil || !got.ExpiresAt.Equal(expires) {
		t.Errorf("expected expiry %v, got %v", expires, got.ExpiresAt)
	}

	usedAt := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	if err := store.TouchAPIKey(ctx, key.Hash, usedAt); err != nil {
		t.Fatalf("TouchAPIKey failed: %v", err)
	}
	got, err = store.LookupAPIKey(ctx, key.Hash)
	if err != nil {
		t.Fatalf("LookupAPIKey (after touch) failed: %v", err)
	}
	if got.LastUsedAt == nil || !got.LastUsedAt.Equal(usedAt) {
		t.Errorf("expected last used %v, got %v", usedAt, got.LastUsedAt)
	}

	if err := store.DeleteAPIKey(ctx, key.Hash); err != nil {
		t.Fatalf("DeleteAPIKey failed: %v", err)
	}
	got, err = store.LookupAPIKey(ctx, key.Hash)
	if err != nil {
		t.Fatalf("LookupAPIKey (after delete) failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil after delete, got %+v", got)
	}
}

// TestAPIKeyNotFound tests lookups and touches of unknown keys.
func (s *StoreTestSuite) TestAPIKeyNotFound(t *testing.T) {
	store := s.NewStore(t)
	defer store.Close()

	ctx := context.Background()

	got, err := store.LookupAPIKey(ctx, "missing")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got != nil {
		t.Errorf("expected nil, got %+v", got)
	}

	err = store.TouchAPIKey(ctx, "missing", time.Now())
	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Errorf("expected NotFoundError, got %T: %v", err, err)
	}
}

// TestTierAssignments tests put and get of tier assignments.
func (s *StoreTestSuite) TestTierAssignments(t *testing.T) {
	store := s.NewStore(t)
	defer store.Close()

	ctx := context.Background()

	for _, a := range []*TierAssignment{
		{AgentID: "agent-1", Tier: scoring.TierSimple, Model: "gpt-4o-mini"},
		{AgentID: "agent-1", Tier: scoring.TierReasoning, Model: "o3", Provider: "openai"},
		{AgentID: "agent-2", Tier: scoring.TierSimple, Model: "gemini-2.0-flash"},
	} {
		if err := store.PutTierAssignment(ctx, a); err != nil {
			t.Fatalf("PutTierAssignment failed: %v", err)
		}
	}

	got, err := store.GetTierAssignment(ctx, "agent-1", scoring.TierReasoning)
	if err != nil {
		t.Fatalf("GetTierAssignment failed: %v", err)
	}
	if got == nil || got.Model != "o3" || got.Provider != "openai" {
		t.Errorf("unexpected assignment: %+v", got)
	}

	got, err = store.GetTierAssignment(ctx, "agent-2", scoring.TierSimple)
	if err != nil {
		t.Fatalf("GetTierAssignment failed: %v", err)
	}
	if got == nil || got.Model != "gemini-2.0-flash" {
		t.Errorf("unexpected assignment: %+v", got)
	}

	got, err = store.GetTierAssignment(ctx, "agent-2", scoring.TierComplex)
	if err != nil {
		t.Fatalf("GetTierAssignment failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for unassigned tier, got %+v", got)
	}

	// Replacing an assignment overwrites it.
	if err := store.PutTierAssignment(ctx, &TierAssignment{AgentID: "agent-1", Tier: scoring.TierSimple, Model: "claude-haiku"}); err != nil {
		t.Fatalf("PutTierAssignment (replace) failed: %v", err)
	}
	got, _ = store.GetTierAssignment(ctx, "agent-1", scoring.TierSimple)
	if got == nil || got.Model != "claude-haiku" {
		t.Errorf("expected replaced model, got %+v", got)
	}
}

// TestModelPricing tests put and get of pricing records.
func (s *StoreTestSuite) TestModelPricing(t *testing.T) {
	store := s.NewStore(t)
	defer store.Close()

	ctx := context.Background()

	p := &ModelPricing{Model: "gpt-4o", Provider: "openai", InputPerMillion: 2.5, OutputPerMillion: 10}
	if err := store.PutModelPricing(ctx, p); err != nil {
		t.Fatalf("PutModelPricing failed: %v", err)
	}

	got, err := store.GetModelPricing(ctx, "gpt-4o")
	if err != nil {
		t.Fatalf("GetModelPricing failed: %v", err)
	}
	if got == nil || got.Provider != "openai" || got.OutputPerMillion != 10 {
		t.Errorf("unexpected pricing: %+v", got)
	}

	got, err = store.GetModelPricing(ctx, "unknown")
	if err != nil {
		t.Fatalf("GetModelPricing failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
}

// TestProviderKeys tests that empty keys are distinct from missing ones.
func (s *StoreTestSuite) TestProviderKeys(t *testing.T) {
	store := s.NewStore(t)
	defer store.Close()

	ctx := context.Background()

	if err := store.PutProviderKey(ctx, "tenant-1", "openai", "sk-123"); err != nil {
		t.Fatalf("PutProviderKey failed: %v", err)
	}
	if err := store.PutProviderKey(ctx, "tenant-1", "ollama", ""); err != nil {
		t.Fatalf("PutProviderKey (empty) failed: %v", err)
	}

	key, err := store.GetProviderKey(ctx, "tenant-1", "openai")
	if err != nil {
		t.Fatalf("GetProviderKey failed: %v", err)
	}
	if key == nil || *key != "sk-123" {
		t.Errorf("expected sk-123, got %v", key)
	}

	key, err = store.GetProviderKey(ctx, "tenant-1", "ollama")
	if err != nil {
		t.Fatalf("GetProviderKey failed: %v", err)
	}
	if key == nil {
		t.Fatal("expected empty key, got nil")
	}
	if *key != "" {
		t.Errorf("expected empty key, got %q", *key)
	}

	key, err = store.GetProviderKey(ctx, "tenant-2", "openai")
	if err != nil {
		t.Fatalf("GetProviderKey failed: %v", err)
	}
	if key != nil {
		t.Errorf("expected nil for other tenant, got %q", *key)
	}
}

// TestLimitRules tests agent and tenant-wide rule listing.
func (s *StoreTestSuite) TestLimitRules(t *testing.T) {
	store := s.NewStore(t)
	defer store.Close()

	ctx := context.Background()

	rules := []*LimitRule{
		{ID: "r1", TenantID: "tenant-1", AgentID: "agent-1", Metric: MetricCost, Period: PeriodDay, Threshold: 10},
		{ID: "r2", TenantID: "tenant-1", Metric: MetricRequests, Period: PeriodHour, Threshold: 100},
		{ID: "r3", TenantID: "tenant-1", AgentID: "agent-2", Metric: MetricTokens, Period: PeriodMonth, Threshold: 1e6},
		{ID: "r4", TenantID: "tenant-2", Metric: MetricCost, Period: PeriodDay, Threshold: 5},
	}
	for _, r := range rules {
		if err := store.PutLimitRule(ctx, r); err != nil {
			t.Fatalf("PutLimitRule failed: %v", err)
		}
	}

	got, err := store.ListLimitRules(ctx, "tenant-1", "agent-1")
	if err != nil {
		t.Fatalf("ListLimitRules failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(got))
	}
	if got[0].ID != "r1" || got[1].ID != "r2" {
		t.Errorf("expected rules r1, r2 in order, got %s, %s", got[0].ID, got[1].ID)
	}

	got, err = store.ListLimitRules(ctx, "tenant-3", "agent-1")
	if err != nil {
		t.Fatalf("ListLimitRules failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no rules, got %d", len(got))
	}
}

// TestSeed tests that seed data lands in the store.
func (s *StoreTestSuite) TestSeed(t *testing.T) {
	store := s.NewStore(t)
	defer store.Close()

	ctx := context.Background()

	data := SeedData{
		APIKeys: []SeedAPIKey{
			{Token: "mnfst_seeded", TenantID: "t1", AgentID: "a1", AgentName: "seeded", ExpiresAt: "2031-05-01T00:00:00Z"},
		},
		Tiers:        []SeedTier{{AgentID: "a1", Tier: "complex", Model: "claude-sonnet-4"}},
		Pricing:      []ModelPricingSeed{{Model: "claude-sonnet-4", Provider: "anthropic", InputPerMillion: 3, OutputPerMillion: 15}},
		ProviderKeys: []SeedProviderKey{{TenantID: "t1", Provider: "anthropic", Key: "sk-ant"}},
		Limits:       []SeedLimitRule{{ID: "l1", TenantID: "t1", Metric: MetricCost, Period: PeriodMonth, Threshold: 50}},
	}
	if err := Seed(ctx, store, data); err != nil {
		t.Fatalf("Seed failed: %v", err)
	}

	key, err := store.LookupAPIKey(ctx, HashAPIKey("mnfst_seeded"))
	if err != nil || key == nil {
		t.Fatalf("expected seeded key, got %v, %v", key, err)
	}
	if key.ExpiresAt == nil || key.ExpiresAt.Year() != 2031 {
		t.Errorf("expected seeded expiry, got %v", key.ExpiresAt)
	}

	a, err := store.GetTierAssignment(ctx, "a1", scoring.TierComplex)
	if err != nil || a == nil || a.Model != "claude-sonnet-4" {
		t.Errorf("expected seeded tier, got %+v, %v", a, err)
	}

	p, err := store.GetModelPricing(ctx, "claude-sonnet-4")
	if err != nil || p == nil || p.Provider != "anthropic" {
		t.Errorf("expected seeded pricing, got %+v, %v", p, err)
	}

	rules, err := store.ListLimitRules(ctx, "t1", "a1")
	if err != nil || len(rules) != 1 {
		t.Errorf("expected 1 seeded rule, got %d, %v", len(rules), err)
	}

	bad := SeedData{Tiers: []SeedTier{{AgentID: "a1", Tier: "ultra", Model: "m"}}}
	if err := Seed(ctx, store, bad); err == nil {
		t.Error("expected error for unknown tier")
	}
}

// TestConcurrentAccess tests concurrent writes and reads.
func (s *StoreTestSuite) TestConcurrentAccess(t *testing.T) {
	store := s.NewStore(t)
	defer store.Close()

	ctx := context.Background()

	var wg sync.WaitGroup
	errCh := make(chan error, 40)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			hash := HashAPIKey(fmt.Sprintf("token-%d", i))
			if err := store.PutAPIKey(ctx, &APIKey{Hash: hash, TenantID: "t", AgentID: fmt.Sprintf("a-%d", i)}); err != nil {
				errCh <- err
				return
			}
			if _, err := store.LookupAPIKey(ctx, hash); err != nil {
				errCh <- err
			}
		}(i)
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		t.Errorf("concurrent operation failed: %v", err)
	}

	for i := 0; i < 20; i++ {
		k, err := store.LookupAPIKey(ctx, HashAPIKey(fmt.Sprintf("token-%d", i)))
		if err != nil || k == nil {
			t.Errorf("expected key %d, got %v, %v", i, k, err)
		}
	}
}
