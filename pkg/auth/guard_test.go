package auth

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goclaw/manifest/pkg/logger"
	"github.com/goclaw/manifest/pkg/storage"
)

type countingKeyStore struct {
	mu        sync.Mutex
	keys      map[string]*storage.APIKey
	lookups   atomic.Int32
	touches   chan string
	touchErr  error
	lookupErr error
}

func newCountingKeyStore() *countingKeyStore {
	return &countingKeyStore{
		keys:    make(map[string]*storage.APIKey),
		touches: make(chan string, 16),
	}
}

func (s *countingKeyStore) add(token string, k storage.APIKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k.Hash = storage.HashAPIKey(token)
	s.keys[k.Hash] = &k
}

func (s *countingKeyStore) LookupAPIKey(ctx context.Context, hash string) (*storage.APIKey, error) {
	s.lookups.Add(1)
	if s.lookupErr != nil {
		return nil, s.lookupErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys[hash]
	if !ok {
		return nil, nil
	}
	copied := *k
	return &copied, nil
}

func (s *countingKeyStore) TouchAPIKey(ctx context.Context, hash string, at time.Time) error {
	s.touches <- hash
	return s.touchErr
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newTestGuard(t *testing.T, store storage.KeyStore, cfg Config, clock *fakeClock) *Guard {
	t.Helper()
	log := logger.New(&logger.Config{Level: logger.ErrorLevel, Format: "text", Output: "discard"})
	return NewGuard(store, cfg, log, WithClock(clock.Now))
}

func waitTouch(t *testing.T, s *countingKeyStore) string {
	t.Helper()
	select {
	case h := <-s.touches:
		return h
	case <-time.After(time.Second):
		t.Fatal("expected last-used touch")
		return ""
	}
}

func TestGuard_RejectsMalformedTokens(t *testing.T) {
	store := newCountingKeyStore()
	g := newTestGuard(t, store, Config{}, &fakeClock{now: time.Now()})

	tests := []struct {
		name   string
		header string
		want   *Error
	}{
		{name: "missing header", header: "", want: ErrMissingHeader},
		{name: "bearer only", header: "Bearer", want: ErrEmptyToken},
		{name: "bearer whitespace", header: "Bearer    ", want: ErrEmptyToken},
		{name: "wrong prefix", header: "Bearer sk-abc123", want: ErrInvalidFormat},
		{name: "prefix only", header: "Bearer mnfst_", want: ErrInvalidFormat},
		{name: "unknown key", header: "Bearer mnfst_unknown", want: ErrInvalidKey},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := g.Authenticate(context.Background(), tt.header, "10.0.0.1:4000")
			require.Error(t, err)
			var authErr *Error
			require.True(t, errors.As(err, &authErr))
			assert.Equal(t, tt.want.Message, authErr.Message)
			assert.Equal(t, 401, authErr.StatusCode())
		})
	}

	// Only the well-formed unknown key reached the store.
	assert.Equal(t, int32(1), store.lookups.Load())
}

func TestGuard_CachesValidKeys(t *testing.T) {
	store := newCountingKeyStore()
	store.add("mnfst_good", storage.APIKey{TenantID: "t1", AgentID: "a1", AgentName: "bot", UserID: "u1"})
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	g := newTestGuard(t, store, Config{}, clock)

	id, err := g.Authenticate(context.Background(), "Bearer mnfst_good", "10.0.0.1:4000")
	require.NoError(t, err)
	assert.Equal(t, Identity{TenantID: "t1", AgentID: "a1", AgentName: "bot", UserID: "u1"}, *id)
	assert.Equal(t, storage.HashAPIKey("mnfst_good"), waitTouch(t, store))

	for i := 0; i < 5; i++ {
		_, err := g.Authenticate(context.Background(), "Bearer mnfst_good", "10.0.0.1:4000")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), store.lookups.Load())

	clock.Advance(6 * time.Minute)
	_, err = g.Authenticate(context.Background(), "Bearer mnfst_good", "10.0.0.1:4000")
	require.NoError(t, err)
	assert.Equal(t, int32(2), store.lookups.Load())
}

func TestGuard_ExpiredKey(t *testing.T) {
	store := newCountingKeyStore()
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	past := clock.now.Add(-time.Hour)
	store.add("mnfst_old", storage.APIKey{TenantID: "t1", AgentID: "a1", ExpiresAt: &past})
	g := newTestGuard(t, store, Config{}, clock)

	_, err := g.Authenticate(context.Background(), "Bearer mnfst_old", "10.0.0.1:1")
	assert.ErrorIs(t, err, ErrExpiredKey)
	assert.Zero(t, g.CacheLen())
}

func TestGuard_CacheEntryNeverOutlivesKey(t *testing.T) {
	store := newCountingKeyStore()
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	soon := clock.now.Add(time.Minute)
	store.add("mnfst_soon", storage.APIKey{TenantID: "t1", AgentID: "a1", ExpiresAt: &soon})
	g := newTestGuard(t, store, Config{}, clock)

	_, err := g.Authenticate(context.Background(), "Bearer mnfst_soon", "10.0.0.1:1")
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	_, err = g.Authenticate(context.Background(), "Bearer mnfst_soon", "10.0.0.1:1")
	assert.ErrorIs(t, err, ErrExpiredKey)
}

func TestGuard_TouchFailureDoesNotFailRequest(t *testing.T) {
	store := newCountingKeyStore()
	store.touchErr = errors.New("db down")
	store.add("mnfst_ok", storage.APIKey{TenantID: "t1", AgentID: "a1"})
	g := newTestGuard(t, store, Config{}, &fakeClock{now: time.Now()})

	id, err := g.Authenticate(context.Background(), "Bearer mnfst_ok", "10.0.0.1:1")
	require.NoError(t, err)
	assert.Equal(t, "a1", id.AgentID)
	waitTouch(t, store)
}

func TestGuard_StoreFailure(t *testing.T) {
	store := newCountingKeyStore()
	store.lookupErr = &storage.StorageUnavailableError{Cause: errors.New("conn refused")}
	g := newTestGuard(t, store, Config{}, &fakeClock{now: time.Now()})

	_, err := g.Authenticate(context.Background(), "Bearer mnfst_x", "10.0.0.1:1")
	require.Error(t, err)
	var authErr *Error
	assert.False(t, errors.As(err, &authErr))
	var unavailable *storage.StorageUnavailableError
	assert.True(t, errors.As(err, &unavailable))
}

func TestGuard_LocalMode(t *testing.T) {
	store := newCountingKeyStore()
	g := newTestGuard(t, store, Config{LocalMode: true}, &fakeClock{now: time.Now()})

	for _, addr := range []string{"127.0.0.1:5555", "[::1]:5555", "127.0.0.1"} {
		id, err := g.Authenticate(context.Background(), "", addr)
		require.NoError(t, err, addr)
		assert.True(t, id.Local)
		assert.Equal(t, LocalIdentity.AgentID, id.AgentID)
	}

	_, err := g.Authenticate(context.Background(), "", "192.168.1.10:5555")
	assert.ErrorIs(t, err, ErrMissingHeader)
	assert.Zero(t, store.lookups.Load())
}

func TestGuard_LocalModeDisabledRequiresAuth(t *testing.T) {
	g := newTestGuard(t, newCountingKeyStore(), Config{}, &fakeClock{now: time.Now()})
	_, err := g.Authenticate(context.Background(), "", "127.0.0.1:5555")
	assert.ErrorIs(t, err, ErrMissingHeader)
}

func TestGuard_Invalidate(t *testing.T) {
	store := newCountingKeyStore()
	store.add("mnfst_rot", storage.APIKey{TenantID: "t1", AgentID: "a1"})
	g := newTestGuard(t, store, Config{}, &fakeClock{now: time.Now()})

	_, err := g.Authenticate(context.Background(), "Bearer mnfst_rot", "10.0.0.1:1")
	require.NoError(t, err)
	assert.Equal(t, 1, g.CacheLen())

	g.Invalidate("mnfst_rot")
	assert.Zero(t, g.CacheLen())

	_, err = g.Authenticate(context.Background(), "Bearer mnfst_rot", "10.0.0.1:1")
	require.NoError(t, err)
	g.InvalidateHash(storage.HashAPIKey("mnfst_rot"))
	assert.Zero(t, g.CacheLen())
	assert.Equal(t, int32(2), store.lookups.Load())
}

func TestGuard_CustomPrefix(t *testing.T) {
	store := newCountingKeyStore()
	store.add("acme_k1", storage.APIKey{TenantID: "t", AgentID: "a"})
	g := newTestGuard(t, store, Config{KeyPrefix: "acme_"}, &fakeClock{now: time.Now()})

	_, err := g.Authenticate(context.Background(), "bearer acme_k1", "10.0.0.1:1")
	assert.NoError(t, err)
	_, err = g.Authenticate(context.Background(), "Bearer mnfst_k1", "10.0.0.1:1")
	assert.ErrorIs(t, err, ErrInvalidFormat)
}

func TestIsLoopback(t *testing.T) {
	assert.True(t, IsLoopback("127.0.0.1:80"))
	assert.True(t, IsLoopback("[::1]:80"))
	assert.True(t, IsLoopback("::1"))
	assert.False(t, IsLoopback("127.0.0.2:80"))
	assert.False(t, IsLoopback("10.0.0.1:80"))
	assert.False(t, IsLoopback(""))
}
