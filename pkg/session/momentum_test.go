package session

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goclaw/manifest/pkg/scoring"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
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

func TestMomentumCache_NewestFirstCappedAtFive(t *testing.T) {
	c := NewMomentumCache()

	order := []scoring.Tier{
		scoring.TierSimple, scoring.TierStandard, scoring.TierComplex,
		scoring.TierReasoning, scoring.TierSimple, scoring.TierComplex,
	}
	for _, tier := range order {
		c.RecordTier("s1", tier)
	}

	got := c.RecentTiers("s1")
	require.Len(t, got, 5)
	assert.Equal(t, []scoring.Tier{
		scoring.TierComplex, scoring.TierSimple, scoring.TierReasoning,
		scoring.TierComplex, scoring.TierStandard,
	}, got)
}

func TestMomentumCache_UnknownSession(t *testing.T) {
	assert.Nil(t, NewMomentumCache().RecentTiers("missing"))
}

func TestMomentumCache_ExpiresAfterIdle(t *testing.T) {
	clock := newFakeClock()
	c := NewMomentumCache(WithClock(clock.Now))

	c.RecordTier("s1", scoring.TierComplex)
	clock.Advance(29 * time.Minute)
	assert.Equal(t, []scoring.Tier{scoring.TierComplex}, c.RecentTiers("s1"))

	clock.Advance(31 * time.Minute)
	assert.Nil(t, c.RecentTiers("s1"))
	assert.Zero(t, c.Len())
}

func TestMomentumCache_RecordRefreshesTTL(t *testing.T) {
	clock := newFakeClock()
	c := NewMomentumCache(WithClock(clock.Now))

	c.RecordTier("s1", scoring.TierSimple)
	clock.Advance(20 * time.Minute)
	c.RecordTier("s1", scoring.TierStandard)
	clock.Advance(20 * time.Minute)

	assert.Len(t, c.RecentTiers("s1"), 2)
}

func TestMomentumCache_Sweep(t *testing.T) {
	clock := newFakeClock()
	c := NewMomentumCache(WithClock(clock.Now))

	c.RecordTier("old", scoring.TierSimple)
	clock.Advance(31 * time.Minute)
	c.RecordTier("fresh", scoring.TierSimple)

	assert.Equal(t, 1, c.Sweep())
	assert.Equal(t, 1, c.Len())
	assert.NotNil(t, c.RecentTiers("fresh"))
}

func TestMomentumCache_ReturnsCopy(t *testing.T) {
	c := NewMomentumCache()
	c.RecordTier("s1", scoring.TierSimple)

	got := c.RecentTiers("s1")
	got[0] = scoring.TierReasoning

	assert.Equal(t, []scoring.Tier{scoring.TierSimple}, c.RecentTiers("s1"))
}

func TestMomentumCache_ConcurrentAccess(t *testing.T) {
	c := NewMomentumCache()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("s%d", i%4)
			for j := 0; j < 50; j++ {
				c.RecordTier(key, scoring.TierStandard)
				_ = c.RecentTiers(key)
				c.Sweep()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 4, c.Len())
	for i := 0; i < 4; i++ {
		assert.Len(t, c.RecentTiers(fmt.Sprintf("s%d", i)), 5)
	}
}

func TestMomentumCache_RecordAfterExpiryStartsOver(t *testing.T) {
	clock := newFakeClock()
	c := NewMomentumCache(WithClock(clock.Now))

	c.RecordTier("s1", scoring.TierReasoning)
	clock.Advance(31 * time.Minute)
	c.RecordTier("s1", scoring.TierSimple)

	assert.Equal(t, []scoring.Tier{scoring.TierSimple}, c.RecentTiers("s1"))
}
