package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goclaw/manifest/pkg/logger"
)

func testLogger() logger.Logger {
	return logger.New(&logger.Config{Level: logger.ErrorLevel, Output: "discard"})
}

func TestScheduler_Every(t *testing.T) {
	s := New(testLogger())
	var runs atomic.Int32
	require.NoError(t, s.Every("sweep", time.Second, func(context.Context) { runs.Add(1) }))

	s.Start()
	s.Start()
	defer func() { _ = s.Stop(context.Background()) }()

	require.Eventually(t, func() bool { return runs.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)
}

func TestScheduler_Validation(t *testing.T) {
	s := New(testLogger())
	noop := func(context.Context) {}

	assert.Error(t, s.Every("fast", 10*time.Millisecond, noop))
	assert.Error(t, s.Every("nil", time.Minute, nil))
	require.NoError(t, s.Every("a", time.Minute, noop))
	assert.Error(t, s.Every("a", time.Minute, noop))
	require.NoError(t, s.Every("b", time.Minute, noop))

	assert.Equal(t, []string{"a", "b"}, s.Jobs())
}

func TestScheduler_Run(t *testing.T) {
	s := New(testLogger())
	var runs atomic.Int32
	require.NoError(t, s.Every("purge", time.Hour, func(context.Context) { runs.Add(1) }))

	require.NoError(t, s.Run("purge"))
	assert.Equal(t, int32(1), runs.Load())
	assert.Error(t, s.Run("missing"))
}

func TestScheduler_StopCancelsJobs(t *testing.T) {
	s := New(testLogger())
	started := make(chan struct{})
	var canceled atomic.Bool
	require.NoError(t, s.Every("long", time.Second, func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		canceled.Store(true)
	}))
	s.Start()

	select {
	case <-started:
	case <-time.After(3 * time.Second):
		t.Fatal("job did not start")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	assert.True(t, canceled.Load())

	// Jobs do not run after Stop.
	var after atomic.Int32
	require.NoError(t, s.Every("late", time.Minute, func(context.Context) { after.Add(1) }))
	require.NoError(t, s.Run("late"))
	assert.Zero(t, after.Load())
}
