// Package scheduler runs periodic maintenance jobs such as cache sweeps.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	rcron "github.com/robfig/cron/v3"

	"github.com/goclaw/manifest/pkg/logger"
)

// MinInterval is the shortest supported job interval.
const MinInterval = time.Second

// JobFunc is a scheduled job. ctx is canceled when the scheduler stops.
type JobFunc func(ctx context.Context)

type job struct {
	id       rcron.EntryID
	interval time.Duration
	fn       JobFunc
}

// Scheduler runs named jobs at fixed intervals. Overlapping runs of the
// same job are skipped.
type Scheduler struct {
	mu      sync.Mutex
	cron    *rcron.Cron
	jobs    map[string]*job
	logger  logger.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
}

// New creates a stopped scheduler.
func New(log logger.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	cl := cronLogger{log: log}
	return &Scheduler{
		cron:   rcron.New(rcron.WithChain(rcron.Recover(cl), rcron.SkipIfStillRunning(cl)), rcron.WithLogger(cl)),
		jobs:   make(map[string]*job),
		logger: log,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Every registers fn to run every interval.
func (s *Scheduler) Every(name string, interval time.Duration, fn JobFunc) error {
	if interval < MinInterval {
		return fmt.Errorf("job %s: interval %s is below %s", name, interval, MinInterval)
	}
	if fn == nil {
		return fmt.Errorf("job %s: function cannot be nil", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s already registered", name)
	}

	j := &job{interval: interval, fn: fn}
	j.id = s.cron.Schedule(rcron.Every(interval), rcron.FuncJob(func() { s.run(name, j) }))
	s.jobs[name] = j
	return nil
}

// Run executes a registered job immediately on the calling goroutine.
func (s *Scheduler) Run(name string) error {
	s.mu.Lock()
	j, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("job %s not found", name)
	}
	s.run(name, j)
	return nil
}

func (s *Scheduler) run(name string, j *job) {
	if s.ctx.Err() != nil {
		return
	}
	start := time.Now()
	j.fn(s.ctx)
	s.logger.Debug("scheduled job finished", "job", name, "duration", time.Since(start))
}

// Jobs returns the registered job names, sorted.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Start begins running jobs. It is a no-op when already started.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", len(s.jobs))
}

// Stop cancels job contexts and waits for running jobs or ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	done := s.cron.Stop()

	select {
	case <-done.Done():
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for running jobs: %w", ctx.Err())
	}
}

// cronLogger adapts logger.Logger to cron.Logger.
type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
