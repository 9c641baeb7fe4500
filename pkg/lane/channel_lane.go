package lane

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goclaw/manifest/pkg/logger"
)

// ChannelLane is a Lane backed by a buffered channel.
type ChannelLane struct {
	config *Config
	taskCh chan Task
	log    logger.Logger

	// mu orders Submit against Close so no send hits a closed channel.
	mu        sync.RWMutex
	closed    atomic.Bool
	closeOnce sync.Once
	wg        sync.WaitGroup

	pending   atomic.Int32
	running   atomic.Int32
	completed atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64

	totalProcessTime atomic.Int64 // nanoseconds
	taskCount        atomic.Int64
}

// New creates a ChannelLane and starts its workers.
func New(config *Config, log logger.Logger) (*ChannelLane, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Global()
	}

	l := &ChannelLane{
		config: config,
		taskCh: make(chan Task, config.Capacity),
		log:    log.With("component", "lane", "lane", config.Name),
	}
	for i := 0; i < config.Workers; i++ {
		l.wg.Add(1)
		go l.worker()
	}
	return l, nil
}

// Name returns the lane name.
func (l *ChannelLane) Name() string {
	return l.config.Name
}

// Submit enqueues task without blocking. A full queue drops the task.
func (l *ChannelLane) Submit(task Task) error {
	if task == nil {
		return fmt.Errorf("task cannot be nil")
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed.Load() {
		return &LaneClosedError{LaneName: l.config.Name}
	}

	select {
	case l.taskCh <- task:
		l.pending.Add(1)
		return nil
	default:
		l.dropped.Add(1)
		return &TaskDroppedError{LaneName: l.config.Name, TaskID: task.ID()}
	}
}

func (l *ChannelLane) worker() {
	defer l.wg.Done()
	for task := range l.taskCh {
		l.execute(task)
	}
}

func (l *ChannelLane) execute(task Task) {
	l.pending.Add(-1)
	l.running.Add(1)
	defer l.running.Add(-1)

	ctx := context.Background()
	if l.config.TaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.config.TaskTimeout)
		defer cancel()
	}

	start := time.Now()
	err := l.run(ctx, task)
	l.totalProcessTime.Add(int64(time.Since(start)))
	l.taskCount.Add(1)

	if err != nil {
		l.failed.Add(1)
		l.log.Warn("lane task failed", "task", task.ID(), "error", err)
		return
	}
	l.completed.Add(1)
}

func (l *ChannelLane) run(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panic: %v", r)
		}
	}()
	return task.Execute(ctx)
}

// Stats returns current lane statistics.
func (l *ChannelLane) Stats() Stats {
	stats := Stats{
		Name:      l.config.Name,
		Pending:   int(l.pending.Load()),
		Running:   int(l.running.Load()),
		Completed: l.completed.Load(),
		Failed:    l.failed.Load(),
		Dropped:   l.dropped.Load(),
		Capacity:  l.config.Capacity,
		Workers:   l.config.Workers,
	}
	if count := l.taskCount.Load(); count > 0 {
		stats.ProcessTime = time.Duration(l.totalProcessTime.Load() / count)
	}
	return stats
}

// Pending returns the number of queued tasks.
func (l *ChannelLane) Pending() int {
	return int(l.pending.Load())
}

// Close stops accepting tasks and waits for queued ones to finish or ctx.
func (l *ChannelLane) Close(ctx context.Context) error {
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.closed.Store(true)
		close(l.taskCh)
		l.mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain lane %s: %w", l.config.Name, ctx.Err())
	}
}

// IsClosed returns true if the lane is closed.
func (l *ChannelLane) IsClosed() bool {
	return l.closed.Load()
}
