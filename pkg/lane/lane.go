// Package lane runs fire-and-forget side effects, such as usage recording,
// on a bounded queue drained by a fixed set of workers.
//
// Basic usage:
//
//	l, err := lane.New(&lane.Config{Name: "usage", Capacity: 1024, Workers: 4})
//	if err != nil {
//	    return err
//	}
//	defer l.Close(context.Background())
//
//	err = l.Submit(lane.NewTaskFunc("usage:a1", func(ctx context.Context) error {
//	    return tracker.Record(ctx, u)
//	}))
package lane

import (
	"context"
	"fmt"
	"time"
)

// Task is a unit of work submitted to a Lane.
type Task interface {
	// ID names the task in logs and errors.
	ID() string

	// Execute runs the task.
	Execute(ctx context.Context) error
}

// TaskFunc adapts a function to Task.
type TaskFunc struct {
	id string
	fn func(ctx context.Context) error
}

// NewTaskFunc creates a new TaskFunc.
func NewTaskFunc(id string, fn func(ctx context.Context) error) *TaskFunc {
	return &TaskFunc{id: id, fn: fn}
}

// ID implements Task.ID.
func (t *TaskFunc) ID() string {
	return t.id
}

// Execute executes the task function.
func (t *TaskFunc) Execute(ctx context.Context) error {
	if t.fn == nil {
		return fmt.Errorf("task function is nil")
	}
	return t.fn(ctx)
}

// Config holds the configuration for a Lane.
type Config struct {
	// Name is the lane name.
	Name string

	// Capacity is the maximum number of queued tasks.
	Capacity int

	// Workers is the number of concurrent workers.
	Workers int

	// TaskTimeout bounds each task. Zero means no bound.
	TaskTimeout time.Duration
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}
	if c.Name == "" {
		return fmt.Errorf("lane name cannot be empty")
	}
	if c.Capacity <= 0 {
		return fmt.Errorf("capacity must be positive, got %d", c.Capacity)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	if c.TaskTimeout < 0 {
		return fmt.Errorf("task timeout cannot be negative")
	}
	return nil
}

// Stats is a point-in-time view of a lane.
type Stats struct {
	Name      string
	Pending   int
	Running   int
	Completed int64
	Failed    int64
	Dropped   int64
	Capacity  int
	Workers   int

	// ProcessTime is the mean task duration.
	ProcessTime time.Duration
}
