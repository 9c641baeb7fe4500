package lane

import (
	"errors"
	"fmt"
)

// LaneClosedError is returned when submitting to a closed lane.
type LaneClosedError struct {
	LaneName string
}

func (e *LaneClosedError) Error() string {
	return fmt.Sprintf("lane %s is closed", e.LaneName)
}

// TaskDroppedError is returned when the queue is full.
type TaskDroppedError struct {
	LaneName string
	TaskID   string
}

func (e *TaskDroppedError) Error() string {
	return fmt.Sprintf("task %s dropped in lane %s due to backpressure", e.TaskID, e.LaneName)
}

// IsLaneClosedError reports whether err is a LaneClosedError.
func IsLaneClosedError(err error) bool {
	var e *LaneClosedError
	return errors.As(err, &e)
}

// IsTaskDroppedError reports whether err is a TaskDroppedError.
func IsTaskDroppedError(err error) bool {
	var e *TaskDroppedError
	return errors.As(err, &e)
}
