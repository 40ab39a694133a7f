package dispatch

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/emberwatch/fireline/internal/store"
)

// TaskInput is the wire shape accepted by POST /tasks.
type TaskInput struct {
	TaskID     string           `json:"task_id,omitempty"`
	DeviceID   string           `json:"device_id"`
	Kind       string           `json:"kind"`
	Waypoints  []map[string]any `json:"waypoints,omitempty"`
	Parameters map[string]any   `json:"parameters,omitempty"`
	Deadline   *time.Time       `json:"deadline,omitempty"`
	AssignedBy string           `json:"assigned_by,omitempty"`
}

// CreateTask persists a device task, minting "task-"+8 hex IDs when the
// caller supplies none. A reused task_id surfaces store.ErrDuplicateTask.
func (c *Coordinator) CreateTask(in TaskInput) (store.Task, error) {
	if in.DeviceID == "" {
		return store.Task{}, fmt.Errorf("%w: device_id must not be empty", ErrValidation)
	}
	if in.Kind == "" {
		return store.Task{}, fmt.Errorf("%w: kind must not be empty", ErrValidation)
	}

	taskID := in.TaskID
	if taskID == "" {
		taskID = "task-" + uuid.NewString()[:8]
	}
	task := store.Task{
		TaskID:     taskID,
		DeviceID:   in.DeviceID,
		Kind:       in.Kind,
		Waypoints:  in.Waypoints,
		Parameters: in.Parameters,
		AssignedBy: in.AssignedBy,
		CreatedAt:  c.clock.Now().UTC(),
		Deadline:   in.Deadline,
	}
	if err := c.store.InsertTask(&task); err != nil {
		return store.Task{}, err
	}
	return task, nil
}
