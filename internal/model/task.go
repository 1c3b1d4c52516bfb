package model

import (
	"time"
)

// TaskStatus represents the current status of a workflow task
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusReady     TaskStatus = "ready" // All dependencies met
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusSkipped   TaskStatus = "skipped"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// Terminal reports whether the status is a final state.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusSkipped, TaskStatusCancelled:
		return true
	}
	return false
}

const (
	// DefaultPriority is the mid-range priority assigned when a plan omits one.
	DefaultPriority = 3

	// DefaultMaxRetries bounds executor attempts before a task is marked failed.
	DefaultMaxRetries = 2
)

// WorkflowTask represents a single unit of work inside a workflow DAG.
// Priority is an integer where a lower value means higher priority.
type WorkflowTask struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Assignee    string            `json:"assignee"`
	Priority    int               `json:"priority"`
	DependsOn   []string          `json:"depends_on"`
	Status      TaskStatus        `json:"status"`
	Result      string            `json:"result,omitempty"`
	Error       string            `json:"error,omitempty"`
	Retries     int               `json:"retries"`
	MaxRetries  int               `json:"max_retries"`
	Metadata    map[string]string `json:"metadata,omitempty"`

	// Timing fields
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// planIndex preserves the original plan position for priority tie-breaks.
	planIndex int
}

// PlanIndex returns the task's position in the originating plan.
func (t *WorkflowTask) PlanIndex() int {
	return t.planIndex
}

// SetPlanIndex records the task's position in the originating plan.
func (t *WorkflowTask) SetPlanIndex(i int) {
	t.planIndex = i
}

// snapshotResultLimit caps result text carried in snapshots for transport.
const snapshotResultLimit = 200

// TaskSnapshot is a serializable point-in-time view of a task.
type TaskSnapshot struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Assignee    string     `json:"assignee"`
	Priority    int        `json:"priority"`
	DependsOn   []string   `json:"depends_on"`
	Status      TaskStatus `json:"status"`
	Result      string     `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
	Retries     int        `json:"retries"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Snapshot returns a copy of the task suitable for status queries.
// Result text is truncated to keep snapshots transportable.
func (t *WorkflowTask) Snapshot() TaskSnapshot {
	snap := TaskSnapshot{
		ID:          t.ID,
		Name:        t.Name,
		Description: t.Description,
		Assignee:    t.Assignee,
		Priority:    t.Priority,
		DependsOn:   append([]string(nil), t.DependsOn...),
		Status:      t.Status,
		Result:      truncate(t.Result, snapshotResultLimit),
		Error:       t.Error,
		Retries:     t.Retries,
	}
	if t.StartedAt != nil {
		started := *t.StartedAt
		snap.StartedAt = &started
	}
	if t.CompletedAt != nil {
		completed := *t.CompletedAt
		snap.CompletedAt = &completed
	}
	return snap
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
