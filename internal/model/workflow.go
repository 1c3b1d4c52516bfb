package model

import (
	"sort"
	"time"
)

// WorkflowStatus represents the aggregate status of a workflow
type WorkflowStatus string

const (
	WorkflowStatusCreated    WorkflowStatus = "created"
	WorkflowStatusRunning    WorkflowStatus = "running"
	WorkflowStatusPaused     WorkflowStatus = "paused"
	WorkflowStatusCompleted  WorkflowStatus = "completed"
	WorkflowStatusCancelled  WorkflowStatus = "cancelled"
	WorkflowStatusWithErrors WorkflowStatus = "completed_with_errors"
)

// Workflow is a DAG of tasks pursuing a single objective.
// The task mapping is append-only during planning and is mutated only by
// the one engine loop driving the workflow.
type Workflow struct {
	ID          string                   `json:"id"`
	Name        string                   `json:"name"`
	Objective   string                   `json:"objective"`
	Tasks       map[string]*WorkflowTask `json:"tasks"`
	Status      WorkflowStatus           `json:"status"`
	CreatedAt   time.Time                `json:"created_at"`
	CompletedAt *time.Time               `json:"completed_at,omitempty"`
}

// NewWorkflow creates an empty workflow in the created state.
func NewWorkflow(id, name, objective string) *Workflow {
	return &Workflow{
		ID:        id,
		Name:      name,
		Objective: objective,
		Tasks:     make(map[string]*WorkflowTask),
		Status:    WorkflowStatusCreated,
		CreatedAt: time.Now(),
	}
}

// AddTask adds a task to the workflow.
func (w *Workflow) AddTask(task *WorkflowTask) {
	w.Tasks[task.ID] = task
}

// ReadyTasks marks pending tasks whose dependencies have all completed as
// ready and returns every ready-but-undispatched task sorted by ascending
// priority, plan order breaking ties. A dependency id that does not resolve
// to a task keeps the task pending.
func (w *Workflow) ReadyTasks() []*WorkflowTask {
	var ready []*WorkflowTask
	for _, task := range w.Tasks {
		switch task.Status {
		case TaskStatusReady:
			// Marked in an earlier pass but left out of the batch.
			ready = append(ready, task)
			continue
		case TaskStatusPending:
		default:
			continue
		}

		depsMet := true
		for _, depID := range task.DependsOn {
			dep, ok := w.Tasks[depID]
			if !ok || dep.Status != TaskStatusCompleted {
				depsMet = false
				break
			}
		}

		if depsMet {
			task.Status = TaskStatusReady
			ready = append(ready, task)
		}
	}

	sort.SliceStable(ready, func(i, j int) bool {
		if ready[i].Priority != ready[j].Priority {
			return ready[i].Priority < ready[j].Priority
		}
		return ready[i].planIndex < ready[j].planIndex
	})
	return ready
}

// IsComplete reports whether every task has reached a terminal status.
func (w *Workflow) IsComplete() bool {
	for _, task := range w.Tasks {
		if !task.Status.Terminal() {
			return false
		}
	}
	return true
}

// Results returns the result text of every completed task keyed by task id.
func (w *Workflow) Results() map[string]string {
	results := make(map[string]string)
	for id, task := range w.Tasks {
		if task.Status == TaskStatusCompleted && task.Result != "" {
			results[id] = task.Result
		}
	}
	return results
}

// WorkflowSnapshot is a serializable point-in-time view of a workflow.
type WorkflowSnapshot struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Objective   string         `json:"objective"`
	Status      WorkflowStatus `json:"status"`
	Tasks       []TaskSnapshot `json:"tasks"`
	CreatedAt   time.Time      `json:"created_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// Snapshot returns a copy of the workflow and all task states, with tasks
// ordered by plan position for stable output.
func (w *Workflow) Snapshot() WorkflowSnapshot {
	snap := WorkflowSnapshot{
		ID:        w.ID,
		Name:      w.Name,
		Objective: w.Objective,
		Status:    w.Status,
		CreatedAt: w.CreatedAt,
	}
	if w.CompletedAt != nil {
		completed := *w.CompletedAt
		snap.CompletedAt = &completed
	}

	tasks := make([]*WorkflowTask, 0, len(w.Tasks))
	for _, task := range w.Tasks {
		tasks = append(tasks, task)
	}
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].planIndex < tasks[j].planIndex
	})
	for _, task := range tasks {
		snap.Tasks = append(snap.Tasks, task.Snapshot())
	}
	return snap
}
