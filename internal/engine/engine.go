package engine

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/maestroflow/maestro/internal/agent"
	"github.com/maestroflow/maestro/internal/model"
	"github.com/maestroflow/maestro/internal/storage"
)

// ExecutorFunc invokes the external executor capability for one task. It is
// the engine's sole suspension point; any failure is handled uniformly via
// the retry rule.
type ExecutorFunc func(ctx context.Context, agentName, task string, taskContext map[string]string) (string, error)

// TaskCallback observes per-task lifecycle transitions. Callbacks are
// best-effort notification: panics are recovered and discarded, and a
// callback can never abort a workflow.
type TaskCallback func(wf *model.Workflow, task *model.WorkflowTask, event string)

// WorkflowCallback observes whole-workflow lifecycle transitions under the
// same best-effort contract as TaskCallback.
type WorkflowCallback func(wf *model.Workflow, event string)

// Config defines configuration for the engine
type Config struct {
	// MaxParallel bounds the number of tasks dispatched concurrently in one
	// batch. Defaults to 4.
	MaxParallel int

	// DefaultAssignee is used when neither an exact registry match nor a
	// capability match resolves a task's assignee. Defaults to "Developer".
	DefaultAssignee string

	// MaxRetries is the per-task retry budget applied to planned tasks.
	MaxRetries int

	// Executor performs task execution. Required for Execute.
	Executor ExecutorFunc

	// Registry resolves assignees by name or capability score. Optional.
	Registry *agent.Registry

	// History records completed workflow runs. Optional.
	History storage.WorkflowHistoryStorage

	OnTaskUpdate     TaskCallback
	OnWorkflowUpdate WorkflowCallback
}

// Engine schedules workflows as DAGs of tasks under a bounded-parallelism
// budget. One logical driver advances each workflow; the engine's own state
// (workflow catalog, cancellation flags, task status fields) is guarded by a
// single mutex so status queries and control calls are safe during a run.
type Engine struct {
	logger *zap.Logger
	config Config

	mu        sync.RWMutex
	workflows map[string]*model.Workflow
	cancelled map[string]struct{}
	running   int // tasks currently dispatched, for stats
}

// NewEngine creates a new workflow engine
func NewEngine(config Config, logger *zap.Logger) *Engine {
	if config.MaxParallel <= 0 {
		config.MaxParallel = 4
	}
	if config.DefaultAssignee == "" {
		config.DefaultAssignee = "Developer"
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = model.DefaultMaxRetries
	}

	return &Engine{
		logger:    logger.Named("engine"),
		config:    config,
		workflows: make(map[string]*model.Workflow),
		cancelled: make(map[string]struct{}),
	}
}

// CreateWorkflow creates and retains a new workflow. An empty id is replaced
// with a generated one.
func (e *Engine) CreateWorkflow(id, name, objective string) *model.Workflow {
	if id == "" {
		id = uuid.New().String()
	}

	wf := model.NewWorkflow(id, name, objective)

	e.mu.Lock()
	e.workflows[id] = wf
	e.mu.Unlock()

	e.logger.Info("Workflow created",
		zap.String("workflow_id", id),
		zap.String("name", name))

	return wf
}

// CreateTasksFromPlan translates a planner's output into workflow tasks.
// Each task gets a stable id of the form task_<n> from its plan position.
// Plans with unknown dependency references or dependency cycles are rejected
// with ErrInvalidPlan.
func (e *Engine) CreateTasksFromPlan(wf *model.Workflow, plan []model.PlannedTask) ([]*model.WorkflowTask, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	tasks := make([]*model.WorkflowTask, 0, len(plan))
	for i, planned := range plan {
		name := planned.Task
		if name == "" {
			name = "Task " + strconv.Itoa(i+1)
		}

		assignee := planned.Assignee
		if assignee == "" {
			assignee = e.config.DefaultAssignee
		}

		priority := planned.Priority
		if priority <= 0 {
			priority = model.DefaultPriority
		}

		dependsOn := make([]string, 0, len(planned.DependsOn))
		for _, ref := range planned.DependsOn {
			dependsOn = append(dependsOn, ref.TaskID())
		}

		task := &model.WorkflowTask{
			ID:          taskID(i),
			Name:        truncateName(name, 100),
			Description: planned.Task,
			Assignee:    assignee,
			Priority:    priority,
			DependsOn:   dependsOn,
			Status:      model.TaskStatusPending,
			MaxRetries:  e.config.MaxRetries,
		}
		task.SetPlanIndex(i)
		wf.AddTask(task)
		tasks = append(tasks, task)
	}

	if err := validateGraph(wf); err != nil {
		return nil, err
	}
	return tasks, nil
}

// Execute drives a workflow to completion, cancellation, or exhaustion using
// DAG-based scheduling. It returns the results of all completed tasks keyed
// by task id. Execute must be called by exactly one driver per workflow.
func (e *Engine) Execute(ctx context.Context, wf *model.Workflow) (map[string]string, error) {
	if e.config.Executor == nil {
		return nil, ErrNoExecutor
	}

	e.mu.Lock()
	wf.Status = model.WorkflowStatusRunning
	e.mu.Unlock()

	e.emitWorkflow(wf, "started")
	record := e.recordStart(ctx, wf)

	for {
		e.mu.Lock()
		if _, ok := e.cancelled[wf.ID]; ok || ctx.Err() != nil {
			e.cancelled[wf.ID] = struct{}{}
			e.mu.Unlock()
			break
		}
		if wf.IsComplete() {
			e.mu.Unlock()
			break
		}

		ready := wf.ReadyTasks()
		if len(ready) == 0 {
			// No ready tasks but the workflow is not complete. Convert
			// tasks blocked behind a failed dependency into forward
			// progress, or exit if the graph is exhausted.
			if !e.skipBlocked(wf) {
				e.mu.Unlock()
				break
			}
			e.mu.Unlock()
			continue
		}

		batch := ready
		if len(batch) > e.config.MaxParallel {
			batch = batch[:e.config.MaxParallel]
		}
		e.running += len(batch)
		e.mu.Unlock()

		// The whole batch finishes before readiness is recomputed.
		var g errgroup.Group
		for _, task := range batch {
			task := task
			g.Go(func() error {
				e.executeTask(ctx, wf, task)
				return nil
			})
		}
		g.Wait()

		e.mu.Lock()
		e.running -= len(batch)
		e.mu.Unlock()
	}

	e.mu.Lock()
	now := time.Now()
	wf.CompletedAt = &now

	failed := 0
	skipped := 0
	for _, task := range wf.Tasks {
		switch task.Status {
		case model.TaskStatusFailed:
			failed++
		case model.TaskStatusSkipped:
			skipped++
		}
	}

	_, wasCancelled := e.cancelled[wf.ID]
	switch {
	case failed > 0:
		wf.Status = model.WorkflowStatusWithErrors
	case wasCancelled:
		wf.Status = model.WorkflowStatusCancelled
	default:
		wf.Status = model.WorkflowStatusCompleted
	}
	status := wf.Status
	results := wf.Results()
	e.mu.Unlock()

	e.logger.Info("Workflow finished",
		zap.String("workflow_id", wf.ID),
		zap.String("status", string(status)),
		zap.Int("failed", failed),
		zap.Int("skipped", skipped))

	e.emitWorkflow(wf, string(status))
	e.recordFinish(ctx, wf, record, failed, skipped)

	return results, nil
}

// skipBlocked marks every unresolved task with a failed dependency as
// skipped. It returns false when nothing could be advanced and no pending
// work remains reachable, signalling the scheduling loop to exit. Callers
// must hold e.mu.
func (e *Engine) skipBlocked(wf *model.Workflow) bool {
	unresolved := false
	advanced := false

	for _, task := range wf.Tasks {
		if task.Status != model.TaskStatusPending && task.Status != model.TaskStatusReady {
			continue
		}
		unresolved = true

		for _, depID := range task.DependsOn {
			dep, ok := wf.Tasks[depID]
			if !ok {
				// Unknown reference: permanently unmet, never skipped.
				continue
			}
			if dep.Status != model.TaskStatusFailed && dep.Status != model.TaskStatusSkipped {
				continue
			}
			now := time.Now()
			task.Status = model.TaskStatusSkipped
			task.Error = "Dependency failed"
			task.CompletedAt = &now
			advanced = true

			e.logger.Warn("Task skipped",
				zap.String("workflow_id", wf.ID),
				zap.String("task_id", task.ID),
				zap.String("failed_dependency", depID))
			break
		}
	}

	return unresolved && advanced
}

// executeTask runs one task through its execution lifecycle.
func (e *Engine) executeTask(ctx context.Context, wf *model.Workflow, task *model.WorkflowTask) {
	e.mu.Lock()
	task.Status = model.TaskStatusRunning
	started := time.Now()
	task.StartedAt = &started

	// Context mapping from completed dependency results.
	taskContext := make(map[string]string)
	for _, depID := range task.DependsOn {
		if dep, ok := wf.Tasks[depID]; ok && dep.Result != "" {
			taskContext[depID] = dep.Result
		}
	}

	assignee := e.resolveAssignee(task)
	task.Assignee = assignee
	description := task.Description
	e.mu.Unlock()

	e.emitTask(wf, task, "started")

	result, err := e.config.Executor(ctx, assignee, description, taskContext)

	e.mu.Lock()
	if err != nil {
		task.Error = err.Error()
		task.Retries++

		if task.Retries < task.MaxRetries {
			// Back onto the ready computation for the next iteration.
			task.Status = model.TaskStatusPending
		} else {
			task.Status = model.TaskStatusFailed
		}

		e.logger.Warn("Task execution failed",
			zap.String("workflow_id", wf.ID),
			zap.String("task_id", task.ID),
			zap.Int("retries", task.Retries),
			zap.Int("max_retries", task.MaxRetries),
			zap.Error(err))
	} else {
		task.Result = result
		task.Error = ""
		task.Status = model.TaskStatusCompleted

		e.logger.Info("Task completed",
			zap.String("workflow_id", wf.ID),
			zap.String("task_id", task.ID),
			zap.String("assignee", assignee))
	}

	completed := time.Now()
	task.CompletedAt = &completed
	status := task.Status
	e.mu.Unlock()

	e.emitTask(wf, task, string(status))
}

// resolveAssignee picks the executor profile for a task: exact registry
// lookup, then best capability match, then the configured default. Callers
// must hold e.mu.
func (e *Engine) resolveAssignee(task *model.WorkflowTask) string {
	if e.config.Registry == nil {
		if task.Assignee != "" {
			return task.Assignee
		}
		return e.config.DefaultAssignee
	}

	if _, ok := e.config.Registry.Get(task.Assignee); ok {
		return task.Assignee
	}
	if profile, ok := e.config.Registry.FindBest(task.Description); ok {
		return profile.Name
	}
	return e.config.DefaultAssignee
}

// Cancel marks a workflow for cancellation. The check is cooperative: an
// in-flight batch always finishes before the flag takes effect.
func (e *Engine) Cancel(workflowID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelled[workflowID] = struct{}{}
}

// Pause labels a workflow as paused. Pausing is advisory state for external
// callers; the engine does not itself skip dispatch for paused workflows.
func (e *Engine) Pause(workflowID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	wf, ok := e.workflows[workflowID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrWorkflowNotFound, workflowID)
	}
	wf.Status = model.WorkflowStatusPaused
	return nil
}

// Resume clears a paused label. Resuming a workflow that is not paused is a
// no-op.
func (e *Engine) Resume(workflowID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	wf, ok := e.workflows[workflowID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrWorkflowNotFound, workflowID)
	}
	if wf.Status == model.WorkflowStatusPaused {
		wf.Status = model.WorkflowStatusRunning
	}
	return nil
}

// GetWorkflowStatus returns a snapshot of the workflow and all task states,
// or false if the id is unknown.
func (e *Engine) GetWorkflowStatus(workflowID string) (model.WorkflowSnapshot, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	wf, ok := e.workflows[workflowID]
	if !ok {
		return model.WorkflowSnapshot{}, false
	}
	return wf.Snapshot(), true
}

// RemoveWorkflow discards a retained workflow and its cancellation flag.
func (e *Engine) RemoveWorkflow(workflowID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.workflows, workflowID)
	delete(e.cancelled, workflowID)
}

// Stats summarizes engine state for monitoring.
type Stats struct {
	Workflows    int `json:"workflows"`
	RunningTasks int `json:"running_tasks"`
	Completed    int `json:"completed_tasks"`
	Failed       int `json:"failed_tasks"`
	Skipped      int `json:"skipped_tasks"`
}

// Stats returns current scheduling statistics.
func (e *Engine) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	stats := Stats{
		Workflows:    len(e.workflows),
		RunningTasks: e.running,
	}
	for _, wf := range e.workflows {
		for _, task := range wf.Tasks {
			switch task.Status {
			case model.TaskStatusCompleted:
				stats.Completed++
			case model.TaskStatusFailed:
				stats.Failed++
			case model.TaskStatusSkipped:
				stats.Skipped++
			}
		}
	}
	return stats
}

// emitTask delivers a per-task lifecycle event, discarding any panic.
func (e *Engine) emitTask(wf *model.Workflow, task *model.WorkflowTask, event string) {
	if e.config.OnTaskUpdate == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Debug("Task callback panicked",
				zap.String("task_id", task.ID),
				zap.Any("panic", r))
		}
	}()
	e.config.OnTaskUpdate(wf, task, event)
}

// emitWorkflow delivers a per-workflow lifecycle event, discarding any panic.
func (e *Engine) emitWorkflow(wf *model.Workflow, event string) {
	if e.config.OnWorkflowUpdate == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Debug("Workflow callback panicked",
				zap.String("workflow_id", wf.ID),
				zap.Any("panic", r))
		}
	}()
	e.config.OnWorkflowUpdate(wf, event)
}

// recordStart writes the initial history record for a run, if history
// storage is configured. Storage failures are logged, never fatal.
func (e *Engine) recordStart(ctx context.Context, wf *model.Workflow) *storage.WorkflowHistory {
	if e.config.History == nil {
		return nil
	}

	record := &storage.WorkflowHistory{
		ID:         uuid.New().String(),
		WorkflowID: wf.ID,
		Name:       wf.Name,
		Objective:  wf.Objective,
		Status:     model.WorkflowStatusRunning,
		TaskTotal:  len(wf.Tasks),
		StartedAt:  time.Now(),
	}
	if err := e.config.History.Store(ctx, record); err != nil {
		e.logger.Error("Failed to store workflow history",
			zap.String("workflow_id", wf.ID),
			zap.Error(err))
	}
	return record
}

// recordFinish finalizes the history record and persists per-task runs.
func (e *Engine) recordFinish(ctx context.Context, wf *model.Workflow, record *storage.WorkflowHistory, failed, skipped int) {
	if e.config.History == nil || record == nil {
		return
	}

	e.mu.RLock()
	record.Status = wf.Status
	record.TaskTotal = len(wf.Tasks)
	record.TaskFailed = failed
	record.TaskSkipped = skipped
	record.CompletedAt = wf.CompletedAt
	if wf.CompletedAt != nil {
		record.Duration = wf.CompletedAt.Sub(record.StartedAt)
	}

	runs := make([]*storage.TaskRun, 0, len(wf.Tasks))
	for _, task := range wf.Tasks {
		runs = append(runs, &storage.TaskRun{
			RunID:       record.ID,
			TaskID:      task.ID,
			Name:        task.Name,
			Assignee:    task.Assignee,
			Status:      task.Status,
			Result:      task.Result,
			Error:       task.Error,
			Retries:     task.Retries,
			StartedAt:   task.StartedAt,
			CompletedAt: task.CompletedAt,
		})
	}
	e.mu.RUnlock()

	if err := e.config.History.Update(ctx, record); err != nil {
		e.logger.Error("Failed to update workflow history",
			zap.String("workflow_id", wf.ID),
			zap.Error(err))
	}
	for _, run := range runs {
		if err := e.config.History.StoreTaskRun(ctx, run); err != nil {
			e.logger.Error("Failed to store task run",
				zap.String("workflow_id", wf.ID),
				zap.String("task_id", run.TaskID),
				zap.Error(err))
		}
	}
}

func taskID(planIndex int) string {
	return "task_" + strconv.Itoa(planIndex+1)
}

func truncateName(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
