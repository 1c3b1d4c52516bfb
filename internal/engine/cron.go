package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/maestroflow/maestro/internal/model"
)

// WorkflowSchedule re-submits a stored plan as a fresh workflow on a cron
// expression (with seconds field).
type WorkflowSchedule struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Expression  string              `json:"expression"`
	Objective   string              `json:"objective"`
	Plan        []model.PlannedTask `json:"plan"`
	LastRunTime *time.Time          `json:"last_run_time,omitempty"`
	NextRunTime *time.Time          `json:"next_run_time,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
}

// CronRunner executes recurring workflow schedules against an engine.
type CronRunner struct {
	logger    *zap.Logger
	engine    *Engine
	cron      *cron.Cron
	mu        sync.RWMutex
	schedules map[string]*WorkflowSchedule
	entryIDs  map[string]cron.EntryID
}

// cronLogger adapts zap.Logger to cron.Logger
type cronLogger struct {
	logger *zap.Logger
}

func (l *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Info(msg)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, zap.Error(err))
}

// NewCronRunner creates a new cron runner driving the given engine.
func NewCronRunner(engine *Engine, logger *zap.Logger) *CronRunner {
	cl := &cronLogger{logger: logger.Named("cron")}
	return &CronRunner{
		logger:    logger.Named("cron-runner"),
		engine:    engine,
		cron:      cron.New(cron.WithSeconds(), cron.WithChain(cron.Recover(cl))),
		schedules: make(map[string]*WorkflowSchedule),
		entryIDs:  make(map[string]cron.EntryID),
	}
}

// Start starts the runner
func (r *CronRunner) Start() {
	r.logger.Info("Starting cron runner")
	r.cron.Start()
}

// Stop stops the runner and waits for in-flight jobs to finish
func (r *CronRunner) Stop() {
	r.logger.Info("Stopping cron runner")
	ctx := r.cron.Stop()
	<-ctx.Done()
}

// AddSchedule registers a recurring workflow schedule.
func (r *CronRunner) AddSchedule(schedule *WorkflowSchedule) error {
	if schedule.ID == "" {
		schedule.ID = uuid.New().String()
	}
	if schedule.CreatedAt.IsZero() {
		schedule.CreatedAt = time.Now()
	}

	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	spec, err := parser.Parse(schedule.Expression)
	if err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entryID, err := r.cron.AddJob(schedule.Expression, &scheduleJob{runner: r, schedule: schedule})
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	r.schedules[schedule.ID] = schedule
	r.entryIDs[schedule.ID] = entryID

	next := spec.Next(time.Now())
	schedule.NextRunTime = &next

	r.logger.Info("Added workflow schedule",
		zap.String("id", schedule.ID),
		zap.String("name", schedule.Name),
		zap.String("expression", schedule.Expression),
		zap.Time("next_run", next))

	return nil
}

// RemoveSchedule removes a schedule
func (r *CronRunner) RemoveSchedule(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entryID, ok := r.entryIDs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrScheduleNotFound, id)
	}

	r.cron.Remove(entryID)
	delete(r.entryIDs, id)
	delete(r.schedules, id)

	r.logger.Info("Removed workflow schedule", zap.String("id", id))
	return nil
}

// GetSchedule gets a schedule by ID
func (r *CronRunner) GetSchedule(id string) (*WorkflowSchedule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schedule, ok := r.schedules[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrScheduleNotFound, id)
	}
	return schedule, nil
}

// ListSchedules lists all schedules
func (r *CronRunner) ListSchedules() []*WorkflowSchedule {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schedules := make([]*WorkflowSchedule, 0, len(r.schedules))
	for _, schedule := range r.schedules {
		schedules = append(schedules, schedule)
	}
	return schedules
}

// scheduleJob implements cron.Job
type scheduleJob struct {
	runner   *CronRunner
	schedule *WorkflowSchedule
}

// Run builds a fresh workflow from the stored plan and drives it to
// completion. Each firing gets a new workflow id.
func (j *scheduleJob) Run() {
	r := j.runner
	now := time.Now()

	r.mu.Lock()
	j.schedule.LastRunTime = &now
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if spec, err := parser.Parse(j.schedule.Expression); err == nil {
		next := spec.Next(now)
		j.schedule.NextRunTime = &next
	}
	name := j.schedule.Name
	objective := j.schedule.Objective
	plan := j.schedule.Plan
	r.mu.Unlock()

	wf := r.engine.CreateWorkflow("", name, objective)
	if _, err := r.engine.CreateTasksFromPlan(wf, plan); err != nil {
		r.logger.Error("Scheduled plan rejected",
			zap.String("schedule_id", j.schedule.ID),
			zap.Error(err))
		return
	}

	if _, err := r.engine.Execute(context.Background(), wf); err != nil {
		r.logger.Error("Scheduled workflow failed",
			zap.String("schedule_id", j.schedule.ID),
			zap.String("workflow_id", wf.ID),
			zap.Error(err))
		return
	}

	r.logger.Info("Executed workflow schedule",
		zap.String("schedule_id", j.schedule.ID),
		zap.String("workflow_id", wf.ID),
		zap.Time("executed_at", now))
}
