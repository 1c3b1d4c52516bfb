package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/maestroflow/maestro/internal/model"
)

// WorkflowHistory represents one workflow run record.
type WorkflowHistory struct {
	ID          string               `json:"id"`
	WorkflowID  string               `json:"workflow_id"`
	Name        string               `json:"name"`
	Objective   string               `json:"objective"`
	Status      model.WorkflowStatus `json:"status"`
	TaskTotal   int                  `json:"task_total"`
	TaskFailed  int                  `json:"task_failed"`
	TaskSkipped int                  `json:"task_skipped"`
	StartedAt   time.Time            `json:"started_at"`
	CompletedAt *time.Time           `json:"completed_at,omitempty"`
	Duration    time.Duration        `json:"duration,omitempty"`
}

// TaskRun records one task execution within a workflow run.
type TaskRun struct {
	RunID       string           `json:"run_id"`
	TaskID      string           `json:"task_id"`
	Name        string           `json:"name"`
	Assignee    string           `json:"assignee"`
	Status      model.TaskStatus `json:"status"`
	Result      string           `json:"result,omitempty"`
	Error       string           `json:"error,omitempty"`
	Retries     int              `json:"retries"`
	StartedAt   *time.Time       `json:"started_at,omitempty"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

// WorkflowHistoryStorage defines the interface for workflow run persistence
type WorkflowHistoryStorage interface {
	// Store stores a new workflow run record
	Store(ctx context.Context, history *WorkflowHistory) error

	// Update updates an existing workflow run record
	Update(ctx context.Context, history *WorkflowHistory) error

	// StoreTaskRun stores one task execution record for a run
	StoreTaskRun(ctx context.Context, run *TaskRun) error

	// Get retrieves a workflow run record by ID
	Get(ctx context.Context, id string) (*WorkflowHistory, error)

	// List retrieves workflow run records ordered by start time, newest first
	List(ctx context.Context, offset, limit int) ([]*WorkflowHistory, error)

	// TaskRuns retrieves all task run records for a workflow run
	TaskRuns(ctx context.Context, runID string) ([]*TaskRun, error)

	// Count returns the total number of workflow run records
	Count(ctx context.Context) (int, error)

	// DeleteBefore deletes records started before the specified time
	DeleteBefore(ctx context.Context, before time.Time) error
}

// SQLiteWorkflowHistory implements WorkflowHistoryStorage using SQLite
type SQLiteWorkflowHistory struct {
	logger *zap.Logger
	db     *sql.DB
}

// NewSQLiteWorkflowHistory creates a new SQLite-based workflow history store
func NewSQLiteWorkflowHistory(logger *zap.Logger, dbPath string) (*SQLiteWorkflowHistory, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	storage := &SQLiteWorkflowHistory{
		logger: logger,
		db:     db,
	}

	if err := storage.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return storage, nil
}

// initialize creates the necessary tables if they don't exist
func (s *SQLiteWorkflowHistory) initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS workflow_history (
			id TEXT PRIMARY KEY,
			workflow_id TEXT NOT NULL,
			name TEXT NOT NULL,
			objective TEXT,
			status TEXT NOT NULL,
			task_total INTEGER NOT NULL DEFAULT 0,
			task_failed INTEGER NOT NULL DEFAULT 0,
			task_skipped INTEGER NOT NULL DEFAULT 0,
			started_at DATETIME NOT NULL,
			completed_at DATETIME,
			duration INTEGER,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_workflow_history_workflow_id ON workflow_history(workflow_id);
		CREATE INDEX IF NOT EXISTS idx_workflow_history_status ON workflow_history(status);
		CREATE INDEX IF NOT EXISTS idx_workflow_history_started_at ON workflow_history(started_at);

		CREATE TABLE IF NOT EXISTS task_runs (
			run_id TEXT NOT NULL,
			task_id TEXT NOT NULL,
			name TEXT NOT NULL,
			assignee TEXT,
			status TEXT NOT NULL,
			result TEXT,
			error TEXT,
			retries INTEGER NOT NULL DEFAULT 0,
			started_at DATETIME,
			completed_at DATETIME,
			PRIMARY KEY (run_id, task_id)
		);
		CREATE INDEX IF NOT EXISTS idx_task_runs_run_id ON task_runs(run_id);
	`)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	return nil
}

// Store implements WorkflowHistoryStorage.Store
func (s *SQLiteWorkflowHistory) Store(ctx context.Context, history *WorkflowHistory) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workflow_history (
			id, workflow_id, name, objective, status, task_total, started_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		history.ID,
		history.WorkflowID,
		history.Name,
		history.Objective,
		history.Status,
		history.TaskTotal,
		history.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store workflow history: %w", err)
	}
	return nil
}

// Update implements WorkflowHistoryStorage.Update
func (s *SQLiteWorkflowHistory) Update(ctx context.Context, history *WorkflowHistory) error {
	var completedAt sql.NullTime
	if history.CompletedAt != nil {
		completedAt = sql.NullTime{Time: *history.CompletedAt, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE workflow_history SET
			status = ?,
			task_total = ?,
			task_failed = ?,
			task_skipped = ?,
			completed_at = ?,
			duration = ?
		WHERE id = ?`,
		history.Status,
		history.TaskTotal,
		history.TaskFailed,
		history.TaskSkipped,
		completedAt,
		sql.NullInt64{Int64: int64(history.Duration), Valid: history.Duration != 0},
		history.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update workflow history: %w", err)
	}
	return nil
}

// StoreTaskRun implements WorkflowHistoryStorage.StoreTaskRun
func (s *SQLiteWorkflowHistory) StoreTaskRun(ctx context.Context, run *TaskRun) error {
	var startedAt, completedAt sql.NullTime
	if run.StartedAt != nil {
		startedAt = sql.NullTime{Time: *run.StartedAt, Valid: true}
	}
	if run.CompletedAt != nil {
		completedAt = sql.NullTime{Time: *run.CompletedAt, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO task_runs (
			run_id, task_id, name, assignee, status, result, error, retries, started_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID,
		run.TaskID,
		run.Name,
		run.Assignee,
		run.Status,
		sql.NullString{String: run.Result, Valid: run.Result != ""},
		sql.NullString{String: run.Error, Valid: run.Error != ""},
		run.Retries,
		startedAt,
		completedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store task run: %w", err)
	}
	return nil
}

// Get implements WorkflowHistoryStorage.Get
func (s *SQLiteWorkflowHistory) Get(ctx context.Context, id string) (*WorkflowHistory, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, workflow_id, name, objective, status, task_total,
			task_failed, task_skipped, started_at, completed_at, duration
		FROM workflow_history
		WHERE id = ?`, id)

	history, err := scanWorkflowHistory(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return history, err
}

// List implements WorkflowHistoryStorage.List
func (s *SQLiteWorkflowHistory) List(ctx context.Context, offset, limit int) ([]*WorkflowHistory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workflow_id, name, objective, status, task_total,
			task_failed, task_skipped, started_at, completed_at, duration
		FROM workflow_history
		ORDER BY started_at DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflow history: %w", err)
	}
	defer rows.Close()

	var histories []*WorkflowHistory
	for rows.Next() {
		history, err := scanWorkflowHistory(rows)
		if err != nil {
			return nil, err
		}
		histories = append(histories, history)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return histories, nil
}

// TaskRuns implements WorkflowHistoryStorage.TaskRuns
func (s *SQLiteWorkflowHistory) TaskRuns(ctx context.Context, runID string) ([]*TaskRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, task_id, name, assignee, status, result, error, retries, started_at, completed_at
		FROM task_runs
		WHERE run_id = ?
		ORDER BY task_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list task runs: %w", err)
	}
	defer rows.Close()

	var runs []*TaskRun
	for rows.Next() {
		run := &TaskRun{}
		var result, errorStr sql.NullString
		var startedAt, completedAt sql.NullTime

		err := rows.Scan(
			&run.RunID,
			&run.TaskID,
			&run.Name,
			&run.Assignee,
			&run.Status,
			&result,
			&errorStr,
			&run.Retries,
			&startedAt,
			&completedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task run: %w", err)
		}

		run.Result = result.String
		run.Error = errorStr.String
		if startedAt.Valid {
			run.StartedAt = &startedAt.Time
		}
		if completedAt.Valid {
			run.CompletedAt = &completedAt.Time
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return runs, nil
}

// Count implements WorkflowHistoryStorage.Count
func (s *SQLiteWorkflowHistory) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM workflow_history").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count workflow history: %w", err)
	}
	return count, nil
}

// DeleteBefore implements WorkflowHistoryStorage.DeleteBefore
func (s *SQLiteWorkflowHistory) DeleteBefore(ctx context.Context, before time.Time) error {
	if _, err := s.db.ExecContext(ctx, `
		DELETE FROM task_runs WHERE run_id IN
			(SELECT id FROM workflow_history WHERE started_at < ?)`, before); err != nil {
		return fmt.Errorf("failed to delete task runs: %w", err)
	}

	result, err := s.db.ExecContext(ctx, "DELETE FROM workflow_history WHERE started_at < ?", before)
	if err != nil {
		return fmt.Errorf("failed to delete workflow history: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	s.logger.Info("Deleted old workflow history records",
		zap.Time("before", before),
		zap.Int64("deleted", affected))

	return nil
}

// Close closes the database connection
func (s *SQLiteWorkflowHistory) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanWorkflowHistory(row rowScanner) (*WorkflowHistory, error) {
	history := &WorkflowHistory{}
	var objective sql.NullString
	var completedAt sql.NullTime
	var durationNanos sql.NullInt64

	err := row.Scan(
		&history.ID,
		&history.WorkflowID,
		&history.Name,
		&objective,
		&history.Status,
		&history.TaskTotal,
		&history.TaskFailed,
		&history.TaskSkipped,
		&history.StartedAt,
		&completedAt,
		&durationNanos,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan workflow history: %w", err)
	}

	history.Objective = objective.String
	if completedAt.Valid {
		history.CompletedAt = &completedAt.Time
	}
	if durationNanos.Valid {
		history.Duration = time.Duration(durationNanos.Int64)
	}
	return history, nil
}
