package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/maestroflow/maestro/internal/model"
)

func newTestStorage(t *testing.T) *SQLiteWorkflowHistory {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.db")
	storage, err := NewSQLiteWorkflowHistory(zaptest.NewLogger(t), path)
	require.NoError(t, err)
	t.Cleanup(func() { storage.Close() })
	return storage
}

func sampleHistory(id string, startedAt time.Time) *WorkflowHistory {
	return &WorkflowHistory{
		ID:         id,
		WorkflowID: "wf-" + id,
		Name:       "sample",
		Objective:  "test objective",
		Status:     model.WorkflowStatusRunning,
		TaskTotal:  3,
		StartedAt:  startedAt,
	}
}

func TestStoreAndGet(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	started := time.Now().Truncate(time.Second)
	require.NoError(t, storage.Store(ctx, sampleHistory("run-1", started)))

	got, err := storage.Get(ctx, "run-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "wf-run-1", got.WorkflowID)
	assert.Equal(t, "test objective", got.Objective)
	assert.Equal(t, model.WorkflowStatusRunning, got.Status)
	assert.Equal(t, 3, got.TaskTotal)
	assert.True(t, got.StartedAt.Equal(started))
	assert.Nil(t, got.CompletedAt)
	assert.Zero(t, got.Duration)
}

func TestGetMissing(t *testing.T) {
	storage := newTestStorage(t)

	got, err := storage.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUpdate(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	started := time.Now().Truncate(time.Second)
	record := sampleHistory("run-1", started)
	require.NoError(t, storage.Store(ctx, record))

	completed := started.Add(90 * time.Second)
	record.Status = model.WorkflowStatusWithErrors
	record.TaskFailed = 1
	record.TaskSkipped = 1
	record.CompletedAt = &completed
	record.Duration = 90 * time.Second
	require.NoError(t, storage.Update(ctx, record))

	got, err := storage.Get(ctx, "run-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.WorkflowStatusWithErrors, got.Status)
	assert.Equal(t, 1, got.TaskFailed)
	assert.Equal(t, 1, got.TaskSkipped)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, got.CompletedAt.Equal(completed))
	assert.Equal(t, 90*time.Second, got.Duration)
}

func TestTaskRuns(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, storage.Store(ctx, sampleHistory("run-1", time.Now())))

	started := time.Now().Truncate(time.Second)
	completed := started.Add(time.Second)
	require.NoError(t, storage.StoreTaskRun(ctx, &TaskRun{
		RunID:       "run-1",
		TaskID:      "task_1",
		Name:        "build",
		Assignee:    "Developer",
		Status:      model.TaskStatusCompleted,
		Result:      "done",
		Retries:     0,
		StartedAt:   &started,
		CompletedAt: &completed,
	}))
	require.NoError(t, storage.StoreTaskRun(ctx, &TaskRun{
		RunID:   "run-1",
		TaskID:  "task_2",
		Name:    "verify",
		Status:  model.TaskStatusFailed,
		Error:   "boom",
		Retries: 2,
	}))

	runs, err := storage.TaskRuns(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, runs, 2)

	assert.Equal(t, "task_1", runs[0].TaskID)
	assert.Equal(t, "done", runs[0].Result)
	assert.Empty(t, runs[0].Error)
	require.NotNil(t, runs[0].StartedAt)
	assert.True(t, runs[0].StartedAt.Equal(started))

	assert.Equal(t, "task_2", runs[1].TaskID)
	assert.Equal(t, model.TaskStatusFailed, runs[1].Status)
	assert.Equal(t, "boom", runs[1].Error)
	assert.Equal(t, 2, runs[1].Retries)
	assert.Nil(t, runs[1].StartedAt)

	// Replaying a task run overwrites the previous record.
	require.NoError(t, storage.StoreTaskRun(ctx, &TaskRun{
		RunID:  "run-1",
		TaskID: "task_2",
		Name:   "verify",
		Status: model.TaskStatusCompleted,
		Result: "ok after retry",
	}))
	runs, err = storage.TaskRuns(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, model.TaskStatusCompleted, runs[1].Status)
}

func TestListAndCount(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i, id := range []string{"run-1", "run-2", "run-3"} {
		require.NoError(t, storage.Store(ctx, sampleHistory(id, base.Add(time.Duration(i)*time.Minute))))
	}

	count, err := storage.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	// Newest first.
	histories, err := storage.List(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, histories, 3)
	assert.Equal(t, "run-3", histories[0].ID)
	assert.Equal(t, "run-1", histories[2].ID)

	page, err := storage.List(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "run-2", page[0].ID)
}

func TestDeleteBefore(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	old := time.Now().Add(-48 * time.Hour)
	recent := time.Now()
	require.NoError(t, storage.Store(ctx, sampleHistory("run-old", old)))
	require.NoError(t, storage.Store(ctx, sampleHistory("run-new", recent)))
	require.NoError(t, storage.StoreTaskRun(ctx, &TaskRun{
		RunID: "run-old", TaskID: "task_1", Name: "stale", Status: model.TaskStatusCompleted,
	}))

	require.NoError(t, storage.DeleteBefore(ctx, time.Now().Add(-24*time.Hour)))

	gone, err := storage.Get(ctx, "run-old")
	require.NoError(t, err)
	assert.Nil(t, gone)

	kept, err := storage.Get(ctx, "run-new")
	require.NoError(t, err)
	assert.NotNil(t, kept)

	runs, err := storage.TaskRuns(ctx, "run-old")
	require.NoError(t, err)
	assert.Empty(t, runs)
}
