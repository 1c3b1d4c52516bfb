package engine

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/maestroflow/maestro/internal/model"
)

func newTestCronRunner(t *testing.T, executor ExecutorFunc) *CronRunner {
	t.Helper()
	logger := zaptest.NewLogger(t)
	eng := NewEngine(Config{Executor: executor}, logger)
	return NewCronRunner(eng, logger)
}

func TestCronRunnerAddAndRemoveSchedule(t *testing.T) {
	runner := newTestCronRunner(t, echoExecutor)

	schedule := &WorkflowSchedule{
		Name:       "nightly",
		Expression: "0 0 3 * * *",
		Objective:  "nightly report",
		Plan:       []model.PlannedTask{{Task: "generate report"}},
	}
	require.NoError(t, runner.AddSchedule(schedule))
	assert.NotEmpty(t, schedule.ID)
	assert.False(t, schedule.CreatedAt.IsZero())
	require.NotNil(t, schedule.NextRunTime)
	assert.True(t, schedule.NextRunTime.After(time.Now()))

	got, err := runner.GetSchedule(schedule.ID)
	require.NoError(t, err)
	assert.Equal(t, "nightly", got.Name)
	assert.Len(t, runner.ListSchedules(), 1)

	require.NoError(t, runner.RemoveSchedule(schedule.ID))
	assert.Empty(t, runner.ListSchedules())

	_, err = runner.GetSchedule(schedule.ID)
	assert.ErrorIs(t, err, ErrScheduleNotFound)
	assert.ErrorIs(t, runner.RemoveSchedule(schedule.ID), ErrScheduleNotFound)
}

func TestCronRunnerRejectsInvalidExpression(t *testing.T) {
	runner := newTestCronRunner(t, echoExecutor)

	err := runner.AddSchedule(&WorkflowSchedule{
		Name:       "broken",
		Expression: "not a cron spec",
	})
	assert.Error(t, err)
	assert.Empty(t, runner.ListSchedules())
}

func TestCronRunnerFiresSchedule(t *testing.T) {
	var runs atomic.Int32
	runner := newTestCronRunner(t, func(ctx context.Context, agentName, task string, taskContext map[string]string) (string, error) {
		runs.Add(1)
		return "ok", nil
	})

	schedule := &WorkflowSchedule{
		Name:       "every-second",
		Expression: "* * * * * *",
		Objective:  "tick",
		Plan:       []model.PlannedTask{{Task: "tick"}},
	}
	require.NoError(t, runner.AddSchedule(schedule))

	runner.Start()
	defer runner.Stop()

	require.Eventually(t, func() bool {
		return runs.Load() >= 1
	}, 5*time.Second, 50*time.Millisecond)

	got, err := runner.GetSchedule(schedule.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.LastRunTime)
}
