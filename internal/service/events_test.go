package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/maestroflow/maestro/internal/model"
	"github.com/maestroflow/maestro/internal/testutil"
)

func TestEnsureStream(t *testing.T) {
	js, cleanup := testutil.StartJetStream(t)
	defer cleanup()

	require.NoError(t, EnsureStream(js))

	info, err := js.StreamInfo("WORKFLOWS")
	require.NoError(t, err)
	assert.Equal(t, []string{"workflow.>"}, info.Config.Subjects)

	// Idempotent when the stream already exists.
	require.NoError(t, EnsureStream(js))
}

func TestEventPublisher(t *testing.T) {
	js, cleanup := testutil.StartJetStream(t)
	defer cleanup()
	require.NoError(t, EnsureStream(js))

	publisher := NewEventPublisher(js, zaptest.NewLogger(t))

	wf := model.NewWorkflow("wf-1", "events", "publish lifecycle events")
	task := &model.WorkflowTask{
		ID:     "task_1",
		Name:   "build",
		Status: model.TaskStatusRunning,
	}
	wf.AddTask(task)

	publisher.OnWorkflowUpdate(wf, "started")
	publisher.OnTaskUpdate(wf, task, "started")

	wfMsgs, err := testutil.ConsumeMessages(js, "workflow.event", 2*time.Second)
	require.NoError(t, err)
	require.Len(t, wfMsgs, 1)

	var wfEvent WorkflowEvent
	require.NoError(t, json.Unmarshal(wfMsgs[0], &wfEvent))
	assert.Equal(t, "wf-1", wfEvent.WorkflowID)
	assert.Equal(t, "started", wfEvent.Event)
	assert.Nil(t, wfEvent.Task)

	taskMsgs, err := testutil.ConsumeMessages(js, "workflow.task.event", 2*time.Second)
	require.NoError(t, err)
	require.Len(t, taskMsgs, 1)

	var taskEvent WorkflowEvent
	require.NoError(t, json.Unmarshal(taskMsgs[0], &taskEvent))
	assert.Equal(t, "wf-1", taskEvent.WorkflowID)
	assert.Equal(t, "task_1", taskEvent.TaskID)
	assert.Equal(t, string(model.TaskStatusRunning), taskEvent.Status)
	require.NotNil(t, taskEvent.Task)
	assert.Equal(t, "build", taskEvent.Task.Name)
}

func TestSubscribeEvents(t *testing.T) {
	js, cleanup := testutil.StartJetStream(t)
	defer cleanup()
	require.NoError(t, EnsureStream(js))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var received []WorkflowEvent
	require.NoError(t, SubscribeEvents(ctx, js, func(event WorkflowEvent) {
		mu.Lock()
		received = append(received, event)
		mu.Unlock()
	}))

	publisher := NewEventPublisher(js, zaptest.NewLogger(t))
	wf := model.NewWorkflow("wf-sub", "subscribe", "")
	task := &model.WorkflowTask{ID: "task_1", Name: "step", Status: model.TaskStatusCompleted}
	wf.AddTask(task)

	publisher.OnWorkflowUpdate(wf, "started")
	publisher.OnTaskUpdate(wf, task, "completed")
	publisher.OnWorkflowUpdate(wf, "completed")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 3
	}, 5*time.Second, 50*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for _, event := range received {
		assert.Equal(t, "wf-sub", event.WorkflowID)
	}
}
