package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/maestroflow/maestro/internal/model"
)

const (
	workflowEventSubject = "workflow.event"
	taskEventSubject     = "workflow.task.event"
)

// WorkflowEvent is one lifecycle transition published to the event bus.
type WorkflowEvent struct {
	WorkflowID string              `json:"workflow_id"`
	TaskID     string              `json:"task_id,omitempty"`
	Event      string              `json:"event"`
	Status     string              `json:"status"`
	Timestamp  time.Time           `json:"timestamp"`
	Task       *model.TaskSnapshot `json:"task,omitempty"`
}

// EventPublisher publishes workflow lifecycle events to NATS. Delivery is
// best-effort observability: publish failures are logged and swallowed so
// they can never perturb scheduling.
type EventPublisher struct {
	js     nats.JetStreamContext
	logger *zap.Logger
}

// NewEventPublisher creates a publisher over the given JetStream context.
func NewEventPublisher(js nats.JetStreamContext, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{
		js:     js,
		logger: logger.Named("event-publisher"),
	}
}

// OnTaskUpdate is an engine task callback delivering task transitions.
func (p *EventPublisher) OnTaskUpdate(wf *model.Workflow, task *model.WorkflowTask, event string) {
	snap := task.Snapshot()
	p.publish(taskEventSubject, WorkflowEvent{
		WorkflowID: wf.ID,
		TaskID:     task.ID,
		Event:      event,
		Status:     string(task.Status),
		Timestamp:  time.Now(),
		Task:       &snap,
	})
}

// OnWorkflowUpdate is an engine workflow callback delivering workflow
// transitions.
func (p *EventPublisher) OnWorkflowUpdate(wf *model.Workflow, event string) {
	p.publish(workflowEventSubject, WorkflowEvent{
		WorkflowID: wf.ID,
		Event:      event,
		Status:     string(wf.Status),
		Timestamp:  time.Now(),
	})
}

func (p *EventPublisher) publish(subject string, event WorkflowEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("Failed to marshal event",
			zap.String("workflow_id", event.WorkflowID),
			zap.Error(err))
		return
	}

	if _, err := p.js.Publish(subject, data); err != nil {
		p.logger.Warn("Failed to publish event",
			zap.String("subject", subject),
			zap.String("workflow_id", event.WorkflowID),
			zap.Error(err))
	}
}

// SubscribeEvents delivers every workflow and task event to the handler
// until the context is done.
func SubscribeEvents(ctx context.Context, js nats.JetStreamContext, handler func(WorkflowEvent)) error {
	decode := func(msg *nats.Msg) {
		var event WorkflowEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			return
		}
		handler(event)
		msg.Ack()
	}

	wfSub, err := js.Subscribe(workflowEventSubject, decode)
	if err != nil {
		return err
	}
	taskSub, err := js.Subscribe(taskEventSubject, decode)
	if err != nil {
		wfSub.Unsubscribe()
		return err
	}

	go func() {
		<-ctx.Done()
		wfSub.Unsubscribe()
		taskSub.Unsubscribe()
	}()

	return nil
}

// EnsureStream creates the stream backing the event subjects when missing.
func EnsureStream(js nats.JetStreamContext) error {
	_, err := js.StreamInfo("WORKFLOWS")
	if err == nil {
		return nil
	}
	if err != nats.ErrStreamNotFound {
		return err
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:     "WORKFLOWS",
		Subjects: []string{"workflow.>"},
		Storage:  nats.FileStorage,
		MaxAge:   24 * time.Hour,
	})
	return err
}
