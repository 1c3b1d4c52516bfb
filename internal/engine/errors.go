package engine

import "errors"

var (
	// ErrWorkflowNotFound is returned when a workflow id is unknown
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrInvalidPlan is returned when a plan references unknown tasks or
	// contains a dependency cycle
	ErrInvalidPlan = errors.New("invalid plan")

	// ErrNoExecutor is returned when a workflow is executed without an
	// executor capability configured
	ErrNoExecutor = errors.New("no executor configured")

	// ErrScheduleNotFound is returned when a cron schedule id is unknown
	ErrScheduleNotFound = errors.New("schedule not found")
)
