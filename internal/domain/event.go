package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventType — тип события жизненного цикла execution.
type EventType string

const (
	EventExecutionStarted   EventType = "execution.started"
	EventExecutionCompleted EventType = "execution.completed"
	EventExecutionFailed    EventType = "execution.failed"
	EventExecutionCancelled EventType = "execution.cancelled"
)

// ExecutionEvent — событие, публикуемое Controller'ом при смене статуса execution.
type ExecutionEvent struct {
	Type        EventType       `json:"type"`
	ExecutionID uuid.UUID       `json:"execution_id"`
	WorkflowID  string          `json:"workflow_id"`
	Status      ExecutionStatus `json:"status"`
	Error       string          `json:"error,omitempty"`
	FailureKind FailureKind     `json:"failure_kind,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
}

// NewExecutionEvent строит событие по текущему состоянию execution.
func NewExecutionEvent(exec *Execution) ExecutionEvent {
	var typ EventType
	switch exec.Status {
	case ExecutionStatusCompleted:
		typ = EventExecutionCompleted
	case ExecutionStatusFailed:
		typ = EventExecutionFailed
	case ExecutionStatusCancelled:
		typ = EventExecutionCancelled
	default:
		typ = EventExecutionStarted
	}

	return ExecutionEvent{
		Type:        typ,
		ExecutionID: exec.ID,
		WorkflowID:  exec.WorkflowID,
		Status:      exec.Status,
		Error:       exec.Error,
		FailureKind: exec.FailureKind,
		Timestamp:   time.Now(),
	}
}
