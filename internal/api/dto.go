package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/dagflow/internal/domain"
)

// Workflow DTOs

// WorkflowSummary — краткое описание workflow для списка.
type WorkflowSummary struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Steps       int      `json:"steps"`
	Triggers    []string `json:"triggers,omitempty"`
}

// WorkflowSummaryFromDomain конвертирует domain.WorkflowDefinition в WorkflowSummary.
func WorkflowSummaryFromDomain(def domain.WorkflowDefinition) WorkflowSummary {
	var triggers []string
	for _, tr := range def.Triggers {
		triggers = append(triggers, tr.Type)
	}

	return WorkflowSummary{
		ID:          def.ID,
		Name:        def.Name,
		Description: def.Description,
		Steps:       len(def.Steps),
		Triggers:    triggers,
	}
}

// Execution DTOs

// StartExecutionRequest — запрос на запуск execution.
type StartExecutionRequest struct {
	Variables map[string]any `json:"variables,omitempty"`
}

// ExecutionResponse — ответ с execution.
type ExecutionResponse struct {
	ID          uuid.UUID      `json:"id"`
	WorkflowID  string         `json:"workflow_id"`
	Status      string         `json:"status"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	DurationMs  int64          `json:"duration_ms"`
	Variables   map[string]any `json:"variables,omitempty"`
	Steps       []StepResponse `json:"steps"`
	Error       string         `json:"error,omitempty"`
	FailureKind string         `json:"failure_kind,omitempty"`
}

// StepResponse — ответ с состоянием шага.
type StepResponse struct {
	StepID      string     `json:"step_id"`
	Status      string     `json:"status"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Output      any        `json:"output,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// ExecutionFromDomain конвертирует domain.Execution в ExecutionResponse.
func ExecutionFromDomain(e domain.Execution) ExecutionResponse {
	steps := make([]StepResponse, len(e.Steps))
	for i, s := range e.Steps {
		steps[i] = StepResponse{
			StepID:      s.StepID,
			Status:      string(s.Status),
			StartedAt:   s.StartedAt,
			CompletedAt: s.CompletedAt,
			Output:      s.Output,
			Error:       s.Error,
		}
	}

	return ExecutionResponse{
		ID:          e.ID,
		WorkflowID:  e.WorkflowID,
		Status:      string(e.Status),
		StartedAt:   e.StartedAt,
		CompletedAt: e.CompletedAt,
		DurationMs:  e.Duration().Milliseconds(),
		Variables:   e.Variables,
		Steps:       steps,
		Error:       e.Error,
		FailureKind: string(e.FailureKind),
	}
}
