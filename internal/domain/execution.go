package domain

import (
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidTransition — недопустимый переход статуса шага.
var ErrInvalidTransition = errors.New("invalid step status transition")

// Execution — один запуск WorkflowDefinition с конкретными переменными.
//
// Execution создаётся Controller'ом в статусе pending, после чего
// изменяется только scheduler'ом (и Controller'ом при отмене).
type Execution struct {
	// ID — глобально уникальный идентификатор execution.
	ID uuid.UUID `json:"id"`

	// WorkflowID — workflow, который выполняется.
	WorkflowID string `json:"workflow_id"`

	// Status — текущий статус.
	Status ExecutionStatus `json:"status"`

	// StartedAt — время создания execution.
	StartedAt time.Time `json:"started_at"`

	// CompletedAt — время перехода в финальный статус.
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Variables — переменные: значения по умолчанию workflow,
	// перекрытые переданными при запуске.
	Variables map[string]any `json:"variables,omitempty"`

	// Steps — по одному StepExecution на каждый шаг workflow, в порядке объявления.
	Steps []StepExecution `json:"steps"`

	// Error — текст ошибки, если execution упал.
	Error string `json:"error,omitempty"`

	// FailureKind — причина падения (WorkflowDeadlock / StepExecutionError).
	FailureKind FailureKind `json:"failure_kind,omitempty"`
}

// StepExecution — состояние одного шага внутри execution.
type StepExecution struct {
	// StepID — ссылка на StepDefinition.ID.
	StepID string `json:"step_id"`

	// Status — текущий статус шага.
	Status StepStatus `json:"status"`

	// StartedAt — время передачи шага executor'у.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt — время завершения шага.
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Output — результат executor'а (только для completed).
	Output any `json:"output,omitempty"`

	// Error — ошибка executor'а (только для failed).
	Error string `json:"error,omitempty"`
}

// NewExecution создаёт execution в статусе pending.
//
// Переменные: значения по умолчанию из определения, поверх них — vars.
// Все шаги создаются в статусе pending.
func NewExecution(def *WorkflowDefinition, vars map[string]any) *Execution {
	merged := make(map[string]any, len(def.Variables)+len(vars))
	maps.Copy(merged, def.Variables)
	maps.Copy(merged, vars)

	steps := make([]StepExecution, len(def.Steps))
	for i := range def.Steps {
		steps[i] = StepExecution{
			StepID: def.Steps[i].ID,
			Status: StepStatusPending,
		}
	}

	return &Execution{
		ID:         uuid.New(),
		WorkflowID: def.ID,
		Status:     ExecutionStatusPending,
		StartedAt:  time.Now(),
		Variables:  merged,
		Steps:      steps,
	}
}

// Duration возвращает продолжительность выполнения.
// Возвращает 0, если execution ещё не завершён.
func (e *Execution) Duration() time.Duration {
	if e.CompletedAt == nil {
		return 0
	}
	return e.CompletedAt.Sub(e.StartedAt)
}

// Step возвращает состояние шага по ID.
func (e *Execution) Step(stepID string) (*StepExecution, bool) {
	for i := range e.Steps {
		if e.Steps[i].StepID == stepID {
			return &e.Steps[i], true
		}
	}
	return nil, false
}

// MarkRunning переводит execution из pending в running.
func (e *Execution) MarkRunning() bool {
	if e.Status != ExecutionStatusPending {
		return false
	}
	e.Status = ExecutionStatusRunning
	return true
}

// MarkCompleted переводит running execution в completed.
func (e *Execution) MarkCompleted() bool {
	return e.finish(ExecutionStatusCompleted, "", "")
}

// MarkFailed переводит running execution в failed.
func (e *Execution) MarkFailed(kind FailureKind, msg string) bool {
	return e.finish(ExecutionStatusFailed, kind, msg)
}

// MarkCancelled переводит running execution в cancelled.
func (e *Execution) MarkCancelled() bool {
	return e.finish(ExecutionStatusCancelled, "", "")
}

func (e *Execution) finish(status ExecutionStatus, kind FailureKind, msg string) bool {
	if e.Status != ExecutionStatusRunning {
		return false
	}
	now := time.Now()
	e.Status = status
	e.CompletedAt = &now
	e.FailureKind = kind
	e.Error = msg
	return true
}

// Clone возвращает глубокую копию execution для отдачи наружу.
// Output шагов копируется по ссылке.
func (e *Execution) Clone() Execution {
	out := *e
	out.Variables = maps.Clone(e.Variables)
	out.Steps = make([]StepExecution, len(e.Steps))
	copy(out.Steps, e.Steps)
	if e.CompletedAt != nil {
		t := *e.CompletedAt
		out.CompletedAt = &t
	}
	return out
}

// MarkRunning переводит шаг в running.
func (s *StepExecution) MarkRunning() error {
	if err := s.transition(StepStatusRunning); err != nil {
		return err
	}
	now := time.Now()
	s.StartedAt = &now
	return nil
}

// MarkCompleted переводит шаг в completed с результатом.
func (s *StepExecution) MarkCompleted(output any) error {
	if err := s.transition(StepStatusCompleted); err != nil {
		return err
	}
	now := time.Now()
	s.CompletedAt = &now
	s.Output = output
	return nil
}

// MarkFailed переводит шаг в failed с ошибкой.
func (s *StepExecution) MarkFailed(errMsg string) error {
	if err := s.transition(StepStatusFailed); err != nil {
		return err
	}
	now := time.Now()
	s.CompletedAt = &now
	s.Error = errMsg
	return nil
}

// MarkSkipped переводит pending шаг в skipped.
func (s *StepExecution) MarkSkipped() error {
	if err := s.transition(StepStatusSkipped); err != nil {
		return err
	}
	now := time.Now()
	s.CompletedAt = &now
	return nil
}

func (s *StepExecution) transition(next StepStatus) error {
	if !s.Status.CanTransition(next) {
		return fmt.Errorf("%w: step %s %s → %s", ErrInvalidTransition, s.StepID, s.Status, next)
	}
	s.Status = next
	return nil
}

// Duration возвращает продолжительность выполнения шага.
func (s *StepExecution) Duration() time.Duration {
	if s.StartedAt == nil || s.CompletedAt == nil {
		return 0
	}
	return s.CompletedAt.Sub(*s.StartedAt)
}

// StepRequest — то, что executor получает для выполнения шага.
type StepRequest struct {
	ExecutionID uuid.UUID
	WorkflowID  string
	StepID      string
	Kind        StepKind

	// Config — конфигурация шага из определения.
	Config map[string]any

	// Variables — переменные execution.
	Variables map[string]any

	// Timeout — StepDefinition.TimeoutSec; scheduler его не применяет.
	Timeout time.Duration
}
