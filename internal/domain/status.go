package domain

// ExecutionStatus — статус выполнения execution.
//
// Жизненный цикл:
//
//	pending → running → completed
//	                  ↘ failed
//	                  ↘ cancelled
type ExecutionStatus string

const (
	// ExecutionStatusPending — execution создан, но scheduler ещё не запущен.
	ExecutionStatusPending ExecutionStatus = "pending"

	// ExecutionStatusRunning — scheduler выполняет шаги.
	ExecutionStatusRunning ExecutionStatus = "running"

	// ExecutionStatusCompleted — все шаги успешно завершены.
	ExecutionStatusCompleted ExecutionStatus = "completed"

	// ExecutionStatusFailed — шаг упал или граф заблокирован (deadlock).
	ExecutionStatusFailed ExecutionStatus = "failed"

	// ExecutionStatusCancelled — execution отменён пользователем.
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
)

// IsTerminal возвращает true, если статус финальный.
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case ExecutionStatusCompleted, ExecutionStatusFailed, ExecutionStatusCancelled:
		return true
	default:
		return false
	}
}

// StepStatus — статус выполнения шага внутри execution.
//
// Жизненный цикл:
//
//	pending → running → completed
//	                  ↘ failed
//	pending → skipped
type StepStatus string

const (
	// StepStatusPending — шаг ожидает своих зависимостей.
	StepStatusPending StepStatus = "pending"

	// StepStatusRunning — шаг передан executor'у.
	StepStatusRunning StepStatus = "running"

	// StepStatusCompleted — executor вернул результат.
	StepStatusCompleted StepStatus = "completed"

	// StepStatusFailed — executor вернул ошибку.
	StepStatusFailed StepStatus = "failed"

	// StepStatusSkipped — шаг пропущен (зарезервировано под условные ветки).
	StepStatusSkipped StepStatus = "skipped"
)

// IsTerminal возвращает true, если статус шага финальный.
func (s StepStatus) IsTerminal() bool {
	switch s {
	case StepStatusCompleted, StepStatusFailed, StepStatusSkipped:
		return true
	default:
		return false
	}
}

// CanTransition проверяет, допустим ли переход из s в next.
// Переходы монотонны: назад и между финальными статусами нельзя.
func (s StepStatus) CanTransition(next StepStatus) bool {
	switch s {
	case StepStatusPending:
		return next == StepStatusRunning || next == StepStatusSkipped
	case StepStatusRunning:
		return next == StepStatusCompleted || next == StepStatusFailed
	default:
		return false
	}
}

// FailureKind — причина падения execution.
type FailureKind string

const (
	// FailureDeadlock — ни один шаг не готов и ни один не выполняется.
	FailureDeadlock FailureKind = "WorkflowDeadlock"

	// FailureStepExecution — executor вернул ошибку для шага.
	FailureStepExecution FailureKind = "StepExecutionError"
)
