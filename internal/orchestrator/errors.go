package orchestrator

import "errors"

// Ошибки Controller'а.
var (
	// ErrWorkflowNotFound — workflow не зарегистрирован.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrExecutionNotFound — execution с таким ID не отслеживается.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrControllerStopped — Controller остановлен, новые execution не принимаются.
	ErrControllerStopped = errors.New("controller stopped")
)

// Ошибки выполнения. Не возвращаются вызывающему коду, а записываются
// в Execution.Error вместе с FailureKind.
var (
	// ErrWorkflowDeadlock — ни один шаг не готов и ни один не выполняется.
	ErrWorkflowDeadlock = errors.New("workflow deadlock")

	// ErrStepExecution — executor вернул ошибку для шага.
	ErrStepExecution = errors.New("step execution failed")
)
