package orchestrator

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/dagflow/internal/domain"
	"github.com/shaiso/dagflow/internal/engine"
)

// ExecutionState — состояние одного execution в памяти.
//
// ExecutionState создаётся Controller'ом при Start и живёт, пока
// execution не вытеснен политикой хранения.
//
// Содержит:
//   - Определение workflow (копия на момент старта)
//   - Построенный DAG
//   - Запись Execution, которую видят клиенты через Status
//   - Множества completed/running/failed для scheduler'а
//
// Все изменения и снимки выполняются под одним мьютексом.
type ExecutionState struct {
	// Definition — определение workflow, по которому идёт execution.
	Definition domain.WorkflowDefinition

	// DAG — граф зависимостей шагов.
	DAG *engine.DAG

	// exec — изменяемая запись execution.
	exec *domain.Execution

	// completed — завершённые шаги (stepID → true).
	completed map[string]bool

	// running — шаги в процессе выполнения (stepID → true).
	running map[string]bool

	// failed — упавшие шаги (stepID → true).
	failed map[string]bool

	// notify — уведомления scheduler'у о завершении шагов.
	// Буфер равен числу шагов: каждый шаг отправляет не больше одного уведомления.
	notify chan string

	// cancelled закрывается при отмене execution.
	cancelled  chan struct{}
	cancelOnce sync.Once

	// done закрывается, когда scheduler полностью завершил работу.
	done chan struct{}

	// mu — мьютекс для потокобезопасного доступа.
	mu sync.Mutex
}

// NewExecutionState создаёт состояние для нового execution в статусе pending.
func NewExecutionState(def domain.WorkflowDefinition, vars map[string]any) *ExecutionState {
	s := &ExecutionState{
		Definition: def,
		completed:  make(map[string]bool),
		running:    make(map[string]bool),
		failed:     make(map[string]bool),
		notify:     make(chan string, len(def.Steps)),
		cancelled:  make(chan struct{}),
		done:       make(chan struct{}),
	}
	s.DAG = engine.BuildDAG(&s.Definition)
	s.exec = domain.NewExecution(&s.Definition, vars)
	return s
}

// ID возвращает ID execution.
func (s *ExecutionState) ID() uuid.UUID {
	return s.exec.ID
}

// WorkflowID возвращает ID workflow.
func (s *ExecutionState) WorkflowID() string {
	return s.exec.WorkflowID
}

// Snapshot возвращает согласованную копию execution.
func (s *ExecutionState) Snapshot() domain.Execution {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.exec.Clone()
}

// Status возвращает текущий статус execution.
func (s *ExecutionState) Status() domain.ExecutionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.exec.Status
}

// IsRunning проверяет, находится ли execution в статусе running.
func (s *ExecutionState) IsRunning() bool {
	return s.Status() == domain.ExecutionStatusRunning
}

// startedAt возвращает время создания execution (неизменно).
func (s *ExecutionState) startedAt() time.Time {
	return s.exec.StartedAt
}

// completedAt возвращает время перехода в финальный статус.
func (s *ExecutionState) completedAt() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.exec.CompletedAt == nil {
		return time.Time{}, false
	}
	return *s.exec.CompletedAt, true
}

// Begin переводит execution из pending в running.
func (s *ExecutionState) Begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.exec.MarkRunning()
}

// GetReadySteps возвращает шаги, готовые к выполнению.
// Шаг готов, если все его зависимости завершены и он ещё не запущен.
func (s *ExecutionState) GetReadySteps() []*engine.Node {
	s.mu.Lock()
	defer s.mu.Unlock()

	ready := s.DAG.GetReadyNodes(s.completed, s.running)

	// Упавший шаг не в completed и не в running, но повторно не запускается
	out := ready[:0]
	for _, node := range ready {
		if !s.failed[node.ID] {
			out = append(out, node)
		}
	}
	return out
}

// MarkStepRunning помечает шаг как выполняющийся.
//
// Возвращает false, если execution уже не в статусе running: после
// отмены или падения ни один шаг не может перейти в running.
func (s *ExecutionState) MarkStepRunning(stepID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.exec.Status != domain.ExecutionStatusRunning {
		return false
	}

	step, ok := s.exec.Step(stepID)
	if !ok || step.MarkRunning() != nil {
		return false
	}

	s.running[stepID] = true
	return true
}

// MarkStepCompleted помечает шаг как успешно завершённый.
//
// Результат записывается даже если execution уже отменён или упал:
// статус execution при этом не меняется.
func (s *ExecutionState) MarkStepCompleted(stepID string, output any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.running, stepID)
	s.completed[stepID] = true

	if step, ok := s.exec.Step(stepID); ok {
		_ = step.MarkCompleted(output)
	}
}

// MarkStepFailed помечает шаг как упавший и, если execution ещё
// выполняется, переводит его в failed (fail-fast).
//
// Возвращает true, если именно этот вызов завершил execution.
func (s *ExecutionState) MarkStepFailed(stepID string, errMsg string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.running, stepID)
	s.failed[stepID] = true

	if step, ok := s.exec.Step(stepID); ok {
		_ = step.MarkFailed(errMsg)
	}

	return s.exec.MarkFailed(domain.FailureStepExecution,
		ErrStepExecution.Error()+": step "+stepID+": "+errMsg)
}

// Complete переводит execution в completed, если все шаги завершены.
func (s *ExecutionState) Complete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.DAG.IsComplete(s.completed) {
		return false
	}
	return s.exec.MarkCompleted()
}

// Fail переводит выполняющийся execution в failed.
func (s *ExecutionState) Fail(kind domain.FailureKind, msg string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.exec.MarkFailed(kind, msg)
}

// Cancel переводит выполняющийся execution в cancelled и будит scheduler.
// Для execution в любом другом статусе ничего не делает.
func (s *ExecutionState) Cancel() bool {
	s.mu.Lock()
	ok := s.exec.MarkCancelled()
	s.mu.Unlock()

	if ok {
		s.cancelOnce.Do(func() { close(s.cancelled) })
	}
	return ok
}

// IsComplete проверяет, все ли шаги завершены успешно.
func (s *ExecutionState) IsComplete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.DAG.IsComplete(s.completed)
}

// RunningCount возвращает количество выполняющихся шагов.
func (s *ExecutionState) RunningCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.running)
}

// Diagnose объясняет, почему оставшиеся шаги не могут стать готовыми.
func (s *ExecutionState) Diagnose() engine.Diagnosis {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.DAG.Diagnose(s.completed, s.running)
}

// Stats возвращает статистику выполнения.
func (s *ExecutionState) Stats() ExecutionStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := s.DAG.Size()
	return ExecutionStats{
		TotalSteps:     total,
		CompletedSteps: len(s.completed),
		RunningSteps:   len(s.running),
		FailedSteps:    len(s.failed),
		PendingSteps:   total - len(s.completed) - len(s.running) - len(s.failed),
	}
}

// ExecutionStats — статистика выполнения execution.
type ExecutionStats struct {
	TotalSteps     int
	CompletedSteps int
	RunningSteps   int
	FailedSteps    int
	PendingSteps   int
}

// Done возвращает канал, закрывающийся после выхода scheduler'а.
func (s *ExecutionState) Done() <-chan struct{} {
	return s.done
}
