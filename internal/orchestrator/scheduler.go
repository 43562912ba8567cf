package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/shaiso/dagflow/internal/domain"
	"github.com/shaiso/dagflow/internal/engine"
	"github.com/shaiso/dagflow/internal/telemetry"
)

// StepExecutor выполняет один шаг workflow.
//
// Scheduler не ограничивает время выполнения: StepRequest.Timeout
// передаётся executor'у как есть.
type StepExecutor interface {
	Execute(ctx context.Context, req domain.StepRequest) (any, error)
}

// StepExecutorFunc — адаптер функции к StepExecutor.
type StepExecutorFunc func(ctx context.Context, req domain.StepRequest) (any, error)

// Execute вызывает f(ctx, req).
func (f StepExecutorFunc) Execute(ctx context.Context, req domain.StepRequest) (any, error) {
	return f(ctx, req)
}

// scheduler ведёт одно execution от running до финального статуса.
type scheduler struct {
	state    *ExecutionState
	executor StepExecutor
	metrics  *telemetry.Metrics
	logger   *slog.Logger
}

// run — основной цикл scheduler'а.
//
// На каждом раунде:
//  1. Если execution больше не running (отмена или падение шага) — выходим.
//  2. Если все шаги завершены — execution completed.
//  3. Вычисляем готовые шаги. Нет готовых и нет выполняющихся — deadlock.
//     Нет готовых, но есть выполняющиеся — ждём уведомления о завершении.
//  4. Запускаем все готовые шаги параллельно.
//
// Перед выходом дожидается всех запущенных шагов, чтобы их результаты
// были записаны.
func (s *scheduler) run(ctx context.Context) {
	inFlight := 0

	for s.state.IsRunning() {
		if s.state.IsComplete() {
			if s.state.Complete() {
				s.logger.Info("execution completed")
			}
			break
		}

		ready := s.state.GetReadySteps()

		if len(ready) == 0 {
			if inFlight == 0 {
				s.failDeadlock()
				break
			}

			// Единственная точка ожидания: завершение шага или отмена
			select {
			case <-s.state.notify:
				inFlight--
			case <-s.state.cancelled:
			}
			continue
		}

		for _, node := range ready {
			if !s.state.MarkStepRunning(node.ID) {
				break
			}
			inFlight++
			go s.executeStep(ctx, node)
		}

		// Ждём хотя бы одно завершение, прежде чем пересчитывать готовые шаги:
		// новые шаги могут стать готовыми только после завершения текущих.
		if inFlight > 0 {
			select {
			case <-s.state.notify:
				inFlight--
			case <-s.state.cancelled:
			}
		}
	}

	for ; inFlight > 0; inFlight-- {
		<-s.state.notify
	}
}

// failDeadlock переводит execution в failed с диагностикой.
func (s *scheduler) failDeadlock() {
	diag := s.state.Diagnose()
	msg := fmt.Sprintf("%s: %s", ErrWorkflowDeadlock, diag)

	if s.state.Fail(domain.FailureDeadlock, msg) {
		s.logger.Error("workflow deadlock",
			"pending", diag.Pending,
			"cyclic", diag.Cyclic,
			"missing", diag.MissingDeps,
		)
	}
}

// executeStep вызывает executor для шага и записывает результат.
func (s *scheduler) executeStep(ctx context.Context, node *engine.Node) {
	logger := telemetry.WithStepID(s.logger, node.ID)
	started := time.Now()

	defer func() {
		s.state.notify <- node.ID
	}()

	output, err := s.invoke(ctx, node)
	elapsed := time.Since(started)

	if err != nil {
		s.metrics.StepFinished(string(domain.StepStatusFailed), elapsed)
		if s.state.MarkStepFailed(node.ID, err.Error()) {
			logger.Error("step failed, failing execution", "error", err, "duration", elapsed)
		} else {
			logger.Warn("step failed after execution finished", "error", err, "duration", elapsed)
		}
		return
	}

	s.metrics.StepFinished(string(domain.StepStatusCompleted), elapsed)
	s.state.MarkStepCompleted(node.ID, output)
	logger.Debug("step completed", "duration", elapsed)
}

// invoke вызывает executor, превращая panic в ошибку.
func (s *scheduler) invoke(ctx context.Context, node *engine.Node) (output any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("executor panic: %v", r)
		}
	}()

	snapshot := s.state.Snapshot()
	req := domain.StepRequest{
		ExecutionID: snapshot.ID,
		WorkflowID:  snapshot.WorkflowID,
		StepID:      node.ID,
		Kind:        node.Step.Kind,
		Config:      maps.Clone(node.Step.Config),
		Variables:   snapshot.Variables,
		Timeout:     node.Step.Timeout(),
	}

	s.logger.Debug("dispatching step", "step_id", node.ID, "kind", node.Step.Kind)
	return s.executor.Execute(ctx, req)
}
