package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/dagflow/internal/domain"
	"github.com/shaiso/dagflow/internal/store"
	"github.com/shaiso/dagflow/internal/telemetry"
)

// Default configuration values.
const (
	defaultRetention      = 1000
	defaultPublishTimeout = 5 * time.Second
)

// DefinitionSource возвращает определение workflow по ID.
// Реализуется store.DefinitionStore.
type DefinitionSource interface {
	Lookup(ctx context.Context, id string) (domain.WorkflowDefinition, error)
}

// EventPublisher публикует события жизненного цикла execution.
// Реализуется mq.Publisher.
type EventPublisher interface {
	PublishExecutionEvent(ctx context.Context, event domain.ExecutionEvent) error
}

// Controller — точка входа для запуска и наблюдения за execution.
//
// Controller:
//   - Создаёт execution в статусе pending и запускает scheduler в отдельной горутине
//   - Отдаёт снимки состояния (Status, List)
//   - Отменяет execution (Cancel)
//   - Хранит завершённые execution в пределах Retention
type Controller struct {
	workflows DefinitionSource
	executor  StepExecutor
	publisher EventPublisher
	metrics   *telemetry.Metrics

	// executions — все отслеживаемые execution (executionID → state).
	executions map[uuid.UUID]*ExecutionState
	mu         sync.RWMutex

	// Configuration
	retention int

	// Lifecycle
	logger     *slog.Logger
	baseCtx    context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
}

// Config — конфигурация Controller.
type Config struct {
	// Workflows — источник определений workflow (обязателен).
	Workflows DefinitionSource

	// Executor — исполнитель шагов (обязателен).
	Executor StepExecutor

	// Publisher — публикация событий execution (опционально).
	Publisher EventPublisher

	// Metrics — Prometheus метрики (опционально).
	Metrics *telemetry.Metrics

	// Retention — сколько завершённых execution хранить в памяти.
	// 0 — значение по умолчанию (1000), отрицательное — без ограничения.
	Retention int

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Controller.
func New(cfg Config) *Controller {
	retention := cfg.Retention
	if retention == 0 {
		retention = defaultRetention
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Controller{
		workflows:  cfg.Workflows,
		executor:   cfg.Executor,
		publisher:  cfg.Publisher,
		metrics:    cfg.Metrics,
		executions: make(map[uuid.UUID]*ExecutionState),
		retention:  retention,
		logger:     logger,
		baseCtx:    ctx,
		cancelFunc: cancel,
	}
}

// Start запускает execution workflow и сразу возвращает его ID.
//
// Execution создаётся синхронно в статусе pending, затем отдельная
// горутина переводит его в running и выполняет шаги. Ход выполнения
// наблюдается через Status или Wait.
func (c *Controller) Start(ctx context.Context, workflowID string, vars map[string]any) (uuid.UUID, error) {
	def, err := c.workflows.Lookup(ctx, workflowID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return uuid.Nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, workflowID)
		}
		return uuid.Nil, fmt.Errorf("lookup workflow %s: %w", workflowID, err)
	}

	state := NewExecutionState(def, vars)

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return uuid.Nil, ErrControllerStopped
	}
	c.executions[state.ID()] = state
	c.wg.Add(1)
	c.mu.Unlock()

	logger := telemetry.WithExecution(c.logger, state.ID().String(), workflowID)
	logger.Info("execution created", "steps", len(def.Steps))

	go c.drive(state, logger)

	return state.ID(), nil
}

// drive переводит execution в running и выполняет scheduler.
func (c *Controller) drive(state *ExecutionState, logger *slog.Logger) {
	defer c.wg.Done()
	defer close(state.done)

	if !state.Begin() {
		return
	}

	c.metrics.ExecutionStarted(state.WorkflowID())
	c.publish(state)

	// Shutdown мог начаться между Start и Begin
	if c.baseCtx.Err() != nil && state.Cancel() {
		c.publish(state)
	}

	sched := &scheduler{
		state:    state,
		executor: c.executor,
		metrics:  c.metrics,
		logger:   logger,
	}
	sched.run(c.baseCtx)

	final := state.Snapshot()
	stats := state.Stats()
	c.metrics.ExecutionFinished(final.WorkflowID, string(final.Status))

	logger.Info("execution finished",
		"status", final.Status,
		"duration", final.Duration(),
		"steps_completed", stats.CompletedSteps,
		"steps_failed", stats.FailedSteps,
		"steps_pending", stats.PendingSteps,
		"error", final.Error,
	)

	// Событие cancelled публикуется в Cancel
	if final.Status != domain.ExecutionStatusCancelled {
		c.publish(state)
	}

	c.evict()
}

// Status возвращает снимок execution.
func (c *Controller) Status(id uuid.UUID) (domain.Execution, error) {
	state, err := c.get(id)
	if err != nil {
		return domain.Execution{}, err
	}
	return state.Snapshot(), nil
}

// Cancel отменяет выполняющийся execution.
//
// Новые шаги после отмены не запускаются; уже запущенные доработают,
// и их результат будет записан, но статус execution останется cancelled.
// Для execution не в статусе running ничего не делает.
func (c *Controller) Cancel(id uuid.UUID) error {
	state, err := c.get(id)
	if err != nil {
		return err
	}

	if state.Cancel() {
		c.logger.Info("execution cancelled",
			"execution_id", id,
			"workflow_id", state.WorkflowID(),
		)
		c.publish(state)
	}
	return nil
}

// List возвращает снимки всех отслеживаемых execution,
// отсортированные по времени старта. Пустой workflowID — без фильтра.
func (c *Controller) List(workflowID string) []domain.Execution {
	c.mu.RLock()
	states := make([]*ExecutionState, 0, len(c.executions))
	for _, state := range c.executions {
		if workflowID == "" || state.WorkflowID() == workflowID {
			states = append(states, state)
		}
	}
	c.mu.RUnlock()

	slices.SortFunc(states, func(a, b *ExecutionState) int {
		return a.startedAt().Compare(b.startedAt())
	})

	out := make([]domain.Execution, len(states))
	for i, state := range states {
		out[i] = state.Snapshot()
	}
	return out
}

// Wait блокируется до выхода scheduler'а (финальный статус и нет
// выполняющихся шагов) и возвращает итоговый снимок.
func (c *Controller) Wait(ctx context.Context, id uuid.UUID) (domain.Execution, error) {
	state, err := c.get(id)
	if err != nil {
		return domain.Execution{}, err
	}

	select {
	case <-state.Done():
		return state.Snapshot(), nil
	case <-ctx.Done():
		return state.Snapshot(), ctx.Err()
	}
}

// Shutdown отменяет все выполняющиеся execution и ждёт выхода их scheduler'ов.
//
// После отмены контекст executor'ов тоже отменяется, чтобы шаги,
// учитывающие context, завершились быстрее.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	c.stopped = true
	states := make([]*ExecutionState, 0, len(c.executions))
	for _, state := range c.executions {
		states = append(states, state)
	}
	c.mu.Unlock()

	c.logger.Info("stopping controller...")

	for _, state := range states {
		if state.Cancel() {
			c.publish(state)
		}
	}
	c.cancelFunc()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info("controller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ActiveCount возвращает количество незавершённых execution.
func (c *Controller) ActiveCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n := 0
	for _, state := range c.executions {
		if !state.Status().IsTerminal() {
			n++
		}
	}
	return n
}

// get возвращает ExecutionState по ID.
func (c *Controller) get(id uuid.UUID) (*ExecutionState, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	state, ok := c.executions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrExecutionNotFound, id)
	}
	return state, nil
}

// evict удаляет самые давно завершённые execution сверх Retention.
// Execution с выполняющимися шагами не удаляются.
func (c *Controller) evict() {
	if c.retention < 0 {
		return
	}

	type finished struct {
		id uuid.UUID
		at time.Time
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	candidates := make([]finished, 0, len(c.executions))
	for id, state := range c.executions {
		if !state.Status().IsTerminal() || state.RunningCount() > 0 {
			continue
		}
		if at, ok := state.completedAt(); ok {
			candidates = append(candidates, finished{id: id, at: at})
		}
	}

	excess := len(candidates) - c.retention
	if excess <= 0 {
		return
	}

	slices.SortFunc(candidates, func(a, b finished) int {
		return a.at.Compare(b.at)
	})
	for _, f := range candidates[:excess] {
		delete(c.executions, f.id)
	}

	c.logger.Debug("evicted finished executions", "count", excess)
}

// publish отправляет событие о текущем статусе execution.
// Ошибка публикации логируется и не влияет на execution.
func (c *Controller) publish(state *ExecutionState) {
	if c.publisher == nil {
		return
	}

	snapshot := state.Snapshot()
	event := domain.NewExecutionEvent(&snapshot)

	ctx, cancel := context.WithTimeout(context.Background(), defaultPublishTimeout)
	defer cancel()

	if err := c.publisher.PublishExecutionEvent(ctx, event); err != nil {
		c.logger.Warn("failed to publish execution event",
			"execution_id", event.ExecutionID,
			"type", event.Type,
			"error", err,
		)
	}
}
