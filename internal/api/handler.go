package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/shaiso/dagflow/internal/domain"
	"github.com/shaiso/dagflow/internal/telemetry"
)

// WorkflowStore — хранилище определений workflow.
// Реализуется store.DefinitionStore.
type WorkflowStore interface {
	Register(def domain.WorkflowDefinition) error
	Lookup(ctx context.Context, id string) (domain.WorkflowDefinition, error)
	List() []domain.WorkflowDefinition
}

// WorkflowPersister сохраняет определение во внешнее хранилище.
// Реализуется repo.WorkflowRepo.
type WorkflowPersister interface {
	Upsert(ctx context.Context, def domain.WorkflowDefinition) error
}

// ExecutionService — запуск и наблюдение за execution.
// Реализуется orchestrator.Controller.
type ExecutionService interface {
	Start(ctx context.Context, workflowID string, vars map[string]any) (uuid.UUID, error)
	Status(id uuid.UUID) (domain.Execution, error)
	Cancel(id uuid.UUID) error
	List(workflowID string) []domain.Execution
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	workflows      WorkflowStore
	persister      WorkflowPersister
	executions     ExecutionService
	metrics        *telemetry.Metrics
	metricsHandler http.Handler
	logger         *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Workflows  WorkflowStore
	Executions ExecutionService

	// Persister — сохранение зарегистрированных workflow (опционально).
	Persister WorkflowPersister

	// Metrics — счётчик HTTP запросов (опционально).
	Metrics *telemetry.Metrics

	// MetricsHandler — обработчик /metrics (опционально).
	MetricsHandler http.Handler

	Logger *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		workflows:      cfg.Workflows,
		persister:      cfg.Persister,
		executions:     cfg.Executions,
		metrics:        cfg.Metrics,
		metricsHandler: cfg.MetricsHandler,
		logger:         logger,
	}
}
