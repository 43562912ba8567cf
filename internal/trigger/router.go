package trigger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/shaiso/dagflow/internal/mq"
	"github.com/shaiso/dagflow/internal/orchestrator"
)

// Router обрабатывает сообщения trigger.event из очереди workflow.triggers.
//
// Сообщение с workflow_id запускает этот workflow, без него — все
// workflow с триггером {type: event, config: {event: <event>}}.
// Неизвестный workflow логируется, сообщение подтверждается: повторов нет.
type Router struct {
	starter   Starter
	workflows WorkflowLister
	logger    *slog.Logger
}

// RouterConfig — конфигурация Router.
type RouterConfig struct {
	Starter   Starter
	Workflows WorkflowLister
	Logger    *slog.Logger
}

// NewRouter создаёт новый Router.
func NewRouter(cfg RouterConfig) *Router {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Router{
		starter:   cfg.Starter,
		workflows: cfg.Workflows,
		logger:    logger.With("component", "trigger-router"),
	}
}

// HandleDelivery — mq.Handler для очереди триггеров.
func (r *Router) HandleDelivery(ctx context.Context, d *mq.Delivery) error {
	if d.Message.Type != mq.MessageTypeTriggerEvent {
		return fmt.Errorf("%w: %s", ErrUnsupportedMessage, d.Message.Type)
	}

	payload, err := mq.ParsePayload[mq.TriggerPayload](&d.Message)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTrigger, err)
	}

	_, err = r.Dispatch(ctx, payload)
	return err
}

// Dispatch запускает workflow по триггеру и возвращает ID созданных execution.
func (r *Router) Dispatch(ctx context.Context, payload mq.TriggerPayload) ([]uuid.UUID, error) {
	var targets []string
	switch {
	case payload.WorkflowID != "":
		targets = []string{payload.WorkflowID}
	case payload.Event != "":
		targets = MatchEvent(r.workflows.List(), payload.Event)
	default:
		return nil, fmt.Errorf("%w: event or workflow_id required", ErrInvalidTrigger)
	}

	if len(targets) == 0 {
		r.logger.Info("no workflows subscribed to event", "event", payload.Event)
		return nil, nil
	}

	started := make([]uuid.UUID, 0, len(targets))
	for _, workflowID := range targets {
		id, err := r.starter.Start(ctx, workflowID, payload.Variables)
		if err != nil {
			if errors.Is(err, orchestrator.ErrWorkflowNotFound) {
				r.logger.Warn("trigger references unknown workflow",
					"workflow_id", workflowID,
					"event", payload.Event,
				)
				continue
			}
			return started, fmt.Errorf("start %s: %w", workflowID, err)
		}

		r.logger.Info("workflow triggered",
			"workflow_id", workflowID,
			"execution_id", id,
			"event", payload.Event,
		)
		started = append(started, id)
	}

	return started, nil
}
