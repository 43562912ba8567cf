package trigger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shaiso/dagflow/internal/domain"
)

// Типы триггеров.
const (
	TypeEvent    = "event"
	TypeSchedule = "schedule"
)

// Ключи Trigger.Config.
const (
	configEvent     = "event"
	configCron      = "cron"
	configVariables = "variables"
)

// Starter запускает execution.
// Реализуется orchestrator.Controller.
type Starter interface {
	Start(ctx context.Context, workflowID string, vars map[string]any) (uuid.UUID, error)
}

// WorkflowLister перечисляет зарегистрированные workflow.
// Реализуется store.DefinitionStore.
type WorkflowLister interface {
	List() []domain.WorkflowDefinition
}

// eventName возвращает имя события триггера type: event.
func eventName(tr domain.Trigger) string {
	if tr.Type != TypeEvent {
		return ""
	}
	name, _ := tr.Config[configEvent].(string)
	return name
}

// cronSpec возвращает cron-выражение триггера type: schedule.
func cronSpec(tr domain.Trigger) string {
	if tr.Type != TypeSchedule {
		return ""
	}
	spec, _ := tr.Config[configCron].(string)
	return spec
}

// triggerVariables возвращает переменные из config.variables.
func triggerVariables(tr domain.Trigger) map[string]any {
	vars, _ := tr.Config[configVariables].(map[string]any)
	return vars
}

// MatchEvent возвращает ID workflow, подписанных на событие, в порядке defs.
func MatchEvent(defs []domain.WorkflowDefinition, event string) []string {
	var ids []string
	for _, def := range defs {
		for _, tr := range def.Triggers {
			if eventName(tr) == event {
				ids = append(ids, def.ID)
				break
			}
		}
	}
	return ids
}

// ValidateTriggers проверяет триггеры определения: у type: event должно
// быть имя события, у type: schedule — корректное cron-выражение.
// Триггеры других типов не проверяются.
func ValidateTriggers(def domain.WorkflowDefinition) error {
	for i, tr := range def.Triggers {
		switch tr.Type {
		case TypeEvent:
			if eventName(tr) == "" {
				return fmt.Errorf("%w: workflow %s: trigger %d: config.event is required", ErrInvalidTrigger, def.ID, i)
			}
		case TypeSchedule:
			spec := cronSpec(tr)
			if spec == "" {
				return fmt.Errorf("%w: workflow %s: trigger %d: config.cron is required", ErrInvalidTrigger, def.ID, i)
			}
			if err := ValidateCronExpr(spec); err != nil {
				return fmt.Errorf("workflow %s: trigger %d: %w", def.ID, i, err)
			}
		}
	}
	return nil
}
