package worker

import (
	"context"
	"fmt"
)

// HandlerNoop — имя обработчика-заглушки.
const HandlerNoop = "noop"

// NoopHandler ничего не делает и сразу возвращает {ok: true}.
// Используется для шагов, работа которых моделируется (bundled templates).
type NoopHandler struct{}

// NewNoopHandler создаёт NoopHandler.
func NewNoopHandler() *NoopHandler {
	return &NoopHandler{}
}

// Name возвращает имя обработчика.
func (h *NoopHandler) Name() string {
	return HandlerNoop
}

// Execute возвращает {ok: true, step: <id>}.
func (h *NoopHandler) Execute(ctx context.Context, req *Request) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStepCancelled, err)
	}
	return map[string]any{"ok": true, "step": req.StepID}, nil
}
