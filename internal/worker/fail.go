package worker

import (
	"context"
	"fmt"
)

const (
	// HandlerFail — имя обработчика, который всегда падает.
	HandlerFail = "fail"

	configMessage = "message"
)

// FailHandler всегда возвращает ошибку с config.message.
//
// Конфигурация:
//
//	{"handler": "fail", "message": "repository is archived"}
type FailHandler struct{}

// NewFailHandler создаёт FailHandler.
func NewFailHandler() *FailHandler {
	return &FailHandler{}
}

// Name возвращает имя обработчика.
func (h *FailHandler) Name() string {
	return HandlerFail
}

// Execute всегда возвращает ErrStepFailed.
func (h *FailHandler) Execute(_ context.Context, req *Request) (map[string]any, error) {
	msg := GetConfigString(req.Config, configMessage)
	if msg == "" {
		msg = "step " + req.StepID + " failed"
	}
	return nil, fmt.Errorf("%w: %s", ErrStepFailed, msg)
}
