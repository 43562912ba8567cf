package worker

import (
	"context"
	"fmt"
	"time"
)

const (
	// HandlerDelay — имя обработчика задержки.
	HandlerDelay = "delay"

	// Ключи конфигурации delay.
	configDurationSec = "duration_sec"
	configDurationMs  = "duration_ms"
)

// DelayHandler — обработчик задержки.
//
// Приостанавливает выполнение на указанное время.
// Поддерживает отмену через context.
//
// Конфигурация:
//
//	{
//	    "duration_sec": 10,    // задержка в секундах
//	    // или
//	    "duration_ms": 5000    // задержка в миллисекундах
//	}
type DelayHandler struct{}

// NewDelayHandler создаёт новый DelayHandler.
func NewDelayHandler() *DelayHandler {
	return &DelayHandler{}
}

// Name возвращает имя обработчика.
func (h *DelayHandler) Name() string {
	return HandlerDelay
}

// Execute выполняет задержку.
func (h *DelayHandler) Execute(ctx context.Context, req *Request) (map[string]any, error) {
	duration, err := parseDuration(req.Config)
	if err != nil {
		return nil, err
	}

	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrStepCancelled, ctx.Err())
	case <-timer.C:
		return map[string]any{"duration_ms": duration.Milliseconds()}, nil
	}
}

// parseDuration извлекает длительность из конфигурации.
func parseDuration(config map[string]any) (time.Duration, error) {
	if sec := GetConfigInt(config, configDurationSec); sec > 0 {
		return time.Duration(sec) * time.Second, nil
	}

	if ms := GetConfigInt(config, configDurationMs); ms > 0 {
		return time.Duration(ms) * time.Millisecond, nil
	}

	return 0, fmt.Errorf("%w: %s: duration_sec or duration_ms required",
		ErrInvalidConfig, HandlerDelay)
}
