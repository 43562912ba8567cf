package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Handler — обработчик одного вида работы.
//
// Каждый обработчик (noop, delay, transform, http, fail) реализует этот интерфейс.
type Handler interface {
	// Name возвращает имя, по которому шаг ссылается на обработчик (config.handler).
	Name() string

	// Execute выполняет шаг и возвращает его outputs.
	// Обработчик должен проверять ctx.Done() для graceful shutdown.
	Execute(ctx context.Context, req *Request) (map[string]any, error)
}

// Request — входные данные для обработчика.
type Request struct {
	ExecutionID uuid.UUID
	WorkflowID  string
	StepID      string

	// Config — конфигурация шага (уже отрендеренная через engine.RenderConfig).
	Config map[string]any

	// Variables — переменные execution.
	Variables map[string]any

	// Timeout — таймаут шага из определения (0 — не задан).
	Timeout time.Duration
}

// GetConfigString извлекает строковое значение из конфига.
func GetConfigString(config map[string]any, key string) string {
	if v, ok := config[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// GetConfigInt извлекает числовое значение из конфига.
// YAML даёт int, JSON — float64.
func GetConfigInt(config map[string]any, key string) int {
	if v, ok := config[key]; ok {
		switch n := v.(type) {
		case int:
			return n
		case int64:
			return int(n)
		case float64:
			return int(n)
		}
	}
	return 0
}

// GetConfigBool извлекает булево значение из конфига.
func GetConfigBool(config map[string]any, key string, defaultVal bool) bool {
	if v, ok := config[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return defaultVal
}

// GetConfigMapString извлекает map[string]string из конфига.
func GetConfigMapString(config map[string]any, key string) map[string]string {
	if v, ok := config[key]; ok {
		switch m := v.(type) {
		case map[string]string:
			return m
		case map[string]any:
			result := make(map[string]string, len(m))
			for k, val := range m {
				if s, ok := val.(string); ok {
					result[k] = s
				}
			}
			return result
		}
	}
	return nil
}
