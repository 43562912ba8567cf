package worker

import (
	"context"
	"encoding/json"
	"fmt"
)

const (
	// HandlerTransform — имя обработчика трансформации.
	HandlerTransform = "transform"

	configMappings = "mappings"
)

// TransformHandler — обработчик трансформации данных.
//
// Значения mappings уже отрендерены Registry через engine.RenderConfig,
// обработчик только приводит строки к JSON-типам.
//
// Конфигурация:
//
//	{
//	    "handler": "transform",
//	    "mappings": {
//	        "repo": "{{ .vars.repo }}",
//	        "count": "{{ len .vars.items }}",
//	        "labels": "{{ json .vars.labels }}"
//	    }
//	}
//
// Outputs:
//
//	{"repo": "org/app", "count": 3, "labels": ["a", "b"]}
//
// Без mappings возвращает конфигурацию шага (без ключа handler).
type TransformHandler struct{}

// NewTransformHandler создаёт новый TransformHandler.
func NewTransformHandler() *TransformHandler {
	return &TransformHandler{}
}

// Name возвращает имя обработчика.
func (h *TransformHandler) Name() string {
	return HandlerTransform
}

// Execute выполняет трансформацию.
func (h *TransformHandler) Execute(ctx context.Context, req *Request) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStepCancelled, err)
	}

	raw, ok := req.Config[configMappings]
	if !ok {
		outputs := make(map[string]any, len(req.Config))
		for key, val := range req.Config {
			if key != configHandler {
				outputs[key] = val
			}
		}
		return outputs, nil
	}

	mappings, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s: mappings must be an object", ErrInvalidConfig, HandlerTransform)
	}

	outputs := make(map[string]any, len(mappings))
	for key, val := range mappings {
		if s, ok := val.(string); ok {
			outputs[key] = parseValue(s)
			continue
		}
		outputs[key] = val
	}
	return outputs, nil
}

// parseValue пытается распарсить строку как JSON.
// Если не получается — возвращает строку как есть.
func parseValue(value string) any {
	var obj map[string]any
	if err := json.Unmarshal([]byte(value), &obj); err == nil {
		return obj
	}

	var arr []any
	if err := json.Unmarshal([]byte(value), &arr); err == nil {
		return arr
	}

	var num json.Number
	if err := json.Unmarshal([]byte(value), &num); err == nil {
		if i, err := num.Int64(); err == nil {
			return i
		}
		if f, err := num.Float64(); err == nil {
			return f
		}
	}

	switch value {
	case "true":
		return true
	case "false":
		return false
	}

	return value
}
