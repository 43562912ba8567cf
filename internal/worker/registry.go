package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/shaiso/dagflow/internal/domain"
	"github.com/shaiso/dagflow/internal/engine"
)

const (
	// configHandler — ключ конфигурации шага с именем обработчика.
	configHandler = "handler"

	// defaultHandlerName — обработчик для шагов без config.handler.
	defaultHandlerName = HandlerNoop
)

// Registry — реестр обработчиков шагов.
//
// Реализует orchestrator.StepExecutor. Потокобезопасен.
type Registry struct {
	mu             sync.RWMutex
	handlers       map[string]Handler
	defaultHandler string
	logger         *slog.Logger
}

// Config — конфигурация Registry.
type Config struct {
	// DefaultHandler — обработчик для шагов без config.handler (default: noop).
	DefaultHandler string

	// Logger
	Logger *slog.Logger
}

// NewRegistry создаёт пустой реестр.
func NewRegistry(cfg Config) *Registry {
	defaultHandler := cfg.DefaultHandler
	if defaultHandler == "" {
		defaultHandler = defaultHandlerName
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Registry{
		handlers:       make(map[string]Handler),
		defaultHandler: defaultHandler,
		logger:         logger,
	}
}

// DefaultRegistry создаёт реестр со всеми стандартными обработчиками.
func DefaultRegistry(cfg Config) *Registry {
	r := NewRegistry(cfg)

	r.Register(NewNoopHandler())
	r.Register(NewDelayHandler())
	r.Register(NewHTTPHandler())
	r.Register(NewTransformHandler())
	r.Register(NewFailHandler())

	return r
}

// Register регистрирует обработчик.
// Обработчик с тем же именем перезаписывается.
func (r *Registry) Register(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[h.Name()] = h
}

// Get возвращает обработчик по имени.
// Возвращает ErrUnknownHandler, если обработчик не найден.
func (r *Registry) Get(name string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, exists := r.handlers[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownHandler, name)
	}
	return h, nil
}

// Has проверяет, зарегистрирован ли обработчик.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.handlers[name]
	return exists
}

// Names возвращает отсортированный список имён обработчиков.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close освобождает ресурсы обработчиков, реализующих io.Closer
// (например, idle-соединения HTTP обработчика).
func (r *Registry) Close() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var errs []error
	for name, h := range r.handlers {
		if c, ok := h.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
			}
		}
	}
	return errors.Join(errs...)
}

// Execute выполняет шаг workflow.
//
// Порядок:
//  1. Рендерит конфигурацию шага с переменными execution
//  2. Выбирает обработчик по config.handler (или обработчик по умолчанию)
//  3. Если у шага задан таймаут — ограничивает им context обработчика
//  4. Вызывает обработчик
func (r *Registry) Execute(ctx context.Context, req domain.StepRequest) (any, error) {
	tmplCtx := &engine.Context{
		Vars:        req.Variables,
		StepID:      req.StepID,
		ExecutionID: req.ExecutionID,
		WorkflowID:  req.WorkflowID,
	}

	config, err := engine.RenderConfig(req.Config, tmplCtx)
	if err != nil {
		return nil, fmt.Errorf("render config: %w", err)
	}

	name := GetConfigString(config, configHandler)
	if name == "" {
		name = r.defaultHandler
	}

	h, err := r.Get(name)
	if err != nil {
		return nil, err
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	r.logger.Debug("executing step",
		"execution_id", req.ExecutionID,
		"step_id", req.StepID,
		"handler", name,
	)

	outputs, err := h.Execute(ctx, &Request{
		ExecutionID: req.ExecutionID,
		WorkflowID:  req.WorkflowID,
		StepID:      req.StepID,
		Config:      config,
		Variables:   req.Variables,
		Timeout:     req.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return outputs, nil
}
