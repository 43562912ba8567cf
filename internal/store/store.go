package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/shaiso/dagflow/internal/domain"
	"github.com/shaiso/dagflow/internal/engine"
)

// Source — внешний источник определений workflow (например, PostgreSQL).
//
// GetWorkflow возвращает ошибку, для которой errors.Is(err, ErrNotFound),
// если workflow в источнике нет.
type Source interface {
	GetWorkflow(ctx context.Context, id string) (*domain.WorkflowDefinition, error)
	ListWorkflows(ctx context.Context) ([]domain.WorkflowDefinition, error)
}

// DefinitionStore — реестр WorkflowDefinition.
//
// Безопасен для конкурентного использования: чтения не блокируют друг друга.
type DefinitionStore struct {
	defs   map[string]domain.WorkflowDefinition
	mu     sync.RWMutex
	source Source
	logger *slog.Logger

	listenersMu sync.RWMutex
	listeners   []Listener
}

// Listener вызывается после каждой успешной регистрации определения,
// включая загрузку из Source при промахе Lookup.
// Вызывается без удержания блокировок store, поэтому может читать store.
type Listener func(def domain.WorkflowDefinition)

// Config — конфигурация DefinitionStore.
type Config struct {
	// Source — источник, к которому Lookup обращается при промахе (опционально).
	Source Source

	// Logger
	Logger *slog.Logger
}

// New создаёт пустой DefinitionStore.
func New(cfg Config) *DefinitionStore {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &DefinitionStore{
		defs:   make(map[string]domain.WorkflowDefinition),
		source: cfg.Source,
		logger: logger,
	}
}

// Register валидирует и сохраняет определение.
// Существующее определение с тем же ID перезаписывается.
func (s *DefinitionStore) Register(def domain.WorkflowDefinition) error {
	def = def.Clone()
	engine.Normalize(&def)

	if err := engine.Validate(&def); err != nil {
		return err
	}

	s.mu.Lock()
	_, replaced := s.defs[def.ID]
	s.defs[def.ID] = def
	s.mu.Unlock()

	s.logger.Debug("workflow registered",
		"workflow_id", def.ID,
		"steps", len(def.Steps),
		"replaced", replaced,
	)

	s.listenersMu.RLock()
	listeners := s.listeners
	s.listenersMu.RUnlock()

	for _, fn := range listeners {
		fn(def.Clone())
	}
	return nil
}

// Subscribe добавляет Listener. Определения, зарегистрированные до
// подписки, не передаются.
func (s *DefinitionStore) Subscribe(fn Listener) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Lookup возвращает копию определения по ID.
//
// Если определения нет в памяти и задан Source, оно загружается из
// источника, валидируется и кэшируется.
func (s *DefinitionStore) Lookup(ctx context.Context, id string) (domain.WorkflowDefinition, error) {
	s.mu.RLock()
	def, ok := s.defs[id]
	s.mu.RUnlock()

	if ok {
		return def.Clone(), nil
	}

	if s.source == nil {
		return domain.WorkflowDefinition{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	loaded, err := s.source.GetWorkflow(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return domain.WorkflowDefinition{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return domain.WorkflowDefinition{}, fmt.Errorf("load workflow %s: %w", id, err)
	}

	if err := s.Register(*loaded); err != nil {
		return domain.WorkflowDefinition{}, fmt.Errorf("workflow %s from source: %w", id, err)
	}

	s.mu.RLock()
	def = s.defs[id]
	s.mu.RUnlock()

	return def.Clone(), nil
}

// List возвращает копии всех определений, отсортированные по ID.
func (s *DefinitionStore) List() []domain.WorkflowDefinition {
	s.mu.RLock()
	defs := make([]domain.WorkflowDefinition, 0, len(s.defs))
	for _, def := range s.defs {
		defs = append(defs, def.Clone())
	}
	s.mu.RUnlock()

	slices.SortFunc(defs, func(a, b domain.WorkflowDefinition) int {
		return strings.Compare(a.ID, b.ID)
	})
	return defs
}

// LoadFrom регистрирует все определения из источника.
// Невалидные определения пропускаются с предупреждением.
// Возвращает количество зарегистрированных определений.
func (s *DefinitionStore) LoadFrom(ctx context.Context, source Source) (int, error) {
	defs, err := source.ListWorkflows(ctx)
	if err != nil {
		return 0, fmt.Errorf("list workflows: %w", err)
	}

	loaded := 0
	for _, def := range defs {
		if err := s.Register(def); err != nil {
			s.logger.Warn("skipping invalid workflow", "workflow_id", def.ID, "error", err)
			continue
		}
		loaded++
	}
	return loaded, nil
}

// RegisterAll регистрирует набор определений, останавливаясь на первой ошибке.
func (s *DefinitionStore) RegisterAll(defs []domain.WorkflowDefinition) error {
	for _, def := range defs {
		if err := s.Register(def); err != nil {
			return fmt.Errorf("register %s: %w", def.ID, err)
		}
	}
	return nil
}
