package domain

import (
	"maps"
	"time"
)

// StepKind — вид шага. Для scheduler'а все виды равнозначны,
// это метаданные для executor'а.
type StepKind string

const (
	StepKindAction     StepKind = "action"
	StepKindCondition  StepKind = "condition"
	StepKindParallel   StepKind = "parallel"
	StepKindSequential StepKind = "sequential"
)

// IsValid возвращает true для известных видов шагов.
func (k StepKind) IsValid() bool {
	switch k {
	case StepKindAction, StepKindCondition, StepKindParallel, StepKindSequential:
		return true
	default:
		return false
	}
}

// WorkflowDefinition — шаблон workflow: шаги, зависимости и триггеры.
//
// Определение создаётся при регистрации и больше не меняется.
// Store хранит собственную копию и отдаёт наружу копии.
type WorkflowDefinition struct {
	// ID — идентификатор workflow (ключ в store).
	ID string `json:"id" yaml:"id"`

	// Name — человекочитаемое имя.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Description — описание назначения workflow.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Steps — упорядоченный список шагов.
	Steps []StepDefinition `json:"steps" yaml:"steps"`

	// Triggers — описания триггеров. Движок их не интерпретирует,
	// они читаются слоем маршрутизации событий (internal/trigger).
	Triggers []Trigger `json:"triggers,omitempty" yaml:"triggers,omitempty"`

	// Variables — значения переменных по умолчанию.
	Variables map[string]any `json:"variables,omitempty" yaml:"variables,omitempty"`
}

// StepDefinition — определение шага в workflow.
type StepDefinition struct {
	// ID — уникальный идентификатор шага в рамках workflow.
	ID string `json:"id" yaml:"id"`

	// Name — человекочитаемое имя шага.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Kind — вид шага: action, condition, parallel, sequential.
	Kind StepKind `json:"kind,omitempty" yaml:"kind,omitempty"`

	// DependsOn — ID шагов, которые должны завершиться до запуска этого шага.
	DependsOn []string `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`

	// Config — конфигурация для executor'а. Scheduler её не читает.
	Config map[string]any `json:"config,omitempty" yaml:"config,omitempty"`

	// TimeoutSec — таймаут шага. Передаётся executor'у как есть,
	// scheduler его не применяет.
	TimeoutSec int `json:"timeout_sec,omitempty" yaml:"timeout_sec,omitempty"`
}

// Timeout возвращает таймаут шага как time.Duration (0 — не задан).
func (s *StepDefinition) Timeout() time.Duration {
	if s.TimeoutSec <= 0 {
		return 0
	}
	return time.Duration(s.TimeoutSec) * time.Second
}

// Trigger — непрозрачное описание триггера.
//
// Примеры:
//
//	{type: event,    config: {event: issue.opened}}
//	{type: schedule, config: {cron: "*/15 * * * *"}}
type Trigger struct {
	Type   string         `json:"type" yaml:"type"`
	Config map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
}

// Step возвращает определение шага по ID.
func (w *WorkflowDefinition) Step(id string) (*StepDefinition, bool) {
	for i := range w.Steps {
		if w.Steps[i].ID == id {
			return &w.Steps[i], true
		}
	}
	return nil, false
}

// StepIDs возвращает ID шагов в порядке объявления.
func (w *WorkflowDefinition) StepIDs() []string {
	ids := make([]string, len(w.Steps))
	for i := range w.Steps {
		ids[i] = w.Steps[i].ID
	}
	return ids
}

// Clone возвращает копию определения, не разделяющую слайсы и map'ы верхнего уровня.
func (w *WorkflowDefinition) Clone() WorkflowDefinition {
	out := *w
	out.Variables = maps.Clone(w.Variables)

	if w.Steps != nil {
		out.Steps = make([]StepDefinition, len(w.Steps))
		for i, step := range w.Steps {
			step.DependsOn = append([]string(nil), step.DependsOn...)
			step.Config = maps.Clone(step.Config)
			out.Steps[i] = step
		}
	}

	if w.Triggers != nil {
		out.Triggers = make([]Trigger, len(w.Triggers))
		for i, tr := range w.Triggers {
			tr.Config = maps.Clone(tr.Config)
			out.Triggers[i] = tr
		}
	}

	return out
}
