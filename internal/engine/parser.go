package engine

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/shaiso/dagflow/internal/domain"
)

// ParseDefinition разбирает WorkflowDefinition из YAML или JSON.
// Результат нормализован, но не провалидирован.
func ParseDefinition(data []byte) (domain.WorkflowDefinition, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return domain.WorkflowDefinition{}, ErrEmptyDefinition
	}

	var def domain.WorkflowDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return domain.WorkflowDefinition{}, fmt.Errorf("decode workflow definition: %w", err)
	}

	Normalize(&def)
	return def, nil
}

// LoadDefinitionReader читает определение из io.Reader.
func LoadDefinitionReader(r io.Reader) (domain.WorkflowDefinition, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return domain.WorkflowDefinition{}, fmt.Errorf("read workflow definition: %w", err)
	}
	return ParseDefinition(content)
}

// LoadDefinitionFile читает определение из файла.
func LoadDefinitionFile(path string) (domain.WorkflowDefinition, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return domain.WorkflowDefinition{}, fmt.Errorf("read %s: %w", path, err)
	}
	def, err := ParseDefinition(content)
	if err != nil {
		return domain.WorkflowDefinition{}, fmt.Errorf("%s: %w", path, err)
	}
	return def, nil
}

// LoadDefinitionDir читает все *.yaml, *.yml и *.json файлы каталога.
// Файлы обрабатываются в лексикографическом порядке.
func LoadDefinitionDir(dir string) ([]domain.WorkflowDefinition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".yaml", ".yml", ".json":
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	defs := make([]domain.WorkflowDefinition, 0, len(names))
	for _, name := range names {
		def, err := LoadDefinitionFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// Normalize заполняет значения по умолчанию: пустой Kind становится action,
// пустое имя шага — его ID.
func Normalize(def *domain.WorkflowDefinition) {
	if def.Name == "" {
		def.Name = def.ID
	}
	for i := range def.Steps {
		step := &def.Steps[i]
		if step.Kind == "" {
			step.Kind = domain.StepKindAction
		}
		if step.Name == "" {
			step.Name = step.ID
		}
	}
}

// Validate выполняет структурную валидацию WorkflowDefinition.
//
// Проверяет:
//   - наличие ID workflow и хотя бы одного шага
//   - непустые и уникальные ID шагов
//   - известный вид шага
//
// Циклы и ссылки на несуществующие шаги здесь не проверяются:
// scheduler обнаруживает их при выполнении как deadlock.
func Validate(def *domain.WorkflowDefinition) error {
	if def == nil || strings.TrimSpace(def.ID) == "" {
		return NewValidationError("", "id", "workflow has empty ID", ErrEmptyWorkflowID)
	}

	if len(def.Steps) == 0 {
		return NewValidationError("", "steps", "workflow has no steps", ErrEmptySteps)
	}

	stepIDs := make(map[string]bool, len(def.Steps))
	for i := range def.Steps {
		if err := ValidateStep(&def.Steps[i], stepIDs); err != nil {
			return err
		}
	}

	return nil
}

// ValidateStep валидирует один шаг.
// stepIDs — уже встреченные ID шагов (для проверки уникальности).
func ValidateStep(step *domain.StepDefinition, stepIDs map[string]bool) error {
	if strings.TrimSpace(step.ID) == "" {
		return NewValidationError("", "id", "step has empty ID", ErrEmptyStepID)
	}

	if stepIDs[step.ID] {
		return NewValidationError(step.ID, "id",
			fmt.Sprintf("duplicate step ID: %s", step.ID), ErrDuplicateStepID)
	}
	stepIDs[step.ID] = true

	if !step.Kind.IsValid() {
		return NewValidationError(step.ID, "kind",
			fmt.Sprintf("unknown step kind: %q", step.Kind), ErrUnknownStepKind)
	}

	return nil
}

// CheckGraph проверяет, что граф workflow выполним: все зависимости
// существуют и циклов нет. Регистрация эту проверку не требует,
// она используется CLI для предварительной проверки файлов.
func CheckGraph(def *domain.WorkflowDefinition) error {
	_, err := BuildDAG(def).TopologicalOrder()
	return err
}
