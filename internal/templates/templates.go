// Package templates содержит встроенные шаблоны workflow.
//
// Шаблоны — YAML файлы в каталоге workflows/, встроенные в бинарник
// через embed. Загружаются в store.DefinitionStore при старте сервера.
package templates

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"

	"github.com/shaiso/dagflow/internal/domain"
	"github.com/shaiso/dagflow/internal/engine"
)

// Идентификаторы встроенных шаблонов.
const (
	CopilotTaskDelegation = "copilot-task-delegation"
	RepositoryOnboarding  = "repository-onboarding"
)

const workflowsDir = "workflows"

//go:embed workflows/*.yaml
var files embed.FS

// Load разбирает все встроенные шаблоны в порядке имён файлов.
func Load() ([]domain.WorkflowDefinition, error) {
	names, err := fs.Glob(files, path.Join(workflowsDir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	sort.Strings(names)

	defs := make([]domain.WorkflowDefinition, 0, len(names))
	for _, name := range names {
		data, err := files.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("read template %s: %w", name, err)
		}

		def, err := engine.ParseDefinition(data)
		if err != nil {
			return nil, fmt.Errorf("template %s: %w", name, err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// Get возвращает встроенный шаблон по ID.
func Get(id string) (domain.WorkflowDefinition, bool) {
	defs, err := Load()
	if err != nil {
		return domain.WorkflowDefinition{}, false
	}
	for _, def := range defs {
		if def.ID == id {
			return def, true
		}
	}
	return domain.WorkflowDefinition{}, false
}
