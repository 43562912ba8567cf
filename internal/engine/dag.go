package engine

import (
	"fmt"
	"slices"
	"strings"

	"github.com/shaiso/dagflow/internal/domain"
)

// Node — узел графа (один шаг workflow).
type Node struct {
	// Step — определение шага.
	Step *domain.StepDefinition

	// ID — идентификатор шага.
	ID string

	// DependsOn — ID зависимостей без дубликатов, в порядке объявления.
	// Может содержать ID, которых нет в workflow.
	DependsOn []string

	// Dependents — узлы, которые зависят от этого узла.
	Dependents []*Node

	// Missing — зависимости, не объявленные в workflow.
	Missing []string
}

// DAG — граф зависимостей шагов workflow.
//
// Несмотря на название, граф может содержать циклы и ссылки на
// несуществующие шаги: BuildDAG их не отвергает. Такие шаги просто
// никогда не становятся готовыми, и scheduler обнаруживает deadlock.
type DAG struct {
	// Nodes — все узлы графа (stepID → Node).
	Nodes map[string]*Node

	// order — ID шагов в порядке объявления.
	order []string
}

// BuildDAG строит граф из WorkflowDefinition.
func BuildDAG(def *domain.WorkflowDefinition) *DAG {
	dag := &DAG{
		Nodes: make(map[string]*Node, len(def.Steps)),
		order: make([]string, 0, len(def.Steps)),
	}

	// Первый проход: создаём все узлы
	for i := range def.Steps {
		step := &def.Steps[i]
		if _, exists := dag.Nodes[step.ID]; exists {
			continue
		}
		dag.Nodes[step.ID] = &Node{Step: step, ID: step.ID}
		dag.order = append(dag.order, step.ID)
	}

	// Второй проход: связываем узлы по зависимостям
	for _, id := range dag.order {
		node := dag.Nodes[id]
		for _, depID := range node.Step.DependsOn {
			if slices.Contains(node.DependsOn, depID) {
				continue
			}
			node.DependsOn = append(node.DependsOn, depID)

			depNode, exists := dag.Nodes[depID]
			if !exists {
				node.Missing = append(node.Missing, depID)
				continue
			}
			depNode.Dependents = append(depNode.Dependents, node)
		}
	}

	return dag
}

// GetReadyNodes возвращает узлы, готовые к выполнению.
//
// Узел готов, если:
//   - он не в completed и не в running
//   - все его зависимости в completed
//
// Порядок результата совпадает с порядком объявления, но вызывающий
// код не должен на него полагаться: готовые шаги равноправны.
func (d *DAG) GetReadyNodes(completed, running map[string]bool) []*Node {
	ready := make([]*Node, 0)

	for _, id := range d.order {
		node := d.Nodes[id]

		if completed[id] || running[id] {
			continue
		}

		allDepsCompleted := true
		for _, dep := range node.DependsOn {
			if !completed[dep] {
				allDepsCompleted = false
				break
			}
		}

		if allDepsCompleted {
			ready = append(ready, node)
		}
	}

	return ready
}

// Size возвращает количество узлов.
func (d *DAG) Size() int {
	return len(d.Nodes)
}

// IsComplete проверяет, все ли узлы завершены.
func (d *DAG) IsComplete(completed map[string]bool) bool {
	for id := range d.Nodes {
		if !completed[id] {
			return false
		}
	}
	return true
}

// TopologicalOrder возвращает шаги в топологическом порядке (алгоритм Кана).
// Возвращает ErrMissingDependency или ErrCyclicDependency, если граф невыполним.
func (d *DAG) TopologicalOrder() ([]string, error) {
	for _, id := range d.order {
		if node := d.Nodes[id]; len(node.Missing) > 0 {
			return nil, NewValidationError(id, "depends_on",
				fmt.Sprintf("depends on unknown step: %s", node.Missing[0]), ErrMissingDependency)
		}
	}

	inDegree := make(map[string]int, len(d.Nodes))
	queue := make([]*Node, 0)
	for _, id := range d.order {
		inDegree[id] = len(d.Nodes[id].DependsOn)
		if inDegree[id] == 0 {
			queue = append(queue, d.Nodes[id])
		}
	}

	order := make([]string, 0, len(d.Nodes))
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		order = append(order, node.ID)

		for _, dependent := range node.Dependents {
			inDegree[dependent.ID]--
			if inDegree[dependent.ID] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(order) != len(d.Nodes) {
		return nil, ErrCyclicDependency
	}
	return order, nil
}

// Diagnosis — объяснение, почему оставшиеся шаги не могут стать готовыми.
type Diagnosis struct {
	// Pending — шаги, которые не завершены и не выполняются.
	Pending []string

	// MissingDeps — шаг → зависимости, которых нет в workflow.
	MissingDeps map[string][]string

	// Cyclic — шаги, находящиеся в цикле или за ним.
	Cyclic []string
}

// String форматирует диагностику для сообщения об ошибке.
func (d Diagnosis) String() string {
	parts := []string{"pending steps: " + strings.Join(d.Pending, ", ")}

	if len(d.MissingDeps) > 0 {
		ids := make([]string, 0, len(d.MissingDeps))
		for id := range d.MissingDeps {
			ids = append(ids, id)
		}
		slices.Sort(ids)

		refs := make([]string, 0, len(ids))
		for _, id := range ids {
			refs = append(refs, fmt.Sprintf("%s -> %s", id, strings.Join(d.MissingDeps[id], "|")))
		}
		parts = append(parts, "unknown dependencies: "+strings.Join(refs, ", "))
	}

	if len(d.Cyclic) > 0 {
		parts = append(parts, "cyclic: "+strings.Join(d.Cyclic, ", "))
	}

	return strings.Join(parts, "; ")
}

// Diagnose объясняет, почему шаги вне completed и running не могут стать готовыми.
//
// Вызывается scheduler'ом в момент deadlock. Шаги с неизвестными
// зависимостями попадают в MissingDeps; оставшиеся после прохода
// алгоритмом Кана по pending-подграфу — в Cyclic.
func (d *DAG) Diagnose(completed, running map[string]bool) Diagnosis {
	diag := Diagnosis{MissingDeps: make(map[string][]string)}

	pending := make(map[string]bool)
	for _, id := range d.order {
		if !completed[id] && !running[id] {
			pending[id] = true
			diag.Pending = append(diag.Pending, id)
		}
	}

	inDegree := make(map[string]int, len(pending))
	queue := make([]*Node, 0)
	for _, id := range diag.Pending {
		node := d.Nodes[id]
		if len(node.Missing) > 0 {
			diag.MissingDeps[id] = node.Missing
		}
		for _, dep := range node.DependsOn {
			if pending[dep] {
				inDegree[id]++
			}
		}
		if inDegree[id] == 0 {
			queue = append(queue, node)
		}
	}

	resolved := make(map[string]bool, len(pending))
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		resolved[node.ID] = true

		for _, dependent := range node.Dependents {
			if !pending[dependent.ID] {
				continue
			}
			inDegree[dependent.ID]--
			if inDegree[dependent.ID] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	for _, id := range diag.Pending {
		if !resolved[id] {
			diag.Cyclic = append(diag.Cyclic, id)
		}
	}

	return diag
}
