package api

import (
	"net/http"

	"github.com/shaiso/dagflow/internal/engine"
	"github.com/shaiso/dagflow/internal/trigger"
)

// ListWorkflows возвращает список зарегистрированных workflow.
// GET /api/v1/workflows
func (h *Handler) ListWorkflows(w http.ResponseWriter, r *http.Request) {
	defs := h.workflows.List()

	result := make([]WorkflowSummary, len(defs))
	for i, def := range defs {
		result[i] = WorkflowSummaryFromDomain(def)
	}

	List(w, result, len(result))
}

// GetWorkflow возвращает полное определение workflow.
// GET /api/v1/workflows/{id}
func (h *Handler) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	def, err := h.workflows.Lookup(r.Context(), r.PathValue("id"))
	if HandleError(w, h.logger, err) {
		return
	}

	Success(w, def)
}

// RegisterWorkflow регистрирует (или заменяет) определение workflow.
// PUT /api/v1/workflows/{id}
//
// Тело — определение в JSON или YAML. Пустой id в теле берётся из пути.
// Триггеры проверяются до регистрации (cron-выражения, имена событий).
// Если настроен Persister, определение также сохраняется в нём.
func (h *Handler) RegisterWorkflow(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	def, err := engine.LoadDefinitionReader(r.Body)
	if err != nil {
		Error(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}

	if def.ID == "" {
		def.ID = id
	}
	if def.ID != id {
		BadRequest(w, "workflow id in body does not match path")
		return
	}

	if HandleError(w, h.logger, trigger.ValidateTriggers(def)) {
		return
	}

	if HandleError(w, h.logger, h.workflows.Register(def)) {
		return
	}

	if h.persister != nil {
		if err := h.persister.Upsert(r.Context(), def); err != nil {
			InternalError(w, h.logger, err)
			return
		}
	}

	h.logger.Info("workflow registered", "workflow_id", def.ID, "steps", len(def.Steps))

	stored, err := h.workflows.Lookup(r.Context(), def.ID)
	if HandleError(w, h.logger, err) {
		return
	}

	Success(w, stored)
}
