package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/shaiso/dagflow/internal/domain"
	"github.com/shaiso/dagflow/internal/orchestrator"
)

// StartExecution запускает execution workflow.
// POST /api/v1/workflows/{id}/executions
//
// Execution выполняется асинхронно: ответ 202 содержит его
// состояние на момент запуска.
func (h *Handler) StartExecution(w http.ResponseWriter, r *http.Request) {
	var req StartExecutionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		BadRequest(w, "invalid request body")
		return
	}

	id, err := h.executions.Start(r.Context(), r.PathValue("id"), req.Variables)
	if HandleError(w, h.logger, err) {
		return
	}

	execution, err := h.executions.Status(id)
	if HandleError(w, h.logger, err) {
		return
	}

	Accepted(w, ExecutionFromDomain(execution))
}

// ListExecutions возвращает отслеживаемые execution.
// GET /api/v1/executions?workflow_id=...&status=...
func (h *Handler) ListExecutions(w http.ResponseWriter, r *http.Request) {
	workflowID := r.URL.Query().Get("workflow_id")
	status := domain.ExecutionStatus(r.URL.Query().Get("status"))

	executions := h.executions.List(workflowID)

	result := make([]ExecutionResponse, 0, len(executions))
	for _, e := range executions {
		if status != "" && e.Status != status {
			continue
		}
		result = append(result, ExecutionFromDomain(e))
	}

	List(w, result, len(result))
}

// GetExecution возвращает execution по ID.
// GET /api/v1/executions/{id}
func (h *Handler) GetExecution(w http.ResponseWriter, r *http.Request) {
	id, err := executionID(r)
	if HandleError(w, h.logger, err) {
		return
	}

	execution, err := h.executions.Status(id)
	if HandleError(w, h.logger, err) {
		return
	}

	Success(w, ExecutionFromDomain(execution))
}

// CancelExecution отменяет execution.
// POST /api/v1/executions/{id}/cancel
//
// Для уже завершённого execution ничего не делает и возвращает его состояние.
func (h *Handler) CancelExecution(w http.ResponseWriter, r *http.Request) {
	id, err := executionID(r)
	if HandleError(w, h.logger, err) {
		return
	}

	if HandleError(w, h.logger, h.executions.Cancel(id)) {
		return
	}

	execution, err := h.executions.Status(id)
	if HandleError(w, h.logger, err) {
		return
	}

	Success(w, ExecutionFromDomain(execution))
}

// executionID разбирает {id} из пути. Строка, не являющаяся UUID, не может
// быть ID execution, поэтому это ErrExecutionNotFound (404), а не 400.
func executionID(r *http.Request) (uuid.UUID, error) {
	raw := r.PathValue("id")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s", orchestrator.ErrExecutionNotFound, raw)
	}
	return id, nil
}
