package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Cascade/internal/domain"
	"github.com/shaiso/Cascade/internal/repo"
)

// ListWorkflows возвращает все workflow.
// GET /api/v1/workflows
func (h *Handler) ListWorkflows(w http.ResponseWriter, r *http.Request) {
	workflows, err := h.storage.ListWorkflows(r.Context())
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]WorkflowSummary, len(workflows))
	for i, wf := range workflows {
		result[i] = WorkflowSummaryFromDomain(wf)
	}

	List(w, result, len(result))
}

// CreateWorkflow валидирует и сохраняет новый workflow.
// POST /api/v1/workflows
func (h *Handler) CreateWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, ok := h.decodeWorkflow(w, r)
	if !ok {
		return
	}

	if wf.ID != uuid.Nil {
		_, err := h.storage.GetWorkflow(r.Context(), wf.ID)
		if err == nil {
			Conflict(w, "workflow already exists")
			return
		}
		if !errors.Is(err, repo.ErrNotFound) {
			InternalError(w, h.logger, err)
			return
		}
	}

	if _, err := h.storage.SaveWorkflow(r.Context(), wf); HandleRepoError(w, h.logger, err, "") {
		return
	}

	h.logger.Info("workflow created", "workflow_id", wf.ID, "name", wf.Name)
	Created(w, WorkflowFromDomain(wf, time.Now()))
}

// GetWorkflow возвращает workflow по ID.
// GET /api/v1/workflows/{id}
func (h *Handler) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "invalid workflow id")
	if !ok {
		return
	}

	wf, err := h.storage.GetWorkflow(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "workflow not found") {
		return
	}

	Success(w, WorkflowFromDomain(wf, time.Now()))
}

// UpdateWorkflow заменяет определение существующего workflow.
// PUT /api/v1/workflows/{id}
func (h *Handler) UpdateWorkflow(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "invalid workflow id")
	if !ok {
		return
	}

	wf, ok := h.decodeWorkflow(w, r)
	if !ok {
		return
	}
	wf.ID = id

	if _, err := h.storage.GetWorkflow(r.Context(), id); HandleRepoError(w, h.logger, err, "workflow not found") {
		return
	}

	if _, err := h.storage.SaveWorkflow(r.Context(), wf); HandleRepoError(w, h.logger, err, "") {
		return
	}

	Success(w, WorkflowFromDomain(wf, time.Now()))
}

// DeleteWorkflow удаляет workflow вместе с историей run.
// DELETE /api/v1/workflows/{id}
func (h *Handler) DeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "invalid workflow id")
	if !ok {
		return
	}

	deleted, err := h.storage.DeleteWorkflow(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}
	if !deleted {
		NotFound(w, "workflow not found")
		return
	}

	NoContent(w)
}

// ValidateWorkflow проверяет workflow без сохранения.
// Невалидный workflow — не ошибка запроса: ответ 200 со списком проблем.
// POST /api/v1/workflows/validate
func (h *Handler) ValidateWorkflow(w http.ResponseWriter, r *http.Request) {
	var wf domain.Workflow
	if err := json.NewDecoder(r.Body).Decode(&wf); err != nil {
		BadRequest(w, "invalid request body: "+err.Error())
		return
	}

	problems := h.orchestrator.ValidateWorkflow(&wf)
	Success(w, ValidateResponse{Valid: len(problems) == 0, Problems: problems})
}

// decodeWorkflow читает и валидирует workflow из тела запроса.
// При ошибке ответ уже отправлен.
func (h *Handler) decodeWorkflow(w http.ResponseWriter, r *http.Request) (*domain.Workflow, bool) {
	var wf domain.Workflow
	if err := json.NewDecoder(r.Body).Decode(&wf); err != nil {
		BadRequest(w, "invalid request body: "+err.Error())
		return nil, false
	}

	if problems := h.orchestrator.ValidateWorkflow(&wf); len(problems) > 0 {
		ValidationFailed(w, problems)
		return nil, false
	}
	return &wf, true
}

// pathID разбирает {id} из пути.
func pathID(w http.ResponseWriter, r *http.Request, msg string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, msg)
		return uuid.Nil, false
	}
	return id, true
}
