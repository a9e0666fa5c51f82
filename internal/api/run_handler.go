package api

import (
	"net/http"
	"strconv"

	"github.com/shaiso/Cascade/internal/domain"
	"github.com/shaiso/Cascade/internal/repo"
)

// StartRun запускает workflow.
//
// ?wait=true — выполнить синхронно и вернуть финальный run (200),
// иначе запустить в фоне и вернуть созданный run (202).
// POST /api/v1/workflows/{id}/runs
func (h *Handler) StartRun(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "invalid workflow id")
	if !ok {
		return
	}

	wf, err := h.storage.GetWorkflow(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "workflow not found") {
		return
	}

	h.start(w, r, wf)
}

// start запускает run workflow согласно ?wait.
func (h *Handler) start(w http.ResponseWriter, r *http.Request, wf *domain.Workflow) {
	wait, err := parseBool(r, "wait")
	if err != nil {
		BadRequest(w, "invalid wait parameter")
		return
	}

	if wait {
		run, err := h.orchestrator.ExecuteWorkflow(r.Context(), wf, nil)
		if handleEngineError(w, h.logger, err) {
			return
		}
		Success(w, RunFromDomain(run))
		return
	}

	run, err := h.orchestrator.Submit(r.Context(), wf)
	if handleEngineError(w, h.logger, err) {
		return
	}
	Accepted(w, RunFromDomain(run))
}

// ListWorkflowRuns возвращает историю run workflow, новые первыми.
// GET /api/v1/workflows/{id}/runs?limit=N
func (h *Handler) ListWorkflowRuns(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "invalid workflow id")
	if !ok {
		return
	}

	limit, err := parseLimit(r)
	if err != nil {
		BadRequest(w, "invalid limit")
		return
	}

	if _, err := h.storage.GetWorkflow(r.Context(), id); HandleRepoError(w, h.logger, err, "workflow not found") {
		return
	}

	runs, err := h.storage.History(r.Context(), repo.HistoryFilter{WorkflowID: id, Limit: limit})
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	h.listRuns(w, runs)
}

// ListRuns возвращает историю run по имени workflow.
// GET /api/v1/runs?workflow=NAME&limit=N
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("workflow")
	if name == "" {
		BadRequest(w, "workflow query parameter is required")
		return
	}

	limit, err := parseLimit(r)
	if err != nil {
		BadRequest(w, "invalid limit")
		return
	}

	runs, err := h.storage.History(r.Context(), repo.HistoryFilter{WorkflowName: name, Limit: limit})
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	h.listRuns(w, runs)
}

func (h *Handler) listRuns(w http.ResponseWriter, runs []*domain.Run) {
	result := make([]RunSummary, len(runs))
	for i, run := range runs {
		result[i] = RunSummaryFromDomain(run)
	}
	List(w, result, len(result))
}

// GetRun возвращает run с деревом результатов шагов.
// GET /api/v1/runs/{id}
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "invalid run id")
	if !ok {
		return
	}

	run, err := h.storage.GetRun(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "run not found") {
		return
	}

	Success(w, RunFromDomain(run))
}

// CancelRun отменяет run.
// POST /api/v1/runs/{id}/cancel
func (h *Handler) CancelRun(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "invalid run id")
	if !ok {
		return
	}

	cancelled, err := h.orchestrator.CancelExecution(r.Context(), id)
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}

	if !cancelled {
		// Неизвестный run — 404, завершённый — 422
		_, err := h.storage.GetRun(r.Context(), id)
		if HandleRepoError(w, h.logger, err, "run not found") {
			return
		}
		InvalidState(w, "run is already finished")
		return
	}

	Success(w, CancelResponse{RunID: id, Cancelled: true})
}

// parseLimit читает ?limit. Отсутствие — 0 (лимит хранилища по умолчанию).
func parseLimit(r *http.Request) (int, error) {
	s := r.URL.Query().Get("limit")
	if s == "" {
		return 0, nil
	}

	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, strconv.ErrRange
	}
	return n, nil
}

func parseBool(r *http.Request, key string) (bool, error) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return false, nil
	}
	return strconv.ParseBool(s)
}
