package api

import (
	"net/http"
)

// TriggerHook запускает workflow, чей параметр endpoint совпадает
// с путём после /hooks. Поддерживает ?wait=true как StartRun.
// POST /hooks/{path...}
func (h *Handler) TriggerHook(w http.ResponseWriter, r *http.Request) {
	endpoint := "/" + r.PathValue("path")

	wf, err := h.storage.GetWorkflowByEndpoint(r.Context(), endpoint)
	if HandleRepoError(w, h.logger, err, "no workflow for endpoint "+endpoint) {
		return
	}

	h.logger.Info("endpoint triggered", "endpoint", endpoint, "workflow_id", wf.ID)
	h.start(w, r, wf)
}
