package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Cascade/internal/domain"
	"github.com/shaiso/Cascade/internal/engine"
)

// WorkflowResponse — workflow с серверными полями.
type WorkflowResponse struct {
	ID       uuid.UUID           `json:"id"`
	Name     string              `json:"name"`
	Kind     domain.WorkflowKind `json:"kind"`
	Params   domain.Params       `json:"params,omitempty"`
	Steps    []domain.Step       `json:"steps"`
	Endpoint string              `json:"endpoint,omitempty"`
	Schedule string              `json:"schedule,omitempty"`

	// NextRunAt — ближайшее время по расписанию (информативно, движок
	// расписание не исполняет).
	NextRunAt *time.Time `json:"next_run_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// WorkflowFromDomain конвертирует domain.Workflow в WorkflowResponse.
func WorkflowFromDomain(wf *domain.Workflow, now time.Time) WorkflowResponse {
	resp := WorkflowResponse{
		ID:        wf.ID,
		Name:      wf.Name,
		Kind:      wf.Kind,
		Params:    wf.Params,
		Steps:     wf.Steps,
		Endpoint:  wf.Endpoint(),
		Schedule:  wf.Schedule(),
		CreatedAt: wf.CreatedAt,
		UpdatedAt: wf.UpdatedAt,
	}

	if resp.Schedule != "" {
		if next, err := engine.NextScheduled(resp.Schedule, now); err == nil {
			resp.NextRunAt = &next
		}
	}
	return resp
}

// WorkflowSummary — строка списка workflow.
type WorkflowSummary struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Steps     int       `json:"steps"`
	Endpoint  string    `json:"endpoint,omitempty"`
	Schedule  string    `json:"schedule,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// WorkflowSummaryFromDomain конвертирует domain.Workflow в WorkflowSummary.
func WorkflowSummaryFromDomain(wf *domain.Workflow) WorkflowSummary {
	return WorkflowSummary{
		ID:        wf.ID,
		Name:      wf.Name,
		Steps:     len(wf.Steps),
		Endpoint:  wf.Endpoint(),
		Schedule:  wf.Schedule(),
		UpdatedAt: wf.UpdatedAt,
	}
}

// ValidateResponse — результат проверки workflow.
type ValidateResponse struct {
	Valid    bool     `json:"valid"`
	Problems []string `json:"problems,omitempty"`
}

// RunResponse — run с вычисляемой длительностью.
type RunResponse struct {
	*domain.Run
	DurationMS int64 `json:"duration_ms"`
}

// RunFromDomain конвертирует domain.Run в RunResponse.
func RunFromDomain(run *domain.Run) RunResponse {
	return RunResponse{Run: run, DurationMS: run.Duration().Milliseconds()}
}

// RunSummary — строка истории run (без дерева шагов).
type RunSummary struct {
	ID           uuid.UUID             `json:"id"`
	WorkflowID   uuid.UUID             `json:"workflow_id"`
	WorkflowName string                `json:"workflow_name"`
	State        domain.ExecutionState `json:"state"`
	Error        string                `json:"error,omitempty"`
	DurationMS   int64                 `json:"duration_ms"`
	CreatedAt    time.Time             `json:"created_at"`
}

// RunSummaryFromDomain конвертирует domain.Run в RunSummary.
func RunSummaryFromDomain(run *domain.Run) RunSummary {
	return RunSummary{
		ID:           run.ID,
		WorkflowID:   run.WorkflowID,
		WorkflowName: run.WorkflowName,
		State:        run.State,
		Error:        run.Error,
		DurationMS:   run.Duration().Milliseconds(),
		CreatedAt:    run.CreatedAt,
	}
}

// CancelResponse — результат отмены run.
type CancelResponse struct {
	RunID     uuid.UUID `json:"run_id"`
	Cancelled bool      `json:"cancelled"`
}
