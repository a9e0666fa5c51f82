package domain

import (
	"time"

	"github.com/google/uuid"
)

// Run — одна попытка выполнения workflow.
//
// Run создаётся когда:
// - Пользователь запускает workflow через API/CLI
// - Срабатывает триггер по endpoint
// - Вызывающий код передаёт workflow напрямую в движок
//
// Изменяется только движком; после перехода в финальное состояние не меняется.
type Run struct {
	// ID — идентификатор run (не совпадает с ID workflow).
	ID uuid.UUID `json:"id"`

	// WorkflowID — выполняемый workflow.
	WorkflowID uuid.UUID `json:"workflow_id"`

	// WorkflowName — имя workflow на момент запуска.
	WorkflowName string `json:"workflow_name"`

	// State — текущее состояние.
	State ExecutionState `json:"state"`

	// StartedAt — время перехода в RUNNING. Nil, пока run не начался.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// FinishedAt — время перехода в финальное состояние.
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// Error — сообщение об ошибке для FAILED и CANCELLED.
	Error string `json:"error,omitempty"`

	// Steps — результаты корневых шагов в порядке выполнения.
	Steps []*StepOutcome `json:"steps,omitempty"`

	// CreatedAt — время создания run.
	CreatedAt time.Time `json:"created_at"`
}

// NewRun создаёт run в состоянии PENDING.
func NewRun(wf *Workflow) *Run {
	return &Run{
		ID:           uuid.New(),
		WorkflowID:   wf.ID,
		WorkflowName: wf.Name,
		State:        StatePending,
		CreatedAt:    time.Now(),
	}
}

// Duration возвращает продолжительность выполнения.
// Возвращает 0, если run ещё не завершён.
func (r *Run) Duration() time.Duration {
	if r.StartedAt == nil || r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(*r.StartedAt)
}

// IsFinished возвращает true, если run завершён (в любом состоянии).
func (r *Run) IsFinished() bool {
	return r.State.IsTerminal()
}

// MarkRunning переводит run в RUNNING.
func (r *Run) MarkRunning() {
	now := time.Now()
	r.State = StateRunning
	r.StartedAt = &now
}

// MarkCompleted переводит run в COMPLETED.
func (r *Run) MarkCompleted() {
	r.finish(StateCompleted, "")
}

// MarkFailed переводит run в FAILED с ошибкой.
func (r *Run) MarkFailed(err string) {
	r.finish(StateFailed, err)
}

// MarkCancelled переводит run в CANCELLED.
func (r *Run) MarkCancelled(reason string) {
	r.finish(StateCancelled, reason)
}

func (r *Run) finish(state ExecutionState, msg string) {
	now := time.Now()
	r.State = state
	r.FinishedAt = &now
	r.Error = msg
}

// AppendStep добавляет результат корневого шага.
func (r *Run) AppendStep(o *StepOutcome) {
	r.Steps = append(r.Steps, o)
}

// Clone возвращает глубокую копию run.
func (r *Run) Clone() *Run {
	if r == nil {
		return nil
	}
	c := *r
	if r.StartedAt != nil {
		t := *r.StartedAt
		c.StartedAt = &t
	}
	if r.FinishedAt != nil {
		t := *r.FinishedAt
		c.FinishedAt = &t
	}
	if r.Steps != nil {
		c.Steps = make([]*StepOutcome, len(r.Steps))
		for i, o := range r.Steps {
			c.Steps[i] = o.Clone()
		}
	}
	return &c
}
