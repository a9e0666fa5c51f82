package domain

import (
	"sync"
	"time"
)

// StepOutcome — результат выполнения одного шага.
//
// Для leaf-шагов заполняется Result, для контейнеров — Children.
// Дочерние результаты параллельного контейнера добавляются конкурентно,
// поэтому Children изменяется только через AppendChild.
type StepOutcome struct {
	StepID   string         `json:"step_id"`
	StepName string         `json:"step_name,omitempty"`
	Kind     StepKind       `json:"kind"`
	State    ExecutionState `json:"state"`

	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// Result — результат leaf-шага (тело ответа, вывод процесса).
	Result any `json:"result,omitempty"`

	// Children — результаты дочерних шагов контейнера.
	Children []*StepOutcome `json:"children,omitempty"`

	// Error — сообщение об ошибке.
	Error string `json:"error,omitempty"`

	// RetryCount зарезервирован, всегда 0.
	RetryCount int `json:"retry_count"`

	mu sync.Mutex
}

// NewStepOutcome создаёт результат в состоянии RUNNING.
func NewStepOutcome(step *Step) *StepOutcome {
	return &StepOutcome{
		StepID:    step.ID,
		StepName:  step.Name,
		Kind:      step.Kind,
		State:     StateRunning,
		StartedAt: time.Now(),
	}
}

// AppendChild добавляет результат дочернего шага. Безопасен для
// конкурентного вызова.
func (o *StepOutcome) AppendChild(child *StepOutcome) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Children = append(o.Children, child)
}

// ChildOutcomes возвращает копию списка дочерних результатов.
func (o *StepOutcome) ChildOutcomes() []*StepOutcome {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*StepOutcome, len(o.Children))
	copy(out, o.Children)
	return out
}

// Finish выставляет финальное состояние и время завершения.
func (o *StepOutcome) Finish(state ExecutionState, errMsg string) {
	now := time.Now()
	o.State = state
	o.Error = errMsg
	o.FinishedAt = &now
}

// Duration возвращает продолжительность шага.
func (o *StepOutcome) Duration() time.Duration {
	if o.FinishedAt == nil {
		return 0
	}
	return o.FinishedAt.Sub(o.StartedAt)
}

// Find ищет результат шага по ID в поддереве.
func (o *StepOutcome) Find(stepID string) (*StepOutcome, bool) {
	if o.StepID == stepID {
		return o, true
	}
	for _, c := range o.ChildOutcomes() {
		if found, ok := c.Find(stepID); ok {
			return found, true
		}
	}
	return nil, false
}

// Clone возвращает глубокую копию результата.
// Result копируется по ссылке: после завершения шага он не изменяется.
func (o *StepOutcome) Clone() *StepOutcome {
	if o == nil {
		return nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	c := &StepOutcome{
		StepID:     o.StepID,
		StepName:   o.StepName,
		Kind:       o.Kind,
		State:      o.State,
		StartedAt:  o.StartedAt,
		Result:     o.Result,
		Error:      o.Error,
		RetryCount: o.RetryCount,
	}
	if o.FinishedAt != nil {
		t := *o.FinishedAt
		c.FinishedAt = &t
	}
	if o.Children != nil {
		c.Children = make([]*StepOutcome, len(o.Children))
		for i, child := range o.Children {
			c.Children[i] = child.Clone()
		}
	}
	return c
}
