package domain

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// WorkflowKind — тип workflow.
type WorkflowKind string

// WorkflowKindStandard — единственный поддерживаемый тип.
const WorkflowKindStandard WorkflowKind = "standard"

// IsKnown проверяет, поддерживается ли тип workflow.
func (k WorkflowKind) IsKnown() bool {
	return k == WorkflowKindStandard
}

// Ключи параметров workflow, которые читает движок.
const (
	ParamTimeoutSeconds = "timeout_seconds"
	ParamEndpoint       = "endpoint"
	ParamSchedule       = "schedule"
)

// MaxTimeoutSeconds — наибольший таймаут в секундах, представимый в time.Duration.
const MaxTimeoutSeconds = math.MaxInt64 / int64(time.Second)

// ErrTimeoutTooLarge — таймаут не помещается в time.Duration.
var ErrTimeoutTooLarge = errors.New("timeout is too large")

// TimeoutDuration переводит таймаут в секундах в time.Duration.
func TimeoutDuration(sec int64) (time.Duration, error) {
	if sec > MaxTimeoutSeconds {
		return 0, fmt.Errorf("%w: %d seconds, max %d", ErrTimeoutTooLarge, sec, MaxTimeoutSeconds)
	}
	return time.Duration(sec) * time.Second, nil
}

// Workflow — пользовательское определение рабочего процесса.
//
// Workflow — дерево шагов. Корневые шаги всегда выполняются последовательно,
// вложенные — согласно типу контейнера.
type Workflow struct {
	// ID — уникальный идентификатор workflow.
	ID uuid.UUID `json:"id"`

	// Name — имя workflow (например, "sync-orders").
	Name string `json:"name"`

	// Kind — тип workflow.
	Kind WorkflowKind `json:"kind"`

	// Params — параметры workflow (timeout_seconds, endpoint, schedule, ...).
	Params Params `json:"params,omitempty"`

	// Steps — корневые шаги.
	Steps []Step `json:"steps"`

	// CreatedAt/UpdatedAt не отдаются внешним клиентам.
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// RunTimeout возвращает таймаут run. Ноль — без таймаута.
func (w *Workflow) RunTimeout() (time.Duration, error) {
	sec, err := w.Params.IntOr(ParamTimeoutSeconds, 0)
	if err != nil {
		return 0, err
	}
	if sec <= 0 {
		return 0, nil
	}
	return TimeoutDuration(sec)
}

// Endpoint возвращает путь триггера или пустую строку.
func (w *Workflow) Endpoint() string {
	v, ok := w.Params.Get(ParamEndpoint)
	if !ok {
		return ""
	}
	s, _ := v.AsString()
	return s
}

// Schedule возвращает cron-выражение или пустую строку.
// Движок расписание не исполняет.
func (w *Workflow) Schedule() string {
	v, ok := w.Params.Get(ParamSchedule)
	if !ok {
		return ""
	}
	s, _ := v.AsString()
	return s
}

// FindStep ищет шаг по ID во всём дереве.
func (w *Workflow) FindStep(id string) (*Step, bool) {
	var find func(steps []Step) (*Step, bool)
	find = func(steps []Step) (*Step, bool) {
		for i := range steps {
			if steps[i].ID == id {
				return &steps[i], true
			}
			if s, ok := find(steps[i].Steps); ok {
				return s, true
			}
		}
		return nil, false
	}
	return find(w.Steps)
}

// Clone возвращает глубокую копию workflow.
func (w *Workflow) Clone() *Workflow {
	if w == nil {
		return nil
	}
	c := *w
	c.Params = w.Params.Clone()
	c.Steps = cloneSteps(w.Steps)
	return &c
}
