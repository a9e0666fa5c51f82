package engine

import (
	"errors"
	"strings"
)

// ErrInvalidWorkflow — workflow не прошёл валидацию.
var ErrInvalidWorkflow = errors.New("invalid workflow")

// Ошибки отдельных проверок.
var (
	// ErrEmptyName — у workflow нет имени.
	ErrEmptyName = errors.New("workflow has empty name")

	// ErrNameTooLong — имя длиннее MaxNameLength.
	ErrNameTooLong = errors.New("name is too long")

	// ErrUnknownKind — неизвестный тип workflow.
	ErrUnknownKind = errors.New("unknown workflow kind")

	// ErrEmptySteps — workflow не содержит шагов.
	ErrEmptySteps = errors.New("workflow has no steps")

	// ErrEmptyStepID — шаг не имеет ID.
	ErrEmptyStepID = errors.New("step has empty ID")

	// ErrDuplicateStepID — несколько шагов с одинаковым ID.
	ErrDuplicateStepID = errors.New("duplicate step ID")

	// ErrEmptyStepKind — шаг не имеет типа.
	ErrEmptyStepKind = errors.New("step has empty kind")

	// ErrEmptyContainer — контейнер без дочерних шагов.
	ErrEmptyContainer = errors.New("container step has no children")

	// ErrLeafWithChildren — leaf-шаг объявляет дочерние шаги.
	ErrLeafWithChildren = errors.New("leaf step must not have children")

	// ErrMissingParam — отсутствует обязательный параметр.
	ErrMissingParam = errors.New("missing required parameter")

	// ErrInvalidParam — параметр имеет неверный тип или значение.
	ErrInvalidParam = errors.New("invalid parameter")

	// ErrCyclicDependency — шаг повторно встречается на пути от корня.
	ErrCyclicDependency = errors.New("cyclic dependency detected")
)

// ValidationError — одна проблема валидации с контекстом.
type ValidationError struct {
	StepID  string // ID шага, где произошла ошибка
	Field   string // поле, вызвавшее ошибку
	Message string // описание ошибки
	Err     error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	if e.StepID != "" {
		return "step " + e.StepID + ": " + e.Message
	}
	return e.Message
}

// Unwrap возвращает базовую ошибку.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError создаёт новую ошибку валидации.
func NewValidationError(stepID, field, message string, err error) *ValidationError {
	return &ValidationError{
		StepID:  stepID,
		Field:   field,
		Message: message,
		Err:     err,
	}
}

// WorkflowError — отказ в запуске: все найденные проблемы валидации.
type WorkflowError struct {
	Problems []string
}

// NewWorkflowError создаёт WorkflowError.
func NewWorkflowError(problems []string) *WorkflowError {
	return &WorkflowError{Problems: problems}
}

// Error реализует интерфейс error.
func (e *WorkflowError) Error() string {
	return ErrInvalidWorkflow.Error() + ": " + strings.Join(e.Problems, "; ")
}

// Unwrap возвращает ErrInvalidWorkflow.
func (e *WorkflowError) Unwrap() error {
	return ErrInvalidWorkflow
}
