package engine

import (
	"fmt"
	"strings"

	"github.com/shaiso/Cascade/internal/domain"
)

// MaxNameLength — максимальная длина имени workflow и шага.
const MaxNameLength = 128

// Validator проверяет структуру workflow.
type Validator struct{}

// NewValidator создаёт Validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate возвращает список проблем; пустой список — workflow корректен.
func (v *Validator) Validate(wf *domain.Workflow) []string {
	return Validate(wf)
}

// Validate возвращает человекочитаемые сообщения обо всех проблемах workflow.
func Validate(wf *domain.Workflow) []string {
	errs := Check(wf)
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return msgs
}

// Check выполняет полную валидацию workflow и собирает все ошибки.
//
// Проверяет:
// - Имя и тип workflow
// - Наличие корневых шагов
// - Параметры workflow (timeout_seconds, endpoint, schedule)
// - ID, имя и тип каждого шага, уникальность ID
// - Обязательные параметры leaf-шагов
// - Наличие детей у контейнеров и их отсутствие у leaf-шагов
//
// Неизвестные типы шагов не отклоняются: их отклоняет диспетчер при запуске.
func Check(wf *domain.Workflow) []*ValidationError {
	if wf == nil {
		return []*ValidationError{NewValidationError("", "steps", "workflow is nil", ErrEmptySteps)}
	}

	c := &checker{seen: make(map[string]bool)}

	c.checkWorkflow(wf)

	if len(wf.Steps) == 0 {
		c.add(NewValidationError("", "steps", "workflow must have at least one step", ErrEmptySteps))
	}

	path := make(map[string]bool)
	for i := range wf.Steps {
		c.checkStep(&wf.Steps[i], path)
	}

	return c.errs
}

type checker struct {
	errs []*ValidationError
	seen map[string]bool
}

func (c *checker) add(err *ValidationError) {
	c.errs = append(c.errs, err)
}

func (c *checker) checkWorkflow(wf *domain.Workflow) {
	switch {
	case strings.TrimSpace(wf.Name) == "":
		c.add(NewValidationError("", "name", "workflow name is required", ErrEmptyName))
	case len(wf.Name) > MaxNameLength:
		c.add(NewValidationError("", "name",
			fmt.Sprintf("workflow name exceeds %d characters", MaxNameLength), ErrNameTooLong))
	}

	switch {
	case wf.Kind == "":
		c.add(NewValidationError("", "kind", "workflow kind is required", ErrUnknownKind))
	case !wf.Kind.IsKnown():
		c.add(NewValidationError("", "kind",
			fmt.Sprintf("unknown workflow kind: %s", wf.Kind), ErrUnknownKind))
	}

	if wf.Params.Has(domain.ParamTimeoutSeconds) {
		c.checkTimeout("", wf.Params, domain.ParamTimeoutSeconds)
	}

	if wf.Params.Has(domain.ParamEndpoint) {
		endpoint, err := wf.Params.String(domain.ParamEndpoint)
		switch {
		case err != nil:
			c.add(NewValidationError("", domain.ParamEndpoint, err.Error(), ErrInvalidParam))
		case !strings.HasPrefix(endpoint, "/"):
			c.add(NewValidationError("", domain.ParamEndpoint,
				fmt.Sprintf("endpoint must start with '/': %q", endpoint), ErrInvalidParam))
		}
	}

	if wf.Params.Has(domain.ParamSchedule) {
		expr, err := wf.Params.String(domain.ParamSchedule)
		if err == nil {
			err = ValidateSchedule(expr)
		}
		if err != nil {
			c.add(NewValidationError("", domain.ParamSchedule, err.Error(), ErrInvalidParam))
		}
	}
}

// checkStep валидирует шаг и рекурсивно его детей.
// path — ID шагов на пути от корня: повтор на пути отчитывает DetectCycles.
func (c *checker) checkStep(step *domain.Step, path map[string]bool) {
	if step.ID == "" {
		c.add(NewValidationError("", "id", "step has empty ID", ErrEmptyStepID))
	} else if c.seen[step.ID] && !path[step.ID] {
		c.add(NewValidationError(step.ID, "id",
			fmt.Sprintf("duplicate step ID: %s", step.ID), ErrDuplicateStepID))
	}
	c.seen[step.ID] = true

	if len(step.Name) > MaxNameLength {
		c.add(NewValidationError(step.ID, "name",
			fmt.Sprintf("step name exceeds %d characters", MaxNameLength), ErrNameTooLong))
	}

	if step.Kind == "" {
		c.add(NewValidationError(step.ID, "kind", "step has empty kind", ErrEmptyStepKind))
	}

	if step.Params.Has("timeout_seconds") {
		c.checkTimeout(step.ID, step.Params, "timeout_seconds")
	}

	switch {
	case step.Kind == domain.StepKindHTTP:
		c.checkRequiredString(step, "url")
		c.checkOptional(step, "method", func(p domain.Params) error { _, err := p.String("method"); return err })
		c.checkOptional(step, "headers", func(p domain.Params) error { _, err := p.StringMap("headers"); return err })
		c.checkOptional(step, "allowed_status", func(p domain.Params) error { _, err := p.IntList("allowed_status"); return err })
	case step.Kind.IsProcess():
		c.checkRequiredString(step, "command")
		c.checkOptional(step, "args", func(p domain.Params) error { _, err := p.StringList("args"); return err })
		c.checkOptional(step, "working_dir", func(p domain.Params) error { _, err := p.String("working_dir"); return err })
	}

	if step.Kind.IsLeaf() {
		if len(step.Steps) > 0 {
			c.add(NewValidationError(step.ID, "steps",
				fmt.Sprintf("%s step must not have children", step.Kind), ErrLeafWithChildren))
		}
		return
	}

	if step.Kind.IsContainer() && len(step.Steps) == 0 {
		c.add(NewValidationError(step.ID, "steps",
			fmt.Sprintf("%s step must have at least one child", step.Kind), ErrEmptyContainer))
	}

	if step.ID != "" {
		path[step.ID] = true
		defer delete(path, step.ID)
	}
	for i := range step.Steps {
		c.checkStep(&step.Steps[i], path)
	}
}

func (c *checker) checkRequiredString(step *domain.Step, key string) {
	s, err := step.Params.String(key)
	switch {
	case err != nil && !step.Params.Has(key):
		c.add(NewValidationError(step.ID, key,
			fmt.Sprintf("%s step requires %q", step.Kind, key), ErrMissingParam))
	case err != nil:
		c.add(NewValidationError(step.ID, key, err.Error(), ErrInvalidParam))
	case strings.TrimSpace(s) == "":
		c.add(NewValidationError(step.ID, key,
			fmt.Sprintf("%q must not be empty", key), ErrMissingParam))
	}
}

func (c *checker) checkOptional(step *domain.Step, key string, read func(domain.Params) error) {
	if !step.Params.Has(key) {
		return
	}
	if err := read(step.Params); err != nil {
		c.add(NewValidationError(step.ID, key, err.Error(), ErrInvalidParam))
	}
}

func (c *checker) checkTimeout(stepID string, p domain.Params, key string) {
	n, err := p.Int(key)
	if err != nil {
		c.add(NewValidationError(stepID, key, err.Error(), ErrInvalidParam))
		return
	}
	if n <= 0 {
		c.add(NewValidationError(stepID, key,
			fmt.Sprintf("%s must be positive, got %d", key, n), ErrInvalidParam))
		return
	}
	if _, err := domain.TimeoutDuration(n); err != nil {
		c.add(NewValidationError(stepID, key, err.Error(), ErrInvalidParam))
	}
}
