package steps

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/shaiso/Cascade/internal/domain"
)

// Ошибки шагов.
var (
	// ErrStepNotFound — для типа шага не зарегистрирован исполнитель.
	ErrStepNotFound = errors.New("step executor not found")

	// ErrInvalidConfig — невалидные параметры шага.
	ErrInvalidConfig = errors.New("invalid step config")

	// ErrStepTimeout — шаг превысил собственный таймаут.
	ErrStepTimeout = errors.New("step execution timeout")

	// ErrStepCancelled — выполнение шага отменено через контекст run.
	ErrStepCancelled = errors.New("step execution cancelled")

	// ErrHTTPRequest — HTTP запрос не удалось выполнить.
	ErrHTTPRequest = errors.New("http request failed")

	// ErrUnexpectedStatus — код ответа не входит в allowed_status.
	ErrUnexpectedStatus = errors.New("unexpected http status")

	// ErrProcessStart — процесс не удалось запустить.
	ErrProcessStart = errors.New("process start failed")

	// ErrProcessFailed — процесс завершился с ненулевым кодом.
	ErrProcessFailed = errors.New("process exited with non-zero code")
)

// Общие ключи параметров шагов.
const (
	paramTimeoutSeconds = "timeout_seconds"

	defaultStepTimeout = 60 * time.Second
)

// Executor — исполнитель leaf-шага.
//
// Исполнитель не хранит состояние между вызовами. Отмена ctx должна
// прерывать выполнение и возвращать ErrStepCancelled, собственный
// таймаут шага — ErrStepTimeout.
type Executor interface {
	Execute(ctx context.Context, step *domain.Step) (any, error)
}

// ExecutorFunc — адаптер функции к Executor.
type ExecutorFunc func(ctx context.Context, step *domain.Step) (any, error)

// Execute вызывает f.
func (f ExecutorFunc) Execute(ctx context.Context, step *domain.Step) (any, error) {
	return f(ctx, step)
}

// stepTimeout читает timeout_seconds шага.
func stepTimeout(step *domain.Step) (time.Duration, error) {
	sec, err := step.Params.IntOr(paramTimeoutSeconds, 0)
	if err != nil {
		return 0, configError(step, err)
	}
	if sec <= 0 {
		return defaultStepTimeout, nil
	}
	d, err := domain.TimeoutDuration(sec)
	if err != nil {
		return 0, configError(step, err)
	}
	return d, nil
}

// interruption определяет, чем было прервано выполнение: отменой run
// или собственным таймаутом шага. Возвращает nil, если ни тем, ни другим.
func interruption(parent, stepCtx context.Context, step *domain.Step, timeout time.Duration) error {
	if parent.Err() != nil {
		return fmt.Errorf("%w: %s: %v", ErrStepCancelled, step.ID, context.Cause(parent))
	}
	if stepCtx.Err() != nil {
		return fmt.Errorf("%w: %s: exceeded %s", ErrStepTimeout, step.ID, timeout)
	}
	return nil
}

func configError(step *domain.Step, err error) error {
	return fmt.Errorf("%w: %s (%s): %w", ErrInvalidConfig, step.ID, step.Kind, err)
}

// truncate обрезает строку до maxLen байт, не разрезая руны.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	// Обрезаем по границе руны
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
