package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shaiso/Cascade/internal/domain"
	"github.com/shaiso/Cascade/internal/steps"
	"github.com/shaiso/Cascade/internal/telemetry"
)

// ProcessStep выполняет шаг (вместе с поддеревом) в scope ctx
// и возвращает его результат в финальном состоянии.
//
// Состояние результата:
//   - COMPLETED — шаг выполнен без ошибки
//   - состояние дочернего шага — контейнер остановлен из-за него
//   - CANCELLED — scope отменён во время выполнения
//   - FAILED — любая другая ошибка (включая панику исполнителя)
//
// wf передаётся только как контекст обхода; шаг на него не ссылается.
func (o *Orchestrator) ProcessStep(ctx context.Context, wf *domain.Workflow, step *domain.Step) *domain.StepOutcome {
	outcome := domain.NewStepOutcome(step)
	logger := telemetry.WithStep(telemetry.FromContext(ctx), step.ID, string(step.Kind))

	logger.Debug("step started")

	result, err := o.dispatch(ctx, wf, step, outcome)

	var childErr *ChildError
	switch {
	case err == nil:
		outcome.Result = result
		outcome.Finish(domain.StateCompleted, "")
	case errors.As(err, &childErr):
		outcome.Finish(childErr.State, childErr.Message)
	case ctx.Err() != nil:
		outcome.Finish(domain.StateCancelled, err.Error())
	default:
		outcome.Finish(domain.StateFailed, err.Error())
	}

	o.metrics.StepFinished(string(step.Kind), outcome.State.String(), outcome.Duration())

	if outcome.State == domain.StateCompleted {
		logger.Debug("step finished", "state", outcome.State, "duration", outcome.Duration())
	} else {
		logger.Info("step finished",
			"state", outcome.State,
			"duration", outcome.Duration(),
			"error", outcome.Error,
		)
	}
	return outcome
}

// dispatch выбирает обработку по типу шага. Паника внутри
// превращается в ошибку.
func (o *Orchestrator) dispatch(ctx context.Context, wf *domain.Workflow, step *domain.Step, outcome *domain.StepOutcome) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			telemetry.FromContext(ctx).Error("step panicked", "step_id", step.ID, "panic", r)
			result, err = nil, fmt.Errorf("%w: %v", ErrStepPanic, r)
		}
	}()

	switch step.Kind {
	case domain.StepKindHTTP, domain.StepKindBatch, domain.StepKindExecutable:
		return o.runLeaf(ctx, step)
	case domain.StepKindParallel:
		return nil, o.runParallel(ctx, wf, step, outcome)
	case domain.StepKindSerial:
		return nil, o.runSerial(ctx, wf, step, outcome)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStepKind, step.Kind)
	}
}

// runLeaf вызывает исполнитель leaf-шага.
func (o *Orchestrator) runLeaf(ctx context.Context, step *domain.Step) (any, error) {
	exec, err := o.registry.Get(step.Kind)
	if err != nil {
		return nil, err
	}
	return exec.Execute(ctx, step)
}

// runParallel выполняет дочерние шаги конкурентно и ждёт все.
//
// Ошибка одного дочернего шага не прерывает остальные.
// Контейнер FAILED, если упал хотя бы один дочерний шаг;
// иначе CANCELLED, если scope отменён или отменён дочерний шаг.
func (o *Orchestrator) runParallel(ctx context.Context, wf *domain.Workflow, step *domain.Step, outcome *domain.StepOutcome) error {
	var wg sync.WaitGroup
	for i := range step.Steps {
		child := &step.Steps[i]
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome.AppendChild(o.ProcessStep(ctx, wf, child))
		}()
	}
	wg.Wait()

	var failed, cancelled *domain.StepOutcome
	for _, c := range outcome.ChildOutcomes() {
		switch c.State {
		case domain.StateFailed:
			if failed == nil {
				failed = c
			}
		case domain.StateCancelled:
			if cancelled == nil {
				cancelled = c
			}
		}
	}

	switch {
	case failed != nil:
		return &ChildError{StepID: failed.StepID, State: domain.StateFailed, Message: failed.Error}
	case cancelled != nil:
		return &ChildError{StepID: cancelled.StepID, State: domain.StateCancelled, Message: cancelled.Error}
	case ctx.Err() != nil:
		return scopeError(ctx)
	}
	return nil
}

// runSerial выполняет дочерние шаги по порядку.
// Останавливается на первом FAILED или CANCELLED; оставшиеся шаги
// не запускаются и результатов не получают.
func (o *Orchestrator) runSerial(ctx context.Context, wf *domain.Workflow, step *domain.Step, outcome *domain.StepOutcome) error {
	for i := range step.Steps {
		if ctx.Err() != nil {
			return scopeError(ctx)
		}

		child := o.ProcessStep(ctx, wf, &step.Steps[i])
		outcome.AppendChild(child)

		if child.State.IsStopping() {
			return &ChildError{StepID: child.StepID, State: child.State, Message: child.Error}
		}
	}
	return nil
}

// scopeError — ошибка отмены шага с причиной отмены scope.
func scopeError(ctx context.Context) error {
	return fmt.Errorf("%w: %w", steps.ErrStepCancelled, context.Cause(ctx))
}
