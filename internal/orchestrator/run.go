package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shaiso/Cascade/internal/domain"
	"github.com/shaiso/Cascade/internal/engine"
	"github.com/shaiso/Cascade/internal/repo"
	"github.com/shaiso/Cascade/internal/telemetry"
)

// ExecuteWorkflow выполняет workflow синхронно и возвращает финальный run.
//
// runID — ранее созданный run в состоянии PENDING; nil — создать новый.
// Отмена ctx отменяет run. Ошибка возвращается только если run не начался:
// невалидный workflow (*engine.WorkflowError), неизвестный или уже
// запущенный run, ошибка хранилища. Начатый run всегда завершается
// в финальном состоянии.
func (o *Orchestrator) ExecuteWorkflow(ctx context.Context, wf *domain.Workflow, runID *uuid.UUID) (*domain.Run, error) {
	run, err := o.prepare(ctx, wf, runID)
	if err != nil {
		return nil, err
	}

	scope, release, err := o.openScope(ctx, wf, run.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	return o.execute(scope, wf, run), nil
}

// prepare валидирует workflow, сохраняет его при необходимости
// и находит или создаёт run.
func (o *Orchestrator) prepare(ctx context.Context, wf *domain.Workflow, runID *uuid.UUID) (*domain.Run, error) {
	if problems := o.ValidateWorkflow(wf); len(problems) > 0 {
		return nil, engine.NewWorkflowError(problems)
	}

	if err := o.ensureStored(ctx, wf); err != nil {
		return nil, err
	}

	if runID == nil {
		run, err := o.storage.CreateRun(ctx, wf.ID)
		if err != nil {
			return nil, fmt.Errorf("create run: %w", err)
		}
		return run, nil
	}

	run, err := o.storage.GetRun(ctx, *runID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, *runID)
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	if run.WorkflowID != wf.ID {
		return nil, fmt.Errorf("%w: run %s, workflow %s", ErrRunWorkflowMismatch, run.ID, wf.ID)
	}
	if run.State != domain.StatePending {
		return nil, fmt.Errorf("%w: run %s is %s", ErrRunNotPending, run.ID, run.State)
	}
	return run, nil
}

// ensureStored сохраняет workflow, если хранилище его ещё не знает.
func (o *Orchestrator) ensureStored(ctx context.Context, wf *domain.Workflow) error {
	if wf.ID != uuid.Nil {
		_, err := o.storage.GetWorkflow(ctx, wf.ID)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return fmt.Errorf("get workflow: %w", err)
		}
	}

	if _, err := o.storage.SaveWorkflow(ctx, wf); err != nil {
		return fmt.Errorf("save workflow: %w", err)
	}
	return nil
}

// openScope создаёт scope отмены run и регистрирует его.
// release снимает регистрацию и освобождает ресурсы scope.
func (o *Orchestrator) openScope(parent context.Context, wf *domain.Workflow, runID uuid.UUID) (context.Context, func(), error) {
	timeout, err := wf.RunTimeout()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", engine.ErrInvalidParam, err)
	}

	scope, cancel := context.WithCancelCause(parent)
	stopTimer := func() {}
	if timeout > 0 {
		var timerCancel context.CancelFunc
		scope, timerCancel = context.WithTimeoutCause(scope, timeout, ErrRunTimeout)
		stopTimer = timerCancel
	}

	if err := o.cancels.Register(runID, cancel); err != nil {
		stopTimer()
		cancel(err)
		return nil, nil, err
	}

	release := func() {
		o.cancels.Remove(runID)
		stopTimer()
		cancel(nil)
	}
	return scope, release, nil
}

// execute выполняет корневые шаги и завершает run.
func (o *Orchestrator) execute(scope context.Context, wf *domain.Workflow, run *domain.Run) (result *domain.Run) {
	logger := telemetry.WithWorkflowID(telemetry.WithRunID(o.logger, run.ID.String()), wf.ID.String())
	scope = telemetry.WithLogger(scope, logger)

	// Хранилище не должно отказывать в записи из-за отмены run
	store := context.WithoutCancel(scope)

	run.MarkRunning()
	if err := o.storage.UpdateRun(store, run); err != nil {
		if errors.Is(err, repo.ErrInvalidState) {
			logger.Info("run finished before start")
			final := o.reload(store, run)
			// CancelExecution, отменивший scope, оставляет уведомление
			// выполняющей стороне; без scope он уведомил сам
			if errors.Is(context.Cause(scope), ErrRunCancelled) {
				o.metrics.RunFinished(final.State.String())
				o.notify(store, final)
			}
			return final
		}
		logger.Error("failed to persist run start", "error", err)
	}

	o.metrics.RunStarted()
	defer o.metrics.RunEnded()

	logger.Info("run started", "workflow", wf.Name, "steps", len(wf.Steps))

	defer func() {
		if r := recover(); r != nil {
			logger.Error("run panicked", "panic", r)
			run.MarkFailed(fmt.Sprintf("run panicked: %v", r))
			result = o.finalize(store, run)
		}
	}()

	state, message := o.runRoot(scope, store, wf, run)
	switch state {
	case domain.StateCompleted:
		run.MarkCompleted()
	case domain.StateCancelled:
		run.MarkCancelled(message)
	default:
		run.MarkFailed(message)
	}

	return o.finalize(store, run)
}

// runRoot последовательно выполняет корневые шаги.
// Возвращает итоговое состояние run и сообщение об ошибке.
func (o *Orchestrator) runRoot(scope, store context.Context, wf *domain.Workflow, run *domain.Run) (domain.ExecutionState, string) {
	logger := telemetry.FromContext(scope)

	for i := range wf.Steps {
		if scope.Err() != nil {
			return domain.StateCancelled, cancelReason(scope)
		}

		outcome := o.ProcessStep(scope, wf, &wf.Steps[i])
		run.AppendStep(outcome)

		if err := o.storage.UpdateRun(store, run); err != nil && !errors.Is(err, repo.ErrInvalidState) {
			logger.Warn("failed to persist run progress", "step_id", outcome.StepID, "error", err)
		}

		if outcome.State.IsStopping() {
			if outcome.State == domain.StateCancelled && scope.Err() != nil {
				return domain.StateCancelled, cancelReason(scope)
			}
			return outcome.State, outcome.Error
		}
	}

	return domain.StateCompleted, ""
}

// finalize сохраняет финальное состояние run, уведомляет и учитывает метрики.
//
// Run, отменённый через CancelExecution, сохраняется как CANCELLED
// вместе с результатами шагов. Если сохранить не удалось,
// возвращается сохранённая версия.
func (o *Orchestrator) finalize(store context.Context, run *domain.Run) *domain.Run {
	logger := telemetry.FromContext(store)

	final := run
	if err := o.storage.UpdateRun(store, run); err != nil {
		if errors.Is(err, repo.ErrInvalidState) {
			final = o.reload(store, run)
			if final.State == domain.StateCancelled && run.State != domain.StateCancelled {
				// Отмена опередила завершение шагов
				run.MarkCancelled(final.Error)
				if err := o.storage.UpdateRun(store, run); err == nil {
					final = run
				}
			}
		} else {
			logger.Error("failed to persist run result", "error", err)
		}
	}

	o.metrics.RunFinished(final.State.String())
	o.notify(store, final)

	logger.Info("run finished",
		"state", final.State,
		"duration", final.Duration(),
		"error", final.Error,
	)
	return final
}

// reload возвращает сохранённую версию run; при ошибке — переданный run.
func (o *Orchestrator) reload(ctx context.Context, run *domain.Run) *domain.Run {
	stored, err := o.storage.GetRun(ctx, run.ID)
	if err != nil {
		telemetry.FromContext(ctx).Error("failed to reload run", "error", err)
		return run
	}
	return stored
}

// notify отправляет уведомление о завершении run.
func (o *Orchestrator) notify(ctx context.Context, run *domain.Run) {
	if o.notifier == nil {
		return
	}
	if err := o.notifier.NotifyRunFinished(ctx, run); err != nil {
		telemetry.FromContext(ctx).Warn("failed to notify run finished",
			"run_id", run.ID,
			"error", err,
		)
	}
}

// CancelExecution отменяет run.
//
// Возвращает false, если run неизвестен или уже завершён. Иначе отменяет
// scope run (если он выполняется в этом процессе), переводит run
// в CANCELLED и сохраняет.
func (o *Orchestrator) CancelExecution(ctx context.Context, runID uuid.UUID) (bool, error) {
	run, err := o.storage.GetRun(ctx, runID)
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get run: %w", err)
	}
	if run.IsFinished() {
		return false, nil
	}

	logger := telemetry.WithRunID(o.logger, runID.String())

	signalled := o.cancels.Cancel(runID, ErrRunCancelled)
	if !signalled {
		logger.Warn("no cancellation scope registered for run")
	}

	run.MarkCancelled(ErrRunCancelled.Error())
	if err := o.storage.UpdateRun(ctx, run); err != nil {
		if errors.Is(err, repo.ErrInvalidState) {
			// Run завершился между чтением и записью
			stored := o.reload(ctx, run)
			return stored.State == domain.StateCancelled, nil
		}
		return false, fmt.Errorf("update run: %w", err)
	}

	logger.Info("run cancelled")

	// Выполняющийся run сам сообщит о завершении и допишет
	// результаты шагов в finalize
	if !signalled {
		o.metrics.RunFinished(run.State.String())
		o.notify(ctx, run)
	}
	return true, nil
}

// cancelReason возвращает сообщение о причине отмены scope.
func cancelReason(scope context.Context) string {
	cause := context.Cause(scope)
	if cause == nil {
		return ErrRunCancelled.Error()
	}
	return cause.Error()
}
