package orchestrator

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/shaiso/Cascade/internal/domain"
	"github.com/shaiso/Cascade/internal/engine"
	"github.com/shaiso/Cascade/internal/repo"
	"github.com/shaiso/Cascade/internal/steps"
	"github.com/shaiso/Cascade/internal/telemetry"
)

// Validator — проверка workflow перед запуском.
type Validator interface {
	Validate(wf *domain.Workflow) []string
}

// Notifier получает уведомления о завершённых run.
// Ошибки уведомления логируются и не влияют на run.
type Notifier interface {
	NotifyRunFinished(ctx context.Context, run *domain.Run) error
}

// Orchestrator выполняет workflow.
//
// Orchestrator — центральный компонент системы, который:
//   - Валидирует workflow и создаёт run
//   - Обходит дерево шагов (корневые шаги всегда последовательно)
//   - Вызывает исполнители leaf-шагов и раскрывает контейнеры
//   - Поддерживает отмену run и таймаут run через scope отмены
//   - Сохраняет прогресс и финальное состояние run
type Orchestrator struct {
	storage   repo.Storage
	validator Validator
	registry  *steps.Registry
	notifier  Notifier
	metrics   *telemetry.Metrics
	cancels   *CancelRegistry

	// Lifecycle фоновых run
	logger     *slog.Logger
	baseCtx    context.Context
	cancelFunc context.CancelCauseFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
}

// Config — конфигурация Orchestrator.
type Config struct {
	// Storage — хранилище workflow и run (обязательно).
	Storage repo.Storage

	// Validator — по умолчанию engine.NewValidator().
	Validator Validator

	// Registry — исполнители leaf-шагов, по умолчанию steps.DefaultRegistry().
	Registry *steps.Registry

	// Notifier — уведомления о завершении run (опционально).
	Notifier Notifier

	// Metrics — Prometheus метрики (опционально).
	Metrics *telemetry.Metrics

	// Cancels — реестр scope отмены, по умолчанию новый.
	Cancels *CancelRegistry

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Orchestrator.
func New(cfg Config) *Orchestrator {
	validator := cfg.Validator
	if validator == nil {
		validator = engine.NewValidator()
	}

	registry := cfg.Registry
	if registry == nil {
		registry = steps.DefaultRegistry()
	}

	cancels := cfg.Cancels
	if cancels == nil {
		cancels = NewCancelRegistry()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	baseCtx, cancel := context.WithCancelCause(context.Background())

	return &Orchestrator{
		storage:    cfg.Storage,
		validator:  validator,
		registry:   registry,
		notifier:   cfg.Notifier,
		metrics:    cfg.Metrics,
		cancels:    cancels,
		logger:     logger,
		baseCtx:    baseCtx,
		cancelFunc: cancel,
	}
}

// Storage возвращает хранилище оркестратора.
func (o *Orchestrator) Storage() repo.Storage {
	return o.storage
}

// ValidateWorkflow возвращает все проблемы workflow: ошибки валидатора
// и повторы шагов на пути от корня. Пустой список — workflow корректен.
func (o *Orchestrator) ValidateWorkflow(wf *domain.Workflow) []string {
	problems := o.validator.Validate(wf)
	return append(problems, engine.DetectCycles(wf)...)
}

// Submit запускает workflow в фоне и сразу возвращает созданный run.
//
// Завершение run видно только через его состояние в хранилище
// (или через Notifier).
func (o *Orchestrator) Submit(ctx context.Context, wf *domain.Workflow) (*domain.Run, error) {
	if o.IsStopped() {
		return nil, ErrOrchestratorStopped
	}

	run, err := o.prepare(ctx, wf, nil)
	if err != nil {
		return nil, err
	}

	// wg.Add под тем же мьютексом, под которым Stop выставляет stopped:
	// после начала Stop новые run не добавляются.
	o.stoppedMu.Lock()
	if o.stopped {
		o.stoppedMu.Unlock()
		o.abandon(ctx, run)
		return nil, ErrOrchestratorStopped
	}
	o.wg.Add(1)
	o.stoppedMu.Unlock()

	scope, release, err := o.openScope(o.baseCtx, wf, run.ID)
	if err != nil {
		o.wg.Done()
		return nil, err
	}

	snapshot := run.Clone()

	go func() {
		defer o.wg.Done()
		defer release()
		o.execute(scope, wf, run)
	}()

	return snapshot, nil
}

// abandon отменяет созданный, но не запущенный run.
func (o *Orchestrator) abandon(ctx context.Context, run *domain.Run) {
	store := context.WithoutCancel(ctx)
	run.MarkCancelled(ErrOrchestratorStopped.Error())
	if err := o.storage.UpdateRun(store, run); err != nil {
		o.logger.Warn("failed to cancel abandoned run", "run_id", run.ID, "error", err)
		return
	}
	o.metrics.RunFinished(run.State.String())
	o.notify(store, run)
}

// Stop отменяет фоновые run и ждёт их завершения.
func (o *Orchestrator) Stop() {
	o.stoppedMu.Lock()
	o.stopped = true
	o.stoppedMu.Unlock()

	o.logger.Info("stopping orchestrator...")

	o.cancelFunc(ErrOrchestratorStopped)
	o.wg.Wait()

	o.logger.Info("orchestrator stopped")
}

// Wait ждёт завершения всех фоновых run без их отмены.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// IsStopped проверяет, остановлен ли Orchestrator.
func (o *Orchestrator) IsStopped() bool {
	o.stoppedMu.RLock()
	defer o.stoppedMu.RUnlock()
	return o.stopped
}

// ActiveRunsCount возвращает количество выполняющихся run.
func (o *Orchestrator) ActiveRunsCount() int {
	return o.cancels.Active()
}

// IsRunActive проверяет, выполняется ли run в этом процессе.
func (o *Orchestrator) IsRunActive(runID uuid.UUID) bool {
	return o.cancels.IsActive(runID)
}
