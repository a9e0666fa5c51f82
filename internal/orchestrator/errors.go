package orchestrator

import (
	"errors"
	"fmt"

	"github.com/shaiso/Cascade/internal/domain"
)

// Ошибки оркестратора.
var (
	// ErrRunNotFound — переданный run не найден в хранилище.
	ErrRunNotFound = errors.New("run not found")

	// ErrRunNotPending — run не в статусе PENDING.
	ErrRunNotPending = errors.New("run is not in PENDING state")

	// ErrRunWorkflowMismatch — run создан для другого workflow.
	ErrRunWorkflowMismatch = errors.New("run belongs to another workflow")

	// ErrRunAlreadyActive — run уже выполняется.
	ErrRunAlreadyActive = errors.New("run already being processed")

	// ErrUnknownStepKind — тип шага не распознан диспетчером.
	ErrUnknownStepKind = errors.New("unknown step kind")

	// ErrStepPanic — исполнитель шага завершился паникой.
	ErrStepPanic = errors.New("step panicked")

	// ErrRunCancelled — причина отмены scope по запросу.
	ErrRunCancelled = errors.New("run cancelled")

	// ErrRunTimeout — причина отмены scope по таймауту run.
	ErrRunTimeout = errors.New("run timeout exceeded")

	// ErrOrchestratorStopped — оркестратор остановлен.
	ErrOrchestratorStopped = errors.New("orchestrator stopped")
)

// ChildError — контейнер остановлен из-за дочернего шага.
// Состояние контейнера берётся из State.
type ChildError struct {
	StepID  string
	State   domain.ExecutionState
	Message string
}

// Error реализует интерфейс error.
func (e *ChildError) Error() string {
	return fmt.Sprintf("step %s %s: %s", e.StepID, e.State, e.Message)
}
