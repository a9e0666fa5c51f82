package domain

// ExecutionState — состояние выполнения run или отдельного шага.
//
// Жизненный цикл:
//
//	PENDING → RUNNING → COMPLETED
//	                  ↘ FAILED
//	                  ↘ CANCELLED
//
// SKIPPED и TIMED_OUT зарезервированы: движок их не выставляет.
type ExecutionState string

const (
	// StatePending — run создан, но ещё не начал выполняться.
	StatePending ExecutionState = "PENDING"

	// StateRunning — выполнение в процессе.
	StateRunning ExecutionState = "RUNNING"

	// StateCompleted — выполнение успешно завершено.
	StateCompleted ExecutionState = "COMPLETED"

	// StateFailed — выполнение завершилось с ошибкой.
	StateFailed ExecutionState = "FAILED"

	// StateCancelled — выполнение отменено (запрос на отмену или таймаут run).
	StateCancelled ExecutionState = "CANCELLED"

	// StateSkipped — зарезервировано.
	StateSkipped ExecutionState = "SKIPPED"

	// StateTimedOut — зарезервировано.
	StateTimedOut ExecutionState = "TIMED_OUT"
)

// IsTerminal возвращает true, если состояние финальное.
func (s ExecutionState) IsTerminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled, StateSkipped, StateTimedOut:
		return true
	default:
		return false
	}
}

// IsStopping возвращает true для состояний, на которых последовательный
// обход останавливается.
func (s ExecutionState) IsStopping() bool {
	return s == StateFailed || s == StateCancelled
}

// String возвращает строковое представление ExecutionState.
func (s ExecutionState) String() string {
	return string(s)
}

// ParseExecutionState парсит строку в ExecutionState.
// Неизвестные значения считаются PENDING.
func ParseExecutionState(s string) ExecutionState {
	switch ExecutionState(s) {
	case StatePending, StateRunning, StateCompleted, StateFailed,
		StateCancelled, StateSkipped, StateTimedOut:
		return ExecutionState(s)
	default:
		return StatePending
	}
}
