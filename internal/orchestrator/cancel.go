package orchestrator

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// CancelRegistry — активные scope отмены по ID run.
//
// Разделяется всеми run процесса; все операции под мьютексом.
type CancelRegistry struct {
	mu     sync.Mutex
	scopes map[uuid.UUID]context.CancelCauseFunc
}

// NewCancelRegistry создаёт пустой реестр.
func NewCancelRegistry() *CancelRegistry {
	return &CancelRegistry{scopes: make(map[uuid.UUID]context.CancelCauseFunc)}
}

// Register регистрирует scope run.
func (r *CancelRegistry) Register(runID uuid.UUID, cancel context.CancelCauseFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.scopes[runID]; exists {
		return ErrRunAlreadyActive
	}
	r.scopes[runID] = cancel
	return nil
}

// Cancel отменяет scope run с указанной причиной.
// Возвращает false, если scope не зарегистрирован.
func (r *CancelRegistry) Cancel(runID uuid.UUID, cause error) bool {
	r.mu.Lock()
	cancel, ok := r.scopes[runID]
	r.mu.Unlock()

	if !ok {
		return false
	}
	cancel(cause)
	return true
}

// Remove удаляет scope run из реестра.
func (r *CancelRegistry) Remove(runID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.scopes, runID)
}

// IsActive проверяет, зарегистрирован ли scope run.
func (r *CancelRegistry) IsActive(runID uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.scopes[runID]
	return ok
}

// Active возвращает количество зарегистрированных scope.
func (r *CancelRegistry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.scopes)
}
