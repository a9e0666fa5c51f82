package steps

import (
	"fmt"
	"sort"
	"sync"

	"github.com/shaiso/Cascade/internal/domain"
)

// Registry — реестр исполнителей leaf-шагов.
//
// Сопоставляет тип шага с Executor. Потокобезопасен.
type Registry struct {
	mu        sync.RWMutex
	executors map[domain.StepKind]Executor
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{
		executors: make(map[domain.StepKind]Executor),
	}
}

// DefaultRegistry создаёт реестр со стандартными исполнителями.
// batch и executable используют один и тот же ProcessExecutor.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	httpExec := NewHTTPExecutor()
	procExec := NewProcessExecutor()

	r.Register(domain.StepKindHTTP, httpExec)
	r.Register(domain.StepKindBatch, procExec)
	r.Register(domain.StepKindExecutable, procExec)

	return r
}

// Register регистрирует исполнителя для типа шага.
// Существующая регистрация перезаписывается.
func (r *Registry) Register(kind domain.StepKind, exec Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[kind] = exec
}

// Get возвращает исполнителя по типу.
// Возвращает ErrStepNotFound, если исполнитель не зарегистрирован.
func (r *Registry) Get(kind domain.StepKind) (Executor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	exec, exists := r.executors[kind]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrStepNotFound, kind)
	}

	return exec, nil
}

// Has проверяет, зарегистрирован ли исполнитель.
func (r *Registry) Has(kind domain.StepKind) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.executors[kind]
	return exists
}

// Kinds возвращает отсортированный список зарегистрированных типов.
func (r *Registry) Kinds() []domain.StepKind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]domain.StepKind, 0, len(r.executors))
	for k := range r.executors {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Unregister удаляет исполнителя из реестра.
func (r *Registry) Unregister(kind domain.StepKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.executors, kind)
}
