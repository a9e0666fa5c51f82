package repo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Cascade/internal/domain"
)

// MemoryStorage — хранилище в памяти процесса.
//
// Хранит и отдаёт копии: вызывающий код не может изменить
// сохранённые данные в обход UpdateRun.
type MemoryStorage struct {
	mu        sync.RWMutex
	workflows map[uuid.UUID]*domain.Workflow
	endpoints map[string]uuid.UUID
	runs      map[uuid.UUID]*domain.Run
}

// NewMemoryStorage создаёт пустое хранилище.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		workflows: make(map[uuid.UUID]*domain.Workflow),
		endpoints: make(map[string]uuid.UUID),
		runs:      make(map[uuid.UUID]*domain.Run),
	}
}

// withContext выполняет fn, если контекст ещё не отменён.
func withContext[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	default:
		return fn()
	}
}

// SaveWorkflow сохраняет workflow.
func (s *MemoryStorage) SaveWorkflow(ctx context.Context, wf *domain.Workflow) (uuid.UUID, error) {
	return withContext(ctx, func() (uuid.UUID, error) {
		s.mu.Lock()
		defer s.mu.Unlock()

		if wf.ID == uuid.Nil {
			wf.ID = uuid.New()
		}

		endpoint := wf.Endpoint()
		if endpoint != "" {
			if owner, ok := s.endpoints[endpoint]; ok && owner != wf.ID {
				return uuid.Nil, fmt.Errorf("%w: endpoint %s", ErrAlreadyExists, endpoint)
			}
		}

		now := time.Now()
		if prev, ok := s.workflows[wf.ID]; ok {
			wf.CreatedAt = prev.CreatedAt
			if prevEndpoint := prev.Endpoint(); prevEndpoint != "" {
				delete(s.endpoints, prevEndpoint)
			}
		} else if wf.CreatedAt.IsZero() {
			wf.CreatedAt = now
		}
		wf.UpdatedAt = now

		s.workflows[wf.ID] = wf.Clone()
		if endpoint != "" {
			s.endpoints[endpoint] = wf.ID
		}

		return wf.ID, nil
	})
}

// GetWorkflow возвращает workflow по ID.
func (s *MemoryStorage) GetWorkflow(ctx context.Context, id uuid.UUID) (*domain.Workflow, error) {
	return withContext(ctx, func() (*domain.Workflow, error) {
		s.mu.RLock()
		defer s.mu.RUnlock()

		wf, ok := s.workflows[id]
		if !ok {
			return nil, fmt.Errorf("%w: workflow %s", ErrNotFound, id)
		}
		return wf.Clone(), nil
	})
}

// GetWorkflowByEndpoint возвращает workflow по пути триггера.
func (s *MemoryStorage) GetWorkflowByEndpoint(ctx context.Context, endpoint string) (*domain.Workflow, error) {
	return withContext(ctx, func() (*domain.Workflow, error) {
		s.mu.RLock()
		defer s.mu.RUnlock()

		id, ok := s.endpoints[endpoint]
		if !ok {
			return nil, fmt.Errorf("%w: endpoint %s", ErrNotFound, endpoint)
		}
		return s.workflows[id].Clone(), nil
	})
}

// ListWorkflows возвращает все workflow.
func (s *MemoryStorage) ListWorkflows(ctx context.Context) ([]*domain.Workflow, error) {
	return withContext(ctx, func() ([]*domain.Workflow, error) {
		s.mu.RLock()
		defer s.mu.RUnlock()

		result := make([]*domain.Workflow, 0, len(s.workflows))
		for _, wf := range s.workflows {
			result = append(result, wf.Clone())
		}
		sortByName(result)
		return result, nil
	})
}

// DeleteWorkflow удаляет workflow и его run.
func (s *MemoryStorage) DeleteWorkflow(ctx context.Context, id uuid.UUID) (bool, error) {
	return withContext(ctx, func() (bool, error) {
		s.mu.Lock()
		defer s.mu.Unlock()

		wf, ok := s.workflows[id]
		if !ok {
			return false, nil
		}
		if endpoint := wf.Endpoint(); endpoint != "" {
			delete(s.endpoints, endpoint)
		}
		delete(s.workflows, id)

		for runID, run := range s.runs {
			if run.WorkflowID == id {
				delete(s.runs, runID)
			}
		}
		return true, nil
	})
}

// CreateRun создаёт run для workflow.
func (s *MemoryStorage) CreateRun(ctx context.Context, workflowID uuid.UUID) (*domain.Run, error) {
	return withContext(ctx, func() (*domain.Run, error) {
		s.mu.Lock()
		defer s.mu.Unlock()

		wf, ok := s.workflows[workflowID]
		if !ok {
			return nil, fmt.Errorf("%w: workflow %s", ErrNotFound, workflowID)
		}

		run := domain.NewRun(wf)
		s.runs[run.ID] = run.Clone()
		return run, nil
	})
}

// GetRun возвращает run по ID.
func (s *MemoryStorage) GetRun(ctx context.Context, id uuid.UUID) (*domain.Run, error) {
	return withContext(ctx, func() (*domain.Run, error) {
		s.mu.RLock()
		defer s.mu.RUnlock()

		run, ok := s.runs[id]
		if !ok {
			return nil, fmt.Errorf("%w: run %s", ErrNotFound, id)
		}
		return run.Clone(), nil
	})
}

// UpdateRun сохраняет run.
func (s *MemoryStorage) UpdateRun(ctx context.Context, run *domain.Run) error {
	_, err := withContext(ctx, func() (struct{}, error) {
		s.mu.Lock()
		defer s.mu.Unlock()

		stored, ok := s.runs[run.ID]
		if !ok {
			return struct{}{}, fmt.Errorf("%w: run %s", ErrNotFound, run.ID)
		}
		if !canOverwrite(stored, run) {
			return struct{}{}, fmt.Errorf("%w: run %s is %s", ErrInvalidState, run.ID, stored.State)
		}

		s.runs[run.ID] = run.Clone()
		return struct{}{}, nil
	})
	return err
}

// History возвращает run по фильтру, новые первыми.
func (s *MemoryStorage) History(ctx context.Context, filter HistoryFilter) ([]*domain.Run, error) {
	return withContext(ctx, func() ([]*domain.Run, error) {
		if filter.isEmpty() {
			return nil, nil
		}

		s.mu.RLock()
		defer s.mu.RUnlock()

		var result []*domain.Run
		for _, run := range s.runs {
			if filter.matches(run) {
				result = append(result, run.Clone())
			}
		}
		sortRecentFirst(result)

		if limit := filter.limit(); len(result) > limit {
			result = result[:limit]
		}
		return result, nil
	})
}
