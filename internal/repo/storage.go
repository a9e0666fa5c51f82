package repo

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/shaiso/Cascade/internal/domain"
)

// Storage — хранилище workflow и истории run.
//
// Реализации потокобезопасны: несколько run обновляют хранилище
// конкурентно.
type Storage interface {
	// SaveWorkflow сохраняет workflow (создаёт или обновляет) и возвращает его ID.
	// Занятый другим workflow endpoint — ErrAlreadyExists.
	SaveWorkflow(ctx context.Context, wf *domain.Workflow) (uuid.UUID, error)

	// GetWorkflow возвращает workflow по ID или ErrNotFound.
	GetWorkflow(ctx context.Context, id uuid.UUID) (*domain.Workflow, error)

	// GetWorkflowByEndpoint возвращает workflow по пути триггера или ErrNotFound.
	GetWorkflowByEndpoint(ctx context.Context, endpoint string) (*domain.Workflow, error)

	// ListWorkflows возвращает все workflow, отсортированные по имени.
	ListWorkflows(ctx context.Context) ([]*domain.Workflow, error)

	// DeleteWorkflow удаляет workflow и его run. false — workflow не найден.
	DeleteWorkflow(ctx context.Context, id uuid.UUID) (bool, error)

	// CreateRun создаёт run в состоянии PENDING. Неизвестный workflow — ErrNotFound.
	CreateRun(ctx context.Context, workflowID uuid.UUID) (*domain.Run, error)

	// GetRun возвращает run по ID или ErrNotFound.
	GetRun(ctx context.Context, id uuid.UUID) (*domain.Run, error)

	// UpdateRun сохраняет run. ErrNotFound — run не существует,
	// ErrInvalidState — сохранённый run уже в финальном состоянии.
	// Исключение: отменённый run можно дописать результатами шагов
	// (CANCELLED поверх CANCELLED, результатов не меньше).
	UpdateRun(ctx context.Context, run *domain.Run) error

	// History возвращает run workflow, новые первыми.
	History(ctx context.Context, filter HistoryFilter) ([]*domain.Run, error)
}

// DefaultHistoryLimit — лимит History по умолчанию.
const DefaultHistoryLimit = 50

// HistoryFilter — параметры выборки истории.
// Задаётся WorkflowID или WorkflowName; пустой фильтр даёт пустой результат.
type HistoryFilter struct {
	WorkflowID   uuid.UUID
	WorkflowName string
	Limit        int
}

func (f HistoryFilter) isEmpty() bool {
	return f.WorkflowID == uuid.Nil && f.WorkflowName == ""
}

func (f HistoryFilter) limit() int {
	if f.Limit <= 0 {
		return DefaultHistoryLimit
	}
	return f.Limit
}

func (f HistoryFilter) matches(run *domain.Run) bool {
	if f.WorkflowID != uuid.Nil && run.WorkflowID != f.WorkflowID {
		return false
	}
	if f.WorkflowName != "" && run.WorkflowName != f.WorkflowName {
		return false
	}
	return true
}

// canOverwrite проверяет, можно ли заменить сохранённый run новым.
func canOverwrite(stored, next *domain.Run) bool {
	if !stored.IsFinished() {
		return true
	}
	return stored.State == domain.StateCancelled &&
		next.State == domain.StateCancelled &&
		len(next.Steps) >= len(stored.Steps)
}

// sortRecentFirst сортирует run по времени создания, новые первыми.
func sortRecentFirst(runs []*domain.Run) {
	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
}

// sortByName сортирует workflow по имени.
func sortByName(wfs []*domain.Workflow) {
	sort.SliceStable(wfs, func(i, j int) bool {
		return wfs[i].Name < wfs[j].Name
	})
}
