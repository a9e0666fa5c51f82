package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Cascade/internal/domain"
)

// uniqueViolation — код ошибки PostgreSQL при нарушении уникальности.
const uniqueViolation = "23505"

// PostgresStorage — хранилище в PostgreSQL.
//
// Параметры и шаги workflow, а также результаты шагов run хранятся в JSONB.
type PostgresStorage struct {
	pool *pgxpool.Pool
}

// NewPostgresStorage создаёт новый PostgresStorage.
func NewPostgresStorage(pool *pgxpool.Pool) *PostgresStorage {
	return &PostgresStorage{pool: pool}
}

// --- Workflows ---

// SaveWorkflow создаёт или обновляет workflow.
func (s *PostgresStorage) SaveWorkflow(ctx context.Context, wf *domain.Workflow) (uuid.UUID, error) {
	if wf.ID == uuid.Nil {
		wf.ID = uuid.New()
	}

	paramsJSON, err := json.Marshal(wf.Params)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal params: %w", err)
	}
	stepsJSON, err := json.Marshal(wf.Steps)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal steps: %w", err)
	}

	query := `
		INSERT INTO workflows (id, name, kind, params, steps, endpoint, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
			kind = EXCLUDED.kind,
			params = EXCLUDED.params,
			steps = EXCLUDED.steps,
			endpoint = EXCLUDED.endpoint,
			updated_at = NOW()
		RETURNING created_at, updated_at
	`
	err = s.pool.QueryRow(ctx, query,
		wf.ID,
		wf.Name,
		string(wf.Kind),
		paramsJSON,
		stepsJSON,
		nullString(wf.Endpoint()),
	).Scan(&wf.CreatedAt, &wf.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return uuid.Nil, fmt.Errorf("%w: endpoint %s", ErrAlreadyExists, wf.Endpoint())
		}
		return uuid.Nil, fmt.Errorf("save workflow: %w", err)
	}
	return wf.ID, nil
}

// GetWorkflow возвращает workflow по ID.
func (s *PostgresStorage) GetWorkflow(ctx context.Context, id uuid.UUID) (*domain.Workflow, error) {
	query := `
		SELECT id, name, kind, params, steps, created_at, updated_at
		FROM workflows
		WHERE id = $1
	`
	return s.scanWorkflow(s.pool.QueryRow(ctx, query, id))
}

// GetWorkflowByEndpoint возвращает workflow по пути триггера.
func (s *PostgresStorage) GetWorkflowByEndpoint(ctx context.Context, endpoint string) (*domain.Workflow, error) {
	query := `
		SELECT id, name, kind, params, steps, created_at, updated_at
		FROM workflows
		WHERE endpoint = $1
	`
	return s.scanWorkflow(s.pool.QueryRow(ctx, query, endpoint))
}

// ListWorkflows возвращает все workflow.
func (s *PostgresStorage) ListWorkflows(ctx context.Context) ([]*domain.Workflow, error) {
	query := `
		SELECT id, name, kind, params, steps, created_at, updated_at
		FROM workflows
		ORDER BY name
	`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	defer rows.Close()

	var result []*domain.Workflow
	for rows.Next() {
		wf, err := s.scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, wf)
	}
	return result, rows.Err()
}

// DeleteWorkflow удаляет workflow. Run удаляются каскадно.
func (s *PostgresStorage) DeleteWorkflow(ctx context.Context, id uuid.UUID) (bool, error) {
	result, err := s.pool.Exec(ctx, `DELETE FROM workflows WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete workflow: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// --- Runs ---

// CreateRun создаёт run для workflow.
func (s *PostgresStorage) CreateRun(ctx context.Context, workflowID uuid.UUID) (*domain.Run, error) {
	wf, err := s.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	run := domain.NewRun(wf)
	query := `
		INSERT INTO runs (id, workflow_id, workflow_name, state, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err = s.pool.Exec(ctx, query,
		run.ID,
		run.WorkflowID,
		run.WorkflowName,
		string(run.State),
		run.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

// GetRun возвращает run по ID.
func (s *PostgresStorage) GetRun(ctx context.Context, id uuid.UUID) (*domain.Run, error) {
	query := `
		SELECT id, workflow_id, workflow_name, state, started_at, finished_at,
		       error, steps, created_at
		FROM runs
		WHERE id = $1
	`
	return s.scanRun(s.pool.QueryRow(ctx, query, id))
}

// UpdateRun сохраняет run, если он ещё не в финальном состоянии.
func (s *PostgresStorage) UpdateRun(ctx context.Context, run *domain.Run) error {
	stepsJSON, err := json.Marshal(run.Steps)
	if err != nil {
		return fmt.Errorf("marshal steps: %w", err)
	}

	query := `
		UPDATE runs
		SET state = $2, started_at = $3, finished_at = $4, error = $5, steps = $6
		WHERE id = $1
		  AND (
		    state NOT IN ('COMPLETED', 'FAILED', 'CANCELLED', 'SKIPPED', 'TIMED_OUT')
		    OR (state = 'CANCELLED' AND $2 = 'CANCELLED'
		        AND $7 >= COALESCE(jsonb_array_length(CASE WHEN jsonb_typeof(steps) = 'array' THEN steps END), 0))
		  )
	`
	result, err := s.pool.Exec(ctx, query,
		run.ID,
		string(run.State),
		run.StartedAt,
		run.FinishedAt,
		nullString(run.Error),
		stepsJSON,
		len(run.Steps),
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if result.RowsAffected() > 0 {
		return nil
	}

	// Ни одна строка не обновлена: run либо отсутствует, либо уже завершён
	var state string
	err = s.pool.QueryRow(ctx, `SELECT state FROM runs WHERE id = $1`, run.ID).Scan(&state)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: run %s", ErrNotFound, run.ID)
	}
	if err != nil {
		return fmt.Errorf("get run state: %w", err)
	}
	return fmt.Errorf("%w: run %s is %s", ErrInvalidState, run.ID, state)
}

// History возвращает run по фильтру, новые первыми.
func (s *PostgresStorage) History(ctx context.Context, filter HistoryFilter) ([]*domain.Run, error) {
	if filter.isEmpty() {
		return nil, nil
	}

	query := `
		SELECT id, workflow_id, workflow_name, state, started_at, finished_at,
		       error, steps, created_at
		FROM runs
		WHERE ($1::uuid IS NULL OR workflow_id = $1)
		  AND ($2::text IS NULL OR workflow_name = $2)
		ORDER BY created_at DESC
		LIMIT $3
	`
	rows, err := s.pool.Query(ctx, query,
		nullUUID(filter.WorkflowID),
		nullString(filter.WorkflowName),
		filter.limit(),
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*domain.Run
	for rows.Next() {
		run, err := s.scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// --- Helpers ---

// scanWorkflow сканирует одну строку в Workflow.
func (s *PostgresStorage) scanWorkflow(row pgx.Row) (*domain.Workflow, error) {
	var wf domain.Workflow
	var kind string
	var paramsJSON, stepsJSON []byte

	err := row.Scan(
		&wf.ID,
		&wf.Name,
		&kind,
		&paramsJSON,
		&stepsJSON,
		&wf.CreatedAt,
		&wf.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan workflow: %w", err)
	}
	wf.Kind = domain.WorkflowKind(kind)

	if err := json.Unmarshal(paramsJSON, &wf.Params); err != nil {
		return nil, fmt.Errorf("unmarshal params: %w", err)
	}
	if err := json.Unmarshal(stepsJSON, &wf.Steps); err != nil {
		return nil, fmt.Errorf("unmarshal steps: %w", err)
	}
	return &wf, nil
}

// scanRun сканирует одну строку в Run.
func (s *PostgresStorage) scanRun(row pgx.Row) (*domain.Run, error) {
	var run domain.Run
	var state string
	var runError *string
	var stepsJSON []byte
	var startedAt, finishedAt *time.Time

	err := row.Scan(
		&run.ID,
		&run.WorkflowID,
		&run.WorkflowName,
		&state,
		&startedAt,
		&finishedAt,
		&runError,
		&stepsJSON,
		&run.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}

	run.State = domain.ParseExecutionState(state)
	run.StartedAt = startedAt
	run.FinishedAt = finishedAt
	if runError != nil {
		run.Error = *runError
	}
	if stepsJSON != nil {
		if err := json.Unmarshal(stepsJSON, &run.Steps); err != nil {
			return nil, fmt.Errorf("unmarshal steps: %w", err)
		}
	}
	return &run, nil
}

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// nullUUID возвращает nil для пустого UUID.
func nullUUID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}
