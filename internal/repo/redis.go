package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shaiso/Cascade/internal/domain"
)

const (
	keyPrefix        = "cascade:"
	workflowPrefix   = keyPrefix + "workflow:"
	endpointPrefix   = keyPrefix + "endpoint:"
	runPrefix        = keyPrefix + "run:"
	runsByIDPrefix   = keyPrefix + "runs:workflow:"
	runsByNamePrefix = keyPrefix + "runs:name:"
	workflowsKey     = keyPrefix + "workflows"

	// maxTxRetries — число попыток оптимистичной транзакции.
	maxTxRetries = 5
)

// RedisStorage — хранилище в Redis.
//
// Значения хранятся в JSON. История run — sorted set по времени создания
// (отдельно по ID и по имени workflow).
type RedisStorage struct {
	client *redis.Client
}

// RedisOptions — параметры подключения к Redis.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// NewRedisStorage подключается к Redis и проверяет соединение.
func NewRedisStorage(ctx context.Context, opts RedisOptions) (*RedisStorage, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
		PoolSize: opts.PoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisStorage{client: client}, nil
}

// NewRedisStorageWithClient создаёт хранилище поверх готового клиента.
func NewRedisStorageWithClient(client *redis.Client) *RedisStorage {
	return &RedisStorage{client: client}
}

// Close закрывает соединение.
func (s *RedisStorage) Close() error {
	return s.client.Close()
}

// workflowRecord — представление workflow в Redis.
// Временные метки в JSON workflow не попадают, поэтому хранятся рядом.
type workflowRecord struct {
	Workflow  *domain.Workflow `json:"workflow"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// getJSON читает и декодирует значение по ключу.
func getJSON[T any](ctx context.Context, c redis.Cmdable, key string) (T, error) {
	var result T
	data, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return result, fmt.Errorf("%w: key=%s", ErrNotFound, key)
	}
	if err != nil {
		return result, fmt.Errorf("get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return result, fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return result, nil
}

// --- Workflows ---

// SaveWorkflow создаёт или обновляет workflow.
//
// Endpoint захватывается через SETNX, поэтому два workflow
// не могут получить один путь даже при конкурентном сохранении.
func (s *RedisStorage) SaveWorkflow(ctx context.Context, wf *domain.Workflow) (uuid.UUID, error) {
	if wf.ID == uuid.Nil {
		wf.ID = uuid.New()
	}
	key := workflowPrefix + wf.ID.String()

	prev, err := getJSON[workflowRecord](ctx, s.client, key)
	exists := err == nil
	if err != nil && !errors.Is(err, ErrNotFound) {
		return uuid.Nil, err
	}

	endpoint := wf.Endpoint()
	if endpoint != "" {
		if err := s.claimEndpoint(ctx, endpoint, wf.ID); err != nil {
			return uuid.Nil, err
		}
	}

	now := time.Now()
	if exists {
		wf.CreatedAt = prev.CreatedAt
	} else if wf.CreatedAt.IsZero() {
		wf.CreatedAt = now
	}
	wf.UpdatedAt = now

	data, err := json.Marshal(workflowRecord{Workflow: wf, CreatedAt: wf.CreatedAt, UpdatedAt: wf.UpdatedAt})
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal workflow: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, data, 0)
		pipe.SAdd(ctx, workflowsKey, wf.ID.String())
		if exists && prev.Workflow != nil {
			if old := prev.Workflow.Endpoint(); old != "" && old != endpoint {
				pipe.Del(ctx, endpointPrefix+old)
			}
		}
		return nil
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("save workflow: %w", err)
	}
	return wf.ID, nil
}

// claimEndpoint закрепляет endpoint за workflow.
func (s *RedisStorage) claimEndpoint(ctx context.Context, endpoint string, id uuid.UUID) error {
	key := endpointPrefix + endpoint
	ok, err := s.client.SetNX(ctx, key, id.String(), 0).Result()
	if err != nil {
		return fmt.Errorf("claim endpoint: %w", err)
	}
	if ok {
		return nil
	}

	owner, err := s.client.Get(ctx, key).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("get endpoint owner: %w", err)
	}
	if owner != id.String() {
		return fmt.Errorf("%w: endpoint %s", ErrAlreadyExists, endpoint)
	}
	return nil
}

// GetWorkflow возвращает workflow по ID.
func (s *RedisStorage) GetWorkflow(ctx context.Context, id uuid.UUID) (*domain.Workflow, error) {
	rec, err := getJSON[workflowRecord](ctx, s.client, workflowPrefix+id.String())
	if err != nil {
		return nil, err
	}
	return rec.restore(), nil
}

func (r workflowRecord) restore() *domain.Workflow {
	wf := r.Workflow
	if wf == nil {
		wf = &domain.Workflow{}
	}
	wf.CreatedAt = r.CreatedAt
	wf.UpdatedAt = r.UpdatedAt
	return wf
}

// GetWorkflowByEndpoint возвращает workflow по пути триггера.
func (s *RedisStorage) GetWorkflowByEndpoint(ctx context.Context, endpoint string) (*domain.Workflow, error) {
	raw, err := s.client.Get(ctx, endpointPrefix+endpoint).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: endpoint %s", ErrNotFound, endpoint)
	}
	if err != nil {
		return nil, fmt.Errorf("get endpoint: %w", err)
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse workflow id: %w", err)
	}
	return s.GetWorkflow(ctx, id)
}

// ListWorkflows возвращает все workflow.
func (s *RedisStorage) ListWorkflows(ctx context.Context) ([]*domain.Workflow, error) {
	ids, err := s.client.SMembers(ctx, workflowsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = workflowPrefix + id
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("get workflows: %w", err)
	}

	result := make([]*domain.Workflow, 0, len(values))
	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			// Удалён между SMEMBERS и MGET
			continue
		}
		var rec workflowRecord
		if err := json.Unmarshal([]byte(str), &rec); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", keys[i], err)
		}
		result = append(result, rec.restore())
	}
	sortByName(result)
	return result, nil
}

// DeleteWorkflow удаляет workflow и его run.
func (s *RedisStorage) DeleteWorkflow(ctx context.Context, id uuid.UUID) (bool, error) {
	wf, err := s.GetWorkflow(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	byIDKey := runsByIDPrefix + id.String()
	runIDs, err := s.client.ZRange(ctx, byIDKey, 0, -1).Result()
	if err != nil {
		return false, fmt.Errorf("list runs: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, workflowPrefix+id.String(), byIDKey)
		pipe.SRem(ctx, workflowsKey, id.String())
		if endpoint := wf.Endpoint(); endpoint != "" {
			pipe.Del(ctx, endpointPrefix+endpoint)
		}
		for _, runID := range runIDs {
			pipe.Del(ctx, runPrefix+runID)
			pipe.ZRem(ctx, runsByNamePrefix+wf.Name, runID)
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("delete workflow: %w", err)
	}
	return true, nil
}

// --- Runs ---

// CreateRun создаёт run для workflow.
func (s *RedisStorage) CreateRun(ctx context.Context, workflowID uuid.UUID) (*domain.Run, error) {
	wf, err := s.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	run := domain.NewRun(wf)
	data, err := json.Marshal(run)
	if err != nil {
		return nil, fmt.Errorf("marshal run: %w", err)
	}

	member := redis.Z{Score: float64(run.CreatedAt.UnixNano()), Member: run.ID.String()}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, runPrefix+run.ID.String(), data, 0)
		pipe.ZAdd(ctx, runsByIDPrefix+wf.ID.String(), member)
		pipe.ZAdd(ctx, runsByNamePrefix+wf.Name, member)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	return run, nil
}

// GetRun возвращает run по ID.
func (s *RedisStorage) GetRun(ctx context.Context, id uuid.UUID) (*domain.Run, error) {
	return getJSON[*domain.Run](ctx, s.client, runPrefix+id.String())
}

// UpdateRun сохраняет run, если он ещё не в финальном состоянии
// (или дописывает результаты отменённого run).
// Проверка и запись выполняются в WATCH-транзакции.
func (s *RedisStorage) UpdateRun(ctx context.Context, run *domain.Run) error {
	key := runPrefix + run.ID.String()
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}

	txf := func(tx *redis.Tx) error {
		stored, err := getJSON[*domain.Run](ctx, tx, key)
		if err != nil {
			return err
		}
		if !canOverwrite(stored, run) {
			return fmt.Errorf("%w: run %s is %s", ErrInvalidState, run.ID, stored.State)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		return err
	}

	for range maxTxRetries {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil && !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrInvalidState) {
			return fmt.Errorf("update run: %w", err)
		}
		return err
	}
	return fmt.Errorf("update run %s: too many concurrent updates", run.ID)
}

// History возвращает run по фильтру, новые первыми.
func (s *RedisStorage) History(ctx context.Context, filter HistoryFilter) ([]*domain.Run, error) {
	if filter.isEmpty() {
		return nil, nil
	}

	index := runsByNamePrefix + filter.WorkflowName
	if filter.WorkflowID != uuid.Nil {
		index = runsByIDPrefix + filter.WorkflowID.String()
	}

	ids, err := s.client.ZRevRange(ctx, index, 0, int64(filter.limit())-1).Result()
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}

	runs := make([]*domain.Run, 0, len(ids))
	for _, id := range ids {
		run, err := getJSON[*domain.Run](ctx, s.client, runPrefix+id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if filter.matches(run) {
			runs = append(runs, run)
		}
	}
	return runs, nil
}
