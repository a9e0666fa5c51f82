package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Cascade/internal/domain"
)

func newTestWorkflow(name, endpoint string) *domain.Workflow {
	params := domain.Params{domain.ParamTimeoutSeconds: domain.Int(30)}
	if endpoint != "" {
		params[domain.ParamEndpoint] = domain.String(endpoint)
	}
	return &domain.Workflow{
		Name:   name,
		Kind:   domain.WorkflowKindStandard,
		Params: params,
		Steps: []domain.Step{
			{ID: "fetch", Kind: domain.StepKindHTTP, Params: domain.Params{"url": domain.String("http://example.com")}},
		},
	}
}

// testStorage прогоняет общий набор проверок для любой реализации Storage.
func testStorage(t *testing.T, newStorage func(t *testing.T) Storage) {
	t.Run("SaveAndGetWorkflow", func(t *testing.T) {
		s := newStorage(t)
		ctx := context.Background()

		wf := newTestWorkflow("sync-orders", "/hooks/sync")
		id, err := s.SaveWorkflow(ctx, wf)
		if err != nil {
			t.Fatalf("SaveWorkflow failed: %v", err)
		}
		if id == uuid.Nil || id != wf.ID {
			t.Fatalf("expected assigned ID, got %s", id)
		}

		got, err := s.GetWorkflow(ctx, id)
		if err != nil {
			t.Fatalf("GetWorkflow failed: %v", err)
		}
		if got.Name != "sync-orders" || len(got.Steps) != 1 {
			t.Errorf("unexpected workflow: %+v", got)
		}
		if url, _ := got.Steps[0].Params.String("url"); url != "http://example.com" {
			t.Errorf("expected step params to survive, got %q", url)
		}
		if got.CreatedAt.IsZero() {
			t.Error("expected CreatedAt to be set")
		}

		byEndpoint, err := s.GetWorkflowByEndpoint(ctx, "/hooks/sync")
		if err != nil {
			t.Fatalf("GetWorkflowByEndpoint failed: %v", err)
		}
		if byEndpoint.ID != id {
			t.Errorf("expected %s, got %s", id, byEndpoint.ID)
		}
	})

	t.Run("GetWorkflowNotFound", func(t *testing.T) {
		s := newStorage(t)
		ctx := context.Background()

		if _, err := s.GetWorkflow(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		if _, err := s.GetWorkflowByEndpoint(ctx, "/missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("EndpointConflict", func(t *testing.T) {
		s := newStorage(t)
		ctx := context.Background()

		if _, err := s.SaveWorkflow(ctx, newTestWorkflow("a", "/hooks/x")); err != nil {
			t.Fatalf("SaveWorkflow failed: %v", err)
		}
		_, err := s.SaveWorkflow(ctx, newTestWorkflow("b", "/hooks/x"))
		if !errors.Is(err, ErrAlreadyExists) {
			t.Errorf("expected ErrAlreadyExists, got %v", err)
		}
	})

	t.Run("UpdateWorkflowMovesEndpoint", func(t *testing.T) {
		s := newStorage(t)
		ctx := context.Background()

		wf := newTestWorkflow("a", "/hooks/old")
		if _, err := s.SaveWorkflow(ctx, wf); err != nil {
			t.Fatalf("SaveWorkflow failed: %v", err)
		}
		wf.Params[domain.ParamEndpoint] = domain.String("/hooks/new")
		if _, err := s.SaveWorkflow(ctx, wf); err != nil {
			t.Fatalf("re-save failed: %v", err)
		}

		if _, err := s.GetWorkflowByEndpoint(ctx, "/hooks/old"); !errors.Is(err, ErrNotFound) {
			t.Errorf("old endpoint should be released, got %v", err)
		}
		// Освобождённый путь можно занять другим workflow
		if _, err := s.SaveWorkflow(ctx, newTestWorkflow("b", "/hooks/old")); err != nil {
			t.Errorf("expected old endpoint to be free, got %v", err)
		}
	})

	t.Run("ListWorkflows", func(t *testing.T) {
		s := newStorage(t)
		ctx := context.Background()

		for _, name := range []string{"charlie", "alpha", "bravo"} {
			if _, err := s.SaveWorkflow(ctx, newTestWorkflow(name, "")); err != nil {
				t.Fatalf("SaveWorkflow failed: %v", err)
			}
		}

		list, err := s.ListWorkflows(ctx)
		if err != nil {
			t.Fatalf("ListWorkflows failed: %v", err)
		}
		if len(list) != 3 {
			t.Fatalf("expected 3 workflows, got %d", len(list))
		}
		if list[0].Name != "alpha" || list[2].Name != "charlie" {
			t.Errorf("expected sorted by name, got %s, %s, %s", list[0].Name, list[1].Name, list[2].Name)
		}
	})

	t.Run("DeleteWorkflowRemovesRuns", func(t *testing.T) {
		s := newStorage(t)
		ctx := context.Background()

		wf := newTestWorkflow("doomed", "/hooks/doomed")
		if _, err := s.SaveWorkflow(ctx, wf); err != nil {
			t.Fatalf("SaveWorkflow failed: %v", err)
		}
		run, err := s.CreateRun(ctx, wf.ID)
		if err != nil {
			t.Fatalf("CreateRun failed: %v", err)
		}

		deleted, err := s.DeleteWorkflow(ctx, wf.ID)
		if err != nil || !deleted {
			t.Fatalf("expected deletion, got %v, %v", deleted, err)
		}
		if _, err := s.GetRun(ctx, run.ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected run to be deleted, got %v", err)
		}
		if _, err := s.GetWorkflowByEndpoint(ctx, "/hooks/doomed"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected endpoint to be released, got %v", err)
		}

		deleted, err = s.DeleteWorkflow(ctx, wf.ID)
		if err != nil || deleted {
			t.Errorf("second delete should report false, got %v, %v", deleted, err)
		}
	})

	t.Run("CreateRunUnknownWorkflow", func(t *testing.T) {
		s := newStorage(t)
		if _, err := s.CreateRun(context.Background(), uuid.New()); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("RunLifecycle", func(t *testing.T) {
		s := newStorage(t)
		ctx := context.Background()

		wf := newTestWorkflow("lifecycle", "")
		if _, err := s.SaveWorkflow(ctx, wf); err != nil {
			t.Fatalf("SaveWorkflow failed: %v", err)
		}
		run, err := s.CreateRun(ctx, wf.ID)
		if err != nil {
			t.Fatalf("CreateRun failed: %v", err)
		}
		if run.State != domain.StatePending || run.WorkflowName != "lifecycle" {
			t.Fatalf("unexpected new run: %+v", run)
		}

		run.MarkRunning()
		outcome := domain.NewStepOutcome(&wf.Steps[0])
		outcome.Result = "ok"
		outcome.Finish(domain.StateCompleted, "")
		run.AppendStep(outcome)
		if err := s.UpdateRun(ctx, run); err != nil {
			t.Fatalf("UpdateRun failed: %v", err)
		}

		run.MarkCompleted()
		if err := s.UpdateRun(ctx, run); err != nil {
			t.Fatalf("UpdateRun failed: %v", err)
		}

		got, err := s.GetRun(ctx, run.ID)
		if err != nil {
			t.Fatalf("GetRun failed: %v", err)
		}
		if got.State != domain.StateCompleted {
			t.Errorf("expected COMPLETED, got %s", got.State)
		}
		if len(got.Steps) != 1 || got.Steps[0].StepID != "fetch" {
			t.Errorf("expected step outcome to be stored, got %+v", got.Steps)
		}

		// Завершённый run больше не изменяется
		run.MarkFailed("late failure")
		if err := s.UpdateRun(ctx, run); !errors.Is(err, ErrInvalidState) {
			t.Errorf("expected ErrInvalidState, got %v", err)
		}
		got, _ = s.GetRun(ctx, run.ID)
		if got.State != domain.StateCompleted {
			t.Errorf("finished run was overwritten: %s", got.State)
		}
	})

	t.Run("CancelledRunAcceptsOutcomes", func(t *testing.T) {
		s := newStorage(t)
		ctx := context.Background()

		wf := newTestWorkflow("cancelled", "")
		if _, err := s.SaveWorkflow(ctx, wf); err != nil {
			t.Fatalf("SaveWorkflow failed: %v", err)
		}
		run, err := s.CreateRun(ctx, wf.ID)
		if err != nil {
			t.Fatalf("CreateRun failed: %v", err)
		}
		run.MarkRunning()
		if err := s.UpdateRun(ctx, run); err != nil {
			t.Fatalf("UpdateRun failed: %v", err)
		}

		// Отмена сохраняет run без результата шага, который ещё выполняется
		cancelled := run.Clone()
		cancelled.MarkCancelled("run cancelled")
		if err := s.UpdateRun(ctx, cancelled); err != nil {
			t.Fatalf("UpdateRun failed: %v", err)
		}

		// Выполнение в RUNNING больше не записывается
		if err := s.UpdateRun(ctx, run); !errors.Is(err, ErrInvalidState) {
			t.Errorf("expected ErrInvalidState, got %v", err)
		}

		// Выполняющая сторона дописывает отменённый результат шага
		outcome := domain.NewStepOutcome(&wf.Steps[0])
		outcome.Finish(domain.StateCancelled, "step cancelled")
		run.AppendStep(outcome)
		run.MarkCancelled("run cancelled")
		if err := s.UpdateRun(ctx, run); err != nil {
			t.Fatalf("expected cancelled run to accept outcomes, got %v", err)
		}

		got, _ := s.GetRun(ctx, run.ID)
		if got.State != domain.StateCancelled {
			t.Errorf("expected CANCELLED, got %s", got.State)
		}
		if len(got.Steps) != 1 || got.Steps[0].State != domain.StateCancelled {
			t.Fatalf("expected cancelled step outcome, got %+v", got.Steps)
		}

		// Запись с меньшим числом результатов и другие состояния отклоняются
		if err := s.UpdateRun(ctx, cancelled); !errors.Is(err, ErrInvalidState) {
			t.Errorf("expected ErrInvalidState for fewer outcomes, got %v", err)
		}
		run.MarkCompleted()
		if err := s.UpdateRun(ctx, run); !errors.Is(err, ErrInvalidState) {
			t.Errorf("expected ErrInvalidState for COMPLETED, got %v", err)
		}
		got, _ = s.GetRun(ctx, run.ID)
		if got.State != domain.StateCancelled || len(got.Steps) != 1 {
			t.Errorf("cancelled run was overwritten: %s, %d steps", got.State, len(got.Steps))
		}
	})

	t.Run("UpdateRunNotFound", func(t *testing.T) {
		s := newStorage(t)
		wf := newTestWorkflow("ghost", "")
		wf.ID = uuid.New()
		if err := s.UpdateRun(context.Background(), domain.NewRun(wf)); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("History", func(t *testing.T) {
		s := newStorage(t)
		ctx := context.Background()

		wf := newTestWorkflow("history", "")
		other := newTestWorkflow("other", "")
		for _, w := range []*domain.Workflow{wf, other} {
			if _, err := s.SaveWorkflow(ctx, w); err != nil {
				t.Fatalf("SaveWorkflow failed: %v", err)
			}
		}

		var ids []uuid.UUID
		for range 3 {
			run, err := s.CreateRun(ctx, wf.ID)
			if err != nil {
				t.Fatalf("CreateRun failed: %v", err)
			}
			ids = append(ids, run.ID)
			time.Sleep(2 * time.Millisecond)
		}
		if _, err := s.CreateRun(ctx, other.ID); err != nil {
			t.Fatalf("CreateRun failed: %v", err)
		}

		runs, err := s.History(ctx, HistoryFilter{WorkflowID: wf.ID})
		if err != nil {
			t.Fatalf("History failed: %v", err)
		}
		if len(runs) != 3 {
			t.Fatalf("expected 3 runs, got %d", len(runs))
		}
		if runs[0].ID != ids[2] || runs[2].ID != ids[0] {
			t.Error("expected most recent run first")
		}

		runs, err = s.History(ctx, HistoryFilter{WorkflowName: "history", Limit: 2})
		if err != nil {
			t.Fatalf("History failed: %v", err)
		}
		if len(runs) != 2 || runs[0].ID != ids[2] {
			t.Errorf("expected 2 most recent runs, got %d", len(runs))
		}

		runs, err = s.History(ctx, HistoryFilter{})
		if err != nil || len(runs) != 0 {
			t.Errorf("empty filter should return nothing, got %d, %v", len(runs), err)
		}
	})
}
