package repo

import (
	"context"
	"sync"
	"testing"

	"github.com/shaiso/Cascade/internal/domain"
)

func TestMemoryStorage(t *testing.T) {
	testStorage(t, func(t *testing.T) Storage {
		return NewMemoryStorage()
	})
}

func TestMemoryStorage_ReturnsCopies(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()

	wf := newTestWorkflow("copy", "")
	if _, err := s.SaveWorkflow(ctx, wf); err != nil {
		t.Fatalf("SaveWorkflow failed: %v", err)
	}

	got, _ := s.GetWorkflow(ctx, wf.ID)
	got.Name = "mutated"
	got.Steps[0].ID = "mutated"

	again, _ := s.GetWorkflow(ctx, wf.ID)
	if again.Name != "copy" || again.Steps[0].ID != "fetch" {
		t.Error("stored workflow was mutated through returned copy")
	}

	run, _ := s.CreateRun(ctx, wf.ID)
	run.MarkRunning()

	stored, _ := s.GetRun(ctx, run.ID)
	if stored.State != domain.StatePending {
		t.Error("stored run changed without UpdateRun")
	}
}

func TestMemoryStorage_ConcurrentUpdates(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()

	wf := newTestWorkflow("concurrent", "")
	if _, err := s.SaveWorkflow(ctx, wf); err != nil {
		t.Fatalf("SaveWorkflow failed: %v", err)
	}

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			run, err := s.CreateRun(ctx, wf.ID)
			if err != nil {
				t.Errorf("CreateRun failed: %v", err)
				return
			}
			run.MarkRunning()
			if err := s.UpdateRun(ctx, run); err != nil {
				t.Errorf("UpdateRun failed: %v", err)
			}
		}()
	}
	wg.Wait()

	runs, err := s.History(ctx, HistoryFilter{WorkflowID: wf.ID})
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(runs) != 10 {
		t.Errorf("expected 10 runs, got %d", len(runs))
	}
}

func TestMemoryStorage_CancelledContext(t *testing.T) {
	s := NewMemoryStorage()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.ListWorkflows(ctx); err == nil {
		t.Error("expected context error")
	}
}
