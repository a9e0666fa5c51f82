//go:build unix

package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/shaiso/Cascade/internal/domain"
	"github.com/shaiso/Cascade/internal/repo"
	"github.com/shaiso/Cascade/internal/steps"
)

// waitForFile ждёт появления непустого файла.
func waitForFile(t *testing.T, path string) string {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		data, err := os.ReadFile(path)
		if err == nil && len(strings.TrimSpace(string(data))) > 0 {
			return strings.TrimSpace(string(data))
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("file %s did not appear", path)
	return ""
}

func TestCancelExecution_KillsProcess(t *testing.T) {
	storage := repo.NewMemoryStorage()
	o := New(Config{Storage: storage, Registry: steps.DefaultRegistry()})
	defer o.Stop()

	pidFile := filepath.Join(t.TempDir(), "pid")
	wf := &domain.Workflow{
		Name: "long-process",
		Kind: domain.WorkflowKindStandard,
		Steps: []domain.Step{{
			ID:   "sleeper",
			Kind: domain.StepKindBatch,
			Params: domain.Params{
				"command": domain.String("sh"),
				"args":    domain.Strings("-c", "echo $$ > "+pidFile+"; exec sleep 30"),
			},
		}},
	}

	ctx := context.Background()
	run, err := o.Submit(ctx, wf)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	pid, err := strconv.Atoi(waitForFile(t, pidFile))
	if err != nil {
		t.Fatalf("invalid pid: %v", err)
	}

	start := time.Now()
	ok, err := o.CancelExecution(ctx, run.ID)
	if err != nil || !ok {
		t.Fatalf("expected cancellation, got %v, %v", ok, err)
	}
	o.Wait()

	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("process was not terminated promptly: %v", elapsed)
	}
	if err := syscall.Kill(pid, 0); !errors.Is(err, syscall.ESRCH) {
		t.Errorf("process %d still running (kill: %v)", pid, err)
	}

	stored, _ := storage.GetRun(ctx, run.ID)
	if stored.State != domain.StateCancelled {
		t.Fatalf("expected CANCELLED, got %s", stored.State)
	}
	if len(stored.Steps) != 1 {
		t.Fatalf("expected outcome of the killed step, got %d outcomes", len(stored.Steps))
	}
	if stored.Steps[0].StepID != "sleeper" || stored.Steps[0].State != domain.StateCancelled {
		t.Errorf("expected sleeper CANCELLED, got %s %s", stored.Steps[0].StepID, stored.Steps[0].State)
	}
}

func TestExecuteWorkflow_ProcessTimeoutFailsStep(t *testing.T) {
	o := New(Config{Storage: repo.NewMemoryStorage(), Registry: steps.DefaultRegistry()})
	defer o.Stop()

	wf := &domain.Workflow{
		Name: "slow-process",
		Kind: domain.WorkflowKindStandard,
		Steps: []domain.Step{{
			ID:   "sleeper",
			Kind: domain.StepKindExecutable,
			Params: domain.Params{
				"command":         domain.String("sleep"),
				"args":            domain.Strings("5"),
				"timeout_seconds": domain.Int(1),
			},
		}},
	}

	run, err := o.ExecuteWorkflow(context.Background(), wf, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Собственный таймаут шага — FAILED, а не CANCELLED
	if run.State != domain.StateFailed {
		t.Fatalf("expected FAILED, got %s", run.State)
	}
	if !strings.Contains(run.Error, steps.ErrStepTimeout.Error()) {
		t.Errorf("expected timeout error, got %q", run.Error)
	}
}
