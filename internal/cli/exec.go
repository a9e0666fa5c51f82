package cli

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shaiso/Cascade/internal/domain"
	"github.com/shaiso/Cascade/internal/orchestrator"
	"github.com/shaiso/Cascade/internal/repo"
	"github.com/shaiso/Cascade/internal/steps"
	"github.com/shaiso/Cascade/internal/telemetry"
)

// ExecOptions — параметры локального запуска.
type ExecOptions struct {
	// Registry — по умолчанию steps.DefaultRegistry().
	Registry *steps.Registry

	// Logger — по умолчанию логи отбрасываются.
	Logger *slog.Logger
}

// ExecWorkflow выполняет workflow в процессе с memory-хранилищем
// и возвращает финальный run. Отмена ctx отменяет run.
func ExecWorkflow(ctx context.Context, wf *domain.Workflow, opts ExecOptions) (*domain.Run, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	orch := orchestrator.New(orchestrator.Config{
		Storage:  repo.NewMemoryStorage(),
		Registry: opts.Registry,
		Logger:   logger,
	})
	defer orch.Stop()

	return orch.ExecuteWorkflow(ctx, wf, nil)
}

// NewExecCmd создаёт команду локального запуска workflow без сервера.
func NewExecCmd(outputFn func() *Output) *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:   "exec FILE",
		Short: "Run a workflow file in-process and print the outcome tree",
		Long: `Runs the workflow locally with in-memory storage.
Interrupt (Ctrl+C) cancels the run; running processes are killed.
Exit status is non-zero unless the run completes.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			definition, err := ReadDefinition(args[0])
			if err != nil {
				return err
			}
			wf, err := DecodeWorkflow(definition)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var logger *slog.Logger
			if logLevel != "" {
				logger = telemetry.NewLogger(os.Stderr, logLevel, "text")
			}

			run, err := ExecWorkflow(ctx, wf, ExecOptions{Logger: logger})
			if err != nil {
				return err
			}

			outputFn().Run(run)
			return runResult(run)
		},
	}

	cmd.Flags().StringVar(&logLevel, "log-level", "", "Log engine events to stderr (DEBUG, INFO, WARN, ERROR)")

	return cmd
}
