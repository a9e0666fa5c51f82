package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/shaiso/Cascade/internal/domain"
)

// NewRunCmd создаёт группу команд управления run.
func NewRunCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Manage runs",
	}

	cmd.AddCommand(
		newRunStartCmd(clientFn, outputFn),
		newRunShowCmd(clientFn, outputFn),
		newRunCancelCmd(clientFn, outputFn),
		newRunHistoryCmd(clientFn, outputFn),
	)

	return cmd
}

func newRunStartCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:   "start WORKFLOW_ID",
		Short: "Start a run of a workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			run, err := clientFn().StartRun(cmd.Context(), args[0], wait)
			if err != nil {
				return err
			}

			out := outputFn()
			if !wait {
				out.Success(fmt.Sprintf("Run started: %s", run.ID))
				out.Print(
					[]string{"ID", "WORKFLOW", "STATE", "CREATED"},
					[][]string{{run.ID.String(), run.WorkflowName, run.State.String(), formatTime(run.CreatedAt)}},
					run,
				)
				return nil
			}

			out.Run(&run.Run)
			return runResult(&run.Run)
		},
	}

	cmd.Flags().BoolVar(&wait, "wait", false, "Wait for the run to finish and print the outcome tree")

	return cmd
}

func newRunShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show a run with its step outcomes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			run, err := clientFn().GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			outputFn().Run(&run.Run)
			return nil
		},
	}
}

func newRunCancelCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel ID",
		Short: "Cancel a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := clientFn().CancelRun(cmd.Context(), args[0]); err != nil {
				return err
			}
			outputFn().Success(fmt.Sprintf("Run cancelled: %s", args[0]))
			return nil
		},
	}
}

func newRunHistoryCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history WORKFLOW_ID",
		Short: "List recent runs of a workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runs, err := clientFn().History(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}

			headers := []string{"ID", "STATE", "DURATION", "CREATED", "ERROR"}
			rows := make([][]string, len(runs))
			for i, r := range runs {
				rows[i] = []string{r.ID, r.State, strconv.FormatInt(r.DurationMS, 10) + "ms", formatTime(r.CreatedAt), r.Error}
			}

			outputFn().Print(headers, rows, runs)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of runs (server default if 0)")

	return cmd
}

// RunStateError — run завершился не в COMPLETED.
type RunStateError struct {
	State domain.ExecutionState
}

// Error реализует интерфейс error.
func (e *RunStateError) Error() string {
	return "run finished with state " + e.State.String()
}

// runResult превращает финальное состояние run в код выхода.
func runResult(run *domain.Run) error {
	if run.State == domain.StateCompleted {
		return nil
	}
	return &RunStateError{State: run.State}
}
