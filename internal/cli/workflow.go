package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/shaiso/Cascade/internal/domain"
	"github.com/shaiso/Cascade/internal/engine"
)

// NewWorkflowCmd создаёт группу команд управления workflow.
func NewWorkflowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "workflow",
		Aliases: []string{"wf"},
		Short:   "Manage workflows",
	}

	cmd.AddCommand(
		newWorkflowListCmd(clientFn, outputFn),
		newWorkflowShowCmd(clientFn, outputFn),
		newWorkflowCreateCmd(clientFn, outputFn),
		newWorkflowDeleteCmd(clientFn, outputFn),
		newWorkflowValidateCmd(clientFn, outputFn),
	)

	return cmd
}

func newWorkflowListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List workflows",
		RunE: func(cmd *cobra.Command, args []string) error {
			workflows, err := clientFn().ListWorkflows(cmd.Context())
			if err != nil {
				return err
			}

			headers := []string{"ID", "NAME", "STEPS", "ENDPOINT", "SCHEDULE", "UPDATED"}
			rows := make([][]string, len(workflows))
			for i, wf := range workflows {
				rows[i] = []string{wf.ID, wf.Name, strconv.Itoa(wf.Steps), wf.Endpoint, wf.Schedule, formatTime(wf.UpdatedAt)}
			}

			outputFn().Print(headers, rows, workflows)
			return nil
		},
	}
}

func newWorkflowShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show workflow details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wf, err := clientFn().GetWorkflow(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := outputFn()
			if out.jsonMode {
				out.JSON(wf)
				return nil
			}

			next := "-"
			if wf.NextRunAt != nil {
				next = formatTime(*wf.NextRunAt)
			}
			out.Table(
				[]string{"ID", "NAME", "KIND", "ENDPOINT", "SCHEDULE", "NEXT", "CREATED"},
				[][]string{{wf.ID, wf.Name, wf.Kind, wf.Endpoint, wf.Schedule, next, formatTime(wf.CreatedAt)}},
			)
			fmt.Fprintln(out.w)
			writeSteps(out.w, wf.Steps, "")
			return nil
		},
	}
}

// writeSteps рисует дерево шагов определения.
func writeSteps(w io.Writer, steps []domain.Step, indent string) {
	for i := range steps {
		branch, next := "├─ ", "│  "
		if i == len(steps)-1 {
			branch, next = "└─ ", "   "
		}
		fmt.Fprintf(w, "%s%s%s [%s]\n", indent, branch, steps[i].ID, steps[i].Kind)
		writeSteps(w, steps[i].Steps, indent+next)
	}
}

func newWorkflowCreateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "create FILE",
		Short: "Create a workflow from a JSON file (- for stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			definition, err := ReadDefinition(args[0])
			if err != nil {
				return err
			}

			wf, err := clientFn().CreateWorkflow(cmd.Context(), definition)
			if err != nil {
				return err
			}

			out := outputFn()
			out.Success(fmt.Sprintf("Workflow created: %s", wf.ID))
			out.Print(
				[]string{"ID", "NAME", "STEPS", "ENDPOINT"},
				[][]string{{wf.ID, wf.Name, strconv.Itoa(len(wf.Steps)), wf.Endpoint}},
				wf,
			)
			return nil
		},
	}
}

func newWorkflowDeleteCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a workflow and its run history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := clientFn().DeleteWorkflow(cmd.Context(), args[0]); err != nil {
				return err
			}
			outputFn().Success(fmt.Sprintf("Workflow deleted: %s", args[0]))
			return nil
		},
	}
}

func newWorkflowValidateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:   "validate FILE",
		Short: "Validate a workflow file without saving it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			definition, err := ReadDefinition(args[0])
			if err != nil {
				return err
			}

			var result *ValidateResponse
			if offline {
				result, err = validateLocal(definition)
			} else {
				result, err = clientFn().ValidateWorkflow(cmd.Context(), definition)
			}
			if err != nil {
				return err
			}

			out := outputFn()
			if out.jsonMode {
				out.JSON(result)
			} else if result.Valid {
				out.Success("Workflow is valid")
			} else {
				for _, p := range result.Problems {
					fmt.Fprintln(out.w, "- "+p)
				}
			}

			if !result.Valid {
				return fmt.Errorf("%w: %d problem(s)", engine.ErrInvalidWorkflow, len(result.Problems))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&offline, "offline", false, "Validate locally without the API")

	return cmd
}

// validateLocal проверяет определение теми же правилами, что и сервер.
func validateLocal(definition json.RawMessage) (*ValidateResponse, error) {
	wf, err := DecodeWorkflow(definition)
	if err != nil {
		return nil, err
	}

	problems := append(engine.Validate(wf), engine.DetectCycles(wf)...)
	return &ValidateResponse{Valid: len(problems) == 0, Problems: problems}, nil
}

// ReadDefinition читает JSON-определение workflow из файла ("-" — stdin).
func ReadDefinition(path string) (json.RawMessage, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read workflow file: %w", err)
	}

	if !json.Valid(data) {
		return nil, fmt.Errorf("workflow file %s is not valid JSON", path)
	}
	return data, nil
}

// DecodeWorkflow декодирует определение workflow.
func DecodeWorkflow(definition json.RawMessage) (*domain.Workflow, error) {
	var wf domain.Workflow
	if err := json.Unmarshal(definition, &wf); err != nil {
		return nil, fmt.Errorf("decode workflow: %w", err)
	}
	return &wf, nil
}
