package cli

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// NewExecutionCmd создаёт группу команд для управления executions.
func NewExecutionCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "execution",
		Aliases: []string{"exec"},
		Short:   "Manage workflow executions",
	}

	cmd.AddCommand(
		newExecutionListCmd(clientFn, outputFn),
		newExecutionStartCmd(clientFn, outputFn),
		newExecutionShowCmd(clientFn, outputFn),
		newExecutionCancelCmd(clientFn, outputFn),
	)

	return cmd
}

func executionRow(e *ExecutionResponse) []string {
	return []string{
		e.ID,
		e.WorkflowID,
		e.Status,
		formatDuration(e.DurationMs),
		e.Error,
	}
}

var executionHeaders = []string{"ID", "WORKFLOW", "STATUS", "DURATION", "ERROR"}

func newExecutionListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var workflowID string
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List executions",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			execs, err := client.ListExecutions(ListExecutionsOpts{
				WorkflowID: workflowID,
				Status:     status,
			})
			if err != nil {
				return err
			}

			rows := make([][]string, len(execs))
			for i := range execs {
				rows[i] = executionRow(&execs[i])
			}

			out.Print(executionHeaders, rows, execs)
			return nil
		},
	}

	cmd.Flags().StringVar(&workflowID, "workflow", "", "Filter by workflow ID")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (pending, running, completed, failed, cancelled)")

	return cmd
}

func newExecutionStartCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var vars []string
	var wait bool
	var interval time.Duration
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "start WORKFLOW_ID",
		Short: "Start a workflow execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			variables, err := parseVars(vars)
			if err != nil {
				return err
			}

			exec, err := client.StartExecution(args[0], StartExecutionRequest{Variables: variables})
			if err != nil {
				return err
			}
			out.Success(fmt.Sprintf("Execution started: %s", exec.ID))

			if wait {
				exec, err = client.WaitExecution(exec.ID, interval, timeout)
				if err != nil {
					return err
				}
			}

			out.Print(executionHeaders, [][]string{executionRow(exec)}, exec)

			if wait && exec.Status != "completed" {
				return fmt.Errorf("execution %s finished with status %s", exec.ID, exec.Status)
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&vars, "var", nil, "Variable as KEY=VALUE (repeatable, VALUE may be JSON)")
	cmd.Flags().BoolVar(&wait, "wait", false, "Wait until the execution finishes")
	cmd.Flags().DurationVar(&interval, "poll-interval", 500*time.Millisecond, "Polling interval for --wait")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Maximum time to wait (0 = no limit)")

	return cmd
}

func newExecutionShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show execution with its steps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			exec, err := client.GetExecution(args[0])
			if err != nil {
				return err
			}

			if out.IsJSON() {
				out.JSON(exec)
				return nil
			}

			out.Table(executionHeaders, [][]string{executionRow(exec)})
			out.Newline()

			rows := make([][]string, len(exec.Steps))
			for i, s := range exec.Steps {
				rows[i] = []string{s.StepID, s.Status, s.Error}
			}
			out.Table([]string{"STEP", "STATUS", "ERROR"}, rows)
			return nil
		},
	}
}

func newExecutionCancelCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel ID",
		Short: "Cancel a running execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			exec, err := client.CancelExecution(args[0])
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Execution %s: %s", exec.ID, exec.Status))
			out.Print(executionHeaders, [][]string{executionRow(exec)}, exec)
			return nil
		},
	}
}

// parseVars разбирает KEY=VALUE. VALUE, являющийся корректным JSON
// (число, bool, объект, массив), декодируется; иначе остаётся строкой.
func parseVars(kvs []string) (map[string]any, error) {
	if len(kvs) == 0 {
		return nil, nil
	}

	vars := make(map[string]any, len(kvs))
	for _, kv := range kvs {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid variable format %q, expected KEY=VALUE", kv)
		}

		var decoded any
		if err := json.Unmarshal([]byte(value), &decoded); err == nil {
			vars[key] = decoded
		} else {
			vars[key] = value
		}
	}
	return vars, nil
}

func formatDuration(ms int64) string {
	if ms < 1000 {
		return strconv.FormatInt(ms, 10) + "ms"
	}
	return (time.Duration(ms) * time.Millisecond).Round(100 * time.Millisecond).String()
}
