package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// NewWorkflowCmd создаёт группу команд для управления workflows.
func NewWorkflowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "workflow",
		Aliases: []string{"wf"},
		Short:   "Manage workflow definitions",
	}

	cmd.AddCommand(
		newWorkflowListCmd(clientFn, outputFn),
		newWorkflowShowCmd(clientFn, outputFn),
		newWorkflowRegisterCmd(clientFn, outputFn),
	)

	return cmd
}

func newWorkflowListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered workflows",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			workflows, err := client.ListWorkflows()
			if err != nil {
				return err
			}

			headers := []string{"ID", "NAME", "STEPS", "TRIGGERS"}
			rows := make([][]string, len(workflows))
			for i, wf := range workflows {
				rows[i] = []string{wf.ID, wf.Name, strconv.Itoa(wf.Steps), strings.Join(wf.Triggers, ",")}
			}

			out.Print(headers, rows, workflows)
			return nil
		},
	}
}

func newWorkflowShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var asYAML bool

	cmd := &cobra.Command{
		Use:   "show ID",
		Short: "Show workflow definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			def, err := client.GetWorkflow(args[0])
			if err != nil {
				return err
			}

			if asYAML {
				data, err := yaml.Marshal(def)
				if err != nil {
					return fmt.Errorf("failed to encode yaml: %w", err)
				}
				out.Raw(data)
				return nil
			}

			headers := []string{"STEP", "KIND", "DEPENDS_ON", "TIMEOUT"}
			rows := make([][]string, len(def.Steps))
			for i, s := range def.Steps {
				timeout := "-"
				if s.TimeoutSec > 0 {
					timeout = strconv.Itoa(s.TimeoutSec) + "s"
				}
				rows[i] = []string{s.ID, s.Kind, strings.Join(s.DependsOn, ","), timeout}
			}

			out.Print(headers, rows, def)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asYAML, "yaml", false, "Print definition as YAML")

	return cmd
}

func newWorkflowRegisterCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "register [ID] --file FILE",
		Short: "Register or replace a workflow from a YAML/JSON file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			body, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", file, err)
			}

			id := ""
			if len(args) == 1 {
				id = args[0]
			} else {
				id, err = definitionID(body)
				if err != nil {
					return err
				}
			}

			def, err := client.RegisterWorkflow(id, body, contentTypeFor(file))
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Workflow registered: %s", def.ID))
			out.Print(
				[]string{"ID", "NAME", "STEPS"},
				[][]string{{def.ID, def.Name, strconv.Itoa(len(def.Steps))}},
				def,
			)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Path to workflow definition (YAML or JSON)")
	cmd.MarkFlagRequired("file")

	return cmd
}

// definitionID читает id из определения. JSON — подмножество YAML,
// поэтому yaml.v3 разбирает оба формата.
func definitionID(body []byte) (string, error) {
	var head struct {
		ID string `yaml:"id"`
	}
	if err := yaml.Unmarshal(body, &head); err != nil {
		return "", fmt.Errorf("failed to parse definition: %w", err)
	}
	if head.ID == "" {
		return "", fmt.Errorf("definition has no id, pass ID as argument")
	}
	return head.ID, nil
}
