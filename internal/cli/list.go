package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/erpsim/internal/harness"
)

// ListOptions holds flags for the list command.
type ListOptions struct {
	*RootOptions
	Filter string
}

// CaseInfo describes one example case.
type CaseInfo struct {
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	Path         string `json:"path"`
	EventName    string `json:"event_name,omitempty"`
	ExpectStatus int    `json:"expect_status,omitempty"`
	Assertions   int    `json:"assertions"`
	Error        string `json:"error,omitempty"`
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list <examples-dir>",
		Short: "List example cases",
		Long: `List the example cases in a directory with their descriptions.

Examples:
  erpsim list ./examples
  erpsim list ./examples --filter "*meter*" --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter cases by glob pattern")

	return cmd
}

func runList(opts *ListOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("examples directory not found: %s", dir), nil)
	}

	files, err := harness.FindScenarioFiles(dir, opts.Filter)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
	}

	cases := make([]CaseInfo, 0, len(files))
	for _, path := range files {
		scenario, err := harness.LoadScenario(path)
		if err != nil {
			cases = append(cases, CaseInfo{Path: path, Error: err.Error()})
			continue
		}
		cases = append(cases, CaseInfo{
			Name:         scenario.Name,
			Description:  scenario.Description,
			Path:         path,
			EventName:    scenario.EventName,
			ExpectStatus: scenario.ExpectStatus,
			Assertions:   len(scenario.Assertions),
		})
	}

	if formatter.Format == "json" {
		return formatter.Success(cases)
	}

	if len(cases) == 0 {
		fmt.Fprintln(formatter.Writer, "No cases found.")
		return nil
	}

	tw := tabwriter.NewWriter(formatter.Writer, 0, 0, 2, ' ', 0)
	for _, c := range cases {
		if c.Error != "" {
			fmt.Fprintf(tw, "%s\t(load error: %s)\n", c.Path, c.Error)
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\n", c.Name, c.Description)
	}
	return tw.Flush()
}
