package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/erpsim/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Database string
	RunID    string
	Limit    int
}

// RunDetail is one run with its case rows.
type RunDetail struct {
	Run   store.Run          `json:"run"`
	Cases []store.CaseRecord `json:"cases"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded test runs",
		Long: `Show runs recorded by "erpsim test --db".

Without --run, lists the most recent runs. With --run, shows the
per-case results of that run.

Examples:
  erpsim history --db history.db
  erpsim history --db history.db --limit 5
  erpsim history --db history.db --run 0192f3c4-... --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite history database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "show the cases of this run")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum runs to list (0 for all)")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	// Open would create an empty database; a typo should not.
	if _, err := os.Stat(opts.Database); os.IsNotExist(err) {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("database not found: %s", opts.Database), nil)
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open history database", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if opts.RunID != "" {
		return showRun(ctx, st, opts.RunID, formatter)
	}

	runs, err := st.ListRuns(ctx, opts.Limit)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(runs)
	}

	if len(runs) == 0 {
		fmt.Fprintln(formatter.Writer, "No runs recorded.")
		return nil
	}

	tw := tabwriter.NewWriter(formatter.Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTARTED\tSTATUS\tPASSED\tFAILED")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\n", r.ID, r.StartedAt.Format(time.RFC3339), r.Status, r.Passed, r.Failed)
	}
	return tw.Flush()
}

func showRun(ctx context.Context, st *store.Store, runID string, formatter *OutputFormatter) error {
	run, err := st.GetRun(ctx, runID)
	if errors.Is(err, store.ErrRunNotFound) {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("run not found: %s", runID), nil)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}

	cases, err := st.ReadCases(ctx, runID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read cases", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(RunDetail{Run: run, Cases: cases})
	}

	w := formatter.Writer
	fmt.Fprintf(w, "Run %s (%s)\n", run.ID, run.Status)
	fmt.Fprintf(w, "  examples: %s\n", run.ExamplesDir)
	fmt.Fprintf(w, "  api:      %s\n", run.APIURL)
	fmt.Fprintf(w, "  started:  %s\n", run.StartedAt.Format(time.RFC3339))
	fmt.Fprintln(w)
	for _, c := range cases {
		mark := "✓"
		if !c.Pass {
			mark = "✗"
		}
		fmt.Fprintf(w, "%s %s (%d, %dms)\n", mark, c.Name, c.StatusCode, c.DurationMS)
		for _, e := range c.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}
	return nil
}
