package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/erpsim/internal/canonical"
	"github.com/roach88/erpsim/internal/harness"
	"github.com/roach88/erpsim/internal/metrics"
	"github.com/roach88/erpsim/internal/simclient"
	"github.com/roach88/erpsim/internal/store"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	APIOptions
	Update   bool   // regenerate golden files
	Filter   string // case filter (glob pattern)
	Database string // history database, overrides ERPSIM_HISTORY_DB
	Metrics  bool   // print the metrics summary
}

// CaseResult holds the result of a single case execution.
type CaseResult struct {
	Name       string   `json:"name"`
	Pass       bool     `json:"pass"`
	StatusCode int      `json:"status_code,omitempty"`
	DurationMS int64    `json:"duration_ms"`
	Errors     []string `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Cases   []CaseResult     `json:"cases"`
	Passed  int              `json:"passed"`
	Failed  int              `json:"failed"`
	Total   int              `json:"total"`
	Metrics *metrics.Summary `json:"metrics,omitempty"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <examples-dir>",
		Short: "Run the examples against the simulation service",
		Long: `Run every example case against the mapping-simulation API.

Each case's mapping is validated locally, sent with its event to the
simulation endpoint, and the response is checked against the case's
assertions. When golden/<name>.golden exists next to a case, the canonical
response must match it; --update rewrites it.

Exit codes:
  0 - All cases passed
  1 - One or more cases failed
  2 - Command error (missing directory, no API URL, etc.)

Examples:
  erpsim test ./examples --api-url https://erp.example.com
  erpsim test ./examples --filter "*relations*"
  erpsim test ./examples --update
  erpsim test ./examples --db history.db --metrics --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	opts.APIOptions.bind(cmd)
	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter cases by glob pattern")
	cmd.Flags().StringVar(&opts.Database, "db", "", "record the run in this SQLite database (env ERPSIM_HISTORY_DB)")
	cmd.Flags().BoolVar(&opts.Metrics, "metrics", false, "print simulation metrics")

	return cmd
}

// testRun carries the collaborators for one invocation of the test command.
type testRun struct {
	opts      *TestOptions
	sim       simclient.Simulator
	collector *metrics.Collector
	logger    *slog.Logger
	history   *store.Store
	runID     string
	w         io.Writer
}

func runTests(opts *TestOptions, dir string, cmd *cobra.Command) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return NewExitError(ExitCommandError, fmt.Sprintf("examples directory not found: %s", dir))
	}

	cfg, err := opts.APIOptions.resolve(cmd)
	if err != nil {
		return err
	}

	logger := setupLogging(opts.RootOptions, cmd.ErrOrStderr())
	client, err := newClient(cfg, logger)
	if err != nil {
		return err
	}

	files, err := harness.FindScenarioFiles(dir, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find cases", err)
	}

	if len(files) == 0 {
		if opts.Format == "json" {
			return outputTestJSON(cmd, TestResult{Cases: []CaseResult{}}, "")
		}
		fmt.Fprintln(cmd.OutOrStdout(), "No cases found.")
		return nil
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	run := &testRun{
		opts:      opts,
		sim:       client,
		collector: metrics.NewCollector(),
		logger:    logger,
		w:         cmd.OutOrStdout(),
	}

	dbPath := opts.Database
	if dbPath == "" {
		dbPath = cfg.HistoryDB
	}
	if dbPath != "" {
		st, err := store.Open(dbPath)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open history database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing history database", "error", closeErr)
			}
		}()
		run.history = st

		absDir, _ := filepath.Abs(dir)
		run.runID, err = st.BeginRun(ctx, store.Run{ExamplesDir: absDir, APIURL: client.Endpoint()})
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to record run", err)
		}
		logger.Debug("recording run", "run_id", run.runID, "db", dbPath)
	}

	result := TestResult{
		Cases: make([]CaseResult, 0, len(files)),
		Total: len(files),
	}

	for i, file := range files {
		caseResult := run.runCase(ctx, i+1, file)
		result.Cases = append(result.Cases, caseResult)

		if caseResult.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	if run.history != nil {
		if err := run.history.FinishRun(ctx, run.runID, result.Passed, result.Failed); err != nil {
			return WrapExitError(ExitCommandError, "failed to record run", err)
		}
	}

	if opts.Metrics {
		summary, err := run.collector.Summary()
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to gather metrics", err)
		}
		result.Metrics = &summary
	}

	if opts.Format == "json" {
		return outputTestJSON(cmd, result, run.runID)
	}
	return outputTestText(cmd, result, run.runID)
}

// runCase executes a single case, reports it, and records it in history.
func (r *testRun) runCase(ctx context.Context, seq int, file string) CaseResult {
	caseResult, result := r.execute(ctx, file)

	if r.opts.Format != "json" {
		if caseResult.Pass {
			fmt.Fprintf(r.w, "✓ %s\n", caseResult.Name)
		} else {
			fmt.Fprintf(r.w, "✗ %s\n", caseResult.Name)
			for _, e := range caseResult.Errors {
				fmt.Fprintf(r.w, "  %s\n", e)
			}
		}
	}

	if r.history != nil {
		rec := store.CaseRecord{
			RunID:      r.runID,
			Seq:        seq,
			Name:       caseResult.Name,
			Pass:       caseResult.Pass,
			StatusCode: caseResult.StatusCode,
			DurationMS: caseResult.DurationMS,
			Errors:     caseResult.Errors,
		}
		if result != nil {
			rec.RequestHash = result.RequestHash
			if result.Called {
				if out, err := canonical.Marshal(result.Output); err == nil {
					rec.Output = json.RawMessage(out)
				}
			}
		}
		if err := r.history.RecordCase(ctx, rec); err != nil {
			r.logger.Error("failed to record case", "case", caseResult.Name, "error", err)
		}
	}

	return caseResult
}

// execute loads and runs one case and applies the golden policy.
// The returned *harness.Result is nil when the case never ran.
func (r *testRun) execute(ctx context.Context, file string) (CaseResult, *harness.Result) {
	scenario, err := harness.LoadScenario(file)
	if err != nil {
		return CaseResult{
			Name:   filepath.Base(filepath.Dir(file)),
			Errors: []string{fmt.Sprintf("failed to load case: %v", err)},
		}, nil
	}

	r.logger.Debug("running case", "case", scenario.Name, "path", file)

	result, err := harness.Run(ctx, r.sim, scenario,
		harness.WithLogger(r.logger),
		harness.WithMetrics(r.collector),
	)
	if err != nil {
		return CaseResult{
			Name:   scenario.Name,
			Errors: []string{fmt.Sprintf("execution failed: %v", err)},
		}, nil
	}

	caseResult := CaseResult{
		Name:       scenario.Name,
		Pass:       result.Pass,
		StatusCode: result.StatusCode,
		DurationMS: result.Duration.Milliseconds(),
		Errors:     result.Errors,
	}

	// Golden snapshots only exist for responses the service produced.
	if !result.Called {
		return caseResult, result
	}

	if r.opts.Update {
		if err := harness.UpdateGolden(scenario, result); err != nil {
			caseResult.Pass = false
			caseResult.Errors = append(caseResult.Errors, fmt.Sprintf("failed to update golden file: %v", err))
		}
		return caseResult, result
	}

	if _, err := os.Stat(harness.GoldenPath(scenario)); os.IsNotExist(err) {
		return caseResult, result
	}

	match, err := harness.CompareGolden(scenario, result)
	if err != nil {
		caseResult.Pass = false
		caseResult.Errors = append(caseResult.Errors, fmt.Sprintf("golden comparison failed: %v", err))
		return caseResult, result
	}
	if !match {
		caseResult.Pass = false
		caseResult.Errors = append(caseResult.Errors, "response does not match golden file (run with --update to regenerate)")
	}
	return caseResult, result
}

// outputTestJSON outputs the test result as JSON.
func outputTestJSON(cmd *cobra.Command, result TestResult, runID string) error {
	response := CLIResponse{
		Status: "ok",
		Data:   result,
		RunID:  runID,
	}

	if result.Failed > 0 {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    ErrCodeTestFailed,
			Message: fmt.Sprintf("%d case(s) failed", result.Failed),
		}
	}

	if err := writeJSON(cmd.OutOrStdout(), response); err != nil {
		return err
	}

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d case(s) failed", result.Failed))
	}
	return nil
}

// outputTestText outputs the test summary as text.
func outputTestText(cmd *cobra.Command, result TestResult, runID string) error {
	w := cmd.OutOrStdout()

	if result.Metrics != nil {
		fmt.Fprintln(w)
		for _, line := range result.Metrics.Lines() {
			fmt.Fprintln(w, line)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
	if runID != "" {
		fmt.Fprintf(w, "Run: %s\n", runID)
	}

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d case(s) failed", result.Failed))
	}

	fmt.Fprintln(w, "✓ All cases passed")
	return nil
}
