package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/erpsim/internal/harness"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Filter string
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <examples-dir>",
		Short: "Check examples offline",
		Long: `Check every example case without calling the simulation service.

Loads each case file, parses its event and mapping, and validates the mapping
configuration locally. Cases that expect the service to reject the mapping
(expect_status) skip local mapping validation.

Exit codes:
  0 - All cases valid
  1 - One or more cases invalid
  2 - Command error (directory not found, etc.)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter cases by glob pattern")

	return cmd
}

func runValidate(opts *ValidateOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("examples directory not found: %s", dir), nil)
	}

	result, err := harness.ValidateExamples(dir, opts.Filter)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
	}
	formatter.VerboseLog("Checked %d case(s) in %s", result.TotalCases, dir)

	if formatter.Format == "json" {
		return outputValidateJSON(formatter, result)
	}
	return outputValidateText(formatter, result)
}

func outputValidateJSON(formatter *OutputFormatter, result *harness.ValidationResult) error {
	if result.Invalid == 0 {
		return formatter.Success(result)
	}

	message := fmt.Sprintf("%d of %d case(s) invalid", result.Invalid, result.TotalCases)
	if err := writeJSON(formatter.Writer, CLIResponse{
		Status: "error",
		Data:   result,
		Error:  &CLIError{Code: ErrCodeInvalidCases, Message: message},
	}); err != nil {
		return err
	}
	return NewExitError(ExitFailure, message)
}

func outputValidateText(formatter *OutputFormatter, result *harness.ValidationResult) error {
	w := formatter.Writer

	if result.TotalCases == 0 {
		fmt.Fprintln(w, "No cases found.")
		return nil
	}

	if result.Invalid == 0 {
		fmt.Fprintf(w, "✓ All %d case(s) valid\n", result.TotalCases)
		return nil
	}

	for _, failure := range result.Failures {
		fmt.Fprintf(w, "✗ %s (%s)\n", failure.Name, failure.Path)
		for _, e := range failure.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Validation Summary: %d valid, %d invalid, %d total\n", result.Valid, result.Invalid, result.TotalCases)

	return NewExitError(ExitFailure, fmt.Sprintf("%d case(s) invalid", result.Invalid))
}
