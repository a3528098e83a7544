package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/erpsim/internal/canonical"
	"github.com/roach88/erpsim/internal/harness"
	"github.com/roach88/erpsim/internal/mapping"
	"github.com/roach88/erpsim/internal/simclient"
)

// SimulateOptions holds flags for the simulate command.
type SimulateOptions struct {
	*RootOptions
	APIOptions
	Mapping       string
	Event         string
	EventName     string
	ObjectType    string
	PayloadFormat string
	SkipValidate  bool
}

// NewSimulateCommand creates the simulate command.
func NewSimulateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SimulateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Send one mapping and event to the simulation service",
		Long: `Send a single mapping configuration and ERP event to the simulation
endpoint and print the response as canonical JSON.

Examples:
  erpsim simulate --mapping mapping.json --event event.json
  erpsim simulate --mapping mapping.json --event order.xml --payload-format xml
  erpsim simulate --mapping mapping.json --event event.json --event-name CustomerChanged --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(opts, cmd)
		},
	}

	opts.APIOptions.bind(cmd)
	cmd.Flags().StringVar(&opts.Mapping, "mapping", "", "mapping configuration file (required)")
	_ = cmd.MarkFlagRequired("mapping")
	cmd.Flags().StringVar(&opts.Event, "event", "", "ERP event file (required)")
	_ = cmd.MarkFlagRequired("event")
	cmd.Flags().StringVar(&opts.EventName, "event-name", "", "event name to simulate")
	cmd.Flags().StringVar(&opts.ObjectType, "object-type", "", "ERP object type")
	cmd.Flags().StringVar(&opts.PayloadFormat, "payload-format", harness.FormatJSON, "event payload format (json|xml)")
	cmd.Flags().BoolVar(&opts.SkipValidate, "skip-validate", false, "send the mapping without local validation")

	return cmd
}

func runSimulate(opts *SimulateOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	if opts.PayloadFormat != harness.FormatJSON && opts.PayloadFormat != harness.FormatXML {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, fmt.Sprintf("invalid payload format %q: must be json or xml", opts.PayloadFormat), nil)
	}

	for _, p := range []string{opts.Mapping, opts.Event} {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			return formatter.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("file not found: %s", p), nil)
		}
	}

	if !opts.SkipValidate {
		if errs := mapping.ValidateFile(opts.Mapping); len(errs) > 0 {
			messages := make([]string, len(errs))
			for i, e := range errs {
				messages[i] = e.Error()
			}
			return formatter.Fail(ExitFailure, errs[0].Code, fmt.Sprintf("mapping is invalid: %s", messages[0]), messages)
		}
	}

	req, err := harness.BuildRequest(&harness.Scenario{
		Name:       "simulate",
		Event:      opts.Event,
		Mapping:    opts.Mapping,
		EventName:  opts.EventName,
		ObjectType: opts.ObjectType,
		Format:     opts.PayloadFormat,
	})
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
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

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	logger.Debug("simulating", "endpoint", client.Endpoint(), "event_name", req.EventName)
	resp, err := client.Simulate(ctx, req)
	if err != nil {
		var apiErr *simclient.APIError
		if errors.As(err, &apiErr) {
			return formatter.Fail(ExitFailure, ErrCodeAPIError, apiErr.Error(), map[string]any{
				"status_code": apiErr.StatusCode,
				"body":        string(apiErr.Body),
			})
		}
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
	}

	out, err := canonical.Marshal(json.RawMessage(resp.Raw))
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeGeneric, fmt.Sprintf("response is not JSON: %v", err), nil)
	}

	if formatter.Format == "json" {
		return formatter.Success(json.RawMessage(out))
	}
	fmt.Fprintln(formatter.Writer, string(out))
	return nil
}
