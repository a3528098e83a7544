package cli

import (
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/erpsim/internal/config"
	"github.com/roach88/erpsim/internal/simclient"
)

// APIOptions holds the connection flags shared by commands that call the
// simulation service. Flags override ERPSIM_* environment values.
type APIOptions struct {
	URL        string
	Token      string
	Path       string
	Timeout    time.Duration
	MaxRetries int
	RateLimit  float64
}

func (o *APIOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.URL, "api-url", "", "simulation API base URL (env ERPSIM_API_URL)")
	cmd.Flags().StringVar(&o.Token, "token", "", "bearer token (env ERPSIM_API_TOKEN)")
	cmd.Flags().StringVar(&o.Path, "simulate-path", "", "simulation endpoint path (env ERPSIM_SIMULATE_PATH)")
	cmd.Flags().DurationVar(&o.Timeout, "timeout", 0, "per-request timeout (env ERPSIM_TIMEOUT)")
	cmd.Flags().IntVar(&o.MaxRetries, "retries", 0, "retries for 5xx/429/transport errors (env ERPSIM_MAX_RETRIES)")
	cmd.Flags().Float64Var(&o.RateLimit, "rate", 0, "max requests per second, 0 for unlimited (env ERPSIM_RATE_LIMIT)")
}

// resolve loads the environment and applies the flags that were set.
func (o *APIOptions) resolve(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "invalid environment", err)
	}

	flags := cmd.Flags()
	if flags.Changed("api-url") {
		cfg.APIURL = o.URL
	}
	if flags.Changed("token") {
		cfg.APIToken = o.Token
	}
	if flags.Changed("simulate-path") {
		cfg.SimulatePath = o.Path
	}
	if flags.Changed("timeout") {
		cfg.Timeout = o.Timeout
	}
	if flags.Changed("retries") {
		cfg.MaxRetries = o.MaxRetries
	}
	if flags.Changed("rate") {
		cfg.RateLimit = o.RateLimit
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "invalid API options", err)
	}
	if cfg.APIURL == "" {
		return config.Config{}, NewExitError(ExitCommandError, "API URL not set (use --api-url or ERPSIM_API_URL)")
	}
	return cfg, nil
}

func newClient(cfg config.Config, logger *slog.Logger) (*simclient.Client, error) {
	client, err := simclient.NewClient(cfg.ClientConfig(), simclient.WithLogger(logger))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid API configuration", err)
	}
	return client, nil
}
