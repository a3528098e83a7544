// Package config reads erpsim settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"

	"github.com/roach88/erpsim/internal/simclient"
)

// Config holds environment-provided settings. CLI flags override these.
type Config struct {
	APIURL       string        `env:"ERPSIM_API_URL" validate:"omitempty,url"`
	APIToken     string        `env:"ERPSIM_API_TOKEN"`
	SimulatePath string        `env:"ERPSIM_SIMULATE_PATH" envDefault:"/v2/erp/updates/mapping_simulation" validate:"startswith=/"`
	Timeout      time.Duration `env:"ERPSIM_TIMEOUT" envDefault:"30s" validate:"gt=0"`
	MaxRetries   int           `env:"ERPSIM_MAX_RETRIES" envDefault:"2" validate:"gte=0"`
	RateLimit    float64       `env:"ERPSIM_RATE_LIMIT" envDefault:"0" validate:"gte=0"`
	HistoryDB    string        `env:"ERPSIM_HISTORY_DB"`
}

var validate = newValidator()

// newValidator reports fields by their environment variable name.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return strings.SplitN(fld.Tag.Get("env"), ",", 2)[0]
	})
	return v
}

// Load parses the ERPSIM_* variables.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", describeEnvError(err))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Validate checks value ranges and formats.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return errors.New(strings.Join(msgs, "; "))
}

// describeEnvError rewrites env parse failures to name the variable and
// the offending value instead of the struct field.
func describeEnvError(err error) error {
	var agg env.AggregateError
	if !errors.As(err, &agg) {
		return err
	}
	msgs := make([]string, 0, len(agg.Errors))
	for _, e := range agg.Errors {
		var pe env.ParseError
		if !errors.As(e, &pe) {
			msgs = append(msgs, e.Error())
			continue
		}
		key := envKey(pe.Name)
		msgs = append(msgs, fmt.Sprintf("%s: invalid %s %q", key, pe.Type, os.Getenv(key)))
	}
	return errors.New(strings.Join(msgs, "; "))
}

func envKey(field string) string {
	sf, ok := reflect.TypeOf(Config{}).FieldByName(field)
	if !ok {
		return field
	}
	return strings.SplitN(sf.Tag.Get("env"), ",", 2)[0]
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "url":
		return fmt.Sprintf("%s must be an absolute URL, got %q", fe.Field(), fe.Value())
	case "startswith":
		return fmt.Sprintf("%s must start with %q, got %q", fe.Field(), fe.Param(), fe.Value())
	case "gt", "gte":
		op := map[string]string{"gt": ">", "gte": ">="}[fe.Tag()]
		return fmt.Sprintf("%s must be %s %s, got %v", fe.Field(), op, fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
	}
}

// ClientConfig converts to a simulation client configuration.
func (c Config) ClientConfig() simclient.Config {
	return simclient.Config{
		BaseURL:      c.APIURL,
		SimulatePath: c.SimulatePath,
		Token:        c.APIToken,
		Timeout:      c.Timeout,
		MaxRetries:   c.MaxRetries,
		RateLimit:    c.RateLimit,
	}
}
