package harness

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/roach88/erpsim/internal/canonical"
	"github.com/roach88/erpsim/internal/mapping"
	"github.com/roach88/erpsim/internal/metrics"
	"github.com/roach88/erpsim/internal/simclient"
)

// Option configures a Run.
type Option func(*runner)

type runner struct {
	logger  *slog.Logger
	now     func() time.Time
	metrics *metrics.Collector
}

// WithLogger sets the logger. Runs are silent by default.
func WithLogger(l *slog.Logger) Option {
	return func(r *runner) { r.logger = l }
}

// WithClock sets the time source used to measure the simulation call.
func WithClock(now func() time.Time) Option {
	return func(r *runner) { r.now = now }
}

// WithMetrics records simulation calls and case results in c.
func WithMetrics(c *metrics.Collector) Option {
	return func(r *runner) { r.metrics = c }
}

// Run executes one case and returns the result.
//
// Execution flow:
// 1. Read the event and mapping files
// 2. Validate the mapping locally (skipped when expect_status is set)
// 3. Call the simulator and measure the call
// 4. Compare against expect_status when set
// 5. Evaluate every assertion, collecting all failures
//
// A returned error means the case could not be executed (unreadable or
// malformed fixtures, transport failure). Assertion and validation failures
// are reported in Result.Errors with Pass=false.
func Run(ctx context.Context, sim simclient.Simulator, scenario *Scenario, opts ...Option) (*Result, error) {
	r := &runner{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}

	result, err := r.run(ctx, sim, scenario)
	if r.metrics != nil {
		r.metrics.ObserveCase(err == nil && result.Pass)
	}
	return result, err
}

func (r *runner) run(ctx context.Context, sim simclient.Simulator, scenario *Scenario) (*Result, error) {
	log := r.logger.With("case", scenario.Name)

	req, err := BuildRequest(scenario)
	if err != nil {
		return nil, err
	}

	result := NewResult()
	result.RequestHash, err = RequestHash(req)
	if err != nil {
		return nil, fmt.Errorf("hash request: %w", err)
	}

	if scenario.ExpectStatus == 0 {
		if errs := validateMapping(req.Mapping, scenario); len(errs) > 0 {
			for _, e := range errs {
				result.AddError(e)
			}
			log.Debug("mapping rejected locally", "errors", len(errs))
			return result, nil
		}
	}

	log.Debug("simulating", "event_name", req.EventName, "request_hash", result.RequestHash)
	start := r.now()
	resp, err := sim.Simulate(ctx, req)
	result.Duration = r.now().Sub(start)
	result.Called = true

	var apiErr *simclient.APIError
	switch {
	case err == nil:
		r.observe(metrics.OutcomeOK, result.Duration)
		result.StatusCode = resp.StatusCode
		result.Output, err = decodeOutput(resp.Raw)
		if err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		if scenario.ExpectStatus != 0 {
			result.AddError(fmt.Sprintf("expected status %d, got %d", scenario.ExpectStatus, resp.StatusCode))
		}
	case errors.As(err, &apiErr):
		r.observe(metrics.OutcomeAPIError, result.Duration)
		result.StatusCode = apiErr.StatusCode
		result.Output = errorOutput(apiErr)
		if scenario.ExpectStatus == 0 {
			result.AddError(fmt.Sprintf("simulation rejected: %v", apiErr))
		} else if apiErr.StatusCode != scenario.ExpectStatus {
			result.AddError(fmt.Sprintf("expected status %d, got %d", scenario.ExpectStatus, apiErr.StatusCode))
		}
	default:
		r.observe(metrics.OutcomeError, result.Duration)
		return nil, fmt.Errorf("simulate %s: %w", scenario.Name, err)
	}

	log.Debug("simulation finished", "status", result.StatusCode, "duration", result.Duration)

	if result.Pass {
		for _, msg := range EvaluateAssertions(result.Output, scenario.Assertions) {
			result.AddError(msg)
		}
	}

	return result, nil
}

func (r *runner) observe(outcome string, d time.Duration) {
	if r.metrics != nil {
		r.metrics.ObserveSimulation(outcome, d)
	}
}

// BuildRequest reads the case fixtures into a simulation request.
// The mapping must be JSON; the event must be JSON unless the format is xml.
func BuildRequest(scenario *Scenario) (simclient.SimulationRequest, error) {
	event, err := os.ReadFile(scenario.Event)
	if err != nil {
		return simclient.SimulationRequest{}, fmt.Errorf("failed to read event: %w", err)
	}
	format := scenario.Format
	if format == "" {
		format = FormatJSON
	}
	if format == FormatJSON && !json.Valid(event) {
		return simclient.SimulationRequest{}, fmt.Errorf("event %s is not valid JSON", scenario.Event)
	}

	mappingData, err := os.ReadFile(scenario.Mapping)
	if err != nil {
		return simclient.SimulationRequest{}, fmt.Errorf("failed to read mapping: %w", err)
	}
	if !json.Valid(mappingData) {
		return simclient.SimulationRequest{}, fmt.Errorf("mapping %s is not valid JSON", scenario.Mapping)
	}

	// The payload travels as a string; compact JSON keeps it stable.
	payload := bytes.TrimSpace(event)
	if format == FormatJSON {
		var buf bytes.Buffer
		if err := json.Compact(&buf, event); err != nil {
			return simclient.SimulationRequest{}, fmt.Errorf("compact event: %w", err)
		}
		payload = buf.Bytes()
	}

	return simclient.SimulationRequest{
		Mapping:    json.RawMessage(mappingData),
		Payload:    json.RawMessage(payload),
		Format:     format,
		EventName:  scenario.EventName,
		ObjectType: scenario.ObjectType,
	}, nil
}

// RequestHash is the SHA-256 of the canonical request, used to correlate
// history rows across runs.
func RequestHash(req simclient.SimulationRequest) (string, error) {
	mappingValue, err := decodeOutput(req.Mapping)
	if err != nil {
		return "", err
	}
	return canonical.Hash(map[string]any{
		"mapping":     mappingValue,
		"payload":     string(req.Payload),
		"format":      req.Format,
		"event_name":  req.EventName,
		"object_type": req.ObjectType,
	})
}

// validateMapping runs local pre-flight checks and the event_name check.
func validateMapping(data []byte, scenario *Scenario) []string {
	var msgs []string
	for _, e := range mapping.Validate(data, scenario.Mapping) {
		msgs = append(msgs, "mapping: "+e.Error())
	}
	if len(msgs) > 0 || scenario.EventName == "" {
		return msgs
	}

	cfg, err := mapping.Parse(data)
	if err != nil {
		return []string{"mapping: " + err.Error()}
	}
	names := cfg.EventNames()
	if !slices.Contains(names, scenario.EventName) {
		msgs = append(msgs, fmt.Sprintf("event_name %q not defined in mapping (available: %s)",
			scenario.EventName, strings.Join(names, ", ")))
	}
	return msgs
}

// decodeOutput decodes JSON keeping numbers exact.
func decodeOutput(raw []byte) (any, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// errorOutput is the Output of a rejected request: the decoded error body
// when it is JSON, otherwise the body as a string.
func errorOutput(apiErr *simclient.APIError) any {
	if v, err := decodeOutput(apiErr.Body); err == nil && v != nil {
		return v
	}
	if len(apiErr.Body) == 0 {
		return nil
	}
	return string(apiErr.Body)
}
