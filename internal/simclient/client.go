// Package simclient is the HTTP client for the hosted mapping-simulation API.
package simclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Simulator runs a mapping simulation. *Client implements it; tests use fakes.
type Simulator interface {
	Simulate(ctx context.Context, req SimulationRequest) (*SimulationResponse, error)
}

// Client calls the mapping-simulation endpoint.
type Client struct {
	config     Config
	httpClient *http.Client
	endpoint   *url.URL
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger used for retry diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a client from config.
func NewClient(config Config, opts ...Option) (*Client, error) {
	config.SetDefaults()

	if config.BaseURL == "" {
		return nil, fmt.Errorf("BaseURL is required")
	}
	base, err := url.Parse(config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid BaseURL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid BaseURL: %q must be absolute", config.BaseURL)
	}

	endpoint := base.JoinPath(config.SimulatePath)

	c := &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		endpoint:   endpoint,
		logger:     slog.Default(),
	}
	if config.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(config.RateLimit), 1)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Endpoint returns the full simulation URL.
func (c *Client) Endpoint() string {
	return c.endpoint.String()
}

// Simulate sends one simulation request.
//
// 5xx, 429 and transport errors are retried with exponential backoff.
// Other 4xx responses are returned immediately as *APIError.
func (c *Client) Simulate(ctx context.Context, req SimulationRequest) (*SimulationResponse, error) {
	if len(req.Mapping) == 0 {
		return nil, fmt.Errorf("mapping is required")
	}
	if len(req.Payload) == 0 {
		return nil, fmt.Errorf("payload is required")
	}
	format := req.Format
	if format == "" {
		format = "json"
	}

	body, err := json.Marshal(wireRequest{
		Mapping:    req.Mapping,
		Payload:    string(req.Payload),
		Format:     format,
		EventName:  req.EventName,
		ObjectType: req.ObjectType,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.backoff(attempt)
			c.logger.Debug("retrying simulation request",
				"attempt", attempt,
				"delay", delay,
				"error", lastErr,
			)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		resp, err := c.do(ctx, body)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !retryable(err) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("simulation failed after %d attempts: %w", c.config.MaxRetries+1, lastErr)
}

func (c *Client) do(ctx context.Context, body []byte) (*SimulationResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.config.UserAgent)
	if c.config.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.config.Token)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &transportError{err: err}
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &transportError{err: fmt.Errorf("failed to read response body: %w", err)}
	}

	if httpResp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: httpResp.StatusCode, Body: data}
		var errResp ErrorResponse
		if json.Unmarshal(data, &errResp) == nil {
			apiErr.Message = strings.TrimSpace(firstNonEmpty(errResp.Message, errResp.Error))
		}
		return nil, apiErr
	}

	resp := &SimulationResponse{StatusCode: httpResp.StatusCode, Raw: data}
	if err := json.Unmarshal(data, resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return resp, nil
}

// backoff returns RetryDelay * 2^(attempt-1), capped at MaxDelay.
func (c *Client) backoff(attempt int) time.Duration {
	delay := c.config.RetryDelay << (attempt - 1)
	if delay <= 0 || delay > c.config.MaxDelay {
		return c.config.MaxDelay
	}
	return delay
}

type transportError struct{ err error }

func (e *transportError) Error() string { return "request failed: " + e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var te *transportError
	if errors.As(err, &te) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500 || apiErr.StatusCode == http.StatusTooManyRequests
	}
	return false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
