package simclient

import (
	"encoding/json"
	"fmt"
	"time"
)

// DefaultSimulatePath is the mapping-simulation endpoint of the hosted service.
const DefaultSimulatePath = "/v2/erp/updates/mapping_simulation"

// Config holds client configuration.
type Config struct {
	// BaseURL is the API root, e.g. "https://erp-integration.example.com".
	BaseURL string

	// SimulatePath is appended to BaseURL for simulation requests.
	SimulatePath string

	// Token is sent as a bearer token when set.
	Token string

	// Timeout bounds a single HTTP attempt.
	Timeout time.Duration

	// MaxRetries is the number of retries after the first attempt for
	// 5xx and 429 responses and transport errors.
	MaxRetries int

	// RetryDelay is the first backoff delay; it doubles per retry up to MaxDelay.
	RetryDelay time.Duration
	MaxDelay   time.Duration

	// RateLimit caps requests per second. Zero disables pacing.
	RateLimit float64

	UserAgent string
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.SimulatePath == "" {
		c.SimulatePath = DefaultSimulatePath
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = 500 * time.Millisecond
	}
	if c.MaxDelay == 0 {
		c.MaxDelay = 10 * time.Second
	}
	if c.UserAgent == "" {
		c.UserAgent = "erpsim/1.0"
	}
}

// SimulationRequest is one mapping simulation.
//
// Payload is the ERP event as raw JSON; it is forwarded as a string because
// the service also accepts non-JSON formats in the same field.
type SimulationRequest struct {
	Mapping    json.RawMessage `json:"mapping"`
	Payload    json.RawMessage `json:"-"`
	Format     string          `json:"format"`
	EventName  string          `json:"event_name,omitempty"`
	ObjectType string          `json:"object_type,omitempty"`
}

// wireRequest is the request body as sent over HTTP.
type wireRequest struct {
	Mapping    json.RawMessage `json:"mapping"`
	Payload    string          `json:"payload"`
	Format     string          `json:"format"`
	EventName  string          `json:"event_name,omitempty"`
	ObjectType string          `json:"object_type,omitempty"`
}

// SimulationResponse is the service's answer. Raw keeps the exact body for
// generic assertions and snapshots; the typed fields cover what callers
// commonly inspect.
type SimulationResponse struct {
	StatusCode           int                  `json:"-"`
	Raw                  json.RawMessage      `json:"-"`
	EntityUpdates        []EntityUpdate       `json:"entity_updates"`
	MeterReadingsUpdates []MeterReadingUpdate `json:"meter_readings_updates,omitempty"`
	Warnings             []string             `json:"warnings,omitempty"`
}

// EntityUpdate is one entity the mapping produced.
type EntityUpdate struct {
	EntitySchema      string         `json:"entity_schema"`
	UniqueIdentifiers map[string]any `json:"unique_identifiers"`
	Attributes        map[string]any `json:"attributes"`
}

// MeterReadingUpdate groups the readings produced for one meter.
type MeterReadingUpdate struct {
	Meter        MeterIdentity    `json:"meter"`
	MeterCounter *MeterIdentity   `json:"meter_counter,omitempty"`
	Readings     []map[string]any `json:"readings"`
}

// MeterIdentity identifies a meter or counter by unique attributes.
type MeterIdentity struct {
	UniqueIdentifiers map[string]any `json:"unique_identifiers"`
}

// ReadingCount is the total number of readings across all meters.
func (r *SimulationResponse) ReadingCount() int {
	n := 0
	for _, u := range r.MeterReadingsUpdates {
		n += len(u.Readings)
	}
	return n
}

// ErrorResponse is the service's error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// APIError is returned for HTTP status codes >= 400.
type APIError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, string(e.Body))
}
