package harness

import "time"

// Result is the outcome of running one case.
type Result struct {
	// Pass indicates overall case success.
	Pass bool `json:"pass"`

	// StatusCode is the HTTP status of the simulation response.
	// Zero when the service was never called.
	StatusCode int `json:"status_code"`

	// Duration is the wall time of the simulation call.
	Duration time.Duration `json:"duration_ns"`

	// Output is the response body decoded as generic JSON
	// (map[string]any, []any, json.Number, string, bool, nil).
	Output any `json:"output"`

	// Errors contains failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// RequestHash is the SHA-256 of the canonical request.
	RequestHash string `json:"request_hash"`

	// Called reports whether the simulation service was contacted.
	Called bool `json:"called"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Errors: []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
