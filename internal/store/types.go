package store

import (
	"encoding/json"
	"errors"
	"time"
)

// ErrRunNotFound is returned when a run ID has no row.
var ErrRunNotFound = errors.New("run not found")

// Run status values.
const (
	StatusRunning = "running"
	StatusPassed  = "passed"
	StatusFailed  = "failed"
)

// Run is one execution of the example suite.
type Run struct {
	ID          string     `json:"id"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	ExamplesDir string     `json:"examples_dir"`
	APIURL      string     `json:"api_url"`
	Status      string     `json:"status"`
	Passed      int        `json:"passed"`
	Failed      int        `json:"failed"`
}

// CaseRecord is the outcome of one case within a run.
type CaseRecord struct {
	RunID       string          `json:"run_id"`
	Seq         int             `json:"seq"`
	Name        string          `json:"name"`
	Pass        bool            `json:"pass"`
	StatusCode  int             `json:"status_code"`
	DurationMS  int64           `json:"duration_ms"`
	RequestHash string          `json:"request_hash"`
	Errors      []string        `json:"errors"`
	Output      json.RawMessage `json:"output,omitempty"`
}
