package harness

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/erpsim/internal/simclient"
)

const testMapping = `{
  "version": "2.0",
  "mapping": {
    "events": {
      "CustomerChanged": {
        "entities": [
          {
            "entity_schema": "contact",
            "unique_ids": ["customer_number"],
            "fields": [
              {"attribute": "customer_number", "field": "customerId"},
              {"attribute": "first_name", "field": "firstName"}
            ]
          }
        ]
      }
    }
  }
}`

const testEvent = `{
  "customerId": "C-1001",
  "firstName": "Jane"
}`

const testResponse = `{
  "entity_updates": [
    {
      "entity_schema": "contact",
      "unique_identifiers": {"customer_number": "C-1001"},
      "attributes": {"first_name": "Jane"}
    }
  ],
  "warnings": []
}`

// writeCase creates a case directory with event.json, mapping.json and the
// given case.yaml. extra files override or add to the defaults.
func writeCase(t *testing.T, dir, caseYAML string, extra map[string]string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0755))

	files := map[string]string{
		"event.json":   testEvent,
		"mapping.json": testMapping,
		"case.yaml":    caseYAML,
	}
	for name, content := range extra {
		files[name] = content
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
	return filepath.Join(dir, "case.yaml")
}

const basicCase = `
name: customer_contact
description: "Customer record becomes a contact"
event: event.json
mapping: mapping.json
event_name: CustomerChanged
assertions:
  - type: entity_count
    schema: contact
    count: 1
`

// fakeSimulator returns a canned response or error and records requests.
type fakeSimulator struct {
	resp  *simclient.SimulationResponse
	err   error
	calls []simclient.SimulationRequest
}

func (f *fakeSimulator) Simulate(_ context.Context, req simclient.SimulationRequest) (*simclient.SimulationResponse, error) {
	f.calls = append(f.calls, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func respondWith(body string) *fakeSimulator {
	return &fakeSimulator{resp: &simclient.SimulationResponse{
		StatusCode: 200,
		Raw:        json.RawMessage(body),
	}}
}

// decode parses JSON the way Run decodes responses.
func decode(t *testing.T, s string) any {
	t.Helper()
	v, err := decodeOutput([]byte(s))
	require.NoError(t, err)
	return v
}

func intPtr(n int) *int { return &n }
