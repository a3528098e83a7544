package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const examplesDir = "../../examples"

const testMapping = `{
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

// badMapping names a unique id no field produces (E204).
const badMapping = `{
  "mapping": {
    "events": {
      "CustomerChanged": {
        "entities": [
          {
            "entity_schema": "contact",
            "unique_ids": ["customer_number"],
            "fields": [{"attribute": "first_name", "field": "firstName"}]
          }
        ]
      }
    }
  }
}`

const testEvent = `{"customerId": "C-1001", "firstName": "Jane"}`

const testResponse = `{
  "entity_updates": [
    {
      "entity_schema": "contact",
      "unique_identifiers": {"customer_number": "C-1001"},
      "attributes": {"first_name": "Jane"}
    }
  ]
}`

const basicCase = `
name: customer
description: "contact from customer master"
event: event.json
mapping: mapping.json
event_name: CustomerChanged
assertions:
  - type: entity_count
    schema: contact
    count: 1
  - type: entity_contains
    schema: contact
    unique_identifiers: { customer_number: "C-1001" }
    attributes: { first_name: "Jane" }
`

// writeExample creates dir/name with case.yaml, event.json and mapping.json.
func writeExample(t *testing.T, dir, name, caseYAML, mappingJSON string) string {
	t.Helper()
	caseDir := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(caseDir, 0755))
	files := map[string]string{
		"case.yaml":    caseYAML,
		"event.json":   testEvent,
		"mapping.json": mappingJSON,
	}
	for file, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(caseDir, file), []byte(content), 0644))
	}
	return caseDir
}

// isolateEnv clears every ERPSIM_* variable for the test.
func isolateEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"ERPSIM_API_URL", "ERPSIM_API_TOKEN", "ERPSIM_SIMULATE_PATH",
		"ERPSIM_TIMEOUT", "ERPSIM_MAX_RETRIES", "ERPSIM_RATE_LIMIT", "ERPSIM_HISTORY_DB",
	} {
		t.Setenv(key, "")
	}
}

// execute runs the root command with args and captures both streams.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}
