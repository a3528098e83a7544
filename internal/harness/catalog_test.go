package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindScenarioFiles(t *testing.T) {
	dir := t.TempDir()
	writeCase(t, filepath.Join(dir, "b-relations"), basicCase, nil)
	writeCase(t, filepath.Join(dir, "a-contact"), basicCase, nil)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a-contact", "extra.case.yaml"), []byte(basicCase), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a-contact", "notes.yaml"), []byte("x: 1"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "a-contact", "golden"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a-contact", "golden", "case.yaml"), []byte(basicCase), 0644))

	files, err := FindScenarioFiles(dir, "")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a-contact", "case.yaml"),
		filepath.Join(dir, "a-contact", "extra.case.yaml"),
		filepath.Join(dir, "b-relations", "case.yaml"),
	}, files)

	files, err = FindScenarioFiles(dir, "b-*")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "b-relations", "case.yaml")}, files)

	files, err = FindScenarioFiles(dir, "extra")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a-contact", "extra.case.yaml")}, files)

	_, err = FindScenarioFiles(dir, "[")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid filter pattern")
}

func TestFindScenarioFiles_MissingDir(t *testing.T) {
	_, err := FindScenarioFiles(filepath.Join(t.TempDir(), "nope"), "")
	require.Error(t, err)
}

func TestValidateExamples(t *testing.T) {
	dir := t.TempDir()
	writeCase(t, filepath.Join(dir, "good"), basicCase, nil)

	// Mapping never produces the unique id
	writeCase(t, filepath.Join(dir, "bad-mapping"), `
name: bad_mapping
description: "x"
event: event.json
mapping: mapping.json
assertions: [{type: no_warnings}]
`, map[string]string{"mapping.json": `{"mapping": {"events": {"E": {"entities": [
		{"entity_schema": "contact", "unique_ids": ["id"], "fields": [{"attribute": "name", "field": "n"}]}]}}}}`})

	// Invalid on purpose; only JSON well-formedness is checked
	writeCase(t, filepath.Join(dir, "expected-rejection"), `
name: expected_rejection
description: "x"
event: event.json
mapping: mapping.json
expect_status: 400
`, map[string]string{"mapping.json": `{"mapping": {}}`})

	writeCase(t, filepath.Join(dir, "broken-event"), `
name: broken_event
description: "x"
event: event.json
mapping: mapping.json
assertions: [{type: no_warnings}]
`, map[string]string{"event.json": `{`})

	writeCase(t, filepath.Join(dir, "unloadable"), "name: [", nil)

	// Same name as "good"
	writeCase(t, filepath.Join(dir, "zz-duplicate"), basicCase, nil)

	result, err := ValidateExamples(dir, "")
	require.NoError(t, err)

	assert.Equal(t, 6, result.TotalCases)
	assert.Equal(t, 2, result.Valid)
	assert.Equal(t, 4, result.Invalid)

	byName := make(map[string]CaseFailure)
	for _, f := range result.Failures {
		byName[f.Name] = f
	}
	require.Contains(t, byName, "bad_mapping")
	assert.Contains(t, byName["bad_mapping"].Errors[0], "[E204]")
	require.Contains(t, byName, "broken_event")
	assert.Contains(t, byName["broken_event"].Errors[0], "not valid JSON")
	require.Contains(t, byName, "unloadable")
	assert.Contains(t, byName["unloadable"].Errors[0], "failed to load case")
	require.Contains(t, byName, "customer_contact")
	assert.Contains(t, byName["customer_contact"].Errors[0], "duplicate case name")
}
