package harness

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/erpsim/internal/canonical"
	"github.com/roach88/erpsim/internal/simclient"
)

// Snapshot returns the canonical JSON of {scenario_name, output}. Identical
// responses always produce identical bytes.
func Snapshot(scenario *Scenario, result *Result) ([]byte, error) {
	data, err := canonical.Marshal(map[string]any{
		"scenario_name": scenario.Name,
		"output":        result.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return data, nil
}

// GoldenPath is the golden file of a case: golden/<name>.golden next to
// the case file.
func GoldenPath(scenario *Scenario) string {
	return filepath.Join(filepath.Dir(scenario.Path), "golden", scenario.Name+".golden")
}

// CompareGolden reports whether the snapshot matches the case's golden file.
// Returns os.ErrNotExist (wrapped) when there is no golden file.
func CompareGolden(scenario *Scenario, result *Result) (bool, error) {
	want, err := os.ReadFile(GoldenPath(scenario))
	if err != nil {
		return false, fmt.Errorf("failed to read golden file: %w", err)
	}
	got, err := Snapshot(scenario, result)
	if err != nil {
		return false, err
	}
	return bytes.Equal(want, got), nil
}

// UpdateGolden writes the snapshot as the case's golden file.
func UpdateGolden(scenario *Scenario, result *Result) error {
	path := GoldenPath(scenario)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create golden directory: %w", err)
	}
	data, err := Snapshot(scenario, result)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write golden file: %w", err)
	}
	return nil
}

// RunWithGolden executes a case and compares the response against a golden
// file stored in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns an error if the case cannot be executed.
// Test failure (via goldie) occurs if the response doesn't match.
func RunWithGolden(t *testing.T, sim simclient.Simulator, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), sim, scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against its golden file without
// re-running the case.
func AssertGolden(t *testing.T, scenario *Scenario, result *Result) error {
	t.Helper()

	data, err := Snapshot(scenario, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, data)

	return nil
}
