package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FindScenarioFiles finds case files under dir: files named case.yaml or
// ending in .case.yaml. A non-empty filter is a glob matched against the
// case directory name (or, for *.case.yaml files, the file name without the
// suffix). Results are sorted for deterministic run order.
func FindScenarioFiles(dir, filter string) ([]string, error) {
	var files []string

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			// golden/ and hidden directories never hold cases
			if path != dir && (info.Name() == "golden" || strings.HasPrefix(info.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}

		name, ok := caseName(path)
		if !ok {
			return nil
		}

		if filter != "" {
			matched, err := filepath.Match(filter, name)
			if err != nil {
				return fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				return nil
			}
		}

		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}

// caseName returns the name a filter is matched against.
func caseName(path string) (string, bool) {
	base := filepath.Base(path)
	switch {
	case base == "case.yaml":
		return filepath.Base(filepath.Dir(path)), true
	case strings.HasSuffix(base, ".case.yaml"):
		return strings.TrimSuffix(base, ".case.yaml"), true
	}
	return "", false
}

// ValidationResult contains results from validating an examples directory
// offline.
type ValidationResult struct {
	TotalCases int           `json:"total_cases"`
	Valid      int           `json:"valid"`
	Invalid    int           `json:"invalid"`
	Failures   []CaseFailure `json:"failures,omitempty"`
}

// CaseFailure represents a case that failed offline validation.
type CaseFailure struct {
	Name   string   `json:"name"`
	Path   string   `json:"path"`
	Errors []string `json:"errors"`
}

// ValidateExamples loads every case under dir and checks it without calling
// the service:
// 1. The case file parses and references existing files
// 2. The event and mapping are well-formed
// 3. The mapping passes local validation, unless the case expects rejection
// 4. Case names are unique (they name golden files)
func ValidateExamples(dir, filter string) (*ValidationResult, error) {
	files, err := FindScenarioFiles(dir, filter)
	if err != nil {
		return nil, err
	}

	result := &ValidationResult{TotalCases: len(files)}
	seen := make(map[string]string)

	for _, path := range files {
		name, _ := caseName(path)
		errs := validateCase(path, &name, seen)
		if len(errs) > 0 {
			result.Invalid++
			result.Failures = append(result.Failures, CaseFailure{Name: name, Path: path, Errors: errs})
			continue
		}
		result.Valid++
	}

	return result, nil
}

func validateCase(path string, name *string, seen map[string]string) []string {
	scenario, err := LoadScenario(path)
	if err != nil {
		return []string{fmt.Sprintf("failed to load case: %v", err)}
	}
	*name = scenario.Name

	if prev, dup := seen[scenario.Name]; dup {
		return []string{fmt.Sprintf("duplicate case name %q (also in %s)", scenario.Name, prev)}
	}
	seen[scenario.Name] = path

	req, err := BuildRequest(scenario)
	if err != nil {
		return []string{err.Error()}
	}
	if scenario.ExpectStatus != 0 {
		return nil
	}
	return validateMapping(req.Mapping, scenario)
}
