package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario is one example case: an ERP event, the mapping applied to it and
// the expected shape of the simulation response.
type Scenario struct {
	// Name uniquely identifies this case. It is also the golden file name.
	Name string `yaml:"name"`

	// Description explains what the case demonstrates.
	Description string `yaml:"description"`

	// Event is the path to the event payload.
	// Relative paths are resolved against the case file's directory.
	Event string `yaml:"event"`

	// Mapping is the path to the mapping configuration.
	Mapping string `yaml:"mapping"`

	// EventName selects which configured event the service applies.
	EventName string `yaml:"event_name,omitempty"`

	// ObjectType is an ERP object type hint forwarded to the service.
	ObjectType string `yaml:"object_type,omitempty"`

	// Format is the payload format: "json" (default) or "xml".
	Format string `yaml:"format,omitempty"`

	// ExpectStatus, when set, is the HTTP status the service must reject
	// the request with. Local mapping validation is skipped for such cases.
	ExpectStatus int `yaml:"expect_status,omitempty"`

	// Assertions validate the response. Required unless ExpectStatus is set.
	Assertions []Assertion `yaml:"assertions"`

	// Path is the case file the scenario was loaded from.
	Path string `yaml:"-"`
}

// Assertion validates the simulation response.
type Assertion struct {
	// Type specifies the assertion type:
	// - "entity_count": number of entity updates, optionally for one schema
	// - "entity_contains": some update of the schema matches the given maps
	// - "path_equals": value at a dotted path equals Value
	// - "path_exists": a dotted path resolves
	// - "meter_reading_count": total readings across all meter updates
	// - "no_warnings": the response carries no warnings
	// - "response_schema": the whole response validates against a JSON Schema
	Type string `yaml:"type"`

	// Schema is the entity schema (entity_count, entity_contains).
	Schema string `yaml:"schema,omitempty"`

	// Count is the expected number (entity_count, meter_reading_count).
	Count *int `yaml:"count,omitempty"`

	// Attributes are expected entity attributes. Subset match.
	Attributes map[string]any `yaml:"attributes,omitempty"`

	// UniqueIdentifiers are expected unique identifiers. Subset match.
	UniqueIdentifiers map[string]any `yaml:"unique_identifiers,omitempty"`

	// Path is a dotted response path like "entity_updates.0.attributes.email".
	// A leading "$." and bracketed indices are accepted.
	Path string `yaml:"path,omitempty"`

	// Value is the expected value at Path (path_equals). Omitted means null.
	Value any `yaml:"value,omitempty"`

	// File is the JSON Schema file (response_schema), relative to the case file.
	File string `yaml:"file,omitempty"`
}

// Assertion type constants.
const (
	AssertEntityCount       = "entity_count"
	AssertEntityContains    = "entity_contains"
	AssertPathEquals        = "path_equals"
	AssertPathExists        = "path_exists"
	AssertMeterReadingCount = "meter_reading_count"
	AssertNoWarnings        = "no_warnings"
	AssertResponseSchema    = "response_schema"
)

// Payload formats accepted by the service.
const (
	FormatJSON = "json"
	FormatXML  = "xml"
)

// LoadScenario reads and parses a case file, resolving relative paths
// against the case file's directory.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a case file, resolving event,
// mapping and schema paths relative to the provided base path.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	scenario.Path = path

	// Resolve paths BEFORE validation so existence checks see real locations
	scenario.Event = resolvePath(basePath, scenario.Event)
	scenario.Mapping = resolvePath(basePath, scenario.Mapping)
	for i := range scenario.Assertions {
		if scenario.Assertions[i].Type == AssertResponseSchema {
			scenario.Assertions[i].File = resolvePath(basePath, scenario.Assertions[i].File)
		}
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

func resolvePath(base, p string) string {
	if p == "" || filepath.IsAbs(p) || base == "" {
		return p
	}
	return filepath.Join(base, p)
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Event == "" {
		return fmt.Errorf("event is required")
	}

	if s.Mapping == "" {
		return fmt.Errorf("mapping is required")
	}

	switch s.Format {
	case "", FormatJSON, FormatXML:
	default:
		return fmt.Errorf("format must be %q or %q, got %q", FormatJSON, FormatXML, s.Format)
	}

	if s.ExpectStatus != 0 && (s.ExpectStatus < 400 || s.ExpectStatus > 599) {
		return fmt.Errorf("expect_status must be an HTTP error status (400-599), got %d", s.ExpectStatus)
	}

	if len(s.Assertions) == 0 && s.ExpectStatus == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for _, p := range []string{s.Event, s.Mapping} {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			return fmt.Errorf("file not found: %s", p)
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertEntityCount, AssertMeterReadingCount:
		if a.Count == nil {
			return fmt.Errorf("assertions[%d]: count is required for %s", index, a.Type)
		}
		if *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	case AssertEntityContains:
		if a.Schema == "" {
			return fmt.Errorf("assertions[%d]: schema is required for entity_contains", index)
		}
		if len(a.Attributes) == 0 && len(a.UniqueIdentifiers) == 0 {
			return fmt.Errorf("assertions[%d]: attributes or unique_identifiers is required for entity_contains", index)
		}
	case AssertPathEquals, AssertPathExists:
		if a.Path == "" {
			return fmt.Errorf("assertions[%d]: path is required for %s", index, a.Type)
		}
	case AssertNoWarnings:
	case AssertResponseSchema:
		if a.File == "" {
			return fmt.Errorf("assertions[%d]: file is required for response_schema", index)
		}
		if _, err := os.Stat(a.File); os.IsNotExist(err) {
			return fmt.Errorf("assertions[%d]: schema file not found: %s", index, a.File)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
