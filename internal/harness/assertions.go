package harness

import (
	"encoding/json"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xeipuuv/gojsonschema"

	"github.com/roach88/erpsim/internal/canonical"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Index    int    // Position in the scenario's assertion list
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	return fmt.Sprintf("assertions[%d] %s: expected %s, got %s", e.Index, e.Type, e.Expected, e.Actual)
}

// EvaluateAssertions evaluates all assertions against a decoded response.
// Every assertion runs; the returned slice holds one message per failure.
func EvaluateAssertions(output any, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertEntityCount:
			err = assertEntityCount(output, assertion)
		case AssertEntityContains:
			err = assertEntityContains(output, assertion)
		case AssertPathEquals:
			err = assertPathEquals(output, assertion)
		case AssertPathExists:
			err = assertPathExists(output, assertion)
		case AssertMeterReadingCount:
			err = assertMeterReadingCount(output, assertion)
		case AssertNoWarnings:
			err = assertNoWarnings(output)
		case AssertResponseSchema:
			err = assertResponseSchema(output, assertion)
		default:
			err = fmt.Errorf("assertions[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if ae, ok := err.(*AssertionError); ok {
			ae.Index = i
		}
		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}

// entityUpdates returns the entity_updates list of a response.
func entityUpdates(output any) []map[string]any {
	return objectList(output, "entity_updates")
}

func objectList(output any, key string) []map[string]any {
	root, ok := output.(map[string]any)
	if !ok {
		return nil
	}
	items, ok := root[key].([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

func assertEntityCount(output any, a Assertion) error {
	count := 0
	for _, u := range entityUpdates(output) {
		if a.Schema == "" || u["entity_schema"] == a.Schema {
			count++
		}
	}

	if count != *a.Count {
		what := "entity updates"
		if a.Schema != "" {
			what = fmt.Sprintf("%s entity updates", a.Schema)
		}
		return &AssertionError{
			Type:     AssertEntityCount,
			Expected: fmt.Sprintf("%d %s", *a.Count, what),
			Actual:   fmt.Sprintf("%d", count),
		}
	}
	return nil
}

// assertEntityContains checks that some update of the schema contains the
// expected attributes and unique identifiers (subset semantics).
func assertEntityContains(output any, a Assertion) error {
	candidates := 0
	for _, u := range entityUpdates(output) {
		if u["entity_schema"] != a.Schema {
			continue
		}
		candidates++
		if matchSubset(u["attributes"], a.Attributes) && matchSubset(u["unique_identifiers"], a.UniqueIdentifiers) {
			return nil
		}
	}

	expected := a.Schema + " entity"
	if len(a.UniqueIdentifiers) > 0 {
		expected += " with unique_identifiers " + formatValue(a.UniqueIdentifiers)
	}
	if len(a.Attributes) > 0 {
		expected += " with attributes " + formatValue(a.Attributes)
	}
	return &AssertionError{
		Type:     AssertEntityContains,
		Expected: expected,
		Actual:   fmt.Sprintf("no match among %d %s update(s)", candidates, a.Schema),
	}
}

func assertPathEquals(output any, a Assertion) error {
	actual, ok := LookupPath(output, a.Path)
	if !ok {
		return &AssertionError{
			Type:     AssertPathEquals,
			Expected: fmt.Sprintf("%s = %s", a.Path, formatValue(a.Value)),
			Actual:   "path not found",
		}
	}
	if !valuesEqual(actual, a.Value) {
		return &AssertionError{
			Type:     AssertPathEquals,
			Expected: fmt.Sprintf("%s = %s", a.Path, formatValue(a.Value)),
			Actual:   formatValue(actual),
		}
	}
	return nil
}

func assertPathExists(output any, a Assertion) error {
	if _, ok := LookupPath(output, a.Path); !ok {
		return &AssertionError{
			Type:     AssertPathExists,
			Expected: fmt.Sprintf("path %s to exist", a.Path),
			Actual:   "path not found",
		}
	}
	return nil
}

func assertMeterReadingCount(output any, a Assertion) error {
	count := 0
	for _, u := range objectList(output, "meter_readings_updates") {
		if readings, ok := u["readings"].([]any); ok {
			count += len(readings)
		}
	}
	if count != *a.Count {
		return &AssertionError{
			Type:     AssertMeterReadingCount,
			Expected: fmt.Sprintf("%d meter readings", *a.Count),
			Actual:   fmt.Sprintf("%d", count),
		}
	}
	return nil
}

func assertNoWarnings(output any) error {
	root, _ := output.(map[string]any)
	warnings, _ := root["warnings"].([]any)
	if len(warnings) > 0 {
		return &AssertionError{
			Type:     AssertNoWarnings,
			Expected: "no warnings",
			Actual:   formatValue(warnings),
		}
	}
	return nil
}

// assertResponseSchema validates the whole response against a JSON Schema file.
func assertResponseSchema(output any, a Assertion) error {
	path, err := filepath.Abs(a.File)
	if err != nil {
		return fmt.Errorf("response_schema: resolve %s: %w", a.File, err)
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewReferenceLoader("file://" + filepath.ToSlash(path)))
	if err != nil {
		return fmt.Errorf("response_schema: compile %s: %w", a.File, err)
	}

	doc, err := json.Marshal(output)
	if err != nil {
		return fmt.Errorf("response_schema: marshal response: %w", err)
	}
	res, err := schema.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return fmt.Errorf("response_schema: %w", err)
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return &AssertionError{
			Type:     AssertResponseSchema,
			Expected: "response valid against " + filepath.Base(a.File),
			Actual:   strings.Join(msgs, "; "),
		}
	}
	return nil
}

// LookupPath resolves a dotted path in decoded JSON.
//
// Accepted forms: "a.b.0.c", "$.a.b[0].c", "a[0][1]". "$" and "" address
// the root. Numeric segments index arrays; on objects they are plain keys.
func LookupPath(root any, path string) (any, bool) {
	current := root
	for _, seg := range splitPath(path) {
		switch node := current.(type) {
		case map[string]any:
			v, ok := node[seg]
			if !ok {
				return nil, false
			}
			current = v
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			current = node[idx]
		default:
			return nil, false
		}
	}
	return current, true
}

func splitPath(path string) []string {
	path = strings.TrimPrefix(path, "$")
	path = strings.ReplaceAll(path, "[", ".")
	path = strings.ReplaceAll(path, "]", "")
	var segs []string
	for _, s := range strings.Split(path, ".") {
		if s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}

// matchSubset checks if actual contains all expected keys with equal values.
// Extra keys in actual are ignored.
func matchSubset(actual any, expected map[string]any) bool {
	if len(expected) == 0 {
		return true
	}

	actualMap, ok := actual.(map[string]any)
	if !ok {
		return false
	}

	for key, expectedVal := range expected {
		actualVal, exists := actualMap[key]
		if !exists {
			return false
		}
		if !valuesEqual(actualVal, expectedVal) {
			return false
		}
	}
	return true
}

// valuesEqual compares decoded JSON against a YAML-provided expectation.
// Numbers compare as decimals regardless of representation, so YAML 3 equals
// JSON 3.0 and YAML 0.1 equals JSON 0.1. Maps and lists compare element-wise with exact key sets.
func valuesEqual(actual, expected any) bool {
	if actual == nil || expected == nil {
		return actual == nil && expected == nil
	}

	if an, ok := toDecimal(actual); ok {
		en, ok := toDecimal(expected)
		return ok && an.Equal(en)
	}

	switch exp := expected.(type) {
	case string:
		s, ok := actual.(string)
		return ok && s == exp
	case bool:
		b, ok := actual.(bool)
		return ok && b == exp
	case map[string]any:
		act, ok := actual.(map[string]any)
		if !ok || len(act) != len(exp) {
			return false
		}
		for k, ev := range exp {
			av, ok := act[k]
			if !ok || !valuesEqual(av, ev) {
				return false
			}
		}
		return true
	case []any:
		act, ok := actual.([]any)
		if !ok || len(act) != len(exp) {
			return false
		}
		for i := range exp {
			if !valuesEqual(act[i], exp[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// toDecimal converts any numeric representation to a decimal. Floats use
// their shortest round-trip form.
func toDecimal(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int64:
		return decimal.NewFromInt(n), true
	case uint64:
		d, err := decimal.NewFromString(strconv.FormatUint(n, 10))
		return d, err == nil
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return decimal.Decimal{}, false
		}
		return decimal.NewFromFloat(n), true
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		return d, err == nil
	}
	return decimal.Decimal{}, false
}

// formatValue renders a value as canonical JSON for messages.
func formatValue(v any) string {
	data, err := canonical.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
