package harness

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const richResponse = `{
  "entity_updates": [
    {
      "entity_schema": "contact",
      "unique_identifiers": {"customer_number": "C-1001"},
      "attributes": {
        "first_name": "Jane",
        "age": 42,
        "vip": true,
        "email": [{"email": "jane@example.com", "_tags": ["billing"]}]
      }
    },
    {
      "entity_schema": "contact",
      "unique_identifiers": {"customer_number": "C-1002"},
      "attributes": {"first_name": "John"}
    },
    {
      "entity_schema": "account",
      "unique_identifiers": {"account_number": "A-1"},
      "attributes": {"balance": 10.5}
    }
  ],
  "meter_readings_updates": [
    {"meter": {"unique_identifiers": {"external_id": "M-1"}}, "readings": [{"value": 1}, {"value": 2}]},
    {"meter": {"unique_identifiers": {"external_id": "M-2"}}, "readings": [{"value": 3}]}
  ],
  "warnings": []
}`

func TestAssertEntityCount(t *testing.T) {
	out := decode(t, richResponse)

	tests := []struct {
		name   string
		schema string
		count  int
		pass   bool
	}{
		{"all_entities", "", 3, true},
		{"contacts", "contact", 2, true},
		{"accounts", "account", 1, true},
		{"absent_schema", "opportunity", 0, true},
		{"wrong_count", "contact", 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := EvaluateAssertions(out, []Assertion{{Type: AssertEntityCount, Schema: tt.schema, Count: intPtr(tt.count)}})
			if tt.pass {
				assert.Empty(t, errs)
			} else {
				require.Len(t, errs, 1)
				assert.Contains(t, errs[0], "assertions[0] entity_count")
			}
		})
	}
}

func TestAssertEntityContains(t *testing.T) {
	out := decode(t, richResponse)

	tests := []struct {
		name      string
		assertion Assertion
		pass      bool
	}{
		{
			name: "match_by_unique_id",
			assertion: Assertion{Type: AssertEntityContains, Schema: "contact",
				UniqueIdentifiers: map[string]any{"customer_number": "C-1002"}},
			pass: true,
		},
		{
			name: "match_attributes_subset",
			assertion: Assertion{Type: AssertEntityContains, Schema: "contact",
				Attributes: map[string]any{"first_name": "Jane", "vip": true}},
			pass: true,
		},
		{
			name: "yaml_int_equals_json_number",
			assertion: Assertion{Type: AssertEntityContains, Schema: "contact",
				Attributes: map[string]any{"age": 42}},
			pass: true,
		},
		{
			name: "float_attribute",
			assertion: Assertion{Type: AssertEntityContains, Schema: "account",
				Attributes: map[string]any{"balance": 10.5}},
			pass: true,
		},
		{
			name: "nested_list",
			assertion: Assertion{Type: AssertEntityContains, Schema: "contact",
				Attributes: map[string]any{"email": []any{
					map[string]any{"email": "jane@example.com", "_tags": []any{"billing"}},
				}}},
			pass: true,
		},
		{
			name: "both_maps_must_match_same_entity",
			assertion: Assertion{Type: AssertEntityContains, Schema: "contact",
				UniqueIdentifiers: map[string]any{"customer_number": "C-1002"},
				Attributes:        map[string]any{"first_name": "Jane"}},
			pass: false,
		},
		{
			name: "wrong_schema",
			assertion: Assertion{Type: AssertEntityContains, Schema: "account",
				Attributes: map[string]any{"first_name": "Jane"}},
			pass: false,
		},
		{
			name: "string_is_not_number",
			assertion: Assertion{Type: AssertEntityContains, Schema: "contact",
				Attributes: map[string]any{"age": "42"}},
			pass: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := EvaluateAssertions(out, []Assertion{tt.assertion})
			if tt.pass {
				assert.Empty(t, errs)
			} else {
				require.Len(t, errs, 1)
				assert.Contains(t, errs[0], "entity_contains")
			}
		})
	}
}

func TestAssertPathEquals(t *testing.T) {
	out := decode(t, richResponse)

	tests := []struct {
		name  string
		path  string
		value any
		pass  bool
	}{
		{"dotted", "entity_updates.0.attributes.first_name", "Jane", true},
		{"dollar_prefix", "$.entity_updates.1.unique_identifiers.customer_number", "C-1002", true},
		{"brackets", "entity_updates[0].attributes.email[0].email", "jane@example.com", true},
		{"number", "entity_updates.2.attributes.balance", 10.5, true},
		{"empty_list", "warnings", []any{}, true},
		{"wrong_value", "entity_updates.0.attributes.first_name", "John", false},
		{"missing_path", "entity_updates.9.attributes", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := EvaluateAssertions(out, []Assertion{{Type: AssertPathEquals, Path: tt.path, Value: tt.value}})
			if tt.pass {
				assert.Empty(t, errs)
			} else {
				assert.Len(t, errs, 1)
			}
		})
	}
}

func TestAssertPathEquals_Null(t *testing.T) {
	out := decode(t, `{"attributes": {"fax": null}}`)

	assert.Empty(t, EvaluateAssertions(out, []Assertion{{Type: AssertPathEquals, Path: "attributes.fax"}}))
	assert.Len(t, EvaluateAssertions(out, []Assertion{{Type: AssertPathEquals, Path: "attributes.fax", Value: "x"}}), 1)
}

func TestAssertPathExists(t *testing.T) {
	out := decode(t, richResponse)

	assert.Empty(t, EvaluateAssertions(out, []Assertion{{Type: AssertPathExists, Path: "meter_readings_updates.1.meter"}}))

	errs := EvaluateAssertions(out, []Assertion{{Type: AssertPathExists, Path: "entity_updates.0.attributes.fax"}})
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "path not found")
}

func TestAssertMeterReadingCount(t *testing.T) {
	out := decode(t, richResponse)

	assert.Empty(t, EvaluateAssertions(out, []Assertion{{Type: AssertMeterReadingCount, Count: intPtr(3)}}))

	errs := EvaluateAssertions(out, []Assertion{{Type: AssertMeterReadingCount, Count: intPtr(2)}})
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "expected 2 meter readings, got 3")
}

func TestAssertNoWarnings(t *testing.T) {
	assert.Empty(t, EvaluateAssertions(decode(t, richResponse), []Assertion{{Type: AssertNoWarnings}}))
	assert.Empty(t, EvaluateAssertions(decode(t, `{"entity_updates": []}`), []Assertion{{Type: AssertNoWarnings}}))

	errs := EvaluateAssertions(decode(t, `{"warnings": ["field 'fax' not found"]}`), []Assertion{{Type: AssertNoWarnings}})
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "field 'fax' not found")
}

func TestAssertResponseSchema(t *testing.T) {
	dir := t.TempDir()
	schemaPath := filepath.Join(dir, "response.schema.json")
	schema := `{
  "type": "object",
  "required": ["entity_updates"],
  "properties": {
    "entity_updates": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["entity_schema", "unique_identifiers", "attributes"]
      }
    }
  }
}`
	require.NoError(t, os.WriteFile(schemaPath, []byte(schema), 0644))

	t.Run("valid", func(t *testing.T) {
		errs := EvaluateAssertions(decode(t, richResponse), []Assertion{{Type: AssertResponseSchema, File: schemaPath}})
		assert.Empty(t, errs)
	})

	t.Run("invalid", func(t *testing.T) {
		errs := EvaluateAssertions(decode(t, `{"entity_updates": [{"entity_schema": "contact"}]}`),
			[]Assertion{{Type: AssertResponseSchema, File: schemaPath}})
		require.Len(t, errs, 1)
		assert.Contains(t, errs[0], "response_schema")
		assert.Contains(t, errs[0], "unique_identifiers")
	})

	t.Run("unreadable_schema", func(t *testing.T) {
		errs := EvaluateAssertions(decode(t, richResponse),
			[]Assertion{{Type: AssertResponseSchema, File: filepath.Join(dir, "missing.json")}})
		require.Len(t, errs, 1)
		assert.Contains(t, errs[0], "compile")
	})
}

func TestEvaluateAssertions_CollectsAllFailures(t *testing.T) {
	out := decode(t, richResponse)

	errs := EvaluateAssertions(out, []Assertion{
		{Type: AssertEntityCount, Count: intPtr(1)},
		{Type: AssertNoWarnings},
		{Type: AssertPathExists, Path: "nope"},
		{Type: "bogus"},
	})

	require.Len(t, errs, 3)
	assert.Contains(t, errs[0], "assertions[0]")
	assert.Contains(t, errs[1], "assertions[2]")
	assert.Contains(t, errs[2], `unknown assertion type "bogus"`)
}

func TestLookupPath(t *testing.T) {
	root := decode(t, `{"a": {"b": [10, {"c": "x"}]}, "1": "key"}`)

	v, ok := LookupPath(root, "a.b.1.c")
	assert.True(t, ok)
	assert.Equal(t, "x", v)

	v, ok = LookupPath(root, "a.b[0]")
	assert.True(t, ok)
	assert.Equal(t, json.Number("10"), v)

	// Numeric keys on objects are plain keys
	v, ok = LookupPath(root, "1")
	assert.True(t, ok)
	assert.Equal(t, "key", v)

	v, ok = LookupPath(root, "$")
	assert.True(t, ok)
	assert.Equal(t, root, v)

	for _, p := range []string{"a.x", "a.b.2", "a.b.-1", "a.b.c", "a.b.0.d"} {
		_, ok := LookupPath(root, p)
		assert.False(t, ok, p)
	}
}

func TestValuesEqual(t *testing.T) {
	tests := []struct {
		name     string
		actual   any
		expected any
		want     bool
	}{
		{"nil_nil", nil, nil, true},
		{"nil_value", nil, "x", false},
		{"number_int", json.Number("3"), 3, true},
		{"number_float", json.Number("3.0"), 3, true},
		{"number_exp", json.Number("1e3"), 1000, true},
		{"float_float", 0.1, 0.1, true},
		{"number_decimal_yaml_float", json.Number("0.1"), 0.1, true},
		{"price", json.Number("19.99"), 19.99, true},
		{"big_int", json.Number("18446744073709551615"), uint64(18446744073709551615), true},
		{"number_mismatch", json.Number("3"), 4, false},
		{"string_number", "3", 3, false},
		{"bool", true, true, true},
		{"map_exact_keys", map[string]any{"a": json.Number("1")}, map[string]any{"a": 1}, true},
		{"map_extra_key", map[string]any{"a": json.Number("1"), "b": "x"}, map[string]any{"a": 1}, false},
		{"list", []any{"a", json.Number("2")}, []any{"a", 2}, true},
		{"list_length", []any{"a"}, []any{"a", "b"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, valuesEqual(tt.actual, tt.expected))
		})
	}
}

func TestAssertionError_Message(t *testing.T) {
	err := &AssertionError{Index: 2, Type: AssertEntityCount, Expected: "1 entity updates", Actual: "0"}
	assert.Equal(t, "assertions[2] entity_count: expected 1 entity updates, got 0", err.Error())
}
