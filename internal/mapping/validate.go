package mapping

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	cuejson "cuelang.org/go/encoding/json"
)

//go:embed schema.cue
var schemaSource string

// ValidateFile reads and validates the mapping configuration at path.
func ValidateFile(path string) []ValidationError {
	data, err := os.ReadFile(path)
	if err != nil {
		return []ValidationError{{
			Field:   "file",
			Message: fmt.Sprintf("failed to read mapping file: %v", err),
			Code:    ErrCodeShape,
		}}
	}
	return Validate(data, path)
}

// Validate checks a mapping configuration document.
//
// Shape errors from the CUE schema are reported first, all of them. The
// cross-field rules only run on documents that pass the schema, since they
// assume the decoded structure is well formed.
func Validate(data []byte, filename string) []ValidationError {
	if errs := validateShape(data, filename); len(errs) > 0 {
		return errs
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return []ValidationError{{Field: "file", Message: err.Error(), Code: ErrCodeShape}}
	}
	return validateRules(&cfg)
}

// Parse decodes a mapping configuration without validating it.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse mapping: %w", err)
	}
	return &cfg, nil
}

// EventNames returns the configured event names in sorted order.
func (c *Config) EventNames() []string {
	names := make([]string, 0, len(c.Mapping.Events))
	for name := range c.Mapping.Events {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// validateShape unifies the document with #MappingConfig.
func validateShape(data []byte, filename string) []ValidationError {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return []ValidationError{{Field: "schema", Message: err.Error(), Code: ErrCodeShape}}
	}
	def := schema.LookupPath(cue.ParsePath("#MappingConfig"))

	expr, err := cuejson.Extract(filename, data)
	if err != nil {
		return convertCUEErrors(err, filename)
	}
	doc := ctx.BuildExpr(expr)
	if err := doc.Err(); err != nil {
		return convertCUEErrors(err, filename)
	}

	if err := def.Unify(doc).Validate(cue.Concrete(true)); err != nil {
		return convertCUEErrors(err, filename)
	}
	return nil
}

// convertCUEErrors flattens a CUE error list, keeping the line number that
// points into the validated document rather than into the schema.
func convertCUEErrors(err error, filename string) []ValidationError {
	var out []ValidationError
	for _, e := range cueerrors.Errors(err) {
		format, args := e.Msg()
		ve := ValidationError{
			Field:   strings.Join(e.Path(), "."),
			Message: fmt.Sprintf(format, args...),
			Code:    ErrCodeShape,
		}
		if ve.Field == "" {
			ve.Field = "document"
		}
		for _, pos := range cueerrors.Positions(e) {
			if pos.IsValid() && pos.Filename() == filename {
				ve.Line = pos.Line()
				break
			}
		}
		out = append(out, ve)
	}
	if len(out) == 0 {
		out = append(out, ValidationError{Field: "document", Message: err.Error(), Code: ErrCodeShape})
	}
	return out
}

// validateRules applies the cross-field rules to a schema-valid config.
func validateRules(cfg *Config) []ValidationError {
	var errs []ValidationError

	if len(cfg.Mapping.Events) == 0 {
		return []ValidationError{{
			Field:   "mapping.events",
			Message: "at least one event is required",
			Code:    ErrCodeNoEvents,
		}}
	}

	for _, name := range cfg.EventNames() {
		event := cfg.Mapping.Events[name]
		path := "mapping.events." + name

		if len(event.Entities) == 0 && len(event.MeterReadings) == 0 {
			errs = append(errs, ValidationError{
				Field:   path,
				Message: "event must define entities or meter_readings",
				Code:    ErrCodeNoEvents,
			})
			continue
		}

		for i, entity := range event.Entities {
			errs = append(errs, validateEntity(fmt.Sprintf("%s.entities[%d]", path, i), entity)...)
		}
		for i, mr := range event.MeterReadings {
			errs = append(errs, validateMeterReading(fmt.Sprintf("%s.meter_readings[%d]", path, i), mr)...)
		}
	}

	return errs
}

func validateEntity(path string, entity EntityConfig) []ValidationError {
	var errs []ValidationError
	attributes := make(map[string]bool, len(entity.Fields))

	for i, field := range entity.Fields {
		fieldPath := fmt.Sprintf("%s.fields[%d]", path, i)
		if attributes[field.Attribute] {
			errs = append(errs, ValidationError{
				Field:   fieldPath,
				Message: fmt.Sprintf("attribute %q is mapped more than once", field.Attribute),
				Code:    ErrCodeDuplicate,
			})
		}
		attributes[field.Attribute] = true
		errs = append(errs, validateField(fieldPath, field)...)
	}

	for _, id := range entity.UniqueIDs {
		if !attributes[id] {
			errs = append(errs, ValidationError{
				Field:   path + ".unique_ids",
				Message: fmt.Sprintf("unique id %q is not produced by any field of %s", id, entity.EntitySchema),
				Code:    ErrCodeUniqueID,
			})
		}
	}

	return errs
}

func validateField(path string, field Field) []ValidationError {
	sources := field.sources()
	if field.Relations != nil {
		sources = append(sources, "relations")
	}

	var errs []ValidationError
	if err := checkSources(path, field.Attribute, sources); err != nil {
		errs = append(errs, *err)
	}

	if field.Relations != nil {
		for i, item := range field.Relations.Items {
			for j, id := range item.UniqueIDs {
				idPath := fmt.Sprintf("%s.relations.items[%d].unique_ids[%d]", path, i, j)
				if err := checkSources(idPath, id.Attribute, id.sources()); err != nil {
					errs = append(errs, *err)
				}
			}
		}
	}
	return errs
}

func validateMeterReading(path string, mr MeterReadingConfig) []ValidationError {
	var errs []ValidationError

	refs := map[string]*MeterRef{"meter": &mr.Meter, "meter_counter": mr.MeterCounter}
	for _, name := range []string{"meter", "meter_counter"} {
		ref := refs[name]
		if ref == nil {
			continue
		}
		for j, id := range ref.UniqueIDs {
			idPath := fmt.Sprintf("%s.%s.unique_ids[%d]", path, name, j)
			if err := checkSources(idPath, id.Attribute, id.sources()); err != nil {
				errs = append(errs, *err)
			}
		}
	}

	seen := make(map[string]bool, len(mr.Fields))
	for i, field := range mr.Fields {
		fieldPath := fmt.Sprintf("%s.fields[%d]", path, i)
		if seen[field.Attribute] {
			errs = append(errs, ValidationError{
				Field:   fieldPath,
				Message: fmt.Sprintf("attribute %q is mapped more than once", field.Attribute),
				Code:    ErrCodeDuplicate,
			})
		}
		seen[field.Attribute] = true
		errs = append(errs, validateField(fieldPath, field)...)
	}

	return errs
}

// checkSources enforces exactly one value source.
func checkSources(path, attribute string, sources []string) *ValidationError {
	switch len(sources) {
	case 1:
		return nil
	case 0:
		return &ValidationError{
			Field:   path,
			Message: fmt.Sprintf("attribute %q needs one of field, jsonataExpression, constant or relations", attribute),
			Code:    ErrCodeMissingSource,
		}
	default:
		return &ValidationError{
			Field:   path,
			Message: fmt.Sprintf("attribute %q has more than one source: %s", attribute, strings.Join(sources, ", ")),
			Code:    ErrCodeMultipleSources,
		}
	}
}
