// Package mapping validates ERP mapping configuration files before they are
// sent to the simulation service.
//
// Validation is structural only. JSONata expressions are treated as opaque
// strings; nothing here evaluates them or produces entities. The shape is
// described by an embedded CUE schema (schema.cue) and a handful of
// cross-field rules that are simpler to state in Go.
package mapping

import (
	"encoding/json"
	"fmt"
)

// Config is the decoded form of a mapping configuration file.
type Config struct {
	Version string        `json:"version,omitempty"`
	Mapping MappingConfig `json:"mapping"`
}

// MappingConfig holds the per-event mapping rules.
type MappingConfig struct {
	Events map[string]EventConfig `json:"events"`
}

// EventConfig describes what a single ERP event produces.
type EventConfig struct {
	Entities      []EntityConfig       `json:"entities,omitempty"`
	MeterReadings []MeterReadingConfig `json:"meter_readings,omitempty"`
}

// EntityConfig maps an event to updates of one entity schema.
// Enabled is either a bool or a JSONata condition (conditional entities).
type EntityConfig struct {
	EntitySchema      string   `json:"entity_schema"`
	UniqueIDs         []string `json:"unique_ids"`
	Enabled           any      `json:"enabled,omitempty"`
	JSONataExpression string   `json:"jsonataExpression,omitempty"`
	Fields            []Field  `json:"fields"`
}

// Source is where a value comes from. Exactly one member must be set.
type Source struct {
	Field             string          `json:"field,omitempty"`
	JSONataExpression string          `json:"jsonataExpression,omitempty"`
	Constant          json.RawMessage `json:"constant,omitempty"`
}

// Field maps one entity attribute.
type Field struct {
	Source
	Attribute string     `json:"attribute"`
	Type      string     `json:"type,omitempty"`
	Enabled   any        `json:"enabled,omitempty"`
	Relations *Relations `json:"relations,omitempty"`
}

// Relations links the entity to other entities resolved by unique ids.
type Relations struct {
	Operation         string         `json:"operation"`
	Items             []RelationItem `json:"items,omitempty"`
	JSONataExpression string         `json:"jsonataExpression,omitempty"`
}

// RelationItem identifies a related entity.
type RelationItem struct {
	EntitySchema string           `json:"entity_schema"`
	UniqueIDs    []UniqueIDSource `json:"unique_ids"`
	Tags         []string         `json:"tags,omitempty"`
}

// UniqueIDSource maps one identifying attribute of a related entity or meter.
type UniqueIDSource struct {
	Source
	Attribute string `json:"attribute"`
}

// MeterReadingConfig fans an event out into meter readings.
type MeterReadingConfig struct {
	JSONataExpression string    `json:"jsonataExpression,omitempty"`
	ReadingMatching   string    `json:"reading_matching,omitempty"`
	Meter             MeterRef  `json:"meter"`
	MeterCounter      *MeterRef `json:"meter_counter,omitempty"`
	Fields            []Field   `json:"fields"`
}

// MeterRef identifies a meter or meter counter.
type MeterRef struct {
	UniqueIDs []UniqueIDSource `json:"unique_ids"`
}

// sources lists which value sources are set.
func (s Source) sources() []string {
	var set []string
	if s.Field != "" {
		set = append(set, "field")
	}
	if s.JSONataExpression != "" {
		set = append(set, "jsonataExpression")
	}
	if len(s.Constant) > 0 {
		set = append(set, "constant")
	}
	return set
}

// Validation error codes.
const (
	ErrCodeShape           = "E201" // JSON syntax or schema mismatch
	ErrCodeMissingSource   = "E202" // field without a value source
	ErrCodeMultipleSources = "E203" // field with more than one value source
	ErrCodeUniqueID        = "E204" // unique id not produced by any field
	ErrCodeNoEvents        = "E205" // no events, or an event that produces nothing
	ErrCodeDuplicate       = "E206" // attribute mapped twice in one entity
)

// ValidationError is a single problem found in a mapping configuration.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}
