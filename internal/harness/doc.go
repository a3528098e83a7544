// Package harness runs the ERP mapping example cases against the
// mapping-simulation service and checks the shape of each response.
//
// # Case Format
//
// Cases are YAML files named case.yaml (or <name>.case.yaml):
//
//	name: customer-contact
//	description: "Plain field mapping from a customer record to a contact"
//	event: event.json
//	mapping: mapping.json
//	event_name: CustomerChanged
//	assertions:
//	  - type: entity_count
//	    schema: contact
//	    count: 1
//	  - type: entity_contains
//	    schema: contact
//	    unique_identifiers: { customer_number: "C-1001" }
//	    attributes: { first_name: "Jane" }
//	  - type: path_equals
//	    path: entity_updates.0.attributes.email.0.email
//	    value: jane@example.com
//
// A case with expect_status passes only when the service rejects the request
// with that status; its mapping is not validated locally.
//
// # Assertion Types
//
//   - entity_count: number of entity updates, optionally for one schema
//   - entity_contains: some update of a schema matches attributes and
//     unique identifiers (subset semantics, numbers compared by value)
//   - path_equals / path_exists: dotted response paths
//   - meter_reading_count: total readings across all meter updates
//   - no_warnings: the response carries no warnings
//   - response_schema: the whole response validates against a JSON Schema
//
// # Golden Snapshots
//
// Snapshot renders {scenario_name, output} as canonical JSON, so a golden
// file changes only when the service's answer changes.
package harness
