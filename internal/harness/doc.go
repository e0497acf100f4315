// Package harness provides conformance testing for cohort serialization.
//
// A scenario describes a cohort in the cohort file format, the
// serialization mode, and what the resulting query document must look like.
// The harness restores the cohort into a fresh registry, serializes the
// registry's cohort selection and checks the outcome.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	mode: restricted
//	cohort:
//	  and:
//	    - concept: {code: AGE, type: NUMERIC}
//	    - study: [EHR]
//	expect:
//	  type: and
//	  args: [...]
//	assertions:
//	  - type: contains
//	    node: subselection
//	    count: 2
//	  - type: round_trip
//
// A scenario may name expect_error (a serializer error code such as
// UNSUPPORTED_CONCEPT_TYPE) instead of expect.
//
// # Assertion Types
//
//   - contains: the document has at least one node of the given type, or
//     exactly count of them when count is set
//   - absent: the document has no node of the given type
//   - round_trip: restoring the full-mode document and serializing it again
//     reproduces the document
//
// # Golden Files
//
// RunWithGolden compares the canonical JSON of the outcome against
// testdata/golden/{scenario.Name}.golden. To regenerate golden files, run:
//
//	go test ./internal/harness -update
package harness
