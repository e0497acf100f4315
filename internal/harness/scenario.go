package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/roach88/cohortq/internal/cohortfile"
	"github.com/roach88/cohortq/internal/queryast"
	"github.com/roach88/cohortq/internal/serializer"
)

// Scenario defines a conformance test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Mode is "restricted" (the default) or "full".
	Mode string `yaml:"mode,omitempty"`

	// Cohort is the selection to serialize.
	Cohort *cohortfile.Node `yaml:"cohort"`

	// Expect is the expected query document, written as YAML.
	Expect any `yaml:"expect,omitempty"`

	// ExpectError is the expected serializer error code.
	ExpectError string `yaml:"expect_error,omitempty"`

	// Assertions are checked against the produced document.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Assertion checks a property of the produced document.
type Assertion struct {
	// Type is one of contains, absent or round_trip. round_trip requires
	// mode full.
	Type string `yaml:"type"`

	// Node is the query node type (used by contains and absent).
	Node string `yaml:"node,omitempty"`

	// Count is the exact number of matching nodes (used by contains).
	// Zero means at least one.
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertContains  = "contains"
	AssertAbsent    = "absent"
	AssertRoundTrip = "round_trip"
)

var errorCodes = map[string]bool{
	string(serializer.ErrCodeMissingConcept):         true,
	string(serializer.ErrCodeUnsupportedConceptType): true,
	string(serializer.ErrCodeUnknownOperator):        true,
	string(serializer.ErrCodeInvalidValue):           true,
}

var nodeTypes = map[string]bool{
	string(queryast.TypeTrue):         true,
	string(queryast.TypeValue):        true,
	string(queryast.TypeField):        true,
	string(queryast.TypeTime):         true,
	string(queryast.TypeNegation):     true,
	string(queryast.TypeSubselection): true,
	string(queryast.TypeAnd):          true,
	string(queryast.TypeOr):           true,
	string(queryast.TypeConcept):      true,
	string(queryast.TypeStudyName):    true,
	string(queryast.TypePatientSet):   true,
	string(queryast.TypeRelation):     true,
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// LoadScenarios loads every *.yaml and *.yml scenario in dir, sorted by
// file name.
func LoadScenarios(dir string) ([]*Scenario, error) {
	var paths []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", dir, err)
		}
		paths = append(paths, matches...)
	}
	sort.Strings(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	for _, path := range paths {
		s, err := LoadScenario(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Cohort == nil {
		return fmt.Errorf("cohort is required")
	}

	mode, err := serializer.ParseMode(s.Mode)
	if err != nil {
		return err
	}

	if s.Expect != nil && s.ExpectError != "" {
		return fmt.Errorf("expect and expect_error are mutually exclusive")
	}

	if s.ExpectError != "" && !errorCodes[s.ExpectError] {
		return fmt.Errorf("unknown error code %q", s.ExpectError)
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
		// Restricted documents carry no concept metadata to restore from.
		if assertion.Type == AssertRoundTrip && mode != serializer.ModeFull {
			return fmt.Errorf("assertions[%d]: round_trip requires mode full", i)
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
	case AssertContains, AssertAbsent:
		if !nodeTypes[a.Node] {
			return fmt.Errorf("assertions[%d]: unknown node type %q for %s", index, a.Node, a.Type)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case AssertRoundTrip:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
