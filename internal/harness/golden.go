package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/cohortq/internal/canon"
	"github.com/roach88/cohortq/internal/queryast"
	"github.com/roach88/cohortq/internal/serializer"
)

// Snapshot is the golden-file form of a scenario outcome.
type Snapshot struct {
	ScenarioName string
	Mode         string
	Document     queryast.Node
	ErrorCode    string
}

// toCanonicalMap converts a Snapshot to a map for canonical JSON serialization.
func (s *Snapshot) toCanonicalMap() map[string]any {
	m := map[string]any{
		"scenario_name": s.ScenarioName,
		"mode":          s.Mode,
	}
	if s.Document != nil {
		m["document"] = queryast.ToMap(s.Document)
	}
	if s.ErrorCode != "" {
		m["error_code"] = s.ErrorCode
	}
	return m
}

// RunWithGolden executes a scenario and compares the outcome against a golden
// file stored in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the outcome doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against the scenario's golden
// file without re-running it.
func AssertGolden(t *testing.T, scenario *Scenario, result *Result) error {
	t.Helper()

	data, err := MarshalSnapshot(scenario, result)
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

// MarshalSnapshot returns the canonical golden bytes for a scenario outcome.
func MarshalSnapshot(scenario *Scenario, result *Result) ([]byte, error) {
	mode, err := serializer.ParseMode(scenario.Mode)
	if err != nil {
		return nil, err
	}
	snapshot := Snapshot{
		ScenarioName: scenario.Name,
		Mode:         mode.String(),
		Document:     result.Document,
		ErrorCode:    result.ErrorCode,
	}
	return canon.Marshal(snapshot.toCanonicalMap())
}
