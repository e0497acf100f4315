package harness

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/cohortq/internal/cohortfile"
	"github.com/roach88/cohortq/internal/queryast"
	"github.com/roach88/cohortq/internal/registry"
	"github.com/roach88/cohortq/internal/serializer"
)

// Harness is the test execution engine. Each run gets a fresh registry so
// scenarios never see each other's selections.
type Harness struct {
	registry *registry.Registry
	mode     serializer.Mode
	logger   *slog.Logger
}

// Run executes a test scenario and returns the result.
//
// Execution flow:
// 1. Build the cohort and restore it into a fresh registry
// 2. Serialize the registry's cohort selection in the scenario's mode
// 3. Compare against expect or expect_error
// 4. Evaluate assertions
//
// An error is returned only when the scenario itself is unusable; a
// mismatch is reported through Result.
func Run(scenario *Scenario) (*Result, error) {
	mode, err := serializer.ParseMode(scenario.Mode)
	if err != nil {
		return nil, err
	}
	root, err := (&cohortfile.File{Cohort: scenario.Cohort}).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build cohort: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests
	h := &Harness{
		registry: registry.New(registry.WithLogger(logger)),
		mode:     mode,
		logger:   logger,
	}
	h.registry.RestoreRoot(root)

	result := NewResult()
	h.serialize(result)

	if err := h.checkExpectations(scenario, result); err != nil {
		return nil, err
	}

	if result.Document != nil {
		for _, msg := range EvaluateAssertions(result.Document, scenario.Assertions) {
			result.AddError(msg)
		}
	}

	h.logger.Info("scenario completed", "name", scenario.Name, "pass", result.Pass)
	return result, nil
}

func (h *Harness) serialize(result *Result) {
	doc, err := serializer.Serialize(h.registry.CohortSelection(), h.mode)
	if err != nil {
		var se *serializer.Error
		if errors.As(err, &se) {
			result.ErrorCode = string(se.Code)
		}
		result.AddError(err.Error())
		return
	}
	if doc == nil {
		doc = queryast.NewTrue()
	}
	result.Document = doc
}

func (h *Harness) checkExpectations(scenario *Scenario, result *Result) error {
	if scenario.ExpectError != "" {
		if result.ErrorCode == scenario.ExpectError {
			result.Errors = []string{}
			result.Pass = true
			return nil
		}
		if result.ErrorCode == "" {
			result.AddError(fmt.Sprintf("expected error %s, serialization succeeded", scenario.ExpectError))
		} else {
			result.AddError(fmt.Sprintf("expected error %s, got %s", scenario.ExpectError, result.ErrorCode))
		}
		return nil
	}

	if scenario.Expect == nil || result.Document == nil {
		return nil
	}
	want, err := queryast.FromValue(scenario.Expect)
	if err != nil {
		return fmt.Errorf("invalid expect document: %w", err)
	}
	if !queryast.Equal(want, result.Document) {
		wantJSON, _ := queryast.Marshal(want)
		gotJSON, _ := queryast.Marshal(result.Document)
		result.AddError(fmt.Sprintf("document mismatch\n  Expected: %s\n  Actual: %s", wantJSON, gotJSON))
	}
	return nil
}
