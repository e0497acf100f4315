package harness

import "github.com/roach88/cohortq/internal/queryast"

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	Pass bool

	// Document is the serialized cohort selection. An unconstrained
	// selection serializes to true. Nil when serialization failed.
	Document queryast.Node

	// ErrorCode is the serializer error code when serialization failed.
	ErrorCode string

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
