package serializer

import (
	"errors"
	"fmt"
)

// Error is a fatal serialization failure. Serialization stops at the first
// error; no partial document is returned.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Path locates the offending constraint, e.g. "/children/1/valueConstraints/0".
	Path string
}

// ErrorCode categorizes serialization errors.
type ErrorCode string

const (
	// ErrCodeMissingConcept indicates a concept constraint with no bound concept.
	ErrCodeMissingConcept ErrorCode = "MISSING_CONCEPT"

	// ErrCodeUnsupportedConceptType indicates value constraints on a concept
	// that is neither NUMERIC nor CATEGORICAL.
	ErrCodeUnsupportedConceptType ErrorCode = "UNSUPPORTED_CONCEPT_TYPE"

	// ErrCodeUnknownOperator indicates an operator outside the wire vocabulary.
	ErrCodeUnknownOperator ErrorCode = "UNKNOWN_OPERATOR"

	// ErrCodeInvalidValue indicates a value the wire format cannot carry.
	ErrCodeInvalidValue ErrorCode = "INVALID_VALUE"
)

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s (at %s)", e.Code, e.Message, e.Path)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func hasCode(err error, code ErrorCode) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

// IsMissingConcept returns true if err is a missing-concept error.
func IsMissingConcept(err error) bool { return hasCode(err, ErrCodeMissingConcept) }

// IsUnsupportedConceptType returns true if err is an unsupported-concept-type error.
func IsUnsupportedConceptType(err error) bool { return hasCode(err, ErrCodeUnsupportedConceptType) }

// IsUnknownOperator returns true if err is an unknown-operator error.
func IsUnknownOperator(err error) bool { return hasCode(err, ErrCodeUnknownOperator) }

// IsInvalidValue returns true if err is an invalid-value error.
func IsInvalidValue(err error) bool { return hasCode(err, ErrCodeInvalidValue) }
