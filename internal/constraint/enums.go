package constraint

import (
	"fmt"
	"strings"
)

// ParseError reports a domain enumeration value that could not be parsed.
type ParseError struct {
	Enum  string // enumeration name, e.g. "operator"
	Value string // offending input
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unknown %s %q", e.Enum, e.Value)
}

// CombinationState is the boolean mode of a CombinationConstraint.
type CombinationState int

const (
	And CombinationState = iota
	Or
)

func (s CombinationState) String() string {
	switch s {
	case And:
		return "and"
	case Or:
		return "or"
	default:
		return fmt.Sprintf("CombinationState(%d)", int(s))
	}
}

// ParseCombinationState parses "and" or "or" (case-insensitive).
func ParseCombinationState(s string) (CombinationState, error) {
	switch strings.ToLower(s) {
	case "and":
		return And, nil
	case "or":
		return Or, nil
	}
	return And, &ParseError{Enum: "combination state", Value: s}
}

// Dimension is the entity level a predicate or group is evaluated against.
//
// Dimensions are a closed set; control flow never compares dimension names
// as strings. The zero value is DimensionPatient, the default dimension of a
// new combination.
type Dimension int

const (
	DimensionPatient Dimension = iota
	DimensionObservation
	DimensionVisit
	DimensionTrialVisit
	DimensionStudy
	DimensionStartTime
	DimensionValue
)

var dimensionNames = [...]string{
	DimensionPatient:     "patient",
	DimensionObservation: "observation",
	DimensionVisit:       "visit",
	DimensionTrialVisit:  "trial visit",
	DimensionStudy:       "study",
	DimensionStartTime:   "start time",
	DimensionValue:       "value",
}

// String returns the wire name of the dimension.
func (d Dimension) String() string {
	if d >= 0 && int(d) < len(dimensionNames) {
		return dimensionNames[d]
	}
	return fmt.Sprintf("Dimension(%d)", int(d))
}

// Valid reports whether d is one of the declared dimensions.
func (d Dimension) Valid() bool {
	return d >= 0 && int(d) < len(dimensionNames)
}

// MarshalText implements encoding.TextMarshaler.
func (d Dimension) MarshalText() ([]byte, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("invalid dimension %d", int(d))
	}
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Dimension) UnmarshalText(text []byte) error {
	parsed, err := ParseDimension(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ParseDimension maps a wire name ("patient", "trial visit", ...) to a Dimension.
func ParseDimension(s string) (Dimension, error) {
	for i, name := range dimensionNames {
		if name == s {
			return Dimension(i), nil
		}
	}
	return DimensionPatient, &ParseError{Enum: "dimension", Value: s}
}

// ValueType is the declared type of a concept or an observed value.
type ValueType int

const (
	TypeNone ValueType = iota
	TypeNumeric
	TypeCategorical
	TypeString
	TypeDate
	TypeText
)

var valueTypeNames = [...]string{
	TypeNone:        "",
	TypeNumeric:     "NUMERIC",
	TypeCategorical: "CATEGORICAL",
	TypeString:      "STRING",
	TypeDate:        "DATE",
	TypeText:        "TEXT",
}

func (t ValueType) String() string {
	if t >= 0 && int(t) < len(valueTypeNames) {
		return valueTypeNames[t]
	}
	return fmt.Sprintf("ValueType(%d)", int(t))
}

// ParseValueType parses an upper- or lower-case value type name.
// The empty string yields TypeNone.
func ParseValueType(s string) (ValueType, error) {
	upper := strings.ToUpper(s)
	for i, name := range valueTypeNames {
		if name == upper {
			return ValueType(i), nil
		}
	}
	return TypeNone, &ParseError{Enum: "value type", Value: s}
}

// Operator is a comparison operator of a ValueConstraint.
//
// The zero value is not an operator; serializing it fails.
type Operator int

const (
	OpLessThan Operator = iota + 1
	OpGreaterThan
	OpEqual
	OpNotEqual
	OpLessOrEqual
	OpGreaterOrEqual
	OpIn
	OpLike
	OpContains
	OpBetween
	OpBefore
	OpAfter
	OpExists
)

var operatorNames = map[Operator]string{
	OpLessThan:       "lt",
	OpGreaterThan:    "gt",
	OpEqual:          "eq",
	OpNotEqual:       "neq",
	OpLessOrEqual:    "leq",
	OpGreaterOrEqual: "geq",
	OpIn:             "in",
	OpLike:           "like",
	OpContains:       "contains",
	OpBetween:        "between",
	OpBefore:         "before",
	OpAfter:          "after",
	OpExists:         "exists",
}

func (o Operator) String() string {
	if name, ok := operatorNames[o]; ok {
		return name
	}
	return fmt.Sprintf("Operator(%d)", int(o))
}

// ParseOperator parses a domain operator name ("lt", "geq", ...).
// Wire symbols such as "<" are handled by package vocab.
func ParseOperator(s string) (Operator, error) {
	for op, name := range operatorNames {
		if name == s {
			return op, nil
		}
	}
	return 0, &ParseError{Enum: "operator", Value: s}
}

// DateOperator is the mode of a TimeConstraint.
type DateOperator int

const (
	DateBetween DateOperator = iota
	DateNotBetween
	DateBefore
	DateAfter
)

var dateOperatorNames = [...]string{
	DateBetween:    "between",
	DateNotBetween: "not_between",
	DateBefore:     "before",
	DateAfter:      "after",
}

func (o DateOperator) String() string {
	if o >= 0 && int(o) < len(dateOperatorNames) {
		return dateOperatorNames[o]
	}
	return fmt.Sprintf("DateOperator(%d)", int(o))
}

// ParseDateOperator accepts "between", "not_between" (or "not between"),
// "before" and "after".
func ParseDateOperator(s string) (DateOperator, error) {
	normalized := strings.ReplaceAll(strings.ToLower(s), " ", "_")
	for i, name := range dateOperatorNames {
		if name == normalized {
			return DateOperator(i), nil
		}
	}
	return DateBetween, &ParseError{Enum: "date operator", Value: s}
}

// TwoDates reports whether the mode takes a (start, end) pair.
func (o DateOperator) TwoDates() bool {
	return o == DateBetween || o == DateNotBetween
}

// Kind identifies a Constraint variant.
type Kind int

const (
	KindTrue Kind = iota
	KindCombination
	KindNegation
	KindConcept
	KindValue
	KindTime
	KindTrialVisit
	KindStudy
	KindSubjectSet
	KindPedigree
)

var kindNames = [...]string{
	KindTrue:        "TrueConstraint",
	KindCombination: "CombinationConstraint",
	KindNegation:    "NegationConstraint",
	KindConcept:     "ConceptConstraint",
	KindValue:       "ValueConstraint",
	KindTime:        "TimeConstraint",
	KindTrialVisit:  "TrialVisitConstraint",
	KindStudy:       "StudyConstraint",
	KindSubjectSet:  "SubjectSetConstraint",
	KindPedigree:    "PedigreeConstraint",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}
