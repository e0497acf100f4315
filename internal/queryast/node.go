package queryast

import (
	"bytes"

	"github.com/roach88/cohortq/internal/constraint"
)

// NodeType is the wire tag of a node.
type NodeType string

const (
	TypeTrue         NodeType = "true"
	TypeValue        NodeType = "value"
	TypeField        NodeType = "field"
	TypeTime         NodeType = "time"
	TypeNegation     NodeType = "negation"
	TypeSubselection NodeType = "subselection"
	TypeAnd          NodeType = "and"
	TypeOr           NodeType = "or"
	TypeConcept      NodeType = "concept"
	TypeStudyName    NodeType = "study_name"
	TypePatientSet   NodeType = "patient_set"
	TypeRelation     NodeType = "relation"
)

// Node is a query document node.
//
// This is a sealed interface - only types in this package implement it.
type Node interface {
	Type() NodeType
	queryNode() // Marker method - seals interface to this package
}

// ConceptMeta decorates concept-derived nodes in full mode.
type ConceptMeta struct {
	Name      string
	FullName  string
	ValueType string
}

// True matches everything.
type True struct{}

func (*True) Type() NodeType { return TypeTrue }
func (*True) queryNode()     {}

// Value compares an observed value.
type Value struct {
	ValueType constraint.ValueType
	Operator  string // wire token
	Value     any    // float64, string or bool
}

func (*Value) Type() NodeType { return TypeValue }
func (*Value) queryNode()     {}

// FieldRef names a field of a backend dimension.
type FieldRef struct {
	Dimension constraint.Dimension
	FieldName string
	Type      constraint.ValueType
}

// Field compares a dimension field.
type Field struct {
	Field    FieldRef
	Operator string
	Value    any // scalar, or []int64 for "in"
}

func (*Field) Type() NodeType { return TypeField }
func (*Field) queryNode()     {}

// Time is a date predicate; Values are epoch milliseconds.
type Time struct {
	Field    FieldRef
	Operator string
	Values   []int64
}

func (*Time) Type() NodeType { return TypeTime }
func (*Time) queryNode()     {}

// Negation is the complement of Arg.
type Negation struct {
	Arg Node
}

func (*Negation) Type() NodeType { return TypeNegation }
func (*Negation) queryNode()     {}

// Subselection evaluates Constraint at Dimension: "there exists an entity of
// this dimension satisfying Constraint".
type Subselection struct {
	Dimension  constraint.Dimension
	Constraint Node
}

func (*Subselection) Type() NodeType { return TypeSubselection }
func (*Subselection) queryNode()     {}

// CombinationOp is the operator of a Combination.
type CombinationOp int

const (
	OpAnd CombinationOp = iota
	OpOr
)

// Combination is a conjunction or disjunction of Args.
type Combination struct {
	Op   CombinationOp
	Args []Node
	Meta *ConceptMeta
}

func (c *Combination) Type() NodeType {
	if c.Op == OpOr {
		return TypeOr
	}
	return TypeAnd
}
func (*Combination) queryNode() {}

// Concept selects observations of one concept.
type Concept struct {
	ConceptCode string
	Meta        *ConceptMeta
}

func (*Concept) Type() NodeType { return TypeConcept }
func (*Concept) queryNode()     {}

// StudyName selects observations of one study.
type StudyName struct {
	StudyID string
}

func (*StudyName) Type() NodeType { return TypeStudyName }
func (*StudyName) queryNode()     {}

// PatientSet selects subjects by exactly one selector.
type PatientSet struct {
	SubjectIDs   []string
	PatientIDs   []string
	PatientSetID int64
}

func (*PatientSet) Type() NodeType { return TypePatientSet }
func (*PatientSet) queryNode()     {}

// Relation selects subjects related to subjects matching
// RelatedSubjectsConstraint.
type Relation struct {
	RelatedSubjectsConstraint Node
	RelationTypeLabel         string
	Biological                *bool
	ShareHousehold            *bool
}

func (*Relation) Type() NodeType { return TypeRelation }
func (*Relation) queryNode()     {}

// NewTrue returns the always-match sentinel.
func NewTrue() *True { return &True{} }

// NewAnd builds a conjunction.
func NewAnd(args ...Node) *Combination { return &Combination{Op: OpAnd, Args: args} }

// NewOr builds a disjunction.
func NewOr(args ...Node) *Combination { return &Combination{Op: OpOr, Args: args} }

// NewNegation wraps arg.
func NewNegation(arg Node) *Negation { return &Negation{Arg: arg} }

// NewSubselection scopes c to dim.
func NewSubselection(dim constraint.Dimension, c Node) *Subselection {
	return &Subselection{Dimension: dim, Constraint: c}
}

// IsTrue reports whether n is the True sentinel.
func IsTrue(n Node) bool {
	_, ok := n.(*True)
	return ok
}

// IsFalse reports whether n is a negation of the True sentinel.
func IsFalse(n Node) bool {
	neg, ok := n.(*Negation)
	return ok && IsTrue(neg.Arg)
}

// Equal reports whether two nodes encode to the same canonical document.
func Equal(a, b Node) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	da, errA := Marshal(a)
	db, errB := Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(da, db)
}
