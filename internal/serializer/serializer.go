// Package serializer turns a cohort-selection constraint tree into the query
// document accepted by the tabular-data backend.
//
// The serializer is a pure function of its input: it never logs, performs no
// I/O and keeps no state between calls except the mode chosen at
// construction. ModeFull additionally decorates concept-derived nodes with the
// concept's display name, full path and value type so a saved document can
// later be restored into a constraint tree.
//
// A nil node with a nil error means "this constraint contributes nothing"
// (an empty subject set or study list). Callers treat it as "omit", and a
// top-level nil as an unconstrained query.
package serializer

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/roach88/cohortq/internal/constraint"
	"github.com/roach88/cohortq/internal/queryast"
	"github.com/roach88/cohortq/internal/rewriter"
	"github.com/roach88/cohortq/internal/vocab"
)

// Mode selects the output shape.
type Mode int

const (
	// ModeRestricted emits only the fields the backend's count and data
	// endpoints accept.
	ModeRestricted Mode = iota

	// ModeFull adds concept metadata for save and restore.
	ModeFull
)

func (m Mode) String() string {
	if m == ModeFull {
		return "full"
	}
	return "restricted"
}

// ParseMode parses "restricted" or "full". An empty string is restricted.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "", "restricted":
		return ModeRestricted, nil
	case "full":
		return ModeFull, nil
	}
	return ModeRestricted, fmt.Errorf("unknown serialization mode %q", s)
}

// Serializer converts constraint trees to query documents.
type Serializer struct {
	full bool
}

// New creates a serializer for mode.
func New(mode Mode) *Serializer {
	return &Serializer{full: mode == ModeFull}
}

// Serialize is shorthand for New(mode).Serialize(c).
func Serialize(c constraint.Constraint, mode Mode) (queryast.Node, error) {
	return New(mode).Serialize(c)
}

// Serialize converts c. It fails on the first malformed constraint.
func (s *Serializer) Serialize(c constraint.Constraint) (queryast.Node, error) {
	return s.visit("", c)
}

func (s *Serializer) visit(path string, c constraint.Constraint) (queryast.Node, error) {
	switch c := c.(type) {
	case *constraint.TrueConstraint:
		return queryast.NewTrue(), nil
	case *constraint.ValueConstraint:
		return s.visitValue(path, c)
	case *constraint.TrialVisitConstraint:
		return s.visitTrialVisit(path, c)
	case *constraint.TimeConstraint:
		return s.visitTime(path, c)
	case *constraint.SubjectSetConstraint:
		return s.visitSubjectSet(c), nil
	case *constraint.StudyConstraint:
		return s.visitStudy(c), nil
	case *constraint.PedigreeConstraint:
		return s.visitPedigree(path, c)
	case *constraint.NegationConstraint:
		return s.visitNegation(path, c)
	case *constraint.ConceptConstraint:
		return s.visitConcept(path, c)
	case *constraint.CombinationConstraint:
		return s.visitCombination(path, c)
	case nil:
		return nil, &Error{Code: ErrCodeInvalidValue, Message: "nil constraint", Path: path}
	}
	return nil, &Error{Code: ErrCodeInvalidValue, Message: fmt.Sprintf("unsupported constraint %T", c), Path: path}
}

func (s *Serializer) visitValue(path string, c *constraint.ValueConstraint) (queryast.Node, error) {
	op, err := vocab.OperatorToken(c.Operator)
	if err != nil {
		return nil, &Error{Code: ErrCodeUnknownOperator, Message: err.Error(), Path: path}
	}
	value, err := wireValue(c.Value)
	if err != nil {
		return nil, &Error{Code: ErrCodeInvalidValue, Message: err.Error(), Path: path + "/value"}
	}
	return &queryast.Value{ValueType: c.ValueType, Operator: op, Value: value}, nil
}

// wireValue normalizes a comparison value. Numbers are carried as float64.
func wireValue(v any) (any, error) {
	switch x := v.(type) {
	case string, bool:
		return x, nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case float32:
		return wireValue(float64(x))
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, fmt.Errorf("non-finite value %v", x)
		}
		return x, nil
	}
	return nil, fmt.Errorf("unsupported value type %T", v)
}

func (s *Serializer) visitTrialVisit(path string, c *constraint.TrialVisitConstraint) (queryast.Node, error) {
	ids := make([]int64, 0, len(c.TrialVisits))
	for i, tv := range c.TrialVisits {
		id, err := strconv.ParseInt(strings.TrimSpace(tv.ID), 10, 64)
		if err != nil {
			return nil, &Error{
				Code:    ErrCodeInvalidValue,
				Message: fmt.Sprintf("trial visit id %q is not numeric", tv.ID),
				Path:    fmt.Sprintf("%s/trialVisits/%d", path, i),
			}
		}
		ids = append(ids, id)
	}
	return &queryast.Field{
		Field: queryast.FieldRef{
			Dimension: constraint.DimensionTrialVisit,
			FieldName: "id",
			Type:      constraint.TypeNumeric,
		},
		Operator: mustToken(constraint.OpIn),
		Value:    ids,
	}, nil
}

func (s *Serializer) visitTime(path string, c *constraint.TimeConstraint) (queryast.Node, error) {
	op, err := vocab.DateOperatorToken(c.Mode)
	if err != nil {
		return nil, &Error{Code: ErrCodeUnknownOperator, Message: err.Error(), Path: path}
	}
	values := []int64{c.Date1.UnixMilli()}
	if c.Mode.TwoDates() {
		values = append(values, c.Date2.UnixMilli())
	}
	// Observation dates live on the observation's start time; value dates
	// are observations whose value is itself a date.
	field := queryast.FieldRef{Dimension: constraint.DimensionValue, FieldName: "numberValue", Type: constraint.TypeDate}
	if c.ObservationDate {
		field = queryast.FieldRef{Dimension: constraint.DimensionStartTime, FieldName: "startDate", Type: constraint.TypeDate}
	}
	var node queryast.Node = &queryast.Time{Field: field, Operator: op, Values: values}
	if c.Mode == constraint.DateNotBetween {
		node = queryast.NewNegation(node)
	}
	return node, nil
}

func (s *Serializer) visitSubjectSet(c *constraint.SubjectSetConstraint) queryast.Node {
	switch c.Selector() {
	case constraint.SelectSubjectIDs:
		return &queryast.PatientSet{SubjectIDs: append([]string(nil), c.SubjectIDs...)}
	case constraint.SelectPatientIDs:
		return &queryast.PatientSet{PatientIDs: append([]string(nil), c.PatientIDs...)}
	case constraint.SelectSetID:
		return &queryast.PatientSet{PatientSetID: c.ID}
	}
	return nil
}

func (s *Serializer) visitStudy(c *constraint.StudyConstraint) queryast.Node {
	switch len(c.Studies) {
	case 0:
		return nil
	case 1:
		return &queryast.StudyName{StudyID: c.Studies[0].ID}
	}
	args := make([]queryast.Node, len(c.Studies))
	for i, study := range c.Studies {
		args[i] = &queryast.StudyName{StudyID: study.ID}
	}
	return queryast.NewOr(args...)
}

func (s *Serializer) visitPedigree(path string, c *constraint.PedigreeConstraint) (queryast.Node, error) {
	related, err := s.visit(path+"/rightHandSide", c.RightHandSide)
	if err != nil {
		return nil, err
	}
	if related == nil {
		related = queryast.NewTrue()
	}
	r := &queryast.Relation{RelatedSubjectsConstraint: related, RelationTypeLabel: c.Label}
	if c.Biological != nil {
		b := *c.Biological
		r.Biological = &b
	}
	if c.ShareHousehold != nil {
		b := *c.ShareHousehold
		r.ShareHousehold = &b
	}
	return r, nil
}

func (s *Serializer) visitNegation(path string, c *constraint.NegationConstraint) (queryast.Node, error) {
	arg, err := s.visit(path+"/child", c.Child())
	if err != nil || arg == nil {
		return nil, err
	}
	return queryast.NewNegation(arg), nil
}

func (s *Serializer) visitConcept(path string, c *constraint.ConceptConstraint) (queryast.Node, error) {
	if c.Concept == nil {
		return nil, &Error{Code: ErrCodeMissingConcept, Message: "concept constraint has no concept", Path: path}
	}
	args := []queryast.Node{&queryast.Concept{ConceptCode: c.Concept.Code}}

	if len(c.ValueConstraints) > 0 {
		values := make([]queryast.Node, 0, len(c.ValueConstraints))
		for i, vc := range c.ValueConstraints {
			v, err := s.visitValue(fmt.Sprintf("%s/valueConstraints/%d", path, i), vc)
			if err != nil {
				return nil, err
			}
			values = append(values, v)
		}
		switch c.Concept.Type {
		case constraint.TypeNumeric:
			args = append(args, values...)
		case constraint.TypeCategorical:
			if len(values) == 1 {
				args = append(args, values[0])
			} else {
				args = append(args, queryast.NewOr(values...))
			}
		default:
			return nil, &Error{
				Code:    ErrCodeUnsupportedConceptType,
				Message: fmt.Sprintf("concept type not supported: %q", c.Concept.Type.String()),
				Path:    path,
			}
		}
	}
	if c.ApplyValDate && c.ValDate != nil {
		n, err := s.visitTime(path+"/valDate", c.ValDate)
		if err != nil {
			return nil, err
		}
		args = append(args, n)
	}
	if c.ApplyObsDate && c.ObsDate != nil {
		n, err := s.visitTime(path+"/obsDate", c.ObsDate)
		if err != nil {
			return nil, err
		}
		args = append(args, n)
	}
	if c.ApplyTrialVisit && c.TrialVisits != nil && len(c.TrialVisits.TrialVisits) > 0 {
		n, err := s.visitTrialVisit(path+"/trialVisits", c.TrialVisits)
		if err != nil {
			return nil, err
		}
		args = append(args, n)
	}
	if c.ApplyStudy && c.Studies != nil && len(c.Studies.Studies) > 0 {
		args = append(args, s.visitStudy(c.Studies))
	}

	var result queryast.Node
	if len(args) == 1 {
		result = args[0]
	} else {
		result = queryast.NewAnd(args...)
	}
	if s.full {
		meta := &queryast.ConceptMeta{
			Name:      c.Concept.Name,
			FullName:  c.Concept.FullName,
			ValueType: c.Concept.Type.String(),
		}
		switch n := result.(type) {
		case *queryast.Concept:
			n.Meta = meta
		case *queryast.Combination:
			n.Meta = meta
		}
	}
	return result, nil
}

func (s *Serializer) visitCombination(path string, c *constraint.CombinationConstraint) (queryast.Node, error) {
	children := c.Children()
	args := make([]queryast.Node, 0, len(children))
	falseDropped := false
	for i, child := range children {
		node, err := s.visit(fmt.Sprintf("%s/children/%d", path, i), child)
		if err != nil {
			return nil, err
		}
		if dropChild(c.State, node) {
			falseDropped = falseDropped || queryast.IsFalse(node)
			continue
		}
		args = append(args, scopeChild(c, len(children), child, node))
	}
	switch len(args) {
	case 0:
		// A disjunction of nothing but false selects nobody.
		if c.State == constraint.Or && falseDropped {
			return queryast.NewNegation(queryast.NewTrue()), nil
		}
		return queryast.NewTrue(), nil
	case 1:
		return args[0], nil
	}
	op := queryast.OpAnd
	if c.State == constraint.Or {
		op = queryast.OpOr
	}
	return rewriter.Rewrite(&queryast.Combination{Op: op, Args: args}), nil
}

// dropChild filters children that cannot affect the combination: omitted
// nodes, true under AND, and not-true under OR.
func dropChild(state constraint.CombinationState, node queryast.Node) bool {
	if node == nil {
		return true
	}
	if state == constraint.And {
		return queryast.IsTrue(node)
	}
	return queryast.IsFalse(node)
}

// scopeChild decides whether a child's node must be anchored to the parent's
// dimension with a subselection.
func scopeChild(parent *constraint.CombinationConstraint, total int, child constraint.Constraint, node queryast.Node) queryast.Node {
	sub, isSub := node.(*queryast.Subselection)
	if total == 1 && !isSub && parent.IsRoot && parent.Dimension == constraint.DimensionPatient {
		return node
	}
	if isSub && sub.Dimension == parent.Dimension {
		return node
	}
	if parent.Dimension == constraint.DimensionObservation {
		return node
	}
	if group, ok := child.(*constraint.CombinationConstraint); ok && group.Dimension == constraint.DimensionObservation {
		return node
	}
	return WrapWithSubselection(parent.Dimension, node)
}

func mustToken(op constraint.Operator) string {
	token, err := vocab.OperatorToken(op)
	if err != nil {
		panic(err)
	}
	return token
}
