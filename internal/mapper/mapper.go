// Package mapper restores constraint trees from full-mode query documents.
//
// It inverts the serializer closely enough that serializing the restored
// tree in full mode reproduces the original document. Concept-derived nodes
// are recognized by their concept metadata; a restricted-mode document
// still maps, but concept groups without metadata come back as plain
// groups.
package mapper

import (
	"fmt"
	"time"

	"github.com/roach88/cohortq/internal/constraint"
	"github.com/roach88/cohortq/internal/queryast"
	"github.com/roach88/cohortq/internal/vocab"
)

// Error reports a document that has no constraint equivalent.
type Error struct {
	Path    string
	Message string
}

func (e *Error) Error() string {
	if e.Path == "" {
		return "map query: " + e.Message
	}
	return fmt.Sprintf("map query at %s: %s", e.Path, e.Message)
}

// ToConstraint converts a query document into a constraint tree.
func ToConstraint(n queryast.Node) (constraint.Constraint, error) {
	return toConstraint("", n)
}

func toConstraint(path string, n queryast.Node) (constraint.Constraint, error) {
	switch v := n.(type) {
	case *queryast.True:
		return constraint.NewTrueConstraint(), nil
	case *queryast.Value:
		return nonNil(toValue(path, v))
	case *queryast.Field:
		return nonNil(toTrialVisits(path, v))
	case *queryast.Time:
		return nonNil(toTime(path, v, false))
	case *queryast.Negation:
		if tm, ok := v.Arg.(*queryast.Time); ok && isBetween(tm) {
			return nonNil(toTime(path+"/arg", tm, true))
		}
		child, err := toConstraint(path+"/arg", v.Arg)
		if err != nil {
			return nil, err
		}
		return constraint.Negate(child), nil
	case *queryast.Subselection:
		child, err := toConstraint(path+"/constraint", v.Constraint)
		if err != nil {
			return nil, err
		}
		group := constraint.NewCombinationConstraint()
		group.Dimension = v.Dimension
		group.AddChild(child)
		return group, nil
	case *queryast.Combination:
		if v.Meta != nil {
			return toConcept(path, v.Args, v.Meta)
		}
		if studies, ok := studyNames(v); ok {
			return constraint.NewStudyConstraint(studies...), nil
		}
		return toCombination(path, v)
	case *queryast.Concept:
		return toConcept(path, []queryast.Node{v}, v.Meta)
	case *queryast.StudyName:
		return constraint.NewStudyConstraint(constraint.Study{ID: v.StudyID}), nil
	case *queryast.PatientSet:
		s := constraint.NewSubjectSetConstraint()
		s.SubjectIDs = append([]string(nil), v.SubjectIDs...)
		s.PatientIDs = append([]string(nil), v.PatientIDs...)
		s.ID = v.PatientSetID
		return s, nil
	case *queryast.Relation:
		rhs, err := toConstraint(path+"/relatedSubjectsConstraint", v.RelatedSubjectsConstraint)
		if err != nil {
			return nil, err
		}
		p := constraint.NewPedigreeConstraint(v.RelationTypeLabel)
		p.RightHandSide = rhs
		if v.Biological != nil {
			b := *v.Biological
			p.Biological = &b
		}
		if v.ShareHousehold != nil {
			b := *v.ShareHousehold
			p.ShareHousehold = &b
		}
		return p, nil
	case nil:
		return nil, &Error{Path: path, Message: "nil node"}
	}
	return nil, &Error{Path: path, Message: fmt.Sprintf("unsupported node %T", n)}
}

// nonNil keeps a failed typed result from becoming a non-nil interface.
func nonNil[T constraint.Constraint](c T, err error) (constraint.Constraint, error) {
	if err != nil {
		return nil, err
	}
	return c, nil
}

// toCombination maps an and/or node. When every argument is scoped to the
// same dimension the scope is lifted onto the group; otherwise the arguments
// are evaluated per observation and the group gets the observation
// dimension.
func toCombination(path string, c *queryast.Combination) (constraint.Constraint, error) {
	group := constraint.NewCombinationConstraint()
	if c.Op == queryast.OpOr {
		group.State = constraint.Or
	}

	args := c.Args
	if dim, inner, ok := commonScope(c.Args); ok {
		group.Dimension = dim
		args = inner
	} else if len(c.Args) > 0 {
		group.Dimension = constraint.DimensionObservation
	}
	for i, a := range args {
		child, err := toConstraint(fmt.Sprintf("%s/args/%d", path, i), a)
		if err != nil {
			return nil, err
		}
		group.AddChild(child)
	}
	return group, nil
}

// commonScope reports whether every arg is a (possibly negated) subselection
// at one dimension, and returns the args with the subselections removed.
func commonScope(args []queryast.Node) (constraint.Dimension, []queryast.Node, bool) {
	if len(args) == 0 {
		return constraint.DimensionPatient, nil, false
	}
	var dim constraint.Dimension
	out := make([]queryast.Node, len(args))
	for i, a := range args {
		d, inner, ok := unscope(a)
		if !ok || (i > 0 && d != dim) {
			return constraint.DimensionPatient, nil, false
		}
		dim = d
		out[i] = inner
	}
	return dim, out, true
}

func unscope(n queryast.Node) (constraint.Dimension, queryast.Node, bool) {
	switch v := n.(type) {
	case *queryast.Subselection:
		return v.Dimension, v.Constraint, true
	case *queryast.Negation:
		d, inner, ok := unscope(v.Arg)
		if !ok {
			return d, nil, false
		}
		return d, queryast.NewNegation(inner), true
	}
	return constraint.DimensionPatient, nil, false
}

func studyNames(c *queryast.Combination) ([]constraint.Study, bool) {
	if c.Op != queryast.OpOr || len(c.Args) < 2 {
		return nil, false
	}
	studies := make([]constraint.Study, 0, len(c.Args))
	for _, a := range c.Args {
		s, ok := a.(*queryast.StudyName)
		if !ok {
			return nil, false
		}
		studies = append(studies, constraint.Study{ID: s.StudyID})
	}
	return studies, true
}

func values(c *queryast.Combination) ([]*queryast.Value, bool) {
	if c.Op != queryast.OpOr {
		return nil, false
	}
	out := make([]*queryast.Value, 0, len(c.Args))
	for _, a := range c.Args {
		v, ok := a.(*queryast.Value)
		if !ok {
			return nil, false
		}
		out = append(out, v)
	}
	return out, true
}

func toConcept(path string, args []queryast.Node, meta *queryast.ConceptMeta) (constraint.Constraint, error) {
	if len(args) == 0 {
		return nil, &Error{Path: path, Message: "concept group without arguments"}
	}
	head, ok := args[0].(*queryast.Concept)
	if !ok {
		return nil, &Error{Path: path + "/args/0", Message: fmt.Sprintf("expected concept, got %s", args[0].Type())}
	}
	concept := &constraint.Concept{Code: head.ConceptCode}
	if meta != nil {
		concept.Name = meta.Name
		concept.FullName = meta.FullName
		if meta.ValueType != "" {
			vt, err := vocab.ParseValueTypeName(meta.ValueType)
			if err != nil {
				return nil, &Error{Path: path + "/valueType", Message: err.Error()}
			}
			concept.Type = vt
		}
	}
	c := constraint.NewConceptConstraint(concept)

	for i, a := range args[1:] {
		argPath := fmt.Sprintf("%s/args/%d", path, i+1)
		if err := applyConceptArg(argPath, c, a); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func applyConceptArg(path string, c *constraint.ConceptConstraint, n queryast.Node) error {
	switch v := n.(type) {
	case *queryast.Value:
		vc, err := toValue(path, v)
		if err != nil {
			return err
		}
		c.AddValueConstraint(vc)
		return nil
	case *queryast.Time:
		return applyDate(path, c, v, false)
	case *queryast.Negation:
		if tm, ok := v.Arg.(*queryast.Time); ok {
			return applyDate(path+"/arg", c, tm, true)
		}
	case *queryast.Field:
		tv, err := toTrialVisits(path, v)
		if err != nil {
			return err
		}
		c.TrialVisits = tv
		c.ApplyTrialVisit = true
		return nil
	case *queryast.StudyName:
		c.Studies = constraint.NewStudyConstraint(constraint.Study{ID: v.StudyID})
		c.ApplyStudy = true
		return nil
	case *queryast.Combination:
		if studies, ok := studyNames(v); ok {
			c.Studies = constraint.NewStudyConstraint(studies...)
			c.ApplyStudy = true
			return nil
		}
		if vals, ok := values(v); ok {
			for i, val := range vals {
				vc, err := toValue(fmt.Sprintf("%s/args/%d", path, i), val)
				if err != nil {
					return err
				}
				c.AddValueConstraint(vc)
			}
			return nil
		}
	}
	return &Error{Path: path, Message: fmt.Sprintf("unexpected %s node in concept group", n.Type())}
}

func applyDate(path string, c *constraint.ConceptConstraint, tm *queryast.Time, negated bool) error {
	tc, err := toTime(path, tm, negated)
	if err != nil {
		return err
	}
	if tc.ObservationDate {
		c.ObsDate = tc
		c.ApplyObsDate = true
	} else {
		c.ValDate = tc
		c.ApplyValDate = true
	}
	return nil
}

func toValue(path string, v *queryast.Value) (*constraint.ValueConstraint, error) {
	op, err := vocab.ParseOperatorToken(v.Operator)
	if err != nil {
		return nil, &Error{Path: path + "/operator", Message: err.Error()}
	}
	return constraint.NewValueConstraint(v.ValueType, op, v.Value), nil
}

func toTrialVisits(path string, f *queryast.Field) (*constraint.TrialVisitConstraint, error) {
	if f.Field.Dimension != constraint.DimensionTrialVisit {
		return nil, &Error{Path: path + "/field", Message: fmt.Sprintf("unsupported field dimension %q", f.Field.Dimension)}
	}
	ids, ok := f.Value.([]int64)
	if !ok {
		return nil, &Error{Path: path + "/value", Message: "expected a list of trial visit ids"}
	}
	tv := constraint.NewTrialVisitConstraint()
	for _, id := range ids {
		tv.TrialVisits = append(tv.TrialVisits, constraint.TrialVisit{ID: fmt.Sprint(id)})
	}
	return tv, nil
}

// isBetween reports whether a time node uses the between operator, the only
// one whose negation has a date mode of its own.
func isBetween(tm *queryast.Time) bool {
	mode, err := vocab.ParseDateOperatorToken(tm.Operator)
	return err == nil && mode == constraint.DateBetween
}

func toTime(path string, tm *queryast.Time, negated bool) (*constraint.TimeConstraint, error) {
	mode, err := vocab.ParseDateOperatorToken(tm.Operator)
	if err != nil {
		return nil, &Error{Path: path + "/operator", Message: err.Error()}
	}
	if negated {
		if mode != constraint.DateBetween {
			return nil, &Error{Path: path, Message: "only between can be negated"}
		}
		mode = constraint.DateNotBetween
	}
	want := 1
	if mode.TwoDates() {
		want = 2
	}
	if len(tm.Values) != want {
		return nil, &Error{Path: path + "/values", Message: fmt.Sprintf("expected %d dates, got %d", want, len(tm.Values))}
	}
	var date2 time.Time
	if want == 2 {
		date2 = time.UnixMilli(tm.Values[1]).UTC()
	}
	tc := constraint.NewTimeConstraint(mode, time.UnixMilli(tm.Values[0]).UTC(), date2)
	tc.ObservationDate = tm.Field.Dimension == constraint.DimensionStartTime
	return tc, nil
}
