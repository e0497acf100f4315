package cohortfile

import (
	"fmt"
	"strings"
	"time"

	"github.com/roach88/cohortq/internal/constraint"
	"github.com/roach88/cohortq/internal/vocab"
)

// Build converts the cohort into a root selection. A cohort whose top node is
// a group becomes the root itself; any other node becomes the root's single
// child.
func (f *File) Build() (*constraint.CombinationConstraint, error) {
	if f.Cohort == nil {
		return nil, &Error{Path: "/cohort", Message: "cohort is required"}
	}
	c, err := f.Cohort.build("/cohort")
	if err != nil {
		return nil, err
	}
	root, ok := c.(*constraint.CombinationConstraint)
	if !ok {
		root = constraint.NewCombinationConstraint(c)
	}
	root.IsRoot = true
	return root, nil
}

// Build converts a single node and its descendants.
func (n *Node) Build() (constraint.Constraint, error) {
	return n.build("")
}

func (n *Node) variants() []string {
	var set []string
	if n.All {
		set = append(set, "all")
	}
	if n.And != nil {
		set = append(set, "and")
	}
	if n.Or != nil {
		set = append(set, "or")
	}
	if n.Not != nil {
		set = append(set, "not")
	}
	if n.Concept != nil {
		set = append(set, "concept")
	}
	if n.Value != nil {
		set = append(set, "value")
	}
	if n.Time != nil {
		set = append(set, "time")
	}
	if n.TrialVisit != nil {
		set = append(set, "trialVisit")
	}
	if n.Study != nil {
		set = append(set, "study")
	}
	if n.SubjectSet != nil {
		set = append(set, "subjectSet")
	}
	if n.Pedigree != nil {
		set = append(set, "pedigree")
	}
	return set
}

func (n *Node) build(path string) (constraint.Constraint, error) {
	if n == nil {
		return nil, &Error{Path: path, Message: "node is empty"}
	}
	set := n.variants()
	switch len(set) {
	case 0:
		return nil, &Error{Path: path, Message: "node has no constraint"}
	case 1:
	default:
		return nil, &Error{Path: path, Message: "node has more than one constraint: " + strings.Join(set, ", ")}
	}
	if n.Dimension != "" && n.And == nil && n.Or == nil {
		return nil, &Error{Path: path + "/dimension", Message: "dimension is only valid on and/or groups"}
	}

	c, err := n.buildVariant(path, set[0])
	if err != nil {
		return nil, err
	}
	if n.Negated {
		c.SetNegated(true)
	}
	if n.Text != "" {
		c.SetText(n.Text)
	}
	return c, nil
}

func (n *Node) buildVariant(path, variant string) (constraint.Constraint, error) {
	switch variant {
	case "all":
		return constraint.NewTrueConstraint(), nil
	case "and":
		return n.buildGroup(path+"/and", constraint.And, n.And)
	case "or":
		return n.buildGroup(path+"/or", constraint.Or, n.Or)
	case "not":
		child, err := n.Not.build(path + "/not")
		if err != nil {
			return nil, err
		}
		return constraint.Negate(child), nil
	case "concept":
		return buildConcept(path+"/concept", n.Concept)
	case "value":
		v, err := buildValue(path+"/value", n.Value, constraint.TypeNone)
		if err != nil {
			return nil, err
		}
		return v, nil
	case "time":
		t, err := buildDate(path+"/time", n.Time, n.Time.Observation)
		if err != nil {
			return nil, err
		}
		return t, nil
	case "trialVisit":
		return buildTrialVisits(n.TrialVisit), nil
	case "study":
		return buildStudies(n.Study), nil
	case "subjectSet":
		s := constraint.NewSubjectSetConstraint()
		s.SubjectIDs = append([]string(nil), n.SubjectSet.SubjectIDs...)
		s.PatientIDs = append([]string(nil), n.SubjectSet.PatientIDs...)
		s.ID = n.SubjectSet.ID
		return s, nil
	case "pedigree":
		return buildPedigree(path+"/pedigree", n.Pedigree)
	}
	return nil, &Error{Path: path, Message: "unknown constraint " + variant}
}

func (n *Node) buildGroup(path string, state constraint.CombinationState, children []*Node) (constraint.Constraint, error) {
	group := constraint.NewCombinationConstraint()
	group.State = state
	if n.Dimension != "" {
		dim, err := constraint.ParseDimension(n.Dimension)
		if err != nil {
			return nil, &Error{Path: strings.TrimSuffix(path, "/"+state.String()) + "/dimension", Message: err.Error(), Err: err}
		}
		group.Dimension = dim
	}
	for i, child := range children {
		c, err := child.build(fmt.Sprintf("%s/%d", path, i))
		if err != nil {
			return nil, err
		}
		group.AddChild(c)
	}
	return group, nil
}

func buildConcept(path string, def *Concept) (constraint.Constraint, error) {
	if def.Code == "" {
		return nil, &Error{Path: path + "/code", Message: "concept code is required"}
	}
	vt, err := constraint.ParseValueType(def.Type)
	if err != nil {
		return nil, &Error{Path: path + "/type", Message: err.Error(), Err: err}
	}
	name := def.Name
	if name == "" {
		name = def.Code
	}
	c := constraint.NewConceptConstraint(&constraint.Concept{
		Code:     def.Code,
		Name:     name,
		FullName: def.FullName,
		Type:     vt,
	})

	for i := range def.Values {
		v, err := buildValue(fmt.Sprintf("%s/values/%d", path, i), &def.Values[i], defaultValueType(vt))
		if err != nil {
			return nil, err
		}
		c.AddValueConstraint(v)
	}
	if def.ValueDate != nil {
		d, err := buildDate(path+"/valueDate", def.ValueDate, false)
		if err != nil {
			return nil, err
		}
		c.ValDate = d
		c.ApplyValDate = true
	}
	if def.ObservationDate != nil {
		d, err := buildDate(path+"/observationDate", def.ObservationDate, true)
		if err != nil {
			return nil, err
		}
		c.ObsDate = d
		c.ApplyObsDate = true
	}
	if len(def.TrialVisits) > 0 {
		c.TrialVisits = buildTrialVisits(def.TrialVisits)
		c.ApplyTrialVisit = true
	}
	if len(def.Studies) > 0 {
		c.Studies = buildStudies(def.Studies)
		c.ApplyStudy = true
	}
	return c, nil
}

// defaultValueType is the value type assumed for a concept's values when
// they do not name one.
func defaultValueType(concept constraint.ValueType) constraint.ValueType {
	switch concept {
	case constraint.TypeNumeric:
		return constraint.TypeNumeric
	case constraint.TypeCategorical:
		return constraint.TypeString
	}
	return constraint.TypeNone
}

func buildValue(path string, def *Value, fallback constraint.ValueType) (*constraint.ValueConstraint, error) {
	op, err := parseOperator(def.Op)
	if err != nil {
		return nil, &Error{Path: path + "/op", Message: err.Error(), Err: err}
	}
	value, err := normalizeValue(def.Value)
	if err != nil {
		return nil, &Error{Path: path + "/value", Message: err.Error()}
	}

	vt := fallback
	if def.Type != "" {
		if vt, err = constraint.ParseValueType(def.Type); err != nil {
			return nil, &Error{Path: path + "/type", Message: err.Error(), Err: err}
		}
	}
	if vt == constraint.TypeNone {
		vt = constraint.TypeString
		if _, ok := value.(float64); ok {
			vt = constraint.TypeNumeric
		}
	}
	return constraint.NewValueConstraint(vt, op, value), nil
}

// parseOperator accepts both domain names and wire tokens.
func parseOperator(s string) (constraint.Operator, error) {
	if op, err := constraint.ParseOperator(s); err == nil {
		return op, nil
	}
	return vocab.ParseOperatorToken(s)
}

func normalizeValue(v any) (any, error) {
	switch x := v.(type) {
	case string, bool, float64:
		return x, nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case uint64:
		return float64(x), nil
	case nil:
		return nil, fmt.Errorf("value is required")
	}
	return nil, fmt.Errorf("unsupported value %v (%T)", v, v)
}

var dateLayouts = []string{"2006-01-02", time.RFC3339}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}

func buildDate(path string, def *Date, observation bool) (*constraint.TimeConstraint, error) {
	mode, err := constraint.ParseDateOperator(def.Op)
	if err != nil {
		return nil, &Error{Path: path + "/op", Message: err.Error(), Err: err}
	}
	want := 1
	if mode.TwoDates() {
		want = 2
	}
	if len(def.Dates) != want {
		return nil, &Error{Path: path + "/dates", Message: fmt.Sprintf("%s takes %d dates, got %d", mode, want, len(def.Dates))}
	}
	dates := make([]time.Time, 2)
	for i, s := range def.Dates {
		if dates[i], err = parseDate(s); err != nil {
			return nil, &Error{Path: fmt.Sprintf("%s/dates/%d", path, i), Message: err.Error()}
		}
	}
	tc := constraint.NewTimeConstraint(mode, dates[0], dates[1])
	tc.ObservationDate = observation
	return tc, nil
}

func buildTrialVisits(ids []string) *constraint.TrialVisitConstraint {
	tv := constraint.NewTrialVisitConstraint()
	for _, id := range ids {
		tv.TrialVisits = append(tv.TrialVisits, constraint.TrialVisit{ID: id})
	}
	return tv
}

func buildStudies(ids []string) *constraint.StudyConstraint {
	s := constraint.NewStudyConstraint()
	for _, id := range ids {
		s.AddStudy(constraint.Study{ID: id})
	}
	return s
}

func buildPedigree(path string, def *Pedigree) (constraint.Constraint, error) {
	if def.Label == "" {
		return nil, &Error{Path: path + "/label", Message: "relation label is required"}
	}
	p := constraint.NewPedigreeConstraint(def.Label)
	if def.Biological != nil {
		b := *def.Biological
		p.Biological = &b
	}
	if def.ShareHousehold != nil {
		b := *def.ShareHousehold
		p.ShareHousehold = &b
	}
	if def.Related != nil {
		rhs, err := def.Related.build(path + "/related")
		if err != nil {
			return nil, err
		}
		p.RightHandSide = rhs
	}
	return p, nil
}
