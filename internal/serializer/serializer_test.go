package serializer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cohortq/internal/constraint"
	"github.com/roach88/cohortq/internal/queryast"
)

func newRoot(children ...constraint.Constraint) *constraint.CombinationConstraint {
	root := constraint.NewCombinationConstraint()
	root.IsRoot = true
	for _, c := range children {
		root.AddChild(c)
	}
	return root
}

func newGroup(dim constraint.Dimension, children ...constraint.Constraint) *constraint.CombinationConstraint {
	g := constraint.NewCombinationConstraint()
	g.Dimension = dim
	for _, c := range children {
		g.AddChild(c)
	}
	return g
}

func numericConcept(code string, op constraint.Operator, value float64) *constraint.ConceptConstraint {
	c := constraint.NewConceptConstraint(&constraint.Concept{Code: code, Name: code, Type: constraint.TypeNumeric})
	c.AddValueConstraint(constraint.NewValueConstraint(constraint.TypeNumeric, op, value))
	return c
}

func bareConcept(code string) *constraint.ConceptConstraint {
	return constraint.NewConceptConstraint(&constraint.Concept{Code: code, Name: code, Type: constraint.TypeNumeric})
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func boolPtr(b bool) *bool { return &b }

func encode(t *testing.T, n queryast.Node) string {
	t.Helper()
	require.NotNil(t, n)
	data, err := queryast.Marshal(n)
	require.NoError(t, err)
	return string(data)
}

func serialize(t *testing.T, c constraint.Constraint, mode Mode) queryast.Node {
	t.Helper()
	n, err := Serialize(c, mode)
	require.NoError(t, err)
	return n
}

func TestSerialize_True(t *testing.T) {
	for _, mode := range []Mode{ModeRestricted, ModeFull} {
		n := serialize(t, constraint.NewTrueConstraint(), mode)
		assert.Equal(t, `{"type":"true"}`, encode(t, n))
	}
}

func TestSerialize_SoleConceptAtRoot(t *testing.T) {
	root := newRoot(numericConcept("C1", constraint.OpGreaterThan, 5))

	n := serialize(t, root, ModeRestricted)

	assert.Equal(t,
		`{"args":[{"conceptCode":"C1","type":"concept"},{"operator":">","type":"value","value":5,"valueType":"NUMERIC"}],"type":"and"}`,
		encode(t, n))
}

func TestSerialize_ObservationGroupNotWrapped(t *testing.T) {
	inner := newGroup(constraint.DimensionObservation, numericConcept("C1", constraint.OpGreaterThan, 5))
	outer := newGroup(constraint.DimensionObservation, inner)
	root := newRoot(outer)

	n := serialize(t, root, ModeRestricted)

	assert.Equal(t,
		`{"args":[{"conceptCode":"C1","type":"concept"},{"operator":">","type":"value","value":5,"valueType":"NUMERIC"}],"type":"and"}`,
		encode(t, n))
}

func TestSerialize_GroupWithSiblingsWrapped(t *testing.T) {
	group := newGroup(constraint.DimensionPatient,
		numericConcept("C1", constraint.OpGreaterThan, 5),
		bareConcept("C2"),
	)
	root := newRoot(group)

	n := serialize(t, root, ModeRestricted)

	assert.Equal(t,
		`{"args":[`+
			`{"constraint":{"args":[{"conceptCode":"C1","type":"concept"},{"operator":">","type":"value","value":5,"valueType":"NUMERIC"}],"type":"and"},"dimension":"patient","type":"subselection"},`+
			`{"constraint":{"conceptCode":"C2","type":"concept"},"dimension":"patient","type":"subselection"}`+
			`],"type":"and"}`,
		encode(t, n))
}

func TestSerialize_EmptyCombinationIsTrue(t *testing.T) {
	assert.Equal(t, `{"type":"true"}`, encode(t, serialize(t, newRoot(), ModeRestricted)))

	// Children that contribute nothing are filtered.
	root := newRoot(constraint.NewStudyConstraint(), constraint.NewSubjectSetConstraint(), constraint.NewTrueConstraint())
	assert.Equal(t, `{"type":"true"}`, encode(t, serialize(t, root, ModeRestricted)))
}

func TestSerialize_SingletonChainCollapses(t *testing.T) {
	g3 := newGroup(constraint.DimensionPatient, bareConcept("A"))
	g2 := newGroup(constraint.DimensionPatient, g3)
	g1 := newGroup(constraint.DimensionPatient, g2)
	root := newRoot(g1)

	n := serialize(t, root, ModeRestricted)

	_, isCombination := n.(*queryast.Combination)
	assert.False(t, isCombination)
	assert.Equal(t,
		`{"constraint":{"conceptCode":"A","type":"concept"},"dimension":"patient","type":"subselection"}`,
		encode(t, n))
}

func TestSerialize_ObservationChainCollapsesToLeaf(t *testing.T) {
	g2 := newGroup(constraint.DimensionObservation, bareConcept("A"))
	g1 := newGroup(constraint.DimensionObservation, g2)
	n := serialize(t, newRoot(g1), ModeRestricted)
	assert.Equal(t, `{"conceptCode":"A","type":"concept"}`, encode(t, n))
}

func TestSerialize_SubselectionAtSameDimensionNotRewrapped(t *testing.T) {
	g1 := newGroup(constraint.DimensionPatient, bareConcept("C1"))
	root := newRoot(g1, bareConcept("C3"))

	n := serialize(t, root, ModeRestricted)

	assert.Equal(t,
		`{"args":[`+
			`{"constraint":{"conceptCode":"C1","type":"concept"},"dimension":"patient","type":"subselection"},`+
			`{"constraint":{"conceptCode":"C3","type":"concept"},"dimension":"patient","type":"subselection"}`+
			`],"type":"and"}`,
		encode(t, n))
}

func TestSerialize_SubselectionAtOtherDimensionRewrapped(t *testing.T) {
	g1 := newGroup(constraint.DimensionVisit, bareConcept("C1"))
	root := newRoot(g1, bareConcept("C3"))

	n := serialize(t, root, ModeRestricted)

	assert.Equal(t,
		`{"args":[`+
			`{"constraint":{"constraint":{"conceptCode":"C1","type":"concept"},"dimension":"visit","type":"subselection"},"dimension":"patient","type":"subselection"},`+
			`{"constraint":{"conceptCode":"C3","type":"concept"},"dimension":"patient","type":"subselection"}`+
			`],"type":"and"}`,
		encode(t, n))
}

func TestSerialize_AndDropsTrue(t *testing.T) {
	// The sole-child exemption counts all children, including filtered ones.
	root := newRoot(constraint.NewTrueConstraint(), bareConcept("A"))
	n := serialize(t, root, ModeRestricted)
	assert.Equal(t,
		`{"constraint":{"conceptCode":"A","type":"concept"},"dimension":"patient","type":"subselection"}`,
		encode(t, n))
}

func TestSerialize_OrDropsFalse(t *testing.T) {
	root := newRoot(
		constraint.Negate(constraint.NewTrueConstraint()),
		bareConcept("A"),
		bareConcept("B"),
	)
	root.State = constraint.Or

	n := serialize(t, root, ModeRestricted)

	assert.Equal(t,
		`{"args":[`+
			`{"constraint":{"conceptCode":"A","type":"concept"},"dimension":"patient","type":"subselection"},`+
			`{"constraint":{"conceptCode":"B","type":"concept"},"dimension":"patient","type":"subselection"}`+
			`],"type":"or"}`,
		encode(t, n))
}

func TestSerialize_OrKeepsTrue(t *testing.T) {
	root := newRoot(constraint.NewTrueConstraint(), bareConcept("A"))
	root.State = constraint.Or
	n := serialize(t, root, ModeRestricted)
	assert.Equal(t,
		`{"args":[{"type":"true"},{"constraint":{"conceptCode":"A","type":"concept"},"dimension":"patient","type":"subselection"}],"type":"or"}`,
		encode(t, n))
}

func TestSerialize_OrOfOnlyFalseSelectsNobody(t *testing.T) {
	falseNode := `{"arg":{"type":"true"},"type":"negation"}`

	lone := newRoot(constraint.Negate(constraint.NewTrueConstraint()))
	lone.State = constraint.Or
	assert.Equal(t, falseNode, encode(t, serialize(t, lone, ModeRestricted)))

	never := newGroup(constraint.DimensionObservation,
		constraint.Negate(constraint.NewTrueConstraint()),
		constraint.Negate(constraint.NewTrueConstraint()),
	)
	never.State = constraint.Or
	root := newRoot(never, bareConcept("C1"))
	assert.Equal(t,
		`{"args":[`+falseNode+`,`+
			`{"constraint":{"conceptCode":"C1","type":"concept"},"dimension":"patient","type":"subselection"}`+
			`],"type":"and"}`,
		encode(t, serialize(t, root, ModeRestricted)))

	// Omitted children next to a false one do not turn it into true.
	mixed := newRoot(constraint.NewStudyConstraint(), constraint.Negate(constraint.NewTrueConstraint()))
	mixed.State = constraint.Or
	assert.Equal(t, falseNode, encode(t, serialize(t, mixed, ModeRestricted)))

	// Only omitted children still mean no restriction.
	omitted := newRoot(constraint.NewStudyConstraint(), constraint.NewSubjectSetConstraint())
	omitted.State = constraint.Or
	assert.Equal(t, `{"type":"true"}`, encode(t, serialize(t, omitted, ModeRestricted)))
}

func TestSerialize_NegationOfOmittedChildIsOmitted(t *testing.T) {
	n, err := Serialize(constraint.Negate(constraint.NewStudyConstraint()), ModeRestricted)
	require.NoError(t, err)
	assert.Nil(t, n)

	root := newRoot(constraint.Negate(constraint.NewStudyConstraint()), bareConcept("A"))
	assert.Equal(t,
		`{"constraint":{"conceptCode":"A","type":"concept"},"dimension":"patient","type":"subselection"}`,
		encode(t, serialize(t, root, ModeRestricted)))

	alone := newRoot(constraint.Negate(constraint.NewStudyConstraint()))
	assert.Equal(t, `{"type":"true"}`, encode(t, serialize(t, alone, ModeRestricted)))
}

func TestSerialize_NegatedChildWrappedInside(t *testing.T) {
	root := newRoot(constraint.Negate(bareConcept("A")), bareConcept("B"))
	n := serialize(t, root, ModeRestricted)
	assert.Equal(t,
		`{"args":[`+
			`{"arg":{"constraint":{"conceptCode":"A","type":"concept"},"dimension":"patient","type":"subselection"},"type":"negation"},`+
			`{"constraint":{"conceptCode":"B","type":"concept"},"dimension":"patient","type":"subselection"}`+
			`],"type":"and"}`,
		encode(t, n))
}

func TestSerialize_Time(t *testing.T) {
	between := constraint.NewTimeConstraint(constraint.DateBetween, date(2020, 1, 1), date(2020, 12, 31))
	between.ObservationDate = true
	notBetween := constraint.NewTimeConstraint(constraint.DateNotBetween, date(2020, 1, 1), date(2020, 12, 31))
	notBetween.ObservationDate = true

	b := serialize(t, between, ModeRestricted)
	nb := serialize(t, notBetween, ModeRestricted)

	assert.Equal(t,
		`{"field":{"dimension":"start time","fieldName":"startDate","type":"DATE"},"operator":"<-->","type":"time","values":[1577836800000,1609372800000]}`,
		encode(t, b))
	neg, ok := nb.(*queryast.Negation)
	require.True(t, ok)
	assert.Equal(t, encode(t, b), encode(t, neg.Arg))

	before := constraint.NewTimeConstraint(constraint.DateBefore, date(2020, 1, 1), date(2021, 1, 1))
	assert.Equal(t,
		`{"field":{"dimension":"value","fieldName":"numberValue","type":"DATE"},"operator":"<-","type":"time","values":[1577836800000]}`,
		encode(t, serialize(t, before, ModeRestricted)))

	after := constraint.NewTimeConstraint(constraint.DateAfter, date(2020, 1, 1), time.Time{})
	tm, ok := serialize(t, after, ModeRestricted).(*queryast.Time)
	require.True(t, ok)
	assert.Equal(t, "->", tm.Operator)
	assert.Len(t, tm.Values, 1)
}

func TestSerialize_Study(t *testing.T) {
	assert.Nil(t, serialize(t, constraint.NewStudyConstraint(), ModeRestricted))

	one := serialize(t, constraint.NewStudyConstraint(constraint.Study{ID: "EHR"}), ModeRestricted)
	assert.Equal(t, `{"studyId":"EHR","type":"study_name"}`, encode(t, one))

	many := serialize(t, constraint.NewStudyConstraint(
		constraint.Study{ID: "EHR"}, constraint.Study{ID: "ORACLE"}, constraint.Study{ID: "CATEGORICAL"},
	), ModeRestricted)
	assert.Equal(t,
		`{"args":[{"studyId":"EHR","type":"study_name"},{"studyId":"ORACLE","type":"study_name"},{"studyId":"CATEGORICAL","type":"study_name"}],"type":"or"}`,
		encode(t, many))
}

func TestSerialize_SubjectSetPriority(t *testing.T) {
	s := constraint.NewSubjectSetConstraint()
	assert.Nil(t, serialize(t, s, ModeRestricted))

	s.ID = 12
	assert.Equal(t, `{"patientSetId":12,"type":"patient_set"}`, encode(t, serialize(t, s, ModeRestricted)))

	s.PatientIDs = []string{"P1"}
	assert.Equal(t, `{"patientIds":["P1"],"type":"patient_set"}`, encode(t, serialize(t, s, ModeRestricted)))

	s.SubjectIDs = []string{"S1", "S2"}
	assert.Equal(t, `{"subjectIds":["S1","S2"],"type":"patient_set"}`, encode(t, serialize(t, s, ModeRestricted)))
}

func TestSerialize_Pedigree(t *testing.T) {
	p := constraint.NewPedigreeConstraint("PAR")
	assert.Equal(t,
		`{"relatedSubjectsConstraint":{"type":"true"},"relationTypeLabel":"PAR","type":"relation"}`,
		encode(t, serialize(t, p, ModeRestricted)))

	p.Biological = boolPtr(false)
	p.ShareHousehold = boolPtr(true)
	p.RightHandSide = constraint.NewSubjectSetConstraint()
	assert.Equal(t,
		`{"biological":false,"relatedSubjectsConstraint":{"type":"true"},"relationTypeLabel":"PAR","shareHousehold":true,"type":"relation"}`,
		encode(t, serialize(t, p, ModeRestricted)))

	p.RightHandSide = newGroup(constraint.DimensionPatient, bareConcept("A"))
	rel, ok := serialize(t, p, ModeRestricted).(*queryast.Relation)
	require.True(t, ok)
	assert.Equal(t,
		`{"constraint":{"conceptCode":"A","type":"concept"},"dimension":"patient","type":"subselection"}`,
		encode(t, rel.RelatedSubjectsConstraint))
}

func TestSerialize_Negation(t *testing.T) {
	n := serialize(t, constraint.Negate(bareConcept("A")), ModeRestricted)
	assert.Equal(t, `{"arg":{"conceptCode":"A","type":"concept"},"type":"negation"}`, encode(t, n))

	// Negating nothing is still nothing.
	assert.Nil(t, serialize(t, constraint.Negate(constraint.NewStudyConstraint()), ModeRestricted))
}

func TestSerialize_ConceptCategorical(t *testing.T) {
	c := constraint.NewConceptConstraint(&constraint.Concept{Code: "SEX", Name: "Sex", Type: constraint.TypeCategorical})
	c.AddValueConstraint(constraint.NewValueConstraint(constraint.TypeString, constraint.OpEqual, "Female"))

	assert.Equal(t,
		`{"args":[{"conceptCode":"SEX","type":"concept"},{"operator":"=","type":"value","value":"Female","valueType":"STRING"}],"type":"and"}`,
		encode(t, serialize(t, c, ModeRestricted)))

	c.AddValueConstraint(constraint.NewValueConstraint(constraint.TypeString, constraint.OpEqual, "Male"))
	assert.Equal(t,
		`{"args":[{"conceptCode":"SEX","type":"concept"},{"args":[`+
			`{"operator":"=","type":"value","value":"Female","valueType":"STRING"},`+
			`{"operator":"=","type":"value","value":"Male","valueType":"STRING"}`+
			`],"type":"or"}],"type":"and"}`,
		encode(t, serialize(t, c, ModeRestricted)))
}

func TestSerialize_ConceptNumericValuesAppended(t *testing.T) {
	c := numericConcept("AGE", constraint.OpGreaterOrEqual, 18)
	c.AddValueConstraint(constraint.NewValueConstraint(constraint.TypeNumeric, constraint.OpLessThan, 65))

	n, ok := serialize(t, c, ModeRestricted).(*queryast.Combination)
	require.True(t, ok)
	require.Len(t, n.Args, 3)
	assert.Equal(t, ">=", n.Args[1].(*queryast.Value).Operator)
	assert.Equal(t, "<", n.Args[2].(*queryast.Value).Operator)
	assert.Equal(t, 65.0, n.Args[2].(*queryast.Value).Value)
}

func TestSerialize_ConceptSubConstraintOrder(t *testing.T) {
	c := bareConcept("A")
	c.ApplyObsDate = true
	c.ObsDate.Mode = constraint.DateBefore
	c.ObsDate.Date1 = date(2020, 1, 1)
	c.ApplyValDate = true
	c.ValDate.Mode = constraint.DateAfter
	c.ValDate.Date1 = date(2019, 1, 1)
	c.ApplyTrialVisit = true
	c.TrialVisits.TrialVisits = []constraint.TrialVisit{{ID: "3"}, {ID: "4"}}
	c.ApplyStudy = true
	c.Studies.AddStudy(constraint.Study{ID: "EHR"})

	n, ok := serialize(t, c, ModeRestricted).(*queryast.Combination)
	require.True(t, ok)
	require.Len(t, n.Args, 5)

	assert.IsType(t, &queryast.Concept{}, n.Args[0])
	valDate := n.Args[1].(*queryast.Time)
	assert.Equal(t, constraint.DimensionValue, valDate.Field.Dimension)
	obsDate := n.Args[2].(*queryast.Time)
	assert.Equal(t, constraint.DimensionStartTime, obsDate.Field.Dimension)
	assert.Equal(t,
		`{"field":{"dimension":"trial visit","fieldName":"id","type":"NUMERIC"},"operator":"in","type":"field","value":[3,4]}`,
		encode(t, n.Args[3]))
	assert.Equal(t, `{"studyId":"EHR","type":"study_name"}`, encode(t, n.Args[4]))
}

func TestSerialize_ConceptSubConstraintsNeedApplyAndContent(t *testing.T) {
	c := bareConcept("A")
	c.ApplyTrialVisit = true // but no visits
	c.ApplyStudy = true      // but no studies
	c.Studies.AddStudy(constraint.Study{ID: "unused"})
	c.Studies.Studies = nil
	c.ObsDate.Date1 = date(2020, 1, 1) // but not applied

	assert.Equal(t, `{"conceptCode":"A","type":"concept"}`, encode(t, serialize(t, c, ModeRestricted)))
}

func TestSerialize_ConceptFullMode(t *testing.T) {
	concept := &constraint.Concept{Code: "AGE", Name: "Age", FullName: `\Demographics\Age\`, Type: constraint.TypeNumeric}

	bare := constraint.NewConceptConstraint(concept)
	assert.Equal(t,
		`{"conceptCode":"AGE","fullName":"\\Demographics\\Age\\","name":"Age","type":"concept","valueType":"NUMERIC"}`,
		encode(t, serialize(t, bare, ModeFull)))
	assert.Equal(t, `{"conceptCode":"AGE","type":"concept"}`, encode(t, serialize(t, bare, ModeRestricted)))

	withValue := constraint.NewConceptConstraint(concept)
	withValue.AddValueConstraint(constraint.NewValueConstraint(constraint.TypeNumeric, constraint.OpGreaterThan, 40))
	assert.Equal(t,
		`{"args":[{"conceptCode":"AGE","type":"concept"},{"operator":">","type":"value","value":40,"valueType":"NUMERIC"}],`+
			`"fullName":"\\Demographics\\Age\\","name":"Age","type":"and","valueType":"NUMERIC"}`,
		encode(t, serialize(t, withValue, ModeFull)))
}

func TestSerialize_FullModeConceptGroupSurvivesRewrite(t *testing.T) {
	concept := &constraint.Concept{Code: "AGE", Name: "Age", FullName: `\Age\`, Type: constraint.TypeNumeric}
	c := constraint.NewConceptConstraint(concept)
	c.AddValueConstraint(constraint.NewValueConstraint(constraint.TypeNumeric, constraint.OpGreaterThan, 40))
	group := newGroup(constraint.DimensionObservation, c, bareConcept("B"))

	n, ok := serialize(t, group, ModeFull).(*queryast.Combination)
	require.True(t, ok)
	require.Len(t, n.Args, 2)
	kept, ok := n.Args[0].(*queryast.Combination)
	require.True(t, ok)
	require.NotNil(t, kept.Meta)
	assert.Equal(t, "Age", kept.Meta.Name)
}

func TestSerialize_Errors(t *testing.T) {
	t.Run("missing concept", func(t *testing.T) {
		root := newRoot(constraint.NewConceptConstraint(nil))
		_, err := Serialize(root, ModeRestricted)
		require.Error(t, err)
		assert.True(t, IsMissingConcept(err))
	})

	t.Run("unsupported concept type", func(t *testing.T) {
		c := constraint.NewConceptConstraint(&constraint.Concept{Code: "NOTE", Type: constraint.TypeText})
		c.AddValueConstraint(constraint.NewValueConstraint(constraint.TypeText, constraint.OpContains, "x"))
		_, err := Serialize(c, ModeRestricted)
		assert.True(t, IsUnsupportedConceptType(err))

		// Without value constraints the type is never inspected.
		c.ValueConstraints = nil
		_, err = Serialize(c, ModeRestricted)
		assert.NoError(t, err)
	})

	t.Run("unknown operator", func(t *testing.T) {
		c := bareConcept("A")
		c.AddValueConstraint(constraint.NewValueConstraint(constraint.TypeNumeric, constraint.Operator(99), 1))
		root := newRoot(c)
		_, err := Serialize(root, ModeRestricted)
		require.Error(t, err)
		assert.True(t, IsUnknownOperator(err))

		var se *Error
		require.ErrorAs(t, err, &se)
		assert.Equal(t, "/children/0/valueConstraints/0", se.Path)
	})

	t.Run("non-numeric trial visit", func(t *testing.T) {
		_, err := Serialize(constraint.NewTrialVisitConstraint(constraint.TrialVisit{ID: "week-1"}), ModeRestricted)
		assert.True(t, IsInvalidValue(err))
	})

	t.Run("unsupported value", func(t *testing.T) {
		v := constraint.NewValueConstraint(constraint.TypeNumeric, constraint.OpEqual, []int{1})
		_, err := Serialize(v, ModeRestricted)
		assert.True(t, IsInvalidValue(err))
	})

	t.Run("nil", func(t *testing.T) {
		_, err := Serialize(nil, ModeRestricted)
		assert.True(t, IsInvalidValue(err))
	})
}

func TestSerialize_DoesNotMutateTree(t *testing.T) {
	root := newRoot(numericConcept("C1", constraint.OpGreaterThan, 5), bareConcept("C2"))
	before := root.Clone()
	_ = serialize(t, root, ModeFull)
	assert.Equal(t, before, root)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("FULL")
	require.NoError(t, err)
	assert.Equal(t, ModeFull, m)
	m, err = ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeRestricted, m)
	_, err = ParseMode("verbose")
	assert.Error(t, err)
	assert.Equal(t, "full", ModeFull.String())
}
