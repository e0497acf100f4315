package cohortfile

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cohortq/internal/constraint"
	"github.com/roach88/cohortq/internal/queryast"
	"github.com/roach88/cohortq/internal/serializer"
)

func load(t *testing.T, doc string) *File {
	t.Helper()
	f, err := LoadYAML(strings.NewReader(doc))
	require.NoError(t, err)
	return f
}

func buildErr(t *testing.T, doc string) *Error {
	t.Helper()
	_, err := load(t, doc).Build()
	require.Error(t, err)
	var ce *Error
	require.True(t, errors.As(err, &ce), "want *Error, got %T", err)
	return ce
}

func TestLoadFile_YAMLAndCUEAgree(t *testing.T) {
	fromYAML, err := LoadFile(filepath.Join("testdata", "adults.yaml"))
	require.NoError(t, err)
	fromCUE, err := LoadFile(filepath.Join("testdata", "adults.cue"))
	require.NoError(t, err)

	assert.Equal(t, "adults-in-ehr", fromYAML.Name)
	assert.Equal(t, fromYAML.Name, fromCUE.Name)
	assert.Equal(t, fromYAML.Description, fromCUE.Description)

	var docs []string
	for _, f := range []*File{fromYAML, fromCUE} {
		root, err := f.Build()
		require.NoError(t, err)
		node, err := serializer.Serialize(root, serializer.ModeFull)
		require.NoError(t, err)
		data, err := queryast.Marshal(node)
		require.NoError(t, err)
		docs = append(docs, string(data))
	}
	assert.Equal(t, docs[0], docs[1])
}

func TestBuild_Adults(t *testing.T) {
	f, err := LoadFile(filepath.Join("testdata", "adults.yaml"))
	require.NoError(t, err)
	root, err := f.Build()
	require.NoError(t, err)

	assert.True(t, root.IsRoot)
	assert.Equal(t, constraint.And, root.State)
	children := root.Children()
	require.Len(t, children, 2)

	age, ok := children[0].(*constraint.ConceptConstraint)
	require.True(t, ok)
	assert.Equal(t, `\Demographics\Age\`, age.Concept.FullName)
	assert.Equal(t, constraint.TypeNumeric, age.Concept.Type)
	require.Len(t, age.ValueConstraints, 1)
	assert.Equal(t, constraint.OpGreaterOrEqual, age.ValueConstraints[0].Operator)
	assert.Equal(t, 18.0, age.ValueConstraints[0].Value)
	assert.Equal(t, constraint.TypeNumeric, age.ValueConstraints[0].ValueType)
	assert.True(t, age.ApplyObsDate)
	assert.True(t, age.ObsDate.ObservationDate)
	assert.Equal(t, time.Date(2019, 12, 31, 0, 0, 0, 0, time.UTC), age.ObsDate.Date2)
	assert.False(t, age.ApplyValDate)

	study, ok := children[1].(*constraint.StudyConstraint)
	require.True(t, ok)
	assert.Equal(t, []constraint.Study{{ID: "EHR"}}, study.Studies)
}

func TestBuild_SingleNodeBecomesRootChild(t *testing.T) {
	root, err := load(t, "cohort:\n  study: [A, B]\n").Build()
	require.NoError(t, err)
	assert.True(t, root.IsRoot)
	require.Equal(t, 1, root.Len())
	assert.Equal(t, constraint.KindStudy, root.Children()[0].Kind())
}

func TestBuild_Variants(t *testing.T) {
	doc := `
cohort:
  or:
    - all: true
    - not:
        subjectSet: {patientIds: [P1]}
    - and:
        - trialVisit: ["3"]
        - time: {op: before, dates: ["2020-06-01T12:00:00Z"], observation: true}
      dimension: visit
    - pedigree:
        label: PAR
        biological: false
        related:
          study: [EHR]
    - value: {op: like, value: "abc%"}
      negated: true
      text: pattern
`
	root, err := load(t, doc).Build()
	require.NoError(t, err)
	assert.Equal(t, constraint.Or, root.State)
	children := root.Children()
	require.Len(t, children, 5)

	assert.Equal(t, constraint.KindTrue, children[0].Kind())

	neg := children[1].(*constraint.NegationConstraint)
	assert.Equal(t, []string{"P1"}, neg.Child().(*constraint.SubjectSetConstraint).PatientIDs)

	visits := children[2].(*constraint.CombinationConstraint)
	assert.Equal(t, constraint.DimensionVisit, visits.Dimension)
	inner := visits.Children()
	require.Len(t, inner, 2)
	assert.Equal(t, "3", inner[0].(*constraint.TrialVisitConstraint).TrialVisits[0].ID)
	tc := inner[1].(*constraint.TimeConstraint)
	assert.Equal(t, constraint.DateBefore, tc.Mode)
	assert.True(t, tc.ObservationDate)
	assert.Equal(t, time.Date(2020, 6, 1, 12, 0, 0, 0, time.UTC), tc.Date1)

	ped := children[3].(*constraint.PedigreeConstraint)
	assert.Equal(t, "PAR", ped.Label)
	require.NotNil(t, ped.Biological)
	assert.False(t, *ped.Biological)
	assert.Nil(t, ped.ShareHousehold)
	assert.Equal(t, constraint.KindStudy, ped.RightHandSide.Kind())

	val := children[4].(*constraint.ValueConstraint)
	assert.Equal(t, constraint.OpLike, val.Operator)
	assert.Equal(t, constraint.TypeString, val.ValueType)
	assert.True(t, val.Negated())
	assert.Equal(t, "pattern", val.Text())
}

func TestBuild_CategoricalValuesDefaultToString(t *testing.T) {
	doc := `
cohort:
  concept:
    code: SEX
    type: categorical
    values:
      - {op: eq, value: Female}
      - {op: "=", value: Male}
    trialVisits: ["1"]
    studies: [EHR]
`
	root, err := load(t, doc).Build()
	require.NoError(t, err)
	cc := root.Children()[0].(*constraint.ConceptConstraint)
	assert.Equal(t, "SEX", cc.Concept.Name)
	require.Len(t, cc.ValueConstraints, 2)
	for _, v := range cc.ValueConstraints {
		assert.Equal(t, constraint.TypeString, v.ValueType)
		assert.Equal(t, constraint.OpEqual, v.Operator)
	}
	assert.True(t, cc.ApplyTrialVisit)
	assert.True(t, cc.ApplyStudy)
}

func TestBuild_EmptyGroup(t *testing.T) {
	root, err := load(t, "cohort:\n  and: []\n").Build()
	require.NoError(t, err)
	assert.Equal(t, 0, root.Len())
}

func TestBuild_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		path string
		msg  string
	}{
		{"no variant", "cohort:\n  text: x\n", "/cohort", "no constraint"},
		{"two variants", "cohort:\n  all: true\n  study: [A]\n", "/cohort", "all, study"},
		{"dimension on leaf", "cohort:\n  study: [A]\n  dimension: visit\n", "/cohort/dimension", "only valid"},
		{"bad dimension", "cohort:\n  and: []\n  dimension: ward\n", "/cohort/dimension", "ward"},
		{"bad operator", "cohort:\n  value: {op: approx, value: 1}\n", "/cohort/value/op", "approx"},
		{"missing value", "cohort:\n  value: {op: eq}\n", "/cohort/value/value", "required"},
		{"bad date op", "cohort:\n  time: {op: during, dates: [\"2020-01-01\"]}\n", "/cohort/time/op", "during"},
		{"date count", "cohort:\n  time: {op: between, dates: [\"2020-01-01\"]}\n", "/cohort/time/dates", "2 dates"},
		{"bad date", "cohort:\n  time: {op: after, dates: [\"01/02/2020\"]}\n", "/cohort/time/dates/0", "invalid date"},
		{"concept code", "cohort:\n  concept: {name: Age}\n", "/cohort/concept/code", "required"},
		{"concept type", "cohort:\n  concept: {code: A, type: BLOB}\n", "/cohort/concept/type", "BLOB"},
		{"nested path", "cohort:\n  or:\n    - all: true\n    - not: {}\n", "/cohort/or/1/not", "no constraint"},
		{"pedigree label", "cohort:\n  pedigree: {biological: true}\n", "/cohort/pedigree/label", "required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ce := buildErr(t, tt.doc)
			assert.Equal(t, tt.path, ce.Path)
			assert.Contains(t, ce.Error(), tt.msg)
		})
	}
}

func TestLoadYAML_Strict(t *testing.T) {
	_, err := LoadFile(filepath.Join("testdata", "unknown_key.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "colour")
	assert.Contains(t, err.Error(), "unknown_key.yaml")

	_, err = LoadYAML(strings.NewReader(""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty document")

	_, err = LoadYAML(strings.NewReader("name: x\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cohort is required")
}

func TestLoadCUE_Errors(t *testing.T) {
	_, err := LoadFile(filepath.Join("testdata", "incomplete.cue"))
	require.Error(t, err)
	var ce *Error
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, ce.File, "incomplete.cue")

	_, err = compileCUE("inline.cue", []byte(`name: "x"`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cohort is required")

	_, err = compileCUE("inline.cue", []byte(`cohort: {study: ["A"], colour: "blue"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "colour")

	_, err = compileCUE("inline.cue", []byte(`cohort: {`))
	require.Error(t, err)
}

func TestLoadFile_UnsupportedExtension(t *testing.T) {
	_, err := LoadFile("cohort.toml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), ".toml")

	_, err = LoadFile(filepath.Join("testdata", "missing.yaml"))
	require.Error(t, err)
}
