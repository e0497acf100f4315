package rewriter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cohortq/internal/constraint"
	"github.com/roach88/cohortq/internal/queryast"
)

func concept(code string) *queryast.Concept { return &queryast.Concept{ConceptCode: code} }

func encode(t *testing.T, n queryast.Node) string {
	t.Helper()
	data, err := queryast.Marshal(n)
	require.NoError(t, err)
	return string(data)
}

func TestRewrite_Rules(t *testing.T) {
	a, b, c := concept("A"), concept("B"), concept("C")
	tests := []struct {
		name string
		in   queryast.Node
		want queryast.Node
	}{
		{
			name: "leaf unchanged",
			in:   a,
			want: a,
		},
		{
			name: "double negation",
			in:   queryast.NewNegation(queryast.NewNegation(a)),
			want: a,
		},
		{
			name: "triple negation",
			in:   queryast.NewNegation(queryast.NewNegation(queryast.NewNegation(a))),
			want: queryast.NewNegation(a),
		},
		{
			name: "singleton and",
			in:   queryast.NewAnd(a),
			want: a,
		},
		{
			name: "empty and",
			in:   queryast.NewAnd(),
			want: queryast.NewTrue(),
		},
		{
			name: "empty or",
			in:   queryast.NewOr(),
			want: queryast.NewNegation(queryast.NewTrue()),
		},
		{
			name: "nested empty or stays false",
			in:   queryast.NewOr(a, queryast.NewOr()),
			want: queryast.NewOr(a, queryast.NewNegation(queryast.NewTrue())),
		},
		{
			name: "splice same operator",
			in:   queryast.NewAnd(a, queryast.NewAnd(b, c)),
			want: queryast.NewAnd(a, b, c),
		},
		{
			name: "keep different operator",
			in:   queryast.NewAnd(a, queryast.NewOr(b, c)),
			want: queryast.NewAnd(a, queryast.NewOr(b, c)),
		},
		{
			name: "singleton exposes same operator",
			in:   queryast.NewAnd(a, queryast.NewOr(queryast.NewAnd(b, c))),
			want: queryast.NewAnd(a, b, c),
		},
		{
			name: "inside subselection",
			in:   queryast.NewSubselection(constraint.DimensionPatient, queryast.NewOr(queryast.NewOr(a, b))),
			want: queryast.NewSubselection(constraint.DimensionPatient, queryast.NewOr(a, b)),
		},
		{
			name: "negation of singleton negation",
			in:   queryast.NewNegation(queryast.NewAnd(queryast.NewNegation(a))),
			want: a,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Rewrite(tt.in)
			assert.Equal(t, encode(t, tt.want), encode(t, got))
		})
	}
}

func TestRewrite_ConceptGroupKeepsShape(t *testing.T) {
	meta := &queryast.ConceptMeta{Name: "Age", FullName: `\Age\`, ValueType: "NUMERIC"}
	group := &queryast.Combination{
		Op:   queryast.OpAnd,
		Args: []queryast.Node{concept("AGE"), &queryast.Value{ValueType: constraint.TypeNumeric, Operator: ">", Value: 5.0}},
		Meta: meta,
	}
	in := queryast.NewAnd(concept("A"), group)
	got := Rewrite(in)

	out, ok := got.(*queryast.Combination)
	require.True(t, ok)
	require.Len(t, out.Args, 2)
	kept, ok := out.Args[1].(*queryast.Combination)
	require.True(t, ok)
	assert.Equal(t, meta, kept.Meta)
}

func TestRewrite_Idempotent(t *testing.T) {
	a, b := concept("A"), concept("B")
	inputs := []queryast.Node{
		queryast.NewAnd(queryast.NewAnd(queryast.NewOr(a)), queryast.NewNegation(queryast.NewNegation(b))),
		queryast.NewOr(queryast.NewAnd(), queryast.NewOr(a, queryast.NewOr(b))),
		queryast.NewNegation(queryast.NewSubselection(constraint.DimensionPatient, queryast.NewAnd(a))),
		queryast.NewTrue(),
	}
	for _, in := range inputs {
		once := Rewrite(in)
		twice := Rewrite(once)
		assert.Equal(t, encode(t, once), encode(t, twice))
	}
}

func TestRewrite_DoesNotMutateInput(t *testing.T) {
	inner := queryast.NewAnd(concept("B"), concept("C"))
	in := queryast.NewAnd(concept("A"), inner)
	before := encode(t, in)
	_ = Rewrite(in)
	assert.Equal(t, before, encode(t, in))
	assert.Len(t, in.Args, 2)
}

func TestApply_WalkNilStopsDescent(t *testing.T) {
	in := queryast.NewAnd(queryast.NewAnd(concept("A"), concept("B")))
	got := Apply(shallow{}, in)
	assert.Equal(t, encode(t, in), encode(t, got))
	assert.Nil(t, Apply(shallow{}, nil))
}

type shallow struct{}

func (shallow) Walk(queryast.Node) Rewriter { return nil }
func (shallow) Rewrite(n queryast.Node) queryast.Node { return n }
