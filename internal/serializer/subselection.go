package serializer

import (
	"github.com/roach88/cohortq/internal/constraint"
	"github.com/roach88/cohortq/internal/queryast"
)

// UnwrapNested collapses chains of single-argument and/or nodes to their
// innermost argument. It is idempotent.
func UnwrapNested(n queryast.Node) queryast.Node {
	for {
		c, ok := n.(*queryast.Combination)
		if !ok || len(c.Args) != 1 {
			return n
		}
		n = c.Args[0]
	}
}

// WrapWithSubselection scopes n to dim.
//
// Wrapping true yields true. A negation is wrapped on the inside and then
// re-negated, so the subselection always scopes the positive predicate.
func WrapWithSubselection(dim constraint.Dimension, n queryast.Node) queryast.Node {
	n = UnwrapNested(n)
	switch v := n.(type) {
	case *queryast.True:
		return queryast.NewTrue()
	case *queryast.Negation:
		return queryast.NewNegation(WrapWithSubselection(dim, v.Arg))
	}
	return queryast.NewSubselection(dim, n)
}
