// Package rewriter normalizes the structure of query documents.
//
// Rewriting never changes what a document selects, only its shape: double
// negations cancel, single-argument and/or nodes collapse to their argument,
// nested groups with the same operator are spliced into their parent, an
// empty and becomes true and an empty or becomes the negation of true.
// Concept groups carrying metadata keep their shape so that they can still be
// restored.
//
// Rewrite is idempotent: Rewrite(Rewrite(n)) encodes the same as Rewrite(n).
package rewriter

import "github.com/roach88/cohortq/internal/queryast"

// Rewriter accepts a node and returns a replacement (or the node itself).
type Rewriter interface {
	// Rewrite is applied to nodes in depth-first order, after the node's
	// children have been rewritten.
	Rewrite(queryast.Node) queryast.Node

	// Walk returns the Rewriter used for the children of a node. If it
	// returns nil, traversal does not descend below the node.
	Walk(queryast.Node) Rewriter
}

// Apply recursively applies r in depth-first order. Input nodes are never
// modified; interior nodes on the rewritten path are copied.
func Apply(r Rewriter, n queryast.Node) queryast.Node {
	if n == nil {
		return nil
	}
	if rc := r.Walk(n); rc != nil {
		n = rewriteChildren(rc, n)
	}
	return r.Rewrite(n)
}

func rewriteChildren(r Rewriter, n queryast.Node) queryast.Node {
	switch v := n.(type) {
	case *queryast.Combination:
		args := make([]queryast.Node, len(v.Args))
		for i, a := range v.Args {
			args[i] = Apply(r, a)
		}
		return &queryast.Combination{Op: v.Op, Args: args, Meta: v.Meta}
	case *queryast.Negation:
		return &queryast.Negation{Arg: Apply(r, v.Arg)}
	case *queryast.Subselection:
		return &queryast.Subselection{Dimension: v.Dimension, Constraint: Apply(r, v.Constraint)}
	}
	return n
}

// Rewrite applies the structural normalization rules to n.
func Rewrite(n queryast.Node) queryast.Node {
	return Apply(normalizer{}, n)
}

type normalizer struct{}

func (normalizer) Walk(queryast.Node) Rewriter { return normalizer{} }

func (normalizer) Rewrite(n queryast.Node) queryast.Node {
	switch v := n.(type) {
	case *queryast.Negation:
		if inner, ok := v.Arg.(*queryast.Negation); ok {
			return inner.Arg
		}
	case *queryast.Combination:
		return normalizeCombination(v)
	}
	return n
}

func normalizeCombination(c *queryast.Combination) queryast.Node {
	args := make([]queryast.Node, 0, len(c.Args))
	for _, a := range c.Args {
		if child, ok := a.(*queryast.Combination); ok && child.Op == c.Op && child.Meta == nil {
			args = append(args, child.Args...)
			continue
		}
		args = append(args, a)
	}
	if c.Meta != nil {
		return &queryast.Combination{Op: c.Op, Args: args, Meta: c.Meta}
	}
	switch len(args) {
	case 0:
		if c.Op == queryast.OpOr {
			return queryast.NewNegation(queryast.NewTrue())
		}
		return queryast.NewTrue()
	case 1:
		return args[0]
	}
	return &queryast.Combination{Op: c.Op, Args: args}
}
