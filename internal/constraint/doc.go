// Package constraint provides the in-memory cohort-selection tree.
//
// A cohort selection is a tree of Constraint nodes: AND/OR groups
// (CombinationConstraint), negations, and leaf predicates over concepts,
// observed values, dates, trial visits, studies, subject sets and pedigree
// relations.
//
// SEALED INTERFACE:
//
// Constraint is sealed with an unexported marker method, the same way the
// query AST is. Only the variants in this package implement it, so a type
// switch over the variants in a consumer (the serializer, the mapper) is
// exhaustive:
//
//	switch c := c.(type) {
//	case *TrueConstraint:
//	case *CombinationConstraint:
//	...
//	}
//
// MUTATION AND CLONING:
//
// Nodes are mutated through their own setters and child-management methods
// (AddChild, RemoveChild, ClearChildren). Consumers treat a tree as
// read-only while visiting it. Clone always deep-copies: child slices and
// nested sub-constraints are never shared with the original, which is what
// lets registry templates be copied into a live selection and edited there.
//
// The package imports nothing internal.
package constraint
