package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/cohortq/internal/mapper"
	"github.com/roach88/cohortq/internal/queryast"
	"github.com/roach88/cohortq/internal/serializer"
)

// AssertionError is returned when an assertion fails.
// It includes the document to help debug the failure.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
	Document queryast.Node
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if e.Document != nil {
		if data, err := queryast.Marshal(e.Document); err == nil {
			fmt.Fprintf(&buf, "\nDocument:\n  %s\n", data)
		}
	}

	return buf.String()
}

// EvaluateAssertions checks every assertion against doc and returns the
// failure messages.
func EvaluateAssertions(doc queryast.Node, assertions []Assertion) []string {
	var failures []string
	for _, a := range assertions {
		var err error
		switch a.Type {
		case AssertContains:
			err = assertContains(doc, a)
		case AssertAbsent:
			err = assertAbsent(doc, a)
		case AssertRoundTrip:
			err = assertRoundTrip(doc)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			failures = append(failures, err.Error())
		}
	}
	return failures
}

// countNodes counts the nodes of type t in the document.
func countNodes(n queryast.Node, t queryast.NodeType) int {
	if n == nil {
		return 0
	}
	count := 0
	if n.Type() == t {
		count++
	}
	switch v := n.(type) {
	case *queryast.Negation:
		count += countNodes(v.Arg, t)
	case *queryast.Subselection:
		count += countNodes(v.Constraint, t)
	case *queryast.Combination:
		for _, arg := range v.Args {
			count += countNodes(arg, t)
		}
	case *queryast.Relation:
		count += countNodes(v.RelatedSubjectsConstraint, t)
	}
	return count
}

func assertContains(doc queryast.Node, a Assertion) error {
	got := countNodes(doc, queryast.NodeType(a.Node))
	if a.Count == 0 && got > 0 || a.Count > 0 && got == a.Count {
		return nil
	}
	expected := fmt.Sprintf("at least one %s node", a.Node)
	if a.Count > 0 {
		expected = fmt.Sprintf("exactly %d %s nodes", a.Count, a.Node)
	}
	return &AssertionError{
		Type:     AssertContains,
		Expected: expected,
		Actual:   fmt.Sprintf("%d found", got),
		Document: doc,
	}
}

func assertAbsent(doc queryast.Node, a Assertion) error {
	if got := countNodes(doc, queryast.NodeType(a.Node)); got > 0 {
		return &AssertionError{
			Type:     AssertAbsent,
			Expected: fmt.Sprintf("no %s nodes", a.Node),
			Actual:   fmt.Sprintf("%d found", got),
			Document: doc,
		}
	}
	return nil
}

// assertRoundTrip restores a full-mode doc into a constraint tree and
// serializes it again.
func assertRoundTrip(doc queryast.Node) error {
	tree, err := mapper.ToConstraint(doc)
	if err != nil {
		return &AssertionError{Type: AssertRoundTrip, Expected: "restorable document", Actual: err.Error(), Document: doc}
	}
	again, err := serializer.Serialize(tree, serializer.ModeFull)
	if err != nil {
		return &AssertionError{Type: AssertRoundTrip, Expected: "restored tree serializes", Actual: err.Error(), Document: doc}
	}
	if again == nil {
		again = queryast.NewTrue()
	}
	if !queryast.Equal(doc, again) {
		got, _ := queryast.Marshal(again)
		return &AssertionError{Type: AssertRoundTrip, Expected: "identical document after restore", Actual: string(got), Document: doc}
	}
	return nil
}
