package constraint

import (
	"slices"
	"time"
)

// Constraint is a node of a cohort-selection tree.
//
// This is a sealed interface - only the variants in this package implement it.
type Constraint interface {
	// Kind identifies the concrete variant.
	Kind() Kind

	// Negated reports the per-node negation request. It is independent of
	// explicit NegationConstraint nodes.
	Negated() bool
	SetNegated(bool)

	// Text is the human-readable form used for search and display.
	Text() string
	SetText(string)

	// Clone returns a deep copy that shares no mutable state with the receiver.
	Clone() Constraint

	constraintNode() // Marker method - seals interface to this package
}

// base carries the state common to every variant.
type base struct {
	negated bool
	text    string
}

func (b *base) Negated() bool       { return b.negated }
func (b *base) SetNegated(v bool)   { b.negated = v }
func (b *base) Text() string        { return b.text }
func (b *base) SetText(text string) { b.text = text }
func (b *base) constraintNode()     {}

// TrueConstraint matches every subject.
type TrueConstraint struct {
	base
}

// NewTrueConstraint creates a TrueConstraint.
func NewTrueConstraint() *TrueConstraint {
	return &TrueConstraint{base: base{text: "True"}}
}

func (c *TrueConstraint) Kind() Kind { return KindTrue }

func (c *TrueConstraint) Clone() Constraint {
	cp := *c
	return &cp
}

// CombinationConstraint is an AND/OR group over an ordered list of children.
//
// Children are kept in insertion order; the order is significant for stable
// re-serialization. Duplicate children are allowed.
type CombinationConstraint struct {
	base
	children []Constraint

	// State is AND or OR.
	State CombinationState

	// Dimension is what the children jointly constrain (zero value: patient).
	Dimension Dimension

	// ParentDimension is the dimension of the enclosing combination when the
	// group was added to it. Nil for a group that was never added as a child.
	ParentDimension *Dimension

	// IsRoot marks the top-level selection node.
	IsRoot bool
}

// NewCombinationConstraint creates an AND group at the patient dimension.
func NewCombinationConstraint(children ...Constraint) *CombinationConstraint {
	c := &CombinationConstraint{base: base{text: "Group"}}
	for _, child := range children {
		c.AddChild(child)
	}
	return c
}

func (c *CombinationConstraint) Kind() Kind { return KindCombination }

// Children returns a copy of the child list.
func (c *CombinationConstraint) Children() []Constraint {
	return slices.Clone(c.children)
}

// Len returns the number of children.
func (c *CombinationConstraint) Len() int {
	return len(c.children)
}

// AddChild appends child. A child group records this group's dimension as
// its parent dimension.
func (c *CombinationConstraint) AddChild(child Constraint) {
	if child == nil {
		return
	}
	if group, ok := child.(*CombinationConstraint); ok {
		dim := c.Dimension
		group.ParentDimension = &dim
	}
	c.children = append(c.children, child)
}

// RemoveChild removes the first occurrence of child (identity match).
// Reports whether a child was removed.
func (c *CombinationConstraint) RemoveChild(child Constraint) bool {
	idx := slices.IndexFunc(c.children, func(existing Constraint) bool {
		return existing == child
	})
	if idx < 0 {
		return false
	}
	c.children = slices.Delete(c.children, idx, idx+1)
	return true
}

// ClearChildren truncates the child list; the group itself is kept.
func (c *CombinationConstraint) ClearChildren() {
	clear(c.children)
	c.children = c.children[:0]
}

// SwitchState toggles between AND and OR.
func (c *CombinationConstraint) SwitchState() {
	if c.State == And {
		c.State = Or
	} else {
		c.State = And
	}
}

// HasNonEmptyChildren reports whether at least one child is non-trivial.
// A group without non-empty children is equivalent to TrueConstraint.
func (c *CombinationConstraint) HasNonEmptyChildren() bool {
	for _, child := range c.children {
		if !IsEmpty(child) {
			return true
		}
	}
	return false
}

func (c *CombinationConstraint) Clone() Constraint {
	cp := &CombinationConstraint{
		base:      c.base,
		State:     c.State,
		Dimension: c.Dimension,
		IsRoot:    c.IsRoot,
	}
	if c.ParentDimension != nil {
		dim := *c.ParentDimension
		cp.ParentDimension = &dim
	}
	if c.children != nil {
		cp.children = make([]Constraint, len(c.children))
		for i, child := range c.children {
			cp.children[i] = child.Clone()
		}
	}
	return cp
}

// IsEmpty reports whether c constrains nothing: a TrueConstraint, or a
// group whose children are all empty.
func IsEmpty(c Constraint) bool {
	switch v := c.(type) {
	case nil:
		return true
	case *TrueConstraint:
		return true
	case *CombinationConstraint:
		return !v.HasNonEmptyChildren()
	default:
		return false
	}
}

// NegationConstraint is the semantic complement of its single child.
type NegationConstraint struct {
	base
	child Constraint
}

// Negate wraps c in a NegationConstraint.
func Negate(c Constraint) *NegationConstraint {
	return &NegationConstraint{base: base{text: "Negation"}, child: c}
}

func (c *NegationConstraint) Kind() Kind { return KindNegation }

// Child returns the negated constraint.
func (c *NegationConstraint) Child() Constraint { return c.child }

// SetChild replaces the negated constraint.
func (c *NegationConstraint) SetChild(child Constraint) { c.child = child }

func (c *NegationConstraint) Clone() Constraint {
	cp := &NegationConstraint{base: c.base}
	if c.child != nil {
		cp.child = c.child.Clone()
	}
	return cp
}

// Concept is a clinical concept from the backend's concept tree.
type Concept struct {
	Code     string
	Name     string
	FullName string
	Path     string
	Type     ValueType
}

// ConceptConstraint selects subjects with observations of one concept,
// optionally restricted by value comparisons and by date, trial-visit and
// study sub-constraints. Each sub-constraint only applies when its Apply
// flag is set.
type ConceptConstraint struct {
	base

	// Concept is required for serialization.
	Concept *Concept

	ValueConstraints []*ValueConstraint

	ValDate      *TimeConstraint
	ApplyValDate bool

	ObsDate      *TimeConstraint
	ApplyObsDate bool

	TrialVisits     *TrialVisitConstraint
	ApplyTrialVisit bool

	Studies    *StudyConstraint
	ApplyStudy bool
}

// NewConceptConstraint creates a constraint bound to concept (which may be nil
// for an unbound template). Date sub-constraints are pre-created so that a UI
// can toggle their Apply flags.
func NewConceptConstraint(concept *Concept) *ConceptConstraint {
	c := &ConceptConstraint{
		base:        base{text: "Concept"},
		Concept:     concept,
		ValDate:     NewTimeConstraint(DateAfter, time.Time{}, time.Time{}),
		ObsDate:     NewTimeConstraint(DateAfter, time.Time{}, time.Time{}),
		TrialVisits: NewTrialVisitConstraint(),
		Studies:     NewStudyConstraint(),
	}
	c.ObsDate.ObservationDate = true
	if concept != nil {
		c.text = "Concept: " + concept.Name
	}
	return c
}

func (c *ConceptConstraint) Kind() Kind { return KindConcept }

// AddValueConstraint appends a value comparison.
func (c *ConceptConstraint) AddValueConstraint(v *ValueConstraint) {
	c.ValueConstraints = append(c.ValueConstraints, v)
}

func (c *ConceptConstraint) Clone() Constraint {
	cp := &ConceptConstraint{
		base:            c.base,
		ApplyValDate:    c.ApplyValDate,
		ApplyObsDate:    c.ApplyObsDate,
		ApplyTrialVisit: c.ApplyTrialVisit,
		ApplyStudy:      c.ApplyStudy,
	}
	if c.Concept != nil {
		concept := *c.Concept
		cp.Concept = &concept
	}
	if c.ValueConstraints != nil {
		cp.ValueConstraints = make([]*ValueConstraint, len(c.ValueConstraints))
		for i, v := range c.ValueConstraints {
			cp.ValueConstraints[i] = v.Clone().(*ValueConstraint)
		}
	}
	if c.ValDate != nil {
		cp.ValDate = c.ValDate.Clone().(*TimeConstraint)
	}
	if c.ObsDate != nil {
		cp.ObsDate = c.ObsDate.Clone().(*TimeConstraint)
	}
	if c.TrialVisits != nil {
		cp.TrialVisits = c.TrialVisits.Clone().(*TrialVisitConstraint)
	}
	if c.Studies != nil {
		cp.Studies = c.Studies.Clone().(*StudyConstraint)
	}
	return cp
}

// ValueConstraint is one comparison against an observed value.
type ValueConstraint struct {
	base
	ValueType ValueType
	Operator  Operator
	Value     any
}

// NewValueConstraint creates a value comparison.
func NewValueConstraint(valueType ValueType, op Operator, value any) *ValueConstraint {
	return &ValueConstraint{
		base:      base{text: "Value constraint"},
		ValueType: valueType,
		Operator:  op,
		Value:     value,
	}
}

func (c *ValueConstraint) Kind() Kind { return KindValue }

func (c *ValueConstraint) Clone() Constraint {
	cp := *c
	return &cp
}

// TimeConstraint is a date-range predicate.
//
// With ObservationDate set it targets the observation's own start time;
// otherwise it targets a date-typed observed value.
type TimeConstraint struct {
	base
	Mode            DateOperator
	Date1           time.Time
	Date2           time.Time
	ObservationDate bool
}

// NewTimeConstraint creates a date predicate. date2 is ignored for
// single-date modes.
func NewTimeConstraint(mode DateOperator, date1, date2 time.Time) *TimeConstraint {
	return &TimeConstraint{
		base:  base{text: "Time constraint"},
		Mode:  mode,
		Date1: date1,
		Date2: date2,
	}
}

func (c *TimeConstraint) Kind() Kind { return KindTime }

func (c *TimeConstraint) Clone() Constraint {
	cp := *c
	return &cp
}

// TrialVisit identifies a visit within a trial.
type TrialVisit struct {
	ID           string
	RelTimeLabel string
}

// TrialVisitConstraint is set membership over trial visits.
type TrialVisitConstraint struct {
	base
	TrialVisits []TrialVisit
}

// NewTrialVisitConstraint creates a trial-visit predicate.
func NewTrialVisitConstraint(visits ...TrialVisit) *TrialVisitConstraint {
	return &TrialVisitConstraint{
		base:        base{text: "Trial visit constraint"},
		TrialVisits: visits,
	}
}

func (c *TrialVisitConstraint) Kind() Kind { return KindTrialVisit }

func (c *TrialVisitConstraint) Clone() Constraint {
	cp := *c
	cp.TrialVisits = slices.Clone(c.TrialVisits)
	return &cp
}

// Study identifies a study.
type Study struct {
	ID string
}

// StudyConstraint is set membership over studies.
type StudyConstraint struct {
	base
	Studies []Study
}

// NewStudyConstraint creates a study predicate. A constraint over exactly
// one study is labelled with that study's id.
func NewStudyConstraint(studies ...Study) *StudyConstraint {
	c := &StudyConstraint{base: base{text: "Study"}, Studies: studies}
	if len(studies) == 1 {
		c.text = "Study: " + studies[0].ID
	}
	return c
}

func (c *StudyConstraint) Kind() Kind { return KindStudy }

// AddStudy appends a study.
func (c *StudyConstraint) AddStudy(s Study) {
	c.Studies = append(c.Studies, s)
}

func (c *StudyConstraint) Clone() Constraint {
	cp := *c
	cp.Studies = slices.Clone(c.Studies)
	return &cp
}

// SubjectSelector identifies which selector of a SubjectSetConstraint is in use.
type SubjectSelector int

const (
	SelectNone SubjectSelector = iota
	SelectSubjectIDs
	SelectPatientIDs
	SelectSetID
)

// SubjectSetConstraint selects an explicit or previously materialized set
// of subjects.
type SubjectSetConstraint struct {
	base

	// SubjectIDs are external subject identifiers.
	SubjectIDs []string

	// PatientIDs are internal subject identifiers.
	PatientIDs []string

	// ID references a materialized subject set; 0 means unset.
	ID int64

	SetSize            int64
	Status             string
	Description        string
	ErrorMessage       string
	RequestConstraints string
}

// NewSubjectSetConstraint creates an empty subject-set constraint.
func NewSubjectSetConstraint() *SubjectSetConstraint {
	return &SubjectSetConstraint{base: base{text: "Subject set constraint"}}
}

func (c *SubjectSetConstraint) Kind() Kind { return KindSubjectSet }

// Selector returns the populated selector with the highest priority:
// explicit subject ids, then patient ids, then the set id.
func (c *SubjectSetConstraint) Selector() SubjectSelector {
	switch {
	case len(c.SubjectIDs) > 0:
		return SelectSubjectIDs
	case len(c.PatientIDs) > 0:
		return SelectPatientIDs
	case c.ID != 0:
		return SelectSetID
	default:
		return SelectNone
	}
}

func (c *SubjectSetConstraint) Clone() Constraint {
	cp := *c
	cp.SubjectIDs = slices.Clone(c.SubjectIDs)
	cp.PatientIDs = slices.Clone(c.PatientIDs)
	return &cp
}

// PedigreeConstraint selects subjects related (by Label) to subjects that
// satisfy RightHandSide.
type PedigreeConstraint struct {
	base
	Label string

	// Biological and ShareHousehold are tri-state: nil means unset.
	Biological     *bool
	ShareHousehold *bool

	RightHandSide Constraint
}

// NewPedigreeConstraint creates a relation predicate whose right-hand side
// is an empty group.
func NewPedigreeConstraint(label string) *PedigreeConstraint {
	return &PedigreeConstraint{
		base:          base{text: "Pedigree: " + label},
		Label:         label,
		RightHandSide: NewCombinationConstraint(),
	}
}

func (c *PedigreeConstraint) Kind() Kind { return KindPedigree }

func (c *PedigreeConstraint) Clone() Constraint {
	cp := &PedigreeConstraint{base: c.base, Label: c.Label}
	if c.Biological != nil {
		v := *c.Biological
		cp.Biological = &v
	}
	if c.ShareHousehold != nil {
		v := *c.ShareHousehold
		cp.ShareHousehold = &v
	}
	if c.RightHandSide != nil {
		cp.RightHandSide = c.RightHandSide.Clone()
	}
	return cp
}
