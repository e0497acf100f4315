// Package registry holds the live cohort selection and the catalog of
// reusable constraint templates offered by search.
//
// Templates are never handed out: Search returns deep clones, and every
// constraint added to the live root is cloned on the way in. A single mutex
// makes each public method one atomic read-mutate-publish step, so a caller
// never observes a root halfway through a restore.
package registry

import (
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/text/cases"

	"github.com/roach88/cohortq/internal/constraint"
)

// DefaultMaxResults is the default search result limit.
const DefaultMaxResults = 100

// PedigreeType describes a relation type offered for pedigree constraints.
type PedigreeType struct {
	Label string
	Text  string
}

// Variable is a concept offered for data export, with its selection state.
type Variable struct {
	Concept  *constraint.Concept
	Selected bool
}

// Option configures a Registry.
type Option func(*Registry)

// WithMaxResults sets the search result limit. Non-positive values keep the
// default.
func WithMaxResults(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.maxResults = n
		}
	}
}

// WithLogger sets the logger used for catalog changes.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// Registry is the constraint catalog plus the live root selection.
type Registry struct {
	mu sync.Mutex

	templates         []constraint.Constraint
	studyTemplates    []constraint.Constraint
	pedigreeTypes     []PedigreeType
	subjectDimensions []constraint.Dimension
	root              *constraint.CombinationConstraint

	maxResults int
	logger     *slog.Logger
	fold       cases.Caser
}

// New creates a registry seeded with the empty group, study and concept
// templates and an empty root selection.
func New(opts ...Option) *Registry {
	root := constraint.NewCombinationConstraint()
	root.IsRoot = true

	r := &Registry{
		templates: []constraint.Constraint{
			constraint.NewCombinationConstraint(),
			constraint.NewStudyConstraint(),
			constraint.NewConceptConstraint(nil),
		},
		root:       root,
		maxResults: DefaultMaxResults,
		logger:     slog.Default(),
		fold:       cases.Fold(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// MaxResults returns the search result limit.
func (r *Registry) MaxResults() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.maxResults
}

// LoadStudies registers one study template per study. Templates from a
// previous load are replaced.
func (r *Registry) LoadStudies(studies []constraint.Study) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.studyTemplates) > 0 {
		stale := make(map[constraint.Constraint]bool, len(r.studyTemplates))
		for _, c := range r.studyTemplates {
			stale[c] = true
		}
		kept := r.templates[:0]
		for _, c := range r.templates {
			if !stale[c] {
				kept = append(kept, c)
			}
		}
		clear(r.templates[len(kept):])
		r.templates = kept
	}

	r.studyTemplates = make([]constraint.Constraint, 0, len(studies))
	for _, s := range studies {
		c := constraint.NewStudyConstraint(s)
		r.studyTemplates = append(r.studyTemplates, c)
		r.templates = append(r.templates, c)
	}
	if len(studies) == 0 {
		r.logger.Info("no studies found")
		return
	}
	r.logger.Debug("studies loaded", "count", len(studies))
}

// LoadPedigrees registers one pedigree template per relation label.
func (r *Registry) LoadPedigrees(labels []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, label := range labels {
		p := constraint.NewPedigreeConstraint(label)
		r.templates = append(r.templates, p)
		r.pedigreeTypes = append(r.pedigreeTypes, PedigreeType{Label: label, Text: p.Text()})
	}
	r.logger.Debug("pedigrees loaded", "count", len(labels))
}

// AddConceptConstraint registers a concept template. The registry keeps its
// own copy.
func (r *Registry) AddConceptConstraint(c *constraint.ConceptConstraint) {
	if c == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates = append(r.templates, c.Clone())
}

// PedigreeTypes returns the relation types loaded so far.
func (r *Registry) PedigreeTypes() []PedigreeType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]PedigreeType, len(r.pedigreeTypes))
	copy(out, r.pedigreeTypes)
	return out
}

// SetSubjectDimensions records the backend's subject dimensions.
func (r *Registry) SetSubjectDimensions(dims []constraint.Dimension) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subjectDimensions = append([]constraint.Dimension(nil), dims...)
}

// SubjectDimensions returns the recorded subject dimensions.
func (r *Registry) SubjectDimensions() []constraint.Dimension {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]constraint.Dimension(nil), r.subjectDimensions...)
}

// Len returns the number of templates.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.templates)
}

// Search returns clones of the templates whose text contains term, ignoring
// case, in registration order and at most MaxResults of them. An empty term
// matches the first MaxResults templates.
func (r *Registry) Search(term string) []constraint.Constraint {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	needle := r.fold.String(term)
	var out []constraint.Constraint
	for _, c := range r.templates {
		if len(out) >= r.maxResults {
			break
		}
		if needle == "" || strings.Contains(r.fold.String(c.Text()), needle) {
			out = append(out, c.Clone())
		}
	}
	return out
}

// Root returns a clone of the live root selection.
func (r *Registry) Root() *constraint.CombinationConstraint {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.root.Clone().(*constraint.CombinationConstraint)
}

// AddToRoot appends a clone of c to the root selection.
func (r *Registry) AddToRoot(c constraint.Constraint) {
	if c == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.root.AddChild(c.Clone())
}

// ClearRoot removes every child of the root. The root node itself is kept.
func (r *Registry) ClearRoot() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.root.ClearChildren()
}

// RestoreRoot merges a saved tree into the root selection.
//
// A non-negated group is flattened: its children are appended to the root
// and its state and dimension replace the root's. True is ignored. Anything
// else is appended as a single child. Repeated restores therefore compose
// into one root group without growing its depth.
func (r *Registry) RestoreRoot(tree constraint.Constraint) {
	if tree == nil {
		return
	}
	c := tree.Clone()

	r.mu.Lock()
	defer r.mu.Unlock()

	switch v := c.(type) {
	case *constraint.CombinationConstraint:
		if !v.Negated() {
			r.root.Dimension = v.Dimension
			for _, child := range v.Children() {
				r.root.AddChild(child)
			}
			r.root.State = v.State
			r.logger.Debug("root restored", "children", r.root.Len(), "state", v.State.String())
			return
		}
	case *constraint.TrueConstraint:
		return
	}
	r.root.AddChild(c)
	r.logger.Debug("root restored", "children", r.root.Len())
}

// CohortSelection returns the constraint for the current selection: True
// when the root has no non-empty children, otherwise a clone of the root.
func (r *Registry) CohortSelection() constraint.Constraint {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.root.HasNonEmptyChildren() {
		return constraint.NewTrueConstraint()
	}
	return r.root.Clone()
}

// VariableConstraint builds the observation filter for a variable
// selection: True when every variable is selected, otherwise an OR group at
// the observation dimension over the selected concepts.
func VariableConstraint(variables []Variable) constraint.Constraint {
	allSelected := true
	for _, v := range variables {
		if !v.Selected {
			allSelected = false
			break
		}
	}
	if allSelected {
		return constraint.NewTrueConstraint()
	}
	group := constraint.NewCombinationConstraint()
	group.State = constraint.Or
	group.Dimension = constraint.DimensionObservation
	for _, v := range variables {
		if v.Selected && v.Concept != nil {
			concept := *v.Concept
			group.AddChild(constraint.NewConceptConstraint(&concept))
		}
	}
	return group
}
