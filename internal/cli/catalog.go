package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/cohortq/internal/constraint"
	"github.com/roach88/cohortq/internal/registry"
)

// Catalog lists what the backend offers: studies, relation types, concepts
// and subject dimensions. It seeds the registry used by search.
type Catalog struct {
	Studies           []string         `yaml:"studies"`
	Pedigrees         []string         `yaml:"pedigrees"`
	SubjectDimensions []string         `yaml:"subjectDimensions"`
	Concepts          []CatalogConcept `yaml:"concepts"`
}

// CatalogConcept is one concept entry of a catalog.
type CatalogConcept struct {
	Code     string `yaml:"code"`
	Name     string `yaml:"name"`
	FullName string `yaml:"fullName"`
	Path     string `yaml:"path"`
	Type     string `yaml:"type"`
}

// LoadCatalog reads a catalog YAML file. Unknown keys are rejected.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	var c Catalog
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	return &c, nil
}

// Registry builds a registry seeded with the catalog's entries.
func (c *Catalog) Registry(logger *slog.Logger, opts ...registry.Option) (*registry.Registry, error) {
	dims := make([]constraint.Dimension, 0, len(c.SubjectDimensions))
	for i, name := range c.SubjectDimensions {
		d, err := constraint.ParseDimension(name)
		if err != nil {
			return nil, fmt.Errorf("subjectDimensions[%d]: %w", i, err)
		}
		dims = append(dims, d)
	}

	concepts := make([]*constraint.ConceptConstraint, 0, len(c.Concepts))
	for i, cc := range c.Concepts {
		if cc.Code == "" {
			return nil, fmt.Errorf("concepts[%d]: code is required", i)
		}
		vt, err := constraint.ParseValueType(cc.Type)
		if err != nil {
			return nil, fmt.Errorf("concepts[%d]: %w", i, err)
		}
		name := cc.Name
		if name == "" {
			name = cc.Code
		}
		concepts = append(concepts, constraint.NewConceptConstraint(&constraint.Concept{
			Code:     cc.Code,
			Name:     name,
			FullName: cc.FullName,
			Path:     cc.Path,
			Type:     vt,
		}))
	}

	studies := make([]constraint.Study, len(c.Studies))
	for i, id := range c.Studies {
		studies[i] = constraint.Study{ID: id}
	}

	reg := registry.New(append([]registry.Option{registry.WithLogger(logger)}, opts...)...)
	reg.LoadStudies(studies)
	reg.LoadPedigrees(c.Pedigrees)
	reg.SetSubjectDimensions(dims)
	for _, concept := range concepts {
		reg.AddConceptConstraint(concept)
	}
	return reg, nil
}
