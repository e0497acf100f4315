// Package cohortfile reads declarative cohort definitions and builds
// constraint trees from them.
//
// A cohort file names one root node under the cohort key. Every node carries
// exactly one constraint variant:
//
//	name: adults-in-ehr
//	cohort:
//	  and:
//	    - concept:
//	        code: AGE
//	        type: NUMERIC
//	        values:
//	          - {op: ">=", value: 18}
//	    - study: [EHR]
//
// The same structure can be written in CUE, where the cohort field is read
// after the file has been evaluated.
package cohortfile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"
)

// File is a cohort definition.
type File struct {
	Name        string `yaml:"name" json:"name,omitempty"`
	Description string `yaml:"description" json:"description,omitempty"`
	Cohort      *Node  `yaml:"cohort" json:"cohort"`
}

// Node is one constraint of a cohort tree. Exactly one of the variant fields
// must be set; All selects every subject. Dimension is only valid on and/or
// groups.
type Node struct {
	All        bool        `yaml:"all,omitempty" json:"all,omitempty"`
	And        []*Node     `yaml:"and,omitempty" json:"and,omitempty"`
	Or         []*Node     `yaml:"or,omitempty" json:"or,omitempty"`
	Not        *Node       `yaml:"not,omitempty" json:"not,omitempty"`
	Concept    *Concept    `yaml:"concept,omitempty" json:"concept,omitempty"`
	Value      *Value      `yaml:"value,omitempty" json:"value,omitempty"`
	Time       *Date       `yaml:"time,omitempty" json:"time,omitempty"`
	TrialVisit []string    `yaml:"trialVisit,omitempty" json:"trialVisit,omitempty"`
	Study      []string    `yaml:"study,omitempty" json:"study,omitempty"`
	SubjectSet *SubjectSet `yaml:"subjectSet,omitempty" json:"subjectSet,omitempty"`
	Pedigree   *Pedigree   `yaml:"pedigree,omitempty" json:"pedigree,omitempty"`

	Dimension string `yaml:"dimension,omitempty" json:"dimension,omitempty"`
	Negated   bool   `yaml:"negated,omitempty" json:"negated,omitempty"`
	Text      string `yaml:"text,omitempty" json:"text,omitempty"`
}

// Concept describes a concept constraint and its optional sub-constraints.
type Concept struct {
	Code            string   `yaml:"code" json:"code"`
	Name            string   `yaml:"name" json:"name,omitempty"`
	FullName        string   `yaml:"fullName" json:"fullName,omitempty"`
	Type            string   `yaml:"type" json:"type,omitempty"`
	Values          []Value  `yaml:"values" json:"values,omitempty"`
	ValueDate       *Date    `yaml:"valueDate" json:"valueDate,omitempty"`
	ObservationDate *Date    `yaml:"observationDate" json:"observationDate,omitempty"`
	TrialVisits     []string `yaml:"trialVisits" json:"trialVisits,omitempty"`
	Studies         []string `yaml:"studies" json:"studies,omitempty"`
}

// Value is a comparison. Op accepts a domain name ("geq") or a wire token
// (">="). Type defaults to NUMERIC for numbers and STRING otherwise.
type Value struct {
	Type  string `yaml:"type" json:"type,omitempty"`
	Op    string `yaml:"op" json:"op"`
	Value any    `yaml:"value" json:"value"`
}

// Date is a date predicate. Dates are YYYY-MM-DD or RFC 3339, read as UTC.
type Date struct {
	Op          string   `yaml:"op" json:"op"`
	Dates       []string `yaml:"dates" json:"dates"`
	Observation bool     `yaml:"observation" json:"observation,omitempty"`
}

// SubjectSet selects subjects by id list or saved set id.
type SubjectSet struct {
	SubjectIDs []string `yaml:"subjectIds" json:"subjectIds,omitempty"`
	PatientIDs []string `yaml:"patientIds" json:"patientIds,omitempty"`
	ID         int64    `yaml:"id" json:"id,omitempty"`
}

// Pedigree relates subjects to the subjects selected by Related.
type Pedigree struct {
	Label          string `yaml:"label" json:"label"`
	Biological     *bool  `yaml:"biological" json:"biological,omitempty"`
	ShareHousehold *bool  `yaml:"shareHousehold" json:"shareHousehold,omitempty"`
	Related        *Node  `yaml:"related" json:"related,omitempty"`
}

// Error reports an unreadable or invalid cohort file.
type Error struct {
	File    string
	Path    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("cohort file")
	if e.File != "" {
		b.WriteString(" ")
		b.WriteString(e.File)
	}
	if e.Path != "" {
		b.WriteString(" at ")
		b.WriteString(e.Path)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// LoadYAML decodes a cohort file. Unknown keys are rejected.
func LoadYAML(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil {
		if err == io.EOF {
			return nil, &Error{Message: "empty document"}
		}
		return nil, &Error{Message: err.Error(), Err: err}
	}
	if f.Cohort == nil {
		return nil, &Error{Path: "/cohort", Message: "cohort is required"}
	}
	return &f, nil
}

// LoadCUE evaluates a CUE file and decodes its name, description and cohort
// fields. The value must be concrete.
func LoadCUE(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{File: path, Message: err.Error(), Err: err}
	}
	return compileCUE(path, data)
}

func compileCUE(filename string, data []byte) (*File, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, &Error{File: filename, Message: cueerrors.Details(err, nil), Err: err}
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, &Error{File: filename, Message: cueerrors.Details(err, nil), Err: err}
	}
	if !v.LookupPath(cue.ParsePath("cohort")).Exists() {
		return nil, &Error{File: filename, Path: "/cohort", Message: "cohort is required"}
	}

	raw, err := v.MarshalJSON()
	if err != nil {
		return nil, &Error{File: filename, Message: err.Error(), Err: err}
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var f File
	if err := dec.Decode(&f); err != nil {
		return nil, &Error{File: filename, Message: err.Error(), Err: err}
	}
	return &f, nil
}

// LoadFile reads a cohort file, choosing the format by extension: .cue for
// CUE, and .yaml, .yml or .json for YAML.
func LoadFile(path string) (*File, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cue":
		return LoadCUE(path)
	case ".yaml", ".yml", ".json":
		fh, err := os.Open(path)
		if err != nil {
			return nil, &Error{File: path, Message: err.Error(), Err: err}
		}
		defer fh.Close()
		f, err := LoadYAML(fh)
		if err != nil {
			if ce, ok := err.(*Error); ok {
				ce.File = path
			}
			return nil, err
		}
		return f, nil
	}
	return nil, &Error{File: path, Message: fmt.Sprintf("unsupported file extension %q", filepath.Ext(path))}
}
