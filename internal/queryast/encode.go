package queryast

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/cohortq/internal/canon"
)

// ToMap converts n to its generic JSON shape. Optional fields that are unset
// are omitted rather than written as null.
func ToMap(n Node) map[string]any {
	m := map[string]any{"type": string(n.Type())}
	switch n := n.(type) {
	case *True:
	case *Value:
		m["valueType"] = n.ValueType.String()
		m["operator"] = n.Operator
		if n.Value != nil {
			m["value"] = n.Value
		}
	case *Field:
		m["field"] = fieldRefMap(n.Field)
		m["operator"] = n.Operator
		if n.Value != nil {
			m["value"] = n.Value
		}
	case *Time:
		m["field"] = fieldRefMap(n.Field)
		m["operator"] = n.Operator
		values := n.Values
		if values == nil {
			values = []int64{}
		}
		m["values"] = values
	case *Negation:
		m["arg"] = ToMap(n.Arg)
	case *Subselection:
		m["dimension"] = n.Dimension.String()
		m["constraint"] = ToMap(n.Constraint)
	case *Combination:
		args := make([]any, len(n.Args))
		for i, a := range n.Args {
			args[i] = ToMap(a)
		}
		m["args"] = args
		putMeta(m, n.Meta)
	case *Concept:
		m["conceptCode"] = n.ConceptCode
		putMeta(m, n.Meta)
	case *StudyName:
		m["studyId"] = n.StudyID
	case *PatientSet:
		if len(n.SubjectIDs) > 0 {
			m["subjectIds"] = n.SubjectIDs
		}
		if len(n.PatientIDs) > 0 {
			m["patientIds"] = n.PatientIDs
		}
		if n.PatientSetID != 0 {
			m["patientSetId"] = n.PatientSetID
		}
	case *Relation:
		m["relatedSubjectsConstraint"] = ToMap(n.RelatedSubjectsConstraint)
		m["relationTypeLabel"] = n.RelationTypeLabel
		if n.Biological != nil {
			m["biological"] = *n.Biological
		}
		if n.ShareHousehold != nil {
			m["shareHousehold"] = *n.ShareHousehold
		}
	}
	return m
}

func fieldRefMap(f FieldRef) map[string]any {
	return map[string]any{
		"dimension": f.Dimension.String(),
		"fieldName": f.FieldName,
		"type":      f.Type.String(),
	}
}

func putMeta(m map[string]any, meta *ConceptMeta) {
	if meta == nil {
		return
	}
	m["name"] = meta.Name
	m["fullName"] = meta.FullName
	m["valueType"] = meta.ValueType
}

// Marshal encodes n as canonical JSON.
func Marshal(n Node) ([]byte, error) {
	if n == nil {
		return nil, fmt.Errorf("marshal query: nil node")
	}
	data, err := canon.Marshal(ToMap(n))
	if err != nil {
		return nil, fmt.Errorf("marshal query: %w", err)
	}
	return data, nil
}

// MarshalIndent encodes n as indented JSON for display. Key order follows
// encoding/json, so the output is stable but not canonical.
func MarshalIndent(n Node) ([]byte, error) {
	if n == nil {
		return nil, fmt.Errorf("marshal query: nil node")
	}
	return json.MarshalIndent(ToMap(n), "", "  ")
}

// Fingerprint returns the content address of n's canonical encoding.
func Fingerprint(n Node) (string, error) {
	data, err := Marshal(n)
	if err != nil {
		return "", err
	}
	return canon.Fingerprint(data), nil
}
