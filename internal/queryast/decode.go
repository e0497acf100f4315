package queryast

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"

	"github.com/roach88/cohortq/internal/constraint"
)

// DecodeError reports a malformed document. Path is a JSON-pointer-like
// location such as "/args/1/arg".
type DecodeError struct {
	Path    string
	Message string
}

func (e *DecodeError) Error() string {
	if e.Path == "" {
		return "decode query: " + e.Message
	}
	return fmt.Sprintf("decode query at %s: %s", e.Path, e.Message)
}

// Unmarshal parses a JSON query document. Unknown node types, unknown keys
// and trailing data are errors.
func Unmarshal(data []byte) (Node, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, &DecodeError{Message: err.Error()}
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, &DecodeError{Message: "unexpected trailing data"}
	}
	return FromValue(raw)
}

// FromValue builds a node from a generic decoded value (encoding/json with
// UseNumber, or yaml.v3 into any).
func FromValue(v any) (Node, error) {
	return decodeNode("", v)
}

var allowedKeys = map[NodeType][]string{
	TypeTrue:         {},
	TypeValue:        {"valueType", "operator", "value"},
	TypeField:        {"field", "operator", "value"},
	TypeTime:         {"field", "operator", "values"},
	TypeNegation:     {"arg"},
	TypeSubselection: {"dimension", "constraint"},
	TypeAnd:          {"args", "name", "fullName", "valueType"},
	TypeOr:           {"args", "name", "fullName", "valueType"},
	TypeConcept:      {"conceptCode", "name", "fullName", "valueType"},
	TypeStudyName:    {"studyId"},
	TypePatientSet:   {"subjectIds", "patientIds", "patientSetId"},
	TypeRelation:     {"relatedSubjectsConstraint", "relationTypeLabel", "biological", "shareHousehold"},
}

func decodeNode(path string, v any) (Node, error) {
	m, ok := asObject(v)
	if !ok {
		return nil, &DecodeError{Path: path, Message: fmt.Sprintf("expected object, got %T", v)}
	}
	tag, err := str(path, m, "type")
	if err != nil {
		return nil, err
	}
	t := NodeType(tag)
	allowed, known := allowedKeys[t]
	if !known {
		return nil, &DecodeError{Path: path + "/type", Message: fmt.Sprintf("unknown node type %q", tag)}
	}
	if err := checkKeys(path, m, allowed); err != nil {
		return nil, err
	}

	switch t {
	case TypeTrue:
		return &True{}, nil
	case TypeValue:
		vt, err := valueType(path, m, "valueType")
		if err != nil {
			return nil, err
		}
		op, err := str(path, m, "operator")
		if err != nil {
			return nil, err
		}
		val, err := scalar(path+"/value", m["value"])
		if err != nil {
			return nil, err
		}
		return &Value{ValueType: vt, Operator: op, Value: val}, nil
	case TypeField:
		ref, err := fieldRef(path+"/field", m["field"])
		if err != nil {
			return nil, err
		}
		op, err := str(path, m, "operator")
		if err != nil {
			return nil, err
		}
		var val any
		if raw, ok := m["value"]; ok {
			if list, isList := raw.([]any); isList {
				val, err = int64List(path+"/value", list)
			} else {
				val, err = scalar(path+"/value", raw)
			}
			if err != nil {
				return nil, err
			}
		}
		return &Field{Field: ref, Operator: op, Value: val}, nil
	case TypeTime:
		ref, err := fieldRef(path+"/field", m["field"])
		if err != nil {
			return nil, err
		}
		op, err := str(path, m, "operator")
		if err != nil {
			return nil, err
		}
		list, ok := m["values"].([]any)
		if !ok {
			return nil, &DecodeError{Path: path + "/values", Message: "expected array"}
		}
		values, err := int64List(path+"/values", list)
		if err != nil {
			return nil, err
		}
		return &Time{Field: ref, Operator: op, Values: values}, nil
	case TypeNegation:
		arg, err := decodeNode(path+"/arg", m["arg"])
		if err != nil {
			return nil, err
		}
		return &Negation{Arg: arg}, nil
	case TypeSubselection:
		name, err := str(path, m, "dimension")
		if err != nil {
			return nil, err
		}
		dim, err := constraint.ParseDimension(name)
		if err != nil {
			return nil, &DecodeError{Path: path + "/dimension", Message: err.Error()}
		}
		inner, err := decodeNode(path+"/constraint", m["constraint"])
		if err != nil {
			return nil, err
		}
		return &Subselection{Dimension: dim, Constraint: inner}, nil
	case TypeAnd, TypeOr:
		list, ok := m["args"].([]any)
		if !ok {
			return nil, &DecodeError{Path: path + "/args", Message: "expected array"}
		}
		c := &Combination{Op: OpAnd, Args: make([]Node, 0, len(list))}
		if t == TypeOr {
			c.Op = OpOr
		}
		for i, raw := range list {
			arg, err := decodeNode(fmt.Sprintf("%s/args/%d", path, i), raw)
			if err != nil {
				return nil, err
			}
			c.Args = append(c.Args, arg)
		}
		if c.Meta, err = meta(path, m); err != nil {
			return nil, err
		}
		return c, nil
	case TypeConcept:
		code, err := str(path, m, "conceptCode")
		if err != nil {
			return nil, err
		}
		c := &Concept{ConceptCode: code}
		if c.Meta, err = meta(path, m); err != nil {
			return nil, err
		}
		return c, nil
	case TypeStudyName:
		id, err := str(path, m, "studyId")
		if err != nil {
			return nil, err
		}
		return &StudyName{StudyID: id}, nil
	case TypePatientSet:
		ps := &PatientSet{}
		if ps.SubjectIDs, err = optStrings(path, m, "subjectIds"); err != nil {
			return nil, err
		}
		if ps.PatientIDs, err = optStrings(path, m, "patientIds"); err != nil {
			return nil, err
		}
		if raw, ok := m["patientSetId"]; ok {
			if ps.PatientSetID, err = toInt64(path+"/patientSetId", raw); err != nil {
				return nil, err
			}
		}
		return ps, nil
	case TypeRelation:
		inner, err := decodeNode(path+"/relatedSubjectsConstraint", m["relatedSubjectsConstraint"])
		if err != nil {
			return nil, err
		}
		label, err := str(path, m, "relationTypeLabel")
		if err != nil {
			return nil, err
		}
		r := &Relation{RelatedSubjectsConstraint: inner, RelationTypeLabel: label}
		if r.Biological, err = optBool(path, m, "biological"); err != nil {
			return nil, err
		}
		if r.ShareHousehold, err = optBool(path, m, "shareHousehold"); err != nil {
			return nil, err
		}
		return r, nil
	}
	return nil, &DecodeError{Path: path, Message: fmt.Sprintf("unhandled node type %q", tag)}
}

func asObject(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

func checkKeys(path string, m map[string]any, allowed []string) error {
	for k := range m {
		if k == "type" {
			continue
		}
		found := false
		for _, a := range allowed {
			if a == k {
				found = true
				break
			}
		}
		if !found {
			return &DecodeError{Path: path + "/" + k, Message: "unknown field"}
		}
	}
	return nil
}

func str(path string, m map[string]any, key string) (string, error) {
	raw, ok := m[key]
	if !ok {
		return "", &DecodeError{Path: path + "/" + key, Message: "missing field"}
	}
	s, ok := raw.(string)
	if !ok {
		return "", &DecodeError{Path: path + "/" + key, Message: fmt.Sprintf("expected string, got %T", raw)}
	}
	return s, nil
}

func valueType(path string, m map[string]any, key string) (constraint.ValueType, error) {
	s, err := str(path, m, key)
	if err != nil {
		return constraint.TypeNone, err
	}
	vt, err := constraint.ParseValueType(s)
	if err != nil {
		return constraint.TypeNone, &DecodeError{Path: path + "/" + key, Message: err.Error()}
	}
	return vt, nil
}

func fieldRef(path string, v any) (FieldRef, error) {
	m, ok := asObject(v)
	if !ok {
		return FieldRef{}, &DecodeError{Path: path, Message: fmt.Sprintf("expected object, got %T", v)}
	}
	if err := checkKeys(path, m, []string{"dimension", "fieldName", "type"}); err != nil {
		return FieldRef{}, err
	}
	name, err := str(path, m, "dimension")
	if err != nil {
		return FieldRef{}, err
	}
	dim, err := constraint.ParseDimension(name)
	if err != nil {
		return FieldRef{}, &DecodeError{Path: path + "/dimension", Message: err.Error()}
	}
	fieldName, err := str(path, m, "fieldName")
	if err != nil {
		return FieldRef{}, err
	}
	vt, err := valueType(path, m, "type")
	if err != nil {
		return FieldRef{}, err
	}
	return FieldRef{Dimension: dim, FieldName: fieldName, Type: vt}, nil
}

func meta(path string, m map[string]any) (*ConceptMeta, error) {
	_, hasName := m["name"]
	_, hasFull := m["fullName"]
	_, hasType := m["valueType"]
	if !hasName && !hasFull && !hasType {
		return nil, nil
	}
	out := &ConceptMeta{}
	var err error
	if out.Name, err = str(path, m, "name"); err != nil {
		return nil, err
	}
	if out.FullName, err = str(path, m, "fullName"); err != nil {
		return nil, err
	}
	if out.ValueType, err = str(path, m, "valueType"); err != nil {
		return nil, err
	}
	return out, nil
}

// scalar normalizes a decoded scalar. Numbers become float64 so that values
// decoded from JSON and YAML compare equal.
func scalar(path string, v any) (any, error) {
	switch val := v.(type) {
	case string, bool:
		return val, nil
	case nil:
		return nil, &DecodeError{Path: path, Message: "missing value"}
	default:
		f, ok := toFloat(val)
		if !ok {
			return nil, &DecodeError{Path: path, Message: fmt.Sprintf("expected scalar, got %T", v)}
		}
		return f, nil
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func toInt64(path string, v any) (int64, error) {
	switch n := v.(type) {
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, &DecodeError{Path: path, Message: fmt.Sprintf("expected integer, got %s", n)}
		}
		return i, nil
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case float64:
		if n != math.Trunc(n) {
			return 0, &DecodeError{Path: path, Message: fmt.Sprintf("expected integer, got %v", n)}
		}
		return int64(n), nil
	}
	return 0, &DecodeError{Path: path, Message: fmt.Sprintf("expected integer, got %T", v)}
}

func int64List(path string, list []any) ([]int64, error) {
	out := make([]int64, 0, len(list))
	for i, raw := range list {
		n, err := toInt64(fmt.Sprintf("%s/%d", path, i), raw)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func optStrings(path string, m map[string]any, key string) ([]string, error) {
	raw, ok := m[key]
	if !ok {
		return nil, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, &DecodeError{Path: path + "/" + key, Message: "expected array"}
	}
	out := make([]string, 0, len(list))
	for i, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, &DecodeError{Path: fmt.Sprintf("%s/%s/%d", path, key, i), Message: fmt.Sprintf("expected string, got %T", item)}
		}
		out = append(out, s)
	}
	return out, nil
}

func optBool(path string, m map[string]any, key string) (*bool, error) {
	raw, ok := m[key]
	if !ok {
		return nil, nil
	}
	b, ok := raw.(bool)
	if !ok {
		return nil, &DecodeError{Path: path + "/" + key, Message: fmt.Sprintf("expected bool, got %T", raw)}
	}
	return &b, nil
}
