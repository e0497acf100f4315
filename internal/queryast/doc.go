// Package queryast defines the query document consumed by the tabular-data
// backend.
//
// The document is a tree of nodes tagged by a "type" field:
//
//	{"type": "and", "args": [
//	    {"type": "concept", "conceptCode": "C1"},
//	    {"type": "value", "valueType": "NUMERIC", "operator": ">", "value": 5}
//	]}
//
// SEALED INTERFACE:
//
// Node is sealed with a marker method, so backends and rewriters can switch
// exhaustively over the node kinds:
//
//	switch n := node.(type) {
//	case *True:
//	case *Combination:
//	...
//	}
//
// Only pointer types implement Node.
//
// WIRE SHAPES:
//
//	True          {type: true}
//	Value         {type: value, valueType, operator, value}
//	Field         {type: field, field: {dimension, fieldName, type}, operator, value}
//	Time          {type: time, field: {...}, operator, values: [epoch ms...]}
//	Negation      {type: negation, arg}
//	Subselection  {type: subselection, dimension, constraint}
//	Combination   {type: and|or, args: [...]}
//	Concept       {type: concept, conceptCode}
//	StudyName     {type: study_name, studyId}
//	PatientSet    {type: patient_set, subjectIds | patientIds | patientSetId}
//	Relation      {type: relation, relatedSubjectsConstraint, relationTypeLabel,
//	               biological?, shareHousehold?}
//
// Concept-derived nodes (Concept and the Combination built for a concept
// constraint) may carry ConceptMeta; it is encoded as the extra keys name,
// fullName and valueType so that a stored document can be restored.
package queryast
