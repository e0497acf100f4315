// Package vocab maps domain enumerations to the query backend's wire tokens.
//
// The operator table is a closed bijection: every domain operator has exactly
// one token and every token exactly one operator. A lookup miss is an error,
// never a silent coercion.
package vocab

import (
	"fmt"

	"github.com/roach88/cohortq/internal/constraint"
)

// UnknownTokenError reports a value outside one of the closed tables.
type UnknownTokenError struct {
	Table string // "operator", "date operator", "value type"
	Value string
}

func (e *UnknownTokenError) Error() string {
	return fmt.Sprintf("unknown %s: %s", e.Table, e.Value)
}

var operatorTokens = map[constraint.Operator]string{
	constraint.OpLessThan:       "<",
	constraint.OpGreaterThan:    ">",
	constraint.OpEqual:          "=",
	constraint.OpNotEqual:       "!=",
	constraint.OpLessOrEqual:    "<=",
	constraint.OpGreaterOrEqual: ">=",
	constraint.OpIn:             "in",
	constraint.OpLike:           "like",
	constraint.OpContains:       "contains",
	constraint.OpBetween:        "<-->",
	constraint.OpBefore:         "<-",
	constraint.OpAfter:          "->",
	constraint.OpExists:         "exists",
}

var tokenOperators = invert(operatorTokens)

func invert(m map[constraint.Operator]string) map[string]constraint.Operator {
	out := make(map[string]constraint.Operator, len(m))
	for op, token := range m {
		out[token] = op
	}
	return out
}

// OperatorToken returns the wire token for op.
func OperatorToken(op constraint.Operator) (string, error) {
	token, ok := operatorTokens[op]
	if !ok {
		return "", &UnknownTokenError{Table: "operator", Value: op.String()}
	}
	return token, nil
}

// ParseOperatorToken maps a wire token back to its domain operator.
func ParseOperatorToken(token string) (constraint.Operator, error) {
	op, ok := tokenOperators[token]
	if !ok {
		return 0, &UnknownTokenError{Table: "operator", Value: token}
	}
	return op, nil
}

// DateOperatorToken returns the wire token used for a date mode.
// NOT_BETWEEN shares the BETWEEN token; the negation is applied by the caller.
func DateOperatorToken(mode constraint.DateOperator) (string, error) {
	switch mode {
	case constraint.DateBetween, constraint.DateNotBetween:
		return operatorTokens[constraint.OpBetween], nil
	case constraint.DateBefore:
		return operatorTokens[constraint.OpBefore], nil
	case constraint.DateAfter:
		return operatorTokens[constraint.OpAfter], nil
	}
	return "", &UnknownTokenError{Table: "date operator", Value: mode.String()}
}

// ParseDateOperatorToken maps a time-node token back to a date mode. The
// result is never DateNotBetween; callers detect that from an enclosing
// negation.
func ParseDateOperatorToken(token string) (constraint.DateOperator, error) {
	switch token {
	case operatorTokens[constraint.OpBetween]:
		return constraint.DateBetween, nil
	case operatorTokens[constraint.OpBefore]:
		return constraint.DateBefore, nil
	case operatorTokens[constraint.OpAfter]:
		return constraint.DateAfter, nil
	}
	return constraint.DateBetween, &UnknownTokenError{Table: "date operator", Value: token}
}

// ValueTypeName returns the wire name of a value type.
func ValueTypeName(t constraint.ValueType) (string, error) {
	if t == constraint.TypeNone {
		return "", &UnknownTokenError{Table: "value type", Value: t.String()}
	}
	name := t.String()
	if _, err := constraint.ParseValueType(name); err != nil {
		return "", &UnknownTokenError{Table: "value type", Value: name}
	}
	return name, nil
}

// ParseValueTypeName maps a wire value type name to the domain enumeration.
func ParseValueTypeName(name string) (constraint.ValueType, error) {
	t, err := constraint.ParseValueType(name)
	if err != nil || t == constraint.TypeNone {
		return constraint.TypeNone, &UnknownTokenError{Table: "value type", Value: name}
	}
	return t, nil
}
