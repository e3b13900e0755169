// Package tuple holds the row model shared by storage files and the statistics
// collector: typed fields, predicate operators and schema descriptors.
package tuple

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Type is the storage type of a field.
type Type uint8

const (
	IntType Type = iota + 1
	StringType
)

func (t Type) String() string {
	switch t {
	case IntType:
		return "INT"
	case StringType:
		return "STRING"
	default:
		return fmt.Sprintf("Type(%d)", uint8(t))
	}
}

// Op is a comparison operator in a predicate "field op constant".
type Op int

const (
	Equals Op = iota
	NotEquals
	LessThan
	LessThanOrEq
	GreaterThan
	GreaterThanOrEq
)

var opSymbols = map[Op]string{
	Equals:          "=",
	NotEquals:       "<>",
	LessThan:        "<",
	LessThanOrEq:    "<=",
	GreaterThan:     ">",
	GreaterThanOrEq: ">=",
}

func (op Op) String() string {
	if s, ok := opSymbols[op]; ok {
		return s
	}
	return fmt.Sprintf("Op(%d)", int(op))
}

// ParseOp accepts the symbols printed by Op.String plus "==" and "!=".
func ParseOp(s string) (Op, error) {
	switch strings.TrimSpace(s) {
	case "=", "==":
		return Equals, nil
	case "<>", "!=":
		return NotEquals, nil
	case "<":
		return LessThan, nil
	case "<=":
		return LessThanOrEq, nil
	case ">":
		return GreaterThan, nil
	case ">=":
		return GreaterThanOrEq, nil
	}
	return 0, fmt.Errorf("unknown operator %q", s)
}

var ErrTypeMismatch = errors.New("field type mismatch")

// Field is a single typed value of a tuple.
type Field interface {
	Type() Type
	Compare(op Op, other Field) (bool, error)
	String() string
}

type IntField struct {
	Value int64
}

func NewIntField(v int64) *IntField { return &IntField{Value: v} }

func (f *IntField) Type() Type { return IntType }

func (f *IntField) String() string { return strconv.FormatInt(f.Value, 10) }

func (f *IntField) Compare(op Op, other Field) (bool, error) {
	o, ok := other.(*IntField)
	if !ok {
		return false, fmt.Errorf("%w: INT compared with %s", ErrTypeMismatch, other.Type())
	}
	return compareOrdered(op, f.Value, o.Value)
}

type StringField struct {
	Value string
}

func NewStringField(v string) *StringField { return &StringField{Value: v} }

func (f *StringField) Type() Type { return StringType }

func (f *StringField) String() string { return f.Value }

func (f *StringField) Compare(op Op, other Field) (bool, error) {
	o, ok := other.(*StringField)
	if !ok {
		return false, fmt.Errorf("%w: STRING compared with %s", ErrTypeMismatch, other.Type())
	}
	return compareOrdered(op, f.Value, o.Value)
}

func compareOrdered[T int64 | string](op Op, a, b T) (bool, error) {
	switch op {
	case Equals:
		return a == b, nil
	case NotEquals:
		return a != b, nil
	case LessThan:
		return a < b, nil
	case LessThanOrEq:
		return a <= b, nil
	case GreaterThan:
		return a > b, nil
	case GreaterThanOrEq:
		return a >= b, nil
	}
	return false, fmt.Errorf("unsupported operator %v", op)
}

// ParseField parses s as a value of type t.
func ParseField(t Type, s string) (Field, error) {
	switch t {
	case IntType:
		v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse int field %q: %w", s, err)
		}
		return NewIntField(v), nil
	case StringType:
		return NewStringField(s), nil
	}
	return nil, fmt.Errorf("unsupported field type %v", t)
}

// ParseType accepts the names printed by Type.String, case-insensitively.
func ParseType(s string) (Type, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "INT", "INTEGER":
		return IntType, nil
	case "STRING", "TEXT":
		return StringType, nil
	}
	return 0, fmt.Errorf("unknown field type %q", s)
}
