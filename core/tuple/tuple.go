package tuple

import (
	"errors"
	"fmt"
	"strings"

	pagemanager "github.com/sushant-115/gojostore/core/write_engine/page_manager"
)

var ErrSchemaMismatch = errors.New("tuple does not match table schema")

// TupleDesc describes the schema of a table.
type TupleDesc struct {
	Types []Type
	Names []string
}

func NewTupleDesc(types []Type, names []string) *TupleDesc {
	if len(names) < len(types) {
		padded := make([]string, len(types))
		copy(padded, names)
		for i := len(names); i < len(types); i++ {
			padded[i] = fmt.Sprintf("f%d", i)
		}
		names = padded
	}
	return &TupleDesc{Types: types, Names: names[:len(types)]}
}

func (td *TupleDesc) NumFields() int { return len(td.Types) }

// FieldIndex resolves a field name to its position.
func (td *TupleDesc) FieldIndex(name string) (int, error) {
	for i, n := range td.Names {
		if n == name {
			return i, nil
		}
	}
	return -1, fmt.Errorf("no field named %q", name)
}

// RecordID locates a tuple on its page.
type RecordID struct {
	PageID pagemanager.PageID
	Slot   int
}

type Tuple struct {
	Fields   []Field
	RecordID *RecordID
}

func NewTuple(fields ...Field) *Tuple {
	return &Tuple{Fields: fields}
}

// Conforms reports whether t matches the schema field for field.
func (t *Tuple) Conforms(td *TupleDesc) error {
	if len(t.Fields) != td.NumFields() {
		return fmt.Errorf("%w: %d fields, want %d", ErrSchemaMismatch, len(t.Fields), td.NumFields())
	}
	for i, f := range t.Fields {
		if f == nil || f.Type() != td.Types[i] {
			return fmt.Errorf("%w: field %d", ErrSchemaMismatch, i)
		}
	}
	return nil
}

func (t *Tuple) String() string {
	parts := make([]string, len(t.Fields))
	for i, f := range t.Fields {
		parts[i] = f.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
