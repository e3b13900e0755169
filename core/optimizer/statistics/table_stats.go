package statistics

import (
	"fmt"

	"github.com/sushant-115/gojostore/core/tuple"
)

const (
	DefaultBuckets       = 100
	DefaultIOCostPerPage = 1000
)

// TableStats summarizes one table for cost estimation.
type TableStats struct {
	TableName     string
	NumPages      int
	NumTuples     int
	IOCostPerPage float64

	td   *tuple.TupleDesc
	ints map[int]*IntHistogram
	strs map[int]*StringHistogram
}

func (ts *TableStats) NumFields() int { return ts.td.NumFields() }

func (ts *TableStats) TupleDesc() *tuple.TupleDesc { return ts.td }

// EstimateScanCost is the cost of reading every page once, sequentially.
func (ts *TableStats) EstimateScanCost() float64 {
	return float64(ts.NumPages) * ts.IOCostPerPage
}

// EstimateCardinality is the number of tuples expected to pass a predicate of
// the given selectivity.
func (ts *TableStats) EstimateCardinality(selectivity float64) int {
	return int(selectivity * float64(ts.NumTuples))
}

// EstimateSelectivity estimates the fraction of tuples with "field op constant".
func (ts *TableStats) EstimateSelectivity(field int, op tuple.Op, constant tuple.Field) (float64, error) {
	if err := ts.checkField(field); err != nil {
		return 0, err
	}
	switch c := constant.(type) {
	case *tuple.IntField:
		h, ok := ts.ints[field]
		if !ok {
			return 0, fmt.Errorf("%w: field %d is %s, constant is INT", tuple.ErrTypeMismatch, field, ts.td.Types[field])
		}
		return h.EstimateSelectivity(op, c.Value), nil
	case *tuple.StringField:
		h, ok := ts.strs[field]
		if !ok {
			return 0, fmt.Errorf("%w: field %d is %s, constant is STRING", tuple.ErrTypeMismatch, field, ts.td.Types[field])
		}
		return h.EstimateSelectivity(op, c.Value), nil
	}
	return 0, fmt.Errorf("%w: unsupported constant %T", tuple.ErrTypeMismatch, constant)
}

// AvgSelectivity estimates the selectivity of "field op ?" when the constant
// is unknown. Equality uses the histogram average and <> its complement. The
// range operators return a flat 0.5 rather than the equality average a plain
// histogram average would give, since a range predicate keeps about half the
// domain when nothing is known about the constant.
func (ts *TableStats) AvgSelectivity(field int, op tuple.Op) (float64, error) {
	if err := ts.checkField(field); err != nil {
		return 0, err
	}
	var eq float64
	if h, ok := ts.ints[field]; ok {
		eq = h.AvgSelectivity()
	} else {
		eq = ts.strs[field].AvgSelectivity()
	}
	switch op {
	case tuple.Equals:
		return eq, nil
	case tuple.NotEquals:
		return clamp01(1 - eq), nil
	default:
		return 0.5, nil
	}
}

// Histogram returns the histogram of field as *IntHistogram or *StringHistogram.
func (ts *TableStats) Histogram(field int) (fmt.Stringer, error) {
	if err := ts.checkField(field); err != nil {
		return nil, err
	}
	if h, ok := ts.ints[field]; ok {
		return h, nil
	}
	return ts.strs[field], nil
}

func (ts *TableStats) checkField(field int) error {
	if field < 0 || field >= ts.td.NumFields() {
		return fmt.Errorf("field %d out of range for %d fields", field, ts.td.NumFields())
	}
	return nil
}
