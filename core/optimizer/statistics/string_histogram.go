package statistics

import "github.com/sushant-115/gojostore/core/tuple"

const stringCodeBytes = 4

// StringCode maps s to an integer preserving byte order over its first four
// bytes. Longer strings sharing a prefix get the same code.
func StringCode(s string) int64 {
	var code int64
	for i := 0; i < stringCodeBytes; i++ {
		code <<= 8
		if i < len(s) {
			code |= int64(s[i])
		}
	}
	return code
}

// StringHistogram buckets strings by their StringCode.
type StringHistogram struct {
	hist *IntHistogram
}

// NewStringHistogram covers the strings between lo and hi in code order.
func NewStringHistogram(buckets int, lo, hi string) *StringHistogram {
	return newStringHistogramCodes(buckets, StringCode(lo), StringCode(hi))
}

func newStringHistogramCodes(buckets int, lo, hi int64) *StringHistogram {
	return &StringHistogram{hist: NewIntHistogram(buckets, lo, hi)}
}

func (h *StringHistogram) AddValue(s string) { h.hist.AddValue(StringCode(s)) }

func (h *StringHistogram) EstimateSelectivity(op tuple.Op, s string) float64 {
	return h.hist.EstimateSelectivity(op, StringCode(s))
}

func (h *StringHistogram) AvgSelectivity() float64 { return h.hist.AvgSelectivity() }

func (h *StringHistogram) Total() int64 { return h.hist.Total() }

func (h *StringHistogram) String() string { return "String" + h.hist.String() }
