// Package statistics builds per-column histograms over stored tables and turns
// them into selectivity, cardinality and scan cost estimates for the planner.
package statistics

import (
	"fmt"
	"math"

	"github.com/sushant-115/gojostore/core/tuple"
)

// IntHistogram is a fixed-width histogram over the integer domain [min, max].
// The bucket count never exceeds the number of integers in the domain, so
// every bucket is at least one value wide.
type IntHistogram struct {
	min, max int64
	width    float64
	counts   []int64
	total    int64
}

// NewIntHistogram creates a histogram of up to buckets buckets over [min, max].
// A reversed range is treated as the single value min.
func NewIntHistogram(buckets int, min, max int64) *IntHistogram {
	if max < min {
		max = min
	}
	if buckets < 1 {
		buckets = 1
	}
	span := float64(max) - float64(min) + 1
	if float64(buckets) > span {
		buckets = int(span)
	}
	return &IntHistogram{
		min:    min,
		max:    max,
		width:  span / float64(buckets),
		counts: make([]int64, buckets),
	}
}

func (h *IntHistogram) bucket(v int64) int {
	i := int((float64(v) - float64(h.min)) / h.width)
	switch {
	case i < 0:
		return 0
	case i >= len(h.counts):
		return len(h.counts) - 1
	}
	return i
}

// AddValue counts v. Values outside the domain land in the nearest edge bucket.
func (h *IntHistogram) AddValue(v int64) {
	h.counts[h.bucket(v)]++
	h.total++
}

func (h *IntHistogram) Total() int64 { return h.total }

func (h *IntHistogram) NumBuckets() int { return len(h.counts) }

// EstimateSelectivity returns the estimated fraction of values satisfying
// "value op v", always within [0, 1].
func (h *IntHistogram) EstimateSelectivity(op tuple.Op, v int64) float64 {
	if h.total == 0 {
		return 0
	}
	var sel float64
	switch op {
	case tuple.Equals:
		sel = h.equals(v)
	case tuple.NotEquals:
		sel = 1 - h.equals(v)
	case tuple.GreaterThan:
		sel = h.greater(v)
	case tuple.GreaterThanOrEq:
		if v <= h.min {
			sel = 1
		} else {
			sel = h.greater(v - 1)
		}
	case tuple.LessThan:
		if v <= h.min {
			sel = 0
		} else {
			sel = 1 - h.greater(v-1)
		}
	case tuple.LessThanOrEq:
		sel = 1 - h.greater(v)
	default:
		return 0
	}
	return clamp01(sel)
}

func (h *IntHistogram) equals(v int64) float64 {
	if v < h.min || v > h.max {
		return 0
	}
	return float64(h.counts[h.bucket(v)]) / h.width / float64(h.total)
}

// greater estimates the fraction strictly above v: the part of v's bucket to
// its right, interpolated, plus every bucket further right.
func (h *IntHistogram) greater(v int64) float64 {
	if v < h.min {
		return 1
	}
	if v >= h.max {
		return 0
	}
	i := h.bucket(v)
	right := float64(h.min) + float64(i+1)*h.width
	part := math.Max(0, (right-float64(v)-1)/h.width)

	matched := part * float64(h.counts[i])
	for _, c := range h.counts[i+1:] {
		matched += float64(c)
	}
	return matched / float64(h.total)
}

// AvgSelectivity is the expected equality selectivity of a value drawn from
// the histogram itself.
func (h *IntHistogram) AvgSelectivity() float64 {
	if h.total == 0 {
		return 0
	}
	n := float64(h.total)
	var sum float64
	for _, c := range h.counts {
		p := float64(c) / n
		sum += p * (float64(c) / h.width / n)
	}
	return clamp01(sum)
}

func (h *IntHistogram) String() string {
	return fmt.Sprintf("IntHistogram[%d..%d, %d buckets, width %.2f, %d values]", h.min, h.max, len(h.counts), h.width, h.total)
}

func clamp01(x float64) float64 {
	switch {
	case math.IsNaN(x), x < 0:
		return 0
	case x > 1:
		return 1
	}
	return x
}
