package internaltelemetry

import (
	"go.opentelemetry.io/otel/metric"
)

// BufferPoolMetrics holds all the metric instruments for the buffer pool and
// its lock waits.
type BufferPoolMetrics struct {
	PageRequestsCounter     metric.Int64Counter
	EvictionsCounter        metric.Int64Counter
	LockWaitHistogram       metric.Int64Histogram
	TxnOutcomesCounter      metric.Int64Counter
	ResidentPagesUpDownCntr metric.Int64UpDownCounter
}

// NewBufferPoolMetrics creates and registers all the metrics for the buffer pool.
func NewBufferPoolMetrics(meter metric.Meter) (*BufferPoolMetrics, error) {
	pageRequests, err := meter.Int64Counter(
		"gojostore.bufferpool.page_requests_total",
		metric.WithDescription("Page fetches served, labelled by cache hit or miss."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	evictions, err := meter.Int64Counter(
		"gojostore.bufferpool.evictions_total",
		metric.WithDescription("Clean pages evicted to make room."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	lockWait, err := meter.Int64Histogram(
		"gojostore.bufferpool.lock_wait",
		metric.WithDescription("Time spent waiting for a page lock."),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	outcomes, err := meter.Int64Counter(
		"gojostore.bufferpool.transactions_total",
		metric.WithDescription("Transactions completed, labelled by outcome."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	resident, err := meter.Int64UpDownCounter(
		"gojostore.bufferpool.resident_pages",
		metric.WithDescription("Pages currently cached."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	return &BufferPoolMetrics{
		PageRequestsCounter:     pageRequests,
		EvictionsCounter:        evictions,
		LockWaitHistogram:       lockWait,
		TxnOutcomesCounter:      outcomes,
		ResidentPagesUpDownCntr: resident,
	}, nil
}
