package internaltelemetry

import "go.opentelemetry.io/otel/metric"

// StatisticsMetrics holds the instruments for table statistics builds.
type StatisticsMetrics struct {
	BuildLatencyHistogram metric.Int64Histogram
	TablesAnalyzedCounter metric.Int64Counter
	TuplesScannedCounter  metric.Int64Counter
}

func NewStatisticsMetrics(meter metric.Meter) (*StatisticsMetrics, error) {
	latency, err := meter.Int64Histogram(
		"gojostore.statistics.build_duration",
		metric.WithDescription("Time to build the statistics of one table."),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	tables, err := meter.Int64Counter(
		"gojostore.statistics.tables_analyzed_total",
		metric.WithDescription("Tables whose statistics were rebuilt, labelled by result."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	tuples, err := meter.Int64Counter(
		"gojostore.statistics.tuples_scanned_total",
		metric.WithDescription("Tuples read while building statistics."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	return &StatisticsMetrics{
		BuildLatencyHistogram: latency,
		TablesAnalyzedCounter: tables,
		TuplesScannedCounter:  tuples,
	}, nil
}
