package statistics

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/sushant-115/gojostore/core/transaction"
	"github.com/sushant-115/gojostore/core/tuple"
	flushmanager "github.com/sushant-115/gojostore/core/write_engine/flush_manager"
	pagemanager "github.com/sushant-115/gojostore/core/write_engine/page_manager"
	internaltelemetry "github.com/sushant-115/gojostore/internal/telemetry"
	"github.com/sushant-115/gojostore/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type Config struct {
	// Buckets is the histogram bucket count per field.
	Buckets int `yaml:"buckets"`
	// IOCostPerPage is the assumed cost of reading one page.
	IOCostPerPage float64 `yaml:"io_cost_per_page"`
	// Parallelism bounds how many tables ComputeAll scans at once.
	Parallelism int `yaml:"parallelism"`
}

func DefaultConfig() Config {
	return Config{Buckets: DefaultBuckets, IOCostPerPage: DefaultIOCostPerPage, Parallelism: 4}
}

// ScanFinisher ends the transaction a build scanned under, typically by
// committing it so its shared locks are released.
type ScanFinisher func(ctx context.Context, txn transaction.ID) error

// Collector scans tables and builds their TableStats.
type Collector struct {
	cfg     Config
	catalog flushmanager.Catalog
	finish  ScanFinisher

	logger  *zap.Logger
	tracer  trace.Tracer
	metrics *internaltelemetry.StatisticsMetrics
}

type CollectorOption func(*Collector)

func WithScanFinisher(fn ScanFinisher) CollectorOption {
	return func(c *Collector) { c.finish = fn }
}

func NewCollector(cfg Config, catalog flushmanager.Catalog, logger *zap.Logger, tel *telemetry.Telemetry, opts ...CollectorOption) (*Collector, error) {
	if cfg.Buckets <= 0 {
		cfg.Buckets = DefaultBuckets
	}
	if cfg.IOCostPerPage <= 0 {
		cfg.IOCostPerPage = DefaultIOCostPerPage
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if tel == nil {
		tel = telemetry.Noop()
	}
	metrics, err := internaltelemetry.NewStatisticsMetrics(tel.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to register statistics metrics: %w", err)
	}
	c := &Collector{
		cfg:     cfg,
		catalog: catalog,
		logger:  logger.Named("statistics"),
		tracer:  tel.Tracer,
		metrics: metrics,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// fieldRange tracks the observed bounds of one field, strings by StringCode.
type fieldRange struct {
	lo, hi int64
}

func fieldCode(f tuple.Field) (int64, error) {
	switch v := f.(type) {
	case *tuple.IntField:
		return v.Value, nil
	case *tuple.StringField:
		return StringCode(v.Value), nil
	}
	return 0, fmt.Errorf("%w: unsupported field %T", tuple.ErrTypeMismatch, f)
}

// Build scans table twice: once for per-field bounds and the tuple count, then
// again to fill the histograms.
func (c *Collector) Build(ctx context.Context, table pagemanager.TableID) (ts *TableStats, err error) {
	ctx, span := c.tracer.Start(ctx, "Statistics.Build", trace.WithAttributes(attribute.Int("table", int(table))))
	defer span.End()
	start := time.Now()
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, "build failed")
		}
		c.metrics.BuildLatencyHistogram.Record(ctx, time.Since(start).Milliseconds())
		c.metrics.TablesAnalyzedCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
	}()

	file, err := c.catalog.DBFile(table)
	if err != nil {
		return nil, err
	}
	name, err := c.catalog.TableName(table)
	if err != nil {
		return nil, err
	}
	pages, err := file.NumPages(ctx)
	if err != nil {
		return nil, err
	}

	txn := transaction.NewID()
	if c.finish != nil {
		defer func() {
			if ferr := c.finish(ctx, txn); ferr != nil && err == nil {
				ts, err = nil, ferr
			}
		}()
	}

	td := file.TupleDesc()
	it := file.Iterator(ctx, txn)
	defer it.Close()

	ranges := make([]fieldRange, td.NumFields())
	for i := range ranges {
		ranges[i] = fieldRange{lo: math.MaxInt64, hi: math.MinInt64}
	}
	tuples := 0
	for {
		t, ok, err := it.Next()
		if err != nil {
			return nil, fmt.Errorf("scan table %s: %w", name, err)
		}
		if !ok {
			break
		}
		tuples++
		for i, f := range t.Fields {
			code, err := fieldCode(f)
			if err != nil {
				return nil, err
			}
			ranges[i].lo = min(ranges[i].lo, code)
			ranges[i].hi = max(ranges[i].hi, code)
		}
	}

	ts = &TableStats{
		TableName:     name,
		NumPages:      pages,
		NumTuples:     tuples,
		IOCostPerPage: c.cfg.IOCostPerPage,
		td:            td,
		ints:          make(map[int]*IntHistogram),
		strs:          make(map[int]*StringHistogram),
	}
	for i, typ := range td.Types {
		lo, hi := ranges[i].lo, ranges[i].hi
		if tuples == 0 {
			lo, hi = 0, 0
		}
		if typ == tuple.StringType {
			ts.strs[i] = newStringHistogramCodes(c.cfg.Buckets, lo, hi)
		} else {
			ts.ints[i] = NewIntHistogram(c.cfg.Buckets, lo, hi)
		}
	}

	if err := it.Rewind(); err != nil {
		return nil, err
	}
	for {
		t, ok, err := it.Next()
		if err != nil {
			return nil, fmt.Errorf("scan table %s: %w", name, err)
		}
		if !ok {
			break
		}
		for i, f := range t.Fields {
			switch v := f.(type) {
			case *tuple.IntField:
				if h, ok := ts.ints[i]; ok {
					h.AddValue(v.Value)
				}
			case *tuple.StringField:
				if h, ok := ts.strs[i]; ok {
					h.AddValue(v.Value)
				}
			}
		}
	}

	c.metrics.TuplesScannedCounter.Add(ctx, int64(2*tuples))
	c.logger.Debug("table statistics built",
		zap.String("table", name),
		zap.Int("pages", pages),
		zap.Int("tuples", tuples),
		zap.Duration("took", time.Since(start)))
	return ts, nil
}
