package statistics

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sushant-115/gojostore/core/catalog"
	"github.com/sushant-115/gojostore/core/storage_engine/heap"
	"github.com/sushant-115/gojostore/core/transaction"
	"github.com/sushant-115/gojostore/core/tuple"
	flushmanager "github.com/sushant-115/gojostore/core/write_engine/flush_manager"
	pagemanager "github.com/sushant-115/gojostore/core/write_engine/page_manager"
	"go.uber.org/zap/zaptest"
)

var peopleDesc = tuple.NewTupleDesc([]tuple.Type{tuple.IntType, tuple.StringType}, []string{"age", "name"})

// loadTable writes rows straight to the store, bypassing any buffer pool.
func loadTable(t *testing.T, id pagemanager.TableID, rows int) *heap.HeapFile {
	t.Helper()
	ctx := context.Background()
	f := heap.NewHeapFile(id, peopleDesc, heap.NewMemStore(), 10)
	for i := 0; i < rows; i++ {
		tup := tuple.NewTuple(tuple.NewIntField(int64(i)), tuple.NewStringField(fmt.Sprintf("p%03d", i)))
		pages, err := f.InsertTuple(ctx, 1, tup)
		require.NoError(t, err)
		require.NoError(t, f.WritePage(ctx, pages[0]))
	}
	return f
}

func newCollector(t *testing.T, cat flushmanager.Catalog, opts ...CollectorOption) *Collector {
	t.Helper()
	c, err := NewCollector(Config{Buckets: 10, IOCostPerPage: 1000, Parallelism: 2}, cat, zaptest.NewLogger(t), nil, opts...)
	require.NoError(t, err)
	return c
}

func TestCollector_Build(t *testing.T) {
	cat := catalog.New()
	cat.AddTable("people", loadTable(t, 1, 100))
	c := newCollector(t, cat)

	ts, err := c.Build(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, "people", ts.TableName)
	assert.Equal(t, 100, ts.NumTuples)
	assert.Equal(t, 10, ts.NumPages)
	assert.Equal(t, 2, ts.NumFields())
	assert.Equal(t, 10000.0, ts.EstimateScanCost())
	assert.Equal(t, 30, ts.EstimateCardinality(0.3))
	assert.Equal(t, 0, ts.EstimateCardinality(0))

	sel, err := ts.EstimateSelectivity(0, tuple.GreaterThanOrEq, tuple.NewIntField(50))
	require.NoError(t, err)
	assert.InDelta(t, 0.5, sel, 0.1)

	sel, err = ts.EstimateSelectivity(1, tuple.Equals, tuple.NewStringField("zzz"))
	require.NoError(t, err)
	assert.Zero(t, sel)

	avg, err := ts.AvgSelectivity(0, tuple.Equals)
	require.NoError(t, err)
	assert.InDelta(t, 0.01, avg, 1e-9)
	avg, err = ts.AvgSelectivity(0, tuple.NotEquals)
	require.NoError(t, err)
	assert.InDelta(t, 0.99, avg, 1e-9)
	for _, op := range []tuple.Op{tuple.LessThan, tuple.LessThanOrEq, tuple.GreaterThan, tuple.GreaterThanOrEq} {
		avg, err = ts.AvgSelectivity(0, op)
		require.NoError(t, err)
		assert.Equal(t, 0.5, avg, "%v", op)
	}

	h, err := ts.Histogram(1)
	require.NoError(t, err)
	assert.IsType(t, &StringHistogram{}, h)
}

func TestCollector_BadRequests(t *testing.T) {
	cat := catalog.New()
	cat.AddTable("people", loadTable(t, 1, 5))
	c := newCollector(t, cat)

	_, err := c.Build(context.Background(), 42)
	assert.ErrorIs(t, err, flushmanager.ErrTableNotFound)

	ts, err := c.Build(context.Background(), 1)
	require.NoError(t, err)
	_, err = ts.EstimateSelectivity(0, tuple.Equals, tuple.NewStringField("x"))
	assert.ErrorIs(t, err, tuple.ErrTypeMismatch)
	_, err = ts.EstimateSelectivity(5, tuple.Equals, tuple.NewIntField(1))
	assert.Error(t, err)
	_, err = ts.AvgSelectivity(-1, tuple.Equals)
	assert.Error(t, err)
}

func TestCollector_EmptyTable(t *testing.T) {
	cat := catalog.New()
	cat.AddTable("empty", heap.NewHeapFile(3, peopleDesc, heap.NewMemStore(), 10))
	c := newCollector(t, cat)

	ts, err := c.Build(context.Background(), 3)
	require.NoError(t, err)
	assert.Zero(t, ts.NumTuples)
	assert.Zero(t, ts.EstimateScanCost())
	sel, err := ts.EstimateSelectivity(0, tuple.LessThan, tuple.NewIntField(10))
	require.NoError(t, err)
	assert.Zero(t, sel)
}

func TestCollector_ScanFinisher(t *testing.T) {
	cat := catalog.New()
	cat.AddTable("people", loadTable(t, 1, 3))

	var finished []transaction.ID
	c := newCollector(t, cat, WithScanFinisher(func(_ context.Context, txn transaction.ID) error {
		finished = append(finished, txn)
		return nil
	}))
	_, err := c.Build(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, finished, 1)
	assert.NotEqual(t, transaction.InvalidID, finished[0])

	boom := errors.New("commit failed")
	c = newCollector(t, cat, WithScanFinisher(func(context.Context, transaction.ID) error { return boom }))
	_, err = c.Build(context.Background(), 1)
	assert.ErrorIs(t, err, boom)
}

// brokenStore claims one page but cannot read it.
type brokenStore struct{ *heap.MemStore }

func (brokenStore) ReadPage(context.Context, pagemanager.PageID) ([]byte, error) {
	return nil, fmt.Errorf("%w: sector unreadable", flushmanager.ErrIO)
}

func (brokenStore) NumPages(context.Context, pagemanager.TableID) (int, error) { return 1, nil }

func TestRegistry_ComputeAll(t *testing.T) {
	cat := catalog.New()
	cat.AddTable("people", loadTable(t, 1, 40))
	cat.AddTable("pets", loadTable(t, 2, 15))
	reg := NewRegistry(newCollector(t, cat))

	require.NoError(t, reg.ComputeAll(context.Background()))
	snap := reg.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, 40, snap["people"].NumTuples)

	pets, ok := reg.Get("pets")
	require.True(t, ok)
	assert.Equal(t, 15, pets.NumTuples)
	_, ok = reg.Get("nobody")
	assert.False(t, ok)

	// A failing table leaves the previous contents in place.
	cat.AddTable("broken", heap.NewHeapFile(3, peopleDesc, brokenStore{heap.NewMemStore()}, 10))
	err := reg.ComputeAll(context.Background())
	assert.ErrorIs(t, err, flushmanager.ErrIO)
	assert.Len(t, reg.Snapshot(), 2)
}

func TestRegistry_ReplaceAndSet(t *testing.T) {
	reg := NewRegistry(nil)
	fake := &TableStats{TableName: "fake", NumTuples: 7, td: peopleDesc}

	override := map[string]*TableStats{"fake": fake}
	reg.Replace(override)
	delete(override, "fake")
	got, ok := reg.Get("fake")
	require.True(t, ok, "Replace copies its input")
	assert.Same(t, fake, got)

	reg.Set("other", fake)
	snap := reg.Snapshot()
	assert.Len(t, snap, 2)
	delete(snap, "other")
	assert.Len(t, reg.Snapshot(), 2, "Snapshot returns a copy")

	assert.Error(t, reg.ComputeAll(context.Background()))
	_, err := reg.Compute(context.Background(), 1)
	assert.Error(t, err)
}

func TestRegistry_Compute(t *testing.T) {
	cat := catalog.New()
	cat.AddTable("people", loadTable(t, 1, 12))
	reg := NewRegistry(newCollector(t, cat))

	ts, err := reg.Compute(context.Background(), 1)
	require.NoError(t, err)
	got, ok := reg.Get("people")
	require.True(t, ok)
	assert.Same(t, ts, got)
}
