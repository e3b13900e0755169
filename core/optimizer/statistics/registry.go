package statistics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	pagemanager "github.com/sushant-115/gojostore/core/write_engine/page_manager"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Registry maps table names to their statistics. The planner reads it; an
// explicit ComputeAll or Replace rebuilds it.
type Registry struct {
	mu        sync.RWMutex
	stats     map[string]*TableStats
	collector *Collector
}

func NewRegistry(collector *Collector) *Registry {
	return &Registry{stats: make(map[string]*TableStats), collector: collector}
}

func (r *Registry) Get(table string) (*TableStats, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ts, ok := r.stats[table]
	return ts, ok
}

func (r *Registry) Set(table string, ts *TableStats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats[table] = ts
}

// Replace swaps in stats wholesale; the map is copied.
func (r *Registry) Replace(stats map[string]*TableStats) {
	next := make(map[string]*TableStats, len(stats))
	for k, v := range stats {
		next[k] = v
	}
	r.mu.Lock()
	r.stats = next
	r.mu.Unlock()
}

// Snapshot returns a copy of the current table name to stats mapping.
func (r *Registry) Snapshot() map[string]*TableStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*TableStats, len(r.stats))
	for k, v := range r.stats {
		out[k] = v
	}
	return out
}

// ComputeAll builds statistics for every catalog table, up to the collector's
// parallelism at a time, and replaces the registry contents only if every
// build succeeds.
func (r *Registry) ComputeAll(ctx context.Context) error {
	if r.collector == nil {
		return fmt.Errorf("statistics registry has no collector")
	}
	c := r.collector
	runID := uuid.New()
	start := time.Now()
	logger := c.logger.With(zap.Stringer("run_id", runID))

	ids := c.catalog.TableIDs()
	results := make([]*TableStats, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Parallelism)
	for i, id := range ids {
		g.Go(func() error {
			ts, err := c.Build(gctx, id)
			if err != nil {
				return fmt.Errorf("table %d: %w", id, err)
			}
			results[i] = ts
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error("statistics run failed", zap.Error(err))
		return err
	}

	next := make(map[string]*TableStats, len(results))
	for _, ts := range results {
		next[ts.TableName] = ts
	}
	r.Replace(next)
	logger.Info("statistics run complete",
		zap.Int("tables", len(next)),
		zap.Duration("took", time.Since(start)))
	return nil
}

// Compute rebuilds the statistics of one table.
func (r *Registry) Compute(ctx context.Context, table pagemanager.TableID) (*TableStats, error) {
	if r.collector == nil {
		return nil, fmt.Errorf("statistics registry has no collector")
	}
	ts, err := r.collector.Build(ctx, table)
	if err != nil {
		return nil, err
	}
	r.Set(ts.TableName, ts)
	return ts, nil
}
