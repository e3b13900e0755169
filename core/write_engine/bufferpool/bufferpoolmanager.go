package bufferpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sushant-115/gojostore/core/concurrency/lockmanager"
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
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	DefaultCapacity     = 50
	DefaultLockTimeout  = 500 * time.Millisecond
	DefaultLockRetryMin = time.Millisecond
	DefaultLockRetryMax = 50 * time.Millisecond
)

// Config is fixed at construction.
type Config struct {
	// Capacity is the maximum number of cached pages.
	Capacity int `yaml:"capacity"`
	// LockTimeout bounds how long FetchPage waits for a page lock before the
	// transaction is aborted.
	LockTimeout time.Duration `yaml:"lock_timeout"`
	// LockRetryMin and LockRetryMax bound the backoff between lock attempts.
	LockRetryMin time.Duration `yaml:"lock_retry_min"`
	LockRetryMax time.Duration `yaml:"lock_retry_max"`
}

func DefaultConfig() Config {
	return Config{
		Capacity:     DefaultCapacity,
		LockTimeout:  DefaultLockTimeout,
		LockRetryMin: DefaultLockRetryMin,
		LockRetryMax: DefaultLockRetryMax,
	}
}

func (c Config) withDefaults() Config {
	if c.LockTimeout <= 0 {
		c.LockTimeout = DefaultLockTimeout
	}
	if c.LockRetryMin <= 0 {
		c.LockRetryMin = DefaultLockRetryMin
	}
	if c.LockRetryMax < c.LockRetryMin {
		c.LockRetryMax = c.LockRetryMin
	}
	return c
}

// BufferPoolManager caches pages for concurrent transactions under strict
// two-phase locking. It never writes a page dirtied by a running transaction
// (NO-STEAL), so an abort only has to reload the pages it dirtied.
type BufferPoolManager struct {
	mu      sync.Mutex
	cache   *lruCache
	cfg     Config
	catalog flushmanager.Catalog
	locks   *lockmanager.LockManager

	logger   *zap.Logger
	tracer   trace.Tracer
	metrics  *internaltelemetry.BufferPoolMetrics
	waitWarn rate.Sometimes
}

// NewBufferPoolManager creates a pool of cfg.Capacity pages. A nil logger or
// telemetry disables them.
func NewBufferPoolManager(cfg Config, catalog flushmanager.Catalog, locks *lockmanager.LockManager, logger *zap.Logger, tel *telemetry.Telemetry) (*BufferPoolManager, error) {
	if cfg.Capacity <= 0 {
		return nil, fmt.Errorf("%w: got %d", flushmanager.ErrInvalidPoolSize, cfg.Capacity)
	}
	if catalog == nil {
		return nil, errors.New("buffer pool requires a catalog")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if locks == nil {
		locks = lockmanager.NewLockManager(logger)
	}
	if tel == nil {
		tel = telemetry.Noop()
	}
	metrics, err := internaltelemetry.NewBufferPoolMetrics(tel.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to register buffer pool metrics: %w", err)
	}

	cfg = cfg.withDefaults()
	bpm := &BufferPoolManager{
		cache:    newLRUCache(cfg.Capacity),
		cfg:      cfg,
		catalog:  catalog,
		locks:    locks,
		logger:   logger.Named("bufferpool"),
		tracer:   tel.Tracer,
		metrics:  metrics,
		waitWarn: rate.Sometimes{First: 3, Interval: 10 * time.Second},
	}
	bpm.logger.Info("buffer pool initialized",
		zap.Int("capacity", cfg.Capacity),
		zap.Duration("lock_timeout", cfg.LockTimeout))
	return bpm, nil
}

// FetchPage returns pid for txn, locking it Shared for ReadOnly and Exclusive
// for ReadWrite. If the lock cannot be had within the configured timeout the
// call fails with ErrTransactionAborted and the cache is left untouched. A
// lock first taken by a call that then fails to load the page is released.
func (bpm *BufferPoolManager) FetchPage(ctx context.Context, txn transaction.ID, pid pagemanager.PageID, perm pagemanager.Permissions) (pagemanager.Page, error) {
	ctx, span := bpm.tracer.Start(ctx, "BufferPool.FetchPage", trace.WithAttributes(
		attribute.String("page", pid.String()),
		attribute.String("txn", txn.String()),
		attribute.String("perm", perm.String()),
	))
	defer span.End()

	_, alreadyHeld := bpm.locks.Mode(txn, pid)
	if err := bpm.acquireLock(ctx, txn, pid, lockmanager.ModeFor(perm)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "lock wait expired")
		return nil, err
	}

	page, err := bpm.loadPage(ctx, txn, pid)
	if err != nil {
		span.RecordError(err)
		if !alreadyHeld {
			bpm.locks.Release(txn, pid)
		}
		return nil, err
	}
	return page, nil
}

// loadPage serves pid from the cache or reads it from its file, evicting if
// the pool is full.
func (bpm *BufferPoolManager) loadPage(ctx context.Context, txn transaction.ID, pid pagemanager.PageID) (pagemanager.Page, error) {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	if h, ok := bpm.cache.lookup(pid); ok {
		bpm.cache.touch(h)
		bpm.metrics.PageRequestsCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "hit")))
		return bpm.cache.page(h), nil
	}
	bpm.metrics.PageRequestsCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "miss")))

	file, err := bpm.catalog.DBFile(pid.TableID)
	if err != nil {
		return nil, err
	}
	if bpm.cache.full() {
		if err := bpm.evictLocked(ctx); err != nil {
			return nil, err
		}
	}
	page, err := file.ReadPage(ctx, pid)
	if err != nil {
		return nil, fmt.Errorf("failed to read page %s: %w", pid, err)
	}
	bpm.cache.insert(page)
	bpm.metrics.ResidentPagesUpDownCntr.Add(ctx, 1)
	bpm.logger.Debug("page loaded", zap.Stringer("page", pid), zap.Stringer("txn", txn))
	return page, nil
}

// acquireLock polls the lock manager with exponential backoff. Neither the
// pool mutex nor the lock manager mutex is held while sleeping.
func (bpm *BufferPoolManager) acquireLock(ctx context.Context, txn transaction.ID, pid pagemanager.PageID, mode lockmanager.LockMode) error {
	if bpm.locks.Acquire(pid, txn, mode) {
		return nil
	}

	start := time.Now()
	waitCtx, cancel := context.WithTimeout(ctx, bpm.cfg.LockTimeout)
	defer cancel()

	delay := bpm.cfg.LockRetryMin
	timer := time.NewTimer(delay)
	defer timer.Stop()

	for {
		select {
		case <-waitCtx.Done():
			waited := time.Since(start)
			bpm.metrics.LockWaitHistogram.Record(ctx, waited.Milliseconds(),
				metric.WithAttributes(attribute.String("result", "timeout")))
			bpm.waitWarn.Do(func() {
				bpm.logger.Warn("lock wait expired, aborting transaction",
					zap.Stringer("txn", txn),
					zap.Stringer("page", pid),
					zap.Stringer("mode", mode),
					zap.Duration("waited", waited))
			})
			return fmt.Errorf("%w: %s waited %s for %s lock on page %s", flushmanager.ErrTransactionAborted, txn, waited.Round(time.Millisecond), mode, pid)
		case <-timer.C:
		}

		if bpm.locks.Acquire(pid, txn, mode) {
			bpm.metrics.LockWaitHistogram.Record(ctx, time.Since(start).Milliseconds(),
				metric.WithAttributes(attribute.String("result", "granted")))
			return nil
		}
		delay = min(delay*2, bpm.cfg.LockRetryMax)
		timer.Reset(delay)
	}
}

// evictLocked removes the least recently used clean page. Dirty pages belong
// to running transactions and are skipped. Must be called with bpm.mu held.
func (bpm *BufferPoolManager) evictLocked(ctx context.Context) error {
	victim := nilSlot
	bpm.cache.oldestFirst(func(h int, p pagemanager.Page) bool {
		if _, dirty := p.DirtyOwner(); dirty {
			return true
		}
		victim = h
		return false
	})
	if victim == nilSlot {
		bpm.logger.Warn("eviction failed, every cached page is dirty", zap.Int("size", bpm.cache.len()))
		return fmt.Errorf("%w: %d pages cached", flushmanager.ErrResourceExhausted, bpm.cache.len())
	}

	page := bpm.cache.page(victim)
	if err := bpm.flushLocked(ctx, page); err != nil {
		return err
	}
	bpm.cache.removeHandle(victim)
	bpm.metrics.EvictionsCounter.Add(ctx, 1)
	bpm.metrics.ResidentPagesUpDownCntr.Add(ctx, -1)
	bpm.logger.Debug("evicted page", zap.Stringer("page", page.ID()))
	return nil
}

// MutatePages records that txn modified pages: each is marked dirty and
// replaces any cached copy, becoming most recently used.
func (bpm *BufferPoolManager) MutatePages(ctx context.Context, txn transaction.ID, pages []pagemanager.Page) error {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	for _, p := range pages {
		p.MarkDirty(true, txn)
		if h, ok := bpm.cache.lookup(p.ID()); ok {
			bpm.cache.replace(h, p)
			bpm.cache.touch(h)
			continue
		}
		if bpm.cache.full() {
			if err := bpm.evictLocked(ctx); err != nil {
				return err
			}
		}
		bpm.cache.insert(p)
		bpm.metrics.ResidentPagesUpDownCntr.Add(ctx, 1)
	}
	return nil
}

// InsertTuple adds t to the table on behalf of txn and caches the pages the
// insert touched.
func (bpm *BufferPoolManager) InsertTuple(ctx context.Context, txn transaction.ID, table pagemanager.TableID, t *tuple.Tuple) error {
	file, err := bpm.catalog.DBFile(table)
	if err != nil {
		return err
	}
	pages, err := file.InsertTuple(ctx, txn, t)
	if err != nil {
		return err
	}
	return bpm.MutatePages(ctx, txn, pages)
}

// DeleteTuple removes t, located by its record id, from its table.
func (bpm *BufferPoolManager) DeleteTuple(ctx context.Context, txn transaction.ID, t *tuple.Tuple) error {
	if t == nil || t.RecordID == nil {
		return fmt.Errorf("%w: tuple has no record id", flushmanager.ErrTupleNotFound)
	}
	file, err := bpm.catalog.DBFile(t.RecordID.PageID.TableID)
	if err != nil {
		return err
	}
	pages, err := file.DeleteTuple(ctx, txn, t)
	if err != nil {
		return err
	}
	return bpm.MutatePages(ctx, txn, pages)
}

// DiscardPage drops pid from the cache without writing it.
func (bpm *BufferPoolManager) DiscardPage(pid pagemanager.PageID) {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()
	if bpm.cache.remove(pid) {
		bpm.metrics.ResidentPagesUpDownCntr.Add(context.Background(), -1)
		bpm.logger.Debug("discarded page", zap.Stringer("page", pid))
	}
}

// FlushPage writes pid to its file if dirty. The page may belong to a running
// transaction, in which case its uncommitted image becomes durable and a later
// Abort reloads that image; only use it outside open transactions.
func (bpm *BufferPoolManager) FlushPage(ctx context.Context, pid pagemanager.PageID) error {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	h, ok := bpm.cache.lookup(pid)
	if !ok {
		return fmt.Errorf("%w: %s", flushmanager.ErrPageNotFound, pid)
	}
	return bpm.flushLocked(ctx, bpm.cache.page(h))
}

// FlushPages writes every page dirtied by txn, stopping at the first failure.
func (bpm *BufferPoolManager) FlushPages(ctx context.Context, txn transaction.ID) error {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	for _, p := range bpm.dirtiedByLocked(txn) {
		if err := bpm.flushLocked(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// FlushAllPages writes every dirty page, including pages of transactions that
// are still running, so it bypasses NO-STEAL for them; call it when no
// transaction is open. It keeps going after a failure and returns all failures
// combined.
func (bpm *BufferPoolManager) FlushAllPages(ctx context.Context) error {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	var errs error
	bpm.cache.oldestFirst(func(_ int, p pagemanager.Page) bool {
		errs = multierr.Append(errs, bpm.flushLocked(ctx, p))
		return true
	})
	return errs
}

func (bpm *BufferPoolManager) flushLocked(ctx context.Context, p pagemanager.Page) error {
	if _, dirty := p.DirtyOwner(); !dirty {
		return nil
	}
	file, err := bpm.catalog.DBFile(p.ID().TableID)
	if err != nil {
		return err
	}
	if err := file.WritePage(ctx, p); err != nil {
		if !errors.Is(err, flushmanager.ErrIO) {
			err = fmt.Errorf("%w: %w", flushmanager.ErrIO, err)
		}
		bpm.logger.Error("failed to flush page", zap.Stringer("page", p.ID()), zap.Error(err))
		return fmt.Errorf("failed to flush page %s: %w", p.ID(), err)
	}
	p.MarkDirty(false, transaction.InvalidID)
	return nil
}

// dirtiedByLocked returns the cached pages txn has dirtied, oldest first.
func (bpm *BufferPoolManager) dirtiedByLocked(txn transaction.ID) []pagemanager.Page {
	var out []pagemanager.Page
	bpm.cache.oldestFirst(func(_ int, p pagemanager.Page) bool {
		if owner, dirty := p.DirtyOwner(); dirty && owner == txn {
			out = append(out, p)
		}
		return true
	})
	return out
}

// Commit makes txn's modifications durable and then releases its locks. On a
// write failure the locks stay held and the caller is expected to Abort.
func (bpm *BufferPoolManager) Commit(ctx context.Context, txn transaction.ID) error {
	ctx, span := bpm.tracer.Start(ctx, "BufferPool.Commit", trace.WithAttributes(attribute.String("txn", txn.String())))
	defer span.End()

	if err := bpm.FlushPages(ctx, txn); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "commit flush failed")
		bpm.metrics.TxnOutcomesCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "commit_failed")))
		return fmt.Errorf("commit %s: %w", txn, err)
	}
	released := bpm.locks.ReleaseAll(txn)
	bpm.metrics.TxnOutcomesCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", transaction.TxnStateCommitted.String())))
	bpm.logger.Info("transaction committed", zap.Stringer("txn", txn), zap.Int("locks_released", released))
	return nil
}

// Abort rolls back txn: every cached page it dirtied is reloaded from its
// file, keeping its recency position, and only then are its locks released.
// A page that cannot be reloaded is dropped from the cache instead, so the
// uncommitted version is never visible. Calling Abort twice is harmless.
func (bpm *BufferPoolManager) Abort(ctx context.Context, txn transaction.ID) error {
	ctx, span := bpm.tracer.Start(ctx, "BufferPool.Abort", trace.WithAttributes(attribute.String("txn", txn.String())))
	defer span.End()

	var errs error
	bpm.mu.Lock()
	restored := 0
	for _, p := range bpm.dirtiedByLocked(txn) {
		pid := p.ID()
		h, _ := bpm.cache.lookup(pid)
		clean, err := bpm.reloadLocked(ctx, pid)
		if err != nil {
			errs = multierr.Append(errs, err)
			bpm.cache.removeHandle(h)
			bpm.metrics.ResidentPagesUpDownCntr.Add(ctx, -1)
			bpm.logger.Warn("failed to restore page on abort, dropped it", zap.Stringer("page", pid), zap.Error(err))
			continue
		}
		bpm.cache.replace(h, clean)
		restored++
	}
	bpm.mu.Unlock()

	released := bpm.locks.ReleaseAll(txn)
	bpm.metrics.TxnOutcomesCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", transaction.TxnStateAborted.String())))
	bpm.logger.Info("transaction aborted",
		zap.Stringer("txn", txn),
		zap.Int("pages_restored", restored),
		zap.Int("locks_released", released))
	if errs != nil {
		span.RecordError(errs)
		return fmt.Errorf("abort %s: %w", txn, errs)
	}
	return nil
}

func (bpm *BufferPoolManager) reloadLocked(ctx context.Context, pid pagemanager.PageID) (pagemanager.Page, error) {
	file, err := bpm.catalog.DBFile(pid.TableID)
	if err != nil {
		return nil, err
	}
	p, err := file.ReadPage(ctx, pid)
	if err != nil {
		return nil, fmt.Errorf("failed to reload page %s: %w", pid, err)
	}
	return p, nil
}

// ReleasePage gives up txn's lock on pid before the transaction ends. Only
// callers that know the early release is safe should use it.
func (bpm *BufferPoolManager) ReleasePage(txn transaction.ID, pid pagemanager.PageID) error {
	if !bpm.locks.Release(txn, pid) {
		return fmt.Errorf("%w: %s on page %s", flushmanager.ErrLockNotHeld, txn, pid)
	}
	return nil
}

func (bpm *BufferPoolManager) HoldsLock(txn transaction.ID, pid pagemanager.PageID) bool {
	return bpm.locks.Holds(txn, pid)
}

// Size is the number of cached pages.
func (bpm *BufferPoolManager) Size() int {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()
	return bpm.cache.len()
}

func (bpm *BufferPoolManager) Capacity() int { return bpm.cfg.Capacity }

// CachedPageIDs lists cached pages, most recently used first.
func (bpm *BufferPoolManager) CachedPageIDs() []pagemanager.PageID {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()
	return bpm.cache.ids()
}
