// Package engine assembles a single-node store from its configuration: page
// store, catalog, lock manager, buffer pool and statistics registry.
package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/sushant-115/gojostore/config"
	"github.com/sushant-115/gojostore/core/catalog"
	"github.com/sushant-115/gojostore/core/concurrency/lockmanager"
	"github.com/sushant-115/gojostore/core/optimizer/statistics"
	"github.com/sushant-115/gojostore/core/security/encryption"
	"github.com/sushant-115/gojostore/core/storage_engine/heap"
	"github.com/sushant-115/gojostore/core/tuple"
	"github.com/sushant-115/gojostore/core/write_engine/bufferpool"
	pagemanager "github.com/sushant-115/gojostore/core/write_engine/page_manager"
	"github.com/sushant-115/gojostore/pkg/logger"
	"github.com/sushant-115/gojostore/pkg/telemetry"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type Engine struct {
	cfg    config.Config
	logger *zap.Logger
	tel    *telemetry.Telemetry

	shutdownTel telemetry.ShutdownFunc
	store       heap.PageStore
	catalog     *catalog.Catalog
	locks       *lockmanager.LockManager
	pool        *bufferpool.BufferPoolManager
	stats       *statistics.Registry

	mu        sync.Mutex
	nextTable pagemanager.TableID
}

// Open builds an engine from cfg. A nil log is built from cfg.Logger.
func Open(ctx context.Context, cfg config.Config, log *zap.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if log == nil {
		l, err := logger.New(cfg.Logger)
		if err != nil {
			return nil, err
		}
		log = l
	}

	tel, shutdownTel, err := telemetry.New(cfg.Telemetry)
	if err != nil {
		return nil, err
	}

	store, err := openStore(ctx, cfg.Storage, log)
	if err != nil {
		return nil, multierr.Append(err, shutdownTel(ctx))
	}

	cat := catalog.New()
	locks := lockmanager.NewLockManager(log)
	pool, err := bufferpool.NewBufferPoolManager(cfg.BufferPool, cat, locks, log, tel)
	if err != nil {
		return nil, multierr.Combine(err, store.Close(), shutdownTel(ctx))
	}
	collector, err := statistics.NewCollector(cfg.Statistics, cat, log, tel, statistics.WithScanFinisher(pool.Commit))
	if err != nil {
		return nil, multierr.Combine(err, store.Close(), shutdownTel(ctx))
	}

	e := &Engine{
		cfg:         cfg,
		logger:      log.Named("engine"),
		tel:         tel,
		shutdownTel: shutdownTel,
		store:       store,
		catalog:     cat,
		locks:       locks,
		pool:        pool,
		stats:       statistics.NewRegistry(collector),
		nextTable:   1,
	}
	e.logger.Info("engine opened",
		zap.String("storage", cfg.Storage.Driver),
		zap.Int("pool_capacity", cfg.BufferPool.Capacity))
	return e, nil
}

// openStore builds the page store the storage section names, sealing pages
// when an encryption key is configured.
func openStore(ctx context.Context, cfg config.StorageConfig, log *zap.Logger) (heap.PageStore, error) {
	var store heap.PageStore
	switch cfg.Driver {
	case config.DriverSQLite:
		s, err := heap.OpenSQLiteStore(ctx, cfg.Path, log)
		if err != nil {
			return nil, err
		}
		store = s
	default:
		store = heap.NewMemStore()
	}
	if cfg.EncryptionKey == "" {
		return store, nil
	}
	key, err := encryption.ParseKey(cfg.EncryptionKey)
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("storage.encryption_key: %w", err), store.Close())
	}
	cipher, err := encryption.NewPageCipher(key)
	if err != nil {
		return nil, multierr.Append(err, store.Close())
	}
	return heap.NewEncryptedStore(store, cipher), nil
}

// CreateTable registers a heap table. Ids are handed out in creation order,
// so reopening a persistent store and creating the same tables in the same
// order finds their pages again.
func (e *Engine) CreateTable(name string, td *tuple.TupleDesc) (*heap.HeapFile, error) {
	if name == "" {
		return nil, fmt.Errorf("table name is required")
	}
	if td == nil || td.NumFields() == 0 {
		return nil, fmt.Errorf("table %q needs at least one field", name)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.catalog.TableID(name); err == nil {
		return nil, fmt.Errorf("table %q already exists", name)
	}

	id := e.nextTable
	e.nextTable++
	file := heap.NewHeapFile(id, td, e.store, e.cfg.Storage.SlotsPerPage)
	file.AttachPool(e.pool)
	e.catalog.AddTable(name, file)
	e.logger.Info("table created", zap.String("table", name), zap.Uint32("id", uint32(id)), zap.Int("fields", td.NumFields()))
	return file, nil
}

// Analyze rebuilds statistics for every table.
func (e *Engine) Analyze(ctx context.Context) error {
	return e.stats.ComputeAll(ctx)
}

func (e *Engine) Pool() *bufferpool.BufferPoolManager { return e.pool }
func (e *Engine) Catalog() *catalog.Catalog           { return e.catalog }
func (e *Engine) Locks() *lockmanager.LockManager     { return e.locks }
func (e *Engine) Stats() *statistics.Registry         { return e.stats }
func (e *Engine) Telemetry() *telemetry.Telemetry     { return e.tel }
func (e *Engine) Logger() *zap.Logger                 { return e.logger }

// Close releases the store and telemetry. Pages of transactions that never
// finished are not written.
func (e *Engine) Close(ctx context.Context) error {
	err := multierr.Combine(e.store.Close(), e.shutdownTel(ctx))
	_ = e.logger.Sync()
	return err
}
