package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"sync/atomic"
	"time"

	"github.com/sushant-115/gojostore/core/engine"
	"github.com/sushant-115/gojostore/core/tuple"
	flushmanager "github.com/sushant-115/gojostore/core/write_engine/flush_manager"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const ledgerTable = "ledger"

var ledgerDesc = tuple.NewTupleDesc([]tuple.Type{tuple.IntType, tuple.IntType}, []string{"worker", "seq"})

type WorkloadCmd struct {
	Workers    int     `help:"Concurrent writers" default:"4"`
	Txns       int     `help:"Transactions per writer" default:"50"`
	RowsPerTxn int     `name:"rows-per-txn" help:"Rows inserted by each transaction" default:"8"`
	AbortRatio float64 `name:"abort-ratio" help:"Fraction of transactions rolled back on purpose" default:"0.1"`
	Readers    int     `help:"Concurrent full-table scanners" default:"1"`
	Seed       uint64  `help:"Random seed" default:"7"`
}

type workloadResult struct {
	Committed   int64
	RolledBack  int64
	Conflicts   int64
	Scans       int64
	ScanAborts  int64
	VisibleRows int
	Took        time.Duration
}

func (c *WorkloadCmd) Run(ctx context.Context, g *Globals) (err error) {
	e, err := g.openEngine(ctx)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, e.Close(context.Background())) }()

	res, err := c.run(ctx, e)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "committed %d, rolled back %d, lock conflicts %d, scans %d (%d aborted), visible rows %d, took %s\n",
		res.Committed, res.RolledBack, res.Conflicts, res.Scans, res.ScanAborts, res.VisibleRows, res.Took.Round(time.Millisecond))
	if want := int(res.Committed) * c.RowsPerTxn; res.VisibleRows != want {
		return fmt.Errorf("visible rows %d, committed transactions account for %d", res.VisibleRows, want)
	}
	return nil
}

// run drives the writers and readers to completion, then counts the rows that
// survived. Writers that lose a lock race abort and move on.
func (c *WorkloadCmd) run(ctx context.Context, e *engine.Engine) (workloadResult, error) {
	var res workloadResult
	if _, err := e.CreateTable(ledgerTable, ledgerDesc); err != nil {
		return res, err
	}
	logger := e.Logger().Named("workload")
	start := time.Now()

	var committed, rolledBack, conflicts, scans, scanAborts atomic.Int64
	var writersDone atomic.Bool

	writers, wctx := errgroup.WithContext(ctx)
	for w := 0; w < c.Workers; w++ {
		rng := rand.New(rand.NewPCG(c.Seed, uint64(w)))
		writers.Go(func() error {
			for i := 0; i < c.Txns; i++ {
				outcome, err := c.writeTxn(wctx, e, w, i, rng)
				if err != nil {
					return err
				}
				switch outcome {
				case outcomeCommitted:
					committed.Add(1)
				case outcomeRolledBack:
					rolledBack.Add(1)
				case outcomeConflict:
					conflicts.Add(1)
				}
			}
			return nil
		})
	}

	readers, rctx := errgroup.WithContext(ctx)
	for r := 0; r < c.Readers; r++ {
		readers.Go(func() error {
			for !writersDone.Load() {
				txn := e.Begin()
				err := txn.Scan(rctx, ledgerTable, func(*tuple.Tuple) error { return nil })
				switch {
				case err == nil:
					if err := txn.Commit(rctx); err != nil {
						return err
					}
					scans.Add(1)
				case errors.Is(err, flushmanager.ErrTransactionAborted):
					if err := txn.Abort(rctx); err != nil {
						return err
					}
					scanAborts.Add(1)
				default:
					return multierr.Append(err, txn.Abort(rctx))
				}
				if rctx.Err() != nil {
					return rctx.Err()
				}
			}
			return nil
		})
	}

	werr := writers.Wait()
	writersDone.Store(true)
	if err := multierr.Append(werr, readers.Wait()); err != nil {
		return res, err
	}

	visible, err := countVisible(ctx, e, ledgerTable)
	if err != nil {
		return res, err
	}
	res = workloadResult{
		Committed:   committed.Load(),
		RolledBack:  rolledBack.Load(),
		Conflicts:   conflicts.Load(),
		Scans:       scans.Load(),
		ScanAborts:  scanAborts.Load(),
		VisibleRows: visible,
		Took:        time.Since(start),
	}
	logger.Info("workload finished",
		zap.Int64("committed", res.Committed),
		zap.Int64("rolled_back", res.RolledBack),
		zap.Int64("conflicts", res.Conflicts),
		zap.Int("visible_rows", res.VisibleRows))
	return res, nil
}

type txnOutcome int

const (
	outcomeCommitted txnOutcome = iota
	outcomeRolledBack
	outcomeConflict
)

func (c *WorkloadCmd) writeTxn(ctx context.Context, e *engine.Engine, worker, seq int, rng *rand.Rand) (txnOutcome, error) {
	txn := e.Begin()
	for r := 0; r < c.RowsPerTxn; r++ {
		_, err := txn.Insert(ctx, ledgerTable, tuple.NewIntField(int64(worker)), tuple.NewIntField(int64(seq*c.RowsPerTxn+r)))
		if errors.Is(err, flushmanager.ErrTransactionAborted) {
			return outcomeConflict, txn.Abort(ctx)
		}
		if err != nil {
			return 0, multierr.Append(err, txn.Abort(ctx))
		}
	}
	if rng.Float64() < c.AbortRatio {
		return outcomeRolledBack, txn.Abort(ctx)
	}
	return outcomeCommitted, txn.Commit(ctx)
}

// countVisible scans table under a fresh transaction, retrying while
// stragglers still hold locks.
func countVisible(ctx context.Context, e *engine.Engine, table string) (int, error) {
	for {
		n := 0
		txn := e.Begin()
		err := txn.Scan(ctx, table, func(*tuple.Tuple) error { n++; return nil })
		if err == nil {
			return n, txn.Commit(ctx)
		}
		if aerr := txn.Abort(ctx); aerr != nil || !errors.Is(err, flushmanager.ErrTransactionAborted) {
			return 0, multierr.Append(err, aerr)
		}
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
	}
}
