package engine

import (
	"context"
	"fmt"

	"github.com/sushant-115/gojostore/core/transaction"
	"github.com/sushant-115/gojostore/core/tuple"
	"go.uber.org/multierr"
)

// Txn is a convenience handle that routes tuple operations through the
// buffer pool under one transaction id.
type Txn struct {
	ID    transaction.ID
	State transaction.TransactionState
	e     *Engine
}

func (e *Engine) Begin() *Txn {
	return &Txn{ID: transaction.NewID(), State: transaction.TxnStateRunning, e: e}
}

func (t *Txn) checkRunning() error {
	if t.State != transaction.TxnStateRunning {
		return fmt.Errorf("%s is %s", t.ID, t.State)
	}
	return nil
}

// Insert adds a row to the named table.
func (t *Txn) Insert(ctx context.Context, table string, fields ...tuple.Field) (*tuple.Tuple, error) {
	if err := t.checkRunning(); err != nil {
		return nil, err
	}
	id, err := t.e.catalog.TableID(table)
	if err != nil {
		return nil, err
	}
	tup := tuple.NewTuple(fields...)
	if err := t.e.pool.InsertTuple(ctx, t.ID, id, tup); err != nil {
		return nil, err
	}
	return tup, nil
}

func (t *Txn) Delete(ctx context.Context, tup *tuple.Tuple) error {
	if err := t.checkRunning(); err != nil {
		return err
	}
	return t.e.pool.DeleteTuple(ctx, t.ID, tup)
}

// Scan calls fn for every row of table, stopping at the first error.
func (t *Txn) Scan(ctx context.Context, table string, fn func(*tuple.Tuple) error) error {
	if err := t.checkRunning(); err != nil {
		return err
	}
	id, err := t.e.catalog.TableID(table)
	if err != nil {
		return err
	}
	file, err := t.e.catalog.DBFile(id)
	if err != nil {
		return err
	}
	it := file.Iterator(ctx, t.ID)
	defer it.Close()
	for {
		tup, ok, err := it.Next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if err := fn(tup); err != nil {
			return err
		}
	}
}

// Commit makes the transaction durable. If a page cannot be written the
// transaction is aborted, releasing its locks, and the write error returned.
func (t *Txn) Commit(ctx context.Context) error {
	if err := t.checkRunning(); err != nil {
		return err
	}
	if err := t.e.pool.Commit(ctx, t.ID); err != nil {
		t.State = transaction.TxnStateAborted
		return multierr.Append(err, t.e.pool.Abort(ctx, t.ID))
	}
	t.State = transaction.TxnStateCommitted
	return nil
}

// Abort rolls the transaction back. Aborting twice is allowed.
func (t *Txn) Abort(ctx context.Context) error {
	if t.State == transaction.TxnStateCommitted {
		return fmt.Errorf("%s is already committed", t.ID)
	}
	t.State = transaction.TxnStateAborted
	return t.e.pool.Abort(ctx, t.ID)
}
