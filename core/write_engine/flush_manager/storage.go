package flushmanager

import (
	"context"

	"github.com/sushant-115/gojostore/core/transaction"
	"github.com/sushant-115/gojostore/core/tuple"
	pagemanager "github.com/sushant-115/gojostore/core/write_engine/page_manager"
)

// DBFile is the storage file of one table. Implementations own the page byte
// layout; the buffer pool only moves whole pages in and out.
type DBFile interface {
	TableID() pagemanager.TableID
	TupleDesc() *tuple.TupleDesc
	// ReadPage returns the durable content of pid. Repeated reads return the
	// same content until the page is overwritten by WritePage.
	ReadPage(ctx context.Context, pid pagemanager.PageID) (pagemanager.Page, error)
	// WritePage persists p synchronously.
	WritePage(ctx context.Context, p pagemanager.Page) error
	// InsertTuple and DeleteTuple return every page they modified so the
	// caller can absorb them into its cache.
	InsertTuple(ctx context.Context, txn transaction.ID, t *tuple.Tuple) ([]pagemanager.Page, error)
	DeleteTuple(ctx context.Context, txn transaction.ID, t *tuple.Tuple) ([]pagemanager.Page, error)
	NumPages(ctx context.Context) (int, error)
	Iterator(ctx context.Context, txn transaction.ID) TupleIterator
}

// TupleIterator walks a file sequentially.
type TupleIterator interface {
	// Next returns the next tuple; ok is false once the file is exhausted.
	Next() (t *tuple.Tuple, ok bool, err error)
	Rewind() error
	Close()
}

// Catalog resolves table ids to their storage files and names.
type Catalog interface {
	DBFile(id pagemanager.TableID) (DBFile, error)
	TableName(id pagemanager.TableID) (string, error)
	TableIDs() []pagemanager.TableID
}
