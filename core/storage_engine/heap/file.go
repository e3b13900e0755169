package heap

import (
	"context"
	"fmt"
	"sync"

	"github.com/sushant-115/gojostore/core/transaction"
	"github.com/sushant-115/gojostore/core/tuple"
	flushmanager "github.com/sushant-115/gojostore/core/write_engine/flush_manager"
	pagemanager "github.com/sushant-115/gojostore/core/write_engine/page_manager"
)

// PageFetcher is the locked, cached page access a HeapFile reads through once
// a buffer pool is attached.
type PageFetcher interface {
	FetchPage(ctx context.Context, txn transaction.ID, pid pagemanager.PageID, perm pagemanager.Permissions) (pagemanager.Page, error)
}

// HeapFile is an unordered collection of tuples stored in HeapPages.
type HeapFile struct {
	id           pagemanager.TableID
	td           *tuple.TupleDesc
	store        PageStore
	slotsPerPage int

	appendMu sync.Mutex
	pool     PageFetcher
}

var _ flushmanager.DBFile = (*HeapFile)(nil)

func NewHeapFile(id pagemanager.TableID, td *tuple.TupleDesc, store PageStore, slotsPerPage int) *HeapFile {
	if slotsPerPage <= 0 {
		slotsPerPage = DefaultSlotsPerPage
	}
	return &HeapFile{id: id, td: td, store: store, slotsPerPage: slotsPerPage}
}

// AttachPool routes tuple-level reads and writes through pool. Without a pool
// pages are read straight from the store and nothing is locked.
func (f *HeapFile) AttachPool(pool PageFetcher) { f.pool = pool }

func (f *HeapFile) TableID() pagemanager.TableID { return f.id }

func (f *HeapFile) TupleDesc() *tuple.TupleDesc { return f.td }

func (f *HeapFile) ReadPage(ctx context.Context, pid pagemanager.PageID) (pagemanager.Page, error) {
	if pid.TableID != f.id {
		return nil, fmt.Errorf("%w: page %s read from table %d", flushmanager.ErrInvariantViolation, pid, f.id)
	}
	data, err := f.store.ReadPage(ctx, pid)
	if err != nil {
		return nil, err
	}
	return DecodeHeapPage(pid, f.td, data)
}

func (f *HeapFile) WritePage(ctx context.Context, p pagemanager.Page) error {
	hp, ok := p.(*HeapPage)
	if !ok {
		return fmt.Errorf("%w: heap file cannot write %T", flushmanager.ErrInvariantViolation, p)
	}
	data, err := hp.Encode()
	if err != nil {
		return err
	}
	return f.store.WritePage(ctx, hp.ID(), data)
}

func (f *HeapFile) NumPages(ctx context.Context) (int, error) {
	return f.store.NumPages(ctx, f.id)
}

func (f *HeapFile) fetch(ctx context.Context, txn transaction.ID, pid pagemanager.PageID, perm pagemanager.Permissions) (*HeapPage, error) {
	var (
		p   pagemanager.Page
		err error
	)
	if f.pool != nil {
		p, err = f.pool.FetchPage(ctx, txn, pid, perm)
	} else {
		p, err = f.ReadPage(ctx, pid)
	}
	if err != nil {
		return nil, err
	}
	hp, ok := p.(*HeapPage)
	if !ok {
		return nil, fmt.Errorf("%w: page %s is %T", flushmanager.ErrInvariantViolation, pid, p)
	}
	return hp, nil
}

// InsertTuple places t on the first page with a free slot, probing each page
// under a shared lock and upgrading only the one it writes. When every page is
// full an empty page is appended to the store first, so that an abort can
// always reload it.
func (f *HeapFile) InsertTuple(ctx context.Context, txn transaction.ID, t *tuple.Tuple) ([]pagemanager.Page, error) {
	if err := t.Conforms(f.td); err != nil {
		return nil, err
	}
	n, err := f.NumPages(ctx)
	if err != nil {
		return nil, err
	}
	for i := 0; i < n; i++ {
		pid := pagemanager.NewPageID(f.id, uint32(i))
		page, err := f.fetch(ctx, txn, pid, pagemanager.ReadOnly)
		if err != nil {
			return nil, err
		}
		if page.FreeSlots() == 0 {
			continue
		}
		if page, err = f.fetch(ctx, txn, pid, pagemanager.ReadWrite); err != nil {
			return nil, err
		}
		if page.FreeSlots() == 0 {
			continue
		}
		if err := page.InsertTuple(t); err != nil {
			return nil, err
		}
		return []pagemanager.Page{page}, nil
	}

	pid, err := f.appendEmptyPage(ctx)
	if err != nil {
		return nil, err
	}
	page, err := f.fetch(ctx, txn, pid, pagemanager.ReadWrite)
	if err != nil {
		return nil, err
	}
	if err := page.InsertTuple(t); err != nil {
		return nil, err
	}
	return []pagemanager.Page{page}, nil
}

func (f *HeapFile) appendEmptyPage(ctx context.Context) (pagemanager.PageID, error) {
	f.appendMu.Lock()
	defer f.appendMu.Unlock()

	n, err := f.NumPages(ctx)
	if err != nil {
		return pagemanager.PageID{}, err
	}
	pid := pagemanager.NewPageID(f.id, uint32(n))
	data, err := NewHeapPage(pid, f.td, f.slotsPerPage).Encode()
	if err != nil {
		return pagemanager.PageID{}, err
	}
	if err := f.store.WritePage(ctx, pid, data); err != nil {
		return pagemanager.PageID{}, err
	}
	return pid, nil
}

// DeleteTuple removes the tuple at t.RecordID.
func (f *HeapFile) DeleteTuple(ctx context.Context, txn transaction.ID, t *tuple.Tuple) ([]pagemanager.Page, error) {
	if t.RecordID == nil || t.RecordID.PageID.TableID != f.id {
		return nil, fmt.Errorf("%w: tuple is not stored in table %d", flushmanager.ErrTupleNotFound, f.id)
	}
	page, err := f.fetch(ctx, txn, t.RecordID.PageID, pagemanager.ReadWrite)
	if err != nil {
		return nil, err
	}
	if err := page.DeleteTuple(t); err != nil {
		return nil, err
	}
	return []pagemanager.Page{page}, nil
}

func (f *HeapFile) Iterator(ctx context.Context, txn transaction.ID) flushmanager.TupleIterator {
	return &fileIterator{ctx: ctx, file: f, txn: txn, numPages: -1}
}

// fileIterator reads one page at a time with ReadOnly permission.
type fileIterator struct {
	ctx      context.Context
	file     *HeapFile
	txn      transaction.ID
	numPages int
	nextPage int
	buf      []*tuple.Tuple
	pos      int
}

func (it *fileIterator) Next() (*tuple.Tuple, bool, error) {
	if it.numPages < 0 {
		n, err := it.file.NumPages(it.ctx)
		if err != nil {
			return nil, false, err
		}
		it.numPages = n
	}
	for it.pos >= len(it.buf) {
		if it.nextPage >= it.numPages {
			return nil, false, nil
		}
		page, err := it.file.fetch(it.ctx, it.txn, pagemanager.NewPageID(it.file.id, uint32(it.nextPage)), pagemanager.ReadOnly)
		if err != nil {
			return nil, false, err
		}
		it.nextPage++
		it.buf, it.pos = page.Tuples(), 0
	}
	t := it.buf[it.pos]
	it.pos++
	return t, true, nil
}

func (it *fileIterator) Rewind() error {
	it.numPages, it.nextPage, it.buf, it.pos = -1, 0, nil, 0
	return nil
}

func (it *fileIterator) Close() {
	it.buf = nil
}
