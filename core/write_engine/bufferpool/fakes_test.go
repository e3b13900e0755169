package bufferpool

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sushant-115/gojostore/core/transaction"
	"github.com/sushant-115/gojostore/core/tuple"
	flushmanager "github.com/sushant-115/gojostore/core/write_engine/flush_manager"
	pagemanager "github.com/sushant-115/gojostore/core/write_engine/page_manager"
)

type fakePage struct {
	pagemanager.DirtyState
	id    pagemanager.PageID
	value int
}

func (p *fakePage) ID() pagemanager.PageID { return p.id }

// fakeFile keeps one durable int per page.
type fakeFile struct {
	mu         sync.Mutex
	table      pagemanager.TableID
	durable    map[uint32]int
	numPages   int
	reads      int
	writes     int
	failWrites bool
	failReads  bool
}

func newFakeFile(table pagemanager.TableID, pages int) *fakeFile {
	return &fakeFile{table: table, durable: make(map[uint32]int), numPages: pages}
}

func (f *fakeFile) TableID() pagemanager.TableID { return f.table }

func (f *fakeFile) TupleDesc() *tuple.TupleDesc {
	return tuple.NewTupleDesc([]tuple.Type{tuple.IntType}, nil)
}

func (f *fakeFile) ReadPage(_ context.Context, pid pagemanager.PageID) (pagemanager.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failReads {
		return nil, fmt.Errorf("%w: disk gone", flushmanager.ErrIO)
	}
	if int(pid.PageNo) >= f.numPages {
		return nil, fmt.Errorf("%w: %s", flushmanager.ErrPageOutOfRange, pid)
	}
	f.reads++
	return &fakePage{id: pid, value: f.durable[pid.PageNo]}, nil
}

func (f *fakeFile) WritePage(_ context.Context, p pagemanager.Page) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrites {
		return errors.New("disk full")
	}
	f.writes++
	f.durable[p.ID().PageNo] = p.(*fakePage).value
	return nil
}

func (f *fakeFile) InsertTuple(_ context.Context, _ transaction.ID, t *tuple.Tuple) ([]pagemanager.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v := int(t.Fields[0].(*tuple.IntField).Value)
	return []pagemanager.Page{&fakePage{id: pagemanager.NewPageID(f.table, 0), value: v}}, nil
}

func (f *fakeFile) DeleteTuple(_ context.Context, _ transaction.ID, t *tuple.Tuple) ([]pagemanager.Page, error) {
	return []pagemanager.Page{&fakePage{id: t.RecordID.PageID, value: -1}}, nil
}

func (f *fakeFile) NumPages(context.Context) (int, error) { return f.numPages, nil }

func (f *fakeFile) Iterator(context.Context, transaction.ID) flushmanager.TupleIterator { return nil }

func (f *fakeFile) durableValue(pageNo uint32) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.durable[pageNo]
}

type fakeCatalog struct {
	files map[pagemanager.TableID]*fakeFile
}

func newFakeCatalog(files ...*fakeFile) *fakeCatalog {
	c := &fakeCatalog{files: make(map[pagemanager.TableID]*fakeFile)}
	for _, f := range files {
		c.files[f.table] = f
	}
	return c
}

func (c *fakeCatalog) DBFile(id pagemanager.TableID) (flushmanager.DBFile, error) {
	f, ok := c.files[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", flushmanager.ErrTableNotFound, id)
	}
	return f, nil
}

func (c *fakeCatalog) TableName(id pagemanager.TableID) (string, error) {
	if _, ok := c.files[id]; !ok {
		return "", flushmanager.ErrTableNotFound
	}
	return fmt.Sprintf("t%d", id), nil
}

func (c *fakeCatalog) TableIDs() []pagemanager.TableID {
	ids := make([]pagemanager.TableID, 0, len(c.files))
	for id := range c.files {
		ids = append(ids, id)
	}
	return ids
}
