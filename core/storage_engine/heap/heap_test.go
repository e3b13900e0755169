package heap

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sushant-115/gojostore/core/tuple"
	flushmanager "github.com/sushant-115/gojostore/core/write_engine/flush_manager"
	pagemanager "github.com/sushant-115/gojostore/core/write_engine/page_manager"
)

var testDesc = tuple.NewTupleDesc([]tuple.Type{tuple.IntType, tuple.StringType}, []string{"id", "name"})

func row(id int64) *tuple.Tuple {
	return tuple.NewTuple(tuple.NewIntField(id), tuple.NewStringField(fmt.Sprintf("name-%d", id)))
}

func drain(t *testing.T, it flushmanager.TupleIterator) []int64 {
	t.Helper()
	var ids []int64
	for {
		tup, ok, err := it.Next()
		require.NoError(t, err)
		if !ok {
			return ids
		}
		ids = append(ids, tup.Fields[0].(*tuple.IntField).Value)
	}
}

func TestHeapPage_EncodeDecode(t *testing.T) {
	pid := pagemanager.NewPageID(3, 1)
	p := NewHeapPage(pid, testDesc, 4)
	for i := int64(0); i < 3; i++ {
		require.NoError(t, p.InsertTuple(row(i)))
	}
	victim := p.Tuples()[1]
	require.NoError(t, p.DeleteTuple(&tuple.Tuple{RecordID: victim.RecordID}))
	p.MarkDirty(true, 9)

	data, err := p.Encode()
	require.NoError(t, err)
	got, err := DecodeHeapPage(pid, testDesc, data)
	require.NoError(t, err)

	assert.Equal(t, 4, got.NumSlots())
	assert.Equal(t, 2, got.FreeSlots())
	require.Len(t, got.Tuples(), 2)
	assert.Equal(t, "(2, name-2)", got.Tuples()[1].String())
	assert.Equal(t, 2, got.Tuples()[1].RecordID.Slot)
	_, dirty := got.DirtyOwner()
	assert.False(t, dirty, "decoded pages start clean")

	_, err = DecodeHeapPage(pid, testDesc, []byte{0xc1})
	assert.ErrorIs(t, err, flushmanager.ErrIO)
}

func TestHeapPage_FullAndMissing(t *testing.T) {
	p := NewHeapPage(pagemanager.NewPageID(1, 0), testDesc, 1)
	require.NoError(t, p.InsertTuple(row(1)))
	assert.ErrorIs(t, p.InsertTuple(row(2)), flushmanager.ErrPageFull)

	err := p.DeleteTuple(&tuple.Tuple{RecordID: &tuple.RecordID{PageID: p.ID(), Slot: 5}})
	assert.ErrorIs(t, err, flushmanager.ErrTupleNotFound)
	assert.ErrorIs(t, p.InsertTuple(tuple.NewTuple(tuple.NewIntField(1))), tuple.ErrSchemaMismatch)
}

func TestHeapFile_InsertScanDelete(t *testing.T) {
	ctx := context.Background()
	f := NewHeapFile(1, testDesc, NewMemStore(), 3)

	var inserted []*tuple.Tuple
	for i := int64(0); i < 7; i++ {
		tup := row(i)
		pages, err := f.InsertTuple(ctx, 1, tup)
		require.NoError(t, err)
		require.Len(t, pages, 1)
		require.NotNil(t, tup.RecordID)
		// Without a pool the modified page has to be written back by hand.
		require.NoError(t, f.WritePage(ctx, pages[0]))
		inserted = append(inserted, tup)
	}

	n, err := f.NumPages(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []int64{0, 1, 2, 3, 4, 5, 6}, drain(t, f.Iterator(ctx, 1)))

	pages, err := f.DeleteTuple(ctx, 1, inserted[4])
	require.NoError(t, err)
	require.NoError(t, f.WritePage(ctx, pages[0]))

	it := f.Iterator(ctx, 1)
	assert.Equal(t, []int64{0, 1, 2, 3, 5, 6}, drain(t, it))
	require.NoError(t, it.Rewind())
	assert.Len(t, drain(t, it), 6)
	it.Close()

	// The freed slot is reused before a new page is appended.
	pages, err = f.InsertTuple(ctx, 1, row(40))
	require.NoError(t, err)
	assert.Equal(t, pagemanager.NewPageID(1, 1), pages[0].ID())
}

func TestHeapFile_Errors(t *testing.T) {
	ctx := context.Background()
	f := NewHeapFile(1, testDesc, NewMemStore(), 2)

	_, err := f.InsertTuple(ctx, 1, tuple.NewTuple(tuple.NewStringField("x")))
	assert.ErrorIs(t, err, tuple.ErrSchemaMismatch)

	_, err = f.DeleteTuple(ctx, 1, row(1))
	assert.ErrorIs(t, err, flushmanager.ErrTupleNotFound)

	_, err = f.ReadPage(ctx, pagemanager.NewPageID(1, 0))
	assert.ErrorIs(t, err, flushmanager.ErrPageOutOfRange)
	_, err = f.ReadPage(ctx, pagemanager.NewPageID(2, 0))
	assert.ErrorIs(t, err, flushmanager.ErrInvariantViolation)
}

func TestMemStore_RejectsGaps(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	require.NoError(t, s.WritePage(ctx, pagemanager.NewPageID(1, 0), []byte("a")))
	err := s.WritePage(ctx, pagemanager.NewPageID(1, 2), []byte("c"))
	assert.ErrorIs(t, err, flushmanager.ErrPageOutOfRange)

	data, err := s.ReadPage(ctx, pagemanager.NewPageID(1, 0))
	require.NoError(t, err)
	data[0] = 'z'
	again, _ := s.ReadPage(ctx, pagemanager.NewPageID(1, 0))
	assert.Equal(t, []byte("a"), again, "reads return copies")
}

func TestSQLiteStore_PersistsAndVerifies(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "pages.db")

	s, err := OpenSQLiteStore(ctx, path, nil)
	require.NoError(t, err)
	f := NewHeapFile(5, testDesc, s, 4)
	for i := int64(0); i < 6; i++ {
		pages, err := f.InsertTuple(ctx, 1, row(i))
		require.NoError(t, err)
		require.NoError(t, f.WritePage(ctx, pages[0]))
	}
	require.NoError(t, s.Close())

	s, err = OpenSQLiteStore(ctx, path, nil)
	require.NoError(t, err)
	defer s.Close()
	f = NewHeapFile(5, testDesc, s, 4)
	assert.Equal(t, []int64{0, 1, 2, 3, 4, 5}, drain(t, f.Iterator(ctx, 1)))

	n, err := s.NumPages(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = s.NumPages(ctx, 6)
	require.NoError(t, err)
	assert.Zero(t, n)

	err = s.WritePage(ctx, pagemanager.NewPageID(5, 9), []byte{1})
	assert.ErrorIs(t, err, flushmanager.ErrPageOutOfRange)
	_, err = s.ReadPage(ctx, pagemanager.NewPageID(5, 9))
	assert.ErrorIs(t, err, flushmanager.ErrPageOutOfRange)

	_, err = s.db.ExecContext(ctx, `UPDATE pages SET data = x'00' WHERE table_id = 5 AND page_no = 1`)
	require.NoError(t, err)
	_, err = s.ReadPage(ctx, pagemanager.NewPageID(5, 1))
	assert.ErrorIs(t, err, flushmanager.ErrChecksumMismatch)
	assert.ErrorIs(t, err, flushmanager.ErrIO)
}
