package heap

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sushant-115/gojostore/core/security/encryption"
	flushmanager "github.com/sushant-115/gojostore/core/write_engine/flush_manager"
	pagemanager "github.com/sushant-115/gojostore/core/write_engine/page_manager"
)

func TestEncryptedStore(t *testing.T) {
	ctx := context.Background()
	c, err := encryption.NewPageCipher(bytes.Repeat([]byte{1}, 16))
	require.NoError(t, err)
	inner := NewMemStore()
	store := NewEncryptedStore(inner, c)

	f := NewHeapFile(1, testDesc, store, 4)
	pages, err := f.InsertTuple(ctx, 1, row(7))
	require.NoError(t, err)
	require.NoError(t, f.WritePage(ctx, pages[0]))

	raw, err := inner.ReadPage(ctx, pagemanager.NewPageID(1, 0))
	require.NoError(t, err)
	assert.False(t, bytes.Contains(raw, []byte("name-7")), "page stored in the clear")

	p, err := f.ReadPage(ctx, pagemanager.NewPageID(1, 0))
	require.NoError(t, err)
	assert.Equal(t, 1, p.(*HeapPage).NumSlots()-p.(*HeapPage).FreeSlots())

	// The same image under another page id does not open.
	require.NoError(t, inner.WritePage(ctx, pagemanager.NewPageID(1, 1), raw))
	_, err = store.ReadPage(ctx, pagemanager.NewPageID(1, 1))
	assert.ErrorIs(t, err, flushmanager.ErrIO)

	n, err := store.NumPages(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
