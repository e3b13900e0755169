package bufferpool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	pagemanager "github.com/sushant-115/gojostore/core/write_engine/page_manager"
)

func TestLRUCache_OrderAndReuse(t *testing.T) {
	c := newLRUCache(3)
	for n := uint32(0); n < 3; n++ {
		c.insert(&fakePage{id: pid(n)})
	}
	require.True(t, c.full())
	assert.Equal(t, []pagemanager.PageID{pid(2), pid(1), pid(0)}, c.ids())

	h, ok := c.lookup(pid(0))
	require.True(t, ok)
	c.touch(h)
	assert.Equal(t, []pagemanager.PageID{pid(0), pid(2), pid(1)}, c.ids())

	require.True(t, c.remove(pid(2)))
	assert.False(t, c.remove(pid(2)))
	assert.Equal(t, 2, c.len())
	assert.Equal(t, []pagemanager.PageID{pid(0), pid(1)}, c.ids())

	c.insert(&fakePage{id: pid(9)})
	assert.Equal(t, []pagemanager.PageID{pid(9), pid(0), pid(1)}, c.ids())

	var oldest []pagemanager.PageID
	c.oldestFirst(func(_ int, p pagemanager.Page) bool {
		oldest = append(oldest, p.ID())
		return true
	})
	assert.Equal(t, []pagemanager.PageID{pid(1), pid(0), pid(9)}, oldest)
}

func TestLRUCache_RemoveLastEntry(t *testing.T) {
	c := newLRUCache(1)
	c.insert(&fakePage{id: pid(4)})
	require.True(t, c.remove(pid(4)))
	assert.Empty(t, c.ids())
	assert.False(t, c.full())

	c.insert(&fakePage{id: pid(5)})
	assert.Equal(t, []pagemanager.PageID{pid(5)}, c.ids())
}

func TestLRUCache_ReplaceKeepsPosition(t *testing.T) {
	c := newLRUCache(2)
	c.insert(&fakePage{id: pid(0), value: 1})
	c.insert(&fakePage{id: pid(1)})

	h, _ := c.lookup(pid(0))
	c.replace(h, &fakePage{id: pid(0), value: 2})
	assert.Equal(t, []pagemanager.PageID{pid(1), pid(0)}, c.ids())
	assert.Equal(t, 2, c.page(h).(*fakePage).value)
}
