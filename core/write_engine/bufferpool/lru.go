package bufferpool

import (
	pagemanager "github.com/sushant-115/gojostore/core/write_engine/page_manager"
)

const nilSlot = -1

// slot is one frame of the arena. prev points towards the MRU end, next
// towards the LRU end.
type slot struct {
	page pagemanager.Page
	prev int
	next int
}

// lruCache is a fixed-size arena of slots linked into a recency list and
// addressed by int handles. It is not safe for concurrent use; the buffer pool
// guards it with its own mutex.
type lruCache struct {
	slots []slot
	index map[pagemanager.PageID]int
	head  int // most recently used
	tail  int // least recently used
	free  []int
}

func newLRUCache(capacity int) *lruCache {
	c := &lruCache{
		slots: make([]slot, capacity),
		index: make(map[pagemanager.PageID]int, capacity),
		head:  nilSlot,
		tail:  nilSlot,
		free:  make([]int, 0, capacity),
	}
	for i := capacity - 1; i >= 0; i-- {
		c.slots[i] = slot{prev: nilSlot, next: nilSlot}
		c.free = append(c.free, i)
	}
	return c
}

func (c *lruCache) len() int { return len(c.index) }

func (c *lruCache) capacity() int { return len(c.slots) }

func (c *lruCache) full() bool { return len(c.free) == 0 }

func (c *lruCache) lookup(pid pagemanager.PageID) (int, bool) {
	h, ok := c.index[pid]
	return h, ok
}

func (c *lruCache) page(h int) pagemanager.Page { return c.slots[h].page }

// insert places p at the MRU end. The caller must make room first.
func (c *lruCache) insert(p pagemanager.Page) int {
	n := len(c.free)
	h := c.free[n-1]
	c.free = c.free[:n-1]

	c.slots[h].page = p
	c.index[p.ID()] = h
	c.pushFront(h)
	return h
}

// replace swaps the page held by h without changing its recency.
func (c *lruCache) replace(h int, p pagemanager.Page) {
	c.slots[h].page = p
}

// touch moves h to the MRU end.
func (c *lruCache) touch(h int) {
	if c.head == h {
		return
	}
	c.unlink(h)
	c.pushFront(h)
}

func (c *lruCache) remove(pid pagemanager.PageID) bool {
	h, ok := c.index[pid]
	if !ok {
		return false
	}
	c.removeHandle(h)
	return true
}

func (c *lruCache) removeHandle(h int) {
	c.unlink(h)
	delete(c.index, c.slots[h].page.ID())
	c.slots[h] = slot{prev: nilSlot, next: nilSlot}
	c.free = append(c.free, h)
}

// oldestFirst calls fn from the LRU end towards the MRU end until fn returns
// false. fn must not modify the list.
func (c *lruCache) oldestFirst(fn func(h int, p pagemanager.Page) bool) {
	for h := c.tail; h != nilSlot; h = c.slots[h].prev {
		if !fn(h, c.slots[h].page) {
			return
		}
	}
}

// ids lists the cached pages, most recently used first.
func (c *lruCache) ids() []pagemanager.PageID {
	out := make([]pagemanager.PageID, 0, len(c.index))
	for h := c.head; h != nilSlot; h = c.slots[h].next {
		out = append(out, c.slots[h].page.ID())
	}
	return out
}

func (c *lruCache) pushFront(h int) {
	c.slots[h].prev = nilSlot
	c.slots[h].next = c.head
	if c.head != nilSlot {
		c.slots[c.head].prev = h
	}
	c.head = h
	if c.tail == nilSlot {
		c.tail = h
	}
}

func (c *lruCache) unlink(h int) {
	prev, next := c.slots[h].prev, c.slots[h].next
	switch {
	case prev == nilSlot && next == nilSlot:
		if c.head == h {
			c.head, c.tail = nilSlot, nilSlot
		}
	case prev == nilSlot:
		c.head = next
		c.slots[next].prev = nilSlot
	case next == nilSlot:
		c.tail = prev
		c.slots[prev].next = nilSlot
	default:
		c.slots[prev].next = next
		c.slots[next].prev = prev
	}
	c.slots[h].prev, c.slots[h].next = nilSlot, nilSlot
}
