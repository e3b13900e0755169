package lockmanager

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sushant-115/gojostore/core/transaction"
	pagemanager "github.com/sushant-115/gojostore/core/write_engine/page_manager"
)

var (
	p1 = pagemanager.NewPageID(1, 0)
	p2 = pagemanager.NewPageID(1, 1)
)

func TestAcquire_FreePageGrantsAnyMode(t *testing.T) {
	lm := NewLockManager(nil)
	require.True(t, lm.Acquire(p1, 1, Exclusive))
	require.True(t, lm.Acquire(p2, 2, Shared))

	mode, ok := lm.Mode(1, p1)
	require.True(t, ok)
	assert.Equal(t, Exclusive, mode)
	mode, ok = lm.Mode(2, p2)
	require.True(t, ok)
	assert.Equal(t, Shared, mode)
}

func TestAcquire_SharedHoldersCoexist(t *testing.T) {
	lm := NewLockManager(nil)
	for txn := transaction.ID(1); txn <= 5; txn++ {
		require.True(t, lm.Acquire(p1, txn, Shared), "txn %d", txn)
	}
	for txn := transaction.ID(1); txn <= 5; txn++ {
		assert.True(t, lm.Holds(txn, p1))
	}
	assert.False(t, lm.Acquire(p1, 6, Exclusive), "exclusive must wait for shared holders")
	assert.False(t, lm.Holds(6, p1))
}

func TestAcquire_ExclusiveExcludesEveryone(t *testing.T) {
	lm := NewLockManager(nil)
	require.True(t, lm.Acquire(p1, 1, Exclusive))

	assert.False(t, lm.Acquire(p1, 2, Shared))
	assert.False(t, lm.Acquire(p1, 2, Exclusive))
	assert.False(t, lm.Holds(2, p1))

	// The holder may re-request either mode.
	assert.True(t, lm.Acquire(p1, 1, Shared))
	assert.True(t, lm.Acquire(p1, 1, Exclusive))
	mode, _ := lm.Mode(1, p1)
	assert.Equal(t, Exclusive, mode, "re-requesting shared must not downgrade")
}

func TestAcquire_Upgrade(t *testing.T) {
	t.Run("SoleHolder", func(t *testing.T) {
		lm := NewLockManager(nil)
		require.True(t, lm.Acquire(p1, 1, Shared))
		require.True(t, lm.Acquire(p1, 1, Exclusive))
		mode, _ := lm.Mode(1, p1)
		assert.Equal(t, Exclusive, mode)
		assert.False(t, lm.Acquire(p1, 2, Shared))
	})

	t.Run("OtherHoldersPresent", func(t *testing.T) {
		lm := NewLockManager(nil)
		require.True(t, lm.Acquire(p1, 1, Shared))
		require.True(t, lm.Acquire(p1, 2, Shared))

		assert.False(t, lm.Acquire(p1, 1, Exclusive))
		mode, ok := lm.Mode(1, p1)
		require.True(t, ok)
		assert.Equal(t, Shared, mode, "failed upgrade must leave the shared lock in place")
		assert.True(t, lm.Holds(2, p1))

		require.True(t, lm.Release(2, p1))
		assert.True(t, lm.Acquire(p1, 1, Exclusive))
	})
}

func TestRelease(t *testing.T) {
	lm := NewLockManager(nil)
	assert.False(t, lm.Release(1, p1), "nothing held")

	require.True(t, lm.Acquire(p1, 1, Shared))
	require.True(t, lm.Acquire(p1, 2, Shared))
	assert.True(t, lm.Release(1, p1))
	assert.False(t, lm.Release(1, p1), "double release")
	assert.Equal(t, 1, lm.LockedPages())

	assert.True(t, lm.Release(2, p1))
	assert.Equal(t, 0, lm.LockedPages(), "record removed once the last holder leaves")
	assert.True(t, lm.Acquire(p1, 3, Exclusive))
}

func TestReleaseAll(t *testing.T) {
	lm := NewLockManager(nil)
	require.True(t, lm.Acquire(p1, 1, Exclusive))
	require.True(t, lm.Acquire(p2, 1, Shared))
	require.True(t, lm.Acquire(p2, 2, Shared))

	assert.Equal(t, []pagemanager.PageID{p1, p2}, lm.HeldPages(1))
	assert.Equal(t, 2, lm.ReleaseAll(1))
	assert.Empty(t, lm.HeldPages(1))
	assert.False(t, lm.Holds(1, p1))
	assert.True(t, lm.Holds(2, p2))
	assert.Equal(t, 0, lm.ReleaseAll(1), "idempotent")
}

// Hammer one page with mixed requests and check the holder set is never mixed.
func TestConcurrentAcquireKeepsModesExclusive(t *testing.T) {
	lm := NewLockManager(nil)
	var wg sync.WaitGroup
	var violations sync.Map

	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(txn transaction.ID) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				mode := Shared
				if i%3 == 0 {
					mode = Exclusive
				}
				if !lm.Acquire(p1, txn, mode) {
					continue
				}
				lm.mu.Lock()
				rec := lm.pages[p1]
				if rec.hasExclusive() && len(rec) > 1 {
					violations.Store(i, len(rec))
				}
				lm.mu.Unlock()
				lm.Release(txn, p1)
			}
		}(transaction.ID(w + 1))
	}
	wg.Wait()

	n := 0
	violations.Range(func(_, _ any) bool { n++; return true })
	assert.Zero(t, n)
	assert.Equal(t, 0, lm.LockedPages())
}
