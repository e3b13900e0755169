// Package lockmanager implements page-granularity shared/exclusive locks for
// strict two-phase locking.
//
// The manager never waits. Acquire is a single attempt that either grants the
// lock or reports failure without side effects; retrying, backing off and
// giving up are the caller's business. This keeps the internal mutex held only
// for the few map operations of each call.
package lockmanager

import (
	"sort"
	"sync"

	"github.com/sushant-115/gojostore/core/transaction"
	pagemanager "github.com/sushant-115/gojostore/core/write_engine/page_manager"
	"go.uber.org/zap"
)

type LockMode int

const (
	Shared LockMode = iota
	Exclusive
)

func (m LockMode) String() string {
	if m == Exclusive {
		return "exclusive"
	}
	return "shared"
}

// ModeFor maps page access permissions to the lock mode they require.
func ModeFor(perm pagemanager.Permissions) LockMode {
	if perm == pagemanager.ReadWrite {
		return Exclusive
	}
	return Shared
}

// lockRecord holds the current holders of one page. It is either any number of
// Shared holders or exactly one Exclusive holder.
type lockRecord map[transaction.ID]LockMode

func (r lockRecord) hasExclusive() bool {
	for _, m := range r {
		if m == Exclusive {
			return true
		}
	}
	return false
}

type LockManager struct {
	mu     sync.Mutex
	pages  map[pagemanager.PageID]lockRecord
	byTxn  map[transaction.ID]map[pagemanager.PageID]struct{}
	logger *zap.Logger
}

func NewLockManager(logger *zap.Logger) *LockManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LockManager{
		pages:  make(map[pagemanager.PageID]lockRecord),
		byTxn:  make(map[transaction.ID]map[pagemanager.PageID]struct{}),
		logger: logger.Named("lockmanager"),
	}
}

// Acquire makes one attempt to give txn a lock of the given mode on pid.
//
// A free page is granted in any mode. Shared joins other Shared holders.
// A sole Shared holder asking for Exclusive is upgraded in place. Holding a
// mode at least as strong as the request is a success. Everything else fails
// and leaves the table untouched.
func (lm *LockManager) Acquire(pid pagemanager.PageID, txn transaction.ID, mode LockMode) bool {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	rec, exists := lm.pages[pid]
	if !exists {
		lm.pages[pid] = lockRecord{txn: mode}
		lm.track(txn, pid)
		return true
	}

	if held, ok := rec[txn]; ok {
		if held == Exclusive || mode == Shared {
			return true
		}
		if len(rec) == 1 {
			rec[txn] = Exclusive
			lm.logger.Debug("upgraded lock", zap.Stringer("page", pid), zap.Stringer("txn", txn))
			return true
		}
		return false
	}

	if mode == Shared && !rec.hasExclusive() {
		rec[txn] = Shared
		lm.track(txn, pid)
		return true
	}
	return false
}

// Release drops txn's lock on pid and reports whether one was held.
func (lm *LockManager) Release(txn transaction.ID, pid pagemanager.PageID) bool {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return lm.releaseLocked(txn, pid)
}

func (lm *LockManager) releaseLocked(txn transaction.ID, pid pagemanager.PageID) bool {
	rec, ok := lm.pages[pid]
	if !ok {
		return false
	}
	if _, held := rec[txn]; !held {
		return false
	}
	delete(rec, txn)
	if len(rec) == 0 {
		delete(lm.pages, pid)
	}
	if held := lm.byTxn[txn]; held != nil {
		delete(held, pid)
		if len(held) == 0 {
			delete(lm.byTxn, txn)
		}
	}
	return true
}

// ReleaseAll drops every lock held by txn and returns how many were released.
func (lm *LockManager) ReleaseAll(txn transaction.ID) int {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	held := lm.byTxn[txn]
	n := 0
	for pid := range held {
		if lm.releaseLocked(txn, pid) {
			n++
		}
	}
	return n
}

func (lm *LockManager) Holds(txn transaction.ID, pid pagemanager.PageID) bool {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	_, ok := lm.pages[pid][txn]
	return ok
}

// Mode returns the mode txn holds on pid.
func (lm *LockManager) Mode(txn transaction.ID, pid pagemanager.PageID) (LockMode, bool) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	m, ok := lm.pages[pid][txn]
	return m, ok
}

// HeldPages lists the pages txn holds a lock on, ordered by table then page.
func (lm *LockManager) HeldPages(txn transaction.ID) []pagemanager.PageID {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	out := make([]pagemanager.PageID, 0, len(lm.byTxn[txn]))
	for pid := range lm.byTxn[txn] {
		out = append(out, pid)
	}
	sortPageIDs(out)
	return out
}

// LockedPages returns the number of pages with at least one holder.
func (lm *LockManager) LockedPages() int {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return len(lm.pages)
}

func (lm *LockManager) track(txn transaction.ID, pid pagemanager.PageID) {
	held := lm.byTxn[txn]
	if held == nil {
		held = make(map[pagemanager.PageID]struct{})
		lm.byTxn[txn] = held
	}
	held[pid] = struct{}{}
}

func sortPageIDs(ids []pagemanager.PageID) {
	sort.Slice(ids, func(i, j int) bool {
		if ids[i].TableID != ids[j].TableID {
			return ids[i].TableID < ids[j].TableID
		}
		return ids[i].PageNo < ids[j].PageNo
	})
}
