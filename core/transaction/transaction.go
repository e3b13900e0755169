package transaction

import (
	"strconv"
	"sync/atomic"
)

// ID identifies a unit of work. The zero value never names a live transaction.
type ID uint64

const InvalidID ID = 0

var lastID atomic.Uint64

// NewID hands out process-unique transaction ids. Execution layers that allocate
// their own ids may ignore it.
func NewID() ID {
	return ID(lastID.Add(1))
}

func (id ID) String() string { return "txn-" + strconv.FormatUint(uint64(id), 10) }

// TransactionState represents the in-memory state of a transaction.
type TransactionState int

const (
	TxnStateRunning   TransactionState = iota // Transaction is active, pages may be dirtied
	TxnStateCommitted                         // Dirty pages were flushed and locks released
	TxnStateAborted                           // Dirty pages were restored and locks released
)

func (s TransactionState) String() string {
	switch s {
	case TxnStateRunning:
		return "running"
	case TxnStateCommitted:
		return "committed"
	case TxnStateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}
