package pagemanager

import (
	"fmt"

	"github.com/sushant-115/gojostore/core/transaction"
)

// --- Page Identity ---

// TableID identifies the storage file a page belongs to.
type TableID uint32

// PageID represents a unique identifier for a page: the owning table and the
// page number within that table's file. It is comparable and used as a map key.
type PageID struct {
	TableID TableID
	PageNo  uint32
}

func NewPageID(table TableID, pageNo uint32) PageID {
	return PageID{TableID: table, PageNo: pageNo}
}

func (p PageID) String() string {
	return fmt.Sprintf("%d:%d", p.TableID, p.PageNo)
}

// Permissions is the access a transaction asks for when fetching a page.
type Permissions int

const (
	ReadOnly Permissions = iota
	ReadWrite
)

func (p Permissions) String() string {
	if p == ReadWrite {
		return "read-write"
	}
	return "read-only"
}

// Page is an in-memory copy of a disk page. The payload is owned by the
// storage file; the buffer pool only needs identity and the dirty marker.
type Page interface {
	ID() PageID
	// DirtyOwner returns the transaction whose modification is not yet
	// durable, or false when the page is clean.
	DirtyOwner() (transaction.ID, bool)
	MarkDirty(dirty bool, txn transaction.ID)
}

// DirtyState is embeddable bookkeeping for Page implementations.
type DirtyState struct {
	dirty bool
	owner transaction.ID
}

func (d *DirtyState) DirtyOwner() (transaction.ID, bool) {
	if !d.dirty {
		return transaction.InvalidID, false
	}
	return d.owner, true
}

func (d *DirtyState) MarkDirty(dirty bool, txn transaction.ID) {
	d.dirty = dirty
	if dirty {
		d.owner = txn
	} else {
		d.owner = transaction.InvalidID
	}
}
