package flushmanager

import (
	"errors"
	"fmt"
)

// --- Error Definitions ---

var (
	// ErrResourceExhausted means eviction found no clean page: every cached page
	// holds an uncommitted modification and NO-STEAL forbids writing it.
	ErrResourceExhausted = errors.New("buffer pool is full and every cached page is dirty")
	// ErrTransactionAborted means a lock could not be acquired before the wait
	// deadline; the issuing transaction must be rolled back.
	ErrTransactionAborted = errors.New("transaction aborted")
	ErrIO                 = errors.New("i/o error")
	ErrInvariantViolation = errors.New("invariant violation")

	ErrPageNotFound     = fmt.Errorf("%w: page not found in buffer pool", ErrInvariantViolation)
	ErrLockNotHeld      = fmt.Errorf("%w: lock not held", ErrInvariantViolation)
	ErrTableNotFound    = fmt.Errorf("%w: table not found", ErrInvariantViolation)
	ErrPageOutOfRange   = fmt.Errorf("%w: page number beyond end of file", ErrInvariantViolation)
	ErrTupleNotFound    = fmt.Errorf("%w: tuple not found on page", ErrInvariantViolation)
	ErrInvalidPoolSize  = errors.New("buffer pool capacity must be positive")
	ErrChecksumMismatch = fmt.Errorf("%w: page checksum mismatch, data corruption suspected", ErrIO)
	ErrPageFull         = errors.New("no free slot on page")
)
