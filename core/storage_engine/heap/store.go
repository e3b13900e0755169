package heap

import (
	"context"
	"fmt"
	"sync"

	flushmanager "github.com/sushant-115/gojostore/core/write_engine/flush_manager"
	pagemanager "github.com/sushant-115/gojostore/core/write_engine/page_manager"
)

// PageStore persists encoded pages. Pages of a table are numbered densely
// from zero; writing page NumPages appends one.
type PageStore interface {
	ReadPage(ctx context.Context, pid pagemanager.PageID) ([]byte, error)
	WritePage(ctx context.Context, pid pagemanager.PageID, data []byte) error
	NumPages(ctx context.Context, table pagemanager.TableID) (int, error)
	Close() error
}

// MemStore keeps pages in memory. Data does not survive Close.
type MemStore struct {
	mu     sync.RWMutex
	tables map[pagemanager.TableID][][]byte
}

func NewMemStore() *MemStore {
	return &MemStore{tables: make(map[pagemanager.TableID][][]byte)}
}

func (s *MemStore) ReadPage(_ context.Context, pid pagemanager.PageID) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pages := s.tables[pid.TableID]
	if int(pid.PageNo) >= len(pages) {
		return nil, fmt.Errorf("%w: %s", flushmanager.ErrPageOutOfRange, pid)
	}
	return append([]byte(nil), pages[pid.PageNo]...), nil
}

func (s *MemStore) WritePage(_ context.Context, pid pagemanager.PageID, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pages := s.tables[pid.TableID]
	switch {
	case int(pid.PageNo) < len(pages):
		pages[pid.PageNo] = append([]byte(nil), data...)
	case int(pid.PageNo) == len(pages):
		s.tables[pid.TableID] = append(pages, append([]byte(nil), data...))
	default:
		return fmt.Errorf("%w: %s leaves a gap after %d pages", flushmanager.ErrPageOutOfRange, pid, len(pages))
	}
	return nil
}

func (s *MemStore) NumPages(_ context.Context, table pagemanager.TableID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tables[table]), nil
}

func (s *MemStore) Close() error { return nil }
