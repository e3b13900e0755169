package heap

import (
	"context"
	"fmt"

	"github.com/sushant-115/gojostore/core/security/encryption"
	flushmanager "github.com/sushant-115/gojostore/core/write_engine/flush_manager"
	pagemanager "github.com/sushant-115/gojostore/core/write_engine/page_manager"
)

// EncryptedStore seals every page before it reaches the wrapped store. The
// page id is bound into each image, so a page copied to another slot fails
// to open.
type EncryptedStore struct {
	PageStore
	cipher *encryption.PageCipher
}

func NewEncryptedStore(inner PageStore, cipher *encryption.PageCipher) *EncryptedStore {
	return &EncryptedStore{PageStore: inner, cipher: cipher}
}

func (s *EncryptedStore) ReadPage(ctx context.Context, pid pagemanager.PageID) ([]byte, error) {
	sealed, err := s.PageStore.ReadPage(ctx, pid)
	if err != nil {
		return nil, err
	}
	data, err := s.cipher.Open(sealed, []byte(pid.String()))
	if err != nil {
		return nil, fmt.Errorf("%w: page %s: %w", flushmanager.ErrIO, pid, err)
	}
	return data, nil
}

func (s *EncryptedStore) WritePage(ctx context.Context, pid pagemanager.PageID, data []byte) error {
	sealed, err := s.cipher.Seal(data, []byte(pid.String()))
	if err != nil {
		return fmt.Errorf("%w: page %s: %w", flushmanager.ErrIO, pid, err)
	}
	return s.PageStore.WritePage(ctx, pid, sealed)
}
