package memory

import (
	"context"
	"sync"

	"solana-wallet-ledger/internal/storage"
)

// BackfillCursorStore is an in-memory implementation of storage.BackfillCursorStore.
type BackfillCursorStore struct {
	mu      sync.RWMutex
	cursors map[string]storage.BackfillCursor
}

// NewBackfillCursorStore creates a new in-memory backfill cursor store.
func NewBackfillCursorStore() *BackfillCursorStore {
	return &BackfillCursorStore{
		cursors: make(map[string]storage.BackfillCursor),
	}
}

// Compile-time interface check.
var _ storage.BackfillCursorStore = (*BackfillCursorStore)(nil)

// Get returns the wallet's cursor.
func (s *BackfillCursorStore) Get(_ context.Context, walletID string) (*storage.BackfillCursor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.cursors[walletID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &c, nil
}

// Set saves the wallet's cursor.
func (s *BackfillCursorStore) Set(_ context.Context, cursor *storage.BackfillCursor) error {
	if cursor == nil || cursor.WalletID == "" || cursor.Signature == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.cursors[cursor.WalletID] = *cursor
	return nil
}
