package postgres

import (
	"context"
	"fmt"

	"solana-wallet-ledger/internal/storage"
)

// BackfillCursorStore is a PostgreSQL implementation of storage.BackfillCursorStore.
type BackfillCursorStore struct {
	pool *Pool
}

// NewBackfillCursorStore creates a new PostgreSQL backfill cursor store.
func NewBackfillCursorStore(pool *Pool) *BackfillCursorStore {
	return &BackfillCursorStore{pool: pool}
}

// Compile-time interface check.
var _ storage.BackfillCursorStore = (*BackfillCursorStore)(nil)

// Get returns the wallet's cursor.
func (s *BackfillCursorStore) Get(ctx context.Context, walletID string) (*storage.BackfillCursor, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT wallet_id, slot, signature
		FROM backfill_cursors
		WHERE wallet_id = $1
	`, walletID)

	var c storage.BackfillCursor
	if err := row.Scan(&c.WalletID, &c.Slot, &c.Signature); err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get backfill cursor: %w", err)
	}

	return &c, nil
}

// Set saves the wallet's cursor.
// Uses upsert to handle initial insert and subsequent updates.
func (s *BackfillCursorStore) Set(ctx context.Context, cursor *storage.BackfillCursor) error {
	if cursor == nil || cursor.WalletID == "" || cursor.Signature == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO backfill_cursors (wallet_id, slot, signature, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (wallet_id) DO UPDATE
		SET slot = EXCLUDED.slot,
		    signature = EXCLUDED.signature,
		    updated_at = NOW()
	`, cursor.WalletID, cursor.Slot, cursor.Signature)
	if err != nil {
		return fmt.Errorf("set backfill cursor: %w", err)
	}

	return nil
}
