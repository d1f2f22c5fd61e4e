package storage

import "context"

// BackfillCursor is the newest transaction already backfilled for a wallet.
type BackfillCursor struct {
	WalletID  string
	Slot      int64
	Signature string
}

// BackfillCursorStore persists backfill progress so a restarted backfill
// only fetches signatures newer than the cursor.
type BackfillCursorStore interface {
	// Get returns the wallet's cursor. Returns ErrNotFound if none was saved.
	Get(ctx context.Context, walletID string) (*BackfillCursor, error)

	// Set saves the wallet's cursor, replacing any previous one.
	Set(ctx context.Context, cursor *BackfillCursor) error
}
