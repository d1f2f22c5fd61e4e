package storage

import (
	"context"

	"solana-wallet-ledger/internal/domain"
)

// TradeLedger is the append-only store of canonical trades.
type TradeLedger interface {
	// Append inserts a trade. A trade whose (wallet_id, token_mint,
	// source_signature) already exists is not an error: created is false.
	Append(ctx context.Context, t *domain.Trade) (created bool, err error)

	// StreamByWalletToken returns the trades of one position in ledger order:
	// timestamp ASC, buys before sells, then source_signature ASC.
	StreamByWalletToken(ctx context.Context, walletID, tokenID string) ([]*domain.Trade, error)

	// TokensByWallet returns the distinct token mints traded by a wallet, sorted.
	TokensByWallet(ctx context.Context, walletID string) ([]string, error)

	// GetByID retrieves a trade by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id string) (*domain.Trade, error)
}

// ClosedLotStore holds derived closed lots. Lots are never updated in place;
// each recompute replaces the full set for a (wallet, token) key.
type ClosedLotStore interface {
	// ReplaceAll atomically deletes every lot of walletID for the given
	// tokenIDs and inserts lots. An empty lots slice still deletes.
	ReplaceAll(ctx context.Context, walletID string, tokenIDs []string, lots []*domain.ClosedLot) error

	// GetByWalletToken returns lots ordered by sequence_number, exit_time.
	GetByWalletToken(ctx context.Context, walletID, tokenID string) ([]*domain.ClosedLot, error)

	// GetByWallet returns every lot of a wallet ordered by token then sequence.
	GetByWallet(ctx context.Context, walletID string) ([]*domain.ClosedLot, error)
}
