package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"solana-wallet-ledger/internal/domain"
	"solana-wallet-ledger/internal/storage"
)

// ClosedLotStore implements storage.ClosedLotStore using PostgreSQL.
type ClosedLotStore struct {
	pool *Pool
}

// NewClosedLotStore creates a new ClosedLotStore.
func NewClosedLotStore(pool *Pool) *ClosedLotStore {
	return &ClosedLotStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ClosedLotStore = (*ClosedLotStore)(nil)

var closedLotCopyColumns = []string{
	"wallet_id", "token_id", "sequence_number", "buy_trade_id", "sell_trade_id",
	"size", "entry_price", "exit_price", "entry_time_ms", "exit_time_ms", "hold_time_minutes",
	"cost_basis", "proceeds", "realized_pnl", "realized_pnl_percent",
	"is_pre_history", "cost_known",
}

const closedLotColumns = `
	wallet_id, token_id, sequence_number, buy_trade_id, sell_trade_id,
	size, entry_price, exit_price, entry_time_ms, exit_time_ms, hold_time_minutes,
	cost_basis, proceeds, realized_pnl, realized_pnl_percent,
	is_pre_history, cost_known`

// ReplaceAll deletes the lots of every (walletID, tokenID) and copies lots
// in, all in one transaction.
func (s *ClosedLotStore) ReplaceAll(ctx context.Context, walletID string, tokenIDs []string, lots []*domain.ClosedLot) error {
	if walletID == "" {
		return storage.ErrInvalidInput
	}
	scope := make(map[string]bool, len(tokenIDs))
	for _, id := range tokenIDs {
		scope[id] = true
	}
	for _, l := range lots {
		if l == nil || l.WalletID != walletID || !scope[l.TokenID] {
			return storage.ErrInvalidInput
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if len(tokenIDs) > 0 {
		_, err = tx.Exec(ctx, `
			DELETE FROM closed_lots
			WHERE wallet_id = $1 AND token_id = ANY($2)
		`, walletID, tokenIDs)
		if err != nil {
			return fmt.Errorf("delete closed lots: %w", err)
		}
	}

	if len(lots) > 0 {
		rows := make([][]any, 0, len(lots))
		for _, l := range lots {
			rows = append(rows, []any{
				l.WalletID, l.TokenID, l.SequenceNumber, l.BuyTradeID, l.SellTradeID,
				l.Size, l.EntryPrice, l.ExitPrice, l.EntryTime, l.ExitTime, l.HoldTimeMinutes,
				l.CostBasis, l.Proceeds, l.RealizedPnl, l.RealizedPnlPercent,
				l.IsPreHistory, l.CostKnown,
			})
		}

		_, err = tx.CopyFrom(ctx, pgx.Identifier{"closed_lots"}, closedLotCopyColumns, pgx.CopyFromRows(rows))
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("copy closed lots: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// GetByWalletToken returns a position's lots ordered by sequence, exit time.
func (s *ClosedLotStore) GetByWalletToken(ctx context.Context, walletID, tokenID string) ([]*domain.ClosedLot, error) {
	query := `
		SELECT ` + closedLotColumns + `
		FROM closed_lots
		WHERE wallet_id = $1 AND token_id = $2
		ORDER BY sequence_number ASC, exit_time_ms ASC, entry_time_ms ASC
	`

	rows, err := s.pool.Query(ctx, query, walletID, tokenID)
	if err != nil {
		return nil, fmt.Errorf("get closed lots by wallet token: %w", err)
	}
	defer rows.Close()

	return scanClosedLots(rows)
}

// GetByWallet returns every lot of walletID ordered by token, sequence, exit time.
func (s *ClosedLotStore) GetByWallet(ctx context.Context, walletID string) ([]*domain.ClosedLot, error) {
	query := `
		SELECT ` + closedLotColumns + `
		FROM closed_lots
		WHERE wallet_id = $1
		ORDER BY token_id COLLATE "C" ASC, sequence_number ASC, exit_time_ms ASC, entry_time_ms ASC
	`

	rows, err := s.pool.Query(ctx, query, walletID)
	if err != nil {
		return nil, fmt.Errorf("get closed lots by wallet: %w", err)
	}
	defer rows.Close()

	return scanClosedLots(rows)
}

func scanClosedLots(rows pgx.Rows) ([]*domain.ClosedLot, error) {
	var lots []*domain.ClosedLot

	for rows.Next() {
		var l domain.ClosedLot

		err := rows.Scan(
			&l.WalletID, &l.TokenID, &l.SequenceNumber, &l.BuyTradeID, &l.SellTradeID,
			&l.Size, &l.EntryPrice, &l.ExitPrice, &l.EntryTime, &l.ExitTime, &l.HoldTimeMinutes,
			&l.CostBasis, &l.Proceeds, &l.RealizedPnl, &l.RealizedPnlPercent,
			&l.IsPreHistory, &l.CostKnown,
		)
		if err != nil {
			return nil, fmt.Errorf("scan closed lot row: %w", err)
		}

		lots = append(lots, &l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate closed lot rows: %w", err)
	}

	return lots, nil
}
