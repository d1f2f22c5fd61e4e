package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"solana-wallet-ledger/internal/domain"
	"solana-wallet-ledger/internal/observability"
	"solana-wallet-ledger/internal/storage"
)

// ClosedLotStore mirrors closed lots into ClickHouse for analytics.
// PostgreSQL stays the source of truth.
type ClosedLotStore struct {
	conn *Conn
}

// NewClosedLotStore creates a new ClosedLotStore.
func NewClosedLotStore(conn *Conn) *ClosedLotStore {
	return &ClosedLotStore{conn: conn}
}

// Compile-time interface check.
var _ storage.ClosedLotStore = (*ClosedLotStore)(nil)

// ReplaceAll deletes the (walletID, tokenIDs) rows with a synchronous
// mutation, then batch-inserts lots. ClickHouse has no transactions, so a
// failed insert leaves the key empty until the next recompute.
func (s *ClosedLotStore) ReplaceAll(ctx context.Context, walletID string, tokenIDs []string, lots []*domain.ClosedLot) (err error) {
	if walletID == "" {
		return storage.ErrInvalidInput
	}

	start := time.Now()
	defer func() {
		observability.RecordDBQuery("clickhouse", "replace_closed_lots", time.Since(start).Seconds(), err)
	}()

	if len(tokenIDs) > 0 {
		syncCtx := clickhouse.Context(ctx, clickhouse.WithSettings(clickhouse.Settings{
			"mutations_sync": 2,
		}))
		err := s.conn.Exec(syncCtx, `
			ALTER TABLE closed_lots DELETE
			WHERE wallet_id = ? AND token_id IN (?)
		`, walletID, tokenIDs)
		if err != nil {
			return fmt.Errorf("delete closed lots: %w", err)
		}
	}

	if len(lots) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO closed_lots (
			wallet_id, token_id, sequence_number, buy_trade_id, sell_trade_id,
			size, entry_price, exit_price, entry_time_ms, exit_time_ms, hold_time_minutes,
			cost_basis, proceeds, realized_pnl, realized_pnl_percent,
			is_pre_history, cost_known
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, l := range lots {
		err = batch.Append(
			l.WalletID, l.TokenID, uint32(l.SequenceNumber), l.BuyTradeID, l.SellTradeID,
			l.Size, l.EntryPrice, l.ExitPrice, l.EntryTime, l.ExitTime, l.HoldTimeMinutes,
			l.CostBasis, l.Proceeds, l.RealizedPnl, l.RealizedPnlPercent,
			boolToUInt8(l.IsPreHistory), boolToUInt8(l.CostKnown),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByWalletToken returns a position's lots ordered by sequence, exit time.
func (s *ClosedLotStore) GetByWalletToken(ctx context.Context, walletID, tokenID string) ([]*domain.ClosedLot, error) {
	query := `
		SELECT ` + closedLotColumns + `
		FROM closed_lots
		WHERE wallet_id = ? AND token_id = ?
		ORDER BY sequence_number ASC, exit_time_ms ASC, entry_time_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, walletID, tokenID)
	if err != nil {
		return nil, fmt.Errorf("query closed lots by wallet token: %w", err)
	}
	defer rows.Close()

	return scanClosedLots(rows)
}

// GetByWallet returns every lot of walletID.
func (s *ClosedLotStore) GetByWallet(ctx context.Context, walletID string) ([]*domain.ClosedLot, error) {
	query := `
		SELECT ` + closedLotColumns + `
		FROM closed_lots
		WHERE wallet_id = ?
		ORDER BY token_id ASC, sequence_number ASC, exit_time_ms ASC, entry_time_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, walletID)
	if err != nil {
		return nil, fmt.Errorf("query closed lots by wallet: %w", err)
	}
	defer rows.Close()

	return scanClosedLots(rows)
}

const closedLotColumns = `
	wallet_id, token_id, sequence_number, buy_trade_id, sell_trade_id,
	size, entry_price, exit_price, entry_time_ms, exit_time_ms, hold_time_minutes,
	cost_basis, proceeds, realized_pnl, realized_pnl_percent,
	is_pre_history, cost_known`

func scanClosedLots(rows driver.Rows) ([]*domain.ClosedLot, error) {
	var lots []*domain.ClosedLot

	for rows.Next() {
		var (
			l          domain.ClosedLot
			seq        uint32
			preHistory uint8
			costKnown  uint8
		)

		err := rows.Scan(
			&l.WalletID, &l.TokenID, &seq, &l.BuyTradeID, &l.SellTradeID,
			&l.Size, &l.EntryPrice, &l.ExitPrice, &l.EntryTime, &l.ExitTime, &l.HoldTimeMinutes,
			&l.CostBasis, &l.Proceeds, &l.RealizedPnl, &l.RealizedPnlPercent,
			&preHistory, &costKnown,
		)
		if err != nil {
			return nil, fmt.Errorf("scan closed lot row: %w", err)
		}

		l.SequenceNumber = int(seq)
		l.IsPreHistory = preHistory == 1
		l.CostKnown = costKnown == 1
		lots = append(lots, &l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate closed lot rows: %w", err)
	}

	return lots, nil
}

func boolToUInt8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
