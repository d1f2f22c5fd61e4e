package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"solana-wallet-ledger/internal/domain"
	"solana-wallet-ledger/internal/storage"
)

// TradeLedger implements storage.TradeLedger using PostgreSQL.
type TradeLedger struct {
	pool *Pool
}

// NewTradeLedger creates a new TradeLedger.
func NewTradeLedger(pool *Pool) *TradeLedger {
	return &TradeLedger{pool: pool}
}

// Compile-time interface check.
var _ storage.TradeLedger = (*TradeLedger)(nil)

const tradeColumns = `
	id, wallet_id, token_mint, side,
	amount_token, amount_base, price_base_per_token, base_token_symbol,
	timestamp_ms, source_signature, dex_label, resolved_from, created_at_ms`

// Append inserts a trade. A conflicting (wallet_id, token_mint,
// source_signature) is skipped and reported as created=false.
func (s *TradeLedger) Append(ctx context.Context, t *domain.Trade) (bool, error) {
	if t == nil || t.ID == "" || t.WalletID == "" || t.TokenMint == "" || t.SourceSignature == "" {
		return false, storage.ErrInvalidInput
	}

	query := `
		INSERT INTO trades (` + tradeColumns + `
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8,
			$9, $10, $11, $12, $13
		)
		ON CONFLICT DO NOTHING
	`

	tag, err := s.pool.Exec(ctx, query,
		t.ID, t.WalletID, t.TokenMint, string(t.Side),
		t.AmountToken, t.AmountBase, t.PriceBasePerToken, t.BaseTokenSymbol,
		t.Timestamp, t.SourceSignature, t.DexLabel, t.ResolvedFrom, t.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert trade: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// StreamByWalletToken returns the position's trades in ledger order.
// Signatures compare bytewise so the order matches domain.SortTrades.
func (s *TradeLedger) StreamByWalletToken(ctx context.Context, walletID, tokenID string) ([]*domain.Trade, error) {
	query := `
		SELECT ` + tradeColumns + `
		FROM trades
		WHERE wallet_id = $1 AND token_mint = $2
		ORDER BY timestamp_ms ASC,
			CASE side WHEN 'buy' THEN 0 WHEN 'sell' THEN 1 ELSE 2 END ASC,
			source_signature COLLATE "C" ASC
	`

	rows, err := s.pool.Query(ctx, query, walletID, tokenID)
	if err != nil {
		return nil, fmt.Errorf("get trades by wallet token: %w", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

// TokensByWallet returns the distinct mints traded by walletID, sorted.
func (s *TradeLedger) TokensByWallet(ctx context.Context, walletID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT token_mint
		FROM trades
		WHERE wallet_id = $1
		ORDER BY token_mint COLLATE "C" ASC
	`, walletID)
	if err != nil {
		return nil, fmt.Errorf("get tokens by wallet: %w", err)
	}
	defer rows.Close()

	var mints []string
	for rows.Next() {
		var mint string
		if err := rows.Scan(&mint); err != nil {
			return nil, fmt.Errorf("scan token mint: %w", err)
		}
		mints = append(mints, mint)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate token mints: %w", err)
	}
	return mints, nil
}

// GetByID retrieves a trade by its ID. Returns ErrNotFound if not exists.
func (s *TradeLedger) GetByID(ctx context.Context, id string) (*domain.Trade, error) {
	query := `
		SELECT ` + tradeColumns + `
		FROM trades
		WHERE id = $1
	`

	row := s.pool.QueryRow(ctx, query, id)
	t, err := scanTrade(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get trade by id: %w", err)
	}
	return t, nil
}

// scanTrade scans a single row into a Trade.
func scanTrade(row pgx.Row) (*domain.Trade, error) {
	var t domain.Trade
	var side string

	err := row.Scan(
		&t.ID, &t.WalletID, &t.TokenMint, &side,
		&t.AmountToken, &t.AmountBase, &t.PriceBasePerToken, &t.BaseTokenSymbol,
		&t.Timestamp, &t.SourceSignature, &t.DexLabel, &t.ResolvedFrom, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Side = domain.TradeSide(side)
	return &t, nil
}

// scanTrades scans multiple rows into a slice of Trade.
func scanTrades(rows pgx.Rows) ([]*domain.Trade, error) {
	var trades []*domain.Trade

	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade row: %w", err)
		}
		trades = append(trades, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade rows: %w", err)
	}

	return trades, nil
}
