package memory

import (
	"context"
	"sort"
	"sync"

	"solana-wallet-ledger/internal/domain"
	"solana-wallet-ledger/internal/storage"
)

type tradeKey struct {
	wallet    string
	mint      string
	signature string
}

// TradeLedger is an in-memory implementation of storage.TradeLedger.
type TradeLedger struct {
	mu    sync.RWMutex
	byKey map[tradeKey]*domain.Trade
	byID  map[string]*domain.Trade
}

// NewTradeLedger creates a new in-memory trade ledger.
func NewTradeLedger() *TradeLedger {
	return &TradeLedger{
		byKey: make(map[tradeKey]*domain.Trade),
		byID:  make(map[string]*domain.Trade),
	}
}

// Compile-time interface check.
var _ storage.TradeLedger = (*TradeLedger)(nil)

// Append inserts a trade. Resubmitting the same (wallet, mint, signature)
// returns created=false.
func (s *TradeLedger) Append(_ context.Context, t *domain.Trade) (bool, error) {
	if t == nil || t.ID == "" || t.WalletID == "" || t.TokenMint == "" || t.SourceSignature == "" {
		return false, storage.ErrInvalidInput
	}

	key := tradeKey{wallet: t.WalletID, mint: t.TokenMint, signature: t.SourceSignature}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byKey[key]; exists {
		return false, nil
	}

	copy := *t
	s.byKey[key] = &copy
	s.byID[t.ID] = &copy
	return true, nil
}

// StreamByWalletToken returns the position's trades in ledger order.
func (s *TradeLedger) StreamByWalletToken(_ context.Context, walletID, tokenID string) ([]*domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Trade
	for k, t := range s.byKey {
		if k.wallet == walletID && k.mint == tokenID {
			copy := *t
			result = append(result, &copy)
		}
	}

	domain.SortTrades(result)
	return result, nil
}

// TokensByWallet returns the distinct mints traded by walletID, sorted.
func (s *TradeLedger) TokensByWallet(_ context.Context, walletID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for k := range s.byKey {
		if k.wallet == walletID {
			seen[k.mint] = struct{}{}
		}
	}

	mints := make([]string, 0, len(seen))
	for m := range seen {
		mints = append(mints, m)
	}
	sort.Strings(mints)
	return mints, nil
}

// GetByID retrieves a trade by its ID. Returns ErrNotFound if not exists.
func (s *TradeLedger) GetByID(_ context.Context, id string) (*domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.byID[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copy := *t
	return &copy, nil
}
