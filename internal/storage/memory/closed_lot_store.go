package memory

import (
	"context"
	"sort"
	"sync"

	"solana-wallet-ledger/internal/domain"
	"solana-wallet-ledger/internal/storage"
)

type positionKey struct {
	wallet string
	token  string
}

// ClosedLotStore is an in-memory implementation of storage.ClosedLotStore.
type ClosedLotStore struct {
	mu   sync.RWMutex
	data map[positionKey][]*domain.ClosedLot
}

// NewClosedLotStore creates a new in-memory closed lot store.
func NewClosedLotStore() *ClosedLotStore {
	return &ClosedLotStore{
		data: make(map[positionKey][]*domain.ClosedLot),
	}
}

// Compile-time interface check.
var _ storage.ClosedLotStore = (*ClosedLotStore)(nil)

// lotKey is the closed_lots primary key.
type lotKey struct {
	wallet string
	token  string
	seq    int
	buy    string
	sell   string
}

// ReplaceAll deletes the lots of every (walletID, tokenID) and inserts lots.
// Either everything is applied or nothing is.
func (s *ClosedLotStore) ReplaceAll(_ context.Context, walletID string, tokenIDs []string, lots []*domain.ClosedLot) error {
	if walletID == "" {
		return storage.ErrInvalidInput
	}

	scope := make(map[string]bool, len(tokenIDs))
	for _, id := range tokenIDs {
		scope[id] = true
	}

	// Validate the whole batch before touching state.
	seen := make(map[lotKey]struct{}, len(lots))
	for _, l := range lots {
		if l == nil || l.WalletID != walletID || !scope[l.TokenID] {
			return storage.ErrInvalidInput
		}
		k := lotKey{l.WalletID, l.TokenID, l.SequenceNumber, l.BuyTradeID, l.SellTradeID}
		if _, dup := seen[k]; dup {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range tokenIDs {
		delete(s.data, positionKey{wallet: walletID, token: id})
	}
	for _, l := range lots {
		copy := *l
		k := positionKey{wallet: walletID, token: l.TokenID}
		s.data[k] = append(s.data[k], &copy)
	}
	return nil
}

// GetByWalletToken returns a position's lots ordered by sequence, exit time.
func (s *ClosedLotStore) GetByWalletToken(_ context.Context, walletID, tokenID string) ([]*domain.ClosedLot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := copyLots(s.data[positionKey{wallet: walletID, token: tokenID}])
	sortLots(result)
	return result, nil
}

// GetByWallet returns every lot of walletID ordered by token, sequence, exit time.
func (s *ClosedLotStore) GetByWallet(_ context.Context, walletID string) ([]*domain.ClosedLot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ClosedLot
	for k, lots := range s.data {
		if k.wallet == walletID {
			result = append(result, copyLots(lots)...)
		}
	}
	sortLots(result)
	return result, nil
}

func copyLots(lots []*domain.ClosedLot) []*domain.ClosedLot {
	out := make([]*domain.ClosedLot, 0, len(lots))
	for _, l := range lots {
		copy := *l
		out = append(out, &copy)
	}
	return out
}

func sortLots(lots []*domain.ClosedLot) {
	sort.SliceStable(lots, func(i, j int) bool {
		a, b := lots[i], lots[j]
		if a.TokenID != b.TokenID {
			return a.TokenID < b.TokenID
		}
		if a.SequenceNumber != b.SequenceNumber {
			return a.SequenceNumber < b.SequenceNumber
		}
		if a.ExitTime != b.ExitTime {
			return a.ExitTime < b.ExitTime
		}
		return a.EntryTime < b.EntryTime
	})
}
