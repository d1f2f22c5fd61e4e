package domain

import (
	"sort"
)

// SortTrades orders trades by (timestamp ASC, side buy-first, source_signature ASC).
// This is the canonical ledger order consumed by lot matching.
func SortTrades(trades []*Trade) {
	sort.SliceStable(trades, func(i, j int) bool {
		return CompareTrades(trades[i], trades[j]) < 0
	})
}

// CompareTrades returns:
//   - negative if a < b
//   - zero if a == b
//   - positive if a > b
func CompareTrades(a, b *Trade) int {
	if a.Timestamp != b.Timestamp {
		if a.Timestamp < b.Timestamp {
			return -1
		}
		return 1
	}
	if ra, rb := sideRank(a.Side), sideRank(b.Side); ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	if a.SourceSignature != b.SourceSignature {
		if a.SourceSignature < b.SourceSignature {
			return -1
		}
		return 1
	}
	return 0
}

func sideRank(s TradeSide) int {
	switch s {
	case TradeSideBuy:
		return 0
	case TradeSideSell:
		return 1
	default:
		return 2
	}
}
