package domain

// SyntheticTradeID marks the buy and sell ids of a dust-closure lot.
const SyntheticTradeID = "synthetic"

// ClosedLot is one consumed lot fragment produced by FIFO matching.
// Corresponds to closed_lots table in PostgreSQL.
type ClosedLot struct {
	WalletID           string
	TokenID            string
	Size               float64
	EntryPrice         float64
	ExitPrice          float64
	EntryTime          int64 // ms
	ExitTime           int64 // ms
	HoldTimeMinutes    int64
	CostBasis          float64
	Proceeds           float64
	RealizedPnl        float64
	RealizedPnlPercent float64
	BuyTradeID         string
	SellTradeID        string
	IsPreHistory       bool
	CostKnown          bool
	SequenceNumber     int
}

// IsSynthetic reports whether the lot was produced by dust closure.
func (l *ClosedLot) IsSynthetic() bool {
	return l.BuyTradeID == SyntheticTradeID && l.SellTradeID == SyntheticTradeID
}

// OrphanSell records sell volume that had no open lot to match against,
// typically activity predating the tracked history.
type OrphanSell struct {
	WalletID      string
	TokenID       string
	SellTradeID   string
	Timestamp     int64
	UnmatchedSize float64
	SellPrice     float64
}
