// Package lots replays a (wallet, token) trade history into FIFO closed lots.
package lots

import (
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"solana-wallet-ledger/internal/domain"
)

// DefaultDustThreshold is the fraction of lifetime acquired size below which
// a leftover position is closed synthetically.
const DefaultDustThreshold = 0.02

var (
	// relTolerance is the fraction of a lot or sell below which a remainder
	// counts as fully consumed.
	relTolerance = decimal.New(1, -12)
	hundred      = decimal.NewFromInt(100)
)

// DefaultAccountingBases is the base-symbol allow-list for lot accounting.
var DefaultAccountingBases = []string{"SOL", "USDC", "USDT"}

// Options configures one replay.
type Options struct {
	// AccountingBases lists the base symbols that participate in matching.
	// Empty selects DefaultAccountingBases.
	AccountingBases []string
	// DustThreshold is a fraction of totalOriginalPosition. Zero selects
	// DefaultDustThreshold.
	DustThreshold float64
	// Now stamps the exit time of a dust closure. Nil selects time.Now.
	Now func() time.Time
}

// Lot is an open quantity awaiting disposal. Lots live only inside one replay.
type Lot struct {
	RemainingSize  float64
	EntryPrice     float64
	EntryTimestamp int64
	OriginTradeID  string
}

// MatchResult is the output of one full replay.
type MatchResult struct {
	WalletID              string
	TokenID               string
	ClosedLots            []*domain.ClosedLot
	OpenLots              []Lot
	Orphans               []*domain.OrphanSell
	TotalOriginalPosition float64
	// SequenceNumber is the sequence the next closed lot would carry.
	SequenceNumber int
	DustClosed     bool
	Skipped        int
}

// replayState is the fold state threaded through the replay loop. Sizes and
// prices are decimals; floats appear only on the produced ClosedLots.
type replayState struct {
	queue         []openLot
	totalOriginal decimal.Decimal
	sequence      int
	lastPrice     decimal.Decimal
	havePrice     bool
}

type openLot struct {
	original       decimal.Decimal
	remaining      decimal.Decimal
	entryPrice     decimal.Decimal
	entryTimestamp int64
	originTradeID  string
}

// Match replays trades for one (wallet, token) pair. Trades are consumed in
// ledger order; the input slice is not modified.
func Match(walletID, tokenID string, trades []*domain.Trade, opts Options) *MatchResult {
	opts = opts.withDefaults()
	allowed := make(map[string]bool, len(opts.AccountingBases))
	for _, b := range opts.AccountingBases {
		allowed[strings.ToUpper(b)] = true
	}

	ordered := make([]*domain.Trade, len(trades))
	copy(ordered, trades)
	domain.SortTrades(ordered)

	result := &MatchResult{WalletID: walletID, TokenID: tokenID}
	st := &replayState{sequence: 1}

	for _, t := range ordered {
		// 1. Eligibility: void trades and foreign bases never open or close lots
		if t.Side == domain.TradeSideVoid || !allowed[strings.ToUpper(t.BaseTokenSymbol)] {
			result.Skipped++
			continue
		}
		price := decimal.NewFromFloat(t.PriceBasePerToken)
		size := decimal.NewFromFloat(t.AmountToken)
		st.lastPrice = price
		st.havePrice = true

		switch t.Side {
		case domain.TradeSideBuy:
			// 2. Buy enqueues a lot
			st.queue = append(st.queue, openLot{
				original:       size,
				remaining:      size,
				entryPrice:     price,
				entryTimestamp: t.Timestamp,
				originTradeID:  t.ID,
			})
			st.totalOriginal = st.totalOriginal.Add(size)

		case domain.TradeSideSell:
			// 3. Sell consumes from the queue head
			lots, orphan := st.sell(walletID, tokenID, t, size, price)
			result.ClosedLots = append(result.ClosedLots, lots...)
			if orphan != nil {
				result.Orphans = append(result.Orphans, orphan)
			}
		}
	}

	// 4. Dust closure
	if lot := st.closeDust(walletID, tokenID, opts); lot != nil {
		result.ClosedLots = append(result.ClosedLots, lot)
		result.DustClosed = true
	}

	for _, l := range st.queue {
		result.OpenLots = append(result.OpenLots, Lot{
			RemainingSize:  l.remaining.InexactFloat64(),
			EntryPrice:     l.entryPrice.InexactFloat64(),
			EntryTimestamp: l.entryTimestamp,
			OriginTradeID:  l.originTradeID,
		})
	}
	result.TotalOriginalPosition = st.totalOriginal.InexactFloat64()
	result.SequenceNumber = st.sequence
	return result
}

// negligible reports whether v is float residue relative to scale. Ledger
// amounts pass through float64, so a sell equal to the sum of its buys can
// leave a remainder of a few ulps.
func negligible(v, scale decimal.Decimal) bool {
	return v.LessThanOrEqual(scale.Abs().Mul(relTolerance))
}

func (o Options) withDefaults() Options {
	if len(o.AccountingBases) == 0 {
		o.AccountingBases = DefaultAccountingBases
	}
	if o.DustThreshold <= 0 {
		o.DustThreshold = DefaultDustThreshold
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

func (st *replayState) sell(walletID, tokenID string, t *domain.Trade, size, price decimal.Decimal) ([]*domain.ClosedLot, *domain.OrphanSell) {
	demand := size
	var closed []*domain.ClosedLot

	for !negligible(demand, size) && len(st.queue) > 0 {
		head := &st.queue[0]
		consumed := decimal.Min(head.remaining, demand)

		closed = append(closed, newClosedLot(walletID, tokenID, consumed,
			head.entryPrice, price,
			head.entryTimestamp, t.Timestamp,
			head.originTradeID, t.ID, st.sequence))

		head.remaining = head.remaining.Sub(consumed)
		demand = demand.Sub(consumed)
		if negligible(head.remaining, head.original) {
			st.queue = st.queue[1:]
		}
	}

	// The sequence ends when this sell empties the queue.
	if len(closed) > 0 && len(st.queue) == 0 {
		st.sequence++
	}

	if negligible(demand, size) {
		return closed, nil
	}
	return closed, &domain.OrphanSell{
		WalletID:      walletID,
		TokenID:       tokenID,
		SellTradeID:   t.ID,
		Timestamp:     t.Timestamp,
		UnmatchedSize: demand.InexactFloat64(),
		SellPrice:     t.PriceBasePerToken,
	}
}

func (st *replayState) closeDust(walletID, tokenID string, opts Options) *domain.ClosedLot {
	var remaining, cost decimal.Decimal
	for _, l := range st.queue {
		remaining = remaining.Add(l.remaining)
		cost = cost.Add(l.remaining.Mul(l.entryPrice))
	}
	threshold := decimal.NewFromFloat(opts.DustThreshold).Mul(st.totalOriginal)
	if negligible(remaining, st.totalOriginal) || remaining.GreaterThanOrEqual(threshold) {
		return nil
	}

	avgEntry := cost.Div(remaining)
	exitPrice := avgEntry
	if st.havePrice {
		exitPrice = st.lastPrice
	}

	lot := newClosedLot(walletID, tokenID, remaining,
		avgEntry, exitPrice,
		st.queue[0].entryTimestamp, opts.Now().UnixMilli(),
		domain.SyntheticTradeID, domain.SyntheticTradeID, st.sequence)

	st.queue = nil
	st.sequence++
	return lot
}

func newClosedLot(
	walletID, tokenID string,
	size, entryPrice, exitPrice decimal.Decimal,
	entryTime, exitTime int64,
	buyID, sellID string,
	sequence int,
) *domain.ClosedLot {
	costBasis := size.Mul(entryPrice)
	proceeds := size.Mul(exitPrice)
	pnl := proceeds.Sub(costBasis)

	var pnlPercent decimal.Decimal
	if !costBasis.IsZero() {
		pnlPercent = pnl.Div(costBasis).Mul(hundred)
	}

	return &domain.ClosedLot{
		WalletID:           walletID,
		TokenID:            tokenID,
		Size:               size.InexactFloat64(),
		EntryPrice:         entryPrice.InexactFloat64(),
		ExitPrice:          exitPrice.InexactFloat64(),
		EntryTime:          entryTime,
		ExitTime:           exitTime,
		HoldTimeMinutes:    int64(math.Round(float64(exitTime-entryTime) / 60000)),
		CostBasis:          costBasis.InexactFloat64(),
		Proceeds:           proceeds.InexactFloat64(),
		RealizedPnl:        pnl.InexactFloat64(),
		RealizedPnlPercent: pnlPercent.InexactFloat64(),
		BuyTradeID:         buyID,
		SellTradeID:        sellID,
		CostKnown:          true,
		SequenceNumber:     sequence,
	}
}
