package domain

import (
	"errors"
	"fmt"
)

// ErrMalformedTrade is returned when a trade has non-positive amounts or price.
var ErrMalformedTrade = errors.New("malformed trade")

// TradeSide is the direction of a trade from the wallet's point of view.
type TradeSide string

const (
	TradeSideBuy  TradeSide = "buy"
	TradeSideSell TradeSide = "sell"
	// TradeSideVoid marks a token-to-token swap with no usable base amount.
	TradeSideVoid TradeSide = "void"
)

// String returns the string representation of TradeSide.
func (s TradeSide) String() string {
	return string(s)
}

// IsValid checks if the side is a valid value.
func (s TradeSide) IsValid() bool {
	return s == TradeSideBuy || s == TradeSideSell || s == TradeSideVoid
}

// Trade is one canonical wallet trade. Trades are created once and never mutated.
// Corresponds to trades table in PostgreSQL.
type Trade struct {
	ID                string // deterministic hash of (wallet, mint, signature)
	WalletID          string
	TokenMint         string
	Side              TradeSide
	AmountToken       float64 // human units
	AmountBase        float64 // human units of BaseTokenSymbol
	PriceBasePerToken float64
	BaseTokenSymbol   string
	Timestamp         int64 // Unix timestamp in milliseconds
	SourceSignature   string
	DexLabel          string
	ResolvedFrom      string // amount source that produced AmountBase
	CreatedAt         int64  // record creation timestamp (ms)
}

// Validate checks the trade shape. Void trades may carry zero amounts.
func (t *Trade) Validate() error {
	if t.WalletID == "" || t.TokenMint == "" || t.SourceSignature == "" {
		return fmt.Errorf("%w: missing identity fields", ErrMalformedTrade)
	}
	if !t.Side.IsValid() {
		return fmt.Errorf("%w: invalid side %q", ErrMalformedTrade, t.Side)
	}
	if t.Side == TradeSideVoid {
		return nil
	}
	if t.AmountToken <= 0 || t.AmountBase <= 0 || t.PriceBasePerToken <= 0 {
		return fmt.Errorf("%w: token=%g base=%g price=%g",
			ErrMalformedTrade, t.AmountToken, t.AmountBase, t.PriceBasePerToken)
	}
	return nil
}
