package domain

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Well-known base currency mints.
const (
	// NativeSOLMint is the pseudo-mint used for native lamport movements.
	NativeSOLMint = "SOL"
	WSOLMint      = "So11111111111111111111111111111111111111112"
	USDCMint      = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	USDTMint      = "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB"
)

// SOLDecimals is the decimals of native SOL and WSOL.
const SOLDecimals = 9

// LamportsToSOL converts lamports to SOL.
func LamportsToSOL(lamports int64) decimal.Decimal {
	return decimal.New(lamports, -SOLDecimals)
}

// BaseCurrency is a settlement currency that never counts as a traded token.
type BaseCurrency struct {
	Mint     string
	Symbol   string
	Stable   bool
	Decimals int32
}

// BaseSet is an immutable lookup of base currencies by mint.
type BaseSet struct {
	byMint map[string]BaseCurrency
}

// DefaultBaseCurrencies returns SOL (native and wrapped), USDC and USDT.
func DefaultBaseCurrencies() []BaseCurrency {
	return []BaseCurrency{
		{Mint: NativeSOLMint, Symbol: "SOL", Decimals: SOLDecimals},
		{Mint: WSOLMint, Symbol: "SOL", Decimals: SOLDecimals},
		{Mint: USDCMint, Symbol: "USDC", Stable: true, Decimals: 6},
		{Mint: USDTMint, Symbol: "USDT", Stable: true, Decimals: 6},
	}
}

// NewBaseSet builds a BaseSet. Native SOL is always present.
func NewBaseSet(currencies []BaseCurrency) *BaseSet {
	s := &BaseSet{byMint: make(map[string]BaseCurrency, len(currencies)+1)}
	s.byMint[NativeSOLMint] = BaseCurrency{Mint: NativeSOLMint, Symbol: "SOL", Decimals: SOLDecimals}
	for _, c := range currencies {
		s.byMint[c.Mint] = c
	}
	return s
}

// DefaultBaseSet returns a BaseSet of DefaultBaseCurrencies.
func DefaultBaseSet() *BaseSet {
	return NewBaseSet(DefaultBaseCurrencies())
}

// Lookup returns the base currency for a mint.
func (s *BaseSet) Lookup(mint string) (BaseCurrency, bool) {
	c, ok := s.byMint[mint]
	return c, ok
}

// IsBase reports whether mint is a base currency.
func (s *BaseSet) IsBase(mint string) bool {
	_, ok := s.byMint[mint]
	return ok
}

// IsStable reports whether any stablecoin base currency carries symbol.
func (s *BaseSet) IsStable(symbol string) bool {
	for _, c := range s.byMint {
		if c.Symbol == symbol && c.Stable {
			return true
		}
	}
	return false
}

// Symbols returns the distinct base symbols, sorted.
func (s *BaseSet) Symbols() []string {
	seen := make(map[string]struct{})
	for _, c := range s.byMint {
		seen[c.Symbol] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for sym := range seen {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// HasSymbol reports whether any base currency carries symbol.
func (s *BaseSet) HasSymbol(symbol string) bool {
	for _, c := range s.byMint {
		if c.Symbol == symbol {
			return true
		}
	}
	return false
}
