package resolver

import (
	"github.com/shopspring/decimal"

	"solana-wallet-ledger/internal/classifier"
	"solana-wallet-ledger/internal/domain"
)

// Source names recorded on resolved trades.
const (
	SourceStructured      = "structured"
	SourceDescription     = "description"
	SourceLargestTransfer = "largest_transfer"
	SourceBalanceDelta    = "balance_delta"
)

// SourceFunc extracts a base amount for a candidate. It reports false when
// the event carries nothing usable.
type SourceFunc func(c *classifier.Candidate) (decimal.Decimal, bool)

// Source is a named amount source.
type Source struct {
	Name string
	Fn   SourceFunc
}

// DefaultSources returns the sources in priority order.
func DefaultSources(bases *domain.BaseSet) []Source {
	return []Source{
		{Name: SourceStructured, Fn: structuredSource(bases)},
		{Name: SourceDescription, Fn: descriptionSource(bases)},
		{Name: SourceLargestTransfer, Fn: largestTransferSource(bases)},
		{Name: SourceBalanceDelta, Fn: balanceDeltaSource(bases)},
	}
}

func matchesBase(bases *domain.BaseSet, mint, symbol string) bool {
	b, ok := bases.Lookup(mint)
	return ok && b.Symbol == symbol
}

func ownedBy(account, wallet string) bool {
	return account == "" || account == wallet
}

// structuredSource sums the wallet's base legs for the trade direction:
// base inputs for a buy, base outputs for a sell. Top-level legs win;
// inner swaps are summed only when the top level has none.
func structuredSource(bases *domain.BaseSet) SourceFunc {
	return func(c *classifier.Candidate) (decimal.Decimal, bool) {
		swap := c.Event.Swap
		if swap == nil {
			return decimal.Zero, false
		}

		sum := sumBaseLegs(bases, c, swap.NativeInput, swap.NativeOutput, swap.TokenInputs, swap.TokenOutputs)
		if sum.IsZero() {
			for _, hop := range swap.InnerSwaps {
				sum = sum.Add(sumBaseLegs(bases, c, hop.NativeInput, hop.NativeOutput, hop.TokenInputs, hop.TokenOutputs))
			}
		}
		return sum, sum.IsPositive()
	}
}

func sumBaseLegs(bases *domain.BaseSet, c *classifier.Candidate, nativeIn, nativeOut *domain.NativeLeg, tokenIn, tokenOut []domain.TokenLeg) decimal.Decimal {
	native, tokens := nativeIn, tokenIn
	if c.Side == domain.TradeSideSell {
		native, tokens = nativeOut, tokenOut
	}

	sum := decimal.Zero
	if native != nil && c.BaseSymbol == "SOL" && ownedBy(native.Account, c.Wallet) {
		sum = sum.Add(domain.LamportsToSOL(native.Lamports))
	}
	for _, leg := range tokens {
		if ownedBy(leg.Account, c.Wallet) && matchesBase(bases, leg.Mint, c.BaseSymbol) {
			sum = sum.Add(leg.Amount)
		}
	}
	return sum
}

// largestTransferSource returns the largest single base transfer touching
// the wallet, in either direction.
func largestTransferSource(bases *domain.BaseSet) SourceFunc {
	return func(c *classifier.Candidate) (decimal.Decimal, bool) {
		best := decimal.Zero
		if c.BaseSymbol == "SOL" {
			for _, t := range c.Event.NativeTransfers {
				if t.From != c.Wallet && t.To != c.Wallet {
					continue
				}
				if amt := domain.LamportsToSOL(t.Lamports).Abs(); amt.GreaterThan(best) {
					best = amt
				}
			}
		}
		for _, t := range c.Event.TokenTransfers {
			if t.From != c.Wallet && t.To != c.Wallet {
				continue
			}
			if !matchesBase(bases, t.Mint, c.BaseSymbol) {
				continue
			}
			if amt := t.Amount.Abs(); amt.GreaterThan(best) {
				best = amt
			}
		}
		return best, best.IsPositive()
	}
}

// balanceDeltaSource nets the wallet's account-level base balance changes.
func balanceDeltaSource(bases *domain.BaseSet) SourceFunc {
	return func(c *classifier.Candidate) (decimal.Decimal, bool) {
		sum := decimal.Zero
		for _, ad := range c.Event.AccountData {
			if ad.Account == c.Wallet && c.BaseSymbol == "SOL" {
				sum = sum.Add(domain.LamportsToSOL(ad.NativeBalanceChange))
			}
			for _, tc := range ad.TokenBalanceChanges {
				if tc.UserAccount == c.Wallet && matchesBase(bases, tc.Mint, c.BaseSymbol) {
					sum = sum.Add(tc.Amount)
				}
			}
		}
		sum = sum.Abs()
		return sum, sum.IsPositive()
	}
}
