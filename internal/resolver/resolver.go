// Package resolver determines the base-currency amount of a classified
// trade from an ordered list of amount sources.
package resolver

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"solana-wallet-ledger/internal/classifier"
	"solana-wallet-ledger/internal/domain"
)

// ErrAmbiguousAmount is returned when no source yields a base amount at or
// above the noise floor.
var ErrAmbiguousAmount = errors.New("ambiguous amount")

// DefaultNoiseFloor is the minimum credible base amount.
var DefaultNoiseFloor = decimal.RequireFromString("0.1")

// Resolution is a resolved trade amount.
type Resolution struct {
	AmountToken decimal.Decimal
	AmountBase  decimal.Decimal
	Price       decimal.Decimal // base per token
	Source      string
}

// Resolver evaluates sources in order and stops at the first credible value.
// It holds no mutable state and is safe for concurrent use.
type Resolver struct {
	sources    []Source
	noiseFloor decimal.Decimal
}

// New creates a resolver with the default sources.
func New(bases *domain.BaseSet, noiseFloor decimal.Decimal) *Resolver {
	if bases == nil {
		bases = domain.DefaultBaseSet()
	}
	return NewWithSources(noiseFloor, DefaultSources(bases)...)
}

// NewWithSources creates a resolver over a custom source list.
func NewWithSources(noiseFloor decimal.Decimal, sources ...Source) *Resolver {
	return &Resolver{sources: sources, noiseFloor: noiseFloor}
}

// amount is a candidate base amount and where it came from.
type amount struct {
	value  decimal.Decimal
	source string
	ok     bool
}

// prefer returns the preferred of cur and next. An above-floor value is
// never replaced; a sub-floor one yields to a later above-floor value.
func (r *Resolver) prefer(cur, next amount) amount {
	if !next.ok {
		return cur
	}
	if !cur.ok {
		return next
	}
	if r.credible(cur.value) {
		return cur
	}
	if r.credible(next.value) {
		return next
	}
	return cur
}

func (r *Resolver) credible(v decimal.Decimal) bool {
	return v.GreaterThanOrEqual(r.noiseFloor)
}

// Resolve computes the base amount and price for c. Sources are evaluated
// lazily: later sources run only while no credible value has been found.
func (r *Resolver) Resolve(c *classifier.Candidate) (*Resolution, error) {
	var best amount
	for _, src := range r.sources {
		if best.ok && r.credible(best.value) {
			break
		}
		v, ok := src.Fn(c)
		best = r.prefer(best, amount{value: v, source: src.Name, ok: ok})
	}

	if !best.ok || !r.credible(best.value) {
		if best.ok {
			return nil, fmt.Errorf("%w: best %s from %s below floor %s",
				ErrAmbiguousAmount, best.value, best.source, r.noiseFloor)
		}
		return nil, fmt.Errorf("%w: no source produced a %s amount", ErrAmbiguousAmount, c.BaseSymbol)
	}

	if !c.TokenAmount.IsPositive() || !best.value.IsPositive() {
		return nil, fmt.Errorf("%w: token=%s base=%s", domain.ErrMalformedTrade, c.TokenAmount, best.value)
	}

	return &Resolution{
		AmountToken: c.TokenAmount,
		AmountBase:  best.value,
		Price:       best.value.DivRound(c.TokenAmount, 18),
		Source:      best.source,
	}, nil
}
