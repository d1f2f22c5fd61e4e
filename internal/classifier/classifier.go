// Package classifier decides whether a normalized transaction event is a
// wallet trade and, if so, which token was traded in which direction.
package classifier

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"solana-wallet-ledger/internal/domain"
)

// Kind is the classification outcome.
type Kind string

const (
	KindNotATrade  Kind = "not_a_trade"
	KindBaseToBase Kind = "base_to_base"
	KindVoid       Kind = "void"
	KindCandidate  Kind = "candidate"
)

// Rejection reasons.
const (
	ReasonFailed        = "failed transaction"
	ReasonNoMovement    = "no movement"
	ReasonPureTransfer  = "pure transfer"
	ReasonSelfTransfer  = "self-transfer"
	ReasonNoBaseLeg     = "single leg without base movement"
	ReasonUnknownSource = "unknown source"
	ReasonNoReceived    = "multiple tokens sent"
)

// Candidate is a classified trade awaiting amount resolution.
type Candidate struct {
	Event       *domain.RawTransactionEvent
	Wallet      string
	TokenMint   string
	Side        domain.TradeSide
	TokenAmount decimal.Decimal
	BaseMint    string
	BaseSymbol  string
	// BaseFlows is the wallet's signed net flow per base symbol.
	BaseFlows  map[string]decimal.Decimal
	Structured bool
}

// Result is the output of Classify. Candidate is set for KindCandidate,
// VoidMint for KindVoid.
type Result struct {
	Kind      Kind
	Reason    string
	Candidate *Candidate
	VoidMint  string
}

// Config holds classifier settings.
type Config struct {
	KnownSources []string
	Bases        *domain.BaseSet
	// NoiseFloor is the minimum stablecoin movement that outranks SOL when
	// choosing the base currency.
	NoiseFloor decimal.Decimal
}

// Classifier is stateless and safe for concurrent use.
type Classifier struct {
	known      map[string]bool
	bases      *domain.BaseSet
	noiseFloor decimal.Decimal
}

// New creates a classifier. Empty fields fall back to defaults.
func New(cfg Config) *Classifier {
	sources := cfg.KnownSources
	if len(sources) == 0 {
		sources = domain.DefaultKnownSources
	}
	known := make(map[string]bool, len(sources))
	for _, s := range sources {
		known[strings.ToUpper(s)] = true
	}

	bases := cfg.Bases
	if bases == nil {
		bases = domain.DefaultBaseSet()
	}

	return &Classifier{
		known:      known,
		bases:      bases,
		noiseFloor: cfg.NoiseFloor,
	}
}

// Bases returns the base currency set.
func (c *Classifier) Bases() *domain.BaseSet {
	return c.bases
}

// Classify classifies ev from the point of view of wallet.
func (c *Classifier) Classify(ev *domain.RawTransactionEvent, wallet string) Result {
	if ev.Failed {
		return notATrade(ReasonFailed)
	}

	flows := structuredFlows(ev.Swap, wallet)
	structured := !flows.empty()
	if !structured {
		if !c.known[ev.Source] {
			return notATrade(ReasonUnknownSource)
		}
		flows = transferFlows(ev, wallet)
	}

	legs := c.newBaseLegs()
	var moved []string
	selfTransfer := false

	for _, mint := range flows.order {
		f := flows.byMint[mint]
		if legs.add(mint, f.net) {
			continue
		}
		if f.net.IsZero() {
			if f.in && f.out {
				selfTransfer = true
			}
			continue
		}
		moved = append(moved, mint)
	}

	switch len(moved) {
	case 0:
		if selfTransfer {
			return notATrade(ReasonSelfTransfer)
		}
		in, out := baseDirections(legs.flows)
		switch {
		case in && out:
			return Result{Kind: KindBaseToBase, Reason: "base currencies only"}
		case in || out:
			return notATrade(ReasonPureTransfer)
		default:
			return notATrade(ReasonNoMovement)
		}

	case 1:
		mint := moved[0]
		net := flows.byMint[mint].net
		side := domain.TradeSideBuy
		if net.IsNegative() {
			side = domain.TradeSideSell
		}

		symbol, ok := c.chooseBase(legs.flows, side)
		if !ok && structured {
			// Structured legs can omit the base side; take it from the
			// wallet's transfers, then from its balance changes.
			for _, fill := range []*flowSet{transferFlows(ev, wallet), balanceFlows(ev, wallet)} {
				alt := c.baseOnly(fill)
				if symbol, ok = c.chooseBase(alt.flows, side); ok {
					legs = alt
					break
				}
			}
		}
		if !ok {
			return notATrade(ReasonNoBaseLeg)
		}

		return Result{
			Kind: KindCandidate,
			Candidate: &Candidate{
				Event:       ev,
				Wallet:      wallet,
				TokenMint:   mint,
				Side:        side,
				TokenAmount: net.Abs(),
				BaseMint:    legs.mints[symbol],
				BaseSymbol:  symbol,
				BaseFlows:   legs.flows,
				Structured:  structured,
			},
		}

	default:
		received := ""
		var best decimal.Decimal
		for _, mint := range moved {
			if net := flows.byMint[mint].net; net.IsPositive() && net.GreaterThan(best) {
				received, best = mint, net
			}
		}
		if received == "" {
			return notATrade(ReasonNoReceived)
		}
		return Result{Kind: KindVoid, Reason: "token to token", VoidMint: received}
	}
}

// baseLegs accumulates the wallet's net flow per base symbol and the mint
// that moved most for each symbol.
type baseLegs struct {
	set   *domain.BaseSet
	flows map[string]decimal.Decimal
	mints map[string]string
	sizes map[string]decimal.Decimal
}

func (c *Classifier) newBaseLegs() *baseLegs {
	return &baseLegs{
		set:   c.bases,
		flows: make(map[string]decimal.Decimal),
		mints: make(map[string]string),
		sizes: make(map[string]decimal.Decimal),
	}
}

// add records net for mint when it is a base mint and reports whether it was.
func (b *baseLegs) add(mint string, net decimal.Decimal) bool {
	base, ok := b.set.Lookup(mint)
	if !ok {
		return false
	}
	b.flows[base.Symbol] = b.flows[base.Symbol].Add(net)
	if net.Abs().GreaterThan(b.sizes[base.Symbol]) || b.mints[base.Symbol] == "" {
		b.mints[base.Symbol] = mint
		b.sizes[base.Symbol] = net.Abs()
	}
	return true
}

// baseOnly keeps the base mints of flows.
func (c *Classifier) baseOnly(flows *flowSet) *baseLegs {
	out := c.newBaseLegs()
	for _, mint := range flows.order {
		out.add(mint, flows.byMint[mint].net)
	}
	return out
}

// chooseBase picks the base symbol paying for a buy (sent) or received
// for a sell. A stablecoin clearing the noise floor beats SOL, whose
// movement is then fees or rent; otherwise the largest movement wins.
func (c *Classifier) chooseBase(baseFlows map[string]decimal.Decimal, side domain.TradeSide) (string, bool) {
	symbols := make([]string, 0, len(baseFlows))
	for sym := range baseFlows {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	bestStable, bestAny := "", ""
	var stableSize, anySize decimal.Decimal
	for _, sym := range symbols {
		net := baseFlows[sym]
		if side == domain.TradeSideBuy && !net.IsNegative() {
			continue
		}
		if side == domain.TradeSideSell && !net.IsPositive() {
			continue
		}
		size := net.Abs()
		if size.GreaterThan(anySize) {
			bestAny, anySize = sym, size
		}
		if c.bases.IsStable(sym) && size.GreaterThanOrEqual(c.noiseFloor) && size.GreaterThan(stableSize) {
			bestStable, stableSize = sym, size
		}
	}

	if bestStable != "" {
		return bestStable, true
	}
	return bestAny, bestAny != ""
}

func baseDirections(baseFlows map[string]decimal.Decimal) (in, out bool) {
	for _, net := range baseFlows {
		if net.IsPositive() {
			in = true
		}
		if net.IsNegative() {
			out = true
		}
	}
	return in, out
}

func notATrade(reason string) Result {
	return Result{Kind: KindNotATrade, Reason: reason}
}
