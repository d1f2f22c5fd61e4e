package resolver

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"solana-wallet-ledger/internal/classifier"
	"solana-wallet-ledger/internal/domain"
)

const (
	wallet   = "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU"
	other    = "5Q544fKrFoe6tsEbD7S8EmxGTJYAKtTVhAW5Q5pge4j1"
	bonkMint = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func candidate(ev *domain.RawTransactionEvent, side domain.TradeSide, base string) *classifier.Candidate {
	return &classifier.Candidate{
		Event:       ev,
		Wallet:      wallet,
		TokenMint:   bonkMint,
		Side:        side,
		TokenAmount: dec("1000"),
		BaseSymbol:  base,
	}
}

func newTestResolver() *Resolver {
	return New(domain.DefaultBaseSet(), DefaultNoiseFloor)
}

func TestResolve_DescriptionBeatsSubFloorStructured(t *testing.T) {
	ev := &domain.RawTransactionEvent{
		Description: "7xKX swapped 2.5 SOL for 1,000 BONK",
		Swap: &domain.SwapEvent{
			NativeInput:  &domain.NativeLeg{Account: wallet, Lamports: 1_000_000},
			TokenOutputs: []domain.TokenLeg{{Account: wallet, Mint: bonkMint, Amount: dec("1000")}},
		},
	}

	res, err := newTestResolver().Resolve(candidate(ev, domain.TradeSideBuy, "SOL"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Source != SourceDescription {
		t.Errorf("source = %s, want description", res.Source)
	}
	if !res.AmountBase.Equal(dec("2.5")) {
		t.Errorf("base = %s, want 2.5", res.AmountBase)
	}
	if !res.Price.Equal(dec("0.0025")) {
		t.Errorf("price = %s, want 0.0025", res.Price)
	}
	if !res.AmountToken.Equal(dec("1000")) {
		t.Errorf("token = %s, want 1000", res.AmountToken)
	}
}

func TestResolve_StructuredWinsWhenCredible(t *testing.T) {
	ev := &domain.RawTransactionEvent{
		Description: "swapped 3 SOL for 1,000 BONK",
		Swap: &domain.SwapEvent{
			TokenInputs:  []domain.TokenLeg{{Account: wallet, Mint: bonkMint, Amount: dec("1000")}},
			NativeOutput: &domain.NativeLeg{Account: wallet, Lamports: 2_500_000_000},
		},
	}

	res, err := newTestResolver().Resolve(candidate(ev, domain.TradeSideSell, "SOL"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Source != SourceStructured || !res.AmountBase.Equal(dec("2.5")) {
		t.Errorf("got %s from %s, want 2.5 from structured", res.AmountBase, res.Source)
	}
}

func TestResolve_StructuredSumsInnerSwaps(t *testing.T) {
	ev := &domain.RawTransactionEvent{
		Swap: &domain.SwapEvent{
			InnerSwaps: []domain.InnerSwap{
				{TokenInputs: []domain.TokenLeg{{Account: wallet, Mint: domain.WSOLMint, Amount: dec("1.0")}}},
				{TokenInputs: []domain.TokenLeg{{Account: wallet, Mint: domain.WSOLMint, Amount: dec("0.5")}}},
				{TokenInputs: []domain.TokenLeg{{Account: other, Mint: domain.WSOLMint, Amount: dec("7")}}},
			},
		},
	}

	res, err := newTestResolver().Resolve(candidate(ev, domain.TradeSideBuy, "SOL"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !res.AmountBase.Equal(dec("1.5")) || res.Source != SourceStructured {
		t.Errorf("got %s from %s, want 1.5 from structured", res.AmountBase, res.Source)
	}
}

func TestParseDescription(t *testing.T) {
	bases := domain.DefaultBaseSet()
	tests := []struct {
		name   string
		text   string
		symbol string
		want   string
		ok     bool
	}{
		{name: "thousands separator", text: "sold 5,000 BONK for 1,234.56 USDC", symbol: "USDC", want: "1234.56", ok: true},
		{name: "wsol alias", text: "swapped 0.75 WSOL for 10 BONK", symbol: "SOL", want: "0.75", ok: true},
		{name: "largest match", text: "paid 0.01 SOL fee and 4 SOL", symbol: "SOL", want: "4", ok: true},
		{name: "other base ignored", text: "swapped 5 USDC for 10 SOL", symbol: "USDC", want: "5", ok: true},
		{name: "unknown symbol", text: "swapped 5 FOO for 10 BONK", symbol: "SOL", ok: false},
		{name: "empty", text: "", symbol: "SOL", ok: false},
		{name: "digits inside a word", text: "added liquidity to Pool3 SOL", symbol: "SOL", ok: false},
		{name: "word digits skipped, real amount kept", text: "Pool3 SOL swap paid 1.25 SOL", symbol: "SOL", want: "1.25", ok: true},
		{name: "parenthesised amount", text: "swapped (0.4 SOL) for 10 BONK", symbol: "SOL", want: "0.4", ok: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseDescription(bases, tt.text, tt.symbol)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if tt.ok && !got.Equal(dec(tt.want)) {
				t.Errorf("amount = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestResolve_Fallbacks(t *testing.T) {
	t.Run("largest transfer", func(t *testing.T) {
		ev := &domain.RawTransactionEvent{
			NativeTransfers: []domain.NativeTransfer{
				{From: wallet, To: other, Lamports: 2_039_280},
				{From: wallet, To: other, Lamports: 900_000_000},
				{From: other, To: "someone", Lamports: 50_000_000_000},
			},
		}
		res, err := newTestResolver().Resolve(candidate(ev, domain.TradeSideBuy, "SOL"))
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if res.Source != SourceLargestTransfer || !res.AmountBase.Equal(dec("0.9")) {
			t.Errorf("got %s from %s, want 0.9 from largest_transfer", res.AmountBase, res.Source)
		}
	})

	t.Run("balance delta", func(t *testing.T) {
		ev := &domain.RawTransactionEvent{
			AccountData: []domain.AccountData{
				{Account: wallet, NativeBalanceChange: -10_000},
				{Account: "ata", TokenBalanceChanges: []domain.TokenBalanceChange{
					{UserAccount: wallet, Mint: domain.USDCMint, Amount: dec("-25.5")},
				}},
			},
		}
		res, err := newTestResolver().Resolve(candidate(ev, domain.TradeSideBuy, "USDC"))
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if res.Source != SourceBalanceDelta || !res.AmountBase.Equal(dec("25.5")) {
			t.Errorf("got %s from %s, want 25.5 from balance_delta", res.AmountBase, res.Source)
		}
	})
}

func TestResolve_Errors(t *testing.T) {
	t.Run("all sub-floor", func(t *testing.T) {
		ev := &domain.RawTransactionEvent{
			Description: "swapped 0.02 SOL for 5 BONK",
			Swap: &domain.SwapEvent{
				NativeInput: &domain.NativeLeg{Account: wallet, Lamports: 10_000_000},
			},
		}
		_, err := newTestResolver().Resolve(candidate(ev, domain.TradeSideBuy, "SOL"))
		if !errors.Is(err, ErrAmbiguousAmount) {
			t.Errorf("err = %v, want ErrAmbiguousAmount", err)
		}
	})

	t.Run("no source", func(t *testing.T) {
		_, err := newTestResolver().Resolve(candidate(&domain.RawTransactionEvent{}, domain.TradeSideBuy, "SOL"))
		if !errors.Is(err, ErrAmbiguousAmount) {
			t.Errorf("err = %v, want ErrAmbiguousAmount", err)
		}
	})

	t.Run("zero token amount", func(t *testing.T) {
		c := candidate(&domain.RawTransactionEvent{Description: "swapped 1 SOL for 0 BONK"}, domain.TradeSideBuy, "SOL")
		c.TokenAmount = decimal.Zero
		_, err := newTestResolver().Resolve(c)
		if !errors.Is(err, domain.ErrMalformedTrade) {
			t.Errorf("err = %v, want ErrMalformedTrade", err)
		}
	})
}

func TestResolve_LazyEvaluation(t *testing.T) {
	calls := map[string]int{}
	source := func(name, value string, ok bool) Source {
		return Source{Name: name, Fn: func(*classifier.Candidate) (decimal.Decimal, bool) {
			calls[name]++
			if !ok {
				return decimal.Zero, false
			}
			return dec(value), true
		}}
	}

	r := NewWithSources(dec("0.1"),
		source("a", "0", false),
		source("b", "0.05", true),
		source("c", "1.2", true),
		source("d", "9", true),
	)

	res, err := r.Resolve(candidate(&domain.RawTransactionEvent{}, domain.TradeSideBuy, "SOL"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Source != "c" || !res.AmountBase.Equal(dec("1.2")) {
		t.Errorf("got %s from %s, want 1.2 from c", res.AmountBase, res.Source)
	}
	if calls["d"] != 0 {
		t.Error("sources after a credible value must not run")
	}
	if calls["a"] != 1 || calls["b"] != 1 || calls["c"] != 1 {
		t.Errorf("unexpected call counts: %v", calls)
	}
}
