package classifier

import (
	"testing"

	"github.com/shopspring/decimal"

	"solana-wallet-ledger/internal/domain"
)

const (
	wallet   = "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU"
	other    = "5Q544fKrFoe6tsEbD7S8EmxGTJYAKtTVhAW5Q5pge4j1"
	bonkMint = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"
	wifMint  = "EKpQGSJtjMFqKZ9KQanSqYXRcF8fBopzLHYxdM65zcjm"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestClassifier() *Classifier {
	return New(Config{NoiseFloor: dec("0.1")})
}

func TestClassify_StructuredBuy(t *testing.T) {
	ev := &domain.RawTransactionEvent{
		Signature: "s1",
		Source:    "JUPITER",
		Swap: &domain.SwapEvent{
			NativeInput:  &domain.NativeLeg{Account: wallet, Lamports: 2_500_000_000},
			TokenOutputs: []domain.TokenLeg{{Account: wallet, Mint: bonkMint, Amount: dec("1000000")}},
		},
	}

	res := newTestClassifier().Classify(ev, wallet)
	if res.Kind != KindCandidate {
		t.Fatalf("kind = %s (%s), want candidate", res.Kind, res.Reason)
	}
	c := res.Candidate
	if c.TokenMint != bonkMint || c.Side != domain.TradeSideBuy {
		t.Errorf("got %s %s, want buy %s", c.Side, c.TokenMint, bonkMint)
	}
	if !c.TokenAmount.Equal(dec("1000000")) {
		t.Errorf("token amount = %s", c.TokenAmount)
	}
	if c.BaseSymbol != "SOL" || c.BaseMint != domain.NativeSOLMint {
		t.Errorf("base = %s/%s, want SOL native", c.BaseSymbol, c.BaseMint)
	}
	if !c.Structured {
		t.Error("expected structured candidate")
	}
	if c.Wallet != wallet || c.Event != ev {
		t.Error("candidate should carry wallet and event")
	}
}

func TestClassify_InnerSwapRouteCancels(t *testing.T) {
	ev := &domain.RawTransactionEvent{
		Signature: "s2",
		Source:    "JUPITER",
		Swap: &domain.SwapEvent{
			InnerSwaps: []domain.InnerSwap{
				{
					TokenInputs:  []domain.TokenLeg{{Account: wallet, Mint: bonkMint, Amount: dec("500000")}},
					TokenOutputs: []domain.TokenLeg{{Account: wallet, Mint: domain.USDCMint, Amount: dec("12.5")}},
				},
				{
					TokenInputs:  []domain.TokenLeg{{Account: wallet, Mint: domain.USDCMint, Amount: dec("12.5")}},
					TokenOutputs: []domain.TokenLeg{{Account: wallet, Mint: domain.WSOLMint, Amount: dec("0.08")}},
				},
			},
		},
	}

	res := newTestClassifier().Classify(ev, wallet)
	if res.Kind != KindCandidate {
		t.Fatalf("kind = %s (%s), want candidate", res.Kind, res.Reason)
	}
	c := res.Candidate
	if c.Side != domain.TradeSideSell || c.TokenMint != bonkMint {
		t.Errorf("got %s %s, want sell %s", c.Side, c.TokenMint, bonkMint)
	}
	if c.BaseSymbol != "SOL" || c.BaseMint != domain.WSOLMint {
		t.Errorf("base = %s/%s, want SOL via WSOL", c.BaseSymbol, c.BaseMint)
	}
	if !c.BaseFlows["USDC"].IsZero() {
		t.Errorf("intermediate USDC should cancel, got %s", c.BaseFlows["USDC"])
	}
}

func TestClassify_BaseSelection(t *testing.T) {
	tests := []struct {
		name     string
		usdcOut  string
		solOut   int64
		wantBase string
	}{
		{name: "stable beats sol rent", usdcOut: "50", solOut: 2_039_280, wantBase: "USDC"},
		{name: "sub-floor stable loses", usdcOut: "0.05", solOut: 500_000_000, wantBase: "SOL"},
		{name: "stable at floor", usdcOut: "0.1", solOut: 900_000_000, wantBase: "USDC"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := &domain.RawTransactionEvent{
				Signature: "s3",
				Source:    "RAYDIUM",
				Swap: &domain.SwapEvent{
					NativeInput:  &domain.NativeLeg{Account: wallet, Lamports: tt.solOut},
					TokenInputs:  []domain.TokenLeg{{Account: wallet, Mint: domain.USDCMint, Amount: dec(tt.usdcOut)}},
					TokenOutputs: []domain.TokenLeg{{Account: wallet, Mint: bonkMint, Amount: dec("42")}},
				},
			}
			res := newTestClassifier().Classify(ev, wallet)
			if res.Kind != KindCandidate {
				t.Fatalf("kind = %s (%s), want candidate", res.Kind, res.Reason)
			}
			if res.Candidate.BaseSymbol != tt.wantBase {
				t.Errorf("base = %s, want %s", res.Candidate.BaseSymbol, tt.wantBase)
			}
		})
	}
}

func TestClassify_Unstructured(t *testing.T) {
	ev := &domain.RawTransactionEvent{
		Signature: "s4",
		Source:    "PUMP_FUN",
		NativeTransfers: []domain.NativeTransfer{
			{From: wallet, To: other, Lamports: 300_000_000},
		},
		TokenTransfers: []domain.TokenTransfer{
			{From: other, To: wallet, Mint: wifMint, Amount: dec("120")},
		},
	}

	res := newTestClassifier().Classify(ev, wallet)
	if res.Kind != KindCandidate {
		t.Fatalf("kind = %s (%s), want candidate", res.Kind, res.Reason)
	}
	if res.Candidate.Structured {
		t.Error("expected unstructured candidate")
	}
	if res.Candidate.Side != domain.TradeSideBuy || res.Candidate.TokenMint != wifMint {
		t.Errorf("got %s %s", res.Candidate.Side, res.Candidate.TokenMint)
	}
}

func TestClassify_ForeignLegsFallBackToTransfers(t *testing.T) {
	ev := &domain.RawTransactionEvent{
		Signature: "s5",
		Source:    "ORCA",
		Swap: &domain.SwapEvent{
			NativeInput:  &domain.NativeLeg{Account: other, Lamports: 1_000_000_000},
			TokenOutputs: []domain.TokenLeg{{Account: other, Mint: bonkMint, Amount: dec("10")}},
		},
		TokenTransfers: []domain.TokenTransfer{
			{From: wallet, To: other, Mint: bonkMint, Amount: dec("10")},
			{From: other, To: wallet, Mint: domain.USDCMint, Amount: dec("3")},
		},
	}

	res := newTestClassifier().Classify(ev, wallet)
	if res.Kind != KindCandidate {
		t.Fatalf("kind = %s (%s), want candidate", res.Kind, res.Reason)
	}
	if res.Candidate.Side != domain.TradeSideSell || res.Candidate.BaseSymbol != "USDC" {
		t.Errorf("got %s via %s, want sell via USDC", res.Candidate.Side, res.Candidate.BaseSymbol)
	}
}

func TestClassify_TokenOnlySwapTakesBaseFromTransfers(t *testing.T) {
	ev := &domain.RawTransactionEvent{
		Signature:   "s6",
		Source:      "JUPITER",
		Description: "swapped 2.5 SOL for 1000000 BONK",
		Swap: &domain.SwapEvent{
			TokenOutputs: []domain.TokenLeg{{Account: wallet, Mint: bonkMint, Amount: dec("1000000")}},
		},
		NativeTransfers: []domain.NativeTransfer{{From: wallet, To: other, Lamports: 2_500_000_000}},
	}

	res := newTestClassifier().Classify(ev, wallet)
	if res.Kind != KindCandidate {
		t.Fatalf("kind = %s (%s), want candidate", res.Kind, res.Reason)
	}
	c := res.Candidate
	if c.Side != domain.TradeSideBuy || c.TokenMint != bonkMint {
		t.Errorf("got %s %s, want buy %s", c.Side, c.TokenMint, bonkMint)
	}
	if c.BaseSymbol != "SOL" || c.BaseMint != domain.NativeSOLMint {
		t.Errorf("base = %s/%s, want SOL native", c.BaseSymbol, c.BaseMint)
	}
	if !c.BaseFlows["SOL"].Equal(dec("-2.5")) {
		t.Errorf("SOL flow = %s, want -2.5", c.BaseFlows["SOL"])
	}
	if !c.Structured {
		t.Error("token leg came from the swap, candidate should stay structured")
	}
}

func TestClassify_TokenOnlySwapTakesBaseFromBalances(t *testing.T) {
	ev := &domain.RawTransactionEvent{
		Signature: "s7",
		Source:    "JUPITER",
		Swap: &domain.SwapEvent{
			TokenInputs: []domain.TokenLeg{{Account: wallet, Mint: bonkMint, Amount: dec("500000")}},
		},
		AccountData: []domain.AccountData{
			{Account: other, NativeBalanceChange: -5_000_000},
			{
				Account: wallet,
				TokenBalanceChanges: []domain.TokenBalanceChange{
					{UserAccount: wallet, Mint: bonkMint, Amount: dec("-500000")},
					{UserAccount: wallet, Mint: domain.USDCMint, Amount: dec("18.2")},
				},
			},
		},
	}

	res := newTestClassifier().Classify(ev, wallet)
	if res.Kind != KindCandidate {
		t.Fatalf("kind = %s (%s), want candidate", res.Kind, res.Reason)
	}
	c := res.Candidate
	if c.Side != domain.TradeSideSell || c.BaseSymbol != "USDC" || c.BaseMint != domain.USDCMint {
		t.Errorf("got %s via %s/%s, want sell via USDC", c.Side, c.BaseSymbol, c.BaseMint)
	}
	if !c.TokenAmount.Equal(dec("500000")) {
		t.Errorf("token amount = %s", c.TokenAmount)
	}
}

func TestClassify_TokenOnlySwapWithoutBasePaymentIsRejected(t *testing.T) {
	ev := &domain.RawTransactionEvent{
		Source: "JUPITER",
		Swap: &domain.SwapEvent{
			TokenOutputs: []domain.TokenLeg{{Account: wallet, Mint: bonkMint, Amount: dec("1000000")}},
		},
		// SOL flowing in cannot pay for a buy.
		NativeTransfers: []domain.NativeTransfer{{From: other, To: wallet, Lamports: 2_000_000}},
	}

	res := newTestClassifier().Classify(ev, wallet)
	if res.Kind != KindNotATrade || res.Reason != ReasonNoBaseLeg {
		t.Fatalf("got %s (%s), want not_a_trade %s", res.Kind, res.Reason, ReasonNoBaseLeg)
	}
}

func TestClassify_Rejections(t *testing.T) {
	tests := []struct {
		name       string
		ev         *domain.RawTransactionEvent
		wantKind   Kind
		wantReason string
	}{
		{
			name: "sol in usdc out is base to base",
			ev: &domain.RawTransactionEvent{
				Source: "JUPITER",
				Swap: &domain.SwapEvent{
					NativeOutput: &domain.NativeLeg{Account: wallet, Lamports: 1_000_000_000},
					TokenInputs:  []domain.TokenLeg{{Account: wallet, Mint: domain.USDCMint, Amount: dec("150")}},
				},
			},
			wantKind: KindBaseToBase,
		},
		{
			name:       "failed transaction",
			ev:         &domain.RawTransactionEvent{Source: "RAYDIUM", Failed: true},
			wantKind:   KindNotATrade,
			wantReason: ReasonFailed,
		},
		{
			name:       "no movement",
			ev:         &domain.RawTransactionEvent{Source: "RAYDIUM"},
			wantKind:   KindNotATrade,
			wantReason: ReasonNoMovement,
		},
		{
			name: "unknown source without swap",
			ev: &domain.RawTransactionEvent{
				Source:         domain.SourceUnknown,
				TokenTransfers: []domain.TokenTransfer{{From: other, To: wallet, Mint: bonkMint, Amount: dec("5")}},
			},
			wantKind:   KindNotATrade,
			wantReason: ReasonUnknownSource,
		},
		{
			name: "airdrop has no base leg",
			ev: &domain.RawTransactionEvent{
				Source:         "RAYDIUM",
				TokenTransfers: []domain.TokenTransfer{{From: other, To: wallet, Mint: bonkMint, Amount: dec("5")}},
			},
			wantKind:   KindNotATrade,
			wantReason: ReasonNoBaseLeg,
		},
		{
			name: "base paid but received nothing opposite",
			ev: &domain.RawTransactionEvent{
				Source:          "RAYDIUM",
				NativeTransfers: []domain.NativeTransfer{{From: other, To: wallet, Lamports: 1_000_000}},
				TokenTransfers:  []domain.TokenTransfer{{From: other, To: wallet, Mint: bonkMint, Amount: dec("5")}},
			},
			wantKind:   KindNotATrade,
			wantReason: ReasonNoBaseLeg,
		},
		{
			name: "self transfer",
			ev: &domain.RawTransactionEvent{
				Source:         "RAYDIUM",
				TokenTransfers: []domain.TokenTransfer{{From: wallet, To: wallet, Mint: bonkMint, Amount: dec("5")}},
			},
			wantKind:   KindNotATrade,
			wantReason: ReasonSelfTransfer,
		},
		{
			name: "pure sol transfer",
			ev: &domain.RawTransactionEvent{
				Source:          "RAYDIUM",
				NativeTransfers: []domain.NativeTransfer{{From: wallet, To: other, Lamports: 1_000_000_000}},
			},
			wantKind:   KindNotATrade,
			wantReason: ReasonPureTransfer,
		},
		{
			name: "two tokens sent",
			ev: &domain.RawTransactionEvent{
				Source: "METEORA",
				TokenTransfers: []domain.TokenTransfer{
					{From: wallet, To: other, Mint: bonkMint, Amount: dec("5")},
					{From: wallet, To: other, Mint: wifMint, Amount: dec("5")},
				},
			},
			wantKind:   KindNotATrade,
			wantReason: ReasonNoReceived,
		},
	}

	c := newTestClassifier()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := c.Classify(tt.ev, wallet)
			if res.Kind != tt.wantKind {
				t.Fatalf("kind = %s (%s), want %s", res.Kind, res.Reason, tt.wantKind)
			}
			if tt.wantReason != "" && res.Reason != tt.wantReason {
				t.Errorf("reason = %q, want %q", res.Reason, tt.wantReason)
			}
			if res.Candidate != nil {
				t.Error("rejection should not carry a candidate")
			}
		})
	}
}

func TestClassify_TokenToTokenIsVoid(t *testing.T) {
	ev := &domain.RawTransactionEvent{
		Source: "JUPITER",
		Swap: &domain.SwapEvent{
			TokenInputs:  []domain.TokenLeg{{Account: wallet, Mint: bonkMint, Amount: dec("1000")}},
			TokenOutputs: []domain.TokenLeg{{Account: wallet, Mint: wifMint, Amount: dec("3")}},
		},
	}

	res := newTestClassifier().Classify(ev, wallet)
	if res.Kind != KindVoid {
		t.Fatalf("kind = %s, want void", res.Kind)
	}
	if res.VoidMint != wifMint {
		t.Errorf("void mint = %s, want received %s", res.VoidMint, wifMint)
	}
}

func TestClassify_CustomBaseSet(t *testing.T) {
	bases := domain.NewBaseSet([]domain.BaseCurrency{
		{Mint: domain.WSOLMint, Symbol: "SOL", Decimals: 9},
		{Mint: bonkMint, Symbol: "BONK", Decimals: 5},
	})
	c := New(Config{Bases: bases, KnownSources: []string{"raydium"}})

	// BONK is a base here, so BONK for USDC is a buy of USDC.
	ev := &domain.RawTransactionEvent{
		Source: "RAYDIUM",
		TokenTransfers: []domain.TokenTransfer{
			{From: wallet, To: other, Mint: bonkMint, Amount: dec("1000")},
			{From: other, To: wallet, Mint: domain.USDCMint, Amount: dec("2")},
		},
	}
	res := c.Classify(ev, wallet)
	if res.Kind != KindCandidate {
		t.Fatalf("kind = %s (%s), want candidate", res.Kind, res.Reason)
	}
	if res.Candidate.TokenMint != domain.USDCMint || res.Candidate.BaseSymbol != "BONK" {
		t.Errorf("got %s via %s", res.Candidate.TokenMint, res.Candidate.BaseSymbol)
	}
}
