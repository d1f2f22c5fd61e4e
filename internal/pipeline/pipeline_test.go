package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-wallet-ledger/internal/classifier"
	"solana-wallet-ledger/internal/domain"
	"solana-wallet-ledger/internal/idhash"
	"solana-wallet-ledger/internal/resolver"
	"solana-wallet-ledger/internal/storage"
	"solana-wallet-ledger/internal/storage/memory"
)

const (
	wallet   = "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU"
	bonkMint = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"
	wifMint  = "EKpQGSJtjMFqKZ9KQanSqYXRcF8fBopzLHYxdM65zcjm"
)

var fixedNow = time.UnixMilli(1_700_000_999_000)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestPipeline(ledger storage.TradeLedger) *Pipeline {
	bases := domain.DefaultBaseSet()
	cls := classifier.New(classifier.Config{Bases: bases, NoiseFloor: resolver.DefaultNoiseFloor})
	res := resolver.New(bases, resolver.DefaultNoiseFloor)
	return New(cls, res, ledger, nil).WithClock(func() time.Time { return fixedNow })
}

func buyEvent(sig string) *domain.RawTransactionEvent {
	return &domain.RawTransactionEvent{
		Signature: sig,
		Timestamp: 1_700_000_000_000,
		Source:    "JUPITER",
		Swap: &domain.SwapEvent{
			NativeInput:  &domain.NativeLeg{Account: wallet, Lamports: 2_500_000_000},
			TokenOutputs: []domain.TokenLeg{{Account: wallet, Mint: bonkMint, Amount: dec("1000000")}},
		},
	}
}

func voidEvent(sig string) *domain.RawTransactionEvent {
	return &domain.RawTransactionEvent{
		Signature: sig,
		Timestamp: 1_700_000_100_000,
		Source:    "JUPITER",
		Swap: &domain.SwapEvent{
			TokenInputs:  []domain.TokenLeg{{Account: wallet, Mint: bonkMint, Amount: dec("1000")}},
			TokenOutputs: []domain.TokenLeg{{Account: wallet, Mint: wifMint, Amount: dec("3")}},
		},
	}
}

func TestProcessEvent_AppendsTrade(t *testing.T) {
	ctx := context.Background()
	ledger := memory.NewTradeLedger()
	p := newTestPipeline(ledger)

	out, err := p.ProcessEvent(ctx, wallet, buyEvent("sig-buy"))
	require.NoError(t, err)
	require.Equal(t, StatusAppended, out.Status, out.Reason)

	tr := out.Trade
	assert.Equal(t, idhash.ComputeTradeID(wallet, bonkMint, "sig-buy"), tr.ID)
	assert.Equal(t, domain.TradeSideBuy, tr.Side)
	assert.InDelta(t, 1_000_000, tr.AmountToken, 1e-9)
	assert.InDelta(t, 2.5, tr.AmountBase, 1e-12)
	assert.InDelta(t, 2.5e-6, tr.PriceBasePerToken, 1e-15)
	assert.Equal(t, "SOL", tr.BaseTokenSymbol)
	assert.Equal(t, "JUPITER", tr.DexLabel)
	assert.Equal(t, resolver.SourceStructured, tr.ResolvedFrom)
	assert.Equal(t, fixedNow.UnixMilli(), tr.CreatedAt)

	stored, err := ledger.GetByID(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, tr, stored)
}

func TestProcessEvent_TokenOnlySwapLegResolvesBase(t *testing.T) {
	ctx := context.Background()
	ledger := memory.NewTradeLedger()
	p := newTestPipeline(ledger)

	ev := &domain.RawTransactionEvent{
		Signature:   "sig-token-leg",
		Timestamp:   1_700_000_000_000,
		Source:      "JUPITER",
		Description: "swapped 2.5 SOL for 1000000 BONK",
		Swap: &domain.SwapEvent{
			TokenOutputs: []domain.TokenLeg{{Account: wallet, Mint: bonkMint, Amount: dec("1000000")}},
		},
		NativeTransfers: []domain.NativeTransfer{
			{From: wallet, To: "5Q544fKrFoe6tsEbD7S8EmxGTJYAKtTVhAW5Q5pge4j1", Lamports: 2_500_000_000},
		},
	}

	out, err := p.ProcessEvent(ctx, wallet, ev)
	require.NoError(t, err)
	require.Equal(t, StatusAppended, out.Status, out.Reason)

	tr := out.Trade
	assert.Equal(t, domain.TradeSideBuy, tr.Side)
	assert.Equal(t, bonkMint, tr.TokenMint)
	assert.InDelta(t, 1_000_000, tr.AmountToken, 1e-9)
	assert.InDelta(t, 2.5, tr.AmountBase, 1e-12)
	assert.Equal(t, "SOL", tr.BaseTokenSymbol)
	assert.Equal(t, resolver.SourceDescription, tr.ResolvedFrom)
}

func TestProcessEvent_Duplicate(t *testing.T) {
	ctx := context.Background()
	ledger := memory.NewTradeLedger()
	p := newTestPipeline(ledger)

	_, err := p.ProcessEvent(ctx, wallet, buyEvent("sig-buy"))
	require.NoError(t, err)

	out, err := p.ProcessEvent(ctx, wallet, buyEvent("sig-buy"))
	require.NoError(t, err)
	assert.Equal(t, StatusDuplicate, out.Status)

	trades, err := ledger.StreamByWalletToken(ctx, wallet, bonkMint)
	require.NoError(t, err)
	assert.Len(t, trades, 1)
}

func TestProcessEvent_Outcomes(t *testing.T) {
	tests := []struct {
		name string
		ev   *domain.RawTransactionEvent
		want Status
	}{
		{
			name: "sol in usdc out",
			ev: &domain.RawTransactionEvent{
				Signature: "sig-b2b",
				Source:    "JUPITER",
				Swap: &domain.SwapEvent{
					NativeOutput: &domain.NativeLeg{Account: wallet, Lamports: 1_000_000_000},
					TokenInputs:  []domain.TokenLeg{{Account: wallet, Mint: domain.USDCMint, Amount: dec("150")}},
				},
			},
			want: StatusBaseToBase,
		},
		{
			name: "fee remnant only",
			ev: &domain.RawTransactionEvent{
				Signature: "sig-ambiguous",
				Source:    "RAYDIUM",
				Swap: &domain.SwapEvent{
					NativeInput:  &domain.NativeLeg{Account: wallet, Lamports: 1_000_000},
					TokenOutputs: []domain.TokenLeg{{Account: wallet, Mint: bonkMint, Amount: dec("10")}},
				},
			},
			want: StatusAmbiguous,
		},
		{
			name: "incoming transfer",
			ev: &domain.RawTransactionEvent{
				Signature: "sig-transfer",
				Source:    "SYSTEM_PROGRAM",
				TokenTransfers: []domain.TokenTransfer{
					{From: "someone", To: wallet, Mint: bonkMint, Amount: dec("5")},
				},
			},
			want: StatusNotATrade,
		},
		{
			name: "failed",
			ev:   &domain.RawTransactionEvent{Signature: "sig-failed", Failed: true},
			want: StatusNotATrade,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger := memory.NewTradeLedger()
			out, err := newTestPipeline(ledger).ProcessEvent(context.Background(), wallet, tt.ev)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.Status, out.Reason)
			assert.Nil(t, out.Trade)

			tokens, err := ledger.TokensByWallet(context.Background(), wallet)
			require.NoError(t, err)
			assert.Empty(t, tokens)
		})
	}
}

func TestProcessEvent_Void(t *testing.T) {
	ctx := context.Background()
	ledger := memory.NewTradeLedger()

	out, err := newTestPipeline(ledger).ProcessEvent(ctx, wallet, voidEvent("sig-void"))
	require.NoError(t, err)
	assert.Equal(t, StatusVoid, out.Status)
	require.NotNil(t, out.Trade)
	assert.Equal(t, wifMint, out.Trade.TokenMint)
	assert.Equal(t, domain.TradeSideVoid, out.Trade.Side)
	assert.Zero(t, out.Trade.AmountBase)

	trades, err := ledger.StreamByWalletToken(ctx, wallet, wifMint)
	require.NoError(t, err)
	assert.Len(t, trades, 1)
}

type brokenLedger struct {
	storage.TradeLedger
}

func (brokenLedger) Append(context.Context, *domain.Trade) (bool, error) {
	return false, errors.New("connection reset")
}

func TestProcessEvent_StorageErrorPropagates(t *testing.T) {
	_, err := newTestPipeline(brokenLedger{}).ProcessEvent(context.Background(), wallet, buyEvent("sig"))
	assert.Error(t, err)
}

func TestProcessBatch(t *testing.T) {
	ctx := context.Background()
	ledger := memory.NewTradeLedger()

	var hookWallet string
	var hookTokens []string
	p := newTestPipeline(ledger).WithWorkers(2).WithOnTouched(
		func(_ context.Context, walletID string, tokenIDs []string) error {
			hookWallet = walletID
			hookTokens = tokenIDs
			return nil
		})

	events := []*domain.RawTransactionEvent{
		buyEvent("sig-1"),
		voidEvent("sig-2"),
		{Signature: "sig-3", Failed: true},
		buyEvent("sig-4"),
	}

	res, err := p.ProcessBatch(ctx, wallet, events)
	require.NoError(t, err)
	require.Len(t, res.Outcomes, 4)

	want := []Status{StatusAppended, StatusVoid, StatusNotATrade, StatusAppended}
	for i, out := range res.Outcomes {
		assert.Equal(t, events[i].Signature, out.Signature)
		assert.Equal(t, want[i], out.Status)
	}

	// Void trades never trigger a recompute.
	assert.Equal(t, []string{bonkMint}, res.Touched)
	assert.Equal(t, wallet, hookWallet)
	assert.Equal(t, []string{bonkMint}, hookTokens)

	trades, err := ledger.StreamByWalletToken(ctx, wallet, bonkMint)
	require.NoError(t, err)
	assert.Len(t, trades, 2)
}

func TestProcessBatch_NoHookWithoutAppends(t *testing.T) {
	called := false
	p := newTestPipeline(memory.NewTradeLedger()).WithOnTouched(
		func(context.Context, string, []string) error {
			called = true
			return nil
		})

	res, err := p.ProcessBatch(context.Background(), wallet, []*domain.RawTransactionEvent{voidEvent("v")})
	require.NoError(t, err)
	assert.Empty(t, res.Touched)
	assert.False(t, called)
}

func TestProcessBatch_HookError(t *testing.T) {
	p := newTestPipeline(memory.NewTradeLedger()).WithOnTouched(
		func(context.Context, string, []string) error {
			return errors.New("recompute failed")
		})

	res, err := p.ProcessBatch(context.Background(), wallet, []*domain.RawTransactionEvent{buyEvent("b")})
	assert.Error(t, err)
	require.NotNil(t, res)
	assert.Equal(t, []string{bonkMint}, res.Touched)
}
