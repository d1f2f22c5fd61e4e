package classifier

import (
	"github.com/shopspring/decimal"

	"solana-wallet-ledger/internal/domain"
)

// mintFlow is the wallet's net movement of one mint within an event.
// Positive means received.
type mintFlow struct {
	net decimal.Decimal
	in  bool
	out bool
}

type flowSet struct {
	byMint map[string]*mintFlow
	order  []string
}

func newFlowSet() *flowSet {
	return &flowSet{byMint: make(map[string]*mintFlow)}
}

func (s *flowSet) add(mint string, amount decimal.Decimal, received bool) {
	if amount.IsZero() {
		return
	}
	f, ok := s.byMint[mint]
	if !ok {
		f = &mintFlow{}
		s.byMint[mint] = f
		s.order = append(s.order, mint)
	}
	amount = amount.Abs()
	if received {
		f.net = f.net.Add(amount)
		f.in = true
	} else {
		f.net = f.net.Sub(amount)
		f.out = true
	}
}

func (s *flowSet) empty() bool {
	return len(s.order) == 0
}

// attributed reports whether a leg owner counts for the wallet.
// Unattributed legs are assumed to belong to the fee payer's swap.
func attributed(account, wallet string) bool {
	return account == "" || account == wallet
}

// structuredFlows nets the swap legs attributed to wallet. Top-level legs
// are used when present; otherwise every inner swap is flattened, so route
// intermediates cancel out.
func structuredFlows(swap *domain.SwapEvent, wallet string) *flowSet {
	flows := newFlowSet()
	if swap == nil {
		return flows
	}

	hasTopLevel := swap.NativeInput != nil || swap.NativeOutput != nil ||
		len(swap.TokenInputs) > 0 || len(swap.TokenOutputs) > 0

	if hasTopLevel {
		addLegs(flows, wallet, swap.NativeInput, swap.NativeOutput, swap.TokenInputs, swap.TokenOutputs)
		return flows
	}
	for _, hop := range swap.InnerSwaps {
		addLegs(flows, wallet, hop.NativeInput, hop.NativeOutput, hop.TokenInputs, hop.TokenOutputs)
	}
	return flows
}

func addLegs(flows *flowSet, wallet string, nativeIn, nativeOut *domain.NativeLeg, tokenIn, tokenOut []domain.TokenLeg) {
	if nativeIn != nil && attributed(nativeIn.Account, wallet) {
		flows.add(domain.NativeSOLMint, domain.LamportsToSOL(nativeIn.Lamports), false)
	}
	if nativeOut != nil && attributed(nativeOut.Account, wallet) {
		flows.add(domain.NativeSOLMint, domain.LamportsToSOL(nativeOut.Lamports), true)
	}
	for _, leg := range tokenIn {
		if attributed(leg.Account, wallet) {
			flows.add(leg.Mint, leg.Amount, false)
		}
	}
	for _, leg := range tokenOut {
		if attributed(leg.Account, wallet) {
			flows.add(leg.Mint, leg.Amount, true)
		}
	}
}

// transferFlows nets native and token transfers touching wallet.
func transferFlows(ev *domain.RawTransactionEvent, wallet string) *flowSet {
	flows := newFlowSet()
	for _, t := range ev.NativeTransfers {
		amount := domain.LamportsToSOL(t.Lamports)
		if t.From == wallet {
			flows.add(domain.NativeSOLMint, amount, false)
		}
		if t.To == wallet {
			flows.add(domain.NativeSOLMint, amount, true)
		}
	}
	for _, t := range ev.TokenTransfers {
		if t.From == wallet {
			flows.add(t.Mint, t.Amount, false)
		}
		if t.To == wallet {
			flows.add(t.Mint, t.Amount, true)
		}
	}
	return flows
}

// balanceFlows nets the balance changes recorded for wallet.
func balanceFlows(ev *domain.RawTransactionEvent, wallet string) *flowSet {
	flows := newFlowSet()
	for _, ad := range ev.AccountData {
		if ad.Account == wallet && ad.NativeBalanceChange != 0 {
			flows.add(domain.NativeSOLMint, domain.LamportsToSOL(ad.NativeBalanceChange), ad.NativeBalanceChange > 0)
		}
		for _, tc := range ad.TokenBalanceChanges {
			if tc.UserAccount == wallet {
				flows.add(tc.Mint, tc.Amount, tc.Amount.IsPositive())
			}
		}
	}
	return flows
}
