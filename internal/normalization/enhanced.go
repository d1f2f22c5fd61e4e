package normalization

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"solana-wallet-ledger/internal/domain"
)

// enhancedTransaction is one parsed transaction as returned by enhanced
// transaction APIs (Helius-style).
type enhancedTransaction struct {
	Description      string                `json:"description"`
	Type             string                `json:"type"`
	Source           string                `json:"source"`
	Fee              int64                 `json:"fee"`
	FeePayer         string                `json:"feePayer"`
	Signature        string                `json:"signature"`
	Slot             int64                 `json:"slot"`
	Timestamp        int64                 `json:"timestamp"` // seconds
	NativeTransfers  []enhancedNative      `json:"nativeTransfers"`
	TokenTransfers   []enhancedTransfer    `json:"tokenTransfers"`
	AccountData      []enhancedAccountData `json:"accountData"`
	TransactionError json.RawMessage       `json:"transactionError"`
	Events           struct {
		Swap *enhancedSwap `json:"swap"`
	} `json:"events"`
}

type enhancedNative struct {
	FromUserAccount string    `json:"fromUserAccount"`
	ToUserAccount   string    `json:"toUserAccount"`
	Amount          flexInt64 `json:"amount"` // lamports
}

type enhancedTransfer struct {
	FromUserAccount string          `json:"fromUserAccount"`
	ToUserAccount   string          `json:"toUserAccount"`
	Mint            string          `json:"mint"`
	TokenAmount     decimal.Decimal `json:"tokenAmount"`
}

type enhancedAccountData struct {
	Account             string                  `json:"account"`
	NativeBalanceChange flexInt64               `json:"nativeBalanceChange"`
	TokenBalanceChanges []enhancedBalanceChange `json:"tokenBalanceChanges"`
}

type enhancedBalanceChange struct {
	UserAccount    string            `json:"userAccount"`
	Mint           string            `json:"mint"`
	RawTokenAmount enhancedRawAmount `json:"rawTokenAmount"`
}

type enhancedRawAmount struct {
	TokenAmount string `json:"tokenAmount"`
	Decimals    int32  `json:"decimals"`
}

type enhancedSwap struct {
	NativeInput  *enhancedNativeAmount `json:"nativeInput"`
	NativeOutput *enhancedNativeAmount `json:"nativeOutput"`
	TokenInputs  []enhancedSwapToken   `json:"tokenInputs"`
	TokenOutputs []enhancedSwapToken   `json:"tokenOutputs"`
	InnerSwaps   []enhancedInnerSwap   `json:"innerSwaps"`
}

type enhancedNativeAmount struct {
	Account string    `json:"account"`
	Amount  flexInt64 `json:"amount"` // lamports, string or number
}

type enhancedSwapToken struct {
	UserAccount    string            `json:"userAccount"`
	Mint           string            `json:"mint"`
	RawTokenAmount enhancedRawAmount `json:"rawTokenAmount"`
}

// enhancedInnerSwap legs are transfers in human units.
type enhancedInnerSwap struct {
	TokenInputs  []enhancedTransfer `json:"tokenInputs"`
	TokenOutputs []enhancedTransfer `json:"tokenOutputs"`
}

// flexInt64 decodes an integer sent either as a JSON number or a string.
type flexInt64 int64

func (f *flexInt64) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("parse integer %q: %w", s, err)
	}
	*f = flexInt64(n)
	return nil
}

// DecodeEnhanced decodes a JSON array (or a single object) of enhanced
// transactions into normalized events.
func DecodeEnhanced(data []byte) ([]*domain.RawTransactionEvent, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	var txs []enhancedTransaction
	if trimmed[0] == '{' {
		var tx enhancedTransaction
		if err := json.Unmarshal(trimmed, &tx); err != nil {
			return nil, fmt.Errorf("unmarshal enhanced transaction: %w", err)
		}
		txs = append(txs, tx)
	} else if err := json.Unmarshal(trimmed, &txs); err != nil {
		return nil, fmt.Errorf("unmarshal enhanced transactions: %w", err)
	}

	events := make([]*domain.RawTransactionEvent, 0, len(txs))
	for i := range txs {
		ev, err := txs[i].toEvent()
		if err != nil {
			return nil, fmt.Errorf("normalize %s: %w", txs[i].Signature, err)
		}
		events = append(events, ev)
	}
	return events, nil
}

func (tx *enhancedTransaction) toEvent() (*domain.RawTransactionEvent, error) {
	ev := &domain.RawTransactionEvent{
		Signature:   tx.Signature,
		Slot:        tx.Slot,
		Timestamp:   tx.Timestamp * 1000,
		Source:      normalizeSource(tx.Source),
		Type:        tx.Type,
		FeePayer:    tx.FeePayer,
		Description: tx.Description,
		Variant:     domain.VariantEnhanced,
		Failed:      hasTransactionError(tx.TransactionError),
	}

	for _, n := range tx.NativeTransfers {
		ev.NativeTransfers = append(ev.NativeTransfers, domain.NativeTransfer{
			From:     n.FromUserAccount,
			To:       n.ToUserAccount,
			Lamports: int64(n.Amount),
		})
	}

	for _, t := range tx.TokenTransfers {
		ev.TokenTransfers = append(ev.TokenTransfers, domain.TokenTransfer{
			From:   t.FromUserAccount,
			To:     t.ToUserAccount,
			Mint:   t.Mint,
			Amount: t.TokenAmount,
		})
	}

	for _, a := range tx.AccountData {
		ad := domain.AccountData{
			Account:             a.Account,
			NativeBalanceChange: int64(a.NativeBalanceChange),
		}
		for _, c := range a.TokenBalanceChanges {
			amount, err := rawToHuman(c.RawTokenAmount.TokenAmount, c.RawTokenAmount.Decimals)
			if err != nil {
				return nil, err
			}
			ad.TokenBalanceChanges = append(ad.TokenBalanceChanges, domain.TokenBalanceChange{
				UserAccount: c.UserAccount,
				Mint:        c.Mint,
				Amount:      amount,
			})
		}
		ev.AccountData = append(ev.AccountData, ad)
	}

	if s := tx.Events.Swap; s != nil {
		swap, err := s.toSwapEvent()
		if err != nil {
			return nil, err
		}
		ev.Swap = swap
	}

	return ev, nil
}

func (s *enhancedSwap) toSwapEvent() (*domain.SwapEvent, error) {
	out := &domain.SwapEvent{
		NativeInput:  s.NativeInput.toLeg(),
		NativeOutput: s.NativeOutput.toLeg(),
	}

	var err error
	if out.TokenInputs, err = swapTokensToLegs(s.TokenInputs); err != nil {
		return nil, err
	}
	if out.TokenOutputs, err = swapTokensToLegs(s.TokenOutputs); err != nil {
		return nil, err
	}

	for _, inner := range s.InnerSwaps {
		hop := domain.InnerSwap{}
		for _, t := range inner.TokenInputs {
			hop.TokenInputs = append(hop.TokenInputs, domain.TokenLeg{
				Account: t.FromUserAccount,
				Mint:    t.Mint,
				Amount:  t.TokenAmount,
			})
		}
		for _, t := range inner.TokenOutputs {
			hop.TokenOutputs = append(hop.TokenOutputs, domain.TokenLeg{
				Account: t.ToUserAccount,
				Mint:    t.Mint,
				Amount:  t.TokenAmount,
			})
		}
		out.InnerSwaps = append(out.InnerSwaps, hop)
	}

	return out, nil
}

func (n *enhancedNativeAmount) toLeg() *domain.NativeLeg {
	if n == nil || n.Amount == 0 {
		return nil
	}
	return &domain.NativeLeg{Account: n.Account, Lamports: int64(n.Amount)}
}

func swapTokensToLegs(tokens []enhancedSwapToken) ([]domain.TokenLeg, error) {
	var legs []domain.TokenLeg
	for _, t := range tokens {
		amount, err := rawToHuman(t.RawTokenAmount.TokenAmount, t.RawTokenAmount.Decimals)
		if err != nil {
			return nil, err
		}
		legs = append(legs, domain.TokenLeg{
			Account: t.UserAccount,
			Mint:    t.Mint,
			Amount:  amount,
		})
	}
	return legs, nil
}

// normalizeSource upper-cases a provider source label; empty becomes UNKNOWN.
func normalizeSource(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return domain.SourceUnknown
	}
	return s
}

func hasTransactionError(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}
