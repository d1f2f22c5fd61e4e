package normalization

import (
	"sort"

	"github.com/shopspring/decimal"

	"solana-wallet-ledger/internal/domain"
	"solana-wallet-ledger/internal/solana"
)

var defaultParser = NewDEXParser()

// FromRPCTransaction normalizes a raw getTransaction result.
//
// Owner-level token balance deltas become token transfers and account data,
// lamport deltas become native transfers and account data, and program logs
// are decoded into a structured swap when a known DEX logged one. Transfers
// carry only the wallet side since raw transactions do not pair counterparties.
func FromRPCTransaction(tx *solana.Transaction) *domain.RawTransactionEvent {
	return FromRPCTransactionWith(defaultParser, tx)
}

// FromRPCTransactionWith is FromRPCTransaction with a custom parser set.
func FromRPCTransactionWith(parser *DEXParser, tx *solana.Transaction) *domain.RawTransactionEvent {
	ev := &domain.RawTransactionEvent{
		Signature: tx.Signature,
		Slot:      tx.Slot,
		Timestamp: tx.BlockTime * 1000,
		Source:    domain.SourceUnknown,
		Type:      "UNKNOWN",
		FeePayer:  tx.FeePayer(),
		Variant:   domain.VariantRPC,
		Failed:    tx.Failed(),
	}

	if tx.Meta == nil {
		return ev
	}

	var keys []string
	if tx.Message != nil {
		keys = tx.Message.AccountKeys
	}

	ev.Source = DetectSource(tx.Meta.LogMessages)
	if ev.Source != domain.SourceUnknown {
		ev.Type = "SWAP"
	}

	decimals := tokenDecimals(tx.Meta)
	ownerDeltas := ownerTokenDeltas(tx.Meta)
	accounts := make(map[string]*domain.AccountData)
	var order []string
	account := func(addr string) *domain.AccountData {
		if ad, ok := accounts[addr]; ok {
			return ad
		}
		ad := &domain.AccountData{Account: addr}
		accounts[addr] = ad
		order = append(order, addr)
		return ad
	}

	// Lamport deltas; the fee payer's fee is not a transfer.
	for i := range tx.Meta.PreBalances {
		if i >= len(tx.Meta.PostBalances) || i >= len(keys) {
			break
		}
		delta := tx.Meta.PostBalances[i] - tx.Meta.PreBalances[i]
		if delta == 0 {
			continue
		}
		account(keys[i]).NativeBalanceChange = delta

		moved := delta
		if i == 0 {
			moved += tx.Meta.Fee
		}
		switch {
		case moved > 0:
			ev.NativeTransfers = append(ev.NativeTransfers, domain.NativeTransfer{To: keys[i], Lamports: moved})
		case moved < 0:
			ev.NativeTransfers = append(ev.NativeTransfers, domain.NativeTransfer{From: keys[i], Lamports: -moved})
		}
	}

	owners := make([]string, 0, len(ownerDeltas))
	for owner := range ownerDeltas {
		owners = append(owners, owner)
	}
	sort.Strings(owners)

	for _, owner := range owners {
		mints := make([]string, 0, len(ownerDeltas[owner]))
		for mint := range ownerDeltas[owner] {
			mints = append(mints, mint)
		}
		sort.Strings(mints)

		for _, mint := range mints {
			delta := ownerDeltas[owner][mint]
			if delta.IsZero() {
				continue
			}
			ad := account(owner)
			ad.TokenBalanceChanges = append(ad.TokenBalanceChanges, domain.TokenBalanceChange{
				UserAccount: owner,
				Mint:        mint,
				Amount:      delta,
			})
			if delta.IsPositive() {
				ev.TokenTransfers = append(ev.TokenTransfers, domain.TokenTransfer{To: owner, Mint: mint, Amount: delta})
			} else {
				ev.TokenTransfers = append(ev.TokenTransfers, domain.TokenTransfer{From: owner, Mint: mint, Amount: delta.Neg()})
			}
		}
	}

	for _, addr := range order {
		ev.AccountData = append(ev.AccountData, *accounts[addr])
	}

	if !ev.Failed {
		ev.Swap = parser.ParseSwap(&TxContext{
			Logs:        tx.Meta.LogMessages,
			AccountKeys: keys,
			FeePayer:    ev.FeePayer,
			Decimals:    decimals,
			OwnerDeltas: ownerDeltas,
		})
	}

	return ev
}

func tokenDecimals(meta *solana.TransactionMeta) map[string]int32 {
	out := make(map[string]int32)
	for _, b := range meta.PreTokenBalances {
		out[b.Mint] = b.Decimals
	}
	for _, b := range meta.PostTokenBalances {
		out[b.Mint] = b.Decimals
	}
	return out
}

// ownerTokenDeltas sums post minus pre token balances per (owner, mint).
// A token account missing from one side counts as a zero balance there.
func ownerTokenDeltas(meta *solana.TransactionMeta) map[string]map[string]decimal.Decimal {
	type acctKey struct {
		index int
		mint  string
	}
	type snapshot struct {
		owner string
		pre   decimal.Decimal
		post  decimal.Decimal
	}

	snaps := make(map[acctKey]*snapshot)
	get := func(b solana.TokenBalance) *snapshot {
		k := acctKey{b.AccountIndex, b.Mint}
		s, ok := snaps[k]
		if !ok {
			s = &snapshot{owner: b.Owner}
			snaps[k] = s
		}
		if s.owner == "" {
			s.owner = b.Owner
		}
		return s
	}

	for _, b := range meta.PreTokenBalances {
		if amt, err := rawToHuman(b.Amount, b.Decimals); err == nil {
			get(b).pre = amt
		}
	}
	for _, b := range meta.PostTokenBalances {
		if amt, err := rawToHuman(b.Amount, b.Decimals); err == nil {
			get(b).post = amt
		}
	}

	out := make(map[string]map[string]decimal.Decimal)
	for k, s := range snaps {
		if s.owner == "" {
			continue
		}
		if out[s.owner] == nil {
			out[s.owner] = make(map[string]decimal.Decimal)
		}
		out[s.owner][k.mint] = out[s.owner][k.mint].Add(s.post.Sub(s.pre))
	}
	return out
}
