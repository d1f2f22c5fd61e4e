package solana

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrEmptyTransaction is returned when a decoded payload has no transaction.
var ErrEmptyTransaction = errors.New("empty transaction payload")

// DecodeTransaction decodes a getTransaction result as saved to disk.
// Both the bare result object and a full JSON-RPC response envelope are accepted.
func DecodeTransaction(data []byte) (*Transaction, error) {
	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *rpcError       `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("unmarshal transaction: %w", err)
	}
	if envelope.Error != nil {
		return nil, envelope.Error
	}

	payload := data
	if len(envelope.Result) > 0 {
		payload = envelope.Result
	}

	var result *getTransactionResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("unmarshal transaction: %w", err)
	}
	if result == nil || result.Transaction == nil {
		return nil, ErrEmptyTransaction
	}

	return result.toTransaction(""), nil
}

// getTransactionResult is the raw RPC response for getTransaction.
type getTransactionResult struct {
	Slot        int64               `json:"slot"`
	BlockTime   *int64              `json:"blockTime"`
	Meta        *getTransactionMeta `json:"meta"`
	Transaction *getTransactionTx   `json:"transaction"`
}

type getTransactionMeta struct {
	Err               interface{}       `json:"err"`
	Fee               int64             `json:"fee"`
	PreBalances       []int64           `json:"preBalances"`
	PostBalances      []int64           `json:"postBalances"`
	PreTokenBalances  []rawTokenBalance `json:"preTokenBalances"`
	PostTokenBalances []rawTokenBalance `json:"postTokenBalances"`
	LogMessages       []string          `json:"logMessages"`
	LoadedAddresses   *loadedAddresses  `json:"loadedAddresses"`
}

type loadedAddresses struct {
	Writable []string `json:"writable"`
	Readonly []string `json:"readonly"`
}

type rawTokenBalance struct {
	AccountIndex  int    `json:"accountIndex"`
	Mint          string `json:"mint"`
	Owner         string `json:"owner"`
	UITokenAmount struct {
		Amount   string `json:"amount"`
		Decimals int32  `json:"decimals"`
	} `json:"uiTokenAmount"`
}

type getTransactionTx struct {
	Signatures []string               `json:"signatures"`
	Message    *getTransactionMessage `json:"message"`
}

type getTransactionMessage struct {
	AccountKeys accountKeys `json:"accountKeys"`
}

// accountKeys accepts both the "json" encoding (plain strings) and the
// "jsonParsed" encoding (objects with a pubkey field).
type accountKeys []string

func (k *accountKeys) UnmarshalJSON(data []byte) error {
	var plain []string
	if err := json.Unmarshal(data, &plain); err == nil {
		*k = plain
		return nil
	}

	var parsed []struct {
		Pubkey string `json:"pubkey"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("unmarshal account keys: %w", err)
	}
	keys := make([]string, len(parsed))
	for i, p := range parsed {
		keys[i] = p.Pubkey
	}
	*k = keys
	return nil
}

// toTransaction converts the raw result. signature overrides the first
// transaction signature when non-empty.
func (r *getTransactionResult) toTransaction(signature string) *Transaction {
	tx := &Transaction{
		Slot:      r.Slot,
		Signature: signature,
	}

	if r.BlockTime != nil {
		tx.BlockTime = *r.BlockTime
	}

	if r.Transaction != nil {
		if tx.Signature == "" && len(r.Transaction.Signatures) > 0 {
			tx.Signature = r.Transaction.Signatures[0]
		}
		if r.Transaction.Message != nil {
			keys := make([]string, 0, len(r.Transaction.Message.AccountKeys))
			keys = append(keys, r.Transaction.Message.AccountKeys...)
			if r.Meta != nil && r.Meta.LoadedAddresses != nil {
				keys = append(keys, r.Meta.LoadedAddresses.Writable...)
				keys = append(keys, r.Meta.LoadedAddresses.Readonly...)
			}
			tx.Message = &TransactionMessage{AccountKeys: keys}
		}
	}

	if r.Meta != nil {
		tx.Meta = &TransactionMeta{
			Err:               r.Meta.Err,
			Fee:               r.Meta.Fee,
			PreBalances:       r.Meta.PreBalances,
			PostBalances:      r.Meta.PostBalances,
			PreTokenBalances:  convertTokenBalances(r.Meta.PreTokenBalances),
			PostTokenBalances: convertTokenBalances(r.Meta.PostTokenBalances),
			LogMessages:       r.Meta.LogMessages,
		}
	}

	return tx
}

func convertTokenBalances(raw []rawTokenBalance) []TokenBalance {
	if len(raw) == 0 {
		return nil
	}
	out := make([]TokenBalance, len(raw))
	for i, b := range raw {
		amount := b.UITokenAmount.Amount
		if amount == "" {
			amount = "0"
		}
		out[i] = TokenBalance{
			AccountIndex: b.AccountIndex,
			Mint:         b.Mint,
			Owner:        b.Owner,
			Amount:       amount,
			Decimals:     b.UITokenAmount.Decimals,
		}
	}
	return out
}
