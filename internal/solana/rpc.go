package solana

import "context"

// RPCClient defines the Solana RPC HTTP methods used for wallet backfill.
type RPCClient interface {
	// GetTransaction retrieves a transaction by signature. Returns nil, nil if not found.
	GetTransaction(ctx context.Context, signature string) (*Transaction, error)

	// GetSignaturesForAddress retrieves signatures for an address with pagination,
	// newest first.
	GetSignaturesForAddress(ctx context.Context, address string, opts *SignaturesOpts) ([]SignatureInfo, error)
}

// Transaction represents a Solana transaction.
type Transaction struct {
	Slot      int64
	Signature string
	BlockTime int64 // Unix timestamp (seconds)
	Meta      *TransactionMeta
	Message   *TransactionMessage
}

// TransactionMeta contains transaction metadata.
type TransactionMeta struct {
	Err               interface{}
	Fee               int64 // lamports
	PreBalances       []int64
	PostBalances      []int64
	PreTokenBalances  []TokenBalance
	PostTokenBalances []TokenBalance
	LogMessages       []string
}

// TransactionMessage contains parsed transaction message.
type TransactionMessage struct {
	// AccountKeys holds static keys followed by loaded writable and readonly
	// addresses, matching the indexes used by balances.
	AccountKeys []string
}

// TokenBalance is an SPL token account balance snapshot.
type TokenBalance struct {
	AccountIndex int
	Mint         string
	Owner        string
	Amount       string // raw base-10 integer
	Decimals     int32
}

// FeePayer returns the first account key, or "" when unknown.
func (tx *Transaction) FeePayer() string {
	if tx.Message == nil || len(tx.Message.AccountKeys) == 0 {
		return ""
	}
	return tx.Message.AccountKeys[0]
}

// Failed reports whether the transaction executed with an error.
func (tx *Transaction) Failed() bool {
	return tx.Meta != nil && tx.Meta.Err != nil
}
