package stub

import (
	"context"
	"sync"

	"solana-wallet-ledger/internal/solana"
)

// RPCClient implements solana.RPCClient for testing.
type RPCClient struct {
	Transactions map[string]*solana.Transaction
	Signatures   map[string][]solana.SignatureInfo // newest first, as the node returns them

	mu             sync.Mutex
	SignatureCalls int
	TxCalls        int
}

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		Transactions: make(map[string]*solana.Transaction),
		Signatures:   make(map[string][]solana.SignatureInfo),
	}
}

// GetTransaction retrieves a transaction by signature from the stub store.
// Returns nil, nil for unknown signatures, like the HTTP client.
func (c *RPCClient) GetTransaction(_ context.Context, signature string) (*solana.Transaction, error) {
	c.mu.Lock()
	c.TxCalls++
	c.mu.Unlock()

	return c.Transactions[signature], nil
}

// GetSignaturesForAddress retrieves signatures for an address from the stub store.
// Before, Until and Limit are honored the way the RPC node applies them.
func (c *RPCClient) GetSignaturesForAddress(_ context.Context, address string, opts *solana.SignaturesOpts) ([]solana.SignatureInfo, error) {
	c.mu.Lock()
	c.SignatureCalls++
	c.mu.Unlock()

	sigs, ok := c.Signatures[address]
	if !ok {
		return nil, nil
	}

	if opts == nil {
		return sigs, nil
	}

	start := 0
	if opts.Before != "" {
		start = len(sigs)
		for i, s := range sigs {
			if s.Signature == opts.Before {
				start = i + 1
				break
			}
		}
	}

	out := make([]solana.SignatureInfo, 0, len(sigs)-start)
	for _, s := range sigs[start:] {
		if opts.Until != "" && s.Signature == opts.Until {
			break
		}
		out = append(out, s)
		if opts.Limit > 0 && len(out) == opts.Limit {
			break
		}
	}

	return out, nil
}

// AddTransaction adds a transaction to the stub store.
func (c *RPCClient) AddTransaction(tx *solana.Transaction) {
	c.Transactions[tx.Signature] = tx
}

// AddSignatures adds signatures for an address to the stub store.
func (c *RPCClient) AddSignatures(address string, sigs []solana.SignatureInfo) {
	c.Signatures[address] = sigs
}
