package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeTradeID computes a deterministic trade id using SHA256.
// Formula: SHA256(wallet_id|token_mint|source_signature)
// Returns hex-encoded hash (64 characters).
// The same source event always maps to the same id, which makes ledger appends idempotent.
func ComputeTradeID(walletID, tokenMint, sourceSignature string) string {
	data := fmt.Sprintf("%s|%s|%s", walletID, tokenMint, sourceSignature)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// ComputeRunKey computes the lock key for a (wallet, token) recompute.
// Formula: SHA256(wallet_id|token_id), first 16 bytes hex-encoded.
func ComputeRunKey(walletID, tokenID string) string {
	hash := sha256.Sum256([]byte(walletID + "|" + tokenID))
	return hex.EncodeToString(hash[:16])
}
