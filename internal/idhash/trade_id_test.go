package idhash

import (
	"testing"
)

func TestComputeTradeID(t *testing.T) {
	tests := []struct {
		name      string
		walletID  string
		tokenMint string
		signature string
		wantLen   int // hash length should be 64
	}{
		{
			name:      "basic trade",
			walletID:  "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU",
			tokenMint: "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263",
			signature: "5VERv8NMvzbJMEkV8xnrLkEaWRtSz9CosKDYjCJjBRnbJLgp8uirBgmQpjKhoR4tjF3ZpRzrFmBV6UjKdiSZkQUW",
			wantLen:   64,
		},
		{
			name:      "short ids",
			walletID:  "w",
			tokenMint: "m",
			signature: "s",
			wantLen:   64,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeTradeID(tt.walletID, tt.tokenMint, tt.signature)

			if len(got) != tt.wantLen {
				t.Errorf("ComputeTradeID() length = %d, want %d", len(got), tt.wantLen)
			}

			// Verify determinism: same inputs should produce same output
			got2 := ComputeTradeID(tt.walletID, tt.tokenMint, tt.signature)
			if got != got2 {
				t.Errorf("ComputeTradeID() not deterministic: %s != %s", got, got2)
			}
		})
	}
}

func TestComputeTradeID_KnownValue(t *testing.T) {
	// sha256("a|b|c")
	want := "a52dd81bfd5e4e66d96b9f598382f6cbf8c5c3897654e6ae9055e03620fcf38e"
	if got := ComputeTradeID("a", "b", "c"); got != want {
		t.Errorf("ComputeTradeID() = %s, want %s", got, want)
	}
}

func TestComputeTradeID_DifferentInputs(t *testing.T) {
	base := ComputeTradeID("wallet", "mint", "sig")

	if base == ComputeTradeID("other_wallet", "mint", "sig") {
		t.Error("Different wallet should produce different hash")
	}
	if base == ComputeTradeID("wallet", "other_mint", "sig") {
		t.Error("Different mint should produce different hash")
	}
	if base == ComputeTradeID("wallet", "mint", "other_sig") {
		t.Error("Different signature should produce different hash")
	}

	// Separator keeps field boundaries distinct
	if ComputeTradeID("ab", "c", "d") == ComputeTradeID("a", "bc", "d") {
		t.Error("Shifted field boundaries should produce different hash")
	}
}

func TestComputeRunKey(t *testing.T) {
	k1 := ComputeRunKey("wallet", "mint")
	k2 := ComputeRunKey("wallet", "mint")
	if k1 != k2 {
		t.Errorf("ComputeRunKey() not deterministic: %s != %s", k1, k2)
	}
	if len(k1) != 32 {
		t.Errorf("ComputeRunKey() length = %d, want 32", len(k1))
	}
	if k1 == ComputeRunKey("wallet", "other") {
		t.Error("Different token should produce different key")
	}
}
