package normalization

import (
	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// IsValidAddress reports whether s is a base58-encoded 32-byte public key.
func IsValidAddress(s string) bool {
	if len(s) < 32 || len(s) > 44 {
		return false
	}
	decoded, err := base58.Decode(s)
	return err == nil && len(decoded) == 32
}

// IsOnCurve reports whether s decodes to a point on the ed25519 curve.
// Wallets are on-curve; program derived addresses (pools, vaults) are not.
func IsOnCurve(s string) bool {
	decoded, err := base58.Decode(s)
	if err != nil {
		return false
	}
	return isOnCurve(decoded)
}

func isOnCurve(point []byte) bool {
	if len(point) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}
