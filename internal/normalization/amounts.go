package normalization

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// rawToHuman converts a base-10 integer token amount to human units.
func rawToHuman(raw string, decimals int32) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse raw amount %q: %w", raw, err)
	}
	return d.Shift(-decimals), nil
}
