package resolver

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"solana-wallet-ledger/internal/classifier"
	"solana-wallet-ledger/internal/domain"
)

// amountSymbolPattern matches "<amount> <SYMBOL>", e.g. "2.5 SOL" or
// "1,234.56 USDC". The amount must start a word, so "Pool3 SOL" is not 3 SOL.
var amountSymbolPattern = regexp.MustCompile(`(?:^|[^\w.,])(\d{1,3}(?:,\d{3})+(?:\.\d+)?|\d+(?:\.\d+)?)\s+([A-Za-z][A-Za-z0-9]*)\b`)

// descriptionSource parses the provider's free-text description. Only
// amounts quoted in the candidate's base symbol count; the largest wins.
func descriptionSource(bases *domain.BaseSet) SourceFunc {
	return func(c *classifier.Candidate) (decimal.Decimal, bool) {
		return parseDescription(bases, c.Event.Description, c.BaseSymbol)
	}
}

func parseDescription(bases *domain.BaseSet, text, symbol string) (decimal.Decimal, bool) {
	best := decimal.Zero
	for _, m := range amountSymbolPattern.FindAllStringSubmatch(text, -1) {
		sym := canonicalSymbol(m[2])
		if sym != symbol || !bases.HasSymbol(sym) {
			continue
		}
		amount, err := decimal.NewFromString(strings.ReplaceAll(m[1], ",", ""))
		if err != nil {
			continue
		}
		if amount.GreaterThan(best) {
			best = amount
		}
	}
	return best, best.IsPositive()
}

func canonicalSymbol(s string) string {
	s = strings.ToUpper(s)
	if s == "WSOL" {
		return "SOL"
	}
	return s
}
