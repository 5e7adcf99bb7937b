// Package core holds the pure domain: entities, validation, date-window and
// recurrence arithmetic, and money helpers.
//
// Amounts are decimal values (github.com/shopspring/decimal) stored and
// reported with two decimal places. Stored amounts are always non-negative
// magnitudes; direction lives on the rule kind or the category type.
package core

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// ParseAmount parses a non-negative monetary amount from user or imported
// input. Both dot (12.34) and comma (12,34) decimal separators are accepted;
// the result is rounded half-up to two decimal places. Signs are rejected:
// amounts are magnitudes.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	for _, r := range s {
		if !unicode.IsDigit(r) && r != '.' {
			return decimal.Zero, ErrInvalidAmount
		}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return d.Round(2), nil
}

// Progress returns spent/amount as a percentage, rounded to two decimals
// and capped at 100 for display even when overspent. A non-positive amount
// yields zero, never a division by zero.
func Progress(spent, amount decimal.Decimal) decimal.Decimal {
	if !amount.IsPositive() {
		return decimal.Zero
	}
	hundred := decimal.NewFromInt(100)
	p := spent.Div(amount).Mul(hundred).Round(2)
	if p.GreaterThan(hundred) {
		return hundred
	}
	return p
}

// Remaining returns amount-spent floored at zero, rounded to two decimals.
func Remaining(amount, spent decimal.Decimal) decimal.Decimal {
	r := amount.Sub(spent)
	if r.IsNegative() {
		return decimal.Zero
	}
	return r.Round(2)
}
