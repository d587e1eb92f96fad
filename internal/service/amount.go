package service

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount     = errors.New("amount is not a number")
	ErrAmountNotPositive = errors.New("amount must be positive")
	ErrAmountTooLarge    = errors.New("amount exceeds the maximum")
)

// MaxStorableAmount is the largest value the payments.amount NUMERIC(12,2)
// column holds.
var MaxStorableAmount = decimal.RequireFromString("9999999999.99")

// AmountCeiling is the effective upper bound for a configured limit. A zero
// or negative limit, or one above the column range, yields MaxStorableAmount.
func AmountCeiling(limit decimal.Decimal) decimal.Decimal {
	if !limit.IsPositive() || limit.GreaterThan(MaxStorableAmount) {
		return MaxStorableAmount
	}
	return limit
}

// ParseAmount accepts "25", "25.5", "$25.00" and "25,50". The result is
// rounded to cents. A zero limit leaves only the storage bound.
func ParseAmount(input string, limit decimal.Decimal) (decimal.Decimal, error) {
	s := strings.TrimSpace(input)
	s = strings.TrimPrefix(s, "$")
	s = strings.TrimSpace(s)

	if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}

	if s == "" || strings.ContainsAny(s, "eE") {
		return decimal.Zero, ErrInvalidAmount
	}

	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}

	amount = amount.Round(2)
	if !amount.IsPositive() {
		return decimal.Zero, ErrAmountNotPositive
	}

	if amount.GreaterThan(AmountCeiling(limit)) {
		return decimal.Zero, ErrAmountTooLarge
	}

	return amount, nil
}
