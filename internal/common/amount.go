package common

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrInvalidAmount = errors.New("invalid amount")

var (
	thousand = decimal.NewFromInt(1_000)
	million  = decimal.NewFromInt(1_000_000)
	billion  = decimal.NewFromInt(1_000_000_000)
)

// FormatAmount renders a notional the way the board displays it, e.g. "$50M",
// "$2.5M" or "$750K".
func FormatAmount(amount decimal.Decimal) string {
	switch {
	case amount.GreaterThanOrEqual(billion):
		return "$" + amount.Div(billion).String() + "B"
	case amount.GreaterThanOrEqual(million):
		return "$" + amount.Div(million).String() + "M"
	case amount.GreaterThanOrEqual(thousand):
		return "$" + amount.Div(thousand).String() + "K"
	}
	return "$" + amount.String()
}

// ParseAmount accepts what a viewer types into a quantity field: an optional
// "$", thousands separators and an optional K/M/B suffix. Only strictly
// positive amounts are valid.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}

	multiplier := decimal.NewFromInt(1)
	switch strings.ToUpper(s[len(s)-1:]) {
	case "K":
		multiplier = thousand
	case "M":
		multiplier = million
	case "B":
		multiplier = billion
	}
	if !multiplier.Equal(decimal.NewFromInt(1)) {
		s = s[:len(s)-1]
	}

	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	amount = amount.Mul(multiplier)
	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return amount, nil
}
