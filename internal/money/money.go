// Package money holds the monetary rules of the ledger: two fractional digits,
// a minimum unit of 0.01 and the largest balance the store can represent.
package money

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits of every amount and balance.
const Scale = 2

const (
	// maxRawLen bounds the textual form accepted by Parse.
	maxRawLen = 64

	// Exponent bounds checked before any arithmetic. Comparing or truncating
	// rescales the coefficient, which costs time proportional to the exponent.
	maxExponent = 10
	minExponent = -(Scale + 16)
)

var (
	// InitialBalance is credited to every new account.
	InitialBalance = decimal.New(1000, 0)

	// MinUnit is the smallest transferable amount.
	MinUnit = decimal.New(1, -Scale)

	// MaxAmount matches the NUMERIC(12,2) column type.
	MaxAmount = decimal.RequireFromString("9999999999.99")
)

var (
	ErrNotPositive   = errors.New("amount must be positive")
	ErrTooPrecise    = errors.New("amount must have at most 2 decimal places")
	ErrTooLarge      = errors.New("amount exceeds the maximum")
	ErrInvalidAmount = errors.New("invalid amount")
)

// Parse reads a decimal amount from its textual form and validates it.
func Parse(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(raw) > maxRawLen {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if err := Validate(d); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}

// Validate checks that d is a positive amount with at most two fractional
// digits that fits the storage column.
func Validate(d decimal.Decimal) error {
	if !d.IsPositive() {
		return ErrNotPositive
	}
	if d.Exponent() > maxExponent {
		return ErrTooLarge
	}
	if d.Exponent() < minExponent {
		return ErrInvalidAmount
	}
	if !d.Equal(d.Truncate(Scale)) {
		return ErrTooPrecise
	}
	if d.GreaterThan(MaxAmount) {
		return ErrTooLarge
	}
	return nil
}

// Round normalizes d to the ledger scale for storage and display.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Scale)
}

// Format renders d with exactly two fractional digits.
func Format(d decimal.Decimal) string {
	return d.StringFixed(Scale)
}
