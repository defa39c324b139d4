package model

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	maxAmountLength   = 64
	maxAmountDigits   = 40
	minAmountExponent = -18
	maxAmountExponent = 30
)

var ErrAmountOutOfRange = errors.New("amount out of range")

// ParseAmount parses a decimal amount, rejecting text and exponents too large
// to price in bounded time.
func ParseAmount(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) > maxAmountLength {
		return decimal.Zero, fmt.Errorf("%w: more than %d characters", ErrAmountOutOfRange, maxAmountLength)
	}

	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse amount %q: %w", raw, err)
	}

	if exp := amount.Exponent(); exp < minAmountExponent || exp > maxAmountExponent {
		return decimal.Zero, fmt.Errorf("%w: exponent %d outside [%d, %d]", ErrAmountOutOfRange, exp, minAmountExponent, maxAmountExponent)
	}
	if digits := len(amount.Coefficient().String()); digits > maxAmountDigits {
		return decimal.Zero, fmt.Errorf("%w: %d significant digits", ErrAmountOutOfRange, digits)
	}
	return amount, nil
}
