package money

import (
	"errors"
	"fmt"
)

// RateScale is the fixed-point scale applied to exchange rates. A Rate of
// 101_000_000 represents 1.01 destination units per source unit.
const RateScale int64 = 100_000_000

const rateDecimals uint8 = 8

// Rate is an exchange rate as a fixed-point scaled integer. Rates are parsed
// from decimal strings and compared exactly, never through float64.
type Rate int64

// ErrInvalidRate occurs when a rate is non-positive or malformed.
var ErrInvalidRate = errors.New("money: invalid rate")

// ParseRate converts a decimal rate string to its scaled representation.
// Rates must be strictly positive.
func ParseRate(decimal string) (Rate, error) {
	scaled, err := ToTinyUnits(decimal, rateDecimals)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidRate, err)
	}
	if scaled <= 0 {
		return 0, fmt.Errorf("%w: rate must be positive, got %q", ErrInvalidRate, decimal)
	}
	return Rate(scaled), nil
}

// Decimal renders the rate back as a decimal string.
func (r Rate) Decimal() string {
	return FromTinyUnits(int64(r), rateDecimals)
}

// Equal reports exact fixed-point equality. Staleness detection relies on
// this being bit-exact, not a tolerance band.
func (r Rate) Equal(other Rate) bool {
	return r == other
}
