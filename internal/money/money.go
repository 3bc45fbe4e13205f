package money

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Money represents a monetary amount in tiny units for a specific asset.
// All arithmetic is performed on int64 to avoid floating-point precision issues.
//
// Examples:
//   - 1.5 MUSD  = Money{Asset: MUSD, Tiny: 1500000}   // 1.5 × 10^6
//   - 0.5 HBAR  = Money{Asset: HBAR, Tiny: 50000000}  // 0.5 × 10^8 tinybars
type Money struct {
	Asset Asset // The token
	Tiny  int64 // Amount in the smallest indivisible unit
}

var (
	// ErrOverflow occurs when an operation would exceed int64 capacity.
	ErrOverflow = errors.New("money: arithmetic overflow")

	// ErrAssetMismatch occurs when operating on different assets.
	ErrAssetMismatch = errors.New("money: asset mismatch")

	// ErrInvalidFormat occurs when parsing fails.
	ErrInvalidFormat = errors.New("money: invalid format")
)

// Zero returns a zero amount for the given asset.
func Zero(asset Asset) Money {
	return Money{Asset: asset, Tiny: 0}
}

// New creates a Money from tiny units.
func New(asset Asset, tiny int64) Money {
	return Money{Asset: asset, Tiny: tiny}
}

// FromDecimal creates Money from a decimal string (e.g. "10.50").
// Uses half-away-from-zero rounding for sub-tiny fractions.
func FromDecimal(asset Asset, decimal string) (Money, error) {
	tiny, err := ToTinyUnits(decimal, asset.Decimals)
	if err != nil {
		return Money{}, err
	}
	return Money{Asset: asset, Tiny: tiny}, nil
}

// Decimal converts Money to a decimal string with the asset's full precision.
func (m Money) Decimal() string {
	return FromTinyUnits(m.Tiny, m.Asset.Decimals)
}

// ToTinyUnits converts a decimal amount string to integer tiny units for the
// given decimal count. Rounds half away from zero when the input carries more
// fractional digits than the asset supports.
//
// Examples:
//   - ToTinyUnits("1.5", 6)      → 1500000
//   - ToTinyUnits("10.5555", 2)  → 1056
func ToTinyUnits(decimal string, decimals uint8) (int64, error) {
	s := strings.TrimSpace(decimal)
	if s == "" {
		return 0, fmt.Errorf("%w: empty amount", ErrInvalidFormat)
	}

	negative := false
	switch s[0] {
	case '-':
		negative = true
		s = s[1:]
	case '+':
		s = s[1:]
	}
	if s == "" || s == "." {
		return 0, fmt.Errorf("%w: %q", ErrInvalidFormat, decimal)
	}

	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return 0, fmt.Errorf("%w: too many decimal points", ErrInvalidFormat)
	}

	integerPart := parts[0]
	fractionalPart := ""
	if len(parts) == 2 {
		fractionalPart = parts[1]
	}
	if integerPart == "" {
		integerPart = "0"
	}
	if !isDigits(integerPart) || (fractionalPart != "" && !isDigits(fractionalPart)) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidFormat, decimal)
	}

	integerVal, err := strconv.ParseInt(integerPart, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}

	// Handle fractional digits with half-away-from-zero rounding.
	var tinyFromFraction int64
	if fractionalPart != "" {
		if len(fractionalPart) > int(decimals) {
			roundDigit := fractionalPart[decimals] - '0'
			fractionalPart = fractionalPart[:decimals]

			if fractionalPart != "" {
				parsed, perr := strconv.ParseInt(fractionalPart, 10, 64)
				if perr != nil {
					return 0, fmt.Errorf("%w: %v", ErrInvalidFormat, perr)
				}
				tinyFromFraction = parsed
			}
			if roundDigit >= 5 {
				tinyFromFraction++
			}
		} else {
			for len(fractionalPart) < int(decimals) {
				fractionalPart += "0"
			}
			parsed, perr := strconv.ParseInt(fractionalPart, 10, 64)
			if perr != nil {
				return 0, fmt.Errorf("%w: %v", ErrInvalidFormat, perr)
			}
			tinyFromFraction = parsed
		}
	}

	multiplier := pow10(decimals)
	if integerVal > 0 && multiplier > 0 && integerVal > (1<<62)/multiplier {
		return 0, ErrOverflow
	}

	total := integerVal*multiplier + tinyFromFraction
	if negative {
		total = -total
	}
	return total, nil
}

// FromTinyUnits converts integer tiny units back to a decimal string.
//
// Examples:
//   - FromTinyUnits(1500000, 6)  → "1.500000"
//   - FromTinyUnits(1, 2)        → "0.01"
func FromTinyUnits(tiny int64, decimals uint8) string {
	if decimals == 0 {
		return strconv.FormatInt(tiny, 10)
	}

	divisor := pow10(decimals)
	integerPart := tiny / divisor
	fractionalPart := tiny % divisor
	if fractionalPart < 0 {
		fractionalPart = -fractionalPart
	}

	var buf strings.Builder
	if tiny < 0 && integerPart == 0 {
		buf.WriteByte('-')
	}
	buf.WriteString(strconv.FormatInt(integerPart, 10))
	buf.WriteByte('.')

	fractionalStr := strconv.FormatInt(fractionalPart, 10)
	for i := len(fractionalStr); i < int(decimals); i++ {
		buf.WriteByte('0')
	}
	buf.WriteString(fractionalStr)

	return buf.String()
}

// Add returns the sum of two Money values.
// Returns error if assets don't match or overflow occurs.
func (m Money) Add(other Money) (Money, error) {
	if m.Asset.Code != other.Asset.Code {
		return Money{}, fmt.Errorf("%w: cannot add %s and %s", ErrAssetMismatch, m.Asset.Code, other.Asset.Code)
	}

	result := m.Tiny + other.Tiny
	if (result > m.Tiny) != (other.Tiny > 0) {
		return Money{}, ErrOverflow
	}

	return Money{Asset: m.Asset, Tiny: result}, nil
}

// Sub returns the difference of two Money values.
func (m Money) Sub(other Money) (Money, error) {
	if m.Asset.Code != other.Asset.Code {
		return Money{}, fmt.Errorf("%w: cannot subtract %s and %s", ErrAssetMismatch, m.Asset.Code, other.Asset.Code)
	}

	result := m.Tiny - other.Tiny
	if (result < m.Tiny) != (other.Tiny > 0) {
		return Money{}, ErrOverflow
	}

	return Money{Asset: m.Asset, Tiny: result}, nil
}

// IsPositive returns true if amount is greater than zero.
func (m Money) IsPositive() bool {
	return m.Tiny > 0
}

// IsZero returns true if amount is exactly zero.
func (m Money) IsZero() bool {
	return m.Tiny == 0
}

// LessThan returns true if m < other (same asset required).
func (m Money) LessThan(other Money) bool {
	if m.Asset.Code != other.Asset.Code {
		return false // Cannot compare different assets
	}
	return m.Tiny < other.Tiny
}

// GreaterThan returns true if m > other (same asset required).
func (m Money) GreaterThan(other Money) bool {
	if m.Asset.Code != other.Asset.Code {
		return false
	}
	return m.Tiny > other.Tiny
}

// Equal returns true if m == other (same asset and amount).
func (m Money) Equal(other Money) bool {
	return m.Asset.Code == other.Asset.Code && m.Tiny == other.Tiny
}

// String returns a human-readable representation.
// Example: Money{MUSD, 1500000} → "1.500000 MUSD"
func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.Decimal(), m.Asset.Code)
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return len(s) > 0
}

func pow10(n uint8) int64 {
	result := int64(1)
	for i := uint8(0); i < n; i++ {
		result *= 10
	}
	return result
}
