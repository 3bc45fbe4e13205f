package money

import (
	"fmt"
	"math/big"
)

// Quote holds the fee-adjusted amounts for one redemption, all in destination
// tiny units. Invariants: fee = gross × feeBps/10000, net = gross − fee.
type Quote struct {
	Gross int64 // source amount converted at the exchange rate
	Fee   int64 // protocol fee taken from gross
	Net   int64 // amount actually paid to the user
}

// ComputeQuote converts a source tiny-unit amount to destination tiny units at
// the given rate and applies the protocol fee. All intermediate math runs on
// big.Int so no step loses precision before the final rounding.
//
// The destination asset must carry at least as many decimals as the source;
// configurations violating that are rejected at startup, and this function
// guards it again rather than silently scaling down.
func ComputeQuote(srcTiny int64, srcDecimals, dstDecimals uint8, rate Rate, feeBps int64) (Quote, error) {
	if srcTiny <= 0 {
		return Quote{}, fmt.Errorf("money: source amount must be positive, got %d", srcTiny)
	}
	if rate <= 0 {
		return Quote{}, ErrInvalidRate
	}
	if dstDecimals < srcDecimals {
		return Quote{}, fmt.Errorf("money: destination decimals %d < source decimals %d", dstDecimals, srcDecimals)
	}
	if feeBps < 0 || feeBps >= 10_000 {
		return Quote{}, fmt.Errorf("money: fee basis points out of range: %d", feeBps)
	}

	// gross = srcTiny × 10^(dstDecimals−srcDecimals) × rate / RateScale
	shift := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(dstDecimals-srcDecimals)), nil)
	gross := new(big.Int).Mul(big.NewInt(srcTiny), shift)
	gross.Mul(gross, big.NewInt(int64(rate)))
	gross = divRoundHalfUp(gross, big.NewInt(RateScale))
	if !gross.IsInt64() {
		return Quote{}, ErrOverflow
	}

	// fee = gross × feeBps / 10000
	fee := new(big.Int).Mul(gross, big.NewInt(feeBps))
	fee = divRoundHalfUp(fee, big.NewInt(10_000))

	net := new(big.Int).Sub(gross, fee)
	if !net.IsInt64() || !fee.IsInt64() {
		return Quote{}, ErrOverflow
	}

	return Quote{
		Gross: gross.Int64(),
		Fee:   fee.Int64(),
		Net:   net.Int64(),
	}, nil
}

// divRoundHalfUp divides with half-away-from-zero rounding, matching the
// codec's rounding direction so gross/fee/net never drift from each other.
func divRoundHalfUp(numerator, denominator *big.Int) *big.Int {
	half := new(big.Int).Rsh(denominator, 1)
	adjusted := new(big.Int)
	if numerator.Sign() >= 0 {
		adjusted.Add(numerator, half)
	} else {
		adjusted.Sub(numerator, half)
	}
	return adjusted.Quo(adjusted, denominator)
}
