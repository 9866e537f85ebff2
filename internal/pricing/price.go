package pricing

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Price returns reserve1 / reserve0 as an exact rational
func Price(reserve0, reserve1 *big.Int) (*big.Rat, error) {
	if reserve0.Sign() <= 0 || reserve1.Sign() <= 0 {
		return nil, ErrZeroLiquidity
	}
	return new(big.Rat).SetFrac(reserve1, reserve0), nil
}

// UnitPrice is the price of one whole base token in whole quote tokens.
// (quote / 10^decQuote) / (base / 10^decBase)
func UnitPrice(base *big.Int, decBase uint8, quote *big.Int, decQuote uint8) (*big.Rat, error) {
	if base.Sign() <= 0 || quote.Sign() <= 0 {
		return nil, ErrZeroLiquidity
	}
	num := new(big.Int).Mul(quote, pow10(decBase))
	den := new(big.Int).Mul(base, pow10(decQuote))
	return new(big.Rat).SetFrac(num, den), nil
}

// SlippageBps is how far exec fell below mid, in basis points.
// A better-than-mid execution reports zero.
func SlippageBps(mid, exec *big.Rat) *big.Rat {
	if mid.Sign() <= 0 {
		return new(big.Rat)
	}
	diff := new(big.Rat).Sub(mid, exec)
	if diff.Sign() <= 0 {
		return new(big.Rat)
	}
	diff.Quo(diff, mid)
	return diff.Mul(diff, new(big.Rat).SetInt64(BpsDenominator))
}

// ExceedsSlippage reports whether exec is worse than mid by more than maxBps
func ExceedsSlippage(mid, exec *big.Rat, maxBps uint32) bool {
	return SlippageBps(mid, exec).Cmp(new(big.Rat).SetInt64(int64(maxBps))) > 0
}

// Display renders a rational for humans. Never feed the result back into math.
func Display(r *big.Rat, places int32) string {
	if r == nil {
		return ""
	}
	num := decimal.NewFromBigInt(r.Num(), 0)
	den := decimal.NewFromBigInt(r.Denom(), 0)
	return num.DivRound(den, places).String()
}

// FormatAmount renders a raw integer amount with the token's decimals
func FormatAmount(amount *big.Int, decimals uint8) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount, -int32(decimals)).String()
}

// ParseAmount converts a human amount ("1.5") into raw units. More fractional
// digits than the token supports is an error.
func ParseAmount(s string, decimals uint8) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return nil, ErrNegativeAmount
	}
	raw := d.Shift(int32(decimals))
	if !raw.Equal(raw.Truncate(0)) {
		return nil, fmt.Errorf("invalid amount %q: more than %d decimals", s, decimals)
	}
	return raw.BigInt(), nil
}
