package pricing

import (
	"errors"
	"math/big"
)

// BpsDenominator is 100% in basis points
const BpsDenominator = 10_000

var (
	ErrZeroLiquidity  = errors.New("zero liquidity")
	ErrNegativeAmount = errors.New("negative amount")
)

var bpsDen = big.NewInt(BpsDenominator)

// Quote computes the constant-product output for amountIn
// out = amountIn * reserveOut / (reserveIn + amountIn)
// Multiply first, then divide; the result is floored.
// Both reserves and amountIn must already be in a common precision.
func Quote(reserveIn, reserveOut, amountIn *big.Int) (*big.Int, error) {
	if amountIn.Sign() < 0 {
		return nil, ErrNegativeAmount
	}
	if reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return nil, ErrZeroLiquidity
	}
	if amountIn.Sign() == 0 {
		return new(big.Int), nil
	}

	numerator := new(big.Int).Mul(amountIn, reserveOut)
	denominator := new(big.Int).Add(reserveIn, amountIn)
	return numerator.Quo(numerator, denominator), nil
}

// SwapOutput prices a trade between two tokens with different decimals.
// The input side is lifted to the larger precision before Quote and the
// result is brought back to the output token's decimals.
func SwapOutput(reserveIn *big.Int, decIn uint8, reserveOut *big.Int, decOut uint8, amountIn *big.Int) (*big.Int, error) {
	common := MaxDecimals(decIn, decOut)

	rin := ConvertDecimals(reserveIn, decIn, common)
	rout := ConvertDecimals(reserveOut, decOut, common)
	ain := ConvertDecimals(amountIn, decIn, common)

	out, err := Quote(rin, rout, ain)
	if err != nil {
		return nil, err
	}
	return ConvertDecimals(out, common, decOut), nil
}

// Fee returns amount * bps / 10000, floored
func Fee(amount *big.Int, bps uint32) *big.Int {
	fee := new(big.Int).Mul(amount, big.NewInt(int64(bps)))
	return fee.Quo(fee, bpsDen)
}

// SplitFee divides a trading fee between liquidity providers and the protocol.
// protocolFeeBps is expressed against the same denominator as lpFeeBps, so
// the protocol keeps fee * protocolFeeBps / lpFeeBps.
func SplitFee(fee *big.Int, lpFeeBps, protocolFeeBps uint32) (lp *big.Int, protocol *big.Int) {
	if lpFeeBps == 0 || protocolFeeBps == 0 {
		return new(big.Int).Set(fee), new(big.Int)
	}
	protocol = new(big.Int).Mul(fee, big.NewInt(int64(protocolFeeBps)))
	protocol.Quo(protocol, big.NewInt(int64(lpFeeBps)))
	lp = new(big.Int).Sub(fee, protocol)
	return lp, protocol
}

func MaxDecimals(a, b uint8) uint8 {
	if a > b {
		return a
	}
	return b
}

// ConvertDecimals rescales amount between precisions. Scaling down floors.
func ConvertDecimals(amount *big.Int, from, to uint8) *big.Int {
	switch {
	case from == to:
		return new(big.Int).Set(amount)
	case from < to:
		return new(big.Int).Mul(amount, pow10(to-from))
	default:
		return new(big.Int).Quo(amount, pow10(from-to))
	}
}

// MulDiv returns a * b / c floored
func MulDiv(a, b, c *big.Int) *big.Int {
	out := new(big.Int).Mul(a, b)
	return out.Quo(out, c)
}

// Sqrt is the floored integer square root
func Sqrt(x *big.Int) *big.Int {
	if x.Sign() <= 0 {
		return new(big.Int)
	}
	return new(big.Int).Sqrt(x)
}

// ApplySlippage calculates the minimum acceptable output for a tolerance
// slippageBps: basis points (e.g., 100 = 1%, 50 = 0.5%)
func ApplySlippage(amountOut *big.Int, slippageBps uint32) *big.Int {
	if slippageBps >= BpsDenominator {
		return new(big.Int)
	}
	return MulDiv(amountOut, big.NewInt(int64(BpsDenominator-slippageBps)), bpsDen)
}

func pow10(n uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}
