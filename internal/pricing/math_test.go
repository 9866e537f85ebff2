package pricing

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bi(v int64) *big.Int { return big.NewInt(v) }

func TestQuote_ReferencePool(t *testing.T) {
	// 1_000_000 / 2_000_000 pool at 30 bps, paying 10_000 of token 0
	fee := Fee(bi(10_000), 30)
	assert.Equal(t, bi(30), fee)

	net := new(big.Int).Sub(bi(10_000), fee)
	out, err := Quote(bi(1_000_000), bi(2_000_000), net)
	require.NoError(t, err)
	assert.Equal(t, bi(19_743), out)

	noFee, err := Quote(bi(1_000_000), bi(2_000_000), bi(10_000))
	require.NoError(t, err)
	assert.Equal(t, bi(19_801), noFee)
	assert.True(t, out.Cmp(noFee) < 0)
}

func TestQuote_EdgeCases(t *testing.T) {
	out, err := Quote(bi(100), bi(100), bi(0))
	require.NoError(t, err)
	assert.Equal(t, 0, out.Sign())

	_, err = Quote(bi(0), bi(100), bi(5))
	assert.ErrorIs(t, err, ErrZeroLiquidity)

	_, err = Quote(bi(100), bi(0), bi(5))
	assert.ErrorIs(t, err, ErrZeroLiquidity)

	_, err = Quote(bi(100), bi(100), bi(-1))
	assert.ErrorIs(t, err, ErrNegativeAmount)
}

func TestQuote_NeverDrainsReserve(t *testing.T) {
	huge := new(big.Int).Exp(bi(10), bi(40), nil)
	out, err := Quote(bi(1_000), bi(2_000), huge)
	require.NoError(t, err)
	assert.True(t, out.Cmp(bi(2_000)) < 0)
}

func TestSwapOutput_MixedDecimals(t *testing.T) {
	// 10 SOL (9 decimals) against 1500 USDT (6 decimals)
	solReserve := bi(10_000_000_000)
	usdtReserve := bi(1_500_000_000)

	out, err := SwapOutput(solReserve, 9, usdtReserve, 6, bi(100_000_000)) // 0.1 SOL
	require.NoError(t, err)

	raw, err := Quote(solReserve, usdtReserve, bi(100_000_000))
	require.NoError(t, err)
	assert.Equal(t, raw, out)
	assert.Equal(t, bi(14_851_485), out)

	back, err := SwapOutput(usdtReserve, 6, solReserve, 9, bi(15_000_000)) // 15 USDT
	require.NoError(t, err)
	assert.Equal(t, bi(99_009_900), back)
}

func TestSplitFee(t *testing.T) {
	lp, protocol := SplitFee(bi(30), 30, 5)
	assert.Equal(t, bi(25), lp)
	assert.Equal(t, bi(5), protocol)

	lp, protocol = SplitFee(bi(30), 30, 0)
	assert.Equal(t, bi(30), lp)
	assert.Equal(t, 0, protocol.Sign())

	// rounding favours liquidity providers
	lp, protocol = SplitFee(bi(7), 30, 5)
	assert.Equal(t, bi(1), protocol)
	assert.Equal(t, bi(6), lp)
}

func TestConvertDecimals(t *testing.T) {
	assert.Equal(t, bi(1_500_000_000), ConvertDecimals(bi(1_500_000), 6, 9))
	assert.Equal(t, bi(1_500_000), ConvertDecimals(bi(1_500_000_999), 9, 6))
	assert.Equal(t, bi(42), ConvertDecimals(bi(42), 8, 8))
	assert.Equal(t, uint8(9), MaxDecimals(6, 9))
}

func TestSqrtAndSlippage(t *testing.T) {
	assert.Equal(t, bi(1_414), Sqrt(bi(2_000_000)))
	assert.Equal(t, 0, Sqrt(bi(0)).Sign())

	assert.Equal(t, bi(9_900), ApplySlippage(bi(10_000), 100))
	assert.Equal(t, 0, ApplySlippage(bi(10_000), 10_000).Sign())
}
