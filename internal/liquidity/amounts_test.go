package liquidity

import (
	"math/big"
	"testing"

	"github.com/aman-zulfiqar/solana-amm-settlement/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func poolWith(b0, b1, f0, f1 int64) *models.Pool {
	p := models.NewPool(1, 1, 2, "A_B", 30, 5, 3)
	p.Balance0.SetInt64(b0)
	p.Balance1.SetInt64(b1)
	p.LPFee0.SetInt64(f0)
	p.LPFee1.SetInt64(f1)
	return p
}

func TestAddAmounts_Initial(t *testing.T) {
	p := poolWith(0, 0, 0, 0)

	// 1 token (8 dp) against 4 tokens (6 dp): sqrt(1e8 * 4e8) = 2e8
	d, err := AddAmounts(p, 8, 6, big.NewInt(0), big.NewInt(100_000_000), big.NewInt(4_000_000))
	require.NoError(t, err)
	assert.True(t, d.Initial)
	assert.Equal(t, "100000000", d.Amount0.String())
	assert.Equal(t, "4000000", d.Amount1.String())
	assert.Equal(t, "200000000", d.LPAmount.String())
	assert.Equal(t, uint8(8), LPDecimals(8, 6))
}

func TestAddAmounts_Token0Drives(t *testing.T) {
	p := poolWith(1_000_000, 2_000_000, 0, 0)

	d, err := AddAmounts(p, 6, 6, big.NewInt(1_414_213), big.NewInt(1_000), big.NewInt(5_000))
	require.NoError(t, err)
	assert.Equal(t, "1000", d.Amount0.String())
	assert.Equal(t, "2000", d.Amount1.String())
	assert.Equal(t, "1414", d.LPAmount.String())
}

func TestAddAmounts_Token1DrivesWhenShort(t *testing.T) {
	p := poolWith(1_000_000, 2_000_000, 0, 0)

	d, err := AddAmounts(p, 6, 6, big.NewInt(1_414_213), big.NewInt(1_000), big.NewInt(1_000))
	require.NoError(t, err)
	assert.Equal(t, "500", d.Amount0.String())
	assert.Equal(t, "1000", d.Amount1.String())
	assert.Equal(t, "707", d.LPAmount.String())
}

func TestAddAmounts_ProtocolFeesExcluded(t *testing.T) {
	p := poolWith(1_000_100, 2_000_000, 400, 0)
	p.ProtocolFee0.SetInt64(100)

	d, err := AddAmounts(p, 6, 6, big.NewInt(1_000_000), big.NewInt(10_000), big.NewInt(100_000))
	require.NoError(t, err)
	assert.Equal(t, "20000", d.Amount1.String())
	assert.Equal(t, "10000", d.LPAmount.String())
}

func TestAddAmounts_Rejects(t *testing.T) {
	p := poolWith(1_000_000, 2_000_000, 0, 0)

	_, err := AddAmounts(p, 6, 6, big.NewInt(1), big.NewInt(0), big.NewInt(10))
	assert.ErrorIs(t, err, ErrZeroAmount)

	// one unit of a huge pool mints nothing
	_, err = AddAmounts(p, 6, 6, big.NewInt(1), big.NewInt(1), big.NewInt(1))
	assert.ErrorIs(t, err, ErrAmountTooSmall)
}

func TestRemoveAmounts(t *testing.T) {
	// fees are inside the balances; protocol fees are not withdrawn
	p := poolWith(1_000_400, 2_000_600, 300, 600)
	p.ProtocolFee0.SetInt64(100)

	w, err := RemoveAmounts(p, big.NewInt(1_000), big.NewInt(250))
	require.NoError(t, err)
	assert.Equal(t, "75", w.LPFee0.String())
	assert.Equal(t, "250075", w.Amount0.String())
	assert.Equal(t, "500150", w.Amount1.String())

	all, err := RemoveAmounts(p, big.NewInt(1_000), big.NewInt(1_000))
	require.NoError(t, err)
	assert.Equal(t, "1000300", all.Amount0.String())

	w.DropSide1()
	assert.Zero(t, w.Amount1.Sign())
	assert.Zero(t, w.LPFee1.Sign())

	_, err = RemoveAmounts(p, big.NewInt(1_000), big.NewInt(1_001))
	assert.ErrorIs(t, err, ErrExceedsSupply)
	_, err = RemoveAmounts(p, big.NewInt(1_000), big.NewInt(0))
	assert.ErrorIs(t, err, ErrZeroAmount)
}

func TestAddThenRemoveRoundTrip(t *testing.T) {
	p := poolWith(1_000_000, 2_000_000, 0, 0)
	supply := big.NewInt(1_414_213)

	d, err := AddAmounts(p, 6, 6, supply, big.NewInt(12_345), big.NewInt(1_000_000))
	require.NoError(t, err)

	p.Balance0.Add(p.Balance0, d.Amount0)
	p.Balance1.Add(p.Balance1, d.Amount1)
	supply.Add(supply, d.LPAmount)

	w, err := RemoveAmounts(p, supply, d.LPAmount)
	require.NoError(t, err)

	diff0 := new(big.Int).Sub(d.Amount0, w.Amount0)
	diff1 := new(big.Int).Sub(d.Amount1, w.Amount1)
	assert.True(t, diff0.Sign() >= 0 && diff0.Cmp(big.NewInt(1)) <= 0, "token 0 drift %s", diff0)
	assert.True(t, diff1.Sign() >= 0 && diff1.Cmp(big.NewInt(2)) <= 0, "token 1 drift %s", diff1)
}

func TestCounterpart(t *testing.T) {
	p := poolWith(1_000_000, 2_000_000, 0, 0)

	a1, err := Counterpart(p, 6, 6, 0, big.NewInt(1_000))
	require.NoError(t, err)
	assert.Equal(t, "2000", a1.String())

	a0, err := Counterpart(p, 6, 6, 1, big.NewInt(1_001))
	require.NoError(t, err)
	assert.Equal(t, "500", a0.String())

	_, err = Counterpart(poolWith(0, 0, 0, 0), 6, 6, 0, big.NewInt(1))
	assert.Error(t, err)
}
