package pool

import (
	"math/big"
	"testing"

	"github.com/aman-zulfiqar/solana-amm-settlement/internal/models"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T) *Ledger {
	kv, err := store.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })
	return NewLedger(kv, nil)
}

func createPool(t *testing.T, l *Ledger, a, b uint32) *models.Pool {
	id, err := l.NextID()
	require.NoError(t, err)
	p, err := l.Create(id, Spec{TokenA: a, TokenB: b, Symbol: "A_B", LPFeeBps: 30, ProtocolFeeBps: 5, LPTokenID: 99})
	require.NoError(t, err)
	return p
}

func TestLedger_CreateOrdersPair(t *testing.T) {
	l := newTestLedger(t)

	p := createPool(t, l, 7, 3)
	assert.Equal(t, uint32(3), p.Token0)
	assert.Equal(t, uint32(7), p.Token1)
	assert.True(t, p.Listed)

	got, err := l.GetByPair(7, 3)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	got, err = l.GetByPair(3, 7)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
}

func TestLedger_CreateRejectsExistingPairEitherOrder(t *testing.T) {
	l := newTestLedger(t)
	createPool(t, l, 1, 2)

	_, err := l.Create(50, Spec{TokenA: 1, TokenB: 2, LPFeeBps: 30})
	assert.ErrorIs(t, err, ErrPoolExists)

	_, err = l.Create(51, Spec{TokenA: 2, TokenB: 1, LPFeeBps: 30})
	assert.ErrorIs(t, err, ErrPoolExists)

	all, err := l.List()
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestLedger_CreateValidates(t *testing.T) {
	l := newTestLedger(t)

	_, err := l.Create(1, Spec{TokenA: 1, TokenB: 1, LPFeeBps: 30})
	assert.ErrorIs(t, err, ErrInvalidPair)

	_, err = l.Create(1, Spec{TokenA: 1, TokenB: 2, LPFeeBps: 0})
	assert.ErrorIs(t, err, ErrInvalidPair)

	_, err = l.Create(1, Spec{TokenA: 1, TokenB: 2, LPFeeBps: 30, ProtocolFeeBps: 31})
	assert.ErrorIs(t, err, ErrInvalidPair)
}

func TestLedger_GetMissing(t *testing.T) {
	l := newTestLedger(t)

	_, err := l.GetByID(4)
	assert.ErrorIs(t, err, ErrPoolNotFound)
	_, err = l.GetByPair(1, 2)
	assert.ErrorIs(t, err, ErrPoolNotFound)
}

func TestLedger_ApplySwapLeg(t *testing.T) {
	l := newTestLedger(t)
	p := createPool(t, l, 1, 2)
	require.NoError(t, l.AdjustBalances(p, Deltas{Balance0: big.NewInt(1_000_000), Balance1: big.NewInt(2_000_000)}))

	leg := &models.SwapLeg{
		PoolID:        p.ID,
		PayToken:      1,
		PayAmount:     big.NewInt(10_000),
		ReceiveToken:  2,
		ReceiveAmount: big.NewInt(19_743),
		LPFee:         big.NewInt(25),
		ProtocolFee:   big.NewInt(5),
	}
	require.NoError(t, l.ApplySwapLeg(p, leg))

	stored, err := l.GetByID(p.ID)
	require.NoError(t, err)
	// the pay side takes the full amount, fees included
	assert.Equal(t, big.NewInt(1_010_000), stored.Balance0)
	assert.Equal(t, big.NewInt(25), stored.LPFee0)
	assert.Equal(t, big.NewInt(5), stored.ProtocolFee0)
	assert.Equal(t, big.NewInt(1_980_257), stored.Balance1)
	assert.Equal(t, big.NewInt(1_009_995), stored.Liquidity0())
	assert.Equal(t, stored.Balance0, stored.Reserve0())
}

func TestLedger_BalanceProductGrowsByAtLeastFee(t *testing.T) {
	l := newTestLedger(t)
	p := createPool(t, l, 1, 2)
	require.NoError(t, l.AdjustBalances(p, Deltas{Balance0: big.NewInt(1_000_000), Balance1: big.NewInt(2_000_000)}))

	before := new(big.Int).Mul(p.Balance0, p.Balance1)
	require.NoError(t, l.ApplySwapLeg(p, &models.SwapLeg{
		PoolID: p.ID, PayToken: 1, PayAmount: big.NewInt(10_000), ReceiveToken: 2,
		ReceiveAmount: big.NewInt(19_743), LPFee: big.NewInt(25), ProtocolFee: big.NewInt(5),
	}))
	after := new(big.Int).Mul(p.Balance0, p.Balance1)

	grew := new(big.Int).Sub(after, before)
	assert.True(t, grew.Cmp(big.NewInt(30)) >= 0, "product grew by %s", grew)
}

func TestLedger_ProtocolFeesStayInCustody(t *testing.T) {
	l := newTestLedger(t)
	p := createPool(t, l, 1, 2)
	require.NoError(t, l.AdjustBalances(p, Deltas{Balance0: big.NewInt(1_000), Balance1: big.NewInt(1_000)}))
	require.NoError(t, l.ApplySwapLeg(p, &models.SwapLeg{
		PoolID: p.ID, PayToken: 1, PayAmount: big.NewInt(100), ReceiveToken: 2,
		ReceiveAmount: big.NewInt(90), LPFee: big.NewInt(2), ProtocolFee: big.NewInt(1),
	}))

	err := l.AdjustBalances(p, Deltas{Balance0: big.NewInt(-1_100)})
	assert.ErrorIs(t, err, ErrInsufficientPoolBalance)
	require.NoError(t, l.AdjustBalances(p, Deltas{Balance0: big.NewInt(-1_099)}))
	assert.Equal(t, big.NewInt(1), p.Balance0)
}

func TestLedger_ApplySwapLegRejectsOverdraw(t *testing.T) {
	l := newTestLedger(t)
	p := createPool(t, l, 1, 2)
	require.NoError(t, l.AdjustBalances(p, Deltas{Balance0: big.NewInt(100), Balance1: big.NewInt(100)}))

	leg := &models.SwapLeg{
		PoolID: p.ID, PayToken: 2, PayAmount: big.NewInt(10), ReceiveToken: 1,
		ReceiveAmount: big.NewInt(101), LPFee: big.NewInt(0), ProtocolFee: big.NewInt(0),
	}
	assert.ErrorIs(t, l.ApplySwapLeg(p, leg), ErrInsufficientPoolBalance)

	// in-memory copy and stored pool are untouched
	assert.Equal(t, big.NewInt(100), p.Balance0)
	stored, err := l.GetByID(p.ID)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(100), stored.Balance0)
}

func TestLedger_AdjustBalancesNegative(t *testing.T) {
	l := newTestLedger(t)
	p := createPool(t, l, 1, 2)

	err := l.AdjustBalances(p, Deltas{Balance0: big.NewInt(-1)})
	assert.ErrorIs(t, err, ErrInsufficientPoolBalance)
	assert.Equal(t, 0, p.Balance0.Sign())
}

func TestLedger_Remove(t *testing.T) {
	l := newTestLedger(t)
	p := createPool(t, l, 1, 2)

	assert.ErrorIs(t, l.Remove(p.ID, big.NewInt(1)), ErrLPSupplyOutstanding)

	require.NoError(t, l.Remove(p.ID, big.NewInt(0)))
	_, err := l.GetByPair(1, 2)
	assert.ErrorIs(t, err, ErrPoolNotFound)

	// the pair can be created again afterwards
	createPool(t, l, 2, 1)
}
