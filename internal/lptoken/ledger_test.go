package lptoken

import (
	"math/big"
	"testing"

	"github.com/aman-zulfiqar/solana-amm-settlement/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T) *Ledger {
	kv, err := store.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })
	return NewLedger(kv)
}

func TestLedger_MintBurn(t *testing.T) {
	l := newTestLedger(t)

	require.NoError(t, l.Mint(5, "alice", big.NewInt(1_000)))
	require.NoError(t, l.Mint(5, "bob", big.NewInt(500)))

	supply, err := l.TotalSupply(5)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(1_500), supply)

	require.NoError(t, l.Burn(5, "alice", big.NewInt(400)))
	bal, err := l.BalanceOf(5, "alice")
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(600), bal)

	supply, err = l.TotalSupply(5)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(1_100), supply)
	assert.NoError(t, l.CheckSupply(5))
}

func TestLedger_BurnMoreThanBalance(t *testing.T) {
	l := newTestLedger(t)
	require.NoError(t, l.Mint(5, "alice", big.NewInt(10)))

	err := l.Burn(5, "alice", big.NewInt(11))
	assert.ErrorIs(t, err, ErrInsufficientLPBalance)

	// another holder's balance cannot be spent
	err = l.Burn(5, "bob", big.NewInt(1))
	assert.ErrorIs(t, err, ErrInsufficientLPBalance)

	bal, err := l.BalanceOf(5, "alice")
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(10), bal)
}

func TestLedger_InvalidAmounts(t *testing.T) {
	l := newTestLedger(t)
	assert.ErrorIs(t, l.Mint(5, "alice", big.NewInt(0)), ErrInvalidAmount)
	assert.ErrorIs(t, l.Burn(5, "alice", big.NewInt(-1)), ErrInvalidAmount)
}

func TestLedger_HoldersAndFullBurn(t *testing.T) {
	l := newTestLedger(t)
	require.NoError(t, l.Mint(5, "alice", big.NewInt(10)))
	require.NoError(t, l.Mint(5, "bob", big.NewInt(20)))
	require.NoError(t, l.Mint(6, "carol", big.NewInt(30)))

	holders, err := l.Holders(5)
	require.NoError(t, err)
	require.Len(t, holders, 2)
	assert.Equal(t, "alice", holders[0].Holder)

	require.NoError(t, l.Burn(5, "alice", big.NewInt(10)))
	holders, err = l.Holders(5)
	require.NoError(t, err)
	assert.Len(t, holders, 1)
	assert.NoError(t, l.CheckSupply(5))
	assert.NoError(t, l.CheckSupply(6))
}

func TestLedger_CheckSupplyDetectsDrift(t *testing.T) {
	kv, err := store.OpenInMemory()
	require.NoError(t, err)
	defer kv.Close()
	l := NewLedger(kv)

	require.NoError(t, l.Mint(5, "alice", big.NewInt(10)))
	require.NoError(t, kv.Set(store.RegionLPSupply, store.U32(5), big.NewInt(11).Bytes()))

	assert.ErrorIs(t, l.CheckSupply(5), ErrSupplyMismatch)
}
