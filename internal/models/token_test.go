package models

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToken_Capabilities(t *testing.T) {
	sol := &Token{
		Symbol:     "SOL",
		Kind:       KindCrossChain,
		CrossChain: &CrossChainToken{Chain: ChainSolana, Mint: "So11111111111111111111111111111111111111112", Decimals: 9, Fee: big.NewInt(5000)},
	}
	assert.NoError(t, sol.Validate())
	assert.Equal(t, uint8(9), sol.Decimals())
	assert.Equal(t, ChainSolana, sol.Chain())
	assert.Equal(t, big.NewInt(5000), sol.TransferFee())
	assert.False(t, sol.SupportsTransferFrom())

	lp := &Token{Symbol: "A_B_LP", Kind: KindLP, LP: &LPToken{PoolID: 1, Token0: 1, Token1: 2, Decimals: 8}}
	assert.NoError(t, lp.Validate())
	assert.Equal(t, 0, lp.TransferFee().Sign())
	assert.Equal(t, "pool:1", lp.Address())

	icp := &Token{Symbol: "ICP", Kind: KindNative, Native: &NativeToken{LedgerID: "ryjl3", Decimals: 8}}
	assert.NoError(t, icp.Validate())
	assert.True(t, icp.SupportsTransferFrom())
	assert.Equal(t, 0, icp.TransferFee().Sign())
}

func TestToken_TransferFeeIsCopy(t *testing.T) {
	tok := &Token{Symbol: "X", Kind: KindLedger, Ledger: &LedgerToken{LedgerID: "x", Decimals: 6, Fee: big.NewInt(10)}}
	fee := tok.TransferFee()
	fee.SetInt64(999)
	assert.Equal(t, big.NewInt(10), tok.Ledger.Fee)
}

func TestToken_ValidateRejectsMismatchedVariant(t *testing.T) {
	cases := map[string]*Token{
		"no symbol":     {Kind: KindLedger, Ledger: &LedgerToken{LedgerID: "x"}},
		"two variants":  {Symbol: "X", Kind: KindLedger, Ledger: &LedgerToken{LedgerID: "x"}, Native: &NativeToken{LedgerID: "y"}},
		"wrong variant": {Symbol: "X", Kind: KindNative, Ledger: &LedgerToken{LedgerID: "x"}},
		"unknown kind":  {Symbol: "X", Kind: "erc20", Ledger: &LedgerToken{LedgerID: "x"}},
		"other chain":   {Symbol: "X", Kind: KindCrossChain, CrossChain: &CrossChainToken{Chain: "ETH", Mint: "m"}},
		"unordered lp":  {Symbol: "X", Kind: KindLP, LP: &LPToken{Token0: 2, Token1: 1}},
	}
	for name, tok := range cases {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, tok.Validate(), ErrInvalidToken)
		})
	}
}

func TestChainProof_Key(t *testing.T) {
	assert.Equal(t, "L/3/42", BlockProof(42).Key(3))
	assert.Equal(t, "S/abc", SignatureProof("abc").Key(3))
	assert.NotEqual(t, BlockProof(42).Key(3), BlockProof(42).Key(4))
}

func TestPool_Reserves(t *testing.T) {
	p := NewPool(1, 1, 2, "A_B", 30, 5, 3)
	p.Balance0.SetInt64(100)
	p.LPFee0.SetInt64(5)
	p.Balance1.SetInt64(200)

	in, out := p.Reserves(1)
	assert.Equal(t, big.NewInt(105), in)
	assert.Equal(t, big.NewInt(200), out)

	in, out = p.Reserves(2)
	assert.Equal(t, big.NewInt(200), in)
	assert.Equal(t, big.NewInt(105), out)

	c := p.Clone()
	c.Balance0.SetInt64(1)
	assert.Equal(t, big.NewInt(100), p.Balance0)

	_, err := p.Side(9)
	assert.Error(t, err)
}
