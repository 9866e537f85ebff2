package models

import (
	"fmt"
	"math/big"
	"time"
)

// Pool holds the custody and fee accounting for one ordered token pair.
// Token0 < Token1 always holds; amounts are never negative. Balances are
// everything the pool holds per side. The fee accumulators count the part
// of each balance that came in as trading fees and are never added on top.
type Pool struct {
	ID     uint32 `json:"id"`
	Symbol string `json:"symbol"` // e.g. "SOL_ckUSDT"
	Token0 uint32 `json:"token_0"`
	Token1 uint32 `json:"token_1"`

	Balance0     *big.Int `json:"balance_0"`
	Balance1     *big.Int `json:"balance_1"`
	LPFee0       *big.Int `json:"lp_fee_0"`
	LPFee1       *big.Int `json:"lp_fee_1"`
	ProtocolFee0 *big.Int `json:"protocol_fee_0"`
	ProtocolFee1 *big.Int `json:"protocol_fee_1"`

	LPFeeBps       uint32 `json:"lp_fee_bps"`
	ProtocolFeeBps uint32 `json:"protocol_fee_bps"` // share of LPFeeBps kept by the protocol
	LPTokenID      uint32 `json:"lp_token_id"`
	Listed         bool   `json:"listed"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewPool returns an empty pool for an already ordered pair
func NewPool(id, token0, token1 uint32, symbol string, lpFeeBps, protocolFeeBps, lpTokenID uint32) *Pool {
	now := time.Now().UTC()
	return &Pool{
		ID:             id,
		Symbol:         symbol,
		Token0:         token0,
		Token1:         token1,
		Balance0:       new(big.Int),
		Balance1:       new(big.Int),
		LPFee0:         new(big.Int),
		LPFee1:         new(big.Int),
		ProtocolFee0:   new(big.Int),
		ProtocolFee1:   new(big.Int),
		LPFeeBps:       lpFeeBps,
		ProtocolFeeBps: protocolFeeBps,
		LPTokenID:      lpTokenID,
		Listed:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Reserve0 is the pricing reserve of token 0. Fees to date are already in
// the balance, so they compound into every later quote.
func (p *Pool) Reserve0() *big.Int { return new(big.Int).Set(p.Balance0) }

func (p *Pool) Reserve1() *big.Int { return new(big.Int).Set(p.Balance1) }

// Liquidity0 is the part of balance 0 owned by LP holders: the balance less
// protocol fees, which stay in custody
func (p *Pool) Liquidity0() *big.Int { return nonNegSub(p.Balance0, p.ProtocolFee0) }

func (p *Pool) Liquidity1() *big.Int { return nonNegSub(p.Balance1, p.ProtocolFee1) }

func nonNegSub(a, b *big.Int) *big.Int {
	d := new(big.Int).Sub(a, b)
	if d.Sign() < 0 {
		d.SetInt64(0)
	}
	return d
}

// Side returns 0 or 1 for the position of tokenID in the pair
func (p *Pool) Side(tokenID uint32) (int, error) {
	switch tokenID {
	case p.Token0:
		return 0, nil
	case p.Token1:
		return 1, nil
	}
	return -1, fmt.Errorf("token %d is not in pool %d", tokenID, p.ID)
}

// Other returns the counterpart of tokenID in the pair
func (p *Pool) Other(tokenID uint32) uint32 {
	if tokenID == p.Token0 {
		return p.Token1
	}
	return p.Token0
}

// Reserves returns (reserveIn, reserveOut) for a trade paying tokenIn
func (p *Pool) Reserves(tokenIn uint32) (*big.Int, *big.Int) {
	if tokenIn == p.Token0 {
		return p.Reserve0(), p.Reserve1()
	}
	return p.Reserve1(), p.Reserve0()
}

// IsEmpty reports whether the pool has never been seeded or was fully drained
func (p *Pool) IsEmpty() bool {
	return p.Reserve0().Sign() == 0 && p.Reserve1().Sign() == 0
}

// Clone returns a deep copy so callers can compute without touching stored state
func (p *Pool) Clone() *Pool {
	c := *p
	c.Balance0 = new(big.Int).Set(p.Balance0)
	c.Balance1 = new(big.Int).Set(p.Balance1)
	c.LPFee0 = new(big.Int).Set(p.LPFee0)
	c.LPFee1 = new(big.Int).Set(p.LPFee1)
	c.ProtocolFee0 = new(big.Int).Set(p.ProtocolFee0)
	c.ProtocolFee1 = new(big.Int).Set(p.ProtocolFee1)
	return &c
}

// OrderPair returns the pair in canonical order and whether it was swapped
func OrderPair(a, b uint32) (uint32, uint32, bool) {
	if a > b {
		return b, a, true
	}
	return a, b, false
}
