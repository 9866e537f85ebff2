// Package liquidity holds the pure deposit and withdrawal arithmetic. It
// never touches storage; the engine applies the results.
package liquidity

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/aman-zulfiqar/solana-amm-settlement/internal/models"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/pricing"
)

var (
	ErrZeroAmount     = errors.New("amount must be positive")
	ErrAmountTooSmall = errors.New("amount too small to mint lp tokens")
	ErrExceedsSupply  = errors.New("lp amount exceeds supply")
)

// Deposit is the part of a user's offer a pool accepts
type Deposit struct {
	Amount0  *big.Int `json:"amount_0"`
	Amount1  *big.Int `json:"amount_1"`
	LPAmount *big.Int `json:"lp_amount"`
	Initial  bool     `json:"initial"`
}

// LPDecimals is the precision of a pool's LP token
func LPDecimals(dec0, dec1 uint8) uint8 {
	return pricing.MaxDecimals(dec0, dec1)
}

// AddAmounts sizes a deposit of up to amount0 / amount1.
//
// An empty pool (supply zero) takes both amounts as offered and mints
// sqrt(a0 * a1) with both sides in the common precision. Otherwise amount0
// drives and the token 1 side is sized from the LP-owned liquidity; when
// amount1 is short of that, amount1 drives instead. LP tokens are always
// minted from the token 0 side, rounded down.
func AddAmounts(p *models.Pool, dec0, dec1 uint8, lpSupply, amount0, amount1 *big.Int) (*Deposit, error) {
	if amount0 == nil || amount0.Sign() <= 0 || amount1 == nil || amount1.Sign() <= 0 {
		return nil, ErrZeroAmount
	}
	common := pricing.MaxDecimals(dec0, dec1)

	if lpSupply.Sign() == 0 {
		a0 := pricing.ConvertDecimals(amount0, dec0, common)
		a1 := pricing.ConvertDecimals(amount1, dec1, common)
		lp := pricing.Sqrt(new(big.Int).Mul(a0, a1))
		if lp.Sign() <= 0 {
			return nil, ErrAmountTooSmall
		}
		return &Deposit{
			Amount0:  new(big.Int).Set(amount0),
			Amount1:  new(big.Int).Set(amount1),
			LPAmount: lp,
			Initial:  true,
		}, nil
	}

	r0, r1 := p.Liquidity0(), p.Liquidity1()
	if r0.Sign() <= 0 || r1.Sign() <= 0 {
		return nil, fmt.Errorf("%w: pool %s has supply but no reserves", pricing.ErrZeroLiquidity, p.Symbol)
	}
	r0n := pricing.ConvertDecimals(r0, dec0, common)
	r1n := pricing.ConvertDecimals(r1, dec1, common)

	used0 := new(big.Int).Set(amount0)
	need1n := pricing.MulDiv(pricing.ConvertDecimals(amount0, dec0, common), r1n, r0n)
	used1 := pricing.ConvertDecimals(need1n, common, dec1)
	if used1.Cmp(amount1) > 0 {
		used1 = new(big.Int).Set(amount1)
		need0n := pricing.MulDiv(pricing.ConvertDecimals(amount1, dec1, common), r0n, r1n)
		used0 = pricing.ConvertDecimals(need0n, common, dec0)
	}

	lp := pricing.MulDiv(lpSupply, used0, r0)
	if lp.Sign() <= 0 || used0.Sign() <= 0 || used1.Sign() <= 0 {
		return nil, ErrAmountTooSmall
	}
	return &Deposit{Amount0: used0, Amount1: used1, LPAmount: lp}, nil
}

// Withdrawal is a pro-rata share of a pool's LP-owned liquidity. LPFee0/1
// is the part of each amount that came from trading fees.
type Withdrawal struct {
	Amount0 *big.Int `json:"amount_0"`
	Amount1 *big.Int `json:"amount_1"`
	LPFee0  *big.Int `json:"-"`
	LPFee1  *big.Int `json:"-"`
}

// RemoveAmounts computes liquidity_i * lp / supply per side, rounded down.
// Protocol fees are not part of the liquidity and stay in the pool.
func RemoveAmounts(p *models.Pool, lpSupply, lpAmount *big.Int) (*Withdrawal, error) {
	if lpAmount == nil || lpAmount.Sign() <= 0 {
		return nil, ErrZeroAmount
	}
	if lpSupply.Sign() <= 0 || lpAmount.Cmp(lpSupply) > 0 {
		return nil, fmt.Errorf("%w: %s of %s", ErrExceedsSupply, lpAmount, lpSupply)
	}

	w := &Withdrawal{
		Amount0: pricing.MulDiv(p.Liquidity0(), lpAmount, lpSupply),
		Amount1: pricing.MulDiv(p.Liquidity1(), lpAmount, lpSupply),
		LPFee0:  pricing.MulDiv(p.LPFee0, lpAmount, lpSupply),
		LPFee1:  pricing.MulDiv(p.LPFee1, lpAmount, lpSupply),
	}
	if w.LPFee0.Cmp(w.Amount0) > 0 {
		w.LPFee0.Set(w.Amount0)
	}
	if w.LPFee1.Cmp(w.Amount1) > 0 {
		w.LPFee1.Set(w.Amount1)
	}
	return w, nil
}

// DropSide0 zeroes the token 0 side, leaving it in the pool
func (w *Withdrawal) DropSide0() {
	w.Amount0, w.LPFee0 = new(big.Int), new(big.Int)
}

// DropSide1 zeroes the token 1 side, leaving it in the pool
func (w *Withdrawal) DropSide1() {
	w.Amount1, w.LPFee1 = new(big.Int), new(big.Int)
}

// Counterpart returns the other side of a deposit at the pool's current
// ratio, rounded down. side is the position of amount in the pair.
func Counterpart(p *models.Pool, dec0, dec1 uint8, side int, amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrZeroAmount
	}
	r0, r1 := p.Liquidity0(), p.Liquidity1()
	if r0.Sign() <= 0 || r1.Sign() <= 0 {
		return nil, fmt.Errorf("%w: pool %s", pricing.ErrZeroLiquidity, p.Symbol)
	}
	common := pricing.MaxDecimals(dec0, dec1)
	r0n := pricing.ConvertDecimals(r0, dec0, common)
	r1n := pricing.ConvertDecimals(r1, dec1, common)

	if side == 0 {
		n := pricing.MulDiv(pricing.ConvertDecimals(amount, dec0, common), r1n, r0n)
		return pricing.ConvertDecimals(n, common, dec1), nil
	}
	n := pricing.MulDiv(pricing.ConvertDecimals(amount, dec1, common), r0n, r1n)
	return pricing.ConvertDecimals(n, common, dec0), nil
}
