package engine

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/aman-zulfiqar/solana-amm-settlement/internal/actor"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/liquidity"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/models"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/pool"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/pricing"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/settlement"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/switches"
	"github.com/sirupsen/logrus"
)

// pair is a pool with its tokens in pool order. flipped is set when the
// caller named the tokens the other way round.
type pair struct {
	pool    *models.Pool
	token0  *models.Token
	token1  *models.Token
	flipped bool
}

func (e *Engine) pair(refA, refB string) (*pair, error) {
	a, err := e.tradable(refA)
	if err != nil {
		return nil, err
	}
	b, err := e.tradable(refB)
	if err != nil {
		return nil, err
	}
	if a.ID == b.ID {
		return nil, fmt.Errorf("%w: %s twice", pool.ErrInvalidPair, a.Symbol)
	}
	p, err := e.pools.GetByPair(a.ID, b.ID)
	if err != nil {
		return nil, err
	}
	if p.Token0 == a.ID {
		return &pair{pool: p, token0: a, token1: b}, nil
	}
	return &pair{pool: p, token0: b, token1: a, flipped: true}, nil
}

// orient puts caller-ordered values into pool order
func orient[T any](flipped bool, a, b T) (T, T) {
	if flipped {
		return b, a
	}
	return a, b
}

type AddLiquidityArgs struct {
	User    string   `json:"user"`
	TokenA  string   `json:"token_a"`
	TokenB  string   `json:"token_b"`
	AmountA *big.Int `json:"amount_a"`
	// AmountB may be nil when ProofB is transfer_from; it is then sized at
	// the pool's ratio and pulled
	AmountB *big.Int            `json:"amount_b,omitempty"`
	ProofA  models.PaymentProof `json:"proof_a"`
	ProofB  models.PaymentProof `json:"proof_b"`
}

type AddLiquidityReply struct {
	RequestID uint64            `json:"request_id"`
	Status    models.StatusCode `json:"status"`
	Pool      string            `json:"pool"`
	Token0    string            `json:"token_0"`
	Token1    string            `json:"token_1"`
	Amount0   *big.Int          `json:"amount_0"` // accepted into the pool
	Amount1   *big.Int          `json:"amount_1"`
	LPToken   string            `json:"lp_token"`
	LPAmount  *big.Int          `json:"lp_amount"`
	Refunds   []*Payment        `json:"refunds,omitempty"`
	TS        time.Time         `json:"ts"`
}

// SolanaAddLiquidityArgs is what a Solana payer signs for one side of a
// deposit; both sides sign the same arguments. An omitted amount_b signs as
// the empty string.
func SolanaAddLiquidityArgs(a AddLiquidityArgs, tokA, tokB *models.Token) map[string]string {
	amountB := ""
	if a.AmountB != nil {
		amountB = a.AmountB.String()
	}
	return map[string]string{
		"op":       "add_liquidity",
		"caller":   a.User,
		"token_a":  tokA.Symbol,
		"amount_a": a.AmountA.String(),
		"token_b":  tokB.Symbol,
		"amount_b": amountB,
	}
}

type AddQuote struct {
	Pool     string   `json:"pool"`
	Token0   string   `json:"token_0"`
	Token1   string   `json:"token_1"`
	Amount0  *big.Int `json:"amount_0"`
	Amount1  *big.Int `json:"amount_1"`
	LPAmount *big.Int `json:"lp_amount"`
	Initial  bool     `json:"initial"`
}

// QuoteAddLiquidity sizes a deposit. A nil amountB is filled in at the
// pool's current ratio, which an empty pool does not have.
func (e *Engine) QuoteAddLiquidity(refA, refB string, amountA, amountB *big.Int) (*AddQuote, error) {
	if !positive(amountA) || (amountB != nil && amountB.Sign() <= 0) {
		return nil, fmt.Errorf("%w: amounts must be positive", ErrInvalidArgs)
	}
	return actor.Exec(e.actor, func() (*AddQuote, error) {
		pr, err := e.pair(refA, refB)
		if err != nil {
			return nil, err
		}
		if amountB == nil {
			side := 0
			if pr.flipped {
				side = 1
			}
			amountB, err = liquidity.Counterpart(pr.pool, pr.token0.Decimals(), pr.token1.Decimals(), side, amountA)
			if err != nil {
				return nil, err
			}
		}
		a0, a1 := orient(pr.flipped, amountA, amountB)
		supply, err := e.lp.TotalSupply(pr.pool.LPTokenID)
		if err != nil {
			return nil, err
		}
		d, err := liquidity.AddAmounts(pr.pool, pr.token0.Decimals(), pr.token1.Decimals(), supply, a0, a1)
		if err != nil {
			return nil, err
		}
		return &AddQuote{
			Pool:     pr.pool.Symbol,
			Token0:   pr.token0.Symbol,
			Token1:   pr.token1.Symbol,
			Amount0:  d.Amount0,
			Amount1:  d.Amount1,
			LPAmount: d.LPAmount,
			Initial:  d.Initial,
		}, nil
	})
}

// AddLiquidity takes both sides of a deposit, mints LP tokens and refunds
// whatever the pool did not accept
func (e *Engine) AddLiquidity(ctx context.Context, args AddLiquidityArgs) (*AddLiquidityReply, error) {
	if err := e.checkGate(ctx, switches.OpAddLiquidity); err != nil {
		return nil, err
	}
	if strings.TrimSpace(args.User) == "" {
		return nil, fmt.Errorf("%w: caller is required", ErrInvalidArgs)
	}
	r, err := e.open(models.RequestAddLiquidity, args.User, args)
	if err != nil {
		return nil, err
	}

	if !positive(args.AmountA) || (args.AmountB != nil && args.AmountB.Sign() <= 0) {
		return nil, r.fail(ctx, fmt.Errorf("%w: amounts must be positive", ErrInvalidArgs), nil, nil)
	}
	if args.AmountB == nil && args.ProofB.Kind != models.ProofTransferFrom {
		return nil, r.fail(ctx, fmt.Errorf("%w: amount_b can only be omitted with a transfer_from proof", ErrInvalidArgs), nil, nil)
	}
	if err := args.ProofA.Validate(); err != nil {
		return nil, r.fail(ctx, err, nil, nil)
	}
	if err := args.ProofB.Validate(); err != nil {
		return nil, r.fail(ctx, err, nil, nil)
	}

	// an omitted side B is sized before anything is taken so an empty pool
	// fails without moving funds; execution re-sizes on the pool as it is
	// then and refunds the difference
	amountB := args.AmountB
	pr, err := actor.Exec(e.actor, func() (*pair, error) {
		pr, err := e.pair(args.TokenA, args.TokenB)
		if err != nil || amountB != nil {
			return pr, err
		}
		side := 0
		if pr.flipped {
			side = 1
		}
		amountB, err = liquidity.Counterpart(pr.pool, pr.token0.Decimals(), pr.token1.Decimals(), side, args.AmountA)
		if err == nil && amountB.Sign() <= 0 {
			err = fmt.Errorf("%w: %s %s needs no counterpart", liquidity.ErrAmountTooSmall, args.AmountA, args.TokenA)
		}
		return pr, err
	})
	if err != nil {
		return nil, r.fail(ctx, err, nil, nil)
	}
	tokA, tokB := orient(pr.flipped, pr.token0, pr.token1)
	signed := SolanaAddLiquidityArgs(args, tokA, tokB)
	ev := &models.SettlementEvent{Pools: []string{pr.pool.Symbol}, PayToken: tokA.Symbol, PayAmount: args.AmountA, ReceiveToken: tokB.Symbol}
	if args.AmountB == nil {
		r.status(models.StatusQuoting, fmt.Sprintf("%s %s", amountB, tokB.Symbol))
	}
	r.log = r.log.WithField("pool", pr.pool.Symbol)

	// both sides must arrive before the pool changes; a failed second side
	// sends the first one back
	r.status(models.StatusVerifyingPayment, tokA.Symbol)
	if _, err := e.coordinator.VerifyPayment(ctx, settlement.Payment{
		RequestID: r.req.ID, User: args.User, Token: tokA, Amount: args.AmountA, Proof: args.ProofA, Args: signed,
	}); err != nil {
		r.status(models.StatusVerifyPaymentFailed, err.Error())
		return nil, r.fail(ctx, err, nil, ev)
	}
	r.status(models.StatusVerifyingPayment, tokB.Symbol)
	if _, err := e.coordinator.VerifyPayment(ctx, settlement.Payment{
		RequestID: r.req.ID, User: args.User, Token: tokB, Amount: amountB, Proof: args.ProofB, Args: signed,
	}); err != nil {
		r.status(models.StatusVerifyPaymentFailed, err.Error())
		reply := &AddLiquidityReply{RequestID: r.req.ID, Status: models.StatusFailed, Pool: pr.pool.Symbol, TS: time.Now().UTC()}
		r.status(models.StatusReturnPayToken, tokA.Symbol)
		if p, perr := r.pay(ctx, tokA, refundTo(args.User, args.ProofA), args.AmountA, "add liquidity return"); perr != nil {
			r.log.WithError(perr).Error("failed to return first deposit side")
		} else if p != nil {
			reply.Refunds = append(reply.Refunds, p)
		}
		return reply, r.fail(ctx, err, reply, ev)
	}
	r.status(models.StatusVerifyPaymentSuccess, "")

	amount0, amount1 := orient(pr.flipped, args.AmountA, amountB)
	refund0, refund1 := orient(pr.flipped, refundTo(args.User, args.ProofA), refundTo(args.User, args.ProofB))

	r.status(models.StatusExecuting, "")
	var (
		dep    *liquidity.Deposit
		pooled *models.Pool
	)
	execErr := e.actor.Sync(func() error {
		p, err := e.pools.GetByID(pr.pool.ID)
		if err != nil {
			return err
		}
		if !p.Listed {
			return fmt.Errorf("%w: %s is not listed", pool.ErrPoolNotFound, p.Symbol)
		}
		supply, err := e.lp.TotalSupply(p.LPTokenID)
		if err != nil {
			return err
		}
		d, err := liquidity.AddAmounts(p, pr.token0.Decimals(), pr.token1.Decimals(), supply, amount0, amount1)
		if err != nil {
			return err
		}
		before := p.Clone()
		if err := e.pools.AdjustBalances(p, pool.Deltas{Balance0: d.Amount0, Balance1: d.Amount1}); err != nil {
			return err
		}
		if err := e.lp.Mint(p.LPTokenID, args.User, d.LPAmount); err != nil {
			return e.revert([]*models.Pool{before}, err)
		}
		dep, pooled = d, p
		return nil
	})

	reply := &AddLiquidityReply{
		RequestID: r.req.ID,
		Pool:      pr.pool.Symbol,
		Token0:    pr.token0.Symbol,
		Token1:    pr.token1.Symbol,
	}

	if execErr != nil {
		r.status(models.StatusReturnPayToken, execErr.Error())
		for _, side := range []struct {
			token  *models.Token
			to     string
			amount *big.Int
		}{{pr.token0, refund0, amount0}, {pr.token1, refund1, amount1}} {
			p, err := r.pay(ctx, side.token, side.to, side.amount, "add liquidity return")
			if err != nil {
				r.log.WithError(err).WithField("token", side.token.Symbol).Error("failed to return deposit")
				continue
			}
			if p != nil {
				reply.Refunds = append(reply.Refunds, p)
			}
		}
		reply.Status = models.StatusFailed
		reply.TS = time.Now().UTC()
		return reply, r.fail(ctx, execErr, reply, ev)
	}
	r.status(models.StatusUpdatePool, pooled.Symbol)
	r.status(models.StatusMintLPToken, dep.LPAmount.String())

	reply.Amount0 = dep.Amount0
	reply.Amount1 = dep.Amount1
	reply.LPAmount = dep.LPAmount
	if lpTok, err := e.tokens.Resolve(pooled.LPTokenID); err == nil {
		reply.LPToken = lpTok.Symbol
	}

	for _, side := range []struct {
		token      *models.Token
		to         string
		sent, used *big.Int
	}{{pr.token0, refund0, amount0, dep.Amount0}, {pr.token1, refund1, amount1, dep.Amount1}} {
		excess := new(big.Int).Sub(side.sent, side.used)
		if excess.Sign() <= 0 {
			continue
		}
		r.status(models.StatusRefundExcess, fmt.Sprintf("%s %s", excess, side.token.Symbol))
		p, err := r.pay(ctx, side.token, side.to, excess, "add liquidity excess")
		if err != nil {
			r.log.WithError(err).WithField("token", side.token.Symbol).Error("excess refund lost")
			continue
		}
		if p != nil {
			reply.Refunds = append(reply.Refunds, p)
		}
	}

	reply.Status = r.done()
	reply.TS = time.Now().UTC()
	ev.ReceiveToken = reply.LPToken
	ev.ReceiveAmount = dep.LPAmount
	r.finish(ctx, reply.Status, "", reply, ev)
	r.log.WithFields(logrus.Fields{
		"amount_0": pricing.FormatAmount(dep.Amount0, pr.token0.Decimals()),
		"amount_1": pricing.FormatAmount(dep.Amount1, pr.token1.Decimals()),
		"lp":       dep.LPAmount.String(),
		"initial":  dep.Initial,
	}).Info("liquidity added")
	return reply, nil
}

type RemoveLiquidityArgs struct {
	User     string   `json:"user"`
	TokenA   string   `json:"token_a"`
	TokenB   string   `json:"token_b"`
	LPAmount *big.Int `json:"lp_amount"`
	// payout addresses per side, default User; Solana tokens need a pubkey
	ToA string `json:"to_a,omitempty"`
	ToB string `json:"to_b,omitempty"`
}

type RemoveLiquidityReply struct {
	RequestID uint64            `json:"request_id"`
	Status    models.StatusCode `json:"status"`
	Pool      string            `json:"pool"`
	LPAmount  *big.Int          `json:"lp_amount"`
	Amount0   *big.Int          `json:"amount_0"` // taken from the pool, before transfer fees
	Amount1   *big.Int          `json:"amount_1"`
	Payouts   []*Payment        `json:"payouts,omitempty"`
	TS        time.Time         `json:"ts"`
}

type RemoveQuote struct {
	Pool    string   `json:"pool"`
	Token0  string   `json:"token_0"`
	Token1  string   `json:"token_1"`
	Amount0 *big.Int `json:"amount_0"`
	Amount1 *big.Int `json:"amount_1"`
	// Receive amounts are after each token's transfer fee; a side that does
	// not cover its fee stays in the pool
	Receive0 *big.Int `json:"receive_0"`
	Receive1 *big.Int `json:"receive_1"`
}

func (e *Engine) QuoteRemoveLiquidity(refA, refB string, lpAmount *big.Int) (*RemoveQuote, error) {
	if !positive(lpAmount) {
		return nil, fmt.Errorf("%w: lp amount must be positive", ErrInvalidArgs)
	}
	return actor.Exec(e.actor, func() (*RemoveQuote, error) {
		pr, err := e.pair(refA, refB)
		if err != nil {
			return nil, err
		}
		supply, err := e.lp.TotalSupply(pr.pool.LPTokenID)
		if err != nil {
			return nil, err
		}
		w, err := liquidity.RemoveAmounts(pr.pool, supply, lpAmount)
		if err != nil {
			return nil, err
		}
		dropDust(w, pr.token0, pr.token1)
		return &RemoveQuote{
			Pool:     pr.pool.Symbol,
			Token0:   pr.token0.Symbol,
			Token1:   pr.token1.Symbol,
			Amount0:  w.Amount0,
			Amount1:  w.Amount1,
			Receive0: afterFee(w.Amount0, pr.token0),
			Receive1: afterFee(w.Amount1, pr.token1),
		}, nil
	})
}

// dropDust leaves sides that would not cover their transfer fee in the pool
func dropDust(w *liquidity.Withdrawal, t0, t1 *models.Token) {
	if w.Amount0.Cmp(t0.TransferFee()) <= 0 {
		w.DropSide0()
	}
	if w.Amount1.Cmp(t1.TransferFee()) <= 0 {
		w.DropSide1()
	}
}

func afterFee(amount *big.Int, t *models.Token) *big.Int {
	if amount.Sign() == 0 {
		return new(big.Int)
	}
	return new(big.Int).Sub(amount, t.TransferFee())
}

// RemoveLiquidity burns LP tokens and pays out the pro-rata share. The burn
// and the pool update happen in one section, so of two removals racing for
// the same balance the second fails on the burn.
func (e *Engine) RemoveLiquidity(ctx context.Context, args RemoveLiquidityArgs) (*RemoveLiquidityReply, error) {
	if err := e.checkGate(ctx, switches.OpRemoveLiquidity); err != nil {
		return nil, err
	}
	if strings.TrimSpace(args.User) == "" {
		return nil, fmt.Errorf("%w: caller is required", ErrInvalidArgs)
	}
	r, err := e.open(models.RequestRemoveLiquidity, args.User, args)
	if err != nil {
		return nil, err
	}
	if !positive(args.LPAmount) {
		return nil, r.fail(ctx, fmt.Errorf("%w: lp amount must be positive", ErrInvalidArgs), nil, nil)
	}

	r.status(models.StatusExecuting, "")
	var (
		pr *pair
		w  *liquidity.Withdrawal
	)
	err = e.actor.Sync(func() error {
		var err error
		if pr, err = e.pair(args.TokenA, args.TokenB); err != nil {
			return err
		}
		tokA, tokB := orient(pr.flipped, pr.token0, pr.token1)
		if err := checkPayoutAddress(tokA, payTo(args.ToA, args.User)); err != nil {
			return err
		}
		if err := checkPayoutAddress(tokB, payTo(args.ToB, args.User)); err != nil {
			return err
		}
		p := pr.pool
		supply, err := e.lp.TotalSupply(p.LPTokenID)
		if err != nil {
			return err
		}
		w, err = liquidity.RemoveAmounts(p, supply, args.LPAmount)
		if err != nil {
			return err
		}
		dropDust(w, pr.token0, pr.token1)
		if w.Amount0.Sign() == 0 && w.Amount1.Sign() == 0 {
			return fmt.Errorf("%w: %s lp buys nothing above transfer fees", liquidity.ErrAmountTooSmall, args.LPAmount)
		}

		if err := e.lp.Burn(p.LPTokenID, args.User, args.LPAmount); err != nil {
			return err
		}
		err = e.pools.AdjustBalances(p, pool.Deltas{
			Balance0: new(big.Int).Neg(w.Amount0),
			Balance1: new(big.Int).Neg(w.Amount1),
			LPFee0:   new(big.Int).Neg(w.LPFee0),
			LPFee1:   new(big.Int).Neg(w.LPFee1),
		})
		if err != nil {
			if merr := e.lp.Mint(p.LPTokenID, args.User, args.LPAmount); merr != nil {
				return errors.Join(err, fmt.Errorf("restore lp balance: %w", merr))
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, r.fail(ctx, err, nil, nil)
	}
	r.log = r.log.WithField("pool", pr.pool.Symbol)
	r.status(models.StatusBurnLPToken, args.LPAmount.String())
	r.status(models.StatusUpdatePool, pr.pool.Symbol)

	reply := &RemoveLiquidityReply{
		RequestID: r.req.ID,
		Pool:      pr.pool.Symbol,
		LPAmount:  new(big.Int).Set(args.LPAmount),
		Amount0:   w.Amount0,
		Amount1:   w.Amount1,
	}
	ev := &models.SettlementEvent{Pools: []string{pr.pool.Symbol}}

	to0, to1 := orient(pr.flipped, payTo(args.ToA, args.User), payTo(args.ToB, args.User))
	r.status(models.StatusPayingOut, "")
	for _, side := range []struct {
		token  *models.Token
		to     string
		amount *big.Int
	}{{pr.token0, to0, w.Amount0}, {pr.token1, to1, w.Amount1}} {
		if side.amount.Sign() == 0 {
			continue
		}
		p, err := r.pay(ctx, side.token, side.to, side.amount, "remove liquidity")
		if err != nil {
			r.log.WithError(err).WithFields(logrus.Fields{
				"token":  side.token.Symbol,
				"amount": side.amount.String(),
			}).Error("liquidity payout lost")
			continue
		}
		if p != nil {
			reply.Payouts = append(reply.Payouts, p)
		}
	}

	reply.Status = r.done()
	reply.TS = time.Now().UTC()
	r.finish(ctx, reply.Status, "", reply, ev)
	r.log.WithFields(logrus.Fields{
		"lp":       args.LPAmount.String(),
		"amount_0": pricing.FormatAmount(w.Amount0, pr.token0.Decimals()),
		"amount_1": pricing.FormatAmount(w.Amount1, pr.token1.Decimals()),
	}).Info("liquidity removed")
	return reply, nil
}

func payTo(addr, user string) string {
	if addr != "" {
		return addr
	}
	return user
}
